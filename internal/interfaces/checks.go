package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/marginalia/internal/audit"
	"github.com/mrlokans/marginalia/internal/scheduler"
	"github.com/mrlokans/marginalia/internal/syncer"
	"github.com/mrlokans/marginalia/internal/tasks"
)

// Sync pipeline implementations
var _ tasks.SyncRunner = (*syncer.Service)(nil)
var _ scheduler.SyncRunner = (*syncer.Service)(nil)

// Audit retention implementations
var _ tasks.AuditCleaner = (*audit.Auditor)(nil)
