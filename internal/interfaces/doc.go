// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Sync Pipeline Interfaces
//
//   - tasks.SyncRunner: runs the annotation sync pipeline (internal/tasks/sync_vault.go)
//   - scheduler.SyncRunner: the scheduler's view of the same operation
//     (internal/scheduler/annotation_sync.go)
//   - tasks.AuditCleaner: deletes expired audit reports (internal/tasks/cleanup_audit.go)
//
// Both SyncRunner variants are satisfied by syncer.Service. They are declared
// at the consumer side so tasks and scheduler stay decoupled from the
// service's construction.
//
// # Adding a New Annotation Source
//
// To add support for a new annotation capture format (e.g. Kobo bookmarks):
//
//  1. Create a parser package alongside internal/kindle and internal/callouts
//     that produces entities.Annotation values:
//
//     type Result struct {
//         Annotations []entities.Annotation
//         Skipped     int
//     }
//
//     func Parse(r io.Reader) (*Result, error)
//
//     Set a distinct entities.Source constant so run history records where
//     each annotation came from.
//
//  2. Collect the new source in syncer.Service.collect(). Deduplication and
//     matching pick it up automatically from there.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for examples.
package interfaces
