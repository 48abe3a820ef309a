// Package audit persists JSON snapshots of sync run reports so every
// mutation of the vault leaves an inspectable trace on disk.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Auditor struct {
	AuditDir string
}

func NewAuditor(auditDir string) *Auditor {
	return &Auditor{
		AuditDir: auditDir,
	}
}

// SaveJSON saves the provided data as JSON to a file with UUID4 filename
func (a *Auditor) SaveJSON(data any) (string, error) {
	// Ensure audit directory exists
	if err := a.ensureAuditDir(); err != nil {
		return "", fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	// Generate UUID4 for filename
	auditID := uuid.New()
	filename := fmt.Sprintf("%s.json", auditID.String())
	path := filepath.Join(a.AuditDir, filename)

	log.Printf("Saving audit file: %s", path)

	// Marshal data to JSON
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	// Write JSON to file
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write audit file: %w", err)
	}

	return filename, nil
}

// Cleanup deletes audit files older than the retention window and
// returns how many were removed.
func (a *Auditor) Cleanup(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(a.AuditDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read audit directory: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.AuditDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove audit file %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// ensureAuditDir creates the audit directory if it doesn't exist
func (a *Auditor) ensureAuditDir() error {
	if _, err := os.Stat(a.AuditDir); os.IsNotExist(err) {
		if err := os.MkdirAll(a.AuditDir, 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	return nil
}
