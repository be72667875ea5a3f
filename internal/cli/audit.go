package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// auditEntry represents a single audit log entry.
type auditEntry struct {
	Timestamp string         `json:"timestamp"`
	Operation string         `json:"operation"` // "deploy", "teardown", "drift.update", "state.rm"
	User      string         `json:"user"`
	Project   string         `json:"project"`
	Changes   []auditChange  `json:"changes,omitempty"`
	Summary   map[string]int `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// auditChange records a single stage change.
type auditChange struct {
	Stage     string `json:"stage"`
	StackName string `json:"stackName,omitempty"`
	Action    string `json:"action"`
}

// writeAuditLog appends an audit entry to .stagehand/audit.log under dir.
func writeAuditLog(dir string, entry auditEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if entry.User == "" {
		entry.User = currentUser()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	logPath := filepath.Join(dir, ".stagehand", "audit.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		// Audit logging failure should not block operations
		return nil
	}
	defer f.Close()

	_, err = f.WriteString(string(data) + "\n")
	return err
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}
