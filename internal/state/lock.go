package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// staleLockAge is how old a lock file may get before a crash is assumed and
// the lock is broken.
const staleLockAge = 10 * time.Minute

// Lock acquires a file lock on the state to prevent concurrent modifications.
func (m *Manager) Lock() error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		} else {
			return fmt.Errorf("state is locked by another process (%s, lock file: %s). "+
				"If that process is gone, remove the lock file manually",
				lockOwner(lockPath), lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return nil
}

// lockOwner reads the holder recorded in a lock file for error messages.
func lockOwner(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "owner unknown"
	}
	owner := strings.TrimSpace(strings.ReplaceAll(string(data), "\n", ", "))
	owner = strings.TrimSuffix(owner, ",")
	if owner == "" {
		return "owner unknown"
	}
	return owner
}

// Unlock releases the state lock.
func (m *Manager) Unlock() error {
	lockPath := m.lockPath()
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}
