package state

import (
	"context"
	"fmt"

	"github.com/stagehand-io/stagehand/internal/model"
)

// Backend defines the interface for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*model.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, st *model.State) error

	// Lock acquires an exclusive lock on the state.
	Lock() error

	// Unlock releases the lock on the state.
	Unlock() error
}

// NewBackend creates a state backend from the manifest's backend block.
// A nil spec or "local" type yields the local file manager under projectDir.
func NewBackend(spec *model.BackendSpec, projectDir string) (Backend, error) {
	if spec == nil {
		return NewManager(localStatePath(projectDir, "")), nil
	}

	switch spec.Type {
	case "local", "":
		return NewManager(localStatePath(projectDir, spec.Options["path"])), nil
	case "s3":
		return newS3Backend(spec.Options)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", spec.Type)
	}
}

func localStatePath(projectDir, override string) string {
	if override != "" {
		return override
	}
	if projectDir == "" {
		return DefaultStateFile
	}
	return projectDir + "/" + DefaultStateFile
}
