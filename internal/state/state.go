package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stagehand-io/stagehand/internal/model"
)

// DefaultStateFile is the local state location relative to the project dir.
const DefaultStateFile = ".stagehand/state.yaml"

// CurrentStateVersion is written into every serialized state file.
const CurrentStateVersion = 1

// Manager handles reading and writing of state on the local filesystem.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Read loads the state from the configured path. A missing file yields a
// fresh empty state with a new lineage. Encrypted files are transparently
// decrypted.
func (m *Manager) Read(ctx context.Context) (*model.State, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		return NewState(), nil
	}

	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	return ParseState(raw)
}

// Write saves the state to the configured path. The serial is incremented by
// the engine, not here. If STAGEHAND_STATE_ENCRYPTION_KEY is set, the file
// is transparently encrypted.
func (m *Manager) Write(ctx context.Context, st *model.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := SerializeState(st)
	if err != nil {
		return err
	}

	encrypted, err := EncryptState(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	if err := os.WriteFile(m.path, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}

	return nil
}

// NewState returns an empty state with a fresh lineage.
func NewState() *model.State {
	return &model.State{
		Version: CurrentStateVersion,
		Serial:  0,
		Lineage: uuid.NewString(),
	}
}

// SerializeState converts a state to its YAML representation.
func SerializeState(st *model.State) ([]byte, error) {
	out, err := yaml.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	return out, nil
}

// ParseState loads a state from its serialized form, decrypting first when
// the content carries the encryption header.
func ParseState(raw []byte) (*model.State, error) {
	if IsEncrypted(raw) {
		decrypted, err := DecryptState(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt state: %w", err)
		}
		raw = decrypted
	}

	st := &model.State{}
	if err := yaml.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	if st.Version == 0 {
		st.Version = CurrentStateVersion
	}
	if st.Lineage == "" {
		st.Lineage = uuid.NewString()
	}
	if st.Version > CurrentStateVersion {
		return nil, fmt.Errorf("state version %d is newer than supported version %d", st.Version, CurrentStateVersion)
	}
	return st, nil
}
