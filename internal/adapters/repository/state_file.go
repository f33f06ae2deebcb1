package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/ports"
)

// FileStateStore keeps the application document as one pretty-printed JSON
// file under the data directory, named after the state id.
type FileStateStore struct {
	dir     string
	stateID string
}

// NewFileStateStore creates a file-backed state store rooted at dir.
func NewFileStateStore(dir, stateID string) (ports.StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStateStore{dir: dir, stateID: stateID}, nil
}

func (s *FileStateStore) path() string {
	return filepath.Join(s.dir, s.stateID+".json")
}

func (s *FileStateStore) Load(ctx context.Context) (*entities.AppState, error) {
	raw, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		// First read seeds the empty default document.
		state := entities.NewAppState()
		if err := s.Save(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state entities.AppState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path(), err)
	}
	state.Normalize()
	return &state, nil
}

func (s *FileStateStore) Save(ctx context.Context, state *entities.AppState) error {
	state.Normalize()

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return writeFileAtomic(s.path(), raw)
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it over the target, so readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
