package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/ports"
)

const backupTimeLayout = "20060102-150405.000"

// FileBackupStore writes each backup as its own pretty-printed JSON file
// under <dir>/backups. The file name doubles as the backup id.
type FileBackupStore struct {
	dir string
}

// NewFileBackupStore creates a file-backed backup store rooted at dir.
func NewFileBackupStore(dir string) (ports.BackupStore, error) {
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FileBackupStore{dir: backupDir}, nil
}

func (s *FileBackupStore) Create(ctx context.Context, data json.RawMessage) (*entities.Backup, error) {
	now := time.Now().UTC()
	id := "backup-" + now.Format(backupTimeLayout)
	// Bump the timestamp until the name is free; ids are millisecond-grained.
	for {
		if _, err := os.Stat(filepath.Join(s.dir, id+".json")); os.IsNotExist(err) {
			break
		}
		now = now.Add(time.Millisecond)
		id = "backup-" + now.Format(backupTimeLayout)
	}

	pretty, err := json.MarshalIndent(json.RawMessage(data), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup payload: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(s.dir, id+".json"), pretty); err != nil {
		return nil, err
	}

	return &entities.Backup{ID: id, CreatedAt: now, Data: data}, nil
}

func (s *FileBackupStore) Get(ctx context.Context, id string) (*entities.Backup, error) {
	if !validBackupID(id) {
		return nil, entities.ErrBackupNotFound
	}

	path := filepath.Join(s.dir, id+".json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, entities.ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", id, err)
	}

	return &entities.Backup{
		ID:        id,
		CreatedAt: backupCreatedAt(id, path),
		Data:      json.RawMessage(raw),
	}, nil
}

func (s *FileBackupStore) List(ctx context.Context) ([]entities.BackupInfo, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	infos := make([]entities.BackupInfo, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if !validBackupID(id) {
			continue
		}
		infos = append(infos, entities.BackupInfo{
			ID:        id,
			CreatedAt: backupCreatedAt(id, filepath.Join(s.dir, name)),
		})
	}

	// Newest first.
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// validBackupID accepts only names this store generates, which also keeps
// caller-supplied ids from escaping the backup directory.
func validBackupID(id string) bool {
	if !strings.HasPrefix(id, "backup-") {
		return false
	}
	_, err := time.Parse(backupTimeLayout, strings.TrimPrefix(id, "backup-"))
	return err == nil
}

func backupCreatedAt(id, path string) time.Time {
	if ts, err := time.Parse(backupTimeLayout, strings.TrimPrefix(id, "backup-")); err == nil {
		return ts.UTC()
	}
	if fi, err := os.Stat(path); err == nil {
		return fi.ModTime().UTC()
	}
	return time.Time{}
}
