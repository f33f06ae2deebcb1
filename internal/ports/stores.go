package ports

import (
	"context"
	"encoding/json"

	"github.com/libtrack/core/internal/domain/entities"
)

// StateStore persists the application document wholesale. Load seeds and
// returns the empty default document when none exists yet; Save replaces the
// stored document in a single write.
type StateStore interface {
	Load(ctx context.Context) (*entities.AppState, error)
	Save(ctx context.Context, state *entities.AppState) error
}

// BackupStore persists immutable snapshots of arbitrary payloads. Get
// returns entities.ErrBackupNotFound for unknown ids. Backups are never
// pruned.
type BackupStore interface {
	Create(ctx context.Context, data json.RawMessage) (*entities.Backup, error)
	Get(ctx context.Context, id string) (*entities.Backup, error)
	List(ctx context.Context) ([]entities.BackupInfo, error)
}
