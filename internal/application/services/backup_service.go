package services

import (
	"context"
	"encoding/json"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/infrastructure/logger"
	"github.com/libtrack/core/internal/ports"
)

// BackupService snapshots arbitrary payloads and restores them verbatim.
type BackupService struct {
	store  ports.BackupStore
	logger *logger.Logger
}

// NewBackupService creates a new backup service.
func NewBackupService(store ports.BackupStore, appLogger *logger.Logger) *BackupService {
	return &BackupService{
		store:  store,
		logger: appLogger.WithComponent("backup"),
	}
}

// Create persists the payload as a new immutable backup and returns it.
// Every call creates a new record; nothing is deduplicated or pruned.
func (s *BackupService) Create(ctx context.Context, payload json.RawMessage) (*entities.Backup, error) {
	backup, err := s.store.Create(ctx, payload)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Backup created", "backup_id", backup.ID, "size_bytes", len(payload))
	return backup, nil
}

// Restore returns the stored payload verbatim, or ErrBackupNotFound.
func (s *BackupService) Restore(ctx context.Context, id string) (json.RawMessage, error) {
	backup, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return backup.Data, nil
}

// List returns all backup ids and timestamps, newest first.
func (s *BackupService) List(ctx context.Context) ([]entities.BackupInfo, error) {
	return s.store.List(ctx)
}
