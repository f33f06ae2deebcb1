package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/ports"
)

// PostgresBackupStore writes each backup as its own row in the backups
// table, identified by a generated uuid.
type PostgresBackupStore struct {
	db *sqlx.DB
}

// NewPostgresBackupStore creates a postgres-backed backup store.
func NewPostgresBackupStore(db *sqlx.DB) ports.BackupStore {
	return &PostgresBackupStore{db: db}
}

func (s *PostgresBackupStore) Create(ctx context.Context, data json.RawMessage) (*entities.Backup, error) {
	backup := &entities.Backup{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}

	query := `INSERT INTO backups (id, created_at, data) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, backup.ID, backup.CreatedAt, []byte(data)); err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	return backup, nil
}

func (s *PostgresBackupStore) Get(ctx context.Context, id string) (*entities.Backup, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, entities.ErrBackupNotFound
	}

	query := `SELECT id, created_at, data FROM backups WHERE id = $1`

	var backup entities.Backup
	err := s.db.GetContext(ctx, &backup, query, id)
	if err == sql.ErrNoRows {
		return nil, entities.ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	return &backup, nil
}

func (s *PostgresBackupStore) List(ctx context.Context) ([]entities.BackupInfo, error) {
	query := `SELECT id, created_at FROM backups ORDER BY created_at DESC`

	infos := []entities.BackupInfo{}
	if err := s.db.SelectContext(ctx, &infos, query); err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return infos, nil
}
