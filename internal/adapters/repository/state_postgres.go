package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/ports"
)

// PostgresStateStore keeps the whole application document in a single row
// of the app_state table, keyed by state id. Save upserts the row.
type PostgresStateStore struct {
	db      *sqlx.DB
	stateID string
}

// NewPostgresStateStore creates a postgres-backed state store.
func NewPostgresStateStore(db *sqlx.DB, stateID string) ports.StateStore {
	return &PostgresStateStore{db: db, stateID: stateID}
}

func (s *PostgresStateStore) Load(ctx context.Context) (*entities.AppState, error) {
	query := `SELECT data FROM app_state WHERE id = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, s.stateID).Scan(&raw)
	if err == sql.ErrNoRows {
		// First read seeds the empty default document.
		state := entities.NewAppState()
		if err := s.Save(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", s.stateID, err)
	}

	var state entities.AppState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", s.stateID, err)
	}
	state.Normalize()
	return &state, nil
}

func (s *PostgresStateStore) Save(ctx context.Context, state *entities.AppState) error {
	state.Normalize()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	query := `
		INSERT INTO app_state (id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, s.stateID, raw); err != nil {
		return fmt.Errorf("save state %s: %w", s.stateID, err)
	}
	return nil
}
