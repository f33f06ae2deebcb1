package entities

import (
	"encoding/json"
	"errors"
	"time"
)

// Common errors
var (
	ErrBackupNotFound  = errors.New("backup not found")
	ErrNoProvider      = errors.New("no chat provider configured")
	ErrEmptyCompletion = errors.New("provider returned empty completion")
)

// StudentStatusArchived is the status stamped on a student when it is
// moved to the archive list.
const StudentStatusArchived = "Archived"

// Student is an opaque record owned by the frontend. The backend only ever
// reads the "id" field and stamps "status"/"archivedAt" when archiving;
// everything else round-trips untouched.
type Student map[string]interface{}

// ID returns the student identifier, or "" when absent.
func (s Student) ID() string {
	id, _ := s["id"].(string)
	return id
}

// MarkArchived stamps the archive status and timestamp on the record.
func (s Student) MarkArchived(at time.Time) {
	s["status"] = StudentStatusArchived
	s["archivedAt"] = at.UTC().Format(time.RFC3339)
}

// AppState is the single persisted document: active students, archived
// students and the operator settings map. There is one document per state id.
type AppState struct {
	Students []Student              `json:"students"`
	Archived []Student              `json:"archived"`
	Settings map[string]interface{} `json:"settings"`
}

// NewAppState returns the empty default document seeded on first load.
func NewAppState() *AppState {
	return &AppState{
		Students: []Student{},
		Archived: []Student{},
		Settings: map[string]interface{}{},
	}
}

// Normalize replaces nil collections with their empty equivalents so the
// document always serializes as {students:[], archived:[], settings:{}}.
func (s *AppState) Normalize() {
	if s.Students == nil {
		s.Students = []Student{}
	}
	if s.Archived == nil {
		s.Archived = []Student{}
	}
	if s.Settings == nil {
		s.Settings = map[string]interface{}{}
	}
}

// Backup is an immutable snapshot of an arbitrary JSON payload.
type Backup struct {
	ID        string          `json:"id" db:"id"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	Data      json.RawMessage `json:"data" db:"data"`
}

// BackupInfo describes a stored backup without carrying its payload.
type BackupInfo struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Chat roles accepted in a conversation history.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatTurn is one message in a chat history.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
