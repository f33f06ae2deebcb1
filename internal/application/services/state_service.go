package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/infrastructure/logger"
	"github.com/libtrack/core/internal/ports"
)

// StateService owns every read and write of the application document. All
// load-mutate-save sequences serialize through one mutex, so concurrent
// requests cannot lose each other's updates.
type StateService struct {
	store  ports.StateStore
	logger *logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewStateService creates a new state service.
func NewStateService(store ports.StateStore, appLogger *logger.Logger) *StateService {
	return &StateService{
		store:  store,
		logger: appLogger.WithComponent("state"),
		now:    time.Now,
	}
}

// GetStudents returns the active student list.
func (s *StateService) GetStudents(ctx context.Context) ([]entities.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.Students, nil
}

// ReplaceStudents overwrites the active student list wholesale.
func (s *StateService) ReplaceStudents(ctx context.Context, students []entities.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	state.Students = students
	return s.store.Save(ctx, state)
}

// GetArchived returns the archived student list, most recently archived first.
func (s *StateService) GetArchived(ctx context.Context) ([]entities.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.Archived, nil
}

// ReplaceArchived overwrites the archived student list wholesale.
func (s *StateService) ReplaceArchived(ctx context.Context, archived []entities.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	state.Archived = archived
	return s.store.Save(ctx, state)
}

// ArchiveStudent moves the student with the given id from the active list to
// the head of the archive, stamping status and timestamp. An unknown id is
// treated as already archived and succeeds without touching the document.
func (s *StateService) ArchiveStudent(ctx context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i, student := range state.Students {
		if student.ID() == studentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.logger.Debugw("Archive skipped, student not in active list", "student_id", studentID)
		return nil
	}

	student := state.Students[idx]
	state.Students = append(state.Students[:idx], state.Students[idx+1:]...)
	student.MarkArchived(s.now())
	state.Archived = append([]entities.Student{student}, state.Archived...)

	if err := s.store.Save(ctx, state); err != nil {
		return err
	}

	s.logger.Infow("Student archived", "student_id", studentID)
	return nil
}

// GetSettings returns the stored settings with secret-shaped keys stripped.
func (s *StateService) GetSettings(ctx context.Context) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return stripSecrets(state.Settings), nil
}

// UpdateSettings shallow-merges the patch into the stored settings. Secret
// shaped keys are stripped before persisting; credentials only ever live in
// the environment. Returns the merged result.
func (s *StateService) UpdateSettings(ctx context.Context, patch map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		if isSecretKey(k) {
			s.logger.Debugw("Dropping secret-shaped settings key", "key", k)
			continue
		}
		state.Settings[k] = v
	}
	state.Settings = stripSecrets(state.Settings)

	if err := s.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state.Settings, nil
}

var secretKeyMarkers = []string{"key", "token", "secret", "password"}

func isSecretKey(k string) bool {
	lower := strings.ToLower(k)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func stripSecrets(settings map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		if isSecretKey(k) {
			continue
		}
		clean[k] = v
	}
	return clean
}
