package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/libtrack/core/internal/application/services"
	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/infrastructure/logger"
)

// StateHandler handles student, archive and settings requests
type StateHandler struct {
	stateService *services.StateService
	logger       *logger.Logger
}

// NewStateHandler creates a new state handler
func NewStateHandler(stateService *services.StateService, logger *logger.Logger) *StateHandler {
	return &StateHandler{
		stateService: stateService,
		logger:       logger,
	}
}

// GetData returns the active student list
func (h *StateHandler) GetData(c echo.Context) error {
	students, err := h.stateService.GetStudents(c.Request().Context())
	if err != nil {
		h.logger.Error("Load students failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load students")
	}

	return c.JSON(http.StatusOK, DataResponse{Students: students})
}

// ReplaceData overwrites the active student list wholesale
func (h *StateHandler) ReplaceData(c echo.Context) error {
	var req DataRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Students == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing students field")
	}

	if err := h.stateService.ReplaceStudents(c.Request().Context(), req.Students); err != nil {
		h.logger.Error("Save students failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save students")
	}

	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// GetArchive returns the archived student list
func (h *StateHandler) GetArchive(c echo.Context) error {
	archived, err := h.stateService.GetArchived(c.Request().Context())
	if err != nil {
		h.logger.Error("Load archive failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load archive")
	}

	return c.JSON(http.StatusOK, ArchiveResponse{Archived: archived})
}

// ReplaceArchive overwrites the archived student list wholesale
func (h *StateHandler) ReplaceArchive(c echo.Context) error {
	var req ArchiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Archived == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing archived field")
	}

	if err := h.stateService.ReplaceArchived(c.Request().Context(), req.Archived); err != nil {
		h.logger.Error("Save archive failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save archive")
	}

	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// ArchiveStudent moves one student into the archive. Archiving an id that is
// not in the active list succeeds without changing anything.
func (h *StateHandler) ArchiveStudent(c echo.Context) error {
	var req ArchiveStudentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.stateService.ArchiveStudent(c.Request().Context(), req.StudentID); err != nil {
		h.logger.Error("Archive student failed", "error", err, "student_id", req.StudentID)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to archive student")
	}

	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// GetSettings returns the stored settings, secrets stripped
func (h *StateHandler) GetSettings(c echo.Context) error {
	settings, err := h.stateService.GetSettings(c.Request().Context())
	if err != nil {
		h.logger.Error("Load settings failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load settings")
	}

	return c.JSON(http.StatusOK, settings)
}

// UpdateSettings shallow-merges the payload into the stored settings
func (h *StateHandler) UpdateSettings(c echo.Context) error {
	var patch map[string]interface{}
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	settings, err := h.stateService.UpdateSettings(c.Request().Context(), patch)
	if err != nil {
		h.logger.Error("Update settings failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update settings")
	}

	return c.JSON(http.StatusOK, settings)
}

// BackupHandler handles backup and restore requests
type BackupHandler struct {
	backupService *services.BackupService
	logger        *logger.Logger
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(backupService *services.BackupService, logger *logger.Logger) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
		logger:        logger,
	}
}

// CreateBackup snapshots the posted payload under a new id
func (h *BackupHandler) CreateBackup(c echo.Context) error {
	var req BackupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if len(req.Data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing data field")
	}

	backup, err := h.backupService.Create(c.Request().Context(), req.Data)
	if err != nil {
		h.logger.Error("Create backup failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create backup")
	}

	return c.JSON(http.StatusOK, BackupResponse{OK: true, Backup: backup.ID})
}

// Restore returns a stored backup payload verbatim
func (h *BackupHandler) Restore(c echo.Context) error {
	id := c.Param("id")

	data, err := h.backupService.Restore(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, entities.ErrBackupNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Backup not found")
		}
		h.logger.Error("Restore backup failed", "error", err, "backup_id", id)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to restore backup")
	}

	return c.JSONBlob(http.StatusOK, data)
}

// ListBackups returns backup ids and timestamps, newest first
func (h *BackupHandler) ListBackups(c echo.Context) error {
	infos, err := h.backupService.List(c.Request().Context())
	if err != nil {
		h.logger.Error("List backups failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list backups")
	}

	return c.JSON(http.StatusOK, BackupListResponse{Backups: infos})
}

// ChatHandler proxies chat requests to the provider chain
type ChatHandler struct {
	chatService *services.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *services.ChatService, logger *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// Chat forwards the message and history to the first provider that answers
func (h *ChatHandler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.chatService.Chat(c.Request().Context(), req.Message, req.History)
	if err != nil {
		if errors.Is(err, entities.ErrNoProvider) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "No chat provider configured")
		}
		h.logger.Error("Chat failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}

// Request/Response types

type DataRequest struct {
	Students []entities.Student `json:"students"`
}

type DataResponse struct {
	Students []entities.Student `json:"students"`
}

type ArchiveRequest struct {
	Archived []entities.Student `json:"archived"`
}

type ArchiveResponse struct {
	Archived []entities.Student `json:"archived"`
}

type ArchiveStudentRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

type BackupRequest struct {
	Data json.RawMessage `json:"data"`
}

type BackupResponse struct {
	OK     bool   `json:"ok"`
	Backup string `json:"backup"`
}

type BackupListResponse struct {
	Backups []entities.BackupInfo `json:"backups"`
}

type ChatRequest struct {
	Message string              `json:"message" validate:"required"`
	History []entities.ChatTurn `json:"history"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
