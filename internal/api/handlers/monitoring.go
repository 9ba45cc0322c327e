package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dmcaguard/internal/core"
	"dmcaguard/internal/types"
)

// SessionRepo defines the data access contract for monitoring sessions.
// Mirrors the concrete db.MonitoringSessionRepository methods used here.
type SessionRepo interface {
	Create(ctx context.Context, s *types.MonitoringSession) error
	GetByID(ctx context.Context, id, userID string) (*types.MonitoringSession, error)
	ListByUser(ctx context.Context, userID string) ([]types.MonitoringSession, error)
	UpdateStatus(ctx context.Context, id, userID string, status types.SessionStatus) error
}

// SessionPlanRegistry is the plan lookup the handler needs for the scan
// frequency floor. Mirrors billing.PlanRegistry.
type SessionPlanRegistry interface {
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// CreateSessionRequest is the request body for POST /v1/monitoring-sessions.
type CreateSessionRequest struct {
	BrandProfileID    string `json:"brand_profile_id" validate:"required"`
	Name              string `json:"name" validate:"required,max=200"`
	ScanIntervalHours int    `json:"scan_interval_hours" validate:"required,min=1,max=720"`
}

// MonitoringSessionHandler manages monitoring session lifecycle:
// create, pause, resume, end.
type MonitoringSessionHandler struct {
	sessions  SessionRepo
	profiles  BrandProfileRepo
	plans     SessionPlanRegistry
	validator *core.Validator
	logger    *slog.Logger
}

// NewMonitoringSessionHandler creates a new MonitoringSessionHandler.
func NewMonitoringSessionHandler(
	sessions SessionRepo,
	profiles BrandProfileRepo,
	plans SessionPlanRegistry,
	v *core.Validator,
	l *slog.Logger,
) *MonitoringSessionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &MonitoringSessionHandler{
		sessions:  sessions,
		profiles:  profiles,
		plans:     plans,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts monitoring session routes on the provided chi.Router.
func (h *MonitoringSessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/monitoring-sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
			r.Post("/end", h.End)
		})
	})
}

// Create handles POST /v1/monitoring-sessions.
//
//  1. Validate the request body.
//  2. Verify the brand profile belongs to the caller.
//  3. Enforce the plan's scan frequency floor: lower tiers may not scan
//     more often than their ScanFrequencyHours.
//  4. Persist the session as active.
func (h *MonitoringSessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req CreateSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	// Ownership check; cross-tenant IDs surface as not found.
	if _, err := h.profiles.GetByID(r.Context(), req.BrandProfileID, actor.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	// Scan frequency floor. Super users skip it like every other plan gate.
	if !actor.IsSuperUser {
		minHours := h.plans.GetLimits(actor.Plan).ScanFrequencyHours
		if minHours > 0 && req.ScanIntervalHours < minHours {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationFailed,
				fmt.Sprintf("scan interval must be at least %d hours on the %s plan", minHours, actor.Plan),
				nil,
				map[string]any{"min_scan_interval_hours": minHours},
			))
			return
		}
	}

	session := &types.MonitoringSession{
		ID:             uuid.New().String(),
		UserID:         actor.ID,
		BrandProfileID: req.BrandProfileID,
		Name:           req.Name,
		ScanInterval:   time.Duration(req.ScanIntervalHours) * time.Hour,
		Status:         types.SessionActive,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.sessions.Create(r.Context(), session); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "monitoring session created",
		slog.String("user_id", actor.ID),
		slog.String("session_id", session.ID),
		slog.Duration("scan_interval", session.ScanInterval),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: session})
}

// List handles GET /v1/monitoring-sessions.
func (h *MonitoringSessionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	sessions, err := h.sessions.ListByUser(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sessions})
}

// Get handles GET /v1/monitoring-sessions/{id}.
func (h *MonitoringSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	session, err := h.sessions.GetByID(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: session})
}

// Pause handles POST /v1/monitoring-sessions/{id}/pause.
func (h *MonitoringSessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, types.SessionPaused)
}

// Resume handles POST /v1/monitoring-sessions/{id}/resume.
func (h *MonitoringSessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, types.SessionActive)
}

// End handles POST /v1/monitoring-sessions/{id}/end. Ended sessions are
// terminal; the repository rejects transitions out of ended.
func (h *MonitoringSessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, types.SessionEnded)
}

// transition applies a status change and returns the updated session.
func (h *MonitoringSessionHandler) transition(w http.ResponseWriter, r *http.Request, status types.SessionStatus) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.sessions.UpdateStatus(r.Context(), id, actor.ID, status); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.sessions.GetByID(r.Context(), id, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: session})
}
