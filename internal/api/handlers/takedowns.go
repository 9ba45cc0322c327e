package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dmcaguard/internal/core"
	"dmcaguard/internal/types"
)

const (
	defaultTakedownListLimit = 50
	maxTakedownListLimit     = 200
)

// TakedownRepo defines the data access contract for takedown requests.
type TakedownRepo interface {
	Create(ctx context.Context, t *types.TakedownRequest) error
	GetByID(ctx context.Context, id, userID string) (*types.TakedownRequest, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]types.TakedownRequest, error)
	MarkSent(ctx context.Context, id string) error
}

// CreateTakedownRequest is the request body for POST /v1/takedowns.
type CreateTakedownRequest struct {
	BrandProfileID string `json:"brand_profile_id" validate:"required"`
	InfringingURL  string `json:"infringing_url" validate:"required,url"`
	RecipientEmail string `json:"recipient_email" validate:"required,email"`
}

// TakedownHandler manages DMCA takedown requests.
type TakedownHandler struct {
	takedowns TakedownRepo
	profiles  BrandProfileRepo
	validator *core.Validator
	logger    *slog.Logger
}

// NewTakedownHandler creates a new TakedownHandler.
func NewTakedownHandler(takedowns TakedownRepo, profiles BrandProfileRepo, v *core.Validator, l *slog.Logger) *TakedownHandler {
	if l == nil {
		l = slog.Default()
	}
	return &TakedownHandler{takedowns: takedowns, profiles: profiles, validator: v, logger: l}
}

// RegisterRoutes mounts takedown routes on the provided chi.Router.
func (h *TakedownHandler) RegisterRoutes(r chi.Router) {
	r.Route("/takedowns", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/send", h.Send)
		})
	})
}

// Create handles POST /v1/takedowns. The notice is created in pending state;
// sending is a separate, explicit step.
func (h *TakedownHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req CreateTakedownRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile, err := h.profiles.GetByID(r.Context(), req.BrandProfileID, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// Filing a notice against the brand's own site is always a mistake.
	if hostMatchesOfficial(req.InfringingURL, profile.OfficialURLs) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationFailed,
			"infringing URL matches one of the brand's official URLs",
			nil,
		))
		return
	}

	takedown := &types.TakedownRequest{
		ID:             uuid.New().String(),
		UserID:         actor.ID,
		BrandProfileID: profile.ID,
		InfringingURL:  req.InfringingURL,
		RecipientEmail: req.RecipientEmail,
		Status:         types.TakedownPending,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.takedowns.Create(r.Context(), takedown); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "takedown request created",
		slog.String("user_id", actor.ID),
		slog.String("takedown_id", takedown.ID),
		slog.String("brand_profile_id", profile.ID),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: takedown})
}

// List handles GET /v1/takedowns. Accepts ?limit, capped at 200.
func (h *TakedownHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	limit := defaultTakedownListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "limit must be a positive integer", err))
			return
		}
		if n > maxTakedownListLimit {
			n = maxTakedownListLimit
		}
		limit = n
	}

	takedowns, err := h.takedowns.ListByUser(r.Context(), actor.ID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: takedowns})
}

// Get handles GET /v1/takedowns/{id}.
func (h *TakedownHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	takedown, err := h.takedowns.GetByID(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: takedown})
}

// Send handles POST /v1/takedowns/{id}/send. Only pending notices can be
// sent; re-sending an already sent notice is a conflict.
func (h *TakedownHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	takedown, err := h.takedowns.GetByID(r.Context(), id, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if takedown.Status != types.TakedownPending {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictDuplicate,
			"takedown has already been sent",
			nil,
		))
		return
	}

	if err := h.takedowns.MarkSent(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	takedown, err = h.takedowns.GetByID(r.Context(), id, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "takedown sent",
		slog.String("user_id", actor.ID),
		slog.String("takedown_id", id),
		slog.String("recipient", takedown.RecipientEmail),
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: takedown})
}

// hostMatchesOfficial reports whether the candidate URL's host matches the
// host of any official URL. Comparison is case-insensitive on the host only;
// paths are ignored so sub-pages of the brand site are also rejected.
func hostMatchesOfficial(candidate string, official []string) bool {
	cu, err := url.Parse(candidate)
	if err != nil || cu.Hostname() == "" {
		return false
	}
	ch := strings.ToLower(cu.Hostname())
	for _, o := range official {
		ou, err := url.Parse(o)
		if err != nil {
			continue
		}
		if strings.ToLower(ou.Hostname()) == ch {
			return true
		}
	}
	return false
}
