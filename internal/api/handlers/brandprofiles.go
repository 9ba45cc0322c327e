// Package handlers contains the HTTP handler implementations for the DMCA
// Guard API. Each handler depends on narrow, locally defined interfaces so
// tests substitute fakes without touching the database packages.
//
// Plan limits and rate windows are NOT checked here: the guard middleware has
// already authorized the request by the time a handler runs. Handlers own
// input validation, ownership checks, and persistence.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dmcaguard/internal/core"
	"dmcaguard/internal/types"
)

// BrandProfileRepo defines the data access contract for brand profiles.
// Mirrors the concrete db.BrandProfileRepository methods used by this handler.
type BrandProfileRepo interface {
	Create(ctx context.Context, p *types.BrandProfile) error
	GetByID(ctx context.Context, id, userID string) (*types.BrandProfile, error)
	ListByUser(ctx context.Context, userID string) ([]types.BrandProfile, error)
	Deactivate(ctx context.Context, id, userID string) error
}

// CreateBrandProfileRequest is the request body for POST /v1/brand-profiles.
type CreateBrandProfileRequest struct {
	BrandName    string   `json:"brand_name" validate:"required,max=200"`
	OfficialURLs []string `json:"official_urls" validate:"required,min=1,max=20,dive,url"`
	Keywords     []string `json:"keywords,omitempty" validate:"max=50,dive,max=100"`
}

// BrandProfileHandler manages brand profile CRUD.
type BrandProfileHandler struct {
	repo      BrandProfileRepo
	validator *core.Validator
	logger    *slog.Logger
}

// NewBrandProfileHandler creates a new BrandProfileHandler.
func NewBrandProfileHandler(repo BrandProfileRepo, v *core.Validator, l *slog.Logger) *BrandProfileHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BrandProfileHandler{repo: repo, validator: v, logger: l}
}

// RegisterRoutes mounts brand profile routes on the provided chi.Router.
func (h *BrandProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/brand-profiles", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Deactivate)
		})
	})
}

// Create handles POST /v1/brand-profiles.
func (h *BrandProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	var req CreateBrandProfileRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	profile := &types.BrandProfile{
		ID:           uuid.New().String(),
		UserID:       actor.ID,
		BrandName:    req.BrandName,
		OfficialURLs: req.OfficialURLs,
		Keywords:     req.Keywords,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.repo.Create(r.Context(), profile); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "brand profile created",
		slog.String("user_id", actor.ID),
		slog.String("brand_profile_id", profile.ID),
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: profile})
}

// List handles GET /v1/brand-profiles.
func (h *BrandProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	profiles, err := h.repo.ListByUser(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profiles})
}

// Get handles GET /v1/brand-profiles/{id}. The repository scopes the lookup
// to the actor, so cross-tenant reads surface as not found.
func (h *BrandProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	profile, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profile})
}

// Deactivate handles DELETE /v1/brand-profiles/{id}. Profiles are soft
// deactivated, never deleted: takedown history references them.
func (h *BrandProfileHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.repo.Deactivate(r.Context(), id, actor.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "brand profile deactivated",
		slog.String("user_id", actor.ID),
		slog.String("brand_profile_id", id),
	)

	w.WriteHeader(http.StatusNoContent)
}
