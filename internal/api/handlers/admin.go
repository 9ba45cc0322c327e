package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dmcaguard/internal/core"
	"dmcaguard/internal/types"
)

const (
	defaultScoreListLimit = 50
	maxScoreListLimit     = 200
)

// AbuseAdmin covers the manual interventions operators perform on abuse
// state. Implemented by abuse.Service.
type AbuseAdmin interface {
	ForceBlock(ctx context.Context, userID, reason string) error
	Unblock(ctx context.Context, userID string) error
}

// AbuseInspector covers read-only access to abuse records. Implemented by
// db.AbuseRepository.
type AbuseInspector interface {
	Get(ctx context.Context, userID string) (*types.AbuseScore, error)
	ListScores(ctx context.Context, afterUserID string, limit int) ([]types.AbuseScore, error)
	ListViolations(ctx context.Context, userID string, limit int) ([]types.Violation, error)
}

// BlockUserRequest is the request body for POST /v1/admin/abuse/{userID}/block.
type BlockUserRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdminHandler exposes operator endpoints for inspecting and overriding
// abuse state. All routes sit behind the admin middleware supplied at
// construction.
type AdminHandler struct {
	admin     AbuseAdmin
	inspector AbuseInspector
	adminOnly func(http.Handler) http.Handler
	validator *core.Validator
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. adminOnly is the middleware
// that gates every route registered here.
func NewAdminHandler(
	admin AbuseAdmin,
	inspector AbuseInspector,
	adminOnly func(http.Handler) http.Handler,
	v *core.Validator,
	l *slog.Logger,
) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AdminHandler{
		admin:     admin,
		inspector: inspector,
		adminOnly: adminOnly,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts admin routes on the provided chi.Router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.adminOnly)

		r.Route("/abuse", func(r chi.Router) {
			r.Get("/scores", h.ListScores)

			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", h.GetScore)
				r.Get("/violations", h.ListViolations)
				r.Post("/block", h.Block)
				r.Post("/unblock", h.Unblock)
			})
		})
	})
}

// ListScores handles GET /v1/admin/abuse/scores. Keyset pagination via
// ?after=<userID>&limit=<n>.
func (h *AdminHandler) ListScores(w http.ResponseWriter, r *http.Request) {
	limit := defaultScoreListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "limit must be a positive integer", err))
			return
		}
		if n > maxScoreListLimit {
			n = maxScoreListLimit
		}
		limit = n
	}

	scores, err := h.inspector.ListScores(r.Context(), r.URL.Query().Get("after"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: scores})
}

// GetScore handles GET /v1/admin/abuse/{userID}. Users with no violations
// have no record; that is a 404, not an empty score.
func (h *AdminHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	score, err := h.inspector.Get(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if score == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundAbuseScore, "no abuse record for user", nil))
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: score})
}

// ListViolations handles GET /v1/admin/abuse/{userID}/violations.
func (h *AdminHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	violations, err := h.inspector.ListViolations(r.Context(), chi.URLParam(r, "userID"), maxScoreListLimit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: violations})
}

// Block handles POST /v1/admin/abuse/{userID}/block. Forces the user into
// the blocked state and suspends the account, regardless of score.
func (h *AdminHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req BlockUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.admin.ForceBlock(r.Context(), userID, req.Reason); err != nil {
		core.Error(w, r, err)
		return
	}

	actor, _ := types.GetActor(r.Context())
	h.logger.WarnContext(r.Context(), "user force blocked",
		slog.String("user_id", userID),
		slog.String("blocked_by", actor.ID),
		slog.String("reason", req.Reason),
	)

	w.WriteHeader(http.StatusNoContent)
}

// Unblock handles POST /v1/admin/abuse/{userID}/unblock. Resets the score
// to clean and reinstates the account.
func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.admin.Unblock(r.Context(), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), "user unblocked",
		slog.String("user_id", userID),
		slog.String("unblocked_by", actor.ID),
	)

	w.WriteHeader(http.StatusNoContent)
}
