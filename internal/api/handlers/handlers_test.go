package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"dmcaguard/internal/core"
	"dmcaguard/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

func testActor() *types.Actor {
	a := testActorValue()
	return &a
}

func testActorValue() types.Actor {
	return types.Actor{
		ID:     "usr_1",
		Email:  "owner@brand.test",
		Type:   types.ActorTypeUser,
		Plan:   types.PlanBasic,
		Status: types.AccountActive,
	}
}

// routable is what every handler in this package exposes for mounting.
type routable interface {
	RegisterRoutes(r chi.Router)
}

// serve mounts the handler on a fresh router, injects the actor (when not
// nil), and performs the request.
func serve(t *testing.T, h routable, actor *types.Actor, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	if actor != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(types.WithActor(req.Context(), *actor)))
			})
		})
	}
	h.RegisterRoutes(r)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
