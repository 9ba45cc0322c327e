package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmcaguard/internal/types"
)

// fakeAuthenticator resolves a fixed key set.
type fakeAuthenticator struct {
	actors map[string]*types.Actor
	err    error
}

func (f *fakeAuthenticator) ResolveAPIKey(_ context.Context, rawKey string) (*types.Actor, error) {
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.actors[rawKey]; ok {
		return a, nil
	}
	return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "key not found", nil)
}

// echoActor writes the resolved actor ID (or "anonymous") for assertions.
func echoActor(w http.ResponseWriter, r *http.Request) {
	if actor, ok := types.GetActor(r.Context()); ok {
		_, _ = w.Write([]byte(actor.ID))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
}

func TestAuthMiddleware_ResolvesBearerKeyToActor(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &fakeAuthenticator{actors: map[string]*types.Actor{
		"key_abc": {ID: "usr_1", Type: types.ActorTypeUser, Plan: types.PlanBasic, Status: types.AccountActive},
	}}

	handler := s.AuthMiddleware(http.HandlerFunc(echoActor))

	req := httptest.NewRequest(http.MethodGet, "/v1/takedowns", nil)
	req.Header.Set("Authorization", "Bearer key_abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usr_1", rec.Body.String())
}

func TestAuthMiddleware_NoHeaderProceedsAnonymously(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &fakeAuthenticator{}

	handler := s.AuthMiddleware(http.HandlerFunc(echoActor))

	req := httptest.NewRequest(http.MethodGet, "/v1/takedowns", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestAuthMiddleware_UnknownKeyReturns401(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &fakeAuthenticator{actors: map[string]*types.Actor{}}

	handler := s.AuthMiddleware(http.HandlerFunc(echoActor))

	req := httptest.NewRequest(http.MethodGet, "/v1/takedowns", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeAuthTokenInvalid), resp.Error.Code)
}

func TestAuthMiddleware_MalformedSchemeReturns401(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &fakeAuthenticator{}

	handler := s.AuthMiddleware(http.HandlerFunc(echoActor))

	req := httptest.NewRequest(http.MethodGet, "/v1/takedowns", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeAuthTokenMissing), resp.Error.Code)
}

func TestAuthMiddleware_PublicPathSkipsResolution(t *testing.T) {
	s := newTestServer(t)
	s.Authenticator = &fakeAuthenticator{err: types.NewAppError(types.ErrCodeInternalDB, "db down", nil)}

	handler := s.AuthMiddleware(http.HandlerFunc(echoActor))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "tok", extractBearerToken("Bearer tok"))
	assert.Equal(t, "tok", extractBearerToken("bearer tok"))
	assert.Equal(t, "tok", extractBearerToken("Bearer   tok  "))
	assert.Equal(t, "", extractBearerToken("Bearer"))
	assert.Equal(t, "", extractBearerToken("Token tok"))
	assert.Equal(t, "", extractBearerToken(""))
}

func TestRequireAuth_RejectsAnonymous(t *testing.T) {
	s := newTestServer(t)

	handler := s.RequireAuth(http.HandlerFunc(echoActor))

	req := httptest.NewRequest(http.MethodGet, "/v1/brand-profiles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/brand-profiles", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "usr_1"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
