package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doHealth(t *testing.T, s *Server) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.HandleHealth(rec, req)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandleHealth_NoProbesIsHealthy(t *testing.T) {
	s := newTestServer(t)

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp.Status)
}

func TestHandleHealth_AllProbesHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		NewProbe("database", func(context.Context) error { return nil }),
		NewProbe("redis", func(context.Context) error { return nil }),
	}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
}

func TestHandleHealth_FailingProbeReturns503(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		NewProbe("database", func(context.Context) error { return nil }),
		NewProbe("sqs", func(context.Context) error { return errors.New("queue unreachable") }),
	}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["sqs"].Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
}

func TestHandleHealth_PanickingProbeIsUnhealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		NewProbe("database", func(context.Context) error { panic("probe bug") }),
	}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, resp.Components["database"].Message, "panicked")
}
