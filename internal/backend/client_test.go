package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nordagri/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   string
}

func newTestBackend(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte(`{"message":"duplicate key"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestClient_Insert(t *testing.T) {
	srv, captured := newTestBackend(t, http.StatusCreated)

	c, err := NewClient(config.BackendConfig{BaseURL: srv.URL + "/", APIKey: "anon-key"}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.InsertTimeSession(ctx, json.RawMessage(`{"equipment_id":7,"duration_minutes":45}`)))
	require.NoError(t, c.InsertFuelLog(ctx, json.RawMessage(`{"equipment_id":7,"liters":30}`)))

	require.Len(t, *captured, 2)
	first := (*captured)[0]
	assert.Equal(t, http.MethodPost, first.method)
	assert.Equal(t, "/rest/v1/time_sessions", first.path)
	assert.Equal(t, "anon-key", first.header.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", first.header.Get("Authorization"))
	assert.Equal(t, "return=minimal", first.header.Get("Prefer"))
	assert.Equal(t, "application/json", first.header.Get("Content-Type"))
	assert.JSONEq(t, `{"equipment_id":7,"duration_minutes":45}`, first.body)

	assert.Equal(t, "/rest/v1/fuel_logs", (*captured)[1].path)
}

func TestClient_CustomTables(t *testing.T) {
	srv, captured := newTestBackend(t, http.StatusNoContent)

	c, err := NewClient(config.BackendConfig{
		BaseURL:           srv.URL,
		TimeSessionsTable: "equipment_sessions",
		FuelLogsTable:     "refuels",
	}, srv.Client())
	require.NoError(t, err)

	require.NoError(t, c.InsertTimeSession(context.Background(), json.RawMessage(`{}`)))
	require.NoError(t, c.InsertFuelLog(context.Background(), json.RawMessage(`{}`)))
	assert.Equal(t, "/rest/v1/equipment_sessions", (*captured)[0].path)
	assert.Equal(t, "/rest/v1/refuels", (*captured)[1].path)
	assert.Empty(t, (*captured)[0].header.Get("Authorization"))
}

func TestClient_ErrorStatus(t *testing.T) {
	srv, _ := newTestBackend(t, http.StatusConflict)

	c, err := NewClient(config.BackendConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	err = c.InsertFuelLog(context.Background(), json.RawMessage(`{"equipment_id":1}`))
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "duplicate key")
	assert.Contains(t, err.Error(), "409")
}

func TestClient_TransportError(t *testing.T) {
	srv, _ := newTestBackend(t, http.StatusCreated)
	url := srv.URL
	srv.Close()

	c, err := NewClient(config.BackendConfig{BaseURL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)

	err = c.InsertTimeSession(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.ErrorContains(t, err, "/rest/v1/time_sessions")
}

func TestClient_Ping(t *testing.T) {
	t.Run("Reachable", func(t *testing.T) {
		srv, captured := newTestBackend(t, http.StatusUnauthorized)
		c, err := NewClient(config.BackendConfig{BaseURL: srv.URL, HealthPath: "/health"}, nil)
		require.NoError(t, err)

		assert.NoError(t, c.Ping(context.Background()))
		assert.Equal(t, "/health", (*captured)[0].path)
		assert.Equal(t, http.MethodGet, (*captured)[0].method)
	})

	t.Run("ServerError", func(t *testing.T) {
		srv, _ := newTestBackend(t, http.StatusBadGateway)
		c, err := NewClient(config.BackendConfig{BaseURL: srv.URL}, nil)
		require.NoError(t, err)

		var apiErr *APIError
		require.ErrorAs(t, c.Ping(context.Background()), &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	})
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	srv, captured := newTestBackend(t, http.StatusCreated)
	c, err := NewClient(config.BackendConfig{
		BaseURL:   srv.URL,
		RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 1},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, c.InsertFuelLog(context.Background(), json.RawMessage(`{}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, c.InsertFuelLog(ctx, json.RawMessage(`{}`)))
	assert.Len(t, *captured, 1)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.BackendConfig{}, nil)
	assert.Error(t, err)
}
