package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"nordagri/internal/app"
	"nordagri/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOpener returns an Opener backed by one sqlite file, so state
// persists between command invocations like it does for the real binary.
func newTestOpener(t *testing.T, status int) (Opener, string) {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(backend.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: config.StorageSQLite, Path: filepath.Join(dir, "queue.db"), QueueKey: "cli:queue"},
		Backend: config.BackendConfig{BaseURL: backend.URL},
		Sync:    config.SyncConfig{MaxRetries: 1},
		Exports: config.ExportConfig{Path: filepath.Join(dir, "exports")},
	}
	return func(ctx context.Context, _ string) (*app.App, error) {
		return app.New(ctx, cfg, nil)
	}, dir
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	for _, path := range [][]string{
		{"queue", "peek"}, {"queue", "enqueue"}, {"queue", "flush"},
		{"deadletters", "list"}, {"deadletters", "requeue"}, {"deadletters", "purge"}, {"deadletters", "export"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	open, _ := newTestOpener(t, http.StatusCreated)
	_, err := run(t, open, "queue", "peek", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestQueueCommands(t *testing.T) {
	open, _ := newTestOpener(t, http.StatusCreated)

	out, err := run(t, open, "queue", "peek")
	require.NoError(t, err)
	assert.Contains(t, out, "queue is empty")

	out, err = run(t, open, "queue", "enqueue", "time_session", `{"equipment_id":7,"duration_minutes":45}`)
	require.NoError(t, err)
	assert.Contains(t, out, "queued time_session")

	out, err = run(t, open, "queue", "peek", "--format", "json")
	require.NoError(t, err)
	var ops []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "time_session", ops[0]["type"])

	out, err = run(t, open, "queue", "flush", "--format", "json")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.EqualValues(t, 1, result["synced"])
	assert.EqualValues(t, 0, result["remaining"])
}

func TestQueueEnqueueRejectsBadInput(t *testing.T) {
	open, _ := newTestOpener(t, http.StatusCreated)

	_, err := run(t, open, "queue", "enqueue", "harvest", `{}`)
	assert.ErrorContains(t, err, "unknown operation kind")

	_, err = run(t, open, "queue", "enqueue", "fuel_log", `not json`)
	assert.ErrorContains(t, err, "invalid operation payload")

	_, err = run(t, open, "queue", "enqueue", "fuel_log")
	assert.Error(t, err)
}

func TestDeadLetterCommands(t *testing.T) {
	open, dir := newTestOpener(t, http.StatusInternalServerError)

	_, err := run(t, open, "queue", "enqueue", "fuel_log", `{"equipment_id":1,"liters":10}`)
	require.NoError(t, err)
	_, err = run(t, open, "queue", "enqueue", "fuel_log", `{"equipment_id":2,"liters":10}`)
	require.NoError(t, err)

	out, err := run(t, open, "queue", "flush")
	require.NoError(t, err)
	assert.Contains(t, out, "dead-lettered 2")

	out, err = run(t, open, "deadletters", "list", "--format", "json")
	require.NoError(t, err)
	var letters []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &letters))
	require.Len(t, letters, 2)
	firstID := letters[0]["id"].(string)

	out, err = run(t, open, "deadletters", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 dead letter(s)")
	matches, err := filepath.Glob(filepath.Join(dir, "exports", "deadletters_*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = run(t, open, "deadletters", "requeue")
	assert.ErrorIs(t, err, errNoSelection)

	out, err = run(t, open, "deadletters", "requeue", firstID)
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 1")

	out, err = run(t, open, "deadletters", "purge", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "purged 1")

	out, err = run(t, open, "deadletters", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no dead letters")

	out, err = run(t, open, "queue", "peek")
	require.NoError(t, err)
	assert.Contains(t, out, "fuel_log")
}
