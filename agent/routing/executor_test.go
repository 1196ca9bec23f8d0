package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExecutor_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var task types.Task
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&task))
		assert.Equal(t, "t1", task.ID)

		_ = json.NewEncoder(w).Encode(ExecutionResult{Output: json.RawMessage(`{"ok":true}`), TokensUsed: 42})
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(func(agent string) (string, bool) {
		return srv.URL, agent == "remote"
	}, srv.Client())

	res, err := exec.Execute(context.Background(), "remote", &types.Task{ID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 42, res.TokensUsed)
	assert.JSONEq(t, `{"ok":true}`, string(res.Output))

	_, err = exec.Execute(context.Background(), "local-only", &types.Task{ID: "t1"})
	assert.Error(t, err)
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(func(string) (string, bool) { return srv.URL, true }, nil)
	_, err := exec.Execute(context.Background(), "remote", &types.Task{ID: "t1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}

func TestHTTPExecutor_PropagatesContextIDs(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_ = json.NewEncoder(w).Encode(ExecutionResult{Output: json.RawMessage(`"done"`)})
	}))
	defer srv.Close()

	ctx := types.WithTraceID(context.Background(), "req-1")
	ctx = types.WithRunID(ctx, "run-1")
	ctx = types.WithInstanceID(ctx, "node-a")
	ctx = types.WithCaller(ctx, "ci-bot")

	exec := NewHTTPExecutor(func(string) (string, bool) { return srv.URL, true }, srv.Client())
	_, err := exec.Execute(ctx, "remote", &types.Task{ID: "t1"})
	require.NoError(t, err)

	h := <-headers
	assert.Equal(t, "req-1", h.Get("X-Request-ID"))
	assert.Equal(t, "run-1", h.Get("X-Run-ID"))
	assert.Equal(t, "node-a", h.Get("X-Instance-ID"))
	assert.Equal(t, "ci-bot", h.Get("X-Caller"))
}
