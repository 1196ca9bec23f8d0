package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mikkihugo/agentrouter/agent/feedback"
	"github.com/mikkihugo/agentrouter/agent/federation"
	"github.com/mikkihugo/agentrouter/agent/learning"
	"github.com/mikkihugo/agentrouter/testutil/fixtures"
	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminMux(h *AdminHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/admin/feedback/tick", h.HandleFeedbackTick)
	mux.HandleFunc("POST /v1/admin/federation/sync", h.HandleFederationSync)
	return mux
}

func TestAdminHandler_FeedbackTick(t *testing.T) {
	dir := fixtures.NewDirectory(t)
	learner := learning.NewLearner(learning.DefaultConfig(), nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, learner.Record(context.Background(), types.ExecutionOutcome{
			AgentName: "A2",
			Domain:    types.DomainSecurity,
			Success:   true,
		}))
	}
	loop := feedback.NewLoop(feedback.DefaultConfig(), dir, learner, nil, nil)

	w := serve(newAdminMux(NewAdminHandler(loop, nil, nil)), http.MethodPost, "/v1/admin/feedback/tick", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data feedback.TickSummary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Data.Updated)

	a2, _ := dir.Get(context.Background(), "A2")
	assert.Equal(t, 1.0, a2.SuccessRate)
}

func TestAdminHandler_FederationSync(t *testing.T) {
	bus := federation.NewMemoryBus(100)
	dirA := fixtures.NewDirectory(t)
	dirB := fixtures.NewDirectory(t)

	syncA := federation.NewSynchronizer(federation.Config{InstanceID: "a"}, dirA, bus.Attach("a"), nil)
	syncB := federation.NewSynchronizer(federation.Config{InstanceID: "b"}, dirB, bus.Attach("b"), nil)

	mux := newAdminMux(NewAdminHandler(nil, syncA, nil))
	w := serve(mux, http.MethodPost, "/v1/admin/federation/sync", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"instance_id":"a"`)
	assert.Contains(t, w.Body.String(), `"pushed":true`)

	result := syncB.SyncOnce(context.Background())
	assert.Equal(t, 3, result.Merge.Merged)
}

func TestAdminHandler_Disabled(t *testing.T) {
	mux := newAdminMux(NewAdminHandler(nil, nil, nil))

	assert.Equal(t, http.StatusNotFound, serve(mux, http.MethodPost, "/v1/admin/feedback/tick", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(mux, http.MethodPost, "/v1/admin/federation/sync", "").Code)
}
