package handlers

import (
	"context"
	"net/http"

	"github.com/mikkihugo/agentrouter/agent/feedback"
	"github.com/mikkihugo/agentrouter/agent/federation"
	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// FeedbackTicker runs one feedback pass. *feedback.Loop satisfies it.
type FeedbackTicker interface {
	Tick(ctx context.Context) feedback.TickSummary
}

// Syncer runs one federation round. *federation.Synchronizer satisfies it.
type Syncer interface {
	InstanceID() string
	SyncOnce(ctx context.Context) federation.SyncResult
}

// AdminHandler triggers the background loops on demand.
type AdminHandler struct {
	feedback FeedbackTicker
	sync     Syncer
	logger   *zap.Logger
}

// NewAdminHandler creates an admin handler. Either dependency may be nil
// when the corresponding loop is disabled.
func NewAdminHandler(feedback FeedbackTicker, sync Syncer, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		feedback: feedback,
		sync:     sync,
		logger:   logger.With(zap.String("handler", "admin")),
	}
}

// HandleFeedbackTick runs one feedback pass immediately.
// @Router /v1/admin/feedback/tick [post]
func (h *AdminHandler) HandleFeedbackTick(w http.ResponseWriter, r *http.Request) {
	if h.feedback == nil {
		WriteErrorMessage(w, types.ErrNotFound, "feedback loop is disabled", h.logger)
		return
	}
	summary := h.feedback.Tick(r.Context())
	h.logger.Info("manual feedback tick",
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
	)
	WriteSuccess(w, summary)
}

// HandleFederationSync pushes local rates and merges pending peer samples.
// @Router /v1/admin/federation/sync [post]
func (h *AdminHandler) HandleFederationSync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		WriteErrorMessage(w, types.ErrNotFound, "federation is disabled", h.logger)
		return
	}
	result := h.sync.SyncOnce(r.Context())
	WriteSuccess(w, map[string]any{
		"instance_id": h.sync.InstanceID(),
		"result":      result,
	})
}
