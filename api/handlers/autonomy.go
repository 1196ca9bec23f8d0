package handlers

import (
	"context"
	"net/http"

	"github.com/mikkihugo/agentrouter/agent/autonomy"
	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// DecisionClassifier classifies decisions. *autonomy.Classifier satisfies it.
type DecisionClassifier interface {
	Classify(ctx context.Context, category autonomy.Category, input map[string]any) (autonomy.Classification, *autonomy.Decision)
}

// AutonomyHandler serves decision classification.
type AutonomyHandler struct {
	classifier DecisionClassifier
	logger     *zap.Logger
}

// ClassifyRequest asks how autonomously a decision may be made.
type ClassifyRequest struct {
	Category string         `json:"category"`
	Context  map[string]any `json:"context"`
}

// NewAutonomyHandler creates an autonomy handler.
func NewAutonomyHandler(classifier DecisionClassifier, logger *zap.Logger) *AutonomyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutonomyHandler{
		classifier: classifier,
		logger:     logger.With(zap.String("handler", "autonomy")),
	}
}

// HandleClassify validates the decision context against its category's
// required fields, then classifies it. Missing fields yield 422 with the
// field list; every other outcome, escalation included, is a 200.
// @Router /v1/autonomy/classify [post]
func (h *AutonomyHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Category == "" {
		WriteErrorMessage(w, types.ErrInvalidRequest, "category is required", h.logger)
		return
	}

	category := autonomy.ParseCategory(req.Category)
	if err := autonomy.ValidateContext(category, req.Context); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	_, decision := h.classifier.Classify(r.Context(), category, req.Context)
	WriteSuccess(w, decision)
}

// HandleListCategories lists known categories and their required fields.
// @Router /v1/autonomy/categories [get]
func (h *AutonomyHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	out := make(map[autonomy.Category][]string)
	for _, c := range autonomy.Categories() {
		out[c] = c.RequiredFields()
	}
	WriteSuccess(w, out)
}
