package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mikkihugo/agentrouter/agent/autonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAutonomyMux(rules ...autonomy.Rule) *http.ServeMux {
	classifier := autonomy.NewClassifier(&autonomy.StaticSupplier{Rules: rules}, autonomy.DefaultConfig(), nil, nil)
	h := NewAutonomyHandler(classifier, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/autonomy/classify", h.HandleClassify)
	mux.HandleFunc("GET /v1/autonomy/categories", h.HandleListCategories)
	return mux
}

func TestAutonomyHandler_NoRulesEscalates(t *testing.T) {
	mux := newAutonomyMux()

	w := serve(mux, http.MethodPost, "/v1/autonomy/classify",
		`{"category":"cost_optimization","context":{"current_cost":120,"target":80}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data autonomy.Decision `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, autonomy.Escalated, resp.Data.Classification)
	assert.Equal(t, autonomy.NoRulesConfidence, resp.Data.Confidence)
	assert.Equal(t, autonomy.StatusNoRules, resp.Data.Status)
}

func TestAutonomyHandler_MatchedRule(t *testing.T) {
	mux := newAutonomyMux(autonomy.Rule{
		ID:          "r-1",
		Pattern:     map[string]any{"category": "security_fix"},
		Action:      "apply_patch",
		Confidence:  0.95,
		Frequency:   40,
		SuccessRate: 0.97,
	})

	w := serve(mux, http.MethodPost, "/v1/autonomy/classify",
		`{"category":"security_fix","context":{"vulnerability":"CVE-1","severity":"high"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data autonomy.Decision `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, autonomy.Autonomous, resp.Data.Classification)
	require.NotNil(t, resp.Data.Rule)
	assert.Equal(t, "r-1", resp.Data.Rule.ID)
}

func TestAutonomyHandler_MissingFields(t *testing.T) {
	mux := newAutonomyMux()

	w := serve(mux, http.MethodPost, "/v1/autonomy/classify", `{"category":"deployment","context":{"version":""}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, []string{"environment", "version"}, resp.Error.Fields)
}

func TestAutonomyHandler_CategoryRequired(t *testing.T) {
	w := serve(newAutonomyMux(), http.MethodPost, "/v1/autonomy/classify", `{"context":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutonomyHandler_ListCategories(t *testing.T) {
	w := serve(newAutonomyMux(), http.MethodGet, "/v1/autonomy/categories", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data map[string][]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 9)
	assert.Equal(t, []string{"package", "from_version", "to_version"}, resp.Data["dependency_upgrade"])
}
