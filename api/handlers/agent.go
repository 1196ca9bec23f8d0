package handlers

import (
	"net/http"
	"strings"

	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/agent/learning"
	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// =============================================================================
// Capability Directory Handler
// =============================================================================

// StatsReader exposes learned statistics. *learning.Learner satisfies it.
type StatsReader interface {
	GetStats(agent string) (*learning.AgentStats, bool)
	BlendedRate(agent string) (float64, bool)
	DomainRate(agent string, domain types.Domain) (float64, bool)
}

// AgentHandler serves the capability directory.
type AgentHandler struct {
	directory discovery.Store
	stats     StatsReader
	logger    *zap.Logger
}

// AgentRegisterRequest registers an agent profile.
type AgentRegisterRequest struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Domains         []string `json:"domains"`
	ComplexityLevel string   `json:"complexity_level"`
	SuccessRate     *float64 `json:"success_rate,omitempty"`
	Available       *bool    `json:"available,omitempty"`
	Endpoint        string   `json:"endpoint,omitempty"`
}

// AvailabilityRequest updates an agent's availability.
type AvailabilityRequest struct {
	Available bool    `json:"available"`
	Load      float64 `json:"load"`
}

// AgentStatsResponse is the learned view of one agent.
type AgentStatsResponse struct {
	Agent       string               `json:"agent"`
	Stats       *learning.AgentStats `json:"stats,omitempty"`
	BlendedRate *float64             `json:"blended_rate,omitempty"`
	Domain      types.Domain         `json:"domain,omitempty"`
	DomainRate  *float64             `json:"domain_rate,omitempty"`
	Directory   float64              `json:"directory_success_rate"`
}

// NewAgentHandler creates a directory handler. stats may be nil.
func NewAgentHandler(directory discovery.Store, stats StatsReader, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		directory: directory,
		stats:     stats,
		logger:    logger.With(zap.String("handler", "agents")),
	}
}

// HandleListAgents lists every registered agent, sorted by name.
// @Router /v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.directory.ListAll(r.Context()))
}

// HandleGetAgent returns one agent profile.
// @Router /v1/agents/{name} [get]
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	name := extractAgentName(r)
	if name == "" {
		WriteErrorMessage(w, types.ErrInvalidRequest, "agent name is required", h.logger)
		return
	}

	agent, ok := h.directory.Get(r.Context(), name)
	if !ok {
		WriteError(w, types.NewNotFoundError(name), h.logger)
		return
	}
	WriteSuccess(w, agent)
}

// HandleRegisterAgent adds an agent to the directory.
// @Router /v1/agents [post]
func (h *AgentHandler) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRegisterRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	capability := &discovery.AgentCapability{
		Name:            strings.TrimSpace(req.Name),
		Role:            req.Role,
		ComplexityLevel: types.ParseComplexity(req.ComplexityLevel),
		Available:       true,
		Endpoint:        req.Endpoint,
	}
	for _, d := range req.Domains {
		capability.Domains = append(capability.Domains, types.ParseDomain(d))
	}
	if req.SuccessRate != nil {
		capability.SuccessRate = *req.SuccessRate
	}
	if req.Available != nil {
		capability.Available = *req.Available
	}

	if err := h.directory.Register(r.Context(), capability); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("agent registered via API",
		zap.String("agent", capability.Name),
		zap.Int("domains", len(capability.Domains)),
	)

	stored, _ := h.directory.Get(r.Context(), capability.Name)
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: stored})
}

// HandleUnregisterAgent removes an agent.
// @Router /v1/agents/{name} [delete]
func (h *AgentHandler) HandleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	name := extractAgentName(r)
	if err := h.directory.Unregister(r.Context(), name); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetAvailability marks an agent available or unavailable.
// @Router /v1/agents/{name}/availability [put]
func (h *AgentHandler) HandleSetAvailability(w http.ResponseWriter, r *http.Request) {
	name := extractAgentName(r)
	var req AvailabilityRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := h.directory.UpdateAvailability(r.Context(), name, req.Available, req.Load); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	agent, _ := h.directory.Get(r.Context(), name)
	WriteSuccess(w, agent)
}

// HandleAgentStats returns the learner's view of an agent next to the
// directory's current success rate. ?domain= adds that domain's ratio.
// @Router /v1/agents/{name}/stats [get]
func (h *AgentHandler) HandleAgentStats(w http.ResponseWriter, r *http.Request) {
	name := extractAgentName(r)
	agent, ok := h.directory.Get(r.Context(), name)
	if !ok {
		WriteError(w, types.NewNotFoundError(name), h.logger)
		return
	}

	resp := AgentStatsResponse{Agent: name, Directory: agent.SuccessRate}
	if h.stats != nil {
		if s, ok := h.stats.GetStats(name); ok {
			resp.Stats = s
		}
		if rate, ok := h.stats.BlendedRate(name); ok {
			resp.BlendedRate = &rate
		}
		if raw := r.URL.Query().Get("domain"); raw != "" {
			resp.Domain = types.ParseDomain(raw)
			if rate, ok := h.stats.DomainRate(name, resp.Domain); ok {
				resp.DomainRate = &rate
			}
		}
	}
	WriteSuccess(w, resp)
}

// extractAgentName reads {name} from the route pattern, falling back to the
// path segment after /v1/agents/.
func extractAgentName(r *http.Request) string {
	if name := r.PathValue("name"); name != "" {
		return name
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
	if path == r.URL.Path {
		return ""
	}
	name, _, _ := strings.Cut(path, "/")
	return name
}
