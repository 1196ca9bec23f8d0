package discovery

import (
	"slices"
	"time"

	"github.com/mikkihugo/agentrouter/types"
)

// AgentCapability is the profile of one registered agent.
type AgentCapability struct {
	// Name uniquely identifies the agent.
	Name string `json:"name" yaml:"name"`

	// Role is a free-form tag such as "refactorer".
	Role string `json:"role" yaml:"role"`

	// Domains lists the domains the agent can handle.
	Domains []types.Domain `json:"domains" yaml:"domains"`

	// SuccessRate is the learned success rate, always within [0, 1].
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`

	// ComplexityLevel is the complexity the agent is tuned for.
	ComplexityLevel types.Complexity `json:"complexity_level" yaml:"complexity_level"`

	// Available reports whether the agent currently accepts work.
	Available bool `json:"available" yaml:"available"`

	// Load is the current load factor (0.0-1.0). Informational only.
	Load float64 `json:"load" yaml:"load"`

	// Endpoint is the execution endpoint for remote agents, if any.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint"`

	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HandlesDomain reports whether the agent lists d among its domains.
func (c *AgentCapability) HandlesDomain(d types.Domain) bool {
	return slices.Contains(c.Domains, d)
}

// Availability returns the availability factor used in routing scores.
func (c *AgentCapability) Availability() float64 {
	if c.Available {
		return 1.0
	}
	return 0.0
}

// Clone returns a deep copy of the capability.
func (c *AgentCapability) Clone() *AgentCapability {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Domains = slices.Clone(c.Domains)
	return &cp
}

// EventType defines the type of directory event.
type EventType string

const (
	// EventAgentRegistered indicates an agent was registered.
	EventAgentRegistered EventType = "agent_registered"
	// EventAgentUnregistered indicates an agent was unregistered.
	EventAgentUnregistered EventType = "agent_unregistered"
	// EventSuccessRateUpdated indicates an agent's success rate changed.
	EventSuccessRateUpdated EventType = "success_rate_updated"
	// EventAvailabilityUpdated indicates an agent's availability changed.
	EventAvailabilityUpdated EventType = "availability_updated"
)

// Event describes a change in the directory.
type Event struct {
	Type      EventType `json:"type"`
	Agent     string    `json:"agent"`
	OldRate   float64   `json:"old_rate,omitempty"`
	NewRate   float64   `json:"new_rate,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler receives directory events. Handlers run in their own goroutine.
type EventHandler func(event *Event)
