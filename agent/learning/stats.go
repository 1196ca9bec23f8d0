package learning

import (
	"time"

	"github.com/mikkihugo/agentrouter/types"
)

// DomainStats is the per-domain slice of an agent's record.
type DomainStats struct {
	Executions  int     `json:"executions"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// AgentStats is the aggregate derived from an agent's execution outcomes.
type AgentStats struct {
	AgentName         string                       `json:"agent_name"`
	TotalExecutions   int                          `json:"total_executions"`
	Successes         int                          `json:"successes"`
	SuccessRate       float64                      `json:"success_rate"`
	DomainPerformance map[types.Domain]DomainStats `json:"domain_performance"`
	TotalTokens       int64                        `json:"total_tokens"`
	AvgDuration       time.Duration                `json:"avg_duration"`
	LastUpdated       time.Time                    `json:"last_updated"`
}

func newAgentStats(name string) *AgentStats {
	return &AgentStats{
		AgentName:         name,
		DomainPerformance: make(map[types.Domain]DomainStats),
	}
}

// apply folds one outcome into the aggregate.
func (s *AgentStats) apply(o types.ExecutionOutcome) {
	s.TotalExecutions++
	if o.Success {
		s.Successes++
	}
	s.SuccessRate = float64(s.Successes) / float64(s.TotalExecutions)

	domain := o.Domain
	if domain == "" {
		domain = types.DomainOther
	}
	ds := s.DomainPerformance[domain]
	ds.Executions++
	if o.Success {
		ds.Successes++
	}
	ds.SuccessRate = float64(ds.Successes) / float64(ds.Executions)
	s.DomainPerformance[domain] = ds

	s.TotalTokens += int64(o.TokensUsed)
	// running mean
	s.AvgDuration += (o.Duration - s.AvgDuration) / time.Duration(s.TotalExecutions)

	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if ts.After(s.LastUpdated) {
		s.LastUpdated = ts
	}
}

func (s *AgentStats) clone() *AgentStats {
	cp := *s
	cp.DomainPerformance = make(map[types.Domain]DomainStats, len(s.DomainPerformance))
	for k, v := range s.DomainPerformance {
		cp.DomainPerformance[k] = v
	}
	return &cp
}
