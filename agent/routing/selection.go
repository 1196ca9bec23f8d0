package routing

import (
	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/types"
)

// Selection tiers, in the order they are consulted.
const (
	TierDomainAndComplexity = 1
	TierDomain              = 2
	TierAnyAvailable        = 3
)

// Selection is the outcome of one selection pass.
type Selection struct {
	Agent      *discovery.AgentCapability
	Tier       int
	Confidence float64
	Candidates int
}

// candidates returns the candidate set of the first tier that yields one.
// Unavailable agents never enter a candidate set.
func candidates(all []*discovery.AgentCapability, task *types.Task) ([]*discovery.AgentCapability, int) {
	available := make([]*discovery.AgentCapability, 0, len(all))
	for _, a := range all {
		if a.Available {
			available = append(available, a)
		}
	}
	if len(available) == 0 {
		return nil, 0
	}

	var byDomain, exact []*discovery.AgentCapability
	for _, a := range available {
		if !a.HandlesDomain(task.Domain) {
			continue
		}
		byDomain = append(byDomain, a)
		if task.Complexity != types.ComplexityUnknown && a.ComplexityLevel == task.Complexity {
			exact = append(exact, a)
		}
	}

	switch {
	case len(exact) > 0:
		return exact, TierDomainAndComplexity
	case len(byDomain) > 0:
		return byDomain, TierDomain
	default:
		return available, TierAnyAvailable
	}
}

// score is success_rate weighted by availability.
func score(a *discovery.AgentCapability) float64 {
	return a.SuccessRate * a.Availability()
}

// topScorers returns every candidate sharing the highest score.
func topScorers(cands []*discovery.AgentCapability) ([]*discovery.AgentCapability, float64) {
	best := -1.0
	var top []*discovery.AgentCapability
	for _, c := range cands {
		s := score(c)
		switch {
		case s > best:
			best = s
			top = append(top[:0], c)
		case s == best:
			top = append(top, c)
		}
	}
	return top, best
}
