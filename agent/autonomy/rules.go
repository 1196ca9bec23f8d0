package autonomy

import (
	"context"
	"time"

	"github.com/mikkihugo/agentrouter/types"
)

// Rule is a learned decision rule proposed by the rule supplier.
type Rule struct {
	ID          string         `json:"id,omitempty"`
	Pattern     map[string]any `json:"pattern"`
	Action      string         `json:"action"`
	Confidence  float64        `json:"confidence"`
	Frequency   int            `json:"frequency"`
	SuccessRate float64        `json:"success_rate"`
	Status      string         `json:"status,omitempty"`
}

// Criteria describes what the classifier is looking for.
type Criteria struct {
	Category   Category          `json:"category"`
	Domain     types.Domain      `json:"domain"`
	TaskType   string            `json:"task_type,omitempty"`
	Complexity types.Complexity  `json:"complexity,omitempty"`
	Since      time.Time         `json:"since"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ProposeOptions bounds the supplier's answer.
type ProposeOptions struct {
	Limit         int     `json:"limit"`
	MinConfidence float64 `json:"min_confidence"`
}

// RuleSupplier returns ranked rule candidates for a set of criteria.
type RuleSupplier interface {
	ProposeRules(ctx context.Context, criteria Criteria, opts ProposeOptions) ([]Rule, error)
}

// SupplierFunc adapts a function to RuleSupplier.
type SupplierFunc func(ctx context.Context, criteria Criteria, opts ProposeOptions) ([]Rule, error)

// ProposeRules calls f.
func (f SupplierFunc) ProposeRules(ctx context.Context, criteria Criteria, opts ProposeOptions) ([]Rule, error) {
	return f(ctx, criteria, opts)
}

// StaticSupplier serves a fixed rule set filtered by category and confidence.
// Rules whose pattern has no "category" key match every category.
type StaticSupplier struct {
	Rules []Rule
}

// ProposeRules returns matching rules in declaration order, capped at opts.Limit.
func (s *StaticSupplier) ProposeRules(ctx context.Context, criteria Criteria, opts ProposeOptions) ([]Rule, error) {
	var out []Rule
	for _, r := range s.Rules {
		if c, ok := r.Pattern["category"]; ok && ParseCategory(stringify(c)) != criteria.Category {
			continue
		}
		if r.Confidence < opts.MinConfidence {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
