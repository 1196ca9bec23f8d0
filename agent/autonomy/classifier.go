package autonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mikkihugo/agentrouter/agent/routing"
	"github.com/mikkihugo/agentrouter/internal/metrics"
	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// Classification is the level of automation a decision is cleared for.
type Classification string

const (
	Autonomous    Classification = "autonomous"
	Collaborative Classification = "collaborative"
	Escalated     Classification = "escalated"
)

// Status records how a decision was reached.
type Status string

const (
	StatusMatched       Status = "matched"
	StatusLowConfidence Status = "low_confidence"
	StatusNoRules       Status = "no_rules"
	StatusSupplierError Status = "supplier_error"
)

// Thresholds are fixed. Changing them changes behavior.
const (
	AutonomousThreshold    = 0.9
	CollaborativeThreshold = 0.7
	NoRulesConfidence      = 0.3
)

// Decision is the classifier's output.
type Decision struct {
	Category          Category       `json:"category"`
	Classification    Classification `json:"classification"`
	Confidence        float64        `json:"confidence"`
	Status            Status         `json:"status"`
	Reasoning         string         `json:"reasoning"`
	RecommendedChecks []string       `json:"recommended_checks,omitempty"`
	Rule              *Rule          `json:"rule,omitempty"`
	Criteria          Criteria       `json:"criteria"`
	Candidates        int            `json:"candidates"`
	DecidedAt         time.Time      `json:"decided_at"`
}

// Config configures the classifier.
type Config struct {
	// RuleLimit caps how many candidates the supplier returns.
	RuleLimit int `yaml:"rule_limit" json:"rule_limit"`

	// MinConfidence is passed to the supplier as a lower bound.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// Lookback is the window of history the supplier should consider.
	Lookback time.Duration `yaml:"lookback" json:"lookback"`
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		RuleLimit:     5,
		MinConfidence: 0.5,
		Lookback:      30 * 24 * time.Hour,
	}
}

// Classifier maps a decision category and context to an automation level
// using rules from a RuleSupplier.
type Classifier struct {
	config   Config
	supplier RuleSupplier
	domains  *routing.DomainInferrer
	metrics  *metrics.Collector
	now      func() time.Time
	logger   *zap.Logger
}

// NewClassifier creates a classifier. collector may be nil.
func NewClassifier(supplier RuleSupplier, config Config, collector *metrics.Collector, logger *zap.Logger) *Classifier {
	defaults := DefaultConfig()
	if config.RuleLimit <= 0 {
		config.RuleLimit = defaults.RuleLimit
	}
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		config:   config,
		supplier: supplier,
		domains:  routing.NewDomainInferrer(nil),
		metrics:  collector,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "autonomy_classifier")),
	}
}

// Classify asks the supplier for rules matching category and context and
// classifies the best surviving candidate. When nothing usable comes back
// the decision is escalated.
func (c *Classifier) Classify(ctx context.Context, category Category, input map[string]any) (Classification, *Decision) {
	criteria := c.Criteria(category, input)
	decision := &Decision{
		Category:  category,
		Criteria:  criteria,
		DecidedAt: c.now(),
	}

	rules, err := c.supplier.ProposeRules(ctx, criteria, ProposeOptions{
		Limit:         c.config.RuleLimit,
		MinConfidence: c.config.MinConfidence,
	})
	if err != nil {
		c.logger.Warn("rule supplier failed",
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return c.escalate(decision, StatusSupplierError, "rule supplier unavailable: "+err.Error())
	}

	decision.Candidates = len(rules)
	candidates := compatibleRules(rules, input)
	if len(candidates) == 0 {
		return c.escalate(decision, StatusNoRules, "no rules available")
	}

	best := bestRule(candidates)
	decision.Rule = &best
	decision.Confidence = types.ClampRate(best.Confidence)
	decision.RecommendedChecks = recommendedChecks(category, best)
	decision.Reasoning = buildReasoning(best, decision.RecommendedChecks, input)

	switch {
	case decision.Confidence >= AutonomousThreshold:
		decision.Classification = Autonomous
		decision.Status = StatusMatched
	case decision.Confidence >= CollaborativeThreshold:
		decision.Classification = Collaborative
		decision.Status = StatusMatched
	default:
		decision.Classification = Escalated
		decision.Status = StatusLowConfidence
		decision.Reasoning += fmt.Sprintf("; confidence %.2f is below %.2f, escalating for review",
			decision.Confidence, CollaborativeThreshold)
	}

	c.record(decision)
	return decision.Classification, decision
}

func (c *Classifier) escalate(decision *Decision, status Status, reason string) (Classification, *Decision) {
	decision.Classification = Escalated
	decision.Confidence = NoRulesConfidence
	decision.Status = status
	decision.Reasoning = reason
	c.record(decision)
	return Escalated, decision
}

func (c *Classifier) record(d *Decision) {
	c.metrics.RecordAutonomyDecision(string(d.Category), string(d.Classification))
	c.logger.Info("decision classified",
		zap.String("category", string(d.Category)),
		zap.String("classification", string(d.Classification)),
		zap.String("status", string(d.Status)),
		zap.Float64("confidence", d.Confidence),
		zap.Int("candidates", d.Candidates),
	)
}

// Criteria derives the supplier query from a category and context. The
// domain comes from the context when given, otherwise it is inferred from
// the description text and finally from the category.
func (c *Classifier) Criteria(category Category, input map[string]any) Criteria {
	info := categories[category]
	criteria := Criteria{
		Category: category,
		Domain:   info.domain,
		TaskType: info.taskType,
		Since:    c.now().Add(-c.config.Lookback),
	}

	if d, ok := input["domain"]; ok {
		if domain := types.ParseDomain(stringify(d)); domain != types.DomainOther {
			criteria.Domain = domain
		}
	} else if text := descriptionOf(input); text != "" {
		if domain := c.domains.Infer(text); domain != types.DomainOther {
			criteria.Domain = domain
		}
	}
	if tt, ok := input["task_type"]; ok && stringify(tt) != "" {
		criteria.TaskType = stringify(tt)
	}
	if cx, ok := input["complexity"]; ok {
		criteria.Complexity = types.ParseComplexity(stringify(cx))
	}

	attrs := make(map[string]string)
	for k, v := range input {
		switch v.(type) {
		case string, bool, int, int64, float64:
			attrs[k] = stringify(v)
		}
	}
	if len(attrs) > 0 {
		criteria.Attributes = attrs
	}
	return criteria
}

func descriptionOf(input map[string]any) string {
	for _, key := range []string{"description", "goal", "summary"} {
		if v, ok := input[key]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// compatibleRules drops rules whose declared complexity differs from the
// context's. A missing value on either side is not a conflict.
func compatibleRules(rules []Rule, input map[string]any) []Rule {
	want := strings.TrimSpace(stringify(input["complexity"]))
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		got := strings.TrimSpace(stringify(r.Pattern["complexity"]))
		if want != "" && got != "" && !strings.EqualFold(got, want) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// bestRule picks the highest confidence. Ties keep supplier order.
func bestRule(rules []Rule) Rule {
	best := rules[0]
	for _, r := range rules[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}

func recommendedChecks(category Category, rule Rule) []string {
	seen := make(map[string]struct{})
	var checks []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		checks = append(checks, s)
	}

	switch v := rule.Pattern["recommended_checks"].(type) {
	case []string:
		for _, s := range v {
			add(s)
		}
	case []any:
		for _, s := range v {
			add(stringify(s))
		}
	case string:
		add(v)
	}
	for _, s := range categories[category].checks {
		add(s)
	}
	return checks
}

func buildReasoning(rule Rule, checks []string, input map[string]any) string {
	parts := []string{
		fmt.Sprintf("matched rule with confidence %.2f", rule.Confidence),
		"pattern: " + summarize(rule.Pattern, "recommended_checks"),
	}
	if rule.Action != "" {
		parts = append(parts, "action: "+rule.Action)
	}
	if len(checks) > 0 {
		parts = append(parts, "checks: "+strings.Join(checks, ", "))
	}
	parts = append(parts,
		fmt.Sprintf("history: seen %d times with %.0f%% success", rule.Frequency, types.ClampRate(rule.SuccessRate)*100),
		"context: "+summarize(input),
	)
	return strings.Join(parts, "; ")
}

// summarize renders a map as sorted key=value pairs, skipping the given keys.
func summarize(m map[string]any, skip ...string) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
outer:
	for k := range m {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "none"
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + stringify(m[k])
	}
	return strings.Join(pairs, ", ")
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
