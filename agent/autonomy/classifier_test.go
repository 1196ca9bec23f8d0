package autonomy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func supplierOf(rules ...Rule) RuleSupplier {
	return SupplierFunc(func(context.Context, Criteria, ProposeOptions) ([]Rule, error) {
		return rules, nil
	})
}

func TestClassify_NoRulesEscalates(t *testing.T) {
	c := NewClassifier(supplierOf(), DefaultConfig(), nil, zap.NewNop())

	class, d := c.Classify(context.Background(), CategoryCostOptimization, map[string]any{"current_cost": 120})

	assert.Equal(t, Escalated, class)
	assert.Equal(t, 0.3, d.Confidence)
	assert.Equal(t, StatusNoRules, d.Status)
	assert.Contains(t, d.Reasoning, "no rules available")
	assert.Nil(t, d.Rule)
}

func TestClassify_SupplierErrorEscalates(t *testing.T) {
	failing := SupplierFunc(func(context.Context, Criteria, ProposeOptions) ([]Rule, error) {
		return nil, errors.New("rule store offline")
	})
	c := NewClassifier(failing, DefaultConfig(), nil, nil)

	class, d := c.Classify(context.Background(), CategoryRefactoring, nil)
	assert.Equal(t, Escalated, class)
	assert.Equal(t, NoRulesConfidence, d.Confidence)
	assert.Equal(t, StatusSupplierError, d.Status)
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Classification
		status     Status
	}{
		{0.95, Autonomous, StatusMatched},
		{0.9, Autonomous, StatusMatched},
		{0.89, Collaborative, StatusMatched},
		{0.7, Collaborative, StatusMatched},
		{0.69, Escalated, StatusLowConfidence},
		{0.1, Escalated, StatusLowConfidence},
	}
	for _, tt := range tests {
		c := NewClassifier(supplierOf(Rule{Confidence: tt.confidence, Pattern: map[string]any{}}), DefaultConfig(), nil, nil)
		class, d := c.Classify(context.Background(), CategoryRefactoring, map[string]any{})
		assert.Equal(t, tt.want, class, "confidence %v", tt.confidence)
		assert.Equal(t, tt.status, d.Status, "confidence %v", tt.confidence)
		assert.Equal(t, tt.confidence, d.Confidence)
	}
}

func TestClassify_LowConfidenceReasoningNotesEscalation(t *testing.T) {
	c := NewClassifier(supplierOf(Rule{Confidence: 0.5}), DefaultConfig(), nil, nil)
	_, d := c.Classify(context.Background(), CategoryRefactoring, nil)
	assert.Contains(t, d.Reasoning, "below 0.70")
}

func TestClassify_ComplexityConflictFilter(t *testing.T) {
	rules := []Rule{
		{ID: "complex-only", Confidence: 0.99, Pattern: map[string]any{"complexity": "complex"}},
		{ID: "medium", Confidence: 0.8, Pattern: map[string]any{"complexity": "Medium"}},
		{ID: "any", Confidence: 0.75, Pattern: map[string]any{}},
	}
	c := NewClassifier(supplierOf(rules...), DefaultConfig(), nil, nil)

	_, d := c.Classify(context.Background(), CategoryRefactoring, map[string]any{"complexity": "medium"})
	require.NotNil(t, d.Rule)
	assert.Equal(t, "medium", d.Rule.ID, "conflicting complexity is excluded, case-insensitive match kept")

	_, d = c.Classify(context.Background(), CategoryRefactoring, map[string]any{})
	assert.Equal(t, "complex-only", d.Rule.ID, "missing context complexity is not a conflict")

	only := NewClassifier(supplierOf(rules[0]), DefaultConfig(), nil, nil)
	class, d := only.Classify(context.Background(), CategoryRefactoring, map[string]any{"complexity": "simple"})
	assert.Equal(t, Escalated, class)
	assert.Equal(t, StatusNoRules, d.Status)
}

func TestClassify_EmptyComplexityIsAbsent(t *testing.T) {
	rules := []Rule{
		{ID: "complex-only", Confidence: 0.95, Pattern: map[string]any{"complexity": "complex"}},
		{ID: "blank", Confidence: 0.8, Pattern: map[string]any{"complexity": ""}},
	}
	c := NewClassifier(supplierOf(rules...), DefaultConfig(), nil, nil)

	_, d := c.Classify(context.Background(), CategoryRefactoring, map[string]any{"complexity": ""})
	require.NotNil(t, d.Rule)
	assert.Equal(t, "complex-only", d.Rule.ID, "empty context complexity does not exclude declared rules")

	_, d = c.Classify(context.Background(), CategoryRefactoring, map[string]any{"complexity": "simple"})
	require.NotNil(t, d.Rule)
	assert.Equal(t, "blank", d.Rule.ID, "empty rule complexity matches any context")
}

func TestClassify_BestByConfidence(t *testing.T) {
	c := NewClassifier(supplierOf(
		Rule{ID: "a", Confidence: 0.72},
		Rule{ID: "b", Confidence: 0.93},
		Rule{ID: "c", Confidence: 0.93},
	), DefaultConfig(), nil, nil)

	class, d := c.Classify(context.Background(), CategoryPerformanceTuning, nil)
	assert.Equal(t, Autonomous, class)
	assert.Equal(t, "b", d.Rule.ID, "ties keep supplier order")
	assert.Equal(t, 3, d.Candidates)
}

func TestClassify_ReasoningTrail(t *testing.T) {
	rule := Rule{
		Confidence:  0.92,
		Action:      "apply",
		Frequency:   14,
		SuccessRate: 0.86,
		Pattern: map[string]any{
			"complexity":         "medium",
			"recommended_checks": []any{"run benchmarks", "review diff"},
		},
	}
	c := NewClassifier(supplierOf(rule), DefaultConfig(), nil, nil)

	_, d := c.Classify(context.Background(), CategoryPerformanceTuning, map[string]any{"complexity": "medium", "metric": "p99"})

	assert.Equal(t, []string{"run benchmarks", "review diff"}, d.RecommendedChecks)
	assert.Contains(t, d.Reasoning, "confidence 0.92")
	assert.Contains(t, d.Reasoning, "pattern: complexity=medium")
	assert.NotContains(t, d.Reasoning, "pattern: complexity=medium, recommended_checks")
	assert.Contains(t, d.Reasoning, "checks: run benchmarks, review diff")
	assert.Contains(t, d.Reasoning, "seen 14 times with 86% success")
	assert.Contains(t, d.Reasoning, "context: complexity=medium, metric=p99")
}

func TestClassifier_Criteria(t *testing.T) {
	var got Criteria
	supplier := SupplierFunc(func(_ context.Context, c Criteria, opts ProposeOptions) ([]Rule, error) {
		got = c
		assert.Equal(t, 5, opts.Limit)
		assert.Equal(t, 0.5, opts.MinConfidence)
		return nil, nil
	})
	c := NewClassifier(supplierOf(), DefaultConfig(), nil, nil)
	c.supplier = supplier
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Classify(context.Background(), CategoryCostOptimization, map[string]any{
		"description": "audit the login flow for injection vulnerabilities",
		"complexity":  "complex",
		"files":       3,
	})

	assert.Equal(t, CategoryCostOptimization, got.Category)
	assert.Equal(t, types.DomainSecurity, got.Domain, "inferred from description")
	assert.Equal(t, "optimization", got.TaskType)
	assert.Equal(t, types.ComplexityComplex, got.Complexity)
	assert.Equal(t, now.Add(-30*24*time.Hour), got.Since)
	assert.Equal(t, "3", got.Attributes["files"])

	c.Classify(context.Background(), CategorySecurityFix, map[string]any{"domain": "testing", "task_type": "patch"})
	assert.Equal(t, types.DomainTesting, got.Domain)
	assert.Equal(t, "patch", got.TaskType)

	c.Classify(context.Background(), CategoryDeployment, nil)
	assert.Equal(t, types.DomainDeployment, got.Domain)
}

func TestStaticSupplier(t *testing.T) {
	s := &StaticSupplier{Rules: []Rule{
		{ID: "r1", Confidence: 0.9, Pattern: map[string]any{"category": "refactoring"}},
		{ID: "r2", Confidence: 0.4, Pattern: map[string]any{"category": "refactoring"}},
		{ID: "r3", Confidence: 0.8, Pattern: map[string]any{"category": "deployment"}},
		{ID: "r4", Confidence: 0.7},
	}}

	rules, err := s.ProposeRules(context.Background(), Criteria{Category: CategoryRefactoring}, ProposeOptions{MinConfidence: 0.5})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, "r4", rules[1].ID)

	rules, _ = s.ProposeRules(context.Background(), Criteria{Category: CategoryRefactoring}, ProposeOptions{Limit: 1})
	assert.Len(t, rules, 1)
}
