package autonomy

import (
	"sort"
	"strings"

	"github.com/mikkihugo/agentrouter/types"
)

// Category is the kind of decision being classified.
type Category string

const (
	CategoryCostOptimization   Category = "cost_optimization"
	CategoryRefactoring        Category = "refactoring"
	CategoryArchitectureChange Category = "architecture_change"
	CategoryDependencyUpgrade  Category = "dependency_upgrade"
	CategorySecurityFix        Category = "security_fix"
	CategoryPerformanceTuning  Category = "performance_tuning"
	CategoryTestGeneration     Category = "test_generation"
	CategoryDeployment         Category = "deployment"
	CategoryOther              Category = "other"
)

type categoryInfo struct {
	domain   types.Domain
	taskType string
	required []string
	checks   []string
}

var categories = map[Category]categoryInfo{
	CategoryCostOptimization: {
		domain:   types.DomainPerformance,
		taskType: "optimization",
		required: []string{"current_cost", "target"},
		checks:   []string{"compare cost before and after"},
	},
	CategoryRefactoring: {
		domain:   types.DomainRefactoring,
		taskType: "refactor",
		required: []string{"files", "complexity"},
		checks:   []string{"run full test suite"},
	},
	CategoryArchitectureChange: {
		domain:   types.DomainArchitecture,
		taskType: "design",
		required: []string{"components", "rationale"},
		checks:   []string{"architecture review"},
	},
	CategoryDependencyUpgrade: {
		domain:   types.DomainDeployment,
		taskType: "upgrade",
		required: []string{"package", "from_version", "to_version"},
		checks:   []string{"review changelog", "run full test suite"},
	},
	CategorySecurityFix: {
		domain:   types.DomainSecurity,
		taskType: "fix",
		required: []string{"vulnerability", "severity"},
		checks:   []string{"security scan"},
	},
	CategoryPerformanceTuning: {
		domain:   types.DomainPerformance,
		taskType: "tuning",
		required: []string{"metric", "baseline"},
		checks:   []string{"run benchmarks"},
	},
	CategoryTestGeneration: {
		domain:   types.DomainTesting,
		taskType: "generate_tests",
		required: []string{"target"},
	},
	CategoryDeployment: {
		domain:   types.DomainDeployment,
		taskType: "deploy",
		required: []string{"environment", "version"},
		checks:   []string{"verify rollback plan"},
	},
	CategoryOther: {
		domain: types.DomainOther,
	},
}

// ParseCategory normalizes s. Unrecognised input maps to CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categories[c]; ok {
		return c
	}
	return CategoryOther
}

// Categories returns every declared category in name order.
func Categories() []Category {
	out := make([]Category, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsKnown reports whether c is one of the declared categories.
func (c Category) IsKnown() bool {
	_, ok := categories[c]
	return ok
}

// RequiredFields returns the context keys a decision of this category needs.
func (c Category) RequiredFields() []string {
	return append([]string(nil), categories[c].required...)
}

// ValidateContext checks that every field required by category is present
// and non-empty. It returns a *types.MissingFieldsError listing the gaps.
func ValidateContext(category Category, input map[string]any) error {
	var missing []string
	for _, field := range categories[category].required {
		if isEmpty(input[field]) {
			missing = append(missing, field)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &types.MissingFieldsError{Category: string(category), Fields: missing}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
