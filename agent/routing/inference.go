package routing

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// DomainRule maps trigger keywords to a domain. A single-word keyword
// matches any word that starts with it; a multi-word keyword matches the
// phrase.
type DomainRule struct {
	Domain   types.Domain
	Keywords []string
}

// DefaultDomainRules is the ordered keyword cascade. Order matters: the first
// rule with a matching keyword wins. "optimize" appears under both
// refactoring and performance, so text mentioning it infers refactoring.
var DefaultDomainRules = []DomainRule{
	{Domain: types.DomainRefactoring, Keywords: []string{"refactor", "restructur", "clean up", "cleanup", "optimiz", "simplif", "rename", "extract", "dedup"}},
	{Domain: types.DomainPerformance, Keywords: []string{"performance", "optimiz", "speed", "latency", "slow", "throughput", "benchmark", "profil", "memory leak"}},
	{Domain: types.DomainSecurity, Keywords: []string{"security", "vulnerab", "xss", "csrf", "injection", "cve", "secret", "auth", "sanitiz"}},
	{Domain: types.DomainTesting, Keywords: []string{"test", "coverage", "assert", "fixture", "mock"}},
	{Domain: types.DomainDocumentation, Keywords: []string{"document", "docs", "readme", "docstring", "changelog", "comment"}},
	{Domain: types.DomainArchitecture, Keywords: []string{"architect", "design", "microservice", "module boundar", "layering", "decoupl"}},
	{Domain: types.DomainDebugging, Keywords: []string{"bug", "fix", "crash", "debug", "exception", "stack trace", "regression"}},
	{Domain: types.DomainDeployment, Keywords: []string{"deploy", "release", "pipeline", "docker", "kubernetes", "helm", "rollout"}},
	{Domain: types.DomainCodeGeneration, Keywords: []string{"generat", "implement", "scaffold", "create", "add feature", "build"}},
}

// DomainInferrer infers a domain from free text with a first-match-wins
// keyword cascade.
type DomainInferrer struct {
	rules []DomainRule
}

// NewDomainInferrer creates an inferrer. A nil rule set uses DefaultDomainRules.
func NewDomainInferrer(rules []DomainRule) *DomainInferrer {
	if rules == nil {
		rules = DefaultDomainRules
	}
	return &DomainInferrer{rules: rules}
}

// Infer returns the domain of the first matching rule, or DomainOther.
func (d *DomainInferrer) Infer(text string) types.Domain {
	words := tokenize(text)
	if len(words) == 0 {
		return types.DomainOther
	}
	phrase := " " + strings.Join(words, " ") + " "

	for _, rule := range d.rules {
		for _, kw := range rule.Keywords {
			if matchKeyword(words, phrase, kw) {
				return rule.Domain
			}
		}
	}
	return types.DomainOther
}

func matchKeyword(words []string, phrase, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(phrase, " "+kw)
	}
	for _, w := range words {
		if strings.HasPrefix(w, kw) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ComplexityInferrer is an external collaborator that estimates task
// complexity for a provider and context.
type ComplexityInferrer interface {
	InferComplexity(ctx context.Context, provider string, input map[string]any) (types.Complexity, error)
}

var (
	complexMarkers = []string{"architect", "distributed", "migrat", "redesign", "concurren", "across", "multiple", "rewrite", "overhaul"}
	simpleMarkers  = []string{"typo", "rename", "trivial", "minor", "small", "single", "one line", "bump"}
)

// HeuristicComplexity estimates complexity from the description text alone.
func HeuristicComplexity(description string) types.Complexity {
	words := tokenize(description)
	if len(words) == 0 {
		return types.ComplexityUnknown
	}
	phrase := " " + strings.Join(words, " ") + " "

	for _, kw := range complexMarkers {
		if matchKeyword(words, phrase, kw) {
			return types.ComplexityComplex
		}
	}
	for _, kw := range simpleMarkers {
		if matchKeyword(words, phrase, kw) {
			return types.ComplexitySimple
		}
	}
	switch {
	case len(words) > 60:
		return types.ComplexityComplex
	case len(words) < 8:
		return types.ComplexitySimple
	default:
		return types.ComplexityMedium
	}
}

// Request is the loosely typed input an upstream planner hands to the adapter.
type Request struct {
	ID           string
	Description  string
	Domain       string
	Complexity   string
	Provider     string
	Context      map[string]any
	InputType    string
	OutputType   string
	Dependencies []string
	Timeout      time.Duration
	RetryCount   int
}

// TaskAdapter turns planner requests into typed tasks, inferring domain and
// complexity when they are not given explicitly.
type TaskAdapter struct {
	domains    *DomainInferrer
	complexity ComplexityInferrer
	logger     *zap.Logger
}

// NewTaskAdapter creates an adapter. complexity may be nil, in which case
// only the text heuristic is used.
func NewTaskAdapter(domains *DomainInferrer, complexity ComplexityInferrer, logger *zap.Logger) *TaskAdapter {
	if domains == nil {
		domains = NewDomainInferrer(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskAdapter{
		domains:    domains,
		complexity: complexity,
		logger:     logger.With(zap.String("component", "task_adapter")),
	}
}

// Build converts req into a Task.
func (a *TaskAdapter) Build(ctx context.Context, req Request) (*types.Task, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, types.NewInvalidRequestError("task description is empty")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	domain := types.ParseDomain(req.Domain)
	if req.Domain == "" || domain == types.DomainOther {
		domain = a.domains.Infer(req.Description)
	}

	complexity := types.ParseComplexity(req.Complexity)
	if complexity == types.ComplexityUnknown {
		complexity = a.inferComplexity(ctx, req)
	}

	return &types.Task{
		ID:           id,
		Goal:         req.Description,
		Domain:       domain,
		Complexity:   complexity,
		InputType:    req.InputType,
		OutputType:   req.OutputType,
		Dependencies: req.Dependencies,
		Timeout:      req.Timeout,
		RetryCount:   req.RetryCount,
	}, nil
}

func (a *TaskAdapter) inferComplexity(ctx context.Context, req Request) types.Complexity {
	if a.complexity != nil {
		input := make(map[string]any, len(req.Context)+1)
		for k, v := range req.Context {
			input[k] = v
		}
		input["description"] = req.Description

		c, err := a.complexity.InferComplexity(ctx, req.Provider, input)
		if err == nil && c != types.ComplexityUnknown {
			return c
		}
		if err != nil {
			a.logger.Debug("complexity inference failed, using heuristic",
				zap.String("provider", req.Provider),
				zap.Error(err),
			)
		}
	}
	return HeuristicComplexity(req.Description)
}
