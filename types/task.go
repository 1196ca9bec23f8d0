package types

import (
	"strings"
	"time"
)

// Domain classifies the kind of work a task requires.
type Domain string

// Known domains. DomainOther is the explicit fallback for unrecognised input.
const (
	DomainRefactoring    Domain = "refactoring"
	DomainPerformance    Domain = "performance"
	DomainSecurity       Domain = "security"
	DomainTesting        Domain = "testing"
	DomainDocumentation  Domain = "documentation"
	DomainArchitecture   Domain = "architecture"
	DomainCodeGeneration Domain = "code_generation"
	DomainDebugging      Domain = "debugging"
	DomainDeployment     Domain = "deployment"
	DomainOther          Domain = "other"
)

var knownDomains = map[Domain]struct{}{
	DomainRefactoring:    {},
	DomainPerformance:    {},
	DomainSecurity:       {},
	DomainTesting:        {},
	DomainDocumentation:  {},
	DomainArchitecture:   {},
	DomainCodeGeneration: {},
	DomainDebugging:      {},
	DomainDeployment:     {},
	DomainOther:          {},
}

// ParseDomain normalises s into a Domain. Unknown values map to DomainOther.
func ParseDomain(s string) Domain {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownDomains[d]; ok {
		return d
	}
	return DomainOther
}

// IsKnown reports whether d is one of the declared domains other than DomainOther.
func (d Domain) IsKnown() bool {
	_, ok := knownDomains[d]
	return ok && d != DomainOther
}

// Complexity is the difficulty level a task has or an agent is tuned for.
type Complexity string

const (
	ComplexityUnknown Complexity = ""
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ParseComplexity normalises s into a Complexity. Unknown values map to ComplexityUnknown.
func ParseComplexity(s string) Complexity {
	switch c := Complexity(strings.ToLower(strings.TrimSpace(s))); c {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex:
		return c
	default:
		return ComplexityUnknown
	}
}

// Task is a unit of work handed to the router or the DAG coordinator.
type Task struct {
	ID           string            `json:"id"`
	Goal         string            `json:"goal"`
	Domain       Domain            `json:"domain"`
	Complexity   Complexity        `json:"complexity,omitempty"`
	InputType    string            `json:"input_type,omitempty"`
	OutputType   string            `json:"output_type,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Timeout      time.Duration     `json:"timeout,omitempty"`
	RetryCount   int               `json:"retry_count,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ExecutionOutcome is emitted once per dispatch attempt. It is never mutated
// after creation.
type ExecutionOutcome struct {
	AgentName  string        `json:"agent_name"`
	Domain     Domain        `json:"domain"`
	Success    bool          `json:"success"`
	TokensUsed int           `json:"tokens_used"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
	TaskID     string        `json:"task_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ClampRate bounds a success rate to [0, 1]. NaN maps to 0.
func ClampRate(rate float64) float64 {
	switch {
	case rate != rate:
		return 0
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	default:
		return rate
	}
}
