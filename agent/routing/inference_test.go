package routing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainInferrer_Infer(t *testing.T) {
	inf := NewDomainInferrer(nil)

	tests := []struct {
		text string
		want types.Domain
	}{
		{"Refactor the billing module", types.DomainRefactoring},
		{"Fix SQL injection in the login form", types.DomainSecurity},
		{"Add unit tests for the parser", types.DomainTesting},
		{"Update the README", types.DomainDocumentation},
		{"The service is slow under load", types.DomainPerformance},
		{"Deploy to staging via the pipeline", types.DomainDeployment},
		{"Crash when config is missing", types.DomainDebugging},
		{"Scaffold a new CLI command", types.DomainCodeGeneration},
		{"Brew some coffee", types.DomainOther},
		{"", types.DomainOther},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, inf.Infer(tt.text))
		})
	}
}

// "optimize" triggers both refactoring and performance; the cascade order
// decides, so refactoring wins even for clearly performance-flavoured text.
func TestDomainInferrer_OptimizeShadowedByRefactoring(t *testing.T) {
	inf := NewDomainInferrer(nil)
	assert.Equal(t, types.DomainRefactoring, inf.Infer("Optimize query latency"))
}

func TestDomainInferrer_WholeWordPrefixOnly(t *testing.T) {
	inf := NewDomainInferrer([]DomainRule{{Domain: types.DomainDeployment, Keywords: []string{"ci"}}})

	assert.Equal(t, types.DomainOther, inf.Infer("special handling"))
	assert.Equal(t, types.DomainDeployment, inf.Infer("CI is red"))
}

func TestHeuristicComplexity(t *testing.T) {
	assert.Equal(t, types.ComplexitySimple, HeuristicComplexity("Fix a typo in the header comment of main.go please"))
	assert.Equal(t, types.ComplexityComplex, HeuristicComplexity("Migrate the storage layer to the new schema"))
	assert.Equal(t, types.ComplexitySimple, HeuristicComplexity("Update docs"))
	assert.Equal(t, types.ComplexityMedium, HeuristicComplexity("Add pagination support to the users listing endpoint handler"))
	assert.Equal(t, types.ComplexityComplex, HeuristicComplexity(strings.Repeat("word ", 61)))
	assert.Equal(t, types.ComplexityUnknown, HeuristicComplexity("  "))
}

type stubComplexity struct {
	c   types.Complexity
	err error
}

func (s stubComplexity) InferComplexity(ctx context.Context, provider string, input map[string]any) (types.Complexity, error) {
	return s.c, s.err
}

func TestTaskAdapter_Build(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit fields win", func(t *testing.T) {
		a := NewTaskAdapter(nil, stubComplexity{c: types.ComplexityComplex}, nil)
		task, err := a.Build(ctx, Request{ID: "t1", Description: "refactor it", Domain: "security", Complexity: "simple"})
		require.NoError(t, err)
		assert.Equal(t, "t1", task.ID)
		assert.Equal(t, types.DomainSecurity, task.Domain)
		assert.Equal(t, types.ComplexitySimple, task.Complexity)
	})

	t.Run("inferred via collaborator", func(t *testing.T) {
		a := NewTaskAdapter(nil, stubComplexity{c: types.ComplexityComplex}, nil)
		task, err := a.Build(ctx, Request{Description: "Add tests for the parser"})
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, types.DomainTesting, task.Domain)
		assert.Equal(t, types.ComplexityComplex, task.Complexity)
	})

	t.Run("collaborator failure falls back to heuristic", func(t *testing.T) {
		a := NewTaskAdapter(nil, stubComplexity{err: errors.New("provider down")}, nil)
		task, err := a.Build(ctx, Request{Description: "Rename a variable"})
		require.NoError(t, err)
		assert.Equal(t, types.ComplexitySimple, task.Complexity)
	})

	t.Run("empty description", func(t *testing.T) {
		a := NewTaskAdapter(nil, nil, nil)
		_, err := a.Build(ctx, Request{})
		assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	})
}
