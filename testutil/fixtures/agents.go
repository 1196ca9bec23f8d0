// =============================================================================
// 📦 测试数据工厂 - Agent 能力档案
// =============================================================================
// 预置的能力档案与任务，覆盖三级回退选择的典型场景
// =============================================================================
package fixtures

import (
	"context"
	"testing"

	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/types"
)

// Refactorer 只处理 refactoring、针对 medium 复杂度的 Agent
func Refactorer() *discovery.AgentCapability {
	return &discovery.AgentCapability{
		Name:            "A1",
		Role:            "refactorer",
		Domains:         []types.Domain{types.DomainRefactoring},
		ComplexityLevel: types.ComplexityMedium,
		SuccessRate:     0.9,
		Available:       true,
	}
}

// SecurityReviewer 处理 security 的 Agent
func SecurityReviewer() *discovery.AgentCapability {
	return &discovery.AgentCapability{
		Name:            "A2",
		Role:            "security-reviewer",
		Domains:         []types.Domain{types.DomainSecurity},
		ComplexityLevel: types.ComplexityComplex,
		SuccessRate:     0.6,
		Available:       true,
	}
}

// Generalist 覆盖多个领域的低成功率 Agent
func Generalist() *discovery.AgentCapability {
	return &discovery.AgentCapability{
		Name:            "generalist",
		Role:            "generalist",
		Domains:         []types.Domain{types.DomainTesting, types.DomainDocumentation, types.DomainOther},
		ComplexityLevel: types.ComplexitySimple,
		SuccessRate:     0.5,
		Available:       true,
	}
}

// Agents 返回默认的 Agent 集合
func Agents() []*discovery.AgentCapability {
	return []*discovery.AgentCapability{Refactorer(), SecurityReviewer(), Generalist()}
}

// NewDirectory 创建并注册给定 Agent 的目录，未给定时使用 Agents()
func NewDirectory(t testing.TB, agents ...*discovery.AgentCapability) *discovery.Directory {
	t.Helper()
	if len(agents) == 0 {
		agents = Agents()
	}
	dir := discovery.NewDirectory(nil)
	for _, a := range agents {
		if err := dir.Register(context.Background(), a); err != nil {
			t.Fatalf("register %s: %v", a.Name, err)
		}
	}
	return dir
}

// Task 返回给定领域与复杂度的任务
func Task(id string, domain types.Domain, complexity types.Complexity, deps ...string) *types.Task {
	return &types.Task{
		ID:           id,
		Goal:         "fixture task " + id,
		Domain:       domain,
		Complexity:   complexity,
		Dependencies: deps,
	}
}
