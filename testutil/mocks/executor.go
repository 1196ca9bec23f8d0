// MockExecutor 是 routing.AgentExecutor 的测试模拟实现。
//
// 支持按 Agent 固定输出、错误注入、延迟与调用记录。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/mikkihugo/agentrouter/agent/routing"
	"github.com/mikkihugo/agentrouter/types"
)

// ErrScripted 是 FailTask 注入的失败
var ErrScripted = errors.New("scripted failure")

// ExecutorCall 记录单次派发
type ExecutorCall struct {
	Agent  string
	TaskID string
}

// MockExecutor 按 Agent 返回预设结果，未设置时输出 JSON 字符串 "ok"
type MockExecutor struct {
	mu      sync.Mutex
	outputs map[string][]byte
	errs    map[string]error
	failFor map[string]bool
	delay   time.Duration
	calls   []ExecutorCall
}

// NewMockExecutor 创建执行器
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
		failFor: make(map[string]bool),
	}
}

// WithOutput 设置 Agent 的输出，output 会被序列化为 JSON
func (m *MockExecutor) WithOutput(agent string, output any) *MockExecutor {
	data, err := json.Marshal(output)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[agent] = data
	return m
}

// WithError 令 Agent 始终返回 err
func (m *MockExecutor) WithError(agent string, err error) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[agent] = err
	return m
}

// FailTask 令指定任务在任何 Agent 上失败
func (m *MockExecutor) FailTask(taskID string) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[taskID] = true
	return m
}

// WithDelay 为每次派发增加延迟
func (m *MockExecutor) WithDelay(d time.Duration) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Execute 实现 routing.AgentExecutor
func (m *MockExecutor) Execute(ctx context.Context, agent string, task *types.Task) (*routing.ExecutionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ExecutorCall{Agent: agent, TaskID: task.ID})
	delay := m.delay
	err := m.errs[agent]
	if err == nil && m.failFor[task.ID] {
		err = ErrScripted
	}
	out, ok := m.outputs[agent]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		out = []byte(`"ok"`)
	}
	return &routing.ExecutionResult{Output: out}, nil
}

// Calls 返回调用记录副本
func (m *MockExecutor) Calls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutorCall, len(m.calls))
	copy(out, m.calls)
	return out
}
