package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mikkihugo/agentrouter/types"
)

// ExecutionResult is what an agent returns for a task.
type ExecutionResult struct {
	Output     json.RawMessage `json:"output,omitempty"`
	TokensUsed int             `json:"tokens_used"`
}

// AgentExecutor performs a task on the named agent. Implementations must
// honour ctx cancellation; the router never force-kills an agent.
type AgentExecutor interface {
	Execute(ctx context.Context, agent string, task *types.Task) (*ExecutionResult, error)
}

// ExecutorFunc adapts a function to AgentExecutor.
type ExecutorFunc func(ctx context.Context, agent string, task *types.Task) (*ExecutionResult, error)

// Execute implements AgentExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, agent string, task *types.Task) (*ExecutionResult, error) {
	return f(ctx, agent, task)
}

// EndpointResolver returns the execution endpoint of an agent.
type EndpointResolver func(agent string) (string, bool)

// HTTPExecutor dispatches tasks to remote agents over HTTP. The task is
// POSTed as JSON to <endpoint>/execute and the response body is decoded as
// an ExecutionResult.
type HTTPExecutor struct {
	resolve    EndpointResolver
	httpClient *http.Client
}

// NewHTTPExecutor creates an HTTP executor.
func NewHTTPExecutor(resolve EndpointResolver, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPExecutor{resolve: resolve, httpClient: client}
}

// Execute implements AgentExecutor.
func (e *HTTPExecutor) Execute(ctx context.Context, agent string, task *types.Task) (*ExecutionResult, error) {
	endpoint, ok := e.resolve(agent)
	if !ok || endpoint == "" {
		return nil, fmt.Errorf("agent %s has no execution endpoint", agent)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID, ok := types.TraceID(ctx); ok {
		req.Header.Set("X-Request-ID", traceID)
	}
	if runID, ok := types.RunID(ctx); ok {
		req.Header.Set("X-Run-ID", runID)
	}
	if instanceID, ok := types.InstanceID(ctx); ok {
		req.Header.Set("X-Instance-ID", instanceID)
	}
	if caller, ok := types.Caller(ctx); ok {
		req.Header.Set("X-Caller", caller)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent %s returned status %d: %s", agent, resp.StatusCode, bytes.TrimSpace(body))
	}

	var result ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode agent response: %w", err)
	}
	return &result, nil
}
