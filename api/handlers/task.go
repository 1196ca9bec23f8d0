package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mikkihugo/agentrouter/agent/routing"
	"github.com/mikkihugo/agentrouter/types"
	"github.com/mikkihugo/agentrouter/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// Task Routing Handler
// =============================================================================

// TaskRouter routes and selects. *routing.Router satisfies it.
type TaskRouter interface {
	Route(ctx context.Context, task *types.Task, opts routing.Options) (*routing.Result, error)
	Select(ctx context.Context, task *types.Task) (*routing.Selection, error)
}

// DAGRunner executes dependent tasks. *workflow.DAGExecutor satisfies it.
type DAGRunner interface {
	Execute(ctx context.Context, tasks []*types.Task, opts workflow.DAGOptions) (map[string]*workflow.TaskResult, error)
}

// TaskHandler turns HTTP requests into routed tasks and DAG runs.
type TaskHandler struct {
	adapter *routing.TaskAdapter
	router  TaskRouter
	dag     DAGRunner
	logger  *zap.Logger
}

// TaskRequest is the wire form of a task. Domain and complexity are
// inferred from the description when omitted.
type TaskRequest struct {
	ID           string         `json:"id,omitempty"`
	Description  string         `json:"description"`
	Domain       string         `json:"domain,omitempty"`
	Complexity   string         `json:"complexity,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	InputType    string         `json:"input_type,omitempty"`
	OutputType   string         `json:"output_type,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Timeout      string         `json:"timeout,omitempty"`
	RetryCount   int            `json:"retry_count,omitempty"`
}

// RouteResponse reports the agent that completed a task.
type RouteResponse struct {
	TaskID     string           `json:"task_id"`
	Domain     types.Domain     `json:"domain"`
	Complexity types.Complexity `json:"complexity"`
	Agent      string           `json:"agent"`
	Tier       int              `json:"tier"`
	Confidence float64          `json:"confidence"`
	Attempts   int              `json:"attempts"`
	TokensUsed int              `json:"tokens_used"`
	Output     json.RawMessage  `json:"output,omitempty"`
}

// SelectResponse reports which agent would be chosen, without dispatching.
type SelectResponse struct {
	TaskID     string           `json:"task_id"`
	Domain     types.Domain     `json:"domain"`
	Complexity types.Complexity `json:"complexity"`
	Agent      string           `json:"agent"`
	Tier       int              `json:"tier"`
	Confidence float64          `json:"confidence"`
	Candidates int              `json:"candidates"`
}

// DAGRequest submits a task graph.
type DAGRequest struct {
	Tasks          []TaskRequest `json:"tasks"`
	Timeout        string        `json:"timeout,omitempty"`
	MaxParallelism int           `json:"max_parallelism,omitempty"`
}

// DAGTaskResult is the wire form of one task's outcome.
type DAGTaskResult struct {
	Status     workflow.TaskStatus `json:"status"`
	Agent      string              `json:"agent,omitempty"`
	Attempts   int                 `json:"attempts,omitempty"`
	Output     json.RawMessage     `json:"output,omitempty"`
	Error      string              `json:"error,omitempty"`
	SkippedBy  string              `json:"skipped_by,omitempty"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// DAGResponse carries one entry per submitted task.
type DAGResponse struct {
	Results map[string]DAGTaskResult    `json:"results"`
	Counts  map[workflow.TaskStatus]int `json:"counts"`
}

// NewTaskHandler creates a task handler. dag may be nil, in which case
// HandleExecuteDAG reports an internal error.
func NewTaskHandler(adapter *routing.TaskAdapter, router TaskRouter, dag DAGRunner, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adapter == nil {
		adapter = routing.NewTaskAdapter(nil, nil, logger)
	}
	return &TaskHandler{
		adapter: adapter,
		router:  router,
		dag:     dag,
		logger:  logger.With(zap.String("handler", "tasks")),
	}
}

// HandleRouteTask routes one task and waits for the agent's answer.
// @Router /v1/tasks [post]
func (h *TaskHandler) HandleRouteTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	task, err := h.buildTask(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	result, err := h.router.Route(r.Context(), task, routing.Options{})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, RouteResponse{
		TaskID:     task.ID,
		Domain:     task.Domain,
		Complexity: task.Complexity,
		Agent:      result.Agent,
		Tier:       result.Tier,
		Confidence: result.Confidence,
		Attempts:   result.Attempts,
		TokensUsed: result.TokensUsed,
		Output:     rawOutput(result.Output),
	})
}

// HandleSelectAgent runs selection only.
// @Router /v1/tasks/select [post]
func (h *TaskHandler) HandleSelectAgent(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	task, err := h.buildTask(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	sel, err := h.router.Select(r.Context(), task)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, SelectResponse{
		TaskID:     task.ID,
		Domain:     task.Domain,
		Complexity: task.Complexity,
		Agent:      sel.Agent.Name,
		Tier:       sel.Tier,
		Confidence: sel.Confidence,
		Candidates: sel.Candidates,
	})
}

// HandleExecuteDAG runs a task graph. An invalid or cyclic graph is rejected
// before anything is dispatched; task-level failures are reported per task
// with a 200 response.
// @Router /v1/dags [post]
func (h *TaskHandler) HandleExecuteDAG(w http.ResponseWriter, r *http.Request) {
	if h.dag == nil {
		WriteErrorMessage(w, types.ErrInternalError, "DAG execution is not configured", h.logger)
		return
	}

	var req DAGRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	timeout, err := parseDuration(req.Timeout)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	tasks := make([]*types.Task, 0, len(req.Tasks))
	for _, tr := range req.Tasks {
		task, err := h.buildTask(r.Context(), tr)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
		tasks = append(tasks, task)
	}

	results, err := h.dag.Execute(r.Context(), tasks, workflow.DAGOptions{
		Timeout:        timeout,
		MaxParallelism: req.MaxParallelism,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := DAGResponse{
		Results: make(map[string]DAGTaskResult, len(results)),
		Counts:  make(map[workflow.TaskStatus]int),
	}
	for id, res := range results {
		resp.Counts[res.Status]++
		resp.Results[id] = toDAGTaskResult(res)
	}
	WriteSuccess(w, resp)
}

func (h *TaskHandler) buildTask(ctx context.Context, req TaskRequest) (*types.Task, error) {
	timeout, err := parseDuration(req.Timeout)
	if err != nil {
		return nil, err
	}
	return h.adapter.Build(ctx, routing.Request{
		ID:           req.ID,
		Description:  req.Description,
		Domain:       req.Domain,
		Complexity:   req.Complexity,
		Provider:     req.Provider,
		Context:      req.Context,
		InputType:    req.InputType,
		OutputType:   req.OutputType,
		Dependencies: req.Dependencies,
		Timeout:      timeout,
		RetryCount:   req.RetryCount,
	})
}

func toDAGTaskResult(r *workflow.TaskResult) DAGTaskResult {
	out := DAGTaskResult{
		Status:    r.Status,
		Agent:     r.Agent,
		Attempts:  r.Attempts,
		Output:    rawOutput(r.Output),
		Error:     r.Error,
		SkippedBy: r.SkippedBy,
	}
	if !r.StartedAt.IsZero() {
		out.StartedAt = &r.StartedAt
	}
	if !r.FinishedAt.IsZero() {
		out.FinishedAt = &r.FinishedAt
	}
	return out
}

// rawOutput passes JSON output through and quotes anything else.
func rawOutput(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return b
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, types.NewInvalidRequestError("invalid duration: " + s)
	}
	return d, nil
}
