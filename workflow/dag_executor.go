package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mikkihugo/agentrouter/agent/routing"
	"github.com/mikkihugo/agentrouter/internal/metrics"
	"github.com/mikkihugo/agentrouter/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const instrumentationName = "github.com/mikkihugo/agentrouter/workflow"

// TaskStatus is the terminal state of a task in a DAG execution.
type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusRunning TaskStatus = "running"
	StatusOK      TaskStatus = "ok"
	StatusError   TaskStatus = "error"
	StatusSkipped TaskStatus = "skipped"
	StatusTimeout TaskStatus = "timeout"
)

// IsTerminal reports whether s is a final state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusOK, StatusError, StatusSkipped, StatusTimeout:
		return true
	}
	return false
}

// TaskResult is the per-task entry of a DAG execution result.
type TaskResult struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	Output     []byte     `json:"output,omitempty"`
	Agent      string     `json:"agent,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	Err        error      `json:"-"`
	Error      string     `json:"error,omitempty"`
	SkippedBy  string     `json:"skipped_by,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// TaskRouter routes a single task. *routing.Router satisfies it.
type TaskRouter interface {
	Route(ctx context.Context, task *types.Task, opts routing.Options) (*routing.Result, error)
}

// DAGOptions tunes one execution.
type DAGOptions struct {
	// Timeout bounds the whole execution. Zero uses the executor default.
	Timeout time.Duration
	// MaxParallelism bounds concurrently dispatched tasks. Zero uses the
	// executor default.
	MaxParallelism int
	// RouteOptions are the per-task defaults; a task's own Timeout and
	// RetryCount override them.
	RouteOptions routing.Options
}

// DAGConfig holds executor defaults.
type DAGConfig struct {
	Timeout        time.Duration `json:"timeout"`
	MaxParallelism int           `json:"max_parallelism"`
}

// DefaultDAGConfig returns a DAGConfig with sensible defaults.
func DefaultDAGConfig() DAGConfig {
	return DAGConfig{
		Timeout:        30 * time.Minute,
		MaxParallelism: 4,
	}
}

// DAGExecutor executes dependent tasks through the task router.
type DAGExecutor struct {
	router  TaskRouter
	config  DAGConfig
	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewDAGExecutor creates a DAG executor.
func NewDAGExecutor(router TaskRouter, config DAGConfig, collector *metrics.Collector, logger *zap.Logger) *DAGExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultDAGConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxParallelism <= 0 {
		config.MaxParallelism = defaults.MaxParallelism
	}
	return &DAGExecutor{
		router:  router,
		config:  config,
		metrics: collector,
		tracer:  otel.Tracer(instrumentationName),
		logger:  logger.With(zap.String("component", "dag_executor")),
	}
}

type completion struct {
	id       string
	result   *routing.Result
	err      error
	started  time.Time
	finished time.Time
	// notStarted is set when the task never acquired a slot.
	notStarted bool
}

// Execute runs tasks respecting their dependencies. It fails only when the
// task set is invalid or cyclic, in which case no task is dispatched. Task
// failures, skips and the overall deadline are reported per task in the
// returned map.
func (e *DAGExecutor) Execute(ctx context.Context, tasks []*types.Task, opts DAGOptions) (map[string]*TaskResult, error) {
	graph, err := BuildGraph(tasks)
	if err != nil {
		reason := "invalid"
		if types.IsErrorCode(err, types.ErrCyclicDependency) {
			reason = "cycle"
		}
		e.metrics.RecordDAGRejected(reason)
		e.logger.Warn("DAG rejected", zap.String("reason", reason), zap.Error(err))
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.config.Timeout
	}
	parallelism := opts.MaxParallelism
	if parallelism <= 0 {
		parallelism = e.config.MaxParallelism
	}

	runID := uuid.NewString()
	ctx = types.WithRunID(ctx, runID)
	ctx, span := e.tracer.Start(ctx, "dag.execute",
		trace.WithAttributes(
			attribute.String("dag.run_id", runID),
			attribute.Int("dag.tasks", graph.Len()),
			attribute.Int("dag.max_parallelism", parallelism),
		))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Info("starting DAG execution",
		zap.String("run_id", runID),
		zap.Int("tasks", graph.Len()),
		zap.Int("waves", len(graph.Waves())),
		zap.Int("max_parallelism", parallelism),
		zap.Duration("timeout", timeout),
	)

	start := time.Now()
	results := e.run(ctx, runCtx, graph, parallelism, opts.RouteOptions)
	e.metrics.RecordDAGRun(time.Since(start))

	counts := make(map[TaskStatus]int)
	for _, r := range results {
		counts[r.Status]++
		e.metrics.RecordDAGTask(string(r.Status))
	}
	span.SetAttributes(
		attribute.Int("dag.ok", counts[StatusOK]),
		attribute.Int("dag.failed", counts[StatusError]),
		attribute.Int("dag.skipped", counts[StatusSkipped]),
		attribute.Int("dag.timed_out", counts[StatusTimeout]),
	)
	e.logger.Info("DAG execution completed",
		zap.String("run_id", runID),
		zap.Int("ok", counts[StatusOK]),
		zap.Int("failed", counts[StatusError]),
		zap.Int("skipped", counts[StatusSkipped]),
		zap.Int("timed_out", counts[StatusTimeout]),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// run is the scheduling event loop. Only this goroutine touches results and
// remaining; workers report back through completions.
func (e *DAGExecutor) run(ctx, runCtx context.Context, g *TaskGraph, parallelism int, routeOpts routing.Options) map[string]*TaskResult {
	results := make(map[string]*TaskResult, g.Len())
	remaining := make(map[string]int, g.Len())
	for _, id := range g.order {
		results[id] = &TaskResult{TaskID: id, Status: StatusPending}
		remaining[id] = g.inDegree[id]
	}

	sem := semaphore.NewWeighted(int64(parallelism))
	// Buffered for every task so workers never block after the loop returns.
	completions := make(chan completion, g.Len())
	terminal := 0

	dispatch := func(id string) {
		results[id].Status = StatusRunning
		task := g.tasks[id]
		opts := routeOpts
		if task.Timeout > 0 {
			opts.Timeout = task.Timeout
		}
		if task.RetryCount > 0 {
			opts.RetryCount = task.RetryCount
		}

		go func() {
			if err := sem.Acquire(runCtx, 1); err != nil {
				completions <- completion{id: id, err: err, notStarted: true}
				return
			}
			defer sem.Release(1)

			c := completion{id: id, started: time.Now()}
			c.result, c.err = e.router.Route(runCtx, task, opts)
			c.finished = time.Now()
			completions <- c
		}()
	}

	var skip func(id, cause string)
	skip = func(id, cause string) {
		for _, dep := range g.Dependents(id) {
			r := results[dep]
			if r.Status != StatusPending {
				continue
			}
			r.Status = StatusSkipped
			r.SkippedBy = cause
			terminal++
			skip(dep, cause)
		}
	}

	for _, id := range g.order {
		if remaining[id] == 0 {
			dispatch(id)
		}
	}

	for terminal < g.Len() {
		select {
		case c := <-completions:
			r := results[c.id]
			r.StartedAt, r.FinishedAt = c.started, c.finished
			terminal++

			switch {
			case c.err == nil:
				r.Status = StatusOK
				r.Output = c.result.Output
				r.Agent = c.result.Agent
				r.Attempts = c.result.Attempts
				for _, dep := range g.Dependents(c.id) {
					remaining[dep]--
					if remaining[dep] == 0 && results[dep].Status == StatusPending {
						dispatch(dep)
					}
				}
			case c.notStarted || runCtx.Err() != nil:
				// The overall deadline is reported by the timeout branch.
				r.Status = StatusTimeout
				r.Err = c.err
				r.Error = c.err.Error()
			default:
				r.Status = StatusError
				r.Err = c.err
				r.Error = c.err.Error()
				e.logger.Warn("DAG task failed",
					zap.String("task_id", c.id),
					zap.Error(c.err),
				)
				skip(c.id, c.id)
			}

		case <-runCtx.Done():
			cause := runCtx.Err()
			if errors.Is(ctx.Err(), context.Canceled) {
				cause = ctx.Err()
			}
			for _, id := range g.order {
				r := results[id]
				if !r.Status.IsTerminal() {
					r.Status = StatusTimeout
					r.Err = types.NewTimeoutError("DAG deadline reached").WithCause(cause)
					r.Error = r.Err.Error()
				}
			}
			e.logger.Warn("DAG deadline reached", zap.Error(cause))
			return results
		}
	}
	return results
}
