package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/internal/metrics"
	"github.com/mikkihugo/agentrouter/internal/retry"
	"github.com/mikkihugo/agentrouter/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/mikkihugo/agentrouter/agent/routing"

// OutcomeRecorder receives one outcome per dispatch attempt. The outcome
// learner satisfies it.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome types.ExecutionOutcome) error
}

// Config holds router defaults applied when a call does not override them.
type Config struct {
	DefaultTimeout    time.Duration      `json:"default_timeout"`
	DefaultRetryCount int                `json:"default_retry_count"`
	Backoff           *retry.RetryPolicy `json:"backoff"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:    2 * time.Minute,
		DefaultRetryCount: 2,
		Backoff:           retry.DefaultRetryPolicy(),
	}
}

// Options tunes a single Route call. Zero values fall back to, in order,
// the task's own Timeout/RetryCount and the router defaults. A negative
// RetryCount disables retries.
type Options struct {
	Timeout    time.Duration
	RetryCount int
}

// Result is a successful routing outcome.
type Result struct {
	Output     []byte
	Agent      string
	Tier       int
	Confidence float64
	Attempts   int
	TokensUsed int
}

// Router selects the best agent for a task and dispatches to it.
type Router struct {
	directory discovery.Store
	executor  AgentExecutor
	recorder  OutcomeRecorder
	config    Config

	metrics *metrics.Collector
	tracer  trace.Tracer
	active  metric.Int64UpDownCounter
	logger  *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics attaches a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Router) { r.metrics = c }
}

// WithRand replaces the tie-break random source. Intended for tests.
func WithRand(rng *rand.Rand) Option {
	return func(r *Router) { r.rng = rng }
}

// NewRouter creates a task router. recorder may be nil.
func NewRouter(directory discovery.Store, executor AgentExecutor, recorder OutcomeRecorder, config Config, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}
	if config.DefaultRetryCount < 0 {
		config.DefaultRetryCount = 0
	}
	if config.Backoff == nil {
		config.Backoff = defaults.Backoff
	}

	r := &Router{
		directory: directory,
		executor:  executor,
		recorder:  recorder,
		config:    config,
		tracer:    otel.Tracer(instrumentationName),
		logger:    logger.With(zap.String("component", "task_router")),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	active, err := otel.Meter(instrumentationName).Int64UpDownCounter("router.dispatch.active",
		metric.WithDescription("Dispatches currently waiting on an agent"),
		metric.WithUnit("{dispatch}"))
	if err != nil {
		r.logger.Warn("failed to create dispatch gauge", zap.Error(err))
		active = noop.Int64UpDownCounter{}
	}
	r.active = active

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select runs the fallback cascade and scoring without dispatching.
func (r *Router) Select(ctx context.Context, task *types.Task) (*Selection, error) {
	if task == nil {
		return nil, types.NewInvalidRequestError("task is nil")
	}

	cands, tier := candidates(r.directory.ListAll(ctx), task)
	if len(cands) == 0 {
		r.metrics.RecordNoAgents(string(task.Domain))
		return nil, types.NewError(types.ErrNoAgentsFound,
			fmt.Sprintf("no available agent for domain %s", task.Domain))
	}

	top, best := topScorers(cands)
	r.mu.Lock()
	chosen := top[r.rng.Intn(len(top))]
	r.mu.Unlock()

	r.metrics.RecordSelectionTier(tier)
	return &Selection{
		Agent:      chosen,
		Tier:       tier,
		Confidence: best,
		Candidates: len(cands),
	}, nil
}

// Route selects an agent for task and dispatches to it, retrying with a
// fresh selection after each failure. Every attempt records exactly one
// outcome. NoAgentsFound is returned immediately and never retried.
func (r *Router) Route(ctx context.Context, task *types.Task, opts Options) (*Result, error) {
	if task == nil {
		return nil, types.NewInvalidRequestError("task is nil")
	}

	timeout, retries := r.resolveOptions(task, opts)

	ctx, span := r.tracer.Start(ctx, "router.route",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.domain", string(task.Domain)),
			attribute.String("task.complexity", string(task.Complexity)),
			attribute.Int("router.retry_count", retries),
		))
	defer span.End()

	policy := r.config.Backoff.WithMaxRetries(retries)
	policy.ShouldRetry = func(err error) bool {
		return !types.IsErrorCode(err, types.ErrNoAgentsFound) && !types.IsErrorCode(err, types.ErrInvalidRequest)
	}
	retryer := retry.NewBackoffRetryer(policy, r.logger)

	result, err := retry.DoWithResultTyped[*Result](retryer, ctx, func(attempt int) (*Result, error) {
		return r.attempt(ctx, task, timeout, attempt+1)
	})
	if err != nil {
		routeErr := unwrapRouteError(err)
		if ctx.Err() != nil && !types.IsErrorCode(routeErr, types.ErrTimeout) {
			routeErr = types.NewTimeoutError("routing deadline reached").WithCause(routeErr)
		}
		span.RecordError(routeErr)
		span.SetStatus(codes.Error, routeErr.Error())
		return nil, routeErr
	}

	span.SetAttributes(
		attribute.String("router.agent", result.Agent),
		attribute.Int("router.tier", result.Tier),
		attribute.Int("router.attempts", result.Attempts),
	)
	return result, nil
}

func (r *Router) resolveOptions(task *types.Task, opts Options) (time.Duration, int) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = task.Timeout
	}
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}

	retries := opts.RetryCount
	if retries < 0 {
		return timeout, 0
	}
	if retries == 0 {
		retries = task.RetryCount
	}
	if retries <= 0 {
		retries = r.config.DefaultRetryCount
	}
	return timeout, retries
}

// attempt performs one selection plus dispatch.
func (r *Router) attempt(ctx context.Context, task *types.Task, timeout time.Duration, n int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewTimeoutError("routing deadline reached before dispatch").WithCause(err)
	}

	sel, err := r.Select(ctx, task)
	if err != nil {
		r.logger.Warn("no agent available",
			zap.String("task_id", task.ID),
			zap.String("domain", string(task.Domain)),
			zap.Int("attempt", n),
		)
		return nil, err
	}
	agent := sel.Agent.Name

	fields := []zap.Field{
		zap.String("task_id", task.ID),
		zap.String("agent", agent),
		zap.String("domain", string(task.Domain)),
		zap.Int("tier", sel.Tier),
		zap.Float64("confidence", sel.Confidence),
		zap.Int("candidates", sel.Candidates),
		zap.Int("attempt", n),
	}
	if runID, ok := types.RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", runID))
	}
	if traceID, ok := types.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if caller, ok := types.Caller(ctx); ok {
		fields = append(fields, zap.String("caller", caller))
	}
	r.logger.Info("dispatching task", fields...)

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.active.Add(ctx, 1)
	start := time.Now()
	out, execErr := r.executor.Execute(attemptCtx, agent, task)
	duration := time.Since(start)
	r.active.Add(ctx, -1)

	if execErr == nil && out == nil {
		out = &ExecutionResult{}
	}

	outcome := types.ExecutionOutcome{
		AgentName: agent,
		Domain:    task.Domain,
		Success:   execErr == nil,
		Duration:  duration,
		Timestamp: time.Now(),
		TaskID:    task.ID,
	}
	if out != nil {
		outcome.TokensUsed = out.TokensUsed
	}

	var routeErr error
	status := "ok"
	if execErr != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(execErr, context.DeadlineExceeded) {
			status = "timeout"
			routeErr = types.NewTimeoutError(fmt.Sprintf("agent %s exceeded %s", agent, timeout)).
				WithAgent(agent).
				WithCause(execErr)
		} else {
			status = "error"
			routeErr = types.NewAgentError(agent, execErr)
		}
		outcome.Error = execErr.Error()
	}

	r.metrics.RecordDispatch(agent, string(task.Domain), status, duration)
	r.recordOutcome(ctx, outcome)

	if routeErr != nil {
		r.logger.Warn("dispatch failed",
			zap.String("task_id", task.ID),
			zap.String("agent", agent),
			zap.String("status", status),
			zap.Int("attempt", n),
			zap.Duration("duration", duration),
			zap.Error(execErr),
		)
		return nil, routeErr
	}

	return &Result{
		Output:     out.Output,
		Agent:      agent,
		Tier:       sel.Tier,
		Confidence: sel.Confidence,
		Attempts:   n,
		TokensUsed: out.TokensUsed,
	}, nil
}

func (r *Router) recordOutcome(ctx context.Context, outcome types.ExecutionOutcome) {
	if r.recorder == nil {
		return
	}
	// A cancelled caller must not drop the outcome of an attempt that ran.
	if err := r.recorder.Record(context.WithoutCancel(ctx), outcome); err != nil {
		r.logger.Warn("failed to record outcome",
			zap.String("agent", outcome.AgentName),
			zap.Error(err),
		)
	}
}

// unwrapRouteError returns the typed error carried by err, dropping the
// retry wrapper so callers see one of the routing error codes.
func unwrapRouteError(err error) error {
	var te *types.Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.NewTimeoutError("routing cancelled").WithCause(err)
	}
	return types.NewError(types.ErrInternalError, "routing failed").WithCause(err)
}
