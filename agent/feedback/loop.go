package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/agent/learning"
	"github.com/mikkihugo/agentrouter/internal/metrics"
	"go.uber.org/zap"
)

// Config holds configuration for the learning feedback loop.
type Config struct {
	// Interval is the time between ticks.
	Interval time.Duration `json:"interval"`

	// InitialDelay postpones the first tick so other subsystems can warm up.
	InitialDelay time.Duration `json:"initial_delay"`

	// MinSamples is the number of executions an agent needs before its
	// learned rate is written back.
	MinSamples int `json:"min_samples"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		InitialDelay: 10 * time.Second,
		MinSamples:   5,
	}
}

// StatsSource is the read side of the outcome learner.
type StatsSource interface {
	GetStats(agent string) (*learning.AgentStats, bool)
	BlendedRate(agent string) (float64, bool)
}

// TickSummary reports what one tick did.
type TickSummary struct {
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Recovered bool          `json:"recovered"`
	Duration  time.Duration `json:"duration"`
}

// Loop periodically writes learned success rates into the directory.
type Loop struct {
	config    Config
	directory discovery.Store
	stats     StatsSource
	metrics   *metrics.Collector
	logger    *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLoop creates a feedback loop.
func NewLoop(config Config, directory discovery.Store, stats StatsSource, collector *metrics.Collector, logger *zap.Logger) *Loop {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MinSamples <= 0 {
		config.MinSamples = defaults.MinSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		config:    config,
		directory: directory,
		stats:     stats,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "feedback_loop")),
		done:      make(chan struct{}),
	}
}

// Start runs the loop in the background until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
	l.logger.Info("feedback loop started",
		zap.Duration("interval", l.config.Interval),
		zap.Duration("initial_delay", l.config.InitialDelay),
		zap.Int("min_samples", l.config.MinSamples),
	)
}

// Stop signals the loop to exit and waits for an in-flight tick to finish.
func (l *Loop) Stop() {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
	l.logger.Info("feedback loop stopped")
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	initial := time.NewTimer(l.config.InitialDelay)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		return
	case <-l.done:
		return
	case <-initial.C:
		l.Tick(ctx)
	}

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one feedback pass. A failure for one agent never stops the
// others, and a panic anywhere in the pass is recovered and reported in
// the summary.
func (l *Loop) Tick(ctx context.Context) (summary TickSummary) {
	start := time.Now()
	defer func() {
		summary.Duration = time.Since(start)
		result := "ok"
		if r := recover(); r != nil {
			summary.Recovered = true
			result = "recovered"
			l.logger.Warn("feedback tick panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
		l.metrics.RecordFeedbackTick(result, summary.Updated, summary.Skipped, summary.Failed)
		l.logger.Info("feedback tick completed",
			zap.Int("updated", summary.Updated),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
			zap.Duration("duration", summary.Duration),
		)
	}()

	for _, agent := range l.directory.ListAll(ctx) {
		if ctx.Err() != nil {
			return summary
		}
		switch err := l.syncAgent(ctx, agent.Name); {
		case errors.Is(err, errInsufficientSamples):
			summary.Skipped++
		case err != nil:
			summary.Failed++
			l.logger.Warn("failed to update agent success rate",
				zap.String("agent", agent.Name),
				zap.Error(err),
			)
		default:
			summary.Updated++
		}
	}
	return summary
}

var errInsufficientSamples = errors.New("insufficient samples")

func (l *Loop) syncAgent(ctx context.Context, agent string) error {
	stats, ok := l.stats.GetStats(agent)
	if !ok || stats.TotalExecutions < l.config.MinSamples {
		return errInsufficientSamples
	}
	rate, ok := l.stats.BlendedRate(agent)
	if !ok {
		return errInsufficientSamples
	}
	if err := l.directory.UpdateSuccessRate(ctx, agent, rate); err != nil {
		return fmt.Errorf("update success rate: %w", err)
	}
	l.logger.Debug("agent success rate synced",
		zap.String("agent", agent),
		zap.Int("executions", stats.TotalExecutions),
		zap.Float64("rate", rate),
	)
	return nil
}
