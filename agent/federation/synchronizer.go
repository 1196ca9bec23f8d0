package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/agent/learning"
	"github.com/mikkihugo/agentrouter/internal/metrics"
	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// Config configures the synchronizer.
type Config struct {
	// InstanceID identifies this process to its peers. Empty means a random id.
	InstanceID string `yaml:"instance_id" json:"instance_id"`

	PushInterval time.Duration `yaml:"push_interval" json:"push_interval"`
	PullInterval time.Duration `yaml:"pull_interval" json:"pull_interval"`

	// BatchSize bounds how many messages one pull drains.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// PullTimeout bounds a single poll of the transport.
	PullTimeout time.Duration `yaml:"pull_timeout" json:"pull_timeout"`

	// SyncTimeout bounds SyncOnce as a whole.
	SyncTimeout time.Duration `yaml:"sync_timeout" json:"sync_timeout"`

	// DedupeRetention is how long applied sample keys are remembered.
	DedupeRetention time.Duration `yaml:"dedupe_retention" json:"dedupe_retention"`
}

// DefaultConfig returns the default synchronizer configuration.
func DefaultConfig() Config {
	return Config{
		PushInterval:    time.Minute,
		PullInterval:    30 * time.Second,
		BatchSize:       10,
		PullTimeout:     2 * time.Second,
		SyncTimeout:     10 * time.Second,
		DedupeRetention: 2 * recencyHorizon,
	}
}

// StatsSource supplies sample sizes for pushed capabilities.
type StatsSource interface {
	GetStats(agent string) (*learning.AgentStats, bool)
}

// MergeSummary reports what one pull did.
type MergeSummary struct {
	Messages   int `json:"messages"`
	Samples    int `json:"samples"`
	Merged     int `json:"merged"`
	Unknown    int `json:"unknown"`
	Duplicate  int `json:"duplicate"`
	Self       int `json:"self"`
	Invalid    int `json:"invalid"`
	Superseded int `json:"superseded"`
}

// SyncResult is returned by SyncOnce.
type SyncResult struct {
	Pushed bool         `json:"pushed"`
	Merge  MergeSummary `json:"merge"`
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithStats sets the source used for pushed sample sizes.
func WithStats(stats StatsSource) Option {
	return func(s *Synchronizer) { s.stats = stats }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Synchronizer) { s.metrics = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// Synchronizer exchanges capability snapshots with peer instances and merges
// their success rates into the local directory.
type Synchronizer struct {
	config    Config
	directory discovery.Store
	transport Transport
	stats     StatsSource
	metrics   *metrics.Collector
	now       func() time.Time
	logger    *zap.Logger

	appliedMu sync.Mutex
	applied   map[string]time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(config Config, directory discovery.Store, transport Transport, logger *zap.Logger, opts ...Option) *Synchronizer {
	defaults := DefaultConfig()
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.PushInterval <= 0 {
		config.PushInterval = defaults.PushInterval
	}
	if config.PullInterval <= 0 {
		config.PullInterval = defaults.PullInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PullTimeout <= 0 {
		config.PullTimeout = defaults.PullTimeout
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = defaults.SyncTimeout
	}
	if config.DedupeRetention <= 0 {
		config.DedupeRetention = defaults.DedupeRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Synchronizer{
		config:    config,
		directory: directory,
		transport: transport,
		now:       time.Now,
		logger: logger.With(
			zap.String("component", "federation"),
			zap.String("instance_id", config.InstanceID),
		),
		applied: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InstanceID returns this instance's id.
func (s *Synchronizer) InstanceID() string {
	return s.config.InstanceID
}

// Push publishes a snapshot of every local capability.
func (s *Synchronizer) Push(ctx context.Context) error {
	caps := s.directory.ListAll(ctx)
	env := NewEnvelope(s.config.InstanceID, s.now(), caps, s.sampleSize)

	payload, err := json.Marshal(env)
	if err != nil {
		s.metrics.RecordFederationPush("error")
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.transport.Publish(ctx, payload); err != nil {
		s.metrics.RecordFederationPush("error")
		return types.NewError(types.ErrTransport, "publish capability snapshot").WithCause(err).WithRetryable(true)
	}

	s.metrics.RecordFederationPush("ok")
	s.logger.Debug("capability snapshot published", zap.Int("capabilities", len(env.Capabilities)))
	return nil
}

func (s *Synchronizer) sampleSize(agent string) int {
	if s.stats == nil {
		return 0
	}
	stats, ok := s.stats.GetStats(agent)
	if !ok {
		return 0
	}
	return stats.TotalExecutions
}

// PullAndMerge drains up to BatchSize messages and merges the samples they
// carry. Transport and decoding failures are logged and never returned.
func (s *Synchronizer) PullAndMerge(ctx context.Context) (summary MergeSummary) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("federation merge panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	pollCtx, cancel := context.WithTimeout(ctx, s.config.PullTimeout)
	messages, err := s.transport.Poll(pollCtx, s.config.BatchSize)
	cancel()
	if err != nil {
		s.logger.Info("federation poll failed", zap.Error(err))
		return summary
	}
	summary.Messages = len(messages)

	var samples []CrossInstanceSample
	for _, msg := range messages {
		decoded, err := DecodeMessage(msg)
		if err != nil {
			summary.Invalid++
			s.metrics.RecordFederationSample("invalid")
			s.logger.Info("dropping undecodable federation message", zap.Error(err))
			continue
		}
		samples = append(samples, decoded...)
	}
	summary.Samples = len(samples)

	latest, order := s.lastWriteWins(samples, &summary)
	now := s.now()
	for _, agent := range order {
		s.mergeSample(ctx, latest[agent], now, &summary)
	}
	s.pruneApplied(now)

	if summary.Messages > 0 {
		s.logger.Info("federation merge completed",
			zap.Int("messages", summary.Messages),
			zap.Int("merged", summary.Merged),
			zap.Int("unknown", summary.Unknown),
			zap.Int("duplicate", summary.Duplicate),
		)
	}
	return summary
}

// lastWriteWins keeps the last sample per agent, skipping samples from this
// instance and samples without an agent name.
func (s *Synchronizer) lastWriteWins(samples []CrossInstanceSample, summary *MergeSummary) (map[string]CrossInstanceSample, []string) {
	latest := make(map[string]CrossInstanceSample, len(samples))
	var order []string
	for _, sample := range samples {
		switch {
		case sample.InstanceID == s.config.InstanceID:
			summary.Self++
			s.metrics.RecordFederationSample("self")
			continue
		case sample.AgentName == "":
			summary.Invalid++
			s.metrics.RecordFederationSample("invalid")
			continue
		}
		if _, seen := latest[sample.AgentName]; seen {
			summary.Superseded++
		} else {
			order = append(order, sample.AgentName)
		}
		latest[sample.AgentName] = sample
	}
	return latest, order
}

func (s *Synchronizer) mergeSample(ctx context.Context, sample CrossInstanceSample, now time.Time, summary *MergeSummary) {
	key := sampleKey(sample)
	if s.wasApplied(key) {
		summary.Duplicate++
		s.metrics.RecordFederationSample("duplicate")
		return
	}

	confidence := Confidence(sample, now)
	blended, err := s.directory.MergeSuccessRate(ctx, sample.AgentName, func(local float64) float64 {
		return BlendRate(local, sample.SuccessRate, confidence)
	})
	if err != nil {
		if types.IsErrorCode(err, types.ErrNotFound) {
			summary.Unknown++
			s.metrics.RecordFederationSample("unknown_agent")
			s.logger.Debug("ignoring sample for unknown agent",
				zap.String("agent", sample.AgentName),
				zap.String("from", sample.InstanceID),
			)
			return
		}
		s.logger.Info("failed to merge federation sample", zap.String("agent", sample.AgentName), zap.Error(err))
		return
	}

	s.markApplied(key, now)
	summary.Merged++
	s.metrics.RecordFederationSample("merged")
	s.logger.Debug("merged remote success rate",
		zap.String("agent", sample.AgentName),
		zap.String("from", sample.InstanceID),
		zap.Float64("remote_rate", sample.SuccessRate),
		zap.Float64("confidence", confidence),
		zap.Float64("blended_rate", blended),
	)
}

// sampleKey identifies a peer observation. Rate and sample size are part of
// the key so samples without updated_at, or two updates within the same
// timestamp, are still told apart.
func sampleKey(sample CrossInstanceSample) string {
	return fmt.Sprintf("%s|%s|%s|%g|%d",
		sample.InstanceID, sample.AgentName, sample.UpdatedAt, sample.SuccessRate, sample.SampleSize)
}

func (s *Synchronizer) wasApplied(key string) bool {
	s.appliedMu.Lock()
	defer s.appliedMu.Unlock()
	_, ok := s.applied[key]
	return ok
}

func (s *Synchronizer) markApplied(key string, at time.Time) {
	s.appliedMu.Lock()
	s.applied[key] = at
	s.appliedMu.Unlock()
}

func (s *Synchronizer) pruneApplied(now time.Time) {
	cutoff := now.Add(-s.config.DedupeRetention)
	s.appliedMu.Lock()
	for k, at := range s.applied {
		if at.Before(cutoff) {
			delete(s.applied, k)
		}
	}
	s.appliedMu.Unlock()
}

// SyncOnce pushes a snapshot and then pulls and merges one batch, all within
// SyncTimeout. A failed push is logged and does not prevent the pull.
func (s *Synchronizer) SyncOnce(ctx context.Context) SyncResult {
	ctx, cancel := context.WithTimeout(ctx, s.config.SyncTimeout)
	defer cancel()

	var result SyncResult
	if err := s.Push(ctx); err != nil {
		s.logger.Info("federation push failed", zap.Error(err))
	} else {
		result.Pushed = true
	}
	result.Merge = s.PullAndMerge(ctx)
	return result
}

// Start runs push and pull on independent tickers until ctx is cancelled or
// Stop is called.
func (s *Synchronizer) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, s.config.PushInterval, func(ctx context.Context) {
		pushCtx, cancel := context.WithTimeout(ctx, s.config.SyncTimeout)
		defer cancel()
		if err := s.Push(pushCtx); err != nil {
			s.logger.Info("federation push failed", zap.Error(err))
		}
	})
	go s.loop(ctx, s.config.PullInterval, func(ctx context.Context) {
		s.PullAndMerge(ctx)
	})
	s.logger.Info("federation synchronizer started",
		zap.Duration("push_interval", s.config.PushInterval),
		zap.Duration("pull_interval", s.config.PullInterval),
		zap.Int("batch_size", s.config.BatchSize),
	)
}

func (s *Synchronizer) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.safeTick(ctx, tick)
		}
	}
}

func (s *Synchronizer) safeTick(ctx context.Context, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("federation tick panicked", zap.Any("panic", r))
		}
	}()
	tick(ctx)
}

// Stop stops both loops and waits for them to exit.
func (s *Synchronizer) Stop() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	s.logger.Info("federation synchronizer stopped")
}
