package learning

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mikkihugo/agentrouter/types"
	"go.uber.org/zap"
)

// Config holds configuration for the outcome learner.
type Config struct {
	// ShardCount is the number of lock shards agents are spread over.
	ShardCount int `json:"shard_count"`

	// RecentWindow bounds the per-agent history of raw outcomes kept in memory.
	RecentWindow int `json:"recent_window"`

	// MinDomainSamples is the number of executions a domain needs before it
	// takes part in the blended rate.
	MinDomainSamples int `json:"min_domain_samples"`

	// OverallWeight is the weight of the overall ratio in the blended rate.
	// The best qualifying domain ratio gets 1-OverallWeight.
	OverallWeight float64 `json:"overall_weight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShardCount:       32,
		RecentWindow:     200,
		MinDomainSamples: 3,
		OverallWeight:    0.6,
	}
}

// AgentLookup reports whether an agent is known. The capability directory
// satisfies it.
type AgentLookup interface {
	Exists(name string) bool
}

// Learner records execution outcomes and keeps per-agent aggregates.
//
// Agents are hashed onto a fixed set of shards; each shard owns a mutex, so
// concurrent records for the same agent serialize while different agents
// rarely contend.
type Learner struct {
	config  Config
	shards  []*shard
	lookup  AgentLookup
	journal Journal
	logger  *zap.Logger
}

type shard struct {
	mu     sync.Mutex
	agents map[string]*agentState
}

type agentState struct {
	stats  *AgentStats
	recent []types.ExecutionOutcome
	next   int
	full   bool
}

// Option configures a Learner.
type Option func(*Learner)

// WithLookup enables agent existence checks on Record.
func WithLookup(lookup AgentLookup) Option {
	return func(l *Learner) { l.lookup = lookup }
}

// WithJournal appends every recorded outcome to a durable journal.
func WithJournal(j Journal) Option {
	return func(l *Learner) { l.journal = j }
}

// NewLearner creates an outcome learner.
func NewLearner(config Config, logger *zap.Logger, opts ...Option) *Learner {
	defaults := DefaultConfig()
	if config.ShardCount <= 0 {
		config.ShardCount = defaults.ShardCount
	}
	if config.RecentWindow <= 0 {
		config.RecentWindow = defaults.RecentWindow
	}
	if config.MinDomainSamples <= 0 {
		config.MinDomainSamples = defaults.MinDomainSamples
	}
	if config.OverallWeight <= 0 || config.OverallWeight > 1 {
		config.OverallWeight = defaults.OverallWeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Learner{
		config: config,
		shards: make([]*shard, config.ShardCount),
		logger: logger.With(zap.String("component", "outcome_learner")),
	}
	for i := range l.shards {
		l.shards[i] = &shard{agents: make(map[string]*agentState)}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Learner) shardFor(agent string) *shard {
	return l.shards[xxhash.Sum64String(agent)%uint64(len(l.shards))]
}

// Record appends an outcome and updates the agent's aggregate.
func (l *Learner) Record(ctx context.Context, outcome types.ExecutionOutcome) error {
	if outcome.AgentName == "" {
		return types.NewInvalidRequestError("outcome has no agent name")
	}
	if l.lookup != nil && !l.lookup.Exists(outcome.AgentName) {
		return types.NewNotFoundError(outcome.AgentName)
	}

	l.apply(outcome)

	if l.journal != nil {
		if err := l.journal.Append(ctx, outcome); err != nil {
			l.logger.Warn("failed to journal outcome",
				zap.String("agent", outcome.AgentName),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (l *Learner) apply(outcome types.ExecutionOutcome) {
	s := l.shardFor(outcome.AgentName)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.agents[outcome.AgentName]
	if !ok {
		st = &agentState{
			stats:  newAgentStats(outcome.AgentName),
			recent: make([]types.ExecutionOutcome, l.config.RecentWindow),
		}
		s.agents[outcome.AgentName] = st
	}
	st.stats.apply(outcome)
	st.recent[st.next] = outcome
	st.next = (st.next + 1) % len(st.recent)
	if st.next == 0 {
		st.full = true
	}
}

// GetStats returns a copy of the agent's aggregate.
func (l *Learner) GetStats(agent string) (*AgentStats, bool) {
	s := l.shardFor(agent)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.agents[agent]
	if !ok {
		return nil, false
	}
	return st.stats.clone(), true
}

// ListStats returns copies of every agent's aggregate, sorted by agent name.
func (l *Learner) ListStats() []*AgentStats {
	var result []*AgentStats
	for _, s := range l.shards {
		s.mu.Lock()
		for _, st := range s.agents {
			result = append(result, st.stats.clone())
		}
		s.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AgentName < result[j].AgentName })
	return result
}

// Recent returns up to n of the agent's most recent outcomes, oldest first.
func (l *Learner) Recent(agent string, n int) []types.ExecutionOutcome {
	s := l.shardFor(agent)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.agents[agent]
	if !ok || n <= 0 {
		return nil
	}

	var ordered []types.ExecutionOutcome
	if st.full {
		ordered = append(ordered, st.recent[st.next:]...)
	}
	ordered = append(ordered, st.recent[:st.next]...)
	if len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// DomainRate returns the agent's success ratio within one domain.
func (l *Learner) DomainRate(agent string, domain types.Domain) (float64, bool) {
	stats, ok := l.GetStats(agent)
	if !ok {
		return 0, false
	}
	ds, ok := stats.DomainPerformance[domain]
	if !ok || ds.Executions == 0 {
		return 0, false
	}
	return ds.SuccessRate, true
}

// BlendedRate combines the agent's overall ratio with its best domain ratio.
// Only domains with at least MinDomainSamples executions qualify; when none
// does, the overall ratio is returned unchanged.
func (l *Learner) BlendedRate(agent string) (float64, bool) {
	stats, ok := l.GetStats(agent)
	if !ok || stats.TotalExecutions == 0 {
		return 0, false
	}

	best := -1.0
	for _, ds := range stats.DomainPerformance {
		if ds.Executions >= l.config.MinDomainSamples && ds.SuccessRate > best {
			best = ds.SuccessRate
		}
	}
	if best < 0 {
		return types.ClampRate(stats.SuccessRate), true
	}

	w := l.config.OverallWeight
	return types.ClampRate(w*stats.SuccessRate + (1-w)*best), true
}

// Reset drops every aggregate. It mirrors what happens on process restart
// when no journal is configured.
func (l *Learner) Reset() {
	for _, s := range l.shards {
		s.mu.Lock()
		s.agents = make(map[string]*agentState)
		s.mu.Unlock()
	}
	l.logger.Info("outcome learner reset")
}

// Warm rebuilds aggregates from the journal. Outcomes are applied in journal
// order and are not re-appended.
func (l *Learner) Warm(ctx context.Context, since time.Time) (int, error) {
	if l.journal == nil {
		return 0, nil
	}
	outcomes, err := l.journal.Load(ctx, since)
	if err != nil {
		return 0, err
	}
	for _, o := range outcomes {
		l.apply(o)
	}
	l.logger.Info("outcome learner warmed from journal",
		zap.Int("outcomes", len(outcomes)),
		zap.Time("since", since),
	)
	return len(outcomes), nil
}
