package feedback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/agent/learning"
	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T, names ...string) (*discovery.Directory, *learning.Learner) {
	t.Helper()
	dir := discovery.NewDirectory(nil)
	for _, name := range names {
		require.NoError(t, dir.Register(context.Background(), &discovery.AgentCapability{
			Name:        name,
			Domains:     []types.Domain{types.DomainSecurity},
			SuccessRate: 0.5,
			Available:   true,
		}))
	}
	return dir, learning.NewLearner(learning.DefaultConfig(), nil, learning.WithLookup(dir))
}

func record(t *testing.T, l *learning.Learner, agent string, domain types.Domain, success bool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Record(context.Background(), types.ExecutionOutcome{
			AgentName: agent, Domain: domain, Success: success, Timestamp: time.Now(),
		}))
	}
}

func TestLoop_TickUpdatesAgentsWithEnoughSamples(t *testing.T) {
	dir, learner := setup(t, "A2", "newbie")
	record(t, learner, "A2", types.DomainSecurity, true, 5)
	record(t, learner, "newbie", types.DomainSecurity, true, 2)

	loop := NewLoop(Config{MinSamples: 5}, dir, learner, nil, zap.NewNop())
	summary := loop.Tick(context.Background())

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)

	a2, _ := dir.Get(context.Background(), "A2")
	assert.InDelta(t, 1.0, a2.SuccessRate, 1e-9)

	newbie, _ := dir.Get(context.Background(), "newbie")
	assert.InDelta(t, 0.5, newbie.SuccessRate, 1e-9, "below min_samples stays untouched")
}

func TestLoop_TickWritesBlendedRate(t *testing.T) {
	dir, learner := setup(t, "mixed")
	record(t, learner, "mixed", types.DomainSecurity, true, 3)
	record(t, learner, "mixed", types.DomainTesting, false, 3)

	NewLoop(DefaultConfig(), dir, learner, nil, nil).Tick(context.Background())

	got, _ := dir.Get(context.Background(), "mixed")
	want, _ := learner.BlendedRate("mixed")
	assert.InDelta(t, want, got.SuccessRate, 1e-9)
	assert.InDelta(t, 0.6*0.5+0.4*1.0, got.SuccessRate, 1e-9)
}

type flakyStore struct {
	discovery.Store
	failFor string
}

func (f *flakyStore) UpdateSuccessRate(ctx context.Context, name string, rate float64) error {
	if name == f.failFor {
		return errors.New("write conflict")
	}
	return f.Store.UpdateSuccessRate(ctx, name, rate)
}

func TestLoop_AgentFailureDoesNotAbortTick(t *testing.T) {
	dir, learner := setup(t, "a", "b", "c")
	for _, name := range []string{"a", "b", "c"} {
		record(t, learner, name, types.DomainSecurity, true, 5)
	}

	loop := NewLoop(DefaultConfig(), &flakyStore{Store: dir, failFor: "b"}, learner, nil, nil)
	summary := loop.Tick(context.Background())

	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 1, summary.Failed)

	c, _ := dir.Get(context.Background(), "c")
	assert.InDelta(t, 1.0, c.SuccessRate, 1e-9, "agents after the failing one are still updated")
}

type panickingStats struct{}

func (panickingStats) GetStats(string) (*learning.AgentStats, bool) { panic("corrupt stats") }
func (panickingStats) BlendedRate(string) (float64, bool)           { return 0, false }

func TestLoop_TickRecoversPanic(t *testing.T) {
	dir, _ := setup(t, "a")
	loop := NewLoop(DefaultConfig(), dir, panickingStats{}, nil, nil)

	var summary TickSummary
	assert.NotPanics(t, func() { summary = loop.Tick(context.Background()) })
	assert.True(t, summary.Recovered)
}

type countingStats struct {
	calls atomic.Int32
}

func (c *countingStats) GetStats(string) (*learning.AgentStats, bool) {
	c.calls.Add(1)
	return nil, false
}
func (c *countingStats) BlendedRate(string) (float64, bool) { return 0, false }

func TestLoop_StartRunsAfterInitialDelayAndStops(t *testing.T) {
	dir, _ := setup(t, "a")
	stats := &countingStats{}
	loop := NewLoop(Config{Interval: 20 * time.Millisecond, InitialDelay: 30 * time.Millisecond}, dir, stats, nil, nil)

	loop.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, stats.calls.Load(), "first tick waits for the initial delay")

	assert.Eventually(t, func() bool { return stats.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	loop.Stop()
	after := stats.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, stats.calls.Load())

	loop.Stop() // idempotent
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	dir, _ := setup(t, "a")
	loop := NewLoop(Config{Interval: time.Hour, InitialDelay: time.Hour}, dir, &countingStats{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after context cancel")
	}
}
