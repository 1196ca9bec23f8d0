package learning

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func outcome(agent string, domain types.Domain, success bool) types.ExecutionOutcome {
	return types.ExecutionOutcome{
		AgentName:  agent,
		Domain:     domain,
		Success:    success,
		TokensUsed: 100,
		Duration:   200 * time.Millisecond,
		Timestamp:  time.Now(),
	}
}

type staticLookup map[string]bool

func (s staticLookup) Exists(name string) bool { return s[name] }

func TestLearner_RecordAndStats(t *testing.T) {
	l := NewLearner(DefaultConfig(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainSecurity, true)))
	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainSecurity, false)))
	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainTesting, true)))

	stats, ok := l.GetStats("a1")
	require.True(t, ok)
	assert.Equal(t, 3, stats.TotalExecutions)
	assert.Equal(t, 2, stats.Successes)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	assert.Equal(t, int64(300), stats.TotalTokens)
	assert.Equal(t, 200*time.Millisecond, stats.AvgDuration)

	sec := stats.DomainPerformance[types.DomainSecurity]
	assert.Equal(t, 2, sec.Executions)
	assert.InDelta(t, 0.5, sec.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0, stats.DomainPerformance[types.DomainTesting].SuccessRate, 1e-9)

	_, ok = l.GetStats("unknown")
	assert.False(t, ok)
}

func TestLearner_StatsAreCopies(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil)
	require.NoError(t, l.Record(context.Background(), outcome("a1", types.DomainSecurity, true)))

	stats, _ := l.GetStats("a1")
	stats.DomainPerformance[types.DomainSecurity] = DomainStats{Executions: 99}

	again, _ := l.GetStats("a1")
	assert.Equal(t, 1, again.DomainPerformance[types.DomainSecurity].Executions)
}

func TestLearner_RecordValidation(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil, WithLookup(staticLookup{"known": true}))
	ctx := context.Background()

	err := l.Record(ctx, types.ExecutionOutcome{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	err = l.Record(ctx, outcome("ghost", types.DomainSecurity, true))
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))

	assert.NoError(t, l.Record(ctx, outcome("known", types.DomainSecurity, true)))
}

func TestLearner_ConcurrentRecordsNoLostUpdates(t *testing.T) {
	l := NewLearner(Config{ShardCount: 4}, nil)
	ctx := context.Background()

	const agents, perAgent = 8, 250
	var wg sync.WaitGroup
	for a := 0; a < agents; a++ {
		for i := 0; i < perAgent; i++ {
			wg.Add(1)
			go func(a, i int) {
				defer wg.Done()
				_ = l.Record(ctx, outcome(fmt.Sprintf("agent-%d", a), types.DomainTesting, i%2 == 0))
			}(a, i)
		}
	}
	wg.Wait()

	for a := 0; a < agents; a++ {
		stats, ok := l.GetStats(fmt.Sprintf("agent-%d", a))
		require.True(t, ok)
		assert.Equal(t, perAgent, stats.TotalExecutions)
		assert.Equal(t, perAgent/2, stats.Successes)
	}
	assert.Len(t, l.ListStats(), agents)
}

func TestLearner_BlendedRate(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil)
	ctx := context.Background()

	_, ok := l.BlendedRate("a1")
	assert.False(t, ok)

	// 2 of 2 in testing: below MinDomainSamples, overall only.
	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainTesting, true)))
	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainTesting, true)))
	rate, ok := l.BlendedRate("a1")
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate, 1e-9)

	// security: 3 of 3, testing: 2 of 4 -> overall 5/7.
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, outcome("a1", types.DomainSecurity, true)))
	}
	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainTesting, false)))
	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainTesting, false)))

	rate, ok = l.BlendedRate("a1")
	require.True(t, ok)
	assert.InDelta(t, 0.6*(5.0/7.0)+0.4*1.0, rate, 1e-9)
}

func TestLearner_BlendedRateAllSuccesses(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record(ctx, outcome("a2", types.DomainSecurity, true)))
	}

	rate, ok := l.BlendedRate("a2")
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate, 1e-9)
}

func TestLearner_DomainRate(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainSecurity, false)))

	rate, ok := l.DomainRate("a1", types.DomainSecurity)
	require.True(t, ok)
	assert.Equal(t, 0.0, rate)

	_, ok = l.DomainRate("a1", types.DomainTesting)
	assert.False(t, ok)
}

func TestLearner_RecentWindow(t *testing.T) {
	l := NewLearner(Config{RecentWindow: 3}, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		o := outcome("a1", types.DomainTesting, true)
		o.TaskID = fmt.Sprintf("t%d", i)
		require.NoError(t, l.Record(ctx, o))
	}

	recent := l.Recent("a1", 10)
	require.Len(t, recent, 3)
	assert.Equal(t, "t2", recent[0].TaskID)
	assert.Equal(t, "t4", recent[2].TaskID)

	recent = l.Recent("a1", 1)
	require.Len(t, recent, 1)
	assert.Equal(t, "t4", recent[0].TaskID)

	assert.Nil(t, l.Recent("ghost", 3))
}

func TestLearner_EmptyDomainCountsAsOther(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil)
	require.NoError(t, l.Record(context.Background(), outcome("a1", "", true)))

	stats, _ := l.GetStats("a1")
	assert.Equal(t, 1, stats.DomainPerformance[types.DomainOther].Executions)
}

func TestLearner_Reset(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil)
	require.NoError(t, l.Record(context.Background(), outcome("a1", types.DomainTesting, true)))

	l.Reset()

	_, ok := l.GetStats("a1")
	assert.False(t, ok)
	assert.Empty(t, l.ListStats())
}

type failingJournal struct{}

func (failingJournal) Append(context.Context, types.ExecutionOutcome) error {
	return fmt.Errorf("disk full")
}

func (failingJournal) Load(context.Context, time.Time) ([]types.ExecutionOutcome, error) {
	return nil, fmt.Errorf("disk gone")
}

func TestLearner_JournalFailureDoesNotFailRecord(t *testing.T) {
	l := NewLearner(DefaultConfig(), nil, WithJournal(failingJournal{}))
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, outcome("a1", types.DomainTesting, true)))
	stats, ok := l.GetStats("a1")
	require.True(t, ok)
	assert.Equal(t, 1, stats.TotalExecutions)

	_, err := l.Warm(ctx, time.Time{})
	assert.Error(t, err)
}
