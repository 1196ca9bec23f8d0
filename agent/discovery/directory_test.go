package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestCapability(name string, domains ...types.Domain) *AgentCapability {
	return &AgentCapability{
		Name:            name,
		Role:            "worker",
		Domains:         domains,
		SuccessRate:     0.5,
		ComplexityLevel: types.ComplexityMedium,
		Available:       true,
	}
}

func TestDirectory_RegisterAndGet(t *testing.T) {
	dir := NewDirectory(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, newTestCapability("refactorer", types.DomainRefactoring)))

	got, ok := dir.Get(ctx, "refactorer")
	require.True(t, ok)
	assert.Equal(t, "refactorer", got.Name)
	assert.Equal(t, []types.Domain{types.DomainRefactoring}, got.Domains)
	assert.False(t, got.RegisteredAt.IsZero())

	// 重复注册应失败
	err := dir.Register(ctx, newTestCapability("refactorer"))
	require.Error(t, err)
	assert.Equal(t, types.ErrAlreadyExists, types.GetErrorCode(err))

	_, ok = dir.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestDirectory_RegisterValidation(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()

	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(dir.Register(ctx, nil)))
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(dir.Register(ctx, &AgentCapability{})))
}

func TestDirectory_RegisterClampsRate(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()

	c := newTestCapability("optimist", types.DomainTesting)
	c.SuccessRate = 3.5
	require.NoError(t, dir.Register(ctx, c))

	got, _ := dir.Get(ctx, "optimist")
	assert.Equal(t, 1.0, got.SuccessRate)
}

func TestDirectory_GetReturnsCopy(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))

	got, _ := dir.Get(ctx, "a1")
	got.SuccessRate = 0.99
	got.Domains[0] = types.DomainTesting

	again, _ := dir.Get(ctx, "a1")
	assert.Equal(t, 0.5, again.SuccessRate)
	assert.Equal(t, types.DomainSecurity, again.Domains[0])
}

func TestDirectory_ListAllSorted(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, dir.Register(ctx, newTestCapability(name, types.DomainTesting)))
	}

	all := dir.ListAll(ctx)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "bravo", all[1].Name)
	assert.Equal(t, "charlie", all[2].Name)
	assert.Equal(t, 3, dir.Len())
}

func TestDirectory_UpdateSuccessRate(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))

	require.NoError(t, dir.UpdateSuccessRate(ctx, "a1", 0.8))
	got, _ := dir.Get(ctx, "a1")
	assert.InDelta(t, 0.8, got.SuccessRate, 1e-9)

	require.NoError(t, dir.UpdateSuccessRate(ctx, "a1", -2))
	got, _ = dir.Get(ctx, "a1")
	assert.Equal(t, 0.0, got.SuccessRate)

	err := dir.UpdateSuccessRate(ctx, "ghost", 0.5)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestDirectory_MergeSuccessRate(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))

	got, err := dir.MergeSuccessRate(ctx, "a1", func(current float64) float64 {
		assert.InDelta(t, 0.5, current, 1e-9)
		return current + 0.1
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got, 1e-9)

	got, err = dir.MergeSuccessRate(ctx, "a1", func(float64) float64 { return 7 })
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	_, err = dir.MergeSuccessRate(ctx, "ghost", func(c float64) float64 { return c })
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestDirectory_ConcurrentMergesKeepEveryIncrement(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	capability := newTestCapability("a1", types.DomainSecurity)
	capability.SuccessRate = 0
	require.NoError(t, dir.Register(ctx, capability))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = dir.MergeSuccessRate(ctx, "a1", func(c float64) float64 { return c + 0.005 })
		}()
	}
	wg.Wait()

	got, _ := dir.Get(ctx, "a1")
	assert.InDelta(t, 0.5, got.SuccessRate, 1e-9)
}

func TestDirectory_UpdateAvailability(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))

	require.NoError(t, dir.UpdateAvailability(ctx, "a1", false, 0.9))
	got, _ := dir.Get(ctx, "a1")
	assert.False(t, got.Available)
	assert.Equal(t, 0.0, got.Availability())
	assert.InDelta(t, 0.9, got.Load, 1e-9)

	assert.Error(t, dir.UpdateAvailability(ctx, "ghost", true, 0))
}

func TestDirectory_Unregister(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))

	require.NoError(t, dir.Unregister(ctx, "a1"))
	assert.False(t, dir.Exists("a1"))
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(dir.Unregister(ctx, "a1")))
}

func TestDirectory_Events(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()

	var mu sync.Mutex
	var events []EventType
	id := dir.Subscribe(func(e *Event) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	})

	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))
	require.NoError(t, dir.UpdateSuccessRate(ctx, "a1", 0.7))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, []EventType{EventAgentRegistered, EventSuccessRateUpdated}, events)
	mu.Unlock()

	dir.Unsubscribe(id)
	require.NoError(t, dir.Unregister(ctx, "a1"))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Len(t, events, 2)
	mu.Unlock()
}

type recordingObserver struct {
	mu    sync.Mutex
	rates map[string]float64
}

func (r *recordingObserver) SetAgentSuccessRate(agent string, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[agent] = rate
}

func TestDirectory_RateObserver(t *testing.T) {
	obs := &recordingObserver{rates: map[string]float64{}}
	dir := NewDirectory(nil).WithRateObserver(obs)
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))
	require.NoError(t, dir.UpdateSuccessRate(ctx, "a1", 0.25))

	assert.InDelta(t, 0.25, obs.rates["a1"], 1e-9)
}

func TestDirectory_ConcurrentUpdates(t *testing.T) {
	dir := NewDirectory(nil)
	ctx := context.Background()
	require.NoError(t, dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = dir.UpdateSuccessRate(ctx, "a1", float64(i)/50)
		}(i)
		go func() {
			defer wg.Done()
			got, ok := dir.Get(ctx, "a1")
			if ok {
				assert.GreaterOrEqual(t, got.SuccessRate, 0.0)
				assert.LessOrEqual(t, got.SuccessRate, 1.0)
			}
		}()
	}
	wg.Wait()
}

func TestDirectory_SuccessRateAlwaysBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir := NewDirectory(nil)
		ctx := context.Background()
		if err := dir.Register(ctx, newTestCapability("a1", types.DomainSecurity)); err != nil {
			t.Fatalf("register: %v", err)
		}

		updates := rapid.SliceOf(rapid.Float64Range(-10, 10)).Draw(t, "updates")
		for _, u := range updates {
			if err := dir.UpdateSuccessRate(ctx, "a1", u); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, _ := dir.Get(ctx, "a1")
			if got.SuccessRate < 0 || got.SuccessRate > 1 {
				t.Fatalf("success rate %v out of bounds after update %v", got.SuccessRate, u)
			}
		}
	})
}
