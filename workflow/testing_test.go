package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikkihugo/agentrouter/agent/routing"
	"github.com/mikkihugo/agentrouter/testutil/fixtures"
	"github.com/mikkihugo/agentrouter/types"
)

// fakeRouter records a logical clock tick when each task starts and ends.
type fakeRouter struct {
	mu       sync.Mutex
	clock    atomic.Int64
	started  map[string]int64
	finished map[string]int64
	opts     map[string]routing.Options

	fail  map[string]bool
	delay time.Duration
	block map[string]bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		started:  make(map[string]int64),
		finished: make(map[string]int64),
		opts:     make(map[string]routing.Options),
		fail:     make(map[string]bool),
		block:    make(map[string]bool),
	}
}

func (f *fakeRouter) Route(ctx context.Context, task *types.Task, opts routing.Options) (*routing.Result, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.started[task.ID] = f.clock.Add(1)
	f.opts[task.ID] = opts
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.finished[task.ID] = f.clock.Add(1)
		f.mu.Unlock()
	}()

	if f.block[task.ID] {
		<-ctx.Done()
		return nil, types.NewTimeoutError("blocked").WithCause(ctx.Err())
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, types.NewTimeoutError("cancelled").WithCause(ctx.Err())
		}
	}
	if f.fail[task.ID] {
		return nil, types.NewAgentError("fake", errors.New("task "+task.ID+" failed"))
	}
	return &routing.Result{Output: []byte(task.ID), Agent: "fake", Attempts: 1}, nil
}

func (f *fakeRouter) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func task(id string, deps ...string) *types.Task {
	return fixtures.Task(id, types.DomainTesting, types.ComplexitySimple, deps...)
}
