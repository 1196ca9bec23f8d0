package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/agent/routing"
	"github.com/mikkihugo/agentrouter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDAGExecutor_LinearChainFailureSkipsDependents(t *testing.T) {
	router := newFakeRouter()
	router.fail["T1"] = true
	exec := NewDAGExecutor(router, DefaultDAGConfig(), nil, zap.NewNop())

	results, err := exec.Execute(context.Background(), []*types.Task{
		task("T1"), task("T2", "T1"), task("T3", "T2"),
	}, DAGOptions{})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, StatusError, results["T1"].Status)
	assert.Error(t, results["T1"].Err)
	assert.Equal(t, StatusSkipped, results["T2"].Status)
	assert.Equal(t, StatusSkipped, results["T3"].Status)
	assert.Equal(t, "T1", results["T3"].SkippedBy)
	assert.Equal(t, 1, router.startedCount())
}

func TestDAGExecutor_AllSucceed(t *testing.T) {
	router := newFakeRouter()
	exec := NewDAGExecutor(router, DefaultDAGConfig(), nil, nil)

	results, err := exec.Execute(context.Background(), []*types.Task{
		task("a"), task("b", "a"), task("c", "a"), task("d", "b", "c"),
	}, DAGOptions{})

	require.NoError(t, err)
	for id, r := range results {
		assert.Equal(t, StatusOK, r.Status, id)
		assert.Equal(t, []byte(id), r.Output)
		assert.Equal(t, "fake", r.Agent)
	}
	assert.Less(t, router.finished["a"], router.started["b"])
	assert.Less(t, router.finished["a"], router.started["c"])
	assert.Less(t, router.finished["b"], router.started["d"])
	assert.Less(t, router.finished["c"], router.started["d"])
}

func TestDAGExecutor_PartialFailureKeepsIndependentBranches(t *testing.T) {
	router := newFakeRouter()
	router.fail["left"] = true
	exec := NewDAGExecutor(router, DefaultDAGConfig(), nil, nil)

	results, err := exec.Execute(context.Background(), []*types.Task{
		task("root"),
		task("left", "root"), task("left-child", "left"),
		task("right", "root"), task("right-child", "right"),
		task("join", "left-child", "right-child"),
	}, DAGOptions{})

	require.NoError(t, err)
	assert.Equal(t, StatusOK, results["root"].Status)
	assert.Equal(t, StatusError, results["left"].Status)
	assert.Equal(t, StatusSkipped, results["left-child"].Status)
	assert.Equal(t, StatusOK, results["right"].Status)
	assert.Equal(t, StatusOK, results["right-child"].Status)
	assert.Equal(t, StatusSkipped, results["join"].Status)
}

func TestDAGExecutor_CycleRejectedWithoutExecution(t *testing.T) {
	router := newFakeRouter()
	exec := NewDAGExecutor(router, DefaultDAGConfig(), nil, nil)

	results, err := exec.Execute(context.Background(), []*types.Task{
		task("free"), task("a", "b"), task("b", "a"),
	}, DAGOptions{})

	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, types.ErrCyclicDependency, types.GetErrorCode(err))
	assert.Zero(t, router.startedCount())
}

func TestDAGExecutor_OverallTimeout(t *testing.T) {
	router := newFakeRouter()
	router.block["slow"] = true
	exec := NewDAGExecutor(router, DefaultDAGConfig(), nil, nil)

	start := time.Now()
	results, err := exec.Execute(context.Background(), []*types.Task{
		task("fast"), task("slow"), task("after", "slow"),
	}, DAGOptions{Timeout: 50 * time.Millisecond})

	require.NoError(t, err, "deadline is reported per task, not as a call failure")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StatusOK, results["fast"].Status)
	assert.Equal(t, StatusTimeout, results["slow"].Status)
	assert.Equal(t, StatusTimeout, results["after"].Status)
}

func TestDAGExecutor_MaxParallelism(t *testing.T) {
	router := newFakeRouter()
	router.delay = 20 * time.Millisecond
	exec := NewDAGExecutor(router, DefaultDAGConfig(), nil, nil)

	var tasks []*types.Task
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		tasks = append(tasks, task(id))
	}

	results, err := exec.Execute(context.Background(), tasks, DAGOptions{MaxParallelism: 2})
	require.NoError(t, err)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, router.maxInflight.Load(), int32(2))
	assert.Equal(t, 8, router.startedCount())
}

func TestDAGExecutor_TaskOptionsOverrideDefaults(t *testing.T) {
	router := newFakeRouter()
	exec := NewDAGExecutor(router, DefaultDAGConfig(), nil, nil)

	custom := task("custom")
	custom.Timeout = 3 * time.Second
	custom.RetryCount = 5

	_, err := exec.Execute(context.Background(), []*types.Task{task("plain"), custom}, DAGOptions{
		RouteOptions: routing.Options{Timeout: time.Second, RetryCount: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, routing.Options{Timeout: time.Second, RetryCount: 1}, router.opts["plain"])
	assert.Equal(t, routing.Options{Timeout: 3 * time.Second, RetryCount: 5}, router.opts["custom"])
}

func TestDAGExecutor_EmptyTaskSet(t *testing.T) {
	exec := NewDAGExecutor(newFakeRouter(), DefaultDAGConfig(), nil, nil)

	results, err := exec.Execute(context.Background(), nil, DAGOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDAGExecutor_WithRealRouter(t *testing.T) {
	dir := discovery.NewDirectory(nil)
	require.NoError(t, dir.Register(context.Background(), &discovery.AgentCapability{
		Name: "tester", Domains: []types.Domain{types.DomainTesting}, SuccessRate: 0.8, Available: true,
	}))
	exec := routing.ExecutorFunc(func(ctx context.Context, agent string, task *types.Task) (*routing.ExecutionResult, error) {
		runID, _ := types.RunID(ctx)
		return &routing.ExecutionResult{Output: []byte(runID)}, nil
	})
	router := routing.NewRouter(dir, exec, nil, routing.DefaultConfig(), nil)

	results, err := NewDAGExecutor(router, DefaultDAGConfig(), nil, nil).
		Execute(context.Background(), []*types.Task{task("one"), task("two", "one")}, DAGOptions{})

	require.NoError(t, err)
	assert.Equal(t, StatusOK, results["two"].Status)
	assert.Equal(t, "tester", results["two"].Agent)
	assert.NotEmpty(t, results["one"].Output, "run id propagates to the agent")
	assert.Equal(t, results["one"].Output, results["two"].Output)
}
