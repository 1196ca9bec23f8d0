package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikkihugo/agentrouter/testutil"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T, interval time.Duration) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:                mr.Addr(),
		HealthCheckInterval: interval,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager(t *testing.T) {
	_, manager := setupTestRedis(t, 0)

	assert.NotNil(t, manager.Client())
	assert.True(t, manager.Healthy())
	assert.Equal(t, 5*time.Second, manager.config.DialTimeout)
}

func TestNewManager_Unreachable(t *testing.T) {
	manager, err := NewManager(Config{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	}, nil)
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_ClientIsUsable(t *testing.T) {
	mr, manager := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, manager.Client().Set(ctx, "agentrouter:test", "1", 0).Err())
	assert.True(t, mr.Exists("agentrouter:test"))
}

func TestManager_PingTracksHealth(t *testing.T) {
	mr, manager := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, manager.Ping(ctx))
	assert.True(t, manager.Healthy())

	mr.Close()
	assert.Error(t, manager.Ping(ctx))
	assert.False(t, manager.Healthy())
}

func TestManager_HealthLoopDetectsOutage(t *testing.T) {
	mr, manager := setupTestRedis(t, 20*time.Millisecond)
	mr.Close()

	assert.True(t, testutil.WaitFor(func() bool { return !manager.Healthy() }, 2*time.Second),
		"health loop should notice the lost connection")
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	_, manager := setupTestRedis(t, 10*time.Millisecond)

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())
	assert.False(t, manager.Healthy())
	assert.ErrorIs(t, manager.Ping(context.Background()), ErrClosed)
}
