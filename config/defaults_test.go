package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, RoutingConfig{}, cfg.Routing)
	assert.NotEqual(t, DAGConfig{}, cfg.DAG)
	assert.NotEqual(t, FeedbackConfig{}, cfg.Feedback)
	assert.NotEqual(t, FederationConfig{}, cfg.Federation)
	assert.NotEqual(t, AutonomyConfig{}, cfg.Autonomy)
	assert.Empty(t, cfg.Instance.ID, "instance id is generated at startup")
	assert.Empty(t, cfg.Agents)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 9091, cfg.HTTPPort)
	assert.Equal(t, 9092, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.APIKeys)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestDefaultFeedbackConfig(t *testing.T) {
	cfg := DefaultFeedbackConfig()
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.InitialDelay)
	assert.Equal(t, 5, cfg.MinSamples)
}

func TestDefaultFederationConfig(t *testing.T) {
	cfg := DefaultFederationConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.PushInterval)
	assert.Equal(t, 30*time.Second, cfg.PullInterval)
	assert.Equal(t, "agentrouter:federation", cfg.StreamKey)
	assert.Equal(t, int64(10000), cfg.MaxStreamLength)
}

func TestDefaultRoutingConfig(t *testing.T) {
	cfg := DefaultRoutingConfig()
	assert.Equal(t, 2*time.Minute, cfg.DefaultTimeout)
	assert.Equal(t, 2, cfg.DefaultRetryCount)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryInitialDelay)
}

func TestDefaultDAGConfig(t *testing.T) {
	cfg := DefaultDAGConfig()
	assert.Equal(t, 4, cfg.MaxParallelism)
	assert.Equal(t, 30*time.Minute, cfg.Timeout)
}

func TestDefaultAutonomyConfig(t *testing.T) {
	cfg := DefaultAutonomyConfig()
	assert.Equal(t, 5, cfg.RuleLimit)
	assert.Equal(t, 0.5, cfg.MinConfidence)
	assert.Equal(t, 30*24*time.Hour, cfg.Lookback)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "agentrouter.db", cfg.Name)
	assert.Equal(t, 7*24*time.Hour, cfg.WarmWindow)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "agentrouter", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
