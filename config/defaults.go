// =============================================================================
// 📦 AgentRouter 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Instance:   InstanceConfig{},
		Server:     DefaultServerConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Routing:    DefaultRoutingConfig(),
		DAG:        DefaultDAGConfig(),
		Feedback:   DefaultFeedbackConfig(),
		Federation: DefaultFederationConfig(),
		Autonomy:   DefaultAutonomyConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        9091,
		MetricsPort:     9092,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentrouter",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentrouter",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "agentrouter",
		Password:        "",
		Name:            "agentrouter.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		WarmWindow:      7 * 24 * time.Hour,
		Retention:       30 * 24 * time.Hour,
	}
}

// DefaultRoutingConfig 返回默认路由配置
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		DefaultTimeout:    2 * time.Minute,
		DefaultRetryCount: 2,
		RetryInitialDelay: 200 * time.Millisecond,
		RetryMaxDelay:     5 * time.Second,
		ExecutorTimeout:   5 * time.Minute,
	}
}

// DefaultDAGConfig 返回默认 DAG 配置
func DefaultDAGConfig() DAGConfig {
	return DAGConfig{
		MaxParallelism: 4,
		Timeout:        30 * time.Minute,
	}
}

// DefaultFeedbackConfig 返回默认反馈循环配置
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		Interval:     5 * time.Minute,
		InitialDelay: 10 * time.Second,
		MinSamples:   5,
	}
}

// DefaultFederationConfig 返回默认跨实例同步配置
func DefaultFederationConfig() FederationConfig {
	return FederationConfig{
		Enabled:         false,
		PushInterval:    time.Minute,
		PullInterval:    30 * time.Second,
		BatchSize:       10,
		PullTimeout:     2 * time.Second,
		StreamKey:       "agentrouter:federation",
		MaxStreamLength: 10000,
	}
}

// DefaultAutonomyConfig 返回默认自主决策配置
func DefaultAutonomyConfig() AutonomyConfig {
	return AutonomyConfig{
		RuleLimit:     5,
		MinConfidence: 0.5,
		Lookback:      30 * 24 * time.Hour,
	}
}
