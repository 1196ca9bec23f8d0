// =============================================================================
// 📦 AgentRouter 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTROUTER").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentRouter 的完整配置结构
type Config struct {
	// Instance 实例标识
	Instance InstanceConfig `yaml:"instance" env:"INSTANCE"`

	// Server HTTP 服务（metrics / health）配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Redis 配置（跨实例同步使用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（执行结果日志使用）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Routing 任务路由配置
	Routing RoutingConfig `yaml:"routing" env:"ROUTING"`

	// DAG 执行协调配置
	DAG DAGConfig `yaml:"dag" env:"DAG"`

	// Feedback 学习反馈循环配置
	Feedback FeedbackConfig `yaml:"feedback" env:"FEEDBACK"`

	// Federation 跨实例共识同步配置
	Federation FederationConfig `yaml:"federation" env:"FEDERATION"`

	// Autonomy 自主决策分级配置
	Autonomy AutonomyConfig `yaml:"autonomy" env:"AUTONOMY"`

	// Agents 启动时注册的静态 Agent 列表（仅 YAML）
	Agents []AgentConfig `yaml:"agents"`
}

// InstanceConfig 实例配置
type InstanceConfig struct {
	// 实例 ID，为空时启动时生成
	ID string `yaml:"id" env:"ID"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口（API、/health）
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口（/metrics）
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// API Key 列表，为空时不启用认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 每个客户端 IP 的每秒请求数，<=0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// JWT 认证，配置了密钥或公钥时优先于 API Key
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT Bearer 认证配置，支持 HS256 与 RS256
type JWTConfig struct {
	// HMAC 共享密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// PEM 编码的 RSA 公钥
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 期望的签发者，为空时不校验
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 期望的受众，为空时不校验
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了任一验签密钥
func (c JWTConfig) Enabled() bool {
	return c.Secret != "" || c.PublicKey != ""
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否暴露 /metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用执行结果日志
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时回放多久以内的执行结果
	WarmWindow time.Duration `yaml:"warm_window" env:"WARM_WINDOW"`
	// 执行结果保留时长，0 表示不清理
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// RoutingConfig 路由配置
type RoutingConfig struct {
	// 单次派发默认超时
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// 默认重试次数
	DefaultRetryCount int `yaml:"default_retry_count" env:"DEFAULT_RETRY_COUNT"`
	// 重试初始退避
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" env:"RETRY_INITIAL_DELAY"`
	// 重试最大退避
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" env:"RETRY_MAX_DELAY"`
	// 执行请求 HTTP 客户端超时
	ExecutorTimeout time.Duration `yaml:"executor_timeout" env:"EXECUTOR_TIMEOUT"`
}

// DAGConfig DAG 执行配置
type DAGConfig struct {
	// 最大并行度
	MaxParallelism int `yaml:"max_parallelism" env:"MAX_PARALLELISM"`
	// 整体超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// FeedbackConfig 学习反馈循环配置
type FeedbackConfig struct {
	// 周期
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 首次执行延迟
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 最小样本数
	MinSamples int `yaml:"min_samples" env:"MIN_SAMPLES"`
}

// FederationConfig 跨实例同步配置
type FederationConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 推送周期
	PushInterval time.Duration `yaml:"push_interval" env:"PUSH_INTERVAL"`
	// 拉取周期
	PullInterval time.Duration `yaml:"pull_interval" env:"PULL_INTERVAL"`
	// 单次拉取批大小
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// 单次拉取超时
	PullTimeout time.Duration `yaml:"pull_timeout" env:"PULL_TIMEOUT"`
	// Redis Stream 键
	StreamKey string `yaml:"stream_key" env:"STREAM_KEY"`
	// Stream 最大长度（近似裁剪）
	MaxStreamLength int64 `yaml:"max_stream_length" env:"MAX_STREAM_LENGTH"`
}

// AutonomyConfig 自主决策配置（阈值为常量，不在此配置）
type AutonomyConfig struct {
	// 规则候选上限
	RuleLimit int `yaml:"rule_limit" env:"RULE_LIMIT"`
	// 供应方最小置信度
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`
	// 历史回溯窗口
	Lookback time.Duration `yaml:"lookback" env:"LOOKBACK"`
	// 静态规则（仅 YAML）
	Rules []AutonomyRuleConfig `yaml:"rules"`
}

// AutonomyRuleConfig 静态自治规则
type AutonomyRuleConfig struct {
	ID          string         `yaml:"id"`
	Pattern     map[string]any `yaml:"pattern"`
	Action      string         `yaml:"action"`
	Confidence  float64        `yaml:"confidence"`
	Frequency   int            `yaml:"frequency"`
	SuccessRate float64        `yaml:"success_rate"`
}

// AgentConfig 静态 Agent 配置
type AgentConfig struct {
	Name            string   `yaml:"name"`
	Role            string   `yaml:"role"`
	Domains         []string `yaml:"domains"`
	ComplexityLevel string   `yaml:"complexity_level"`
	SuccessRate     float64  `yaml:"success_rate"`
	Endpoint        string   `yaml:"endpoint"`
	Disabled        bool     `yaml:"disabled"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTROUTER",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Metrics.Enabled && (c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535) {
		errs = append(errs, "invalid metrics port")
	}
	if c.Metrics.Enabled && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, "server.rate_limit_burst must be at least 1 when rate limiting is enabled")
	}

	if c.Routing.DefaultTimeout <= 0 {
		errs = append(errs, "routing.default_timeout must be positive")
	}
	if c.Routing.DefaultRetryCount < 0 {
		errs = append(errs, "routing.default_retry_count must not be negative")
	}

	if c.DAG.MaxParallelism < 1 {
		errs = append(errs, "dag.max_parallelism must be at least 1")
	}
	if c.DAG.Timeout <= 0 {
		errs = append(errs, "dag.timeout must be positive")
	}

	if c.Feedback.Interval <= 0 {
		errs = append(errs, "feedback.interval must be positive")
	}
	if c.Feedback.InitialDelay < 0 {
		errs = append(errs, "feedback.initial_delay must not be negative")
	}
	if c.Feedback.MinSamples < 1 {
		errs = append(errs, "feedback.min_samples must be at least 1")
	}

	if c.Federation.Enabled {
		if c.Federation.PushInterval <= 0 || c.Federation.PullInterval <= 0 {
			errs = append(errs, "federation intervals must be positive")
		}
		if c.Federation.BatchSize < 1 {
			errs = append(errs, "federation.batch_size must be at least 1")
		}
		if c.Federation.StreamKey == "" {
			errs = append(errs, "federation.stream_key is required")
		}
	}

	if c.Autonomy.MinConfidence < 0 || c.Autonomy.MinConfidence > 1 {
		errs = append(errs, "autonomy.min_confidence must be between 0 and 1")
	}
	for i, r := range c.Autonomy.Rules {
		if r.Confidence < 0 || r.Confidence > 1 {
			errs = append(errs, fmt.Sprintf("autonomy.rules[%d]: confidence must be between 0 and 1", i))
		}
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	}

	seen := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: name is required", i))
			continue
		}
		if _, dup := seen[a.Name]; dup {
			errs = append(errs, fmt.Sprintf("agents[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = struct{}{}
		if len(a.Domains) == 0 {
			errs = append(errs, fmt.Sprintf("agents[%d]: at least one domain is required", i))
		}
		if a.SuccessRate < 0 || a.SuccessRate > 1 {
			errs = append(errs, fmt.Sprintf("agents[%d]: success_rate must be between 0 and 1", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
