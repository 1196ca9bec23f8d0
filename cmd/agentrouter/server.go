package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikkihugo/agentrouter/agent/autonomy"
	"github.com/mikkihugo/agentrouter/agent/discovery"
	"github.com/mikkihugo/agentrouter/agent/federation"
	"github.com/mikkihugo/agentrouter/agent/feedback"
	"github.com/mikkihugo/agentrouter/agent/learning"
	"github.com/mikkihugo/agentrouter/agent/routing"
	"github.com/mikkihugo/agentrouter/api/handlers"
	"github.com/mikkihugo/agentrouter/config"
	"github.com/mikkihugo/agentrouter/internal/cache"
	"github.com/mikkihugo/agentrouter/internal/database"
	"github.com/mikkihugo/agentrouter/internal/metrics"
	"github.com/mikkihugo/agentrouter/internal/retry"
	"github.com/mikkihugo/agentrouter/internal/server"
	"github.com/mikkihugo/agentrouter/internal/telemetry"
	"github.com/mikkihugo/agentrouter/types"
	"github.com/mikkihugo/agentrouter/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentRouter 的主服务器，负责组装所有组件
type Server struct {
	cfg        *config.Config
	instanceID string
	logger     *zap.Logger
	telemetry  *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	metricsCollector *metrics.Collector
	dbPool           *database.PoolManager
	redisManager     *cache.Manager

	// 核心组件
	directory    *discovery.Directory
	learner      *learning.Learner
	journal      *learning.GormJournal
	router       *routing.Router
	dagExecutor  *workflow.DAGExecutor
	feedbackLoop *feedback.Loop
	synchronizer *federation.Synchronizer
	classifier   *autonomy.Classifier

	// Handlers
	healthHandler   *handlers.HealthHandler
	agentHandler    *handlers.AgentHandler
	taskHandler     *handlers.TaskHandler
	autonomyHandler *handlers.AutonomyHandler
	adminHandler    *handlers.AdminHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, instanceID string, logger *zap.Logger, providers *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger,
		telemetry:  providers,
	}
}

// resolveInstanceID 返回配置的实例 ID，未配置时生成一个
func resolveInstanceID(cfg config.InstanceConfig) string {
	if cfg.ID != "" {
		return cfg.ID
	}
	return uuid.NewString()
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化组件并启动所有服务。ctx 控制后台循环的生命周期。
func (s *Server) Start(ctx context.Context) error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector(s.cfg.Metrics.Namespace, s.logger)

	// 2. 初始化核心组件
	if err := s.initComponents(ctx); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动后台循环
	s.feedbackLoop.Start(ctx)
	if s.synchronizer != nil {
		s.synchronizer.Start(ctx)
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if s.cfg.Metrics.Enabled {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("agents", s.directory.Len()),
		zap.Bool("journal_enabled", s.journal != nil),
		zap.Bool("federation_enabled", s.synchronizer != nil),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initComponents 组装目录、学习器、路由、DAG、反馈循环、跨实例同步与自治分类
func (s *Server) initComponents(ctx context.Context) error {
	s.directory = discovery.NewDirectory(s.logger).WithRateObserver(s.metricsCollector)
	if err := s.registerStaticAgents(ctx); err != nil {
		return err
	}

	// 执行结果日志（可选）
	learnerOpts := []learning.Option{learning.WithLookup(s.directory)}
	if s.cfg.Database.Enabled {
		pool, err := database.Open(s.cfg.Database, s.logger)
		if err != nil {
			return fmt.Errorf("open outcome database: %w", err)
		}
		s.dbPool = pool

		journal, err := learning.NewGormJournal(pool.DB(), s.logger)
		if err != nil {
			return err
		}
		s.journal = journal
		learnerOpts = append(learnerOpts, learning.WithJournal(journal))
	}
	s.learner = learning.NewLearner(learning.DefaultConfig(), s.logger, learnerOpts...)
	if s.journal != nil {
		s.warmLearner(ctx)
	}

	// 任务路由
	resolver := func(agent string) (string, bool) {
		c, ok := s.directory.Get(context.Background(), agent)
		if !ok {
			return "", false
		}
		return c.Endpoint, c.Endpoint != ""
	}
	executor := routing.NewHTTPExecutor(resolver, &http.Client{Timeout: s.cfg.Routing.ExecutorTimeout})
	s.router = routing.NewRouter(s.directory, executor, s.learner, routerConfig(s.cfg.Routing), s.logger,
		routing.WithMetrics(s.metricsCollector),
	)

	// DAG 执行
	s.dagExecutor = workflow.NewDAGExecutor(s.router, workflow.DAGConfig{
		Timeout:        s.cfg.DAG.Timeout,
		MaxParallelism: s.cfg.DAG.MaxParallelism,
	}, s.metricsCollector, s.logger)

	// 学习反馈循环
	s.feedbackLoop = feedback.NewLoop(feedback.Config{
		Interval:     s.cfg.Feedback.Interval,
		InitialDelay: s.cfg.Feedback.InitialDelay,
		MinSamples:   s.cfg.Feedback.MinSamples,
	}, s.directory, s.learner, s.metricsCollector, s.logger)

	// 跨实例同步（可选）
	if s.cfg.Federation.Enabled {
		if err := s.initFederation(ctx); err != nil {
			return err
		}
	}

	// 自治分类
	s.classifier = autonomy.NewClassifier(
		&autonomy.StaticSupplier{Rules: autonomyRules(s.cfg.Autonomy.Rules)},
		autonomy.Config{
			RuleLimit:     s.cfg.Autonomy.RuleLimit,
			MinConfidence: s.cfg.Autonomy.MinConfidence,
			Lookback:      s.cfg.Autonomy.Lookback,
		},
		s.metricsCollector, s.logger,
	)

	return nil
}

// registerStaticAgents 注册配置文件中的 Agent
func (s *Server) registerStaticAgents(ctx context.Context) error {
	for _, a := range s.cfg.Agents {
		if a.Disabled {
			s.logger.Info("skipping disabled agent", zap.String("agent", a.Name))
			continue
		}
		if err := s.directory.Register(ctx, capabilityFromConfig(a)); err != nil {
			return fmt.Errorf("register agent %s: %w", a.Name, err)
		}
	}
	return nil
}

// warmLearner 从执行结果日志回放近期结果，并按保留时长清理旧记录
func (s *Server) warmLearner(ctx context.Context) {
	now := time.Now()
	if s.cfg.Database.Retention > 0 {
		if _, err := s.journal.Prune(ctx, now.Add(-s.cfg.Database.Retention)); err != nil {
			s.logger.Warn("failed to prune outcome journal", zap.Error(err))
		}
	}
	if _, err := s.learner.Warm(ctx, now.Add(-s.cfg.Database.WarmWindow)); err != nil {
		s.logger.Warn("failed to warm learner from journal", zap.Error(err))
	}
}

// initFederation 建立 Redis 连接并创建同步器
func (s *Server) initFederation(ctx context.Context) error {
	redisCfg := cache.DefaultConfig()
	redisCfg.Addr = s.cfg.Redis.Addr
	redisCfg.Password = s.cfg.Redis.Password
	redisCfg.DB = s.cfg.Redis.DB
	redisCfg.PoolSize = s.cfg.Redis.PoolSize
	redisCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
	redisCfg.HealthCheckInterval = s.cfg.Redis.HealthCheckInterval

	mgr, err := cache.NewManager(redisCfg, s.logger)
	if err != nil {
		return fmt.Errorf("connect federation redis: %w", err)
	}
	s.redisManager = mgr

	transportCfg := federation.DefaultRedisTransportConfig()
	transportCfg.Stream = s.cfg.Federation.StreamKey
	transportCfg.MaxLen = s.cfg.Federation.MaxStreamLength
	transport := federation.NewRedisTransport(mgr.Client(), s.instanceID, transportCfg, s.logger)
	if err := transport.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("create federation consumer group: %w", err)
	}

	syncCfg := federation.DefaultConfig()
	syncCfg.InstanceID = s.instanceID
	syncCfg.PushInterval = s.cfg.Federation.PushInterval
	syncCfg.PullInterval = s.cfg.Federation.PullInterval
	syncCfg.BatchSize = s.cfg.Federation.BatchSize
	if s.cfg.Federation.PullTimeout > 0 {
		syncCfg.PullTimeout = s.cfg.Federation.PullTimeout
	}

	s.synchronizer = federation.NewSynchronizer(syncCfg, s.directory, transport, s.logger,
		federation.WithStats(s.learner),
		federation.WithMetrics(s.metricsCollector),
	)
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.dbPool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.dbPool.Ping))
	}
	if s.redisManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.redisManager.Ping))
	}

	s.agentHandler = handlers.NewAgentHandler(s.directory, s.learner, s.logger)
	s.taskHandler = handlers.NewTaskHandler(nil, s.router, s.dagExecutor, s.logger)
	s.autonomyHandler = handlers.NewAutonomyHandler(s.classifier, s.logger)

	// 未启用同步时传入 nil 接口，管理端点返回 404
	var syncer handlers.Syncer
	if s.synchronizer != nil {
		syncer = s.synchronizer
	}
	s.adminHandler = handlers.NewAdminHandler(s.feedbackLoop, syncer, s.logger)
}

// routes 注册所有 HTTP 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit, s.instanceID))

	// ========================================
	// 能力目录
	// ========================================
	mux.HandleFunc("GET /v1/agents", s.agentHandler.HandleListAgents)
	mux.HandleFunc("POST /v1/agents", s.agentHandler.HandleRegisterAgent)
	mux.HandleFunc("GET /v1/agents/{name}", s.agentHandler.HandleGetAgent)
	mux.HandleFunc("DELETE /v1/agents/{name}", s.agentHandler.HandleUnregisterAgent)
	mux.HandleFunc("PUT /v1/agents/{name}/availability", s.agentHandler.HandleSetAvailability)
	mux.HandleFunc("GET /v1/agents/{name}/stats", s.agentHandler.HandleAgentStats)

	// ========================================
	// 任务路由与 DAG
	// ========================================
	mux.HandleFunc("POST /v1/tasks", s.taskHandler.HandleRouteTask)
	mux.HandleFunc("POST /v1/tasks/select", s.taskHandler.HandleSelectAgent)
	mux.HandleFunc("POST /v1/dags", s.taskHandler.HandleExecuteDAG)

	// ========================================
	// 自治分类
	// ========================================
	mux.HandleFunc("POST /v1/autonomy/classify", s.autonomyHandler.HandleClassify)
	mux.HandleFunc("GET /v1/autonomy/categories", s.autonomyHandler.HandleListCategories)

	// ========================================
	// 管理端点
	// ========================================
	mux.HandleFunc("POST /v1/admin/feedback/tick", s.adminHandler.HandleFeedbackTick)
	mux.HandleFunc("POST /v1/admin/federation/sync", s.adminHandler.HandleFederationSync)

	return mux
}

// handler 构建带中间件链的根 handler
func (s *Server) handler() http.Handler {
	skipAuthPaths := []string{"/health", "/ready", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	switch {
	case s.cfg.Server.JWT.Enabled():
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger))
	case len(s.cfg.Server.APIKeys) > 0:
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))
	}
	middlewares = append(middlewares, InstanceContext(s.instanceID))

	return Chain(s.routes(), middlewares...)
}

// startHTTPServer 启动 API 服务器
func (s *Server) startHTTPServer() error {
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.handler(), serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到 ctx 结束或 HTTP 服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	if s.httpManager == nil {
		<-ctx.Done()
		return nil
	}
	return s.httpManager.Wait(ctx)
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 1. 停止后台循环
	if s.feedbackLoop != nil {
		s.feedbackLoop.Stop()
	}
	if s.synchronizer != nil {
		s.synchronizer.Stop()
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Redis 与数据库
	if s.redisManager != nil {
		if err := s.redisManager.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}

	// 4. 刷新遥测数据
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 🔄 配置转换
// =============================================================================

func routerConfig(cfg config.RoutingConfig) routing.Config {
	backoff := retry.DefaultRetryPolicy()
	if cfg.RetryInitialDelay > 0 {
		backoff.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		backoff.MaxDelay = cfg.RetryMaxDelay
	}
	backoff.MaxRetries = cfg.DefaultRetryCount

	return routing.Config{
		DefaultTimeout:    cfg.DefaultTimeout,
		DefaultRetryCount: cfg.DefaultRetryCount,
		Backoff:           backoff,
	}
}

func capabilityFromConfig(a config.AgentConfig) *discovery.AgentCapability {
	domains := make([]types.Domain, 0, len(a.Domains))
	for _, d := range a.Domains {
		domains = append(domains, types.ParseDomain(d))
	}
	return &discovery.AgentCapability{
		Name:            a.Name,
		Role:            a.Role,
		Domains:         domains,
		SuccessRate:     a.SuccessRate,
		ComplexityLevel: types.ParseComplexity(a.ComplexityLevel),
		Available:       true,
		Endpoint:        a.Endpoint,
	}
}

func autonomyRules(cfgs []config.AutonomyRuleConfig) []autonomy.Rule {
	rules := make([]autonomy.Rule, 0, len(cfgs))
	for _, c := range cfgs {
		rules = append(rules, autonomy.Rule{
			ID:          c.ID,
			Pattern:     c.Pattern,
			Action:      c.Action,
			Confidence:  c.Confidence,
			Frequency:   c.Frequency,
			SuccessRate: c.SuccessRate,
			Status:      "active",
		})
	}
	return rules
}
