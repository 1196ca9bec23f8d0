// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record* 方法对 nil 接收者安全，组件可选择不注入。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 路由指标
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	routingTier      *prometheus.CounterVec
	noAgentsTotal    *prometheus.CounterVec

	// DAG 指标
	dagTasksTotal   *prometheus.CounterVec
	dagRunDuration  prometheus.Histogram
	dagRunsRejected *prometheus.CounterVec

	// 反馈循环指标
	feedbackTicks   *prometheus.CounterVec
	feedbackUpdates *prometheus.CounterVec

	// 跨实例同步指标
	federationPushes *prometheus.CounterVec
	federationMerges *prometheus.CounterVec

	// 自治分类指标
	autonomyDecisions *prometheus.CounterVec

	// Agent 指标
	agentSuccessRate *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// 路由指标
	c.dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_dispatch_total",
			Help:      "Total number of dispatch attempts",
		},
		[]string{"agent", "domain", "status"},
	)

	c.dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "router_dispatch_duration_seconds",
			Help:      "Agent dispatch duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent", "domain"},
	)

	c.routingTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_selection_tier_total",
			Help:      "Agent selections by fallback tier",
		},
		[]string{"tier"},
	)

	c.noAgentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_no_agents_total",
			Help:      "Routing attempts that found no candidate agent",
		},
		[]string{"domain"},
	)

	// DAG 指标
	c.dagTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dag_tasks_total",
			Help:      "DAG tasks by terminal status",
		},
		[]string{"status"},
	)

	c.dagRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dag_run_duration_seconds",
			Help:      "DAG execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	c.dagRunsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dag_runs_rejected_total",
			Help:      "DAG executions rejected before dispatch",
		},
		[]string{"reason"},
	)

	// 反馈循环指标
	c.feedbackTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_ticks_total",
			Help:      "Learning feedback ticks by result",
		},
		[]string{"result"},
	)

	c.feedbackUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_agent_updates_total",
			Help:      "Per-agent feedback outcomes",
		},
		[]string{"outcome"}, // outcome: updated, skipped, failed
	)

	// 跨实例同步指标
	c.federationPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_pushes_total",
			Help:      "Capability snapshot pushes by status",
		},
		[]string{"status"},
	)

	c.federationMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_samples_total",
			Help:      "Inbound capability samples by outcome",
		},
		[]string{"outcome"}, // outcome: merged, unknown_agent, duplicate, self, invalid
	)

	// 自治分类指标
	c.autonomyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autonomy_decisions_total",
			Help:      "Autonomy classifications by category and result",
		},
		[]string{"category", "classification"},
	)

	// Agent 指标
	c.agentSuccessRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_success_rate",
			Help:      "Current success rate held in the capability directory",
		},
		[]string{"agent"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🌐 HTTP 指标
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	c.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🎯 路由指标
// =============================================================================

// RecordDispatch 记录一次派发尝试
func (c *Collector) RecordDispatch(agent, domain, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(agent, domain, status).Inc()
	c.dispatchDuration.WithLabelValues(agent, domain).Observe(duration.Seconds())
}

// RecordSelectionTier 记录命中的回退层级
func (c *Collector) RecordSelectionTier(tier int) {
	if c == nil {
		return
	}
	c.routingTier.WithLabelValues(tierLabel(tier)).Inc()
}

// RecordNoAgents 记录找不到候选 Agent
func (c *Collector) RecordNoAgents(domain string) {
	if c == nil {
		return
	}
	c.noAgentsTotal.WithLabelValues(domain).Inc()
}

// =============================================================================
// 🕸️ DAG 指标
// =============================================================================

// RecordDAGTask 记录 DAG 任务的终止状态
func (c *Collector) RecordDAGTask(status string) {
	if c == nil {
		return
	}
	c.dagTasksTotal.WithLabelValues(status).Inc()
}

// RecordDAGRun 记录一次 DAG 执行耗时
func (c *Collector) RecordDAGRun(duration time.Duration) {
	if c == nil {
		return
	}
	c.dagRunDuration.Observe(duration.Seconds())
}

// RecordDAGRejected 记录被拒绝的 DAG（环、非法依赖）
func (c *Collector) RecordDAGRejected(reason string) {
	if c == nil {
		return
	}
	c.dagRunsRejected.WithLabelValues(reason).Inc()
}

// =============================================================================
// 🔁 反馈与同步指标
// =============================================================================

// RecordFeedbackTick 记录一次反馈循环 tick
func (c *Collector) RecordFeedbackTick(result string, updated, skipped, failed int) {
	if c == nil {
		return
	}
	c.feedbackTicks.WithLabelValues(result).Inc()
	c.feedbackUpdates.WithLabelValues("updated").Add(float64(updated))
	c.feedbackUpdates.WithLabelValues("skipped").Add(float64(skipped))
	c.feedbackUpdates.WithLabelValues("failed").Add(float64(failed))
}

// RecordFederationPush 记录一次快照推送
func (c *Collector) RecordFederationPush(status string) {
	if c == nil {
		return
	}
	c.federationPushes.WithLabelValues(status).Inc()
}

// RecordFederationSample 记录一条入站样本的处理结果
func (c *Collector) RecordFederationSample(outcome string) {
	if c == nil {
		return
	}
	c.federationMerges.WithLabelValues(outcome).Inc()
}

// RecordAutonomyDecision 记录一次自治分类
func (c *Collector) RecordAutonomyDecision(category, classification string) {
	if c == nil {
		return
	}
	c.autonomyDecisions.WithLabelValues(category, classification).Inc()
}

// SetAgentSuccessRate 更新 Agent 成功率 gauge
func (c *Collector) SetAgentSuccessRate(agent string, rate float64) {
	if c == nil {
		return
	}
	c.agentSuccessRate.WithLabelValues(agent).Set(rate)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func tierLabel(tier int) string {
	switch tier {
	case 1:
		return "domain_complexity"
	case 2:
		return "domain"
	case 3:
		return "any_available"
	default:
		return "none"
	}
}
