// 版权所有 2026 AgentRouter Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的路由核心指标采集能力，覆盖
路由派发、DAG 执行、学习反馈、跨实例同步与自治分类五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
Collector 的所有记录方法对 nil 接收者安全，组件可以不注入指标。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - 路由指标：派发次数与耗时（agent/domain/status）、回退层级命中、
    无可用 Agent 计数。
  - DAG 指标：任务终止状态计数、整体执行耗时、预检拒绝计数。
  - 反馈指标：tick 结果计数、逐 Agent 更新/跳过/失败计数。
  - 同步指标：快照推送状态、入站样本处理结果。
  - 自治指标：按 category/classification 分组的决策计数。
  - Agent 指标：目录中当前成功率 Gauge。
*/
package metrics
