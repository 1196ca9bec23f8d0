// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package learning 提供执行结果学习器（Outcome Learner）。

# 概述

Learner 接收 Router 每次派发尝试产生的 ExecutionOutcome，按 Agent 与
领域增量维护聚合统计（总次数、成功率、领域表现、Token 与平均耗时）。
Agent 按哈希分布到固定数量的锁分片上，同一 Agent 的并发写入串行化，
不会丢失增量。

# 核心类型

  - Learner      - 结果记录与统计聚合
  - AgentStats   - 单个 Agent 的聚合统计（含 DomainPerformance）
  - Journal      - 可选的持久化结果日志接口
  - GormJournal  - 基于 GORM 的日志实现（PostgreSQL / MySQL / SQLite）

# 混合成功率

BlendedRate = 0.6 × 总体成功率 + 0.4 × 样本充足领域中的最佳成功率；
若没有领域达到 MinDomainSamples，则直接返回总体成功率。

# 重启策略

默认纯内存，进程重启即清零（Reset 语义）。配置 Journal 后可通过
Warm 从持久化日志重建聚合统计。
*/
package learning
