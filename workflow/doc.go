// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package workflow 提供 DAG 执行协调器（DAG Execution Coordinator）。

# 概述

DAGExecutor 接收一组带依赖关系的 Task，先构建依赖图并做拓扑可行性检查，
再通过 Task Router 按依赖顺序并发执行，并发度由信号量限制。

# 核心类型

  - TaskGraph   - 依赖图（重复 ID、未知依赖与环检测，Kahn 分层）
  - DAGExecutor - 事件循环调度器：就绪任务派发、完成后重新评估下游
  - TaskResult  - 单个任务的终止状态（ok / error / skipped / timeout）

# 执行语义

  - 存在环时返回 CYCLIC_DEPENDENCY，且不会执行任何任务
  - 任务失败时，其所有下游任务被标记为 skipped，不会被派发
  - 任务在全部依赖进入终止状态前绝不会开始
  - 整体超时后未完成的任务在结果中标记为 timeout，调用本身不失败
  - 任务自身的 Timeout / RetryCount 覆盖 DAGOptions.RouteOptions
*/
package workflow
