// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentRouter HTTP API 的请求处理器实现。

# 概述

handlers 包把能力目录、任务路由、DAG 协调、自主分级以及后台循环的手动触发
暴露为标准 net/http 处理器，并统一响应与错误格式。

# 核心类型

  - AgentHandler     - 能力目录的查询、注册、注销、可用性与学习统计
  - TaskHandler      - 单任务路由、仅选择（不派发）与 DAG 执行
  - AutonomyHandler  - 决策上下文校验与自主分级
  - AdminHandler     - 立即执行一次反馈循环或跨实例同步
  - HealthHandler    - 存活、就绪（可插拔 HealthCheck）与版本信息
  - Response         - 统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

types.ErrorCode 映射为 HTTP 状态码：INVALID_REQUEST / CYCLIC_DEPENDENCY → 400，
NOT_FOUND → 404，ALREADY_EXISTS → 409，MISSING_FIELDS → 422，
NO_AGENTS_FOUND → 503，TIMEOUT → 504，AGENT_ERROR / TRANSPORT_ERROR → 502。
*/
package handlers
