// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentRouter 服务端程序入口。

# 概述

cmd/agentrouter 组装能力目录、执行结果学习器、任务路由、DAG 执行、
学习反馈循环、跨实例同步与自治分类，并通过 HTTP API 对外提供服务。
程序支持 YAML 配置文件加环境变量覆盖、结构化日志（zap）、
Prometheus 指标以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server      - 主服务器，管理组件生命周期、API 与 Metrics 双端口
  - Middleware  - HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（执行结果日志表结构与清理）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、RateLimiter（基于 IP）、APIKeyAuth（X-API-Key / Bearer）
  - 可选依赖：database.enabled 启用执行结果日志，federation.enabled 启用 Redis Stream 同步
  - 优雅关闭：信号 → 停止后台循环 → 关闭 HTTP → 关闭 Redis / 数据库 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
