// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package server 管理路由服务的 HTTP 监听生命周期。

# 概述

Manager 封装 net/http.Server，承载任务路由 API、Prometheus /metrics
与健康检查端点。启动为非阻塞，关闭在配置的超时内排空请求。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start / Shutdown / Wait 生命周期方法。
  - Config：监听地址、读写与空闲超时、最大请求头与优雅关闭超时。

# 主要能力

  - Wait(ctx)：等待上下文结束（通常由 SIGINT/SIGTERM 触发）或服务异常，
    随后执行优雅关闭。
  - ListenAddr：返回实际绑定地址，便于测试使用随机端口。
*/
package server
