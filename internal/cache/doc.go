// 版权所有 2024 AgentRouter Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理路由服务的 Redis 连接。

# 概述

Manager 在启动时 Ping 校验连接，之后按 HealthCheckInterval 周期检查，
并将结果暴露给就绪探针。跨实例同步的 Redis Stream 传输通过 Client()
复用同一个连接池。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Client / Ping / Healthy / Close。
  - Config：地址、密码、连接池、健康检查间隔与建连超时。
*/
package cache
