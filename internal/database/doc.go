// 版权所有 2024 AgentRouter Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 管理执行结果日志（outcome journal）所用的 GORM 连接。

# 概述

Open 按配置的驱动（postgres、mysql、sqlite）建立连接，并通过 PoolManager
统一设置连接池参数、后台探活与关闭。sqlite 使用纯 Go 驱动，单连接写入。

# 核心类型

  - PoolManager：持有 GORM 实例与底层 sql.DB，提供 DB / Ping / Stats / Close。
  - PoolConfig：最大空闲与打开连接数、连接生命周期、健康检查间隔。
*/
package database
