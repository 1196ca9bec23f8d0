// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package federation 提供跨实例能力共识同步（Cross-Instance Consensus Sync）。

# 概述

多个独立运行的路由实例各自维护一份能力目录。federation 让它们周期性地
交换能力快照，并以置信度加权的方式把对端观察到的成功率合并进本地目录，
形成尽力而为、最终一致的共识。

# 核心模型

  - CrossInstanceSample：单个 Agent 在某个实例上的能力样本，updated_at 使用 RFC3339
  - Envelope：一次推送的载体 {instance_id, timestamp, capabilities}
  - Transport：至少一次、尽力而为的发布/拉取通道
  - RedisTransport：基于 Redis Streams，每个实例独立的消费者组，XREADGROUP + XACK
  - MemoryBus / MemoryTransport：进程内多实例互联，用于测试与单机部署
  - Synchronizer：推送与拉取合并两个独立的周期任务

# 合并规则

  sample_confidence  = min(1, sample_size/50)
  recency_confidence = clamp(1 - hours/168)，时间缺失或无法解析时取 0.5
  confidence         = 0.6*sample + 0.4*recency
  blended            = local*0.7 + remote*0.3*confidence

同一批次内每个 Agent 以最后一条为准（last-write-wins，已知的近似）。
本地未注册的 Agent 一律忽略，不会自动注册。已应用过的
(instance, agent, updated_at) 样本不会重复合并。

传输与解码失败只记录日志，不会中断同步循环。
*/
package federation
