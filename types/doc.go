// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package types 提供路由核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 discovery、learning、
routing、workflow、federation 与 autonomy 等上层模块提供统一的类型契约。

# 核心类型

  - Task              - 待路由的工作单元（领域、复杂度、依赖、超时、重试次数）
  - Domain            - 领域标签枚举，含显式的 DomainOther 兜底值
  - Complexity        - simple / medium / complex，含 ComplexityUnknown
  - ExecutionOutcome  - 每次派发尝试产生的一条只追加结果记录
  - Error / ErrorCode - 结构化错误体系（NO_AGENTS_FOUND、TIMEOUT 等）
  - MissingFieldsError - 上下文校验失败时携带缺失字段列表

# 主要能力

  - 错误工具链：GetErrorCode / IsErrorCode / IsRetryable，errors.Is 按错误码匹配
  - 成功率约束：ClampRate 将任意值收敛到 [0, 1]
  - Context 传播：WithTraceID / WithRunID / WithInstanceID
*/
package types
