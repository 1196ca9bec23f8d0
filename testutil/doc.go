// Copyright 2026 AgentRouter Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AgentRouter 测试的共享工具。

# 概述

testutil 包为 API 处理器与服务装配的测试提供统一的上下文、JSON 与
等待辅助，避免各包重复实现相似的测试基础设施。

# 子包

  - testutil/fixtures: 预置能力档案（A1 / A2 / generalist）、目录构造与任务工厂
  - testutil/mocks: MockExecutor，按 Agent 返回预设输出或错误，记录每次派发

# 使用示例

	dir := fixtures.NewDirectory(t)
	exec := mocks.NewMockExecutor().WithError("A2", errors.New("boom"))
	router := routing.NewRouter(dir, exec, nil, routing.DefaultConfig(), nil)
*/
package testutil
