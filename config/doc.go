// Package config 提供 AgentRouter 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量形如 AGENTROUTER_<SECTION>_<FIELD>。
package config
