// Package telemetry 负责初始化 OpenTelemetry SDK，为路由、DAG 协调与跨实例同步
// 提供统一的 TracerProvider 和 MeterProvider。资源属性携带实例 ID，
// 便于在多实例部署中区分 span 来源。禁用时保持 noop，不连接任何外部服务。
package telemetry
