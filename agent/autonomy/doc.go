// Copyright (c) AgentRouter Authors.
// Licensed under the MIT License.

/*
Package autonomy 提供自主决策分级（Autonomy Rule Classifier）。

Classifier 根据决策类别（Category）与上下文向外部规则供应方（RuleSupplier）
查询候选规则，并把最佳候选规则分级为：

  - autonomous：置信度 ≥ 0.9，可直接执行
  - collaborative：置信度 ≥ 0.7，需要协作确认
  - escalated：其余情况，需要人工介入

没有可用规则或供应方失败时，直接以 0.3 的置信度升级（escalated），
状态分别为 no_rules 与 supplier_error。阈值是固定常量，不可配置。

复杂度冲突过滤只在规则与上下文同时声明复杂度且两者不同时生效。
ValidateContext 独立于 Classify，按类别检查必填字段并返回
*types.MissingFieldsError，是否先行校验由调用方决定。
*/
package autonomy
