/*
 * @module service/dashboard/model_filter
 * @description 模型筛选解析器，将UI层的模型选择映射到两套接口各自的参数词汇并补充展示名称
 * @architecture 分层架构 - 业务服务层
 * @documentReference dev_docs/requirements.md 第4.2节
 * @stateFlow 选择值输入 -> 哨兵判定 -> 参数映射 -> 配置输出
 * @rules 纯函数且全定义：任何字符串输入都有确定输出，未知引擎ID原样透传而非报错
 * @dependencies aivisibility-service/service/meta, aivisibility-service/service/models
 * @refs service/dashboard/value_resolver.go, service/dashboard/chart_processor.go
 */

package dashboard

import (
	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
)

// ResolveModelFilter 将UI层模型选择解析为筛选配置
// "all"时：时间序列接口使用"all"（后端在该键下发布预聚合序列），
// 详细指标接口使用另一个哨兵值（后端预计算的汇总记录）——两套接口对"聚合"没有共同词汇。
// 未知引擎ID视为字面透传，上游可能在客户端未发版时新增引擎
func ResolveModelFilter(selectedModel string) models.ModelFilterConfig {
	if selectedModel == meta.ModelSelectionAll {
		return models.ModelFilterConfig{
			SelectedModel:       selectedModel,
			TimeSeriesParam:     meta.ModelSelectionAll,
			DetailedMetricParam: meta.DetailedMetricAggregateKey,
			IsAggregate:         true,
			DisplayName:         meta.AggregateDisplayName,
		}
	}

	displayName := selectedModel
	if name, ok := meta.EngineDisplayNames[selectedModel]; ok {
		displayName = name
	}

	return models.ModelFilterConfig{
		SelectedModel:       selectedModel,
		TimeSeriesParam:     selectedModel,
		DetailedMetricParam: selectedModel,
		IsAggregate:         false,
		DisplayName:         displayName,
	}
}
