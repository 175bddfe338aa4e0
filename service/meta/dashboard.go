/*
 * @module service/meta/dashboard
 * @description 仪表盘元数据定义，包括AI引擎注册表、时间范围、页面类型、报告状态等常量
 * @architecture 分层架构 - 元数据层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 无状态常量定义
 * @rules 元数据只增不改，未知引擎ID允许透传以兼容上游新增引擎
 * @refs service/dashboard, service/cache
 */

package meta

import "time"

// ModelSelectionAll UI层"全部模型"选择哨兵值
const ModelSelectionAll = "all"

// DetailedMetricAggregateKey 详细指标接口中后端预计算汇总记录的哨兵值
// 时间序列接口与详细指标接口对"聚合"的词汇不同，调用方不得假设两者一致
const DetailedMetricAggregateKey = "overall_summary"

// AggregateDisplayName 聚合选择的展示名称
const AggregateDisplayName = "全部模型"

// EngineDisplayNames 已知AI引擎ID到展示名称的映射
// 未登记的引擎ID原样透传，展示名称等于ID本身
var EngineDisplayNames = map[string]string{
	"gpt-4":      "ChatGPT (GPT-4)",
	"gpt-4o":     "ChatGPT (GPT-4o)",
	"claude":     "Claude",
	"gemini":     "Gemini",
	"perplexity": "Perplexity",
	"deepseek":   "DeepSeek",
}

// DateRange 仪表盘时间范围
type DateRange string

const (
	DateRange24H DateRange = "24h"
	DateRange7D  DateRange = "7d"
	DateRange30D DateRange = "30d"
	DateRange90D DateRange = "90d"
	DateRange1Y  DateRange = "1y"
)

// IsValid 检查时间范围是否为已定义的枚举值
func (r DateRange) IsValid() bool {
	switch r {
	case DateRange24H, DateRange7D, DateRange30D, DateRange90D, DateRange1Y:
		return true
	}
	return false
}

// CutoffFrom 根据给定的当前时间计算时间范围的起始截止点
func (r DateRange) CutoffFrom(now time.Time) time.Time {
	switch r {
	case DateRange24H:
		return now.Add(-24 * time.Hour)
	case DateRange7D:
		return now.AddDate(0, 0, -7)
	case DateRange30D:
		return now.AddDate(0, 0, -30)
	case DateRange90D:
		return now.AddDate(0, 0, -90)
	case DateRange1Y:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, 0, -30)
	}
}

// ZeroAnchorOffset 合成零点锚相对首个真实数据点的前置偏移量
// 短范围使用小偏移，避免图表起始斜率在视觉上过于陡峭
func (r DateRange) ZeroAnchorOffset() time.Duration {
	switch r {
	case DateRange24H:
		return 2 * time.Hour
	case DateRange7D:
		return 24 * time.Hour
	case DateRange30D:
		return 3 * 24 * time.Hour
	case DateRange90D:
		return 7 * 24 * time.Hour
	case DateRange1Y:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// LabelGranularity 图表横轴标签粒度
type LabelGranularity string

const (
	LabelGranularityHour LabelGranularity = "hour"
	LabelGranularityDay  LabelGranularity = "day"
)

// LabelGranularityFor 根据时间范围选择标签粒度
func LabelGranularityFor(r DateRange) LabelGranularity {
	if r == DateRange24H {
		return LabelGranularityHour
	}
	return LabelGranularityDay
}

// PageType 缓存键的页面类型枚举
type PageType string

const (
	PageTypeDashboard   PageType = "dashboard"
	PageTypeCompetitors PageType = "competitors"
)

// MetricKind 时间序列指标类型
type MetricKind string

const (
	MetricShareOfVoice MetricKind = "share_of_voice"
	MetricSentiment    MetricKind = "sentiment"
	MetricInclusion    MetricKind = "inclusion"
)

// IsValid 判断指标类型是否受支持
func (k MetricKind) IsValid() bool {
	switch k {
	case MetricShareOfVoice, MetricSentiment, MetricInclusion:
		return true
	}
	return false
}

// ReportStatus 报告生成任务状态（由外部任务流水线拥有，本服务仅消费终态）
type ReportStatus string

const (
	ReportStatusQueued    ReportStatus = "QUEUED"
	ReportStatusRunning   ReportStatus = "RUNNING"
	ReportStatusCompleted ReportStatus = "COMPLETED"
	ReportStatusFailed    ReportStatus = "FAILED"
)

// IsTerminal 判断是否为终态
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// IsValid 检查状态值是否为已知状态
func (s ReportStatus) IsValid() bool {
	switch s {
	case ReportStatusQueued, ReportStatusRunning, ReportStatusCompleted, ReportStatusFailed:
		return true
	}
	return false
}

// RatingCategories 详细指标的品类评分固定类目（0-10分）
var RatingCategories = []string{
	"quality",
	"price_value",
	"brand_reputation",
	"brand_trust",
	"customer_service",
}

// IsRatingCategory 检查类目名是否属于固定类目集合
func IsRatingCategory(name string) bool {
	for _, c := range RatingCategories {
		if c == name {
			return true
		}
	}
	return false
}
