/*
 * @module service/models/dashboard_models
 * @description 仪表盘数据管道模型定义，包括原始载荷、归一化结构、数据质量报告、解析值和图表结构
 * @architecture 分层架构 - 数据模型层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 原始载荷 -> 归一化 -> 值解析/图表处理 -> 缓存
 * @rules 归一化结构构造后不可变，下次抓取整体替换；历史点的指标值必须为有限实数
 * @dependencies aivisibility-service/service/meta, time
 * @refs service/dashboard, service/cache
 */

package models

import (
	"time"

	"aivisibility-service/service/meta"
)

// RawPayload 网络层返回的原始载荷，字段类型完全不可信
// 任何字段都可能是数字、数字字符串、null或缺失，这里是信任边界
type RawPayload map[string]interface{}

// HistoryPoint 单个时间序列数据点
// MetricValue 恒为有限实数，无法满足该约束的点在归一化阶段被丢弃而非补零
type HistoryPoint struct {
	Date        time.Time `json:"date"`
	ModelID     string    `json:"model_id"`
	MetricValue float64   `json:"metric_value"`
}

// CategoryRating 详细指标的单个类目评分（0-10）
type CategoryRating struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// DetailedMetric 按引擎维度的详细指标记录
type DetailedMetric struct {
	ID              string           `json:"id"`
	DisplayName     string           `json:"display_name"`
	EngineID        string           `json:"engine_id"`
	OverallValue    *float64         `json:"overall_value,omitempty"`
	CategoryRatings []CategoryRating `json:"category_ratings"`
}

// DataQualityReport 归一化过程的数据质量报告
// 仅用于可观测性与置信度阈值判断，不参与业务逻辑
type DataQualityReport struct {
	TotalFields   int      `json:"total_fields"`
	ValidFields   int      `json:"valid_fields"`
	MissingFields []string `json:"missing_fields"`
	InvalidFields []string `json:"invalid_fields"`
	Warnings      []string `json:"warnings"`
	Confidence    float64  `json:"confidence"` // 0..1，仅由顶层标量字段计算
}

// NormalizedDashboardData 归一化后的仪表盘数据聚合
// 每次抓取构造一次，此后不可变，下次抓取或缓存替换时整体更换
type NormalizedDashboardData struct {
	ShareOfVoice        *float64 `json:"share_of_voice"`
	ShareOfVoiceChange  *float64 `json:"share_of_voice_change"`
	SentimentScore      *float64 `json:"sentiment_score"`
	SentimentChange     *float64 `json:"sentiment_change"`
	InclusionRate       *float64 `json:"inclusion_rate"`
	InclusionRateChange *float64 `json:"inclusion_rate_change"`
	AveragePosition     *float64 `json:"average_position"`

	ShareOfVoiceHistory []HistoryPoint `json:"share_of_voice_history"`
	SentimentHistory    []HistoryPoint `json:"sentiment_history"`
	InclusionHistory    []HistoryPoint `json:"inclusion_history"`

	DetailedMetrics []DetailedMetric `json:"detailed_metrics"`

	DataQuality DataQualityReport `json:"data_quality"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// HistoryFor 返回指定指标类型对应的历史序列
func (d *NormalizedDashboardData) HistoryFor(kind meta.MetricKind) []HistoryPoint {
	switch kind {
	case meta.MetricShareOfVoice:
		return d.ShareOfVoiceHistory
	case meta.MetricSentiment:
		return d.SentimentHistory
	case meta.MetricInclusion:
		return d.InclusionHistory
	}
	return nil
}

// DirectValueFor 返回指定指标类型对应的扁平"当前值"字段
func (d *NormalizedDashboardData) DirectValueFor(kind meta.MetricKind) *float64 {
	switch kind {
	case meta.MetricShareOfVoice:
		return d.ShareOfVoice
	case meta.MetricSentiment:
		return d.SentimentScore
	case meta.MetricInclusion:
		return d.InclusionRate
	}
	return nil
}

// ChangeValueFor 返回指定指标类型对应的API提供的变化量字段
func (d *NormalizedDashboardData) ChangeValueFor(kind meta.MetricKind) *float64 {
	switch kind {
	case meta.MetricShareOfVoice:
		return d.ShareOfVoiceChange
	case meta.MetricSentiment:
		return d.SentimentChange
	case meta.MetricInclusion:
		return d.InclusionRateChange
	}
	return nil
}

// NormalizeOptions 归一化选项
type NormalizeOptions struct {
	StrictMode    bool    `json:"strict_mode"`    // true时意外转换异常作为致命错误上抛
	MinConfidence float64 `json:"min_confidence"` // 值解析的最低置信度阈值
}

// ModelFilterConfig 模型筛选配置，按请求派生、不落存储
// 不变式：IsAggregate 为 true 当且仅当 SelectedModel == "all"
type ModelFilterConfig struct {
	SelectedModel       string `json:"selected_model"`
	TimeSeriesParam     string `json:"time_series_param"`
	DetailedMetricParam string `json:"detailed_metric_param"`
	IsAggregate         bool   `json:"is_aggregate"`
	DisplayName         string `json:"display_name"`
}

// ValueSource 解析值的来源枚举
type ValueSource string

const (
	ValueSourceTimeSeries      ValueSource = "time_series"
	ValueSourceDetailedMetrics ValueSource = "detailed_metrics"
	ValueSourceDirectField     ValueSource = "direct_field"
	ValueSourceUnavailable     ValueSource = "unavailable"
)

// ResolvedValue 单次解析调用的产物，随输入重新计算、不独立缓存
type ResolvedValue struct {
	Value      *float64    `json:"value"`
	Source     ValueSource `json:"source"`
	Confidence float64     `json:"confidence"` // 0..1
	Warnings   []string    `json:"warnings"`
}

// ChartPoint 图表数据点，按时间升序排列，可选一个前置合成零点锚
type ChartPoint struct {
	Label             string             `json:"label"`
	RawDate           *time.Time         `json:"raw_date,omitempty"`
	IsSyntheticAnchor bool               `json:"is_synthetic_anchor"`
	Value             float64            `json:"value"`
	Values            map[string]float64 `json:"values,omitempty"` // 分解模式下按模型ID的多值
}

// ChartOptions 图表处理选项
type ChartOptions struct {
	DateRange         meta.DateRange `json:"date_range"`
	SelectedModel     string         `json:"selected_model"`
	ShowBreakdown     bool           `json:"show_breakdown"`
	IncludeZeroAnchor bool           `json:"include_zero_anchor"`
}

// ChartResult 图表处理结果，包含坐标轴缩放元数据
type ChartResult struct {
	ChartData     []ChartPoint `json:"chart_data"`
	ModelIDs      []string     `json:"model_ids"`
	Breakdown     bool         `json:"breakdown"`
	YAxisMax      float64      `json:"y_axis_max"`
	Ticks         []float64    `json:"ticks"`
	XAxisInterval int          `json:"x_axis_interval"`
}

// ReportStatusInfo 报告状态轮询接口的返回结构（状态机归外部流水线所有）
type ReportStatusInfo struct {
	Status     meta.ReportStatus `json:"status"`
	StepStatus string            `json:"step_status"`
}

// DashboardFilters 页面请求的筛选条件集合
type DashboardFilters struct {
	SelectedModel string         `json:"selected_model"`
	DateRange     meta.DateRange `json:"date_range"`
}

// ToMap 转为键值对，用于计算与键顺序无关的筛选哈希
func (f DashboardFilters) ToMap() map[string]string {
	return map[string]string{
		"selected_model": f.SelectedModel,
		"date_range":     string(f.DateRange),
	}
}

// DashboardBundle 一次编排调用的完整产出，写入缓存的即是该结构
type DashboardBundle struct {
	CompanyID     string                       `json:"company_id"`
	NoReport      bool                         `json:"no_report"` // 上游尚无已完成报告，应路由到引导/空状态
	Data          *NormalizedDashboardData     `json:"data,omitempty"`
	ModelFilter   ModelFilterConfig            `json:"model_filter"`
	CurrentValues map[string]ResolvedValue     `json:"current_values,omitempty"`
	ChangeValues  map[string]ResolvedValue     `json:"change_values,omitempty"`
	Charts        map[string]*ChartResult      `json:"charts,omitempty"`
	FetchedAt     time.Time                    `json:"fetched_at"`
	FromCache     bool                         `json:"from_cache"`
	Stale         bool                         `json:"stale"`
}
