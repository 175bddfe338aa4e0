/*
 * @module service/dashboard/value_resolver
 * @description 值解析引擎，在多个相互矛盾的上游来源间按固定优先级链决定指标的唯一权威当前值
 * @architecture 策略模式 - 有序策略链共享统一置信度阈值，逐策略独立可测
 * @documentReference dev_docs/requirements.md 第4.4节
 * @stateFlow 时间序列 -> 详细指标 -> 直接标量字段 -> 不可用，首个达到置信度阈值的结果短路返回
 * @rules
 *   - 每一步产生的警告无论是否最终提供答案都要累积保留
 *   - 模型回退（选中模型无数据时退回首个有数据的模型）必须记录警告，因为它悄无声息地改变了展示内容
 *   - 变化量只信任API提供的数值，不凭空捏造
 * @dependencies aivisibility-service/service/models, aivisibility-service/service/meta
 * @refs service/dashboard/normalizer.go, service/dashboard/service.go
 */

package dashboard

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/service/utils"
)

// 各来源的固定置信度
const (
	confidenceTimeSeries      = 0.95 // 真实观测数据
	confidenceDetailedOverall = 0.85 // 后端计算的overall值
	confidenceDetailedAverage = 0.70 // 前端求均值，可信度天然更低
	confidenceDirectField     = 0.60 // 来源不明的扁平当前值字段
	defaultMinConfidence      = 0.5
)

// ValueResolver 指标当前值解析器
type ValueResolver struct {
	minConfidence float64
	now           func() time.Time
}

// NewValueResolver 创建值解析器，minConfidence不合法时使用默认阈值0.5
func NewValueResolver(minConfidence float64) *ValueResolver {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = defaultMinConfidence
	}
	return &ValueResolver{
		minConfidence: minConfidence,
		now:           time.Now,
	}
}

// resolutionStep 单个解析策略
type resolutionStep struct {
	name    string
	resolve func() models.ResolvedValue
}

// ResolveCurrentValue 解析指定指标在当前筛选条件下的唯一权威当前值
// 按固定优先级链顺序评估，首个置信度达到阈值且有值的结果胜出；
// 所有步骤的警告合并进最终结果，调用方可在成功时也展示这些警告用于排查
func (vr *ValueResolver) ResolveCurrentValue(data *models.NormalizedDashboardData, kind meta.MetricKind, filter models.ModelFilterConfig, dateRange meta.DateRange) models.ResolvedValue {
	warnings := []string{}

	steps := []resolutionStep{
		{
			name: "time_series",
			resolve: func() models.ResolvedValue {
				return vr.resolveFromTimeSeries(data.HistoryFor(kind), filter, dateRange)
			},
		},
		{
			name: "detailed_metrics",
			resolve: func() models.ResolvedValue {
				return vr.resolveFromDetailedMetrics(data.DetailedMetrics, kind, filter)
			},
		},
		{
			name: "direct_field",
			resolve: func() models.ResolvedValue {
				return vr.resolveFromDirectField(data.DirectValueFor(kind))
			},
		},
	}

	for _, step := range steps {
		result := step.resolve()
		warnings = append(warnings, result.Warnings...)
		if result.Value != nil && result.Confidence >= vr.minConfidence {
			result.Warnings = warnings
			slog.Debug("指标当前值解析完成",
				"metric", string(kind),
				"source", string(result.Source),
				"confidence", result.Confidence)
			return result
		}
	}

	warnings = append(warnings, fmt.Sprintf("指标 %s 无任何来源可提供达到阈值 %.2f 的值", kind, vr.minConfidence))
	return models.ResolvedValue{
		Value:      nil,
		Source:     models.ValueSourceUnavailable,
		Confidence: 0,
		Warnings:   warnings,
	}
}

// resolveFromTimeSeries 策略1：时间序列
// 按日期范围过滤 -> 按选中模型过滤（零点时回退首个出现的模型并告警）-> 同日去重保留最新 -> 取时间上最后一点
func (vr *ValueResolver) resolveFromTimeSeries(history []models.HistoryPoint, filter models.ModelFilterConfig, dateRange meta.DateRange) models.ResolvedValue {
	result := models.ResolvedValue{Source: models.ValueSourceTimeSeries, Warnings: []string{}}
	if len(history) == 0 {
		return result
	}

	cutoff := dateRange.CutoffFrom(vr.now())
	var inRange []models.HistoryPoint
	for _, p := range history {
		if !p.Date.Before(cutoff) {
			inRange = append(inRange, p)
		}
	}
	if len(inRange) == 0 {
		result.Warnings = append(result.Warnings, "时间序列在所选日期范围内无数据点")
		return result
	}

	target := filter.TimeSeriesParam
	selected := filterByModel(inRange, target)
	if len(selected) == 0 {
		fallback := firstModelID(inRange)
		selected = filterByModel(inRange, fallback)
		warning := fmt.Sprintf("模型 %s 在所选范围内无数据，已回退到模型 %s", target, fallback)
		result.Warnings = append(result.Warnings, warning)
		slog.Warn("时间序列模型回退", "requested", target, "fallback", fallback)
	}

	deduped := dedupeByDayKeepLatest(selected)
	last := deduped[len(deduped)-1]
	result.Value = &last.MetricValue
	result.Confidence = confidenceTimeSeries
	return result
}

// resolveFromDetailedMetrics 策略2：详细指标
// 优先使用显式的overall值；缺失时对存在的类目评分求均值（缺失类目跳过而非按0计）
// 品类评分语义上是情感/口碑类评价，只参与情感指标的解析
func (vr *ValueResolver) resolveFromDetailedMetrics(metrics []models.DetailedMetric, kind meta.MetricKind, filter models.ModelFilterConfig) models.ResolvedValue {
	result := models.ResolvedValue{Source: models.ValueSourceDetailedMetrics, Warnings: []string{}}
	if kind != meta.MetricSentiment || len(metrics) == 0 {
		return result
	}

	var match *models.DetailedMetric
	for i := range metrics {
		if metrics[i].EngineID == filter.DetailedMetricParam {
			match = &metrics[i]
			break
		}
	}
	if match == nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("详细指标中不存在引擎 %s 的记录", filter.DetailedMetricParam))
		return result
	}

	if match.OverallValue != nil {
		result.Value = match.OverallValue
		result.Confidence = confidenceDetailedOverall
		return result
	}

	if len(match.CategoryRatings) == 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("引擎 %s 的详细指标既无overall值也无类目评分", match.EngineID))
		return result
	}

	sum := 0.0
	for _, r := range match.CategoryRatings {
		sum += r.Score
	}
	avg := sum / float64(len(match.CategoryRatings))
	result.Value = &avg
	result.Confidence = confidenceDetailedAverage
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("引擎 %s 缺少overall值，已由 %d 个类目评分求均值", match.EngineID, len(match.CategoryRatings)))
	return result
}

// resolveFromDirectField 策略3：来源不明的扁平当前值字段
func (vr *ValueResolver) resolveFromDirectField(direct *float64) models.ResolvedValue {
	result := models.ResolvedValue{Source: models.ValueSourceDirectField, Warnings: []string{}}
	if direct == nil {
		return result
	}
	result.Value = direct
	result.Confidence = confidenceDirectField
	return result
}

// ResolveChangeValue 解析指标的变化量
// 只信任API提供的数值型delta，否则报告不可用。
// 由最近两个时间序列点自行计算差值是已知缺口，暂不实现，避免给出缺乏校验依据的数字
func (vr *ValueResolver) ResolveChangeValue(data *models.NormalizedDashboardData, kind meta.MetricKind) models.ResolvedValue {
	delta := data.ChangeValueFor(kind)
	if delta == nil {
		return models.ResolvedValue{
			Value:      nil,
			Source:     models.ValueSourceUnavailable,
			Confidence: 0,
			Warnings:   []string{fmt.Sprintf("API未提供指标 %s 的变化量", kind)},
		}
	}
	return models.ResolvedValue{
		Value:      delta,
		Source:     models.ValueSourceDirectField,
		Confidence: confidenceDirectField,
		Warnings:   []string{},
	}
}

// filterByModel 过滤出指定模型的点
func filterByModel(points []models.HistoryPoint, modelID string) []models.HistoryPoint {
	var out []models.HistoryPoint
	for _, p := range points {
		if p.ModelID == modelID {
			out = append(out, p)
		}
	}
	return out
}

// firstModelID 取时间上最早的点所属的模型ID，保证回退结果与输入顺序无关
func firstModelID(points []models.HistoryPoint) string {
	earliest := points[0]
	for _, p := range points[1:] {
		if p.Date.Before(earliest.Date) {
			earliest = p
		}
	}
	return earliest.ModelID
}

// dedupeByDayKeepLatest 同一日历日去重保留时间戳较晚者，结果按时间升序
func dedupeByDayKeepLatest(points []models.HistoryPoint) []models.HistoryPoint {
	sorted := make([]models.HistoryPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	var out []models.HistoryPoint
	for _, p := range sorted {
		if len(out) > 0 && utils.SameCalendarDay(out[len(out)-1].Date, p.Date) {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}
