/*
 * @module service/dashboard/normalizer
 * @description 归一化层，将部分畸形的原始API载荷转换为完全类型化的空值安全结构并生成数据质量报告
 * @architecture 分层架构 - 数据归一化层
 * @documentReference dev_docs/requirements.md 第4.3节
 * @stateFlow 原始载荷 -> 标量字段逐一转换 -> 数组字段逐元素转换 -> 质量报告汇总
 * @rules
 *   - 单字段失败只计数不中断整体归一化
 *   - 被丢弃的历史点永不退化为0值数据点
 *   - 置信度仅由顶层标量字段计算，数组元素有效性经warnings侧通道上报
 * @dependencies aivisibility-service/service/utils, aivisibility-service/service/models
 * @refs service/dashboard/value_resolver.go, service/dashboard/service.go
 */

package dashboard

import (
	"fmt"
	"log/slog"
	"time"

	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/service/utils"

	"github.com/spf13/cast"
)

// scalarFields 顶层标量字段清单，质量报告的分母即该清单长度
var scalarFields = []string{
	"share_of_voice",
	"share_of_voice_change",
	"sentiment_score",
	"sentiment_change",
	"inclusion_rate",
	"inclusion_rate_change",
	"average_position",
}

// Normalizer 仪表盘数据归一化器
type Normalizer struct {
	opts models.NormalizeOptions
	now  func() time.Time
}

// NewNormalizer 创建归一化器实例
func NewNormalizer(opts models.NormalizeOptions) *Normalizer {
	return &Normalizer{
		opts: opts,
		now:  time.Now,
	}
}

// Normalize 将原始载荷归一化为完全类型化的仪表盘数据
// 非严格模式下总是返回可用结构（最坏情况为全空），供UI渲染"无数据"状态而非崩溃；
// 严格模式下意外的转换异常作为致命错误返回
func (n *Normalizer) Normalize(raw models.RawPayload) (*models.NormalizedDashboardData, error) {
	data := &models.NormalizedDashboardData{
		ShareOfVoiceHistory: []models.HistoryPoint{},
		SentimentHistory:    []models.HistoryPoint{},
		InclusionHistory:    []models.HistoryPoint{},
		DetailedMetrics:     []models.DetailedMetric{},
		GeneratedAt:         n.now(),
	}
	report := &data.DataQuality
	report.TotalFields = len(scalarFields)
	report.MissingFields = []string{}
	report.InvalidFields = []string{}
	report.Warnings = []string{}

	// 标量字段相互独立转换，单字段失败只计数
	scalars := make(map[string]*float64, len(scalarFields))
	for _, field := range scalarFields {
		scalars[field] = n.normalizeScalar(raw, field, report)
	}
	data.ShareOfVoice = scalars["share_of_voice"]
	data.ShareOfVoiceChange = scalars["share_of_voice_change"]
	data.SentimentScore = scalars["sentiment_score"]
	data.SentimentChange = scalars["sentiment_change"]
	data.InclusionRate = scalars["inclusion_rate"]
	data.InclusionRateChange = scalars["inclusion_rate_change"]
	data.AveragePosition = scalars["average_position"]

	var fatal error
	data.ShareOfVoiceHistory, fatal = n.normalizeHistory(raw, "share_of_voice_history", report)
	if fatal != nil {
		return nil, fatal
	}
	data.SentimentHistory, fatal = n.normalizeHistory(raw, "sentiment_history", report)
	if fatal != nil {
		return nil, fatal
	}
	data.InclusionHistory, fatal = n.normalizeHistory(raw, "inclusion_history", report)
	if fatal != nil {
		return nil, fatal
	}
	data.DetailedMetrics, fatal = n.normalizeDetailedMetrics(raw, report)
	if fatal != nil {
		return nil, fatal
	}

	// 置信度 = 有效标量字段 / 标量字段总数，数组有效性不折算进该比率
	// 否则一个95%有效的200元素历史数组会淹没7个标量字段的置信度
	if report.TotalFields > 0 {
		report.Confidence = float64(report.ValidFields) / float64(report.TotalFields)
	}

	slog.Debug("仪表盘载荷归一化完成",
		"valid_fields", report.ValidFields,
		"missing", len(report.MissingFields),
		"invalid", len(report.InvalidFields),
		"confidence", report.Confidence)

	return data, nil
}

// normalizeScalar 转换单个标量字段并更新质量报告
func (n *Normalizer) normalizeScalar(raw models.RawPayload, field string, report *models.DataQualityReport) *float64 {
	value, present := utils.FieldValue(raw, field)
	if !present {
		report.MissingFields = append(report.MissingFields, field)
		return nil
	}

	f, outcome := utils.CoerceNumber(value)
	switch outcome {
	case utils.CoerceOK:
		report.ValidFields++
		return &f
	case utils.CoerceMissing:
		report.MissingFields = append(report.MissingFields, field)
		return nil
	default:
		report.InvalidFields = append(report.InvalidFields, field)
		slog.Warn("标量字段值无效", "field", field, "value", fmt.Sprintf("%v", value))
		return nil
	}
}

// normalizeHistory 逐元素归一化历史数组
// 日期不可解析或数值非法的点被丢弃并计数，绝不补零——补零会污染下游趋势计算
func (n *Normalizer) normalizeHistory(raw models.RawPayload, field string, report *models.DataQualityReport) ([]models.HistoryPoint, error) {
	points := []models.HistoryPoint{}

	value, present := utils.FieldValue(raw, field)
	if !present || value == nil {
		return points, nil
	}

	items, ok := value.([]interface{})
	if !ok {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s 不是数组，已忽略", field))
		return points, nil
	}

	dropped := 0
	for i, item := range items {
		point, pointOK, err := n.normalizeHistoryPoint(item, field, i, report)
		if err != nil {
			return nil, err
		}
		if !pointOK {
			dropped++
			continue
		}
		points = append(points, point)
	}

	if dropped > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s 丢弃 %d/%d 个无效数据点", field, dropped, len(items)))
	}

	return points, nil
}

// normalizeHistoryPoint 转换单个历史点，异常隔离到该元素
func (n *Normalizer) normalizeHistoryPoint(item interface{}, field string, index int, report *models.DataQualityReport) (point models.HistoryPoint, ok bool, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			if n.opts.StrictMode {
				fatal = fmt.Errorf("归一化 %s[%d] 时发生异常: %v", field, index, r)
				return
			}
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s[%d] 转换异常已跳过: %v", field, index, r))
			ok = false
		}
	}()

	m, isMap := item.(map[string]interface{})
	if !isMap {
		return point, false, nil
	}

	dateRaw, _ := utils.FieldValue(m, "date")
	instant, dateOK := utils.ParseInstant(cast.ToString(dateRaw))
	if !dateOK {
		return point, false, nil
	}

	modelRaw, _ := utils.FieldValue(m, "model_id")
	if modelRaw == nil {
		modelRaw, _ = utils.FieldValue(m, "model")
	}
	modelID := cast.ToString(modelRaw)
	if modelID == "" {
		return point, false, nil
	}

	valueRaw, _ := utils.FieldValue(m, "metric_value")
	if valueRaw == nil {
		valueRaw, _ = utils.FieldValue(m, "value")
	}
	metricValue, outcome := utils.CoerceNumber(valueRaw)
	if outcome != utils.CoerceOK {
		return point, false, nil
	}

	return models.HistoryPoint{
		Date:        instant,
		ModelID:     modelID,
		MetricValue: metricValue,
	}, true, nil
}

// normalizeDetailedMetrics 逐元素归一化详细指标数组
func (n *Normalizer) normalizeDetailedMetrics(raw models.RawPayload, report *models.DataQualityReport) ([]models.DetailedMetric, error) {
	metrics := []models.DetailedMetric{}

	value, present := utils.FieldValue(raw, "detailed_metrics")
	if !present || value == nil {
		return metrics, nil
	}

	items, ok := value.([]interface{})
	if !ok {
		report.Warnings = append(report.Warnings, "detailed_metrics 不是数组，已忽略")
		return metrics, nil
	}

	dropped := 0
	for i, item := range items {
		metric, metricOK, err := n.normalizeDetailedMetric(item, i, report)
		if err != nil {
			return nil, err
		}
		if !metricOK {
			dropped++
			continue
		}
		metrics = append(metrics, metric)
	}

	if dropped > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("detailed_metrics 丢弃 %d/%d 条无效记录", dropped, len(items)))
	}

	return metrics, nil
}

// normalizeDetailedMetric 转换单条详细指标记录
// overall_value 缺失合法（下游由类目评分求均值），但 engine_id 是必填字段
func (n *Normalizer) normalizeDetailedMetric(item interface{}, index int, report *models.DataQualityReport) (metric models.DetailedMetric, ok bool, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			if n.opts.StrictMode {
				fatal = fmt.Errorf("归一化 detailed_metrics[%d] 时发生异常: %v", index, r)
				return
			}
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("detailed_metrics[%d] 转换异常已跳过: %v", index, r))
			ok = false
		}
	}()

	m, isMap := item.(map[string]interface{})
	if !isMap {
		return metric, false, nil
	}

	engineRaw, _ := utils.FieldValue(m, "engine_id")
	engineID := cast.ToString(engineRaw)
	if engineID == "" {
		return metric, false, nil
	}

	metric = models.DetailedMetric{
		ID:              cast.ToString(m["id"]),
		EngineID:        engineID,
		CategoryRatings: []models.CategoryRating{},
	}

	nameRaw, _ := utils.FieldValue(m, "display_name")
	metric.DisplayName = cast.ToString(nameRaw)
	if metric.DisplayName == "" {
		metric.DisplayName = engineID
	}

	overallRaw, _ := utils.FieldValue(m, "overall_value")
	if f, outcome := utils.CoerceNumber(overallRaw); outcome == utils.CoerceOK {
		metric.OverallValue = &f
	}

	ratingsRaw, _ := utils.FieldValue(m, "category_ratings")
	if ratings, isSlice := ratingsRaw.([]interface{}); isSlice {
		droppedRatings := 0
		for _, r := range ratings {
			rm, isRatingMap := r.(map[string]interface{})
			if !isRatingMap {
				droppedRatings++
				continue
			}
			category := cast.ToString(rm["category"])
			score, outcome := utils.CoerceNumber(rm["score"])
			// 类目必须属于固定集合，评分限定0-10，越界即整条评分作废
			if !meta.IsRatingCategory(category) || outcome != utils.CoerceOK || score < 0 || score > 10 {
				droppedRatings++
				continue
			}
			metric.CategoryRatings = append(metric.CategoryRatings, models.CategoryRating{
				Category: category,
				Score:    score,
			})
		}
		if droppedRatings > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("detailed_metrics[%d] 丢弃 %d 条无效类目评分", index, droppedRatings))
		}
	}

	return metric, true, nil
}
