/*
 * @module service/dashboard/chart_processor
 * @description 时间序列图表处理器，将规范化后的历史点转换为可直接渲染的折线图数据与坐标轴参数
 * @architecture 纯函数处理管道 - 范围过滤、模型分组/单线、零值锚点、坐标轴计算逐步组合
 * @documentReference dev_docs/requirements.md 第4.5节
 * @stateFlow 过滤日期范围 -> 分组或单线处理 -> 同日去重 -> 时间排序 -> 前置零值锚点 -> 计算Y轴与X轴参数
 * @rules
 *   - 输出必须与输入点的排列顺序无关（内部排序保证幂等）
 *   - 含至少一个真实点的序列前置空标签的合成零值锚点，使折线从零爬升
 *   - Y轴上限永不低于数据最大值
 * @dependencies aivisibility-service/service/models, aivisibility-service/service/meta
 * @refs service/dashboard/value_resolver.go, service/dashboard/service.go
 */

package dashboard

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/service/utils"
)

const defaultEmptyAxisMax = 100.0

// ChartProcessor 时间序列图表处理器
type ChartProcessor struct {
	now func() time.Time
}

// NewChartProcessor 创建图表处理器
func NewChartProcessor() *ChartProcessor {
	return &ChartProcessor{now: time.Now}
}

// Process 将历史点转换为图表渲染结构
// 空输入产生合法的空图表（保留默认坐标轴刻度），绝不返回nil
func (cp *ChartProcessor) Process(history []models.HistoryPoint, opts models.ChartOptions) *models.ChartResult {
	result := &models.ChartResult{
		ChartData: []models.ChartPoint{},
		ModelIDs:  []string{},
		Breakdown: opts.ShowBreakdown,
	}

	cutoff := opts.DateRange.CutoffFrom(cp.now())
	var inRange []models.HistoryPoint
	for _, p := range history {
		if !p.Date.Before(cutoff) {
			inRange = append(inRange, p)
		}
	}

	granularity := meta.LabelGranularityFor(opts.DateRange)

	if len(inRange) == 0 {
		cp.applyAxis(result, granularity)
		return result
	}

	// 仅一个模型时分线图没有意义，退化为单线模式
	if opts.ShowBreakdown && countDistinctModels(inRange) > 1 {
		cp.processBreakdown(result, inRange, granularity)
	} else {
		result.Breakdown = false
		cp.processSingleLine(result, inRange, opts, granularity)
	}

	if opts.IncludeZeroAnchor && len(result.ChartData) >= 1 {
		cp.prependZeroAnchor(result, opts.DateRange, granularity)
	}

	cp.applyAxis(result, granularity)
	return result
}

// processBreakdown 多模型分线模式
// 以标签为横轴键合并各模型在同一标签下的取值；模型顺序按各自最早数据点时间排序，
// 与输入排列无关
func (cp *ChartProcessor) processBreakdown(result *models.ChartResult, points []models.HistoryPoint, granularity meta.LabelGranularity) {
	sorted := make([]models.HistoryPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	modelOrder := []string{}
	seenModel := map[string]bool{}
	for _, p := range sorted {
		if !seenModel[p.ModelID] {
			seenModel[p.ModelID] = true
			modelOrder = append(modelOrder, p.ModelID)
		}
	}
	result.ModelIDs = modelOrder

	labelOrder := []string{}
	byLabel := map[string]*models.ChartPoint{}
	for _, p := range sorted {
		label := utils.FormatLabel(p.Date, granularity)
		cpnt, ok := byLabel[label]
		if !ok {
			d := p.Date
			cpnt = &models.ChartPoint{Label: label, RawDate: &d, Values: map[string]float64{}}
			byLabel[label] = cpnt
			labelOrder = append(labelOrder, label)
		}
		// 同标签同模型出现多次时保留时间较晚者
		cpnt.Values[p.ModelID] = p.MetricValue
	}

	for _, label := range labelOrder {
		result.ChartData = append(result.ChartData, *byLabel[label])
	}
}

// processSingleLine 单线模式
// 优先使用选中模型的点；选中模型在范围内无数据时回退首个出现的模型并告警
func (cp *ChartProcessor) processSingleLine(result *models.ChartResult, points []models.HistoryPoint, opts models.ChartOptions, granularity meta.LabelGranularity) {
	selected := filterByModel(points, opts.SelectedModel)
	if len(selected) == 0 {
		fallback := firstModelID(points)
		selected = filterByModel(points, fallback)
		slog.Warn("图表模型回退", "requested", opts.SelectedModel, "fallback", fallback)
	}

	deduped := dedupeByDayKeepLatest(selected)
	for _, p := range deduped {
		d := p.Date
		result.ChartData = append(result.ChartData, models.ChartPoint{
			Label:   utils.FormatLabel(p.Date, granularity),
			RawDate: &d,
			Value:   p.MetricValue,
		})
	}
}

// prependZeroAnchor 前置值为0的合成锚点，锚点时间相对首个真实点按日期范围固定偏移
// 锚点标签为空串，使其不产生横轴刻度
func (cp *ChartProcessor) prependZeroAnchor(result *models.ChartResult, dateRange meta.DateRange, _ meta.LabelGranularity) {
	first := result.ChartData[0]
	if first.RawDate == nil {
		return
	}
	anchorDate := first.RawDate.Add(-dateRange.ZeroAnchorOffset())
	anchor := models.ChartPoint{
		Label:             "",
		RawDate:           &anchorDate,
		IsSyntheticAnchor: true,
		Value:             0,
	}
	if first.Values != nil {
		anchor.Values = map[string]float64{}
		for k := range first.Values {
			anchor.Values[k] = 0
		}
	}
	result.ChartData = append([]models.ChartPoint{anchor}, result.ChartData...)
}

// applyAxis 计算Y轴上限、刻度与X轴标签间隔
func (cp *ChartProcessor) applyAxis(result *models.ChartResult, _ meta.LabelGranularity) {
	dataMax := 0.0
	for _, p := range result.ChartData {
		if p.Value > dataMax {
			dataMax = p.Value
		}
		for _, v := range p.Values {
			if v > dataMax {
				dataMax = v
			}
		}
	}

	result.YAxisMax = computeAxisMax(dataMax)
	result.Ticks = evenTicks(result.YAxisMax)
	result.XAxisInterval = xAxisInterval(len(result.ChartData))
}

// computeAxisMax 数据最大值乘1.4上浮后向上取整到合适的步进，空数据固定返回100
// 上限永不低于数据最大值
func computeAxisMax(dataMax float64) float64 {
	if dataMax <= 0 {
		return defaultEmptyAxisMax
	}
	padded := dataMax * 1.4
	var increment float64
	switch {
	case padded <= 10:
		increment = 1
	case padded <= 50:
		increment = 5
	case padded <= 100:
		increment = 10
	default:
		increment = 25
	}
	max := math.Ceil(padded/increment) * increment
	if max < dataMax {
		max = math.Ceil(dataMax/increment) * increment
	}
	return max
}

// evenTicks 0到上限之间5个等距刻度（含两端，共5条刻度线即4个分段）
func evenTicks(axisMax float64) []float64 {
	ticks := make([]float64, 5)
	step := axisMax / 4
	for i := 0; i < 5; i++ {
		ticks[i] = step * float64(i)
	}
	return ticks
}

// xAxisInterval 点数不超过10时每点都显示标签，否则稀疏到约8个标签
func xAxisInterval(n int) int {
	if n <= 10 {
		return 1
	}
	return int(math.Ceil(float64(n) / 8))
}

// countDistinctModels 统计非空模型ID数量
func countDistinctModels(points []models.HistoryPoint) int {
	seen := map[string]bool{}
	for _, p := range points {
		if p.ModelID != "" {
			seen[p.ModelID] = true
		}
	}
	return len(seen)
}
