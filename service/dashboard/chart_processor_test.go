/*
 * @module service/dashboard/chart_processor_test
 * @description 图表处理器单元测试
 * @architecture 测试架构 - 表驱动测试与顺序无关性验证
 * @documentReference service/dashboard/chart_processor.go
 * @stateFlow 历史点构造 -> 图表处理 -> 渲染结构断言
 * @rules 固定时钟消除对真实时间的依赖；验证零值锚点与坐标轴算术的精确值
 * @dependencies testing, stretchr/testify, aivisibility-service/testutil
 */

package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/testutil"
)

func newTestChartProcessor() *ChartProcessor {
	cp := NewChartProcessor()
	cp.now = testutil.FixedClock(testutil.FixedNow)
	return cp
}

// TestProcessEmptyHistory 空输入产生合法的空图表
func TestProcessEmptyHistory(t *testing.T) {
	cp := newTestChartProcessor()
	got := cp.Process(nil, models.ChartOptions{DateRange: meta.DateRange30D, SelectedModel: "all"})

	require.NotNil(t, got)
	assert.Empty(t, got.ChartData)
	assert.InDelta(t, 100.0, got.YAxisMax, 1e-9, "空数据使用固定的默认纵轴上限")
	assert.Len(t, got.Ticks, 5)
	assert.Equal(t, 1, got.XAxisInterval)
}

// TestProcessSingleLineChronological 单线模式按时间升序输出
func TestProcessSingleLineChronological(t *testing.T) {
	cp := newTestChartProcessor()
	// 乱序输入
	history := []models.HistoryPoint{
		historyPoint("2025-01-18", "gpt-4", 35.2),
		historyPoint("2025-01-12", "gpt-4", 31.0),
		historyPoint("2025-01-15", "gpt-4", 33.0),
	}

	got := cp.Process(history, models.ChartOptions{DateRange: meta.DateRange30D, SelectedModel: "gpt-4"})

	require.Len(t, got.ChartData, 3)
	assert.Equal(t, "1/12", got.ChartData[0].Label)
	assert.Equal(t, "1/15", got.ChartData[1].Label)
	assert.Equal(t, "1/18", got.ChartData[2].Label)
	assert.InDelta(t, 31.0, got.ChartData[0].Value, 1e-9)
}

// TestProcessShuffleIdempotent 输出与输入排列顺序无关
func TestProcessShuffleIdempotent(t *testing.T) {
	cp := newTestChartProcessor()
	a := []models.HistoryPoint{
		historyPoint("2025-01-12", "gpt-4", 31.0),
		historyPoint("2025-01-15", "claude", 28.0),
		historyPoint("2025-01-18", "gpt-4", 35.2),
	}
	b := []models.HistoryPoint{a[2], a[0], a[1]}

	opts := models.ChartOptions{DateRange: meta.DateRange30D, SelectedModel: "all", ShowBreakdown: true}
	gotA := cp.Process(a, opts)
	gotB := cp.Process(b, opts)

	assert.Equal(t, gotA.ChartData, gotB.ChartData)
	assert.Equal(t, gotA.ModelIDs, gotB.ModelIDs)
}

// TestProcessBreakdown 多模型分线按标签合并取值
func TestProcessBreakdown(t *testing.T) {
	cp := newTestChartProcessor()
	history := []models.HistoryPoint{
		historyPoint("2025-01-15", "gpt-4", 33.0),
		historyPoint("2025-01-15", "claude", 28.0),
		historyPoint("2025-01-18", "gpt-4", 35.2),
	}

	got := cp.Process(history, models.ChartOptions{DateRange: meta.DateRange30D, SelectedModel: "all", ShowBreakdown: true})

	assert.True(t, got.Breakdown)
	assert.Equal(t, []string{"gpt-4", "claude"}, got.ModelIDs)
	require.Len(t, got.ChartData, 2)

	first := got.ChartData[0]
	assert.Equal(t, "1/15", first.Label)
	assert.InDelta(t, 33.0, first.Values["gpt-4"], 1e-9)
	assert.InDelta(t, 28.0, first.Values["claude"], 1e-9)

	second := got.ChartData[1]
	assert.Equal(t, "1/18", second.Label)
	_, hasClaude := second.Values["claude"]
	assert.False(t, hasClaude, "缺数据的模型不得被补0")
}

// TestProcessRangeFilter 范围外的点被排除
func TestProcessRangeFilter(t *testing.T) {
	cp := newTestChartProcessor()
	history := []models.HistoryPoint{
		historyPoint("2024-06-01", "gpt-4", 20.0),
		historyPoint("2025-01-18", "gpt-4", 35.2),
		historyPoint("2025-01-15", "gpt-4", 33.0),
	}

	got := cp.Process(history, models.ChartOptions{DateRange: meta.DateRange7D, SelectedModel: "gpt-4"})

	require.Len(t, got.ChartData, 2)
	assert.Equal(t, "1/15", got.ChartData[0].Label)
}

// TestProcessZeroAnchor 单点序列前置合成零值锚点
func TestProcessZeroAnchor(t *testing.T) {
	cp := newTestChartProcessor()
	history := []models.HistoryPoint{
		historyPoint("2025-01-15", "gpt-4", 35.2),
	}

	got := cp.Process(history, models.ChartOptions{
		DateRange:         meta.DateRange30D,
		SelectedModel:     "gpt-4",
		IncludeZeroAnchor: true,
	})

	require.Len(t, got.ChartData, 2)

	anchor := got.ChartData[0]
	assert.True(t, anchor.IsSyntheticAnchor)
	assert.Zero(t, anchor.Value)
	assert.Equal(t, "", anchor.Label, "锚点标签为空串，不产生横轴刻度")
	require.NotNil(t, anchor.RawDate)
	assert.True(t, anchor.RawDate.Equal(time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)), "30d范围的锚点在真实点前3天")

	real := got.ChartData[1]
	assert.False(t, real.IsSyntheticAnchor)
	assert.InDelta(t, 35.2, real.Value, 1e-9)

	// 纵轴：35.2*1.4=49.28，按5向上取整到50
	assert.InDelta(t, 50.0, got.YAxisMax, 1e-9)
	assert.Equal(t, []float64{0, 12.5, 25, 37.5, 50}, got.Ticks)
	assert.Equal(t, 1, got.XAxisInterval)
}

// TestProcessZeroAnchorMultiplePoints 多点序列同样前置锚点，锚点相对首个真实点偏移
func TestProcessZeroAnchorMultiplePoints(t *testing.T) {
	cp := newTestChartProcessor()
	history := []models.HistoryPoint{
		historyPoint("2025-01-15", "gpt-4", 33.0),
		historyPoint("2025-01-18", "gpt-4", 35.2),
	}

	got := cp.Process(history, models.ChartOptions{
		DateRange:         meta.DateRange30D,
		SelectedModel:     "gpt-4",
		IncludeZeroAnchor: true,
	})

	require.Len(t, got.ChartData, 3)

	anchor := got.ChartData[0]
	assert.True(t, anchor.IsSyntheticAnchor)
	assert.Zero(t, anchor.Value)
	assert.Equal(t, "", anchor.Label)
	require.NotNil(t, anchor.RawDate)
	assert.True(t, anchor.RawDate.Equal(time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)))

	assert.False(t, got.ChartData[1].IsSyntheticAnchor)
	assert.Equal(t, "1/15", got.ChartData[1].Label)
	assert.False(t, got.ChartData[2].IsSyntheticAnchor)
}

// TestProcessNoAnchorWhenDisabled 未开启锚点选项时不前置锚点
func TestProcessNoAnchorWhenDisabled(t *testing.T) {
	cp := newTestChartProcessor()
	history := []models.HistoryPoint{
		historyPoint("2025-01-15", "gpt-4", 33.0),
		historyPoint("2025-01-18", "gpt-4", 35.2),
	}

	got := cp.Process(history, models.ChartOptions{
		DateRange:     meta.DateRange30D,
		SelectedModel: "gpt-4",
	})

	require.Len(t, got.ChartData, 2)
	for _, p := range got.ChartData {
		assert.False(t, p.IsSyntheticAnchor)
	}
}

// TestProcessBreakdownSingleModelFallsBack 仅一个模型时分线退化为单线
func TestProcessBreakdownSingleModelFallsBack(t *testing.T) {
	cp := newTestChartProcessor()
	history := []models.HistoryPoint{
		historyPoint("2025-01-15", "gpt-4", 33.0),
		historyPoint("2025-01-18", "gpt-4", 35.2),
	}

	got := cp.Process(history, models.ChartOptions{DateRange: meta.DateRange30D, SelectedModel: "all", ShowBreakdown: true})

	assert.False(t, got.Breakdown)
	require.Len(t, got.ChartData, 2)
	assert.InDelta(t, 33.0, got.ChartData[0].Value, 1e-9)
	assert.Nil(t, got.ChartData[0].Values)
}

// TestComputeAxisMax 纵轴上限算术
func TestComputeAxisMax(t *testing.T) {
	tests := []struct {
		name    string
		dataMax float64
		want    float64
	}{
		{"空数据固定100", 0, 100},
		{"小值按1取整", 5.0, 7},      // 5*1.4=7
		{"中值按5取整", 35.2, 50},    // 49.28 -> 50
		{"较大值按10取整", 62.5, 90},  // 87.5 -> 90
		{"大值按25取整", 100.0, 150}, // 140 -> 150
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, computeAxisMax(tt.dataMax), 1e-9)
		})
	}
}

// TestComputeAxisMaxNeverBelowData 上限永不低于数据最大值
func TestComputeAxisMaxNeverBelowData(t *testing.T) {
	for _, v := range []float64{0.1, 1, 7.3, 9.99, 49.9, 99.5, 250, 10000} {
		assert.GreaterOrEqual(t, computeAxisMax(v), v)
	}
}

// TestXAxisInterval 横轴标签间隔
func TestXAxisInterval(t *testing.T) {
	assert.Equal(t, 1, xAxisInterval(0))
	assert.Equal(t, 1, xAxisInterval(10))
	assert.Equal(t, 2, xAxisInterval(11))
	assert.Equal(t, 4, xAxisInterval(30))
	assert.Equal(t, 12, xAxisInterval(90))
}

// TestProcessHourLabels 24h范围使用小时粒度标签
func TestProcessHourLabels(t *testing.T) {
	cp := newTestChartProcessor()
	history := []models.HistoryPoint{
		{Date: time.Date(2025, 1, 20, 8, 30, 0, 0, time.UTC), ModelID: "gpt-4", MetricValue: 33.0},
	}

	got := cp.Process(history, models.ChartOptions{DateRange: meta.DateRange24H, SelectedModel: "gpt-4"})

	require.Len(t, got.ChartData, 1)
	assert.Equal(t, "08:30", got.ChartData[0].Label)
}
