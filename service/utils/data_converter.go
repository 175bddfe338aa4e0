/*
 * @module service/utils/data_converter
 * @description 数据转换工具模块，负责宽松标量到数值的安全转换、日期解析和图表标签格式化
 * @architecture 工具函数模式，提供无状态转换方法集合
 * @documentReference dev_docs/requirements.md 第4.1节
 * @stateFlow 无状态转换：输入 -> 转换逻辑 -> 输出
 * @rules
 *   - 转换失败永不panic，返回明确的成败结果
 *   - "缺失"与"无效"必须区分，供数据质量报告分别统计
 *   - 被丢弃的值不得退化为0
 * @dependencies github.com/spf13/cast, time, math
 * @refs service/dashboard/normalizer.go, service/dashboard/chart_processor.go
 */

package utils

import (
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"aivisibility-service/service/meta"

	"github.com/spf13/cast"
)

// CoerceOutcome 数值转换结果分类
type CoerceOutcome int

const (
	// CoerceOK 转换成功，得到有限实数
	CoerceOK CoerceOutcome = iota
	// CoerceMissing 值缺失（nil或空字符串），属预期情况，不计为错误
	CoerceMissing
	// CoerceInvalid 值存在但无法解析为有限实数，计入无效字段
	CoerceInvalid
)

// CoerceNumber 将宽松类型的标量转换为有限实数
// 数字直接通过（NaN/Inf视为无效）；字符串去空格后解析，空串视为缺失；
// 其余类型一律视为无效。对已是数字或缺失的输入具有幂等性
func CoerceNumber(value interface{}) (float64, CoerceOutcome) {
	if value == nil {
		return 0, CoerceMissing
	}

	switch v := value.(type) {
	case float64:
		return checkFinite(v)
	case float32:
		return checkFinite(float64(v))
	case int:
		return float64(v), CoerceOK
	case int32:
		return float64(v), CoerceOK
	case int64:
		return float64(v), CoerceOK
	case uint:
		return float64(v), CoerceOK
	case uint32:
		return float64(v), CoerceOK
	case uint64:
		return float64(v), CoerceOK
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, CoerceInvalid
		}
		return checkFinite(f)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, CoerceMissing
		}
		f, err := cast.ToFloat64E(trimmed)
		if err != nil {
			return 0, CoerceInvalid
		}
		return checkFinite(f)
	default:
		// 布尔值、对象、数组等均不可作为指标值
		return 0, CoerceInvalid
	}
}

// checkFinite NaN和无穷大不得进入下游趋势计算
func checkFinite(f float64) (float64, CoerceOutcome) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, CoerceInvalid
	}
	return f, CoerceOK
}

// instantLayouts 支持的日期时间格式，按匹配优先级排列
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant 将宽松格式的日期字符串解析为规范时间点
// 仅含日期的输入按UTC零点处理；解析失败返回false并记录警告，永不panic
func ParseInstant(input string) (time.Time, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return time.Time{}, false
	}

	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), true
		}
	}

	slog.Warn("日期字符串解析失败", "input", trimmed)
	return time.Time{}, false
}

// FormatLabel 将时间点格式化为图表标签
// 纯函数，同一(时间点,粒度)输入必须产生稳定输出，图表处理器依赖该性质做按标签分组
func FormatLabel(t time.Time, granularity meta.LabelGranularity) string {
	switch granularity {
	case meta.LabelGranularityHour:
		return t.UTC().Format("15:04")
	default:
		return t.UTC().Format("1/2")
	}
}

// FieldValue 从原始载荷中查找字段值，支持snake_case与camelCase两种命名约定
// 上游不同端点的字段命名不一致，这里在信任边界统一兜底
func FieldValue(raw map[string]interface{}, snakeKey string) (interface{}, bool) {
	if v, ok := raw[snakeKey]; ok {
		return v, true
	}
	camel := SnakeToCamel(snakeKey)
	if camel != snakeKey {
		if v, ok := raw[camel]; ok {
			return v, true
		}
	}
	return nil, false
}

// SnakeToCamel snake_case转camelCase
func SnakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// SameCalendarDay 判断两个时间点是否属于同一UTC日历日，用于同日去重
func SameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
