/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数，提供原始载荷工厂、上游打桩与固定时钟
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference dev_docs/requirements.md 第6章
 * @stateFlow 测试数据创建 -> 测试执行 -> 断言
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies testify, net/http/httptest
 * @refs service/models
 */

package testutil

import (
	"context"
	"sync"
	"time"

	"aivisibility-service/service/models"
)

// FixedNow 测试用固定时间点
var FixedNow = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

// FixedClock 返回固定时间的时钟函数
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// PayloadOption 原始载荷选项函数类型
type PayloadOption func(models.RawPayload)

// NewDashboardPayload 创建结构完整的仪表盘原始载荷
func NewDashboardPayload(opts ...PayloadOption) models.RawPayload {
	payload := models.RawPayload{
		"share_of_voice":        35.2,
		"share_of_voice_change": 2.1,
		"sentiment_score":       7.8,
		"sentiment_change":      -0.3,
		"inclusion_rate":        62.5,
		"inclusion_rate_change": 1.8,
		"average_position":      2.4,
		"share_of_voice_history": []interface{}{
			HistoryPointMap("2025-01-15", "gpt-4", 33.0),
			HistoryPointMap("2025-01-18", "gpt-4", 35.2),
		},
		"sentiment_history": []interface{}{
			HistoryPointMap("2025-01-15", "gpt-4", 7.5),
			HistoryPointMap("2025-01-18", "gpt-4", 7.8),
		},
		"inclusion_history": []interface{}{
			HistoryPointMap("2025-01-15", "gpt-4", 60.0),
			HistoryPointMap("2025-01-18", "gpt-4", 62.5),
		},
		"detailed_metrics": []interface{}{
			DetailedMetricMap("overall_summary", "全部模型", 7.9),
			DetailedMetricMap("gpt-4", "GPT-4", 7.8),
		},
	}

	for _, opt := range opts {
		opt(payload)
	}
	return payload
}

// HistoryPointMap 构造单个历史点的原始形态
func HistoryPointMap(date, modelID string, value float64) map[string]interface{} {
	return map[string]interface{}{
		"date":         date,
		"model_id":     modelID,
		"metric_value": value,
	}
}

// DetailedMetricMap 构造单个详细指标的原始形态
func DetailedMetricMap(engineID, displayName string, overall float64) map[string]interface{} {
	return map[string]interface{}{
		"id":            engineID,
		"display_name":  displayName,
		"engine_id":     engineID,
		"overall_value": overall,
		"category_ratings": []interface{}{
			map[string]interface{}{"category": "quality", "score": 8.0},
			map[string]interface{}{"category": "price_value", "score": 7.0},
		},
	}
}

// WithField 设置或覆盖载荷字段
func WithField(key string, value interface{}) PayloadOption {
	return func(p models.RawPayload) {
		p[key] = value
	}
}

// WithoutField 删除载荷字段
func WithoutField(key string) PayloadOption {
	return func(p models.RawPayload) {
		delete(p, key)
	}
}

// StubFetcher 上游报告API打桩实现
type StubFetcher struct {
	mutex sync.Mutex

	Payload     models.RawPayload
	PayloadErr  error
	Status      *models.ReportStatusInfo
	StatusErr   error
	FetchDelay  time.Duration
	OnFetch     func(companyID string, filters models.DashboardFilters)
	FetchCalls  int
	StatusCalls int
}

// FetchDashboardPayload 返回预置的载荷或错误
func (s *StubFetcher) FetchDashboardPayload(ctx context.Context, companyID string, filters models.DashboardFilters) (models.RawPayload, error) {
	s.mutex.Lock()
	s.FetchCalls++
	onFetch := s.OnFetch
	delay := s.FetchDelay
	payload := s.Payload
	err := s.PayloadErr
	s.mutex.Unlock()

	if onFetch != nil {
		onFetch(companyID, filters)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchReportStatus 返回预置的状态或错误
func (s *StubFetcher) FetchReportStatus(ctx context.Context, companyID string) (*models.ReportStatusInfo, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.StatusCalls++
	if s.StatusErr != nil {
		return nil, s.StatusErr
	}
	return s.Status, nil
}

// Calls 返回载荷拉取调用次数
func (s *StubFetcher) Calls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.FetchCalls
}

// Float64Ptr 构造float64指针
func Float64Ptr(v float64) *float64 {
	return &v
}
