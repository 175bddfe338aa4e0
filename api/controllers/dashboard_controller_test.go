/*
 * @module api/controllers/dashboard_controller_test
 * @description 仪表盘控制器单元测试
 * @architecture 测试层
 * @documentReference api/controllers/dashboard_controller.go
 * @stateFlow 测试准备 -> 请求构建 -> 响应验证
 * @rules 上游打桩隔离网络依赖，确保参数校验与响应格式的正确性
 * @dependencies testing, net/http/httptest, stretchr/testify
 */

package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aivisibility-service/service/cache"
	"aivisibility-service/service/dashboard"
	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/service/report"
	"aivisibility-service/testutil"
)

func newTestController(stub *testutil.StubFetcher) (*DashboardController, *cache.Manager) {
	manager := cache.NewManager(5*time.Minute, 2*time.Minute, 100, 1000)
	bus := cache.NewInvalidationBus()
	cache.BindCacheInvalidation(bus, manager)
	svc := dashboard.NewDashboardService(stub, manager, nil, models.NormalizeOptions{MinConfidence: 0.5})
	return NewDashboardController(svc, manager, bus), manager
}

func doGetDashboard(controller *DashboardController, companyID, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/dashboard/"+companyID+query, nil)

	r := chi.NewRouter()
	r.Get("/dashboard/{company_id}", controller.GetDashboardData)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// TestGetDashboardDataEndpoint 获取仪表盘数据基本流程
func TestGetDashboardDataEndpoint(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{Payload: testutil.NewDashboardPayload()})

	w := doGetDashboard(controller, "company-1", "?model=all&date_range=30d")
	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, 0, response.Status)

	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok, "响应数据应该是map类型")
	assert.Equal(t, "company-1", data["company_id"])
	assert.Contains(t, data, "current_values")
	assert.Contains(t, data, "charts")
}

// TestGetDashboardDataDefaults 缺省筛选参数回退到all与30d
func TestGetDashboardDataDefaults(t *testing.T) {
	stub := &testutil.StubFetcher{Payload: testutil.NewDashboardPayload()}
	var gotFilters models.DashboardFilters
	stub.OnFetch = func(companyID string, filters models.DashboardFilters) {
		gotFilters = filters
	}
	controller, _ := newTestController(stub)

	w := doGetDashboard(controller, "company-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, meta.ModelSelectionAll, gotFilters.SelectedModel)
	assert.Equal(t, meta.DateRange30D, gotFilters.DateRange)
}

// TestGetDashboardDataInvalidParams 非法参数返回400状态
func TestGetDashboardDataInvalidParams(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{Payload: testutil.NewDashboardPayload()})

	tests := []struct {
		name  string
		query string
	}{
		{"非法日期范围", "?date_range=2w"},
		{"非法页面类型", "?page_type=homepage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGetDashboard(controller, "company-1", tt.query)

			var response APIResponse
			err := json.NewDecoder(w.Body).Decode(&response)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, response.Status)
		})
	}
}

// TestGetDashboardDataNoReport 无报告返回空态标记
func TestGetDashboardDataNoReport(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{PayloadErr: report.ErrNoReport})

	w := doGetDashboard(controller, "company-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, 0, response.Status)

	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["no_report"])
}

// TestSwitchCompanyEndpoint 公司切换清缓存
func TestSwitchCompanyEndpoint(t *testing.T) {
	controller, manager := newTestController(&testutil.StubFetcher{Payload: testutil.NewDashboardPayload()})
	manager.Set(cache.CacheKey{PageType: meta.PageTypeDashboard, CompanyID: "c1", FilterHash: "h"}, 1)

	body, _ := json.Marshal(SwitchCompanyRequest{PreviousCompanyID: "c1", NewCompanyID: "c2"})
	req := httptest.NewRequest(http.MethodPost, "/dashboard/switch-company", bytes.NewReader(body))
	w := httptest.NewRecorder()
	controller.SwitchCompany(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, manager.Size())
}

// TestSwitchCompanyMissingNewID 新公司ID缺失返回400状态
func TestSwitchCompanyMissingNewID(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{})

	body, _ := json.Marshal(SwitchCompanyRequest{PreviousCompanyID: "c1"})
	req := httptest.NewRequest(http.MethodPost, "/dashboard/switch-company", bytes.NewReader(body))
	w := httptest.NewRecorder()
	controller.SwitchCompany(w, req)

	var response APIResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, response.Status)
}

// TestInvalidateCacheEndpoint 缓存失效接口
func TestInvalidateCacheEndpoint(t *testing.T) {
	controller, manager := newTestController(&testutil.StubFetcher{})
	manager.Set(cache.CacheKey{PageType: meta.PageTypeDashboard, CompanyID: "c1", FilterHash: "h"}, 1)

	body, _ := json.Marshal(InvalidateCacheRequest{PageType: "dashboard", CompanyID: "c1"})
	req := httptest.NewRequest(http.MethodPost, "/cache/invalidate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	controller.InvalidateCache(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["removed"])
}

// TestNotifyEntityChangedEndpoint 实体变更通知触发缓存失效
func TestNotifyEntityChangedEndpoint(t *testing.T) {
	controller, manager := newTestController(&testutil.StubFetcher{})
	manager.Set(cache.CacheKey{PageType: meta.PageTypeDashboard, CompanyID: "c1", FilterHash: "h"}, 1)

	body, _ := json.Marshal(cache.EntityChangedEvent{EntityType: cache.EntityReport, CompanyID: "c1"})
	req := httptest.NewRequest(http.MethodPost, "/cache/entity-changed", bytes.NewReader(body))
	w := httptest.NewRecorder()
	controller.NotifyEntityChanged(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, manager.Size())
}

// TestCacheHealthEndpoint 缓存健康检查接口
func TestCacheHealthEndpoint(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/cache/health", nil)
	w := httptest.NewRecorder()
	controller.CacheHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, cache.HealthHealthy, data["status"])
}

func doGetMetric(controller *DashboardController, path, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path+query, nil)

	r := chi.NewRouter()
	r.Get("/dashboard/{company_id}/chart", controller.GetMetricChart)
	r.Get("/dashboard/{company_id}/resolve", controller.ResolveMetric)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// TestGetMetricChartEndpoint 单指标图表接口返回图表与坐标轴
func TestGetMetricChartEndpoint(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{Payload: testutil.NewDashboardPayload()})

	w := doGetMetric(controller, "/dashboard/company-1/chart", "?metric=share_of_voice&model=gpt-4&date_range=30d")
	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 0, response.Status)

	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "share_of_voice", data["metric"])
	assert.Equal(t, false, data["no_report"])

	chart, ok := data["chart"].(map[string]interface{})
	require.True(t, ok, "图表结果不能为空")
	assert.Contains(t, chart, "chart_data")
	assert.Contains(t, chart, "y_axis_max")
}

// TestGetMetricChartInvalidMetric 非法指标类型返回400状态
func TestGetMetricChartInvalidMetric(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{Payload: testutil.NewDashboardPayload()})

	w := doGetMetric(controller, "/dashboard/company-1/chart", "?metric=bounce_rate")
	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 400, response.Status)
}

// TestResolveMetricEndpoint 单指标解析接口返回当前值与变化量
func TestResolveMetricEndpoint(t *testing.T) {
	controller, _ := newTestController(&testutil.StubFetcher{Payload: testutil.NewDashboardPayload()})

	w := doGetMetric(controller, "/dashboard/company-1/resolve", "?metric=sentiment")
	assert.Equal(t, http.StatusOK, w.Code)

	var response APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 0, response.Status)

	data, ok := response.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sentiment", data["metric"])

	current, ok := data["current"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, current, "source")
	assert.Contains(t, current, "confidence")
}
