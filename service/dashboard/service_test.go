/*
 * @module service/dashboard/service_test
 * @description 仪表盘数据服务编排流程单元测试
 * @architecture 测试架构 - 上游打桩 + 缓存行为验证
 * @documentReference service/dashboard/service.go
 * @stateFlow 打桩上游 -> 请求编排 -> 缓存与结果断言
 * @rules 覆盖缓存命中、无报告空态、取代写入与公司切换
 * @dependencies testing, stretchr/testify, aivisibility-service/testutil
 */

package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aivisibility-service/service/cache"
	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/service/report"
	"aivisibility-service/testutil"
)

func newTestService(fetcher report.Fetcher) (*DashboardService, *cache.Manager) {
	manager := cache.NewManager(5*time.Minute, 2*time.Minute, 100, 1000)
	svc := NewDashboardService(fetcher, manager, nil, models.NormalizeOptions{MinConfidence: 0.5})
	return svc, manager
}

func defaultFilters() models.DashboardFilters {
	return models.DashboardFilters{SelectedModel: "all", DateRange: meta.DateRange30D}
}

// TestGetDashboardDataFullPipeline 未命中时走完整解析管线并写入缓存
func TestGetDashboardDataFullPipeline(t *testing.T) {
	stub := &testutil.StubFetcher{Payload: testutil.NewDashboardPayload()}
	svc, _ := newTestService(stub)

	bundle, err := svc.GetDashboardData(context.Background(), meta.PageTypeDashboard, "company-1", defaultFilters())
	require.NoError(t, err)
	require.NotNil(t, bundle)

	assert.False(t, bundle.NoReport)
	assert.False(t, bundle.FromCache)
	assert.Equal(t, "company-1", bundle.CompanyID)
	require.NotNil(t, bundle.Data)
	assert.InDelta(t, 1.0, bundle.Data.DataQuality.Confidence, 1e-9)

	// 三个指标的当前值、变化量与图表全部就位
	for _, kind := range []string{"share_of_voice", "sentiment", "inclusion"} {
		assert.Contains(t, bundle.CurrentValues, kind)
		assert.Contains(t, bundle.ChangeValues, kind)
		require.Contains(t, bundle.Charts, kind)
		assert.NotNil(t, bundle.Charts[kind])
	}
	assert.True(t, bundle.ModelFilter.IsAggregate)
}

// TestGetDashboardDataCacheHit 第二次请求命中缓存不再访问上游
func TestGetDashboardDataCacheHit(t *testing.T) {
	stub := &testutil.StubFetcher{Payload: testutil.NewDashboardPayload()}
	svc, _ := newTestService(stub)
	ctx := context.Background()

	_, err := svc.GetDashboardData(ctx, meta.PageTypeDashboard, "company-1", defaultFilters())
	require.NoError(t, err)

	second, err := svc.GetDashboardData(ctx, meta.PageTypeDashboard, "company-1", defaultFilters())
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, stub.Calls())
}

// TestGetDashboardDataFilterMiss 不同筛选条件各自独立缓存
func TestGetDashboardDataFilterMiss(t *testing.T) {
	stub := &testutil.StubFetcher{Payload: testutil.NewDashboardPayload()}
	svc, _ := newTestService(stub)
	ctx := context.Background()

	_, err := svc.GetDashboardData(ctx, meta.PageTypeDashboard, "company-1", defaultFilters())
	require.NoError(t, err)

	other := models.DashboardFilters{SelectedModel: "gpt-4", DateRange: meta.DateRange7D}
	_, err = svc.GetDashboardData(ctx, meta.PageTypeDashboard, "company-1", other)
	require.NoError(t, err)

	assert.Equal(t, 2, stub.Calls())
}

// TestGetDashboardDataNoReport 无报告返回空态而非错误
func TestGetDashboardDataNoReport(t *testing.T) {
	stub := &testutil.StubFetcher{PayloadErr: report.ErrNoReport}
	svc, _ := newTestService(stub)

	bundle, err := svc.GetDashboardData(context.Background(), meta.PageTypeDashboard, "company-1", defaultFilters())
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.True(t, bundle.NoReport)
	assert.Nil(t, bundle.Data)
}

// TestGetDashboardDataInvalidDateRange 非法日期范围直接拒绝
func TestGetDashboardDataInvalidDateRange(t *testing.T) {
	svc, _ := newTestService(&testutil.StubFetcher{})

	_, err := svc.GetDashboardData(context.Background(), meta.PageTypeDashboard, "company-1",
		models.DashboardFilters{SelectedModel: "all", DateRange: "2w"})
	assert.Error(t, err)
}

// TestSupersededFetchSkipsCacheWrite 被取代的拉取结果跳过缓存写入但仍返回给调用方
func TestSupersededFetchSkipsCacheWrite(t *testing.T) {
	stub := &testutil.StubFetcher{Payload: testutil.NewDashboardPayload()}
	svc, manager := newTestService(stub)
	key := cache.CacheKey{
		PageType:   meta.PageTypeDashboard,
		CompanyID:  "company-1",
		FilterHash: cache.HashFilters(defaultFilters().ToMap()),
	}

	slowSeq := svc.nextSeq(key)
	fastSeq := svc.nextSeq(key)
	require.Greater(t, fastSeq, slowSeq)

	fast := &models.DashboardBundle{CompanyID: "company-1", FetchedAt: time.Now()}
	svc.storeIfCurrent(key, fastSeq, fast)
	require.Equal(t, 1, manager.Size())

	// 慢请求此时才完成，不得覆盖新结果
	slow := &models.DashboardBundle{CompanyID: "company-1", NoReport: true}
	svc.storeIfCurrent(key, slowSeq, slow)

	got := manager.Get(key)
	require.True(t, got.Hit)
	cached, ok := got.Data.(*models.DashboardBundle)
	require.True(t, ok)
	assert.False(t, cached.NoReport, "缓存中保留的应是较新请求的结果")
}

// TestConcurrentRequestsSameKey 并发同键请求全部成功返回
func TestConcurrentRequestsSameKey(t *testing.T) {
	stub := &testutil.StubFetcher{
		Payload:    testutil.NewDashboardPayload(),
		FetchDelay: 10 * time.Millisecond,
	}
	svc, _ := newTestService(stub)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = svc.GetDashboardData(context.Background(), meta.PageTypeDashboard, "company-1", defaultFilters())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

// TestSwitchCompanyClearsCache 公司切换清除前一公司的缓存
func TestSwitchCompanyClearsCache(t *testing.T) {
	stub := &testutil.StubFetcher{Payload: testutil.NewDashboardPayload()}
	svc, manager := newTestService(stub)
	ctx := context.Background()

	_, err := svc.GetDashboardData(ctx, meta.PageTypeDashboard, "company-1", defaultFilters())
	require.NoError(t, err)
	_, err = svc.GetDashboardData(ctx, meta.PageTypeDashboard, "company-2", defaultFilters())
	require.NoError(t, err)
	require.Equal(t, 2, manager.Size())

	svc.SwitchCompany("company-1", "company-2")
	assert.Equal(t, 1, manager.Size())

	// 切回同一公司不产生额外清除
	svc.SwitchCompany("company-2", "company-2")
	assert.Equal(t, 1, manager.Size())
}

// TestProcessPayloadChartsUseFilter 筛选配置贯穿图表处理
func TestProcessPayloadChartsUseFilter(t *testing.T) {
	stub := &testutil.StubFetcher{Payload: testutil.NewDashboardPayload()}
	svc, _ := newTestService(stub)

	filters := models.DashboardFilters{SelectedModel: "gpt-4", DateRange: meta.DateRange30D}
	bundle, err := svc.GetDashboardData(context.Background(), meta.PageTypeDashboard, "company-1", filters)
	require.NoError(t, err)

	assert.False(t, bundle.ModelFilter.IsAggregate)
	for _, chart := range bundle.Charts {
		assert.False(t, chart.Breakdown, "单模型筛选不应产生分线图")
	}
}
