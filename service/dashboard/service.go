/*
 * @module service/dashboard/service
 * @description 仪表盘数据服务，编排拉取、规范化、值解析、图表处理与缓存的完整数据解析流程
 * @architecture 分层架构 - 业务服务层，组合下层纯函数组件与缓存/上游适配器
 * @documentReference dev_docs/requirements.md 第4.1节
 * @stateFlow 缓存查询 -> 新鲜命中直接返回 / 陈旧命中返回并限流触发后台刷新 / 未命中同步拉取 ->
 *            规范化 -> 指标值解析 -> 图表处理 -> 写入缓存（被后继请求取代的结果跳过写入）
 * @rules
 *   - 同一缓存键并发拉取时只有最新发起的结果有权写入缓存，被取代的结果记录日志但仍返回给各自调用方
 *   - 无报告是业务常态，返回NoReport标记的空包而非错误
 *   - 切换公司时清除前一公司的全部缓存条目
 * @dependencies aivisibility-service/service/cache, aivisibility-service/service/report
 * @refs api/controllers/dashboard_controller.go, service/init.go
 */

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aivisibility-service/service/cache"
	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/service/report"
)

// Tracker 报告状态跟踪注册接口
type Tracker interface {
	Track(companyID string)
	Untrack(companyID string)
}

// DashboardService 仪表盘数据服务
type DashboardService struct {
	fetcher        report.Fetcher
	cacheManager   *cache.Manager
	tracker        Tracker
	normalizer     *Normalizer
	resolver       *ValueResolver
	chartProcessor *ChartProcessor

	// 每个缓存键的拉取序号，后发起者取代先发起者的缓存写入权
	seqMutex sync.Mutex
	fetchSeq map[string]int64
}

// NewDashboardService 创建仪表盘数据服务
// tracker可为nil，此时不做报告状态跟踪注册
func NewDashboardService(fetcher report.Fetcher, cacheManager *cache.Manager, tracker Tracker, opts models.NormalizeOptions) *DashboardService {
	return &DashboardService{
		fetcher:        fetcher,
		cacheManager:   cacheManager,
		tracker:        tracker,
		normalizer:     NewNormalizer(opts),
		resolver:       NewValueResolver(opts.MinConfidence),
		chartProcessor: NewChartProcessor(),
		fetchSeq:       make(map[string]int64),
	}
}

// GetDashboardData 获取公司在指定筛选条件下的完整仪表盘数据包
// 缓存新鲜命中直接返回；陈旧命中立即返回陈旧数据并按限流结果触发后台刷新；
// 未命中时同步走完整解析管线
func (s *DashboardService) GetDashboardData(ctx context.Context, pageType meta.PageType, companyID string, filters models.DashboardFilters) (*models.DashboardBundle, error) {
	if companyID == "" {
		return nil, errors.New("companyID cannot be empty")
	}
	if !filters.DateRange.IsValid() {
		return nil, fmt.Errorf("非法的日期范围: %s", filters.DateRange)
	}

	key := cache.CacheKey{
		PageType:   pageType,
		CompanyID:  companyID,
		FilterHash: cache.HashFilters(filters.ToMap()),
	}

	lookup := s.cacheManager.Get(key)
	if lookup.Hit {
		bundle, ok := lookup.Data.(*models.DashboardBundle)
		if ok {
			if lookup.Stale && lookup.NeedRevalidate {
				go s.refreshInBackground(key, pageType, companyID, filters)
			}
			copied := *bundle
			copied.FromCache = true
			copied.Stale = lookup.Stale
			return &copied, nil
		}
		slog.Warn("缓存条目类型异常，按未命中处理", "key", key.String())
	}

	return s.fetchAndProcess(ctx, key, pageType, companyID, filters)
}

// refreshInBackground 陈旧命中触发的后台刷新，超时与请求方生命周期解耦
func (s *DashboardService) refreshInBackground(key cache.CacheKey, pageType meta.PageType, companyID string, filters models.DashboardFilters) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	slog.Info("触发缓存后台刷新", "key", key.String())
	if _, err := s.fetchAndProcess(ctx, key, pageType, companyID, filters); err != nil {
		slog.Warn("缓存后台刷新失败", "key", key.String(), "error", err)
	}
}

// fetchAndProcess 执行完整解析管线并在结果未被取代时写入缓存
func (s *DashboardService) fetchAndProcess(ctx context.Context, key cache.CacheKey, pageType meta.PageType, companyID string, filters models.DashboardFilters) (*models.DashboardBundle, error) {
	seq := s.nextSeq(key)

	raw, err := s.fetcher.FetchDashboardPayload(ctx, companyID, filters)
	if err != nil {
		if errors.Is(err, report.ErrNoReport) {
			bundle := &models.DashboardBundle{
				CompanyID: companyID,
				NoReport:  true,
				FetchedAt: time.Now(),
			}
			if s.tracker != nil {
				// 报告尚未生成，注册跟踪以便完成后主动失效
				s.tracker.Track(companyID)
			}
			s.storeIfCurrent(key, seq, bundle)
			return bundle, nil
		}
		return nil, fmt.Errorf("拉取仪表盘数据失败: %w", err)
	}

	bundle, err := s.processPayload(raw, companyID, filters)
	if err != nil {
		return nil, err
	}

	s.storeIfCurrent(key, seq, bundle)
	return bundle, nil
}

// processPayload 对原始载荷执行规范化、值解析与图表处理
func (s *DashboardService) processPayload(raw models.RawPayload, companyID string, filters models.DashboardFilters) (*models.DashboardBundle, error) {
	data, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("规范化仪表盘数据失败: %w", err)
	}

	filter := ResolveModelFilter(filters.SelectedModel)

	currentValues := make(map[string]models.ResolvedValue)
	changeValues := make(map[string]models.ResolvedValue)
	charts := make(map[string]*models.ChartResult)

	for _, kind := range []meta.MetricKind{meta.MetricShareOfVoice, meta.MetricSentiment, meta.MetricInclusion} {
		currentValues[string(kind)] = s.resolver.ResolveCurrentValue(data, kind, filter, filters.DateRange)
		changeValues[string(kind)] = s.resolver.ResolveChangeValue(data, kind)
		charts[string(kind)] = s.chartProcessor.Process(data.HistoryFor(kind), models.ChartOptions{
			DateRange:         filters.DateRange,
			SelectedModel:     filter.TimeSeriesParam,
			ShowBreakdown:     filter.IsAggregate,
			IncludeZeroAnchor: true,
		})
	}

	return &models.DashboardBundle{
		CompanyID:     companyID,
		Data:          data,
		ModelFilter:   filter,
		CurrentValues: currentValues,
		ChangeValues:  changeValues,
		Charts:        charts,
		FetchedAt:     time.Now(),
	}, nil
}

// SwitchCompany 公司切换，清除前一公司的全部缓存并调整状态跟踪
func (s *DashboardService) SwitchCompany(previousCompanyID, newCompanyID string) {
	if previousCompanyID != "" && previousCompanyID != newCompanyID {
		removed := s.cacheManager.ClearCompany(previousCompanyID)
		slog.Info("公司切换清除缓存", "previous", previousCompanyID, "new", newCompanyID, "removed", removed)
		if s.tracker != nil {
			s.tracker.Untrack(previousCompanyID)
		}
	}
}

// nextSeq 为缓存键分配单调递增的拉取序号
func (s *DashboardService) nextSeq(key cache.CacheKey) int64 {
	s.seqMutex.Lock()
	defer s.seqMutex.Unlock()
	s.fetchSeq[key.String()]++
	return s.fetchSeq[key.String()]
}

// storeIfCurrent 仅当序号仍是该键的最新时写入缓存
// 被取代的结果跳过写入，避免慢请求用旧筛选周期的数据覆盖新结果
func (s *DashboardService) storeIfCurrent(key cache.CacheKey, seq int64, bundle *models.DashboardBundle) {
	s.seqMutex.Lock()
	current := s.fetchSeq[key.String()]
	s.seqMutex.Unlock()

	if seq != current {
		slog.Info("拉取结果已被后继请求取代，跳过缓存写入",
			"key", key.String(), "seq", seq, "current", current)
		return
	}
	s.cacheManager.Set(key, bundle)
}
