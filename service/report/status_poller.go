/*
 * @module service/report/status_poller
 * @description 报告状态轮询器，周期性查询受跟踪公司的报告生成状态，检测到终态迁移时发布实体变更事件
 * @architecture 定时任务模式 - cron调度，单飞保护避免慢查询导致的轮询重叠
 * @documentReference dev_docs/requirements.md 第4.8节
 * @stateFlow 注册跟踪公司 -> cron触发轮询 -> 状态查询 -> 非终态到终态迁移检测 -> 发布report变更事件
 * @rules
 *   - 只有从非终态到终态的迁移才触发事件，重复轮询到同一终态不再发布
 *   - 单个公司查询失败不中断本轮其余公司
 * @dependencies github.com/robfig/cron/v3, github.com/google/uuid
 * @refs service/cache/invalidation_bus.go, service/report/fetcher.go
 */

package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"aivisibility-service/service/cache"
	"aivisibility-service/service/meta"
)

// StatusPoller 报告状态轮询器
type StatusPoller struct {
	fetcher  Fetcher
	bus      *cache.InvalidationBus
	cron     *cron.Cron
	interval time.Duration
	timeout  time.Duration

	mutex     sync.Mutex
	tracked   map[string]meta.ReportStatus // companyID -> 最近观测到的状态
	isRunning bool
	isPolling bool
}

// NewStatusPoller 创建轮询器
// interval为轮询周期，timeout为单轮查询的总超时
func NewStatusPoller(fetcher Fetcher, bus *cache.InvalidationBus, interval, timeout time.Duration) *StatusPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &StatusPoller{
		fetcher:  fetcher,
		bus:      bus,
		cron:     cron.New(cron.WithSeconds()),
		interval: interval,
		timeout:  timeout,
		tracked:  make(map[string]meta.ReportStatus),
	}
}

// Start 启动cron调度
func (sp *StatusPoller) Start() error {
	sp.mutex.Lock()
	defer sp.mutex.Unlock()

	if sp.isRunning {
		return errors.New("状态轮询器已在运行")
	}

	spec := fmt.Sprintf("@every %s", sp.interval)
	if _, err := sp.cron.AddFunc(spec, sp.pollOnce); err != nil {
		return fmt.Errorf("注册轮询任务失败: %w", err)
	}
	sp.cron.Start()
	sp.isRunning = true
	slog.Info("报告状态轮询器已启动", "interval", sp.interval.String())
	return nil
}

// Stop 停止调度，等待进行中的轮询结束
func (sp *StatusPoller) Stop() {
	sp.mutex.Lock()
	if !sp.isRunning {
		sp.mutex.Unlock()
		return
	}
	sp.isRunning = false
	sp.mutex.Unlock()

	ctx := sp.cron.Stop()
	<-ctx.Done()
	slog.Info("报告状态轮询器已停止")
}

// Track 开始跟踪公司的报告状态
func (sp *StatusPoller) Track(companyID string) {
	if companyID == "" {
		return
	}
	sp.mutex.Lock()
	defer sp.mutex.Unlock()
	if _, exists := sp.tracked[companyID]; !exists {
		sp.tracked[companyID] = ""
		slog.Info("开始跟踪公司报告状态", "company_id", companyID)
	}
}

// Untrack 停止跟踪公司
func (sp *StatusPoller) Untrack(companyID string) {
	sp.mutex.Lock()
	defer sp.mutex.Unlock()
	delete(sp.tracked, companyID)
}

// TrackedCompanies 当前跟踪的公司列表
func (sp *StatusPoller) TrackedCompanies() []string {
	sp.mutex.Lock()
	defer sp.mutex.Unlock()
	out := make([]string, 0, len(sp.tracked))
	for id := range sp.tracked {
		out = append(out, id)
	}
	return out
}

// pollOnce 执行一轮轮询，上一轮未结束时跳过本轮
func (sp *StatusPoller) pollOnce() {
	sp.mutex.Lock()
	if sp.isPolling {
		sp.mutex.Unlock()
		slog.Warn("上一轮状态轮询尚未结束，跳过本轮")
		return
	}
	sp.isPolling = true
	companies := make([]string, 0, len(sp.tracked))
	for id := range sp.tracked {
		companies = append(companies, id)
	}
	sp.mutex.Unlock()

	defer func() {
		sp.mutex.Lock()
		sp.isPolling = false
		sp.mutex.Unlock()
	}()

	if len(companies) == 0 {
		return
	}

	runID := uuid.New().String()
	ctx, cancel := context.WithTimeout(context.Background(), sp.timeout)
	defer cancel()

	slog.Debug("开始报告状态轮询", "run_id", runID, "companies", len(companies))
	for _, companyID := range companies {
		sp.pollCompany(ctx, runID, companyID)
	}
}

// pollCompany 查询单个公司的状态并做终态迁移检测
func (sp *StatusPoller) pollCompany(ctx context.Context, runID, companyID string) {
	info, err := sp.fetcher.FetchReportStatus(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			slog.Debug("公司暂无报告记录", "run_id", runID, "company_id", companyID)
			return
		}
		slog.Warn("查询报告状态失败", "run_id", runID, "company_id", companyID, "error", err)
		return
	}

	sp.mutex.Lock()
	previous, stillTracked := sp.tracked[companyID]
	if stillTracked {
		sp.tracked[companyID] = info.Status
	}
	sp.mutex.Unlock()

	if !stillTracked {
		return
	}

	// 只有非终态到终态的迁移才发布事件
	if info.Status.IsTerminal() && !previous.IsTerminal() {
		slog.Info("检测到报告状态终态迁移",
			"run_id", runID,
			"company_id", companyID,
			"from", string(previous),
			"to", string(info.Status))
		sp.bus.Publish(cache.EntityChangedEvent{
			EntityType: cache.EntityReport,
			CompanyID:  companyID,
			OccurredAt: time.Now(),
		})
	}
}
