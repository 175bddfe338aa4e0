/*
 * @module service/report/status_poller_test
 * @description 报告状态轮询器单元测试
 * @architecture 测试架构 - 上游打桩 + 事件计数
 * @documentReference service/report/status_poller.go
 * @stateFlow 打桩状态序列 -> 手动触发轮询 -> 事件断言
 * @rules 直接调用内部轮询函数验证迁移检测，不依赖cron真实调度
 * @dependencies testing, stretchr/testify, aivisibility-service/testutil
 */

package report

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aivisibility-service/service/cache"
	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
	"aivisibility-service/testutil"
)

func newTestPoller(stub *testutil.StubFetcher) (*StatusPoller, *atomic.Int64) {
	bus := cache.NewInvalidationBus()
	events := &atomic.Int64{}
	bus.Subscribe(func(event cache.EntityChangedEvent) {
		if event.EntityType == cache.EntityReport {
			events.Add(1)
		}
	})
	return NewStatusPoller(stub, bus, time.Minute, time.Second), events
}

// TestPollerTerminalTransition 非终态到终态的迁移触发事件
func TestPollerTerminalTransition(t *testing.T) {
	stub := &testutil.StubFetcher{
		Status: &models.ReportStatusInfo{Status: meta.ReportStatusRunning},
	}
	poller, events := newTestPoller(stub)
	poller.Track("company-1")

	poller.pollOnce()
	assert.Equal(t, int64(0), events.Load(), "RUNNING不是终态")

	stub.Status = &models.ReportStatusInfo{Status: meta.ReportStatusCompleted}
	poller.pollOnce()
	assert.Equal(t, int64(1), events.Load(), "COMPLETED迁移应发布事件")

	// 重复轮询到同一终态不再发布
	poller.pollOnce()
	assert.Equal(t, int64(1), events.Load())
}

// TestPollerFailedIsTerminal FAILED同样是终态迁移
func TestPollerFailedIsTerminal(t *testing.T) {
	stub := &testutil.StubFetcher{
		Status: &models.ReportStatusInfo{Status: meta.ReportStatusQueued},
	}
	poller, events := newTestPoller(stub)
	poller.Track("company-1")

	poller.pollOnce()
	stub.Status = &models.ReportStatusInfo{Status: meta.ReportStatusFailed}
	poller.pollOnce()
	assert.Equal(t, int64(1), events.Load())
}

// TestPollerNoReportSilent 无报告记录不算错误也不发事件
func TestPollerNoReportSilent(t *testing.T) {
	stub := &testutil.StubFetcher{StatusErr: ErrNoReport}
	poller, events := newTestPoller(stub)
	poller.Track("company-1")

	poller.pollOnce()
	assert.Equal(t, int64(0), events.Load())
}

// TestPollerTrackUntrack 跟踪注册与注销
func TestPollerTrackUntrack(t *testing.T) {
	poller, _ := newTestPoller(&testutil.StubFetcher{})

	poller.Track("company-1")
	poller.Track("company-1") // 重复注册幂等
	poller.Track("")          // 空ID忽略
	assert.Len(t, poller.TrackedCompanies(), 1)

	poller.Untrack("company-1")
	assert.Empty(t, poller.TrackedCompanies())
}

// TestPollerUntrackedNoPoll 无跟踪公司时轮询不访问上游
func TestPollerUntrackedNoPoll(t *testing.T) {
	stub := &testutil.StubFetcher{}
	poller, _ := newTestPoller(stub)

	poller.pollOnce()
	assert.Equal(t, 0, stub.StatusCalls)
}
