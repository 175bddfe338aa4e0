/*
 * @module service/cache/invalidation_bus
 * @description 实体变更事件总线，将报告完成、公司信息变更等事件分发给缓存失效等订阅方
 * @architecture 观察者模式 - 进程内同步分发，处理器注册后按注册顺序调用
 * @documentReference dev_docs/requirements.md 第4.7节
 * @stateFlow 事件发布 -> 遍历处理器 -> 单个处理器出错记录日志不中断其余处理器
 * @rules 未知实体类型的事件照常分发，由处理器自行决定是否忽略
 * @dependencies log/slog
 * @refs service/cache/cache_manager.go, service/report/status_poller.go
 */

package cache

import (
	"log/slog"
	"sync"
	"time"

	"aivisibility-service/service/meta"
)

// 实体类型常量
const (
	EntityReport  = "report"
	EntityCompany = "company"
)

// EntityChangedEvent 实体变更事件
type EntityChangedEvent struct {
	EntityType string    `json:"entity_type"`
	CompanyID  string    `json:"company_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source"` // 事件来源实例标识，用于跨实例去环
}

// EventHandler 事件处理函数
type EventHandler func(event EntityChangedEvent)

// InvalidationBus 进程内事件总线
type InvalidationBus struct {
	mutex    sync.RWMutex
	handlers []EventHandler
}

// NewInvalidationBus 创建事件总线
func NewInvalidationBus() *InvalidationBus {
	return &InvalidationBus{}
}

// Subscribe 注册事件处理器
func (b *InvalidationBus) Subscribe(handler EventHandler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish 发布事件，同步调用所有处理器
// 单个处理器panic只记录日志，不影响其余处理器
func (b *InvalidationBus) Publish(event EntityChangedEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mutex.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mutex.RUnlock()

	slog.Info("实体变更事件发布",
		"entity_type", event.EntityType,
		"company_id", event.CompanyID,
		"handlers", len(handlers))

	for _, handler := range handlers {
		b.invoke(handler, event)
	}
}

func (b *InvalidationBus) invoke(handler EventHandler, event EntityChangedEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("事件处理器执行异常", "entity_type", event.EntityType, "error", r)
		}
	}()
	handler(event)
}

// BindCacheInvalidation 将缓存失效策略挂接到总线
// report与company事件都清除该公司在所有页面下的缓存条目
func BindCacheInvalidation(bus *InvalidationBus, manager *Manager) {
	bus.Subscribe(func(event EntityChangedEvent) {
		switch event.EntityType {
		case EntityReport, EntityCompany:
			removed := manager.Invalidate(meta.PageTypeDashboard, event.CompanyID)
			removed += manager.Invalidate(meta.PageTypeCompetitors, event.CompanyID)
			slog.Info("实体变更触发缓存失效",
				"entity_type", event.EntityType,
				"company_id", event.CompanyID,
				"removed", removed)
		default:
			slog.Debug("忽略无缓存影响的实体变更", "entity_type", event.EntityType)
		}
	})
}
