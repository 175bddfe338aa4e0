/*
 * @module service/cache/cache_manager
 * @description 进程内仪表盘数据缓存，支持TTL过期、过期宽限窗口（返回陈旧数据并触发后台刷新）、
 *              容量健康检查与指标上报
 * @architecture 单例模式 - 读写锁保护的内存映射，带Prometheus指标与健康自检
 * @documentReference dev_docs/requirements.md 第4.6节
 * @stateFlow 写入 -> 新鲜命中 -> TTL过期 -> 宽限窗口内陈旧命中（限流触发后台刷新）-> 宽限窗口外彻底失效
 * @rules
 *   - 同公司同页面不同筛选条件互不干扰（筛选哈希参与键）
 *   - 失效操作按页面类型+公司维度精确清除，二者皆空时清空全部
 *   - 容量达到临界阈值时按写入时间从旧到新逐出
 * @dependencies github.com/prometheus/client_golang, golang.org/x/time/rate
 * @refs service/cache/invalidation_bus.go, service/dashboard/service.go
 */

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"aivisibility-service/service/meta"
)

// 缓存Prometheus指标
var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aivisibility_cache_hits_total",
		Help: "缓存新鲜命中次数",
	}, []string{"page_type"})
	cacheStaleHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aivisibility_cache_stale_hits_total",
		Help: "缓存陈旧命中次数（宽限窗口内）",
	}, []string{"page_type"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aivisibility_cache_misses_total",
		Help: "缓存未命中次数",
	}, []string{"page_type"})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aivisibility_cache_evictions_total",
		Help: "容量健康检查触发的逐出条目数",
	})
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aivisibility_cache_entries",
		Help: "当前缓存条目数",
	})
	cacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aivisibility_cache_bytes",
		Help: "当前缓存条目序列化后的近似字节数",
	})
)

// 健康状态常量
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// 容量与命中率阈值
const (
	warningCapacityRatio  = 0.70
	criticalCapacityRatio = 0.90
	lowHitRateThreshold   = 0.20
	minLookupsForHitRate  = 20
)

// CacheKey 缓存键，页面类型+公司+筛选条件哈希三元组
type CacheKey struct {
	PageType   meta.PageType `json:"page_type"`
	CompanyID  string        `json:"company_id"`
	FilterHash string        `json:"filter_hash"`
}

// String 返回键的字符串形式，用于映射与日志
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.PageType, k.CompanyID, k.FilterHash)
}

// HashFilters 将筛选条件映射为稳定哈希
// 键排序后拼接再取sha256前16位十六进制，保证与遍历顺序无关
func HashFilters(filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(filters[k])
		sb.WriteString("&")
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// Entry 缓存条目
type Entry struct {
	Key       CacheKey    `json:"key"`
	Data      interface{} `json:"data"`
	StoredAt  time.Time   `json:"stored_at"`
	SizeBytes int         `json:"size_bytes"`
}

// LookupResult 查询结果
type LookupResult struct {
	Data           interface{} // 命中的数据，未命中时为nil
	Hit            bool        // 是否命中（含陈旧命中）
	Stale          bool        // 是否为宽限窗口内的陈旧命中
	NeedRevalidate bool        // 陈旧命中且限流器允许时为true，调用方应触发后台刷新
}

// Manager 进程内缓存管理器
type Manager struct {
	mutex      sync.RWMutex
	entries    map[string]*Entry
	ttl        time.Duration
	staleGrace time.Duration
	maxEntries int

	lookups int64
	hits    int64

	refreshLimiter *rate.Limiter
	now            func() time.Time
}

// NewManager 创建缓存管理器
// ttl为新鲜期，staleGrace为过期后仍可返回陈旧数据的宽限窗口，
// refreshPerSecond限制陈旧命中触发后台刷新的频率
func NewManager(ttl, staleGrace time.Duration, maxEntries int, refreshPerSecond float64) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if staleGrace < 0 {
		staleGrace = 0
	}
	if maxEntries <= 0 {
		maxEntries = 500
	}
	if refreshPerSecond <= 0 {
		refreshPerSecond = 1
	}
	return &Manager{
		entries:        make(map[string]*Entry),
		ttl:            ttl,
		staleGrace:     staleGrace,
		maxEntries:     maxEntries,
		refreshLimiter: rate.NewLimiter(rate.Limit(refreshPerSecond), 1),
		now:            time.Now,
	}
}

// Get 查询缓存
// 新鲜期内直接命中；新鲜期外但宽限窗口内返回陈旧数据并按限流结果标记是否需要后台刷新；
// 宽限窗口外视为未命中并删除条目
func (m *Manager) Get(key CacheKey) LookupResult {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.lookups++
	entry, ok := m.entries[key.String()]
	if !ok {
		cacheMisses.WithLabelValues(string(key.PageType)).Inc()
		return LookupResult{}
	}

	age := m.now().Sub(entry.StoredAt)
	if age <= m.ttl {
		m.hits++
		cacheHits.WithLabelValues(string(key.PageType)).Inc()
		return LookupResult{Data: entry.Data, Hit: true}
	}

	if age <= m.ttl+m.staleGrace {
		m.hits++
		cacheStaleHits.WithLabelValues(string(key.PageType)).Inc()
		return LookupResult{
			Data:           entry.Data,
			Hit:            true,
			Stale:          true,
			NeedRevalidate: m.refreshLimiter.Allow(),
		}
	}

	delete(m.entries, key.String())
	m.updateGauges()
	cacheMisses.WithLabelValues(string(key.PageType)).Inc()
	return LookupResult{}
}

// Set 写入缓存，同键整体替换
func (m *Manager) Set(key CacheKey, data interface{}) {
	size := 0
	if raw, err := json.Marshal(data); err == nil {
		size = len(raw)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries[key.String()] = &Entry{
		Key:       key,
		Data:      data,
		StoredAt:  m.now(),
		SizeBytes: size,
	}
	m.updateGauges()
	slog.Debug("缓存条目已写入", "key", key.String(), "size_bytes", size)
}

// Invalidate 按页面类型与公司维度失效缓存
// pageType为空匹配所有页面，companyID为空匹配所有公司；二者皆空清空全部
func (m *Manager) Invalidate(pageType meta.PageType, companyID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	removed := 0
	for keyStr, entry := range m.entries {
		if pageType != "" && entry.Key.PageType != pageType {
			continue
		}
		if companyID != "" && entry.Key.CompanyID != companyID {
			continue
		}
		delete(m.entries, keyStr)
		removed++
	}
	m.updateGauges()
	if removed > 0 {
		slog.Info("缓存已失效", "page_type", string(pageType), "company_id", companyID, "removed", removed)
	}
	return removed
}

// ClearCompany 清除指定公司在所有页面下的全部条目，用于公司切换
func (m *Manager) ClearCompany(companyID string) int {
	return m.Invalidate("", companyID)
}

// HealthStatus 缓存健康报告
type HealthStatus struct {
	Status     string  `json:"status"`
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	TotalBytes int     `json:"total_bytes"`
	Lookups    int64   `json:"lookups"`
	HitRate    float64 `json:"hit_rate"`
	Evicted    int     `json:"evicted"`
}

// HealthCheck 检查缓存健康状态
// 条目数达容量90%为critical并按写入时间从旧到新逐出至70%，
// 达70%或命中率持续过低为warning
func (m *Manager) HealthCheck() HealthStatus {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	status := HealthStatus{
		Status:     HealthHealthy,
		Entries:    len(m.entries),
		MaxEntries: m.maxEntries,
		Lookups:    m.lookups,
	}
	for _, e := range m.entries {
		status.TotalBytes += e.SizeBytes
	}
	if m.lookups > 0 {
		status.HitRate = float64(m.hits) / float64(m.lookups)
	}

	ratio := float64(len(m.entries)) / float64(m.maxEntries)
	switch {
	case ratio >= criticalCapacityRatio:
		status.Status = HealthCritical
		status.Evicted = m.evictOldest(int(float64(m.maxEntries) * warningCapacityRatio))
		status.Entries = len(m.entries)
		slog.Warn("缓存容量达到临界阈值，已逐出最旧条目",
			"evicted", status.Evicted, "remaining", status.Entries)
	case ratio >= warningCapacityRatio:
		status.Status = HealthWarning
	case m.lookups >= minLookupsForHitRate && status.HitRate < lowHitRateThreshold:
		status.Status = HealthWarning
		slog.Warn("缓存命中率持续过低", "hit_rate", status.HitRate, "lookups", m.lookups)
	}

	return status
}

// evictOldest 按StoredAt升序逐出直到条目数不超过target，调用方需持有写锁
func (m *Manager) evictOldest(target int) int {
	if len(m.entries) <= target {
		return 0
	}

	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, aged{key: k, storedAt: e.StoredAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].storedAt.Before(all[j].storedAt)
	})

	evicted := 0
	for _, a := range all {
		if len(m.entries) <= target {
			break
		}
		delete(m.entries, a.key)
		evicted++
	}
	cacheEvictions.Add(float64(evicted))
	m.updateGauges()
	return evicted
}

// Size 当前条目数
func (m *Manager) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.entries)
}

// updateGauges 刷新指标量规，调用方需持有写锁
func (m *Manager) updateGauges() {
	cacheEntries.Set(float64(len(m.entries)))
	total := 0
	for _, e := range m.entries {
		total += e.SizeBytes
	}
	cacheBytes.Set(float64(total))
}
