/*
 * @module service/init
 * @description 服务初始化模块，负责配置加载、缓存、事件总线、上游客户端与轮询器的装配
 * @architecture 分层架构 - 服务层
 * @documentReference dev_docs/requirements.md 第3.1节
 * @stateFlow 应用启动时执行初始化流程：配置 -> 缓存与事件总线 -> 上游客户端 -> 轮询器 -> 可选Redis通知器
 * @rules Redis与轮询器均为可选组件，不可用时服务降级运行而非启动失败
 * @dependencies aivisibility-service/service/cache, aivisibility-service/service/report
 * @refs api/routes.go, main.go
 */

package service

import (
	"log"

	"aivisibility-service/service/cache"
	"aivisibility-service/service/config"
	"aivisibility-service/service/dashboard"
	"aivisibility-service/service/models"
	"aivisibility-service/service/report"
)

var (
	GlobalConfig           *config.AppConfig
	GlobalCacheManager     *cache.Manager
	GlobalInvalidationBus  *cache.InvalidationBus
	GlobalRedisNotifier    *cache.RedisNotifier
	GlobalFetcher          report.Fetcher
	GlobalStatusPoller     *report.StatusPoller
	GlobalDashboardService *dashboard.DashboardService
)

func init() {
	initConfig()
	initServices()
}

// initConfig 加载应用配置
func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	GlobalConfig = cfg
	log.Println("配置加载成功")
}

// initServices 装配服务组件
func initServices() {
	GlobalCacheManager = cache.NewManager(
		GlobalConfig.Cache.TTL,
		GlobalConfig.Cache.StaleGrace,
		GlobalConfig.Cache.MaxEntries,
		GlobalConfig.Cache.RefreshPerSecond,
	)
	GlobalInvalidationBus = cache.NewInvalidationBus()
	cache.BindCacheInvalidation(GlobalInvalidationBus, GlobalCacheManager)

	GlobalFetcher = report.NewHTTPFetcher(&report.HTTPFetcherConfig{
		BaseURL: GlobalConfig.Upstream.BaseURL,
		Timeout: GlobalConfig.Upstream.Timeout,
		APIKey:  GlobalConfig.Upstream.APIKey,
	})

	GlobalStatusPoller = report.NewStatusPoller(
		GlobalFetcher,
		GlobalInvalidationBus,
		GlobalConfig.Poller.Interval,
		GlobalConfig.Poller.Timeout,
	)
	if GlobalConfig.Poller.Enabled {
		if err := GlobalStatusPoller.Start(); err != nil {
			log.Printf("启动报告状态轮询器失败: %v", err)
		}
	}

	GlobalDashboardService = dashboard.NewDashboardService(
		GlobalFetcher,
		GlobalCacheManager,
		GlobalStatusPoller,
		models.NormalizeOptions{
			StrictMode:    GlobalConfig.Pipeline.StrictMode,
			MinConfidence: GlobalConfig.Pipeline.MinConfidence,
		},
	)

	// Redis跨实例失效为可选能力，连接失败时降级为纯本地失效
	if GlobalConfig.Redis.Enabled {
		GlobalRedisNotifier = cache.NewRedisNotifier(&cache.RedisNotifierConfig{
			Address:  GlobalConfig.Redis.Address,
			Password: GlobalConfig.Redis.Password,
			Database: GlobalConfig.Redis.Database,
			PoolSize: GlobalConfig.Redis.PoolSize,
		}, GlobalInvalidationBus)
		if err := GlobalRedisNotifier.Start(); err != nil {
			log.Printf("Redis失效通知器启动失败，降级为本地失效: %v", err)
			GlobalRedisNotifier = nil
		}
	}

	log.Println("服务初始化完成")
}
