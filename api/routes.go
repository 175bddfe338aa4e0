/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference dev_docs/requirements.md 第5章
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers
 */

package api

import (
	"aivisibility-service/api/controllers"
	"aivisibility-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 仪表盘数据
	dashboardController := controllers.NewDashboardController(
		service.GlobalDashboardService,
		service.GlobalCacheManager,
		service.GlobalInvalidationBus,
	)
	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/{company_id}", dashboardController.GetDashboardData)
		r.Get("/{company_id}/chart", dashboardController.GetMetricChart)
		r.Get("/{company_id}/resolve", dashboardController.ResolveMetric)
		r.Post("/switch-company", dashboardController.SwitchCompany)
	})

	// 缓存管理
	r.Route("/cache", func(r chi.Router) {
		r.Post("/invalidate", dashboardController.InvalidateCache)
		r.Post("/entity-changed", dashboardController.NotifyEntityChanged)
		r.Get("/health", dashboardController.CacheHealth)
	})
}
