/*
 * @module api/controllers/dashboard_controller
 * @description 仪表盘数据控制器，提供仪表盘数据获取、公司切换、缓存失效与缓存健康检查接口
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md 第5章
 * @stateFlow HTTP请求处理流程：参数解析校验 -> 调用服务层 -> 统一响应格式
 * @rules 无报告返回no_report标记的空态而非错误状态码
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/dashboard/service.go, service/cache/cache_manager.go
 */

package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"aivisibility-service/service/cache"
	"aivisibility-service/service/dashboard"
	"aivisibility-service/service/meta"
	"aivisibility-service/service/models"
)

// DashboardController 仪表盘数据控制器
type DashboardController struct {
	dashboardService *dashboard.DashboardService
	cacheManager     *cache.Manager
	bus              *cache.InvalidationBus
}

// NewDashboardController 创建仪表盘控制器实例
func NewDashboardController(dashboardService *dashboard.DashboardService, cacheManager *cache.Manager, bus *cache.InvalidationBus) *DashboardController {
	return &DashboardController{
		dashboardService: dashboardService,
		cacheManager:     cacheManager,
		bus:              bus,
	}
}

// parseDashboardQuery 解析仪表盘类接口共用的路径与查询参数
// 返回的message非空时表示参数校验失败
func parseDashboardQuery(r *http.Request) (companyID string, pageType meta.PageType, filters models.DashboardFilters, message string) {
	companyID = chi.URLParam(r, "company_id")
	if companyID == "" {
		return "", "", filters, "公司ID不能为空"
	}

	pageType = meta.PageType(r.URL.Query().Get("page_type"))
	if pageType == "" {
		pageType = meta.PageTypeDashboard
	}
	if pageType != meta.PageTypeDashboard && pageType != meta.PageTypeCompetitors {
		return "", "", filters, "非法的页面类型: " + string(pageType)
	}

	filters = models.DashboardFilters{
		SelectedModel: r.URL.Query().Get("model"),
		DateRange:     meta.DateRange(r.URL.Query().Get("date_range")),
	}
	if filters.SelectedModel == "" {
		filters.SelectedModel = meta.ModelSelectionAll
	}
	if filters.DateRange == "" {
		filters.DateRange = meta.DateRange30D
	}
	if !filters.DateRange.IsValid() {
		return "", "", filters, "非法的时间范围: " + string(filters.DateRange)
	}

	return companyID, pageType, filters, ""
}

// GetDashboardData 获取仪表盘数据
// @Summary 获取仪表盘数据
// @Description 获取公司在指定模型与时间范围筛选下的完整仪表盘数据包，含当前值、变化量与图表
// @Tags 仪表盘
// @Produce json
// @Param company_id path string true "公司ID"
// @Param page_type query string false "页面类型" default(dashboard) Enums(dashboard, competitors)
// @Param model query string false "模型筛选" default(all)
// @Param date_range query string false "时间范围" default(30d) Enums(24h, 7d, 30d, 90d, 1y)
// @Success 200 {object} APIResponse{data=models.DashboardBundle} "获取成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /dashboard/{company_id} [get]
func (c *DashboardController) GetDashboardData(w http.ResponseWriter, r *http.Request) {
	companyID, pageType, filters, message := parseDashboardQuery(r)
	if message != "" {
		BadRequestResponse(w, r, message)
		return
	}

	bundle, err := c.dashboardService.GetDashboardData(r.Context(), pageType, companyID, filters)
	if err != nil {
		InternalErrorResponse(w, r, "获取仪表盘数据失败")
		return
	}

	SuccessResponse(w, r, "获取仪表盘数据成功", bundle)
}

// GetMetricChart 获取单指标图表
// @Summary 获取单指标图表
// @Description 获取指定指标在所选筛选条件下的图表序列与坐标轴配置
// @Tags 仪表盘
// @Produce json
// @Param company_id path string true "公司ID"
// @Param metric query string false "指标类型" default(share_of_voice) Enums(share_of_voice, sentiment, inclusion)
// @Param model query string false "模型筛选" default(all)
// @Param date_range query string false "时间范围" default(30d) Enums(24h, 7d, 30d, 90d, 1y)
// @Success 200 {object} APIResponse{data=models.ChartResult} "获取成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /dashboard/{company_id}/chart [get]
func (c *DashboardController) GetMetricChart(w http.ResponseWriter, r *http.Request) {
	companyID, pageType, filters, message := parseDashboardQuery(r)
	if message != "" {
		BadRequestResponse(w, r, message)
		return
	}

	metric := meta.MetricKind(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = meta.MetricShareOfVoice
	}
	if !metric.IsValid() {
		BadRequestResponse(w, r, "非法的指标类型: "+string(metric))
		return
	}

	bundle, err := c.dashboardService.GetDashboardData(r.Context(), pageType, companyID, filters)
	if err != nil {
		InternalErrorResponse(w, r, "获取图表数据失败")
		return
	}

	SuccessResponse(w, r, "获取图表数据成功", map[string]interface{}{
		"company_id": companyID,
		"metric":     metric,
		"no_report":  bundle.NoReport,
		"chart":      bundle.Charts[string(metric)],
	})
}

// ResolveMetric 解析单指标当前值与变化量
// @Summary 解析单指标当前值与变化量
// @Description 获取指定指标经层级解析后的当前值、变化量、来源与置信度
// @Tags 仪表盘
// @Produce json
// @Param company_id path string true "公司ID"
// @Param metric query string false "指标类型" default(share_of_voice) Enums(share_of_voice, sentiment, inclusion)
// @Param model query string false "模型筛选" default(all)
// @Param date_range query string false "时间范围" default(30d) Enums(24h, 7d, 30d, 90d, 1y)
// @Success 200 {object} APIResponse "解析成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /dashboard/{company_id}/resolve [get]
func (c *DashboardController) ResolveMetric(w http.ResponseWriter, r *http.Request) {
	companyID, pageType, filters, message := parseDashboardQuery(r)
	if message != "" {
		BadRequestResponse(w, r, message)
		return
	}

	metric := meta.MetricKind(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = meta.MetricShareOfVoice
	}
	if !metric.IsValid() {
		BadRequestResponse(w, r, "非法的指标类型: "+string(metric))
		return
	}

	bundle, err := c.dashboardService.GetDashboardData(r.Context(), pageType, companyID, filters)
	if err != nil {
		InternalErrorResponse(w, r, "解析指标值失败")
		return
	}

	SuccessResponse(w, r, "解析指标值成功", map[string]interface{}{
		"company_id": companyID,
		"metric":     metric,
		"no_report":  bundle.NoReport,
		"current":    bundle.CurrentValues[string(metric)],
		"change":     bundle.ChangeValues[string(metric)],
	})
}

// SwitchCompanyRequest 公司切换请求
type SwitchCompanyRequest struct {
	PreviousCompanyID string `json:"previous_company_id"`
	NewCompanyID      string `json:"new_company_id"`
}

// SwitchCompany 公司切换
// @Summary 公司切换
// @Description 切换当前查看的公司，清除前一公司的全部缓存条目
// @Tags 仪表盘
// @Accept json
// @Produce json
// @Param request body SwitchCompanyRequest true "公司切换请求"
// @Success 200 {object} APIResponse "切换成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /dashboard/switch-company [post]
func (c *DashboardController) SwitchCompany(w http.ResponseWriter, r *http.Request) {
	var req SwitchCompanyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		BadRequestResponse(w, r, "请求参数格式错误")
		return
	}
	if req.NewCompanyID == "" {
		BadRequestResponse(w, r, "新公司ID不能为空")
		return
	}

	c.dashboardService.SwitchCompany(req.PreviousCompanyID, req.NewCompanyID)
	SuccessResponse(w, r, "公司切换成功", nil)
}

// InvalidateCacheRequest 缓存失效请求
type InvalidateCacheRequest struct {
	PageType  string `json:"page_type"`
	CompanyID string `json:"company_id"`
}

// InvalidateCache 缓存失效
// @Summary 缓存失效
// @Description 按页面类型与公司维度失效缓存，二者皆空时清空全部
// @Tags 缓存
// @Accept json
// @Produce json
// @Param request body InvalidateCacheRequest true "缓存失效请求"
// @Success 200 {object} APIResponse "失效成功"
// @Router /cache/invalidate [post]
func (c *DashboardController) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateCacheRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		BadRequestResponse(w, r, "请求参数格式错误")
		return
	}

	removed := c.cacheManager.Invalidate(meta.PageType(req.PageType), req.CompanyID)
	SuccessResponse(w, r, "缓存失效成功", map[string]interface{}{"removed": removed})
}

// NotifyEntityChanged 实体变更通知
// @Summary 实体变更通知
// @Description 接收外部系统的实体变更通知并发布到事件总线，触发相应的缓存失效
// @Tags 缓存
// @Accept json
// @Produce json
// @Param event body cache.EntityChangedEvent true "实体变更事件"
// @Success 200 {object} APIResponse "通知已接收"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /cache/entity-changed [post]
func (c *DashboardController) NotifyEntityChanged(w http.ResponseWriter, r *http.Request) {
	var event cache.EntityChangedEvent
	if err := render.DecodeJSON(r.Body, &event); err != nil {
		BadRequestResponse(w, r, "请求参数格式错误")
		return
	}
	if event.EntityType == "" {
		BadRequestResponse(w, r, "实体类型不能为空")
		return
	}

	c.bus.Publish(event)
	SuccessResponse(w, r, "实体变更通知已接收", nil)
}

// CacheHealth 缓存健康检查
// @Summary 缓存健康检查
// @Description 检查缓存容量与命中率健康状态，临界时触发最旧条目逐出
// @Tags 缓存
// @Produce json
// @Success 200 {object} APIResponse{data=cache.HealthStatus} "检查完成"
// @Router /cache/health [get]
func (c *DashboardController) CacheHealth(w http.ResponseWriter, r *http.Request) {
	status := c.cacheManager.HealthCheck()
	SuccessResponse(w, r, "缓存健康检查完成", status)
}
