/*
 * @module service/report/fetcher
 * @description 上游报告API客户端，拉取公司的可见度报告原始载荷与报告生成状态
 * @architecture 适配器模式 - 接口抽象上游依赖，HTTP实现封装重试前的单次请求语义
 * @documentReference dev_docs/requirements.md 第4.2节
 * @stateFlow 构造请求 -> 发送 -> 204/404归一为无报告哨兵错误 -> 解码JSON载荷
 * @rules 无报告是业务常态而非故障，以哨兵错误ErrNoReport表达，调用方据此走空态渲染
 * @dependencies net/http, aivisibility-service/service/models
 * @refs service/dashboard/service.go, service/report/status_poller.go
 */

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"aivisibility-service/service/models"
)

// ErrNoReport 公司尚无已生成的报告
var ErrNoReport = errors.New("no report available")

// Fetcher 上游报告数据源
type Fetcher interface {
	// FetchDashboardPayload 拉取仪表盘原始载荷，报告不存在时返回ErrNoReport
	FetchDashboardPayload(ctx context.Context, companyID string, filters models.DashboardFilters) (models.RawPayload, error)
	// FetchReportStatus 查询报告生成状态
	FetchReportStatus(ctx context.Context, companyID string) (*models.ReportStatusInfo, error)
}

// HTTPFetcherConfig 上游HTTP客户端配置
type HTTPFetcherConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
}

// HTTPFetcher 基于HTTP的上游报告客户端
type HTTPFetcher struct {
	config *HTTPFetcherConfig
	client *http.Client
}

// NewHTTPFetcher 创建上游报告客户端
func NewHTTPFetcher(config *HTTPFetcherConfig) *HTTPFetcher {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchDashboardPayload 拉取仪表盘原始载荷
// 上游返回204或404时归一为ErrNoReport，其余非2xx状态视为上游故障
func (f *HTTPFetcher) FetchDashboardPayload(ctx context.Context, companyID string, filters models.DashboardFilters) (models.RawPayload, error) {
	if companyID == "" {
		return nil, errors.New("companyID cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/api/companies/%s/dashboard", f.config.BaseURL, url.PathEscape(companyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	values := url.Values{}
	for k, v := range filters.ToMap() {
		values.Add(k, v)
	}
	req.URL.RawQuery = values.Encode()
	f.decorate(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoReport
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("上游返回异常状态码: %d", resp.StatusCode)
	}

	var payload models.RawPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return payload, nil
}

// FetchReportStatus 查询报告生成状态
// 报告记录不存在时同样归一为ErrNoReport
func (f *HTTPFetcher) FetchReportStatus(ctx context.Context, companyID string) (*models.ReportStatusInfo, error) {
	if companyID == "" {
		return nil, errors.New("companyID cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/api/companies/%s/report-status", f.config.BaseURL, url.PathEscape(companyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	f.decorate(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoReport
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("上游返回异常状态码: %d", resp.StatusCode)
	}

	var info models.ReportStatusInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if !info.Status.IsValid() {
		return nil, fmt.Errorf("上游返回未知的报告状态: %s", info.Status)
	}
	return &info, nil
}

// decorate 附加通用请求头
func (f *HTTPFetcher) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if f.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.config.APIKey)
	}
}
