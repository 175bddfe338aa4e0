/*
 * @module service/config/config
 * @description 应用配置加载，支持YAML配置文件与环境变量覆盖，缺省值保证无配置文件也能启动
 * @architecture 分层架构 - 配置加载 -> 环境变量覆盖 -> 校验 -> 应用
 * @documentReference dev_docs/requirements.md 第3.2节
 * @stateFlow 缺省配置 -> YAML覆盖（文件存在时）-> 环境变量覆盖 -> 校验
 * @rules 环境变量优先级高于配置文件，配置文件缺失不是错误
 * @dependencies gopkg.in/yaml.v3, github.com/spf13/cast
 * @refs service/init.go, main.go
 */

package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// UpstreamConfig 上游报告API配置
type UpstreamConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
}

// CacheConfig 进程内缓存配置
type CacheConfig struct {
	TTL              time.Duration `json:"ttl" yaml:"ttl"`
	StaleGrace       time.Duration `json:"stale_grace" yaml:"stale_grace"`
	MaxEntries       int           `json:"max_entries" yaml:"max_entries"`
	RefreshPerSecond float64       `json:"refresh_per_second" yaml:"refresh_per_second"`
}

// PollerConfig 报告状态轮询配置
type PollerConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// RedisConfig 跨实例失效通知配置
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	Database int    `json:"database" yaml:"database"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// PipelineConfig 数据处理管线配置
type PipelineConfig struct {
	StrictMode    bool    `json:"strict_mode" yaml:"strict_mode"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
}

// AppConfig 应用配置根结构
type AppConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
	Poller   PollerConfig   `json:"poller" yaml:"poller"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
}

// DefaultConfig 缺省配置，保证无配置文件与环境变量时也能启动
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         80,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:              5 * time.Minute,
			StaleGrace:       2 * time.Minute,
			MaxEntries:       500,
			RefreshPerSecond: 1,
		},
		Poller: PollerConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  20 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		Pipeline: PipelineConfig{
			StrictMode:    false,
			MinConfidence: 0.5,
		},
	}
}

// Load 加载配置
// 以缺省配置为底，依次叠加YAML配置文件（路径来自CONFIG_FILE环境变量，文件缺失不是错误）
// 与环境变量覆盖，最后校验
func Load() (*AppConfig, error) {
	cfg := DefaultConfig()

	path := getEnvWithDefault("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", path, err)
		}
		slog.Info("配置文件已加载", "path", path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖，优先级高于配置文件
func (c *AppConfig) applyEnvOverrides() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		c.Server.Port = cast.ToInt(v)
	}
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		c.Cache.TTL = cast.ToDuration(v)
	}
	if v := os.Getenv("CACHE_STALE_GRACE"); v != "" {
		c.Cache.StaleGrace = cast.ToDuration(v)
	}
	if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
		c.Cache.MaxEntries = cast.ToInt(v)
	}
	if v := os.Getenv("POLLER_ENABLED"); v != "" {
		c.Poller.Enabled = cast.ToBool(v)
	}
	if v := os.Getenv("POLLER_INTERVAL"); v != "" {
		c.Poller.Interval = cast.ToDuration(v)
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		c.Redis.Enabled = cast.ToBool(v)
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("PIPELINE_STRICT_MODE"); v != "" {
		c.Pipeline.StrictMode = cast.ToBool(v)
	}
	if v := os.Getenv("PIPELINE_MIN_CONFIDENCE"); v != "" {
		c.Pipeline.MinConfidence = cast.ToFloat64(v)
	}
}

// validate 校验配置合法性
func (c *AppConfig) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("非法的服务端口: %d", c.Server.Port)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("上游API地址不能为空")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("缓存TTL必须为正: %s", c.Cache.TTL)
	}
	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 1 {
		return fmt.Errorf("置信度阈值必须在[0,1]区间: %f", c.Pipeline.MinConfidence)
	}
	return nil
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
