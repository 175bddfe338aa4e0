/*
 * @module service/cache/redis_notifier
 * @description Redis失效通知器，通过发布订阅在多实例间转发实体变更事件，保证各实例缓存一致失效
 * @architecture 适配器模式 - 封装go-redis客户端，将本地事件总线与Redis频道双向桥接
 * @documentReference dev_docs/requirements.md 第4.7节
 * @stateFlow 连接建立 -> 订阅失效频道 -> 本地事件外发/远端事件注入本地总线 -> 连接关闭
 * @rules 消息携带实例标识，收到自己发出的消息直接丢弃避免回环；Redis不可用时降级为纯本地失效
 * @dependencies github.com/go-redis/redis/v8, github.com/google/uuid
 * @refs service/cache/invalidation_bus.go, client/connectors
 */

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const invalidationChannel = "aivisibility:cache:invalidation"

// RedisNotifierConfig Redis通知器配置
type RedisNotifierConfig struct {
	Address      string        `json:"address" yaml:"address"`
	Password     string        `json:"password" yaml:"password"`
	Database     int           `json:"database" yaml:"database"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// RedisNotifier Redis失效通知器
type RedisNotifier struct {
	client     *redis.Client
	pubsub     *redis.PubSub
	bus        *InvalidationBus
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
	connected  bool
}

// NewRedisNotifier 创建Redis通知器，仅初始化客户端不建立连接
func NewRedisNotifier(config *RedisNotifierConfig, bus *InvalidationBus) *RedisNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{
			Addr:         config.Address,
			Password:     config.Password,
			DB:           config.Database,
			PoolSize:     config.PoolSize,
			DialTimeout:  config.DialTimeout,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		}),
		bus:        bus,
		instanceID: uuid.New().String(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 建立连接并双向桥接本地事件总线与Redis频道
func (rn *RedisNotifier) Start() error {
	if _, err := rn.client.Ping(rn.ctx).Result(); err != nil {
		return fmt.Errorf("Redis连接失败: %v", err)
	}
	rn.connected = true

	rn.pubsub = rn.client.Subscribe(rn.ctx, invalidationChannel)
	go rn.listenMessages()

	// 本地产生的事件转发到Redis，远端来源的不再外发
	rn.bus.Subscribe(func(event EntityChangedEvent) {
		if event.Source != "" && event.Source != rn.instanceID {
			return
		}
		rn.publish(event)
	})

	slog.Info("Redis失效通知器已启动", "instance_id", rn.instanceID, "channel", invalidationChannel)
	return nil
}

// publish 将事件外发到Redis频道
func (rn *RedisNotifier) publish(event EntityChangedEvent) {
	event.Source = rn.instanceID
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("序列化失效事件失败", "error", err)
		return
	}
	if err := rn.client.Publish(rn.ctx, invalidationChannel, data).Err(); err != nil {
		slog.Error("发布失效事件到Redis失败", "error", err)
		return
	}
	slog.Debug("失效事件已外发", "entity_type", event.EntityType, "company_id", event.CompanyID)
}

// listenMessages 监听Redis频道，将远端事件注入本地总线
func (rn *RedisNotifier) listenMessages() {
	ch := rn.pubsub.Channel()
	for msg := range ch {
		var event EntityChangedEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			slog.Warn("反序列化失效事件失败", "payload", msg.Payload, "error", err)
			continue
		}
		// 自己发出的消息直接丢弃避免回环
		if event.Source == rn.instanceID {
			continue
		}
		slog.Info("收到远端失效事件",
			"entity_type", event.EntityType,
			"company_id", event.CompanyID,
			"source", event.Source)
		rn.bus.Publish(event)
	}
}

// Stop 关闭订阅与客户端
func (rn *RedisNotifier) Stop() error {
	if !rn.connected {
		return nil
	}
	rn.cancel()
	if rn.pubsub != nil {
		if err := rn.pubsub.Close(); err != nil {
			slog.Warn("关闭Redis订阅失败", "error", err)
		}
	}
	if err := rn.client.Close(); err != nil {
		return fmt.Errorf("关闭Redis客户端失败: %v", err)
	}
	rn.connected = false
	slog.Info("Redis失效通知器已停止")
	return nil
}

// IsConnected 连接状态
func (rn *RedisNotifier) IsConnected() bool {
	return rn.connected
}
