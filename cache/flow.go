package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"stageflow/config"
	"stageflow/dao/model"
	"stageflow/logutils"

	"github.com/redis/go-redis/v9"
)

const (
	flowConfigKey = "stageflow:areaflows:configuration"
	flowConfigTTL = 5 * time.Minute
)

var (
	client *redis.Client
	once   sync.Once
)

// Client returns the shared redis client, or nil when redis is not
// configured. Every caller must tolerate nil: the server degrades to
// plain database reads without redis.
func Client() *redis.Client {
	once.Do(func() {
		cfg := config.GetConfig()
		if cfg.Redis.Addr == "" {
			return
		}
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logutils.Log.Warn("redis unavailable, flow cache disabled: ", err)
			client = nil
		}
	})
	return client
}

// SetClient replaces the shared client. Tests use it to point the cache
// at miniredis.
func SetClient(c *redis.Client) {
	once.Do(func() {})
	client = c
}

// GetFlowConfiguration returns the cached per-area edge sets, or false
// on a miss (including redis being down).
func GetFlowConfiguration(ctx context.Context) (map[uint][]model.AreaFlow, bool) {
	c := Client()
	if c == nil {
		return nil, false
	}
	data, err := c.Get(ctx, flowConfigKey).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logutils.Log.Warn("flow cache get: ", err)
		return nil, false
	}
	var cfg map[uint][]model.AreaFlow
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		logutils.Log.Warn("flow cache decode: ", err)
		return nil, false
	}
	return cfg, true
}

// SetFlowConfiguration stores the per-area edge sets with a short TTL.
func SetFlowConfiguration(ctx context.Context, cfg map[uint][]model.AreaFlow) {
	c := Client()
	if c == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		logutils.Log.Warn("flow cache encode: ", err)
		return
	}
	if err := c.Set(ctx, flowConfigKey, data, flowConfigTTL).Err(); err != nil {
		logutils.Log.Warn("flow cache set: ", err)
	}
}

// InvalidateFlowConfiguration drops the cached document. Called on
// every area-flow write so reads never serve a deactivated edge.
func InvalidateFlowConfiguration(ctx context.Context) {
	c := Client()
	if c == nil {
		return
	}
	if err := c.Del(ctx, flowConfigKey).Err(); err != nil {
		logutils.Log.Warn("flow cache invalidate: ", err)
	}
}
