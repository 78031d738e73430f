package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"hms-vitals/internal/config"
	"hms-vitals/internal/models"
	"hms-vitals/internal/store"

	"go.uber.org/zap"
)

// CacheManager 看板快照缓存（供其他实例或前端直接读取）
type CacheManager struct {
	config *config.Config
	kv     store.KV
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	kv store.KV,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config: cfg,
		kv:     kv,
		logger: logger,
	}
}

// DashboardKey 构建看板缓存键: <prefix>all 或 <prefix>ward:<id>
func (c *CacheManager) DashboardKey(wardID *int64) string {
	if wardID == nil {
		return c.config.Vitals.Cache.DashboardPrefix + "all"
	}
	return c.config.Vitals.Cache.DashboardPrefix + "ward:" + strconv.FormatInt(*wardID, 10)
}

// UpdateDashboardCache 写入看板快照（带 TTL）
func (c *CacheManager) UpdateDashboardCache(ctx context.Context, d *models.Dashboard) error {
	key := c.DashboardKey(d.WardID)

	jsonData, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal dashboard: %w", err)
	}

	if err := c.kv.Set(ctx, key, string(jsonData), c.config.Vitals.Cache.DashboardTTL); err != nil {
		return fmt.Errorf("failed to set dashboard cache: %w", err)
	}

	c.logger.Debug("Updated dashboard cache",
		zap.String("key", key),
		zap.Int("row_count", len(d.Rows)),
	)
	return nil
}

// GetDashboard 读取看板快照，不存在时返回 store.ErrMiss
func (c *CacheManager) GetDashboard(ctx context.Context, wardID *int64) (*models.Dashboard, error) {
	val, err := c.kv.Get(ctx, c.DashboardKey(wardID))
	if err != nil {
		return nil, err
	}

	var d models.Dashboard
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dashboard: %w", err)
	}
	return &d, nil
}
