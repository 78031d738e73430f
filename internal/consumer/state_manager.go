package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"hms-vitals/internal/config"
	"hms-vitals/internal/models"
	"hms-vitals/internal/store"

	"go.uber.org/zap"
)

// StateManager 告警状态管理器（已忽略的告警周期、用户提示音设置）
type StateManager struct {
	config *config.Config
	kv     store.KV
	logger *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	kv store.KV,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config: cfg,
		kv:     kv,
		logger: logger,
	}
}

// Dismissal 忽略记录
type Dismissal struct {
	EpisodeID   string    `json:"episode_id"`
	UserID      string    `json:"user_id"`
	DismissedAt time.Time `json:"dismissed_at"`
}

// DismissKey 构建忽略键
func (s *StateManager) DismissKey(episodeID string) string {
	return s.config.Vitals.Cache.DismissPrefix + episodeID
}

// SettingsKey 构建用户设置键
func (s *StateManager) SettingsKey(userID string) string {
	return s.config.Vitals.Cache.SettingsPrefix + userID
}

// SetState 设置状态（带 TTL）
func (s *StateManager) SetState(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.kv.Set(ctx, key, string(jsonData), ttl); err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}
	return nil
}

// GetState 获取状态，不存在时返回 store.ErrMiss
func (s *StateManager) GetState(ctx context.Context, key string, dest interface{}) error {
	val, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return err
		}
		return fmt.Errorf("failed to get state: %w", err)
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return nil
}

// DeleteState 删除状态
func (s *StateManager) DeleteState(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// ExistsState 检查状态是否存在
func (s *StateManager) ExistsState(ctx context.Context, key string) (bool, error) {
	ok, err := s.kv.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check state existence: %w", err)
	}
	return ok, nil
}

// MarkDismissed 记录忽略（TTL 由 CACHE_DISMISS_TTL_SEC 决定）
func (s *StateManager) MarkDismissed(ctx context.Context, d Dismissal) error {
	return s.SetState(ctx, s.DismissKey(d.EpisodeID), d, s.config.Vitals.Cache.DismissTTL)
}

// IsDismissed 告警周期是否已被忽略
func (s *StateManager) IsDismissed(ctx context.Context, episodeID string) (bool, error) {
	return s.ExistsState(ctx, s.DismissKey(episodeID))
}

// ClearDismissal 周期恢复后清理忽略记录
func (s *StateManager) ClearDismissal(ctx context.Context, episodeID string) error {
	return s.DeleteState(ctx, s.DismissKey(episodeID))
}

// GetAlertSettings 获取用户提示音设置，未设置时返回默认值
func (s *StateManager) GetAlertSettings(ctx context.Context, userID string) (models.AlertSettings, error) {
	settings := models.DefaultAlertSettings()
	err := s.GetState(ctx, s.SettingsKey(userID), &settings)
	if errors.Is(err, store.ErrMiss) {
		return models.DefaultAlertSettings(), nil
	}
	if err != nil {
		return models.AlertSettings{}, err
	}
	return settings, nil
}

// SetAlertSettings 保存用户提示音设置（不过期）
func (s *StateManager) SetAlertSettings(ctx context.Context, userID string, settings models.AlertSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.SetState(ctx, s.SettingsKey(userID), settings, 0); err != nil {
		return err
	}
	s.logger.Debug("Alert settings saved", zap.String("user_id", userID))
	return nil
}

// DismissedEpisodes 列出仍在有效期内的已忽略周期
func (s *StateManager) DismissedEpisodes(ctx context.Context) ([]string, error) {
	prefix := s.config.Vitals.Cache.DismissPrefix
	keys, err := s.kv.ScanKeys(ctx, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan dismissals: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(ids)
	return ids, nil
}
