package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hms-vitals/common/database"
	"hms-vitals/common/mqtt"
	commonredis "hms-vitals/common/redis"
	"hms-vitals/internal/client"
	"hms-vitals/internal/config"
	"hms-vitals/internal/consumer"
	httpapi "hms-vitals/internal/http"
	"hms-vitals/internal/notifier"
	"hms-vitals/internal/repository"
	"hms-vitals/internal/store"

	"go.uber.org/zap"
)

// VitalsService 生命体征服务（整合各层）
type VitalsService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *commonredis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	backend      consumer.WardBackend
	stateManager *consumer.StateManager
	cacheManager *consumer.CacheManager
	eventsRepo   *repository.AlertEventsRepository
	feed         *consumer.AlertFeed
	router       *httpapi.Router
}

// recordedMessage <prefix>/vitals/recorded 消息
type recordedMessage struct {
	ScheduleID int64     `json:"schedule_id"`
	NextDueAt  time.Time `json:"next_due_at"`
}

// NewVitalsService 创建服务
// 数据库、MQTT 为可选；Redis 不可用时退回进程内存储
func NewVitalsService(cfg *config.Config, logger *zap.Logger) (*VitalsService, error) {
	s := &VitalsService{config: cfg, logger: logger}

	// 1. 数据库（可选）
	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			if cfg.WardBackend == config.BackendPostgres {
				return nil, fmt.Errorf("failed to connect database: %w", err)
			}
			logger.Warn("DB enabled but connection failed, alert history disabled", zap.Error(err))
		} else {
			s.db = db
			s.eventsRepo = repository.NewAlertEventsRepository(db, logger)
			logger.Info("DB enabled for hms-vitals")
		}
	}

	// 2. 病区后端
	switch cfg.WardBackend {
	case config.BackendPostgres:
		s.backend = repository.NewWardStore(s.db, logger)
	default:
		s.backend = client.NewWardClient(cfg.WardAPI, logger)
	}

	// 3. Redis
	var kv store.KV
	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	err := commonredis.Ping(pingCtx, redisClient)
	cancel()
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory state", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = commonredis.Close(redisClient)
		kv = store.NewMemoryKV()
	} else {
		s.redisClient = redisClient
		kv = store.NewRedisKV(redisClient)
	}
	s.stateManager = consumer.NewStateManager(cfg, kv, logger)
	s.cacheManager = consumer.NewCacheManager(cfg, kv, logger)

	// 4. MQTT（可选）
	if cfg.MQTTEnabled {
		mc, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT enabled but connection failed, alert events will not be published", zap.Error(err))
		} else {
			s.mqttClient = mc
		}
	}

	// 5. 告警输出
	sinks := []notifier.Notifier{notifier.NewLogNotifier(logger)}
	if s.mqttClient != nil {
		sinks = append(sinks, notifier.NewMQTTNotifier(s.mqttClient, cfg.MQTTTopicPrefix, cfg.MQTT.QoS, logger))
	}
	if s.redisClient != nil && cfg.Vitals.AlertStream != "" {
		sinks = append(sinks, notifier.NewStreamNotifier(s.redisClient, cfg.Vitals.AlertStream, cfg.Vitals.AlertStreamMaxLen, logger))
	}
	if s.eventsRepo != nil {
		sinks = append(sinks, notifier.NewEventLogNotifier(s.eventsRepo))
	}

	// 6. 告警轮询
	s.feed = consumer.NewAlertFeed(
		s.backend,
		s.stateManager,
		notifier.NewFanout(sinks...),
		s.cacheManager,
		consumer.FeedOptions{
			FetchTimeout: cfg.Vitals.FetchTimeout,
			RecordGrace:  cfg.Vitals.RecordGrace,
			WardID:       cfg.Vitals.WardID,
		},
		logger,
	)

	// 7. HTTP 路由
	var history httpapi.AlertHistory
	if s.eventsRepo != nil {
		history = s.eventsRepo
	}
	handler := httpapi.NewVitalsHandler(s.feed, s.backend, s.stateManager, s.cacheManager, history, logger)
	s.router = httpapi.NewRouter(logger)
	s.router.RegisterHealthRoutes()
	s.router.RegisterVitalsRoutes(handler)

	return s, nil
}

// Handler HTTP 入口
func (s *VitalsService) Handler() http.Handler {
	return s.router
}

// RecordedTopic 记录确认主题
func (s *VitalsService) RecordedTopic() string {
	return s.config.MQTTTopicPrefix + "/vitals/recorded"
}

// Start 启动服务
func (s *VitalsService) Start(ctx context.Context) error {
	s.logger.Info("Starting vitals service",
		zap.String("ward_backend", s.config.WardBackend),
		zap.Any("ward_id", s.config.Vitals.WardID),
	)

	if ids, err := s.stateManager.DismissedEpisodes(ctx); err != nil {
		s.logger.Warn("Failed to list persisted dismissals", zap.Error(err))
	} else {
		s.feed.RestoreDismissals(ids)
		s.logger.Info("Loaded persisted dismissals", zap.Int("count", len(ids)))
	}

	if s.mqttClient != nil {
		if err := s.mqttClient.Subscribe(s.RecordedTopic(), s.config.MQTT.QoS, s.handleRecorded); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", s.RecordedTopic(), err)
		}
	}

	if err := s.feed.Start(ctx, s.config.Vitals.PollInterval); err != nil {
		return fmt.Errorf("failed to start alert feed: %w", err)
	}
	return nil
}

// handleRecorded 其他端记录生命体征后立即恢复对应告警
func (s *VitalsService) handleRecorded(topic string, payload []byte) error {
	var msg recordedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal recorded message: %w", err)
	}
	if msg.ScheduleID <= 0 {
		return fmt.Errorf("recorded message missing schedule_id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Vitals.FetchTimeout)
	defer cancel()
	s.feed.MarkRecorded(ctx, msg.ScheduleID, msg.NextDueAt)
	return nil
}

// Stop 停止服务
func (s *VitalsService) Stop() error {
	s.logger.Info("Stopping vitals service")

	s.feed.Stop()

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if err := commonredis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	return nil
}
