package notifier

import (
	"context"
	"errors"
	"fmt"

	commonredis "hms-vitals/common/redis"
	"hms-vitals/internal/models"

	"go.uber.org/zap"
)

// StreamNotifier 写入 Redis Stream（字段 data 为事件 JSON）
type StreamNotifier struct {
	client *commonredis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamNotifier 创建 Redis Stream 输出
func NewStreamNotifier(client *commonredis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

func (n *StreamNotifier) Notify(ctx context.Context, events []models.AlertEvent) error {
	var errs []error
	for _, ev := range events {
		id, err := commonredis.PublishJSONToStream(ctx, n.client, n.stream, n.maxLen, ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to publish to stream %s: %w", n.stream, err))
			continue
		}
		n.logger.Debug("Alert event added to stream",
			zap.String("stream", n.stream),
			zap.String("message_id", id),
			zap.String("event_id", ev.EventID),
		)
	}
	return errors.Join(errs...)
}
