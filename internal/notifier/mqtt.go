package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hms-vitals/internal/models"

	"go.uber.org/zap"
)

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier 发布事件到 <prefix>/wards/<ward_id>/alerts
type MQTTNotifier struct {
	publisher   Publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTNotifier 创建 MQTT 输出
func NewMQTTNotifier(publisher Publisher, topicPrefix string, qos byte, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Topic 病区告警主题
func (n *MQTTNotifier) Topic(wardID int64) string {
	return fmt.Sprintf("%s/wards/%d/alerts", n.topicPrefix, wardID)
}

func (n *MQTTNotifier) Notify(_ context.Context, events []models.AlertEvent) error {
	var errs []error
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to marshal alert event: %w", err))
			continue
		}
		topic := n.Topic(ev.WardID)
		if err := n.publisher.Publish(topic, n.qos, false, payload); err != nil {
			errs = append(errs, err)
			continue
		}
		n.logger.Debug("Published alert event",
			zap.String("topic", topic),
			zap.String("event_id", ev.EventID),
		)
	}
	return errors.Join(errs...)
}
