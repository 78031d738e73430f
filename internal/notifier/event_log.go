package notifier

import (
	"context"
	"errors"

	"hms-vitals/internal/models"
)

// EventWriter 告警事件持久化（repository.AlertEventsRepository 实现）
type EventWriter interface {
	InsertAlertEvent(ctx context.Context, ev *models.AlertEvent) error
}

// EventLogNotifier 写入 vitals_alert_events
type EventLogNotifier struct {
	repo EventWriter
}

// NewEventLogNotifier 创建事件日志输出
func NewEventLogNotifier(repo EventWriter) *EventLogNotifier {
	return &EventLogNotifier{repo: repo}
}

func (n *EventLogNotifier) Notify(ctx context.Context, events []models.AlertEvent) error {
	var errs []error
	for i := range events {
		if err := n.repo.InsertAlertEvent(ctx, &events[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
