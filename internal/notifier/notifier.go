package notifier

import (
	"context"
	"errors"

	"hms-vitals/internal/models"

	"go.uber.org/zap"
)

// Notifier 告警事件输出
type Notifier interface {
	Notify(ctx context.Context, events []models.AlertEvent) error
}

// Fanout 依次投递到所有输出，单个输出失败不影响其他输出
type Fanout struct {
	sinks []Notifier
}

// NewFanout 创建多路输出（忽略 nil）
func NewFanout(sinks ...Notifier) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Notify 投递事件，返回所有失败的合并错误
func (f *Fanout) Notify(ctx context.Context, events []models.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notify(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 将事件写入结构化日志
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志输出
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, events []models.AlertEvent) error {
	for _, ev := range events {
		fields := []zap.Field{
			zap.String("event_id", ev.EventID),
			zap.String("event_type", string(ev.Type)),
			zap.String("episode_id", ev.EpisodeID),
			zap.Int64("ward_id", ev.WardID),
			zap.String("bed_number", ev.BedNumber),
			zap.String("status", string(ev.Status)),
			zap.String("severity", string(ev.Severity)),
		}
		if ev.UserID != "" {
			fields = append(fields, zap.String("user_id", ev.UserID))
		}
		if ev.Urgent && ev.Type == models.EventRaised {
			n.logger.Warn("Vitals alert", fields...)
			continue
		}
		n.logger.Info("Vitals alert", fields...)
	}
	return nil
}
