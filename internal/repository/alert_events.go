package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"hms-vitals/internal/models"

	"go.uber.org/zap"
)

// AlertEventsRepository 告警事件日志仓库（vitals_alert_events 表）
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository 创建告警事件仓库
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertEventFilters 查询条件
type AlertEventFilters struct {
	WardID     *int64
	EpisodeID  *string
	EventTypes []models.AlertEventType
	Limit      int // 默认 100，最大 1000
}

// InsertAlertEvent 写入一条告警事件
func (r *AlertEventsRepository) InsertAlertEvent(ctx context.Context, ev *models.AlertEvent) error {
	if ev.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		INSERT INTO vitals_alert_events (
			event_id, event_type, episode_id, alert_id, schedule_id,
			patient_admission_id, ward_id, patient_name, bed_number, ward_name,
			due_at, status, time_until_due_minutes, time_overdue_minutes,
			severity, user_id, emitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		ev.EventID,
		string(ev.Type),
		ev.EpisodeID,
		ev.AlertID,
		ev.ScheduleID,
		ev.PatientAdmissionID,
		ev.WardID,
		ev.PatientName,
		ev.BedNumber,
		ev.WardName,
		ev.DueAt,
		string(ev.Status),
		nullInt(ev.TimeUntilDueMinutes),
		nullInt(ev.TimeOverdueMinutes),
		string(ev.Severity),
		sql.NullString{String: ev.UserID, Valid: ev.UserID != ""},
		ev.EmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}
	return nil
}

// ListAlertEvents 按时间倒序查询告警事件
func (r *AlertEventsRepository) ListAlertEvents(ctx context.Context, filters AlertEventFilters) ([]models.AlertEvent, error) {
	var conds []string
	var args []any

	if filters.WardID != nil {
		args = append(args, *filters.WardID)
		conds = append(conds, fmt.Sprintf("ward_id = $%d", len(args)))
	}
	if filters.EpisodeID != nil {
		args = append(args, *filters.EpisodeID)
		conds = append(conds, fmt.Sprintf("episode_id = $%d", len(args)))
	}
	if len(filters.EventTypes) > 0 {
		placeholders := make([]string, 0, len(filters.EventTypes))
		for _, t := range filters.EventTypes {
			args = append(args, string(t))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)

	query := `
		SELECT
			event_id, event_type, episode_id, alert_id, schedule_id,
			patient_admission_id, ward_id, patient_name, bed_number, ward_name,
			due_at, status, time_until_due_minutes, time_overdue_minutes,
			severity, user_id, emitted_at
		FROM vitals_alert_events`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf("\n\t\tORDER BY emitted_at DESC\n\t\tLIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	events := []models.AlertEvent{}
	for rows.Next() {
		var ev models.AlertEvent
		var eventType, status, severity string
		var until, overdue sql.NullInt64
		var userID sql.NullString
		if err := rows.Scan(
			&ev.EventID,
			&eventType,
			&ev.EpisodeID,
			&ev.AlertID,
			&ev.ScheduleID,
			&ev.PatientAdmissionID,
			&ev.WardID,
			&ev.PatientName,
			&ev.BedNumber,
			&ev.WardName,
			&ev.DueAt,
			&status,
			&until,
			&overdue,
			&severity,
			&userID,
			&ev.EmittedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		ev.Type = models.AlertEventType(eventType)
		ev.Status = models.VitalsStatus(status)
		ev.Severity = models.Severity(severity)
		ev.UserID = userID.String
		if until.Valid {
			v := int(until.Int64)
			ev.TimeUntilDueMinutes = &v
		}
		if overdue.Valid {
			v := int(overdue.Int64)
			ev.TimeOverdueMinutes = &v
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	return events, nil
}
