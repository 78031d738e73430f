package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"hms-vitals/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrNotFound 记录不存在
var ErrNotFound = fmt.Errorf("record %w", models.ErrNotFound)

// vitals_alerts.status 取值
const (
	alertStatusPending   = "pending"
	alertStatusDue       = "due"
	alertStatusOverdue   = "overdue"
	alertStatusDismissed = "dismissed"
	alertStatusCompleted = "completed"
)

// listableAlertStatuses 看板可见的告警状态（completed 表示已记录）
var listableAlertStatuses = []string{alertStatusPending, alertStatusDue, alertStatusOverdue, alertStatusDismissed}

// openAlertStatuses 未处理的告警状态
var openAlertStatuses = []string{alertStatusPending, alertStatusDue, alertStatusOverdue}

// WardStore 直连病区数据库的后端实现
// next_due_at 的推进全部在 SQL 中完成
type WardStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWardStore 创建病区数据库存储
func NewWardStore(db *sql.DB, logger *zap.Logger) *WardStore {
	return &WardStore{
		db:     db,
		logger: logger,
	}
}

// ListActiveSchedules 拉取活跃计划
// 先为每个新的到期周期补建 vitals_alerts 行，再按到期时间返回
func (s *WardStore) ListActiveSchedules(ctx context.Context, wardID *int64) ([]models.ScheduleEntry, error) {
	ensure := `
		INSERT INTO vitals_alerts (vitals_schedule_id, patient_admission_id, due_at, status, created_at, updated_at)
		SELECT s.id, s.patient_admission_id, s.next_due_at, $1, NOW(), NOW()
		FROM vitals_schedules s
		JOIN patient_admissions a ON a.id = s.patient_admission_id
		WHERE s.is_active = true
		  AND a.status = 'admitted'
		  AND NOT EXISTS (
			SELECT 1 FROM vitals_alerts va
			WHERE va.vitals_schedule_id = s.id AND va.due_at = s.next_due_at
		  )
	`
	if _, err := s.db.ExecContext(ctx, ensure, alertStatusPending); err != nil {
		return nil, fmt.Errorf("failed to ensure vitals alerts: %w", err)
	}

	var b strings.Builder
	b.WriteString(`
		SELECT
			va.id,
			s.id,
			a.id,
			COALESCE(a.ward_id, 0),
			TRIM(p.first_name || ' ' || p.last_name),
			COALESCE(b.bed_number, ''),
			COALESCE(w.name, ''),
			s.next_due_at,
			s.interval_minutes
		FROM vitals_schedules s
		JOIN patient_admissions a ON a.id = s.patient_admission_id
		JOIN patients p ON p.id = a.patient_id
		LEFT JOIN beds b ON b.id = a.bed_id
		LEFT JOIN wards w ON w.id = a.ward_id
		JOIN vitals_alerts va ON va.vitals_schedule_id = s.id AND va.due_at = s.next_due_at
		WHERE s.is_active = true
		  AND a.status = 'admitted'
		  AND va.status = ANY($1)`)
	args := []any{pq.Array(listableAlertStatuses)}
	if wardID != nil {
		args = append(args, *wardID)
		b.WriteString(fmt.Sprintf("\n\t\t  AND a.ward_id = $%d", len(args)))
	}
	b.WriteString("\n\t\tORDER BY s.next_due_at ASC, s.id ASC")

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	defer rows.Close()

	var entries []models.ScheduleEntry
	for rows.Next() {
		var e models.ScheduleEntry
		var scheduleID int64
		var dueAt sql.NullTime
		if err := rows.Scan(
			&e.ID,
			&scheduleID,
			&e.PatientAdmissionID,
			&e.WardID,
			&e.PatientName,
			&e.BedNumber,
			&e.WardName,
			&dueAt,
			&e.IntervalMinutes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan active schedule: %w", err)
		}
		e.ScheduleID = &scheduleID
		if dueAt.Valid {
			e.DueAt = dueAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active schedules: %w", err)
	}

	return entries, nil
}

// CreateSchedule 创建计划，同一住院记录只保留一个活跃计划
func (s *WardStore) CreateSchedule(ctx context.Context, admissionID int64, in models.ScheduleInput) (*models.VitalsSchedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM patient_admissions WHERE id = $1`, admissionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("admission %d: %w", admissionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admission: %w", err)
	}
	if status != "admitted" {
		return nil, models.NewValidationError("patient_admission_id", "patient is not currently admitted")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE vitals_schedules
		SET is_active = false, updated_at = NOW()
		WHERE patient_admission_id = $1 AND is_active = true
	`, admissionID); err != nil {
		return nil, fmt.Errorf("failed to deactivate previous schedules: %w", err)
	}

	sched := &models.VitalsSchedule{PatientAdmissionID: admissionID, IntervalMinutes: in.IntervalMinutes, IsActive: true}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO vitals_schedules (patient_admission_id, interval_minutes, next_due_at, is_active, created_at, updated_at)
		VALUES ($1, $2, NOW() + make_interval(mins => $2), true, NOW(), NOW())
		RETURNING id, next_due_at
	`, admissionID, in.IntervalMinutes).Scan(&sched.ID, &sched.NextDueAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit schedule: %w", err)
	}

	s.logger.Info("Vitals schedule created",
		zap.Int64("schedule_id", sched.ID),
		zap.Int64("admission_id", admissionID),
		zap.Int("interval_minutes", in.IntervalMinutes),
	)
	return sched, nil
}

// UpdateSchedule 修改间隔，下次到期时间从上次记录（或现在）重新推算
func (s *WardStore) UpdateSchedule(ctx context.Context, scheduleID int64, in models.ScheduleInput) (*models.VitalsSchedule, error) {
	query := `
		UPDATE vitals_schedules
		SET interval_minutes = $2,
		    next_due_at = COALESCE(last_recorded_at, NOW()) + make_interval(mins => $2),
		    updated_at = NOW()
		WHERE id = $1 AND is_active = true
		RETURNING id, patient_admission_id, interval_minutes, next_due_at, last_recorded_at, is_active
	`
	sched, err := scanSchedule(s.db.QueryRowContext(ctx, query, scheduleID, in.IntervalMinutes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", scheduleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}
	return sched, nil
}

// StopSchedule 停用计划
func (s *WardStore) StopSchedule(ctx context.Context, scheduleID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vitals_schedules
		SET is_active = false, updated_at = NOW()
		WHERE id = $1
	`, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to stop schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", scheduleID, ErrNotFound)
	}
	return nil
}

// RecordVitals 写入 vital_signs，推进 next_due_at，并完成当前周期的告警
func (s *WardStore) RecordVitals(ctx context.Context, scheduleID int64, reading models.VitalsReading) (*models.VitalsSchedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var admissionID int64
	err = tx.QueryRowContext(ctx, `
		SELECT patient_admission_id FROM vitals_schedules
		WHERE id = $1 AND is_active = true
		FOR UPDATE
	`, scheduleID).Scan(&admissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", scheduleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock schedule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vital_signs (
			patient_admission_id, temperature, blood_pressure_systolic, blood_pressure_diastolic,
			pulse_rate, respiratory_rate, oxygen_saturation, notes, recorded_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`,
		admissionID,
		nullFloat(reading.Temperature),
		nullInt(reading.SystolicBP),
		nullInt(reading.DiastolicBP),
		nullInt(reading.PulseRate),
		nullInt(reading.RespiratoryRate),
		nullInt(reading.OxygenSaturation),
		reading.Notes,
		reading.RecordedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to insert vital signs: %w", err)
	}

	sched, err := scanSchedule(tx.QueryRowContext(ctx, `
		UPDATE vitals_schedules
		SET last_recorded_at = $2,
		    next_due_at = $2 + make_interval(mins => interval_minutes),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, patient_admission_id, interval_minutes, next_due_at, last_recorded_at, is_active
	`, scheduleID, reading.RecordedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to advance schedule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE vitals_alerts
		SET status = $2, updated_at = NOW()
		WHERE vitals_schedule_id = $1 AND status = ANY($3)
	`, scheduleID, alertStatusCompleted, pq.Array(openAlertStatuses)); err != nil {
		return nil, fmt.Errorf("failed to complete alerts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vitals record: %w", err)
	}

	s.logger.Info("Vitals recorded",
		zap.Int64("schedule_id", scheduleID),
		zap.Time("next_due_at", sched.NextDueAt),
	)
	return sched, nil
}

// DismissAlert 忽略告警（同时记录确认人）
func (s *WardStore) DismissAlert(ctx context.Context, alertID int64, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vitals_alerts
		SET status = $2,
		    acknowledged_by = COALESCE(acknowledged_by, $3),
		    acknowledged_at = COALESCE(acknowledged_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1
	`, alertID, alertStatusDismissed, userID)
	if err != nil {
		return fmt.Errorf("failed to dismiss alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d: %w", alertID, ErrNotFound)
	}
	return nil
}

// AcknowledgeAlert 确认告警
func (s *WardStore) AcknowledgeAlert(ctx context.Context, alertID int64, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vitals_alerts
		SET acknowledged_by = $2, acknowledged_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, alertID, userID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d: %w", alertID, ErrNotFound)
	}
	return nil
}

func scanSchedule(row *sql.Row) (*models.VitalsSchedule, error) {
	var sched models.VitalsSchedule
	var lastRecorded sql.NullTime
	if err := row.Scan(
		&sched.ID,
		&sched.PatientAdmissionID,
		&sched.IntervalMinutes,
		&sched.NextDueAt,
		&lastRecorded,
		&sched.IsActive,
	); err != nil {
		return nil, err
	}
	if lastRecorded.Valid {
		t := lastRecorded.Time
		sched.LastRecordedAt = &t
	}
	return &sched, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
