package vitals

import (
	"errors"
	"fmt"
	"time"

	"hms-vitals/internal/models"
)

// GracePeriodMinutes 到期前后的宽限窗口（分钟）
const GracePeriodMinutes = 15

var (
	// ErrInvalidDueAt 到期时间缺失或非法
	ErrInvalidDueAt = errors.New("invalid next_due_at")
	// ErrInvalidInterval 测量间隔超出 [15, 1440]
	ErrInvalidInterval = errors.New("interval_minutes out of range")
)

// Evaluation 单个到期时间在某一时刻的计算结果
type Evaluation struct {
	Status              models.VitalsStatus
	DiffMinutes         int // 正数表示尚未到期
	TimeUntilDueMinutes *int
	TimeOverdueMinutes  *int
}

// DiffMinutes 计算 nextDueAt 与 now 的分钟差，向负无穷取整
// 例如 -14m30s 记为 -15，+14m30s 记为 14
func DiffMinutes(nextDueAt, now time.Time) int {
	d := nextDueAt.Sub(now)
	m := d / time.Minute
	if d%time.Minute < 0 {
		m--
	}
	return int(m)
}

// Classify 按分钟差分类
//
//	diff > 15          upcoming，time_until_due = diff
//	-15 <= diff <= 15  due，diff > 0 时 time_until_due = diff，否则 time_overdue = |diff|
//	diff < -15         overdue，time_overdue = |diff|
func Classify(diff int) Evaluation {
	e := Evaluation{DiffMinutes: diff}
	switch {
	case diff > GracePeriodMinutes:
		e.Status = models.StatusUpcoming
		e.TimeUntilDueMinutes = intPtr(diff)
	case diff >= -GracePeriodMinutes:
		e.Status = models.StatusDue
		if diff > 0 {
			e.TimeUntilDueMinutes = intPtr(diff)
		} else {
			e.TimeOverdueMinutes = intPtr(-diff)
		}
	default:
		e.Status = models.StatusOverdue
		e.TimeOverdueMinutes = intPtr(-diff)
	}
	return e
}

// Evaluate 计算到期状态；now 由调用方提供
func Evaluate(nextDueAt, now time.Time) (Evaluation, error) {
	if nextDueAt.IsZero() {
		return Evaluation{}, ErrInvalidDueAt
	}
	if now.IsZero() {
		return Evaluation{}, fmt.Errorf("%w: zero evaluation time", ErrInvalidDueAt)
	}
	return Classify(DiffMinutes(nextDueAt, now)), nil
}

// EvaluateSchedule 计算计划的派生状态
func EvaluateSchedule(s models.VitalsSchedule, now time.Time) (models.VitalsScheduleStatus, error) {
	if err := checkInterval(s.IntervalMinutes); err != nil {
		return models.VitalsScheduleStatus{}, fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	e, err := Evaluate(s.NextDueAt, now)
	if err != nil {
		return models.VitalsScheduleStatus{}, fmt.Errorf("schedule %d: %w", s.ID, err)
	}
	return models.VitalsScheduleStatus{
		Status:              e.Status,
		TimeUntilDueMinutes: e.TimeUntilDueMinutes,
		TimeOverdueMinutes:  e.TimeOverdueMinutes,
		NextDueAt:           s.NextDueAt,
		IntervalMinutes:     s.IntervalMinutes,
	}, nil
}

// EvaluateEntry 计算拉取行的状态，校验规则同 EvaluateSchedule
func EvaluateEntry(e models.ScheduleEntry, now time.Time) (Evaluation, error) {
	if err := checkInterval(e.IntervalMinutes); err != nil {
		return Evaluation{}, err
	}
	return Evaluate(e.DueAt, now)
}

// FromStatus 由已计算的状态字段还原 Evaluation
func FromStatus(status models.VitalsStatus, until, overdue *int) Evaluation {
	e := Evaluation{Status: status, TimeUntilDueMinutes: until, TimeOverdueMinutes: overdue}
	switch {
	case until != nil:
		e.DiffMinutes = *until
	case overdue != nil:
		e.DiffMinutes = -*overdue
	}
	return e
}

func checkInterval(n int) error {
	if n < MinIntervalMinutes || n > MaxIntervalMinutes {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, n)
	}
	return nil
}

func intPtr(v int) *int {
	return &v
}
