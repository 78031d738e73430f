package models

import (
	"strconv"
	"time"
)

// VitalsStatus 生命体征测量状态
type VitalsStatus string

const (
	StatusUpcoming VitalsStatus = "upcoming"
	StatusDue      VitalsStatus = "due"
	StatusOverdue  VitalsStatus = "overdue"
)

// Alerting 是否处于告警状态（due / overdue）
func (s VitalsStatus) Alerting() bool {
	return s == StatusDue || s == StatusOverdue
}

// VitalsSchedule 生命体征测量计划（对应 vitals_schedules 表）
type VitalsSchedule struct {
	ID                 int64      `json:"id" db:"id"`
	PatientAdmissionID int64      `json:"patient_admission_id" db:"patient_admission_id"`
	IntervalMinutes    int        `json:"interval_minutes" db:"interval_minutes"` // 15..1440
	NextDueAt          time.Time  `json:"next_due_at" db:"next_due_at"`
	LastRecordedAt     *time.Time `json:"last_recorded_at,omitempty" db:"last_recorded_at"`
	IsActive           bool       `json:"is_active" db:"is_active"`
}

// VitalsScheduleStatus 某一时刻计划的派生状态（不持久化）
type VitalsScheduleStatus struct {
	Status              VitalsStatus `json:"status"`
	TimeUntilDueMinutes *int         `json:"time_until_due_minutes,omitempty"`
	TimeOverdueMinutes  *int         `json:"time_overdue_minutes,omitempty"`
	NextDueAt           time.Time    `json:"next_due_at"`
	IntervalMinutes     int          `json:"interval_minutes"`
}

// ScheduleEntry 活跃计划拉取结果中的一行
// ID 为忽略/确认告警时使用的标识；ScheduleID 为空时以 ID 代替
type ScheduleEntry struct {
	ID                 int64     `json:"id"`
	ScheduleID         *int64    `json:"schedule_id,omitempty"`
	PatientAdmissionID int64     `json:"patient_admission_id"`
	WardID             int64     `json:"ward_id"`
	PatientName        string    `json:"patient_name"`
	BedNumber          string    `json:"bed_number"`
	WardName           string    `json:"ward_name"`
	DueAt              time.Time `json:"due_at"`
	IntervalMinutes    int       `json:"interval_minutes"`
}

// ScheduleKey 计划标识
func (e ScheduleEntry) ScheduleKey() int64 {
	if e.ScheduleID != nil {
		return *e.ScheduleID
	}
	return e.ID
}

// EpisodeID 告警周期标识: "<schedule_key>:<due_at unix>"
// due_at 改变即为新的周期
func (e ScheduleEntry) EpisodeID() string {
	return EpisodeID(e.ScheduleKey(), e.DueAt)
}

// EpisodeID 由计划标识和到期时间生成告警周期标识
func EpisodeID(scheduleKey int64, dueAt time.Time) string {
	return strconv.FormatInt(scheduleKey, 10) + ":" + strconv.FormatInt(dueAt.Unix(), 10)
}

// ScheduleInput 创建/更新计划请求
type ScheduleInput struct {
	IntervalMinutes int `json:"interval_minutes"`
}

// VitalsReading 一次生命体征记录（转发给病区后端）
type VitalsReading struct {
	Temperature      *float64  `json:"temperature,omitempty"`
	SystolicBP       *int      `json:"blood_pressure_systolic,omitempty"`
	DiastolicBP      *int      `json:"blood_pressure_diastolic,omitempty"`
	PulseRate        *int      `json:"pulse_rate,omitempty"`
	RespiratoryRate  *int      `json:"respiratory_rate,omitempty"`
	OxygenSaturation *int      `json:"oxygen_saturation,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
}
