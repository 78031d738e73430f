package models

import "time"

// AlertState 告警周期状态
type AlertState string

const (
	AlertStateAlerting  AlertState = "alerting"
	AlertStateDismissed AlertState = "dismissed"
)

// Severity 告警级别
type Severity string

const (
	SeverityGentle Severity = "gentle"
	SeverityUrgent Severity = "urgent"
)

// VitalsAlert 一个告警周期（due / overdue，未恢复）
type VitalsAlert struct {
	EpisodeID           string       `json:"episode_id"`
	AlertID             int64        `json:"alert_id"`
	ScheduleID          int64        `json:"schedule_id"`
	PatientAdmissionID  int64        `json:"patient_admission_id"`
	WardID              int64        `json:"ward_id"`
	PatientName         string       `json:"patient_name"`
	BedNumber           string       `json:"bed_number"`
	WardName            string       `json:"ward_name"`
	DueAt               time.Time    `json:"due_at"`
	IntervalMinutes     int          `json:"interval_minutes"`
	Status              VitalsStatus `json:"status"`
	TimeUntilDueMinutes *int         `json:"time_until_due_minutes,omitempty"`
	TimeOverdueMinutes  *int         `json:"time_overdue_minutes,omitempty"`
	UrgencyScore        int          `json:"urgency_score"`
	Severity            Severity     `json:"severity"`
	State               AlertState   `json:"state"`
	SurfacedAt          time.Time    `json:"surfaced_at"`
	DismissedBy         string       `json:"dismissed_by,omitempty"`
	DismissedAt         *time.Time   `json:"dismissed_at,omitempty"`
	AcknowledgedBy      string       `json:"acknowledged_by,omitempty"`
	AcknowledgedAt      *time.Time   `json:"acknowledged_at,omitempty"`
}

// AlertEventType 告警事件类型
type AlertEventType string

const (
	EventRaised       AlertEventType = "raised"
	EventResolved     AlertEventType = "resolved"
	EventDismissed    AlertEventType = "dismissed"
	EventAcknowledged AlertEventType = "acknowledged"
)

// AlertEvent 告警事件（推送给 MQTT / Redis Stream / vitals_alert_events 表）
type AlertEvent struct {
	EventID             string         `json:"event_id" db:"event_id"`
	Type                AlertEventType `json:"type" db:"event_type"`
	EpisodeID           string         `json:"episode_id" db:"episode_id"`
	AlertID             int64          `json:"alert_id" db:"alert_id"`
	ScheduleID          int64          `json:"schedule_id" db:"schedule_id"`
	PatientAdmissionID  int64          `json:"patient_admission_id" db:"patient_admission_id"`
	WardID              int64          `json:"ward_id" db:"ward_id"`
	PatientName         string         `json:"patient_name" db:"patient_name"`
	BedNumber           string         `json:"bed_number" db:"bed_number"`
	WardName            string         `json:"ward_name" db:"ward_name"`
	DueAt               time.Time      `json:"due_at" db:"due_at"`
	Status              VitalsStatus   `json:"status" db:"status"`
	TimeUntilDueMinutes *int           `json:"time_until_due_minutes,omitempty" db:"time_until_due_minutes"`
	TimeOverdueMinutes  *int           `json:"time_overdue_minutes,omitempty" db:"time_overdue_minutes"`
	Severity            Severity       `json:"severity" db:"severity"`
	Urgent              bool           `json:"urgent" db:"-"`
	SoundType           string         `json:"sound_type" db:"-"`
	DisplaySeconds      int            `json:"display_seconds" db:"-"`
	UserID              string         `json:"user_id,omitempty" db:"user_id"`
	EmittedAt           time.Time      `json:"emitted_at" db:"emitted_at"`
}
