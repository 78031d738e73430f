package models

import "time"

// DashboardRow 看板一行：计划 + 派生状态 + 紧急度
type DashboardRow struct {
	ScheduleEntry
	Status              VitalsStatus `json:"status"`
	TimeUntilDueMinutes *int         `json:"time_until_due_minutes,omitempty"`
	TimeOverdueMinutes  *int         `json:"time_overdue_minutes,omitempty"`
	EpisodeID           string       `json:"episode_id"`
	UrgencyScore        int          `json:"urgency_score"`
}

// DashboardStats 看板统计
type DashboardStats struct {
	Overdue  int `json:"overdue"`
	Due      int `json:"due"`
	Upcoming int `json:"upcoming"`
	Total    int `json:"total"`
}

// InvalidEntry 无法计算状态的计划（时间戳或间隔非法）
type InvalidEntry struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// Dashboard 一次轮询得到的看板快照
type Dashboard struct {
	WardID    *int64         `json:"ward_id,omitempty"`
	Rows      []DashboardRow `json:"rows"`
	Stats     DashboardStats `json:"stats"`
	Invalid   []InvalidEntry `json:"invalid,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
	Error     string         `json:"error,omitempty"`
}
