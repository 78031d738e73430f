package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	commoncfg "hms-vitals/common/config"
	"hms-vitals/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrNotFound 病区后端返回 404
var ErrNotFound = fmt.Errorf("ward backend: %w", models.ErrNotFound)

// activeAlertRow 活跃告警接口返回的一行
type activeAlertRow struct {
	ID                 int64  `json:"id"`
	VitalsScheduleID   *int64 `json:"vitals_schedule_id"`
	PatientAdmissionID int64  `json:"patient_admission_id"`
	WardID             int64  `json:"ward_id"`
	PatientName        string `json:"patient_name"`
	BedNumber          string `json:"bed_number"`
	WardName           string `json:"ward_name"`
	DueAt              string `json:"due_at"`
	NextDueAt          string `json:"next_due_at"`
	IntervalMinutes    int    `json:"interval_minutes"`
}

type activeAlertsResponse struct {
	Alerts []activeAlertRow `json:"alerts"`
}

type scheduleResponse struct {
	Schedule *models.VitalsSchedule `json:"schedule"`
}

type validationResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// WardClient 病区后端 REST 客户端
type WardClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewWardClient 创建病区后端客户端
func NewWardClient(cfg commoncfg.HTTPClientConfig, logger *zap.Logger) *WardClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	// 仅对网络错误和 5xx 重试
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})

	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &WardClient{
		httpClient: client,
		logger:     logger,
	}
}

// ListActiveSchedules 拉取活跃计划（wardID 为 nil 表示全部病区）
func (c *WardClient) ListActiveSchedules(ctx context.Context, wardID *int64) ([]models.ScheduleEntry, error) {
	req := c.httpClient.R().SetContext(ctx)
	if wardID != nil {
		req.SetQueryParam("ward_id", strconv.FormatInt(*wardID, 10))
	}

	var body activeAlertsResponse
	resp, err := req.SetResult(&body).Get("/api/vitals-alerts/active")
	if err := c.check(resp, err, "list active schedules"); err != nil {
		return nil, err
	}

	entries := make([]models.ScheduleEntry, 0, len(body.Alerts))
	for _, row := range body.Alerts {
		raw := row.DueAt
		if raw == "" {
			raw = row.NextDueAt
		}
		dueAt, perr := parseTimestamp(raw)
		if perr != nil {
			// 时间非法时保留零值，由状态计算标记为无效
			c.logger.Warn("Malformed due_at from ward backend",
				zap.Int64("id", row.ID),
				zap.String("due_at", raw),
			)
		}
		entries = append(entries, models.ScheduleEntry{
			ID:                 row.ID,
			ScheduleID:         row.VitalsScheduleID,
			PatientAdmissionID: row.PatientAdmissionID,
			WardID:             row.WardID,
			PatientName:        row.PatientName,
			BedNumber:          row.BedNumber,
			WardName:           row.WardName,
			DueAt:              dueAt,
			IntervalMinutes:    row.IntervalMinutes,
		})
	}

	c.logger.Debug("Fetched active schedules", zap.Int("count", len(entries)))
	return entries, nil
}

// CreateSchedule 为住院记录创建测量计划
func (c *WardClient) CreateSchedule(ctx context.Context, admissionID int64, in models.ScheduleInput) (*models.VitalsSchedule, error) {
	var body scheduleResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(in).
		SetResult(&body).
		Post(fmt.Sprintf("/api/admissions/%d/vitals-schedule", admissionID))
	if err := c.check(resp, err, "create schedule"); err != nil {
		return nil, err
	}
	return body.Schedule, nil
}

// UpdateSchedule 修改测量间隔
func (c *WardClient) UpdateSchedule(ctx context.Context, scheduleID int64, in models.ScheduleInput) (*models.VitalsSchedule, error) {
	var body scheduleResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(in).
		SetResult(&body).
		Put(fmt.Sprintf("/api/vitals-schedules/%d", scheduleID))
	if err := c.check(resp, err, "update schedule"); err != nil {
		return nil, err
	}
	return body.Schedule, nil
}

// StopSchedule 停用测量计划
func (c *WardClient) StopSchedule(ctx context.Context, scheduleID int64) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/api/vitals-schedules/%d/stop", scheduleID))
	return c.check(resp, err, "stop schedule")
}

// RecordVitals 记录生命体征，由后端推进 next_due_at
func (c *WardClient) RecordVitals(ctx context.Context, scheduleID int64, reading models.VitalsReading) (*models.VitalsSchedule, error) {
	var body scheduleResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(reading).
		SetResult(&body).
		Post(fmt.Sprintf("/api/vitals-schedules/%d/record", scheduleID))
	if err := c.check(resp, err, "record vitals"); err != nil {
		return nil, err
	}
	return body.Schedule, nil
}

// DismissAlert 忽略告警
func (c *WardClient) DismissAlert(ctx context.Context, alertID int64, userID string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-User-Id", userID).
		Post(fmt.Sprintf("/api/vitals-alerts/%d/dismiss", alertID))
	return c.check(resp, err, "dismiss alert")
}

// AcknowledgeAlert 确认告警
func (c *WardClient) AcknowledgeAlert(ctx context.Context, alertID int64, userID string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("X-User-Id", userID).
		Post(fmt.Sprintf("/api/vitals-alerts/%d/acknowledge", alertID))
	return c.check(resp, err, "acknowledge alert")
}

// check 统一处理网络错误和非 2xx 响应
func (c *WardClient) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		c.logger.Error("Ward API call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("failed to %s: %w", op, ErrNotFound)
	case http.StatusUnprocessableEntity:
		var v validationResponse
		if json.Unmarshal(resp.Body(), &v) == nil && len(v.Errors) > 0 {
			return &models.ValidationError{Fields: v.Errors}
		}
	}

	c.logger.Error("Ward API returned error",
		zap.String("op", op),
		zap.Int("status_code", resp.StatusCode()),
	)
	return fmt.Errorf("failed to %s: ward API status %d", op, resp.StatusCode())
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
