package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"hms-vitals/internal/consumer"
	"hms-vitals/internal/models"
	"hms-vitals/internal/repository"
	"hms-vitals/internal/store"
	"hms-vitals/internal/vitals"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ScheduleManager 计划管理（病区后端的一部分）
type ScheduleManager interface {
	CreateSchedule(ctx context.Context, admissionID int64, in models.ScheduleInput) (*models.VitalsSchedule, error)
	UpdateSchedule(ctx context.Context, scheduleID int64, in models.ScheduleInput) (*models.VitalsSchedule, error)
	StopSchedule(ctx context.Context, scheduleID int64) error
}

// AlertHistory 告警事件查询（启用数据库时可用）
type AlertHistory interface {
	ListAlertEvents(ctx context.Context, filters repository.AlertEventFilters) ([]models.AlertEvent, error)
}

// VitalsHandler 生命体征看板与告警接口
type VitalsHandler struct {
	feed      *consumer.AlertFeed
	schedules ScheduleManager
	state     *consumer.StateManager
	cache     *consumer.CacheManager
	history   AlertHistory
	now       func() time.Time
	logger    *zap.Logger
}

// NewVitalsHandler 创建处理器；cache、history 可为 nil
func NewVitalsHandler(
	feed *consumer.AlertFeed,
	schedules ScheduleManager,
	state *consumer.StateManager,
	cache *consumer.CacheManager,
	history AlertHistory,
	logger *zap.Logger,
) *VitalsHandler {
	return &VitalsHandler{
		feed:      feed,
		schedules: schedules,
		state:     state,
		cache:     cache,
		history:   history,
		now:       time.Now,
		logger:    logger,
	}
}

// ScheduleView 计划 + 当前状态 + 徽章文案
type ScheduleView struct {
	*models.VitalsSchedule
	Status              models.VitalsStatus `json:"status,omitempty"`
	TimeUntilDueMinutes *int                `json:"time_until_due_minutes,omitempty"`
	TimeOverdueMinutes  *int                `json:"time_overdue_minutes,omitempty"`
	Badge               string              `json:"badge,omitempty"`
}

// GET /api/v1/vitals/dashboard?ward_id=
func (h *VitalsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	wardID, err := parseWardID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	d, err := h.dashboard(r.Context(), wardID)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(d))
}

// dashboard 当前范围的快照；请求的病区在范围之外时读缓存
func (h *VitalsHandler) dashboard(ctx context.Context, wardID *int64) (*models.Dashboard, error) {
	snap := h.feed.Snapshot()
	if snap != nil {
		switch {
		case wardID == nil && snap.WardID == nil:
			return snap, nil
		case wardID != nil && snap.WardID != nil && *wardID == *snap.WardID:
			return snap, nil
		case wardID != nil && snap.WardID == nil:
			return filterDashboard(snap, *wardID), nil
		}
	}

	if h.cache != nil {
		cached, err := h.cache.GetDashboard(ctx, wardID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, store.ErrMiss) {
			h.logger.Warn("Failed to read dashboard cache", zap.Error(err))
		}
	}
	if snap == nil {
		return nil, errors.New("dashboard not ready")
	}
	return nil, fmt.Errorf("ward %d is outside the current scope", *wardID)
}

// filterDashboard 从全院快照中取单个病区
func filterDashboard(d *models.Dashboard, wardID int64) *models.Dashboard {
	out := &models.Dashboard{
		WardID:    &wardID,
		Rows:      []models.DashboardRow{},
		Invalid:   d.Invalid,
		FetchedAt: d.FetchedAt,
		Error:     d.Error,
	}
	for _, row := range d.Rows {
		if row.WardID != wardID {
			continue
		}
		out.Rows = append(out.Rows, row)
		switch row.Status {
		case models.StatusOverdue:
			out.Stats.Overdue++
		case models.StatusDue:
			out.Stats.Due++
		default:
			out.Stats.Upcoming++
		}
	}
	out.Stats.Total = len(out.Rows)
	return out
}

// GET /api/v1/vitals/dashboard/export?ward_id=
func (h *VitalsHandler) ExportDashboard(w http.ResponseWriter, r *http.Request) {
	wardID, err := parseWardID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.dashboard(r.Context(), wardID)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
		return
	}

	data, err := GenerateDashboardExport(d)
	if err != nil {
		h.logger.Error("Failed to generate dashboard export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	filename := "vitals-dashboard-" + h.now().Format("20060102-1504") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GET /api/v1/vitals/alerts?ward_id=
func (h *VitalsHandler) GetActiveAlerts(w http.ResponseWriter, r *http.Request) {
	wardID, err := parseWardID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	alerts := h.feed.ActiveAlerts()
	if wardID != nil {
		filtered := alerts[:0]
		for _, a := range alerts {
			if a.WardID == *wardID {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": alerts,
		"total": len(alerts),
	}))
}

// GET /api/v1/vitals/alerts/history?ward_id=&episode_id=&event_type=&limit=
func (h *VitalsHandler) GetAlertHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, Fail("database not available"))
		return
	}
	wardID, err := parseWardID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	filters := repository.AlertEventFilters{
		WardID: wardID,
		Limit:  parseInt(q.Get("limit"), 0),
	}
	if ep := q.Get("episode_id"); ep != "" {
		filters.EpisodeID = &ep
	}
	for _, t := range q["event_type"] {
		filters.EventTypes = append(filters.EventTypes, models.AlertEventType(t))
	}

	events, err := h.history.ListAlertEvents(r.Context(), filters)
	if err != nil {
		h.logger.Error("ListAlertEvents failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": events,
		"total": len(events),
	}))
}

// POST /api/v1/vitals/alerts/{episode_id}/dismiss
func (h *VitalsHandler) DismissAlert(w http.ResponseWriter, r *http.Request, episodeID string) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeJSON(w, http.StatusOK, Fail("user ID is required"))
		return
	}
	if err := h.feed.Dismiss(r.Context(), episodeID, userID); err != nil {
		h.logger.Error("Dismiss alert failed", zap.String("episode_id", episodeID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// POST /api/v1/vitals/alerts/{episode_id}/acknowledge
func (h *VitalsHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request, episodeID string) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeJSON(w, http.StatusOK, Fail("user ID is required"))
		return
	}
	if err := h.feed.Acknowledge(r.Context(), episodeID, userID); err != nil {
		h.logger.Error("Acknowledge alert failed", zap.String("episode_id", episodeID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// GET /api/v1/vitals/scope
func (h *VitalsHandler) GetScope(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{"ward_id": h.feed.Ward()}))
}

// PUT /api/v1/vitals/scope {"ward_id": 3|null}
func (h *VitalsHandler) SetScope(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WardID *int64 `json:"ward_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if body.WardID != nil && *body.WardID <= 0 {
		writeError(w, models.NewValidationError("ward_id", "ward_id must be a positive integer"))
		return
	}

	h.feed.SetWard(body.WardID)
	h.logger.Info("Vitals feed scope changed", zap.Any("ward_id", body.WardID))
	writeJSON(w, http.StatusOK, Ok(map[string]any{"ward_id": body.WardID}))
}

// POST /api/v1/vitals/admissions/{admission_id}/schedule {"interval_minutes": 240}
func (h *VitalsHandler) CreateSchedule(w http.ResponseWriter, r *http.Request, rawID string) {
	admissionID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail("invalid admission id"))
		return
	}
	in := models.ScheduleInput{IntervalMinutes: vitals.DefaultIntervalMinutes}
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if err := vitals.ValidateInterval(in.IntervalMinutes); err != nil {
		writeError(w, err)
		return
	}

	s, err := h.schedules.CreateSchedule(r.Context(), admissionID, in)
	if err != nil {
		h.logger.Error("CreateSchedule failed", zap.Int64("admission_id", admissionID), zap.Error(err))
		writeError(w, err)
		return
	}
	h.feed.RequestRefresh()
	writeJSON(w, http.StatusOK, Ok(h.scheduleView(s)))
}

// PUT /api/v1/vitals/schedules/{id} {"interval_minutes": 120}
func (h *VitalsHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request, rawID string) {
	scheduleID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail("invalid schedule id"))
		return
	}
	var in models.ScheduleInput
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if err := vitals.ValidateInterval(in.IntervalMinutes); err != nil {
		writeError(w, err)
		return
	}

	s, err := h.schedules.UpdateSchedule(r.Context(), scheduleID, in)
	if err != nil {
		h.logger.Error("UpdateSchedule failed", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		writeError(w, err)
		return
	}
	h.feed.RequestRefresh()
	writeJSON(w, http.StatusOK, Ok(h.scheduleView(s)))
}

// POST /api/v1/vitals/schedules/{id}/stop
func (h *VitalsHandler) StopSchedule(w http.ResponseWriter, r *http.Request, rawID string) {
	scheduleID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail("invalid schedule id"))
		return
	}
	if err := h.schedules.StopSchedule(r.Context(), scheduleID); err != nil {
		h.logger.Error("StopSchedule failed", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		writeError(w, err)
		return
	}
	h.feed.RequestRefresh()
	writeJSON(w, http.StatusOK, Ok(map[string]any{"success": true}))
}

// POST /api/v1/vitals/schedules/{id}/record
func (h *VitalsHandler) RecordVitals(w http.ResponseWriter, r *http.Request, rawID string) {
	scheduleID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail("invalid schedule id"))
		return
	}
	var reading models.VitalsReading
	if err := readBodyJSON(r, maxBodyBytes, &reading); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	s, err := h.feed.RecordVitals(r.Context(), scheduleID, reading)
	if err != nil {
		h.logger.Error("RecordVitals failed", zap.Int64("schedule_id", scheduleID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.scheduleView(s)))
}

// GET /api/v1/vitals/status?next_due_at=RFC3339&interval_minutes=
func (h *VitalsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nextDueAt, err := time.Parse(time.RFC3339, q.Get("next_due_at"))
	if err != nil {
		writeError(w, models.NewValidationError("next_due_at", "next_due_at must be an RFC3339 timestamp"))
		return
	}
	interval, err := parseInterval(q.Get("interval_minutes"), vitals.DefaultIntervalMinutes)
	if err != nil {
		writeError(w, err)
		return
	}

	st, err := vitals.EvaluateSchedule(models.VitalsSchedule{NextDueAt: nextDueAt, IntervalMinutes: interval}, h.now())
	if err != nil {
		writeError(w, models.NewValidationError("interval_minutes", err.Error()))
		return
	}
	p := vitals.PresentationFor(st.Status)
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"status":                 st.Status,
		"time_until_due_minutes": st.TimeUntilDueMinutes,
		"time_overdue_minutes":   st.TimeOverdueMinutes,
		"next_due_at":            st.NextDueAt,
		"interval_minutes":       st.IntervalMinutes,
		"interval_label":         vitals.FormatInterval(st.IntervalMinutes),
		"badge":                  vitals.BadgeText(st),
		"severity":               p.Severity,
	}))
}

// GET /api/v1/vitals/intervals/preview?interval_minutes=&from=RFC3339
func (h *VitalsHandler) PreviewIntervals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	interval, err := parseInterval(q.Get("interval_minutes"), vitals.DefaultIntervalMinutes)
	if err != nil {
		writeError(w, err)
		return
	}
	from := h.now()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, models.NewValidationError("from", "from must be an RFC3339 timestamp"))
			return
		}
		from = t
	}

	due, err := vitals.PreviewDueTimes(from, interval, 3)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"presets":          vitals.IntervalPresets,
		"interval_minutes": interval,
		"interval_label":   vitals.FormatInterval(interval),
		"min_minutes":      vitals.MinIntervalMinutes,
		"max_minutes":      vitals.MaxIntervalMinutes,
		"next_due_times":   due,
	}))
}

// GET /api/v1/vitals/alert-settings
func (h *VitalsHandler) GetAlertSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeJSON(w, http.StatusOK, Fail("user ID is required"))
		return
	}
	s, err := h.state.GetAlertSettings(r.Context(), userID)
	if err != nil {
		h.logger.Error("GetAlertSettings failed", zap.String("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(s))
}

// PUT /api/v1/vitals/alert-settings {"enabled":true,"volume":0.7,"sound_type":"gentle"}
func (h *VitalsHandler) SaveAlertSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeJSON(w, http.StatusOK, Fail("user ID is required"))
		return
	}
	s := models.DefaultAlertSettings()
	if err := readBodyJSON(r, maxBodyBytes, &s); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if err := h.state.SetAlertSettings(r.Context(), userID, s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(s))
}

func (h *VitalsHandler) scheduleView(s *models.VitalsSchedule) ScheduleView {
	v := ScheduleView{VitalsSchedule: s}
	if s == nil {
		return v
	}
	st, err := vitals.EvaluateSchedule(*s, h.now())
	if err != nil {
		h.logger.Warn("Backend returned unevaluable schedule", zap.Int64("schedule_id", s.ID), zap.Error(err))
		return v
	}
	v.Status = st.Status
	v.TimeUntilDueMinutes = st.TimeUntilDueMinutes
	v.TimeOverdueMinutes = st.TimeOverdueMinutes
	v.Badge = vitals.BadgeText(st)
	return v
}
