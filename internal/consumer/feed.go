package consumer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"hms-vitals/internal/models"
	"hms-vitals/internal/vitals"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrFeedStarted 告警轮询已在运行
var ErrFeedStarted = errors.New("alert feed already started")

// ErrAlertPending 周期尚无后端告警记录，暂不能忽略或确认
var ErrAlertPending = errors.New("alert not yet created by ward backend")

// WardBackend 病区后端（REST 或数据库）
type WardBackend interface {
	ListActiveSchedules(ctx context.Context, wardID *int64) ([]models.ScheduleEntry, error)
	CreateSchedule(ctx context.Context, admissionID int64, in models.ScheduleInput) (*models.VitalsSchedule, error)
	UpdateSchedule(ctx context.Context, scheduleID int64, in models.ScheduleInput) (*models.VitalsSchedule, error)
	StopSchedule(ctx context.Context, scheduleID int64) error
	RecordVitals(ctx context.Context, scheduleID int64, reading models.VitalsReading) (*models.VitalsSchedule, error)
	DismissAlert(ctx context.Context, alertID int64, userID string) error
	AcknowledgeAlert(ctx context.Context, alertID int64, userID string) error
}

// Notifier 告警事件输出
type Notifier interface {
	Notify(ctx context.Context, events []models.AlertEvent) error
}

// FeedOptions 告警轮询参数
type FeedOptions struct {
	FetchTimeout time.Duration    // 单次拉取超时
	RecordGrace  time.Duration    // 记录后旧行最长屏蔽时间，默认 5 分钟
	WardID       *int64           // 初始病区范围，nil 表示全部
	Now          func() time.Time // 时钟，测试可替换
}

// tombstone 已由记录确认恢复的周期，到期后不再屏蔽
type tombstone struct {
	scheduleKey int64
	expiresAt   time.Time
}

// AlertFeed 生命体征告警轮询
//
// 每次轮询用同一个 now 重新计算所有活跃计划，按告警周期（计划 + due_at）去重：
// 同一周期只产生一次 raised 事件，周期消失（已记录、停用、出院）时产生 resolved 事件。
type AlertFeed struct {
	backend  WardBackend
	state    *StateManager
	notifier Notifier
	cache    *CacheManager
	opts     FeedOptions
	logger   *zap.Logger

	// mu 保护以下字段；后端和通知调用不持有 mu
	mu         sync.Mutex
	wardID     *int64
	generation uint64
	episodes   map[string]*models.VitalsAlert
	tombstones map[string]tombstone
	confirmed  map[int64]time.Time // 计划 -> 后端确认的下次到期时间
	restored   map[string]struct{} // 启动时载入的忽略记录，首次轮询后清空
	snapshot   *models.Dashboard

	tickMu    sync.Mutex
	refreshCh chan struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewAlertFeed 创建告警轮询
func NewAlertFeed(
	backend WardBackend,
	state *StateManager,
	notifier Notifier,
	cache *CacheManager,
	opts FeedOptions,
	logger *zap.Logger,
) *AlertFeed {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.RecordGrace <= 0 {
		opts.RecordGrace = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AlertFeed{
		backend:    backend,
		state:      state,
		notifier:   notifier,
		cache:      cache,
		opts:       opts,
		logger:     logger,
		wardID:     copyID(opts.WardID),
		episodes:   make(map[string]*models.VitalsAlert),
		tombstones: make(map[string]tombstone),
		confirmed:  make(map[int64]time.Time),
		refreshCh:  make(chan struct{}, 1),
	}
}

// Start 启动轮询（立即执行一次，之后按 interval 执行）
func (f *AlertFeed) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	f.runMu.Lock()
	defer f.runMu.Unlock()
	if f.running {
		return ErrFeedStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true

	go f.run(runCtx, interval, f.done)
	return nil
}

// Stop 停止轮询并等待当前轮询结束
func (f *AlertFeed) Stop() {
	f.runMu.Lock()
	defer f.runMu.Unlock()
	if !f.running {
		return
	}
	f.cancel()
	<-f.done
	f.running = false
}

func (f *AlertFeed) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	f.logger.Info("Vitals alert feed started", zap.Duration("poll_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即执行一次
	f.tickAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Vitals alert feed stopped")
			return
		case <-ticker.C:
			f.tickAndLog(ctx)
		case <-f.refreshCh:
			f.tickAndLog(ctx)
		}
	}
}

func (f *AlertFeed) tickAndLog(ctx context.Context) {
	if _, err := f.Tick(ctx); err != nil && ctx.Err() == nil {
		// 继续执行，下一次轮询重试
		f.logger.Error("Vitals alert tick failed", zap.Error(err))
	}
}

// RequestRefresh 请求尽快轮询一次（多次请求合并）
func (f *AlertFeed) RequestRefresh() {
	select {
	case f.refreshCh <- struct{}{}:
	default:
	}
}

// prepared 一行拉取结果的计算结果
type prepared struct {
	entry models.ScheduleEntry
	eval  vitals.Evaluation
	err   error
	stale bool
}

// Tick 执行一次轮询，返回本次产生的事件
func (f *AlertFeed) Tick(ctx context.Context) ([]models.AlertEvent, error) {
	f.tickMu.Lock()
	defer f.tickMu.Unlock()

	f.mu.Lock()
	scope := copyID(f.wardID)
	gen := f.generation
	f.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, f.opts.FetchTimeout)
	entries, err := f.backend.ListActiveSchedules(fetchCtx, scope)
	cancel()
	if err != nil {
		f.recordFetchError(gen, scope, err)
		return nil, fmt.Errorf("failed to fetch active schedules: %w", err)
	}

	now := f.opts.Now()

	// 找出新的告警周期，查询是否已被忽略（可能在重启前忽略过）
	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		f.logger.Debug("Discarding fetch for stale ward scope")
		return nil, nil
	}
	var candidates []string
	dismissed := make(map[string]bool)
	for _, p := range f.prepare(entries, now) {
		if p.err != nil || p.stale || !p.eval.Status.Alerting() {
			continue
		}
		id := p.entry.EpisodeID()
		if _, known := f.episodes[id]; known {
			continue
		}
		if _, ok := f.restored[id]; ok {
			dismissed[id] = true
			continue
		}
		candidates = append(candidates, id)
	}
	f.mu.Unlock()

	for _, id := range candidates {
		ok, err := f.state.IsDismissed(ctx, id)
		if err != nil {
			f.logger.Warn("Failed to check dismissal state",
				zap.String("episode_id", id),
				zap.Error(err),
			)
			continue
		}
		dismissed[id] = ok
	}

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		f.logger.Debug("Discarding fetch for stale ward scope")
		return nil, nil
	}
	dashboard, events, cleared := f.apply(entries, f.prepare(entries, now), dismissed, scope, now)
	f.snapshot = dashboard
	f.restored = nil
	f.mu.Unlock()

	if f.cache != nil {
		if err := f.cache.UpdateDashboardCache(ctx, dashboard); err != nil {
			f.logger.Warn("Failed to update dashboard cache", zap.Error(err))
		}
	}
	f.clearDismissals(ctx, cleared)
	f.notify(ctx, events)

	f.logger.Debug("Vitals alert tick completed",
		zap.Int("schedules", len(entries)),
		zap.Int("events", len(events)),
		zap.Int("overdue", dashboard.Stats.Overdue),
		zap.Int("due", dashboard.Stats.Due),
	)
	return events, nil
}

// prepare 计算每一行的状态；调用方需持有 mu
func (f *AlertFeed) prepare(entries []models.ScheduleEntry, now time.Time) []prepared {
	out := make([]prepared, 0, len(entries))
	for _, e := range entries {
		p := prepared{entry: e}
		if t, dead := f.tombstones[e.EpisodeID()]; dead && now.Before(t.expiresAt) {
			// 拉取结果早于记录确认，使用确认后的到期时间
			key := e.ScheduleKey()
			next, ok := f.confirmed[key]
			if !ok {
				p.stale = true
				out = append(out, p)
				continue
			}
			// 旧行的告警已完成，新周期的告警 ID 等后端返回新行
			p.entry.ScheduleID = &key
			p.entry.ID = 0
			p.entry.DueAt = next
		}
		p.eval, p.err = vitals.EvaluateEntry(p.entry, now)
		out = append(out, p)
	}
	return out
}

// apply 根据本次结果更新告警周期；调用方需持有 mu
func (f *AlertFeed) apply(
	raw []models.ScheduleEntry,
	rows []prepared,
	dismissed map[string]bool,
	scope *int64,
	now time.Time,
) (*models.Dashboard, []models.AlertEvent, []string) {
	d := &models.Dashboard{
		WardID:    copyID(scope),
		Rows:      make([]models.DashboardRow, 0, len(rows)),
		FetchedAt: now,
	}
	var events []models.AlertEvent
	seen := make(map[string]bool)
	keep := make(map[int64]bool)

	for _, p := range rows {
		if p.stale {
			continue
		}
		if p.err != nil {
			// 数据非法时不猜测，保留该计划已有的告警
			keep[p.entry.ScheduleKey()] = true
			d.Invalid = append(d.Invalid, models.InvalidEntry{ID: p.entry.ID, Reason: p.err.Error()})
			f.logger.Warn("Invalid vitals schedule data",
				zap.Int64("id", p.entry.ID),
				zap.Error(p.err),
			)
			continue
		}

		episodeID := p.entry.EpisodeID()
		score := vitals.UrgencyScore(p.eval)
		d.Rows = append(d.Rows, models.DashboardRow{
			ScheduleEntry:       p.entry,
			Status:              p.eval.Status,
			TimeUntilDueMinutes: p.eval.TimeUntilDueMinutes,
			TimeOverdueMinutes:  p.eval.TimeOverdueMinutes,
			EpisodeID:           episodeID,
			UrgencyScore:        score,
		})
		switch p.eval.Status {
		case models.StatusOverdue:
			d.Stats.Overdue++
		case models.StatusDue:
			d.Stats.Due++
		default:
			d.Stats.Upcoming++
		}

		if !p.eval.Status.Alerting() {
			continue
		}
		seen[episodeID] = true

		if ep, ok := f.episodes[episodeID]; ok {
			// 已知周期只刷新字段，不重复产生事件
			refreshAlert(ep, p.entry, p.eval)
			continue
		}

		ep := &models.VitalsAlert{
			EpisodeID:  episodeID,
			State:      models.AlertStateAlerting,
			SurfacedAt: now,
		}
		refreshAlert(ep, p.entry, p.eval)
		f.episodes[episodeID] = ep
		if dismissed[episodeID] {
			ep.State = models.AlertStateDismissed
			continue
		}
		events = append(events, f.event(ep, models.EventRaised, "", now))
	}
	d.Stats.Total = len(d.Rows)
	vitals.Rank(d.Rows)

	// 范围内消失的周期视为已恢复
	var cleared []string
	for id, ep := range f.episodes {
		if seen[id] || keep[ep.ScheduleID] || !inScope(ep.WardID, scope) {
			continue
		}
		delete(f.episodes, id)
		if ep.State == models.AlertStateDismissed {
			cleared = append(cleared, id)
			continue
		}
		events = append(events, f.event(ep, models.EventResolved, "", now))
	}

	// 后端已追上记录结果后清理墓碑
	present := make(map[string]bool, len(raw))
	latest := make(map[int64]time.Time, len(raw))
	for _, e := range raw {
		present[e.EpisodeID()] = true
		if e.DueAt.After(latest[e.ScheduleKey()]) {
			latest[e.ScheduleKey()] = e.DueAt
		}
	}
	live := make(map[int64]bool, len(f.tombstones))
	for id, t := range f.tombstones {
		if !present[id] || !now.Before(t.expiresAt) {
			delete(f.tombstones, id)
			continue
		}
		live[t.scheduleKey] = true
	}
	for key, next := range f.confirmed {
		if t, ok := latest[key]; !live[key] || !ok || !t.Before(next) {
			delete(f.confirmed, key)
		}
	}

	return d, events, cleared
}

func (f *AlertFeed) recordFetchError(gen uint64, scope *int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation {
		return
	}
	if f.snapshot == nil {
		f.snapshot = &models.Dashboard{WardID: copyID(scope), Rows: []models.DashboardRow{}}
	} else {
		// 保留上一次结果，仅标记错误
		snap := *f.snapshot
		f.snapshot = &snap
	}
	f.snapshot.Error = err.Error()
}

// Dismiss 忽略告警周期；未知或已忽略的周期直接返回 nil
func (f *AlertFeed) Dismiss(ctx context.Context, episodeID, userID string) error {
	f.mu.Lock()
	ep, ok := f.episodes[episodeID]
	if !ok || ep.State == models.AlertStateDismissed {
		f.mu.Unlock()
		return nil
	}
	alertID := ep.AlertID
	f.mu.Unlock()
	if alertID == 0 {
		return fmt.Errorf("episode %s: %w", episodeID, ErrAlertPending)
	}

	// 后端失败时周期保持 alerting，便于重试
	if err := f.backend.DismissAlert(ctx, alertID, userID); err != nil {
		return fmt.Errorf("failed to dismiss alert %d: %w", alertID, err)
	}

	now := f.opts.Now()
	f.mu.Lock()
	ep, ok = f.episodes[episodeID]
	if !ok || ep.State == models.AlertStateDismissed {
		f.mu.Unlock()
		return nil
	}
	ep.State = models.AlertStateDismissed
	ep.DismissedBy = userID
	ep.DismissedAt = timePtr(now)
	if ep.AcknowledgedAt == nil {
		ep.AcknowledgedBy = userID
		ep.AcknowledgedAt = timePtr(now)
	}
	ev := f.event(ep, models.EventDismissed, userID, now)
	f.mu.Unlock()

	if err := f.state.MarkDismissed(ctx, Dismissal{EpisodeID: episodeID, UserID: userID, DismissedAt: now}); err != nil {
		f.logger.Warn("Failed to persist dismissal",
			zap.String("episode_id", episodeID),
			zap.Error(err),
		)
	}
	f.notify(ctx, []models.AlertEvent{ev})

	f.logger.Info("Vitals alert dismissed",
		zap.String("episode_id", episodeID),
		zap.String("user_id", userID),
	)
	return nil
}

// Acknowledge 确认告警周期（不影响提醒）；未知或已确认的周期直接返回 nil
func (f *AlertFeed) Acknowledge(ctx context.Context, episodeID, userID string) error {
	f.mu.Lock()
	ep, ok := f.episodes[episodeID]
	if !ok || ep.AcknowledgedAt != nil {
		f.mu.Unlock()
		return nil
	}
	alertID := ep.AlertID
	f.mu.Unlock()
	if alertID == 0 {
		return fmt.Errorf("episode %s: %w", episodeID, ErrAlertPending)
	}

	if err := f.backend.AcknowledgeAlert(ctx, alertID, userID); err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", alertID, err)
	}

	now := f.opts.Now()
	f.mu.Lock()
	ep, ok = f.episodes[episodeID]
	if !ok || ep.AcknowledgedAt != nil {
		f.mu.Unlock()
		return nil
	}
	ep.AcknowledgedBy = userID
	ep.AcknowledgedAt = timePtr(now)
	ev := f.event(ep, models.EventAcknowledged, userID, now)
	f.mu.Unlock()

	f.notify(ctx, []models.AlertEvent{ev})
	return nil
}

// RecordVitals 转发记录请求；成功后旧周期立即恢复并触发一次轮询
func (f *AlertFeed) RecordVitals(ctx context.Context, scheduleID int64, reading models.VitalsReading) (*models.VitalsSchedule, error) {
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = f.opts.Now()
	}

	sched, err := f.backend.RecordVitals(ctx, scheduleID, reading)
	if err != nil {
		return nil, fmt.Errorf("failed to record vitals for schedule %d: %w", scheduleID, err)
	}

	var next time.Time
	if sched != nil {
		next = sched.NextDueAt
	}
	f.MarkRecorded(ctx, scheduleID, next)
	return sched, nil
}

// MarkRecorded 后端确认记录后调用（也用于 MQTT 通知）
// nextDueAt 为零值表示未知，此时该计划当前所有周期都视为已恢复；
// 后端仍返回旧行时最多屏蔽 RecordGrace
func (f *AlertFeed) MarkRecorded(ctx context.Context, scheduleID int64, nextDueAt time.Time) []models.AlertEvent {
	now := f.opts.Now()
	dead := tombstone{scheduleKey: scheduleID, expiresAt: now.Add(f.opts.RecordGrace)}

	f.mu.Lock()
	if !nextDueAt.IsZero() {
		f.confirmed[scheduleID] = nextDueAt
	}
	var events []models.AlertEvent
	var cleared []string
	for id, ep := range f.episodes {
		if ep.ScheduleID != scheduleID {
			continue
		}
		if !nextDueAt.IsZero() && ep.DueAt.Equal(nextDueAt) {
			continue
		}
		delete(f.episodes, id)
		f.tombstones[id] = dead
		if ep.State == models.AlertStateDismissed {
			cleared = append(cleared, id)
			continue
		}
		events = append(events, f.event(ep, models.EventResolved, "", now))
	}
	// 当前快照中该计划的行也标记为过期
	if f.snapshot != nil {
		for _, r := range f.snapshot.Rows {
			if r.ScheduleKey() == scheduleID && (nextDueAt.IsZero() || !r.DueAt.Equal(nextDueAt)) {
				f.tombstones[r.EpisodeID] = dead
			}
		}
	}
	f.mu.Unlock()

	f.clearDismissals(ctx, cleared)
	f.notify(ctx, events)
	f.RequestRefresh()

	f.logger.Info("Vitals recorded, episodes resolved",
		zap.Int64("schedule_id", scheduleID),
		zap.Int("resolved", len(events)+len(cleared)),
	)
	return events
}

// SetWard 切换病区范围；进行中的拉取结果将被丢弃
func (f *AlertFeed) SetWard(wardID *int64) {
	f.mu.Lock()
	f.wardID = copyID(wardID)
	f.generation++
	f.snapshot = nil
	f.mu.Unlock()

	f.RequestRefresh()
}

// RestoreDismissals 载入启动前已忽略的周期，首次轮询时直接视为已忽略
func (f *AlertFeed) RestoreDismissals(episodeIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = make(map[string]struct{}, len(episodeIDs))
	for _, id := range episodeIDs {
		f.restored[id] = struct{}{}
	}
}

// Ward 当前病区范围
func (f *AlertFeed) Ward() *int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyID(f.wardID)
}

// Snapshot 最近一次看板快照（尚未轮询时为 nil）
func (f *AlertFeed) Snapshot() *models.Dashboard {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return nil
	}
	d := *f.snapshot
	d.Rows = append([]models.DashboardRow(nil), f.snapshot.Rows...)
	d.Invalid = append([]models.InvalidEntry(nil), f.snapshot.Invalid...)
	return &d
}

// ActiveAlerts 当前范围内未忽略的告警，按紧急度排序
func (f *AlertFeed) ActiveAlerts() []models.VitalsAlert {
	f.mu.Lock()
	out := make([]models.VitalsAlert, 0, len(f.episodes))
	for _, ep := range f.episodes {
		if ep.State == models.AlertStateAlerting && inScope(ep.WardID, f.wardID) {
			out = append(out, *ep)
		}
	}
	f.mu.Unlock()

	// map 遍历无序，先按周期标识排序保证稳定
	sortByEpisodeID(out)
	vitals.RankAlerts(out)
	return out
}

// Episode 查询告警周期
func (f *AlertFeed) Episode(episodeID string) (models.VitalsAlert, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[episodeID]
	if !ok {
		return models.VitalsAlert{}, false
	}
	return *ep, true
}

func (f *AlertFeed) event(ep *models.VitalsAlert, typ models.AlertEventType, userID string, now time.Time) models.AlertEvent {
	p := vitals.PresentationFor(ep.Status)
	return models.AlertEvent{
		EventID:             uuid.New().String(),
		Type:                typ,
		EpisodeID:           ep.EpisodeID,
		AlertID:             ep.AlertID,
		ScheduleID:          ep.ScheduleID,
		PatientAdmissionID:  ep.PatientAdmissionID,
		WardID:              ep.WardID,
		PatientName:         ep.PatientName,
		BedNumber:           ep.BedNumber,
		WardName:            ep.WardName,
		DueAt:               ep.DueAt,
		Status:              ep.Status,
		TimeUntilDueMinutes: ep.TimeUntilDueMinutes,
		TimeOverdueMinutes:  ep.TimeOverdueMinutes,
		Severity:            p.Severity,
		Urgent:              p.Urgent,
		SoundType:           p.SoundType,
		DisplaySeconds:      p.DisplaySeconds,
		UserID:              userID,
		EmittedAt:           now,
	}
}

func (f *AlertFeed) notify(ctx context.Context, events []models.AlertEvent) {
	if len(events) == 0 || f.notifier == nil {
		return
	}
	if err := f.notifier.Notify(ctx, events); err != nil {
		f.logger.Error("Failed to deliver alert events",
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}

func (f *AlertFeed) clearDismissals(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := f.state.ClearDismissal(ctx, id); err != nil {
			f.logger.Warn("Failed to clear dismissal", zap.String("episode_id", id), zap.Error(err))
		}
	}
}

func refreshAlert(ep *models.VitalsAlert, e models.ScheduleEntry, ev vitals.Evaluation) {
	if e.ID != 0 {
		ep.AlertID = e.ID
	}
	ep.ScheduleID = e.ScheduleKey()
	ep.PatientAdmissionID = e.PatientAdmissionID
	ep.WardID = e.WardID
	ep.PatientName = e.PatientName
	ep.BedNumber = e.BedNumber
	ep.WardName = e.WardName
	ep.DueAt = e.DueAt
	ep.IntervalMinutes = e.IntervalMinutes
	ep.Status = ev.Status
	ep.TimeUntilDueMinutes = ev.TimeUntilDueMinutes
	ep.TimeOverdueMinutes = ev.TimeOverdueMinutes
	ep.UrgencyScore = vitals.UrgencyScore(ev)
	ep.Severity = vitals.PresentationFor(ev.Status).Severity
}

func inScope(wardID int64, scope *int64) bool {
	return scope == nil || *scope == wardID
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sortByEpisodeID(alerts []models.VitalsAlert) {
	slices.SortFunc(alerts, func(a, b models.VitalsAlert) int {
		return strings.Compare(a.EpisodeID, b.EpisodeID)
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}
