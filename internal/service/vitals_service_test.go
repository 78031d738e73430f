package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hms-vitals/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(wardAPI, redisAddr string) *config.Config {
	cfg := &config.Config{}
	cfg.HTTP.Addr = ":0"
	cfg.Redis.Addr = redisAddr
	cfg.MQTTTopicPrefix = "hms"
	cfg.MQTT.QoS = 1
	cfg.WardBackend = config.BackendAPI
	cfg.WardAPI.BaseURL = wardAPI
	cfg.WardAPI.Timeout = 2 * time.Second
	cfg.Vitals.PollInterval = time.Hour
	cfg.Vitals.FetchTimeout = time.Second
	cfg.Vitals.Cache.DashboardPrefix = "vitals:dashboard:"
	cfg.Vitals.Cache.DashboardTTL = time.Minute
	cfg.Vitals.Cache.DismissPrefix = "vitals:dismissed:"
	cfg.Vitals.Cache.DismissTTL = time.Hour
	cfg.Vitals.Cache.SettingsPrefix = "vitals:settings:"
	cfg.Vitals.AlertStream = "vitals:alerts"
	cfg.Vitals.AlertStreamMaxLen = 100
	return cfg
}

func wardAPI(t *testing.T, dueAt time.Time) (*httptest.Server, *int32) {
	t.Helper()
	var dismissCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/vitals-alerts/active", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"alerts":[{"id":11,"vitals_schedule_id":5,"patient_admission_id":9,"ward_id":2,
			"patient_name":"Jane Doe","bed_number":"12A","ward_name":"Cardiology",
			"due_at":%q,"interval_minutes":240}]}`, dueAt.UTC().Format(time.RFC3339))
	})
	mux.HandleFunc("/api/vitals-alerts/11/dismiss", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&dismissCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &dismissCalls
}

func TestVitalsService_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	dueAt := time.Now().Add(-30 * time.Minute)
	api, dismissCalls := wardAPI(t, dueAt)

	svc, err := NewVitalsService(testConfig(api.URL, mr.Addr()), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, svc.redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	// 首次轮询完成后 raised 事件写入 Redis Stream
	require.Eventually(t, func() bool {
		n, err := svc.redisClient.XLen(ctx, "vitals:alerts").Result()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vitals/alerts", nil)
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)
	var res struct {
		Code   int `json:"code"`
		Result struct {
			Items []struct {
				EpisodeID string `json:"episode_id"`
				Status    string `json:"status"`
			} `json:"items"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Result.Items, 1)
	assert.Equal(t, "overdue", res.Result.Items[0].Status)
	episodeID := res.Result.Items[0].EpisodeID
	assert.Equal(t, fmt.Sprintf("5:%d", dueAt.Unix()), episodeID)

	msgs, err := svc.redisClient.XRange(ctx, "vitals:alerts", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Values["data"], `"type":"raised"`)

	// 看板缓存
	assert.True(t, mr.Exists("vitals:dashboard:all"))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/vitals/alerts/"+episodeID+"/dismiss", nil)
	req.Header.Set("X-User-Id", "nurse-7")
	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Equal(t, int32(1), atomic.LoadInt32(dismissCalls))
	assert.True(t, mr.Exists("vitals:dismissed:"+episodeID))
}

func TestVitalsService_RedisFallback(t *testing.T) {
	api, _ := wardAPI(t, time.Now().Add(time.Hour))
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	svc, err := NewVitalsService(testConfig(api.URL, addr), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, svc.redisClient)
	require.NoError(t, svc.Stop())
}

func TestVitalsService_PostgresBackendRequiresDB(t *testing.T) {
	cfg := testConfig("", "127.0.0.1:1")
	cfg.WardBackend = config.BackendPostgres
	cfg.DBEnabled = true
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1
	cfg.Database.SSLMode = "disable"

	_, err := NewVitalsService(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestHandleRecorded(t *testing.T) {
	mr := miniredis.RunT(t)
	due := time.Now().Add(-30 * time.Minute)
	api, _ := wardAPI(t, due)

	svc, err := NewVitalsService(testConfig(api.URL, mr.Addr()), zap.NewNop())
	require.NoError(t, err)
	defer svc.Stop()

	_, err = svc.feed.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, svc.feed.ActiveAlerts(), 1)

	assert.Error(t, svc.handleRecorded(svc.RecordedTopic(), []byte(`not json`)))
	assert.Error(t, svc.handleRecorded(svc.RecordedTopic(), []byte(`{"next_due_at":"2026-01-01T00:00:00Z"}`)))

	next := time.Now().Add(4 * time.Hour).UTC().Format(time.RFC3339)
	require.NoError(t, svc.handleRecorded(svc.RecordedTopic(), []byte(`{"schedule_id":5,"next_due_at":"`+next+`"}`)))
	assert.Empty(t, svc.feed.ActiveAlerts())
	assert.Equal(t, "hms/vitals/recorded", svc.RecordedTopic())
}
