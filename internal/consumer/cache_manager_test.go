package consumer

import (
	"context"
	"testing"

	"hms-vitals/internal/models"
	"hms-vitals/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCacheManager_DashboardKey(t *testing.T) {
	cm := NewCacheManager(testConfig(), store.NewMemoryKV(), zap.NewNop())
	ward := int64(4)

	assert.Equal(t, "vitals:dashboard:all", cm.DashboardKey(nil))
	assert.Equal(t, "vitals:dashboard:ward:4", cm.DashboardKey(&ward))
}

func TestCacheManager_RoundTripPerWard(t *testing.T) {
	cm := NewCacheManager(testConfig(), store.NewMemoryKV(), zap.NewNop())
	ctx := context.Background()
	ward := int64(4)

	_, err := cm.GetDashboard(ctx, &ward)
	assert.ErrorIs(t, err, store.ErrMiss)

	d := &models.Dashboard{
		WardID:    &ward,
		Rows:      []models.DashboardRow{{ScheduleEntry: models.ScheduleEntry{ID: 1, WardID: 4}, Status: models.StatusDue, EpisodeID: "1:0"}},
		Stats:     models.DashboardStats{Due: 1, Total: 1},
		FetchedAt: baseNow,
	}
	require.NoError(t, cm.UpdateDashboardCache(ctx, d))

	got, err := cm.GetDashboard(ctx, &ward)
	require.NoError(t, err)
	assert.Equal(t, d.Stats, got.Stats)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "1:0", got.Rows[0].EpisodeID)

	// 全院范围为独立键
	_, err = cm.GetDashboard(ctx, nil)
	assert.ErrorIs(t, err, store.ErrMiss)
}
