package vitals

import (
	"errors"
	"testing"
	"time"

	"hms-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func TestClassify_BandsAreExclusive(t *testing.T) {
	for diff := -2000; diff <= 2000; diff++ {
		e := Classify(diff)
		switch {
		case diff > GracePeriodMinutes:
			assert.Equal(t, models.StatusUpcoming, e.Status, "diff=%d", diff)
		case diff < -GracePeriodMinutes:
			assert.Equal(t, models.StatusOverdue, e.Status, "diff=%d", diff)
		default:
			assert.Equal(t, models.StatusDue, e.Status, "diff=%d", diff)
		}
		// 两个分钟字段恰好设置一个
		assert.True(t, (e.TimeUntilDueMinutes == nil) != (e.TimeOverdueMinutes == nil), "diff=%d", diff)
	}
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		diff    int
		status  models.VitalsStatus
		until   *int
		overdue *int
	}{
		{16, models.StatusUpcoming, intPtr(16), nil},
		{15, models.StatusDue, intPtr(15), nil},
		{1, models.StatusDue, intPtr(1), nil},
		{0, models.StatusDue, nil, intPtr(0)},
		{-15, models.StatusDue, nil, intPtr(15)},
		{-16, models.StatusOverdue, nil, intPtr(16)},
	}
	for _, tt := range tests {
		e := Classify(tt.diff)
		assert.Equal(t, tt.status, e.Status, "diff=%d", tt.diff)
		assert.Equal(t, tt.until, e.TimeUntilDueMinutes, "diff=%d", tt.diff)
		assert.Equal(t, tt.overdue, e.TimeOverdueMinutes, "diff=%d", tt.diff)
	}
}

func TestEvaluate_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration
		status  models.VitalsStatus
		until   *int
		overdue *int
	}{
		{"upcoming 241m", 241 * time.Minute, models.StatusUpcoming, intPtr(241), nil},
		{"due in 10m", 10 * time.Minute, models.StatusDue, intPtr(10), nil},
		{"due 5m late", -5 * time.Minute, models.StatusDue, nil, intPtr(5)},
		{"overdue 20m", -20 * time.Minute, models.StatusOverdue, nil, intPtr(20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.VitalsSchedule{ID: 1, IntervalMinutes: 240, NextDueAt: testNow.Add(tt.offset), IsActive: true}
			st, err := EvaluateSchedule(s, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.status, st.Status)
			assert.Equal(t, tt.until, st.TimeUntilDueMinutes)
			assert.Equal(t, tt.overdue, st.TimeOverdueMinutes)
			assert.Equal(t, 240, st.IntervalMinutes)
			assert.True(t, s.NextDueAt.Equal(st.NextDueAt))
		})
	}
}

func TestDiffMinutes_FloorsTowardNegativeInfinity(t *testing.T) {
	assert.Equal(t, 14, DiffMinutes(testNow.Add(14*time.Minute+30*time.Second), testNow))
	assert.Equal(t, -15, DiffMinutes(testNow.Add(-14*time.Minute-30*time.Second), testNow))
	assert.Equal(t, -16, DiffMinutes(testNow.Add(-15*time.Minute-1*time.Second), testNow))
	assert.Equal(t, -1, DiffMinutes(testNow.Add(-time.Second), testNow))
	assert.Equal(t, 0, DiffMinutes(testNow.Add(59*time.Second), testNow))
	assert.Equal(t, 0, DiffMinutes(testNow, testNow))
}

func TestEvaluate_FractionalEdges(t *testing.T) {
	// 15 分 30 秒前到期：floor 为 -16，已逾期
	e, err := Evaluate(testNow.Add(-15*time.Minute-30*time.Second), testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, e.Status)
	assert.Equal(t, 16, *e.TimeOverdueMinutes)

	// 正好 15 分钟前
	e, err = Evaluate(testNow.Add(-15*time.Minute), testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDue, e.Status)

	// 15 分 59 秒后到期：仍为 due
	e, err = Evaluate(testNow.Add(15*time.Minute+59*time.Second), testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDue, e.Status)
	assert.Equal(t, 15, *e.TimeUntilDueMinutes)
}

func TestEvaluate_TimezoneIndependent(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	e, err := Evaluate(testNow.Add(30*time.Minute).In(loc), testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpcoming, e.Status)
	assert.Equal(t, 30, *e.TimeUntilDueMinutes)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	_, err := Evaluate(time.Time{}, testNow)
	assert.ErrorIs(t, err, ErrInvalidDueAt)

	_, err = EvaluateSchedule(models.VitalsSchedule{ID: 4, IntervalMinutes: 10, NextDueAt: testNow}, testNow)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = EvaluateSchedule(models.VitalsSchedule{ID: 4, IntervalMinutes: 1441, NextDueAt: testNow}, testNow)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = EvaluateEntry(models.ScheduleEntry{ID: 5, IntervalMinutes: 60}, testNow)
	assert.True(t, errors.Is(err, ErrInvalidDueAt))
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, 30, FromStatus(models.StatusUpcoming, intPtr(30), nil).DiffMinutes)
	assert.Equal(t, -20, FromStatus(models.StatusOverdue, nil, intPtr(20)).DiffMinutes)
	assert.Equal(t, 0, FromStatus(models.StatusDue, nil, intPtr(0)).DiffMinutes)
}
