package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleEntry_EpisodeID(t *testing.T) {
	due := time.Unix(1700000000, 0)
	sid := int64(9)

	e := ScheduleEntry{ID: 3, DueAt: due}
	assert.Equal(t, int64(3), e.ScheduleKey())
	assert.Equal(t, "3:1700000000", e.EpisodeID())

	e.ScheduleID = &sid
	assert.Equal(t, int64(9), e.ScheduleKey())
	assert.Equal(t, "9:1700000000", e.EpisodeID())

	e.DueAt = due.Add(4 * time.Hour)
	assert.NotEqual(t, "9:1700000000", e.EpisodeID())
}

func TestVitalsStatus_Alerting(t *testing.T) {
	assert.False(t, StatusUpcoming.Alerting())
	assert.True(t, StatusDue.Alerting())
	assert.True(t, StatusOverdue.Alerting())
}

func TestValidationError(t *testing.T) {
	var err error = NewValidationError("interval_minutes", "too small")
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "validation failed: interval_minutes: too small", err.Error())
}

func TestAlertSettings_Validate(t *testing.T) {
	assert.NoError(t, DefaultAlertSettings().Validate())

	err := AlertSettings{Volume: 1.5, SoundType: "siren"}.Validate()
	var ve *ValidationError
	if assert.True(t, errors.As(err, &ve)) {
		assert.Contains(t, ve.Fields, "volume")
		assert.Contains(t, ve.Fields, "sound_type")
	}
}
