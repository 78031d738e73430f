package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"hms-vitals/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertEventsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertEventsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewAlertEventsRepository(db, zap.NewNop())
}

func TestInsertAlertEvent(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	overdue := 20
	ev := &models.AlertEvent{
		EventID:            uuid.New().String(),
		Type:               models.EventRaised,
		EpisodeID:          "7:1741593600",
		AlertID:            101,
		ScheduleID:         7,
		PatientAdmissionID: 21,
		WardID:             3,
		PatientName:        "Ama Mensah",
		DueAt:              time.Unix(1741593600, 0),
		Status:             models.StatusOverdue,
		TimeOverdueMinutes: &overdue,
		Severity:           models.SeverityUrgent,
		EmittedAt:          time.Now(),
	}

	args := make([]driver.Value, 17)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = ev.EventID
	args[1] = "raised"
	args[2] = "7:1741593600"
	mock.ExpectExec("INSERT INTO vitals_alert_events").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertAlertEvent(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAlertEvent_RequiresEventID(t *testing.T) {
	db, _, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	assert.Error(t, repo.InsertAlertEvent(context.Background(), &models.AlertEvent{}))
}

func TestListAlertEvents(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	emitted := time.Now()
	due := emitted.Add(-20 * time.Minute)
	rows := sqlmock.NewRows([]string{
		"event_id", "event_type", "episode_id", "alert_id", "schedule_id",
		"patient_admission_id", "ward_id", "patient_name", "bed_number", "ward_name",
		"due_at", "status", "time_until_due_minutes", "time_overdue_minutes",
		"severity", "user_id", "emitted_at",
	}).
		AddRow("e-2", "dismissed", "7:1", int64(101), int64(7), int64(21), int64(3), "Ama Mensah", "01", "Female Ward",
			due, "overdue", nil, int64(20), "urgent", "nurse-1", emitted).
		AddRow("e-1", "raised", "7:1", int64(101), int64(7), int64(21), int64(3), "Ama Mensah", "01", "Female Ward",
			due, "due", int64(3), nil, "gentle", nil, emitted.Add(-time.Minute))

	mock.ExpectQuery("SELECT").
		WithArgs(int64(3), "raised", "dismissed", int64(50)).
		WillReturnRows(rows)

	ward := int64(3)
	events, err := repo.ListAlertEvents(context.Background(), AlertEventFilters{
		WardID:     &ward,
		EventTypes: []models.AlertEventType{models.EventRaised, models.EventDismissed},
		Limit:      50,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, models.EventDismissed, events[0].Type)
	assert.Equal(t, "nurse-1", events[0].UserID)
	require.NotNil(t, events[0].TimeOverdueMinutes)
	assert.Equal(t, 20, *events[0].TimeOverdueMinutes)
	assert.Nil(t, events[0].TimeUntilDueMinutes)

	assert.Equal(t, models.StatusDue, events[1].Status)
	assert.Equal(t, "", events[1].UserID)
	require.NotNil(t, events[1].TimeUntilDueMinutes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlertEvents_DefaultLimit(t *testing.T) {
	db, mock, repo := setupMockAlertEventsDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT").
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}))

	events, err := repo.ListAlertEvents(context.Background(), AlertEventFilters{})
	require.NoError(t, err)
	assert.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}
