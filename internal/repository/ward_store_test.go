package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"hms-vitals/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockWardStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *WardStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewWardStore(db, zap.NewNop())
}

func scheduleColumns() []string {
	return []string{"id", "patient_admission_id", "interval_minutes", "next_due_at", "last_recorded_at", "is_active"}
}

func TestListActiveSchedules_WardFilter(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	due := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO vitals_alerts").
		WithArgs("pending").
		WillReturnResult(sqlmock.NewResult(0, 2))
	rows := sqlmock.NewRows([]string{"alert_id", "schedule_id", "admission_id", "ward_id", "patient_name", "bed_number", "ward_name", "next_due_at", "interval_minutes"}).
		AddRow(int64(101), int64(7), int64(21), int64(3), "Ama Mensah", "01", "Female Ward", due, 240).
		AddRow(int64(102), int64(8), int64(22), int64(3), "Kofi Boateng", "", "Female Ward", nil, 60)
	mock.ExpectQuery("SELECT").
		WithArgs(sqlmock.AnyArg(), int64(3)).
		WillReturnRows(rows)

	ward := int64(3)
	entries, err := store.ListActiveSchedules(context.Background(), &ward)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(101), entries[0].ID)
	assert.Equal(t, int64(7), entries[0].ScheduleKey())
	assert.Equal(t, "Ama Mensah", entries[0].PatientName)
	assert.True(t, entries[0].DueAt.Equal(due))
	assert.Equal(t, 240, entries[0].IntervalMinutes)

	// 空的 next_due_at 保留零值
	assert.True(t, entries[1].DueAt.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveSchedules_AllWards(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO vitals_alerts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"alert_id"}))

	entries, err := store.ListActiveSchedules(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveSchedules_EnsureFails(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO vitals_alerts").WillReturnError(errors.New("connection reset"))

	_, err := store.ListActiveSchedules(context.Background(), nil)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchedule_Success(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	next := time.Now().Add(4 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM patient_admissions").
		WithArgs(int64(21)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("admitted"))
	mock.ExpectExec("UPDATE vitals_schedules").
		WithArgs(int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO vitals_schedules").
		WithArgs(int64(21), int64(240)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "next_due_at"}).AddRow(int64(9), next))
	mock.ExpectCommit()

	s, err := store.CreateSchedule(context.Background(), 21, models.ScheduleInput{IntervalMinutes: 240})
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.ID)
	assert.True(t, s.IsActive)
	assert.True(t, s.NextDueAt.Equal(next))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchedule_NotAdmitted(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM patient_admissions").
		WithArgs(int64(21)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("discharged"))
	mock.ExpectRollback()

	_, err := store.CreateSchedule(context.Background(), 21, models.ScheduleInput{IntervalMinutes: 240})
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchedule_AdmissionNotFound(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM patient_admissions").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.CreateSchedule(context.Background(), 99, models.ScheduleInput{IntervalMinutes: 60})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSchedule(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	next := time.Now().Add(2 * time.Hour)
	mock.ExpectQuery("UPDATE vitals_schedules").
		WithArgs(int64(7), int64(120)).
		WillReturnRows(sqlmock.NewRows(scheduleColumns()).AddRow(int64(7), int64(21), 120, next, nil, true))

	s, err := store.UpdateSchedule(context.Background(), 7, models.ScheduleInput{IntervalMinutes: 120})
	require.NoError(t, err)
	assert.Equal(t, 120, s.IntervalMinutes)
	assert.Nil(t, s.LastRecordedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSchedule_NotFound(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectQuery("UPDATE vitals_schedules").
		WithArgs(int64(7), int64(120)).
		WillReturnRows(sqlmock.NewRows(scheduleColumns()))

	_, err := store.UpdateSchedule(context.Background(), 7, models.ScheduleInput{IntervalMinutes: 120})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStopSchedule(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectExec("UPDATE vitals_schedules").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE vitals_schedules").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.StopSchedule(context.Background(), 7))
	assert.ErrorIs(t, store.StopSchedule(context.Background(), 8), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordVitals(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	recorded := time.Date(2025, 3, 10, 8, 5, 0, 0, time.UTC)
	next := recorded.Add(4 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT patient_admission_id FROM vitals_schedules").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"patient_admission_id"}).AddRow(int64(21)))
	mock.ExpectExec("INSERT INTO vital_signs").
		WithArgs(int64(21), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), "stable", recorded).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("UPDATE vitals_schedules").
		WithArgs(int64(7), recorded).
		WillReturnRows(sqlmock.NewRows(scheduleColumns()).AddRow(int64(7), int64(21), 240, next, recorded, true))
	mock.ExpectExec("UPDATE vitals_alerts").
		WithArgs(int64(7), "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pulse := 80
	s, err := store.RecordVitals(context.Background(), 7, models.VitalsReading{PulseRate: &pulse, Notes: "stable", RecordedAt: recorded})
	require.NoError(t, err)
	assert.True(t, s.NextDueAt.Equal(next))
	require.NotNil(t, s.LastRecordedAt)
	assert.True(t, s.LastRecordedAt.Equal(recorded))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordVitals_InactiveSchedule(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT patient_admission_id FROM vitals_schedules").
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.RecordVitals(context.Background(), 7, models.VitalsReading{RecordedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDismissAndAcknowledgeAlert(t *testing.T) {
	db, mock, store := setupMockWardStore(t)
	defer db.Close()

	mock.ExpectExec("UPDATE vitals_alerts").
		WithArgs(int64(101), "dismissed", "12").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE vitals_alerts").
		WithArgs(int64(101), "12").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE vitals_alerts").
		WithArgs(int64(555), "dismissed", "12").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DismissAlert(context.Background(), 101, "12"))
	require.NoError(t, store.AcknowledgeAlert(context.Background(), 101, "12"))
	assert.ErrorIs(t, store.DismissAlert(context.Background(), 555, "12"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
