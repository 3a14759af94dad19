package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

var shiftRowColumns = []string{"id", "event_id", "title", "description", "location", "start_time", "end_time",
	"capacity", "active", "created_by", "created_at", "updated_at"}

func TestShiftRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO shifts")).WillReturnResult(sqlmock.NewResult(1, 1))

	start := time.Now().Add(time.Hour)
	shift := &models.Shift{Title: "Bar", StartTime: start, EndTime: start.Add(2 * time.Hour), Capacity: 2}
	require.NoError(t, repo.Create(context.Background(), db, shift))
	assert.NotEmpty(t, shift.ID)
	assert.True(t, shift.Active)
	assert.Equal(t, shift.CreatedAt, shift.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftRepositoryGetByIDComputesRemaining(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(append(append([]string{}, shiftRowColumns...), "registered_count")).
		AddRow("s1", nil, "Bar", nil, nil, now, now.Add(time.Hour), 2, true, nil, now, now, 3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM shifts s LEFT JOIN events e ON e.id = s.event_id WHERE s.id = $1 AND s.active = TRUE AND TRUE")).
		WithArgs("s1").
		WillReturnRows(rows)

	manager := &models.Principal{UserID: "m1", Role: models.RoleManager}
	shift, err := repo.GetByID(context.Background(), "s1", ShiftVisibilityFor(manager))
	require.NoError(t, err)
	assert.Equal(t, 3, shift.RegisteredCount)
	assert.Equal(t, 0, shift.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftRepositoryGetForUpdateLocksRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM shifts s WHERE s.id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetForUpdate(context.Background(), db, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(append(append([]string{}, shiftRowColumns...), "registered_count")).
		AddRow("s1", "e1", "Door", nil, nil, from, from.Add(time.Hour), 4, true, nil, from, from, 1)
	mock.ExpectQuery(regexp.QuoteMeta("s.active = TRUE AND (s.event_id IS NULL OR (e.active = TRUE AND (e.status = 'approved' OR e.created_by = $1))) AND s.event_id = $2 AND s.start_time >= $3 ORDER BY s.start_time ASC, s.id ASC LIMIT 50 OFFSET 0")).
		WithArgs("u1", "e1", from).
		WillReturnRows(rows)

	member := &models.Principal{UserID: "u1", Role: models.RoleMember}
	shifts, err := repo.List(context.Background(), models.ShiftFilter{EventID: "e1", From: &from, Limit: 500}, ShiftVisibilityFor(member))
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, 3, shifts[0].Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftRepositoryRetireInactive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE shifts SET active = FALSE, updated_at = $1 WHERE id = $2 AND active = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Retire(context.Background(), db, "s1", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftVisibilityForAnonymousHidesUnapprovedLinks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewShiftRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM shifts s LEFT JOIN events e ON e.id = s.event_id WHERE s.id = $1 AND s.active = TRUE AND (s.event_id IS NULL OR (e.active = TRUE AND e.status = 'approved'))")).
		WithArgs("s1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "s1", ShiftVisibilityFor(nil))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
