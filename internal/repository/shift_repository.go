package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

const shiftColumns = `s.id, s.event_id, s.title, s.description, s.location, s.start_time, s.end_time,
       s.capacity, s.active, s.created_by, s.created_at, s.updated_at`

const visibleShiftsFrom = `shifts s LEFT JOIN events e ON e.id = s.event_id`

const registeredCountColumn = `(SELECT COUNT(*) FROM signups sg WHERE sg.shift_id = s.id AND sg.status = 'active') AS registered_count`

// ShiftRepository persists capacity-bounded shifts.
type ShiftRepository struct {
	db *sqlx.DB
}

// NewShiftRepository constructs the repository.
func NewShiftRepository(db *sqlx.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// Create inserts a new shift row.
func (r *ShiftRepository) Create(ctx context.Context, q sqlx.ExtContext, shift *models.Shift) error {
	if shift.ID == "" {
		shift.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if shift.CreatedAt.IsZero() {
		shift.CreatedAt = now
	}
	shift.UpdatedAt = shift.CreatedAt
	shift.Active = true

	const query = `INSERT INTO shifts
	(id, event_id, title, description, location, start_time, end_time, capacity, active, created_by, created_at, updated_at)
	VALUES (:id, :event_id, :title, :description, :location, :start_time, :end_time, :capacity, :active, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, shift); err != nil {
		return fmt.Errorf("create shift: %w", err)
	}
	return nil
}

// GetByID fetches an active shift visible under pred with its live occupancy.
func (r *ShiftRepository) GetByID(ctx context.Context, id string, pred Predicate) (*models.ShiftSummary, error) {
	query := r.db.Rebind(`SELECT ` + shiftColumns + `, ` + registeredCountColumn + `
	FROM ` + visibleShiftsFrom + ` WHERE s.id = ? AND s.active = TRUE AND ` + pred.Clause)
	args := append([]interface{}{id}, pred.Args...)
	var summary models.ShiftSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get shift: %w", err)
	}
	summary.ComputeRemaining()
	return &summary, nil
}

// GetForUpdate loads a shift inside the caller's transaction and holds its row
// lock until commit. Inactive rows are returned; callers decide what that means.
func (r *ShiftRepository) GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.Shift, error) {
	query := q.Rebind(`SELECT ` + shiftColumns + ` FROM shifts s WHERE s.id = ?` + forUpdate(q))
	var shift models.Shift
	if err := sqlx.GetContext(ctx, q, &shift, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock shift: %w", err)
	}
	return &shift, nil
}

// GetVisibleForUpdate is GetForUpdate restricted to shifts visible under pred.
// Hidden shifts are reported as sql.ErrNoRows.
func (r *ShiftRepository) GetVisibleForUpdate(ctx context.Context, q sqlx.ExtContext, id string, pred Predicate) (*models.Shift, error) {
	query := q.Rebind(`SELECT ` + shiftColumns + ` FROM ` + visibleShiftsFrom + ` WHERE s.id = ? AND ` + pred.Clause + forUpdateOf(q, "s"))
	args := append([]interface{}{id}, pred.Args...)
	var shift models.Shift
	if err := sqlx.GetContext(ctx, q, &shift, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock visible shift: %w", err)
	}
	return &shift, nil
}

// List returns active shifts visible under pred, ordered by start time.
func (r *ShiftRepository) List(ctx context.Context, filter models.ShiftFilter, pred Predicate) ([]models.ShiftSummary, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + shiftColumns + `, ` + registeredCountColumn + ` FROM ` + visibleShiftsFrom + ` WHERE s.active = TRUE AND ` + pred.Clause)
	args = append(args, pred.Args...)

	if filter.EventID != "" {
		args = append(args, filter.EventID)
		builder.WriteString(" AND s.event_id = ?")
	}
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		builder.WriteString(" AND s.start_time >= ?")
	}
	builder.WriteString(" ORDER BY s.start_time ASC, s.id ASC")

	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var shifts []models.ShiftSummary
	if err := r.db.SelectContext(ctx, &shifts, r.db.Rebind(builder.String()), args...); err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	for i := range shifts {
		shifts[i].ComputeRemaining()
	}
	return shifts, nil
}

// Update writes the mutable columns of an active shift.
func (r *ShiftRepository) Update(ctx context.Context, q sqlx.ExtContext, shift *models.Shift) error {
	shift.UpdatedAt = time.Now().UTC()
	const query = `UPDATE shifts SET event_id = :event_id, title = :title, description = :description,
	location = :location, start_time = :start_time, end_time = :end_time, capacity = :capacity, updated_at = :updated_at
	WHERE id = :id AND active = TRUE`
	result, err := sqlx.NamedExecContext(ctx, q, query, shift)
	if err != nil {
		return fmt.Errorf("update shift: %w", err)
	}
	return expectOneRow(result, "update shift")
}

// Retire soft-deletes an active shift. Existing signups are left untouched.
func (r *ShiftRepository) Retire(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error {
	query := q.Rebind(`UPDATE shifts SET active = FALSE, updated_at = ? WHERE id = ? AND active = TRUE`)
	result, err := q.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("retire shift: %w", err)
	}
	return expectOneRow(result, "retire shift")
}

// ListEndedBefore returns active shifts whose end time precedes cutoff.
func (r *ShiftRepository) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Shift, error) {
	limit, _ = page(limit, 0)
	query := r.db.Rebind(fmt.Sprintf(`SELECT `+shiftColumns+` FROM shifts s
	WHERE s.active = TRUE AND s.end_time < ? ORDER BY s.end_time ASC LIMIT %d`, limit))
	var shifts []models.Shift
	if err := r.db.SelectContext(ctx, &shifts, query, cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("list ended shifts: %w", err)
	}
	return shifts, nil
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
