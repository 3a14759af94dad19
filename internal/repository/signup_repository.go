package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

const signupColumns = `id, shift_id, user_id, status, created_at, cancelled_at, cancelled_by`

// SignupRepository is the claim ledger.
type SignupRepository struct {
	db *sqlx.DB
}

// NewSignupRepository constructs the repository.
func NewSignupRepository(db *sqlx.DB) *SignupRepository {
	return &SignupRepository{db: db}
}

// InsertIfRoom inserts an active signup only while the shift is active and its
// active signups are below capacity. It reports false when no row was written.
// A duplicate active signup surfaces as a unique violation from the driver.
func (r *SignupRepository) InsertIfRoom(ctx context.Context, q sqlx.ExtContext, signup *models.Signup) (bool, error) {
	if signup.ID == "" {
		signup.ID = uuid.NewString()
	}
	if signup.CreatedAt.IsZero() {
		signup.CreatedAt = time.Now().UTC()
	}
	signup.Status = models.SignupStatusActive

	query := q.Rebind(fmt.Sprintf(`INSERT INTO signups (id, shift_id, user_id, status, created_at)
	SELECT ?, ?, ?, '%s', %s
	WHERE (SELECT COUNT(*) FROM signups WHERE shift_id = ? AND status = '%s')
	    < (SELECT capacity FROM shifts WHERE id = ? AND active = TRUE)`,
		models.SignupStatusActive, timestampParam(q), models.SignupStatusActive))

	result, err := q.ExecContext(ctx, query,
		signup.ID, signup.ShiftID, signup.UserID, signup.CreatedAt,
		signup.ShiftID, signup.ShiftID,
	)
	if err != nil {
		return false, fmt.Errorf("insert signup: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check signup insert rows: %w", err)
	}
	return rows == 1, nil
}

// HasActive reports whether the user already holds an active signup on the shift.
func (r *SignupRepository) HasActive(ctx context.Context, q sqlx.ExtContext, shiftID, userID string) (bool, error) {
	query := q.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM signups WHERE shift_id = ? AND user_id = ? AND status = '%s'`, models.SignupStatusActive))
	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, shiftID, userID); err != nil {
		return false, fmt.Errorf("check active signup: %w", err)
	}
	return count > 0, nil
}

// CountActive returns the number of active signups on a shift.
func (r *SignupRepository) CountActive(ctx context.Context, shiftID string) (int, error) {
	query := r.db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM signups WHERE shift_id = ? AND status = '%s'`, models.SignupStatusActive))
	var count int
	if err := r.db.GetContext(ctx, &count, query, shiftID); err != nil {
		return 0, fmt.Errorf("count active signups: %w", err)
	}
	return count, nil
}

// GetByID fetches a signup belonging to the given shift.
func (r *SignupRepository) GetByID(ctx context.Context, q sqlx.ExtContext, shiftID, id string) (*models.Signup, error) {
	query := q.Rebind(`SELECT ` + signupColumns + ` FROM signups WHERE id = ? AND shift_id = ?`)
	var signup models.Signup
	if err := sqlx.GetContext(ctx, q, &signup, query, id, shiftID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get signup: %w", err)
	}
	return &signup, nil
}

// Cancel moves an active signup to cancelled. It returns sql.ErrNoRows when the
// signup is missing or already cancelled.
func (r *SignupRepository) Cancel(ctx context.Context, q sqlx.ExtContext, id string, cancelledBy *string, at time.Time) error {
	query := q.Rebind(fmt.Sprintf(`UPDATE signups SET status = '%s', cancelled_at = ?, cancelled_by = ?
	WHERE id = ? AND status = '%s'`, models.SignupStatusCancelled, models.SignupStatusActive))
	result, err := q.ExecContext(ctx, query, at.UTC(), cancelledBy, id)
	if err != nil {
		return fmt.Errorf("cancel signup: %w", err)
	}
	return expectOneRow(result, "cancel signup")
}

// ListActiveForUser returns the user's active signups across all shifts.
func (r *SignupRepository) ListActiveForUser(ctx context.Context, q sqlx.ExtContext, userID string) ([]models.Signup, error) {
	query := q.Rebind(fmt.Sprintf(`SELECT `+signupColumns+` FROM signups WHERE user_id = ? AND status = '%s' ORDER BY created_at ASC, id ASC`,
		models.SignupStatusActive))
	var signups []models.Signup
	if err := sqlx.SelectContext(ctx, q, &signups, query, userID); err != nil {
		return nil, fmt.Errorf("list user signups: %w", err)
	}
	return signups, nil
}

// ListParticipants returns the active roster of a shift in signup order.
func (r *SignupRepository) ListParticipants(ctx context.Context, shiftID string) ([]models.Participant, error) {
	query := r.db.Rebind(fmt.Sprintf(`SELECT sg.id AS signup_id, sg.shift_id, sg.user_id, u.email, u.display_name, sg.status, sg.created_at
	FROM signups sg
	JOIN users u ON u.id = sg.user_id
	WHERE sg.shift_id = ? AND sg.status = '%s'
	ORDER BY sg.created_at ASC, sg.id ASC`, models.SignupStatusActive))
	var participants []models.Participant
	if err := r.db.SelectContext(ctx, &participants, query, shiftID); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}
