package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

const userColumns = `id, email, display_name, role, active, created_at`

// UserRepository persists accounts. Accounts are deactivated, never deleted,
// so signup history keeps its foreign keys.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ListActiveByRole returns active users holding role, ordered by email.
func (r *UserRepository) ListActiveByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE role = ? AND active = TRUE ORDER BY email ASC`)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, role); err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return users, nil
}

// Upsert inserts a user or refreshes the mutable columns of an existing one.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO users (id, email, display_name, role, active, created_at)
	VALUES (:id, :email, :display_name, :role, :active, :created_at)
	ON CONFLICT (id) DO UPDATE SET email = excluded.email, display_name = excluded.display_name,
	role = excluded.role, active = excluded.active`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// List returns accounts ordered by email.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 2)
	builder.WriteString(`SELECT ` + userColumns + ` FROM users WHERE 1 = 1`)
	if filter.Role != nil {
		args = append(args, *filter.Role)
		builder.WriteString(" AND role = ?")
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		builder.WriteString(" AND active = ?")
	}
	builder.WriteString(" ORDER BY email ASC, id ASC")

	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(builder.String()), args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetForUpdate loads an account inside the caller's transaction and holds its
// row lock until commit.
func (r *UserRepository) GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*models.User, error) {
	query := q.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?` + forUpdate(q))
	var user models.User
	if err := sqlx.GetContext(ctx, q, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return &user, nil
}

// IsActive reports whether id names an active account. A missing row is
// reported as inactive.
func (r *UserRepository) IsActive(ctx context.Context, q sqlx.ExtContext, id string) (bool, error) {
	query := q.Rebind(`SELECT COUNT(*) FROM users WHERE id = ? AND active = TRUE`)
	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, id); err != nil {
		return false, fmt.Errorf("check active user: %w", err)
	}
	return count > 0, nil
}

// UpdateRole changes the role of an active account.
func (r *UserRepository) UpdateRole(ctx context.Context, q sqlx.ExtContext, id string, role models.Role) error {
	query := q.Rebind(`UPDATE users SET role = ? WHERE id = ? AND active = TRUE`)
	result, err := q.ExecContext(ctx, query, role, id)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return expectOneRow(result, "update user role")
}

// Deactivate marks an active account as removed.
func (r *UserRepository) Deactivate(ctx context.Context, q sqlx.ExtContext, id string) error {
	query := q.Rebind(`UPDATE users SET active = FALSE WHERE id = ? AND active = TRUE`)
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return expectOneRow(result, "deactivate user")
}
