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

const eventColumns = `e.id, e.title, e.description, e.visibility, e.start_time, e.end_time, e.created_by, e.status,
       e.decided_by, e.decided_at, e.decision_notes, e.active, e.created_at, e.updated_at`

// EventRepository persists event proposals. Every read goes through a
// visibility Predicate.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a pending proposal.
func (r *EventRepository) Create(ctx context.Context, q sqlx.ExtContext, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt
	event.Status = models.EventStatusPending
	event.Active = true

	const query = `INSERT INTO events
	(id, title, description, visibility, start_time, end_time, created_by, status, active, created_at, updated_at)
	VALUES (:id, :title, :description, :visibility, :start_time, :end_time, :created_by, :status, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Get returns a proposal visible under pred, joined with its creator's name.
func (r *EventRepository) Get(ctx context.Context, id string, pred Predicate) (*models.Event, error) {
	query := r.db.Rebind(`SELECT ` + eventColumns + `, u.display_name AS creator_name
	FROM events e LEFT JOIN users u ON u.id = e.created_by
	WHERE e.id = ? AND ` + pred.Clause)
	args := append([]interface{}{id}, pred.Args...)

	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// GetForUpdate resolves a proposal through pred inside the caller's
// transaction and locks the row until commit.
func (r *EventRepository) GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string, pred Predicate) (*models.Event, error) {
	query := q.Rebind(`SELECT ` + eventColumns + ` FROM events e WHERE e.id = ? AND ` + pred.Clause + forUpdate(q))
	args := append([]interface{}{id}, pred.Args...)

	var event models.Event
	if err := sqlx.GetContext(ctx, q, &event, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	return &event, nil
}

// List returns proposals visible under pred, newest first.
func (r *EventRepository) List(ctx context.Context, pred Predicate, filter models.EventFilter) ([]models.Event, error) {
	builder := strings.Builder{}
	args := append([]interface{}{}, pred.Args...)
	builder.WriteString(`SELECT ` + eventColumns + `, u.display_name AS creator_name
	FROM events e LEFT JOIN users u ON u.id = e.created_by WHERE ` + pred.Clause)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = "?"
		}
		builder.WriteString(fmt.Sprintf(" AND e.status IN (%s)", strings.Join(placeholders, ",")))
	}
	builder.WriteString(" ORDER BY e.start_time ASC, e.id ASC")

	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(builder.String()), args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// DecideEventParams carries a terminal review outcome.
type DecideEventParams struct {
	ID        string
	Status    models.EventStatus
	DecidedBy string
	DecidedAt time.Time
	Notes     *string
}

// Decide moves a pending, active proposal to a terminal status. It returns
// sql.ErrNoRows when the proposal is no longer pending.
func (r *EventRepository) Decide(ctx context.Context, q sqlx.ExtContext, params DecideEventParams) error {
	query := q.Rebind(fmt.Sprintf(`UPDATE events SET status = ?, decided_by = ?, decided_at = ?, decision_notes = ?, updated_at = ?
	WHERE id = ? AND status = '%s' AND active = TRUE`, models.EventStatusPending))
	result, err := q.ExecContext(ctx, query,
		params.Status, params.DecidedBy, params.DecidedAt.UTC(), params.Notes, params.DecidedAt.UTC(), params.ID)
	if err != nil {
		return fmt.Errorf("decide event: %w", err)
	}
	return expectOneRow(result, "decide event")
}

// UpdateDetails writes the descriptive columns only; status and decision
// columns are never touched here.
func (r *EventRepository) UpdateDetails(ctx context.Context, q sqlx.ExtContext, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, description = :description, visibility = :visibility,
	start_time = :start_time, end_time = :end_time, updated_at = :updated_at
	WHERE id = :id AND active = TRUE`
	result, err := sqlx.NamedExecContext(ctx, q, query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return expectOneRow(result, "update event")
}

// Retire soft-deletes an active proposal.
func (r *EventRepository) Retire(ctx context.Context, q sqlx.ExtContext, id string, at time.Time) error {
	query := q.Rebind(`UPDATE events SET active = FALSE, updated_at = ? WHERE id = ? AND active = TRUE`)
	result, err := q.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("retire event: %w", err)
	}
	return expectOneRow(result, "retire event")
}
