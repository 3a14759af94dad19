package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

// AuditRepository appends to and reads the audit trail. Rows are never updated.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one entry using the caller's transaction handle.
func (r *AuditRepository) Append(ctx context.Context, q sqlx.ExtContext, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Payload) == 0 {
		entry.Payload = []byte("{}")
	}

	query := q.Rebind(`INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, payload, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := q.ExecContext(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, string(entry.Payload), entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT id, actor_id, action, entity_type, entity_id, payload, created_at FROM audit_logs`)

	conditions := make([]string, 0, 3)
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conditions = append(conditions, "entity_type = ?")
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		conditions = append(conditions, "entity_id = ?")
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, "actor_id = ?")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id DESC")

	limit, offset := page(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(builder.String()), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
