package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/shiftboard-api/internal/dto"
	"github.com/noah-isme/shiftboard-api/internal/models"
	appErrors "github.com/noah-isme/shiftboard-api/pkg/errors"
)

type auditStore interface {
	Append(ctx context.Context, q sqlx.ExtContext, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// AuditInput describes one committed mutation. A nil Actor marks a system job.
type AuditInput struct {
	Actor      *models.Principal
	Action     string
	EntityType string
	EntityID   string
	Payload    interface{}
}

// Change is the conventional before/after audit payload.
type Change struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// AuditRecorder appends audit entries inside the caller's transaction.
type AuditRecorder struct {
	repo   auditStore
	logger *zap.Logger
}

// NewAuditRecorder constructs the recorder.
func NewAuditRecorder(repo auditStore, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{repo: repo, logger: logger}
}

// Record writes one entry with q. An error here must abort the enclosing
// transaction so the mutation is never committed without its trail.
func (r *AuditRecorder) Record(ctx context.Context, q sqlx.ExtContext, in AuditInput) error {
	payload := types.JSONText("{}")
	if in.Payload != nil {
		raw, err := json.Marshal(in.Payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload for %s: %w", in.Action, err)
		}
		payload = types.JSONText(raw)
	}

	entry := &models.AuditEntry{
		ActorID:    in.Actor.ActorID(),
		Action:     in.Action,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Payload:    payload,
	}
	if err := r.repo.Append(ctx, q, entry); err != nil {
		return fmt.Errorf("record %s audit for %s %s: %w", in.Action, in.EntityType, in.EntityID, err)
	}
	return nil
}

// List returns the audit trail. Managers only.
func (r *AuditRecorder) List(ctx context.Context, query dto.AuditQuery, principal *models.Principal) ([]models.AuditEntry, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !principal.IsManager() {
		return nil, appErrors.ErrForbidden
	}
	entries, err := r.repo.List(ctx, models.AuditFilter{
		EntityType: query.EntityType,
		EntityID:   query.EntityID,
		ActorID:    query.ActorID,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries")
	}
	return entries, nil
}
