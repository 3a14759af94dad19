package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Audit actions recorded by the core.
const (
	AuditActionClaimCreate    = "claim_create"
	AuditActionClaimRevoke    = "claim_revoke"
	AuditActionShiftCreate    = "shift_create"
	AuditActionShiftUpdate    = "shift_update"
	AuditActionShiftRetire    = "shift_retire"
	AuditActionShiftExpire    = "shift_expire"
	AuditActionProposalCreate = "proposal_create"
	AuditActionProposalDecide = "proposal_decide"
	AuditActionProposalUpdate = "proposal_update"
	AuditActionProposalRetire = "proposal_retire"
	AuditActionUserRoleUpdate = "update_role"
	AuditActionUserDelete     = "delete_user"
)

// Audited entity types.
const (
	AuditEntitySignup = "signup"
	AuditEntityShift  = "shift"
	AuditEntityEvent  = "event"
	AuditEntityUser   = "user"
)

// AuditEntry is an append-only record of one committed mutation.
type AuditEntry struct {
	ID         string         `db:"id" json:"id"`
	ActorID    *string        `db:"actor_id" json:"actor_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	EntityType string         `db:"entity_type" json:"entity_type"`
	EntityID   string         `db:"entity_id" json:"entity_id"`
	Payload    types.JSONText `db:"payload" json:"payload"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// AuditFilter constrains audit trail reads.
type AuditFilter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Limit      int
	Offset     int
}
