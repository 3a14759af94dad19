package dto

// AuditQuery mirrors the audit trail filters.
type AuditQuery struct {
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
	ActorID    string `form:"actor_id"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}
