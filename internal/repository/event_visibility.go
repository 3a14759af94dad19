package repository

import (
	"fmt"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

// Predicate is a SQL condition over the events table aliased as "e".
type Predicate struct {
	Clause string
	Args   []interface{}
}

// VisibilityFor returns the single rule deciding which proposals a caller may
// see. Anonymous callers and other members see approved rows only; members
// also see their own rows in any status; managers see every active row.
func VisibilityFor(principal *models.Principal) Predicate {
	if principal == nil {
		return Predicate{Clause: fmt.Sprintf("e.active = TRUE AND e.status = '%s'", models.EventStatusApproved)}
	}
	if principal.IsManager() {
		return Predicate{Clause: "e.active = TRUE"}
	}
	return Predicate{
		Clause: fmt.Sprintf("e.active = TRUE AND (e.status = '%s' OR e.created_by = ?)", models.EventStatusApproved),
		Args:   []interface{}{principal.UserID},
	}
}

// ShiftVisibilityFor scopes shift reads over "shifts s LEFT JOIN events e".
// Unlinked shifts are public; a linked shift is visible only when its proposal
// is visible under VisibilityFor. Managers see every active shift, including
// those linked to a retired proposal, so they can still manage the roster.
func ShiftVisibilityFor(principal *models.Principal) Predicate {
	if principal.IsManager() {
		return Predicate{Clause: "TRUE"}
	}
	events := VisibilityFor(principal)
	return Predicate{
		Clause: "(s.event_id IS NULL OR (" + events.Clause + "))",
		Args:   events.Args,
	}
}
