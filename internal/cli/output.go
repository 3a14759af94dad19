package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/noah-isme/shiftboard-api/internal/models"
)

type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) printer {
	return printer{format: opts.Format, w: w}
}

func (p printer) json(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) seed(result *SeedResult) error {
	if p.format == "json" {
		return p.json(result)
	}
	_, err := fmt.Fprintf(p.w, "users upserted: %d\nshifts created: %d\nshifts skipped: %d\n",
		result.Users, result.ShiftsCreated, result.ShiftsSkipped)
	return err
}

func (p printer) audit(entries []models.AuditEntry) error {
	if p.format == "json" {
		if entries == nil {
			entries = []models.AuditEntry{}
		}
		return p.json(entries)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tENTITY\tPAYLOAD")
	for _, e := range entries {
		actor := "system"
		if e.ActorID != nil {
			actor = *e.ActorID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), actor, e.Action, e.EntityType, e.EntityID, string(e.Payload))
	}
	return tw.Flush()
}
