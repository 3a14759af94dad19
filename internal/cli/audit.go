package cli

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/repository"
)

func newAuditCommand(opts *RootOptions) *cobra.Command {
	var filter models.AuditFilter
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit trail, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.OpenDB()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := repository.NewAuditRepository(db).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).audit(entries)
		},
	}
	cmd.Flags().StringVar(&filter.EntityType, "entity-type", "", "signup, shift, event or user")
	cmd.Flags().StringVar(&filter.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&filter.ActorID, "actor-id", "", "actor user id")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum entries")
	return cmd
}
