package cli

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/noah-isme/shiftboard-api/pkg/config"
	"github.com/noah-isme/shiftboard-api/pkg/database"
)

// RootOptions holds global flags and the store opener shared by subcommands.
type RootOptions struct {
	Format string // "text" | "json"

	// OpenDB connects to the configured store. Tests replace it.
	OpenDB func() (*sqlx.DB, error)
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the shiftctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{OpenDB: openConfiguredDB})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shiftctl",
		Short:         "Shiftboard maintenance tool",
		Long:          "Applies the schema, loads fixtures and prints the audit trail using the same configuration as the API server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	return cmd
}

func openConfiguredDB() (*sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return database.New(cfg.Database)
}
