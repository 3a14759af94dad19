package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/shiftboard-api/internal/models"
	"github.com/noah-isme/shiftboard-api/internal/repository"
	"github.com/noah-isme/shiftboard-api/internal/service"
	"github.com/noah-isme/shiftboard-api/pkg/database"
)

// Fixtures is the seed file layout.
type Fixtures struct {
	Users  []models.User  `yaml:"users"`
	Shifts []ShiftFixture `yaml:"shifts"`
}

// ShiftFixture describes one shift to create if missing.
type ShiftFixture struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Location    string    `yaml:"location"`
	StartTime   time.Time `yaml:"start_time"`
	EndTime     time.Time `yaml:"end_time"`
	Capacity    int       `yaml:"capacity"`
}

// SeedResult summarises a seed run.
type SeedResult struct {
	Users         int `json:"users"`
	ShiftsCreated int `json:"shifts_created"`
	ShiftsSkipped int `json:"shifts_skipped"`
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed --file fixtures.yaml",
		Short: "Load users and shifts from a YAML fixture file",
		Long: `Upserts users and creates shifts that do not exist yet. Shifts with an id
already present are left untouched, so the command can be re-run safely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open fixtures: %w", err)
			}
			defer f.Close()

			fixtures, err := ParseFixtures(f)
			if err != nil {
				return err
			}

			db, err := opts.OpenDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(db); err != nil {
				return err
			}

			result, err := Seed(cmd.Context(), db, fixtures)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd.OutOrStdout()).seed(result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// ParseFixtures decodes and validates a fixture document. Unknown keys are rejected.
func ParseFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fixtures Fixtures
	if err := dec.Decode(&fixtures); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	for i, u := range fixtures.Users {
		if u.ID == "" || u.Email == "" {
			return nil, fmt.Errorf("users[%d]: id and email are required", i)
		}
		role, err := models.ParseRole(string(u.Role))
		if err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		fixtures.Users[i].Role = role
	}
	for i, s := range fixtures.Shifts {
		switch {
		case s.Title == "":
			return nil, fmt.Errorf("shifts[%d]: title is required", i)
		case s.Capacity < 1:
			return nil, fmt.Errorf("shifts[%d]: capacity must be at least 1", i)
		case !s.EndTime.After(s.StartTime):
			return nil, fmt.Errorf("shifts[%d]: end_time must be after start_time", i)
		}
	}
	return &fixtures, nil
}

// Seed writes fixtures in a single transaction. Created shifts are audited
// with no actor.
func Seed(ctx context.Context, db *sqlx.DB, fixtures *Fixtures) (*SeedResult, error) {
	users := repository.NewUserRepository(db)
	shifts := repository.NewShiftRepository(db)
	recorder := service.NewAuditRecorder(repository.NewAuditRepository(db), nil)

	result := &SeedResult{}
	for i := range fixtures.Users {
		if err := users.Upsert(ctx, &fixtures.Users[i]); err != nil {
			return nil, err
		}
		result.Users++
	}

	err := repository.NewTxManager(db).WithinTx(ctx, func(q sqlx.ExtContext) error {
		for _, fx := range fixtures.Shifts {
			if fx.ID != "" {
				_, err := shifts.GetForUpdate(ctx, q, fx.ID)
				if err == nil {
					result.ShiftsSkipped++
					continue
				}
				if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
			}

			shift := &models.Shift{
				ID:          fx.ID,
				Title:       fx.Title,
				Description: optional(fx.Description),
				Location:    optional(fx.Location),
				StartTime:   fx.StartTime.UTC(),
				EndTime:     fx.EndTime.UTC(),
				Capacity:    fx.Capacity,
			}
			if err := shifts.Create(ctx, q, shift); err != nil {
				return err
			}
			if err := recorder.Record(ctx, q, service.AuditInput{
				Action:     models.AuditActionShiftCreate,
				EntityType: models.AuditEntityShift,
				EntityID:   shift.ID,
				Payload:    service.Change{After: shift},
			}); err != nil {
				return err
			}
			result.ShiftsCreated++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed shifts: %w", err)
	}
	return result, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
