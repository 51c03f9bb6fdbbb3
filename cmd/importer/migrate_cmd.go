package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/registrar/internal/app"
	"github.com/alem-hub/registrar/internal/infrastructure/persistence/postgres"
)

type migrationStatus struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	var (
		down   bool
		status bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations (or roll back the latest with --down)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}

			conn, err := app.ConnectPostgres(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer conn.Close()

			m := postgres.NewMigrator(conn)
			start := time.Now()
			name := "migrate up"

			switch {
			case status:
				name = "migrate status"
			case down:
				name = "migrate down"
				err = m.Rollback(cmd.Context())
			default:
				err = m.Migrate(cmd.Context())
			}
			if err != nil {
				return err
			}

			migrations, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]migrationStatus, 0, len(migrations))
			for _, mg := range migrations {
				s := migrationStatus{Version: mg.Version, Name: mg.Name, Applied: mg.IsApplied}
				if mg.IsApplied {
					at := mg.AppliedAt
					s.AppliedAt = &at
				}
				out = append(out, s)
			}

			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    name,
				DurationMS: time.Since(start).Milliseconds(),
				Result:     out,
			})
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "Only print migration status")
	cmd.MarkFlagsMutuallyExclusive("down", "status")
	return cmd
}
