package main

import (
	"github.com/spf13/cobra"

	"github.com/alem-hub/registrar/config"
	"github.com/alem-hub/registrar/internal/app"
	"github.com/alem-hub/registrar/pkg/logger"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "registrar-import",
		Short:         "Import academic records workbooks and manage the schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", config.DefaultEnvFiles, "Env files loaded before the environment (missing files are skipped)")

	cmd.AddCommand(
		newMigrateCmd(g),
		newEnrollmentsCmd(g),
		newDivisionsCmd(g),
		newCoursesCmd(g),
	)
	return cmd
}

// load reads configuration and builds a logger writing to stderr, so stdout
// carries only the JSON result.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFrom(g.envFiles...)
	if err != nil {
		return nil, nil, err
	}

	opts := logger.DefaultOptions()
	opts.Output = cmd.ErrOrStderr()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	log := logger.New(opts).With(logger.String("service", "registrar-import"))
	return cfg, log, nil
}

// open wires the full application for an import subcommand.
func (g *globalFlags) open(cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, log, app.Options{SyncEvents: true})
}
