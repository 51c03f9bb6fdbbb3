package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/registrar/internal/app"
	"github.com/alem-hub/registrar/internal/application/command"
	"github.com/alem-hub/registrar/internal/domain/access"
)

// importFlags are common to the three import subcommands.
type importFlags struct {
	actorID string
	file    string
	runID   string
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.actorID, "actor", "", "Actor id the import runs as (required)")
	cmd.Flags().StringVar(&f.file, "file", "", "Path to the .xlsx workbook (required)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run id for logs and the stored report (generated when empty)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("file")
}

// prepare reads the workbook, wires the application and loads the actor.
func (f *importFlags) prepare(cmd *cobra.Command, g *globalFlags) (*app.App, access.Actor, []byte, error) {
	data, err := os.ReadFile(f.file)
	if err != nil {
		return nil, access.Actor{}, nil, fmt.Errorf("read %s: %w", f.file, err)
	}

	a, err := g.open(cmd)
	if err != nil {
		return nil, access.Actor{}, nil, err
	}

	actor, err := a.Actors.GetByID(cmd.Context(), f.actorID)
	if err != nil {
		a.Close()
		return nil, access.Actor{}, nil, fmt.Errorf("actor %q: %w", f.actorID, err)
	}
	return a, *actor, data, nil
}

func newEnrollmentsCmd(g *globalFlags) *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "enrollments",
		Short: "Reconcile an enrollment workbook and print the per-row report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actor, data, err := f.prepare(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			res, err := a.ImportEnrollments.Handle(cmd.Context(), command.ImportEnrollmentsCommand{
				Actor: actor,
				File:  data,
				RunID: f.runID,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "enrollments",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     res,
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newDivisionsCmd(g *globalFlags) *cobra.Command {
	var regulationID int64
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "divisions",
		Short: "Create divisions from a workbook under one regulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actor, data, err := f.prepare(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			res, err := a.ImportDivisions.Handle(cmd.Context(), command.ImportDivisionsCommand{
				Actor:        actor,
				File:         data,
				RegulationID: regulationID,
				RunID:        f.runID,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "divisions",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     res,
			})
		},
	}
	f.register(cmd)
	cmd.Flags().Int64Var(&regulationID, "regulation", 0, "Regulation id the divisions belong to (required)")
	_ = cmd.MarkFlagRequired("regulation")
	return cmd
}

func newCoursesCmd(g *globalFlags) *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "Create courses from a workbook, each linked to its division",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actor, data, err := f.prepare(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			res, err := a.ImportCourses.Handle(cmd.Context(), command.ImportCoursesCommand{
				Actor: actor,
				File:  data,
				RunID: f.runID,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "courses",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     res,
			})
		},
	}
	f.register(cmd)
	return cmd
}
