package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/engine"
	"github.com/evorbrain/evorbrain/pkg/service"
)

const workspaceHelp = `A workspace document describes life areas, goals, projects and tasks in
CUE. Nodes are matched by name among the children of their matched parent:
missing nodes are created, differing fields are updated and nothing is ever
deleted.`

// parseWorkspace parses sources and fails with every document error.
func parseWorkspace(ctx context.Context, sources []string) (*config.ParsedWorkspace, error) {
	parsed, err := config.NewCUEParser().Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return parsed, err
	}
	return parsed, nil
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Validate workspace documents",
		Long:  "Validate workspace documents against the schema without touching the database.\n\n" + workspaceHelp,
		Example: `  evorbrain validate life.cue
  evorbrain validate ./workspace`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := config.NewCUEParser().Parse(cmd.Context(), args)
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := emit(cmd, parsed, nil); err != nil {
					return err
				}
				return parsed.Err()
			}

			w := cmd.OutOrStdout()
			if len(parsed.Errors) > 0 {
				for _, e := range parsed.Errors {
					fmt.Fprintf(w, "✗ %s\n", e.String())
				}
				return parsed.Err()
			}

			counts := parsed.Workspace.Counts()
			fmt.Fprintf(w, "✓ %d file(s) valid\n", len(parsed.SourceFiles))
			for _, entity := range []domain.EntityType{domain.EntityLifeArea, domain.EntityGoal, domain.EntityProject, domain.EntityTask} {
				fmt.Fprintf(w, "  %-10s %d\n", entity, counts[entity])
			}
			return nil
		},
	}
	return cmd
}

func newPlanCommand() *cobra.Command {
	var outFile, dotFile string

	cmd := &cobra.Command{
		Use:   "plan <file-or-dir>...",
		Short: "Show what apply would change",
		Long:  "Compare workspace documents with the database and print the resulting plan.\n\n" + workspaceHelp,
		Example: `  evorbrain plan life.cue
  evorbrain plan ./workspace --out plan.json --dot plan.dot`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseWorkspace(cmd.Context(), args)
			if err != nil {
				return err
			}

			return withService(cmd.Context(), func(svc *service.Service) error {
				plan, err := buildPlan(cmd.Context(), svc, parsed)
				if err != nil {
					return err
				}
				if outFile != "" {
					if err := writeJSONFile(outFile, plan); err != nil {
						return err
					}
					log.Info().Str("file", outFile).Msg("Plan written")
				}
				if dotFile != "" {
					if err := writeDOT(dotFile, plan); err != nil {
						return err
					}
					log.Info().Str("file", dotFile).Msg("Graph written")
				}
				return emit(cmd, plan, func(w io.Writer) { printPlan(w, plan) })
			})
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan as JSON")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the execution graph in DOT format")
	return cmd
}

func newApplyCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply <file-or-dir>...",
		Short: "Create and update entities from workspace documents",
		Long: "Plan workspace documents against the database and apply the plan. Units\n" +
			"run parent first and apply stops at the first failure.\n\n" + workspaceHelp,
		Example: `  evorbrain apply life.cue
  evorbrain apply ./workspace --yes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseWorkspace(cmd.Context(), args)
			if err != nil {
				return err
			}

			return withService(cmd.Context(), func(svc *service.Service) error {
				plan, err := buildPlan(cmd.Context(), svc, parsed)
				if err != nil {
					return err
				}
				if !plan.HasChanges() {
					return emit(cmd, plan, func(w io.Writer) {
						fmt.Fprintln(w, "No changes. The database matches the workspace.")
					})
				}

				if !jsonOutput {
					printPlan(cmd.OutOrStdout(), plan)
				}
				if err := confirm(fmt.Sprintf("Apply %d change(s)?", plan.Summary.ToCreate+plan.Summary.ToUpdate), yes); err != nil {
					return err
				}

				result, applyErr := engine.NewApplier(svc, log.Logger).Apply(cmd.Context(), plan)
				if result == nil {
					return applyErr
				}
				if err := emit(cmd, result, func(w io.Writer) { printApplyResult(w, result) }); err != nil {
					return err
				}
				return applyErr
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without asking for confirmation")
	return cmd
}

func buildPlan(ctx context.Context, svc *service.Service, parsed *config.ParsedWorkspace) (*engine.Plan, error) {
	plan, err := engine.NewPlanner(svc, log.Logger).Plan(ctx, &parsed.Workspace)
	if err != nil {
		return nil, err
	}
	plan.Sources = parsed.SourceFiles
	return plan, nil
}

func printPlan(w io.Writer, plan *engine.Plan) {
	for _, level := range plan.Graph.Levels() {
		for _, id := range level {
			unit, _ := plan.Unit(id)
			if unit.Operation == engine.OperationNoop {
				continue
			}
			fmt.Fprintf(w, "%s %s %q\n", unit.Operation.Symbol(), unit.ID, unit.Name)
			for _, c := range unit.Changes {
				before := c.Before
				if before == "" {
					before = "(none)"
				}
				fmt.Fprintf(w, "    %s: %s → %s\n", c.Field, before, c.After)
			}
		}
	}
	fmt.Fprintf(w, "\nPlan: %d to create, %d to update, %d unchanged.\n",
		plan.Summary.ToCreate, plan.Summary.ToUpdate, plan.Summary.NoChange)
}

func printApplyResult(w io.Writer, result *engine.ApplyResult) {
	s := result.Summary
	fmt.Fprintf(w, "Apply %s in %s: %d created, %d updated, %d unchanged",
		result.Status, result.Duration.Round(time.Millisecond), s.Created, s.Updated, s.Unchanged)
	if s.Failed > 0 || s.Skipped > 0 {
		fmt.Fprintf(w, ", %d failed, %d skipped", s.Failed, s.Skipped)
	}
	fmt.Fprintln(w, ".")
	if result.FailedUnit != "" {
		fmt.Fprintf(w, "Failed at %s: %s\n", result.FailedUnit, result.Error)
	}
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeDOT(path string, plan *engine.Plan) error {
	builder := engine.NewDAGBuilder()
	if _, err := builder.BuildGraph(plan.Units); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(builder.ToDOT()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
