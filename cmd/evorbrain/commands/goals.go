package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newGoalsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "goals",
		Aliases: []string{"goal"},
		Short:   "Manage goals",
		Long: `Goals are outcomes pursued within a life area. A goal's progress is the
average progress of its projects.`,
	}

	cmd.AddCommand(
		newGoalsListCommand(),
		newGoalsGetCommand(),
		newGoalsCreateCommand(),
		newGoalsUpdateCommand(),
		newGoalsDeleteCommand(),
		newGoalsProgressCommand(),
	)
	return cmd
}

func printGoals(cmd *cobra.Command, goals []domain.Goal) error {
	return emit(cmd, goals, func(w io.Writer) {
		rows := make([][]string, 0, len(goals))
		for _, g := range goals {
			rows = append(rows, []string{g.ID, g.Name, string(g.Status), fmtProgress(g.Progress), fmtDate(g.TargetDate)})
		}
		printTable(w, "No goals found.", []string{"ID", "NAME", "STATUS", "PROGRESS", "TARGET"}, rows)
	})
}

func printGoal(cmd *cobra.Command, goal *domain.Goal) error {
	return emit(cmd, goal, func(w io.Writer) {
		printFields(w, [][2]string{
			{"ID", goal.ID},
			{"Life area", goal.LifeAreaID},
			{"Name", goal.Name},
			{"Description", orDash(goal.Description)},
			{"Status", string(goal.Status)},
			{"Progress", fmtProgress(goal.Progress)},
			{"Target", fmtDate(goal.TargetDate)},
			{"Completed", fmtDateTime(goal.CompletedAt)},
			{"Created", fmtDateTime(&goal.CreatedAt)},
		})
	})
}

func newGoalsListCommand() *cobra.Command {
	var areaID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				var (
					goals []domain.Goal
					err   error
				)
				if areaID != "" {
					goals, err = svc.ListGoalsByLifeArea(cmd.Context(), areaID)
				} else {
					goals, err = svc.ListGoals(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printGoals(cmd, goals)
			})
		},
	}
	cmd.Flags().StringVar(&areaID, "area", "", "only goals of this life area")
	return cmd
}

func newGoalsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				goal, err := svc.GetGoal(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printGoal(cmd, goal)
			})
		},
	}
}

func newGoalsCreateCommand() *cobra.Command {
	var areaID, target string
	cmd := &cobra.Command{
		Use:     "create <name>",
		Short:   "Create a goal in a life area",
		Example: `  evorbrain goals create "Run a marathon" --area <life-area-id> --target 2026-10-01`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDate, err := parseDate("target", target, false)
			if err != nil {
				return err
			}
			req := domain.CreateGoalRequest{
				LifeAreaID:  areaID,
				Name:        args[0],
				Description: optionalString(cmd, "description"),
				TargetDate:  targetDate,
			}
			if s := optionalString(cmd, "status"); s != nil {
				status := domain.GoalStatus(*s)
				req.Status = &status
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				goal, err := svc.CreateGoal(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printGoal(cmd, goal)
			})
		},
	}
	cmd.Flags().StringVar(&areaID, "area", "", "life area ID")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().StringVar(&target, "target", "", "target date (YYYY-MM-DD)")
	cmd.Flags().String("status", "", "active, paused, completed or cancelled")
	_ = cmd.MarkFlagRequired("area")
	return cmd
}

func newGoalsUpdateCommand() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDate, err := parseDate("target", target, false)
			if err != nil {
				return err
			}
			req := domain.UpdateGoalRequest{
				LifeAreaID:  optionalString(cmd, "area"),
				Name:        optionalString(cmd, "name"),
				Description: optionalString(cmd, "description"),
				TargetDate:  targetDate,
				Progress:    optionalInt(cmd, "progress"),
			}
			if s := optionalString(cmd, "status"); s != nil {
				status := domain.GoalStatus(*s)
				req.Status = &status
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				goal, err := svc.UpdateGoal(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return printGoal(cmd, goal)
			})
		},
	}
	cmd.Flags().String("area", "", "move to this life area")
	cmd.Flags().String("name", "", "new name")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().StringVar(&target, "target", "", "new target date (YYYY-MM-DD)")
	cmd.Flags().String("status", "", "active, paused, completed or cancelled")
	cmd.Flags().Int("progress", 0, "progress override (0-100)")
	return cmd
}

func newGoalsDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a goal without projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Delete goal %s?", args[0]), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if err := svc.DeleteGoal(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printDeleted(cmd, domain.EntityGoal, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newGoalsProgressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id>",
		Short: "Recompute a goal's progress from its projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				goal, err := svc.UpdateGoalProgress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printGoal(cmd, goal)
			})
		},
	}
}
