package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newProjectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Manage projects",
		Long: `Projects group the tasks that advance a goal. A project's progress is the
share of its tasks that are completed.`,
	}

	cmd.AddCommand(
		newProjectsListCommand(),
		newProjectsGetCommand(),
		newProjectsCreateCommand(),
		newProjectsUpdateCommand(),
		newProjectsDeleteCommand(),
		newProjectsProgressCommand(),
		newProjectsArchiveCommand(),
	)
	return cmd
}

func printProjects(cmd *cobra.Command, projects []domain.Project) error {
	return emit(cmd, projects, func(w io.Writer) {
		rows := make([][]string, 0, len(projects))
		for _, p := range projects {
			rows = append(rows, []string{p.ID, p.Name, string(p.Status), fmtProgress(p.Progress), fmtDate(p.DueDate)})
		}
		printTable(w, "No projects found.", []string{"ID", "NAME", "STATUS", "PROGRESS", "DUE"}, rows)
	})
}

func printProject(cmd *cobra.Command, project *domain.Project) error {
	return emit(cmd, project, func(w io.Writer) {
		printFields(w, [][2]string{
			{"ID", project.ID},
			{"Goal", project.GoalID},
			{"Name", project.Name},
			{"Description", orDash(project.Description)},
			{"Status", string(project.Status)},
			{"Progress", fmtProgress(project.Progress)},
			{"Start", fmtDate(project.StartDate)},
			{"Due", fmtDate(project.DueDate)},
			{"Completed", fmtDateTime(project.CompletedAt)},
			{"Archived", fmtDateTime(project.ArchivedAt)},
		})
	})
}

func newProjectsListCommand() *cobra.Command {
	var goalID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				var (
					projects []domain.Project
					err      error
				)
				if goalID != "" {
					projects, err = svc.ListProjectsByGoal(cmd.Context(), goalID)
				} else {
					projects, err = svc.ListProjects(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printProjects(cmd, projects)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "only projects of this goal")
	return cmd
}

func newProjectsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				project, err := svc.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printProject(cmd, project)
			})
		},
	}
}

// projectDates parses the --start and --due flags.
func projectDates(start, due string) (*domain.Project, error) {
	startDate, err := parseDate("start", start, false)
	if err != nil {
		return nil, err
	}
	dueDate, err := parseDate("due", due, true)
	if err != nil {
		return nil, err
	}
	return &domain.Project{StartDate: startDate, DueDate: dueDate}, nil
}

func newProjectsCreateCommand() *cobra.Command {
	var goalID, start, due string
	cmd := &cobra.Command{
		Use:     "create <name>",
		Short:   "Create a project under a goal",
		Example: `  evorbrain projects create "Training plan" --goal <goal-id> --start 2026-06-01 --due 2026-09-30`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dates, err := projectDates(start, due)
			if err != nil {
				return err
			}
			req := domain.CreateProjectRequest{
				GoalID:      goalID,
				Name:        args[0],
				Description: optionalString(cmd, "description"),
				StartDate:   dates.StartDate,
				DueDate:     dates.DueDate,
			}
			if s := optionalString(cmd, "status"); s != nil {
				status := domain.ProjectStatus(*s)
				req.Status = &status
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				project, err := svc.CreateProject(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printProject(cmd, project)
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal ID")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().String("status", "", "planning, active, on_hold, completed or cancelled")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func newProjectsUpdateCommand() *cobra.Command {
	var start, due string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dates, err := projectDates(start, due)
			if err != nil {
				return err
			}
			req := domain.UpdateProjectRequest{
				GoalID:      optionalString(cmd, "goal"),
				Name:        optionalString(cmd, "name"),
				Description: optionalString(cmd, "description"),
				StartDate:   dates.StartDate,
				DueDate:     dates.DueDate,
				Progress:    optionalInt(cmd, "progress"),
			}
			if s := optionalString(cmd, "status"); s != nil {
				status := domain.ProjectStatus(*s)
				req.Status = &status
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				project, err := svc.UpdateProject(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return printProject(cmd, project)
			})
		},
	}
	cmd.Flags().String("goal", "", "move to this goal")
	cmd.Flags().String("name", "", "new name")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().StringVar(&start, "start", "", "new start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&due, "due", "", "new due date (YYYY-MM-DD)")
	cmd.Flags().String("status", "", "planning, active, on_hold, completed or cancelled")
	cmd.Flags().Int("progress", 0, "progress override (0-100)")
	return cmd
}

func newProjectsDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project without tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Delete project %s?", args[0]), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if err := svc.DeleteProject(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printDeleted(cmd, domain.EntityProject, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newProjectsProgressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id>",
		Short: "Recompute a project's progress from its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				project, err := svc.UpdateProjectProgress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printProject(cmd, project)
			})
		},
	}
}

func newProjectsArchiveCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a project with its tasks and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Archive project %s and everything under it?", args[0]), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				result, err := svc.ArchiveProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printResult(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
