package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage tasks",
		Long: `Tasks are units of work inside a project. Tasks without a project live in
the inbox; a task may have one level of subtasks.`,
	}

	cmd.AddCommand(
		newTasksListCommand(),
		newTasksGetCommand(),
		newTasksCreateCommand(),
		newTasksUpdateCommand(),
		newTasksDeleteCommand(),
		newTasksToggleCommand(),
		newTasksTodayCommand(),
		newTasksOverdueCommand(),
		newTasksBulkCommand(),
		newTasksFilterCommand(),
		newTasksTagCommand(),
		newTasksUntagCommand(),
	)
	return cmd
}

func printTasks(cmd *cobra.Command, tasks []domain.Task) error {
	return emit(cmd, tasks, func(w io.Writer) {
		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			name := t.Name
			if t.ParentTaskID != nil {
				name = "  " + name
			}
			rows = append(rows, []string{
				t.ID, name, string(t.Status), string(t.Priority), fmtDate(t.DueDate), strings.Join(t.Tags, ","),
			})
		}
		printTable(w, "No tasks found.", []string{"ID", "NAME", "STATUS", "PRIORITY", "DUE", "TAGS"}, rows)
	})
}

func printTask(cmd *cobra.Command, task *domain.Task) error {
	return emit(cmd, task, func(w io.Writer) {
		tags := "-"
		if len(task.Tags) > 0 {
			tags = strings.Join(task.Tags, ", ")
		}
		printFields(w, [][2]string{
			{"ID", task.ID},
			{"Project", orDash(task.ProjectID)},
			{"Parent", orDash(task.ParentTaskID)},
			{"Name", task.Name},
			{"Description", orDash(task.Description)},
			{"Status", string(task.Status)},
			{"Priority", string(task.Priority)},
			{"Due", fmtDateTime(task.DueDate)},
			{"Estimate", fmtMinutes(task.EstimatedMinutes)},
			{"Actual", fmtMinutes(task.ActualMinutes)},
			{"Recurrence", orDash(task.RecurrenceRule)},
			{"Tags", tags},
			{"Completed", fmtDateTime(task.CompletedAt)},
		})
	})
}

func newTasksListCommand() *cobra.Command {
	var projectID, parentID, where string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Example: `  evorbrain tasks list --project <project-id>
  evorbrain tasks list --where 'rank <= 1 and not overdue'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				var (
					tasks []domain.Task
					err   error
				)
				switch {
				case where != "":
					tasks, err = svc.FilterTasks(cmd.Context(), where)
				case parentID != "":
					tasks, err = svc.ListSubtasks(cmd.Context(), parentID)
				case projectID != "":
					tasks, err = svc.ListTasksByProject(cmd.Context(), projectID)
				default:
					tasks, err = svc.ListTasks(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printTasks(cmd, tasks)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "only tasks of this project")
	cmd.Flags().StringVar(&parentID, "parent", "", "only subtasks of this task")
	cmd.Flags().StringVar(&where, "where", "", "filter expression (see 'tasks filter')")
	cmd.MarkFlagsMutuallyExclusive("project", "parent", "where")
	return cmd
}

func newTasksGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				task, err := svc.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTask(cmd, task)
			})
		},
	}
}

func priorityFlag(cmd *cobra.Command) *domain.TaskPriority {
	s := optionalString(cmd, "priority")
	if s == nil {
		return nil
	}
	p := domain.TaskPriority(*s)
	return &p
}

func statusFlag(cmd *cobra.Command) *domain.TaskStatus {
	s := optionalString(cmd, "status")
	if s == nil {
		return nil
	}
	st := domain.TaskStatus(*s)
	return &st
}

func newTasksCreateCommand() *cobra.Command {
	var (
		due      string
		tags     []string
		subtasks []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a task",
		Example: `  evorbrain tasks create "Book physio" --project <project-id> --priority high --due 2026-06-20
  evorbrain tasks create "Plan trip" --subtask "Flights" --subtask "Hotel"
  evorbrain tasks create "Weekly review" --recur "FREQ=WEEKLY;BYDAY=SU" --tag routine`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := parseDate("due", due, true)
			if err != nil {
				return err
			}
			req := domain.CreateTaskRequest{
				ProjectID:        optionalString(cmd, "project"),
				ParentTaskID:     optionalString(cmd, "parent"),
				Name:             args[0],
				Description:      optionalString(cmd, "description"),
				Priority:         priorityFlag(cmd),
				DueDate:          dueDate,
				EstimatedMinutes: optionalInt(cmd, "estimate"),
				RecurrenceRule:   optionalString(cmd, "recur"),
				Tags:             tags,
			}

			return withService(cmd.Context(), func(svc *service.Service) error {
				var task *domain.Task
				if len(subtasks) > 0 {
					withSubtasks := domain.CreateTaskWithSubtasksRequest{Task: req}
					for _, name := range subtasks {
						withSubtasks.Subtasks = append(withSubtasks.Subtasks, domain.CreateTaskRequest{Name: name})
					}
					task, err = svc.CreateTaskWithSubtasks(cmd.Context(), withSubtasks)
				} else {
					task, err = svc.CreateTask(cmd.Context(), req)
				}
				if err != nil {
					return err
				}
				return printTask(cmd, task)
			})
		},
	}
	cmd.Flags().String("project", "", "project ID (omit for the inbox)")
	cmd.Flags().String("parent", "", "parent task ID")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().String("priority", "", "low, medium, high or urgent")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().Int("estimate", 0, "estimated minutes")
	cmd.Flags().String("recur", "", "recurrence rule (RFC 5545 RRULE)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag name (repeatable)")
	cmd.Flags().StringArrayVar(&subtasks, "subtask", nil, "subtask name (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("parent", "subtask")
	return cmd
}

func newTasksUpdateCommand() *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := parseDate("due", due, true)
			if err != nil {
				return err
			}
			req := domain.UpdateTaskRequest{
				ProjectID:        optionalString(cmd, "project"),
				Name:             optionalString(cmd, "name"),
				Description:      optionalString(cmd, "description"),
				Priority:         priorityFlag(cmd),
				Status:           statusFlag(cmd),
				DueDate:          dueDate,
				EstimatedMinutes: optionalInt(cmd, "estimate"),
				ActualMinutes:    optionalInt(cmd, "actual"),
				RecurrenceRule:   optionalString(cmd, "recur"),
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				task, err := svc.UpdateTask(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return printTask(cmd, task)
			})
		},
	}
	cmd.Flags().String("project", "", "move to this project")
	cmd.Flags().String("name", "", "new name")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().String("priority", "", "low, medium, high or urgent")
	cmd.Flags().String("status", "", "todo, in_progress, completed or cancelled")
	cmd.Flags().StringVar(&due, "due", "", "new due date")
	cmd.Flags().Int("estimate", 0, "estimated minutes")
	cmd.Flags().Int("actual", 0, "actual minutes spent")
	cmd.Flags().String("recur", "", "recurrence rule")
	return cmd
}

func newTasksDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Delete task %s?", args[0]), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if err := svc.DeleteTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printDeleted(cmd, domain.EntityTask, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newTasksToggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a task completed, or reopen a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				task, err := svc.ToggleTaskComplete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTask(cmd, task)
			})
		},
	}
}

func newTasksTodayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "List open tasks due today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				tasks, err := svc.ListTasksDueToday(cmd.Context())
				if err != nil {
					return err
				}
				return printTasks(cmd, tasks)
			})
		},
	}
}

func newTasksOverdueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open tasks past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				tasks, err := svc.ListOverdueTasks(cmd.Context())
				if err != nil {
					return err
				}
				return printTasks(cmd, tasks)
			})
		},
	}
}

func newTasksBulkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bulk <id>...",
		Short:   "Apply the same change to many tasks",
		Example: `  evorbrain tasks bulk <id1> <id2> --status completed`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.BulkUpdateTasksRequest{
				TaskIDs:   args,
				ProjectID: optionalString(cmd, "project"),
				Status:    statusFlag(cmd),
				Priority:  priorityFlag(cmd),
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				result, err := svc.BulkUpdateTasks(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printResult(cmd, result)
			})
		},
	}
	cmd.Flags().String("project", "", "move to this project")
	cmd.Flags().String("status", "", "todo, in_progress, completed or cancelled")
	cmd.Flags().String("priority", "", "low, medium, high or urgent")
	return cmd
}

func newTasksFilterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "filter <expression>",
		Short: "List tasks matching a filter expression",
		Long: `List tasks matching a Starlark boolean expression evaluated per task.

Available names: name, status, priority, rank (0 urgent .. 3 low), due and
now (Unix seconds, due may be None), overdue, project_id, tags, estimated,
actual, and days(n) which returns n days in seconds.`,
		Example: `  evorbrain tasks filter '"errands" in tags and status != "completed"'
  evorbrain tasks filter 'due != None and due < now + days(3)'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				tasks, err := svc.FilterTasks(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printTasks(cmd, tasks)
			})
		},
	}
}

func newTasksTagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <task-id> <tag>",
		Short: "Tag a task, creating the tag if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				task, err := svc.TagTask(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(cmd, task)
			})
		},
	}
}

func newTasksUntagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "untag <task-id> <tag>",
		Short: "Remove a tag from a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				task, err := svc.UntagTask(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(cmd, task)
			})
		},
	}
}
