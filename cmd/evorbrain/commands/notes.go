package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newNotesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notes",
		Aliases: []string{"note"},
		Short:   "Manage notes",
		Long: `Notes hold markdown text. A note may stand alone or be attached to one
life area, goal, project or task.`,
	}

	cmd.AddCommand(
		newNotesListCommand(),
		newNotesGetCommand(),
		newNotesCreateCommand(),
		newNotesUpdateCommand(),
		newNotesDeleteCommand(),
		newNotesSearchCommand(),
		newNotesArchiveCommand(),
		newNotesRestoreCommand(),
	)
	return cmd
}

// noteParent describes where a note is attached.
func noteParent(n *domain.Note) string {
	switch {
	case n.TaskID != nil:
		return "task " + *n.TaskID
	case n.ProjectID != nil:
		return "project " + *n.ProjectID
	case n.GoalID != nil:
		return "goal " + *n.GoalID
	case n.LifeAreaID != nil:
		return "life area " + *n.LifeAreaID
	}
	return "-"
}

func printNotes(cmd *cobra.Command, notes []domain.Note) error {
	return emit(cmd, notes, func(w io.Writer) {
		rows := make([][]string, 0, len(notes))
		for i := range notes {
			n := &notes[i]
			rows = append(rows, []string{n.ID, n.Title, noteParent(n), fmtDateTime(&n.UpdatedAt)})
		}
		printTable(w, "No notes found.", []string{"ID", "TITLE", "ATTACHED TO", "UPDATED"}, rows)
	})
}

func printNote(cmd *cobra.Command, note *domain.Note) error {
	return emit(cmd, note, func(w io.Writer) {
		printFields(w, [][2]string{
			{"ID", note.ID},
			{"Title", note.Title},
			{"Attached to", noteParent(note)},
			{"Updated", fmtDateTime(&note.UpdatedAt)},
			{"Archived", fmtDateTime(note.ArchivedAt)},
		})
		if note.Content != "" {
			fmt.Fprintln(w)
			fmt.Fprintln(w, renderMarkdown(note.Content))
		}
	})
}

// noteContent reads --content, or stdin when the value is "-".
func noteContent(cmd *cobra.Command) (*string, error) {
	content := optionalString(cmd, "content")
	if content == nil || *content != "-" {
		return content, nil
	}
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read note content: %w", err)
	}
	s := string(data)
	return &s, nil
}

func newNotesListCommand() *cobra.Command {
	var parentType, parentID string
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List notes",
		Example: `  evorbrain notes list --on project --id <project-id>`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (parentType == "") != (parentID == "") {
				return domain.NewBadRequestError("--on and --id must be given together")
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				var (
					notes []domain.Note
					err   error
				)
				if parentType != "" {
					entity := domain.EntityType(strings.ReplaceAll(parentType, "-", "_"))
					notes, err = svc.ListNotesByParent(cmd.Context(), entity, parentID)
				} else {
					notes, err = svc.ListNotes(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printNotes(cmd, notes)
			})
		},
	}
	cmd.Flags().StringVar(&parentType, "on", "", "life_area, goal, project or task")
	cmd.Flags().StringVar(&parentID, "id", "", "ID of the entity given by --on")
	return cmd
}

func newNotesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a note with its rendered content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				note, err := svc.GetNote(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printNote(cmd, note)
			})
		},
	}
}

func newNotesCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a note",
		Example: `  evorbrain notes create "Race strategy" --goal <goal-id> --content "Start slow."
  cat minutes.md | evorbrain notes create "Kickoff" --project <project-id> --content -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := noteContent(cmd)
			if err != nil {
				return err
			}
			req := domain.CreateNoteRequest{
				TaskID:     optionalString(cmd, "task"),
				ProjectID:  optionalString(cmd, "project"),
				GoalID:     optionalString(cmd, "goal"),
				LifeAreaID: optionalString(cmd, "area"),
				Title:      args[0],
			}
			if content != nil {
				req.Content = *content
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				note, err := svc.CreateNote(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printNote(cmd, note)
			})
		},
	}
	cmd.Flags().String("content", "", "markdown content, or - to read stdin")
	cmd.Flags().String("task", "", "attach to this task")
	cmd.Flags().String("project", "", "attach to this project")
	cmd.Flags().String("goal", "", "attach to this goal")
	cmd.Flags().String("area", "", "attach to this life area")
	cmd.MarkFlagsMutuallyExclusive("task", "project", "goal", "area")
	return cmd
}

func newNotesUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the title or content of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := noteContent(cmd)
			if err != nil {
				return err
			}
			req := domain.UpdateNoteRequest{
				Title:   optionalString(cmd, "title"),
				Content: content,
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				note, err := svc.UpdateNote(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return printNote(cmd, note)
			})
		},
	}
	cmd.Flags().String("title", "", "new title")
	cmd.Flags().String("content", "", "new content, or - to read stdin")
	return cmd
}

func newNotesDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Delete note %s permanently?", args[0]), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if err := svc.DeleteNote(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printDeleted(cmd, domain.EntityNote, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newNotesSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search note titles and content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				notes, err := svc.SearchNotes(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printNotes(cmd, notes)
			})
		},
	}
}

func newNotesArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				note, err := svc.ArchiveNote(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printNote(cmd, note)
			})
		},
	}
}

func newNotesRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore an archived note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				note, err := svc.RestoreNote(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printNote(cmd, note)
			})
		},
	}
}

