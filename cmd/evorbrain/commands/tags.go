package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newTagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"tag"},
		Short:   "Manage tags",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				tags, err := svc.ListTags(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, tags, func(w io.Writer) {
					rows := make([][]string, 0, len(tags))
					for _, t := range tags {
						rows = append(rows, []string{t.ID, t.Name, orDash(t.Color)})
					}
					printTable(w, "No tags found.", []string{"ID", "NAME", "COLOR"}, rows)
				})
			})
		},
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.CreateTagRequest{Name: args[0], Color: optionalString(cmd, "color")}
			return withService(cmd.Context(), func(svc *service.Service) error {
				tag, err := svc.CreateTag(cmd.Context(), req)
				if err != nil {
					return err
				}
				return emit(cmd, tag, func(w io.Writer) {
					fmt.Fprintf(w, "Created tag %s (%s)\n", tag.Name, tag.ID)
				})
			})
		},
	}
	create.Flags().String("color", "", "hex color")

	var yes bool
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tag and remove it from every task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Delete tag %s?", args[0]), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if err := svc.DeleteTag(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printDeleted(cmd, domain.EntityTag, args[0])
			})
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(list, create, del)
	return cmd
}
