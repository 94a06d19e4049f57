package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newAreasCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "areas",
		Aliases: []string{"area", "life-areas"},
		Short:   "Manage life areas",
		Long: `Life areas are the top level of the hierarchy: health, career, family and
so on. Goals belong to exactly one life area.`,
	}

	cmd.AddCommand(
		newAreasListCommand(),
		newAreasGetCommand(),
		newAreasCreateCommand(),
		newAreasUpdateCommand(),
		newAreasDeleteCommand(),
		newAreasReorderCommand(),
	)
	return cmd
}

func printAreas(cmd *cobra.Command, areas []domain.LifeArea) error {
	return emit(cmd, areas, func(w io.Writer) {
		rows := make([][]string, 0, len(areas))
		for _, a := range areas {
			rows = append(rows, []string{strconv.Itoa(a.SortOrder), a.ID, a.Name, orDash(a.Color), orDash(a.Description)})
		}
		printTable(w, "No life areas found.", []string{"#", "ID", "NAME", "COLOR", "DESCRIPTION"}, rows)
	})
}

func printArea(cmd *cobra.Command, area *domain.LifeArea) error {
	return emit(cmd, area, func(w io.Writer) {
		printFields(w, [][2]string{
			{"ID", area.ID},
			{"Name", area.Name},
			{"Description", orDash(area.Description)},
			{"Color", orDash(area.Color)},
			{"Icon", orDash(area.Icon)},
			{"Order", strconv.Itoa(area.SortOrder)},
			{"Created", fmtDateTime(&area.CreatedAt)},
			{"Updated", fmtDateTime(&area.UpdatedAt)},
		})
	})
}

func newAreasListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List life areas in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				areas, err := svc.ListLifeAreas(cmd.Context())
				if err != nil {
					return err
				}
				return printAreas(cmd, areas)
			})
		},
	}
}

func newAreasGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a life area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				area, err := svc.GetLifeArea(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printArea(cmd, area)
			})
		},
	}
}

func newAreasCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a life area",
		Example: `  evorbrain areas create Health --color "#22c55e" --icon heart
  evorbrain areas create Career --description "Work and learning"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.CreateLifeAreaRequest{
				Name:        args[0],
				Description: optionalString(cmd, "description"),
				Color:       optionalString(cmd, "color"),
				Icon:        optionalString(cmd, "icon"),
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				area, err := svc.CreateLifeArea(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printArea(cmd, area)
			})
		},
	}
	cmd.Flags().String("description", "", "description")
	cmd.Flags().String("color", "", "hex color such as #3b82f6")
	cmd.Flags().String("icon", "", "icon name")
	return cmd
}

func newAreasUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a life area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.UpdateLifeAreaRequest{
				Name:        optionalString(cmd, "name"),
				Description: optionalString(cmd, "description"),
				Color:       optionalString(cmd, "color"),
				Icon:        optionalString(cmd, "icon"),
				SortOrder:   optionalInt(cmd, "order"),
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				area, err := svc.UpdateLifeArea(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return printArea(cmd, area)
			})
		},
	}
	cmd.Flags().String("name", "", "new name")
	cmd.Flags().String("description", "", "new description")
	cmd.Flags().String("color", "", "new hex color")
	cmd.Flags().String("icon", "", "new icon name")
	cmd.Flags().Int("order", 0, "new display position")
	return cmd
}

func newAreasDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a life area without goals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Delete life area %s?", args[0]), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				if err := svc.DeleteLifeArea(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printDeleted(cmd, domain.EntityLifeArea, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newAreasReorderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id>...",
		Short: "Set the display order of life areas",
		Long:  "Set the display order of life areas to the order of the given IDs.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				areas, err := svc.ReorderLifeAreas(cmd.Context(), args)
				if err != nil {
					return err
				}
				return printAreas(cmd, areas)
			})
		},
	}
}
