package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	cmd.AddCommand(
		newDBHealthCommand(),
		newDBStatsCommand(),
		newDBCleanupCommand(),
		newDBExportCommand(),
		newDBBatchDeleteCommand(),
		newDBMigrationsCommand(),
	)
	return cmd
}

func newDBHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database integrity and foreign keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				result, err := svc.CheckRepositoryHealth(cmd.Context())
				if err != nil {
					return err
				}
				if err := emit(cmd, result, func(w io.Writer) { fmt.Fprintln(w, result.Message) }); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("database health check failed: %s", result.Message)
				}
				return nil
			})
		},
	}
}

func newDBStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				stats, err := svc.GetDatabaseStats(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, stats, func(w io.Writer) {
					count := func(n int64) string { return strconv.FormatInt(n, 10) }
					printFields(w, [][2]string{
						{"Life areas", count(stats.LifeAreasCount)},
						{"Goals", count(stats.GoalsCount)},
						{"Projects", count(stats.ProjectsCount)},
						{"Tasks", count(stats.TasksCount)},
						{"Notes", count(stats.NotesCount)},
						{"Tags", count(stats.TagsCount)},
						{"Archived", count(stats.ArchivedItemsCount)},
					})
				})
			})
		},
	}
}

func newDBCleanupCommand() *cobra.Command {
	var opts domain.CleanupOptions
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove archived rows older than a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				result, err := svc.CleanupDatabase(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printResult(cmd, result)
			})
		},
	}
	cmd.Flags().IntVar(&opts.OlderThanDays, "older-than", 30, "minimum age in days of archived rows to remove")
	cmd.Flags().BoolVar(&opts.Vacuum, "vacuum", false, "run VACUUM afterwards")
	return cmd
}

func newDBExportCommand() *cobra.Command {
	var (
		req     domain.ExportRequest
		format  string
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every table as JSON or YAML",
		Example: `  evorbrain db export --out evorbrain.json
  evorbrain db export --format yaml --include-archived > export.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Format = domain.ExportFormat(format)
			return withService(cmd.Context(), func(svc *service.Service) error {
				result, err := svc.ExportAllData(cmd.Context(), req)
				if err != nil {
					return err
				}
				if outFile == "" {
					if jsonOutput {
						return emit(cmd, result, nil)
					}
					_, err := io.WriteString(cmd.OutOrStdout(), result.Data)
					return err
				}

				if err := os.WriteFile(outFile, []byte(result.Data), 0o600); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				log.Info().Str("file", outFile).Int("items", result.ItemCount).Msg("Export written")
				return emit(cmd, map[string]interface{}{"file": outFile, "item_count": result.ItemCount, "format": result.Format}, func(w io.Writer) {
					fmt.Fprintf(w, "Exported %d items to %s\n", result.ItemCount, outFile)
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	cmd.Flags().BoolVar(&req.IncludeArchived, "include-archived", false, "include archived rows")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write to a file instead of stdout")
	return cmd
}

func newDBBatchDeleteCommand() *cobra.Command {
	var (
		entity string
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "batch-delete <id>...",
		Short: "Delete many rows of one entity type",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.BatchDeleteRequest{EntityType: domain.EntityType(entity), IDs: args}
			if err := confirm(fmt.Sprintf("Delete %d %s rows?", len(args), entity), yes); err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				result, err := svc.BatchDelete(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printResult(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&entity, "type", "", "life_area, goal, project, task, note or tag")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newDBMigrationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrations",
		Short: "Show the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				status, err := svc.GetMigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, status, func(w io.Writer) {
					printFields(w, [][2]string{
						{"Current", strconv.FormatUint(uint64(status.CurrentVersion), 10)},
						{"Latest", strconv.FormatUint(uint64(status.LatestVersion), 10)},
						{"Pending", strconv.Itoa(status.Pending)},
						{"Dirty", strconv.FormatBool(status.Dirty)},
					})
				})
			})
		},
	}
}
