package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
)

func newLogsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the application log",
		Long: `Inspect the daily log files written to <data-dir>/logs when logging.file is
enabled in config.yaml.`,
	}

	var (
		count int
		level string
	)
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the newest entries of today's log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.LogsRequest{Count: count}
			if level != "" {
				req.LevelFilter = &level
			}
			return withService(cmd.Context(), func(svc *service.Service) error {
				entries, err := svc.GetRecentLogs(cmd.Context(), req)
				if err != nil {
					return err
				}
				return emit(cmd, entries, func(w io.Writer) {
					rows := make([][]string, 0, len(entries))
					for _, e := range entries {
						rows = append(rows, []string{e.Timestamp, e.Level, e.Component, e.Message})
					}
					printTable(w, "No log entries.", []string{"TIME", "LEVEL", "COMPONENT", "MESSAGE"}, rows)
				})
			})
		},
	}
	recent.Flags().IntVarP(&count, "count", "n", 0, "number of entries (default 100)")
	recent.Flags().StringVar(&level, "level", "", "minimum level: trace, debug, info, warn or error")

	levelCmd := &cobra.Command{
		Use:   "level [level]",
		Short: "Show or change the log level for this invocation",
		Long: `Show the active log level, or change it. The change applies to the running
process only; set logging.level in config.yaml to persist it, or use
PUT /api/v1/logs/level against a running server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *service.Service) error {
				if len(args) == 1 {
					if err := svc.SetLogLevel(cmd.Context(), args[0]); err != nil {
						return err
					}
				}
				current := svc.LogLevel()
				return emit(cmd, map[string]string{"level": current}, func(w io.Writer) {
					fmt.Fprintln(w, current)
				})
			})
		},
	}

	cmd.AddCommand(recent, levelCmd)
	return cmd
}
