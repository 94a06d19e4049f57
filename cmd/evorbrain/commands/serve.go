package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/api"
	"github.com/evorbrain/evorbrain/pkg/backup"
	"github.com/evorbrain/evorbrain/pkg/scheduler"
)

func newServeCommand() *cobra.Command {
	var (
		listen      string
		noScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the HTTP API together with the maintenance scheduler until
interrupted. Policy files are reloaded on change when policies.watch is set.`,
		Example: `  evorbrain serve
  evorbrain serve --listen 127.0.0.1:9000 --no-scheduler`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			a, err := openApp(ctx, openOptions{console: true})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			logger := a.tel.Logger.Zerolog()
			if listen != "" {
				a.cfg.Server.Listen = listen
			}

			if a.cfg.Policies.Watch {
				if paths := a.policyPaths(); len(paths) > 0 {
					if err := a.guards.WatchPolicies(ctx, paths); err != nil {
						return err
					}
				}
			}

			backups, err := backup.NewFromConfig(a.cfg, logger, a.tel)
			if err != nil {
				return err
			}

			var sched *scheduler.Scheduler
			if a.cfg.Scheduler.Enabled && !noScheduler {
				sched = scheduler.New(logger, scheduler.WithMetrics(a.tel.Metrics))
				for _, job := range scheduler.MaintenanceJobs(a.cfg.Scheduler, a.svc, backups) {
					if err := sched.Add(job); err != nil {
						return err
					}
				}
				sched.Start(ctx)
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
					defer cancel()
					if serr := sched.Stop(stopCtx); serr != nil {
						logger.Warn().Err(serr).Msg("scheduler did not stop cleanly")
					}
				}()
			}

			server, err := api.NewServer(api.Options{
				Service:        a.svc,
				Backups:        backups,
				Scheduler:      sched,
				Logger:         logger,
				Version:        buildVersion,
				RequestTimeout: a.cfg.Server.WriteTimeout,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "EvorBrain API listening on http://%s (Ctrl+C to stop)\n", a.cfg.Server.Listen)
			return server.Run(ctx, a.cfg.Server)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides server.listen)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run maintenance jobs")
	return cmd
}
