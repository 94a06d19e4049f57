package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/evorbrain/evorbrain/pkg/backup"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

func newBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database",
		Long: `Create a consistent snapshot of the database with VACUUM INTO.

Snapshots are written to the backup directory (backup.dir in config.yaml) as
evorbrain-YYYYMMDD-HHMMSS.db, and the oldest are pruned beyond backup.keep.
When backup.remote is configured the snapshot is also uploaded over SFTP.`,
		Example: `  # Create a snapshot
  evorbrain backup

  # List local or remote snapshots
  evorbrain backup list
  evorbrain backup list --remote`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd.Context(), openOptions{})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			manager, err := backup.NewFromConfig(a.cfg, a.tel.Logger.Zerolog(), a.tel)
			if err != nil {
				return err
			}
			result, err := manager.Create(cmd.Context(), a.store)
			if result == nil {
				return err
			}
			if err != nil {
				// The local snapshot exists; only the upload failed.
				log.Warn().Err(err).Msg("Remote upload failed")
			}
			return emit(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "Created %s (%s)\n", result.Backup.Path, humanSize(result.Backup.Size))
				for _, name := range result.Pruned {
					fmt.Fprintf(w, "Pruned %s\n", name)
				}
				if result.Uploaded {
					fmt.Fprintf(w, "Uploaded to %s\n", result.RemotePath)
				}
			})
		},
	}

	cmd.AddCommand(newBackupListCommand())
	return cmd
}

func newBackupListCommand() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackups(func(manager *backup.Manager) error {
				list := manager.List
				if remote {
					list = manager.ListRemote
				}
				backups, err := list(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, backups, func(w io.Writer) {
					rows := make([][]string, 0, len(backups))
					for _, b := range backups {
						rows = append(rows, []string{b.Name, fmtDateTime(&b.CreatedAt), humanSize(b.Size), b.Location})
					}
					printTable(w, "No backups found.", []string{"NAME", "CREATED", "SIZE", "LOCATION"}, rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "list snapshots on the SFTP remote")
	return cmd
}

func newRestoreCommand() *cobra.Command {
	var (
		remote bool
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "restore <backup-name>",
		Short: "Replace the database with a snapshot",
		Long: `Replace the database with a snapshot from the backup directory.

WARNING: This replaces the current data. Stop 'evorbrain serve' first.

The snapshot is checked with PRAGMA integrity_check before anything is
touched. The current database is kept next to it as <name>.pre-restore.`,
		Example: `  evorbrain restore evorbrain-20260615-030000.db
  evorbrain restore evorbrain-20260615-030000.db --remote --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(fmt.Sprintf("Replace the database with %s?", args[0]), yes); err != nil {
				return err
			}
			return withBackups(func(manager *backup.Manager) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dbPath, err := cfg.DatabasePath()
				if err != nil {
					return err
				}

				log.Info().Str("backup", args[0]).Bool("remote", remote).Msg("Restoring database")
				restored, err := manager.Restore(cmd.Context(), args[0], dbPath, remote)
				if err != nil {
					return err
				}
				return emit(cmd, restored, func(w io.Writer) {
					fmt.Fprintf(w, "Restored %s into %s\n", restored.Name, dbPath)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "download the snapshot from the SFTP remote first")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// withBackups builds a backup manager without opening the database.
func withBackups(fn func(manager *backup.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	telCfg := cfg.TelemetryOptions(buildVersion)
	if !verbose {
		telCfg.Logging.Output = "none"
	}
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	}()

	manager, err := backup.NewFromConfig(cfg, tel.Logger.Zerolog(), tel)
	if err != nil {
		return err
	}
	return fn(manager)
}

func humanSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
