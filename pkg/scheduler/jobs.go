package scheduler

import (
	"context"

	"github.com/evorbrain/evorbrain/pkg/backup"
	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/stores"
)

// Job names.
const (
	JobCleanup = "cleanup"
	JobBackup  = "backup"
	JobOverdue = "overdue-scan"
)

// Maintainer is the part of the service the maintenance jobs call.
type Maintainer interface {
	CleanupDatabase(ctx context.Context, opts domain.CleanupOptions) (*domain.TransactionResult, error)
	ScanOverdueTasks(ctx context.Context) ([]domain.Task, error)
	Store() stores.Store
}

// MaintenanceJobs returns the jobs enabled in cfg. The backup job is only
// added when backups is non-nil and a backup cron is set.
func MaintenanceJobs(cfg config.SchedulerConfig, svc Maintainer, backups *backup.Manager) []Job {
	var jobs []Job

	if cfg.CleanupCron != "" {
		retention := cfg.CleanupRetentionDays
		jobs = append(jobs, Job{
			Name: JobCleanup,
			Spec: cfg.CleanupCron,
			Run: func(ctx context.Context) error {
				_, err := svc.CleanupDatabase(ctx, domain.CleanupOptions{
					OlderThanDays: retention,
					Vacuum:        true,
				})
				return err
			},
		})
	}

	if cfg.BackupCron != "" && backups != nil {
		jobs = append(jobs, Job{
			Name: JobBackup,
			Spec: cfg.BackupCron,
			Run: func(ctx context.Context) error {
				_, err := backups.Create(ctx, svc.Store())
				return err
			},
		})
	}

	if cfg.OverdueCron != "" {
		jobs = append(jobs, Job{
			Name: JobOverdue,
			Spec: cfg.OverdueCron,
			Run: func(ctx context.Context) error {
				_, err := svc.ScanOverdueTasks(ctx)
				return err
			},
		})
	}

	return jobs
}
