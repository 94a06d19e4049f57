package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/policy"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// CheckRepositoryHealth verifies the database accepts transactions.
func (s *Service) CheckRepositoryHealth(ctx context.Context) (result *domain.TransactionResult, err error) {
	c := s.start(ctx, "check_repository_health", "", "")
	defer c.end(&err)

	if err := s.store.HealthCheck(c.Ctx); err != nil {
		return nil, domain.NewDatabaseError("health check", err)
	}
	return &domain.TransactionResult{Success: true, Message: "Database is healthy"}, nil
}

// GetDatabaseStats returns row counts and refreshes the entity gauges.
func (s *Service) GetDatabaseStats(ctx context.Context) (stats *domain.DatabaseStats, err error) {
	c := s.start(ctx, "get_database_stats", "", "")
	defer c.end(&err)

	stats, err = s.store.Stats(c.Ctx)
	if err != nil {
		return nil, err
	}
	s.recordStats(stats)
	return stats, nil
}

// CleanupDatabase permanently deletes rows archived more than
// OlderThanDays ago and optionally vacuums the file.
func (s *Service) CleanupDatabase(ctx context.Context, opts domain.CleanupOptions) (result *domain.TransactionResult, err error) {
	c := s.start(ctx, "cleanup_database", "", "")
	defer c.end(&err)

	if err := s.validator.Validate(opts); err != nil {
		return nil, err
	}
	if err := s.guard(c.Ctx, policy.GuardInput{
		Operation: policy.OpCleanup,
		Params:    map[string]interface{}{"older_than_days": opts.OlderThanDays},
	}); err != nil {
		return nil, err
	}

	cutoff := s.timestamp().AddDate(0, 0, -opts.OlderThanDays)
	report, err := s.store.Cleanup(c.Ctx, cutoff)
	if err != nil {
		return nil, err
	}

	if opts.Vacuum {
		if err := s.store.Vacuum(c.Ctx); err != nil {
			return nil, err
		}
	}

	c.Logger.WithFields(map[string]interface{}{
		"deleted":         report.Total,
		"older_than_days": opts.OlderThanDays,
		"vacuum":          opts.Vacuum,
	}).Info("database cleaned up")
	s.publish(domain.EntityDatabase, telemetry.ActionCleaned, "", report.Deleted)
	s.refreshEntityCounts(c.Ctx)

	message := fmt.Sprintf("Deleted %d archived items older than %d days", report.Total, opts.OlderThanDays)
	if opts.Vacuum {
		message += " and vacuumed the database"
	}
	return &domain.TransactionResult{Success: true, Message: message, AffectedRows: report.Total}, nil
}

// ExportAllData serialises every table in the requested format.
func (s *Service) ExportAllData(ctx context.Context, req domain.ExportRequest) (result *domain.ExportResult, err error) {
	c := s.start(ctx, "export_all_data", "", "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	format := req.Format
	if format == "" {
		format = domain.ExportFormatJSON
	}

	data, err := s.store.ExportAll(c.Ctx, req.IncludeArchived)
	if err != nil {
		return nil, err
	}

	var encoded []byte
	switch format {
	case domain.ExportFormatYAML:
		encoded, err = yaml.Marshal(data)
	default:
		encoded, err = json.MarshalIndent(data, "", "  ")
	}
	if err != nil {
		return nil, domain.NewInternalError("failed to encode export", err)
	}

	count := data.ItemCount()
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(count))
	c.Logger.WithField("items", count).WithField("format", string(format)).Info("data exported")

	return &domain.ExportResult{
		Data:       string(encoded),
		Format:     format,
		ItemCount:  count,
		ExportDate: s.timestamp(),
	}, nil
}

// BatchDelete deletes many rows of one entity type. Children cascade; task
// and project deletes refresh the progress of their parents.
func (s *Service) BatchDelete(ctx context.Context, req domain.BatchDeleteRequest) (result *domain.TransactionResult, err error) {
	c := s.start(ctx, "batch_delete", req.EntityType, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !req.EntityType.Valid() {
		return nil, domain.NewBadRequestError(fmt.Sprintf("unknown entity type %q", req.EntityType))
	}
	if err := domain.ValidateIDs(req.IDs); err != nil {
		return nil, err
	}
	if err := s.guard(c.Ctx, policy.GuardInput{
		Operation:  policy.OpBatchDelete,
		EntityType: req.EntityType,
		Counts:     map[string]int64{policy.CountItems: int64(len(req.IDs))},
	}); err != nil {
		return nil, err
	}

	now := s.timestamp()
	var deleted int64
	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		parents, err := parentsOf(c.Ctx, tx, req.EntityType, req.IDs)
		if err != nil {
			return err
		}

		deleted, err = tx.BatchDelete(c.Ctx, req.EntityType, req.IDs)
		if err != nil {
			return err
		}

		for _, id := range parents {
			switch req.EntityType {
			case domain.EntityTask:
				_, err = tx.RecomputeProjectProgress(c.Ctx, id, now)
			case domain.EntityProject:
				_, err = tx.RecomputeGoalProgress(c.Ctx, id, now)
			}
			if err != nil && !domain.IsNotFound(err) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Logger.WithField("deleted", deleted).WithField("entity_type", string(req.EntityType)).Info("batch delete completed")
	for _, id := range req.IDs {
		s.publish(req.EntityType, telemetry.ActionDeleted, id, nil)
	}
	s.refreshEntityCounts(c.Ctx)

	return &domain.TransactionResult{
		Success:      true,
		Message:      fmt.Sprintf("Deleted %d of %d %s records", deleted, len(req.IDs), req.EntityType),
		AffectedRows: deleted,
	}, nil
}

// parentsOf returns the progress-carrying parents of the rows about to be
// deleted. Missing rows are ignored.
func parentsOf(ctx context.Context, tx stores.Store, entity domain.EntityType, ids []string) ([]string, error) {
	var parents []string
	for _, id := range ids {
		switch entity {
		case domain.EntityTask:
			task, err := tx.GetTask(ctx, id)
			if domain.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if task.ProjectID != nil {
				parents = append(parents, *task.ProjectID)
			}
		case domain.EntityProject:
			project, err := tx.GetProject(ctx, id)
			if domain.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			parents = append(parents, project.GoalID)
		}
	}
	return uniqueIDs(parents...), nil
}

// GetMigrationStatus reports the schema version of the database.
func (s *Service) GetMigrationStatus(ctx context.Context) (status *domain.MigrationStatus, err error) {
	c := s.start(ctx, "get_migration_status", "", "")
	defer c.end(&err)

	return s.store.MigrationStatus(c.Ctx)
}

// ScanOverdueTasks publishes an overdue event for every open task past its
// due date and returns them.
func (s *Service) ScanOverdueTasks(ctx context.Context) (tasks []domain.Task, err error) {
	c := s.start(ctx, "scan_overdue_tasks", domain.EntityTask, "")
	defer c.end(&err)

	now := s.timestamp()
	tasks, err = s.store.ListOverdueTasks(c.Ctx, now)
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		s.publish(domain.EntityTask, telemetry.ActionOverdue, tasks[i].ID, map[string]interface{}{
			"name":     tasks[i].Name,
			"due_date": tasks[i].DueDate,
			"overdue":  now.Sub(*tasks[i].DueDate).Round(time.Minute).String(),
		})
	}
	if len(tasks) > 0 {
		c.Logger.WithField("count", len(tasks)).Info("overdue tasks found")
	}
	return tasks, nil
}
