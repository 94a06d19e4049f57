package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/policy"
	"github.com/evorbrain/evorbrain/pkg/query"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

func (s *Service) ListTasks(ctx context.Context) (tasks []domain.Task, err error) {
	c := s.start(ctx, "get_tasks", domain.EntityTask, "")
	defer c.end(&err)

	tasks, err = s.store.ListTasks(c.Ctx)
	if err != nil {
		return nil, err
	}
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(len(tasks)))
	return tasks, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (task *domain.Task, err error) {
	c := s.start(ctx, "get_task", domain.EntityTask, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	return s.store.GetTask(c.Ctx, id)
}

func (s *Service) ListTasksByProject(ctx context.Context, projectID string) (tasks []domain.Task, err error) {
	c := s.start(ctx, "get_tasks_by_project", domain.EntityTask, "")
	defer c.end(&err)

	if err := s.ensureExists(c.Ctx, domain.EntityProject, projectID, "project_id"); err != nil {
		return nil, err
	}
	return s.store.ListTasksByProject(c.Ctx, projectID)
}

// ListSubtasks returns the direct subtasks of a task.
func (s *Service) ListSubtasks(ctx context.Context, parentID string) (tasks []domain.Task, err error) {
	c := s.start(ctx, "get_subtasks", domain.EntityTask, parentID)
	defer c.end(&err)

	if err := s.ensureExists(c.Ctx, domain.EntityTask, parentID, "parent_task_id"); err != nil {
		return nil, err
	}
	return s.store.ListSubtasks(c.Ctx, parentID)
}

// ListTasksDueToday returns the tasks due within the current local day.
func (s *Service) ListTasksDueToday(ctx context.Context) (tasks []domain.Task, err error) {
	c := s.start(ctx, "get_tasks_due_today", domain.EntityTask, "")
	defer c.end(&err)

	start, end := domain.DayBounds(s.now())
	return s.store.ListTasksDueBetween(c.Ctx, start.UTC(), end.UTC())
}

// ListOverdueTasks returns open tasks whose due date has passed.
func (s *Service) ListOverdueTasks(ctx context.Context) (tasks []domain.Task, err error) {
	c := s.start(ctx, "get_overdue_tasks", domain.EntityTask, "")
	defer c.end(&err)

	return s.store.ListOverdueTasks(c.Ctx, s.timestamp())
}

// CreateTask creates a task. A subtask must share its parent's project and
// inherits it when no project is given.
func (s *Service) CreateTask(ctx context.Context, req domain.CreateTaskRequest) (task *domain.Task, err error) {
	c := s.start(ctx, "create_task", domain.EntityTask, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		var err error
		task, err = s.insertTask(c.Ctx, tx, req, s.timestamp())
		return err
	})
	if err != nil {
		return nil, err
	}

	c.Logger.WithEntity(domain.EntityTask, task.ID).Info("task created")
	s.publish(domain.EntityTask, telemetry.ActionCreated, task.ID, task)
	s.refreshEntityCounts(c.Ctx)
	return task, nil
}

// CreateTaskWithSubtasks creates a task and its subtasks atomically.
func (s *Service) CreateTaskWithSubtasks(ctx context.Context, req domain.CreateTaskWithSubtasksRequest) (task *domain.Task, err error) {
	c := s.start(ctx, "create_task_with_subtasks", domain.EntityTask, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var subtasks []*domain.Task
	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		now := s.timestamp()

		parent, err := s.insertTask(c.Ctx, tx, req.Task, now)
		if err != nil {
			return err
		}
		task = parent

		for i, sub := range req.Subtasks {
			sub.ParentTaskID = &parent.ID
			sub.ProjectID = parent.ProjectID
			child, err := s.insertTask(c.Ctx, tx, sub, now)
			if err != nil {
				if appErr := domain.AsAppError(err); appErr != nil {
					return appErr.WithDetail("subtask", i)
				}
				return err
			}
			subtasks = append(subtasks, child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Logger.WithEntity(domain.EntityTask, task.ID).WithField("subtasks", len(subtasks)).Info("task created with subtasks")
	s.publish(domain.EntityTask, telemetry.ActionCreated, task.ID, task)
	for _, sub := range subtasks {
		s.publish(domain.EntityTask, telemetry.ActionCreated, sub.ID, sub)
	}
	s.refreshEntityCounts(c.Ctx)
	return task, nil
}

// insertTask resolves the task's parents, writes it with its tags and
// refreshes the project's progress.
func (s *Service) insertTask(ctx context.Context, tx stores.Store, req domain.CreateTaskRequest, now time.Time) (*domain.Task, error) {
	projectID := req.ProjectID
	if projectID != nil {
		if err := domain.ValidateID(*projectID); err != nil {
			return nil, err
		}
		if _, err := tx.GetProject(ctx, *projectID); err != nil {
			if domain.IsNotFound(err) {
				return nil, domain.NewNotFoundError(domain.EntityProject, *projectID).WithDetail("field", "project_id")
			}
			return nil, err
		}
	}

	if req.ParentTaskID != nil {
		if err := domain.ValidateID(*req.ParentTaskID); err != nil {
			return nil, err
		}
		parent, err := tx.GetTask(ctx, *req.ParentTaskID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, domain.NewNotFoundError(domain.EntityTask, *req.ParentTaskID).WithDetail("field", "parent_task_id")
			}
			return nil, err
		}
		switch {
		case projectID == nil:
			projectID = parent.ProjectID
		case parent.ProjectID == nil || *parent.ProjectID != *projectID:
			return nil, domain.NewValidationError("subtask must belong to the same project as its parent task").
				WithDetail("field", "project_id")
		}
	}

	task := &domain.Task{
		ID:               newID(),
		ProjectID:        projectID,
		ParentTaskID:     req.ParentTaskID,
		Name:             domain.TrimName(req.Name),
		Description:      trimmed(req.Description),
		Priority:         domain.TaskPriorityMedium,
		Status:           domain.TaskStatusTodo,
		DueDate:          req.DueDate,
		EstimatedMinutes: req.EstimatedMinutes,
		RecurrenceRule:   req.RecurrenceRule,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}

	if err := tx.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	for _, name := range req.Tags {
		tag, err := ensureTag(ctx, tx, domain.TrimName(name), now)
		if err != nil {
			return nil, err
		}
		if err := tx.TagTask(ctx, task.ID, tag.ID, now); err != nil {
			return nil, err
		}
		task.Tags = appendUnique(task.Tags, tag.Name)
	}

	if task.ProjectID != nil {
		if _, err := tx.RecomputeProjectProgress(ctx, *task.ProjectID, now); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// UpdateTask applies the non-nil fields of req and recomputes progress of
// the old and new project.
func (s *Service) UpdateTask(ctx context.Context, id string, req domain.UpdateTaskRequest) (task *domain.Task, err error) {
	c := s.start(ctx, "update_task", domain.EntityTask, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, err
	}

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		var err error
		task, err = s.applyTaskUpdate(c.Ctx, tx, id, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(domain.EntityTask, telemetry.ActionUpdated, task.ID, task)
	return task, nil
}

func (s *Service) applyTaskUpdate(ctx context.Context, tx stores.Store, id string, req domain.UpdateTaskRequest) (*domain.Task, error) {
	task, err := tx.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	oldProjectID := task.ProjectID

	projectChanged := req.ProjectID != nil && (task.ProjectID == nil || *task.ProjectID != *req.ProjectID)
	if projectChanged {
		if task.ParentTaskID != nil {
			return nil, domain.NewValidationError("a subtask always belongs to its parent's project; move the parent task instead").
				WithDetail("field", "project_id")
		}
		if err := domain.ValidateID(*req.ProjectID); err != nil {
			return nil, err
		}
		if _, err := tx.GetProject(ctx, *req.ProjectID); err != nil {
			if domain.IsNotFound(err) {
				return nil, domain.NewNotFoundError(domain.EntityProject, *req.ProjectID).WithDetail("field", "project_id")
			}
			return nil, err
		}
		task.ProjectID = req.ProjectID
	}
	if req.Name != nil {
		task.Name = domain.TrimName(*req.Name)
	}
	if req.Description != nil {
		task.Description = trimmed(req.Description)
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Status != nil {
		setTaskStatus(task, *req.Status, now)
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}
	if req.EstimatedMinutes != nil {
		task.EstimatedMinutes = req.EstimatedMinutes
	}
	if req.ActualMinutes != nil {
		task.ActualMinutes = req.ActualMinutes
	}
	if req.RecurrenceRule != nil {
		task.RecurrenceRule = req.RecurrenceRule
	}
	task.UpdatedAt = now

	if err := tx.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	if projectChanged {
		if _, err := tx.MoveTaskSubtree(ctx, task.ID, *task.ProjectID, now); err != nil {
			return nil, err
		}
	}

	for _, projectID := range uniqueIDs(deref(oldProjectID), deref(task.ProjectID)) {
		if _, err := tx.RecomputeProjectProgress(ctx, projectID, now); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// DeleteTask deletes a task with its subtasks and notes.
func (s *Service) DeleteTask(ctx context.Context, id string) (err error) {
	c := s.start(ctx, "delete_task", domain.EntityTask, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return err
	}

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		task, err := tx.GetTask(c.Ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteTask(c.Ctx, id); err != nil {
			return err
		}
		if task.ProjectID != nil {
			if _, err := tx.RecomputeProjectProgress(c.Ctx, *task.ProjectID, s.timestamp()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.Logger.WithEntity(domain.EntityTask, id).Info("task deleted")
	s.publish(domain.EntityTask, telemetry.ActionDeleted, id, nil)
	s.refreshEntityCounts(c.Ctx)
	return nil
}

// ToggleTaskComplete flips a task between completed and todo.
func (s *Service) ToggleTaskComplete(ctx context.Context, id string) (task *domain.Task, err error) {
	c := s.start(ctx, "toggle_task_complete", domain.EntityTask, id)
	defer c.end(&err)

	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}

	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		current, err := tx.GetTask(c.Ctx, id)
		if err != nil {
			return err
		}
		status := domain.TaskStatusCompleted
		if current.Status == domain.TaskStatusCompleted {
			status = domain.TaskStatusTodo
		}
		task, err = s.applyTaskUpdate(c.Ctx, tx, id, domain.UpdateTaskRequest{Status: &status})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(domain.EntityTask, telemetry.ActionUpdated, task.ID, task)
	return task, nil
}

// BulkUpdateTasks applies the same change to many tasks. Unknown task IDs
// are skipped.
func (s *Service) BulkUpdateTasks(ctx context.Context, req domain.BulkUpdateTasksRequest) (result *domain.TransactionResult, err error) {
	c := s.start(ctx, "bulk_update_tasks", domain.EntityTask, "")
	defer c.end(&err)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.ProjectID == nil && req.Status == nil && req.Priority == nil {
		return nil, domain.NewValidationError("at least one of project_id, status or priority must be provided")
	}
	if err := domain.ValidateIDs(req.TaskIDs); err != nil {
		return nil, err
	}
	if req.ProjectID != nil {
		if err := s.ensureExists(c.Ctx, domain.EntityProject, *req.ProjectID, "project_id"); err != nil {
			return nil, err
		}
	}
	if err := s.guard(c.Ctx, policy.GuardInput{
		Operation:  policy.OpBulkUpdate,
		EntityType: domain.EntityTask,
		Counts:     map[string]int64{policy.CountItems: int64(len(req.TaskIDs))},
	}); err != nil {
		return nil, err
	}

	now := s.timestamp()
	var bulk *stores.BulkTaskResult
	err = s.store.WithTx(c.Ctx, func(tx stores.Store) error {
		if req.ProjectID != nil {
			if err := checkSubtaskMoves(c.Ctx, tx, req.TaskIDs, *req.ProjectID); err != nil {
				return err
			}
		}
		var err error
		bulk, err = tx.BulkUpdateTasks(c.Ctx, stores.BulkTaskUpdate{
			TaskIDs:   req.TaskIDs,
			ProjectID: req.ProjectID,
			Status:    req.Status,
			Priority:  req.Priority,
		}, now)
		if err != nil {
			return err
		}
		for _, projectID := range bulk.ProjectIDs {
			if _, err := tx.RecomputeProjectProgress(c.Ctx, projectID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Span.SetAttributes(telemetry.AttrItemCount.Int64(bulk.Affected))
	c.Logger.WithField("affected", bulk.Affected).Info("tasks updated in bulk")
	s.publish(domain.EntityTask, telemetry.ActionUpdated, "", map[string]interface{}{
		"task_ids": req.TaskIDs,
		"affected": bulk.Affected,
	})

	return &domain.TransactionResult{
		Success:      true,
		Message:      fmt.Sprintf("Updated %d tasks", bulk.Affected),
		AffectedRows: bulk.Affected,
	}, nil
}

// checkSubtaskMoves refuses to move a subtask away from its parent's
// project. Subtasks follow their parent when the parent moves.
func checkSubtaskMoves(ctx context.Context, tx stores.Store, ids []string, projectID string) error {
	for _, id := range ids {
		task, err := tx.GetTask(ctx, id)
		if domain.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if task.ParentTaskID != nil && (task.ProjectID == nil || *task.ProjectID != projectID) {
			return domain.NewValidationError("a subtask always belongs to its parent's project; move the parent task instead").
				WithDetail("field", "project_id").
				WithDetail("task_id", id)
		}
	}
	return nil
}

// FilterTasks returns the non-archived tasks matching a filter expression.
func (s *Service) FilterTasks(ctx context.Context, expr string) (tasks []domain.Task, err error) {
	c := s.start(ctx, "filter_tasks", domain.EntityTask, "")
	defer c.end(&err)

	filter, err := query.Compile(expr, s.filter)
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListTasks(c.Ctx)
	if err != nil {
		return nil, err
	}

	tasks, err = filter.Apply(c.Ctx, all, s.timestamp())
	if err != nil {
		return nil, err
	}
	c.Span.SetAttributes(telemetry.AttrItemCount.Int(len(tasks)))
	return tasks, nil
}

func setTaskStatus(task *domain.Task, status domain.TaskStatus, now time.Time) {
	if status == domain.TaskStatusCompleted {
		if task.Status != domain.TaskStatusCompleted || task.CompletedAt == nil {
			task.CompletedAt = &now
		}
	} else {
		task.CompletedAt = nil
	}
	task.Status = status
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
