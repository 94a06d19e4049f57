package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const taskColumns = `id, project_id, parent_task_id, name, description, priority, status, due_date,
	estimated_minutes, actual_minutes, recurrence_rule, created_at, updated_at, completed_at, archived_at`

const priorityRank = `CASE priority
		WHEN 'urgent' THEN 0
		WHEN 'high' THEN 1
		WHEN 'medium' THEN 2
		ELSE 3
	END`

const taskOrder = `
	ORDER BY CASE status
		WHEN 'in_progress' THEN 0
		WHEN 'todo' THEN 1
		WHEN 'completed' THEN 2
		ELSE 3
	END, ` + priorityRank + `, due_date ASC NULLS LAST, name ASC`

func scanTask(row scanner) (*domain.Task, error) {
	var (
		task                    domain.Task
		projectID, parentTaskID sql.NullString
		description, dueDate    sql.NullString
		estimated, actual       sql.NullInt64
		recurrenceRule          sql.NullString
		createdAt, updatedAt    string
		completedAt, archivedAt sql.NullString
	)

	if err := row.Scan(&task.ID, &projectID, &parentTaskID, &task.Name, &description, &task.Priority,
		&task.Status, &dueDate, &estimated, &actual, &recurrenceRule,
		&createdAt, &updatedAt, &completedAt, &archivedAt); err != nil {
		return nil, err
	}

	var ts timestamps
	task.ProjectID = stringPtr(projectID)
	task.ParentTaskID = stringPtr(parentTaskID)
	task.Description = stringPtr(description)
	task.DueDate = ts.opt(dueDate)
	task.EstimatedMinutes = intPtr(estimated)
	task.ActualMinutes = intPtr(actual)
	task.RecurrenceRule = stringPtr(recurrenceRule)
	task.CreatedAt = ts.req(createdAt)
	task.UpdatedAt = ts.req(updatedAt)
	task.CompletedAt = ts.opt(completedAt)
	task.ArchivedAt = ts.opt(archivedAt)
	if ts.err != nil {
		return nil, ts.err
	}
	return &task, nil
}

// CreateTask creates a new task record. Tags on the task are not written;
// use TagTask.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		task.ID,
		nullString(task.ProjectID),
		nullString(task.ParentTaskID),
		task.Name,
		nullString(task.Description),
		task.Priority,
		task.Status,
		nullTime(task.DueDate),
		nullInt(task.EstimatedMinutes),
		nullInt(task.ActualMinutes),
		nullString(task.RecurrenceRule),
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
		nullTime(task.CompletedAt),
		nullTime(task.ArchivedAt),
	)
	if err != nil {
		return insertError(domain.EntityTask, "create task", err)
	}

	return nil
}

// GetTask retrieves a task by ID, tags included.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(domain.EntityTask, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	tasks := []domain.Task{*task}
	if err := s.attachTags(ctx, tasks); err != nil {
		return nil, err
	}

	return &tasks[0], nil
}

// ListTasks returns every non-archived task.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE archived_at IS NULL` + taskOrder
	return s.queryTasks(ctx, query)
}

// ListTasksByProject returns the non-archived tasks of a project, subtasks included.
func (s *SQLiteStore) ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? AND archived_at IS NULL` + taskOrder
	return s.queryTasks(ctx, query, projectID)
}

// ListSubtasks returns the direct, non-archived children of a task.
func (s *SQLiteStore) ListSubtasks(ctx context.Context, parentID string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE parent_task_id = ? AND archived_at IS NULL` + taskOrder
	return s.queryTasks(ctx, query, parentID)
}

// ListTasksDueBetween returns open tasks due in [start, end).
func (s *SQLiteStore) ListTasksDueBetween(ctx context.Context, start, end time.Time) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE due_date >= ? AND due_date < ?
			AND status IN ('todo', 'in_progress')
			AND archived_at IS NULL
		ORDER BY ` + priorityRank + `, name ASC
	`
	return s.queryTasks(ctx, query, formatTime(start), formatTime(end))
}

// ListOverdueTasks returns open tasks whose due date is before now, oldest first.
func (s *SQLiteStore) ListOverdueTasks(ctx context.Context, now time.Time) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE due_date < ?
			AND status IN ('todo', 'in_progress')
			AND archived_at IS NULL
		ORDER BY due_date ASC, ` + priorityRank + `
	`
	return s.queryTasks(ctx, query, formatTime(now))
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...interface{}) ([]domain.Task, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	if err := s.attachTags(ctx, tasks); err != nil {
		return nil, err
	}

	return tasks, nil
}

// attachTags fills Tags on every task with one query.
func (s *SQLiteStore) attachTags(ctx context.Context, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	index := make(map[string]int, len(tasks))
	ids := make([]string, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
		ids[i] = tasks[i].ID
	}

	query := `
		SELECT tt.task_id, t.name
		FROM task_tags tt
		JOIN tags t ON t.id = tt.tag_id
		WHERE tt.task_id IN (` + placeholders(len(ids)) + `)
		ORDER BY t.name COLLATE NOCASE ASC
	`

	rows, err := s.q.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to query task tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, name string
		if err := rows.Scan(&taskID, &name); err != nil {
			return fmt.Errorf("failed to scan task tag: %w", err)
		}
		if i, ok := index[taskID]; ok {
			tasks[i].Tags = append(tasks[i].Tags, name)
		}
	}

	return rows.Err()
}

// UpdateTask writes every mutable column of task. Tags are not touched.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE tasks
		SET project_id = ?, parent_task_id = ?, name = ?, description = ?, priority = ?, status = ?,
			due_date = ?, estimated_minutes = ?, actual_minutes = ?, recurrence_rule = ?,
			updated_at = ?, completed_at = ?, archived_at = ?
		WHERE id = ?
	`

	result, err := s.q.ExecContext(ctx, query,
		nullString(task.ProjectID),
		nullString(task.ParentTaskID),
		task.Name,
		nullString(task.Description),
		task.Priority,
		task.Status,
		nullTime(task.DueDate),
		nullInt(task.EstimatedMinutes),
		nullInt(task.ActualMinutes),
		nullString(task.RecurrenceRule),
		formatTime(task.UpdatedAt),
		nullTime(task.CompletedAt),
		nullTime(task.ArchivedAt),
		task.ID,
	)
	if err != nil {
		return insertError(domain.EntityTask, "update task", err)
	}

	return affectedOrNotFound(result, domain.EntityTask, task.ID)
}

// DeleteTask deletes a task by ID. Subtasks, notes and tag links cascade.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return affectedOrNotFound(result, domain.EntityTask, id)
}

// BulkUpdateTasks applies update to every listed task in one transaction.
// Missing IDs are skipped rather than failing the batch. A project change
// carries the subtasks of the listed tasks along, at any depth.
func (s *SQLiteStore) BulkUpdateTasks(ctx context.Context, update BulkTaskUpdate, now time.Time) (*BulkTaskResult, error) {
	result := &BulkTaskResult{}
	if len(update.TaskIDs) == 0 {
		return result, nil
	}

	err := s.WithTx(ctx, func(tx Store) error {
		txs := tx.(*SQLiteStore)
		projects := map[string]struct{}{}

		rows, err := txs.q.QueryContext(ctx,
			`SELECT DISTINCT project_id FROM tasks WHERE project_id IS NOT NULL AND id IN (`+placeholders(len(update.TaskIDs))+`)`,
			stringArgs(update.TaskIDs)...,
		)
		if err != nil {
			return fmt.Errorf("failed to query task projects: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan task project: %w", err)
			}
			projects[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating task projects: %w", err)
		}
		rows.Close()

		stamp := formatTime(now)
		set := "updated_at = ?"
		args := []interface{}{stamp}
		if update.ProjectID != nil {
			set += ", project_id = ?"
			args = append(args, *update.ProjectID)
			projects[*update.ProjectID] = struct{}{}
		}
		if update.Status != nil {
			set += ", status = ?"
			args = append(args, *update.Status)
			if *update.Status == domain.TaskStatusCompleted {
				set += ", completed_at = COALESCE(completed_at, ?)"
				args = append(args, stamp)
			} else {
				set += ", completed_at = NULL"
			}
		}
		if update.Priority != nil {
			set += ", priority = ?"
			args = append(args, *update.Priority)
		}
		args = append(args, stringArgs(update.TaskIDs)...)

		res, err := txs.q.ExecContext(ctx,
			`UPDATE tasks SET `+set+` WHERE id IN (`+placeholders(len(update.TaskIDs))+`)`,
			args...,
		)
		if err != nil {
			return insertError(domain.EntityTask, "bulk update tasks", err)
		}
		result.Affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if update.ProjectID != nil {
			if _, err := moveSubtrees(ctx, txs.q, update.TaskIDs, *update.ProjectID, stamp); err != nil {
				return err
			}
		}

		for id := range projects {
			result.ProjectIDs = append(result.ProjectIDs, id)
		}
		sort.Strings(result.ProjectIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MoveTaskSubtree moves every descendant of rootID, archived ones included,
// to projectID. The root itself is left alone. It returns the number of
// tasks moved.
func (s *SQLiteStore) MoveTaskSubtree(ctx context.Context, rootID, projectID string, now time.Time) (int64, error) {
	return moveSubtrees(ctx, s.q, []string{rootID}, projectID, formatTime(now))
}

func moveSubtrees(ctx context.Context, q querier, rootIDs []string, projectID, stamp string) (int64, error) {
	if len(rootIDs) == 0 {
		return 0, nil
	}
	args := append(stringArgs(rootIDs), projectID, stamp)
	res, err := q.ExecContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM tasks WHERE parent_task_id IN (`+placeholders(len(rootIDs))+`)
			UNION
			SELECT t.id FROM tasks t JOIN subtree st ON t.parent_task_id = st.id
		)
		UPDATE tasks SET project_id = ?, updated_at = ?
		WHERE id IN (SELECT id FROM subtree)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to move subtasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
