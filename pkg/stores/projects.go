package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const projectColumns = `id, goal_id, name, description, start_date, due_date, status, progress,
	created_at, updated_at, completed_at, archived_at`

const projectOrder = `
	ORDER BY CASE status
		WHEN 'active' THEN 0
		WHEN 'planning' THEN 1
		WHEN 'on_hold' THEN 2
		WHEN 'completed' THEN 3
		ELSE 4
	END, due_date ASC NULLS LAST, name ASC`

func scanProject(row scanner) (*domain.Project, error) {
	var (
		project                 domain.Project
		description             sql.NullString
		startDate, dueDate      sql.NullString
		createdAt, updatedAt    string
		completedAt, archivedAt sql.NullString
	)

	if err := row.Scan(&project.ID, &project.GoalID, &project.Name, &description, &startDate, &dueDate,
		&project.Status, &project.Progress, &createdAt, &updatedAt, &completedAt, &archivedAt); err != nil {
		return nil, err
	}

	var ts timestamps
	project.Description = stringPtr(description)
	project.StartDate = ts.opt(startDate)
	project.DueDate = ts.opt(dueDate)
	project.CreatedAt = ts.req(createdAt)
	project.UpdatedAt = ts.req(updatedAt)
	project.CompletedAt = ts.opt(completedAt)
	project.ArchivedAt = ts.opt(archivedAt)
	if ts.err != nil {
		return nil, ts.err
	}
	return &project, nil
}

// CreateProject creates a new project record
func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		project.ID,
		project.GoalID,
		project.Name,
		nullString(project.Description),
		nullTime(project.StartDate),
		nullTime(project.DueDate),
		project.Status,
		project.Progress,
		formatTime(project.CreatedAt),
		formatTime(project.UpdatedAt),
		nullTime(project.CompletedAt),
		nullTime(project.ArchivedAt),
	)
	if err != nil {
		return insertError(domain.EntityProject, "create project", err)
	}

	return nil
}

// GetProject retrieves a project by ID
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	project, err := scanProject(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(domain.EntityProject, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListProjects returns every non-archived project.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE archived_at IS NULL` + projectOrder
	return s.queryProjects(ctx, query)
}

// ListProjectsByGoal returns the non-archived projects of a goal.
func (s *SQLiteStore) ListProjectsByGoal(ctx context.Context, goalID string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE goal_id = ? AND archived_at IS NULL` + projectOrder
	return s.queryProjects(ctx, query, goalID)
}

func (s *SQLiteStore) queryProjects(ctx context.Context, query string, args ...interface{}) ([]domain.Project, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// UpdateProject writes every mutable column of project.
func (s *SQLiteStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	query := `
		UPDATE projects
		SET goal_id = ?, name = ?, description = ?, start_date = ?, due_date = ?, status = ?, progress = ?,
			updated_at = ?, completed_at = ?, archived_at = ?
		WHERE id = ?
	`

	result, err := s.q.ExecContext(ctx, query,
		project.GoalID,
		project.Name,
		nullString(project.Description),
		nullTime(project.StartDate),
		nullTime(project.DueDate),
		project.Status,
		project.Progress,
		formatTime(project.UpdatedAt),
		nullTime(project.CompletedAt),
		nullTime(project.ArchivedAt),
		project.ID,
	)
	if err != nil {
		return insertError(domain.EntityProject, "update project", err)
	}

	return affectedOrNotFound(result, domain.EntityProject, project.ID)
}

// DeleteProject deletes a project by ID
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	return affectedOrNotFound(result, domain.EntityProject, id)
}

// RecomputeProjectProgress sets a project's progress to the share of its
// tasks, subtasks included, that are completed, then recomputes the owning
// goal.
func (s *SQLiteStore) RecomputeProjectProgress(ctx context.Context, projectID string, now time.Time) (int, error) {
	var progress int
	err := s.WithTx(ctx, func(tx Store) error {
		txs := tx.(*SQLiteStore)

		var total, completed int64
		err := txs.q.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
			FROM tasks
			WHERE project_id = ?
		`, projectID).Scan(&total, &completed)
		if err != nil {
			return fmt.Errorf("failed to compute project progress: %w", err)
		}

		progress = 0
		if total > 0 {
			progress = int(completed * 100 / total)
		}

		var goalID string
		err = txs.q.QueryRowContext(ctx,
			`UPDATE projects SET progress = ?, updated_at = ? WHERE id = ? RETURNING goal_id`,
			progress, formatTime(now), projectID,
		).Scan(&goalID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewNotFoundError(domain.EntityProject, projectID)
		}
		if err != nil {
			return fmt.Errorf("failed to update project progress: %w", err)
		}

		_, err = txs.RecomputeGoalProgress(ctx, goalID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return progress, nil
}

// ArchiveProjectCascade archives a project, its tasks and every note
// attached to either. It returns the number of rows archived.
func (s *SQLiteStore) ArchiveProjectCascade(ctx context.Context, projectID string, now time.Time) (int64, error) {
	var total int64
	err := s.WithTx(ctx, func(tx Store) error {
		txs := tx.(*SQLiteStore)
		stamp := formatTime(now)

		result, err := txs.q.ExecContext(ctx,
			`UPDATE projects SET archived_at = ?, updated_at = ? WHERE id = ? AND archived_at IS NULL`,
			stamp, stamp, projectID,
		)
		if err != nil {
			return fmt.Errorf("failed to archive project: %w", err)
		}
		if err := affectedOrNotFound(result, domain.EntityProject, projectID); err != nil {
			return err
		}
		total = 1

		statements := []string{
			`UPDATE notes SET archived_at = ?, updated_at = ?
			 WHERE archived_at IS NULL AND task_id IN (SELECT id FROM tasks WHERE project_id = ?)`,
			`UPDATE tasks SET archived_at = ?, updated_at = ? WHERE archived_at IS NULL AND project_id = ?`,
			`UPDATE notes SET archived_at = ?, updated_at = ? WHERE archived_at IS NULL AND project_id = ?`,
		}
		for _, stmt := range statements {
			result, err := txs.q.ExecContext(ctx, stmt, stamp, stamp, projectID)
			if err != nil {
				return fmt.Errorf("failed to archive project children: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			total += n
		}

		var goalID string
		if err := txs.q.QueryRowContext(ctx, `SELECT goal_id FROM projects WHERE id = ?`, projectID).Scan(&goalID); err != nil {
			return fmt.Errorf("failed to look up project goal: %w", err)
		}
		_, err = txs.RecomputeGoalProgress(ctx, goalID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
