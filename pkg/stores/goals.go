package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const goalColumns = `id, life_area_id, name, description, target_date, status, progress,
	created_at, updated_at, completed_at, archived_at`

// goalOrder sorts active goals first, then by target date with undated goals last.
const goalOrder = `
	ORDER BY CASE status
		WHEN 'active' THEN 0
		WHEN 'paused' THEN 1
		WHEN 'completed' THEN 2
		ELSE 3
	END, target_date ASC NULLS LAST, name ASC`

func scanGoal(row scanner) (*domain.Goal, error) {
	var (
		goal                    domain.Goal
		description, targetDate sql.NullString
		createdAt, updatedAt    string
		completedAt, archivedAt sql.NullString
	)

	if err := row.Scan(&goal.ID, &goal.LifeAreaID, &goal.Name, &description, &targetDate,
		&goal.Status, &goal.Progress, &createdAt, &updatedAt, &completedAt, &archivedAt); err != nil {
		return nil, err
	}

	var ts timestamps
	goal.Description = stringPtr(description)
	goal.TargetDate = ts.opt(targetDate)
	goal.CreatedAt = ts.req(createdAt)
	goal.UpdatedAt = ts.req(updatedAt)
	goal.CompletedAt = ts.opt(completedAt)
	goal.ArchivedAt = ts.opt(archivedAt)
	if ts.err != nil {
		return nil, ts.err
	}
	return &goal, nil
}

// CreateGoal creates a new goal record
func (s *SQLiteStore) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	query := `
		INSERT INTO goals (` + goalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		goal.ID,
		goal.LifeAreaID,
		goal.Name,
		nullString(goal.Description),
		nullTime(goal.TargetDate),
		goal.Status,
		goal.Progress,
		formatTime(goal.CreatedAt),
		formatTime(goal.UpdatedAt),
		nullTime(goal.CompletedAt),
		nullTime(goal.ArchivedAt),
	)
	if err != nil {
		return insertError(domain.EntityGoal, "create goal", err)
	}

	return nil
}

// GetGoal retrieves a goal by ID
func (s *SQLiteStore) GetGoal(ctx context.Context, id string) (*domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE id = ?`

	goal, err := scanGoal(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(domain.EntityGoal, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}

	return goal, nil
}

// ListGoals returns every non-archived goal.
func (s *SQLiteStore) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE archived_at IS NULL` + goalOrder
	return s.queryGoals(ctx, query)
}

// ListGoalsByLifeArea returns the non-archived goals of a life area.
func (s *SQLiteStore) ListGoalsByLifeArea(ctx context.Context, lifeAreaID string) ([]domain.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE life_area_id = ? AND archived_at IS NULL` + goalOrder
	return s.queryGoals(ctx, query, lifeAreaID)
}

func (s *SQLiteStore) queryGoals(ctx context.Context, query string, args ...interface{}) ([]domain.Goal, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	goals := []domain.Goal{}
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, *goal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}

	return goals, nil
}

// UpdateGoal writes every mutable column of goal.
func (s *SQLiteStore) UpdateGoal(ctx context.Context, goal *domain.Goal) error {
	query := `
		UPDATE goals
		SET life_area_id = ?, name = ?, description = ?, target_date = ?, status = ?, progress = ?,
			updated_at = ?, completed_at = ?, archived_at = ?
		WHERE id = ?
	`

	result, err := s.q.ExecContext(ctx, query,
		goal.LifeAreaID,
		goal.Name,
		nullString(goal.Description),
		nullTime(goal.TargetDate),
		goal.Status,
		goal.Progress,
		formatTime(goal.UpdatedAt),
		nullTime(goal.CompletedAt),
		nullTime(goal.ArchivedAt),
		goal.ID,
	)
	if err != nil {
		return insertError(domain.EntityGoal, "update goal", err)
	}

	return affectedOrNotFound(result, domain.EntityGoal, goal.ID)
}

// DeleteGoal deletes a goal by ID
func (s *SQLiteStore) DeleteGoal(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}

	return affectedOrNotFound(result, domain.EntityGoal, id)
}

// RecomputeGoalProgress sets a goal's progress to the truncated mean of its
// non-archived projects' progress, or 0 when it has none.
func (s *SQLiteStore) RecomputeGoalProgress(ctx context.Context, goalID string, now time.Time) (int, error) {
	var avg sql.NullFloat64
	err := s.q.QueryRowContext(ctx,
		`SELECT AVG(progress) FROM projects WHERE goal_id = ? AND archived_at IS NULL`, goalID,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to compute goal progress: %w", err)
	}

	progress := 0
	if avg.Valid {
		progress = int(avg.Float64)
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE goals SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, formatTime(now), goalID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update goal progress: %w", err)
	}
	if err := affectedOrNotFound(result, domain.EntityGoal, goalID); err != nil {
		return 0, err
	}

	return progress, nil
}
