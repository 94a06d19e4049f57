package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

func scanTag(row scanner) (*domain.Tag, error) {
	var (
		tag       domain.Tag
		color     sql.NullString
		createdAt string
	)
	if err := row.Scan(&tag.ID, &tag.Name, &color, &createdAt); err != nil {
		return nil, err
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	tag.Color = stringPtr(color)
	tag.CreatedAt = t
	return &tag, nil
}

// CreateTag creates a tag. Names are unique regardless of case.
func (s *SQLiteStore) CreateTag(ctx context.Context, tag *domain.Tag) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO tags (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
		tag.ID, tag.Name, nullString(tag.Color), formatTime(tag.CreatedAt),
	)
	if err != nil {
		return insertError(domain.EntityTag, "create tag", err)
	}
	return nil
}

// GetTagByName looks a tag up case-insensitively.
func (s *SQLiteStore) GetTagByName(ctx context.Context, name string) (*domain.Tag, error) {
	tag, err := scanTag(s.q.QueryRowContext(ctx,
		`SELECT id, name, color, created_at FROM tags WHERE name = ? COLLATE NOCASE`, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(domain.EntityTag, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return tag, nil
}

// ListTags returns all tags by name.
func (s *SQLiteStore) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, color, created_at FROM tags ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, *tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return tags, nil
}

// DeleteTag deletes a tag and its task links.
func (s *SQLiteStore) DeleteTag(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return affectedOrNotFound(result, domain.EntityTag, id)
}

// TagTask links a tag to a task. Linking twice is a no-op.
func (s *SQLiteStore) TagTask(ctx context.Context, taskID, tagID string, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO task_tags (task_id, tag_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		taskID, tagID, formatTime(now),
	)
	if err != nil {
		return insertError(domain.EntityTag, "tag task", err)
	}
	return nil
}

// UntagTask removes a tag from a task.
func (s *SQLiteStore) UntagTask(ctx context.Context, taskID, tagID string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ? AND tag_id = ?`, taskID, tagID)
	if err != nil {
		return fmt.Errorf("failed to untag task: %w", err)
	}
	return affectedOrNotFound(result, domain.EntityTag, tagID)
}
