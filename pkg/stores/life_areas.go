package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const lifeAreaColumns = `id, name, description, color, icon, sort_order, created_at, updated_at, archived_at`

func scanLifeArea(row scanner) (*domain.LifeArea, error) {
	var (
		area                     domain.LifeArea
		description, color, icon sql.NullString
		createdAt, updatedAt     string
		archivedAt               sql.NullString
	)

	if err := row.Scan(&area.ID, &area.Name, &description, &color, &icon, &area.SortOrder,
		&createdAt, &updatedAt, &archivedAt); err != nil {
		return nil, err
	}

	var ts timestamps
	area.Description = stringPtr(description)
	area.Color = stringPtr(color)
	area.Icon = stringPtr(icon)
	area.CreatedAt = ts.req(createdAt)
	area.UpdatedAt = ts.req(updatedAt)
	area.ArchivedAt = ts.opt(archivedAt)
	if ts.err != nil {
		return nil, ts.err
	}
	return &area, nil
}

// CreateLifeArea inserts a life area at the end of the ordering. The
// assigned sort order is written back to area.
func (s *SQLiteStore) CreateLifeArea(ctx context.Context, area *domain.LifeArea) error {
	query := `
		INSERT INTO life_areas (id, name, description, color, icon, sort_order, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(sort_order) + 1, 0) FROM life_areas), ?, ?, ?)
		RETURNING sort_order
	`

	err := s.q.QueryRowContext(ctx, query,
		area.ID,
		area.Name,
		nullString(area.Description),
		nullString(area.Color),
		nullString(area.Icon),
		formatTime(area.CreatedAt),
		formatTime(area.UpdatedAt),
		nullTime(area.ArchivedAt),
	).Scan(&area.SortOrder)

	if err != nil {
		return insertError(domain.EntityLifeArea, "create life area", err)
	}

	return nil
}

// GetLifeArea retrieves a life area by ID
func (s *SQLiteStore) GetLifeArea(ctx context.Context, id string) (*domain.LifeArea, error) {
	query := `SELECT ` + lifeAreaColumns + ` FROM life_areas WHERE id = ?`

	area, err := scanLifeArea(s.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(domain.EntityLifeArea, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get life area: %w", err)
	}

	return area, nil
}

// ListLifeAreas returns non-archived life areas in display order.
func (s *SQLiteStore) ListLifeAreas(ctx context.Context) ([]domain.LifeArea, error) {
	query := `
		SELECT ` + lifeAreaColumns + `
		FROM life_areas
		WHERE archived_at IS NULL
		ORDER BY sort_order ASC, name ASC
	`
	return s.queryLifeAreas(ctx, query)
}

func (s *SQLiteStore) queryLifeAreas(ctx context.Context, query string, args ...interface{}) ([]domain.LifeArea, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query life areas: %w", err)
	}
	defer rows.Close()

	areas := []domain.LifeArea{}
	for rows.Next() {
		area, err := scanLifeArea(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan life area: %w", err)
		}
		areas = append(areas, *area)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating life areas: %w", err)
	}

	return areas, nil
}

// UpdateLifeArea writes every mutable column of area.
func (s *SQLiteStore) UpdateLifeArea(ctx context.Context, area *domain.LifeArea) error {
	query := `
		UPDATE life_areas
		SET name = ?, description = ?, color = ?, icon = ?, sort_order = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`

	result, err := s.q.ExecContext(ctx, query,
		area.Name,
		nullString(area.Description),
		nullString(area.Color),
		nullString(area.Icon),
		area.SortOrder,
		formatTime(area.UpdatedAt),
		nullTime(area.ArchivedAt),
		area.ID,
	)
	if err != nil {
		return insertError(domain.EntityLifeArea, "update life area", err)
	}

	return affectedOrNotFound(result, domain.EntityLifeArea, area.ID)
}

// DeleteLifeArea deletes a life area by ID
func (s *SQLiteStore) DeleteLifeArea(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM life_areas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete life area: %w", err)
	}

	return affectedOrNotFound(result, domain.EntityLifeArea, id)
}

// ReorderLifeAreas sets each area's sort order to its index in ids.
func (s *SQLiteStore) ReorderLifeAreas(ctx context.Context, ids []string, now time.Time) error {
	return s.WithTx(ctx, func(tx Store) error {
		txs := tx.(*SQLiteStore)
		for i, id := range ids {
			result, err := txs.q.ExecContext(ctx,
				`UPDATE life_areas SET sort_order = ?, updated_at = ? WHERE id = ?`,
				i, formatTime(now), id,
			)
			if err != nil {
				return fmt.Errorf("failed to reorder life area: %w", err)
			}
			if err := affectedOrNotFound(result, domain.EntityLifeArea, id); err != nil {
				return err
			}
		}
		return nil
	})
}
