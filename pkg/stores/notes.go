package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const noteColumns = `id, task_id, project_id, goal_id, life_area_id, title, content, created_at, updated_at, archived_at`

// noteParentColumns maps an owning entity to its foreign key on notes.
var noteParentColumns = map[domain.EntityType]string{
	domain.EntityTask:     "task_id",
	domain.EntityProject:  "project_id",
	domain.EntityGoal:     "goal_id",
	domain.EntityLifeArea: "life_area_id",
}

func scanNote(row scanner) (*domain.Note, error) {
	var (
		note                 domain.Note
		taskID, projectID    sql.NullString
		goalID, lifeAreaID   sql.NullString
		createdAt, updatedAt string
		archivedAt           sql.NullString
	)

	if err := row.Scan(&note.ID, &taskID, &projectID, &goalID, &lifeAreaID, &note.Title, &note.Content,
		&createdAt, &updatedAt, &archivedAt); err != nil {
		return nil, err
	}

	var ts timestamps
	note.TaskID = stringPtr(taskID)
	note.ProjectID = stringPtr(projectID)
	note.GoalID = stringPtr(goalID)
	note.LifeAreaID = stringPtr(lifeAreaID)
	note.CreatedAt = ts.req(createdAt)
	note.UpdatedAt = ts.req(updatedAt)
	note.ArchivedAt = ts.opt(archivedAt)
	if ts.err != nil {
		return nil, ts.err
	}
	return &note, nil
}

// CreateNote creates a new note record
func (s *SQLiteStore) CreateNote(ctx context.Context, note *domain.Note) error {
	query := `
		INSERT INTO notes (` + noteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.q.ExecContext(ctx, query,
		note.ID,
		nullString(note.TaskID),
		nullString(note.ProjectID),
		nullString(note.GoalID),
		nullString(note.LifeAreaID),
		note.Title,
		note.Content,
		formatTime(note.CreatedAt),
		formatTime(note.UpdatedAt),
		nullTime(note.ArchivedAt),
	)
	if err != nil {
		return insertError(domain.EntityNote, "create note", err)
	}

	return nil
}

// GetNote retrieves a note by ID
func (s *SQLiteStore) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	note, err := scanNote(s.q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(domain.EntityNote, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return note, nil
}

// ListNotes returns non-archived notes, most recently edited first.
func (s *SQLiteStore) ListNotes(ctx context.Context) ([]domain.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE archived_at IS NULL ORDER BY updated_at DESC, id ASC`
	return s.queryNotes(ctx, query)
}

// ListNotesByParent returns the non-archived notes attached to one entity,
// newest first.
func (s *SQLiteStore) ListNotesByParent(ctx context.Context, parent domain.EntityType, parentID string) ([]domain.Note, error) {
	column, ok := noteParentColumns[parent]
	if !ok {
		return nil, domain.NewBadRequestError(fmt.Sprintf("notes cannot belong to %s", parent))
	}

	query := `SELECT ` + noteColumns + ` FROM notes WHERE ` + column + ` = ? AND archived_at IS NULL ORDER BY created_at DESC, id ASC`
	return s.queryNotes(ctx, query, parentID)
}

// SearchNotes matches query as a substring of title or content.
func (s *SQLiteStore) SearchNotes(ctx context.Context, query string) ([]domain.Note, error) {
	pattern := "%" + escapeLike(query) + "%"
	sqlQuery := `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE archived_at IS NULL
			AND (title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')
		ORDER BY updated_at DESC, id ASC
	`
	return s.queryNotes(ctx, sqlQuery, pattern, pattern)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLiteStore) queryNotes(ctx context.Context, query string, args ...interface{}) ([]domain.Note, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, *note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}

	return notes, nil
}

// UpdateNote writes every mutable column of note.
func (s *SQLiteStore) UpdateNote(ctx context.Context, note *domain.Note) error {
	query := `
		UPDATE notes
		SET task_id = ?, project_id = ?, goal_id = ?, life_area_id = ?, title = ?, content = ?,
			updated_at = ?, archived_at = ?
		WHERE id = ?
	`

	result, err := s.q.ExecContext(ctx, query,
		nullString(note.TaskID),
		nullString(note.ProjectID),
		nullString(note.GoalID),
		nullString(note.LifeAreaID),
		note.Title,
		note.Content,
		formatTime(note.UpdatedAt),
		nullTime(note.ArchivedAt),
		note.ID,
	)
	if err != nil {
		return insertError(domain.EntityNote, "update note", err)
	}

	return affectedOrNotFound(result, domain.EntityNote, note.ID)
}

// DeleteNote deletes a note by ID
func (s *SQLiteStore) DeleteNote(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return affectedOrNotFound(result, domain.EntityNote, id)
}
