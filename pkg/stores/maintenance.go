package stores

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// entityTables maps entity types to their tables.
var entityTables = map[domain.EntityType]string{
	domain.EntityLifeArea: "life_areas",
	domain.EntityGoal:     "goals",
	domain.EntityProject:  "projects",
	domain.EntityTask:     "tasks",
	domain.EntityNote:     "notes",
	domain.EntityTag:      "tags",
}

// childQueries count the direct children that block deleting an entity.
var childQueries = map[domain.EntityType]string{
	domain.EntityLifeArea: `SELECT COUNT(*) FROM goals WHERE life_area_id = ?`,
	domain.EntityGoal:     `SELECT COUNT(*) FROM projects WHERE goal_id = ?`,
	domain.EntityProject:  `SELECT COUNT(*) FROM tasks WHERE project_id = ?`,
	domain.EntityTask:     `SELECT COUNT(*) FROM tasks WHERE parent_task_id = ?`,
}

// cleanupOrder deletes leaves before parents so cascades do not inflate counts.
var cleanupOrder = []string{"notes", "tasks", "projects", "goals", "life_areas"}

// Stats counts live rows per table and archived rows across the hierarchy.
func (s *SQLiteStore) Stats(ctx context.Context) (*domain.DatabaseStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM life_areas WHERE archived_at IS NULL),
			(SELECT COUNT(*) FROM goals WHERE archived_at IS NULL),
			(SELECT COUNT(*) FROM projects WHERE archived_at IS NULL),
			(SELECT COUNT(*) FROM tasks WHERE archived_at IS NULL),
			(SELECT COUNT(*) FROM notes WHERE archived_at IS NULL),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM life_areas WHERE archived_at IS NOT NULL) +
			(SELECT COUNT(*) FROM goals WHERE archived_at IS NOT NULL) +
			(SELECT COUNT(*) FROM projects WHERE archived_at IS NOT NULL) +
			(SELECT COUNT(*) FROM tasks WHERE archived_at IS NOT NULL) +
			(SELECT COUNT(*) FROM notes WHERE archived_at IS NOT NULL)
	`

	var stats domain.DatabaseStats
	err := s.q.QueryRowContext(ctx, query).Scan(
		&stats.LifeAreasCount,
		&stats.GoalsCount,
		&stats.ProjectsCount,
		&stats.TasksCount,
		&stats.NotesCount,
		&stats.TagsCount,
		&stats.ArchivedItemsCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get database stats: %w", err)
	}

	return &stats, nil
}

// CountChildren returns how many direct children reference the entity,
// archived ones included. Notes and tags have none.
func (s *SQLiteStore) CountChildren(ctx context.Context, entity domain.EntityType, id string) (int64, error) {
	query, ok := childQueries[entity]
	if !ok {
		return 0, nil
	}

	var n int64
	if err := s.q.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return n, nil
}

// Cleanup permanently deletes rows archived before cutoff.
func (s *SQLiteStore) Cleanup(ctx context.Context, cutoff time.Time) (*CleanupReport, error) {
	report := &CleanupReport{Deleted: make(map[string]int64, len(cleanupOrder))}

	err := s.WithTx(ctx, func(tx Store) error {
		txs := tx.(*SQLiteStore)
		for _, table := range cleanupOrder {
			result, err := txs.q.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE archived_at IS NOT NULL AND archived_at < ?`,
				formatTime(cutoff),
			)
			if err != nil {
				return fmt.Errorf("failed to clean up %s: %w", table, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			report.Deleted[table] = n
			report.Total += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

// ExportAll reads every table in one transaction so the snapshot is consistent.
func (s *SQLiteStore) ExportAll(ctx context.Context, includeArchived bool) (*domain.ExportData, error) {
	filter := ` WHERE archived_at IS NULL`
	if includeArchived {
		filter = ``
	}

	data := &domain.ExportData{}
	err := s.WithTx(ctx, func(tx Store) error {
		txs := tx.(*SQLiteStore)
		var err error

		if data.LifeAreas, err = txs.queryLifeAreas(ctx,
			`SELECT `+lifeAreaColumns+` FROM life_areas`+filter+` ORDER BY sort_order ASC, name ASC`); err != nil {
			return err
		}
		if data.Goals, err = txs.queryGoals(ctx, `SELECT `+goalColumns+` FROM goals`+filter+goalOrder); err != nil {
			return err
		}
		if data.Projects, err = txs.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects`+filter+projectOrder); err != nil {
			return err
		}
		if data.Tasks, err = txs.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks`+filter+taskOrder); err != nil {
			return err
		}
		if data.Notes, err = txs.queryNotes(ctx,
			`SELECT `+noteColumns+` FROM notes`+filter+` ORDER BY updated_at DESC, id ASC`); err != nil {
			return err
		}
		data.Tags, err = txs.ListTags(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// BatchDelete deletes the listed rows of one table in a single transaction
// and returns how many existed.
func (s *SQLiteStore) BatchDelete(ctx context.Context, entity domain.EntityType, ids []string) (int64, error) {
	table, ok := entityTables[entity]
	if !ok {
		return 0, domain.NewBadRequestError(fmt.Sprintf("unknown entity type %q", entity))
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.WithTx(ctx, func(tx Store) error {
		txs := tx.(*SQLiteStore)
		result, err := txs.q.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE id IN (`+placeholders(len(ids))+`)`,
			stringArgs(ids)...,
		)
		if err != nil {
			return fmt.Errorf("failed to batch delete %s: %w", table, err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// VerifyFile opens the database file at path read-only and checks that it
// is an intact, fully migrated EvorBrain database.
func VerifyFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to stat database file: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}
	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			rows.Close()
			return fmt.Errorf("failed to read integrity check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("failed to read integrity check: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("integrity check failed: %s", strings.Join(problems, "; "))
	}

	var version int64
	var dirty bool
	err = db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err != nil {
		return fmt.Errorf("not an EvorBrain database: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is at dirty migration version %d", version)
	}

	return nil
}
