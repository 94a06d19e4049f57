package stores

import (
	"context"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// BulkTaskUpdate applies the same change to a set of tasks.
type BulkTaskUpdate struct {
	TaskIDs   []string
	ProjectID *string
	Status    *domain.TaskStatus
	Priority  *domain.TaskPriority
}

// BulkTaskResult reports what a bulk update touched.
type BulkTaskResult struct {
	Affected int64
	// ProjectIDs lists every project whose task set changed, before and
	// after the update.
	ProjectIDs []string
}

// CleanupReport lists the rows removed by Cleanup, per table.
type CleanupReport struct {
	Deleted map[string]int64
	Total   int64
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	MigrationStatus(ctx context.Context) (*domain.MigrationStatus, error)
	HealthCheck(ctx context.Context) error
	WithTx(ctx context.Context, fn func(Store) error) error
	Snapshot(ctx context.Context, dest string) error
	Vacuum(ctx context.Context) error
	Path() string

	// Life areas
	CreateLifeArea(ctx context.Context, area *domain.LifeArea) error
	GetLifeArea(ctx context.Context, id string) (*domain.LifeArea, error)
	ListLifeAreas(ctx context.Context) ([]domain.LifeArea, error)
	UpdateLifeArea(ctx context.Context, area *domain.LifeArea) error
	DeleteLifeArea(ctx context.Context, id string) error
	ReorderLifeAreas(ctx context.Context, ids []string, now time.Time) error

	// Goals
	CreateGoal(ctx context.Context, goal *domain.Goal) error
	GetGoal(ctx context.Context, id string) (*domain.Goal, error)
	ListGoals(ctx context.Context) ([]domain.Goal, error)
	ListGoalsByLifeArea(ctx context.Context, lifeAreaID string) ([]domain.Goal, error)
	UpdateGoal(ctx context.Context, goal *domain.Goal) error
	DeleteGoal(ctx context.Context, id string) error
	RecomputeGoalProgress(ctx context.Context, goalID string, now time.Time) (int, error)

	// Projects
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	ListProjectsByGoal(ctx context.Context, goalID string) ([]domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, id string) error
	RecomputeProjectProgress(ctx context.Context, projectID string, now time.Time) (int, error)
	ArchiveProjectCascade(ctx context.Context, projectID string, now time.Time) (int64, error)

	// Tasks
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error)
	ListSubtasks(ctx context.Context, parentID string) ([]domain.Task, error)
	ListTasksDueBetween(ctx context.Context, start, end time.Time) ([]domain.Task, error)
	ListOverdueTasks(ctx context.Context, now time.Time) ([]domain.Task, error)
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	BulkUpdateTasks(ctx context.Context, update BulkTaskUpdate, now time.Time) (*BulkTaskResult, error)
	MoveTaskSubtree(ctx context.Context, rootID, projectID string, now time.Time) (int64, error)

	// Tags
	CreateTag(ctx context.Context, tag *domain.Tag) error
	GetTagByName(ctx context.Context, name string) (*domain.Tag, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)
	DeleteTag(ctx context.Context, id string) error
	TagTask(ctx context.Context, taskID, tagID string, now time.Time) error
	UntagTask(ctx context.Context, taskID, tagID string) error

	// Notes
	CreateNote(ctx context.Context, note *domain.Note) error
	GetNote(ctx context.Context, id string) (*domain.Note, error)
	ListNotes(ctx context.Context) ([]domain.Note, error)
	ListNotesByParent(ctx context.Context, parent domain.EntityType, parentID string) ([]domain.Note, error)
	UpdateNote(ctx context.Context, note *domain.Note) error
	DeleteNote(ctx context.Context, id string) error
	SearchNotes(ctx context.Context, query string) ([]domain.Note, error)

	// Repository maintenance
	Stats(ctx context.Context) (*domain.DatabaseStats, error)
	CountChildren(ctx context.Context, entity domain.EntityType, id string) (int64, error)
	Cleanup(ctx context.Context, cutoff time.Time) (*CleanupReport, error)
	ExportAll(ctx context.Context, includeArchived bool) (*domain.ExportData, error)
	BatchDelete(ctx context.Context, entity domain.EntityType, ids []string) (int64, error)
}
