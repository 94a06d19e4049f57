package domain

import (
	"time"
)

// GoalStatus represents the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusPaused    GoalStatus = "paused"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusCancelled GoalStatus = "cancelled"
)

// Valid reports whether s is a known goal status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusActive, GoalStatusPaused, GoalStatusCompleted, GoalStatusCancelled:
		return true
	}
	return false
}

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusOnHold,
		ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

// Open reports whether the task still needs work.
func (s TaskStatus) Open() bool {
	return s == TaskStatusTodo || s == TaskStatusInProgress
}

// TaskPriority ranks tasks within a list.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities with the most pressing first.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityUrgent:
		return 0
	case TaskPriorityHigh:
		return 1
	case TaskPriorityMedium:
		return 2
	default:
		return 3
	}
}

// EntityType names a table in the hierarchy.
type EntityType string

const (
	EntityLifeArea EntityType = "life_area"
	EntityGoal     EntityType = "goal"
	EntityProject  EntityType = "project"
	EntityTask     EntityType = "task"
	EntityNote     EntityType = "note"
	EntityTag      EntityType = "tag"
)

// EntityDatabase is the subject of repository-wide change events (backup,
// restore, cleanup). It is not a table and Valid rejects it.
const EntityDatabase EntityType = "database"

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityLifeArea, EntityGoal, EntityProject, EntityTask, EntityNote, EntityTag:
		return true
	}
	return false
}

// Title returns the display name used in user-facing messages.
func (t EntityType) Title() string {
	switch t {
	case EntityLifeArea:
		return "Life area"
	case EntityGoal:
		return "Goal"
	case EntityProject:
		return "Project"
	case EntityTask:
		return "Task"
	case EntityNote:
		return "Note"
	case EntityTag:
		return "Tag"
	}
	return "Entity"
}

// LifeArea is the top level of the hierarchy (health, career, family...).
type LifeArea struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Icon        *string    `json:"icon,omitempty"`
	SortOrder   int        `json:"sort_order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// Goal is an outcome pursued within a life area.
type Goal struct {
	ID          string     `json:"id"`
	LifeAreaID  string     `json:"life_area_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
	Status      GoalStatus `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// Project groups tasks that advance a goal.
type Project struct {
	ID          string        `json:"id"`
	GoalID      string        `json:"goal_id"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	StartDate   *time.Time    `json:"start_date,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Status      ProjectStatus `json:"status"`
	Progress    int           `json:"progress"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	ArchivedAt  *time.Time    `json:"archived_at,omitempty"`
}

// Task is a unit of work. A task without a project lives in the inbox.
type Task struct {
	ID               string       `json:"id"`
	ProjectID        *string      `json:"project_id,omitempty"`
	ParentTaskID     *string      `json:"parent_task_id,omitempty"`
	Name             string       `json:"name"`
	Description      *string      `json:"description,omitempty"`
	Priority         TaskPriority `json:"priority"`
	Status           TaskStatus   `json:"status"`
	DueDate          *time.Time   `json:"due_date,omitempty"`
	EstimatedMinutes *int         `json:"estimated_minutes,omitempty"`
	ActualMinutes    *int         `json:"actual_minutes,omitempty"`
	RecurrenceRule   *string      `json:"recurrence_rule,omitempty"`
	Tags             []string     `json:"tags,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	ArchivedAt       *time.Time   `json:"archived_at,omitempty"`
}

// IsOverdue reports whether an open task is past its due date at now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.Status.Open() && t.DueDate.Before(now)
}

// Note is free-form text optionally attached to one entity of the hierarchy.
type Note struct {
	ID         string     `json:"id"`
	TaskID     *string    `json:"task_id,omitempty"`
	ProjectID  *string    `json:"project_id,omitempty"`
	GoalID     *string    `json:"goal_id,omitempty"`
	LifeAreaID *string    `json:"life_area_id,omitempty"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Tag labels tasks across projects.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     *string   `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DatabaseStats summarises row counts.
type DatabaseStats struct {
	LifeAreasCount     int64 `json:"life_areas_count"`
	GoalsCount         int64 `json:"goals_count"`
	ProjectsCount      int64 `json:"projects_count"`
	TasksCount         int64 `json:"tasks_count"`
	NotesCount         int64 `json:"notes_count"`
	TagsCount          int64 `json:"tags_count"`
	ArchivedItemsCount int64 `json:"archived_items_count"`
}

// CleanupOptions selects what a database cleanup removes.
type CleanupOptions struct {
	OlderThanDays int  `json:"older_than_days" validate:"min=1,max=36500"`
	Vacuum        bool `json:"vacuum"`
}

// TransactionResult reports the outcome of a repository-level operation.
type TransactionResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AffectedRows int64  `json:"affected_rows"`
}

// ExportFormat selects the serialisation of an export.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatYAML ExportFormat = "yaml"
)

// ExportRequest configures export_all_data.
type ExportRequest struct {
	IncludeArchived bool         `json:"include_archived"`
	Format          ExportFormat `json:"format" validate:"omitempty,oneof=json yaml"`
}

// ExportData holds every table of the hierarchy.
type ExportData struct {
	LifeAreas []LifeArea `json:"life_areas" yaml:"life_areas"`
	Goals     []Goal     `json:"goals" yaml:"goals"`
	Projects  []Project  `json:"projects" yaml:"projects"`
	Tasks     []Task     `json:"tasks" yaml:"tasks"`
	Notes     []Note     `json:"notes" yaml:"notes"`
	Tags      []Tag      `json:"tags" yaml:"tags"`
}

// ItemCount returns the number of exported rows.
func (d *ExportData) ItemCount() int {
	return len(d.LifeAreas) + len(d.Goals) + len(d.Projects) +
		len(d.Tasks) + len(d.Notes) + len(d.Tags)
}

// ExportResult is the payload of export_all_data. Data is the serialised
// ExportData in the requested format.
type ExportResult struct {
	Data       string       `json:"data"`
	Format     ExportFormat `json:"format"`
	ItemCount  int          `json:"item_count"`
	ExportDate time.Time    `json:"export_date"`
}

// BatchDeleteRequest deletes many rows of one entity type.
type BatchDeleteRequest struct {
	EntityType EntityType `json:"entity_type" validate:"required"`
	IDs        []string   `json:"ids" validate:"required,min=1"`
}

// MigrationStatus describes the schema version of the database.
type MigrationStatus struct {
	CurrentVersion uint `json:"current_version"`
	LatestVersion  uint `json:"latest_version"`
	Dirty          bool `json:"dirty"`
	Pending        int  `json:"pending"`
}
