package domain

import (
	"reflect"
	"strings"
	"time"
)

// CreateLifeAreaRequest is the input of create_life_area.
type CreateLifeAreaRequest struct {
	Name        string  `json:"name" validate:"entity_name"`
	Description *string `json:"description,omitempty" validate:"omitempty,text=500"`
	Color       *string `json:"color,omitempty" validate:"omitempty,color_hex"`
	Icon        *string `json:"icon,omitempty" validate:"omitempty,max=50"`
}

// UpdateLifeAreaRequest changes the non-nil fields of a life area.
type UpdateLifeAreaRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,entity_name"`
	Description *string `json:"description,omitempty" validate:"omitempty,text=500"`
	Color       *string `json:"color,omitempty" validate:"omitempty,color_hex"`
	Icon        *string `json:"icon,omitempty" validate:"omitempty,max=50"`
	SortOrder   *int    `json:"sort_order,omitempty" validate:"omitempty,min=0"`
}

// CreateGoalRequest is the input of create_goal.
type CreateGoalRequest struct {
	LifeAreaID  string      `json:"life_area_id"`
	Name        string      `json:"name" validate:"entity_name"`
	Description *string     `json:"description,omitempty" validate:"omitempty,text=500"`
	TargetDate  *time.Time  `json:"target_date,omitempty"`
	Status      *GoalStatus `json:"status,omitempty" validate:"omitempty,oneof=active paused completed cancelled"`
}

// UpdateGoalRequest changes the non-nil fields of a goal.
type UpdateGoalRequest struct {
	LifeAreaID  *string     `json:"life_area_id,omitempty"`
	Name        *string     `json:"name,omitempty" validate:"omitempty,entity_name"`
	Description *string     `json:"description,omitempty" validate:"omitempty,text=500"`
	TargetDate  *time.Time  `json:"target_date,omitempty"`
	Status      *GoalStatus `json:"status,omitempty" validate:"omitempty,oneof=active paused completed cancelled"`
	Progress    *int        `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
}

// CreateProjectRequest is the input of create_project.
type CreateProjectRequest struct {
	GoalID      string         `json:"goal_id"`
	Name        string         `json:"name" validate:"entity_name"`
	Description *string        `json:"description,omitempty" validate:"omitempty,text=500"`
	StartDate   *time.Time     `json:"start_date,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=planning active on_hold completed cancelled"`
}

// UpdateProjectRequest changes the non-nil fields of a project.
type UpdateProjectRequest struct {
	GoalID      *string        `json:"goal_id,omitempty"`
	Name        *string        `json:"name,omitempty" validate:"omitempty,entity_name"`
	Description *string        `json:"description,omitempty" validate:"omitempty,text=500"`
	StartDate   *time.Time     `json:"start_date,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty" validate:"omitempty,oneof=planning active on_hold completed cancelled"`
	Progress    *int           `json:"progress,omitempty" validate:"omitempty,min=0,max=100"`
}

// CreateTaskRequest is the input of create_task.
type CreateTaskRequest struct {
	ProjectID        *string       `json:"project_id,omitempty"`
	ParentTaskID     *string       `json:"parent_task_id,omitempty"`
	Name             string        `json:"name" validate:"entity_name"`
	Description      *string       `json:"description,omitempty" validate:"omitempty,text=2000"`
	Priority         *TaskPriority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	DueDate          *time.Time    `json:"due_date,omitempty"`
	EstimatedMinutes *int          `json:"estimated_minutes,omitempty" validate:"omitempty,min=0,max=10080"`
	RecurrenceRule   *string       `json:"recurrence_rule,omitempty" validate:"omitempty,rrule"`
	Tags             []string      `json:"tags,omitempty" validate:"omitempty,dive,tag_name"`
}

// UpdateTaskRequest changes the non-nil fields of a task.
type UpdateTaskRequest struct {
	ProjectID        *string       `json:"project_id,omitempty"`
	Name             *string       `json:"name,omitempty" validate:"omitempty,entity_name"`
	Description      *string       `json:"description,omitempty" validate:"omitempty,text=2000"`
	Priority         *TaskPriority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Status           *TaskStatus   `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress completed cancelled"`
	DueDate          *time.Time    `json:"due_date,omitempty"`
	EstimatedMinutes *int          `json:"estimated_minutes,omitempty" validate:"omitempty,min=0,max=10080"`
	ActualMinutes    *int          `json:"actual_minutes,omitempty" validate:"omitempty,min=0,max=10080"`
	RecurrenceRule   *string       `json:"recurrence_rule,omitempty" validate:"omitempty,rrule"`
}

// CreateTaskWithSubtasksRequest creates a parent task and its subtasks
// atomically. Subtasks inherit the parent's project.
type CreateTaskWithSubtasksRequest struct {
	Task     CreateTaskRequest   `json:"task"`
	Subtasks []CreateTaskRequest `json:"subtasks" validate:"dive"`
}

// BulkUpdateTasksRequest applies the same change to many tasks.
type BulkUpdateTasksRequest struct {
	TaskIDs   []string      `json:"task_ids" validate:"required,min=1"`
	ProjectID *string       `json:"project_id,omitempty"`
	Status    *TaskStatus   `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress completed cancelled"`
	Priority  *TaskPriority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
}

// CreateNoteRequest is the input of create_note. At most one parent may be set.
type CreateNoteRequest struct {
	TaskID     *string `json:"task_id,omitempty"`
	ProjectID  *string `json:"project_id,omitempty"`
	GoalID     *string `json:"goal_id,omitempty"`
	LifeAreaID *string `json:"life_area_id,omitempty"`
	Title      string  `json:"title" validate:"note_title"`
	Content    string  `json:"content" validate:"max=50000"`
}

// Parent returns the entity the note is attached to, if any.
func (r *CreateNoteRequest) Parent() (EntityType, string, bool) {
	switch {
	case r.TaskID != nil:
		return EntityTask, *r.TaskID, true
	case r.ProjectID != nil:
		return EntityProject, *r.ProjectID, true
	case r.GoalID != nil:
		return EntityGoal, *r.GoalID, true
	case r.LifeAreaID != nil:
		return EntityLifeArea, *r.LifeAreaID, true
	}
	return "", "", false
}

// parentCount returns how many parent references are set.
func (r *CreateNoteRequest) parentCount() int {
	n := 0
	for _, p := range []*string{r.TaskID, r.ProjectID, r.GoalID, r.LifeAreaID} {
		if p != nil {
			n++
		}
	}
	return n
}

// UpdateNoteRequest changes the non-nil fields of a note.
type UpdateNoteRequest struct {
	Title   *string `json:"title,omitempty" validate:"omitempty,note_title"`
	Content *string `json:"content,omitempty" validate:"omitempty,max=50000"`
}

// CreateTagRequest is the input of create_tag.
type CreateTagRequest struct {
	Name  string  `json:"name" validate:"tag_name"`
	Color *string `json:"color,omitempty" validate:"omitempty,color_hex"`
}

// LogsRequest is the input of get_recent_logs.
type LogsRequest struct {
	Count       int     `json:"count,omitempty"`
	LevelFilter *string `json:"level_filter,omitempty" validate:"omitempty,oneof=error warn info debug trace"`
}

// HasChanges reports whether an update request sets at least one field.
// Every exported pointer, slice or map field counts when non-nil.
func HasChanges(req interface{}) bool {
	v := reflect.ValueOf(req)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map:
			if !f.IsNil() {
				return true
			}
		}
	}
	return false
}

// TrimName normalises a user supplied name.
func TrimName(s string) string {
	return strings.TrimSpace(s)
}
