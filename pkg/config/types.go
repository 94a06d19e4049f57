package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// DateLayout is the layout of every date in a workspace document.
const DateLayout = "2006-01-02"

// Workspace is a declarative description of part of the hierarchy. Map
// keys are stable references: the planner matches documents against the
// database by name, and reports nodes by key path.
type Workspace struct {
	Areas map[string]AreaSpec `json:"areas" validate:"required,min=1,dive"`
}

// AreaSpec describes a life area and its goals.
type AreaSpec struct {
	Name        string              `json:"name" validate:"required,max=100"`
	Description string              `json:"description,omitempty" validate:"max=500"`
	Color       string              `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Icon        string              `json:"icon,omitempty" validate:"max=50"`
	Goals       map[string]GoalSpec `json:"goals,omitempty" validate:"dive"`
}

// GoalSpec describes a goal and its projects.
type GoalSpec struct {
	Name        string                 `json:"name" validate:"required,max=100"`
	Description string                 `json:"description,omitempty" validate:"max=500"`
	Status      string                 `json:"status,omitempty" validate:"omitempty,oneof=active paused completed cancelled"`
	TargetDate  string                 `json:"target_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Projects    map[string]ProjectSpec `json:"projects,omitempty" validate:"dive"`
}

// ProjectSpec describes a project and its tasks.
type ProjectSpec struct {
	Name        string              `json:"name" validate:"required,max=100"`
	Description string              `json:"description,omitempty" validate:"max=500"`
	Status      string              `json:"status,omitempty" validate:"omitempty,oneof=planning active on_hold completed cancelled"`
	StartDate   string              `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate     string              `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Tasks       map[string]TaskSpec `json:"tasks,omitempty" validate:"dive"`
}

// TaskSpec describes a task. Subtasks of subtasks are rejected by the schema.
type TaskSpec struct {
	Name             string              `json:"name" validate:"required,max=100"`
	Description      string              `json:"description,omitempty" validate:"max=2000"`
	Priority         string              `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Status           string              `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress completed cancelled"`
	DueDate          string              `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EstimatedMinutes *int                `json:"estimated_minutes,omitempty" validate:"omitempty,min=0,max=10080"`
	RecurrenceRule   string              `json:"recurrence_rule,omitempty" validate:"max=500"`
	Tags             []string            `json:"tags,omitempty" validate:"dive,required,max=50"`
	Subtasks         map[string]TaskSpec `json:"subtasks,omitempty" validate:"dive"`
}

// Counts returns how many nodes of each level the workspace declares.
// Subtasks are counted as tasks.
func (w *Workspace) Counts() map[domain.EntityType]int {
	counts := map[domain.EntityType]int{}
	for _, area := range w.Areas {
		counts[domain.EntityLifeArea]++
		for _, goal := range area.Goals {
			counts[domain.EntityGoal]++
			for _, project := range goal.Projects {
				counts[domain.EntityProject]++
				for _, task := range project.Tasks {
					counts[domain.EntityTask] += 1 + len(task.Subtasks)
				}
			}
		}
	}
	return counts
}

// SortedKeys returns the keys of m in lexical order so that plans are
// deterministic.
func SortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// ParseDate converts a document date to a time. Dates are calendar days in
// the local time zone: endOfDay selects 23:59 of that day (due dates),
// otherwise midnight (start and target dates). The result is in UTC. An
// empty string is nil.
func ParseDate(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation(DateLayout, value, time.Local)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", value))
	}
	t := day
	if endOfDay {
		t = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 0, 0, time.Local)
	}
	t = t.UTC()
	return &t, nil
}

// FormatDate renders t as the local calendar day ParseDate would read back.
func FormatDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// ParsedWorkspace is the result of parsing one or more workspace sources.
type ParsedWorkspace struct {
	Workspace   Workspace         `json:"workspace"`
	SourceFiles []string          `json:"source_files"`
	ParsedAt    time.Time         `json:"parsed_at"`
	Errors      []ValidationError `json:"errors,omitempty"`
}

// Err folds the parse errors into a single validation error.
func (p *ParsedWorkspace) Err() error {
	if len(p.Errors) == 0 {
		return nil
	}
	lines := make([]string, len(p.Errors))
	for i, e := range p.Errors {
		lines[i] = e.String()
	}
	return domain.NewValidationError(fmt.Sprintf("workspace has %d error(s): %s", len(p.Errors), strings.Join(lines, "; "))).
		WithDetail("errors", p.Errors)
}

// ValidationError locates a problem in a workspace document.
type ValidationError struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}
