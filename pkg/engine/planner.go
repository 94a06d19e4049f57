package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
)

// Reader is the read side of the service the planner matches documents
// against.
type Reader interface {
	ListLifeAreas(ctx context.Context) ([]domain.LifeArea, error)
	ListGoalsByLifeArea(ctx context.Context, lifeAreaID string) ([]domain.Goal, error)
	ListProjectsByGoal(ctx context.Context, goalID string) ([]domain.Project, error)
	ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error)
	ListSubtasks(ctx context.Context, parentID string) ([]domain.Task, error)
}

// Planner computes the difference between a workspace document and the
// database. Nodes are matched by name, ignoring case, among the children
// of the matched parent; a node under a parent that will be created is
// always created.
type Planner struct {
	reader Reader
	logger zerolog.Logger
	now    func() time.Time
}

// NewPlanner creates a planner reading through reader.
func NewPlanner(reader Reader, logger zerolog.Logger) *Planner {
	return &Planner{
		reader: reader,
		logger: logger.With().Str("component", "planner").Logger(),
		now:    time.Now,
	}
}

// Plan builds the plan for ws and its execution graph.
func (p *Planner) Plan(ctx context.Context, ws *config.Workspace) (*Plan, error) {
	if ws == nil {
		return nil, domain.NewValidationError("workspace is nil")
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: p.now().UTC(),
		Units:     make([]PlanUnit, 0),
	}

	if err := p.planAreas(ctx, plan, ws.Areas); err != nil {
		return nil, err
	}

	if _, err := p.BuildDAG(plan); err != nil {
		return nil, err
	}
	plan.summarize()

	p.logger.Debug().
		Str("plan_id", plan.ID).
		Int("create", plan.Summary.ToCreate).
		Int("update", plan.Summary.ToUpdate).
		Int("noop", plan.Summary.NoChange).
		Msg("workspace planned")

	return plan, nil
}

// BuildDAG builds, validates and attaches the execution graph of plan.
func (p *Planner) BuildDAG(plan *Plan) (*ExecutionGraph, error) {
	if plan == nil {
		return nil, graphError("plan is nil")
	}

	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(plan.Units)
	if err != nil {
		return nil, err
	}
	if err := builder.ValidateGraph(graph); err != nil {
		return nil, err
	}

	plan.Graph = graph
	return graph, nil
}

func unitID(entity domain.EntityType, key string) string {
	return string(entity) + ":" + key
}

func childKey(parent *PlanUnit, key string) string {
	if parent == nil {
		return key
	}
	return parent.Key + "/" + key
}

func (p *Planner) add(plan *Plan, parent *PlanUnit, unit PlanUnit) *PlanUnit {
	unit.ID = unitID(unit.Entity, unit.Key)
	unit.Status = PlanStatusPending
	switch {
	case unit.EntityID == "":
		unit.Operation = OperationCreate
	case len(unit.Changes) > 0:
		unit.Operation = OperationUpdate
	default:
		unit.Operation = OperationNoop
	}
	if parent != nil {
		unit.Parent = parent.ID
		unit.Dependencies = []Dependency{{TargetID: parent.ID, Type: DependencyParent}}
	}

	plan.Units = append(plan.Units, unit)
	return &plan.Units[len(plan.Units)-1]
}

// checkSiblings rejects two document keys with the same name under one
// parent, since both would match the same row.
func checkSiblings[V any](parentKey string, specs map[string]V, name func(V) string) error {
	seen := make(map[string]string, len(specs))
	for _, key := range config.SortedKeys(specs) {
		folded := strings.ToLower(strings.TrimSpace(name(specs[key])))
		if other, ok := seen[folded]; ok {
			where := "the workspace"
			if parentKey != "" {
				where = parentKey
			}
			return domain.NewValidationError(fmt.Sprintf("%s and %s share the name %q under %s", other, key, name(specs[key]), where))
		}
		seen[folded] = key
	}
	return nil
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (p *Planner) planAreas(ctx context.Context, plan *Plan, specs map[string]config.AreaSpec) error {
	if err := checkSiblings("", specs, func(s config.AreaSpec) string { return s.Name }); err != nil {
		return err
	}

	existing, err := p.reader.ListLifeAreas(ctx)
	if err != nil {
		return err
	}

	for _, key := range config.SortedKeys(specs) {
		spec := specs[key]
		unit := PlanUnit{Entity: domain.EntityLifeArea, Key: key, Name: spec.Name, Spec: spec}
		for i := range existing {
			if sameName(existing[i].Name, spec.Name) {
				unit.EntityID = existing[i].ID
				unit.Changes = diffArea(spec, &existing[i])
				break
			}
		}

		parent := p.add(plan, nil, unit)
		if err := p.planGoals(ctx, plan, parent, spec.Goals); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) planGoals(ctx context.Context, plan *Plan, parent *PlanUnit, specs map[string]config.GoalSpec) error {
	if err := checkSiblings(parent.Key, specs, func(s config.GoalSpec) string { return s.Name }); err != nil {
		return err
	}

	var existing []domain.Goal
	if parent.EntityID != "" {
		var err error
		if existing, err = p.reader.ListGoalsByLifeArea(ctx, parent.EntityID); err != nil {
			return err
		}
	}
	parentID := parent.ID

	for _, key := range config.SortedKeys(specs) {
		spec := specs[key]
		unit := PlanUnit{Entity: domain.EntityGoal, Key: childKey(parent, key), Name: spec.Name, Spec: spec}
		for i := range existing {
			if sameName(existing[i].Name, spec.Name) {
				unit.EntityID = existing[i].ID
				unit.Changes = diffGoal(spec, &existing[i])
				break
			}
		}

		// add may grow plan.Units, so the parent pointer is re-resolved.
		parent, _ = plan.Unit(parentID)
		goal := p.add(plan, parent, unit)
		if err := p.planProjects(ctx, plan, goal, spec.Projects); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) planProjects(ctx context.Context, plan *Plan, parent *PlanUnit, specs map[string]config.ProjectSpec) error {
	if err := checkSiblings(parent.Key, specs, func(s config.ProjectSpec) string { return s.Name }); err != nil {
		return err
	}

	var existing []domain.Project
	if parent.EntityID != "" {
		var err error
		if existing, err = p.reader.ListProjectsByGoal(ctx, parent.EntityID); err != nil {
			return err
		}
	}
	parentID := parent.ID

	for _, key := range config.SortedKeys(specs) {
		spec := specs[key]
		unit := PlanUnit{Entity: domain.EntityProject, Key: childKey(parent, key), Name: spec.Name, Spec: spec}
		for i := range existing {
			if sameName(existing[i].Name, spec.Name) {
				unit.EntityID = existing[i].ID
				unit.Changes = diffProject(spec, &existing[i])
				break
			}
		}

		parent, _ = plan.Unit(parentID)
		project := p.add(plan, parent, unit)
		if err := p.planTasks(ctx, plan, project, spec.Tasks, false); err != nil {
			return err
		}
	}
	return nil
}

// planTasks plans the tasks of a project, or the subtasks of a task when
// subtasks is set.
func (p *Planner) planTasks(ctx context.Context, plan *Plan, parent *PlanUnit, specs map[string]config.TaskSpec, subtasks bool) error {
	if err := checkSiblings(parent.Key, specs, func(s config.TaskSpec) string { return s.Name }); err != nil {
		return err
	}

	var existing []domain.Task
	if parent.EntityID != "" {
		var err error
		if subtasks {
			existing, err = p.reader.ListSubtasks(ctx, parent.EntityID)
		} else {
			existing, err = p.reader.ListTasksByProject(ctx, parent.EntityID)
		}
		if err != nil {
			return err
		}
	}
	parentID := parent.ID

	for _, key := range config.SortedKeys(specs) {
		spec := specs[key]
		unit := PlanUnit{Entity: domain.EntityTask, Key: childKey(parent, key), Name: spec.Name, Spec: spec}
		for i := range existing {
			// Project listings include subtasks; only top-level tasks match.
			if !subtasks && existing[i].ParentTaskID != nil {
				continue
			}
			if sameName(existing[i].Name, spec.Name) {
				unit.EntityID = existing[i].ID
				unit.Changes = diffTask(spec, &existing[i])
				break
			}
		}

		parent, _ = plan.Unit(parentID)
		task := p.add(plan, parent, unit)
		if !subtasks {
			if err := p.planTasks(ctx, plan, task, spec.Subtasks, true); err != nil {
				return err
			}
		}
	}
	return nil
}

type differ struct {
	changes []Change
}

// text records a change when want is set and differs from have.
func (d *differ) text(field, want string, have *string) {
	if want == "" {
		return
	}
	before := ""
	if have != nil {
		before = *have
	}
	if before != want {
		d.changes = append(d.changes, Change{Field: field, Before: before, After: want})
	}
}

func (d *differ) value(field, want, have string) {
	d.text(field, want, &have)
}

func (d *differ) date(field, want string, have *time.Time) {
	before := ""
	if have != nil {
		before = config.FormatDate(*have)
	}
	d.text(field, want, &before)
}

func diffArea(spec config.AreaSpec, area *domain.LifeArea) []Change {
	var d differ
	d.value("name", spec.Name, area.Name)
	d.text("description", spec.Description, area.Description)
	d.text("color", spec.Color, area.Color)
	d.text("icon", spec.Icon, area.Icon)
	return d.changes
}

func diffGoal(spec config.GoalSpec, goal *domain.Goal) []Change {
	var d differ
	d.value("name", spec.Name, goal.Name)
	d.text("description", spec.Description, goal.Description)
	d.value("status", spec.Status, string(goal.Status))
	d.date("target_date", spec.TargetDate, goal.TargetDate)
	return d.changes
}

func diffProject(spec config.ProjectSpec, project *domain.Project) []Change {
	var d differ
	d.value("name", spec.Name, project.Name)
	d.text("description", spec.Description, project.Description)
	d.value("status", spec.Status, string(project.Status))
	d.date("start_date", spec.StartDate, project.StartDate)
	d.date("due_date", spec.DueDate, project.DueDate)
	return d.changes
}

func diffTask(spec config.TaskSpec, task *domain.Task) []Change {
	var d differ
	d.value("name", spec.Name, task.Name)
	d.text("description", spec.Description, task.Description)
	d.value("priority", spec.Priority, string(task.Priority))
	d.value("status", spec.Status, string(task.Status))
	d.date("due_date", spec.DueDate, task.DueDate)
	if spec.EstimatedMinutes != nil {
		before := ""
		if task.EstimatedMinutes != nil {
			before = strconv.Itoa(*task.EstimatedMinutes)
		}
		d.value("estimated_minutes", strconv.Itoa(*spec.EstimatedMinutes), before)
	}
	d.text("recurrence_rule", spec.RecurrenceRule, task.RecurrenceRule)

	for _, tag := range spec.Tags {
		if !hasTag(task.Tags, tag) {
			d.changes = append(d.changes, Change{Field: "tag", After: tag})
		}
	}
	return d.changes
}

func hasTag(tags []string, name string) bool {
	for _, tag := range tags {
		if sameName(tag, name) {
			return true
		}
	}
	return false
}
