package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
)

// Writer is the write side of the service a plan is applied through.
type Writer interface {
	CreateLifeArea(ctx context.Context, req domain.CreateLifeAreaRequest) (*domain.LifeArea, error)
	UpdateLifeArea(ctx context.Context, id string, req domain.UpdateLifeAreaRequest) (*domain.LifeArea, error)
	CreateGoal(ctx context.Context, req domain.CreateGoalRequest) (*domain.Goal, error)
	UpdateGoal(ctx context.Context, id string, req domain.UpdateGoalRequest) (*domain.Goal, error)
	CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.Project, error)
	UpdateProject(ctx context.Context, id string, req domain.UpdateProjectRequest) (*domain.Project, error)
	CreateTask(ctx context.Context, req domain.CreateTaskRequest) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, req domain.UpdateTaskRequest) (*domain.Task, error)
	TagTask(ctx context.Context, taskID, tagName string) (*domain.Task, error)
}

// Applier executes plans level by level. Units run one at a time so a
// failure leaves every later unit untouched.
type Applier struct {
	writer Writer
	logger zerolog.Logger
	now    func() time.Time
}

// NewApplier creates an applier writing through writer.
func NewApplier(writer Writer, logger zerolog.Logger) *Applier {
	return &Applier{
		writer: writer,
		logger: logger.With().Str("component", "applier").Logger(),
		now:    time.Now,
	}
}

// Apply executes plan. On failure the result is still returned, with the
// failing unit marked failed and the remaining units skipped, together
// with a *UnitError.
func (a *Applier) Apply(ctx context.Context, plan *Plan) (*ApplyResult, error) {
	if plan == nil {
		return nil, graphError("plan is nil")
	}
	if plan.Graph == nil {
		return nil, graphError("plan has no execution graph")
	}

	result := &ApplyResult{
		PlanID:    plan.ID,
		StartedAt: a.now().UTC(),
	}

	var runErr error
	for _, level := range plan.Graph.Levels() {
		for _, id := range level {
			unit, ok := plan.Unit(id)
			if !ok {
				return nil, graphError("graph references unknown unit " + id)
			}
			if runErr != nil {
				unit.Status = PlanStatusSkipped
				continue
			}
			if err := ctx.Err(); err != nil {
				runErr = err
				unit.Status = PlanStatusSkipped
				continue
			}

			if err := a.applyUnit(ctx, plan, unit); err != nil {
				unit.Status = PlanStatusFailed
				unit.Error = err.Error()
				result.FailedUnit = unit.ID
				runErr = &UnitError{
					UnitID:    unit.ID,
					Entity:    unit.Entity,
					Key:       unit.Key,
					Operation: unit.Operation,
					Err:       err,
				}
				a.logger.Error().Err(err).Str("unit", unit.ID).Msg("plan unit failed")
				continue
			}

			unit.Status = PlanStatusSucceeded
			if unit.Operation.IsMutating() {
				a.logger.Info().
					Str("unit", unit.ID).
					Str("operation", string(unit.Operation)).
					Str("entity_id", unit.EntityID).
					Msg("plan unit applied")
			}
		}
	}

	result.CompletedAt = a.now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Units = plan.Units
	result.Summary = summarizeRun(plan.Units)
	result.Status = runStatus(result.Summary, runErr)
	if runErr != nil {
		result.Error = runErr.Error()
	}

	return result, runErr
}

func summarizeRun(units []PlanUnit) RunSummary {
	summary := RunSummary{Total: len(units)}
	for _, unit := range units {
		switch unit.Status {
		case PlanStatusFailed:
			summary.Failed++
		case PlanStatusSkipped, PlanStatusPending:
			summary.Skipped++
		case PlanStatusSucceeded:
			switch unit.Operation {
			case OperationCreate:
				summary.Created++
			case OperationUpdate:
				summary.Updated++
			default:
				summary.Unchanged++
			}
		}
	}
	return summary
}

func runStatus(summary RunSummary, err error) RunStatus {
	if err == nil {
		return RunStatusSucceeded
	}
	if summary.Created+summary.Updated > 0 {
		return RunStatusPartial
	}
	return RunStatusFailed
}

// parentEntityID resolves the row a unit is created under. The parent has
// already been applied because it sits on an earlier level.
func parentEntityID(plan *Plan, unit *PlanUnit) (string, error) {
	parent, ok := plan.Unit(unit.Parent)
	if !ok || parent.EntityID == "" {
		return "", domain.NewInternalError("parent of "+unit.ID+" has not been applied", nil)
	}
	return parent.EntityID, nil
}

func (a *Applier) applyUnit(ctx context.Context, plan *Plan, unit *PlanUnit) error {
	if unit.Operation == OperationNoop {
		return nil
	}

	switch unit.Entity {
	case domain.EntityLifeArea:
		spec, ok := unit.Spec.(config.AreaSpec)
		if !ok {
			return specError(unit)
		}
		return a.applyArea(ctx, unit, spec)

	case domain.EntityGoal:
		spec, ok := unit.Spec.(config.GoalSpec)
		if !ok {
			return specError(unit)
		}
		return a.applyGoal(ctx, plan, unit, spec)

	case domain.EntityProject:
		spec, ok := unit.Spec.(config.ProjectSpec)
		if !ok {
			return specError(unit)
		}
		return a.applyProject(ctx, plan, unit, spec)

	case domain.EntityTask:
		spec, ok := unit.Spec.(config.TaskSpec)
		if !ok {
			return specError(unit)
		}
		return a.applyTask(ctx, plan, unit, spec)
	}

	return specError(unit)
}

func (a *Applier) applyArea(ctx context.Context, unit *PlanUnit, spec config.AreaSpec) error {
	if unit.Operation == OperationCreate {
		area, err := a.writer.CreateLifeArea(ctx, domain.CreateLifeAreaRequest{
			Name:        spec.Name,
			Description: optional(spec.Description),
			Color:       optional(spec.Color),
			Icon:        optional(spec.Icon),
		})
		if err != nil {
			return err
		}
		unit.EntityID = area.ID
		return nil
	}

	var req domain.UpdateLifeAreaRequest
	for _, change := range unit.Changes {
		value := change.After
		switch change.Field {
		case "name":
			req.Name = &value
		case "description":
			req.Description = &value
		case "color":
			req.Color = &value
		case "icon":
			req.Icon = &value
		}
	}
	_, err := a.writer.UpdateLifeArea(ctx, unit.EntityID, req)
	return err
}

func (a *Applier) applyGoal(ctx context.Context, plan *Plan, unit *PlanUnit, spec config.GoalSpec) error {
	if unit.Operation == OperationCreate {
		areaID, err := parentEntityID(plan, unit)
		if err != nil {
			return err
		}
		target, err := config.ParseDate(spec.TargetDate, false)
		if err != nil {
			return err
		}
		req := domain.CreateGoalRequest{
			LifeAreaID:  areaID,
			Name:        spec.Name,
			Description: optional(spec.Description),
			TargetDate:  target,
		}
		if spec.Status != "" {
			status := domain.GoalStatus(spec.Status)
			req.Status = &status
		}
		goal, err := a.writer.CreateGoal(ctx, req)
		if err != nil {
			return err
		}
		unit.EntityID = goal.ID
		return nil
	}

	var req domain.UpdateGoalRequest
	for _, change := range unit.Changes {
		value := change.After
		switch change.Field {
		case "name":
			req.Name = &value
		case "description":
			req.Description = &value
		case "status":
			status := domain.GoalStatus(value)
			req.Status = &status
		case "target_date":
			date, err := config.ParseDate(value, false)
			if err != nil {
				return err
			}
			req.TargetDate = date
		}
	}
	_, err := a.writer.UpdateGoal(ctx, unit.EntityID, req)
	return err
}

func (a *Applier) applyProject(ctx context.Context, plan *Plan, unit *PlanUnit, spec config.ProjectSpec) error {
	if unit.Operation == OperationCreate {
		goalID, err := parentEntityID(plan, unit)
		if err != nil {
			return err
		}
		start, err := config.ParseDate(spec.StartDate, false)
		if err != nil {
			return err
		}
		due, err := config.ParseDate(spec.DueDate, true)
		if err != nil {
			return err
		}
		req := domain.CreateProjectRequest{
			GoalID:      goalID,
			Name:        spec.Name,
			Description: optional(spec.Description),
			StartDate:   start,
			DueDate:     due,
		}
		if spec.Status != "" {
			status := domain.ProjectStatus(spec.Status)
			req.Status = &status
		}
		project, err := a.writer.CreateProject(ctx, req)
		if err != nil {
			return err
		}
		unit.EntityID = project.ID
		return nil
	}

	var req domain.UpdateProjectRequest
	for _, change := range unit.Changes {
		value := change.After
		switch change.Field {
		case "name":
			req.Name = &value
		case "description":
			req.Description = &value
		case "status":
			status := domain.ProjectStatus(value)
			req.Status = &status
		case "start_date", "due_date":
			date, err := config.ParseDate(value, change.Field == "due_date")
			if err != nil {
				return err
			}
			if change.Field == "start_date" {
				req.StartDate = date
			} else {
				req.DueDate = date
			}
		}
	}
	_, err := a.writer.UpdateProject(ctx, unit.EntityID, req)
	return err
}

func (a *Applier) applyTask(ctx context.Context, plan *Plan, unit *PlanUnit, spec config.TaskSpec) error {
	if unit.Operation == OperationCreate {
		return a.createTask(ctx, plan, unit, spec)
	}

	var (
		req     domain.UpdateTaskRequest
		tags    []string
		changed bool
	)
	for _, change := range unit.Changes {
		value := change.After
		changed = changed || change.Field != "tag"
		switch change.Field {
		case "name":
			req.Name = &value
		case "description":
			req.Description = &value
		case "priority":
			priority := domain.TaskPriority(value)
			req.Priority = &priority
		case "status":
			status := domain.TaskStatus(value)
			req.Status = &status
		case "due_date":
			date, err := config.ParseDate(value, true)
			if err != nil {
				return err
			}
			req.DueDate = date
		case "estimated_minutes":
			minutes, err := strconv.Atoi(value)
			if err != nil {
				return domain.NewValidationError("estimated_minutes must be an integer").WithDetail("field", "estimated_minutes")
			}
			req.EstimatedMinutes = &minutes
		case "recurrence_rule":
			req.RecurrenceRule = &value
		case "tag":
			tags = append(tags, value)
		}
	}

	if changed {
		if _, err := a.writer.UpdateTask(ctx, unit.EntityID, req); err != nil {
			return err
		}
	}
	for _, tag := range tags {
		if _, err := a.writer.TagTask(ctx, unit.EntityID, tag); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) createTask(ctx context.Context, plan *Plan, unit *PlanUnit, spec config.TaskSpec) error {
	parentID, err := parentEntityID(plan, unit)
	if err != nil {
		return err
	}
	due, err := config.ParseDate(spec.DueDate, true)
	if err != nil {
		return err
	}

	req := domain.CreateTaskRequest{
		Name:             spec.Name,
		Description:      optional(spec.Description),
		DueDate:          due,
		EstimatedMinutes: spec.EstimatedMinutes,
		RecurrenceRule:   optional(spec.RecurrenceRule),
		Tags:             spec.Tags,
	}
	if spec.Priority != "" {
		priority := domain.TaskPriority(spec.Priority)
		req.Priority = &priority
	}

	parent, _ := plan.Unit(unit.Parent)
	if parent.Entity == domain.EntityTask {
		req.ParentTaskID = &parentID
	} else {
		req.ProjectID = &parentID
	}

	task, err := a.writer.CreateTask(ctx, req)
	if err != nil {
		return err
	}
	unit.EntityID = task.ID

	// Tasks are always created as todo.
	if spec.Status != "" && domain.TaskStatus(spec.Status) != task.Status {
		status := domain.TaskStatus(spec.Status)
		if _, err := a.writer.UpdateTask(ctx, task.ID, domain.UpdateTaskRequest{Status: &status}); err != nil {
			return err
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
