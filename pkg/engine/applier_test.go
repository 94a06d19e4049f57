package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
)

func TestApplier_Apply_CreatesHierarchy(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	plan, err := NewPlanner(svc, zerolog.Nop()).Plan(ctx, testWorkspace())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	result, err := NewApplier(svc, zerolog.Nop()).Apply(ctx, plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", result.Status)
	}
	if result.Summary.Created != 6 || result.Summary.Failed != 0 {
		t.Errorf("Unexpected summary %+v", result.Summary)
	}

	week1, _ := plan.Unit("task:health/marathon/training/week1")
	task, err := svc.GetTask(ctx, week1.EntityID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != domain.TaskStatusInProgress {
		t.Errorf("Expected in_progress, got %s", task.Status)
	}
	if task.Priority != domain.TaskPriorityHigh {
		t.Errorf("Expected high priority, got %s", task.Priority)
	}
	if len(task.Tags) != 1 || task.Tags[0] != "running" {
		t.Errorf("Expected the running tag, got %v", task.Tags)
	}

	project, _ := plan.Unit("project:health/marathon/training")
	if task.ProjectID == nil || *task.ProjectID != project.EntityID {
		t.Errorf("Expected task in project %s, got %v", project.EntityID, task.ProjectID)
	}

	subtasks, err := svc.ListSubtasks(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListSubtasks failed: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].Name != "Long run" {
		t.Fatalf("Expected the long run subtask, got %+v", subtasks)
	}
	if subtasks[0].ProjectID == nil || *subtasks[0].ProjectID != project.EntityID {
		t.Errorf("Expected subtask to inherit the project")
	}
}

func TestApplier_Apply_IsIdempotent(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	planner := NewPlanner(svc, zerolog.Nop())
	applier := NewApplier(svc, zerolog.Nop())

	first, err := planner.Plan(ctx, testWorkspace())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if _, err := applier.Apply(ctx, first); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	second, err := planner.Plan(ctx, testWorkspace())
	if err != nil {
		t.Fatalf("second Plan failed: %v", err)
	}
	if second.HasChanges() {
		for _, unit := range second.Units {
			if unit.Operation != OperationNoop {
				t.Errorf("%s: expected noop, got %s %+v", unit.ID, unit.Operation, unit.Changes)
			}
		}
	}

	result, err := applier.Apply(ctx, second)
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if result.Summary.Unchanged != 6 {
		t.Errorf("Expected 6 unchanged units, got %+v", result.Summary)
	}

	areas, err := svc.ListLifeAreas(ctx)
	if err != nil {
		t.Fatalf("ListLifeAreas failed: %v", err)
	}
	if len(areas) != 2 {
		t.Errorf("Expected 2 areas, got %d", len(areas))
	}
}

func TestApplier_Apply_StopsAtFirstFailure(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	// The schema accepts any well-formed date; the service rejects a
	// target date in the past.
	ws := &config.Workspace{Areas: map[string]config.AreaSpec{
		"health": {Name: "Health", Goals: map[string]config.GoalSpec{
			"old": {Name: "Old goal", TargetDate: "2020-01-01", Projects: map[string]config.ProjectSpec{
				"p": {Name: "Never created"},
			}},
		}},
	}}

	plan, err := NewPlanner(svc, zerolog.Nop()).Plan(ctx, ws)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	result, err := NewApplier(svc, zerolog.Nop()).Apply(ctx, plan)
	if err == nil {
		t.Fatal("Expected Apply to fail")
	}

	unitErr, ok := AsUnitError(err)
	if !ok {
		t.Fatalf("Expected a *UnitError, got %T", err)
	}
	if unitErr.UnitID != "goal:health/old" {
		t.Errorf("Unexpected failed unit %s", unitErr.UnitID)
	}
	if !domain.IsValidation(err) {
		t.Errorf("Expected the service's validation error to be wrapped, got %v", err)
	}

	if result == nil {
		t.Fatal("Expected a result alongside the error")
	}
	if result.Status != RunStatusPartial {
		t.Errorf("Expected partial, got %s", result.Status)
	}
	if result.FailedUnit != "goal:health/old" {
		t.Errorf("Unexpected failed unit %s", result.FailedUnit)
	}
	want := RunSummary{Total: 3, Created: 1, Failed: 1, Skipped: 1}
	if result.Summary != want {
		t.Errorf("Expected summary %+v, got %+v", want, result.Summary)
	}

	project, _ := plan.Unit("project:health/old/p")
	if project.Status != PlanStatusSkipped {
		t.Errorf("Expected project to be skipped, got %s", project.Status)
	}

	areas, _ := svc.ListLifeAreas(ctx)
	if len(areas) != 1 {
		t.Errorf("Expected the area to stay applied, got %d areas", len(areas))
	}
}

func TestApplier_Apply_CancelledContext(t *testing.T) {
	svc := setupTestService(t)

	plan, err := NewPlanner(svc, zerolog.Nop()).Plan(context.Background(), testWorkspace())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewApplier(svc, zerolog.Nop()).Apply(ctx, plan)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if result.Status != RunStatusFailed {
		t.Errorf("Expected failed, got %s", result.Status)
	}
	if result.Summary.Skipped != 6 {
		t.Errorf("Expected every unit skipped, got %+v", result.Summary)
	}
}

func TestApplier_Apply_InvalidPlans(t *testing.T) {
	svc := setupTestService(t)
	applier := NewApplier(svc, zerolog.Nop())
	ctx := context.Background()

	if _, err := applier.Apply(ctx, nil); err == nil {
		t.Error("Expected an error for a nil plan")
	}
	if _, err := applier.Apply(ctx, &Plan{ID: "p"}); err == nil {
		t.Error("Expected an error for a plan without a graph")
	}

	plan := &Plan{ID: "p", Units: []PlanUnit{
		{ID: "life_area:x", Entity: domain.EntityLifeArea, Key: "x", Operation: OperationCreate, Spec: "not a spec"},
	}}
	if _, err := NewPlanner(svc, zerolog.Nop()).BuildDAG(plan); err != nil {
		t.Fatalf("BuildDAG failed: %v", err)
	}
	_, err := applier.Apply(ctx, plan)
	if domain.KindOf(err) != domain.KindInternal {
		t.Errorf("Expected an internal error for a mismatched spec, got %v", err)
	}
}
