package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
	"github.com/evorbrain/evorbrain/pkg/stores"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// setupTestService creates a service over a migrated in-memory store with
// a fixed clock.
func setupTestService(t *testing.T) *service.Service {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc, err := service.New(service.Options{
		Store: store,
		Now:   func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func intPtr(i int) *int { return &i }

// testWorkspace is two areas, one of them with a goal, a project, a task
// and a subtask.
func testWorkspace() *config.Workspace {
	return &config.Workspace{
		Areas: map[string]config.AreaSpec{
			"health": {
				Name:  "Health",
				Color: "#00aa00",
				Goals: map[string]config.GoalSpec{
					"marathon": {
						Name:       "Run a marathon",
						TargetDate: "2025-12-31",
						Projects: map[string]config.ProjectSpec{
							"training": {
								Name:      "Training plan",
								Status:    "active",
								StartDate: "2025-06-01",
								DueDate:   "2025-11-30",
								Tasks: map[string]config.TaskSpec{
									"week1": {
										Name:             "Week 1",
										Priority:         "high",
										Status:           "in_progress",
										DueDate:          "2025-06-22",
										EstimatedMinutes: intPtr(180),
										Tags:             []string{"running"},
										Subtasks: map[string]config.TaskSpec{
											"long-run": {Name: "Long run"},
										},
									},
								},
							},
						},
					},
				},
			},
			"work": {Name: "Work"},
		},
	}
}

func TestPlanner_Plan_EmptyDatabase(t *testing.T) {
	svc := setupTestService(t)
	planner := NewPlanner(svc, zerolog.Nop())

	plan, err := planner.Plan(context.Background(), testWorkspace())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.ID == "" {
		t.Error("Expected a plan ID")
	}
	if plan.Summary.Total != 6 || plan.Summary.ToCreate != 6 {
		t.Errorf("Expected 6 creates, got %+v", plan.Summary)
	}
	if !plan.HasChanges() {
		t.Error("Expected the plan to have changes")
	}
	if plan.Graph == nil || plan.Graph.Depth != 5 {
		t.Fatalf("Expected a graph of depth 5, got %+v", plan.Graph)
	}

	subtask, ok := plan.Unit("task:health/marathon/training/week1/long-run")
	if !ok {
		t.Fatal("Expected a unit for the subtask")
	}
	if subtask.Entity != domain.EntityTask {
		t.Errorf("Expected subtask entity task, got %s", subtask.Entity)
	}
	if subtask.Parent != "task:health/marathon/training/week1" {
		t.Errorf("Unexpected subtask parent %q", subtask.Parent)
	}
	if subtask.ExecutionOrder != 4 {
		t.Errorf("Expected subtask at level 4, got %d", subtask.ExecutionOrder)
	}

	if roots := plan.Graph.Roots; len(roots) != 2 || roots[0] != "life_area:health" || roots[1] != "life_area:work" {
		t.Errorf("Unexpected roots %v", roots)
	}
}

func TestPlanner_Plan_Updates(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	old := "old"
	area, err := svc.CreateLifeArea(ctx, domain.CreateLifeAreaRequest{Name: "health", Description: &old})
	if err != nil {
		t.Fatalf("CreateLifeArea failed: %v", err)
	}
	goal, err := svc.CreateGoal(ctx, domain.CreateGoalRequest{LifeAreaID: area.ID, Name: "Run a marathon"})
	if err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}

	ws := &config.Workspace{Areas: map[string]config.AreaSpec{
		"health": {
			Name:        "Health",
			Description: "Body and mind",
			Goals: map[string]config.GoalSpec{
				"marathon": {Name: "RUN A MARATHON", Status: "active"},
				"sleep":    {Name: "Sleep more"},
			},
		},
	}}

	plan, err := NewPlanner(svc, zerolog.Nop()).Plan(ctx, ws)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	areaUnit, _ := plan.Unit("life_area:health")
	if areaUnit.Operation != OperationUpdate || areaUnit.EntityID != area.ID {
		t.Fatalf("Expected an update of %s, got %+v", area.ID, areaUnit)
	}
	fields := map[string]Change{}
	for _, change := range areaUnit.Changes {
		fields[change.Field] = change
	}
	if len(fields) != 2 {
		t.Errorf("Expected name and description changes, got %+v", areaUnit.Changes)
	}
	if fields["name"].Before != "health" || fields["name"].After != "Health" {
		t.Errorf("Unexpected name change %+v", fields["name"])
	}
	if fields["description"].Before != "old" || fields["description"].After != "Body and mind" {
		t.Errorf("Unexpected description change %+v", fields["description"])
	}

	marathon, _ := plan.Unit("goal:health/marathon")
	if marathon.EntityID != goal.ID {
		t.Errorf("Expected goal to match case-insensitively")
	}
	if marathon.Operation != OperationUpdate || len(marathon.Changes) != 1 || marathon.Changes[0].Field != "name" {
		t.Errorf("Expected only a name change, got %+v", marathon.Changes)
	}

	sleep, _ := plan.Unit("goal:health/sleep")
	if sleep.Operation != OperationCreate {
		t.Errorf("Expected sleep goal to be created, got %s", sleep.Operation)
	}

	if plan.Summary.ToUpdate != 2 || plan.Summary.ToCreate != 1 {
		t.Errorf("Unexpected summary %+v", plan.Summary)
	}
}

func TestPlanner_Plan_TagsAreAdditive(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	area, _ := svc.CreateLifeArea(ctx, domain.CreateLifeAreaRequest{Name: "Home"})
	goal, _ := svc.CreateGoal(ctx, domain.CreateGoalRequest{LifeAreaID: area.ID, Name: "Tidy"})
	project, _ := svc.CreateProject(ctx, domain.CreateProjectRequest{GoalID: goal.ID, Name: "Garage"})
	if _, err := svc.CreateTask(ctx, domain.CreateTaskRequest{ProjectID: &project.ID, Name: "Sort tools", Tags: []string{"weekend"}}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	ws := &config.Workspace{Areas: map[string]config.AreaSpec{
		"home": {Name: "Home", Goals: map[string]config.GoalSpec{
			"tidy": {Name: "Tidy", Projects: map[string]config.ProjectSpec{
				"garage": {Name: "Garage", Tasks: map[string]config.TaskSpec{
					"tools": {Name: "Sort tools", Tags: []string{"Weekend", "errand"}},
				}},
			}},
		}},
	}}

	plan, err := NewPlanner(svc, zerolog.Nop()).Plan(ctx, ws)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	unit, _ := plan.Unit("task:home/tidy/garage/tools")
	if len(unit.Changes) != 1 || unit.Changes[0].Field != "tag" || unit.Changes[0].After != "errand" {
		t.Fatalf("Expected one tag change, got %+v", unit.Changes)
	}

	if _, err := NewApplier(svc, zerolog.Nop()).Apply(ctx, plan); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	task, err := svc.GetTask(ctx, unit.EntityID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(task.Tags) != 2 {
		t.Errorf("Expected both tags, got %v", task.Tags)
	}
}

func TestPlanner_Plan_DuplicateSiblingNames(t *testing.T) {
	svc := setupTestService(t)

	ws := &config.Workspace{Areas: map[string]config.AreaSpec{
		"health": {Name: "Health", Goals: map[string]config.GoalSpec{
			"a": {Name: "Run"},
			"b": {Name: " run "},
		}},
	}}

	_, err := NewPlanner(svc, zerolog.Nop()).Plan(context.Background(), ws)
	if err == nil {
		t.Fatal("Expected an error for duplicate sibling names")
	}
	if !domain.IsValidation(err) {
		t.Errorf("Expected a validation error, got %v", err)
	}
}

func TestPlanner_Plan_NilWorkspace(t *testing.T) {
	svc := setupTestService(t)
	if _, err := NewPlanner(svc, zerolog.Nop()).Plan(context.Background(), nil); !domain.IsValidation(err) {
		t.Errorf("Expected a validation error, got %v", err)
	}
}

func TestDiffTask(t *testing.T) {
	due := time.Date(2025, 7, 1, 23, 59, 0, 0, time.Local)
	minutes := 30
	task := &domain.Task{
		Name:             "Write",
		Priority:         domain.TaskPriorityMedium,
		Status:           domain.TaskStatusTodo,
		DueDate:          &due,
		EstimatedMinutes: &minutes,
		Tags:             []string{"focus"},
	}

	tests := []struct {
		name   string
		spec   config.TaskSpec
		fields []string
	}{
		{name: "unchanged", spec: config.TaskSpec{Name: "Write", DueDate: "2025-07-01", EstimatedMinutes: intPtr(30), Tags: []string{"FOCUS"}}},
		{name: "absent fields ignored", spec: config.TaskSpec{Name: "Write"}},
		{name: "priority", spec: config.TaskSpec{Name: "Write", Priority: "urgent"}, fields: []string{"priority"}},
		{name: "due date", spec: config.TaskSpec{Name: "Write", DueDate: "2025-07-02"}, fields: []string{"due_date"}},
		{name: "estimate", spec: config.TaskSpec{Name: "Write", EstimatedMinutes: intPtr(45)}, fields: []string{"estimated_minutes"}},
		{name: "recurrence", spec: config.TaskSpec{Name: "Write", RecurrenceRule: "FREQ=DAILY"}, fields: []string{"recurrence_rule"}},
		{name: "status and tag", spec: config.TaskSpec{Name: "Write", Status: "completed", Tags: []string{"deep"}}, fields: []string{"status", "tag"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := diffTask(tt.spec, task)
			if len(changes) != len(tt.fields) {
				t.Fatalf("Expected %d changes, got %+v", len(tt.fields), changes)
			}
			for i, field := range tt.fields {
				if changes[i].Field != field {
					t.Errorf("change %d: expected field %s, got %s", i, field, changes[i].Field)
				}
			}
		})
	}
}
