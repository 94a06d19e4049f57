package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func testTasks() []domain.Task {
	yesterday := testNow.Add(-24 * time.Hour)
	tomorrow := testNow.Add(24 * time.Hour)
	nextWeek := testNow.Add(7 * 24 * time.Hour)

	return []domain.Task{
		{ID: "1", Name: "Pay rent", Status: domain.TaskStatusTodo, Priority: domain.TaskPriorityUrgent, DueDate: &yesterday, Tags: []string{"money"}},
		{ID: "2", Name: "Buy milk", Status: domain.TaskStatusInProgress, Priority: domain.TaskPriorityLow, DueDate: &tomorrow, Tags: []string{"errand"}},
		{ID: "3", Name: "Plan trip", Status: domain.TaskStatusTodo, Priority: domain.TaskPriorityHigh, DueDate: &nextWeek, ProjectID: strPtr("p-1"), EstimatedMinutes: intPtr(90)},
		{ID: "4", Name: "Old report", Status: domain.TaskStatusCompleted, Priority: domain.TaskPriorityMedium, DueDate: &yesterday},
	}
}

func TestFilterApply(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"overdue", "overdue", []string{"1"}},
		{"priority set", `priority in ("high", "urgent")`, []string{"1", "3"}},
		{"rank", "rank <= 1 and status != 'completed'", []string{"1", "3"}},
		{"tags", `"errand" in tags`, []string{"2"}},
		{"due window", "due != None and due > now and due < now + days(2)", []string{"2"}},
		{"project", "project_id == 'p-1'", []string{"3"}},
		{"unset project", "project_id == None", []string{"1", "2", "4"}},
		{"estimate", "estimated != None and estimated > 60", []string{"3"}},
		{"name", `name.startswith("P")`, []string{"1", "3"}},
		{"none", "False", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr, Options{})
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}

			got, err := f.Apply(context.Background(), testTasks(), testNow)
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}

			var ids []string
			for _, task := range got {
				ids = append(ids, task.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", "   "},
		{"syntax", "priority ==="},
		{"statement", "x = 1"},
		{"too long", strings.Repeat("a", MaxExprLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr, Options{})
			if !domain.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		opts    Options
		message string
	}{
		{"not a bool", "name", Options{}, "must evaluate to a bool"},
		{"unknown global", "colour == 'red'", Options{}, "filter failed"},
		{"none comparison", "due < now", Options{}, "filter failed"},
		{"step limit", "len([x for x in range(100000)]) > 0", Options{MaxSteps: 100}, "filter failed"},
	}

	tasks := []domain.Task{{ID: "1", Name: "No due date", Status: domain.TaskStatusTodo, Priority: domain.TaskPriorityLow}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr, tt.opts)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			_, err = f.Apply(context.Background(), tasks, testNow)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected %q in %q", tt.message, err.Error())
			}
		})
	}
}

func TestApplyRespectsCancelledContext(t *testing.T) {
	f, err := Compile("True", Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Apply(ctx, testTasks(), testNow); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMatch(t *testing.T) {
	f, err := Compile("overdue and priority == 'urgent'", Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	tasks := testTasks()
	ok, err := f.Match(context.Background(), &tasks[0], testNow)
	if err != nil || !ok {
		t.Errorf("expected match, got %v, %v", ok, err)
	}
	ok, err = f.Match(context.Background(), &tasks[1], testNow)
	if err != nil || ok {
		t.Errorf("expected no match, got %v, %v", ok, err)
	}
	if f.String() != "overdue and priority == 'urgent'" {
		t.Errorf("unexpected source %q", f.String())
	}
}
