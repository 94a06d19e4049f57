package domain

import (
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func timePtr(t time.Time) *time.Time {
	return &t
}

func fixedValidator() (*Validator, time.Time) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	v := NewValidator()
	v.Now = func() time.Time { return now }
	return v, now
}

func TestValidateLifeArea(t *testing.T) {
	v, _ := fixedValidator()

	tests := []struct {
		name    string
		req     CreateLifeAreaRequest
		wantErr bool
	}{
		{name: "valid", req: CreateLifeAreaRequest{Name: "Health", Color: strPtr("#10B981")}},
		{name: "short color", req: CreateLifeAreaRequest{Name: "Health", Color: strPtr("#abc")}},
		{name: "empty name", req: CreateLifeAreaRequest{Name: ""}, wantErr: true},
		{name: "blank name", req: CreateLifeAreaRequest{Name: "   "}, wantErr: true},
		{name: "long name", req: CreateLifeAreaRequest{Name: strings.Repeat("a", 101)}, wantErr: true},
		{name: "max name", req: CreateLifeAreaRequest{Name: strings.Repeat("a", 100)}},
		{name: "null byte", req: CreateLifeAreaRequest{Name: "a\x00b"}, wantErr: true},
		{name: "carriage return", req: CreateLifeAreaRequest{Name: "a\rb"}, wantErr: true},
		{name: "bad color", req: CreateLifeAreaRequest{Name: "Health", Color: strPtr("green")}, wantErr: true},
		{name: "four digit color", req: CreateLifeAreaRequest{Name: "Health", Color: strPtr("#abcd")}, wantErr: true},
		{name: "long description", req: CreateLifeAreaRequest{Name: "Health", Description: strPtr(strings.Repeat("x", 501))}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateTaskDates(t *testing.T) {
	v, now := fixedValidator()

	tests := []struct {
		name    string
		due     time.Time
		wantErr bool
	}{
		{name: "tomorrow", due: now.AddDate(0, 0, 1)},
		{name: "thirty minutes ago", due: now.Add(-30 * time.Minute)},
		{name: "two hours ago", due: now.Add(-2 * time.Hour), wantErr: true},
		{name: "three years ahead", due: now.AddDate(3, 0, 0), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateTaskRequest{Name: "Write report", DueDate: timePtr(tt.due)}
			err := v.Validate(&req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTaskFields(t *testing.T) {
	v, _ := fixedValidator()

	tests := []struct {
		name    string
		req     CreateTaskRequest
		wantErr bool
	}{
		{name: "minutes in range", req: CreateTaskRequest{Name: "a", EstimatedMinutes: intPtr(10080)}},
		{name: "minutes too large", req: CreateTaskRequest{Name: "a", EstimatedMinutes: intPtr(10081)}, wantErr: true},
		{name: "negative minutes", req: CreateTaskRequest{Name: "a", EstimatedMinutes: intPtr(-1)}, wantErr: true},
		{name: "weekly rule", req: CreateTaskRequest{Name: "a", RecurrenceRule: strPtr("FREQ=WEEKLY;BYDAY=MO")}},
		{name: "hourly rule", req: CreateTaskRequest{Name: "a", RecurrenceRule: strPtr("FREQ=HOURLY")}, wantErr: true},
		{name: "rule without freq", req: CreateTaskRequest{Name: "a", RecurrenceRule: strPtr("BYDAY=MO")}, wantErr: true},
		{name: "long description ok", req: CreateTaskRequest{Name: "a", Description: strPtr(strings.Repeat("x", 2000))}},
		{name: "long description", req: CreateTaskRequest{Name: "a", Description: strPtr(strings.Repeat("x", 2001))}, wantErr: true},
		{name: "bad tag", req: CreateTaskRequest{Name: "a", Tags: []string{""}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGoalAndProjectDates(t *testing.T) {
	v, now := fixedValidator()

	if err := v.Validate(&CreateGoalRequest{Name: "g", TargetDate: timePtr(now.Add(-time.Hour))}); err != nil {
		t.Errorf("target earlier today should be accepted: %v", err)
	}
	if err := v.Validate(&CreateGoalRequest{Name: "g", TargetDate: timePtr(now.AddDate(0, 0, -1))}); err == nil {
		t.Error("target yesterday should be rejected")
	}

	start := now.AddDate(0, 1, 0)
	if err := v.Validate(&CreateProjectRequest{Name: "p", StartDate: &start, DueDate: timePtr(start.AddDate(0, 0, -1))}); err == nil {
		t.Error("due before start should be rejected")
	}
	if err := v.Validate(&CreateProjectRequest{Name: "p", StartDate: timePtr(now.AddDate(-2, 0, 0))}); err == nil {
		t.Error("start two years ago should be rejected")
	}
	if err := v.Validate(&CreateProjectRequest{Name: "p", DueDate: timePtr(now.AddDate(6, 0, 0))}); err == nil {
		t.Error("due six years ahead should be rejected")
	}
}

func TestValidateUpdate(t *testing.T) {
	v, _ := fixedValidator()

	if err := v.ValidateUpdate(&UpdateLifeAreaRequest{}); err == nil {
		t.Fatal("empty update should be rejected")
	}
	if err := v.ValidateUpdate(&UpdateLifeAreaRequest{SortOrder: intPtr(-1)}); err == nil {
		t.Fatal("negative sort order should be rejected")
	}
	if err := v.ValidateUpdate(&UpdateLifeAreaRequest{Name: strPtr("Career")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNoteParents(t *testing.T) {
	v, _ := fixedValidator()
	id := "5f0c6d8e-3b1a-4c52-9d6e-0a1b2c3d4e5f"

	if err := v.Validate(&CreateNoteRequest{Title: "t", TaskID: &id}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.Validate(&CreateNoteRequest{Title: "t", TaskID: &id, GoalID: &id}); err == nil {
		t.Fatal("two parents should be rejected")
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID("5f0c6d8e-3b1a-4c52-9d6e-0a1b2c3d4e5f"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateID("not-a-uuid")
	if KindOf(err) != KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestDescribeUsesJSONNames(t *testing.T) {
	v, _ := fixedValidator()
	err := v.Validate(&CreateLifeAreaRequest{Name: "ok", Color: strPtr("red")})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "color") {
		t.Errorf("message should name the json field: %v", err)
	}
	if !strings.HasPrefix(AsAppError(err).UserMessage(), "Validation failed: ") {
		t.Errorf("unexpected user message: %s", AsAppError(err).UserMessage())
	}
}
