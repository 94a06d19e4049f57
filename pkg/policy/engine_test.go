package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	want := []string{BulkLimitsPolicy, HierarchyIntegrityPolicy, RetentionPolicy}
	if len(policies) != len(want) {
		t.Fatalf("expected %d built-in policies, got %d", len(want), len(policies))
	}
	for i, name := range want {
		if policies[i].Name != name {
			t.Errorf("policy %d: expected %s, got %s", i, name, policies[i].Name)
		}
		if !policies[i].Builtin || !policies[i].Enabled {
			t.Errorf("policy %s should be built-in and enabled", name)
		}
	}
}

func TestHierarchyIntegrity(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name        string
		entity      domain.EntityType
		children    int64
		wantAllowed bool
		wantMessage string
	}{
		{
			name:        "life area with goals",
			entity:      domain.EntityLifeArea,
			children:    2,
			wantMessage: "Cannot delete life area: 2 goals are still associated with it. Please delete or reassign them first.",
		},
		{
			name:        "goal with projects",
			entity:      domain.EntityGoal,
			children:    1,
			wantMessage: "Cannot delete goal: 1 projects are still associated with it. Please delete or reassign them first.",
		},
		{
			name:        "project with tasks",
			entity:      domain.EntityProject,
			children:    7,
			wantMessage: "Cannot delete project: 7 tasks are still associated with it. Please delete or reassign them first.",
		},
		{name: "empty life area", entity: domain.EntityLifeArea, wantAllowed: true},
		{name: "task with subtasks cascades", entity: domain.EntityTask, children: 3, wantAllowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := eng.Evaluate(context.Background(), GuardInput{
				Operation:  OpDelete,
				EntityType: tt.entity,
				EntityID:   "id-1",
				Counts:     map[string]int64{CountChildren: tt.children},
			})
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if decision.Allowed != tt.wantAllowed {
				t.Fatalf("expected allowed=%v, got %+v", tt.wantAllowed, decision)
			}
			if tt.wantAllowed {
				return
			}
			if len(decision.Violations) != 1 {
				t.Fatalf("expected one violation, got %d", len(decision.Violations))
			}
			v := decision.Violations[0]
			if v.Message != tt.wantMessage {
				t.Errorf("unexpected message:\n got %q\nwant %q", v.Message, tt.wantMessage)
			}
			if v.EntityID != "id-1" || v.Policy != HierarchyIntegrityPolicy {
				t.Errorf("unexpected violation %+v", v)
			}

			err = decision.Err()
			if !domain.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestHierarchyIntegrityWithoutEntityID(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Check(context.Background(), GuardInput{
		Operation:  OpDelete,
		EntityType: domain.EntityGoal,
		Counts:     map[string]int64{CountChildren: 2},
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected delete with children to be refused, got %v", err)
	}
	if !strings.Contains(err.Error(), "2 projects are still associated") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestBulkLimits(t *testing.T) {
	eng := newTestEngine(t)

	for _, op := range []string{OpBatchDelete, OpBulkUpdate} {
		for _, items := range []int64{MaxBulkItems, MaxBulkItems + 1} {
			_, err := eng.Check(context.Background(), GuardInput{
				Operation: op,
				Counts:    map[string]int64{CountItems: items},
			})
			if items <= MaxBulkItems && err != nil {
				t.Errorf("%s of %d: unexpected error %v", op, items, err)
			}
			if items > MaxBulkItems && !domain.IsPermissionDenied(err) {
				t.Errorf("%s of %d: expected permission denied, got %v", op, items, err)
			}
		}
	}
}

func TestRetention(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		days         int
		wantAllowed  bool
		wantWarnings int
	}{
		{days: 0, wantAllowed: false},
		{days: 1, wantAllowed: true, wantWarnings: 1},
		{days: 6, wantAllowed: true, wantWarnings: 1},
		{days: 7, wantAllowed: true},
		{days: 90, wantAllowed: true},
	}

	for _, tt := range tests {
		decision, err := eng.Evaluate(context.Background(), GuardInput{
			Operation: OpCleanup,
			Params:    map[string]interface{}{"older_than_days": tt.days},
		})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if decision.Allowed != tt.wantAllowed {
			t.Errorf("days=%d: expected allowed=%v", tt.days, tt.wantAllowed)
		}
		if len(decision.Warnings) != tt.wantWarnings {
			t.Errorf("days=%d: expected %d warnings, got %d", tt.days, tt.wantWarnings, len(decision.Warnings))
		}
		if !tt.wantAllowed && decision.Violations[0].Severity != SeverityCritical {
			t.Errorf("days=%d: expected critical severity, got %s", tt.days, decision.Violations[0].Severity)
		}
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	input := GuardInput{Operation: OpBatchDelete, Counts: map[string]int64{CountItems: 1000}}

	if err := eng.DisablePolicy(BulkLimitsPolicy); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	decision, err := eng.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("disabled policy should not block")
	}
	for _, name := range decision.EvaluatedPolicies {
		if name == BulkLimitsPolicy {
			t.Error("disabled policy should not be evaluated")
		}
	}

	if err := eng.EnablePolicy(BulkLimitsPolicy); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	if _, err := eng.Check(context.Background(), input); err == nil {
		t.Error("expected re-enabled policy to block")
	}

	if err := eng.DisablePolicy("missing"); !domain.IsNotFound(err) {
		t.Errorf("expected not found for unknown policy, got %v", err)
	}
}

func TestUserPolicies(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()

	rego := `package custom.tags

import rego.v1

# Tags are shared across projects.
deny contains violation if {
	input.operation == "delete"
	input.entity_type == "tag"
	violation := {"message": "tags cannot be deleted", "severity": "error", "reason": "shared"}
}
`
	if err := os.WriteFile(filepath.Join(dir, "no-tag-delete.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	p, err := eng.GetPolicy("no-tag-delete")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Builtin || p.Description != "Tags are shared across projects." {
		t.Errorf("unexpected policy %+v", p)
	}

	decision, err := eng.Check(context.Background(), GuardInput{Operation: OpDelete, EntityType: domain.EntityTag, EntityID: "t-1"})
	if !domain.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if decision.Violations[0].Details["reason"] != "shared" {
		t.Errorf("expected extra keys in details, got %+v", decision.Violations[0].Details)
	}

	if err := eng.ReplaceUserPolicies(context.Background(), nil); err != nil {
		t.Fatalf("ReplaceUserPolicies failed: %v", err)
	}
	if _, err := eng.GetPolicy("no-tag-delete"); err == nil {
		t.Error("expected user policy to be removed")
	}
	if len(eng.ListPolicies()) != 3 {
		t.Error("built-in policies should survive replacing user policies")
	}
}

func TestReplaceUserPoliciesIsAtomic(t *testing.T) {
	eng := newTestEngine(t)

	good := Policy{Name: "ok", Rego: "package ok\n\nimport rego.v1\n\ndeny contains \"x\" if { false }\n", Enabled: true}
	if err := eng.ReplaceUserPolicies(context.Background(), []Policy{good}); err != nil {
		t.Fatalf("ReplaceUserPolicies failed: %v", err)
	}

	broken := Policy{Name: "broken", Rego: "package broken\n\ndeny contains", Enabled: true}
	if err := eng.ReplaceUserPolicies(context.Background(), []Policy{broken}); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := eng.GetPolicy("ok"); err != nil {
		t.Errorf("previous user policy should be kept after a failed replace: %v", err)
	}

	shadow := Policy{Name: RetentionPolicy, Rego: good.Rego, Enabled: true}
	err := eng.ReplaceUserPolicies(context.Background(), []Policy{shadow})
	if err == nil || !strings.Contains(err.Error(), "built-in") {
		t.Errorf("expected conflict with built-in policy, got %v", err)
	}
}

func TestReloadPolicies(t *testing.T) {
	eng := newTestEngine(t)

	user := Policy{Name: "extra", Rego: "package extra\n\nimport rego.v1\n\ndeny contains \"x\" if { false }\n", Enabled: true}
	if err := eng.ReplaceUserPolicies(context.Background(), []Policy{user}); err != nil {
		t.Fatalf("ReplaceUserPolicies failed: %v", err)
	}
	_ = eng.DisablePolicy(RetentionPolicy)

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("ReloadPolicies failed: %v", err)
	}

	policies := eng.ListPolicies()
	if len(policies) != 3 {
		t.Fatalf("expected only built-in policies, got %d", len(policies))
	}
	p, _ := eng.GetPolicy(RetentionPolicy)
	if !p.Enabled {
		t.Error("reload should restore built-in defaults")
	}
}

func TestDecisionErr(t *testing.T) {
	var nilDecision *Decision
	if nilDecision.Err() != nil {
		t.Error("nil decision should not error")
	}
	if (&Decision{Allowed: true}).Err() != nil {
		t.Error("allowed decision should not error")
	}

	d := &Decision{Violations: []Violation{{Policy: "custom", Message: "no", Severity: SeverityError}}}
	err := d.Err()
	if !domain.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if domain.AsAppError(err).UserMessage() != "Permission denied: no" {
		t.Errorf("unexpected message %q", domain.AsAppError(err).UserMessage())
	}
}
