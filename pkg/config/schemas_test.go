package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	want := []string{"area", "goal", "project", "task", "workspace"}
	got := sr.ListSchemas()
	if len(got) != len(want) {
		t.Fatalf("expected schemas %v, got %v", want, got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("schema %d: expected %s, got %s", i, name, got[i])
		}
		schema, ok := sr.GetSchema(name)
		if !ok {
			t.Fatalf("built-in schema %s not found", name)
		}
		if schema.Err() != nil {
			t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
		}
	}
}

func TestSchemaRegistry_RegisterSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("habit", `#Habit: {name: string, streak: int & >=0}`, "#Habit"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "habit", map[string]interface{}{"name": "read", "streak": 3}); err != nil {
		t.Errorf("expected valid habit, got %v", err)
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "habit", map[string]interface{}{"name": "read", "streak": -1}); err == nil {
		t.Error("expected negative streak to fail")
	}

	if err := sr.RegisterSchema("broken", `#Broken: {`, "#Broken"); err == nil {
		t.Error("expected compile error")
	}
	if err := sr.RegisterSchema("missing", `#Other: string`, "#Missing"); err == nil {
		t.Error("expected missing definition error")
	}
}

func TestSchemaRegistry_ValidateSpecs(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()
	minutes := 90

	tests := []struct {
		name    string
		schema  string
		data    interface{}
		wantErr bool
	}{
		{
			name:   "valid task",
			schema: "task",
			data:   TaskSpec{Name: "Stretch", Priority: "low", EstimatedMinutes: &minutes},
		},
		{
			name:    "task with bad priority",
			schema:  "task",
			data:    TaskSpec{Name: "Stretch", Priority: "someday"},
			wantErr: true,
		},
		{
			name:    "task minutes out of range",
			schema:  "task",
			data:    map[string]interface{}{"name": "Stretch", "estimated_minutes": 20000},
			wantErr: true,
		},
		{
			name:   "valid area",
			schema: "area",
			data:   AreaSpec{Name: "Career", Color: "#3B82F6"},
		},
		{
			name:    "area with bad color",
			schema:  "area",
			data:    AreaSpec{Name: "Career", Color: "blue"},
			wantErr: true,
		},
		{
			name:    "project with bad status",
			schema:  "project",
			data:    ProjectSpec{Name: "Launch", Status: "done"},
			wantErr: true,
		},
		{
			name:    "unknown schema",
			schema:  "habit",
			data:    map[string]interface{}{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, tt.schema, tt.data)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
