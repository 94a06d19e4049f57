package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const sampleWorkspace = `
areas: health: {
	name:  "Health"
	color: "#10B981"
	goals: run: {
		name:   "Run a marathon"
		status: "active"
		projects: plan: {
			name: "Training plan"
			tasks: w1: {
				name:     "Week 1"
				priority: "high"
				due_date: "2025-07-01"
				tags: ["running"]
				subtasks: d1: name: "Day 1"
			}
		}
	}
}
`

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		errPath   string
		checkFunc func(*testing.T, *ParsedWorkspace)
	}{
		{
			name:    "valid workspace",
			content: sampleWorkspace,
			checkFunc: func(t *testing.T, pw *ParsedWorkspace) {
				area, ok := pw.Workspace.Areas["health"]
				if !ok {
					t.Fatalf("expected area health, got %v", SortedKeys(pw.Workspace.Areas))
				}
				if area.Color != "#10B981" {
					t.Errorf("expected color #10B981, got %s", area.Color)
				}
				task := area.Goals["run"].Projects["plan"].Tasks["w1"]
				if task.Priority != "high" {
					t.Errorf("expected priority high, got %s", task.Priority)
				}
				if len(task.Tags) != 1 || task.Tags[0] != "running" {
					t.Errorf("unexpected tags %v", task.Tags)
				}
				if task.Subtasks["d1"].Name != "Day 1" {
					t.Errorf("expected subtask Day 1, got %+v", task.Subtasks)
				}
			},
		},
		{
			name: "invalid CUE syntax",
			content: `
areas: health: {
	name: "Health"
	invalid syntax here
}
`,
			wantErr: true,
		},
		{
			name:    "missing name",
			content: `areas: health: color: "#10B981"`,
			wantErr: true,
		},
		{
			name:    "unknown status",
			content: `areas: a: {name: "A", goals: g: {name: "G", status: "done"}}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			content: `areas: a: {name: "A", owner: "me"}`,
			wantErr: true,
		},
		{
			name:    "bad date",
			content: `areas: a: {name: "A", goals: g: {name: "G", target_date: "June 1"}}`,
			wantErr: true,
		},
		{
			name:    "nested subtasks",
			content: `areas: a: {name: "A", goals: g: {name: "G", projects: p: {name: "P", tasks: t: {name: "T", subtasks: s: {name: "S", subtasks: x: name: "X"}}}}}`,
			wantErr: true,
		},
		{
			name:    "no areas",
			content: `areas: {}`,
			wantErr: true,
			errPath: "areas",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pw, err := parser.ParseInline(ctx, tt.content)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantErr {
				if len(pw.Errors) == 0 {
					t.Fatalf("expected validation errors, got none")
				}
				if tt.errPath != "" && pw.Errors[0].Path != tt.errPath {
					t.Errorf("expected error at %s, got %s", tt.errPath, pw.Errors[0].Path)
				}
				if !domain.IsValidation(pw.Err()) {
					t.Errorf("expected validation error, got %v", pw.Err())
				}
				return
			}

			if len(pw.Errors) > 0 {
				t.Fatalf("unexpected validation errors: %v", pw.Errors)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, pw)
			}
		})
	}
}

func TestCUEParser_ParseFile(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	testFile := filepath.Join(t.TempDir(), "life.cue")
	if err := os.WriteFile(testFile, []byte(sampleWorkspace), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	pw, err := parser.Parse(ctx, []string{testFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pw.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pw.Errors)
	}
	if len(pw.SourceFiles) != 1 || pw.SourceFiles[0] != testFile {
		t.Errorf("unexpected source files %v", pw.SourceFiles)
	}

	counts := pw.Workspace.Counts()
	if counts[domain.EntityLifeArea] != 1 || counts[domain.EntityGoal] != 1 ||
		counts[domain.EntityProject] != 1 || counts[domain.EntityTask] != 2 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestCUEParser_ParseDirectoryUnifies(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()

	files := map[string]string{
		"a_areas.cue": `areas: health: name: "Health"`,
		"b_goals.cue": `areas: health: goals: run: name: "Run"`,
		"notes.txt":   `not cue`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	pw, err := parser.Parse(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pw.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pw.Errors)
	}
	if len(pw.SourceFiles) != 2 {
		t.Errorf("expected 2 source files, got %v", pw.SourceFiles)
	}
	if pw.Workspace.Areas["health"].Goals["run"].Name != "Run" {
		t.Errorf("expected unified goal, got %+v", pw.Workspace.Areas["health"])
	}
}

func TestCUEParser_ConflictReportsLocation(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()

	one := filepath.Join(dir, "one.cue")
	two := filepath.Join(dir, "two.cue")
	if err := os.WriteFile(one, []byte(`areas: health: name: "Health"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(two, []byte(`areas: health: name: "Fitness"`), 0o644); err != nil {
		t.Fatal(err)
	}

	pw, err := parser.Parse(context.Background(), []string{one, two})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pw.Errors) == 0 {
		t.Fatal("expected conflict error")
	}
	if !strings.Contains(pw.Errors[0].Path, "health") {
		t.Errorf("expected path to mention health, got %q", pw.Errors[0].Path)
	}
}

func TestCUEParser_Load(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	if _, err := parser.Load(ctx, nil); err == nil {
		t.Error("expected error for no sources")
	}
	if _, err := parser.Load(ctx, []string{filepath.Join(t.TempDir(), "missing.cue")}); err == nil {
		t.Error("expected error for missing file")
	}

	empty := t.TempDir()
	if _, err := parser.Load(ctx, []string{empty}); !domain.IsValidation(err) {
		t.Errorf("expected validation error for empty directory, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name     string
		endOfDay bool
		want     time.Time
	}{
		{name: "start of day", want: time.Date(2025, 7, 1, 0, 0, 0, 0, time.Local)},
		{name: "end of day", endOfDay: true, want: time.Date(2025, 7, 1, 23, 59, 0, 0, time.Local)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate("2025-07-01", tt.endOfDay)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if got.Location() != time.UTC {
				t.Errorf("expected a UTC time, got %v", got.Location())
			}
			if day := FormatDate(*got); day != "2025-07-01" {
				t.Errorf("expected the date to round-trip, got %s", day)
			}
		})
	}

	if got, err := ParseDate("", true); err != nil || got != nil {
		t.Errorf("expected nil date, got %v, %v", got, err)
	}
	if _, err := ParseDate("07/01/2025", false); !domain.IsValidation(err) {
		t.Errorf("expected validation error for wrong layout, got %v", err)
	}
}

func TestParseDateAcrossDaylightSaving(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}
	saved := time.Local
	time.Local = berlin
	t.Cleanup(func() { time.Local = saved })

	// 2025-03-30 is 23 hours long in Berlin.
	got, err := ParseDate("2025-03-30", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 30, 21, 59, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
