package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

func newFileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	logger, err := NewLogger(LoggingConfig{Level: level, Format: "json", Output: "none", Dir: dir})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, dir
}

func TestDailyLogFile(t *testing.T) {
	logger, dir := newFileLogger(t, "info")
	logger.NewComponentLogger("store").Info("opened")

	want := filepath.Join(dir, "evorbrain_"+time.Now().Format("2006-01-02")+".log")
	if logger.LogFile() != want {
		t.Fatalf("expected log file %s, got %s", want, logger.LogFile())
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"component":"store"`) || !strings.Contains(line, `"message":"opened"`) {
		t.Errorf("unexpected log line: %s", line)
	}
}

func TestRecentLogs(t *testing.T) {
	logger, _ := newFileLogger(t, "info")

	logger.Debug("hidden")
	logger.Info("first")
	logger.WithField("task_id", "t-1").Warn("second")
	logger.Error("third")

	tests := []struct {
		name   string
		count  int
		filter string
		want   []string
	}{
		{"all", 0, "", []string{"first", "second", "third"}},
		{"warn and above", 0, "warn", []string{"second", "third"}},
		{"error only", 10, "error", []string{"third"}},
		{"last one", 1, "", []string{"third"}},
		{"trace includes all", 0, "trace", []string{"first", "second", "third"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := logger.RecentLogs(tt.count, tt.filter)
			if err != nil {
				t.Fatalf("RecentLogs failed: %v", err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d: %+v", len(tt.want), len(entries), entries)
			}
			for i, msg := range tt.want {
				if entries[i].Message != msg {
					t.Errorf("entry %d: expected %q, got %q", i, msg, entries[i].Message)
				}
			}
		})
	}

	entries, _ := logger.RecentLogs(0, "warn")
	if entries[0].Fields["task_id"] != "t-1" {
		t.Errorf("expected extra fields to be kept, got %+v", entries[0].Fields)
	}

	if _, err := logger.RecentLogs(0, "loud"); !domain.IsValidation(err) {
		t.Errorf("expected validation error for unknown filter, got %v", err)
	}
}

func TestSetLevelAffectsChildren(t *testing.T) {
	logger, _ := newFileLogger(t, "warn")
	child := logger.NewComponentLogger("api")

	child.Info("before")
	if err := logger.SetLevel("info"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	child.Info("after")

	entries, err := logger.RecentLogs(0, "")
	if err != nil {
		t.Fatalf("RecentLogs failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "after" {
		t.Errorf("expected only the post-change entry, got %+v", entries)
	}
	if logger.Level() != "info" {
		t.Errorf("expected level info, got %s", logger.Level())
	}
}

func TestRecentLogsWithoutFile(t *testing.T) {
	entries, err := NewNopLogger().RecentLogs(10, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad output", func(c *Config) { c.Logging.Output = "/tmp/x.log" }, true},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"empty buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOperationMetrics(t *testing.T) {
	tel := NewNop()
	defer tel.Shutdown(context.Background())
	ctx := tel.WithContext(context.Background())

	StartOperation(ctx, "create_goal").End(nil)
	StartOperation(ctx, "create_goal").End(domain.NewValidationError("name is required"))
	StartOperation(ctx, "get_goal").End(errors.New("disk I/O error"))

	if got := testutil.ToFloat64(tel.Metrics.operations.WithLabelValues("create_goal", "success")); got != 1 {
		t.Errorf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.operations.WithLabelValues("create_goal", "error")); got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.errorsByKind.WithLabelValues("validation")); got != 1 {
		t.Errorf("expected 1 validation error, got %v", got)
	}
	if got := testutil.ToFloat64(tel.Metrics.errorsByKind.WithLabelValues("internal")); got != 1 {
		t.Errorf("expected plain errors to count as internal, got %v", got)
	}
}

func TestDisabledMetricsAreSafe(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordOperation("x", "success", time.Second)
	m.RecordError("validation")
	m.SetEntityCount("task", 3)
	m.RecordJobRun("cleanup", "success", time.Second)

	var nilMetrics *Metrics
	nilMetrics.RecordPolicyDenial("bulk-limits")

	if m.Registry() != nil {
		t.Error("expected no registry when disabled")
	}
}

func TestNewChangeEvent(t *testing.T) {
	event, err := NewChangeEvent("service", domain.EntityProject, ActionArchived, "p-1", map[string]int{"archived": 5})
	if err != nil {
		t.Fatalf("NewChangeEvent failed: %v", err)
	}

	if event.Type() != "com.evorbrain.project.archived" {
		t.Errorf("unexpected type %s", event.Type())
	}
	if event.Source() != "/evorbrain/service" {
		t.Errorf("unexpected source %s", event.Source())
	}
	if event.Subject() != "p-1" {
		t.Errorf("unexpected subject %s", event.Subject())
	}
	if event.Extensions()[ExtEntityType] != "project" {
		t.Errorf("unexpected entity extension %v", event.Extensions()[ExtEntityType])
	}

	var data map[string]int
	if err := event.DataAs(&data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if data["archived"] != 5 {
		t.Errorf("unexpected data %v", data)
	}
}

func TestAsyncPublisherDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16, EnableAsync: true}, nil)
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	var received []string
	ep.Subscribe(func(e cloudevents.Event) {
		received = append(received, e.Subject())
	}, FilterByType(EventType("task", ActionCreated)))

	for _, id := range []string{"a", "b", "c"} {
		if err := ep.PublishChange("test", domain.EntityTask, ActionCreated, id, nil); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	_ = ep.PublishChange("test", domain.EntityTask, ActionDeleted, "ignored", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if strings.Join(received, ",") != "a,b,c" {
		t.Errorf("expected a,b,c in order, got %v", received)
	}

	if err := ep.PublishChange("test", domain.EntityTask, ActionCreated, "late", nil); err == nil {
		t.Error("expected publish after shutdown to fail")
	}
}

func TestUnsubscribe(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 1}, nil)

	count := 0
	cancel := ep.Subscribe(func(cloudevents.Event) { count++ }, FilterBySubject("x"))
	_ = ep.PublishChange("test", domain.EntityNote, ActionCreated, "x", nil)
	_ = ep.PublishChange("test", domain.EntityNote, ActionCreated, "y", nil)
	cancel()
	_ = ep.PublishChange("test", domain.EntityNote, ActionCreated, "x", nil)

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
}
