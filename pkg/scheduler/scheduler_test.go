package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/backup"
	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/service"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s := New(zerolog.Nop(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestAddValidation(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }

	tests := []struct {
		name     string
		job      Job
		errorMsg string
	}{
		{name: "valid", job: Job{Name: "a", Spec: "*/5 * * * *", Run: noop}},
		{name: "descriptor", job: Job{Name: "b", Spec: "@daily", Run: noop}},
		{name: "missing name", job: Job{Spec: "* * * * *", Run: noop}, errorMsg: "name is required"},
		{name: "missing func", job: Job{Name: "c", Spec: "* * * * *"}, errorMsg: "has no function"},
		{name: "bad spec", job: Job{Name: "d", Spec: "every minute", Run: noop}, errorMsg: "invalid cron spec"},
		{name: "six fields", job: Job{Name: "e", Spec: "0 * * * * *", Run: noop}, errorMsg: "invalid cron spec"},
	}

	s := newTestScheduler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.job)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}

	if err := s.Add(Job{Name: "a", Spec: "* * * * *", Run: noop}); err == nil {
		t.Error("expected error for a duplicate job name")
	}
}

func TestRunNowRecordsStatus(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "evorbrain"})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	s := newTestScheduler(t, WithMetrics(metrics))

	fail := true
	if err := s.Add(Job{
		Name: "flaky",
		Spec: "@hourly",
		Run: func(ctx context.Context) error {
			if fail {
				return errors.New("disk full")
			}
			return nil
		},
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx := context.Background()
	if err := s.RunNow(ctx, "flaky"); err == nil {
		t.Fatal("expected the job error")
	}
	fail = false
	if err := s.RunNow(ctx, "flaky"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	status := jobs[0]
	if status.Runs != 2 || status.Failures != 1 {
		t.Errorf("expected 2 runs and 1 failure, got %d/%d", status.Runs, status.Failures)
	}
	if status.LastStatus != "success" || status.LastError != "" {
		t.Errorf("expected a clean last run, got %q %q", status.LastStatus, status.LastError)
	}
	if status.LastRun == nil {
		t.Error("expected LastRun to be set")
	}

	if n, err := testutil.GatherAndCount(metrics.Registry(), "evorbrain_job_runs_total"); err != nil || n != 2 {
		t.Errorf("expected success and failure series, got %d (%v)", n, err)
	}
}

func TestRunNowRecoversPanic(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.Add(Job{
		Name: "broken",
		Spec: "@hourly",
		Run:  func(ctx context.Context) error { panic("nil map") },
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	err := s.RunNow(context.Background(), "broken")
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected a panic error, got %v", err)
	}

	// The job can run again afterwards.
	if err := s.RunNow(context.Background(), "broken"); err == nil || strings.Contains(err.Error(), "already running") {
		t.Errorf("expected a second panic error, got %v", err)
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("expected error for an unknown job")
	}
}

func TestRunNowSkipsOverlap(t *testing.T) {
	s := newTestScheduler(t)
	release := make(chan struct{})
	started := make(chan struct{})
	if err := s.Add(Job{
		Name: "slow",
		Spec: "@hourly",
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunNow(context.Background(), "slow")
	}()
	<-started

	err := s.RunNow(context.Background(), "slow")
	close(release)
	wg.Wait()

	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("expected overlap to be refused, got %v", err)
	}
}

func TestJobTimeout(t *testing.T) {
	s := newTestScheduler(t, WithJobTimeout(20*time.Millisecond))
	if err := s.Add(Job{
		Name: "stuck",
		Spec: "@hourly",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := s.RunNow(context.Background(), "stuck"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t)
	var runs atomic.Int32
	if err := s.Add(Job{
		Name: "tick",
		Spec: "@every 10ms",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	s.Start(context.Background())
	s.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("expected the job to run at least once")
	}

	if next := s.Jobs()[0].NextRun; next == nil {
		t.Error("expected a next run while started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

type fakeMaintainer struct {
	cleanups []domain.CleanupOptions
	scans    int
	store    stores.Store
}

func (f *fakeMaintainer) CleanupDatabase(ctx context.Context, opts domain.CleanupOptions) (*domain.TransactionResult, error) {
	f.cleanups = append(f.cleanups, opts)
	return &domain.TransactionResult{Success: true}, nil
}

func (f *fakeMaintainer) ScanOverdueTasks(ctx context.Context) ([]domain.Task, error) {
	f.scans++
	return nil, nil
}

func (f *fakeMaintainer) Store() stores.Store {
	return f.store
}

func TestMaintenanceJobs(t *testing.T) {
	backups, err := backup.NewManager(backup.Options{Dir: t.TempDir(), Keep: 2})
	if err != nil {
		t.Fatalf("failed to create backup manager: %v", err)
	}

	tests := []struct {
		name    string
		cfg     config.SchedulerConfig
		backups *backup.Manager
		want    []string
	}{
		{
			name: "defaults",
			cfg:  config.Default().Scheduler,
			want: []string{JobCleanup, JobOverdue},
		},
		{
			name: "backup without manager",
			cfg:  config.SchedulerConfig{BackupCron: "0 2 * * *"},
		},
		{
			name:    "all jobs",
			cfg:     config.SchedulerConfig{CleanupCron: "0 3 * * *", BackupCron: "0 2 * * *", OverdueCron: "@hourly"},
			backups: backups,
			want:    []string{JobCleanup, JobBackup, JobOverdue},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := MaintenanceJobs(tt.cfg, &fakeMaintainer{}, tt.backups)
			var names []string
			for _, job := range jobs {
				names = append(names, job.Name)
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, names)
			}
		})
	}
}

func TestCleanupJobUsesRetention(t *testing.T) {
	m := &fakeMaintainer{}
	cfg := config.SchedulerConfig{CleanupCron: "0 3 * * *", CleanupRetentionDays: 45}

	s := newTestScheduler(t)
	for _, job := range MaintenanceJobs(cfg, m, nil) {
		if err := s.Add(job); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := s.RunNow(context.Background(), JobCleanup); err != nil {
		t.Fatalf("cleanup job failed: %v", err)
	}

	if len(m.cleanups) != 1 {
		t.Fatalf("expected 1 cleanup, got %d", len(m.cleanups))
	}
	if got := m.cleanups[0]; got.OlderThanDays != 45 || !got.Vacuum {
		t.Errorf("unexpected cleanup options %+v", got)
	}
}

func TestOverdueJobPublishesEvents(t *testing.T) {
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

	tel := telemetry.NewNop()
	clock := testNow
	svc, err := service.New(service.Options{Store: store, Telemetry: tel, Now: func() time.Time { return clock }})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	due := testNow.Add(30 * time.Minute)
	if _, err := svc.CreateTask(ctx, domain.CreateTaskRequest{Name: "Renew passport", DueDate: &due}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	clock = testNow.AddDate(0, 0, 1)

	var mu sync.Mutex
	var overdue []string
	unsubscribe := tel.Events.Subscribe(func(event cloudevents.Event) {
		mu.Lock()
		defer mu.Unlock()
		overdue = append(overdue, event.Subject())
	}, telemetry.FilterByType(telemetry.EventTypePrefix+"task."+telemetry.ActionOverdue))
	defer unsubscribe()

	s := newTestScheduler(t)
	for _, job := range MaintenanceJobs(config.SchedulerConfig{OverdueCron: "*/15 * * * *"}, svc, nil) {
		if err := s.Add(job); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := s.RunNow(ctx, JobOverdue); err != nil {
		t.Fatalf("overdue job failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(overdue) != 1 {
		t.Errorf("expected 1 overdue event, got %d", len(overdue))
	}
}
