// Package scheduler runs the periodic maintenance jobs of the server:
// database cleanup, snapshots and the overdue task scan.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// Job is a named function run on a cron schedule.
type Job struct {
	Name string
	// Spec is a standard five-field cron expression.
	Spec string
	Run  JobFunc
}

// JobStatus reports the last run of a job.
type JobStatus struct {
	Name       string     `json:"name"`
	Spec       string     `json:"spec"`
	Runs       int        `json:"runs"`
	Failures   int        `json:"failures"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
}

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

type entry struct {
	job     Job
	id      cron.EntryID
	mu      sync.Mutex
	running bool
	status  JobStatus
}

// Scheduler runs jobs with robfig/cron. A failing or panicking job is
// logged and counted; it never stops the scheduler.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records every run in the job metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithJobTimeout bounds a single run. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLocation interprets cron specs in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.cron = newCron(s.logger, cron.WithLocation(loc))
		}
	}
}

// New creates a stopped scheduler.
func New(logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:  logger.With().Str("component", "scheduler").Logger(),
		entries: make(map[string]*entry),
		timeout: 30 * time.Minute,
	}
	s.cron = newCron(s.logger)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newCron(logger zerolog.Logger, opts ...cron.Option) *cron.Cron {
	adapter := cronLogger{logger: logger}
	opts = append(opts,
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter)),
	)
	return cron.New(opts...)
}

// Add registers a job. Names must be unique and the spec must parse.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s has no function", job.Name)
	}
	schedule, err := cron.ParseStandard(job.Spec)
	if err != nil {
		return fmt.Errorf("job %s: invalid cron spec %q: %w", job.Name, job.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("job %s is already registered", job.Name)
	}

	e := &entry{
		job:    job,
		status: JobStatus{Name: job.Name, Spec: job.Spec},
	}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.execute(s.runContext(), e)
	}))
	s.entries[job.Name] = e

	s.logger.Debug().Str("job", job.Name).Str("spec", job.Spec).Msg("job registered")
	return nil
}

// Start begins running jobs on their schedules. Jobs see a context that
// is cancelled by Stop or when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true

	s.logger.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	cronDone := s.cron.Stop()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler shutdown timed out")
		return fmt.Errorf("scheduler shutdown timed out: %w", ctx.Err())
	}
}

// RunNow runs a registered job immediately and returns its error. It does
// not wait for or skip a scheduled run of the same job.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.execute(ctx, e)
}

// Jobs returns the status of every job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		status := e.status
		e.mu.Unlock()

		if next := s.cron.Entry(e.id).Next; !next.IsZero() {
			status.NextRun = &next
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// execute runs one job. Overlapping scheduled runs of the same job are
// skipped.
func (s *Scheduler) execute(ctx context.Context, e *entry) (err error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		s.logger.Warn().Str("job", e.job.Name).Msg("previous run still in progress, skipping")
		return fmt.Errorf("job %s is already running", e.job.Name)
	}
	e.running = true
	e.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	logger := s.logger.With().Str("job", e.job.Name).Logger()
	logger.Debug().Msg("job started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.job.Name, r)
		}

		duration := time.Since(started)
		status := statusSuccess
		if err != nil {
			status = statusFailure
			logger.Error().Err(err).Dur("duration", duration).Msg("job failed")
		} else {
			logger.Info().Dur("duration", duration).Msg("job finished")
		}
		s.metrics.RecordJobRun(e.job.Name, status, duration)

		e.mu.Lock()
		e.running = false
		e.status.Runs++
		e.status.LastStatus = status
		e.status.LastRun = &started
		e.status.LastError = ""
		if err != nil {
			e.status.Failures++
			e.status.LastError = err.Error()
		}
		e.mu.Unlock()
	}()

	return e.job.Run(ctx)
}

// cronLogger routes robfig/cron's own messages to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
