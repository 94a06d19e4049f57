package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// Defaults applied when Options leaves a limit at zero.
const (
	DefaultMaxSteps = 10000
	DefaultTimeout  = 2 * time.Second
	MaxExprLength   = 1000
)

const filterFile = "filter"

// Options bounds filter execution.
type Options struct {
	// MaxSteps limits the Starlark steps spent on a single task.
	MaxSteps uint64

	// Timeout limits a whole Apply call.
	Timeout time.Duration
}

// Filter is a parsed task filter expression. It is safe for concurrent use.
type Filter struct {
	expr     string
	fileOpts *syntax.FileOptions
	maxSteps uint64
	timeout  time.Duration
}

// Compile parses expr. Syntax errors are validation errors.
func Compile(expr string, opts Options) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, domain.NewValidationError("filter expression is required").WithDetail("field", "expr")
	}
	if len(expr) > MaxExprLength {
		return nil, domain.NewValidationError(fmt.Sprintf("filter expression must be at most %d characters", MaxExprLength)).
			WithDetail("field", "expr")
	}

	fileOpts := &syntax.FileOptions{}
	if _, err := fileOpts.ParseExpr(filterFile, expr, 0); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid filter expression: %v", err)).
			WithDetail("field", "expr")
	}

	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Filter{
		expr:     expr,
		fileOpts: fileOpts,
		maxSteps: opts.MaxSteps,
		timeout:  opts.Timeout,
	}, nil
}

// String returns the expression source.
func (f *Filter) String() string {
	return f.expr
}

// Match reports whether a single task satisfies the filter.
func (f *Filter) Match(ctx context.Context, task *domain.Task, now time.Time) (bool, error) {
	matched, err := f.Apply(ctx, []domain.Task{*task}, now)
	if err != nil {
		return false, err
	}
	return len(matched) == 1, nil
}

// Apply returns the tasks that satisfy the filter, preserving order.
func (f *Filter) Apply(ctx context.Context, tasks []domain.Task, now time.Time) ([]domain.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var current atomic.Pointer[starlark.Thread]
	stop := context.AfterFunc(ctx, func() {
		if thread := current.Load(); thread != nil {
			thread.Cancel("filter timed out")
		}
	})
	defer stop()

	matched := []domain.Task{}
	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return nil, f.timeoutError(err)
		}

		thread := f.newThread()
		current.Store(thread)

		ok, err := f.eval(thread, &tasks[i], now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, f.timeoutError(ctx.Err())
			}
			return nil, err
		}
		if ok {
			matched = append(matched, tasks[i])
		}
	}

	return matched, nil
}

func (f *Filter) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Name:  "task-filter",
		Print: func(*starlark.Thread, string) {},
	}
	thread.SetMaxExecutionSteps(f.maxSteps)
	return thread
}

func (f *Filter) eval(thread *starlark.Thread, task *domain.Task, now time.Time) (bool, error) {
	value, err := starlark.EvalOptions(f.fileOpts, thread, filterFile, f.expr, taskGlobals(task, now))
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return false, domain.NewValidationError(fmt.Sprintf("filter failed on task %q: %s", task.Name, evalErr.Msg)).
				WithDetail("field", "expr")
		}
		return false, domain.NewValidationError(fmt.Sprintf("filter failed on task %q: %v", task.Name, err)).
			WithDetail("field", "expr")
	}

	b, ok := value.(starlark.Bool)
	if !ok {
		return false, domain.NewValidationError(fmt.Sprintf("filter must evaluate to a bool, got %s", value.Type())).
			WithDetail("field", "expr")
	}
	return bool(b), nil
}

func (f *Filter) timeoutError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewValidationError(fmt.Sprintf("filter exceeded its time limit of %v", f.timeout)).
			WithDetail("field", "expr")
	}
	return err
}
