package query

import (
	"time"

	"go.starlark.net/starlark"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

const secondsPerDay = 24 * 60 * 60

var daysBuiltin = starlark.NewBuiltin("days", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int64
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &n); err != nil {
		return nil, err
	}
	return starlark.MakeInt64(n * secondsPerDay), nil
})

// taskGlobals exposes one task to a filter expression.
func taskGlobals(task *domain.Task, now time.Time) starlark.StringDict {
	tags := make([]starlark.Value, len(task.Tags))
	for i, tag := range task.Tags {
		tags[i] = starlark.String(tag)
	}

	return starlark.StringDict{
		"name":       starlark.String(task.Name),
		"status":     starlark.String(task.Status),
		"priority":   starlark.String(task.Priority),
		"rank":       starlark.MakeInt(task.Priority.Rank()),
		"due":        optionalTime(task.DueDate),
		"overdue":    starlark.Bool(task.IsOverdue(now)),
		"project_id": optionalString(task.ProjectID),
		"tags":       starlark.NewList(tags),
		"estimated":  optionalInt(task.EstimatedMinutes),
		"actual":     optionalInt(task.ActualMinutes),
		"now":        starlark.MakeInt64(now.Unix()),
		"days":       daysBuiltin,
	}
}

func optionalTime(t *time.Time) starlark.Value {
	if t == nil {
		return starlark.None
	}
	return starlark.MakeInt64(t.Unix())
}

func optionalString(s *string) starlark.Value {
	if s == nil {
		return starlark.None
	}
	return starlark.String(*s)
}

func optionalInt(i *int) starlark.Value {
	if i == nil {
		return starlark.None
	}
	return starlark.MakeInt(*i)
}
