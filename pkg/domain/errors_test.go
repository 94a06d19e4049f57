package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{name: "validation", err: NewValidationError("name is required"), want: "Validation failed: name is required"},
		{name: "not found", err: NewNotFoundError(EntityTask, "x"), want: "Task not found"},
		{name: "life area not found", err: NewNotFoundError(EntityLifeArea, "x"), want: "Life area not found"},
		{name: "already exists", err: NewAlreadyExistsError(EntityTag, nil), want: "Tag already exists"},
		{name: "database", err: NewDatabaseError("create task", errors.New("disk full")), want: "Database error: create task"},
		{name: "bad request", err: NewBadRequestError("invalid ID format"), want: "Bad request: invalid ID format"},
		{name: "permission", err: NewPermissionDeniedError("blocked"), want: "Permission denied: blocked"},
		{name: "internal", err: NewInternalError("boom", nil), want: "Internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.UserMessage(); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindBadRequest, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindAlreadyExists, http.StatusConflict},
		{KindPermissionDenied, http.StatusForbidden},
		{KindDatabase, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := (&AppError{Kind: tt.kind}).HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestAppErrorIsAndUnwrap(t *testing.T) {
	cause := errors.New("no rows")
	err := fmt.Errorf("lookup: %w", NewDatabaseError("get goal", cause))

	if !errors.Is(err, &AppError{Kind: KindDatabase}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &AppError{Kind: KindNotFound}) {
		t.Error("errors.Is should not match a different kind")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if KindOf(err) != KindDatabase {
		t.Errorf("KindOf() = %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("plain errors should classify as internal")
	}
}

func TestHasChanges(t *testing.T) {
	if HasChanges(&UpdateTaskRequest{}) {
		t.Error("empty request reported changes")
	}
	status := TaskStatusCompleted
	if !HasChanges(&UpdateTaskRequest{Status: &status}) {
		t.Error("status change not detected")
	}
	if HasChanges(nil) {
		t.Error("nil request reported changes")
	}
}
