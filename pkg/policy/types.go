package policy

import (
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is reported but never blocks.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the operation.
	SeverityError Severity = "error"

	// SeverityCritical blocks the operation.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity refuse the operation.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Guarded operations.
const (
	OpDelete      = "delete"
	OpBatchDelete = "batch_delete"
	OpBulkUpdate  = "bulk_update"
	OpCleanup     = "cleanup"
	OpArchive     = "archive"
)

// Count keys understood by the built-in guards.
const (
	CountChildren = "children"
	CountItems    = "items"
)

// Policy is a named Rego module. Its package must define a `deny` set.
type Policy struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Rego        string                 `json:"rego"`
	Severity    Severity               `json:"severity"`
	Enabled     bool                   `json:"enabled"`
	Builtin     bool                   `json:"builtin"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// GuardInput is the document bound to `input` while evaluating guards.
type GuardInput struct {
	// Operation is one of the Op* constants.
	Operation string `json:"operation"`

	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`

	// Counts carries sizes the guards compare against, such as the number
	// of children of the entity being deleted.
	Counts map[string]int64 `json:"counts"`

	// Params carries operation arguments, e.g. older_than_days for cleanup.
	Params map[string]interface{} `json:"params"`
}

// Violation is one entry of a policy's deny set.
type Violation struct {
	Policy     string                 `json:"policy"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Message    string                 `json:"message"`
	Severity   Severity               `json:"severity"`
	Details    map[string]interface{} `json:"details,omitempty"`
	DetectedAt time.Time              `json:"detected_at"`
}

// Decision is the outcome of evaluating every enabled policy.
type Decision struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluationErrors lists policies that failed to evaluate. A failing
	// policy never blocks.
	EvaluationErrors []string `json:"evaluation_errors,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Err converts a refused decision into an application error. Hierarchy
// violations surface as validation errors so the user sees the message
// verbatim; every other refusal is a permission error.
func (d *Decision) Err() error {
	if d == nil || d.Allowed || len(d.Violations) == 0 {
		return nil
	}

	v := d.Violations[0]
	if v.Policy == HierarchyIntegrityPolicy {
		return domain.NewValidationError(v.Message).WithDetail("policy", v.Policy)
	}
	return domain.NewPermissionDeniedError(v.Message).WithDetail("policy", v.Policy)
}
