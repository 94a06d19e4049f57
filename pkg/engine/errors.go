package engine

import (
	"errors"
	"fmt"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// UnitError is returned by Apply when a plan unit fails. The wrapped error
// is the *domain.AppError returned by the service, so domain.KindOf still
// classifies it.
type UnitError struct {
	UnitID    string            `json:"unit_id"`
	Entity    domain.EntityType `json:"entity"`
	Key       string            `json:"key"`
	Operation OperationType     `json:"operation"`
	Err       error             `json:"-"`
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	return fmt.Sprintf("failed to %s %s %s: %v", e.Operation, e.Entity, e.Key, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// AsUnitError extracts a *UnitError from err.
func AsUnitError(err error) (*UnitError, bool) {
	var e *UnitError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// graphError reports a malformed plan. Plans built by the planner never
// trigger it; hand-built plans can.
func graphError(message string) error {
	return domain.NewValidationError(message).WithDetail("component", "engine")
}

// specError reports a unit whose Spec does not match its entity.
func specError(unit *PlanUnit) error {
	return domain.NewInternalError(fmt.Sprintf("plan unit %s has no %s spec", unit.ID, unit.Entity), nil)
}
