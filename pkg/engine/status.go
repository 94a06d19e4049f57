package engine

import "fmt"

// OperationType is what the applier does with a plan unit.
type OperationType string

const (
	// OperationCreate inserts a node that has no match in the database.
	OperationCreate OperationType = "create"

	// OperationUpdate changes the fields of a matched node.
	OperationUpdate OperationType = "update"

	// OperationNoop leaves a matched node untouched.
	OperationNoop OperationType = "noop"
)

// IsMutating returns true if the operation writes to the database.
func (o OperationType) IsMutating() bool {
	return o == OperationCreate || o == OperationUpdate
}

// Validate checks if the operation type is valid.
func (o OperationType) Validate() error {
	switch o {
	case OperationCreate, OperationUpdate, OperationNoop:
		return nil
	default:
		return fmt.Errorf("invalid operation type: %s", o)
	}
}

// Symbol is the one-character marker used when printing plans.
func (o OperationType) Symbol() string {
	switch o {
	case OperationCreate:
		return "+"
	case OperationUpdate:
		return "~"
	default:
		return " "
	}
}

// PlanStatus is the state of a plan unit during apply.
type PlanStatus string

const (
	PlanStatusPending   PlanStatus = "pending"
	PlanStatusSucceeded PlanStatus = "succeeded"
	PlanStatusFailed    PlanStatus = "failed"

	// PlanStatusSkipped marks units not attempted after an earlier failure.
	PlanStatusSkipped PlanStatus = "skipped"
)

// IsTerminal returns true if the plan status represents a final state.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusSucceeded || s == PlanStatusFailed || s == PlanStatusSkipped
}

// Validate checks if the plan status is valid.
func (s PlanStatus) Validate() error {
	switch s {
	case PlanStatusPending, PlanStatusSucceeded, PlanStatusFailed, PlanStatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid plan status: %s", s)
	}
}

// RunStatus is the outcome of applying a whole plan.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusPartial means some units were applied before a failure.
	RunStatusPartial RunStatus = "partial"

	RunStatusFailed RunStatus = "failed"
)

// DependencyType labels an edge of the execution graph.
type DependencyType string

const (
	// DependencyParent links a node to the node it is created under.
	DependencyParent DependencyType = "parent"
)
