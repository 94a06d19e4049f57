package policy

import (
	"time"
)

// Built-in policy names.
const (
	HierarchyIntegrityPolicy = "hierarchy-integrity"
	BulkLimitsPolicy         = "bulk-limits"
	RetentionPolicy          = "retention"
)

// MaxBulkItems is the largest id list accepted by batch delete and bulk
// update.
const MaxBulkItems = 500

// MinRecommendedRetentionDays is the shortest cleanup retention that does
// not produce a warning.
const MinRecommendedRetentionDays = 7

// BuiltinPolicies returns the guards compiled into every engine.
func BuiltinPolicies() []Policy {
	return []Policy{
		hierarchyIntegrityPolicy(),
		bulkLimitsPolicy(),
		retentionPolicy(),
	}
}

func builtin(name, description string, tags []string, rego string) Policy {
	now := time.Now()
	return Policy{
		Name:        name,
		Description: description,
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego:        rego,
	}
}

// hierarchyIntegrityPolicy refuses to delete a life area, goal or project
// that still has children.
func hierarchyIntegrityPolicy() Policy {
	return builtin(
		HierarchyIntegrityPolicy,
		"Refuses deleting a life area, goal or project that still has children",
		[]string{"hierarchy", "delete"},
		`package evorbrain.guards.hierarchy

import rego.v1

labels := {
	"life_area": "life area",
	"goal": "goal",
	"project": "project",
}

children := {
	"life_area": "goals",
	"goal": "projects",
	"project": "tasks",
}

deny contains violation if {
	input.operation == "delete"
	label := labels[input.entity_type]
	noun := children[input.entity_type]
	n := input.counts.children
	n > 0
	violation := {
		"message": sprintf("Cannot delete %s: %d %s are still associated with it. Please delete or reassign them first.", [label, n, noun]),
		"severity": "error",
		"entity_id": object.get(input, "entity_id", ""),
	}
}
`)
}

// bulkLimitsPolicy caps the size of batch operations.
func bulkLimitsPolicy() Policy {
	return builtin(
		BulkLimitsPolicy,
		"Caps batch delete and bulk update at 500 items",
		[]string{"bulk"},
		`package evorbrain.guards.bulk

import rego.v1

max_items := 500

bulk_operations := {"batch_delete", "bulk_update"}

deny contains violation if {
	input.operation in bulk_operations
	n := input.counts.items
	n > max_items
	violation := {
		"message": sprintf("%s of %d items exceeds the limit of %d", [input.operation, n, max_items]),
		"severity": "error",
	}
}
`)
}

// retentionPolicy guards database cleanup.
func retentionPolicy() Policy {
	return builtin(
		RetentionPolicy,
		"Requires cleanup to keep at least one day of archived items",
		[]string{"cleanup"},
		`package evorbrain.guards.retention

import rego.v1

recommended_days := 7

deny contains violation if {
	input.operation == "cleanup"
	days := input.params.older_than_days
	days < 1
	violation := {
		"message": sprintf("cleanup retention must be at least 1 day, got %d", [days]),
		"severity": "critical",
	}
}

deny contains violation if {
	input.operation == "cleanup"
	days := input.params.older_than_days
	days >= 1
	days < recommended_days
	violation := {
		"message": sprintf("cleanup retention of %d days is shorter than the recommended %d days", [days, recommended_days]),
		"severity": "warning",
	}
}
`)
}
