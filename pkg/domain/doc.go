// Package domain defines the EvorBrain hierarchy: life areas, goals,
// projects, tasks and the notes and tags attached to them.
//
// # Hierarchy
//
// Every goal belongs to a life area, every project to a goal and every task
// optionally to a project. Tasks may have subtasks through ParentTaskID.
// Progress rolls up the hierarchy: a project's progress is the share of its
// tasks that are completed and a goal's progress is the mean progress of its
// projects.
//
// # Requests and validation
//
// Create and update operations take request structs carrying validator tags.
// Validator registers the custom rules (entity names, hex colors,
// recurrence rules) and the date windows that depend on the current time:
//
//	v := domain.NewValidator()
//	if err := v.Validate(req); err != nil {
//	    // err is an *AppError of kind KindValidation
//	}
//
// # Errors
//
// AppError classifies failures by Kind. Kinds map onto user-facing messages
// and HTTP status codes; see UserMessage.
package domain
