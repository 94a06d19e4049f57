package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Limits shared by validation rules.
const (
	MaxNameLength            = 100
	MaxDescriptionLength     = 500
	MaxTaskDescriptionLength = 2000
	MaxNoteTitleLength       = 200
	MaxTagNameLength         = 50
	MaxRecurrenceRuleLength  = 500
	MaxMinutes               = 10080
)

var (
	colorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

	rruleFrequencies = map[string]bool{
		"DAILY":   true,
		"WEEKLY":  true,
		"MONTHLY": true,
		"YEARLY":  true,
	}
)

// Validator checks requests against the hierarchy rules.
type Validator struct {
	validate *validator.Validate

	// Now returns the reference time for date windows.
	Now func() time.Time
}

// NewValidator creates a validator with every custom rule registered.
func NewValidator() *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		Now:      time.Now,
	}

	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	mustRegister(v.validate, "entity_name", validateEntityName)
	mustRegister(v.validate, "text", validateText)
	mustRegister(v.validate, "color_hex", validateColor)
	mustRegister(v.validate, "rrule", validateRRule)
	mustRegister(v.validate, "note_title", validateNoteTitle)
	mustRegister(v.validate, "tag_name", validateTagName)

	v.validate.RegisterStructValidation(v.taskDates, CreateTaskRequest{}, UpdateTaskRequest{})
	v.validate.RegisterStructValidation(v.goalDates, CreateGoalRequest{}, UpdateGoalRequest{})
	v.validate.RegisterStructValidation(v.projectDates, CreateProjectRequest{}, UpdateProjectRequest{})
	v.validate.RegisterStructValidation(noteParents, CreateNoteRequest{})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register validation %s: %v", tag, err))
	}
}

// Validate checks a request struct. The returned error is an *AppError of
// kind KindValidation describing the first failing field.
func (v *Validator) Validate(req interface{}) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return NewValidationError(describe(verrs[0])).WithDetail("field", verrs[0].Field())
	}
	return NewValidationError(err.Error())
}

// ValidateUpdate validates an update request and requires at least one field
// to be set.
func (v *Validator) ValidateUpdate(req interface{}) error {
	if !HasChanges(req) {
		return NewValidationError("at least one field must be provided for update")
	}
	return v.Validate(req)
}

// ValidateID checks that id is a UUID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return NewBadRequestError(fmt.Sprintf("invalid ID format: %q", id))
	}
	return nil
}

// ValidateIDs checks every id in ids.
func ValidateIDs(ids []string) error {
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProjectDates checks that a project's due date is not before its
// start date.
func ValidateProjectDates(start, due *time.Time) error {
	if start != nil && due != nil && due.Before(*start) {
		return NewValidationError("due date must be on or after start date")
	}
	return nil
}

func (v *Validator) taskDates(sl validator.StructLevel) {
	var due *time.Time
	switch r := sl.Current().Interface().(type) {
	case CreateTaskRequest:
		due = r.DueDate
	case UpdateTaskRequest:
		due = r.DueDate
	}
	if due == nil {
		return
	}

	now := v.Now()
	if due.Before(now.Add(-time.Hour)) {
		sl.ReportError(due, "due_date", "DueDate", "not_past", "")
	}
	if due.After(now.AddDate(2, 0, 0)) {
		sl.ReportError(due, "due_date", "DueDate", "within_years", "2")
	}
}

func (v *Validator) goalDates(sl validator.StructLevel) {
	var target *time.Time
	switch r := sl.Current().Interface().(type) {
	case CreateGoalRequest:
		target = r.TargetDate
	case UpdateGoalRequest:
		target = r.TargetDate
	}
	if target == nil {
		return
	}

	if target.Before(startOfDay(v.Now())) {
		sl.ReportError(target, "target_date", "TargetDate", "not_past", "")
	}
}

func (v *Validator) projectDates(sl validator.StructLevel) {
	var start, due *time.Time
	switch r := sl.Current().Interface().(type) {
	case CreateProjectRequest:
		start, due = r.StartDate, r.DueDate
	case UpdateProjectRequest:
		start, due = r.StartDate, r.DueDate
	}

	now := v.Now()
	if start != nil && start.Before(now.AddDate(-1, 0, 0)) {
		sl.ReportError(start, "start_date", "StartDate", "within_past_years", "1")
	}
	if due != nil && due.After(now.AddDate(5, 0, 0)) {
		sl.ReportError(due, "due_date", "DueDate", "within_years", "5")
	}
	if start != nil && due != nil && due.Before(*start) {
		sl.ReportError(due, "due_date", "DueDate", "after_start", "")
	}
}

func noteParents(sl validator.StructLevel) {
	r := sl.Current().Interface().(CreateNoteRequest)
	if r.parentCount() > 1 {
		sl.ReportError(r.TaskID, "parent", "Parent", "single_parent", "")
	}
}

func validateEntityName(fl validator.FieldLevel) bool {
	return validName(fl.Field().String(), MaxNameLength) &&
		!strings.ContainsAny(fl.Field().String(), "\r")
}

func validateNoteTitle(fl validator.FieldLevel) bool {
	return validName(fl.Field().String(), MaxNoteTitleLength)
}

func validateTagName(fl validator.FieldLevel) bool {
	return validName(fl.Field().String(), MaxTagNameLength)
}

func validName(s string, max int) bool {
	trimmed := strings.TrimSpace(s)
	n := utf8.RuneCountInString(trimmed)
	return n > 0 && n <= max && !strings.ContainsRune(s, 0)
}

func validateText(fl validator.FieldLevel) bool {
	max := MaxDescriptionLength
	if p := fl.Param(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &max); err != nil {
			return false
		}
	}
	s := fl.Field().String()
	return utf8.RuneCountInString(s) <= max && !strings.ContainsRune(s, 0)
}

func validateColor(fl validator.FieldLevel) bool {
	return colorPattern.MatchString(fl.Field().String())
}

func validateRRule(fl validator.FieldLevel) bool {
	return ValidRecurrenceRule(fl.Field().String())
}

// ValidRecurrenceRule reports whether rule is a supported RRULE: a FREQ
// part first, one of DAILY, WEEKLY, MONTHLY or YEARLY.
func ValidRecurrenceRule(rule string) bool {
	if len(rule) == 0 || len(rule) > MaxRecurrenceRuleLength {
		return false
	}
	if !strings.HasPrefix(rule, "FREQ=") {
		return false
	}
	freq := strings.SplitN(strings.TrimPrefix(rule, "FREQ="), ";", 2)[0]
	return rruleFrequencies[freq]
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "entity_name":
		return fmt.Sprintf("%s must be 1-%d characters and must not contain control characters", field, MaxNameLength)
	case "note_title":
		return fmt.Sprintf("%s must be 1-%d characters", field, MaxNoteTitleLength)
	case "tag_name":
		return fmt.Sprintf("%s must be 1-%d characters", field, MaxTagNameLength)
	case "text":
		return fmt.Sprintf("%s must be at most %s characters and must not contain null characters", field, fe.Param())
	case "color_hex":
		return fmt.Sprintf("%s must be a hex color like #RRGGBB or #RGB", field)
	case "rrule":
		return fmt.Sprintf("%s must start with FREQ= and use DAILY, WEEKLY, MONTHLY or YEARLY", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "not_past":
		return fmt.Sprintf("%s cannot be in the past", field)
	case "within_years":
		return fmt.Sprintf("%s cannot be more than %s years in the future", field, fe.Param())
	case "within_past_years":
		return fmt.Sprintf("%s cannot be more than %s year in the past", field, fe.Param())
	case "after_start":
		return "due date must be on or after start date"
	case "single_parent":
		return "a note can be attached to at most one parent"
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayBounds returns the start of the local day containing t and the start
// of the following day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := startOfDay(t)
	return start, start.AddDate(0, 0, 1)
}
