package stores

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// timeLayout is fixed width in UTC so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type scanner interface {
	Scan(dest ...interface{}) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use full RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}

// timestamps collects parse errors across a row's time columns.
type timestamps struct {
	err error
}

func (ts *timestamps) req(s string) time.Time {
	if ts.err != nil {
		return time.Time{}
	}
	t, err := parseTime(s)
	ts.err = err
	return t
}

func (ts *timestamps) opt(ns sql.NullString) *time.Time {
	if ts.err != nil {
		return nil
	}
	t, err := parseNullTime(ns)
	ts.err = err
	return t
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		if code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3lib.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), "UNIQUE")
	}
	return false
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		if code == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
			return true
		}
		return code&0xff == sqlite3lib.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), "FOREIGN KEY")
	}
	return false
}

// insertError classifies a failed INSERT or UPDATE.
func insertError(entity domain.EntityType, op string, err error) error {
	if isUniqueViolation(err) {
		return domain.NewAlreadyExistsError(entity, err)
	}
	if isForeignKeyViolation(err) {
		return domain.NewValidationError(fmt.Sprintf("%s references a missing parent", strings.ToLower(entity.Title()))).
			WithEntity(entity)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// affectedOrNotFound converts a zero-row result into a not-found error.
func affectedOrNotFound(result sql.Result, entity domain.EntityType, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError(entity, id)
	}
	return nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
