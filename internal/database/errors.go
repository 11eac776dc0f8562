package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrForeignKey      = errors.New("foreign key constraint failed")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrNotNull         = errors.New("not null constraint failed")
	ErrCheckConstraint = errors.New("check constraint failed")
)

// ConstraintKind names the SQLite constraint a write ran into.
type ConstraintKind string

const (
	KindForeignKey ConstraintKind = "foreign_key"
	KindUnique     ConstraintKind = "unique"
	KindNotNull    ConstraintKind = "not_null"
	KindCheck      ConstraintKind = "check"
)

// ConstraintError is a driver error translated into something stores can branch on.
// errors.Is matches the sentinel for its Kind.
type ConstraintError struct {
	Kind   ConstraintKind
	Table  string
	Column string
	driver error
}

func (e *ConstraintError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s constraint on %s.%s", e.Kind, e.Table, e.Column)
	}
	return fmt.Sprintf("%s constraint: %v", e.Kind, e.driver)
}

func (e *ConstraintError) Unwrap() error {
	return e.driver
}

func (e *ConstraintError) Is(target error) bool {
	switch e.Kind {
	case KindForeignKey:
		return target == ErrForeignKey
	case KindUnique:
		return target == ErrUniqueViolation
	case KindNotNull:
		return target == ErrNotNull
	case KindCheck:
		return target == ErrCheckConstraint
	}
	return false
}

// constraintRules are tried in order. A rule with a capture group records the
// "table.column" it names.
var constraintRules = []struct {
	kind    ConstraintKind
	pattern *regexp.Regexp
}{
	{KindForeignKey, regexp.MustCompile(`FOREIGN KEY constraint failed`)},
	{KindUnique, regexp.MustCompile(`UNIQUE constraint failed: ([^\s,]+)`)},
	{KindNotNull, regexp.MustCompile(`NOT NULL constraint failed: ([^\s,]+)`)},
	{KindCheck, regexp.MustCompile(`CHECK constraint failed`)},
}

// ClassifyError wraps SQLite constraint failures in a *ConstraintError and
// returns every other error unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	for _, rule := range constraintRules {
		m := rule.pattern.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		ce := &ConstraintError{Kind: rule.kind, driver: err}
		if len(m) == 2 {
			if table, column, ok := strings.Cut(m[1], "."); ok {
				ce.Table, ce.Column = table, column
			}
		}
		return ce
	}
	return err
}

// IsUniqueError reports whether err is, or wraps, a unique constraint failure.
func IsUniqueError(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// AsConstraintError returns the *ConstraintError in err's chain, if any.
func AsConstraintError(err error) *ConstraintError {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
