package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("featurewindow: invalid configuration")

	// ErrUnknownColumn is matched by every *UnknownColumnError.
	ErrUnknownColumn = errors.New("featurewindow: unknown column")

	// ErrDuplicateColumn is returned when a column list declares a name twice.
	ErrDuplicateColumn = errors.New("featurewindow: duplicate column")

	// ErrMissingValue is returned when a row has no usable value for a column
	// the schema needs (key, rowtime, window bounds).
	ErrMissingValue = errors.New("featurewindow: missing column value")
)

// ConfigurationError reports a schema that cannot serve its access pattern.
// It is raised at setup time and aborts pipeline startup.
type ConfigurationError struct {
	// Kind is the access pattern being validated, empty for general errors.
	Kind AccessKind

	// Fields are the offending field names, in pattern order.
	Fields []string

	Msg string

	// Err is an optional underlying cause.
	Err error
}

func (e *ConfigurationError) Error() string {
	return "featurewindow: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func missingFieldsError(kind AccessKind, fields []string) *ConfigurationError {
	return &ConfigurationError{
		Kind:   kind,
		Fields: fields,
		Msg:    fmt.Sprintf("missing required field(s) %s for access pattern %s", strings.Join(fields, ","), kind),
	}
}

func invalidFieldsError(kind AccessKind, fields []string) *ConfigurationError {
	return &ConfigurationError{
		Kind:   kind,
		Fields: fields,
		Msg:    fmt.Sprintf("invalid field(s) %s present for access pattern %s", strings.Join(fields, ","), kind),
	}
}

// UnknownColumnError names a column the ColumnIndex was not built with.
type UnknownColumnError struct {
	Name string
	// Output is set when the lookup was against the output mapping.
	Output bool
}

func (e *UnknownColumnError) Error() string {
	side := "input"
	if e.Output {
		side = "output"
	}
	return fmt.Sprintf("featurewindow: unknown %s column %q", side, e.Name)
}

func (e *UnknownColumnError) Is(target error) bool {
	return target == ErrUnknownColumn
}
