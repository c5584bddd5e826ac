package param

import (
	"errors"
	"fmt"
)

var (
	ErrLineTooLong  = errors.New("line too long")
	ErrFieldTooLong = errors.New("value exceeds field width")
	ErrBadVersion   = errors.New("malformed FIRMWARE_VER")
	ErrMissingPath  = errors.New("package has no path")
)

// FieldError reports a value that does not fit its fixed-width field.
type FieldError struct {
	Field string
	Value string
	Max   int
}

// Excess is the number of bytes over the limit.
func (e *FieldError) Excess() int {
	return len(e.Value) - e.Max
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q is %d bytes too long (max %d)", e.Field, e.Value, e.Excess(), e.Max)
}

func (e *FieldError) Unwrap() error { return ErrFieldTooLong }

func checkWidth(field, value string, max int) error {
	if len(value) > max {
		return &FieldError{Field: field, Value: value, Max: max}
	}
	return nil
}
