// Package simerr defines the error kinds shared by every simulation package.
//
// Configuration and validation errors abort the requested operation.
// Rule-engine and numeric-degeneracy kinds are recovered locally by the
// component that detects them and only surface in logs and counters.
package simerr

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrValidation            = errors.New("validation error")
	ErrRuleEngineUnavailable = errors.New("rule engine unavailable")
	ErrQueryFailed           = errors.New("rule engine query failed")
	ErrNumericDegeneracy     = errors.New("numeric degeneracy")
	ErrIndexOutOfRange       = errors.New("index out of range")
)

// FieldError reports a bad value for a named parameter.
type FieldError struct {
	Kind   error  // one of the Err* kinds
	Field  string // dotted parameter path, e.g. "species.aedes_aegypti.stages.egg"
	Value  any
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%v: %s=%v: %s", e.Kind, e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Kind }

// Validation returns a FieldError of kind ErrValidation.
func Validation(field string, value any, reason string) error {
	return &FieldError{Kind: ErrValidation, Field: field, Value: value, Reason: reason}
}

// Configuration returns a FieldError of kind ErrConfiguration.
func Configuration(field string, value any, reason string) error {
	return &FieldError{Kind: ErrConfiguration, Field: field, Value: value, Reason: reason}
}

// Collector accumulates independent field errors so a caller sees all of
// them at once. Kind defaults to ErrValidation.
type Collector struct {
	Kind error
	errs []error
}

func (c *Collector) kind() error {
	if c.Kind == nil {
		return ErrValidation
	}
	return c.Kind
}

// Check records a field error of the collector's kind when ok is false.
func (c *Collector) Check(ok bool, field string, value any, reason string) {
	if !ok {
		c.errs = append(c.errs, &FieldError{Kind: c.kind(), Field: field, Value: value, Reason: reason})
	}
}

// Add records err if it is non-nil.
func (c *Collector) Add(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Range records an error when v is outside [lo, hi] or NaN.
func (c *Collector) Range(field string, v, lo, hi float64) {
	c.Check(v >= lo && v <= hi, field, v, fmt.Sprintf("must be in [%g, %g]", lo, hi))
}

// Err joins everything recorded, or returns nil.
func (c *Collector) Err() error {
	return errors.Join(c.errs...)
}

// Len reports how many errors were recorded.
func (c *Collector) Len() int { return len(c.errs) }
