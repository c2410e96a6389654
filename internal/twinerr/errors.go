// Package twinerr defines the control plane's error kinds and the
// structured TwinError wrapping type, mirroring the sentinel-error plus
// classifier-function pattern used across the rest of the code.
package twinerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the error handling design, not a
// Go type — every TwinError carries exactly one.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindSafetyBlock    Kind = "SAFETY_BLOCK"
	KindInfraDown      Kind = "INFRASTRUCTURE_DOWN"
	KindParse          Kind = "PARSE_ERROR"
	KindInternal       Kind = "INTERNAL_ERROR"
)

// Sentinel errors for errors.Is comparisons; TwinError.Unwrap exposes one
// of these so callers can classify without inspecting Kind directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("version conflict")
	ErrSafetyBlock    = errors.New("refused by safety rule")
	ErrInfraDown      = errors.New("infrastructure unhealthy")
	ErrValidation     = errors.New("validation failed")
	ErrParse          = errors.New("malformed payload")
	ErrCorruptState   = errors.New("stored value type disagrees with device type")
)

// TwinError is the structured error type returned by every component
// operation that can fail for a reason worth reporting distinctly from a
// bare error string.
type TwinError struct {
	Op      string // e.g. "twin.SaveDesiredState"
	Kind    Kind
	ID      string // the device/override/system id involved, if any
	Message string
	Err     error
}

func (e *TwinError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.ID, e.Kind, e.errOrMessage())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.errOrMessage())
}

func (e *TwinError) errOrMessage() interface{} {
	if e.Err != nil {
		return e.Err
	}
	return e.Message
}

func (e *TwinError) Unwrap() error {
	return e.Err
}

// New builds a TwinError for op/kind wrapping a sentinel or lower-level err.
func New(op string, kind Kind, id string, err error) *TwinError {
	return &TwinError{Op: op, Kind: kind, ID: id, Err: err}
}

// NotFound builds a TwinError wrapping ErrNotFound.
func NotFound(op, id string) *TwinError {
	return New(op, KindNotFound, id, ErrNotFound)
}

// Conflict builds a TwinError wrapping ErrConflict.
func Conflict(op, id string) *TwinError {
	return New(op, KindConflict, id, ErrConflict)
}

// InfraDown builds a TwinError wrapping ErrInfraDown.
func InfraDown(op, id string, cause error) *TwinError {
	return New(op, KindInfraDown, id, fmt.Errorf("%w: %v", ErrInfraDown, cause))
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is, or wraps, ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsSafetyBlock reports whether err is, or wraps, ErrSafetyBlock.
func IsSafetyBlock(err error) bool { return errors.Is(err, ErrSafetyBlock) }

// IsInfraDown reports whether err is, or wraps, ErrInfraDown.
func IsInfraDown(err error) bool { return errors.Is(err, ErrInfraDown) }

// IsValidation reports whether err is, or wraps, ErrValidation or ErrParse.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrParse)
}

// IsInfrastructure reports whether err represents a genuine store/transport
// failure as opposed to a user or conflict error. This is the predicate the
// Infrastructure Health Gate's classifier is built from: only infrastructure
// failures count against the consecutive-failure streak.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	return !IsNotFound(err) && !IsConflict(err) && !IsSafetyBlock(err) && !IsValidation(err)
}
