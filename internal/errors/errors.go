package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Base error types
var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrToolTimeout     = errors.New("tool timed out")
	ErrToolNonZeroExit = errors.New("tool exited with non-zero status")
	ErrParse           = errors.New("unrecognised tool output")
	ErrWrite           = errors.New("write failed")
	ErrEnumeration     = errors.New("disk enumeration failed")
	ErrInvalidInput    = errors.New("invalid input")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeToolNotFound    ErrorType = "tool_not_found"
	ErrorTypeToolTimeout     ErrorType = "tool_timeout"
	ErrorTypeToolNonZeroExit ErrorType = "tool_nonzero_exit"
	ErrorTypeParse           ErrorType = "parse"
	ErrorTypeWrite           ErrorType = "write"
	ErrorTypeEnumeration     ErrorType = "enumeration"
	ErrorTypeInternal        ErrorType = "internal"
)

// CollectError is a structured error for one stage of a collection cycle.
type CollectError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "invoke", "parse", "append")
	Source    string // Metric source or tool name
	Device    string // Disk identity if applicable
	Err       error  // Underlying error
	ExitCode  int    // Exit status for non-zero exits
	Output    []byte // Partial stdout kept for best-effort parsing
	Timestamp time.Time
}

func (e *CollectError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Source != "" {
		b.WriteString(" ")
		b.WriteString(e.Source)
	}
	if e.Device != "" {
		b.WriteString(" (")
		b.WriteString(e.Device)
		b.WriteString(")")
	}
	if e.Type == ErrorTypeToolNonZeroExit {
		return fmt.Sprintf("%s failed with exit code %d: %v", b.String(), e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", b.String(), e.Err)
}

func (e *CollectError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *CollectError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrToolNotFound:
		return e.Type == ErrorTypeToolNotFound
	case ErrToolTimeout:
		return e.Type == ErrorTypeToolTimeout
	case ErrToolNonZeroExit:
		return e.Type == ErrorTypeToolNonZeroExit
	case ErrParse:
		return e.Type == ErrorTypeParse
	case ErrWrite:
		return e.Type == ErrorTypeWrite
	case ErrEnumeration:
		return e.Type == ErrorTypeEnumeration
	}

	return errors.Is(e.Err, target)
}

// NewCollectError creates a new CollectError
func NewCollectError(errorType ErrorType, op, source string, err error) *CollectError {
	return &CollectError{
		Type:      errorType,
		Op:        op,
		Source:    source,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithDevice adds disk information to the error
func (e *CollectError) WithDevice(device string) *CollectError {
	e.Device = device
	return e
}

// WithExit records the exit status and any output captured before the failure.
func (e *CollectError) WithExit(code int, output []byte) *CollectError {
	e.ExitCode = code
	e.Output = output
	return e
}

// WrapParseError wraps a parser failure with the source it came from
func WrapParseError(source string, err error) error {
	return NewCollectError(ErrorTypeParse, "parse", source, err)
}

// WrapWriteError wraps a persistence failure with the destination path
func WrapWriteError(path string, err error) error {
	return NewCollectError(ErrorTypeWrite, "append", path, err)
}

// WrapEnumerationError wraps a disk discovery failure
func WrapEnumerationError(err error) error {
	return NewCollectError(ErrorTypeEnumeration, "enumerate", "lsblk", err)
}

// TypeOf returns the error category, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var colErr *CollectError
	if errors.As(err, &colErr) {
		return colErr.Type
	}
	return ErrorTypeInternal
}

// IsToolFailure reports whether err came from invoking an external tool.
func IsToolFailure(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeToolNotFound, ErrorTypeToolTimeout, ErrorTypeToolNonZeroExit:
		return true
	}
	return false
}

// PartialOutput returns stdout captured alongside a non-zero exit, if any.
func PartialOutput(err error) []byte {
	var colErr *CollectError
	if errors.As(err, &colErr) && colErr.Type == ErrorTypeToolNonZeroExit {
		return colErr.Output
	}
	return nil
}
