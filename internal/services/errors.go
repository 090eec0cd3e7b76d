package services

import (
	"errors"
	"fmt"
	"strings"

	"predictra/internal/machine"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrProtocol      = errors.New("protocol error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitError carries a subprocess exit code through the error chain so the
// persisted failure message can reference the code while stderr detail stays
// in the logs.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// FailureMessage maps a run error to the message persisted into the training
// run state. Validation and configuration problems keep their specific text so
// callers can act on them; process and protocol failures collapse to generic
// messages, referencing only the exit code when one is known, with detail left
// to the logs.
func FailureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return err.Error()
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return err.Error()
	case errors.Is(err, ErrProtocol):
		return "completed but no valid result returned"
	default:
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return fmt.Sprintf("training process failed (exit code %d)", exitErr.Code)
		}
		return "training process failed"
	}
}

// FailureStatus maps a run error to the terminal machine run status.
// Every classified error terminates the run; there is no retryable state at
// this layer.
func FailureStatus(err error) machine.RunStatus {
	if err == nil {
		return machine.RunCompleted
	}
	return machine.RunFailed
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
