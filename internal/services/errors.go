package services

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a failure class surfaced to API callers and task records.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnsupportedAgent Code = "UNSUPPORTED_AGENT"
	CodeWorkflowNotFound Code = "WORKFLOW_NOT_FOUND"
	CodeExecutionFailed  Code = "AGENT_EXECUTION_FAILED"
	CodeException        Code = "AGENT_EXCEPTION"
	CodeUnavailable      Code = "SERVICE_UNAVAILABLE"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrUnsupportedAgent = errors.New("unsupported agent")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrExecutionFailed  = errors.New("agent execution failed")
	ErrException        = errors.New("agent exception")
	ErrUnavailable      = errors.New("service unavailable")
)

var markerCodes = map[error]Code{
	ErrValidation:       CodeValidation,
	ErrUnsupportedAgent: CodeUnsupportedAgent,
	ErrWorkflowNotFound: CodeWorkflowNotFound,
	ErrExecutionFailed:  CodeExecutionFailed,
	ErrException:        CodeException,
	ErrUnavailable:      CodeUnavailable,
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExecutionFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// CodeOf maps an error to its failure code. Unclassified errors report as
// AGENT_EXECUTION_FAILED so adapter bugs surface as retriable task failures.
func CodeOf(err error) Code {
	for marker, code := range markerCodes {
		if errors.Is(err, marker) {
			return code
		}
	}
	return CodeExecutionFailed
}

// Retriable reports whether a failure class is eligible for retry scheduling.
// Validation and configuration failures are terminal; everything else is
// worth another attempt (circuit-breaker rejections after cooldown included).
func Retriable(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeUnsupportedAgent, CodeWorkflowNotFound:
		return false
	default:
		return true
	}
}

// Summary returns the operator-facing message for an error, stripped of the
// sentinel prefix so raw adapter internals are not leaked verbatim.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for marker := range markerCodes {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
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
