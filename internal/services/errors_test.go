package services_test

import (
	"errors"
	"testing"

	"loom/internal/services"
)

func TestCodeOfClassifiesMarkers(t *testing.T) {
	cases := []struct {
		marker error
		code   services.Code
	}{
		{services.ErrValidation, services.CodeValidation},
		{services.ErrUnsupportedAgent, services.CodeUnsupportedAgent},
		{services.ErrWorkflowNotFound, services.CodeWorkflowNotFound},
		{services.ErrExecutionFailed, services.CodeExecutionFailed},
		{services.ErrException, services.CodeException},
		{services.ErrUnavailable, services.CodeUnavailable},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "agent", "execute", "boom", nil)
		if got := services.CodeOf(err); got != tc.code {
			t.Fatalf("CodeOf(%v) = %s, want %s", tc.marker, got, tc.code)
		}
	}
}

func TestCodeOfDefaultsToExecutionFailed(t *testing.T) {
	if got := services.CodeOf(errors.New("mystery")); got != services.CodeExecutionFailed {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestRetriable(t *testing.T) {
	if services.Retriable(services.Wrap(services.ErrValidation, "agent", "", "bad input", nil)) {
		t.Fatal("validation errors must not be retriable")
	}
	if services.Retriable(services.Wrap(services.ErrWorkflowNotFound, "engine", "", "no workflow", nil)) {
		t.Fatal("configuration errors must not be retriable")
	}
	if !services.Retriable(services.Wrap(services.ErrException, "agent", "", "panic", nil)) {
		t.Fatal("exceptions must be retriable")
	}
	if !services.Retriable(services.Wrap(services.ErrUnavailable, "breaker", "", "open", nil)) {
		t.Fatal("breaker rejections must be retriable")
	}
}

func TestSummaryStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrExecutionFailed, "producer", "dispatch", "engine rejected payload", nil)
	got := services.Summary(err)
	if got != "producer: dispatch: engine rejected payload" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := services.Wrap(services.ErrUnavailable, "engine", "dispatch", "", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should survive errors.Is")
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatal("marker should survive errors.Is")
	}
}
