package run

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		fatal bool
	}{
		{"inventory", NewInventoryError("empty target spec", nil), IsInventoryError, true},
		{"policy", NewPolicyError("artifact rejected", nil), IsPolicyError, true},
		{"validation", NewValidationError("syntax check failed", nil), IsValidationError, true},
		{"execution", NewExecutionError("apply failed", nil), IsExecutionError, false},
		{"idempotency", NewIdempotencyViolation("residual changes on web1"), IsIdempotencyViolation, false},
		{"bundling", NewBundlingError("archive not finalized", nil), IsBundlingError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("classification check failed for %v", tt.err)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	base := NewExecutionError("apply failed", errors.New("exit status 2"))
	wrapped := fmt.Errorf("stage runner: %w", base)

	if !IsExecutionError(wrapped) {
		t.Error("IsExecutionError() should see through fmt.Errorf wrapping")
	}
	if IsInventoryError(wrapped) {
		t.Error("IsInventoryError() matched an execution error")
	}
}

func TestErrorClassificationPlainError(t *testing.T) {
	plain := errors.New("something else")
	if IsExecutionError(plain) || IsFatal(plain) {
		t.Error("plain errors must not classify")
	}
}

func TestErrorContext(t *testing.T) {
	err := NewExecutionError("apply failed", errors.New("exit status 2")).
		WithStage(StageApply).
		WithTarget("web1")

	msg := err.Error()
	for _, want := range []string{"[execution]", "stage=apply", "target=web1", "exit status 2"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}
