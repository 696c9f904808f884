package aurerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestAuraError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *AuraError
		want string
	}{
		{
			name: "without cause: format is [code] message",
			err:  &AuraError{Code: "some_code", Message: "something went wrong"},
			want: "[some_code] something went wrong",
		},
		{
			name: "with cause: format is [code] message: cause text",
			err: &AuraError{
				Code: "some_code", Message: "something went wrong",
				Cause: fmt.Errorf("root cause"),
			},
			want: "[some_code] something went wrong: root cause",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	sentinel := ErrExtractionFailed
	cause := fmt.Errorf("dom query failed")

	t.Run("wrapped error has same Code as sentinel", func(t *testing.T) {
		t.Parallel()
		wrapped := Wrap(sentinel, cause)
		if wrapped.Code != sentinel.Code {
			t.Errorf("Code = %q, want %q", wrapped.Code, sentinel.Code)
		}
	})

	t.Run("Wrap does not mutate the sentinel", func(t *testing.T) {
		t.Parallel()
		_ = Wrap(sentinel, cause)
		if sentinel.Cause != nil {
			t.Errorf("sentinel.Cause was mutated: got %v, want nil", sentinel.Cause)
		}
	})

	t.Run("errors.Is(wrapped, sentinel) returns true", func(t *testing.T) {
		t.Parallel()
		wrapped := Wrap(sentinel, cause)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("errors.Is(wrapped, sentinel) = false, want true")
		}
	})

	t.Run("errors.Unwrap(wrapped) returns the cause", func(t *testing.T) {
		t.Parallel()
		wrapped := Wrap(sentinel, cause)
		if errors.Unwrap(wrapped) != cause {
			t.Errorf("Unwrap(wrapped) = %v, want %v", errors.Unwrap(wrapped), cause)
		}
	})
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context.Canceled is terminal", context.Canceled, false},
		{"context.DeadlineExceeded is terminal", context.DeadlineExceeded, false},
		{"module_unavailable is transient", ErrModuleUnavailable, true},
		{"extraction_timeout is transient", ErrExtractionTimeout, true},
		{"reasoning_timeout is transient", ErrReasoningTimeout, true},
		{"element_not_found is transient", ErrElementNotFound, true},
		{"permission_denied is not transient", ErrPermissionDenied, false},
		{"deferred_timeout is not transient", ErrDeferredTimeout, false},
		{"plain stdlib error is not transient", fmt.Errorf("boom"), false},
		{"wrapped transient sentinel is transient", Wrap(ErrExtractionTimeout, fmt.Errorf("slow")), true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransientError(tc.err); got != tc.want {
				t.Errorf("IsTransientError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	if !IsRecoverable(ErrLockTimeout) {
		t.Error("ErrLockTimeout should be recoverable")
	}
	if IsRecoverable(ErrDeferredTimeout) {
		t.Error("ErrDeferredTimeout should not be recoverable")
	}
	if IsRecoverable(fmt.Errorf("unknown")) {
		t.Error("unknown error types should not be considered recoverable")
	}
}

func TestCode(t *testing.T) {
	t.Parallel()

	if got := Code(ErrElementNotFound); got != "element_not_found" {
		t.Errorf("Code = %q, want %q", got, "element_not_found")
	}
	if got := Code(fmt.Errorf("plain")); got != "" {
		t.Errorf("Code(plain error) = %q, want \"\"", got)
	}
	wrapped := fmt.Errorf("outer: %w", Wrap(ErrLockTimeout, fmt.Errorf("cause")))
	if got := Code(wrapped); got != "lock_timeout" {
		t.Errorf("Code(wrapped) = %q, want %q", got, "lock_timeout")
	}
}
