// Package aurerrors defines the AURA orchestrator's error taxonomy. Every
// error that crosses a handler boundary is an *AuraError with a stable,
// machine-readable Code so callers never need to string-match, and an
// optional Cause so errors.Is / errors.As chains traverse correctly.
package aurerrors

import (
	"context"
	"errors"
	"fmt"
)

// AuraError is the single concrete error type used throughout the
// orchestrator core. Code identifies one of the ErrorKind values from
// spec §4.A; Message is human-readable; Cause, when non-nil, is the
// underlying error that triggered this one.
type AuraError struct {
	Code            string
	Message         string
	Cause           error
	Recoverable     bool
	RemediationHint string
}

// Error implements the error interface.
func (e *AuraError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause so errors.Is / errors.As can
// traverse the chain.
func (e *AuraError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is work for AuraError sentinels: two AuraErrors are
// equal when their Code fields match, regardless of Message, Cause, or
// the Recoverable/RemediationHint fields. This lets callers wrap a
// sentinel with a root cause while still matching with errors.Is.
func (e *AuraError) Is(target error) bool {
	var t *AuraError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors — one per ErrorKind in spec §4.A.
var (
	ErrIntentClassificationFailed = &AuraError{
		Code: "intent_classification_failed", Message: "intent classification failed",
		Recoverable: true, RemediationHint: "retry the utterance",
	}
	ErrModuleUnavailable = &AuraError{
		Code: "module_unavailable", Message: "a required collaborator is unavailable",
		Recoverable: true, RemediationHint: "check collaborator connectivity",
	}
	ErrPermissionDenied = &AuraError{
		Code: "permission_denied", Message: "operation denied by OS permissions",
		Recoverable: false, RemediationHint: "grant accessibility/automation permission",
	}
	ErrElementNotFound = &AuraError{
		Code: "element_not_found", Message: "no matching UI element found",
		Recoverable: true, RemediationHint: "try a vision-based command",
	}
	ErrExtractionFailed = &AuraError{
		Code: "extraction_failed", Message: "content extraction failed",
		Recoverable: true,
	}
	ErrExtractionTimeout = &AuraError{
		Code: "extraction_timeout", Message: "content extraction exceeded its budget",
		Recoverable: true,
	}
	ErrReasoningTimeout = &AuraError{
		Code: "reasoning_timeout", Message: "reasoning collaborator did not respond in time",
		Recoverable: true,
	}
	ErrReasoningUnavailable = &AuraError{
		Code: "reasoning_unavailable", Message: "reasoning collaborator is unavailable",
		Recoverable: true,
	}
	ErrContentGenerationEmpty = &AuraError{
		Code: "content_generation_empty", Message: "generation produced no content",
		Recoverable: true,
	}
	ErrInvalidCoordinates = &AuraError{
		Code: "invalid_coordinates", Message: "target coordinates fall outside screen bounds",
		Recoverable: false,
	}
	ErrLockTimeout = &AuraError{
		Code: "lock_timeout", Message: "system busy, try again",
		Recoverable: true, RemediationHint: "retry shortly",
	}
	ErrDeferredTimeout = &AuraError{
		Code: "deferred_timeout", Message: "deferred action timed out waiting for a click",
		Recoverable: false,
	}
	ErrDeferredCanceled = &AuraError{
		Code: "deferred_canceled", Message: "deferred action was canceled",
		Recoverable: false,
	}
	ErrInternalError = &AuraError{
		Code: "internal_error", Message: "internal orchestrator error",
		Recoverable: false,
	}
)

// Wrap returns a new AuraError that shares base's code, message,
// recoverability, and remediation hint, but records cause as its
// underlying error:
//
//	return aurerrors.Wrap(aurerrors.ErrExtractionFailed, err)
func Wrap(base *AuraError, cause error) *AuraError {
	return &AuraError{
		Code:            base.Code,
		Message:         base.Message,
		Cause:           cause,
		Recoverable:     base.Recoverable,
		RemediationHint: base.RemediationHint,
	}
}

// IsTransientError reports whether err represents a condition that a
// caller may reasonably retry without escalating to the slow path or
// aborting the command outright.
func IsTransientError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *AuraError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case ErrModuleUnavailable.Code, ErrExtractionTimeout.Code, ErrReasoningTimeout.Code,
		ErrElementNotFound.Code:
		return true
	default:
		return false
	}
}

// IsRecoverable reports whether err, if it is (or wraps) an *AuraError,
// was constructed with Recoverable set. Unknown error types are treated
// as non-recoverable so callers do not blindly retry.
func IsRecoverable(err error) bool {
	var ae *AuraError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Recoverable
}

// Code extracts the Code field from err's AuraError chain, or "" if err
// does not wrap one.
func Code(err error) string {
	var ae *AuraError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
