// Package apperror defines the error-kind taxonomy shared across components.
package apperror

import "fmt"

// Kind identifies a category of failure. Kinds are stable strings used in
// structured logs and the CLI's JSON error envelope; they are not Go types
// because callers compare kinds across process boundaries (replay reports,
// client JSON) where a typed error would not survive serialization.
type Kind string

const (
	KindPolicyDenied              Kind = "policy_denied"
	KindApprovalDenied            Kind = "approval_denied"
	KindToolExecutionFailed       Kind = "tool_execution_failed"
	KindPatchInvalid               Kind = "patch_invalid"
	KindPatchConflict              Kind = "patch_conflict"
	KindLlmCallFailed              Kind = "llm_call_failed"
	KindReplayValidationFailed     Kind = "replay_validation_failed"
	KindSessionStateInvalidTransition Kind = "session_state_invalid_transition"
)

// Error is the concrete error value carried through the system. Components
// wrap underlying errors with a Kind so the loop and the CLI can branch on
// category without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is an *Error of the given kind. It follows the
// standard unwrap chain so callers can test kinds through layers of wrapping.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			if ae.Kind == kind {
				return true
			}
			err = ae.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether the kind typically warrants a retry with
// back-off rather than terminating the enclosing operation.
func Retryable(kind Kind) bool {
	switch kind {
	case KindLlmCallFailed, KindToolExecutionFailed:
		return true
	default:
		return false
	}
}
