package translate

import (
	"errors"
	"fmt"
)

// Kind is the stable classification of a translation error. Callers switch
// on the kind, never on the message.
type Kind string

const (
	KindValidation           Kind = "validation_error"
	KindNoCredentials        Kind = "no_credentials_available"
	KindCredentialsExhausted Kind = "all_credentials_exhausted"
	KindModelNotFound        Kind = "model_not_found"
	KindTimeout              Kind = "translation_timeout"
	KindServiceUnavailable   Kind = "service_unavailable"
	KindTranslationFailed    Kind = "translation_failed"
	KindExternalToolMissing  Kind = "external_tool_missing"
)

// IsValidation reports whether errors of this kind are caused by bad input
// or local setup and must never be retried.
func (k Kind) IsValidation() bool {
	return k == KindValidation || k == KindExternalToolMissing
}

// Error is the error type returned by every provider and by the orchestrator.
type Error struct {
	Kind     Kind
	Provider string
	Key      string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrModelNotFound)
// works regardless of provider or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Provider == "" && t.Message == "" && t.Key == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNoCredentials        = &Error{Kind: KindNoCredentials}
	ErrCredentialsExhausted = &Error{Kind: KindCredentialsExhausted}
	ErrModelNotFound        = &Error{Kind: KindModelNotFound}
	ErrTimeout              = &Error{Kind: KindTimeout}
	ErrServiceUnavailable   = &Error{Kind: KindServiceUnavailable}
	ErrTranslationFailed    = &Error{Kind: KindTranslationFailed}
	ErrExternalToolMissing  = &Error{Kind: KindExternalToolMissing}
)

// NewError builds an *Error of the given kind.
func NewError(kind Kind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: cause}
}

// Errorf builds an *Error with a formatted message and no cause.
func Errorf(kind Kind, provider, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err. Errors that are not *Error are reported
// as KindTranslationFailed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTranslationFailed
}

// IsRetryable reports whether a provider may retry the call that produced err.
// Timeouts are not retried at the HTTP layer; the orchestrator handles them
// by moving on to the next method.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindServiceUnavailable, KindTranslationFailed:
		return true
	default:
		return false
	}
}
