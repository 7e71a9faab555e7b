package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure. Callers branch on the kind, never on
// message text.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindNotFound       Kind = "not_found"
	KindInvalidState   Kind = "invalid_state"
	KindAuthentication Kind = "authentication"
	KindProvider       Kind = "provider"
	KindNotImplemented Kind = "not_implemented"
)

// Error is the typed failure every gateway-level operation propagates.
type Error struct {
	Kind     Kind
	Provider string
	Op       string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Provider, e.Op, e.Message)
	if e.Provider == "" {
		msg = fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a gateway error.
func E(kind Kind, provider, op, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Op: op, Message: message}
}

// Ewrap builds a gateway error wrapping an underlying cause.
func Ewrap(kind Kind, provider, op, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Op: op, Message: message, Err: err}
}

// KindOf extracts the kind from err, or "" if err is not a gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

func IsConfiguration(err error) bool  { return KindOf(err) == KindConfiguration }
func IsNotFound(err error) bool       { return KindOf(err) == KindNotFound }
func IsInvalidState(err error) bool   { return KindOf(err) == KindInvalidState }
func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }
func IsProvider(err error) bool       { return KindOf(err) == KindProvider }
func IsNotImplemented(err error) bool { return KindOf(err) == KindNotImplemented }
