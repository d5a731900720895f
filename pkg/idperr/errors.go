package idperr

import (
	"errors"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindAuthentication Kind = "AUTH_ERROR"
	KindAuthorization  Kind = "AUTHORIZATION_ERROR"
	KindValidation     Kind = "VALIDATION_ERROR"
	KindNetwork        Kind = "NETWORK_ERROR"
	KindConfiguration  Kind = "CONFIGURATION_ERROR"
	KindUnknown        Kind = "IDP_ERROR"
)

// StatusCode returns the HTTP-style status associated with the kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNetwork:
		return 0
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error returned by SDK operations.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target with a
// message must also match the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Sentinels for errors.Is.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
)

// New creates an Error of the given kind with its default status code.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		StatusCode: kind.StatusCode(),
		Err:        cause,
	}
}

// Authentication creates an AUTH_ERROR.
func Authentication(message string, cause error) *Error {
	return New(KindAuthentication, message, cause)
}

// Authorization creates an AUTHORIZATION_ERROR.
func Authorization(message string) *Error {
	return New(KindAuthorization, message, nil)
}

// Validation creates a VALIDATION_ERROR.
func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

// Network creates a NETWORK_ERROR.
func Network(message string, cause error) *Error {
	return New(KindNetwork, message, cause)
}

// Configuration creates a CONFIGURATION_ERROR.
func Configuration(message string, cause error) *Error {
	return New(KindConfiguration, message, cause)
}

// Normalize converts err into an *Error. An err that already is (or wraps) an
// *Error is returned as that error; anything else becomes kind with err's
// message, or fallback when err has none.
func Normalize(err error, kind Kind, fallback string) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	return New(kind, msg, err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}
