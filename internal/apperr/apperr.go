// Package apperr holds the error taxonomy shared by the auth core and both
// transport bindings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindAuthorization
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	// Fields maps an input field to what is wrong with it. Validation only.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind. An empty target message matches any message.
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

var (
	ErrInvalidCredentials  = Authentication("invalid credentials")
	ErrInvalidRefreshToken = Authentication("invalid refresh token")
	ErrInvalidAccessToken  = Authentication("invalid access token")
	ErrUnauthenticated     = Authentication("You must be logged in to access this resource")
	ErrEmailTaken          = Conflict("user with this email already exists")
)

func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// KindOf reports the taxonomy kind of err. Anything outside the taxonomy is internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As unwraps err to the first *Error in its chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps a kind to the status code both transports report for it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
