package rpc

import (
	"errors"
	"net/http"

	"templatedev/api/internal/apperr"
)

// Code is a tRPC error code name.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotSupported Code = "METHOD_NOT_SUPPORTED"
	CodeConflict           Code = "CONFLICT"
	CodeTooManyRequests    Code = "TOO_MANY_REQUESTS"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

var codeTable = map[Code]struct {
	jsonRPC int
	status  int
}{
	CodeBadRequest:         {-32600, http.StatusBadRequest},
	CodeUnauthorized:       {-32001, http.StatusUnauthorized},
	CodeForbidden:          {-32003, http.StatusForbidden},
	CodeNotFound:           {-32004, http.StatusNotFound},
	CodeMethodNotSupported: {-32005, http.StatusMethodNotAllowed},
	CodeConflict:           {-32009, http.StatusConflict},
	CodeTooManyRequests:    {-32029, http.StatusTooManyRequests},
	CodeInternal:           {-32603, http.StatusInternalServerError},
}

func (c Code) HTTPStatus() int {
	if entry, ok := codeTable[c]; ok {
		return entry.status
	}
	return http.StatusInternalServerError
}

func (c Code) JSONRPC() int {
	if entry, ok := codeTable[c]; ok {
		return entry.jsonRPC
	}
	return codeTable[CodeInternal].jsonRPC
}

type Error struct {
	Code        Code
	Message     string
	FieldErrors map[string]string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

type errorEnvelope struct {
	Error errorShape `json:"error"`
}

type errorShape struct {
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Data    errorData `json:"data"`
}

type errorData struct {
	Code        Code              `json:"code"`
	HTTPStatus  int               `json:"httpStatus"`
	Path        string            `json:"path"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func (e *Error) envelope(path string) errorEnvelope {
	return errorEnvelope{Error: errorShape{
		Message: e.Message,
		Code:    e.Code.JSONRPC(),
		Data: errorData{
			Code:        e.Code,
			HTTPStatus:  e.Code.HTTPStatus(),
			Path:        path,
			FieldErrors: e.FieldErrors,
		},
	}}
}

// toRPCError maps the auth error taxonomy onto tRPC codes. Errors outside
// the taxonomy become an opaque INTERNAL_SERVER_ERROR.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	appErr, ok := apperr.As(err)
	if !ok {
		return &Error{Code: CodeInternal, Message: "internal server error"}
	}

	var code Code
	switch appErr.Kind {
	case apperr.KindValidation:
		code = CodeBadRequest
	case apperr.KindConflict:
		code = CodeConflict
	case apperr.KindAuthentication:
		code = CodeUnauthorized
	case apperr.KindAuthorization:
		code = CodeForbidden
	case apperr.KindNotFound:
		code = CodeNotFound
	default:
		return &Error{Code: CodeInternal, Message: "internal server error"}
	}
	return &Error{Code: code, Message: appErr.Message, FieldErrors: appErr.Fields}
}
