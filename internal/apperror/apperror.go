package apperror

import "net/http"

type Code string

const (
	BadRequest Code = "BAD_REQUEST"
	Auth       Code = "AUTH"
	NotFound   Code = "NOT_FOUND"
	Transport  Code = "TRANSPORT"
	Protocol   Code = "PROTOCOL"
	Internal   Code = "INTERNAL"
)

type AppError struct {
	code    Code
	message string
}

func New(code Code, message string) *AppError {
	return &AppError{code: code, message: message}
}

func (e *AppError) Error() string   { return e.message }
func (e *AppError) Code() Code      { return e.code }
func (e *AppError) Message() string { return e.message }

// FromStatus maps a backend HTTP status to a client-side error code.
func FromStatus(status int, message string) *AppError {
	switch {
	case status == http.StatusUnauthorized:
		return New(Auth, message)
	case status == http.StatusNotFound:
		return New(NotFound, message)
	case status >= 400 && status < 500:
		return New(BadRequest, message)
	default:
		return New(Transport, message)
	}
}
