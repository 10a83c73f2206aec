package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Validation Kind = iota + 1
	Unauthorized
	Forbidden
	NotFound
	Conflict
	GatewayUnavailable
	GatewayRejected
	Configuration
	Internal
)

// Error carries the taxonomy kind so controllers can map it to an HTTP
// status without inspecting message strings.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may safely retry the operation.
// Only transport-level gateway failures qualify: no external state was
// allocated before they surfaced.
func Retryable(err error) bool {
	return KindOf(err) == GatewayUnavailable
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return 400
	case Unauthorized:
		return 401
	case Forbidden:
		return 403
	case NotFound:
		return 404
	case Conflict:
		return 409
	case GatewayRejected:
		return 502
	case GatewayUnavailable:
		return 503
	default:
		return 500
	}
}
