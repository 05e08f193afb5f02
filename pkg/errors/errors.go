package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTransient       = errors.New("transient failure")
	ErrRemoteRejected  = errors.New("remote api rejected request")
	ErrMalformedField  = errors.New("malformed field")
	ErrMissingID       = errors.New("record has no external id")
	ErrPersistence     = errors.New("persistence failure")
	ErrTableNotFound   = errors.New("table not found")
	ErrConfiguration   = errors.New("invalid configuration")
	ErrCancelled       = errors.New("operation cancelled")
	ErrIndexOperation  = errors.New("search index operation failed")
	ErrUnknownItemType = errors.New("unknown item type")
)

// Kind groups errors by how a run reacts to them.
type Kind int

const (
	KindInternal Kind = iota
	KindTransient
	KindMalformed
	KindPersistence
	KindConfiguration
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindPersistence:
		return "persistence"
	case KindConfiguration:
		return "configuration"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

type AppError struct {
	Err     error
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, op, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrUnknownItemType):
		return KindConfiguration
	case errors.Is(err, ErrMalformedField), errors.Is(err, ErrMissingID):
		return KindMalformed
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrTableNotFound):
		return KindPersistence
	case errors.Is(err, ErrTransient), errors.Is(err, ErrRemoteRejected),
		errors.Is(err, ErrIndexOperation), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindInternal
	}
}

// ExitCode maps an error to a process exit status for the command-line tools.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfiguration:
		return 2
	case KindCancelled:
		return 130
	default:
		return 1
	}
}
