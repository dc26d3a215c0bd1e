// Package errors defines the sentinel errors and the tagged error type shared
// by the directory service. Callers branch on Kind, never on message text.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrSourceNotFound  = errors.New("source file not found")
	ErrRubricNotFound  = errors.New("rubric not found")
	ErrCompanyNotFound = errors.New("company not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnavailable     = errors.New("dependency unavailable")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
)

// Kind discriminates directory errors.
type Kind int

const (
	KindInternal Kind = iota
	KindSourceNotFound
	KindRubricNotFound
	KindCompanyNotFound
	KindInvalidInput
	KindUnauthorized
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindSourceNotFound:
		return "source_not_found"
	case KindRubricNotFound:
		return "rubric_not_found"
	case KindCompanyNotFound:
		return "company_not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindSourceNotFound:
		return ErrSourceNotFound
	case KindRubricNotFound:
		return ErrRubricNotFound
	case KindCompanyNotFound:
		return ErrCompanyNotFound
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUnauthorized:
		return ErrUnauthorized
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrInternal
	}
}

// DirectoryError is decided once where the failure originates. Key names the
// slug or identifier involved; Paths lists the source candidates tried.
type DirectoryError struct {
	Kind  Kind
	Key   string
	Paths []string
	Err   error
}

func (e *DirectoryError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Key != "" {
		b.WriteString(": ")
		b.WriteString(e.Key)
	}
	if len(e.Paths) > 0 {
		b.WriteString(" (tried: ")
		b.WriteString(strings.Join(e.Paths, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind's sentinel and the cause to errors.Is.
func (e *DirectoryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func RubricNotFound(slug string) *DirectoryError {
	return &DirectoryError{Kind: KindRubricNotFound, Key: slug}
}

func CompanyNotFound(id string) *DirectoryError {
	return &DirectoryError{Kind: KindCompanyNotFound, Key: id}
}

func SourceNotFound(paths []string) *DirectoryError {
	return &DirectoryError{Kind: KindSourceNotFound, Paths: paths}
}

func InvalidInput(format string, args ...any) *DirectoryError {
	return &DirectoryError{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the Kind carried by err. Errors that are not directory
// errors classify through their sentinel, and anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var de *DirectoryError
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrSourceNotFound):
		return KindSourceNotFound
	case errors.Is(err, ErrRubricNotFound):
		return KindRubricNotFound
	case errors.Is(err, ErrCompanyNotFound):
		return KindCompanyNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return KindUnavailable
	default:
		return KindInternal
	}
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	if errors.Is(err, ErrRateLimited) {
		return http.StatusTooManyRequests
	}

	switch KindOf(err) {
	case KindRubricNotFound, KindCompanyNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
