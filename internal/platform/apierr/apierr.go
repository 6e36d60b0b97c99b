package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Code standardizes failure semantics surfaced to API clients.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeAuth       Code = "auth"
	CodePermission Code = "permission"
	CodeConflict   Code = "conflict"
	CodeInternal   Code = "internal"
)

type Error struct {
	Code    Code
	Op      string
	Message string
	// Fields carries per-field messages for validation errors.
	Fields map[string][]string
	Cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
		}
		msg = strings.Join(parts, ", ")
	}
	switch {
	case e.Op != "" && msg != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case msg != "":
		return msg
	case e.Op != "":
		return fmt.Sprintf("%s (%s)", e.Op, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Status maps the code onto an HTTP status.
func (e *Error) Status() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAuth:
		return http.StatusUnauthorized
	case CodePermission:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func New(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message), Cause: cause}
}

func Validation(op, format string, args ...any) *Error {
	return New(CodeValidation, op, fmt.Sprintf(format, args...), nil)
}

// FieldValidation reports a single field-level problem.
func FieldValidation(op, field, message string) *Error {
	return &Error{Code: CodeValidation, Op: op, Fields: map[string][]string{field: {message}}}
}

func NotFound(op, what string, id any) *Error {
	return New(CodeNotFound, op, fmt.Sprintf("%s %v not found", what, id), nil)
}

func Auth(op, message string) *Error {
	return New(CodeAuth, op, message, nil)
}

func Permission(op, message string) *Error {
	return New(CodePermission, op, message, nil)
}

func Conflict(op, format string, args ...any) *Error {
	return New(CodeConflict, op, fmt.Sprintf(format, args...), nil)
}

func Internal(op string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return New(CodeInternal, op, msg, cause)
}

// WithField adds a field message to a validation error in place.
func (e *Error) WithField(field, message string) *Error {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], message)
	return e
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func CodeOf(err error) Code {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return ""
	}
	return apiErr.Code
}

// MapDB maps storage failures into API error codes; unknown errors pass through.
func MapDB(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(CodeNotFound, op, "not found", err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return New(CodeConflict, op, "duplicate entry", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return New(CodeConflict, op, pgErr.Detail, err)
		case "23503", "23514":
			return New(CodeValidation, op, pgErr.Message, err)
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return New(CodeConflict, op, "duplicate entry", err)
	}
	return err
}
