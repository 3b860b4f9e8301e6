package domain

import (
	"errors"
	"strings"
)

// Бизнес-ошибки (маппятся на HTTP коды в transport/web/v1)
var (
	ErrBadParams        = errors.New("bad_params")         // 400, ValidationFailure
	ErrUnauth           = errors.New("unauthorized")       // 401
	ErrForbidden        = errors.New("forbidden")          // 403, AccessDenied
	ErrNotFound         = errors.New("not_found")          // 404
	ErrMethodNotAllowed = errors.New("method_not_allowed") // 405
	ErrConflict         = errors.New("conflict")           // 409
	ErrNotImplemented   = errors.New("not_implemented")    // 501
	ErrUnexpected       = errors.New("unexpected")         // 500

	// Нераспознанное сообщение канала: молча игнорируется (только лог)
	ErrMalformed = errors.New("malformed_message")
)

// Коды ошибок в конверте ответа
const (
	ErrCodeBadParams        = 1000
	ErrCodeUnauth           = 1001
	ErrCodeForbidden        = 1003
	ErrCodeNotFound         = 1004
	ErrCodeMethodNotAllowed = 1005
	ErrCodeConflict         = 1009
	ErrCodeNotImplemented   = 1501
	ErrCodeUnexpected       = 1500
)

// ValidationError — ошибка валидации с деталями по полям; errors.Is(err, ErrBadParams) == true
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrBadParams }

// Invalid собирает ValidationError; без деталей возвращает nil.
func Invalid(details ...string) error {
	if len(details) == 0 {
		return nil
	}
	return &ValidationError{Details: details}
}
