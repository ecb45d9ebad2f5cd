package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies an error by how the automation core reacts to it
type Category string

const (
	// CategoryConfiguration covers malformed rule/alert definitions. These fail closed.
	CategoryConfiguration Category = "configuration"
	// CategoryTransient covers unreachable or slow collaborators (metrics store, gateway, notifier).
	CategoryTransient Category = "transient"
	// CategoryPersistence covers storage failures; the only class that aborts a rule for a tick.
	CategoryPersistence Category = "persistence"
	// CategoryValidation covers malformed admin requests
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryInternal   Category = "internal"
)

// Common errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrNotPending      = errors.New("pending action is no longer pending")
	ErrExpired         = errors.New("pending action has expired")
	ErrTriggerConflict = errors.New("trigger claim lost to a concurrent evaluation")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrInvalidState    = errors.New("transition not allowed from the current status")
)

// AppError represents a categorized error raised by one operation
type AppError struct {
	Category Category `json:"category"`
	Op       string   `json:"op"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError without a cause
func New(category Category, op, message string) *AppError {
	return &AppError{Category: category, Op: op, Message: message}
}

// Wrap attaches a category and operation to err. A nil err stays nil.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Category: category, Op: op, Err: err}
}

// Configuration wraps a definition error
func Configuration(op string, err error) error {
	return Wrap(CategoryConfiguration, op, err)
}

// Transient wraps a collaborator I/O error
func Transient(op string, err error) error {
	return Wrap(CategoryTransient, op, err)
}

// Persistence wraps a storage error
func Persistence(op string, err error) error {
	return Wrap(CategoryPersistence, op, err)
}

// Validation wraps a rejected request
func Validation(op string, err error) error {
	return Wrap(CategoryValidation, op, err)
}

// CategoryOf returns the category of the outermost AppError in the chain.
// Sentinels map to their natural category.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrTriggerConflict), errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrExpired):
		return CategoryConflict
	case errors.Is(err, ErrCircuitOpen):
		return CategoryTransient
	}
	return CategoryInternal
}

// IsCategory reports whether err is classified as c
func IsCategory(err error, c Category) bool {
	return CategoryOf(err) == c
}

// StatusCode returns the HTTP status code for an error
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrTriggerConflict), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	}
	switch CategoryOf(err) {
	case CategoryConfiguration, CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict:
		return http.StatusConflict
	case CategoryTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Is and As re-export the standard helpers so callers need a single import
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }
