// Package errors maps service failures onto categories the HTTP layer can
// render as status codes.
package errors

import (
	"errors"
	"net/http"
)

// Category classifies a ServiceError.
type Category int

const (
	CategoryGeneralError Category = iota
	// CategoryDataError covers malformed payloads and parameters.
	CategoryDataError
	// CategoryUnauthorized means the caller presented no valid credentials.
	CategoryUnauthorized
	// CategoryForbidden means the caller is known but may not do this.
	CategoryForbidden
	CategoryResourceNotFound
	// CategoryDataConflict means the request lost against existing state,
	// e.g. a second claim on the same intent.
	CategoryDataConflict
)

var categories = map[Category]struct {
	name   string
	status int
}{
	CategoryGeneralError:     {"CategoryGeneralError", http.StatusInternalServerError},
	CategoryDataError:        {"CategoryDataError", http.StatusBadRequest},
	CategoryUnauthorized:     {"CategoryUnauthorized", http.StatusUnauthorized},
	CategoryForbidden:        {"CategoryForbidden", http.StatusForbidden},
	CategoryResourceNotFound: {"CategoryResourceNotFound", http.StatusNotFound},
	CategoryDataConflict:     {"CategoryDataConflict", http.StatusConflict},
}

func (c Category) String() string {
	if v, ok := categories[c]; ok {
		return v.name
	}
	return categories[CategoryGeneralError].name
}

// ServiceError carries a caller-facing Message next to the underlying Err,
// which is only logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is matches targets whose text equals the caller-facing message.
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// StatusCode returns the HTTP status for the error's category.
func (err ServiceError) StatusCode() int {
	if v, ok := categories[err.Category]; ok {
		return v.status
	}
	return http.StatusInternalServerError
}

// Is reports whether err wraps a ServiceError of category cat.
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

func newError(cat Category, err error, message, fallback string) error {
	if err == nil {
		err = errors.New(fallback)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error".
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error", "internal server error")
}

// ResourceNotFoundError returns message to the caller with a 404.
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message, "resource not found: "+message)
}

// BadRequestError returns message to the caller with a 400.
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message, "bad request: "+message)
}

func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message, "request forbidden")
}

func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message, "unauthorized")
}

// ConflictError returns message to the caller with a 409.
func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message, "conflict")
}
