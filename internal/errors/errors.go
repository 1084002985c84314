package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound             = NewAppError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrUnauthorized         = NewAppError("UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized)
	ErrForbidden            = NewAppError("FORBIDDEN", "Access denied", http.StatusForbidden)
	ErrBadRequest           = NewAppError("BAD_REQUEST", "Malformed request", http.StatusBadRequest)
	ErrInternalServer       = NewAppError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrConflict             = NewAppError("CONFLICT", "Resource conflict", http.StatusConflict)
	ErrValidation           = NewAppError("VALIDATION_ERROR", "Validation failed", http.StatusBadRequest)
	ErrDatabase             = NewAppError("DATABASE_ERROR", "Database error", http.StatusInternalServerError)
	ErrPoolNotFound         = NewAppError("POOL_NOT_FOUND", "Pool not found", http.StatusNotFound)
	ErrInvestorNotFound     = NewAppError("INVESTOR_NOT_FOUND", "Investor not found", http.StatusNotFound)
	ErrDistributionNotFound = NewAppError("DISTRIBUTION_NOT_FOUND", "Distribution not found", http.StatusNotFound)
	ErrInvalidTransition    = NewAppError("INVALID_TRANSITION", "Pool status transition is not allowed", http.StatusConflict)
	ErrInsufficientCapacity = NewAppError("INSUFFICIENT_CAPACITY", "Investment exceeds the remaining pool capacity", http.StatusConflict)
	ErrBelowMinimum         = NewAppError("BELOW_MINIMUM", "Investment is below the pool minimum", http.StatusUnprocessableEntity)
	ErrAboveMaximum         = NewAppError("ABOVE_MAXIMUM", "Investment exceeds the per-investor maximum", http.StatusUnprocessableEntity)
	ErrPoolNotOpen          = NewAppError("POOL_NOT_OPEN", "Pool is not accepting investments", http.StatusConflict)
	ErrNotCancellable       = NewAppError("NOT_CANCELLABLE", "Investment can no longer be cancelled", http.StatusConflict)
	ErrConcurrencyConflict  = NewAppError("CONCURRENCY_CONFLICT", "The resource was modified concurrently, retry the request", http.StatusConflict)
	ErrExternalService      = NewAppError("EXTERNAL_SERVICE_ERROR", "External service failed", http.StatusBadGateway)
	ErrRateLimited          = NewAppError("RATE_LIMIT_EXCEEDED", "Too many requests, try again later", http.StatusTooManyRequests)
)

type AppError struct {
	Code       string
	Message    string
	StatusCode int
	Details    map[string]interface{}
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so sentinel comparisons survive WithError/WithDetails clones.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || t == nil || e == nil {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	clone := e.clone()
	if details == nil {
		clone.Details = make(map[string]interface{})
		return clone
	}
	clone.Details = make(map[string]interface{}, len(details))
	for k, v := range details {
		clone.Details[k] = v
	}
	return clone
}

func (e *AppError) WithError(err error) *AppError {
	clone := e.clone()
	clone.Err = err
	return clone
}

func (e *AppError) WithMessage(message string) *AppError {
	clone := e.clone()
	clone.Message = message
	return clone
}

func NewAppError(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    make(map[string]interface{}),
	}
}

func WrapError(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
		Details:    make(map[string]interface{}),
	}
}

func (e *AppError) clone() *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Details != nil {
		clone.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			clone.Details[k] = v
		}
	} else {
		clone.Details = make(map[string]interface{})
	}
	return &clone
}

func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func FromError(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	if errors.Is(err, context.Canceled) {
		return WrapError(err, "REQUEST_CANCELED", "Request cancelled by the client", http.StatusRequestTimeout)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, "REQUEST_TIMEOUT", "Request timed out", http.StatusGatewayTimeout)
	}

	return WrapError(err, "UNKNOWN_ERROR", "Unknown error", http.StatusInternalServerError)
}

func NewAuthError(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Details:    make(map[string]interface{}),
	}
}

func NewValidationError(field, message string) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: map[string]interface{}{
			"fields": []map[string]string{{"field": field, "message": message}},
		},
	}
}

func NewDatabaseError(err error) *AppError {
	return WrapError(err, "DATABASE_ERROR", "Database operation failed", http.StatusInternalServerError)
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Details: map[string]interface{}{
			"resource": resource,
		},
	}
}

func NewConflictError(resource string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    fmt.Sprintf("%s already exists", resource),
		StatusCode: http.StatusConflict,
		Details: map[string]interface{}{
			"resource": resource,
		},
	}
}

// NewInvalidTransitionError names both ends of a rejected lifecycle move.
func NewInvalidTransitionError(current, requested string) *AppError {
	return ErrInvalidTransition.
		WithMessage(fmt.Sprintf("Cannot move pool from %s to %s", current, requested)).
		WithDetails(map[string]interface{}{
			"currentStatus":   current,
			"requestedStatus": requested,
		})
}

func NewExternalServiceError(service string, err error) *AppError {
	return ErrExternalService.
		WithError(err).
		WithDetails(map[string]interface{}{"service": service})
}

func ParseValidationErrors(err error) *AppError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return NewValidationError(typeErr.Field, fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)).WithError(err)
		}
		return ErrValidation.WithMessage("Malformed request").WithError(err)
	}

	fieldErrors := make([]map[string]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fieldErrors = append(fieldErrors, map[string]string{
			"field":   fieldName(fieldErr),
			"message": translateValidationError(fieldErr),
		})
	}

	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: map[string]interface{}{
			"fields": fieldErrors,
		},
	}
}

// fieldName prefers the namespaced json name ("pool.maxInvestment") minus the root struct.
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func translateValidationError(fe validator.FieldError) string {
	field := fieldName(fe)

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must be numeric", field)
	case "ulid":
		return fmt.Sprintf("%s must be a valid ULID", field)
	case "accepted":
		return fmt.Sprintf("%s must be true", field)
	case "future":
		return fmt.Sprintf("%s must be in the future", field)
	case "feescap":
		return "fees plus taxes must not exceed grossAmount"
	case "cents":
		return fmt.Sprintf("%s must have at most 2 decimal places", field)
	default:
		return fmt.Sprintf("%s failed the '%s' rule", field, fe.Tag())
	}
}
