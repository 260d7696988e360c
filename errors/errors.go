package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/NomadCrew/nomad-crew-payments/logger"
)

type ErrorType string

const (
	ValidationError    ErrorType = "VALIDATION_ERROR"
	NotFoundError      ErrorType = "NOT_FOUND"
	AuthError          ErrorType = "AUTHENTICATION_ERROR"
	DatabaseError      ErrorType = "DATABASE_ERROR"
	ServerError        ErrorType = "SERVER_ERROR"
	ForbiddenError     ErrorType = "FORBIDDEN"
	ConflictError      ErrorType = "CONFLICT"
	UnprocessableError ErrorType = "UNPROCESSABLE"
	ProcessorFailure   ErrorType = "PROCESSOR_ERROR"
	RateLimitError     ErrorType = "RATE_LIMIT_EXCEEDED"
)

// Machine readable codes carried in AppError.Code. Callers branch on these
// with HasCode instead of matching messages.
const (
	CodeInvalidAmount       = "invalid_amount"
	CodeInvalidParticipants = "invalid_participants"
	CodeInvalidCurrency     = "invalid_currency"
	CodeUnauthorized        = "unauthorized"
	CodeAlreadyPaid         = "already_paid"
	CodeAlreadyRefunded     = "already_refunded"
	CodePaymentInProgress   = "payment_in_progress"
	CodeInvalidState        = "invalid_state"
	CodeReminderTooSoon     = "reminder_too_soon"
	CodeNothingToRefund     = "nothing_to_refund"
	CodeProcessorError      = "processor_error"
	CodeStoreError          = "store_error"
	CodeNotFound            = "not_found"
	CodeInvalidOperation    = "invalid_operation"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Raw
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// As extracts the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given machine readable code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Helper functions for common errors
func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func AuthenticationFailed(message string) *AppError {
	return &AppError{
		Type:       AuthError,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NewDatabaseError(err error) *AppError {
	// Log original error but return sanitized message
	logger.GetLogger().Errorw("Database error", "error", err)
	return &AppError{
		Type:       DatabaseError,
		Code:       CodeStoreError,
		Message:    "Database operation failed",
		Detail:     "Please try again later",
		HTTPStatus: http.StatusInternalServerError,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func Forbidden(message string, details string) *AppError {
	return &AppError{
		Type:       ForbiddenError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusForbidden,
	}
}

func NewConflictError(message string, detail string) *AppError {
	return &AppError{
		Type:       ConflictError,
		Message:    message,
		Detail:     detail,
		HTTPStatus: http.StatusConflict,
	}
}

func RateLimitExceeded(message string) *AppError {
	return &AppError{
		Type:       RateLimitError,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Payment domain errors.

func InvalidAmount(detail string) *AppError {
	err := ValidationFailed("Invalid amount", detail)
	err.Code = CodeInvalidAmount
	return err
}

func InvalidParticipants(detail string) *AppError {
	err := ValidationFailed("Invalid participants", detail)
	err.Code = CodeInvalidParticipants
	return err
}

func InvalidCurrency(currency string) *AppError {
	err := ValidationFailed("Unsupported currency", fmt.Sprintf("Currency: %s", currency))
	err.Code = CodeInvalidCurrency
	return err
}

func Unauthorized(message, detail string) *AppError {
	err := Forbidden(message, detail)
	err.Code = CodeUnauthorized
	return err
}

func AlreadyPaid(paymentID string) *AppError {
	err := NewConflictError("Payment already completed", fmt.Sprintf("Payment ID: %s", paymentID))
	err.Code = CodeAlreadyPaid
	return err
}

func AlreadyRefunded(paymentID string) *AppError {
	err := NewConflictError("Payment already refunded", fmt.Sprintf("Payment ID: %s", paymentID))
	err.Code = CodeAlreadyRefunded
	return err
}

func PaymentInProgress(paymentID string) *AppError {
	err := NewConflictError("Payment is already being processed", fmt.Sprintf("Payment ID: %s", paymentID))
	err.Code = CodePaymentInProgress
	return err
}

func InvalidState(current, action string) *AppError {
	err := NewConflictError("Invalid state for operation", fmt.Sprintf("Cannot %s while %s", action, current))
	err.Code = CodeInvalidState
	return err
}

func ReminderTooSoon(detail string) *AppError {
	err := NewConflictError("Reminder sent too recently", detail)
	err.Code = CodeReminderTooSoon
	return err
}

func NothingToRefund(detail string) *AppError {
	return &AppError{
		Type:       UnprocessableError,
		Code:       CodeNothingToRefund,
		Message:    "Nothing to refund",
		Detail:     detail,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func InvalidOperation(operationID string) *AppError {
	err := ValidationFailed("Invalid operation id", fmt.Sprintf("Operation: %s", operationID))
	err.Code = CodeInvalidOperation
	return err
}

// ProcessorError keeps the processor's message in Detail so callers can show it.
func ProcessorError(err error) *AppError {
	appErr := Wrap(err, ProcessorFailure, "Payment processor request failed")
	appErr.Code = CodeProcessorError
	return appErr
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case AuthError:
		return http.StatusUnauthorized
	case DatabaseError:
		return http.StatusInternalServerError
	case ForbiddenError:
		return http.StatusForbidden
	case ConflictError:
		return http.StatusConflict
	case UnprocessableError:
		return http.StatusUnprocessableEntity
	case ProcessorFailure:
		return http.StatusBadGateway
	case RateLimitError:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
