package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAdmissionDenied ErrorType = "ADMISSION_DENIED"
	ErrTierFull        ErrorType = "TIER_FULL"
	ErrUpgradeRejected ErrorType = "UPGRADE_REJECTED"
	ErrBackend         ErrorType = "BACKEND_ERROR"
	ErrAuthFailed      ErrorType = "AUTH_FAILED"
	ErrInvalidRequest  ErrorType = "INVALID_REQUEST"
	ErrNotFound        ErrorType = "NOT_FOUND"
	ErrInternal        ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewAdmissionDenied(msg string) *AppError {
	return New(ErrAdmissionDenied, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrAdmissionDenied, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrTierFull, ErrUpgradeRejected:
		return http.StatusConflict
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAdmissionDenied:
		return "Check the affiliate's daily limits before retrying."
	case ErrTierFull:
		return "The target tier has no free slots; join the waitlist."
	case ErrUpgradeRejected:
		return "Re-check upgrade eligibility and retry."
	case ErrAuthFailed:
		return "Check the affiliate token or admin key."
	case ErrBackend:
		return "The capacity backend is unreachable; retry shortly."
	default:
		return ""
	}
}
