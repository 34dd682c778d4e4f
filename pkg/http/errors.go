package http

import (
	"fmt"
	"net/http"
)

// Error codes returned in AppError.Code.
const (
	CodeValidation    = "ERR_VALIDATION"
	CodeInvalidWindow = "ERR_INVALID_WINDOW"
	CodeInference     = "ERR_INFERENCE"
	CodeNotFound      = "ERR_NOT_FOUND"
	CodeBadRequest    = "ERR_BAD_REQUEST"
	CodeRateLimited   = "ERR_RATE_LIMITED"
	CodeUnavailable   = "ERR_UNAVAILABLE"
	CodeInternal      = "ERR_INTERNAL"
)

// AppError is an API failure carrying its HTTP status. The wrapped error is
// logged but never serialized.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// ValidationFailed reports a request that parsed but failed a domain check.
func ValidationFailed(field string, err error) *AppError {
	return NewAppError(CodeValidation, field, err.Error(), http.StatusBadRequest).WithError(err)
}

// InvalidWindowError is returned when candles pass field checks but do not form a usable window.
func InvalidWindowError(err error) *AppError {
	return NewAppError(CodeInvalidWindow, "candles", err.Error(), http.StatusBadRequest).WithError(err)
}

// InferenceError reports a model that produced an unusable probability vector.
func InferenceError(err error) *AppError {
	return NewAppError(CodeInference, "", "model returned an invalid prediction", http.StatusInternalServerError).WithError(err)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NewAppError(CodeNotFound, "", fmt.Sprintf(format, a...), http.StatusNotFound)
}

func BadRequestError(message string) *AppError {
	return NewAppError(CodeBadRequest, "", message, http.StatusBadRequest)
}

func TooManyRequestsError(message string) *AppError {
	return NewAppError(CodeRateLimited, "", message, http.StatusTooManyRequests)
}

func ServiceUnavailableError(message string) *AppError {
	return NewAppError(CodeUnavailable, "", message, http.StatusServiceUnavailable)
}

func InternalError(message string) *AppError {
	return NewAppError(CodeInternal, "", message, http.StatusInternalServerError)
}
