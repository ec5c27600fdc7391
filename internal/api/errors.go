package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/studio-analyzer/internal/roundstore"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

const (
	ErrTypeValidation   = "validation_error"
	ErrTypeInvalidRound = "invalid_round"
	ErrTypeUnauthorized = "unauthorized"
	ErrTypeRateLimited  = "rate_limited"

	ErrTypeSessionNotFound = "session_not_found"
	ErrTypeDuplicateRound  = "duplicate_round"

	ErrTypeTimeout  = "timeout"
	ErrTypeInternal = "internal_error"
)

// ErrorCategory groups error types for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategorySession    ErrorCategory = "session"
	CategorySystem     ErrorCategory = "system"
)

func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidRound, ErrTypeUnauthorized, ErrTypeRateLimited:
		return CategoryValidation
	case ErrTypeSessionNotFound, ErrTypeDuplicateRound:
		return CategorySession
	default:
		return CategorySystem
	}
}

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

func (eb *ErrorBuilder) Build() APIError {
	return APIError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler writes error responses and logs them.
type ErrorHandler struct {
	logger *log.Logger
}

func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError maps err onto a status and writes it. Store sentinel errors
// get their own types; anything else is a 500.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	var apiErr APIError
	if errors.As(err, &apiErr) {
		eh.write(w, r, http.StatusBadRequest, apiErr)
		return
	}

	status := http.StatusInternalServerError
	b := NewError(ErrTypeInternal, "internal error").WithCause(err)
	switch {
	case errors.Is(err, roundstore.ErrSessionNotFound):
		status = http.StatusNotFound
		b = NewError(ErrTypeSessionNotFound, "session not found")
	case errors.Is(err, roundstore.ErrDuplicateRound):
		status = http.StatusConflict
		b = NewError(ErrTypeDuplicateRound, "round already recorded").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		b = NewError(ErrTypeTimeout, "request timed out")
	}
	eh.write(w, r, status, b.WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build())
}

// HandleValidationError reports a bad field in the request.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	apiErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()
	eh.write(w, r, http.StatusBadRequest, apiErr)
}

func (eh *ErrorHandler) write(w http.ResponseWriter, r *http.Request, status int, apiErr APIError) {
	category := GetErrorCategory(apiErr.Type)
	fields := []interface{}{
		"type", apiErr.Type,
		"category", category,
		"status", status,
		"request_id", apiErr.RequestID,
		"method", r.Method,
		"path", r.URL.Path,
	}
	if cause, ok := apiErr.Context["cause"]; ok {
		fields = append(fields, "cause", cause)
	}
	if status >= 500 {
		eh.logger.Error(apiErr.Message, fields...)
	} else {
		eh.logger.Warn(apiErr.Message, fields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", Version)
	w.Header().Set("X-Error-Type", apiErr.Type)
	w.Header().Set("X-Error-Category", string(category))
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		eh.logger.Error("encode error response", "err", err)
	}
}

// RecoveryHandler turns a panic into a 500 with a structured body.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Error("panic recovered", "request_id", requestID, "path", r.URL.Path, "panic", rvr)
				apiErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("panic", fmt.Sprintf("%v", rvr)).
					WithContext("path", r.URL.Path).
					Build()
				eh.write(w, r, http.StatusInternalServerError, apiErr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
