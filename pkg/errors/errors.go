package archive_errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPolicyViolation   = errors.New("policy violation")
	ErrRateLimited       = errors.New("rate limited")
	ErrAlreadyExists     = errors.New("already exists")
	ErrMisconfigured     = errors.New("misconfiguration")
)

// Stable machine-readable error codes returned to clients.
const (
	CodeInvalidRequest   = "invalid_request"
	CodePolicyViolation  = "policy_violation"
	CodeCaptchaFailed    = "captcha_failed"
	CodeNotFound         = "not_found"
	CodeForbidden        = "forbidden"
	CodeExpired          = "expired"
	CodeNotReusable      = "not_reusable"
	CodeMaxFilesExceeded = "max_files_exceeded"
	CodeInvalidReceipt   = "invalid_receipt"
	CodeInvalidStatus    = "invalid_status"
	CodeAlreadyFinalized = "already_finalized"
	CodeConflict         = "conflict"
	CodeUnauthorized     = "unauthorized"
	CodeRateLimited      = "rate_limited"
	CodeMisconfiguration = "misconfiguration"
	CodeInternal         = "internal_error"
)

// AppError is an error that is safe to show to the caller.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Wrap(code string, status int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, http.StatusBadRequest, message)
}

func PolicyViolation(err error) *AppError {
	return Wrap(CodePolicyViolation, http.StatusBadRequest, err.Error(), ErrPolicyViolation)
}

func NotFound(message string) *AppError {
	return Wrap(CodeNotFound, http.StatusNotFound, message, ErrNotFound)
}

func Forbidden(message string) *AppError {
	return Wrap(CodeForbidden, http.StatusForbidden, message, ErrForbidden)
}

func Conflict(message string) *AppError {
	return Wrap(CodeConflict, http.StatusConflict, message, ErrConflict)
}

func Misconfigured(message string) *AppError {
	return Wrap(CodeMisconfiguration, http.StatusInternalServerError, message, ErrMisconfigured)
}

// As extracts an *AppError from err.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the client-facing code for err, or CodeInternal.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}
