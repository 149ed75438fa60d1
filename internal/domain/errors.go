package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrStaleJob          = errors.New("stale job")
	ErrProviderFailure   = errors.New("provider failure")
)

// ErrorCode classifies every failure the coordinator can observe.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "validation"
	CodeInsufficientCredits ErrorCode = "insufficient_credits"
	CodeCreditService       ErrorCode = "credit_service"
	CodeSubmission          ErrorCode = "submission"
	CodePolling             ErrorCode = "polling"
	CodeTimeout             ErrorCode = "timeout"
	CodePersistence         ErrorCode = "persistence_warning"
)

// GenerationError carries a user-facing message and the underlying cause.
// Message is safe to show; Err is for logs only.
type GenerationError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func NewValidationError(msg string) *GenerationError {
	return &GenerationError{Code: CodeValidation, Message: msg}
}

func NewInsufficientCreditsError(required int) *GenerationError {
	return &GenerationError{Code: CodeInsufficientCredits, Message: fmt.Sprintf("insufficient credits: %d required", required)}
}

func NewCreditServiceFault(err error) *GenerationError {
	return &GenerationError{Code: CodeCreditService, Message: "credit service unavailable, please retry", Err: err}
}

func NewSubmissionError(err error) *GenerationError {
	return &GenerationError{Code: CodeSubmission, Message: "generation request failed", Err: err}
}

func NewPollingFault(err error) *GenerationError {
	return &GenerationError{Code: CodePolling, Message: "could not read generation status", Err: err}
}

func NewTimeoutError() *GenerationError {
	return &GenerationError{Code: CodeTimeout, Message: "generation timed out waiting for the provider"}
}

func NewPersistenceWarning(err error) *GenerationError {
	return &GenerationError{Code: CodePersistence, Message: "result ready but saving to the gallery failed", Err: err}
}

// ProviderError is a failure the provider reported for an accepted job.
func ProviderError(msg string) *GenerationError {
	if msg == "" {
		msg = "generation failed at the provider"
	}
	return &GenerationError{Code: CodeSubmission, Message: msg, Err: ErrProviderFailure}
}

// CodeOf extracts the taxonomy code of err, or "" for untyped errors.
func CodeOf(err error) ErrorCode {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// MessageOf returns the user-facing message of err without transport detail.
func MessageOf(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Message
	}
	if err == nil {
		return ""
	}
	return "generation failed"
}
