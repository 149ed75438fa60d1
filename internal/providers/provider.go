// Package providers defines the contract every generation backend implements.
// A provider either finishes synchronously or hands back a job id that is
// polled through Status until it reaches a terminal state.
package providers

import (
	"context"

	"mediagen/internal/domain"
)

// Payload is the normalized input passed to any provider.
type Payload struct {
	Kind            domain.Kind
	Prompt          string
	Width           int
	Height          int
	DurationSeconds int
	Voice           string
	Locale          string
	RequestID       string
}

// PayloadFrom builds a provider payload from a validated request.
func PayloadFrom(req domain.GenerationRequest, requestID string) Payload {
	return Payload{
		Kind:            req.Kind,
		Prompt:          req.Prompt,
		Width:           req.Width,
		Height:          req.Height,
		DurationSeconds: req.DurationSeconds,
		Voice:           req.Voice,
		Locale:          req.Locale,
		RequestID:       requestID,
	}
}

// Submission is what a provider returns for a new job: either a finished
// Result or a JobID to poll.
type Submission struct {
	JobID  string
	Result *domain.Result
}

// Async reports whether the submission must be polled.
func (s Submission) Async() bool {
	return s.Result == nil
}

// State is the provider-side status of an accepted job.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// StatusReport is one status observation. Progress is -1 when the provider
// does not report it.
type StatusReport struct {
	State    State
	Progress int
	Result   *domain.Result
	Message  string
}

// Provider is implemented by every generation backend.
type Provider interface {
	Submit(ctx context.Context, payload Payload) (Submission, error)
	Status(ctx context.Context, jobID string) (StatusReport, error)
}
