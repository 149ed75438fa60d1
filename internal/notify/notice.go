// Package notify turns lifecycle transitions into user-facing notices and
// fans them out to log, pub/sub, queue and streaming sinks. Sinks observe
// only; they never change job state.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

// Kind classifies a notice.
type Kind string

const (
	KindCompleted           Kind = "completed"
	KindFailed              Kind = "failed"
	KindCancelled           Kind = "cancelled"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindUnauthorized        Kind = "unauthorized"
	KindPersistenceWarning  Kind = "persistence_warning"
)

// Notice is one user-facing event.
type Notice struct {
	Kind           Kind             `json:"kind"`
	UserID         string           `json:"user_id"`
	JobID          string           `json:"job_id,omitempty"`
	GenerationKind domain.Kind      `json:"generation_kind,omitempty"`
	Code           domain.ErrorCode `json:"code,omitempty"`
	Detail         string           `json:"detail,omitempty"`
	MediaURL       string           `json:"media_url,omitempty"`
	Locale         string           `json:"locale,omitempty"`
	Text           string           `json:"text"`
	At             time.Time        `json:"at"`
}

// Sink receives notices. Implementations handle their own delivery errors.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notice)

func (f SinkFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Multi delivers to every sink in order.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}

// LogSink writes notices to the structured log.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, n Notice) {
	ev := s.Logger.Info()
	switch n.Kind {
	case KindFailed, KindInsufficientCredits, KindUnauthorized:
		ev = s.Logger.Warn()
	case KindPersistenceWarning:
		ev = s.Logger.Error()
	}
	ev.Str("notice", string(n.Kind)).
		Str("user_id", n.UserID).
		Str("job_id", n.JobID).
		Str("kind", string(n.GenerationKind)).
		Str("code", string(n.Code)).
		Msg("notify: " + n.Text)
}
