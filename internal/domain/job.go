package domain

import (
	"strings"
	"time"
)

// Kind enumerates supported generation categories.
type Kind string

const (
	KindImage      Kind = "image"
	KindVideo      Kind = "video"
	KindTranscript Kind = "transcript"
)

// ParseKind normalizes free-form input into a supported kind.
func ParseKind(v string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(v))) {
	case KindImage:
		return KindImage, true
	case KindVideo:
		return KindVideo, true
	case KindTranscript:
		return KindTranscript, true
	default:
		return "", false
	}
}

// Status enumerates job lifecycle states.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusPolling    Status = "polling"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further automatic transitions occur from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job is in flight.
func (s Status) IsActive() bool {
	return s == StatusGenerating || s == StatusPolling
}

// GenerationRequest is the user-supplied input for one generation attempt.
type GenerationRequest struct {
	Kind            Kind   `json:"kind"`
	Prompt          string `json:"prompt"`
	Provider        string `json:"provider,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Voice           string `json:"voice,omitempty"`
	Locale          string `json:"locale,omitempty"`
}

// Validate rejects requests that must never reach a remote call.
func (r GenerationRequest) Validate() error {
	if _, ok := ParseKind(string(r.Kind)); !ok {
		return NewValidationError("unsupported generation kind")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return NewValidationError("prompt is required")
	}
	if r.Width < 0 || r.Height < 0 {
		return NewValidationError("output size must be positive")
	}
	if r.DurationSeconds < 0 {
		return NewValidationError("duration must be positive")
	}
	return nil
}

// Result is the payload of a completed generation.
type Result struct {
	MediaURLs    []string       `json:"media_urls,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Format       string         `json:"format,omitempty"`
	Width        int            `json:"width,omitempty"`
	Height       int            `json:"height,omitempty"`
	Text         string         `json:"text,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	// Data holds inline bytes returned by providers that do not host the artifact.
	Data []byte `json:"-"`
}

// PrimaryURL returns the first media URL, if any.
func (r *Result) PrimaryURL() string {
	if r == nil {
		return ""
	}
	for _, u := range r.MediaURLs {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// GenerationJob is one in-flight or finished generation attempt.
type GenerationJob struct {
	ID         string    `json:"id,omitempty"`
	Kind       Kind      `json:"kind,omitempty"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Prompt     string    `json:"prompt,omitempty"`
	Cost       int       `json:"cost,omitempty"`
	Result     *Result   `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
	Warning    string    `json:"warning,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}
