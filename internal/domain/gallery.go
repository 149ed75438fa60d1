package domain

import "time"

// DefaultRetention is the lifetime of a gallery record before it becomes
// eligible for deletion.
const DefaultRetention = 7 * 24 * time.Hour

// GalleryRecord is persisted metadata pointing to a completed artifact.
type GalleryRecord struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	JobID         string         `json:"job_id,omitempty"`
	Kind          Kind           `json:"kind"`
	MediaURL      string         `json:"media_url"`
	Prompt        string         `json:"prompt"`
	AuxiliaryURLs []string       `json:"auxiliary_urls,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// Expired reports whether the record is past its retention window.
func (g GalleryRecord) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}
