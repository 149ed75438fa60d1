package domain

import (
	"context"
	"io"
	"time"
)

// CreditService is the remote ledger. AuthorizeAndDebit atomically checks
// balance >= amount and decrements it, returning false when funds are short.
type CreditService interface {
	AuthorizeAndDebit(ctx context.Context, userID string, amount int) (bool, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// GalleryRepository persists gallery records.
type GalleryRepository interface {
	Insert(ctx context.Context, rec *GalleryRecord) error
	Get(ctx context.Context, userID, id string) (*GalleryRecord, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]GalleryRecord, error)
	Delete(ctx context.Context, userID, id string) error
	// DeleteExpired removes up to limit records that expired before the cutoff
	// and returns what was removed.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) ([]GalleryRecord, error)
}

// BlobStore keeps mirrored artifact bytes. Write returns the canonical key.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
