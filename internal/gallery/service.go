package gallery

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/pkg/zip"
)

const (
	defaultPageSize = 24
	maxPageSize     = 100
	exportLimit     = 500
)

// Service is the read and delete surface of the gallery.
type Service struct {
	repo   domain.GalleryRepository
	blobs  domain.BlobStore
	logger zerolog.Logger
}

func NewService(repo domain.GalleryRepository, blobs domain.BlobStore, logger zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, logger: logger}
}

// List returns a page of the user's unexpired records, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]domain.GalleryRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	recs, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []domain.GalleryRecord{}
	}
	return recs, nil
}

// OpenBlob opens a mirrored blob for its owner. Keys outside the caller's
// gallery prefix are reported as not found.
func (s *Service) OpenBlob(ctx context.Context, userID, key string) (io.ReadCloser, error) {
	if s.blobs == nil || userID == "" {
		return nil, domain.ErrNotFound
	}
	key = path.Clean("/" + key)[1:]
	if !strings.HasPrefix(key, path.Join("gallery", userID)+"/") {
		return nil, domain.ErrNotFound
	}
	return s.blobs.Open(ctx, key)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*domain.GalleryRecord, error) {
	return s.repo.Get(ctx, userID, id)
}

// Delete removes the record, then its mirrored blobs.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	rec, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.removeBlobs(ctx, *rec)
	s.logger.Info().Str("record_id", id).Str("user_id", userID).Msg("gallery: record deleted")
	return nil
}

// Export streams a zip with manifest.json and every mirrored blob.
func (s *Service) Export(ctx context.Context, userID string, w io.Writer) error {
	recs, err := s.repo.ListByUser(ctx, userID, exportLimit, 0)
	if err != nil {
		return err
	}
	manifest, err := json.MarshalIndent(map[string]any{"records": recs}, "", "  ")
	if err != nil {
		return err
	}
	entries := []zip.Entry{{Name: "manifest.json", Modified: time.Now(), Data: manifest}}
	if s.blobs != nil {
		for _, rec := range recs {
			for _, key := range BlobKeys(rec) {
				key := key
				entries = append(entries, zip.Entry{
					Name:     path.Join(rec.ID, path.Base(key)),
					Modified: rec.CreatedAt,
					Open:     func() (io.ReadCloser, error) { return s.blobs.Open(ctx, key) },
				})
			}
		}
	}
	return zip.Write(w, entries, func(name string, err error) {
		s.logger.Warn().Err(err).Str("entry", name).Msg("gallery: export entry skipped")
	})
}

// Sweep deletes up to batch expired records and their blobs.
func (s *Service) Sweep(ctx context.Context, now time.Time, batch int) (int, error) {
	recs, err := s.repo.DeleteExpired(ctx, now, batch)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		s.removeBlobs(ctx, rec)
	}
	return len(recs), nil
}

func (s *Service) removeBlobs(ctx context.Context, rec domain.GalleryRecord) {
	if s.blobs == nil {
		return
	}
	for _, key := range BlobKeys(rec) {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("gallery: blob delete failed")
		}
	}
}
