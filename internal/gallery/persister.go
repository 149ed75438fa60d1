package gallery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
)

// Persister writes one GalleryRecord per completed job. Inline bytes and
// transcript text are mirrored to the blob store first; image thumbnails are
// best effort.
type Persister struct {
	repo      domain.GalleryRepository
	blobs     domain.BlobStore
	retention time.Duration
	thumbW    int
	now       func() time.Time
	logger    zerolog.Logger
}

// PersisterOptions configures a Persister. Blobs may be nil.
type PersisterOptions struct {
	Blobs          domain.BlobStore
	Retention      time.Duration
	ThumbnailWidth int
	Now            func() time.Time
	Logger         zerolog.Logger
}

func NewPersister(repo domain.GalleryRepository, opts PersisterOptions) *Persister {
	if opts.Retention <= 0 {
		opts.Retention = domain.DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Persister{
		repo:      repo,
		blobs:     opts.Blobs,
		retention: opts.Retention,
		thumbW:    opts.ThumbnailWidth,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Persist creates the record for a completed job.
func (p *Persister) Persist(ctx context.Context, userID string, job domain.GenerationJob) (domain.GalleryRecord, error) {
	if job.Status != domain.StatusCompleted || job.Result == nil {
		return domain.GalleryRecord{}, errors.New("gallery: job is not completed")
	}
	res := job.Result
	now := p.now().UTC()
	rec := domain.GalleryRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobID:     job.ID,
		Kind:      job.Kind,
		Prompt:    job.Prompt,
		Metadata:  metadataFor(job),
		CreatedAt: now,
		ExpiresAt: now.Add(p.retention),
	}

	urls := nonEmpty(res.MediaURLs)
	var keys []string
	prefix := path.Join("gallery", userID, rec.ID)

	if len(res.Data) > 0 && p.blobs != nil {
		key, err := p.blobs.Write(ctx, path.Join(prefix, "original"+extensionFor(res.Format)), res.Data)
		if err != nil {
			return domain.GalleryRecord{}, fmt.Errorf("mirror artifact: %w", err)
		}
		keys = append(keys, key)
		urls = append([]string{p.blobs.URL(key)}, urls...)

		if job.Kind == domain.KindImage {
			if key, ok := p.thumbnail(ctx, prefix, res.Data); ok {
				keys = append(keys, key)
				urls = append(urls, p.blobs.URL(key))
			}
		}
	}
	if job.Kind == domain.KindTranscript && res.Text != "" && p.blobs != nil {
		key, err := p.blobs.Write(ctx, path.Join(prefix, "transcript.txt"), []byte(res.Text))
		if err != nil {
			return domain.GalleryRecord{}, fmt.Errorf("mirror transcript: %w", err)
		}
		keys = append(keys, key)
		urls = append([]string{p.blobs.URL(key)}, urls...)
	}
	if res.ThumbnailURL != "" {
		urls = append(urls, res.ThumbnailURL)
	}
	if len(urls) == 0 {
		return domain.GalleryRecord{}, errors.New("gallery: result has no media url")
	}
	rec.MediaURL = urls[0]
	rec.AuxiliaryURLs = urls[1:]
	if len(keys) > 0 {
		rec.Metadata["blob_keys"] = keys
	}

	if err := p.repo.Insert(ctx, &rec); err != nil {
		p.cleanup(ctx, keys)
		return domain.GalleryRecord{}, err
	}
	p.logger.Info().Str("record_id", rec.ID).Str("job_id", rec.JobID).Str("user_id", userID).Msg("gallery: record stored")
	return rec, nil
}

func (p *Persister) thumbnail(ctx context.Context, prefix string, data []byte) (string, bool) {
	thumb, err := Thumbnail(data, p.thumbW)
	if err != nil {
		p.logger.Warn().Err(err).Msg("gallery: thumbnail skipped")
		return "", false
	}
	key, err := p.blobs.Write(ctx, path.Join(prefix, "thumb.jpg"), thumb)
	if err != nil {
		p.logger.Warn().Err(err).Msg("gallery: thumbnail write failed")
		return "", false
	}
	return key, true
}

func (p *Persister) cleanup(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := p.blobs.Delete(ctx, key); err != nil {
			p.logger.Warn().Err(err).Str("key", key).Msg("gallery: orphan blob left behind")
		}
	}
}

func metadataFor(job domain.GenerationJob) map[string]any {
	meta := map[string]any{}
	for k, v := range job.Result.Metadata {
		meta[k] = v
	}
	if job.Result.Format != "" {
		meta["format"] = job.Result.Format
	}
	if job.Result.Width > 0 && job.Result.Height > 0 {
		meta["width"] = job.Result.Width
		meta["height"] = job.Result.Height
	}
	if job.Cost > 0 {
		meta["cost"] = job.Cost
	}
	return meta
}

// BlobKeys returns the mirrored keys recorded for rec.
func BlobKeys(rec domain.GalleryRecord) []string {
	raw, ok := rec.Metadata["blob_keys"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func extensionFor(format string) string {
	switch strings.ToLower(format) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
