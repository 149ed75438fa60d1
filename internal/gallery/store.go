// Package gallery stores completed artifacts: the record itself, mirrored
// bytes, thumbnails and the retention sweep.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// PGStore implements domain.GalleryRepository on gallery_records.
type PGStore struct {
	sql infra.SQLExecutor
}

func NewPGStore(sql infra.SQLExecutor) *PGStore {
	return &PGStore{sql: sql}
}

// Insert writes rec once; a second insert for the same user and job is a
// no-op.
func (s *PGStore) Insert(ctx context.Context, rec *domain.GalleryRecord) error {
	urls := rec.AuxiliaryURLs
	if urls == nil {
		urls = []string{}
	}
	aux, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("encode auxiliary urls: %w", err)
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.sql.Exec(ctx, sqlinline.QInsertGalleryRecord,
		rec.ID, rec.UserID, rec.JobID, string(rec.Kind), rec.MediaURL, rec.Prompt,
		aux, meta, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert gallery record: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, userID, id string) (*domain.GalleryRecord, error) {
	rec, err := scanRecord(s.sql.QueryRow(ctx, sqlinline.QSelectGalleryRecord, id, userID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select gallery record: %w", err)
	}
	return &rec, nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.GalleryRecord, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListGalleryRecords, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list gallery records: %w", err)
	}
	return collect(rows)
}

func (s *PGStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteGalleryRecord, id, userID)
	if err != nil {
		return fmt.Errorf("delete gallery record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.GalleryRecord, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QDeleteExpiredGalleryRecords, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("delete expired gallery records: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]domain.GalleryRecord, error) {
	defer rows.Close()
	var out []domain.GalleryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gallery record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRecord(row pgx.Row) (domain.GalleryRecord, error) {
	var (
		rec  domain.GalleryRecord
		kind string
		aux  []byte
		meta []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.JobID, &kind, &rec.MediaURL, &rec.Prompt, &aux, &meta, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		return domain.GalleryRecord{}, err
	}
	rec.Kind = domain.Kind(kind)
	if len(aux) > 0 {
		if err := json.Unmarshal(aux, &rec.AuxiliaryURLs); err != nil {
			return domain.GalleryRecord{}, fmt.Errorf("decode auxiliary urls: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return domain.GalleryRecord{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return rec, nil
}

var _ domain.GalleryRepository = (*PGStore)(nil)
