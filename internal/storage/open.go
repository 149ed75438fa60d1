package storage

import (
	"context"
	"path/filepath"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

// Open selects the blob store from configuration. Object storage wins when
// an endpoint is set; otherwise artifacts go to the local disk and dir is
// the directory the API should serve.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (store domain.BlobStore, dir string, err error) {
	if cfg.MinioEndpoint != "" {
		ms, err := NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return ms, "", nil
	}
	dir = cfg.StoragePath
	if !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	fs, err := NewFileStore(dir, cfg.StorageBaseURL)
	if err != nil {
		return nil, "", err
	}
	return fs, dir, nil
}
