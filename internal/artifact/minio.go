// minio.go implements the shared artifact blob tier on MinIO (or any
// S3-compatible endpoint reachable with the MinIO client). Rendered artifacts
// are stored with their source fingerprint in object metadata so instances can
// tell a reusable render from a stale one without downloading it.
package artifact

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/media-gateway/media-gateway/internal/config"
)

const fingerprintMetaKey = "Source-Fingerprint"

// MinioTier is a BlobTier backed by a MinIO bucket.
type MinioTier struct {
	client *minio.Client
	bucket string
}

// NewMinioTier connects to the configured endpoint and creates the artifact
// bucket if it does not exist.
func NewMinioTier(ctx context.Context, cfg *config.MinioConfig) (*MinioTier, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check artifact bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create artifact bucket: %w", err)
		}
	}

	return &MinioTier{client: client, bucket: cfg.Bucket}, nil
}

// Fetch returns the shared artifact if its stored fingerprint is at least as
// new as the requested one.
func (t *MinioTier) Fetch(ctx context.Context, key string, fingerprint int64) (io.ReadCloser, bool, error) {
	stat, err := t.client.StatObject(ctx, t.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to stat shared artifact: %w", err)
	}

	stored, err := strconv.ParseInt(stat.UserMetadata[fingerprintMetaKey], 10, 64)
	if err != nil || stored < fingerprint {
		return nil, false, nil
	}

	obj, err := t.client.GetObject(ctx, t.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get shared artifact: %w", err)
	}
	return obj, true, nil
}

// Store uploads a rendered artifact with its fingerprint in metadata.
func (t *MinioTier) Store(ctx context.Context, key string, r io.Reader, size int64, fingerprint int64, contentType string) error {
	_, err := t.client.PutObject(ctx, t.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			fingerprintMetaKey: strconv.FormatInt(fingerprint, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store shared artifact: %w", err)
	}
	return nil
}
