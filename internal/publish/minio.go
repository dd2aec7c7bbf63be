// Package publish uploads finished run artifacts to S3-compatible storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/daryltucker/polyglot-runner/internal/config"
)

// Uploader copies result files into a bucket under <prefix>/<run id>/.
type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewUploader builds an Uploader from cfg. cfg.Endpoint is host[:port] without scheme.
func NewUploader(cfg config.PublishConfig) (*Uploader, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("publish endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("publish bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Uploader{client: client, bucket: bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Upload creates the bucket if needed and stores every file. It returns the object names written.
func (u *Uploader) Upload(ctx context.Context, runID string, files ...string) ([]string, error) {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", u.bucket, err)
		}
	}

	var objects []string
	for _, f := range files {
		name := ObjectName(u.prefix, runID, f)
		_, err := u.client.FPutObject(ctx, u.bucket, name, f, minio.PutObjectOptions{ContentType: ContentType(f)})
		if err != nil {
			return objects, fmt.Errorf("upload %s: %w", f, err)
		}
		objects = append(objects, name)
	}
	return objects, nil
}

// ObjectName is the key a local file is stored under.
func ObjectName(prefix, runID, file string) string {
	return path.Join(prefix, runID, filepath.Base(file))
}

// ContentType picks the MIME type from the file extension.
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	case ".prom", ".log":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
