package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/yungbote/studyflow-backend/internal/logger"
)

// Bucket reads uploaded source files and stores derived assets (e.g. cover
// art) in the study material bucket.
type Bucket interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
	Close() error
}

type bucketService struct {
	log    *logger.Logger
	client *storage.Client
	name   string
	cdn    string
}

func NewBucket(log *logger.Logger) (Bucket, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	name := strings.TrimSpace(os.Getenv("MATERIAL_GCS_BUCKET_NAME"))
	if name == "" {
		return nil, fmt.Errorf("missing env var MATERIAL_GCS_BUCKET_NAME")
	}

	client, err := storage.NewClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &bucketService{
		log:    log.With("service", "gcp.Bucket"),
		client: client,
		name:   name,
		cdn:    strings.TrimSpace(os.Getenv("MATERIAL_CDN_DOMAIN")),
	}, nil
}

func (b *bucketService) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.name).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", b.name, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", b.name, key, err)
	}
	return data, nil
}

func (b *bucketService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", b.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish gs://%s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *bucketService) PublicURL(key string) string {
	if b.cdn != "" {
		return fmt.Sprintf("https://%s/%s", b.cdn, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.name, key)
}

func (b *bucketService) Close() error {
	return b.client.Close()
}
