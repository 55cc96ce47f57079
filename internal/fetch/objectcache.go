package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// ObjectCache mirrors documents to an S3 compatible bucket.
type ObjectCache struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

func NewObjectCache(ctx context.Context, cfg common.ObjectStoreConfig, logger *slog.Logger) (*ObjectCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	c := &ObjectCache{client: client, bucket: cfg.Bucket, prefix: "documents", logger: logger}
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("fetch.objectcache.ready", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return c, nil
}

func (c *ObjectCache) ensureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (c *ObjectCache) objectName(d entity.Descriptor) string {
	return path.Join(c.prefix, CacheKey(d))
}

func (c *ObjectCache) Get(ctx context.Context, d entity.Descriptor) ([]byte, bool, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, c.objectName(d), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("get object: %w", err)
	}
	defer func() { _ = obj.Close() }()

	body, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read object: %w", err)
	}
	return body, len(body) > 0, nil
}

func (c *ObjectCache) Put(ctx context.Context, d entity.Descriptor, body []byte) error {
	name := c.objectName(d)
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	_, err := c.client.PutObject(ctx, c.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: ct,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
