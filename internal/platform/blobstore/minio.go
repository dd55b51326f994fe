package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore keeps blobs in an S3-compatible bucket. Object names are
// "<userId>/<blobId><ext>" and metadata travels as object user metadata.
type MinIOStore struct {
	client *minio.Client
	cfg    MinIOConfig
	logger zerolog.Logger
}

func NewMinIOStore(cfg MinIOConfig, logger zerolog.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "blobstore").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket: %w", err)
		}
		s.logger.Info().Msg("bucket created")
	}
	return nil
}

func (s *MinIOStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	if err := Validate(meta); err != nil {
		return nil, err
	}
	data, err := readLimited(content)
	if err != nil {
		return nil, err
	}
	meta = prepare(meta, data)

	object := objectName(meta)
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, object, bytes.NewReader(data), meta.Size, minio.PutObjectOptions{
		ContentType: meta.ContentType,
		UserMetadata: map[string]string{
			"File-Name": meta.FileName,
			"User-Id":   meta.UserID,
			"Sha256":    meta.Hash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", object, err)
	}

	meta.URL = s.publicURL(object)
	s.logger.Debug().Str("object", object).Int64("size", meta.Size).Msg("blob stored")
	return &meta, nil
}

// Download looks the object up by id across the listing, since object names
// are prefixed with the owning user.
func (s *MinIOStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	info, err := s.find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, info.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object %s: %w", info.Key, err)
	}
	meta := s.metadataFrom(info)
	return obj, &meta, nil
}

func (s *MinIOStore) Delete(ctx context.Context, id string) error {
	info, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", info.Key, err)
	}
	return nil
}

func (s *MinIOStore) ListByUser(ctx context.Context, userID string) ([]*BlobMetadata, error) {
	var out []*BlobMetadata
	for info := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:       userPrefix(userID),
		Recursive:    true,
		WithMetadata: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects: %w", info.Err)
		}
		m := s.metadataFrom(info)
		out = append(out, &m)
	}
	return out, nil
}

// PresignedURL returns a time-limited GET URL for a private bucket.
func (s *MinIOStore) PresignedURL(ctx context.Context, meta BlobMetadata, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, objectName(meta), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return u.String(), nil
}

func (s *MinIOStore) find(ctx context.Context, id string) (minio.ObjectInfo, error) {
	for info := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Recursive:    true,
		WithMetadata: true,
	}) {
		if info.Err != nil {
			return minio.ObjectInfo{}, fmt.Errorf("list objects: %w", info.Err)
		}
		if blobID(info.Key) == id {
			return info, nil
		}
	}
	return minio.ObjectInfo{}, ErrBlobNotFound
}

func (s *MinIOStore) metadataFrom(info minio.ObjectInfo) BlobMetadata {
	return BlobMetadata{
		ID:          blobID(info.Key),
		FileName:    userMeta(info, "File-Name"),
		ContentType: info.ContentType,
		Size:        info.Size,
		UserID:      userMeta(info, "User-Id"),
		Hash:        userMeta(info, "Sha256"),
		URL:         s.publicURL(info.Key),
		CreatedAt:   info.LastModified,
	}
}

// userMeta reads a user metadata key; listings return it with the
// X-Amz-Meta- prefix, stat calls without.
func userMeta(info minio.ObjectInfo, key string) string {
	if v, ok := info.UserMetadata[key]; ok {
		return v
	}
	return info.UserMetadata["X-Amz-Meta-"+key]
}

func (s *MinIOStore) publicURL(object string) string {
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   s.cfg.Endpoint,
		Path:   "/" + s.cfg.Bucket + "/" + object,
	}).String()
}

func userPrefix(userID string) string {
	if userID == "" {
		return "anonymous/"
	}
	return userID + "/"
}

func objectName(meta BlobMetadata) string {
	return userPrefix(meta.UserID) + meta.ID + path.Ext(meta.FileName)
}

// blobID recovers the blob id from "<user>/<id><ext>".
func blobID(key string) string {
	base := path.Base(key)
	return base[:len(base)-len(path.Ext(base))]
}
