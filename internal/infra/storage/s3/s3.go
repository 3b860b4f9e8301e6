// Package s3 хранит аватары пользователей в S3-совместимом хранилище (MinIO).
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// MaxObjectSize: предел размера загружаемого объекта
const MaxObjectSize = 5 << 20

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

type Storage struct {
	cl     *minio.Client
	cfg    Config
	logger *log.Logger
}

var _ domain.BlobStorage = (*Storage)(nil)

func New(ctx context.Context, cfg Config, logger *log.Logger) (*Storage, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, err
	}
	s := &Storage{cl: cl, cfg: cfg, logger: logger}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	ok, err := s.cl.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %q: %w", s.cfg.Bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.cl.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", s.cfg.Bucket, err)
	}
	s.logger.Printf("bucket %q created", s.cfg.Bucket)
	return nil
}

// Put загружает объект под ключом "<prefix>/<sha256><ext>"; prefix и ext берутся из hintName.
// Одинаковое содержимое даёт один и тот же ключ.
func (s *Storage) Put(ctx context.Context, r io.Reader, hintName string, mime string) (domain.BlobPutResult, error) {
	buf, err := io.ReadAll(io.LimitReader(r, MaxObjectSize+1))
	if err != nil {
		return domain.BlobPutResult{}, err
	}
	if len(buf) > MaxObjectSize {
		return domain.BlobPutResult{}, fmt.Errorf("object larger than %d bytes: %w", MaxObjectSize, domain.ErrBadParams)
	}
	if len(buf) == 0 {
		return domain.BlobPutResult{}, fmt.Errorf("empty object: %w", domain.ErrBadParams)
	}

	sum := sha256.Sum256(buf)
	key := objectKey(hintName, sum[:])
	info, err := s.cl.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(buf), int64(len(buf)), minio.PutObjectOptions{
		ContentType: mime,
	})
	if err != nil {
		s.logger.Printf("PUT %q failed: %v", key, err)
		return domain.BlobPutResult{}, err
	}
	s.logger.Printf("PUT %q ok (%d bytes)", key, info.Size)
	return domain.BlobPutResult{StorageKey: key, Size: info.Size, SHA256: sum[:]}, nil
}

func (s *Storage) PublicURL(storageKey string) string {
	return publicURL(s.cfg, storageKey)
}

func (s *Storage) Delete(ctx context.Context, storageKey string) error {
	err := s.cl.RemoveObject(ctx, s.cfg.Bucket, storageKey, minio.RemoveObjectOptions{})
	if err != nil {
		s.logger.Printf("DELETE %q failed: %v", storageKey, err)
	}
	return err
}

func (s *Storage) Ping(ctx context.Context) error {
	ok, err := s.cl.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %q missing", s.cfg.Bucket)
	}
	return nil
}

func objectKey(hintName string, sum []byte) string {
	dir, file := path.Split(strings.TrimLeft(hintName, "/"))
	dir = strings.Trim(dir, "/")
	if dir == "" {
		dir = "blobs"
	}
	ext := strings.ToLower(path.Ext(file))
	if len(ext) > 8 {
		ext = ""
	}
	return fmt.Sprintf("%s/%x%s", dir, sum, ext)
}

func publicURL(cfg Config, key string) string {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if cfg.PathStyle {
		return fmt.Sprintf("%s://%s/%s/%s", scheme, cfg.Endpoint, cfg.Bucket, key)
	}
	return fmt.Sprintf("%s://%s.%s/%s", scheme, cfg.Bucket, cfg.Endpoint, key)
}
