package domain

import (
	"context"
	"io"
)

// Хранилище бинарного контента (S3/MinIO): аватары пользователей
type BlobPutResult struct {
	StorageKey string
	Size       int64
	SHA256     []byte
}

type BlobStorage interface {
	Put(ctx context.Context, r io.Reader, hintName string, mime string) (BlobPutResult, error)
	// URL, по которому клиент может забрать объект
	PublicURL(storageKey string) string
	Delete(ctx context.Context, storageKey string) error
	Ping(ctx context.Context) error
}
