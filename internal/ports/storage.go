package ports

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned (wrapped) by GetObject when the key does not
// exist in the backing store.
var ErrObjectNotFound = errors.New("object not found")

type PutObjectInput struct {
	ObjectKey    string
	ContentType  string
	CacheControl string
	// PublicRead asks for an anonymous-read ACL where the backend has one.
	PublicRead bool
	Reader     io.Reader
	Size       int64
}

type PutObjectOutput struct {
	// Same as the requested key, except for gdrive where it is the file id.
	ObjectKey string
	Size      int64
	Location  string
}

// StorageProvider: implementations (s3, minio, localfs, gdrive).
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// Ping checks the backend is reachable; used by /health.
	Ping(ctx context.Context) error
}
