package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Source is the read side of a migration
type Source interface {
	// GetObject opens an object for reading
	GetObject(ctx context.Context, bucket, key string) (Object, error)
	// ListObjects lists every object under prefix, paging internally until
	// the listing is exhausted. The error channel carries at most one error.
	ListObjects(ctx context.Context, bucket, prefix string) (<-chan ObjectInfo, <-chan error)
}

// Destination is the write side of a migration
type Destination interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts PutOptions) error
}

// Client defines the interface for S3-compatible storage operations
type Client interface {
	Source
	Destination
}

// Object represents an object stream
type Object interface {
	io.ReadCloser
	Stat() (ObjectInfo, error)
}

// ObjectInfo contains object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// PutOptions contains options for put operations
type PutOptions struct {
	ContentType string
}

// Config contains client configuration
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Open builds a client for the named driver ("minio" or "s3")
func Open(ctx context.Context, driver string, cfg Config) (Client, error) {
	switch driver {
	case "minio":
		return NewMinIOClient(cfg)
	case "s3":
		return NewS3Client(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
