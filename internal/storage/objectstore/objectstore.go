// Package objectstore defines the blob contract the storage manager runs on.
package objectstore

import (
	"context"
	"time"
)

// Object describes a stored blob without its body.
type Object struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

//go:generate mockgen -source=objectstore.go -destination=mocks/mocks.go -package=mocks ObjectStore

// ObjectStore saves and retrieves opaque bytes by key. Implementations
// return sentinel.ErrNotFound for missing keys and treat deleting a missing
// key as success.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, opts PutOptions) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (Object, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}
