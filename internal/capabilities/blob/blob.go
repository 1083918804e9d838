// Package blob implements the blob capability: a named Container namespace
// with get_data/write_data/list_objects/delete_object/has_object/
// object_info, backed by an in-memory store or S3.
package blob

import "context"

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// Container is the blob capability object.
type Container interface {
	GetData(ctx context.Context, key string) ([]byte, error)
	WriteData(ctx context.Context, key string, data []byte) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
	HasObject(ctx context.Context, key string) (bool, error)
	ObjectInfo(ctx context.Context, key string) (ObjectInfo, error)
}

// Backend opens named containers.
type Backend interface {
	Open(ctx context.Context, name string) (Container, error)
}
