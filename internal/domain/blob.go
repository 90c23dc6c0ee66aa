package domain

import (
	"context"
	"io"
	"time"
)

// ArchiveObject is one archive file in object storage.
type ArchiveObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// DocumentReader loads small documents (market metadata) by key. A missing
// key yields ErrNotFound; a document larger than limit is an error.
type DocumentReader interface {
	ReadDocument(ctx context.Context, key string, limit int64) ([]byte, error)
}

// ArchiveIndex answers what the archive already holds.
type ArchiveIndex interface {
	Exists(ctx context.Context, key string) (bool, error)
	ListArchives(ctx context.Context, kind string) ([]ArchiveObject, error)
}

// Archiver moves old projection data from the database to cold storage.
type Archiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
	ArchiveSnapshots(ctx context.Context, at time.Time) (int64, error)
}
