// Package blobstore defines the pluggable object-store collaborator (C1)
// and its S3-backed implementation.
package blobstore

import (
	"context"
	"io"
	"iter"
)

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// GetOptions carries per-request hints to BlobStore.Get/GetStream.
type GetOptions struct {
	// RequesterPays sets x-amz-request-payer: requester, required by the
	// public Sentinel-2 buckets this pipeline reads from.
	RequesterPays bool
	// CacheControl, if set, is forwarded as the response's
	// Cache-Control override.
	CacheControl string
}

// BlobStore is the pluggable object-store collaborator (C1).
type BlobStore interface {
	// List enumerates objects under prefix, yielding (info, nil) per object
	// or (zero, err) on a listing failure, in iterator form so large
	// prefixes don't need to be materialized up front.
	List(ctx context.Context, bucket, prefix string, opts GetOptions) iter.Seq2[ObjectInfo, error]
	// Get fetches the full object body.
	Get(ctx context.Context, bucket, key string, opts GetOptions) ([]byte, error)
	// GetStream fetches the object body as a stream for large objects
	// (band rasters) that shouldn't be buffered whole.
	GetStream(ctx context.Context, bucket, key string, opts GetOptions) (io.ReadCloser, error)
}
