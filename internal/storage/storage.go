// Package storage keeps finalization artifacts (per-round sample CSVs) in
// buckets and hands out time-limited signed URLs for them.
package storage

import (
	"context"
	"errors"
	"time"
)

// EyeTrackingBucket holds the per-round raw sample CSVs.
const EyeTrackingBucket = "eye-tracking-csvs"

var (
	ErrNotFound     = errors.New("blob not found")
	ErrInvalidPath  = errors.New("invalid blob path")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("signed url expired")
)

// BlobStore is the file side of the backend. Put overwrites, so retrying a
// write for the same bucket and path is safe.
type BlobStore interface {
	Put(ctx context.Context, bucket, path string, content []byte) error
	Get(ctx context.Context, bucket, path string) ([]byte, error)
	SignedURL(bucket, path string, ttl time.Duration) (string, error)
	Verify(bucket, path string, expires int64, signature string) error
}
