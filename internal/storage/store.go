// Package storage is the durable key-value layer. Every harvester artifact
// (partition results, dispatch markers, object metadata and images) is a
// blob in a gocloud bucket; on local disk the directory tree is the store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob" // gs:// buckets
	_ "gocloud.dev/blob/memblob" // mem:// buckets
	_ "gocloud.dev/blob/s3blob"  // s3:// buckets
	"gocloud.dev/gcerrors"

	"github.com/JakeFAU/ned-harvester/internal/harvest"
)

// Store implements harvest.Store over a gocloud bucket.
type Store struct {
	bucket *blob.Bucket
}

// Open opens the store named by location. A location without a scheme is a
// local directory, created if missing; anything else is a gocloud bucket URL
// such as file:///data, mem://, gs://bucket or s3://bucket.
func Open(ctx context.Context, location string) (*Store, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("storage location is required")
	}
	if !strings.Contains(location, "://") {
		dir, err := filepath.Abs(location)
		if err != nil {
			return nil, fmt.Errorf("resolve storage dir %s: %w", location, err)
		}
		bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
		if err != nil {
			return nil, fmt.Errorf("open storage dir %s: %w", dir, err)
		}
		return New(bucket), nil
	}
	bucket, err := blob.OpenBucket(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", location, err)
	}
	return New(bucket), nil
}

// New wraps an already opened bucket. The Store takes ownership of it.
func New(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return ok, nil
}

// ReadAll returns the full contents of key. A missing key yields an error
// matching harvest.ErrNotFound.
func (s *Store) ReadAll(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("read %s: %w", key, harvest.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// WriteAll stores data under key. Readers never observe a partial blob.
func (s *Store) WriteAll(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.bucket.WriteAll(ctx, key, data, writerOptions(contentType)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Write streams r into key. If the copy fails the write is abandoned and no
// blob is left behind.
func (s *Store) Write(ctx context.Context, key string, r io.Reader, contentType string) error {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(writeCtx, key, writerOptions(contentType))
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns every key under prefix, recursively.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}
}

// Close releases the underlying bucket.
func (s *Store) Close() error {
	if err := s.bucket.Close(); err != nil {
		return fmt.Errorf("close bucket: %w", err)
	}
	return nil
}

func writerOptions(contentType string) *blob.WriterOptions {
	if contentType == "" {
		return nil
	}
	return &blob.WriterOptions{ContentType: contentType}
}
