package sparsearray

import (
	"context"
	"fmt"
	"io"
	"path"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// Storage is the byte-range-addressable backing store a Writer and
// Reader operate against, generalizing pmtiles' read-only Bucket
// interface (pmtiles/bucket.go) with the writes fragments require.
type Storage interface {
	NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	NewWriter(ctx context.Context, key string) (io.WriteCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// BlobStorage adapts a gocloud.dev/blob.Bucket to Storage. Opening it
// via blob.OpenBucket lets a single call site target local disk, S3,
// GCS, or Azure by URL scheme ("file://", "s3://", "gs://", "azblob://"),
// exactly as pmtiles.OpenBucket does for reads.
type BlobStorage struct {
	bucket *blob.Bucket
}

// OpenStorage opens the bucket addressed by rawURL, optionally scoped
// beneath prefix.
func OpenStorage(ctx context.Context, rawURL string, prefix string) (*BlobStorage, error) {
	bucket, err := blob.OpenBucket(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: opening storage %q: %v", ErrIoError, rawURL, err)
	}
	if prefix != "" {
		bucket = blob.PrefixedBucket(bucket, path.Clean(prefix)+"/")
	}
	return &BlobStorage{bucket: bucket}, nil
}

func (s *BlobStorage) NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	r, err := s.bucket.NewRangeReader(ctx, key, offset, length, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrIoError, key, err)
	}
	return r, nil
}

func (s *BlobStorage) NewWriter(ctx context.Context, key string) (io.WriteCloser, error) {
	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: writing %q: %v", ErrIoError, key, err)
	}
	return w, nil
}

func (s *BlobStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: checking %q: %v", ErrIoError, key, err)
	}
	return ok, nil
}

func (s *BlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: listing %q: %v", ErrIoError, prefix, err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *BlobStorage) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: deleting %q: %v", ErrIoError, key, err)
	}
	return nil
}

func (s *BlobStorage) Close() error { return s.bucket.Close() }

// memStorage is an in-memory Storage used by tests, mirroring
// pmtiles/bucket.go's mockBucket.
type memStorage struct {
	items map[string][]byte
}

// NewMemStorage returns an in-memory Storage for tests.
func NewMemStorage() Storage {
	return &memStorage{items: make(map[string][]byte)}
}

type memWriter struct {
	s   *memStorage
	key string
	buf []byte
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *memWriter) Close() error {
	w.s.items[w.key] = w.buf
	return nil
}

func (s *memStorage) NewRangeReader(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	b, ok := s.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if length < 0 {
		length = int64(len(b)) - offset
	}
	if offset+length > int64(len(b)) {
		return nil, fmt.Errorf("%w: range out of bounds for %q", ErrIoError, key)
	}
	return io.NopCloser(newByteReader(b[offset : offset+length])), nil
}

func (s *memStorage) NewWriter(_ context.Context, key string) (io.WriteCloser, error) {
	return &memWriter{s: s, key: key}, nil
}

func (s *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.items[key]
	return ok, nil
}

func (s *memStorage) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.items {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	delete(s.items, key)
	return nil
}

func (s *memStorage) Close() error { return nil }

type byteReader struct {
	b []byte
	i int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}
