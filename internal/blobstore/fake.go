package blobstore

import (
	"bytes"
	"context"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

// Fake is an in-memory BlobStore for unit tests.
type Fake struct {
	mu      sync.Mutex
	objects map[string][]byte // "bucket/key" -> body
}

// NewFake returns an empty Fake blob store.
func NewFake() *Fake {
	return &Fake{objects: map[string][]byte{}}
}

// Put seeds an object for tests to discover via List/Get/GetStream.
func (f *Fake) Put(bucket, key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = body
}

func (f *Fake) List(_ context.Context, bucket, prefix string, _ GetOptions) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		f.mu.Lock()
		var keys []string
		full := bucket + "/" + prefix
		for k := range f.objects {
			if strings.HasPrefix(k, full) {
				keys = append(keys, k)
			}
		}
		f.mu.Unlock()
		sort.Strings(keys)

		for _, k := range keys {
			key := strings.TrimPrefix(k, bucket+"/")
			f.mu.Lock()
			size := int64(len(f.objects[k]))
			f.mu.Unlock()
			if !yield(ObjectInfo{Key: key, Size: size}, nil) {
				return
			}
		}
	}
}

func (f *Fake) Get(_ context.Context, bucket, key string, _ GetOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, cfsierrors.BlobNotFound(nil)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (f *Fake) GetStream(ctx context.Context, bucket, key string, opts GetOptions) (io.ReadCloser, error) {
	body, err := f.Get(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}
