package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

// Fake is an in-memory Catalog for unit tests, guarded by a mutex so it can
// back concurrency tests for the indexer's worker pool.
type Fake struct {
	mu   sync.Mutex
	docs map[string]DatasetDoc

	AddCalls    int
	UpdateCalls int
}

// NewFake returns an empty Fake catalog.
func NewFake() *Fake {
	return &Fake{docs: map[string]DatasetDoc{}}
}

func (f *Fake) Get(_ context.Context, id string) (DatasetDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return DatasetDoc{}, cfsierrors.ErrCatalogNotFound
	}
	return doc, nil
}

func (f *Fake) Search(_ context.Context, q SearchQuery) ([]DatasetDoc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []DatasetDoc
	for _, doc := range f.docs {
		if q.Product != "" && doc.ProductName != q.Product {
			continue
		}
		if q.URI != "" && doc.URI != q.URI {
			continue
		}
		if dt, ok := doc.Properties["datetime"].(time.Time); ok {
			if !q.After.IsZero() && dt.Before(q.After) {
				continue
			}
			if !q.Before.IsZero() && dt.After(q.Before) {
				continue
			}
		}
		out = append(out, doc)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *Fake) Add(_ context.Context, doc DatasetDoc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.docs[doc.ID]; ok && existing.URI != doc.URI {
		return cfsierrors.DocumentMismatch(nil)
	}
	if _, ok := f.docs[doc.ID]; ok {
		return cfsierrors.ErrDocumentMismatch
	}
	f.docs[doc.ID] = doc
	f.AddCalls++
	return nil
}

func (f *Fake) Update(_ context.Context, doc DatasetDoc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	f.UpdateCalls++
	return nil
}

func (f *Fake) Exists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[id]
	return ok, nil
}
