// Package indexer implements C3: crawling the object store, parsing tile
// metadata, deduplicating by id, and writing normalized DatasetDocs to the
// catalog. Concurrency follows a single lister goroutine feeding a bounded
// channel of keys, with a dispatcher goroutine spawning one errgroup.Group
// goroutine per key, gated by a semaphore.Weighted permit so at most
// cfg.Workers run concurrently — termination is channel-close, not the
// sentinel value the original Python queue used (§9 Design Note).
package indexer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/GispoCoding/CFSI/internal/blobstore"
	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/cfsierrors"
	"github.com/GispoCoding/CFSI/internal/logging"
	"github.com/GispoCoding/CFSI/internal/metadata"
	"github.com/GispoCoding/CFSI/internal/planner"
)

// Config parameterizes a crawl.
type Config struct {
	Buckets    []string
	Grids      []string
	Years      []int
	Months     []int
	Workers    int
	ExcludeB10 bool
	// IdleTimeout turns a stalled key channel into graceful shutdown,
	// mirroring the ~60s poll timeout in §5.
	IdleTimeout time.Duration
}

// Summary is the run-report emitted after a crawl, reported to both slog
// and (if running) the diagnostics HTTP server's run registry.
type Summary struct {
	Listed   int
	Added    int
	Skipped  int
	Errored  int
	Elapsed  time.Duration
}

// Indexer crawls configured prefixes and materializes DatasetDocs.
type Indexer struct {
	Blob    blobstore.BlobStore
	Catalog catalog.Catalog
}

// New returns an Indexer over the given collaborators.
func New(blob blobstore.BlobStore, cat catalog.Catalog) *Indexer {
	return &Indexer{Blob: blob, Catalog: cat}
}

// Prefixes generates tiles/{g[0:2]}/{g[2:3]}/{g[3:]}/{y}/{m} for every
// (grid, year, month) triple in cfg, per §4.3.
func Prefixes(cfg Config) []string {
	var prefixes []string
	for _, g := range cfg.Grids {
		if len(g) < 4 {
			continue
		}
		zone, band, square := g[0:2], g[2:3], g[3:]
		for _, y := range cfg.Years {
			for _, m := range cfg.Months {
				prefixes = append(prefixes, fmt.Sprintf("tiles/%s/%s/%s/%d/%d", zone, band, square, y, m))
			}
		}
	}
	return prefixes
}

// Crawl runs the full C3 pipeline over cfg: a single lister goroutine walks
// every bucket and feeds a shared buffered channel of (bucket, key) pairs; a
// dispatcher starts one goroutine per key, at most cfg.Workers at a time,
// each parsing metadata, building a DatasetDoc, and upserting it into the
// catalog.
func (ix *Indexer) Crawl(ctx context.Context, cfg Config) (Summary, error) {
	start := time.Now()
	logger := logging.Component(ctx, "indexer")

	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}

	type job struct {
		bucket string
		key    string
	}

	keys := make(chan job, workers*4)
	var (
		summaryMu sync.Mutex
		summary   Summary
	)
	addToSummary := func(fn func(*Summary)) {
		summaryMu.Lock()
		fn(&summary)
		summaryMu.Unlock()
	}

	group, gctx := errgroup.WithContext(ctx)

	// Lister: one goroutine that walks every bucket and every generated
	// prefix, filtering to metadata.xml keys, and feeding the shared
	// channel. Closes the channel once every bucket/prefix has been
	// listed (or the context is cancelled).
	group.Go(func() error {
		defer close(keys)
		prefixes := Prefixes(cfg)
		for _, bucket := range cfg.Buckets {
			for _, prefix := range prefixes {
				for info, err := range ix.Blob.List(gctx, bucket, prefix, blobstore.GetOptions{RequesterPays: true}) {
					if err != nil {
						logger.Warn("listing failed", "bucket", bucket, "prefix", prefix, "error", err)
						continue
					}
					if !strings.HasSuffix(info.Key, "metadata.xml") {
						continue
					}
					addToSummary(func(s *Summary) { s.Listed++ })
					select {
					case keys <- job{bucket: bucket, key: info.Key}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
		}
		return nil
	})

	// Dispatcher: for every listed key, acquire a permit and spawn its
	// processing as its own errgroup goroutine, so semaphore.Weighted
	// directly bounds concurrent per-tile work (at most `workers` processKey
	// calls in flight at once) instead of merely mirroring a fixed pool size.
	sem := semaphore.NewWeighted(int64(workers))
	group.Go(func() error {
		for {
			select {
			case j, ok := <-keys:
				if !ok {
					return nil
				}
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				group.Go(func() error {
					defer sem.Release(1)
					added, err := ix.processKey(gctx, cfg, j.bucket, j.key)
					if err != nil {
						if errorsIsCancelled(err) {
							return err
						}
						logger.Warn("processing key failed", "bucket", j.bucket, "key", j.key, "error", err)
						addToSummary(func(s *Summary) { s.Errored++ })
						return nil
					}
					if added {
						addToSummary(func(s *Summary) { s.Added++ })
					} else {
						addToSummary(func(s *Summary) { s.Skipped++ })
					}
					return nil
				})
			case <-time.After(idleTimeout):
				logger.Info("idle timeout reached, shutting down crawl")
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	err := group.Wait()
	summary.Elapsed = time.Since(start)
	if err != nil && !errorsIsCancelled(err) {
		return summary, err
	}
	return summary, nil
}

func errorsIsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// processKey indexes a single metadata.xml key, reporting whether it added
// (or updated) a new DatasetDoc as opposed to skipping an already-catalogued
// one, so the caller can tally Summary.Added vs Summary.Skipped correctly.
func (ix *Indexer) processKey(ctx context.Context, cfg Config, bucket, key string) (bool, error) {
	uri := fmt.Sprintf("s3://%s/%s", bucket, path.Dir(key))
	id := catalog.IDFromURI(uri)

	exists, err := ix.Catalog.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("checking existence of %s: %w", id, err)
	}
	if exists {
		return false, nil
	}

	raw, err := ix.Blob.Get(ctx, bucket, key, blobstore.GetOptions{RequesterPays: true})
	if err != nil {
		return false, err
	}

	tile, err := metadata.Parse(raw)
	if err != nil {
		return false, err
	}

	doc, err := BuildDatasetDoc(uri, bucket, key, tile, cfg.ExcludeB10)
	if err != nil {
		return false, err
	}

	if err := ix.Catalog.Add(ctx, doc); err != nil {
		if errors.Is(err, cfsierrors.ErrDocumentMismatch) {
			if err := ix.Catalog.Update(ctx, doc); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// BuildDatasetDoc constructs a DatasetDoc for a freshly crawled granule,
// following §4.3's per-key processing rules: productName by bucket,
// measurements from the product-specific band list, absolute .jp2 paths,
// grid "default" for 10m bands and "20m"/"60m" otherwise.
func BuildDatasetDoc(uri, bucket, key string, tile metadata.TileMeta, excludeB10 bool) (catalog.DatasetDoc, error) {
	productName := ProductName(bucket)
	if productName == "" {
		return catalog.DatasetDoc{}, fmt.Errorf("unrecognized bucket %q", bucket)
	}

	doc := catalog.NewDoc(uri, productName)
	doc.CRS = tile.CRSCode

	for res, grid := range tile.Grids {
		label := gridLabel(res)
		doc.Grids[label] = catalog.Grid{
			Shape:     [2]int{grid.NRows, grid.NCols},
			Transform: grid.Affine(),
		}
	}

	for _, m := range MeasurementNames(bucket, excludeB10) {
		bandName, gridLbl := bandNameAndGrid(m)
		doc.Measurements[bandName+"_"+gridLbl] = catalog.Measurement{
			Path: uri + "/" + bandName + ".jp2",
			Grid: gridLbl,
		}
	}

	region, _ := planner.RegionCode(key)
	doc.Properties = map[string]any{
		"tileId":                tile.TileID,
		"datetime":              tile.SensingTime,
		"meanSunAzimuth":        tile.SunAzimuth,
		"meanSunZenith":         tile.SunZenith,
		"cloudyPixelPercentage": tile.CloudyPixelPercentage,
		"regionCode":            region,
		"s3Key":                 path.Dir(key),
	}
	return doc, nil
}

func gridLabel(res metadata.Resolution) string {
	switch res {
	case metadata.Res10m:
		return "default"
	default:
		return strconv.Itoa(int(res)) + "m"
	}
}
