// Package maskgen implements the mask generator driver (C4): the
// iterate/skip/threshold/bound loop shared by every mask backend. Modeled
// per §9's Design Note as a capability interface (Backend) plus a shared
// driver loop — the iteration counter and accumulator belong to the
// driver, not the backend.
package maskgen

import (
	"context"
	"fmt"
	"os"

	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/indexer"
	"github.com/GispoCoding/CFSI/internal/logging"
	"github.com/GispoCoding/CFSI/internal/planner"
)

// Backend is the capability a concrete mask core (s2cloudless, fmask)
// implements; the driver owns orchestration, the backend owns the per-tile
// computation.
type Backend interface {
	// ProductName names the mask product this backend produces, e.g.
	// "s2_level1c_s2cloudless" or "s2_level1c_fmask".
	ProductName() string
	// Compute runs the mask core for one L1C dataset, writing output
	// rasters and returning the sink input for indexer.IndexMask.
	Compute(ctx context.Context, l1c catalog.DatasetDoc) (indexer.MaskOutput, error)
}

// Config bounds a driver run.
type Config struct {
	MaxIterations     int
	MaxCloudThreshold float64
	MinCloudThreshold float64
}

// Driver runs the §4.4 loop against an injected Backend.
type Driver struct {
	Catalog catalog.Catalog
	Indexer *indexer.Indexer
	Planner planner.Planner
	Backend Backend
}

// New returns a Driver wiring the given collaborators to backend.
func New(cat catalog.Catalog, ix *indexer.Indexer, p planner.Planner, backend Backend) *Driver {
	return &Driver{Catalog: cat, Indexer: ix, Planner: p, Backend: backend}
}

// Result is the run summary returned by Run.
type Result struct {
	Produced []catalog.DatasetDoc
	Skipped  int
	Errored  int
}

// Run executes the §4.4 algorithm: select L1C candidates, apply skip and
// threshold policy per candidate, invoke the backend, index successes, and
// stop once the iteration counter exceeds maxIterations (bounded to
// min(config, |candidates|)).
func (d *Driver) Run(ctx context.Context, cfg Config) (Result, error) {
	logger := logging.Component(ctx, "maskgen."+d.Backend.ProductName())

	candidates, err := d.Catalog.Search(ctx, catalog.SearchQuery{Product: catalog.ProductS2Level1C})
	if err != nil {
		return Result{}, fmt.Errorf("searching L1C candidates: %w", err)
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 || maxIterations > len(candidates) {
		maxIterations = len(candidates)
	}

	var result Result
	i := 1
	for _, l1c := range candidates {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		s3Key, _ := l1c.Properties["s3Key"].(string)
		outDir := d.Planner.TileDir(s3Key, d.Backend.ProductName())
		if d.outputExists(outDir) {
			logger.Info("already processed, skipping", "l1c", l1c.ID, "dir", outDir)
			result.Skipped++
			continue
		}

		cloudyPct, _ := l1c.Properties["cloudyPixelPercentage"].(float64)
		if cloudyPct > cfg.MaxCloudThreshold || cloudyPct < cfg.MinCloudThreshold {
			logger.Info("threshold rejected", "l1c", l1c.ID, "cloudyPixelPercentage", cloudyPct)
			result.Skipped++
			continue
		}

		out, err := d.Backend.Compute(ctx, l1c)
		if err != nil {
			logger.Error("mask compute failed", "l1c", l1c.ID, "error", err)
			result.Errored++
			i++
			if i > maxIterations {
				break
			}
			continue
		}

		doc, err := d.Indexer.IndexMask(ctx, out)
		if err != nil {
			logger.Error("indexing mask failed", "l1c", l1c.ID, "error", err)
			result.Errored++
		} else {
			result.Produced = append(result.Produced, doc)
		}

		i++
		if i > maxIterations {
			break
		}
	}

	if len(result.Produced) == 0 {
		logger.Warn("mask run produced zero datasets", "candidates", len(candidates))
	}
	return result, nil
}

// statFn backs the skip policy's existence check; overridden in tests so
// they don't require a real filesystem.
var statFn = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (d *Driver) outputExists(dir string) bool {
	return statFn(dir)
}
