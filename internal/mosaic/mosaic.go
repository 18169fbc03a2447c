// Package mosaic implements C7: joining mask and L2A catalog records,
// applying a clear-pixel predicate, and reducing a time stack into a
// most-recent-clear composite with an auxiliary recency band. Ported from
// the original's cfsi/scripts/mosaic/mosaic.py MosaicCreator.
package mosaic

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/cfsierrors"
	"github.com/GispoCoding/CFSI/internal/config"
	"github.com/GispoCoding/CFSI/internal/fmask"
	"github.com/GispoCoding/CFSI/internal/indexer"
	"github.com/GispoCoding/CFSI/internal/logging"
	"github.com/GispoCoding/CFSI/internal/planner"
	"github.com/GispoCoding/CFSI/internal/rasterio"
)

// Request parameterizes one Creator.Create call.
type Request struct {
	MaskProduct string
	EndDate     time.Time
	WindowDays  int
	OutputBands []string
	Recentness  config.Recentness
	L1CBucket   string
	L2ABucket   string
}

// Creator runs the §4.7 pipeline.
type Creator struct {
	Catalog catalog.Catalog
	Raster  rasterio.RasterIO
	Indexer *indexer.Indexer
	Planner planner.Planner
}

// New returns a Creator wiring the given collaborators.
func New(cat catalog.Catalog, raster rasterio.RasterIO, ix *indexer.Indexer, p planner.Planner) *Creator {
	return &Creator{Catalog: cat, Raster: raster, Indexer: ix, Planner: p}
}

// maskedDataset pairs a mask DatasetDoc with its resolved L2A counterpart.
type maskedDataset struct {
	mask    catalog.DatasetDoc
	l2a     catalog.DatasetDoc
	dateKey time.Time
}

// Create runs the full mosaic pipeline and returns the indexed mosaic
// DatasetDoc.
func (c *Creator) Create(ctx context.Context, req Request) (catalog.DatasetDoc, error) {
	logger := logging.Component(ctx, "mosaic")

	datasets, err := c.selectMasks(ctx, req)
	if err != nil {
		return catalog.DatasetDoc{}, err
	}
	if len(datasets) == 0 {
		return catalog.DatasetDoc{}, cfsierrors.ErrNoMasks
	}

	pairs := c.resolveL2APairs(ctx, datasets, req, logger)
	if len(pairs) == 0 {
		return catalog.DatasetDoc{}, cfsierrors.ErrNoMasks
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dateKey.Before(pairs[j].dateKey) })

	bands := map[string]rasterio.Band{}
	recency := map[string]rasterio.Band{}
	var transform [6]float64
	var crs string
	var grid catalog.Grid

	for _, bandName := range req.OutputBands {
		stack, clearStack, shape, tf, bandCRS, err := c.loadBandStack(ctx, pairs, bandName, req.MaskProduct)
		if err != nil {
			return catalog.DatasetDoc{}, err
		}
		transform, crs = tf, bandCRS
		grid = catalog.Grid{Shape: shape, Transform: [9]float64{tf[0], tf[1], tf[2], tf[3], tf[4], tf[5], 0, 0, 1}}

		out, rec := Reduce(stack, clearStack, dateKeys(pairs))
		bands[bandName] = out
		if req.Recentness != config.RecentnessNone {
			recency[bandName] = rec
		}
	}

	if req.Recentness == config.RecentnessShared && len(req.OutputBands) > 0 {
		shared := recency[req.OutputBands[0]]
		recency = map[string]rasterio.Band{"recency": shared}
	}

	outputPath := c.mosaicOutputPath(req)

	writeBands := make([]rasterio.Band, 0, len(req.OutputBands)+len(recency))
	bandPaths := map[string]string{}
	for _, bandName := range req.OutputBands {
		writeBands = append(writeBands, bands[bandName])
		bandPaths[bandName] = "file://" + outputPath
	}
	for name, band := range recency {
		writeBands = append(writeBands, band)
		bandPaths[name] = "file://" + outputPath
	}

	if err := c.Raster.WriteGeoTIFF(ctx, outputPath, writeBands, transform, crs, 0, rasterio.DTypeUint16, ""); err != nil {
		return catalog.DatasetDoc{}, err
	}
	if err := c.Raster.BuildOverviews(ctx, outputPath, []int{2, 4, 8, 16, 32}, rasterio.ResamplingNearest); err != nil {
		return catalog.DatasetDoc{}, err
	}

	properties := map[string]any{
		"datetime":   req.EndDate,
		"windowDays": req.WindowDays,
	}
	return c.Indexer.IndexMosaic(ctx, req.MaskProduct, outputPath, grid, crs, bandPaths, properties)
}

func dateKeys(pairs []maskedDataset) []time.Time {
	out := make([]time.Time, len(pairs))
	for i, p := range pairs {
		out[i] = p.dateKey
	}
	return out
}

// selectMasks implements §4.7 step 1: search the catalog for maskProduct
// datasets within [endDate-windowDays, endDate].
func (c *Creator) selectMasks(ctx context.Context, req Request) ([]catalog.DatasetDoc, error) {
	after := req.EndDate.AddDate(0, 0, -req.WindowDays)
	docs, err := c.Catalog.Search(ctx, catalog.SearchQuery{
		Product: req.MaskProduct,
		After:   after,
		Before:  req.EndDate,
	})
	if err != nil {
		return nil, fmt.Errorf("searching masks for %s: %w", req.MaskProduct, err)
	}
	return docs, nil
}

// resolveL2APairs implements §4.7 step 2: resolve each mask's L2A
// counterpart via properties.l2aDatasetId first, falling back to a
// swapped-bucket URI search; masks that resolve neither are logged and
// skipped, not treated as an error (Testable Property #5).
func (c *Creator) resolveL2APairs(ctx context.Context, docs []catalog.DatasetDoc, req Request, logger interface {
	Info(string, ...any)
	Warn(string, ...any)
}) []maskedDataset {
	var pairs []maskedDataset
	for _, mask := range docs {
		l2a, usedFallback, ok := c.resolveOne(ctx, mask, req)
		if !ok {
			logger.Warn("mask has no resolvable L2A pair, skipping", "mask", mask.ID)
			continue
		}
		if usedFallback {
			logger.Info("resolved L2A pair via swapped-bucket fallback", "mask", mask.ID, "l2a", l2a.ID)
		}
		dt, _ := mask.Properties["datetime"].(time.Time)
		pairs = append(pairs, maskedDataset{mask: mask, l2a: l2a, dateKey: dt})
	}
	return pairs
}

func (c *Creator) resolveOne(ctx context.Context, mask catalog.DatasetDoc, req Request) (l2a catalog.DatasetDoc, usedFallback bool, ok bool) {
	if id, ok := mask.Properties["l2aDatasetId"].(string); ok && id != "" {
		doc, err := c.Catalog.Get(ctx, id)
		if err == nil {
			return doc, false, true
		}
	}

	l1cURI, _ := mask.Properties["l1cUri"].(string)
	if l1cURI == "" {
		l1cURI = mask.URI
	}
	swapped, err := planner.SwapBucket(l1cURI, req.L1CBucket, req.L2ABucket)
	if err != nil {
		return catalog.DatasetDoc{}, false, false
	}
	matches, err := c.Catalog.Search(ctx, catalog.SearchQuery{Product: catalog.ProductS2Sen2Cor, URI: swapped, Limit: 1})
	if err != nil || len(matches) == 0 {
		return catalog.DatasetDoc{}, false, false
	}
	return matches[0], true, true
}

func (c *Creator) mosaicOutputPath(req Request) string {
	for n := 0; ; n++ {
		path := c.Planner.MosaicPath(req.EndDate.Format("2006-01-02"), req.MaskProduct, n)
		if !c.pathExists(path) {
			return path
		}
	}
}

// pathExistsFn reports whether a file already exists at path on the local
// filesystem; it is a package variable so tests can replace it.
var pathExistsFn = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Creator) pathExists(path string) bool { return pathExistsFn(path) }

// loadBandStack loads the L2A band and mask bands for every pair, applies
// the clear predicate (§4.7 step 4), and returns the masked time-indexed
// stack alongside a parallel clear-boolean stack.
func (c *Creator) loadBandStack(ctx context.Context, pairs []maskedDataset, bandName, maskProduct string) (stack []rasterio.Band, clear [][]bool, shape [2]int, transform [6]float64, crs string, err error) {
	for _, p := range pairs {
		measurement, ok := findMeasurement(p.l2a, bandName)
		if !ok {
			return nil, nil, shape, transform, crs, fmt.Errorf("l2a dataset %s missing band %s", p.l2a.ID, bandName)
		}
		info, err := c.Raster.Open(ctx, measurement.Path)
		if err != nil {
			return nil, nil, shape, transform, crs, err
		}
		band, err := c.Raster.Read(ctx, measurement.Path, 0)
		if err != nil {
			return nil, nil, shape, transform, crs, err
		}

		clearMask, err := c.clearPredicate(ctx, p.mask, maskProduct, info.Height, info.Width)
		if err != nil {
			return nil, nil, shape, transform, crs, err
		}

		shape = [2]int{info.Height, info.Width}
		transform = info.Transform
		crs = info.CRS
		stack = append(stack, band)
		clear = append(clear, flattenClear(clearMask))
	}
	return stack, clear, shape, transform, crs, nil
}

func findMeasurement(doc catalog.DatasetDoc, bandName string) (catalog.Measurement, bool) {
	for key, m := range doc.Measurements {
		if key == bandName || hasPrefix(key, bandName+"_") {
			return m, true
		}
	}
	return catalog.Measurement{}, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// clearPredicate implements §4.7 step 4's two clear rules.
func (c *Creator) clearPredicate(ctx context.Context, mask catalog.DatasetDoc, maskProduct string, height, width int) ([][]bool, error) {
	clear := make([][]bool, height)
	for r := range clear {
		clear[r] = make([]bool, width)
	}

	switch maskProduct {
	case catalog.ProductS2Cloudless:
		cloudsM, ok1 := findMeasurement(mask, "clouds")
		shadowsM, ok2 := findMeasurement(mask, "shadows")
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("s2cloudless mask %s missing clouds/shadows measurement", mask.ID)
		}
		clouds, err := c.Raster.Read(ctx, cloudsM.Path, 0)
		if err != nil {
			return nil, err
		}
		shadows, err := c.Raster.Read(ctx, shadowsM.Path, 0)
		if err != nil {
			return nil, err
		}
		for r := 0; r < height && r < len(clouds); r++ {
			for col := 0; col < width && col < len(clouds[r]); col++ {
				clear[r][col] = clouds[r][col] == 0 && shadows[r][col] == 0
			}
		}
	case catalog.ProductFmask:
		fm, ok := findMeasurement(mask, "fmask")
		if !ok {
			return nil, fmt.Errorf("fmask dataset %s missing fmask measurement", mask.ID)
		}
		classes, err := c.Raster.Read(ctx, fm.Path, 0)
		if err != nil {
			return nil, err
		}
		for r := 0; r < height && r < len(classes); r++ {
			for col := 0; col < width && col < len(classes[r]); col++ {
				clear[r][col] = fmask.IsClear(int(classes[r][col]))
			}
		}
	default:
		return nil, fmt.Errorf("unrecognized mask product %q", maskProduct)
	}
	return clear, nil
}

func flattenClear(clear [][]bool) []bool {
	var out []bool
	for _, row := range clear {
		out = append(out, row...)
	}
	return out
}
