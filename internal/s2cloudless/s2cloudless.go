// Package s2cloudless implements C5: 13-band array assembly, an injected
// cloud detector, shadow projection via sun azimuth, and the NIR
// dark-pixel gate. Ported from the original's
// cfsi/scripts/masks/s2cloudless_masks.py.
package s2cloudless

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/GispoCoding/CFSI/internal/blobstore"
	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/cfsierrors"
	"github.com/GispoCoding/CFSI/internal/config"
	"github.com/GispoCoding/CFSI/internal/indexer"
	"github.com/GispoCoding/CFSI/internal/logging"
	"github.com/GispoCoding/CFSI/internal/planner"
	"github.com/GispoCoding/CFSI/internal/rasterio"
)

// CloudDetector is the injected pure function bands[H,W,13] -> cloud
// probability mask [H,W], treated as opaque per §1's explicit framing.
type CloudDetector func(bands [][][13]float64, threshold float64) ([][]uint8, error)

// Config parameterizes one Compute call.
type Config struct {
	CloudThreshold          float64
	CloudProjectionDistance float64
	DarkPixelThreshold      float64
	UseCache                bool
	RowDirection            config.RowDirection
	L1CBucket               string
	StagingDir              string
}

// canonicalBandOrder is B01, B02, ..., B12 with B8A moved to index 8,
// matching the original's "move the last sorted element to index 8" rule.
var canonicalBandOrder = []string{
	"B01", "B02", "B03", "B04", "B05", "B06", "B07", "B08", "B8A", "B09", "B10", "B11", "B12",
}

// Backend implements maskgen.Backend over Compute, wiring in the
// collaborators Compute needs.
type Backend struct {
	Blob     blobstore.BlobStore
	Raster   rasterio.RasterIO
	Planner  planner.Planner
	Detector CloudDetector
	Config   Config

	sf singleflight.Group
}

// NewBackend returns a Backend ready for maskgen.Driver to drive.
func NewBackend(blob blobstore.BlobStore, raster rasterio.RasterIO, p planner.Planner, detector CloudDetector, cfg Config) *Backend {
	return &Backend{Blob: blob, Raster: raster, Planner: p, Detector: detector, Config: cfg}
}

func (b *Backend) ProductName() string { return catalog.ProductS2Cloudless }

// Compute runs the full C5 pipeline for one L1C dataset.
func (b *Backend) Compute(ctx context.Context, l1c catalog.DatasetDoc) (indexer.MaskOutput, error) {
	array, transform, err := b.assembleArray(ctx, l1c)
	if err != nil {
		return indexer.MaskOutput{}, err
	}

	clouds, err := b.Detector(array, b.Config.CloudThreshold)
	if err != nil {
		return indexer.MaskOutput{}, cfsierrors.CloudDetectorFailed(err)
	}

	azimuth, _ := l1c.Properties["meanSunAzimuth"].(float64)
	shadows := ComputeShadowMask(array, clouds, azimuth, b.Config.CloudProjectionDistance, b.Config.DarkPixelThreshold, b.Config.RowDirection)

	s3Key, _ := l1c.Properties["s3Key"].(string)
	cloudPath := b.Planner.TilePath(s3Key, b.ProductName(), tileID(l1c), "clouds")
	shadowPath := b.Planner.TilePath(s3Key, b.ProductName(), tileID(l1c), "shadows")

	cloudBand := toBand(clouds)
	shadowBand := toBand(shadows)
	crs := l1c.CRS

	if err := b.Raster.WriteGeoTIFF(ctx, cloudPath, []rasterio.Band{cloudBand}, transform, crs, 0, rasterio.DTypeUint8, ""); err != nil {
		return indexer.MaskOutput{}, err
	}
	if err := b.Raster.WriteGeoTIFF(ctx, shadowPath, []rasterio.Band{shadowBand}, transform, crs, 0, rasterio.DTypeUint8, ""); err != nil {
		return indexer.MaskOutput{}, err
	}

	return indexer.MaskOutput{
		L1C:         l1c,
		ProductName: b.ProductName(),
		Measurements: map[string]string{
			"clouds":  "file://" + cloudPath,
			"shadows": "file://" + shadowPath,
		},
		L1CBucket: b.Config.L1CBucket,
		L2ABucket: strings.Replace(b.Config.L1CBucket, "l1c", "l2a", 1),
	}, nil
}

func tileID(doc catalog.DatasetDoc) string {
	id, _ := doc.Properties["tileId"].(string)
	if id == "" {
		return doc.ID
	}
	return id
}

// assembleArray builds the [H,W,13] normalized float array via the
// datacube path (reprojecting every band to the product's native 10m
// grid/CRS) when UseCache is false, or the cache path (staging the
// granule's .SAFE bundle and reading directly) when true.
func (b *Backend) assembleArray(ctx context.Context, l1c catalog.DatasetDoc) ([][][13]float64, [6]float64, error) {
	if b.Config.UseCache {
		return b.assembleFromCache(ctx, l1c)
	}
	return b.assembleFromDatacube(ctx, l1c)
}

func (b *Backend) assembleFromDatacube(ctx context.Context, l1c catalog.DatasetDoc) ([][][13]float64, [6]float64, error) {
	grid, ok := l1c.Grids["default"]
	if !ok {
		return nil, [6]float64{}, fmt.Errorf("l1c dataset %s has no default grid", l1c.ID)
	}
	height, width := grid.Shape[0], grid.Shape[1]
	transform := [6]float64{grid.Transform[0], grid.Transform[1], grid.Transform[2], grid.Transform[3], grid.Transform[4], grid.Transform[5]}

	array := make([][][13]float64, height)
	for r := range array {
		array[r] = make([][13]float64, width)
	}

	for i, bandName := range canonicalBandOrder {
		measurement, ok := findMeasurement(l1c, bandName)
		if !ok {
			return nil, transform, fmt.Errorf("l1c dataset %s missing measurement for band %s", l1c.ID, bandName)
		}
		pixels, err := b.Raster.Reproject(ctx, measurement.Path, 0, rasterio.ReprojectRequest{
			DstTransform: transform,
			DstCRS:       l1c.CRS,
			DstWidth:     width,
			DstHeight:    height,
			Nodata:       0,
			Resampling:   rasterio.ResamplingNearest,
		})
		if err != nil {
			return nil, transform, err
		}
		for r := 0; r < height; r++ {
			for c := 0; c < width; c++ {
				array[r][c][i] = pixels[r][c] / 10000.0
			}
		}
	}
	return array, transform, nil
}

func findMeasurement(doc catalog.DatasetDoc, bandName string) (catalog.Measurement, bool) {
	for key, m := range doc.Measurements {
		if strings.HasPrefix(key, bandName+"_") || key == bandName {
			return m, true
		}
	}
	return catalog.Measurement{}, false
}

// assembleFromCache stages the granule's .SAFE bundle locally (idempotent,
// deduplicated across concurrent workers via singleflight so the same
// tile id is only fetched once), builds the paths of its 13 B??.jp2 files
// from the canonical band names, sorts them lexically, moves B8A to index 8,
// and reprojects each to the B02 reference grid.
func (b *Backend) assembleFromCache(ctx context.Context, l1c catalog.DatasetDoc) ([][][13]float64, [6]float64, error) {
	s3Key, _ := l1c.Properties["s3Key"].(string)
	granuleDir := filepath.Join(b.Config.StagingDir, tileID(l1c))

	_, err, _ := b.sf.Do(granuleDir, func() (any, error) {
		return nil, b.stageGranule(ctx, s3Key, granuleDir)
	})
	if err != nil {
		return nil, [6]float64{}, err
	}

	files, err := listBandFiles(granuleDir)
	if err != nil {
		return nil, [6]float64{}, err
	}
	if len(files) != 13 {
		logging.From(ctx).Warn("unexpected band file count", "tile", tileID(l1c), "count", len(files))
	}
	ordered := reorderB8A(files)

	refPath := filepath.Join(granuleDir, "B02.jp2")
	ref, err := b.Raster.Open(ctx, refPath)
	if err != nil {
		return nil, [6]float64{}, err
	}
	transform := ref.Transform

	array := make([][][13]float64, ref.Height)
	for r := range array {
		array[r] = make([][13]float64, ref.Width)
	}

	for i, f := range ordered {
		pixels, err := b.Raster.Reproject(ctx, f, 0, rasterio.ReprojectRequest{
			DstTransform: transform,
			DstCRS:       ref.CRS,
			DstWidth:     ref.Width,
			DstHeight:    ref.Height,
			Nodata:       0,
			Resampling:   rasterio.ResamplingNearest,
		})
		if err != nil {
			return nil, transform, err
		}
		for r := 0; r < ref.Height; r++ {
			for c := 0; c < ref.Width; c++ {
				array[r][c][i] = pixels[r][c] / 10000.0
			}
		}
	}
	return array, transform, nil
}

func (b *Backend) stageGranule(ctx context.Context, s3Key, destDir string) error {
	for _, bandName := range canonicalBandOrder {
		destPath := filepath.Join(destDir, bandName+".jp2")
		key := s3Key + "/" + bandName + ".jp2"
		if err := blobstore.StageFile(ctx, b.Blob, b.Config.L1CBucket, key, destPath); err != nil {
			return err
		}
	}
	return nil
}

func listBandFiles(dir string) ([]string, error) {
	var files []string
	for _, bandName := range canonicalBandOrder {
		files = append(files, filepath.Join(dir, bandName+".jp2"))
	}
	sort.Strings(files)
	return files, nil
}

// reorderB8A moves the lexically-last element (B8A) to index 8, producing
// canonical S2 band order. Mirrors the original's explicit index swap.
func reorderB8A(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	last := sorted[len(sorted)-1]
	rest := append([]string(nil), sorted[:len(sorted)-1]...)
	out := make([]string, 0, len(sorted))
	out = append(out, rest[:8]...)
	out = append(out, last)
	out = append(out, rest[8:]...)
	return out
}

// ComputeShadowMask implements §4.5 steps 3-5: shadow projection by
// pixel-shifting the cloud mask along the sun-azimuth vector, gated by a
// NIR dark-pixel threshold. rowDirection resolves the acknowledged sign
// ambiguity in the original's row-shift math (§9 Open Question) rather
// than silently picking one convention.
func ComputeShadowMask(array [][][13]float64, clouds [][]uint8, azimuthDeg, projectionDistance, darkPixelThreshold float64, rowDirection config.RowDirection) [][]uint8 {
	if len(clouds) == 0 {
		return nil
	}
	height, width := len(clouds), len(clouds[0])

	azRad := azimuthDeg * math.Pi / 180
	dx := int(math.Round(math.Cos(azRad) * projectionDistance))
	dy := int(math.Round(math.Sin(azRad) * projectionDistance))
	if rowDirection == config.RowDirectionSouthUp {
		dy = -dy
	}

	shifted := shiftWithBorder(clouds, dx, dy, height, width)

	out := make([][]uint8, height)
	for r := 0; r < height; r++ {
		out[r] = make([]uint8, width)
		for c := 0; c < width; c++ {
			nir := array[r][c][7]
			dark := nir <= darkPixelThreshold
			isShadow := clouds[r][c] == 0 && shifted[r][c] == 1 && dark
			if isShadow {
				out[r][c] = 1
			}
		}
	}
	return out
}

// shiftWithBorder pads clouds with a border of value 2 (so "outside the
// image" never matches the shadow-candidate value 1) and slices it by
// (dy, dx), per §4.5 step 3's pad-then-slice rule.
func shiftWithBorder(clouds [][]uint8, dx, dy, height, width int) [][]uint8 {
	out := make([][]uint8, height)
	for r := range out {
		out[r] = make([]uint8, width)
	}

	for r := 0; r < height; r++ {
		srcR := r + dy
		if srcR < 0 || srcR >= height {
			for c := range out[r] {
				out[r][c] = 2
			}
			continue
		}
		for c := 0; c < width; c++ {
			srcC := c + dx
			if srcC < 0 || srcC >= width {
				out[r][c] = 2
				continue
			}
			out[r][c] = clouds[srcR][srcC]
		}
	}
	return out
}

func toBand(mask [][]uint8) rasterio.Band {
	band := make(rasterio.Band, len(mask))
	for r, row := range mask {
		band[r] = make([]float64, len(row))
		for c, v := range row {
			band[r][c] = float64(v)
		}
	}
	return band
}
