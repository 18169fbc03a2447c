package rasterio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
	"github.com/GispoCoding/CFSI/internal/logging"
)

// gdalMu serializes all GDAL calls: libgdal carries internal global state
// that is not safe for concurrent access across goroutines, matching the
// teacher's gdalMu in cmd/import-elevation.
var gdalMu sync.Mutex

var registerOnce sync.Once

// GDALRasterIO implements RasterIO over godal.
type GDALRasterIO struct{}

// NewGDALRasterIO registers all GDAL drivers (once per process, regardless
// of how many GDALRasterIO values are constructed) and returns a ready
// instance.
func NewGDALRasterIO() *GDALRasterIO {
	registerOnce.Do(godal.RegisterAll)
	return &GDALRasterIO{}
}

func (g *GDALRasterIO) Open(ctx context.Context, path string) (DatasetInfo, error) {
	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(path)
	if err != nil {
		return DatasetInfo{}, cfsierrors.RasterIOFailed(fmt.Errorf("opening %s: %w", path, err))
	}
	defer ds.Close()

	structure := ds.Structure()
	transform, err := ds.GeoTransform()
	if err != nil {
		return DatasetInfo{}, cfsierrors.RasterIOFailed(fmt.Errorf("reading geotransform for %s: %w", path, err))
	}

	return DatasetInfo{
		Transform: transform,
		CRS:       ds.Projection(),
		Width:     structure.SizeX,
		Height:    structure.SizeY,
		BandCount: len(ds.Bands()),
		DType:     DTypeFloat64,
	}, nil
}

func (g *GDALRasterIO) Read(ctx context.Context, path string, band int) (Band, error) {
	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("opening %s: %w", path, err))
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 0 || band >= len(bands) {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("band index %d out of range for %s (%d bands)", band, path, len(bands)))
	}
	structure := ds.Structure()

	buf := make([]float64, structure.SizeX*structure.SizeY)
	if err := bands[band].Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("reading band %d of %s: %w", band, path, err))
	}

	return toBand(buf, structure.SizeX, structure.SizeY), nil
}

func (g *GDALRasterIO) Reproject(ctx context.Context, path string, band int, req ReprojectRequest) (Band, error) {
	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("opening %s: %w", path, err))
	}
	defer ds.Close()

	warped, err := ds.Warp("", []string{
		"-t_srs", req.DstCRS,
		"-ts", fmt.Sprintf("%d", req.DstWidth), fmt.Sprintf("%d", req.DstHeight),
		"-r", string(req.Resampling),
		"-dstnodata", fmt.Sprintf("%f", req.Nodata),
	})
	if err != nil {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("reprojecting %s: %w", path, err))
	}
	defer warped.Close()

	bands := warped.Bands()
	if band < 0 || band >= len(bands) {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("band index %d out of range after reproject of %s", band, path))
	}

	buf := make([]float64, req.DstWidth*req.DstHeight)
	if err := bands[band].Read(0, 0, buf, req.DstWidth, req.DstHeight); err != nil {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("reading reprojected band %d of %s: %w", band, path, err))
	}

	return toBand(buf, req.DstWidth, req.DstHeight), nil
}

// WriteGeoTIFF writes bands to path via a temp-path-then-rename sequence,
// satisfying the Lifecycle invariant in §3 that output rasters are never
// rewritten in place.
func (g *GDALRasterIO) WriteGeoTIFF(ctx context.Context, path string, bands []Band, transform [6]float64, crs string, nodata float64, dtype DType, compression string) error {
	if len(bands) == 0 {
		return cfsierrors.RasterIOFailed(fmt.Errorf("WriteGeoTIFF %s: no bands given", path))
	}

	gdalMu.Lock()
	defer gdalMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cfsierrors.RasterIOFailed(fmt.Errorf("creating output dir for %s: %w", path, err))
	}

	height := len(bands[0])
	width := 0
	if height > 0 {
		width = len(bands[0][0])
	}

	tmp := path + ".tmp.tif"
	creationOpts := []string{}
	if compression != "" {
		creationOpts = append(creationOpts, "COMPRESS="+compression)
	}

	ds, err := godal.Create(godal.GTiff, tmp, len(bands), gdalDType(dtype), width, height, godal.CreationOption(creationOpts...))
	if err != nil {
		return cfsierrors.RasterIOFailed(fmt.Errorf("creating %s: %w", tmp, err))
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(transform); err != nil {
		return cfsierrors.RasterIOFailed(fmt.Errorf("setting geotransform on %s: %w", tmp, err))
	}
	if err := ds.SetProjection(crs); err != nil {
		return cfsierrors.RasterIOFailed(fmt.Errorf("setting projection on %s: %w", tmp, err))
	}

	dsBands := ds.Bands()
	for i, band := range bands {
		flat := fromBand(band)
		if err := dsBands[i].SetNoData(nodata); err != nil {
			return cfsierrors.RasterIOFailed(fmt.Errorf("setting nodata on band %d of %s: %w", i, tmp, err))
		}
		if err := dsBands[i].Write(0, 0, flat, width, height); err != nil {
			return cfsierrors.RasterIOFailed(fmt.Errorf("writing band %d of %s: %w", i, tmp, err))
		}
	}
	ds.Close()

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cfsierrors.RasterIOFailed(fmt.Errorf("renaming %s to %s: %w", tmp, path, err))
	}

	logging.From(ctx).Debug("wrote geotiff", "path", path, "bands", len(bands), "width", width, "height", height)
	return nil
}

func (g *GDALRasterIO) BuildOverviews(ctx context.Context, path string, levels []int, resampling Resampling) error {
	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(path, godal.Update)
	if err != nil {
		return cfsierrors.RasterIOFailed(fmt.Errorf("opening %s for overviews: %w", path, err))
	}
	defer ds.Close()

	if err := ds.BuildOverviews(godal.Resampling(string(resampling)), godal.Levels(levels...)); err != nil {
		return cfsierrors.RasterIOFailed(fmt.Errorf("building overviews for %s: %w", path, err))
	}
	return nil
}

func gdalDType(d DType) godal.DataType {
	switch d {
	case DTypeUint8:
		return godal.Byte
	case DTypeUint16:
		return godal.UInt16
	default:
		return godal.Float64
	}
}

func toBand(flat []float64, width, height int) Band {
	b := make(Band, height)
	for r := 0; r < height; r++ {
		b[r] = flat[r*width : (r+1)*width]
	}
	return b
}

func fromBand(b Band) []float64 {
	if len(b) == 0 {
		return nil
	}
	width := len(b[0])
	flat := make([]float64, 0, len(b)*width)
	for _, row := range b {
		flat = append(flat, row...)
	}
	return flat
}
