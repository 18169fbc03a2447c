// Package rasterio defines the pluggable raster I/O collaborator (C1) and
// its GDAL-backed implementation via github.com/airbusgeo/godal, grounded
// on the teacher's cmd/import-elevation godal usage.
package rasterio

import "context"

// Resampling selects a GDAL resampling algorithm for reprojection and
// overview building.
type Resampling string

const (
	ResamplingNearest  Resampling = "nearest"
	ResamplingBilinear Resampling = "bilinear"
	ResamplingCubic    Resampling = "cubic"
)

// DType is the pixel data type of a raster band.
type DType string

const (
	DTypeFloat64 DType = "float64"
	DTypeUint16  DType = "uint16"
	DTypeUint8   DType = "uint8"
)

// DatasetInfo describes an opened raster's geometry.
type DatasetInfo struct {
	Transform [6]float64
	CRS       string
	Width     int
	Height    int
	BandCount int
	DType     DType
}

// Band is a single decoded band's pixel values, row-major, shape
// [Height][Width].
type Band [][]float64

// ReprojectRequest parameterizes RasterIO.Reproject.
type ReprojectRequest struct {
	DstTransform [6]float64
	DstCRS       string
	DstWidth     int
	DstHeight    int
	Nodata       float64
	Resampling   Resampling
}

// RasterIO is the pluggable raster codec collaborator (C1). All paths are
// either local filesystem paths or /vsis3/-style GDAL virtual paths;
// callers resolve which via the planner (C8).
type RasterIO interface {
	Open(ctx context.Context, path string) (DatasetInfo, error)
	Read(ctx context.Context, path string, band int) (Band, error)
	Reproject(ctx context.Context, path string, band int, req ReprojectRequest) (Band, error)
	WriteGeoTIFF(ctx context.Context, path string, bands []Band, transform [6]float64, crs string, nodata float64, dtype DType, compression string) error
	BuildOverviews(ctx context.Context, path string, levels []int, resampling Resampling) error
}
