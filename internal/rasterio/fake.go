package rasterio

import (
	"context"
	"fmt"
	"sync"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

// Fake is an in-memory RasterIO for unit tests: datasets are registered by
// path ahead of time via Put, and Reproject is a no-op resample (nearest
// via simple index scaling) so shape/geometry invariants can be asserted
// without a real GDAL dependency.
type Fake struct {
	mu       sync.Mutex
	datasets map[string]fakeDataset
	written  map[string]writtenFile
}

type fakeDataset struct {
	info  DatasetInfo
	bands []Band
}

// writtenFile captures a WriteGeoTIFF call for test assertions.
type writtenFile struct {
	Bands     []Band
	Transform [6]float64
	CRS       string
	Nodata    float64
	DType     DType
}

// NewFake returns an empty Fake raster collaborator.
func NewFake() *Fake {
	return &Fake{datasets: map[string]fakeDataset{}, written: map[string]writtenFile{}}
}

// Put registers a dataset at path for Open/Read/Reproject to serve.
func (f *Fake) Put(path string, info DatasetInfo, bands []Band) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datasets[path] = fakeDataset{info: info, bands: bands}
}

// Written returns the first band of the last write to path, for test
// assertions.
func (f *Fake) Written(path string) (Band, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.written[path]
	if !ok || len(w.Bands) == 0 {
		return nil, false
	}
	return w.Bands[0], true
}

func (f *Fake) Open(_ context.Context, path string) (DatasetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.datasets[path]
	if !ok {
		return DatasetInfo{}, cfsierrors.RasterIOFailed(fmt.Errorf("fake: no dataset registered at %s", path))
	}
	return ds.info, nil
}

func (f *Fake) Read(_ context.Context, path string, band int) (Band, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.datasets[path]
	if !ok || band < 0 || band >= len(ds.bands) {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("fake: no band %d at %s", band, path))
	}
	return ds.bands[band], nil
}

// Reproject returns the requested band resampled to DstWidth/DstHeight by
// nearest-neighbor index scaling, sufficient for exercising shape/CRS
// propagation in tests without real warp math.
func (f *Fake) Reproject(_ context.Context, path string, band int, req ReprojectRequest) (Band, error) {
	f.mu.Lock()
	ds, ok := f.datasets[path]
	f.mu.Unlock()
	if !ok || band < 0 || band >= len(ds.bands) {
		return nil, cfsierrors.RasterIOFailed(fmt.Errorf("fake: no band %d at %s", band, path))
	}
	src := ds.bands[band]
	srcH, srcW := len(src), 0
	if srcH > 0 {
		srcW = len(src[0])
	}

	out := make(Band, req.DstHeight)
	for r := 0; r < req.DstHeight; r++ {
		out[r] = make([]float64, req.DstWidth)
		sr := r * srcH / max(req.DstHeight, 1)
		if sr >= srcH {
			sr = srcH - 1
		}
		for c := 0; c < req.DstWidth; c++ {
			sc := c * srcW / max(req.DstWidth, 1)
			if sc >= srcW {
				sc = srcW - 1
			}
			if srcH == 0 || srcW == 0 {
				out[r][c] = req.Nodata
				continue
			}
			out[r][c] = src[sr][sc]
		}
	}
	return out, nil
}

func (f *Fake) WriteGeoTIFF(_ context.Context, path string, bands []Band, transform [6]float64, crs string, nodata float64, dtype DType, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[path] = writtenFile{Bands: bands, Transform: transform, CRS: crs, Nodata: nodata, DType: dtype}
	return nil
}

func (f *Fake) BuildOverviews(_ context.Context, path string, _ []int, _ Resampling) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.written[path]; !ok {
		return cfsierrors.RasterIOFailed(fmt.Errorf("fake: BuildOverviews on unwritten path %s", path))
	}
	return nil
}
