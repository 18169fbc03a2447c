package mosaic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/config"
	"github.com/GispoCoding/CFSI/internal/indexer"
	"github.com/GispoCoding/CFSI/internal/planner"
	"github.com/GispoCoding/CFSI/internal/rasterio"
)

func newFixture(t *testing.T) (*Creator, *catalog.Fake, *rasterio.Fake) {
	t.Helper()
	cat := catalog.NewFake()
	raster := rasterio.NewFake()
	ix := indexer.New(nil, cat)
	p := planner.New(t.TempDir(), "", "")
	return New(cat, raster, ix, p), cat, raster
}

func seedPair(t *testing.T, cat *catalog.Fake, raster *rasterio.Fake, date time.Time, cloudy bool) (mask, l2a catalog.DatasetDoc) {
	t.Helper()
	ctx := context.Background()

	l2a = catalog.NewDoc("s3://sentinel-s2-l2a/tiles/35/P/PM/"+date.Format("20060102"), catalog.ProductS2Sen2Cor)
	l2a.Measurements["B04_default"] = catalog.Measurement{Path: "l2a-" + date.Format("20060102") + "-B04", Grid: "default"}
	require.NoError(t, cat.Add(ctx, l2a))
	raster.Put(l2a.Measurements["B04_default"].Path, rasterio.DatasetInfo{Width: 1, Height: 1, CRS: "EPSG:32635"}, []rasterio.Band{{{100}}})

	mask = catalog.NewDoc("s3://sentinel-s2-l1c/tiles/35/P/PM/"+date.Format("20060102")+"/fmask", catalog.ProductFmask)
	mask.Properties["datetime"] = date
	mask.Properties["l2aDatasetId"] = l2a.ID
	mask.Measurements["fmask_default"] = catalog.Measurement{Path: "mask-" + date.Format("20060102"), Grid: "default"}
	clearClass := 1.0 // fmask.ClassClearLand
	if cloudy {
		clearClass = 2.0
	}
	raster.Put(mask.Measurements["fmask_default"].Path, rasterio.DatasetInfo{Width: 1, Height: 1}, []rasterio.Band{{{clearClass}}})
	require.NoError(t, cat.Add(ctx, mask))
	return mask, l2a
}

func TestCreateProducesMosaicFromClearestObservation(t *testing.T) {
	creator, cat, raster := newFixture(t)
	ctx := context.Background()

	base := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	seedPair(t, cat, raster, base, false)
	seedPair(t, cat, raster, base.AddDate(0, 0, 1), false)

	req := Request{
		MaskProduct: catalog.ProductFmask,
		EndDate:     base.AddDate(0, 0, 2),
		WindowDays:  30,
		OutputBands: []string{"B04"},
		Recentness:  config.RecentnessNone,
		L1CBucket:   "sentinel-s2-l1c",
		L2ABucket:   "sentinel-s2-l2a",
	}
	doc, err := creator.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "s2_level1c_fmask_mosaic", doc.ProductName)

	written, ok := raster.Written(doc.Measurements["B04"].Path[len("file://"):])
	require.True(t, ok)
	assert.Equal(t, 100.0, written[0][0])
}

func TestCreateWithNoMasksInWindowReturnsErrNoMasks(t *testing.T) {
	creator, _, _ := newFixture(t)
	req := Request{
		MaskProduct: catalog.ProductFmask,
		EndDate:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowDays:  5,
		OutputBands: []string{"B04"},
	}
	_, err := creator.Create(context.Background(), req)
	require.Error(t, err)
}

func TestResolveOneFallsBackToSwappedBucketSearch(t *testing.T) {
	creator, cat, raster := newFixture(t)
	ctx := context.Background()

	l2a := catalog.NewDoc("s3://sentinel-s2-l2a/tiles/35/P/PM/20200601/fmask", catalog.ProductS2Sen2Cor)
	require.NoError(t, cat.Add(ctx, l2a))

	mask := catalog.NewDoc("s3://sentinel-s2-l1c/tiles/35/P/PM/20200601/fmask", catalog.ProductFmask)
	_ = raster

	req := Request{L1CBucket: "sentinel-s2-l1c", L2ABucket: "sentinel-s2-l2a"}
	resolved, usedFallback, ok := creator.resolveOne(ctx, mask, req)
	require.True(t, ok)
	assert.True(t, usedFallback)
	assert.Equal(t, l2a.ID, resolved.ID)
}

func TestResolveOneReturnsNotOkWhenUnresolvable(t *testing.T) {
	creator, _, _ := newFixture(t)
	mask := catalog.NewDoc("s3://unrelated-bucket/key", catalog.ProductFmask)
	_, _, ok := creator.resolveOne(context.Background(), mask, Request{L1CBucket: "sentinel-s2-l1c", L2ABucket: "sentinel-s2-l2a"})
	assert.False(t, ok)
}
