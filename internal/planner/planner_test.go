package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTilePathWithAndWithoutBand(t *testing.T) {
	p := New("/data", "/data", "/host/data")

	assert.Equal(t, "/data/tiles/35/P/PM/s2_level1c_fmask/TILEID.tif",
		p.TilePath("tiles/35/P/PM", "s2_level1c_fmask", "TILEID", ""))
	assert.Equal(t, "/data/tiles/35/P/PM/s2_level1c_fmask/TILEID_B04.tif",
		p.TilePath("tiles/35/P/PM", "s2_level1c_fmask", "TILEID", "B04"))
}

func TestTileDir(t *testing.T) {
	p := New("/data", "/data", "/host/data")
	assert.Equal(t, "/data/tiles/35/P/PM/s2_level1c_fmask", p.TileDir("tiles/35/P/PM", "s2_level1c_fmask"))
}

func TestMosaicPath(t *testing.T) {
	p := New("/data", "/data", "/host/data")
	assert.Equal(t, "/data/mosaics/2020-10-01_s2_level1c_fmask_0.tif", p.MosaicPath("2020-10-01", "s2_level1c_fmask", 0))
	assert.Equal(t, "/data/mosaics/2020-10-01_s2_level1c_fmask_3.tif", p.MosaicPath("2020-10-01", "s2_level1c_fmask", 3))
}

func TestTranslateRewritesContainerPrefix(t *testing.T) {
	p := New("/data", "/data", "/host/data")
	assert.Equal(t, "/host/data/mosaics/a.tif", p.Translate("/data/mosaics/a.tif"))
}

func TestTranslateHandlesFileScheme(t *testing.T) {
	p := New("/data", "/data", "/host/data")
	assert.Equal(t, "file:///host/data/mosaics/a.tif", p.Translate("file:///data/mosaics/a.tif"))
}

func TestTranslateLeavesUnrelatedPathsUnchanged(t *testing.T) {
	p := New("/data", "/data", "/host/data")
	assert.Equal(t, "/elsewhere/a.tif", p.Translate("/elsewhere/a.tif"))
}

func TestTranslateNoopWhenRootsUnset(t *testing.T) {
	p := New("/data", "", "")
	assert.Equal(t, "/data/mosaics/a.tif", p.Translate("/data/mosaics/a.tif"))
}

func TestSwapBucketBothDirections(t *testing.T) {
	l1c, l2a := "sentinel-s2-l1c", "sentinel-s2-l2a"

	got, err := SwapBucket("s3://sentinel-s2-l1c/tiles/35/P/PM/metadata.xml", l1c, l2a)
	require.NoError(t, err)
	assert.Equal(t, "s3://sentinel-s2-l2a/tiles/35/P/PM/metadata.xml", got)

	got, err = SwapBucket("s3://sentinel-s2-l2a/tiles/35/P/PM/metadata.xml", l1c, l2a)
	require.NoError(t, err)
	assert.Equal(t, "s3://sentinel-s2-l1c/tiles/35/P/PM/metadata.xml", got)
}

func TestSwapBucketNeitherBucketIsError(t *testing.T) {
	_, err := SwapBucket("s3://some-other-bucket/key", "sentinel-s2-l1c", "sentinel-s2-l2a")
	assert.Error(t, err)
}

func TestRegionCode(t *testing.T) {
	got, err := RegionCode("tiles/35/P/PM/2020/10/01/0/metadata.xml")
	require.NoError(t, err)
	assert.Equal(t, "35PPM", got)
}

func TestRegionCodeTooShortIsError(t *testing.T) {
	_, err := RegionCode("tiles/35/metadata.xml")
	assert.Error(t, err)
}
