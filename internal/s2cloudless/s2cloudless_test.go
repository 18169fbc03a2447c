package s2cloudless

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GispoCoding/CFSI/internal/config"
)

func flatArray(height, width int, nir float64) [][][13]float64 {
	arr := make([][][13]float64, height)
	for r := range arr {
		arr[r] = make([][13]float64, width)
		for c := range arr[r] {
			arr[r][c][7] = nir
		}
	}
	return arr
}

func TestComputeShadowMaskProjectsDarkPixelBehindCloud(t *testing.T) {
	clouds := [][]uint8{
		{0, 0, 0},
		{0, 0, 0},
		{1, 0, 0},
	}
	array := flatArray(3, 3, 0.1)

	// azimuth 90deg -> dx=0, dy=round(sin(90))=1, so shifted[r][c]=clouds[r+1][c].
	// Only (1,0) looks ahead at the cloud pixel (2,0) while itself being clear.
	shadows := ComputeShadowMask(array, clouds, 90, 1, 0.25, config.RowDirectionNorthUp)
	for r := range shadows {
		for c := range shadows[r] {
			want := uint8(0)
			if r == 1 && c == 0 {
				want = 1
			}
			assert.Equal(t, want, shadows[r][c], "pixel (%d,%d)", r, c)
		}
	}
}

func TestComputeShadowMaskRowDirectionFlipsSign(t *testing.T) {
	clouds := [][]uint8{
		{0, 0, 0},
		{0, 0, 0},
		{1, 0, 0},
	}
	array := flatArray(3, 3, 0.1)

	northUp := ComputeShadowMask(array, clouds, 90, 1, 0.25, config.RowDirectionNorthUp)
	southUp := ComputeShadowMask(array, clouds, 90, 1, 0.25, config.RowDirectionSouthUp)

	// Flipping RowDirection negates dy, so the two conventions must not
	// always agree on a mask containing an off-center cloud. This pins the
	// (still-open) sign question to "configurable and observably different"
	// rather than asserting which one is "correct".
	assert.NotEqual(t, northUp, southUp)
}

func TestComputeShadowMaskGatesOnDarkPixelThreshold(t *testing.T) {
	clouds := [][]uint8{
		{1, 0},
		{0, 0},
	}
	brightArray := flatArray(2, 2, 0.9)

	shadows := ComputeShadowMask(brightArray, clouds, 90, 1, 0.25, config.RowDirectionNorthUp)
	for _, row := range shadows {
		for _, v := range row {
			assert.Equal(t, uint8(0), v, "bright (non-dark) pixels must never be flagged as shadow")
		}
	}
}

func TestComputeShadowMaskEmptyCloudsReturnsNil(t *testing.T) {
	shadows := ComputeShadowMask(nil, nil, 0, 0, 0, config.RowDirectionNorthUp)
	assert.Nil(t, shadows)
}

func TestReorderB8AMovesLastElementToIndex8(t *testing.T) {
	sorted := []string{"B01", "B02", "B03", "B04", "B05", "B06", "B07", "B08", "B09", "B10", "B11", "B12", "B8A"}
	out := reorderB8A(sorted)
	assert.Equal(t, "B8A", out[8])
	assert.Len(t, out, 13)
}

func TestToBandConvertsUint8Mask(t *testing.T) {
	mask := [][]uint8{{0, 1}, {1, 0}}
	band := toBand(mask)
	assert.Equal(t, 1.0, band[0][1])
	assert.Equal(t, 0.0, band[1][1])
}
