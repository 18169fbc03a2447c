package mosaic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/GispoCoding/CFSI/internal/rasterio"
)

func TestReducePicksMostRecentClearObservation(t *testing.T) {
	// oldest-first stack of 3 single-pixel bands: values 1, 2, 3
	stack := []rasterio.Band{
		{{1}}, {{2}}, {{3}},
	}
	clear := [][]bool{
		{true}, {false}, {true},
	}
	dates := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC),
	}

	composite, recency := Reduce(stack, clear, dates)
	assert.Equal(t, 3.0, composite[0][0], "newest clear observation (index 2) wins")
	assert.Equal(t, daysSinceEpoch(dates[2]), recency[0][0], "recency is the winning observation's days-since-epoch")
}

func TestReduceSkipsCloudyNewestFallsBackToOlder(t *testing.T) {
	stack := []rasterio.Band{
		{{1}}, {{2}}, {{3}},
	}
	clear := [][]bool{
		{true}, {true}, {false},
	}
	dates := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	composite, recency := Reduce(stack, clear, dates)
	assert.Equal(t, 2.0, composite[0][0])
	assert.Equal(t, daysSinceEpoch(dates[1]), recency[0][0], "falls back to the 2020-01-02 observation, not the cloudy 2020-01-03 one")
}

func TestReduceNeverClearLeavesPixelAtZero(t *testing.T) {
	stack := []rasterio.Band{
		{{1}}, {{2}},
	}
	clear := [][]bool{
		{false}, {false},
	}
	dates := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	composite, recency := Reduce(stack, clear, dates)
	assert.Equal(t, 0.0, composite[0][0])
	assert.Equal(t, 0.0, recency[0][0])
}

func TestReduceEmptyStackReturnsNil(t *testing.T) {
	composite, recency := Reduce(nil, nil, nil)
	assert.Nil(t, composite)
	assert.Nil(t, recency)
}

func TestReduceMultiPixelIndependentPerColumn(t *testing.T) {
	stack := []rasterio.Band{
		{{1, 10}},
		{{2, 20}},
	}
	clear := [][]bool{
		{true, false},
		{false, true},
	}
	dates := []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	composite, recency := Reduce(stack, clear, dates)
	assert.Equal(t, 1.0, composite[0][0], "col 0: only the older observation is clear")
	assert.Equal(t, daysSinceEpoch(dates[0]), recency[0][0])
	assert.Equal(t, 20.0, composite[0][1], "col 1: only the newer observation is clear")
	assert.Equal(t, daysSinceEpoch(dates[1]), recency[0][1])
}

func TestDaysSinceEpochKnownDate(t *testing.T) {
	// 2020-01-01 is 18262 days after 1970-01-01.
	assert.Equal(t, 18262.0, daysSinceEpoch(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0.0, daysSinceEpoch(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)))
}
