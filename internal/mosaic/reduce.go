package mosaic

import (
	"time"

	"github.com/GispoCoding/CFSI/internal/rasterio"
)

// epoch is the reference point for recency, matching the original's
// days-since-epoch convention (days since 1970-01-01 UTC).
var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// daysSinceEpoch returns the whole number of days between epoch and t,
// truncated toward zero, so callers get a stable integer-valued float for
// storage in a raster band.
func daysSinceEpoch(t time.Time) float64 {
	return float64(int64(t.UTC().Sub(epoch).Hours() / 24))
}

// Reduce implements §4.7's most-recent-clear reduction: walking the time
// stack from newest to oldest, every pixel takes the value from the most
// recent observation at which it was clear. The recency band records, for
// every output pixel, the chosen observation's date as days-since-epoch;
// pixels never observed clear are left at 0 in both outputs, mirroring the
// original's behavior of leaving unfilled pixels at the stack's initial
// fill value.
//
// stack, clear, and dates must all be the same length and ordered
// oldest-first (as Creator.Create sorts pairs before calling Reduce).
func Reduce(stack []rasterio.Band, clear [][]bool, dates []time.Time) (composite rasterio.Band, recency rasterio.Band) {
	if len(stack) == 0 {
		return nil, nil
	}

	height := len(stack[0])
	width := 0
	if height > 0 {
		width = len(stack[0][0])
	}

	composite = make(rasterio.Band, height)
	recency = make(rasterio.Band, height)
	for r := 0; r < height; r++ {
		composite[r] = make([]float64, width)
		recency[r] = make([]float64, width)
	}

	n := len(stack)
	for r := 0; r < height; r++ {
		for col := 0; col < width; col++ {
			for step := 0; step < n; step++ {
				idx := n - 1 - step
				pos := r*width + col
				if pos >= len(clear[idx]) || !clear[idx][pos] {
					continue
				}
				if r < len(stack[idx]) && col < len(stack[idx][r]) {
					composite[r][col] = stack[idx][r][col]
					if idx < len(dates) {
						recency[r][col] = daysSinceEpoch(dates[idx])
					}
					break
				}
			}
		}
	}
	return composite, recency
}
