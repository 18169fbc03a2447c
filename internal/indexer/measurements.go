package indexer

import "strings"

// Bucket names recognized by the pipeline, matching the original's
// cfsi/constants.py L1C_BUCKET/L2A_BUCKET.
const (
	BucketL1C = "sentinel-s2-l1c"
	BucketL2A = "sentinel-s2-l2a"
)

// l1cMeasurements is the fixed band list for L1C granules, ported verbatim
// from cfsi/constants.py's L1C_MEASUREMENTS.
var l1cMeasurements = []string{
	"B01_60m", "B02_10m", "B03_10m", "B04_10m", "B05_20m",
	"B06_20m", "B07_20m", "B08_10m", "B09_60m", "B8A_20m",
	"B10_60m", "B11_20m", "B12_20m",
}

// l2aExtra is the set of additional resampled/derived bands an L2A granule
// carries beyond the L1C list, ported from cfsi/constants.py's
// L2A_MEASUREMENTS construction.
var l2aExtra = []string{
	"B02_20m", "B02_60m", "B03_20m", "B03_60m", "B04_20m",
	"B04_60m", "B05_60m", "B06_60m", "B07_60m", "B08_20m",
	"B08_60m", "B8A_60m", "B11_60m", "B12_60m", "SCL_20m",
}

// MeasurementNames returns the band-file-stem list for a product, excluding
// B10_60m from the L2A list when excludeB10 is true (§9 Open Question,
// default true — see config.MasksConfig.ExcludeB10).
func MeasurementNames(bucket string, excludeB10 bool) []string {
	switch bucket {
	case BucketL1C:
		return append([]string(nil), l1cMeasurements...)
	case BucketL2A:
		all := append(append([]string(nil), l2aExtra...), l1cMeasurements...)
		if !excludeB10 {
			return all
		}
		out := make([]string, 0, len(all))
		for _, m := range all {
			if m != "B10_60m" {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// ProductName returns the eo3 product name for a bucket.
func ProductName(bucket string) string {
	switch bucket {
	case BucketL1C:
		return "s2_level1c_granule"
	case BucketL2A:
		return "s2_sen2cor_granule"
	default:
		return ""
	}
}

// bandNameAndGrid splits a measurement entry like "B05_20m" into its band
// name ("B05") and grid label ("20m" -> "20m", "10m" -> "default").
func bandNameAndGrid(measurement string) (bandName, grid string) {
	idx := strings.LastIndex(measurement, "_")
	if idx < 0 {
		return measurement, "default"
	}
	bandName, resLabel := measurement[:idx], measurement[idx+1:]
	if resLabel == "10m" {
		return bandName, "default"
	}
	return bandName, resLabel
}
