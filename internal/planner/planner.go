// Package planner implements the deterministic output path layout and
// container/host path translation of C8, grounded on the original's
// container_path_to_global_path and swap_s2_bucket_names in
// cfsi/utils/utils.py.
package planner

import (
	"fmt"
	"path"
	"strings"
)

// Planner maps dataset identity onto deterministic output paths and
// translates between a run's local-view root and the externally
// catalogued root.
type Planner struct {
	OutputRoot    string
	ContainerRoot string
	HostRoot      string
}

// New returns a Planner for the given output/container/host roots.
func New(outputRoot, containerRoot, hostRoot string) Planner {
	return Planner{OutputRoot: outputRoot, ContainerRoot: containerRoot, HostRoot: hostRoot}
}

// TilePath returns the per-tile output path for a mask/reference raster:
// <outputRoot>/<l1cS3Key>/<productName>/<tileId>[_<bandName>].tif
func (p Planner) TilePath(l1cS3Key, productName, tileID, bandName string) string {
	name := tileID
	if bandName != "" {
		name = tileID + "_" + bandName
	}
	return path.Join(p.OutputRoot, l1cS3Key, productName, name+".tif")
}

// TileDir returns the directory a given (l1cS3Key, productName) pair would
// be written under, used by the mask driver's skip policy: if this
// directory already exists, the candidate is treated as already processed.
func (p Planner) TileDir(l1cS3Key, productName string) string {
	return path.Join(p.OutputRoot, l1cS3Key, productName)
}

// MosaicPath returns <outputRoot>/mosaics/<endDate>_<maskProduct>_<n>.tif,
// per §4.7. Callers supply the smallest non-negative n that avoids
// collision (checked against the filesystem/blob store, not computed here,
// since "collision" depends on what already exists).
func (p Planner) MosaicPath(endDate, maskProduct string, n int) string {
	return path.Join(p.OutputRoot, "mosaics", fmt.Sprintf("%s_%s_%d.tif", endDate, maskProduct, n))
}

// Translate replaces a ContainerRoot prefix (respecting an optional
// file:// scheme prefix) with HostRoot. Paths without the prefix are
// returned unchanged — this is a total function, never an error.
func (p Planner) Translate(raw string) string {
	if p.ContainerRoot == "" || p.HostRoot == "" {
		return raw
	}

	scheme := ""
	rest := raw
	if strings.HasPrefix(raw, "file://") {
		scheme = "file://"
		rest = strings.TrimPrefix(raw, "file://")
	}

	if !strings.HasPrefix(rest, p.ContainerRoot) {
		return raw
	}

	translated := p.HostRoot + strings.TrimPrefix(rest, p.ContainerRoot)
	return scheme + translated
}

// SwapBucket exchanges the L1C bucket name for its L2A counterpart (or vice
// versa) in a canonical dataset URI, used to resolve a mask dataset's
// l2aDatasetId by URI when the property is absent. Returns an error if
// neither bucket name appears in uri, mirroring the original's ValueError.
func SwapBucket(uri, l1cBucket, l2aBucket string) (string, error) {
	switch {
	case strings.Contains(uri, "//"+l1cBucket+"/"):
		return strings.Replace(uri, "//"+l1cBucket+"/", "//"+l2aBucket+"/", 1), nil
	case strings.Contains(uri, "//"+l2aBucket+"/"):
		return strings.Replace(uri, "//"+l2aBucket+"/", "//"+l1cBucket+"/", 1), nil
	default:
		return "", fmt.Errorf("uri %q does not contain either bucket %q or %q", uri, l1cBucket, l2aBucket)
	}
}

// RegionCode derives the MGRS region code (the concatenation of the three
// URI path segments <zone>/<band>/<square>) from an object key like
// tiles/35/P/PM/2020/10/01/0/metadata.xml.
func RegionCode(key string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(key, "tiles/"), "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("key %q too short to contain a region code", key)
	}
	return parts[0] + parts[1] + parts[2], nil
}
