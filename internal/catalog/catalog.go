// Package catalog defines the dataset catalog collaborator (C1) and its
// normalized DatasetDoc record, plus a Postgres-backed implementation and a
// Redis-fronted caching wrapper.
package catalog

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"
)

// SchemaURI is the literal eo3 schema every DatasetDoc carries.
const SchemaURI = "https://schemas.opendatacube.org/dataset"

// Product names recognized by the pipeline.
const (
	ProductS2Level1C       = "s2_level1c_granule"
	ProductS2Sen2Cor       = "s2_sen2cor_granule"
	ProductS2Cloudless     = "s2_level1c_s2cloudless"
	ProductFmask           = "s2_level1c_fmask"
)

// MosaicProductName returns the mosaic product name for a given mask
// product, e.g. "s2_level1c_fmask" -> "s2_level1c_fmask_mosaic".
func MosaicProductName(maskProduct string) string {
	return maskProduct + "_mosaic"
}

// Measurement describes one named band within a DatasetDoc: path is always
// an absolute URI, never relative to the dataset's own uri.
type Measurement struct {
	Path string
	Grid string
	Band int
}

// DatasetDoc is the normalized catalog record (eo3-shaped). Its id is a
// content-derived fingerprint of the dataset's canonical URI, which is the
// sole identity mechanism for deduplication.
type DatasetDoc struct {
	ID            string
	Schema        string
	ProductName   string
	CRS           string
	Grids         map[string]Grid
	Measurements  map[string]Measurement
	URI           string
	Properties    map[string]any
	CreatedAt     time.Time
}

// Grid is the subset of metadata.Grid actually referenced by a DatasetDoc.
type Grid struct {
	Shape     [2]int
	Transform [9]float64
}

// IDFromURI computes the stable content-derived identity of a dataset:
// hex-encoded MD5 of its canonical URI. Same URI always yields the same id.
func IDFromURI(uri string) string {
	sum := md5.Sum([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// NewDoc builds a DatasetDoc with its id derived from uri and the eo3
// schema literal pre-filled; callers still need to set the remaining
// fields.
func NewDoc(uri, productName string) DatasetDoc {
	return DatasetDoc{
		ID:          IDFromURI(uri),
		Schema:      SchemaURI,
		ProductName: productName,
		URI:         uri,
		Grids:       map[string]Grid{},
		Measurements: map[string]Measurement{},
		Properties:  map[string]any{},
	}
}

// SearchQuery filters Catalog.Search results. Zero-value fields are
// unconstrained (match anything).
type SearchQuery struct {
	Product string
	URI     string
	After   time.Time
	Before  time.Time
	Limit   int
}

// Catalog is the pluggable dataset-store collaborator (C1). Implementations
// must treat Add as failing with cfsierrors.ErrDocumentMismatch when id
// already exists with incompatible content, so callers can retry via
// Update.
type Catalog interface {
	Get(ctx context.Context, id string) (DatasetDoc, error)
	Search(ctx context.Context, q SearchQuery) ([]DatasetDoc, error)
	Add(ctx context.Context, doc DatasetDoc) error
	Update(ctx context.Context, doc DatasetDoc) error
	Exists(ctx context.Context, id string) (bool, error)
}
