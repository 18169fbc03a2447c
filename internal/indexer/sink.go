package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/cfsierrors"
	"github.com/GispoCoding/CFSI/internal/planner"
)

// MaskOutput describes one locally produced mask raster ready to be
// indexed, the sink side of C3 feeding off C4/C5/C6.
type MaskOutput struct {
	L1C          catalog.DatasetDoc
	ProductName  string
	Measurements map[string]string // bandName -> absolute file:// URI
	L1CBucket    string
	L2ABucket    string
}

// IndexMask builds and upserts a DatasetDoc for a locally produced mask
// raster, carrying forward the originating L1C's properties and resolving
// l2aDatasetId via swapBucket + catalog search, per the original's
// ODCIndexer.generate_mask_properties / l2a_dataset_from_l1c.
func (ix *Indexer) IndexMask(ctx context.Context, out MaskOutput) (catalog.DatasetDoc, error) {
	uri, ok := out.L1C.Properties["s3Key"].(string)
	if !ok {
		return catalog.DatasetDoc{}, fmt.Errorf("L1C dataset %s missing s3Key property", out.L1C.ID)
	}
	datasetURI := out.L1C.URI + "/" + out.ProductName

	doc := catalog.NewDoc(datasetURI, out.ProductName)
	doc.CRS = out.L1C.CRS
	doc.Grids = out.L1C.Grids

	for band, path := range out.Measurements {
		doc.Measurements[band] = catalog.Measurement{Path: path, Grid: "default"}
	}

	// carry forward the originating L1C's properties
	for k, v := range out.L1C.Properties {
		doc.Properties[k] = v
	}
	doc.Properties["s3Key"] = uri

	swapped, err := planner.SwapBucket(out.L1C.URI, out.L1CBucket, out.L2ABucket)
	if err == nil {
		matches, searchErr := ix.Catalog.Search(ctx, catalog.SearchQuery{
			Product: catalog.ProductS2Sen2Cor,
			URI:     swapped,
			Limit:   1,
		})
		if searchErr == nil && len(matches) > 0 {
			doc.Properties["l2aDatasetId"] = matches[0].ID
		}
	}

	if err := ix.upsert(ctx, doc); err != nil {
		return catalog.DatasetDoc{}, err
	}
	return doc, nil
}

// IndexMosaic builds and upserts a DatasetDoc for a locally produced mosaic
// GeoTIFF under "<maskProduct>_mosaic".
func (ix *Indexer) IndexMosaic(ctx context.Context, maskProduct, outputPath string, grid catalog.Grid, crs string, bandPaths map[string]string, properties map[string]any) (catalog.DatasetDoc, error) {
	productName := catalog.MosaicProductName(maskProduct)
	doc := catalog.NewDoc(outputPath, productName)
	doc.CRS = crs
	doc.Grids["default"] = grid

	for band, path := range bandPaths {
		doc.Measurements[band] = catalog.Measurement{Path: path, Grid: "default"}
	}
	for k, v := range properties {
		doc.Properties[k] = v
	}

	if err := ix.upsert(ctx, doc); err != nil {
		return catalog.DatasetDoc{}, err
	}
	return doc, nil
}

func (ix *Indexer) upsert(ctx context.Context, doc catalog.DatasetDoc) error {
	if err := ix.Catalog.Add(ctx, doc); err != nil {
		if errors.Is(err, cfsierrors.ErrDocumentMismatch) {
			return ix.Catalog.Update(ctx, doc)
		}
		return err
	}
	return nil
}
