// Package metadata parses Sentinel-2 per-tile XML manifests into a
// normalized TileMeta record (C2 of the pipeline).
package metadata

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

// Resolution is one of the three Sentinel-2 grid resolutions in meters.
type Resolution int

const (
	Res10m Resolution = 10
	Res20m Resolution = 20
	Res60m Resolution = 60
)

// Grid describes one resolution's raster geometry.
type Grid struct {
	NRows  int
	NCols  int
	ULX    float64
	ULY    float64
	XDim   float64
	YDim   float64
}

// Affine returns the 3x3 affine transform row-major:
// [xdim, 0, ulx, 0, ydim, uly, 0, 0, 1].
func (g Grid) Affine() [9]float64 {
	return [9]float64{g.XDim, 0, g.ULX, 0, g.YDim, g.ULY, 0, 0, 1}
}

// TileMeta is the transient, per-parse record extracted from metadata.xml.
// It is never stored; the indexer (C3) immediately folds the fields it
// needs into a DatasetDoc.
type TileMeta struct {
	TileID                string
	SensingTime            time.Time
	CRSCode                string
	SunZenith              float64
	SunAzimuth             float64
	CloudyPixelPercentage  float64
	Grids                  map[Resolution]Grid
}

// xmlDoc mirrors the subset of the S2 metadata.xml schema this parser reads.
// Field names intentionally match the source XML's element names so the
// struct tags stay a direct transliteration of the XPath contract in
// SPEC_FULL.md C2, not an independent reinterpretation of the format.
type xmlDoc struct {
	XMLName  xml.Name `xml:"Level-1C_Tile_ID"`
	General  struct {
		TileID      string `xml:"TILE_ID"`
		SensingTime string `xml:"SENSING_TIME"`
	} `xml:"General_Info"`
	Geocoding struct {
		HorizontalCSCode string `xml:"HORIZONTAL_CS_CODE"`
		Sizes            []struct {
			Resolution string `xml:"resolution,attr"`
			NRows      string `xml:"NROWS"`
			NCols      string `xml:"NCOLS"`
		} `xml:"Size"`
		Geopositions []struct {
			Resolution string `xml:"resolution,attr"`
			ULX        string `xml:"ULX"`
			ULY        string `xml:"ULY"`
			XDim       string `xml:"XDIM"`
			YDim       string `xml:"YDIM"`
		} `xml:"Geoposition"`
	} `xml:"Geometric_Info>Tile_Geocoding"`
	Angles struct {
		MeanSunAngle struct {
			ZenithAngle  string `xml:"ZENITH_ANGLE"`
			AzimuthAngle string `xml:"AZIMUTH_ANGLE"`
		} `xml:"Mean_Sun_Angle"`
	} `xml:"Geometric_Info>Tile_Angles"`
	QualityIndicators struct {
		CloudyPixelPercentage string `xml:"Image_Content_QI>CLOUDY_PIXEL_PERCENTAGE"`
	} `xml:"Quality_Indicators_Info"`
}

// Parse extracts a TileMeta from the raw bytes of an S2 granule's
// metadata.xml. It returns cfsierrors.ErrMalformedMetadata (wrapped) if any
// required element is missing or not parseable as the expected type.
func Parse(raw []byte) (TileMeta, error) {
	var doc xmlDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return TileMeta{}, cfsierrors.Malformed(fmt.Errorf("unmarshal metadata.xml: %w", err))
	}

	tileID := normalizeField(doc.General.TileID)
	if tileID == "" {
		return TileMeta{}, cfsierrors.Malformed(fmt.Errorf("missing TILE_ID"))
	}

	sensingTime, err := parseSensingTime(doc.General.SensingTime)
	if err != nil {
		return TileMeta{}, cfsierrors.Malformed(fmt.Errorf("parsing SENSING_TIME: %w", err))
	}

	crsCode := strings.ToUpper(normalizeField(doc.Geocoding.HorizontalCSCode))
	if crsCode == "" {
		return TileMeta{}, cfsierrors.Malformed(fmt.Errorf("missing HORIZONTAL_CS_CODE"))
	}

	sunZenith, err := parseFloat("ZENITH_ANGLE", doc.Angles.MeanSunAngle.ZenithAngle)
	if err != nil {
		return TileMeta{}, err
	}
	sunAzimuth, err := parseFloat("AZIMUTH_ANGLE", doc.Angles.MeanSunAngle.AzimuthAngle)
	if err != nil {
		return TileMeta{}, err
	}
	cloudyPct, err := parseFloat("CLOUDY_PIXEL_PERCENTAGE", doc.QualityIndicators.CloudyPixelPercentage)
	if err != nil {
		return TileMeta{}, err
	}

	grids, err := buildGrids(doc)
	if err != nil {
		return TileMeta{}, err
	}

	return TileMeta{
		TileID:                tileID,
		SensingTime:           sensingTime,
		CRSCode:               crsCode,
		SunZenith:             sunZenith,
		SunAzimuth:            sunAzimuth,
		CloudyPixelPercentage: cloudyPct,
		Grids:                 grids,
	}, nil
}

func buildGrids(doc xmlDoc) (map[Resolution]Grid, error) {
	sizes := map[Resolution]struct{ rows, cols int }{}
	for _, s := range doc.Geocoding.Sizes {
		res, err := resolutionOf(s.Resolution)
		if err != nil {
			continue
		}
		rows, err := strconv.Atoi(strings.TrimSpace(s.NRows))
		if err != nil {
			return nil, cfsierrors.Malformed(fmt.Errorf("non-numeric NROWS for resolution %s: %w", s.Resolution, err))
		}
		cols, err := strconv.Atoi(strings.TrimSpace(s.NCols))
		if err != nil {
			return nil, cfsierrors.Malformed(fmt.Errorf("non-numeric NCOLS for resolution %s: %w", s.Resolution, err))
		}
		sizes[res] = struct{ rows, cols int }{rows, cols}
	}

	grids := make(map[Resolution]Grid, 3)
	for _, g := range doc.Geocoding.Geopositions {
		res, err := resolutionOf(g.Resolution)
		if err != nil {
			continue
		}
		ulx, err := parseFloat("ULX", g.ULX)
		if err != nil {
			return nil, err
		}
		uly, err := parseFloat("ULY", g.ULY)
		if err != nil {
			return nil, err
		}
		xdim, err := parseFloat("XDIM", g.XDim)
		if err != nil {
			return nil, err
		}
		ydim, err := parseFloat("YDIM", g.YDim)
		if err != nil {
			return nil, err
		}
		size, ok := sizes[res]
		if !ok {
			return nil, cfsierrors.Malformed(fmt.Errorf("missing Size element for resolution %dm", res))
		}
		grids[res] = Grid{NRows: size.rows, NCols: size.cols, ULX: ulx, ULY: uly, XDim: xdim, YDim: ydim}
	}

	for _, want := range []Resolution{Res10m, Res20m, Res60m} {
		if _, ok := grids[want]; !ok {
			return nil, cfsierrors.Malformed(fmt.Errorf("missing grid for resolution %dm", want))
		}
	}
	return grids, nil
}

// normalizeField trims and NFC-normalizes a free-text XML field. Tile
// metadata.xml is produced by varying ESA ground-segment toolchains and has
// been seen with NFD-decomposed diacritics in tile ids; normalizing here
// keeps catalog ids stable regardless of which toolchain wrote the file.
func normalizeField(raw string) string {
	return strings.TrimSpace(norm.NFC.String(strings.TrimSpace(raw)))
}

func resolutionOf(attr string) (Resolution, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(attr), "m"))
	if err != nil {
		return 0, err
	}
	switch Resolution(n) {
	case Res10m, Res20m, Res60m:
		return Resolution(n), nil
	default:
		return 0, fmt.Errorf("unsupported resolution %q", attr)
	}
}

func parseFloat(field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, cfsierrors.Malformed(fmt.Errorf("non-numeric %s %q: %w", field, raw, err))
	}
	return v, nil
}

func parseSensingTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05.000000Z"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", raw)
}
