// Package fmask implements C6: staging a granule's .SAFE directory and
// invoking an injected, opaque Fmask routine over it. Fmask itself is a
// rule-based external classifier with no Go port available (see
// DESIGN.md); it is treated the same way §1 treats the cloud-detection
// model — an injected pure-ish capability, here a subprocess interface.
package fmask

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/GispoCoding/CFSI/internal/blobstore"
	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/cfsierrors"
	"github.com/GispoCoding/CFSI/internal/indexer"
	"github.com/GispoCoding/CFSI/internal/planner"
)

// Fmask classification values, per §4.6: 1=clear land, 4=clear water-ish,
// 5=snow; anything else is cloud/shadow.
const (
	ClassClearLand  = 1
	ClassClearWater = 4
	ClassSnow       = 5
)

// IsClear reports whether an Fmask class value counts as clear for the
// mosaic compositor's predicate (§4.7 step 4).
func IsClear(class int) bool {
	return class == ClassClearLand || class == ClassClearWater || class == ClassSnow
}

// Runner is the injected opaque Fmask routine: input is a staged granule
// directory, output is a single classified GeoTIFF path.
type Runner interface {
	Run(ctx context.Context, granuleDir, outputPath string) error
}

// Config parameterizes a Backend.
type Config struct {
	L1CBucket  string
	StagingDir string
}

// Backend implements maskgen.Backend by staging the granule and delegating
// classification to an injected Runner.
type Backend struct {
	Blob    blobstore.BlobStore
	Planner planner.Planner
	Runner  Runner
	Config  Config
}

// NewBackend returns a Backend ready for maskgen.Driver to drive.
func NewBackend(blob blobstore.BlobStore, p planner.Planner, runner Runner, cfg Config) *Backend {
	return &Backend{Blob: blob, Planner: p, Runner: runner, Config: cfg}
}

func (b *Backend) ProductName() string { return catalog.ProductFmask }

var fmaskBands = []string{
	"B01", "B02", "B03", "B04", "B05", "B06", "B07", "B08", "B8A", "B09", "B10", "B11", "B12",
}

// Compute stages the granule's .SAFE directory, invokes the injected
// Runner, and returns the sink input for indexer.IndexMask.
func (b *Backend) Compute(ctx context.Context, l1c catalog.DatasetDoc) (indexer.MaskOutput, error) {
	s3Key, _ := l1c.Properties["s3Key"].(string)
	tileID, _ := l1c.Properties["tileId"].(string)
	if tileID == "" {
		tileID = l1c.ID
	}
	granuleDir := filepath.Join(b.Config.StagingDir, tileID)

	for _, bandName := range fmaskBands {
		destPath := filepath.Join(granuleDir, bandName+".jp2")
		key := s3Key + "/" + bandName + ".jp2"
		if err := blobstore.StageFile(ctx, b.Blob, b.Config.L1CBucket, key, destPath); err != nil {
			return indexer.MaskOutput{}, err
		}
	}

	outputPath := b.Planner.TilePath(s3Key, b.ProductName(), tileID, "")
	if err := b.Runner.Run(ctx, granuleDir, outputPath); err != nil {
		return indexer.MaskOutput{}, cfsierrors.RasterIOFailed(fmt.Errorf("fmask run for %s: %w", tileID, err))
	}

	return indexer.MaskOutput{
		L1C:          l1c,
		ProductName:  b.ProductName(),
		Measurements: map[string]string{"fmask": "file://" + outputPath},
		L1CBucket:    b.Config.L1CBucket,
		L2ABucket:    indexer.BucketL2A,
	}, nil
}

// ExecRunner shells out to a configured Fmask binary, the real-use Runner.
type ExecRunner struct {
	BinaryPath string
}

func (r ExecRunner) Run(ctx context.Context, granuleDir, outputPath string) error {
	cmd := exec.CommandContext(ctx, r.BinaryPath, "--input", granuleDir, "--output", outputPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("fmask binary failed: %w: %s", err, string(out))
	}
	return nil
}

// FakeRunner backs unit tests: it never touches a real process, and always
// reports success unless Err is set.
type FakeRunner struct {
	Err   error
	Calls []string
}

func (r *FakeRunner) Run(_ context.Context, granuleDir, outputPath string) error {
	r.Calls = append(r.Calls, granuleDir+" -> "+outputPath)
	return r.Err
}
