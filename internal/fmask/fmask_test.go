package fmask

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GispoCoding/CFSI/internal/blobstore"
	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/planner"
)

func TestIsClear(t *testing.T) {
	assert.True(t, IsClear(ClassClearLand))
	assert.True(t, IsClear(ClassClearWater))
	assert.True(t, IsClear(ClassSnow))
	assert.False(t, IsClear(2))
	assert.False(t, IsClear(3))
}

func seedL1CBands(blob *blobstore.Fake, bucket, s3Key string) {
	for _, b := range fmaskBands {
		blob.Put(bucket, s3Key+"/"+b+".jp2", []byte("jp2-bytes-"+b))
	}
}

func TestComputeStagesBandsAndInvokesRunner(t *testing.T) {
	blob := blobstore.NewFake()
	s3Key := "tiles/35/P/PM/2020/6/15/0"
	seedL1CBands(blob, "sentinel-s2-l1c", s3Key)

	p := planner.New(t.TempDir(), "", "")
	runner := &FakeRunner{}
	backend := NewBackend(blob, p, runner, Config{
		L1CBucket:  "sentinel-s2-l1c",
		StagingDir: t.TempDir(),
	})

	l1c := catalog.NewDoc("s3://sentinel-s2-l1c/"+s3Key, catalog.ProductS2Level1C)
	l1c.Properties["s3Key"] = s3Key
	l1c.Properties["tileId"] = "T35PPM"

	out, err := backend.Compute(context.Background(), l1c)
	require.NoError(t, err)
	assert.Equal(t, catalog.ProductFmask, out.ProductName)
	assert.Len(t, runner.Calls, 1)
	assert.Contains(t, out.Measurements, "fmask")
}

func TestComputePropagatesRunnerFailure(t *testing.T) {
	blob := blobstore.NewFake()
	s3Key := "tiles/35/P/PM/2020/6/15/0"
	seedL1CBands(blob, "sentinel-s2-l1c", s3Key)

	p := planner.New(t.TempDir(), "", "")
	runner := &FakeRunner{Err: assertErr{}}
	backend := NewBackend(blob, p, runner, Config{L1CBucket: "sentinel-s2-l1c", StagingDir: t.TempDir()})

	l1c := catalog.NewDoc("s3://sentinel-s2-l1c/"+s3Key, catalog.ProductS2Level1C)
	l1c.Properties["s3Key"] = s3Key
	l1c.Properties["tileId"] = "T35PPM"

	_, err := backend.Compute(context.Background(), l1c)
	require.Error(t, err)
}

func TestComputeFailsWhenBandMissing(t *testing.T) {
	blob := blobstore.NewFake()
	p := planner.New(t.TempDir(), "", "")
	backend := NewBackend(blob, p, &FakeRunner{}, Config{L1CBucket: "sentinel-s2-l1c", StagingDir: t.TempDir()})

	l1c := catalog.NewDoc("s3://sentinel-s2-l1c/tiles/35/P/PM/2020/6/15/0", catalog.ProductS2Level1C)
	l1c.Properties["s3Key"] = "tiles/35/P/PM/2020/6/15/0"

	_, err := backend.Compute(context.Background(), l1c)
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "fmask exploded" }
