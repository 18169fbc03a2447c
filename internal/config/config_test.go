package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

const minimalYAML = `
index:
  s2_index:
    s3_buckets: ["sentinel-s2-l1c", "sentinel-s2-l2a"]
output:
  container_root: /data
`

func TestLoadBytesAppliesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "eu-central-1", cfg.AWS.Region)
	assert.Equal(t, 94.0, cfg.Masks.MaxCloudThreshold)
	assert.Equal(t, 1.0, cfg.Masks.MinCloudThreshold)
	assert.Equal(t, RowDirectionNorthUp, cfg.Masks.S2Cloudless.RowDirection)
	assert.Equal(t, 8, cfg.Index.S2Index.Workers)
	assert.True(t, cfg.Masks.ExcludeB10())
}

func TestExcludeB10ExplicitFalseSurvivesDefaulting(t *testing.T) {
	yaml := minimalYAML + "masks:\n  exclude_b10_from_l2a: false\n"
	cfg, err := LoadBytes([]byte(yaml))
	require.NoError(t, err)
	assert.False(t, cfg.Masks.ExcludeB10())
}

func TestLoadBytesMissingBucketsIsInvalid(t *testing.T) {
	_, err := LoadBytes([]byte("output:\n  container_root: /data\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cfsierrors.ErrConfigInvalid)
}

func TestLoadBytesMissingOutputRootIsInvalid(t *testing.T) {
	_, err := LoadBytes([]byte(`index:
  s2_index:
    s3_buckets: ["sentinel-s2-l1c"]
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, cfsierrors.ErrConfigInvalid)
}

func TestLoadBytesThresholdOrderingValidated(t *testing.T) {
	yaml := minimalYAML + "masks:\n  min_cloud_threshold: 50\n  max_cloud_threshold: 10\n"
	_, err := LoadBytes([]byte(yaml))
	require.Error(t, err)
	assert.ErrorIs(t, err, cfsierrors.ErrConfigInvalid)
}

func TestLoadBytesInvalidYAMLIsConfigInvalid(t *testing.T) {
	_, err := LoadBytes([]byte("not: [valid"))
	require.Error(t, err)
	assert.ErrorIs(t, err, cfsierrors.ErrConfigInvalid)
}

func TestLoadBytesRejectsBadRowDirection(t *testing.T) {
	yaml := minimalYAML + "masks:\n  s2cloudless_masks:\n    row_direction: sideways\n"
	_, err := LoadBytes([]byte(yaml))
	require.Error(t, err)
	assert.ErrorIs(t, err, cfsierrors.ErrConfigInvalid)
}
