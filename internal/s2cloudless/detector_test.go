package s2cloudless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeDetectorFlagsAboveCutoff(t *testing.T) {
	det := FakeDetector{ThresholdFraction: 0.5}.AsCloudDetector()

	array := [][][13]float64{
		{{0, 0.1}, {0, 0.9}},
	}
	out, err := det(array, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint8(0), out[0][0])
	assert.Equal(t, uint8(1), out[0][1])
}

func TestFakeDetectorDefaultCutoff(t *testing.T) {
	det := FakeDetector{}.AsCloudDetector()
	array := [][][13]float64{{{0, 0.31}}}
	out, err := det(array, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), out[0][0])
}
