package s2cloudless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// ExecDetector shells out to an external s2cloudless-model process, the
// same "injected, opaque capability" treatment §1/§4.5 give the learned
// classifier and §4.6 gives Fmask: the model itself is out of scope for a
// Go port (see Non-goals), but the array-in/mask-out contract is still a
// concrete CloudDetector value this package can drive.
//
// The subprocess reads a JSON array payload on stdin and writes a JSON
// [][]uint8 cloud-probability-thresholded mask on stdout.
type ExecDetector struct {
	BinaryPath string
}

type detectorRequest struct {
	Bands     [][][13]float64 `json:"bands"`
	Threshold float64         `json:"threshold"`
}

// Detect implements CloudDetector by invoking the configured binary.
func (d ExecDetector) Detect(bands [][][13]float64, threshold float64) ([][]uint8, error) {
	payload, err := json.Marshal(detectorRequest{Bands: bands, Threshold: threshold})
	if err != nil {
		return nil, fmt.Errorf("marshaling detector request: %w", err)
	}

	cmd := exec.CommandContext(context.Background(), d.BinaryPath)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("s2cloudless detector subprocess failed: %w", err)
	}

	var mask [][]uint8
	if err := json.Unmarshal(stdout.Bytes(), &mask); err != nil {
		return nil, fmt.Errorf("parsing detector output: %w", err)
	}
	return mask, nil
}

// AsCloudDetector adapts d to the CloudDetector function type Backend
// expects.
func (d ExecDetector) AsCloudDetector() CloudDetector {
	return func(bands [][][13]float64, threshold float64) ([][]uint8, error) {
		return d.Detect(bands, threshold)
	}
}

// FakeDetector backs unit tests: every pixel above ThresholdFraction of the
// blue band (index 1) is flagged cloudy, with no subprocess involved.
type FakeDetector struct {
	ThresholdFraction float64
}

func (f FakeDetector) AsCloudDetector() CloudDetector {
	cut := f.ThresholdFraction
	if cut == 0 {
		cut = 0.3
	}
	return func(bands [][][13]float64, _ float64) ([][]uint8, error) {
		if len(bands) == 0 {
			return nil, nil
		}
		height, width := len(bands), len(bands[0])
		out := make([][]uint8, height)
		for r := 0; r < height; r++ {
			out[r] = make([]uint8, width)
			for c := 0; c < width; c++ {
				if bands[r][c][1] > cut {
					out[r][c] = 1
				}
			}
		}
		return out, nil
	}
}
