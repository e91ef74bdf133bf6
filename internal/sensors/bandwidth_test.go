package sensors

import (
	"math"
	"testing"

	"github.com/farcloser/sonotheia/internal/types"
)

func sineAt(freqHz float64, sampleRate, n int) *types.Waveform {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freqHz * float64(i) / float64(sampleRate))
	}

	return &types.Waveform{Samples: samples, SampleRate: sampleRate}
}

func TestBandwidthSensorNeverVotes(t *testing.T) {
	s := NewBandwidthSensor()
	res := s.Analyze(sineAt(1000, 16000, 4096))

	if res.Passed != nil {
		t.Errorf("Passed = %v, want nil (informational sensors never vote)", *res.Passed)
	}

	if res.Category != types.CategoryInformational {
		t.Errorf("Category = %v, want CategoryInformational", res.Category)
	}
}

func TestBandwidthSensorDetectsNarrowband(t *testing.T) {
	s := NewBandwidthSensor()

	// A 300Hz tone with no higher harmonics has virtually all its energy
	// far below the 4kHz narrowband cutoff.
	res := s.Analyze(sineAt(300, 16000, 4096))

	narrow, ok := res.Metadata["is_narrowband"].(bool)
	if !ok || !narrow {
		t.Errorf("is_narrowband = %v (ok=%v), want true for a 300Hz tone", res.Metadata["is_narrowband"], ok)
	}
}

func TestBandwidthSensorInvalidInput(t *testing.T) {
	s := NewBandwidthSensor()
	res := s.Analyze(nil)

	if res.Passed != nil {
		t.Errorf("Passed = %v, want nil for invalid input", *res.Passed)
	}
}
