package sensors

import (
	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	bandwidthFFTSize        = 2048
	bandwidthRolloffEnergy  = 0.90
	narrowbandRolloffHz     = 4000.0
)

// BandwidthSensor computes the 90%-energy spectral rolloff frequency —
// purely informational, never votes, but its value selects the fusion
// engine's narrowband vs. default profile.
type BandwidthSensor struct{}

func NewBandwidthSensor() *BandwidthSensor { return &BandwidthSensor{} }

func (s *BandwidthSensor) Name() string                  { return "BandwidthSensor" }
func (s *BandwidthSensor) Category() types.SensorCategory { return types.CategoryInformational }

func (s *BandwidthSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	n := bandwidthFFTSize
	if n > len(wf.Samples) {
		n = len(wf.Samples)
	}

	win := dsp.HannWindow(n)
	fft := dsp.NewFFT(bandwidthFFTSize)
	mag := dsp.STFTFrame(fft, wf.Samples[:n], win, bandwidthFFTSize)

	var total float64
	for _, m := range mag {
		total += m * m
	}

	rolloffHz := float64(wf.SampleRate) / 2

	if total > 0 {
		threshold := total * bandwidthRolloffEnergy

		var cumulative float64

		for i, m := range mag {
			cumulative += m * m

			if cumulative >= threshold {
				rolloffHz = float64(i) * float64(wf.SampleRate) / float64(bandwidthFFTSize)

				break
			}
		}
	}

	isNarrowband := rolloffHz < narrowbandRolloffHz

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     nil,
		Value:      rolloffHz,
		Threshold:  narrowbandRolloffHz,
		Detail:     "Spectral rolloff computed for profile selection.",
		Metadata: map[string]any{
			"rolloff_hz":    rolloffHz,
			"is_narrowband": isNarrowband,
		},
	}
}
