package sensors

import (
	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	digitalSilenceFrameMs = 30.0
	digitalSilenceHopMs   = 10.0

	perfectSilenceDb       = -120.0
	quietVarianceThreshold = 1e-8
)

// DigitalSilenceSensor flags perfectly silent frames and suspiciously
// invariant noise floors — both signs of digitally-inserted silence
// rather than a recorded room. A prosecution sensor.
type DigitalSilenceSensor struct{}

func NewDigitalSilenceSensor() *DigitalSilenceSensor { return &DigitalSilenceSensor{} }

func (s *DigitalSilenceSensor) Name() string                  { return "DigitalSilenceSensor" }
func (s *DigitalSilenceSensor) Category() types.SensorCategory { return types.CategoryProsecution }

func (s *DigitalSilenceSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	frameLen := int(digitalSilenceFrameMs * float64(wf.SampleRate) / 1000)
	hop := int(digitalSilenceHopMs * float64(wf.SampleRate) / 1000)
	frames := dsp.Frame(wf.Samples, frameLen, hop)

	if len(frames) == 0 {
		return invalidResult(s)
	}

	energies := make([]float64, len(frames))
	perfectSilenceCount := 0

	for i, f := range frames {
		rms := dsp.RMS(f)
		energies[i] = rms

		if dsp.ToDb(rms) <= perfectSilenceDb {
			perfectSilenceCount++
		}
	}

	quietestThreshold := dsp.Percentile(energies, 10)

	var quietest []float64

	for _, e := range energies {
		if e <= quietestThreshold {
			quietest = append(quietest, e)
		}
	}

	m := mean(quietest)
	variance := stddev(quietest, m)
	variance *= variance

	score := 0.0

	if perfectSilenceCount > 0 {
		score += 0.5
	}

	if variance < quietVarianceThreshold {
		score += 0.5
	}

	score = clip01(score)
	passed := score < 0.5

	detail := "Noise floor shows natural acoustic variance."
	if !passed {
		detail = "Perfect or invariant silence detected: likely digital insertion."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  0.5,
		Detail:     detail,
		Metadata: map[string]any{
			"perfect_silence_frames":   perfectSilenceCount,
			"quietest_decile_variance": variance,
			"room_tone_changes":        roomToneChanges(energies),
		},
	}
}

// roomToneChanges would detect shifts in the ambient room-tone level
// between silent regions. Left as a simplified no-op: the original
// sensor's equivalent never implemented more than a placeholder, and
// estimating a genuine room-tone break requires multi-region spectral
// comparison this sensor doesn't otherwise compute.
func roomToneChanges(_ []float64) int {
	return 0
}
