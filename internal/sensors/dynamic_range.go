package sensors

import (
	"math"

	"github.com/farcloser/sonotheia/internal/types"
)

// crestFactorThreshold is the minimum peak/RMS ratio natural speech
// exhibits; flat, over-compressed audio falls below it.
const crestFactorThreshold = 5.0

// DynamicRangeSensor computes the crest factor (peak / RMS) over the full
// waveform — a defense sensor: passing means the dynamic range is
// plausibly natural, not over-compressed synthetic output.
type DynamicRangeSensor struct{}

func NewDynamicRangeSensor() *DynamicRangeSensor { return &DynamicRangeSensor{} }

func (s *DynamicRangeSensor) Name() string                  { return "DynamicRangeSensor" }
func (s *DynamicRangeSensor) Category() types.SensorCategory { return types.CategoryDefense }

func (s *DynamicRangeSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	var peak, sumSquares float64

	for _, v := range wf.Samples {
		a := math.Abs(v)
		if a > peak {
			peak = a
		}

		sumSquares += v * v
	}

	rms := math.Sqrt(sumSquares / float64(len(wf.Samples)))

	if rms == 0 {
		// Pure silence: crest factor is undefined, return a sentinel that
		// does not penalize the defense branch.
		return types.SensorResult{
			SensorName: s.Name(),
			Category:   s.Category(),
			Passed:     boolPtr(true),
			Value:      0.0,
			Threshold:  crestFactorThreshold,
			Detail:     "Signal is silent; crest factor undefined.",
			Metadata: map[string]any{
				"crest_factor": 0.0,
			},
		}
	}

	crestFactor := peak / rms
	passed := crestFactor >= crestFactorThreshold

	score := clip01(1 - crestFactor/(2*crestFactorThreshold))

	detail := "Dynamic range within natural bounds."
	if !passed {
		detail = "Dynamic range unnaturally compressed."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  crestFactorThreshold,
		Detail:     detail,
		Metadata: map[string]any{
			"crest_factor": crestFactor,
			"peak":         peak,
			"rms":          rms,
		},
	}
}
