package sensors

import (
	"math"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	pitchF0Min = 65.0  // ~C2
	pitchF0Max = 2093.0 // ~C7
	pitchVoicingThreshold = 0.3

	pitchHopMs       = 10.0
	pitchFrameMs     = 30.0
	maxVelocityThreshold = 35.0 // semitones/second
)

// PitchVelocitySensor flags biologically impossible frame-to-frame pitch
// jumps — a prosecution sensor: failing means a fake was likely detected.
type PitchVelocitySensor struct{}

func NewPitchVelocitySensor() *PitchVelocitySensor { return &PitchVelocitySensor{} }

func (s *PitchVelocitySensor) Name() string                  { return "PitchVelocitySensor" }
func (s *PitchVelocitySensor) Category() types.SensorCategory { return types.CategoryProsecution }

func (s *PitchVelocitySensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	frameLen := int(pitchFrameMs * float64(wf.SampleRate) / 1000)
	hop := int(pitchHopMs * float64(wf.SampleRate) / 1000)
	frames := dsp.Frame(wf.Samples, frameLen, hop)

	type voicedFrame struct {
		index int
		hz    float64
	}

	var voiced []voicedFrame

	for i, f := range frames {
		if hz, ok := trackF0(f, wf.SampleRate, pitchF0Min, pitchF0Max, pitchVoicingThreshold); ok {
			voiced = append(voiced, voicedFrame{index: i, hz: hz})
		}
	}

	var velocities []float64

	for i := 1; i < len(voiced); i++ {
		dt := float64(voiced[i].index-voiced[i-1].index) * pitchHopMs / 1000.0
		if dt <= 0 {
			continue
		}

		semitones := 12 * math.Log2(voiced[i].hz/voiced[i-1].hz)
		velocities = append(velocities, math.Abs(semitones/dt))
	}

	var maxVelocity float64
	if len(velocities) > 0 {
		maxVelocity = dsp.Percentile(velocities, 99)
	}

	score := clip01((maxVelocity - 20) / 40)
	passed := maxVelocity <= maxVelocityThreshold

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  0.5,
		Detail:     "Pitch velocity analysis complete.",
		Metadata: map[string]any{
			"max_velocity_semitones_per_sec": maxVelocity,
			"voiced_frames":                  len(voiced),
		},
	}
}
