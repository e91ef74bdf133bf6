package sensors

import (
	"github.com/farcloser/sonotheia/internal/dsp/vad"
	"github.com/farcloser/sonotheia/internal/types"
)

// maxPhonationSeconds is the biological limit on a single continuous
// voiced run (tissue/lung-capacity constraint).
const maxPhonationSeconds = 14.0

// maxVoicedWithoutBreathSeconds is the "infinite lung capacity" check: no
// human utterance runs this long without at least one breath-sized pause.
const maxVoicedWithoutBreathSeconds = 15.0

// minBreathSilenceSeconds is the minimum gap length that counts as an
// intervening breath.
const minBreathSilenceSeconds = 0.2

// BreathSensor flags audio whose voiced runs exceed human phonation
// limits — defense sensor: passing means the breathing pattern is
// biologically plausible.
type BreathSensor struct{}

func NewBreathSensor() *BreathSensor { return &BreathSensor{} }

func (s *BreathSensor) Name() string                   { return "BreathSensor" }
func (s *BreathSensor) Category() types.SensorCategory  { return types.CategoryDefense }

func (s *BreathSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	segments := vad.Detect(wf.Samples, wf.SampleRate, vad.Options{})
	maxDuration := vad.MaxContinuousSpeech(segments)

	maxVoicedWithoutBreath, breathEvents := monitorRespiration(segments)

	respirationViolation := maxVoicedWithoutBreath > maxVoicedWithoutBreathSeconds

	passed := maxDuration <= maxPhonationSeconds && !respirationViolation
	score := sigmoid(maxDuration - maxPhonationSeconds)

	detail := "Breath/phonation pattern within biological limits."
	if !passed {
		detail = "Phonation or respiration pattern exceeds biological limits."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  0.5,
		Detail:     detail,
		Metadata: map[string]any{
			"max_continuous_speech_seconds":    maxDuration,
			"max_voiced_without_breath_seconds": maxVoicedWithoutBreath,
			"breath_event_count":               breathEvents,
		},
	}
}

// monitorRespiration walks the VAD segments and gaps between them,
// tracking the longest voiced run uninterrupted by a breath-sized pause
// and counting how many such pauses occurred.
func monitorRespiration(segments []vad.Segment) (maxVoicedWithoutBreath float64, breathEvents int) {
	if len(segments) == 0 {
		return 0, 0
	}

	runStart := segments[0].StartSeconds
	runEnd := segments[0].EndSeconds

	for i := 1; i < len(segments); i++ {
		gap := segments[i].StartSeconds - runEnd

		if gap >= minBreathSilenceSeconds {
			breathEvents++

			if d := runEnd - runStart; d > maxVoicedWithoutBreath {
				maxVoicedWithoutBreath = d
			}

			runStart = segments[i].StartSeconds
		}

		runEnd = segments[i].EndSeconds
	}

	if d := runEnd - runStart; d > maxVoicedWithoutBreath {
		maxVoicedWithoutBreath = d
	}

	return maxVoicedWithoutBreath, breathEvents
}

func invalidResult(s Sensor) types.SensorResult {
	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     nil,
		Detail:     "Invalid or empty audio input.",
	}
}
