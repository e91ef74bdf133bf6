package sensors

import (
	"math"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	glottalHopMs         = 2.5
	glottalWindowMs      = 5.0
	glottalMinRiseTimeMs = 10.0 // tissue-inertia minimum
	glottalSilenceDb     = -60.0
	glottalSpeechDb      = -20.0

	// suspiciousCutDb gates the "smart hard cut" logic: a cut from above
	// this level is treated as synthetic chop, below it as a noise gate.
	suspiciousCutDb = -40.0

	// onsetPhaseEntropyThreshold separates chaotic natural glottal bursts
	// from unnaturally clean synthetic onsets.
	onsetPhaseEntropyThreshold = 2.5
)

type glottalViolation struct {
	kind string
}

// GlottalInertiaSensor flags amplitude transitions faster than vocal-fold
// tissue inertia allows — a prosecution sensor.
type GlottalInertiaSensor struct{}

func NewGlottalInertiaSensor() *GlottalInertiaSensor { return &GlottalInertiaSensor{} }

func (s *GlottalInertiaSensor) Name() string                  { return "GlottalInertiaSensor" }
func (s *GlottalInertiaSensor) Category() types.SensorCategory { return types.CategoryProsecution }

func (s *GlottalInertiaSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	envelope := glottalEnvelope(wf.Samples, wf.SampleRate)

	var violations []glottalViolation

	onsets := findOnsets(envelope)

	for _, onsetFrame := range onsets {
		riseMs := measureRiseTime(envelope, onsetFrame)
		hasPhaseChaos := checkOnsetPhaseChaos(wf.Samples, wf.SampleRate, onsetFrame)

		if riseMs < glottalMinRiseTimeMs && !hasPhaseChaos {
			violations = append(violations, glottalViolation{kind: "impossible_rise_time"})
		}
	}

	violations = append(violations, detectHardCuts(envelope)...)

	score := clip01(float64(len(violations)) * 0.6)
	passed := score < 0.5

	detail := "Glottal inertia analysis passed."
	if !passed {
		detail = "Glottal inertia violations detected."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  0.5,
		Detail:     detail,
		Metadata: map[string]any{
			"violation_count": len(violations),
		},
	}
}

func glottalEnvelope(samples []float64, sampleRate int) []float64 {
	hop := int(glottalHopMs * float64(sampleRate) / 1000)
	frameLen := int(glottalWindowMs * float64(sampleRate) / 1000)
	frames := dsp.Frame(samples, frameLen, hop)

	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = dsp.ToDb(dsp.RMS(f))
	}

	return out
}

func findOnsets(envelope []float64) []int {
	var onsets []int

	isSpeech := false

	for i := 0; i < len(envelope)-1; i++ {
		switch {
		case !isSpeech && envelope[i] > glottalSilenceDb:
			for j := i + 1; j < i+20 && j < len(envelope); j++ {
				if envelope[j] > glottalSpeechDb {
					onsets = append(onsets, i)
					isSpeech = true

					break
				}
			}
		case isSpeech && envelope[i] < glottalSilenceDb:
			isSpeech = false
		}
	}

	return onsets
}

func measureRiseTime(envelope []float64, onsetFrame int) float64 {
	start := onsetFrame
	for start > 0 && envelope[start] > glottalSilenceDb {
		start--
	}

	end := onsetFrame
	for end < len(envelope) && envelope[end] < glottalSpeechDb {
		end++
	}

	if end >= len(envelope) {
		return 100.0 // invalid, treat as safely slow
	}

	return float64(end-start) * glottalHopMs
}

func checkOnsetPhaseChaos(samples []float64, sampleRate int, onsetFrame int) bool {
	onsetSample := int(float64(onsetFrame) * glottalHopMs / 1000.0 * float64(sampleRate))
	windowLen := int(0.02 * float64(sampleRate))

	if onsetSample+windowLen > len(samples) {
		return true // cannot check, assume natural
	}

	window := samples[onsetSample : onsetSample+windowLen]
	win := dsp.HannWindow(len(window))

	windowed := make([]float64, len(window))
	for i, s := range window {
		windowed[i] = s * win[i]
	}

	analytic := dsp.AnalyticSignal(windowed)
	phase := make([]float64, len(analytic))

	for i := range phase {
		phase[i] = math.Atan2(imag(analytic[i]), real(analytic[i]))
	}

	unwrapped := dsp.UnwrapPhase(phase)
	derivative := dsp.Diff(unwrapped)

	entropy := histogramEntropy(derivative, 50)

	return entropy > onsetPhaseEntropyThreshold
}

func histogramEntropy(x []float64, bins int) float64 {
	if len(x) == 0 {
		return 0
	}

	minV, maxV := x[0], x[0]

	for _, v := range x {
		if v < minV {
			minV = v
		}

		if v > maxV {
			maxV = v
		}
	}

	if maxV == minV {
		return 0
	}

	counts := make([]int, bins)
	width := (maxV - minV) / float64(bins)

	for _, v := range x {
		bin := int((v - minV) / width)
		if bin >= bins {
			bin = bins - 1
		}

		counts[bin]++
	}

	var entropy float64

	n := float64(len(x))

	for _, c := range counts {
		if c == 0 {
			continue
		}

		p := float64(c) / n / width
		entropy -= p * math.Log(p) * width
	}

	return entropy
}

func detectHardCuts(envelope []float64) []glottalViolation {
	var violations []glottalViolation

	isSpeech := false

	type offset struct{ frame int }

	var offsets []offset

	for i := 0; i < len(envelope)-1; i++ {
		switch {
		case envelope[i] > glottalSpeechDb:
			isSpeech = true
		case isSpeech && envelope[i] < glottalSilenceDb:
			offsets = append(offsets, offset{frame: i})
			isSpeech = false
		}
	}

	for _, off := range offsets {
		decayMs := measureDecayTime(envelope, off.frame)

		if decayMs < 10 {
			idx := off.frame - 1
			if idx < 0 {
				idx = 0
			}

			preCutEnergy := envelope[idx]

			if preCutEnergy > suspiciousCutDb {
				violations = append(violations, glottalViolation{kind: "hard_cut_ending"})
			}
			// else: benign noise gate, intentionally not flagged.
		}
	}

	return violations
}

func measureDecayTime(envelope []float64, offsetFrame int) float64 {
	start := offsetFrame
	for start > 0 && envelope[start] < glottalSpeechDb {
		start--
	}

	end := offsetFrame
	for end < len(envelope) && envelope[end] > glottalSilenceDb {
		end++
	}

	return float64(end-start) * glottalHopMs
}
