package sensors

import (
	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	formantTrajFrameMs = 30.0
	formantTrajHopMs   = 15.0
	formantTrajFFTSize = 1024
	formantTrajLifter  = 20
	formantCount       = 3

	deltaF1Threshold = 220.0
	deltaF2Threshold = 176.0
	deltaF3Threshold = 132.0

	formantViolationRatioThreshold = 0.25
)

// FormantTrajectorySensor tracks the first three formants frame-to-frame
// via cepstral-envelope peak picking — never linear-prediction residuals,
// a deliberate departure from LPC-based formant tracking — and flags
// implausibly large jumps. A prosecution sensor.
type FormantTrajectorySensor struct{}

func NewFormantTrajectorySensor() *FormantTrajectorySensor { return &FormantTrajectorySensor{} }

func (s *FormantTrajectorySensor) Name() string { return "FormantTrajectorySensor" }

func (s *FormantTrajectorySensor) Category() types.SensorCategory {
	return types.CategoryProsecution
}

func (s *FormantTrajectorySensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	frameLen := int(formantTrajFrameMs * float64(wf.SampleRate) / 1000)
	hop := int(formantTrajHopMs * float64(wf.SampleRate) / 1000)
	frames := dsp.Frame(wf.Samples, frameLen, hop)

	if len(frames) < 2 {
		return invalidResult(s)
	}

	trajectories := make([][]float64, 0, len(frames))

	for _, f := range frames {
		env := dsp.CepstralEnvelope(f, wf.SampleRate, formantTrajFFTSize, formantTrajLifter)
		formants := pickFormants(env, wf.SampleRate, formantTrajFFTSize, formantCount)
		trajectories = append(trajectories, formants)
	}

	violations := 0
	pairs := 0

	for i := 1; i < len(trajectories); i++ {
		prev, cur := trajectories[i-1], trajectories[i]

		pairs++

		d1 := absDiff(cur[0], prev[0])
		d2 := absDiff(cur[1], prev[1])
		d3 := absDiff(cur[2], prev[2])

		if d1 > deltaF1Threshold || d2 > deltaF2Threshold || d3 > deltaF3Threshold {
			violations++
		}
	}

	var ratio float64
	if pairs > 0 {
		ratio = float64(violations) / float64(pairs)
	}

	score := clip01(ratio / formantViolationRatioThreshold)
	passed := ratio <= formantViolationRatioThreshold

	detail := "Formant trajectories progress within natural limits."
	if !passed {
		detail = "Formant trajectories show implausible frame-to-frame jumps."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  formantViolationRatioThreshold,
		Detail:     detail,
		Metadata: map[string]any{
			"violation_ratio": ratio,
			"frame_pairs":     pairs,
		},
	}
}

// pickFormants locates the first n local maxima of the cepstral envelope
// above the first bin, in ascending frequency order, padding with the
// Nyquist frequency when fewer peaks are found than requested.
func pickFormants(envelope []float64, sampleRate, fftSize, n int) []float64 {
	type peak struct {
		bin int
		mag float64
	}

	var peaks []peak

	for i := 2; i < len(envelope)-2; i++ {
		if envelope[i] > envelope[i-1] && envelope[i] > envelope[i+1] {
			peaks = append(peaks, peak{bin: i, mag: envelope[i]})
		}
	}

	out := make([]float64, n)
	nyquist := float64(sampleRate) / 2

	binHz := float64(sampleRate) / float64(fftSize)

	count := 0

	for _, p := range peaks {
		if count >= n {
			break
		}

		out[count] = float64(p.bin) * binHz
		count++
	}

	for i := count; i < n; i++ {
		out[i] = nyquist
	}

	return out
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}

	return b - a
}
