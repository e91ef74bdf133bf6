package sensors

import (
	"math"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/dsp/vad"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	prosodicFrameMs = 25.0
	prosodicHopMs   = 10.0

	prosodicF0Min             = 70.0
	prosodicF0Max             = 400.0
	prosodicVoicingThreshold  = 0.3
	prosodicZScoreThreshold   = 3.0
	prosodicMaxBreaksPerSec   = 2.0
	prosodicSNRThresholdDb    = 10.0
)

// ProsodicContinuitySensor flags abrupt frame-to-frame prosodic breaks
// (pitch, energy, timbre) inside VAD-detected speech — a prosecution
// sensor, gated off (passed=nil) when the recording is too noisy to
// trust the measurement.
type ProsodicContinuitySensor struct{}

func NewProsodicContinuitySensor() *ProsodicContinuitySensor { return &ProsodicContinuitySensor{} }

func (s *ProsodicContinuitySensor) Name() string { return "ProsodicContinuitySensor" }

func (s *ProsodicContinuitySensor) Category() types.SensorCategory {
	return types.CategoryProsecution
}

func (s *ProsodicContinuitySensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	segments := vad.Detect(wf.Samples, wf.SampleRate, vad.Options{})
	if len(segments) == 0 {
		return types.SensorResult{
			SensorName: s.Name(),
			Category:   s.Category(),
			Passed:     nil,
			Detail:     "No speech segments detected.",
		}
	}

	snr := estimateSNR(wf.Samples, wf.SampleRate)
	if snr < prosodicSNRThresholdDb {
		return types.SensorResult{
			SensorName: s.Name(),
			Category:   s.Category(),
			Passed:     nil,
			Value:      0,
			Detail:     "SNR too low to assess prosodic continuity.",
			Metadata: map[string]any{
				"estimated_snr_db": snr,
			},
		}
	}

	frameLen := int(prosodicFrameMs * float64(wf.SampleRate) / 1000)
	hop := int(prosodicHopMs * float64(wf.SampleRate) / 1000)

	var f0s, rmss, centroids []float64

	var speechDuration float64

	fft := dsp.NewFFT(frameLen)
	win := dsp.HannWindow(frameLen)

	for _, seg := range segments {
		start := int(seg.StartSeconds * float64(wf.SampleRate))
		end := int(seg.EndSeconds * float64(wf.SampleRate))

		if start < 0 {
			start = 0
		}

		if end > len(wf.Samples) {
			end = len(wf.Samples)
		}

		if end-start < frameLen {
			continue
		}

		speechDuration += seg.EndSeconds - seg.StartSeconds

		frames := dsp.Frame(wf.Samples[start:end], frameLen, hop)
		for _, f := range frames {
			if hz, ok := trackF0(f, wf.SampleRate, prosodicF0Min, prosodicF0Max, prosodicVoicingThreshold); ok {
				f0s = append(f0s, hz)
				rmss = append(rmss, dsp.RMS(f))

				mag := dsp.STFTFrame(fft, f, win, frameLen)
				centroids = append(centroids, spectralCentroidHz(mag, wf.SampleRate, frameLen))
			}
		}
	}

	breaks := countZScoreBreaks(f0s) + countZScoreBreaks(rmss) + countZScoreBreaks(centroids)

	var breaksPerSecond float64
	if speechDuration > 0 {
		breaksPerSecond = float64(breaks) / speechDuration
	}

	passed := breaksPerSecond <= prosodicMaxBreaksPerSec
	score := clip01(breaksPerSecond / (2 * prosodicMaxBreaksPerSec))

	detail := "Prosodic contour is continuous."
	if !passed {
		detail = "Prosodic breaks exceed natural speech rate."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  prosodicMaxBreaksPerSec,
		Detail:     detail,
		Metadata: map[string]any{
			"breaks_per_second": breaksPerSecond,
			"voiced_frames":     len(f0s),
			"estimated_snr_db":  snr,
		},
	}
}

func countZScoreBreaks(series []float64) int {
	if len(series) < 3 {
		return 0
	}

	deltas := dsp.Diff(series)

	m := mean(deltas)
	sd := stddev(deltas, m)

	if sd == 0 {
		return 0
	}

	breaks := 0

	for _, d := range deltas {
		z := (d - m) / sd
		if math.Abs(z) > prosodicZScoreThreshold {
			breaks++
		}
	}

	return breaks
}

func spectralCentroidHz(mag []float64, sampleRate, fftSize int) float64 {
	var weighted, total float64

	for i, m := range mag {
		hz := float64(i) * float64(sampleRate) / float64(fftSize)
		weighted += hz * m
		total += m
	}

	if total == 0 {
		return 0
	}

	return weighted / total
}

// estimateSNR approximates signal-to-noise ratio as
// 20*log10(top-50% RMS / bottom-20% RMS) over short frames.
func estimateSNR(samples []float64, sampleRate int) float64 {
	frameLen := sampleRate / 50 // 20ms
	if frameLen < 1 {
		frameLen = 1
	}

	frames := dsp.Frame(samples, frameLen, frameLen)
	if len(frames) == 0 {
		return 0
	}

	energies := make([]float64, len(frames))
	for i, f := range frames {
		energies[i] = dsp.RMS(f)
	}

	topThreshold := dsp.Percentile(energies, 50)
	bottomThreshold := dsp.Percentile(energies, 20)

	var topSum, topCount, bottomSum, bottomCount float64

	for _, e := range energies {
		if e >= topThreshold {
			topSum += e
			topCount++
		}

		if e <= bottomThreshold {
			bottomSum += e
			bottomCount++
		}
	}

	if topCount == 0 || bottomCount == 0 {
		return 0
	}

	topMean := topSum / topCount
	bottomMean := bottomSum / bottomCount

	if bottomMean <= 0 {
		return 100.0 // effectively silent noise floor
	}

	return 20 * math.Log10(topMean/bottomMean)
}
