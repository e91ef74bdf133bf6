package sensors

import (
	"math"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	breathingBandLowHz  = 20.0
	breathingBandHighHz = 300.0

	breathingFrameMs = 30.0
	breathingHopMs   = 10.0

	breathingMinPeakSpacingSeconds = 1.0
	breathingMinIntervalSeconds    = 1.0
	breathingMaxIntervalSeconds    = 8.0

	breathingCVNormalization = 0.3
)

// BreathingPatternSensor isolates the low-frequency respiration band and
// checks whether inter-breath intervals show natural variability.
// Informational: the score is the coefficient of variation of the
// intervals divided by 0.3 (clipped to [0,1]), so low variability
// (too-regular breathing) gives a low score; it never votes on its own.
type BreathingPatternSensor struct{}

func NewBreathingPatternSensor() *BreathingPatternSensor { return &BreathingPatternSensor{} }

func (s *BreathingPatternSensor) Name() string { return "BreathingPatternSensor" }

func (s *BreathingPatternSensor) Category() types.SensorCategory {
	return types.CategoryInformational
}

func (s *BreathingPatternSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	envelope, hopSeconds := breathingBandEnvelope(wf.Samples, wf.SampleRate)
	if len(envelope) == 0 {
		return invalidResult(s)
	}

	peakFrames := detectAdaptivePeaks(envelope, int(breathingMinPeakSpacingSeconds/hopSeconds))

	var intervals []float64

	for i := 1; i < len(peakFrames); i++ {
		interval := float64(peakFrames[i]-peakFrames[i-1]) * hopSeconds
		if interval >= breathingMinIntervalSeconds && interval <= breathingMaxIntervalSeconds {
			intervals = append(intervals, interval)
		}
	}

	var cv float64

	if len(intervals) >= 2 {
		m := mean(intervals)
		if m > 0 {
			cv = stddev(intervals, m) / m
		}
	}

	score := clip01(cv / breathingCVNormalization)

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     nil,
		Value:      score,
		Threshold:  1.0,
		Detail:     "Breathing pattern regularity assessed; informational only.",
		Metadata: map[string]any{
			"breath_count":           len(peakFrames),
			"interval_cv":            cv,
			"usable_interval_count":  len(intervals),
		},
	}
}

// breathingBandEnvelope band-limits the signal to the respiration range
// via per-frame STFT masking, then returns the resulting RMS envelope.
func breathingBandEnvelope(samples []float64, sampleRate int) ([]float64, float64) {
	frameLen := int(breathingFrameMs * float64(sampleRate) / 1000)
	hop := int(breathingHopMs * float64(sampleRate) / 1000)

	frames := dsp.Frame(samples, frameLen, hop)
	if len(frames) == 0 {
		return nil, 0
	}

	fft := dsp.NewFFT(frameLen)
	win := dsp.HannWindow(frameLen)

	envelope := make([]float64, len(frames))

	for i, f := range frames {
		mag := dsp.STFTFrame(fft, f, win, frameLen)

		var bandEnergy float64

		for bin, m := range mag {
			hz := float64(bin) * float64(sampleRate) / float64(frameLen)
			if hz >= breathingBandLowHz && hz <= breathingBandHighHz {
				bandEnergy += m * m
			}
		}

		envelope[i] = math.Sqrt(bandEnergy / float64(len(mag)))
	}

	return envelope, float64(hop) / float64(sampleRate)
}

// detectAdaptivePeaks finds local maxima above median+1.5*MAD, enforcing
// a minimum spacing between accepted peaks.
func detectAdaptivePeaks(envelope []float64, minSpacing int) []int {
	if len(envelope) == 0 {
		return nil
	}

	medianV := dsp.Percentile(envelope, 50)

	deviations := make([]float64, len(envelope))
	for i, v := range envelope {
		deviations[i] = math.Abs(v - medianV)
	}

	mad := dsp.Percentile(deviations, 50)
	threshold := medianV + 1.5*mad

	var peaks []int

	lastPeak := -minSpacing

	for i := 1; i < len(envelope)-1; i++ {
		if envelope[i] <= threshold {
			continue
		}

		if envelope[i] <= envelope[i-1] || envelope[i] <= envelope[i+1] {
			continue
		}

		if i-lastPeak < minSpacing {
			continue
		}

		peaks = append(peaks, i)
		lastPeak = i
	}

	return peaks
}
