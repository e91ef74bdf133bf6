package sensors

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

const (
	formantStatsFFTSize   = 2048
	formantStatsHop       = 512
	formantStatsLifter    = 20
	formantFlatnessThresh = 0.4
	formantKurtosisThresh = -1.0
	formantStdThresh      = 0.05
)

// GlobalFormantSensor analyzes the long-term average spectrum's statistical
// shape via cepstral envelope smoothing — a defense sensor: passing means
// the formant distribution looks biologically plausible.
type GlobalFormantSensor struct{}

func NewGlobalFormantSensor() *GlobalFormantSensor { return &GlobalFormantSensor{} }

func (s *GlobalFormantSensor) Name() string                  { return "GlobalFormantSensor" }
func (s *GlobalFormantSensor) Category() types.SensorCategory { return types.CategoryDefense }

func (s *GlobalFormantSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	ltas := longTermAverageSpectrum(wf.Samples, wf.SampleRate)
	if len(ltas) == 0 {
		return invalidResult(s)
	}

	m := mean(ltas)
	sd := stddev(ltas, m)
	skew := stat.Skew(ltas, nil)
	kurt := stat.ExKurtosis(ltas, nil)
	flatness := geometricMean(ltas) / (m + 1e-10)

	score := 0.0

	if flatness > formantFlatnessThresh {
		score += 0.4
	}

	if kurt < formantKurtosisThresh {
		score += 0.3
	}

	if sd < formantStdThresh {
		score += 0.3
	}

	score = clip01(score)
	passed := score < 0.5

	detail := "Global formant statistics within natural range."
	if !passed {
		detail = "Unnatural spectral envelope statistics."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  0.5,
		Detail:     detail,
		Metadata: map[string]any{
			"mean":     m,
			"std":      sd,
			"skew":     skew,
			"kurtosis": kurt,
			"flatness": flatness,
		},
	}
}

// longTermAverageSpectrum returns the time-averaged, peak-normalized
// cepstral envelope magnitude across all frames.
func longTermAverageSpectrum(samples []float64, sampleRate int) []float64 {
	frames := dsp.Frame(samples, formantStatsFFTSize, formantStatsHop)
	if len(frames) == 0 {
		frames = [][]float64{padTo(samples, formantStatsFFTSize)}
	}

	bins := formantStatsFFTSize/2 + 1
	sum := make([]float64, bins)

	for _, f := range frames {
		env := dsp.CepstralEnvelope(f, sampleRate, formantStatsFFTSize, formantStatsLifter)

		for i := 0; i < bins && i < len(env); i++ {
			sum[i] += env[i]
		}
	}

	ltas := make([]float64, bins)

	maxV := 0.0

	for i := range sum {
		ltas[i] = sum[i] / float64(len(frames))

		if ltas[i] > maxV {
			maxV = ltas[i]
		}
	}

	for i := range ltas {
		ltas[i] /= maxV + 1e-10
	}

	return ltas
}

func padTo(samples []float64, n int) []float64 {
	if len(samples) >= n {
		return samples[:n]
	}

	out := make([]float64, n)
	copy(out, samples)

	return out
}

func geometricMean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}

	var logSum float64

	for _, v := range x {
		logSum += math.Log(v + 1e-10)
	}

	return math.Exp(logSum / float64(len(x)))
}
