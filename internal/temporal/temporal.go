// Package temporal implements Component C: the per-frame RMS envelope
// (used as computed; it is not smoothed),
// discontinuity/transition z-score detectors, feature-anomaly scoring,
// and the combined temporal_score.
package temporal

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

// Config mirrors config.TemporalAnalysis.
type Config struct {
	SampleRate             int
	ThresholdStdMultiplier float64
}

// Anomaly marks a single detected discontinuity or transition.
type Anomaly struct {
	TimeSeconds float64
	Magnitude   float64
}

// Result is Component C's output.
type Result struct {
	Success          bool
	TemporalScore    float64
	Discontinuities  []Anomaly
	Transitions      []Anomaly
	FeatureAnomalies []Anomaly
}

const (
	frameMs = 25
	hopMs   = 10

	weightDiscontinuity = 0.4
	weightTransition    = 0.3
	weightFeature       = 0.3

	// saturation constants normalizing each sub-score into [0,1].
	discontinuitySaturation = 10.0
	transitionSaturation    = 10.0
	featureZSaturation      = 5.0
)

// Process analyzes wf's temporal envelope and, if provided, a combined
// feature matrix for per-frame anomaly detection.
func Process(wf *types.Waveform, combined types.FeatureMatrix, cfg Config) Result {
	if wf == nil || len(wf.Samples) == 0 {
		return Result{Success: false}
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = wf.SampleRate
	}

	envelope := energyEnvelope(wf.Samples, sampleRate)

	multiplier := cfg.ThresholdStdMultiplier
	if multiplier == 0 {
		multiplier = 2.0
	}

	discontinuities, discScore := detectDiscontinuities(envelope, multiplier)
	transitions, transScore := detectTransitions(wf.Samples, sampleRate, multiplier)
	featureAnoms, featScore := detectFeatureAnomalies(combined, multiplier)

	score := weightDiscontinuity*discScore + weightTransition*transScore + weightFeature*featScore

	return Result{
		Success:          true,
		TemporalScore:    clip01(score),
		Discontinuities:  discontinuities,
		Transitions:      transitions,
		FeatureAnomalies: featureAnoms,
	}
}

func energyEnvelope(samples []float64, sampleRate int) []float64 {
	frameLen := frameMs * sampleRate / 1000
	hop := hopMs * sampleRate / 1000

	frames := dsp.Frame(samples, frameLen, hop)
	envelope := make([]float64, len(frames))

	for i, f := range frames {
		envelope[i] = dsp.RMS(f)
	}

	return envelope
}

func detectDiscontinuities(envelope []float64, multiplier float64) ([]Anomaly, float64) {
	diffs := absDiff(envelope)
	if len(diffs) == 0 {
		return nil, 0
	}

	mean, std := stat.MeanStdDev(diffs, nil)
	threshold := mean + multiplier*std

	var anomalies []Anomaly

	for i, d := range diffs {
		if std > 0 && d > threshold {
			anomalies = append(anomalies, Anomaly{
				TimeSeconds: float64(i) * hopMs / 1000.0,
				Magnitude:   d,
			})
		}
	}

	return anomalies, clip01(float64(len(anomalies)) / discontinuitySaturation)
}

func detectTransitions(samples []float64, sampleRate int, multiplier float64) ([]Anomaly, float64) {
	frameLen := frameMs * sampleRate / 1000
	hop := hopMs * sampleRate / 1000
	frames := dsp.Frame(samples, frameLen, hop)

	if len(frames) < 2 {
		return nil, 0
	}

	fft := dsp.NewFFT(frameLen)
	win := dsp.HannWindow(frameLen)

	mags := make([][]float64, len(frames))
	for i, f := range frames {
		mags[i] = dsp.STFTFrame(fft, f, win, frameLen)
	}

	flux := make([]float64, len(mags)-1)

	for i := 1; i < len(mags); i++ {
		var sum float64

		for b := range mags[i] {
			d := mags[i][b] - mags[i-1][b]
			if d > 0 {
				sum += d
			}
		}

		flux[i-1] = sum
	}

	mean, std := stat.MeanStdDev(flux, nil)
	threshold := mean + multiplier*std

	var anomalies []Anomaly

	for i, v := range flux {
		if std > 0 && v > threshold {
			anomalies = append(anomalies, Anomaly{
				TimeSeconds: float64(i+1) * hopMs / 1000.0,
				Magnitude:   v,
			})
		}
	}

	return anomalies, clip01(float64(len(anomalies)) / transitionSaturation)
}

func detectFeatureAnomalies(combined types.FeatureMatrix, multiplier float64) ([]Anomaly, float64) {
	if combined.Frames() == 0 {
		return nil, 0
	}

	// Per-column z-score, then per-frame mean of |z|.
	cols := make([][]float64, combined.Dim)
	for c := range cols {
		cols[c] = make([]float64, combined.Frames())
	}

	for i, row := range combined.Data {
		for c, v := range row {
			cols[c][i] = v
		}
	}

	zCols := make([][]float64, combined.Dim)

	for c, col := range cols {
		mean, std := stat.MeanStdDev(col, nil)

		z := make([]float64, len(col))

		if std > 0 {
			for i, v := range col {
				z[i] = (v - mean) / std
			}
		}

		zCols[c] = z
	}

	perFrame := make([]float64, combined.Frames())

	for i := range perFrame {
		var sum float64

		for c := range zCols {
			sum += math.Abs(zCols[c][i])
		}

		perFrame[i] = sum / float64(len(zCols))
	}

	var anomalies []Anomaly

	var totalZ float64

	for i, v := range perFrame {
		totalZ += v

		if v > multiplier {
			anomalies = append(anomalies, Anomaly{
				TimeSeconds: float64(i) * float64(combined.FrameHop) / float64(max(combined.FrameRate, 1)),
				Magnitude:   v,
			})
		}
	}

	mean := totalZ / float64(len(perFrame))

	return anomalies, clip01(mean / featureZSaturation)
}

func absDiff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}

	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = math.Abs(x[i] - x[i-1])
	}

	return out
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
