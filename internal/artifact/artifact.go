// Package artifact implements Component D: the five artifact
// sub-detectors (silence, clicks, spectral anomalies, phase artifacts,
// statistical features) and their combined artifact_score.
package artifact

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

// Config mirrors config.ArtifactDetection.
type Config struct {
	SampleRate         int
	SilenceThresholdDb float64
	MinSilenceDuration float64
	ClickThreshold     float64
	ClickMinGap        int
}

// SilenceRegion is a detected span of near-silence.
type SilenceRegion struct {
	StartSeconds float64
	EndSeconds   float64
}

// Click is a detected impulsive artifact.
type Click struct {
	TimeSeconds float64
	Magnitude   float64
}

// StatisticalFeatures summarizes the waveform's raw sample statistics.
type StatisticalFeatures struct {
	Mean, Std, Kurtosis, Skewness, ZCR, RMS float64
}

// Result is Component D's output. Each sub-score is already capped at its
// weight; ArtifactScore is their sum.
type Result struct {
	Success           bool
	ArtifactScore     float64
	SilenceRegions    []SilenceRegion
	Clicks            []Click
	SpectralHoles     int
	PhaseJumps        int
	Statistical       StatisticalFeatures
	SilenceSubscore   float64
	ClickSubscore     float64
	SpectralSubscore  float64
	PhaseSubscore     float64
	StatSubscore      float64
}

const (
	weightSilence    = 0.2
	weightClick      = 0.2
	weightSpectral   = 0.2
	weightPhase      = 0.2
	weightStatistics = 0.2

	frameMs = 25
	hopMs   = 10
)

// Process runs all five sub-detectors over wf.
func Process(wf *types.Waveform, cfg Config) Result {
	if wf == nil || len(wf.Samples) == 0 {
		return Result{Success: false}
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = wf.SampleRate
	}

	silenceThresh := cfg.SilenceThresholdDb
	if silenceThresh == 0 {
		silenceThresh = -40.0
	}

	minSilence := cfg.MinSilenceDuration
	if minSilence == 0 {
		minSilence = 0.1
	}

	clickThresh := cfg.ClickThreshold
	if clickThresh == 0 {
		clickThresh = 0.8
	}

	clickMinGap := cfg.ClickMinGap
	if clickMinGap == 0 {
		clickMinGap = 100
	}

	regions, silenceSub := detectSilence(wf.Samples, sampleRate, silenceThresh, minSilence)
	clicks, clickSub := detectClicks(wf.Samples, clickThresh, clickMinGap)
	holes, spectralSub := detectSpectralAnomalies(wf.Samples, sampleRate)
	jumps, phaseSub := detectPhaseArtifacts(wf.Samples, sampleRate)
	statFeatures, statSub := computeStatisticalFeatures(wf.Samples, sampleRate)

	return Result{
		Success:          true,
		SilenceRegions:   regions,
		Clicks:           clicks,
		SpectralHoles:    holes,
		PhaseJumps:       jumps,
		Statistical:      statFeatures,
		SilenceSubscore:  silenceSub,
		ClickSubscore:    clickSub,
		SpectralSubscore: spectralSub,
		PhaseSubscore:    phaseSub,
		StatSubscore:     statSub,
		ArtifactScore:    silenceSub + clickSub + spectralSub + phaseSub + statSub,
	}
}

func detectSilence(samples []float64, sampleRate int, thresholdDb, minDuration float64) ([]SilenceRegion, float64) {
	frameLen := frameMs * sampleRate / 1000
	hop := hopMs * sampleRate / 1000
	frames := dsp.Frame(samples, frameLen, hop)

	var regions []SilenceRegion

	inSilence := false

	var start int

	for i, f := range frames {
		silent := dsp.ToDb(dsp.RMS(f)) < thresholdDb

		switch {
		case silent && !inSilence:
			inSilence = true
			start = i
		case !silent && inSilence:
			inSilence = false

			s := float64(start) * hopMs / 1000.0
			e := float64(i) * hopMs / 1000.0

			if e-s >= minDuration {
				regions = append(regions, SilenceRegion{StartSeconds: s, EndSeconds: e})
			}
		}
	}

	if inSilence {
		s := float64(start) * hopMs / 1000.0
		e := float64(len(frames)) * hopMs / 1000.0

		if e-s >= minDuration {
			regions = append(regions, SilenceRegion{StartSeconds: s, EndSeconds: e})
		}
	}

	sub := weightSilence * clip01(float64(len(regions))/10.0)

	return regions, sub
}

func detectClicks(samples []float64, threshold float64, minGap int) ([]Click, float64) {
	diffs := dsp.Diff(samples)

	var clicks []Click

	lastIdx := -minGap - 1

	for i, d := range diffs {
		if math.Abs(d) > threshold && i-lastIdx >= minGap {
			clicks = append(clicks, Click{TimeSeconds: 0, Magnitude: math.Abs(d)})
			lastIdx = i
		}
	}

	sub := weightClick * clip01(float64(len(clicks))/20.0)

	return clicks, sub
}

func detectSpectralAnomalies(samples []float64, sampleRate int) (int, float64) {
	frameLen := 512
	if frameLen > len(samples) {
		return 0, 0
	}

	fft := dsp.NewFFT(frameLen)
	win := dsp.HannWindow(frameLen)
	frames := dsp.Frame(samples, frameLen, frameLen/2)

	holes := 0

	for _, f := range frames {
		mag := dsp.STFTFrame(fft, f, win, frameLen)

		mean, std := stat.MeanStdDev(mag, nil)
		threshold := mean - 3*std

		for _, m := range mag {
			if m < threshold && threshold > 0 {
				holes++
			}
		}
	}

	return holes, weightSpectral * clip01(float64(holes)/50.0)
}

func detectPhaseArtifacts(samples []float64, sampleRate int) (int, float64) {
	frameLen := 512
	if frameLen > len(samples) {
		return 0, 0
	}

	frames := dsp.Frame(samples, frameLen, frameLen/2)

	jumps := 0

	for _, f := range frames {
		analytic := dsp.AnalyticSignal(f)

		phase := make([]float64, len(analytic))
		for i, c := range analytic {
			phase[i] = math.Atan2(imag(c), real(c))
		}

		unwrapped := dsp.UnwrapPhase(phase)
		diffs := dsp.Diff(unwrapped)

		for _, d := range diffs {
			if math.Abs(d) > math.Pi/2 {
				jumps++
			}
		}
	}

	return jumps, weightPhase * clip01(float64(jumps)/100.0)
}

func computeStatisticalFeatures(samples []float64, sampleRate int) (StatisticalFeatures, float64) {
	mean, std := stat.MeanStdDev(samples, nil)
	kurt := stat.ExKurtosis(samples, nil)
	skewness := stat.Skew(samples, nil)
	rms := dsp.RMS(samples)

	zcr := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			zcr++
		}
	}

	zcrRate := float64(zcr) / float64(max(len(samples), 1))

	// Higher excess kurtosis and skew magnitude are weak synthesis tells;
	// weight capped at weightStatistics.
	sub := weightStatistics * clip01((math.Abs(kurt)+math.Abs(skewness))/10.0)

	return StatisticalFeatures{
		Mean: mean, Std: std, Kurtosis: kurt, Skewness: skewness, ZCR: zcrRate, RMS: rms,
	}, sub
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
