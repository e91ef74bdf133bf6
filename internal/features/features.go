// Package features implements Component B: MFCC/LFCC/log-spectrogram/
// spectral feature extraction, delta/delta-delta augmentation, and the
// anomaly-score proxy fed into fusion.
package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

// featureAnomalyStdSaturation is the empirical normalization constant from
// the original feature-statistics heuristic (std/10.0, clipped to [0,1]).
// Tunable, not re-derived.
const featureAnomalyStdSaturation = 10.0

// Config mirrors config.FeatureExtraction without importing it, to keep
// this package dependency-free of the config layer.
type Config struct {
	SampleRate    int
	NFFT          int
	HopLength     int
	WinLength     int
	NMFCC         int
	NLFCC         int
	FeatureTypes  []string
	IncludeDeltas bool
}

// Stats holds the four summary statistics computed per feature type and
// for the combined matrix.
type Stats struct {
	Mean, Std, Min, Max float64
}

// Result is Component B's full output.
type Result struct {
	Success       bool
	Features      map[string]types.FeatureMatrix
	Combined      types.FeatureMatrix
	FeatureStats  map[string]Stats
	CombinedStats Stats
	AnomalyScore  float64
}

// Process extracts every configured feature type from wf, combines them,
// and computes the anomaly-score proxy.
func Process(wf *types.Waveform, cfg Config) Result {
	if wf == nil || len(wf.Samples) == 0 {
		return Result{Success: false, AnomalyScore: 0.5}
	}

	samples := padForAnalysis(wf.Samples, cfg.NFFT)

	featureMats := make(map[string]types.FeatureMatrix)
	statsByType := make(map[string]Stats)

	for _, ft := range cfg.FeatureTypes {
		mat := extract(samples, cfg, ft)
		if mat.Frames() == 0 {
			continue
		}

		featureMats[ft] = mat
		statsByType[ft] = computeStats(mat)
	}

	combined := combine(featureMats)

	if cfg.IncludeDeltas && combined.Frames() > 0 {
		d1 := delta(combined, 1)
		d2 := delta(combined, 2)
		combined = concatCols(combined, d1, d2)
	}

	return Result{
		Success:       true,
		Features:      featureMats,
		Combined:      combined,
		FeatureStats:  statsByType,
		CombinedStats: computeStats(combined),
		AnomalyScore:  anomalyScore(statsByType),
	}
}

func padForAnalysis(samples []float64, nFFT int) []float64 {
	minLen := max(nFFT, 2048)
	if len(samples) >= minLen {
		return samples
	}

	out := make([]float64, minLen)
	copy(out, samples)

	return out
}

func extract(samples []float64, cfg Config, featType string) types.FeatureMatrix {
	switch featType {
	case "mfcc":
		return extractCepstral(samples, cfg, cfg.NMFCC, true)
	case "lfcc":
		return extractCepstral(samples, cfg, cfg.NLFCC, false)
	case "logspec":
		return extractLogspec(samples, cfg)
	case "spectral":
		return extractSpectralSummary(samples, cfg)
	default:
		return types.FeatureMatrix{}
	}
}

// extractCepstral computes a DCT-II of the log-magnitude STFT, truncated
// to n coefficients. When mel is true the log-magnitude is first passed
// through a triangular mel filterbank (MFCC); otherwise the DCT runs
// directly over the linear-frequency log-magnitude (LFCC) per spec §4.B.
func extractCepstral(samples []float64, cfg Config, n int, mel bool) types.FeatureMatrix {
	fft := dsp.NewFFT(cfg.NFFT)
	win := dsp.HannWindow(cfg.WinLength)
	frames := dsp.Frame(samples, cfg.WinLength, cfg.HopLength)

	var filterbank [][]float64
	if mel {
		filterbank = melFilterbank(cfg.NFFT, cfg.SampleRate, n*2)
	}

	data := make([][]float64, len(frames))

	for i, f := range frames {
		mag := dsp.STFTFrame(fft, f, win, cfg.NFFT)
		logMag := logMagnitude(mag)

		if mel {
			logMag = applyFilterbank(logMag, filterbank)
		}

		data[i] = dctII(logMag, n)
	}

	return types.FeatureMatrix{Data: data, Dim: n, FrameHop: cfg.HopLength, FrameRate: cfg.SampleRate}
}

func extractLogspec(samples []float64, cfg Config) types.FeatureMatrix {
	fft := dsp.NewFFT(cfg.NFFT)
	win := dsp.HannWindow(cfg.WinLength)
	frames := dsp.Frame(samples, cfg.WinLength, cfg.HopLength)

	data := make([][]float64, len(frames))
	dim := cfg.NFFT/2 + 1

	for i, f := range frames {
		mag := dsp.STFTFrame(fft, f, win, cfg.NFFT)
		data[i] = logMagnitude(mag)
	}

	return types.FeatureMatrix{Data: data, Dim: dim, FrameHop: cfg.HopLength, FrameRate: cfg.SampleRate}
}

// extractSpectralSummary computes per-frame centroid/bandwidth/rolloff —
// 3 columns, matching librosa.feature.spectral_{centroid,bandwidth,rolloff}.
func extractSpectralSummary(samples []float64, cfg Config) types.FeatureMatrix {
	fft := dsp.NewFFT(cfg.NFFT)
	win := dsp.HannWindow(cfg.WinLength)
	frames := dsp.Frame(samples, cfg.WinLength, cfg.HopLength)
	binHz := float64(cfg.SampleRate) / float64(cfg.NFFT)

	data := make([][]float64, len(frames))

	for i, f := range frames {
		mag := dsp.STFTFrame(fft, f, win, cfg.NFFT)
		centroid := spectralCentroid(mag, binHz)
		bandwidth := spectralBandwidth(mag, binHz, centroid)
		rolloff := spectralRolloff(mag, binHz, 0.85)
		data[i] = []float64{centroid, bandwidth, rolloff}
	}

	return types.FeatureMatrix{Data: data, Dim: 3, FrameHop: cfg.HopLength, FrameRate: cfg.SampleRate}
}

func logMagnitude(mag []float64) []float64 {
	out := make([]float64, len(mag))
	for i, m := range mag {
		out[i] = math.Log(m + 1e-10)
	}

	return out
}

// dctII computes the first n orthonormal DCT-II coefficients of x. gonum
// has no standalone DCT primitive, so this rolls the definition directly
// — the same shape every spectral-analysis repo in the retrieved corpus
// uses when it needs a DCT over an FFT-derived magnitude spectrum.
func dctII(x []float64, n int) []float64 {
	nn := len(x)
	out := make([]float64, n)

	for k := 0; k < n && k < nn; k++ {
		var sum float64

		for i, xi := range x {
			sum += xi * math.Cos(math.Pi/float64(nn)*(float64(i)+0.5)*float64(k))
		}

		scale := math.Sqrt(2.0 / float64(nn))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(nn))
		}

		out[k] = sum * scale
	}

	return out
}

// melFilterbank builds nFilters triangular filters spanning 0-Nyquist on
// the mel scale, matching librosa.filters.mel's default shape.
func melFilterbank(nFFT, sampleRate, nFilters int) [][]float64 {
	nBins := nFFT/2 + 1
	nyquist := float64(sampleRate) / 2

	hzToMel := func(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
	melToHz := func(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

	melMin := hzToMel(0)
	melMax := hzToMel(nyquist)

	points := make([]float64, nFilters+2)
	for i := range points {
		mel := melMin + (melMax-melMin)*float64(i)/float64(nFilters+1)
		points[i] = melToHz(mel)
	}

	bins := make([]int, len(points))
	for i, hz := range points {
		bins[i] = int(hz / nyquist * float64(nBins-1))
	}

	fb := make([][]float64, nFilters)

	for f := range fb {
		fb[f] = make([]float64, nBins)
		lo, mid, hi := bins[f], bins[f+1], bins[f+2]

		for b := lo; b < mid && b < nBins; b++ {
			if mid > lo {
				fb[f][b] = float64(b-lo) / float64(mid-lo)
			}
		}

		for b := mid; b < hi && b < nBins; b++ {
			if hi > mid {
				fb[f][b] = float64(hi-b) / float64(hi-mid)
			}
		}
	}

	return fb
}

func applyFilterbank(logMag []float64, fb [][]float64) []float64 {
	out := make([]float64, len(fb))

	for f, filter := range fb {
		var sum float64

		for i, v := range filter {
			if i < len(logMag) {
				sum += v * logMag[i]
			}
		}

		out[f] = sum
	}

	return out
}

func spectralCentroid(mag []float64, binHz float64) float64 {
	var weighted, total float64

	for i, m := range mag {
		freq := float64(i) * binHz
		weighted += freq * m
		total += m
	}

	if total == 0 {
		return 0
	}

	return weighted / total
}

func spectralBandwidth(mag []float64, binHz, centroid float64) float64 {
	var weighted, total float64

	for i, m := range mag {
		freq := float64(i) * binHz
		d := freq - centroid
		weighted += d * d * m
		total += m
	}

	if total == 0 {
		return 0
	}

	return math.Sqrt(weighted / total)
}

func spectralRolloff(mag []float64, binHz, fraction float64) float64 {
	var total float64
	for _, m := range mag {
		total += m
	}

	if total == 0 {
		return 0
	}

	target := total * fraction

	var cum float64

	for i, m := range mag {
		cum += m
		if cum >= target {
			return float64(i) * binHz
		}
	}

	return float64(len(mag)-1) * binHz
}

func combine(mats map[string]types.FeatureMatrix) types.FeatureMatrix {
	if len(mats) == 0 {
		return types.FeatureMatrix{}
	}

	minFrames := -1

	var hop, rate int

	for _, m := range mats {
		if minFrames == -1 || m.Frames() < minFrames {
			minFrames = m.Frames()
		}

		hop, rate = m.FrameHop, m.FrameRate
	}

	totalDim := 0
	for _, m := range mats {
		totalDim += m.Dim
	}

	data := make([][]float64, minFrames)
	for i := range data {
		row := make([]float64, 0, totalDim)
		for _, m := range mats {
			row = append(row, m.Data[i]...)
		}

		data[i] = row
	}

	return types.FeatureMatrix{Data: data, Dim: totalDim, FrameHop: hop, FrameRate: rate}
}

// delta computes the librosa-style finite-difference delta of the given
// order over a feature matrix's time axis.
func delta(m types.FeatureMatrix, order int) types.FeatureMatrix {
	cur := m

	for o := 0; o < order; o++ {
		cur = firstDifference(cur)
	}

	return cur
}

func firstDifference(m types.FeatureMatrix) types.FeatureMatrix {
	n := m.Frames()
	data := make([][]float64, n)

	for i := range data {
		row := make([]float64, m.Dim)

		switch {
		case n == 1:
			// row stays zero
		case i == 0:
			for j := range row {
				row[j] = m.Data[1][j] - m.Data[0][j]
			}
		case i == n-1:
			for j := range row {
				row[j] = m.Data[n-1][j] - m.Data[n-2][j]
			}
		default:
			for j := range row {
				row[j] = (m.Data[i+1][j] - m.Data[i-1][j]) / 2
			}
		}

		data[i] = row
	}

	return types.FeatureMatrix{Data: data, Dim: m.Dim, FrameHop: m.FrameHop, FrameRate: m.FrameRate}
}

func concatCols(mats ...types.FeatureMatrix) types.FeatureMatrix {
	if len(mats) == 0 {
		return types.FeatureMatrix{}
	}

	n := mats[0].Frames()
	totalDim := 0

	for _, m := range mats {
		totalDim += m.Dim
	}

	data := make([][]float64, n)

	for i := range data {
		row := make([]float64, 0, totalDim)
		for _, m := range mats {
			row = append(row, m.Data[i]...)
		}

		data[i] = row
	}

	return types.FeatureMatrix{Data: data, Dim: totalDim, FrameHop: mats[0].FrameHop, FrameRate: mats[0].FrameRate}
}

func computeStats(m types.FeatureMatrix) Stats {
	flat := make([]float64, 0, m.Frames()*m.Dim)
	for _, row := range m.Data {
		flat = append(flat, row...)
	}

	if len(flat) == 0 {
		return Stats{}
	}

	mean, std := stat.MeanStdDev(flat, nil)

	minV, maxV := flat[0], flat[0]

	for _, v := range flat {
		if v < minV {
			minV = v
		}

		if v > maxV {
			maxV = v
		}
	}

	return Stats{Mean: mean, Std: std, Min: minV, Max: maxV}
}

func anomalyScore(statsByType map[string]Stats) float64 {
	if len(statsByType) == 0 {
		return 0.5
	}

	var sum float64

	for _, s := range statsByType {
		normalized := s.Std / featureAnomalyStdSaturation
		if normalized > 1 {
			normalized = 1
		}

		sum += normalized
	}

	return sum / float64(len(statsByType))
}
