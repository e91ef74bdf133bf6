// Package dsp holds the signal-processing primitives shared by feature
// extraction, temporal analysis, artifact detection, and the physics
// sensors: framing, windowing, FFT/STFT, cepstral envelope estimation,
// and the analytic-signal (Hilbert) transform.
package dsp

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const epsilon = 1e-10

// RMS returns the root-mean-square amplitude of a frame.
func RMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}

	var sum float64
	for _, s := range frame {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(frame)))
}

// ToDb converts a linear amplitude to dBFS, floored at -200dB to avoid -Inf.
func ToDb(amplitude float64) float64 {
	if amplitude <= 0 {
		return -200.0
	}

	return 20 * math.Log10(amplitude+epsilon)
}

// Frame splits samples into overlapping frames of frameLen with the given
// hop, matching the librosa/scipy "25ms window / 10ms hop" convention used
// throughout the sensor suite.
func Frame(samples []float64, frameLen, hop int) [][]float64 {
	if frameLen <= 0 || hop <= 0 || len(samples) < frameLen {
		return nil
	}

	var frames [][]float64
	for i := 0; i+frameLen <= len(samples); i += hop {
		frame := make([]float64, frameLen)
		copy(frame, samples[i:i+frameLen])
		frames = append(frames, frame)
	}

	return frames
}

// HannWindow returns a symmetric Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0
	}

	return window.Hann(w)
}

// STFTFrame computes the magnitude spectrum of one windowed frame. fftSize
// must be >= len(frame); the frame is zero-padded as needed.
func STFTFrame(fft *fourier.FFT, frame []float64, win []float64, fftSize int) []float64 {
	in := make([]float64, fftSize)
	for i, s := range frame {
		if i >= len(win) {
			break
		}

		in[i] = s * win[i]
	}

	coeffs := fft.Coefficients(nil, in)
	mag := make([]float64, len(coeffs))

	for i, c := range coeffs {
		mag[i] = cmplx.Abs(c)
	}

	return mag
}

// NewFFT is a thin wrapper so callers don't import gonum/dsp/fourier
// directly; kept for symmetry with the rest of this package's API.
func NewFFT(n int) *fourier.FFT {
	return fourier.NewFFT(n)
}

// CepstralEnvelope estimates the spectral envelope of a frame via
// homomorphic (cepstral liftering) analysis: log-magnitude spectrum,
// inverse FFT to the cepstral domain, zero out the high-quefrency
// (fine-structure/pitch) coefficients, FFT back.
//
// This is the patent-safe alternative to Linear Predictive Coding: it
// never computes an LPC residual or models the glottal source directly,
// only the smoothed log-magnitude envelope. lifter is the cepstral
// cutoff (original_source uses 20: cepstrum[20:-20] zeroed).
func CepstralEnvelope(frame []float64, sampleRate, fftSize, lifter int) []float64 {
	win := HannWindow(len(frame))
	windowed := make([]float64, len(frame))

	for i, s := range frame {
		windowed[i] = s * win[i]
	}

	// Pre-emphasis, matching global_formants.py's 0.97 coefficient.
	const preEmphasis = 0.97

	emph := make([]float64, len(windowed))
	emph[0] = windowed[0]

	for i := 1; i < len(windowed); i++ {
		emph[i] = windowed[i] - preEmphasis*windowed[i-1]
	}

	fft := fourier.NewFFT(fftSize)
	in := make([]float64, fftSize)
	copy(in, emph)

	spectrum := fft.Coefficients(nil, in)

	logMag := make([]complex128, len(spectrum))
	for i, c := range spectrum {
		logMag[i] = complex(math.Log(cmplx.Abs(c)+epsilon), 0)
	}

	cepstrum := make([]complex128, len(logMag))
	copy(cepstrum, logMag)
	ifftInPlace(cepstrum)

	// Lifter: zero the quefrency range that carries pitch/fine structure,
	// keeping only the low-quefrency envelope shape.
	n := len(cepstrum)
	for i := lifter; i < n-lifter; i++ {
		cepstrum[i] = 0
	}

	fftInPlace(cepstrum)

	envelope := make([]float64, n/2+1)
	for i := range envelope {
		envelope[i] = math.Exp(real(cepstrum[i]))
	}

	return envelope
}

// fftInPlace and ifftInPlace implement a naive O(n^2) DFT/IDFT over
// complex128. The cepstral lifter only ever runs on frame-sized buffers
// (hundreds of samples), so the naive transform is adequate; gonum's FFT
// type only operates on real-valued input, which the cepstral round trip
// (log-magnitude -> complex cepstrum -> relifted spectrum) does not fit.
func ifftInPlace(x []complex128) {
	dft(x, 1)

	n := complex(float64(len(x)), 0)
	for i := range x {
		x[i] /= n
	}
}

func fftInPlace(x []complex128) {
	dft(x, -1)
}

func dft(x []complex128, sign float64) {
	n := len(x)
	out := make([]complex128, n)

	for k := 0; k < n; k++ {
		var sum complex128

		for t := 0; t < n; t++ {
			angle := sign * 2 * math.Pi * float64(k*t) / float64(n)
			sum += x[t] * cmplx.Rect(1, angle)
		}

		out[k] = sum
	}

	copy(x, out)
}

// AnalyticSignal returns the Hilbert-transform analytic signal of a real
// frame, used to derive instantaneous phase without ever touching an LPC
// residual (phase coherence sensor).
func AnalyticSignal(frame []float64) []complex128 {
	n := len(frame)
	spec := make([]complex128, n)

	for i, s := range frame {
		spec[i] = complex(s, 0)
	}

	fftInPlace(spec) // forward DFT (sign -1 matches numpy.fft.fft convention)

	h := make([]float64, n)

	switch {
	case n == 0:
	case n%2 == 0:
		h[0] = 1
		h[n/2] = 1

		for i := 1; i < n/2; i++ {
			h[i] = 2
		}
	default:
		h[0] = 1
		for i := 1; i < (n+1)/2; i++ {
			h[i] = 2
		}
	}

	for i := range spec {
		spec[i] *= complex(h[i], 0)
	}

	ifftInPlace(spec)

	return spec
}

// UnwrapPhase unwraps a sequence of phase angles (radians) so consecutive
// samples don't jump by more than pi, matching numpy.unwrap.
func UnwrapPhase(phase []float64) []float64 {
	if len(phase) == 0 {
		return phase
	}

	out := make([]float64, len(phase))
	out[0] = phase[0]

	var correction float64

	for i := 1; i < len(phase); i++ {
		delta := phase[i] - phase[i-1]

		switch {
		case delta > math.Pi:
			correction -= 2 * math.Pi
		case delta < -math.Pi:
			correction += 2 * math.Pi
		}

		out[i] = phase[i] + correction
	}

	return out
}

// Diff returns the first difference of a sequence, matching numpy.diff.
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}

	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}

	return out
}

// Percentile returns the p-th percentile (0-100) of a sorted copy of x,
// using linear interpolation, matching numpy.percentile's default method.
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}

	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)

	rank := p / 100.0 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))

	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)

	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
