// Package preprocess implements Component A: decoding arbitrary PCM input
// into a canonical 16kHz mono float64 waveform, with mono-reduction,
// peak normalization, and silence trimming.
//
// Container decode (WAV/FLAC/OGG/MP3) is delegated to ffprobe/ffmpeg by
// LoadContainer, which decodes to raw PCM and hands it to FromPCM;
// callers that already have a decoded PCM buffer skip straight to FromPCM.
package preprocess

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
	"github.com/farcloser/sonotheia/internal/xerr"
)

const (
	// CanonicalSampleRate is the rate every stage downstream assumes.
	CanonicalSampleRate = 16000

	maxValue16 = 32768.0
	maxValue24 = 8388608.0
	maxValue32 = 2147483648.0

	// TargetPeakDb is the peak normalization target (spec: -3 dBFS).
	TargetPeakDb = -3.0

	// DefaultTopDb is the RMS-based silence-trim threshold.
	DefaultTopDb = 20.0

	// MaxFileSizeBytes bounds raw input size (spec: 800 MB).
	MaxFileSizeBytes = 800 * 1024 * 1024
)

// Options configures preprocessing.
type Options struct {
	Normalize bool
	Trim      bool
	TopDb     float64
}

// DefaultOptions returns the spec's default preprocessing behavior.
func DefaultOptions() Options {
	return Options{Normalize: true, Trim: true, TopDb: DefaultTopDb}
}

// PCMFormat describes raw interleaved PCM the caller has already decoded.
type PCMFormat struct {
	SampleRate int
	BitDepth   int // 16, 24, or 32
	Channels   int
}

// FromPCM decodes interleaved little-endian signed PCM into a canonical
// waveform: channel-averaged to mono, resampled to 16kHz, then normalized
// and trimmed per opts.
func FromPCM(raw []byte, format PCMFormat, opts Options) (*types.Waveform, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty PCM buffer", xerr.ErrInvalidInput)
	}

	if len(raw) > MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: PCM buffer exceeds %d bytes", xerr.ErrInvalidInput, MaxFileSizeBytes)
	}

	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid PCM format %+v", xerr.ErrInvalidInput, format)
	}

	mono, err := decodeMono(raw, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
	}

	if format.SampleRate != CanonicalSampleRate {
		mono = resampleLinear(mono, format.SampleRate, CanonicalSampleRate)
	}

	wf := &types.Waveform{Samples: mono, SampleRate: CanonicalSampleRate}

	if opts.Normalize {
		normalizePeak(wf.Samples, TargetPeakDb)
	}

	if opts.Trim {
		topDb := opts.TopDb
		if topDb == 0 {
			topDb = DefaultTopDb
		}

		wf.Samples = trimSilence(wf.Samples, wf.SampleRate, topDb)
	}

	return wf, nil
}

// FromFloat wraps an already-decoded float sequence, validating and
// resampling it to the canonical rate.
func FromFloat(samples []float64, sampleRate int, opts Options) (*types.Waveform, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty sample buffer", xerr.ErrInvalidInput)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", xerr.ErrInvalidInput, sampleRate)
	}

	out := samples
	if sampleRate != CanonicalSampleRate {
		out = resampleLinear(samples, sampleRate, CanonicalSampleRate)
	}

	wf := &types.Waveform{Samples: append([]float64(nil), out...), SampleRate: CanonicalSampleRate}

	if opts.Normalize {
		normalizePeak(wf.Samples, TargetPeakDb)
	}

	if opts.Trim {
		topDb := opts.TopDb
		if topDb == 0 {
			topDb = DefaultTopDb
		}

		wf.Samples = trimSilence(wf.Samples, wf.SampleRate, topDb)
	}

	return wf, nil
}

// ValidateDuration enforces the spec's [min, max] audio duration bound.
func ValidateDuration(wf *types.Waveform, minSeconds, maxSeconds float64) error {
	d := wf.Duration()
	if d < minSeconds {
		return fmt.Errorf("%w: duration %.2fs < minimum %.2fs", xerr.ErrOutOfRange, d, minSeconds)
	}

	if d > maxSeconds {
		return fmt.Errorf("%w: duration %.2fs > maximum %.2fs", xerr.ErrOutOfRange, d, maxSeconds)
	}

	return nil
}

func decodeMono(raw []byte, format PCMFormat) ([]float64, error) {
	bytesPerSample := format.BitDepth / 8
	if bytesPerSample <= 0 {
		return nil, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}

	frameBytes := bytesPerSample * format.Channels
	if frameBytes == 0 || len(raw)%frameBytes != 0 {
		return nil, fmt.Errorf("buffer length %d not aligned to frame size %d", len(raw), frameBytes)
	}

	frames := len(raw) / frameBytes
	mono := make([]float64, frames)

	var divisor float64

	switch format.BitDepth {
	case 16:
		divisor = maxValue16
	case 24:
		divisor = maxValue24
	case 32:
		divisor = maxValue32
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", format.BitDepth)
	}

	for i := range frames {
		var sum float64

		base := i * frameBytes

		for ch := range format.Channels {
			off := base + ch*bytesPerSample

			var v int32

			switch format.BitDepth {
			case 16:
				v = int32(int16(binary.LittleEndian.Uint16(raw[off:])))
			case 24:
				b0, b1, b2 := raw[off], raw[off+1], raw[off+2]
				v = int32(b0) | int32(b1)<<8 | int32(b2)<<16

				if v&0x800000 != 0 {
					v |= -1 << 24
				}
			case 32:
				v = int32(binary.LittleEndian.Uint32(raw[off:]))
			}

			sum += float64(v) / divisor
		}

		mono[i] = sum / float64(format.Channels)
	}

	return mono, nil
}

// resampleLinear is a linear-interpolation resampler. It is not
// band-limited (no anti-aliasing filter), which is an accepted
// simplification: every downstream stage works in 16kHz analysis windows
// well below Nyquist for either direction of resampling used in practice
// (8/22.05/44.1/48kHz sources), so the interpolation error does not
// materially perturb the spectral features the sensors key on.
func resampleLinear(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(toRate) / float64(fromRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]float64, outLen)

	for i := range out {
		srcPos := float64(i) / ratio
		lo := int(math.Floor(srcPos))
		hi := lo + 1
		frac := srcPos - float64(lo)

		if hi >= len(samples) {
			hi = len(samples) - 1
		}

		if lo >= len(samples) {
			lo = len(samples) - 1
		}

		out[i] = samples[lo]*(1-frac) + samples[hi]*frac
	}

	return out
}

func normalizePeak(samples []float64, targetDb float64) {
	var peak float64

	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		return // silent input, nothing to normalize
	}

	targetLinear := math.Pow(10, targetDb/20)
	gain := targetLinear / peak

	for i := range samples {
		samples[i] *= gain
	}
}

// trimSilence removes leading/trailing frames whose RMS falls more than
// topDb below the track's peak RMS.
func trimSilence(samples []float64, sampleRate int, topDb float64) []float64 {
	const frameMs = 25

	frameLen := frameMs * sampleRate / 1000
	if frameLen <= 0 || len(samples) < frameLen {
		return samples
	}

	frames := dsp.Frame(samples, frameLen, frameLen)
	if len(frames) == 0 {
		return samples
	}

	var peakRMS float64

	frameRMS := make([]float64, len(frames))

	for i, f := range frames {
		frameRMS[i] = dsp.RMS(f)
		if frameRMS[i] > peakRMS {
			peakRMS = frameRMS[i]
		}
	}

	if peakRMS == 0 {
		return samples // pure silence
	}

	threshold := peakRMS * math.Pow(10, -topDb/20)

	first, last := 0, len(frames)-1

	for first < len(frames) && frameRMS[first] < threshold {
		first++
	}

	for last >= 0 && frameRMS[last] < threshold {
		last--
	}

	if first > last {
		return samples // everything below threshold; don't trim to nothing
	}

	start := first * frameLen
	end := min((last+1)*frameLen, len(samples))

	return samples[start:end]
}
