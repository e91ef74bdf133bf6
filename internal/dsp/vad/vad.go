// Package vad implements energy-based voice activity detection, shared by
// the Breath and Prosodic Continuity physics sensors.
package vad

import (
	"github.com/farcloser/sonotheia/internal/dsp"
)

// Segment is a contiguous span of detected speech.
type Segment struct {
	StartSeconds float64
	EndSeconds   float64
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndSeconds - s.StartSeconds
}

// Options configures the detector. Zero-value Options resolves to the
// defaults below, matching VoiceActivityDetector's constructor defaults.
type Options struct {
	FrameMs            float64
	HopMs              float64
	MinSpeechSeconds   float64
	MinSilenceSeconds  float64
	MedianFilterLength int
}

func (o Options) withDefaults() Options {
	if o.FrameMs == 0 {
		o.FrameMs = 30
	}

	if o.HopMs == 0 {
		o.HopMs = 10
	}

	if o.MinSpeechSeconds == 0 {
		o.MinSpeechSeconds = 0.1
	}

	if o.MinSilenceSeconds == 0 {
		o.MinSilenceSeconds = 0.2
	}

	if o.MedianFilterLength == 0 {
		o.MedianFilterLength = 5
	}

	return o
}

// Detect runs energy-based VAD over samples and returns merged speech
// segments. Method: per-frame RMS in dB, an adaptive noise-floor threshold
// from the 10th/90th percentile of the frame energies (falling back to a
// fixed offset when the dynamic range is too small to be meaningful), a
// 5-frame median smoothing pass, and a minimum-duration/gap merge.
func Detect(samples []float64, sampleRate int, opts Options) []Segment {
	opts = opts.withDefaults()

	frameLen := int(opts.FrameMs * float64(sampleRate) / 1000.0)
	hop := int(opts.HopMs * float64(sampleRate) / 1000.0)

	frames := dsp.Frame(samples, frameLen, hop)
	if len(frames) == 0 {
		return nil
	}

	energiesDb := make([]float64, len(frames))
	for i, f := range frames {
		energiesDb[i] = dsp.ToDb(dsp.RMS(f))
	}

	noiseFloor := dsp.Percentile(energiesDb, 10)
	signalPeak := dsp.Percentile(energiesDb, 90)
	dynamicRange := signalPeak - noiseFloor

	var threshold float64
	if dynamicRange < 3.0 {
		threshold = noiseFloor + 3.0
	} else {
		threshold = noiseFloor + 0.3*dynamicRange
	}

	speech := make([]bool, len(energiesDb))
	for i, e := range energiesDb {
		speech[i] = e > threshold
	}

	speech = medianFilterBool(speech, opts.MedianFilterLength)

	segments := framesToSegments(speech, opts.HopMs, opts.FrameMs)

	return mergeClose(filterShort(segments, opts.MinSpeechSeconds), opts.MinSilenceSeconds)
}

func medianFilterBool(x []bool, kernel int) []bool {
	if kernel <= 1 || len(x) < kernel {
		return x
	}

	half := kernel / 2
	out := make([]bool, len(x))

	for i := range x {
		trueCount := 0
		total := 0

		for j := i - half; j <= i+half; j++ {
			if j < 0 || j >= len(x) {
				continue
			}

			total++

			if x[j] {
				trueCount++
			}
		}

		out[i] = trueCount*2 > total
	}

	return out
}

func framesToSegments(speech []bool, hopMs, frameMs float64) []Segment {
	var segments []Segment

	inSpeech := false

	var start int

	for i, s := range speech {
		switch {
		case s && !inSpeech:
			inSpeech = true
			start = i
		case !s && inSpeech:
			inSpeech = false
			segments = append(segments, Segment{
				StartSeconds: float64(start) * hopMs / 1000.0,
				EndSeconds:   float64(i)*hopMs/1000.0 + frameMs/1000.0,
			})
		}
	}

	if inSpeech {
		segments = append(segments, Segment{
			StartSeconds: float64(start) * hopMs / 1000.0,
			EndSeconds:   float64(len(speech))*hopMs/1000.0 + frameMs/1000.0,
		})
	}

	return segments
}

func filterShort(segments []Segment, minDuration float64) []Segment {
	var out []Segment

	for _, s := range segments {
		if s.Duration() >= minDuration {
			out = append(out, s)
		}
	}

	return out
}

func mergeClose(segments []Segment, maxGap float64) []Segment {
	if len(segments) == 0 {
		return segments
	}

	merged := []Segment{segments[0]}

	for _, s := range segments[1:] {
		last := &merged[len(merged)-1]
		if s.StartSeconds-last.EndSeconds < maxGap {
			last.EndSeconds = s.EndSeconds
		} else {
			merged = append(merged, s)
		}
	}

	return merged
}

// MaxContinuousSpeech returns the longest single segment's duration, 0 if
// there are none.
func MaxContinuousSpeech(segments []Segment) float64 {
	var max float64

	for _, s := range segments {
		if d := s.Duration(); d > max {
			max = d
		}
	}

	return max
}
