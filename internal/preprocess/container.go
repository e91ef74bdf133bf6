package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/farcloser/sonotheia/internal/integration/ffmpeg"
	"github.com/farcloser/sonotheia/internal/integration/ffprobe"
	"github.com/farcloser/sonotheia/internal/types"
	"github.com/farcloser/sonotheia/internal/xerr"
)

// LoadContainer decodes an arbitrary audio container (WAV/FLAC/MP3/OGG/...)
// at path into a canonical waveform, probing it with ffprobe to recover
// the source sample rate/channel count/bit depth and decoding the chosen
// stream to raw PCM with ffmpeg before handing off to FromPCM.
func LoadContainer(ctx context.Context, path string, streamIndex int, opts Options) (*types.Waveform, error) {
	probed, err := ffprobe.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	stream, err := findAudioStream(probed, streamIndex)
	if err != nil {
		return nil, err
	}

	format, err := pcmFormatFromStream(stream)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) //nolint:gosec // caller-supplied path to decode
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	var pcm bytes.Buffer

	if err := ffmpeg.ExtractStream(ctx, file, &pcm, streamIndex, format.BitDepth); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return FromPCM(pcm.Bytes(), format, opts)
}

func findAudioStream(result *ffprobe.Result, streamIndex int) (*ffprobe.Stream, error) {
	audioCount := 0

	for i := range result.Streams {
		if result.Streams[i].CodecType != "audio" {
			continue
		}

		if audioCount == streamIndex {
			return &result.Streams[i], nil
		}

		audioCount++
	}

	return nil, fmt.Errorf("%w: audio stream index %d not found (%d audio streams present)",
		xerr.ErrInvalidInput, streamIndex, audioCount)
}

func pcmFormatFromStream(stream *ffprobe.Stream) (PCMFormat, error) {
	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return PCMFormat{}, fmt.Errorf("%w: invalid sample rate %q from probe", xerr.ErrInvalidInput, stream.SampleRate)
	}

	if stream.Channels <= 0 {
		return PCMFormat{}, fmt.Errorf("%w: invalid channel count %d from probe", xerr.ErrInvalidInput, stream.Channels)
	}

	return PCMFormat{
		SampleRate: sampleRate,
		BitDepth:   resolveBitDepth(stream),
		Channels:   stream.Channels,
	}, nil
}

// resolveBitDepth favors bits_per_raw_sample (reliable for lossless
// codecs like FLAC/ALAC), falls back to bits_per_sample (authoritative
// for PCM containers), and defaults to 32 for lossy sources where neither
// is meaningful — matching ffmpeg's s32le extraction format.
func resolveBitDepth(stream *ffprobe.Stream) int {
	if stream.BitsPerRawSample != "" {
		if bits, err := strconv.Atoi(stream.BitsPerRawSample); err == nil && isSupportedDepth(bits) {
			return bits
		}
	}

	if isSupportedDepth(stream.BitsPerSample) {
		return stream.BitsPerSample
	}

	return 32
}

func isSupportedDepth(bits int) bool {
	return bits == 16 || bits == 24 || bits == 32
}
