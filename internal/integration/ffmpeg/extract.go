// Package ffmpeg shells out to the system ffmpeg binary to decode an
// arbitrary audio container (WAV/FLAC/MP3/OGG/...) down to raw
// interleaved PCM, the input preprocess.FromPCM expects.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/sonotheia/internal/integration/binary"
)

const (
	name    = "ffmpeg"
	timeout = 60 * time.Second
)

// ExtractStream decodes one audio stream from a container into raw
// little-endian signed PCM at the given bit depth, leaving resampling and
// mono-reduction to preprocess.FromPCM.
func ExtractStream(ctx context.Context, input io.Reader, output io.Writer, streamIndex, bitDepth int) error {
	slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "start")

	ffmpegPath, found := binary.Available(name)
	if !found {
		return fmt.Errorf("%w: %s", fault.ErrMissingRequirements, name)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // ffmpegPath resolved via exec.LookPath, args are fixed/validated
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", "-",
		"-map", "0:a:"+strconv.Itoa(streamIndex),
		"-f", bitDepthToSpec(bitDepth),
		"-v", "quiet",
		"-",
	)

	cmd.Stdout = output
	cmd.Stdin = input

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "timeout")

			return fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "error")

		return fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	return nil
}
