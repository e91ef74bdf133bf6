package ffmpeg

import "strconv"

// bitDepthToSpec maps a PCM bit depth to ffmpeg's little-endian signed
// sample format name (e.g. 32 -> "s32le").
func bitDepthToSpec(bitDepth int) string {
	return "s" + strconv.Itoa(bitDepth) + "le"
}
