// Package ffprobe shells out to the system ffprobe binary to inspect an
// audio container's stream properties before decoding it with ffmpeg.
package ffprobe

import "time"

const (
	name = "ffprobe"
	// Slow disks or network-mounted sources can make a tighter timeout flaky.
	timeout = 60 * time.Second
)
