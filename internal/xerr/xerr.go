// Package xerr defines the sentinel error kinds a detection run can fail
// with. Wrap with fmt.Errorf("%w: %w", xerr.ErrX, cause), matching the
// wrapping idiom primordium/fault already uses for I/O-level failures.
package xerr

import "errors"

var (
	// ErrInvalidInput means the caller gave audio or options the pipeline
	// cannot make sense of (empty input, unsupported format).
	ErrInvalidInput = errors.New("invalid input")

	// ErrOutOfRange means the audio duration falls outside
	// [min_audio_duration, max_audio_duration].
	ErrOutOfRange = errors.New("value out of range")

	// ErrStageFailure means a required pipeline stage (A-D) raised an
	// unrecoverable error; in quick mode or full mode this is fatal.
	ErrStageFailure = errors.New("stage failure")

	// ErrSensorFailure means a physics sensor panicked or errored; this is
	// recoverable and degrades into a nil-Passed SensorResult.
	ErrSensorFailure = errors.New("sensor failure")

	// ErrSensorTimeout means a physics sensor did not return within its
	// allotted time budget.
	ErrSensorTimeout = errors.New("sensor timeout")

	// ErrModelUnavailable means the neural branch could not load model
	// weights and demo-mode fallback was disabled.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrResourceExhausted means the async job queue or worker pool is at
	// capacity.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrCancelled means the caller's context was cancelled mid-run.
	ErrCancelled = errors.New("cancelled")

	// ErrJobNotFound means a status/result lookup referenced an unknown
	// job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCompleted means a result lookup happened before the job
	// reached a terminal state.
	ErrJobNotCompleted = errors.New("job not completed")
)
