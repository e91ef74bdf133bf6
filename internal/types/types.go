// Package types defines the shared data model passed between pipeline
// stages: waveforms, feature matrices, sensor and stage results, fused
// verdicts, and job bookkeeping.
package types

import "time"

// Waveform is mono PCM audio normalized to float64 samples in [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the waveform's length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}

	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// FeatureMatrix is a frame-major matrix: Data[frame] holds Dim values.
//
//	| Dim source        | columns     |
//	|--------------------|------------|
//	| mfcc/lfcc/logspec  | n_mfcc etc |
//	| + deltas           | 2x width   |
//	| + delta-deltas     | 3x width   |
type FeatureMatrix struct {
	Data      [][]float64
	Dim       int
	FrameHop  int // samples between frames, for time alignment
	FrameRate int // sample rate the hop was computed at
}

// Frames returns the number of frames in the matrix.
func (m FeatureMatrix) Frames() int {
	return len(m.Data)
}

// SensorCategory classifies a physics sensor's role in arbitration.
type SensorCategory string

const (
	CategoryProsecution   SensorCategory = "prosecution"
	CategoryDefense       SensorCategory = "defense"
	CategoryInformational SensorCategory = "informational"
)

// SensorResult is the outcome of one physics sensor's analysis of a waveform.
//
// Passed is nil when the sensor could not reach a verdict (timeout, error,
// or an informational sensor that never votes).
type SensorResult struct {
	SensorName string
	Category   SensorCategory
	Passed     *bool
	Value      float64
	Threshold  float64
	Reason     string
	Detail     string
	Metadata   map[string]any
}

// StageResult is the output of one pipeline stage (components A-D, F).
// Score is the stage's own risk/anomaly estimate in [0, 1]; Confidence
// reflects how much the fusion engine should trust that score.
type StageResult struct {
	Name       string
	Success    bool
	Error      string
	Score      float64
	Confidence float64
	Metadata   map[string]any
}

// FusionResult is the dual-branch fusion engine's verdict.
type FusionResult struct {
	FusedScore      float64
	Confidence      float64
	Decision        string // GENUINE_LIKELY | UNCERTAIN | SPOOF_LIKELY | SPOOF_HIGH
	IsSpoof         bool
	RiskScore       float64
	TrustScore      float64
	BranchScores    map[string]float64 // "acoustic" | "neural"
	BranchAgreement bool
	ArbiterNotes    []string
}

// JobStatus is the lifecycle state of an asynchronous detection job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job tracks an asynchronous detection submitted via the pipeline's
// submit/status/result API.
type Job struct {
	ID           string
	Status       JobStatus
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	Progress     float64
	CurrentStage string
	Result       *DetectionResult
	Error        string
}

// DetectionResult is the top-level output of a full or quick-mode run.
type DetectionResult struct {
	Success         bool
	JobID           string
	DetectionScore  float64
	IsSpoof         bool
	Confidence      float64
	Decision        string
	Fusion          FusionResult
	Stages          map[string]StageResult
	SensorResults   map[string]SensorResult
	Explanation     Explanation
	DurationSeconds float64
	QuickMode       bool
	DemoMode        bool
	Timestamp       time.Time
}

// Explanation is the human- and machine-readable output of the explainer.
type Explanation struct {
	Summary           string
	TopContributors   []Contributor
	FeatureImportance map[string]float64
	TemporalSegments  []TemporalSegment
	DetailLevel       string
}

// Contributor names one stage/sensor's share of the fused verdict.
type Contributor struct {
	Name         string
	Contribution float64
	Reason       string
}

// TemporalSegment flags a time range the explainer considers suspicious.
type TemporalSegment struct {
	StartSeconds float64
	EndSeconds   float64
	Reason       string
}
