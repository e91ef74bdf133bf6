package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/farcloser/sonotheia/internal/config"
	"github.com/farcloser/sonotheia/internal/types"
	"github.com/farcloser/sonotheia/internal/xerr"
)

const testSampleRate = 16000

func sineWaveform(freqHz, amplitude float64, seconds float64) *types.Waveform {
	n := int(seconds * testSampleRate)
	samples := make([]float64, n)

	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/testSampleRate)
	}

	return &types.Waveform{Samples: samples, SampleRate: testSampleRate}
}

func silenceWaveform(seconds float64) *types.Waveform {
	return &types.Waveform{Samples: make([]float64, int(seconds*testSampleRate)), SampleRate: testSampleRate}
}

func noiseWaveform(seconds float64) *types.Waveform {
	samples := make([]float64, int(seconds*testSampleRate))

	// Deterministic pseudo-noise (LCG) so the test doesn't depend on
	// math/rand's global seed behavior across Go versions.
	state := uint32(12345)
	for i := range samples {
		state = state*1664525 + 1013904223
		samples[i] = (float64(state)/float64(1<<32))*2 - 1
	}

	return &types.Waveform{Samples: samples, SampleRate: testSampleRate}
}

func testConfig() config.PipelineConfig {
	cfg := config.Default()
	cfg.MinAudioDuration = 0.1
	cfg.PhysicsAnalysis.Enabled = true

	return cfg
}

// Seed scenario: pure silence should read as a strong spoof signal, driven
// by the Digital Silence sensor's prosecution veto.
func TestDetectPureSilenceIsSpoof(t *testing.T) {
	pl := New(testConfig())

	result, err := pl.Detect(context.Background(), silenceWaveform(2.0), false)
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}

	if !result.IsSpoof {
		t.Errorf("is_spoof = false for pure silence, want true")
	}

	if result.Decision != "SPOOF_LIKELY" && result.Decision != "SPOOF_HIGH" {
		t.Errorf("decision = %q, want SPOOF_LIKELY or SPOOF_HIGH", result.Decision)
	}
}

// Seed scenario: white noise should read closer to genuine than spoof.
func TestDetectWhiteNoiseLeansGenuine(t *testing.T) {
	pl := New(testConfig())

	result, err := pl.Detect(context.Background(), noiseWaveform(1.0), false)
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}

	if result.DetectionScore >= 0.7 {
		t.Errorf("detection_score = %v for white noise, want < 0.7", result.DetectionScore)
	}
}

// P1: detection_score must equal fusion_result.fused_score and lie in [0,1].
func TestDetectScoreMatchesFusedScore(t *testing.T) {
	pl := New(testConfig())

	result, err := pl.Detect(context.Background(), sineWaveform(440, 0.5, 1.0), false)
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}

	if result.DetectionScore != result.Fusion.FusedScore {
		t.Errorf("detection_score %v != fusion.fused_score %v", result.DetectionScore, result.Fusion.FusedScore)
	}

	if result.DetectionScore < 0 || result.DetectionScore > 1 {
		t.Errorf("detection_score = %v, want within [0, 1]", result.DetectionScore)
	}
}

// Seed scenario: quick mode only populates stages 1-3 and skips fusion of
// the neural/physics branches.
func TestDetectQuickModePopulatesOnlyAcousticStages(t *testing.T) {
	pl := New(testConfig())

	result, err := pl.Detect(context.Background(), sineWaveform(440, 0.5, 2.0), true)
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}

	if !result.QuickMode {
		t.Error("quick_mode = false, want true")
	}

	wantStages := []string{"feature_extraction", "temporal_analysis", "artifact_detection"}
	if len(result.Stages) != len(wantStages) {
		t.Fatalf("stages = %v, want exactly %v", result.Stages, wantStages)
	}

	for _, name := range wantStages {
		if _, ok := result.Stages[name]; !ok {
			t.Errorf("missing stage %q in quick-mode result", name)
		}
	}

	if len(result.SensorResults) != 0 {
		t.Errorf("sensor_results = %v, want empty in quick mode (no physics branch)", result.SensorResults)
	}
}

// P8: inputs shorter than min_audio_duration fail with OutOfRange before any
// stage runs.
func TestDetectTooShortFailsOutOfRange(t *testing.T) {
	cfg := testConfig()
	cfg.MinAudioDuration = 1.0

	pl := New(cfg)

	_, err := pl.Detect(context.Background(), silenceWaveform(0.1), false)
	if !errors.Is(err, xerr.ErrOutOfRange) {
		t.Fatalf("err = %v, want wrapping xerr.ErrOutOfRange", err)
	}
}

// P6: the async path returns the same result (modulo job_id and timestamps)
// as the sync path for identical input.
func TestAsyncMatchesSync(t *testing.T) {
	cfg := testConfig()
	wf := sineWaveform(440, 0.5, 1.0)

	syncPl := New(cfg)

	syncResult, err := syncPl.Detect(context.Background(), wf, false)
	if err != nil {
		t.Fatalf("sync Detect failed: %v", err)
	}

	asyncPl := New(cfg)

	jobID, err := asyncPl.Submit(wf, false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	var asyncResult types.DetectionResult

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, statusErr := asyncPl.Status(jobID)
		if statusErr != nil {
			t.Fatalf("Status failed: %v", statusErr)
		}

		if status.Status == types.JobCompleted {
			asyncResult, err = asyncPl.Result(jobID)
			if err != nil {
				t.Fatalf("Result failed: %v", err)
			}

			break
		}

		if status.Status == types.JobFailed {
			t.Fatalf("async job failed: %s", status.Error)
		}

		time.Sleep(time.Millisecond)
	}

	if asyncResult.DetectionScore != syncResult.DetectionScore {
		t.Errorf("async detection_score %v != sync detection_score %v",
			asyncResult.DetectionScore, syncResult.DetectionScore)
	}

	if asyncResult.Decision != syncResult.Decision {
		t.Errorf("async decision %q != sync decision %q", asyncResult.Decision, syncResult.Decision)
	}
}

// Submitting to a full worker pool must fail synchronously with
// ErrResourceExhausted, not silently queue behind a blocked goroutine.
func TestSubmitResourceExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWorkers = 1

	pl := New(cfg)

	// Occupy the only worker slot directly, bypassing Submit, so the
	// capacity check is exercised deterministically instead of racing a
	// real job to completion.
	pl.sem <- struct{}{}
	defer func() { <-pl.sem }()

	_, err := pl.Submit(sineWaveform(440, 0.5, 1.0), false)
	if !errors.Is(err, xerr.ErrResourceExhausted) {
		t.Fatalf("err = %v, want wrapping xerr.ErrResourceExhausted", err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	pl := New(testConfig())

	err := pl.Cancel("does-not-exist")
	if !errors.Is(err, xerr.ErrJobNotFound) {
		t.Fatalf("err = %v, want wrapping xerr.ErrJobNotFound", err)
	}
}

func TestCancelCompletedJobFails(t *testing.T) {
	pl := New(testConfig())

	result, err := pl.Detect(context.Background(), sineWaveform(440, 0.5, 1.0), false)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	err = pl.Cancel(result.JobID)
	if !errors.Is(err, xerr.ErrCancelled) {
		t.Fatalf("err = %v, want wrapping xerr.ErrCancelled for an already-completed job", err)
	}
}

func TestCancelMarksJobFailed(t *testing.T) {
	pl := New(testConfig())

	job := pl.newJob()

	if err := pl.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	status, err := pl.Status(job.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	if status.Status != types.JobFailed {
		t.Errorf("status = %q, want %q after cancel", status.Status, types.JobFailed)
	}

	if status.Error == "" {
		t.Error("error message is empty after cancel, want ErrCancelled text")
	}
}
