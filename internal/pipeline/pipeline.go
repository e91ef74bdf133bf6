// Package pipeline implements Component I: the staged orchestrator that
// wires preprocessing, feature extraction, temporal analysis, artifact
// detection, the physics sensor registry, the neural branch, fusion, and
// explanation into one synchronous or asynchronous detection run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farcloser/sonotheia/internal/artifact"
	"github.com/farcloser/sonotheia/internal/config"
	"github.com/farcloser/sonotheia/internal/explain"
	"github.com/farcloser/sonotheia/internal/features"
	"github.com/farcloser/sonotheia/internal/fusion"
	"github.com/farcloser/sonotheia/internal/neural"
	"github.com/farcloser/sonotheia/internal/preprocess"
	"github.com/farcloser/sonotheia/internal/sensors"
	"github.com/farcloser/sonotheia/internal/temporal"
	"github.com/farcloser/sonotheia/internal/types"
	"github.com/farcloser/sonotheia/internal/xerr"
)

// Pipeline wires every stage together and tracks async jobs.
type Pipeline struct {
	cfg config.PipelineConfig

	registry     *sensors.Registry
	neuralBranch *neural.Classifier
	fusionEngine *fusion.Engine
	quickEngine  *fusion.Engine
	explainer    *explain.Generator

	featuresCfg features.Config
	temporalCfg temporal.Config
	artifactCfg artifact.Config

	mu      sync.RWMutex
	jobs    map[string]*types.Job
	cancels map[string]context.CancelFunc

	sem chan struct{}
}

// New builds a Pipeline from cfg. The physics registry runs the full
// twelve-sensor catalog with no external neural classifier wired (the
// optional NeuralDetectorSensor always fails open).
func New(cfg config.PipelineConfig) *Pipeline {
	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	engine := fusion.NewEngine(nil)
	engine.Profiles = profilesFromConfig(cfg.FusionEngine.Profiles)
	engine.ConfidenceThreshold = cfg.FusionEngine.ConfidenceThreshold

	// Quick mode never runs BandwidthSensor, so it always resolves to the
	// default profile; only its stage weights differ (3 stages, not 5).
	quick := fusion.NewEngine(fusion.QuickStageWeights())
	quick.ConfidenceThreshold = cfg.FusionEngine.ConfidenceThreshold

	return &Pipeline{
		cfg:          cfg,
		registry:     sensors.DefaultRegistry(nil),
		neuralBranch: neural.NewClassifier(),
		fusionEngine: engine,
		quickEngine:  quick,
		explainer:    explain.NewGenerator(),
		featuresCfg: features.Config{
			SampleRate:    cfg.FeatureExtraction.SampleRate,
			NFFT:          cfg.FeatureExtraction.NFFT,
			HopLength:     cfg.FeatureExtraction.HopLength,
			WinLength:     cfg.FeatureExtraction.WinLength,
			NMFCC:         cfg.FeatureExtraction.NMFCC,
			NLFCC:         cfg.FeatureExtraction.NLFCC,
			FeatureTypes:  cfg.FeatureExtraction.FeatureTypes,
			IncludeDeltas: cfg.FeatureExtraction.IncludeDeltas,
		},
		temporalCfg: temporal.Config{
			SampleRate:             cfg.FeatureExtraction.SampleRate,
			ThresholdStdMultiplier: cfg.TemporalAnalysis.ThresholdStdMultiplier,
		},
		artifactCfg: artifact.Config{
			SampleRate:         cfg.FeatureExtraction.SampleRate,
			SilenceThresholdDb: cfg.ArtifactDetection.SilenceThresholdDb,
			MinSilenceDuration: cfg.ArtifactDetection.MinSilenceDuration,
			ClickThreshold:     cfg.ArtifactDetection.ClickThreshold,
			ClickMinGap:        cfg.ArtifactDetection.ClickMinGap,
		},
		jobs:    make(map[string]*types.Job),
		cancels: make(map[string]context.CancelFunc),
		sem:     make(chan struct{}, workers),
	}
}

// profilesFromConfig converts the YAML-facing config.FusionProfiles into the
// fusion package's own Profile table, falling back to the built-in defaults
// for any profile left unconfigured.
func profilesFromConfig(cfgProfiles config.FusionProfiles) map[fusion.Profile]fusion.ProfileWeights {
	profiles := fusion.DefaultProfiles()

	if len(cfgProfiles.Default.Weights.StageWeights) > 0 {
		p := profiles[fusion.ProfileDefault]
		p.StageWeights = fusion.StageWeights(cfgProfiles.Default.Weights.StageWeights)
		p.SensorWeights = fusion.SensorWeights(cfgProfiles.Default.Weights.SensorWeights)

		if cfgProfiles.Default.Thresholds.Synthetic > 0 {
			p.SyntheticThreshold = cfgProfiles.Default.Thresholds.Synthetic
		}

		if cfgProfiles.Default.Thresholds.Real > 0 {
			p.RealThreshold = cfgProfiles.Default.Thresholds.Real
		}

		profiles[fusion.ProfileDefault] = p
	}

	if len(cfgProfiles.Narrowband.Weights.StageWeights) > 0 {
		p := profiles[fusion.ProfileNarrowband]
		p.StageWeights = fusion.StageWeights(cfgProfiles.Narrowband.Weights.StageWeights)
		p.SensorWeights = fusion.SensorWeights(cfgProfiles.Narrowband.Weights.SensorWeights)

		if cfgProfiles.Narrowband.Thresholds.Synthetic > 0 {
			p.SyntheticThreshold = cfgProfiles.Narrowband.Thresholds.Synthetic
		}

		if cfgProfiles.Narrowband.Thresholds.Real > 0 {
			p.RealThreshold = cfgProfiles.Narrowband.Thresholds.Real
		}

		profiles[fusion.ProfileNarrowband] = p
	}

	return profiles
}

// Detect runs a synchronous detection pass over wf, creating and
// recording a job the same way an async submission would so that its
// status and result can later be queried by ID.
func (p *Pipeline) Detect(ctx context.Context, wf *types.Waveform, quickMode bool) (types.DetectionResult, error) {
	job := p.newJob()

	result, err := p.runJob(ctx, job, wf, quickMode)
	if err != nil {
		return types.DetectionResult{}, err
	}

	return result, nil
}

// Submit starts an asynchronous detection run bounded by the pipeline's
// worker pool and returns its job ID immediately. Submitting to a full
// worker pool is a synchronous failure, not a silent queue grow: if every
// worker slot is taken, Submit returns ErrResourceExhausted instead of
// spawning a goroutine that would block indefinitely on the semaphore.
func (p *Pipeline) Submit(wf *types.Waveform, quickMode bool) (string, error) {
	job := p.newJob()

	select {
	case p.sem <- struct{}{}:
	default:
		p.mu.Lock()
		job.Status = types.JobFailed
		job.Error = xerr.ErrResourceExhausted.Error()
		p.mu.Unlock()

		return "", fmt.Errorf("%w: worker pool at capacity", xerr.ErrResourceExhausted)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()

	go func() {
		defer func() { <-p.sem }()

		defer func() {
			p.mu.Lock()
			delete(p.cancels, job.ID)
			p.mu.Unlock()
		}()

		_, _ = p.runJob(ctx, job, wf, quickMode)
	}()

	return job.ID, nil
}

// Cancel marks a pending or running async job as cancelled, tearing down
// its context so in-flight sensor work can observe it. Cancelling a job
// that already reached a terminal state is an error, not a no-op.
func (p *Pipeline) Cancel(jobID string) error {
	p.mu.Lock()

	job, ok := p.jobs[jobID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", xerr.ErrJobNotFound, jobID)
	}

	if job.Status == types.JobCompleted || job.Status == types.JobFailed {
		status := job.Status
		p.mu.Unlock()

		return fmt.Errorf("%w: job %s already %s", xerr.ErrCancelled, jobID, status)
	}

	cancel, hasCancel := p.cancels[jobID]

	job.Status = types.JobFailed
	job.Error = xerr.ErrCancelled.Error()
	job.CompletedAt = time.Now()

	p.mu.Unlock()

	if hasCancel {
		cancel()
	}

	return nil
}

// Status returns a snapshot of a job's lifecycle state.
func (p *Pipeline) Status(jobID string) (types.Job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	job, ok := p.jobs[jobID]
	if !ok {
		return types.Job{}, fmt.Errorf("%w: %s", xerr.ErrJobNotFound, jobID)
	}

	return *job, nil
}

// Result returns a completed job's detection result, or ErrJobNotCompleted
// if the job is in any other state (including failed or cancelled).
func (p *Pipeline) Result(jobID string) (types.DetectionResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	job, ok := p.jobs[jobID]
	if !ok {
		return types.DetectionResult{}, fmt.Errorf("%w: %s", xerr.ErrJobNotFound, jobID)
	}

	if job.Status != types.JobCompleted {
		return types.DetectionResult{}, fmt.Errorf("%w: job %s is %s", xerr.ErrJobNotCompleted, jobID, job.Status)
	}

	return *job.Result, nil
}

func (p *Pipeline) newJob() *types.Job {
	job := &types.Job{
		ID:        uuid.NewString(),
		Status:    types.JobPending,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()

	return job
}

func (p *Pipeline) setStage(job *types.Job, stage string, progress float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job.CurrentStage = stage
	job.Progress = progress
}

func (p *Pipeline) runJob(ctx context.Context, job *types.Job, wf *types.Waveform, quickMode bool) (types.DetectionResult, error) {
	p.mu.Lock()
	job.Status = types.JobRunning
	job.StartedAt = time.Now()
	p.mu.Unlock()

	timeout := time.Duration(p.cfg.TimeoutSeconds * float64(time.Second))
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	result, err := p.detect(ctx, job, wf, quickMode)

	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", xerr.ErrCancelled, ctx.Err())
	}

	p.mu.Lock()
	job.CompletedAt = time.Now()

	if err != nil {
		job.Status = types.JobFailed
		job.Error = err.Error()
	} else {
		job.Status = types.JobCompleted
		job.Progress = 1.0
		job.Result = &result
	}
	p.mu.Unlock()

	return result, err
}

func (p *Pipeline) detect(ctx context.Context, job *types.Job, wf *types.Waveform, quickMode bool) (types.DetectionResult, error) {
	if wf == nil || len(wf.Samples) == 0 {
		return types.DetectionResult{}, fmt.Errorf("%w: empty waveform", xerr.ErrInvalidInput)
	}

	p.setStage(job, "preprocessing", 0.0)

	if err := preprocess.ValidateDuration(wf, p.cfg.MinAudioDuration, p.cfg.MaxAudioDuration); err != nil {
		return types.DetectionResult{}, err
	}

	var (
		result types.DetectionResult
		err    error
	)

	if quickMode {
		result, err = p.runQuickPipeline(ctx, job, wf)
	} else {
		result, err = p.runFullPipeline(ctx, job, wf)
	}

	if err != nil {
		return types.DetectionResult{}, err
	}

	result.JobID = job.ID
	result.DurationSeconds = wf.Duration()
	result.QuickMode = quickMode
	result.Timestamp = time.Now()

	return result, nil
}

// runFullPipeline runs the seven post-preprocessing stages: feature extraction, temporal
// analysis, artifact detection, physics analysis, the neural branch,
// dual-branch fusion, and explanation — at the exact progress markers the
// original stage sequencing reports.
func (p *Pipeline) runFullPipeline(ctx context.Context, job *types.Job, wf *types.Waveform) (types.DetectionResult, error) {
	stages := map[string]types.StageResult{}

	p.setStage(job, "feature_extraction", 0.1)
	feRes := features.Process(wf, p.featuresCfg)
	stages["feature_extraction"] = stageFromFeatures(feRes)

	p.setStage(job, "temporal_analysis", 0.25)
	taRes := temporal.Process(wf, feRes.Combined, p.temporalCfg)
	stages["temporal_analysis"] = stageFromTemporal(taRes)

	p.setStage(job, "artifact_detection", 0.4)
	adRes := artifact.Process(wf, p.artifactCfg)
	stages["artifact_detection"] = stageFromArtifact(adRes)

	p.setStage(job, "physics_analysis", 0.5)

	sensorResults := map[string]types.SensorResult{}
	if p.cfg.PhysicsAnalysis.Enabled {
		sensorResults = p.registry.AnalyzeAll(ctx, wf, sensors.DefaultTimeout)
	}

	p.setStage(job, "rawnet3", 0.6)
	neuralRes := p.neuralBranch.Detect(wf)
	stages["rawnet3"] = stageFromNeural(neuralRes)

	p.setStage(job, "fusion", 0.8)
	fusionResult := p.fusionEngine.FuseDualBranch(stages, sensorResults)

	p.setStage(job, "explainability", 0.9)
	explanation := p.explainer.Generate(stages, sensorResults, fusionResult)

	p.setStage(job, "done", 1.0)

	return types.DetectionResult{
		Success:        true,
		DetectionScore: fusionResult.FusedScore,
		IsSpoof:        fusionResult.IsSpoof,
		Confidence:     fusionResult.Confidence,
		Decision:       fusionResult.Decision,
		Fusion:         fusionResult,
		Stages:         stages,
		SensorResults:  sensorResults,
		Explanation:    explanation,
		DemoMode:       p.cfg.DemoMode || neuralRes.DemoMode,
	}, nil
}

// runQuickPipeline runs only feature extraction, temporal analysis, and
// artifact detection, re-weighting fusion across those three stages and
// producing a simplified explanation that skips the full explainability
// pass — acoustic-only triage, no neural or physics branch.
func (p *Pipeline) runQuickPipeline(_ context.Context, job *types.Job, wf *types.Waveform) (types.DetectionResult, error) {
	stages := map[string]types.StageResult{}

	p.setStage(job, "feature_extraction", 0.2)
	feRes := features.Process(wf, p.featuresCfg)
	stages["feature_extraction"] = stageFromFeatures(feRes)

	p.setStage(job, "temporal_analysis", 0.5)
	taRes := temporal.Process(wf, feRes.Combined, p.temporalCfg)
	stages["temporal_analysis"] = stageFromTemporal(taRes)

	p.setStage(job, "artifact_detection", 0.8)
	adRes := artifact.Process(wf, p.artifactCfg)
	stages["artifact_detection"] = stageFromArtifact(adRes)

	fusionResult := p.quickEngine.Fuse(stages, nil)

	p.setStage(job, "done", 1.0)

	explanation := types.Explanation{
		Summary: fmt.Sprintf(
			"Quick detection completed with score %.3f. Quick mode only runs acoustic analysis "+
				"(feature extraction, temporal analysis, artifact detection); run full mode for the "+
				"physics sensor panel and neural network branch.",
			fusionResult.FusedScore),
		DetailLevel: "quick",
	}

	return types.DetectionResult{
		Success:        true,
		DetectionScore: fusionResult.FusedScore,
		IsSpoof:        fusionResult.IsSpoof,
		Confidence:     fusionResult.Confidence,
		Decision:       fusionResult.Decision,
		Fusion:         fusionResult,
		Stages:         stages,
		Explanation:    explanation,
		DemoMode:       p.cfg.DemoMode,
	}, nil
}

func stageFromFeatures(res features.Result) types.StageResult {
	if !res.Success {
		return types.StageResult{Name: "feature_extraction", Success: false, Error: "empty or invalid audio input"}
	}

	return types.StageResult{
		Name:    "feature_extraction",
		Success: true,
		Score:   res.AnomalyScore,
		Metadata: map[string]any{
			"num_frames":    res.Combined.Frames(),
			"feature_stats": featureStatsToMetadata(res.FeatureStats),
		},
	}
}

func featureStatsToMetadata(stats map[string]features.Stats) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(stats))

	for featType, s := range stats {
		out[featType] = map[string]float64{
			"mean": s.Mean,
			"std":  s.Std,
			"min":  s.Min,
			"max":  s.Max,
		}
	}

	return out
}

func stageFromTemporal(res temporal.Result) types.StageResult {
	if !res.Success {
		return types.StageResult{Name: "temporal_analysis", Success: false, Error: "empty or invalid audio input"}
	}

	numAnomalies := len(res.Discontinuities) + len(res.Transitions) + len(res.FeatureAnomalies)

	return types.StageResult{
		Name:    "temporal_analysis",
		Success: true,
		Score:   res.TemporalScore,
		Metadata: map[string]any{
			"num_anomalies":       numAnomalies,
			"suspicious_segments": temporalSuspiciousSegments(res),
		},
	}
}

const segmentHalfWidthSeconds = 0.05

func temporalSuspiciousSegments(res temporal.Result) []types.TemporalSegment {
	type tagged struct {
		anomaly temporal.Anomaly
		reason  string
	}

	var all []tagged

	for _, a := range res.Discontinuities {
		all = append(all, tagged{a, "discontinuity"})
	}

	for _, a := range res.Transitions {
		all = append(all, tagged{a, "spectral transition"})
	}

	for _, a := range res.FeatureAnomalies {
		all = append(all, tagged{a, "feature anomaly"})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].anomaly.Magnitude > all[j].anomaly.Magnitude
	})

	segments := make([]types.TemporalSegment, len(all))
	for i, t := range all {
		segments[i] = types.TemporalSegment{
			StartSeconds: t.anomaly.TimeSeconds - segmentHalfWidthSeconds,
			EndSeconds:   t.anomaly.TimeSeconds + segmentHalfWidthSeconds,
			Reason:       t.reason,
		}
	}

	return segments
}

func stageFromArtifact(res artifact.Result) types.StageResult {
	if !res.Success {
		return types.StageResult{Name: "artifact_detection", Success: false, Error: "empty or invalid audio input"}
	}

	total := len(res.Clicks) + len(res.SilenceRegions) + res.SpectralHoles + res.PhaseJumps

	return types.StageResult{
		Name:    "artifact_detection",
		Success: true,
		Score:   res.ArtifactScore,
		Metadata: map[string]any{
			"total_artifacts": total,
		},
	}
}

func stageFromNeural(res neural.Result) types.StageResult {
	if !res.Success {
		return types.StageResult{Name: "rawnet3", Success: false, Error: res.Error}
	}

	return types.StageResult{
		Name:       "rawnet3",
		Success:    true,
		Score:      res.Score,
		Confidence: res.Confidence,
		Metadata: map[string]any{
			"demo_mode":    res.DemoMode,
			"mean_score":   res.MeanScore,
			"chunk_scores": res.ChunkScores,
		},
	}
}

// ResultConfidenceFactors exposes explain.ConfidenceFactors for callers
// that want the negative-influence breakdown alongside a DetectionResult.
func ResultConfidenceFactors(result types.DetectionResult) []explain.ConfidenceFactor {
	return explain.ConfidenceFactors(result.Stages, result.Fusion)
}
