// Package config implements the layered PipelineConfig: compiled-in
// defaults, overridden by an optional YAML file, overridden by recognized
// environment variables. Mirrors DetectionConfig.from_yaml/from_dict/
// get_default_config in the original Python implementation.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FeatureExtraction holds Component B tuning.
type FeatureExtraction struct {
	SampleRate    int      `yaml:"sample_rate"`
	NFFT          int      `yaml:"n_fft"`
	HopLength     int      `yaml:"hop_length"`
	WinLength     int      `yaml:"win_length"`
	NMFCC         int      `yaml:"n_mfcc"`
	NLFCC         int      `yaml:"n_lfcc"`
	FeatureTypes  []string `yaml:"feature_types"`
	IncludeDeltas bool     `yaml:"include_deltas"`
}

// TemporalAnalysis holds Component C tuning.
type TemporalAnalysis struct {
	WindowSize            int     `yaml:"window_size"`
	HopSize               int     `yaml:"hop_size"`
	MinSegmentLength      int     `yaml:"min_segment_length"`
	SmoothingWindow       int     `yaml:"smoothing_window"`
	ThresholdStdMultiplier float64 `yaml:"threshold_std_multiplier"`
}

// ArtifactDetection holds Component D tuning.
type ArtifactDetection struct {
	SilenceThresholdDb float64 `yaml:"silence_threshold_db"`
	MinSilenceDuration float64 `yaml:"min_silence_duration"`
	ClickThreshold     float64 `yaml:"click_threshold"`
	ClickMinGap        int     `yaml:"click_min_gap"`
}

// RawNet3 holds Component F tuning.
type RawNet3 struct {
	ModelPath         string `yaml:"model_path"`
	Device            string `yaml:"device"`
	BatchSize         int    `yaml:"batch_size"`
	UseHalfPrecision  bool   `yaml:"use_half_precision"`
	CacheModel        bool   `yaml:"cache_model"`
	SincOutChannels   int    `yaml:"sinc_out_channels"`
	SincKernelSize    int    `yaml:"sinc_kernel_size"`
	EncoderType       string `yaml:"encoder_type"`
	AttentionHeads    int    `yaml:"attention_heads"`
}

// FusionEngine holds Component G tuning.
type FusionEngine struct {
	FusionMethod        string             `yaml:"fusion_method"`
	StageWeights        map[string]float64 `yaml:"stage_weights"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold"`
	DecisionThreshold   float64            `yaml:"decision_threshold"`
	Profiles            FusionProfiles     `yaml:"profiles"`
}

// FusionProfiles carries the default and narrowband weighting regimes that
// BandwidthSensor's rolloff verdict selects between at fuse time.
type FusionProfiles struct {
	Default    FusionProfile `yaml:"default"`
	Narrowband FusionProfile `yaml:"narrowband"`
}

// FusionProfile is one profile's weights and decision thresholds.
type FusionProfile struct {
	Weights    FusionProfileWeights `yaml:"weights"`
	Thresholds FusionThresholds     `yaml:"thresholds"`
}

// FusionProfileWeights bundles a profile's per-stage and per-sensor weights.
type FusionProfileWeights struct {
	StageWeights  map[string]float64 `yaml:"stage_weights"`
	SensorWeights map[string]float64 `yaml:"sensor_weights"`
}

// FusionThresholds are a profile's synthetic/real decision boundaries.
type FusionThresholds struct {
	Synthetic float64 `yaml:"synthetic"`
	Real      float64 `yaml:"real"`
}

// Explainability holds Component H tuning.
type Explainability struct {
	GenerateSaliency         bool   `yaml:"generate_saliency"`
	IncludeFeatureImportance bool   `yaml:"include_feature_importance"`
	IncludeTemporalSegments  bool   `yaml:"include_temporal_segments"`
	MaxTopFeatures           int    `yaml:"max_top_features"`
	ExplanationDetailLevel   string `yaml:"explanation_detail_level"`
	EnableLLM                bool   `yaml:"enable_llm"`
}

// PhysicsAnalysis holds Component E toggles.
type PhysicsAnalysis struct {
	Enabled bool `yaml:"enabled"`
}

// PipelineConfig is the top-level configuration for a detection pipeline.
type PipelineConfig struct {
	DemoMode          bool              `yaml:"demo_mode"`
	FeatureExtraction FeatureExtraction `yaml:"feature_extraction"`
	TemporalAnalysis  TemporalAnalysis  `yaml:"temporal_analysis"`
	ArtifactDetection ArtifactDetection `yaml:"artifact_detection"`
	RawNet3           RawNet3           `yaml:"rawnet3"`
	FusionEngine      FusionEngine      `yaml:"fusion_engine"`
	Explainability    Explainability    `yaml:"explainability"`
	PhysicsAnalysis   PhysicsAnalysis   `yaml:"physics_analysis"`
	EnableCaching     bool              `yaml:"enable_caching"`
	MaxAudioDuration  float64           `yaml:"max_audio_duration"`
	MinAudioDuration  float64           `yaml:"min_audio_duration"`
	TimeoutSeconds    float64           `yaml:"timeout_seconds"`
	QuickModeStages   []string          `yaml:"quick_mode_stages"`
	MaxWorkers        int               `yaml:"max_workers"`
}

// Default returns the compiled-in defaults, matching config.py's dataclass
// field defaults exactly.
func Default() PipelineConfig {
	return PipelineConfig{
		DemoMode: os.Getenv("DEMO_MODE") == "true" || os.Getenv("DEMO_MODE") == "1",
		FeatureExtraction: FeatureExtraction{
			SampleRate:    16000,
			NFFT:          512,
			HopLength:     160,
			WinLength:     400,
			NMFCC:         20,
			NLFCC:         20,
			FeatureTypes:  []string{"mfcc", "lfcc", "logspec"},
			IncludeDeltas: true,
		},
		TemporalAnalysis: TemporalAnalysis{
			WindowSize:             100,
			HopSize:                50,
			MinSegmentLength:       10,
			SmoothingWindow:        5,
			ThresholdStdMultiplier: 2.0,
		},
		ArtifactDetection: ArtifactDetection{
			SilenceThresholdDb: -40.0,
			MinSilenceDuration: 0.1,
			ClickThreshold:     0.8,
			ClickMinGap:        100,
		},
		RawNet3: RawNet3{
			Device:           "auto",
			BatchSize:        1,
			UseHalfPrecision: false,
			CacheModel:       true,
			SincOutChannels:  128,
			SincKernelSize:   251,
			EncoderType:      "ResNet34",
			AttentionHeads:   8,
		},
		FusionEngine: FusionEngine{
			FusionMethod: "weighted_average",
			StageWeights: map[string]float64{
				"feature_extraction": 0.15,
				"temporal_analysis":  0.15,
				"artifact_detection": 0.15,
				"rawnet3":            0.40,
				"explainability":     0.15,
			},
			ConfidenceThreshold: 0.5,
			DecisionThreshold:   0.5,
			Profiles: FusionProfiles{
				Default: FusionProfile{
					Weights: FusionProfileWeights{
						StageWeights: map[string]float64{
							"feature_extraction": 0.15,
							"temporal_analysis":  0.15,
							"artifact_detection": 0.15,
							"rawnet3":            0.40,
							"explainability":     0.15,
						},
					},
					Thresholds: FusionThresholds{Synthetic: 0.5, Real: 0.3},
				},
				Narrowband: FusionProfile{
					Weights: FusionProfileWeights{
						StageWeights: map[string]float64{
							"feature_extraction": 0.20,
							"temporal_analysis":  0.25,
							"artifact_detection": 0.25,
							"rawnet3":            0.20,
							"explainability":     0.10,
						},
						SensorWeights: map[string]float64{
							"GlobalFormantSensor":     0.5,
							"FormantTrajectorySensor": 0.5,
							"PhaseCoherenceSensor":    0.5,
						},
					},
					Thresholds: FusionThresholds{Synthetic: 0.6, Real: 0.3},
				},
			},
		},
		Explainability: Explainability{
			GenerateSaliency:         true,
			IncludeFeatureImportance: true,
			IncludeTemporalSegments:  true,
			MaxTopFeatures:           10,
			ExplanationDetailLevel:   "standard",
			EnableLLM:                true,
		},
		PhysicsAnalysis: PhysicsAnalysis{Enabled: true},
		EnableCaching:    true,
		MaxAudioDuration: 300.0,
		MinAudioDuration: 0.5,
		TimeoutSeconds:   120.0,
		QuickModeStages:  []string{"feature_extraction", "temporal_analysis", "artifact_detection"},
		MaxWorkers:       4,
	}
}

// Load builds a PipelineConfig by layering a YAML file (if path is
// non-empty and exists) and environment variables on top of Default().
func Load(path string) (*PipelineConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	return &cfg, nil
}

// applyEnv overlays recognized environment variables, the Go analog of
// DetectionConfig's env-var layer.
func applyEnv(cfg *PipelineConfig) {
	if v, ok := os.LookupEnv("DEMO_MODE"); ok {
		cfg.DemoMode = v == "true" || v == "1"
	}

	if v, ok := os.LookupEnv("SONOTHEIA_MAX_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkers = n
		}
	}

	if v, ok := os.LookupEnv("SONOTHEIA_TIMEOUT_SECONDS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TimeoutSeconds = f
		}
	}

	if v, ok := os.LookupEnv("SONOTHEIA_CONFIDENCE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FusionEngine.ConfidenceThreshold = f
		}
	}

	if v, ok := os.LookupEnv("SONOTHEIA_DECISION_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FusionEngine.DecisionThreshold = f
			cfg.FusionEngine.Profiles.Default.Thresholds.Synthetic = f
		}
	}
}
