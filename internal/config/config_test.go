package config

import "testing"

func TestDefaultFusionProfiles(t *testing.T) {
	cfg := Default()

	if len(cfg.FusionEngine.Profiles.Default.Weights.StageWeights) == 0 {
		t.Error("default profile stage weights are empty")
	}

	if cfg.FusionEngine.Profiles.Default.Thresholds.Synthetic <= 0 {
		t.Error("default profile synthetic threshold is unset")
	}

	if len(cfg.FusionEngine.Profiles.Narrowband.Weights.SensorWeights) == 0 {
		t.Error("narrowband profile sensor weights are empty")
	}

	if cfg.FusionEngine.Profiles.Narrowband.Thresholds.Synthetic <= cfg.FusionEngine.Profiles.Default.Thresholds.Synthetic {
		t.Errorf("narrowband synthetic threshold %v should exceed the default profile's %v (narrowband needs stronger evidence)",
			cfg.FusionEngine.Profiles.Narrowband.Thresholds.Synthetic, cfg.FusionEngine.Profiles.Default.Thresholds.Synthetic)
	}
}

func TestApplyEnvDecisionThresholdUpdatesDefaultProfile(t *testing.T) {
	cfg := Default()

	t.Setenv("SONOTHEIA_DECISION_THRESHOLD", "0.65")
	applyEnv(&cfg)

	if cfg.FusionEngine.DecisionThreshold != 0.65 {
		t.Errorf("DecisionThreshold = %v, want 0.65", cfg.FusionEngine.DecisionThreshold)
	}

	if cfg.FusionEngine.Profiles.Default.Thresholds.Synthetic != 0.65 {
		t.Errorf("default profile synthetic threshold = %v, want 0.65 after env override",
			cfg.FusionEngine.Profiles.Default.Thresholds.Synthetic)
	}
}
