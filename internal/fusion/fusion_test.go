package fusion

import (
	"math"
	"testing"

	"github.com/farcloser/sonotheia/internal/types"
)

func passed(v bool) *bool { return &v }

func successStage(name string, score float64) types.StageResult {
	return types.StageResult{Name: name, Success: true, Score: score, Confidence: 0.8}
}

func TestFuseEmptyStagesReturnsUncertain(t *testing.T) {
	engine := NewEngine(nil)

	result := engine.Fuse(nil, nil)

	if result.Decision != "UNCERTAIN" {
		t.Errorf("decision = %q, want UNCERTAIN", result.Decision)
	}

	if result.FusedScore != 0.5 {
		t.Errorf("fused_score = %v, want 0.5", result.FusedScore)
	}

	if result.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", result.Confidence)
	}

	if result.IsSpoof {
		t.Error("is_spoof = true for an empty result, want false")
	}
}

func TestFuseScoreRange(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.7),
		"temporal_analysis":   successStage("temporal_analysis", 0.3),
		"artifact_detection":  successStage("artifact_detection", 0.9),
		"rawnet3":             successStage("rawnet3", 0.6),
		"explainability":      successStage("explainability", 0.1),
	}

	result := engine.Fuse(stages, nil)

	if result.FusedScore < 0 || result.FusedScore > 1 {
		t.Errorf("fused_score = %v, want within [0, 1]", result.FusedScore)
	}

	// P2: is_spoof must agree with the active profile's synthetic threshold.
	profile := engine.activeProfile(nil)
	if want := result.FusedScore > profile.SyntheticThreshold; result.IsSpoof != want {
		t.Errorf("is_spoof = %v, want %v (score %v vs threshold %v)",
			result.IsSpoof, want, result.FusedScore, profile.SyntheticThreshold)
	}
}

func TestFuseProsecutionVeto(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.1),
	}
	sensors := map[string]types.SensorResult{
		"DigitalSilenceSensor": {
			SensorName: "DigitalSilenceSensor",
			Category:   types.CategoryProsecution,
			Passed:     passed(false),
			Value:      0.95,
		},
	}

	result := engine.Fuse(stages, sensors)

	if result.FusedScore < 0.95 {
		t.Errorf("fused_score = %v, want >= 0.95 after prosecution veto", result.FusedScore)
	}

	found := false
	for _, note := range result.ArbiterNotes {
		if note == "Prosecution Veto" {
			found = true
		}
	}

	if !found {
		t.Errorf("arbiter_notes = %v, want to contain \"Prosecution Veto\"", result.ArbiterNotes)
	}
}

func TestFuseDefenseValidation(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.4),
	}
	sensors := map[string]types.SensorResult{
		"BreathingPatternSensor": {
			SensorName: "BreathingPatternSensor",
			Category:   types.CategoryDefense,
			Passed:     passed(true),
			Value:      0.1,
		},
	}

	result := engine.Fuse(stages, sensors)

	if result.FusedScore > 0.2 {
		t.Errorf("fused_score = %v, want <= 0.2 after defense validation", result.FusedScore)
	}
}

func TestFuseBreathViolationFloor(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.1),
	}
	sensors := map[string]types.SensorResult{
		"BreathSensor": {
			SensorName: "BreathSensor",
			Category:   types.CategoryDefense,
			Passed:     passed(false),
			Value:      0.1,
			Metadata:   map[string]any{"max_voiced_without_breath_seconds": 22.0},
		},
	}

	result := engine.Fuse(stages, sensors)

	if result.FusedScore < breathViolationFloor {
		t.Errorf("fused_score = %v, want >= %v after breath violation floor", result.FusedScore, breathViolationFloor)
	}
}

func TestFuseGlottalCleanTrustBoost(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.8),
	}
	sensors := map[string]types.SensorResult{
		"GlottalInertiaSensor": {
			SensorName: "GlottalInertiaSensor",
			Category:   types.CategoryDefense,
			Passed:     passed(true),
			Value:      0.4,
			Metadata:   map[string]any{"violation_count": 0},
		},
	}

	result := engine.Fuse(stages, sensors)

	if result.FusedScore >= 0.8 {
		t.Errorf("fused_score = %v, want reduced by the glottal trust boost from 0.8", result.FusedScore)
	}
}

// Informational sensors like Bandwidth never enter the risk/trust vote —
// their presence must not change the fused score, only the active profile.
func TestInformationalSensorDoesNotVote(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.5),
	}

	withoutBandwidth := engine.Fuse(stages, nil)
	withBandwidth := engine.Fuse(stages, map[string]types.SensorResult{
		"BandwidthSensor": {
			SensorName: "BandwidthSensor",
			Category:   types.CategoryInformational,
			Passed:     nil,
			Value:      7500.0,
			Metadata:   map[string]any{"rolloff_hz": 7500.0, "is_narrowband": false},
		},
	})

	if withoutBandwidth.FusedScore != withBandwidth.FusedScore {
		t.Errorf("fused_score changed from %v to %v when only an informational sensor was added",
			withoutBandwidth.FusedScore, withBandwidth.FusedScore)
	}
}

func TestActiveProfileSelectsNarrowband(t *testing.T) {
	engine := NewEngine(nil)

	narrow := map[string]types.SensorResult{
		"BandwidthSensor": {
			SensorName: "BandwidthSensor",
			Category:   types.CategoryInformational,
			Metadata:   map[string]any{"rolloff_hz": 3000.0, "is_narrowband": true},
		},
	}

	profile := engine.activeProfile(narrow)
	if profile.SyntheticThreshold != engine.Profiles[ProfileNarrowband].SyntheticThreshold {
		t.Errorf("narrowband rolloff did not select the narrowband profile: got threshold %v, want %v",
			profile.SyntheticThreshold, engine.Profiles[ProfileNarrowband].SyntheticThreshold)
	}

	wide := map[string]types.SensorResult{
		"BandwidthSensor": {
			SensorName: "BandwidthSensor",
			Category:   types.CategoryInformational,
			Metadata:   map[string]any{"rolloff_hz": 7500.0, "is_narrowband": false},
		},
	}

	profile = engine.activeProfile(wide)
	if profile.SyntheticThreshold != engine.Profiles[ProfileDefault].SyntheticThreshold {
		t.Errorf("wideband rolloff did not select the default profile: got threshold %v, want %v",
			profile.SyntheticThreshold, engine.Profiles[ProfileDefault].SyntheticThreshold)
	}
}

func TestActiveProfileDefaultsWithoutBandwidth(t *testing.T) {
	engine := NewEngine(nil)

	profile := engine.activeProfile(nil)
	if profile.SyntheticThreshold != engine.Profiles[ProfileDefault].SyntheticThreshold {
		t.Errorf("missing BandwidthSensor should resolve to the default profile, got threshold %v", profile.SyntheticThreshold)
	}
}

func TestNarrowbandSensorWeightsDiscountFormants(t *testing.T) {
	profile := NarrowbandProfileWeights()

	for _, name := range []string{"GlobalFormantSensor", "FormantTrajectorySensor", "PhaseCoherenceSensor"} {
		if w := profile.SensorWeights[name]; w >= defaultSensorWeight {
			t.Errorf("narrowband weight for %s = %v, want < %v", name, w, defaultSensorWeight)
		}
	}
}

func TestFuseDualBranchAgreement(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.5),
		"temporal_analysis":   successStage("temporal_analysis", 0.5),
		"artifact_detection":  successStage("artifact_detection", 0.5),
		"rawnet3":             successStage("rawnet3", 0.55),
	}

	result := engine.FuseDualBranch(stages, nil)

	if result.BranchScores == nil {
		t.Fatal("branch_scores is nil")
	}

	if !result.BranchAgreement {
		t.Errorf("branch_agreement = false, want true for close acoustic/neural scores %v", result.BranchScores)
	}
}

func TestFuseDualBranchDisagreement(t *testing.T) {
	engine := NewEngine(nil)

	stages := map[string]types.StageResult{
		"feature_extraction": successStage("feature_extraction", 0.05),
		"temporal_analysis":   successStage("temporal_analysis", 0.05),
		"artifact_detection":  successStage("artifact_detection", 0.05),
		"rawnet3":             successStage("rawnet3", 0.95),
	}

	result := engine.FuseDualBranch(stages, nil)

	if result.BranchAgreement {
		t.Errorf("branch_agreement = true, want false for divergent scores %v", result.BranchScores)
	}
}

// P4: stage weights renormalize over reporting stages, so a single
// successful stage gets all the weight, not just its own share.
func TestWeightedAverageRenormalizesOverReportingStages(t *testing.T) {
	weights := StageWeights{"rawnet3": 0.40, "feature_extraction": 0.15}

	got := weightedAverage(map[string]float64{"rawnet3": 0.8}, weights)
	if math.Abs(got-0.8) > 1e-9 {
		t.Errorf("weightedAverage with one reporting stage = %v, want 0.8 (full weight on the only stage present)", got)
	}
}

func TestPartitionSensorsDefaultsWhenNoDefense(t *testing.T) {
	_, trust := partitionSensors(map[string]types.SensorResult{
		"DigitalSilenceSensor": {Category: types.CategoryProsecution, Value: 0.2},
	}, nil)

	if trust != 0.5 {
		t.Errorf("trust_score = %v, want 0.5 default when no defense sensors reported", trust)
	}
}
