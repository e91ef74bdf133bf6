// Package fusion implements Component G: the dual-branch fusion engine
// that arbitrates between the acoustic stages, the physics sensor
// prosecution/defense vote, and the neural branch to produce one
// decision.
package fusion

import (
	"gonum.org/v1/gonum/stat"

	"github.com/farcloser/sonotheia/internal/types"
)

const (
	spoofHighThreshold   = 0.7
	uncertainThreshold   = 0.3
	defaultConfidence    = 0.8
	defaultConfidenceMin = 0.5

	riskVetoThreshold       = 0.8
	riskTrustValidationHigh = 0.3

	glottalViolationFloor = 0.85
	breathViolationFloor  = 0.90
	glottalTrustBoost     = 0.5

	defaultSensorWeight = 1.0
)

// StageWeights maps a pipeline stage name to its fusion weight.
type StageWeights map[string]float64

// SensorWeights maps a sensor name to the weight its prosecution/defense
// vote carries within a profile. A sensor absent from the map gets
// defaultSensorWeight.
type SensorWeights map[string]float64

// Profile names one of the fusion engine's named weighting regimes,
// selected per run by BandwidthSensor's spectral rolloff (spec 4.E.11):
// narrowband audio truncates the high-frequency detail several sensors
// and rawnet3 itself depend on, so it gets its own weights and decision
// thresholds rather than reusing the wideband ("default") profile's.
type Profile string

const (
	ProfileDefault    Profile = "default"
	ProfileNarrowband Profile = "narrowband"
)

// ProfileWeights bundles one profile's per-stage and per-sensor weights
// with its synthetic/real decision thresholds.
type ProfileWeights struct {
	StageWeights       StageWeights
	SensorWeights      SensorWeights
	SyntheticThreshold float64 // replaces the flat decision threshold for SPOOF_LIKELY
	RealThreshold      float64 // replaces the flat 0.3 GENUINE_LIKELY/UNCERTAIN boundary
}

// DefaultStageWeights is the wideband profile's per-stage weighting,
// matching config.Default()'s fusion_engine.stage_weights.
func DefaultStageWeights() StageWeights {
	return StageWeights{
		"feature_extraction": 0.15,
		"temporal_analysis":  0.15,
		"artifact_detection": 0.15,
		"rawnet3":            0.40,
		"explainability":     0.15,
	}
}

// DefaultProfileWeights is the wideband ("default") profile.
func DefaultProfileWeights() ProfileWeights {
	return ProfileWeights{
		StageWeights:       DefaultStageWeights(),
		SyntheticThreshold: defaultConfidenceMin,
		RealThreshold:      uncertainThreshold,
	}
}

// NarrowbandProfileWeights is the narrowband profile: rawnet3 and the
// formant/phase sensors lean on spectral detail above the ~4kHz rolloff
// that selects this profile, so their weights are discounted and the
// synthetic threshold is raised to require stronger corroborating
// evidence before calling a band-limited recording synthetic.
func NarrowbandProfileWeights() ProfileWeights {
	return ProfileWeights{
		StageWeights: StageWeights{
			"feature_extraction": 0.20,
			"temporal_analysis":  0.25,
			"artifact_detection": 0.25,
			"rawnet3":            0.20,
			"explainability":     0.10,
		},
		SensorWeights: SensorWeights{
			"GlobalFormantSensor":     0.5,
			"FormantTrajectorySensor": 0.5,
			"PhaseCoherenceSensor":    0.5,
		},
		SyntheticThreshold: 0.6,
		RealThreshold:      uncertainThreshold,
	}
}

// DefaultProfiles is the engine's out-of-the-box profile table.
func DefaultProfiles() map[Profile]ProfileWeights {
	return map[Profile]ProfileWeights{
		ProfileDefault:    DefaultProfileWeights(),
		ProfileNarrowband: NarrowbandProfileWeights(),
	}
}

// QuickStageWeights is the re-weighted profile used by quick-mode runs
// that skip the physics and neural stages.
func QuickStageWeights() StageWeights {
	return StageWeights{
		"feature_extraction": 0.33,
		"temporal_analysis":  0.33,
		"artifact_detection": 0.34,
	}
}

// Engine is the weighted-average + prosecution/defense arbiter fusion
// engine. ConfidenceThreshold gates whether a decision is ever anything
// but UNCERTAIN; the synthetic/real decision thresholds live on the
// active Profile instead, since spec's profile selection governs them.
type Engine struct {
	Profiles            map[Profile]ProfileWeights
	ConfidenceThreshold float64
}

// NewEngine returns an Engine configured with weights as its default
// profile's stage weights and no narrowband override — callers that want
// the full profile table should set Profiles directly after construction.
func NewEngine(weights StageWeights) *Engine {
	if weights == nil {
		weights = DefaultStageWeights()
	}

	profile := DefaultProfileWeights()
	profile.StageWeights = weights

	return &Engine{
		Profiles: map[Profile]ProfileWeights{
			ProfileDefault:    profile,
			ProfileNarrowband: NarrowbandProfileWeights(),
		},
		ConfidenceThreshold: defaultConfidenceMin,
	}
}

// activeProfile selects default or narrowband per BandwidthSensor's
// is_narrowband verdict (spec §9's one-way dependency: Bandwidth runs,
// its context is read here, before any arithmetic weighting happens).
func (e *Engine) activeProfile(sensors map[string]types.SensorResult) ProfileWeights {
	if bw, ok := sensors["BandwidthSensor"]; ok {
		if narrow, _ := bw.Metadata["is_narrowband"].(bool); narrow {
			if p, ok := e.Profiles[ProfileNarrowband]; ok {
				return p
			}
		}
	}

	if p, ok := e.Profiles[ProfileDefault]; ok {
		return p
	}

	return DefaultProfileWeights()
}

// Fuse combines stage results and sensor results into a final verdict,
// following a seven-step arbitration procedure: extract stage scores,
// compute the weighted base score, partition sensors into risk/trust,
// apply arbitration rules, apply physics vetoes, compute confidence, and
// map to a decision. Per-stage contributions to the fused score are not
// computed or reported.
func (e *Engine) Fuse(stages map[string]types.StageResult, sensors map[string]types.SensorResult) types.FusionResult {
	if len(stages) == 0 {
		return emptyResult()
	}

	scores := extractScores(stages)
	if len(scores) == 0 {
		return emptyResult()
	}

	profile := e.activeProfile(sensors)

	riskScore, trustScore := partitionSensors(sensors, profile.SensorWeights)

	baseScore := weightedAverage(scores, profile.StageWeights)

	finalScore := baseScore

	var notes []string

	switch {
	case riskScore > riskVetoThreshold:
		finalScore = maxFloat(finalScore, riskScore)
		notes = append(notes, "Prosecution Veto")
	case riskScore < riskTrustValidationHigh && trustScore < riskTrustValidationHigh:
		finalScore = minFloat(finalScore, 0.2)
		notes = append(notes, "Defense Validation")
	}

	finalScore, vetoNotes := e.applyPhysicsVetoes(sensors, finalScore, riskScore > riskVetoThreshold)
	notes = append(notes, vetoNotes...)

	confidence := e.computeConfidence(stages, scores)
	decision := e.decide(finalScore, confidence, profile)

	return types.FusionResult{
		FusedScore:   finalScore,
		Confidence:   confidence,
		Decision:     decision,
		IsSpoof:      finalScore > profile.SyntheticThreshold,
		RiskScore:    riskScore,
		TrustScore:   trustScore,
		ArbiterNotes: notes,
	}
}

// FuseDualBranch runs Fuse and additionally reports per-branch scores
// (acoustic stages 1-3 vs. the neural stage) and whether the two
// branches agree within 0.3.
func (e *Engine) FuseDualBranch(stages map[string]types.StageResult, sensors map[string]types.SensorResult) types.FusionResult {
	result := e.Fuse(stages, sensors)
	if len(stages) == 0 {
		return result
	}

	scores := extractScores(stages)
	profile := e.activeProfile(sensors)

	acoustic := map[string]float64{}
	neural := map[string]float64{}

	for _, name := range []string{"feature_extraction", "temporal_analysis", "artifact_detection"} {
		if v, ok := scores[name]; ok {
			acoustic[name] = v
		}
	}

	if v, ok := scores["rawnet3"]; ok {
		neural["rawnet3"] = v
	}

	acousticScore := 0.5
	if len(acoustic) > 0 {
		acousticScore = weightedAverage(acoustic, profile.StageWeights)
	}

	neuralScore := 0.5
	if len(neural) > 0 {
		neuralScore = weightedAverage(neural, profile.StageWeights)
	}

	result.BranchScores = map[string]float64{
		"acoustic": acousticScore,
		"neural":   neuralScore,
	}
	result.BranchAgreement = absFloat(acousticScore-neuralScore) < 0.3

	return result
}

func extractScores(stages map[string]types.StageResult) map[string]float64 {
	scores := make(map[string]float64, len(stages))

	for name, res := range stages {
		if !res.Success {
			continue
		}

		scores[name] = res.Score
	}

	return scores
}

// partitionSensors splits sensors into the prosecution risk vote (weighted
// max) and the defense trust vote (weighted mean), per weights. A sensor
// missing from weights carries defaultSensorWeight. Informational sensors
// (Bandwidth) never enter either vote — they only drive profile selection.
func partitionSensors(sensors map[string]types.SensorResult, weights SensorWeights) (riskScore, trustScore float64) {
	var trustValues, trustWeights []float64

	riskScore = 0.0

	for name, res := range sensors {
		weight, ok := weights[name]
		if !ok {
			weight = defaultSensorWeight
		}

		switch res.Category {
		case types.CategoryProsecution:
			riskScore = maxFloat(riskScore, res.Value*weight)
		case types.CategoryDefense:
			trustValues = append(trustValues, res.Value)
			trustWeights = append(trustWeights, weight)
		case types.CategoryInformational:
			// does not participate in arbitration
		}
	}

	trustScore = 0.5
	if len(trustValues) > 0 {
		trustScore = stat.Mean(trustValues, trustWeights)
	}

	return riskScore, trustScore
}

func weightedAverage(scores map[string]float64, weights StageWeights) float64 {
	var weightedSum, totalWeight float64

	for name, score := range scores {
		weight, ok := weights[name]
		if !ok {
			weight = 0.1
		}

		weightedSum += score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.5
	}

	return weightedSum / totalWeight
}

// applyPhysicsVetoes raises the final score to a rule-defined floor when
// glottal or breath sensors report a physiological violation, and applies
// a trust-boost multiplier when the glottal sensor is perfectly clean and
// no other veto fired. prosecutionVeto reports whether the arbitration
// step already applied the prosecution veto.
func (e *Engine) applyPhysicsVetoes(sensors map[string]types.SensorResult, score float64, prosecutionVeto bool) (float64, []string) {
	var notes []string

	if breath, ok := sensors["BreathSensor"]; ok && respirationViolated(breath) {
		score = maxFloat(score, breathViolationFloor)
		notes = append(notes, "Impossible Breath Pattern")
	}

	glottal, hasGlottal := sensors["GlottalInertiaSensor"]
	if hasGlottal {
		violationCount, _ := glottal.Metadata["violation_count"].(int)

		switch {
		case violationCount > 0:
			score = maxFloat(score, glottalViolationFloor)
			notes = append(notes, "Glottal Physics Violation")
		case glottal.Passed != nil && *glottal.Passed && len(notes) == 0 && !prosecutionVeto:
			previous := score
			score *= glottalTrustBoost

			if previous > 0.5 && score < 0.5 {
				notes = append(notes, "Glottal Physics Validation (Trust Boost)")
			}
		}
	}

	return score, notes
}

func respirationViolated(res types.SensorResult) bool {
	maxVoiced, _ := res.Metadata["max_voiced_without_breath_seconds"].(float64)
	return maxVoiced > 15.0
}

func (e *Engine) computeConfidence(stages map[string]types.StageResult, scores map[string]float64) float64 {
	var confidences []float64

	for name, res := range stages {
		if _, ok := scores[name]; !ok {
			continue
		}

		conf := res.Confidence
		if conf == 0 {
			conf = defaultConfidence
		}

		confidences = append(confidences, conf)
	}

	if len(confidences) == 0 {
		return 0.5
	}

	return stat.Mean(confidences, nil)
}

func (e *Engine) decide(score, confidence float64, profile ProfileWeights) string {
	if confidence < e.ConfidenceThreshold {
		return "UNCERTAIN"
	}

	switch {
	case score > spoofHighThreshold:
		return "SPOOF_HIGH"
	case score > profile.SyntheticThreshold:
		return "SPOOF_LIKELY"
	case score > profile.RealThreshold:
		return "UNCERTAIN"
	default:
		return "GENUINE_LIKELY"
	}
}

func emptyResult() types.FusionResult {
	return types.FusionResult{
		FusedScore: 0.5,
		Confidence: 0.0,
		Decision:   "UNCERTAIN",
		IsSpoof:    false,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}

	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}

	return b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
