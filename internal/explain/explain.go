// Package explain implements Component H: turning stage results and the
// fusion verdict into a human-readable explanation — a summary, per-stage
// prose, feature importance, suspicious segments, and (via
// ConfidenceFactors) confidence factors that argue against trusting the
// result. Generate assembles a numbered reasoning chain, but the returned
// Explanation has no field for it, so the chain is not returned.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/farcloser/sonotheia/internal/types"
)

const maxTopFeatures = 10

// LLMNarrator is an optional advisory-only enhancement hook: if set, its
// output may override the summary and append to the reasoning chain, but
// nothing downstream depends on it succeeding. The default implementation
// is a no-op — no network client is wired into this module.
type LLMNarrator interface {
	Narrate(stages map[string]types.StageResult, fusion types.FusionResult) (summary string, extraReasoning []string, ok bool)
}

// NoopNarrator never produces an opinion; Generate falls back to the
// rule-based summary and reasoning chain.
type NoopNarrator struct{}

func (NoopNarrator) Narrate(map[string]types.StageResult, types.FusionResult) (string, []string, bool) {
	return "", nil, false
}

// Generator builds an Explanation from a completed detection run.
type Generator struct {
	Narrator LLMNarrator
}

func NewGenerator() *Generator {
	return &Generator{Narrator: NoopNarrator{}}
}

// Generate produces the explanation for one detection result. The
// reasoning chain it builds (with any narrator additions) is not part of
// the returned Explanation.
func (g *Generator) Generate(stages map[string]types.StageResult, sensors map[string]types.SensorResult, fusion types.FusionResult) types.Explanation {
	summary := summarize(fusion)
	reasoning := reasoningChain(stages, fusion)

	if g.Narrator != nil {
		if narratedSummary, extra, ok := g.Narrator.Narrate(stages, fusion); ok {
			if narratedSummary != "" {
				summary = narratedSummary
			}

			reasoning = append(reasoning, extra...)
		}
	}

	return types.Explanation{
		Summary:           normalizeText(summary),
		TopContributors:   topContributors(stages, sensors),
		FeatureImportance: featureImportance(stages),
		TemporalSegments:  temporalSegments(stages),
		DetailLevel:       "standard",
	}
}

func summarize(fusion types.FusionResult) string {
	switch fusion.Decision {
	case "SPOOF_HIGH":
		return fmt.Sprintf(
			"HIGH CONFIDENCE SPOOF DETECTED. The audio shows strong indicators of synthetic "+
				"generation or manipulation. Detection score: %.2f, Confidence: %.2f.",
			fusion.FusedScore, fusion.Confidence)
	case "SPOOF_LIKELY":
		return fmt.Sprintf(
			"LIKELY SPOOF. The audio exhibits characteristics consistent with deepfake or "+
				"synthetic audio. Detection score: %.2f, Confidence: %.2f.",
			fusion.FusedScore, fusion.Confidence)
	case "UNCERTAIN":
		return fmt.Sprintf(
			"UNCERTAIN RESULT. The detection result is inconclusive. Manual review recommended. "+
				"Detection score: %.2f, Confidence: %.2f.",
			fusion.FusedScore, fusion.Confidence)
	default:
		return fmt.Sprintf(
			"LIKELY GENUINE. The audio appears to be genuine with no significant indicators of "+
				"manipulation. Detection score: %.2f, Confidence: %.2f.",
			fusion.FusedScore, fusion.Confidence)
	}
}

func explainStage(name string, res types.StageResult) string {
	if !res.Success {
		return "Stage failed to produce results."
	}

	switch name {
	case "feature_extraction":
		frames, _ := res.Metadata["num_frames"].(int)

		msg := "Feature patterns appear normal."
		if res.Score > 0.5 {
			msg = "Elevated anomaly score suggests unusual acoustic patterns."
		}

		return fmt.Sprintf("Feature analysis extracted %d frames with anomaly score %.3f. %s", frames, res.Score, msg)

	case "temporal_analysis":
		anomalies, _ := res.Metadata["num_anomalies"].(int)

		msg := "Temporal flow appears natural."
		if anomalies > 5 {
			msg = "Discontinuities or unusual transitions detected."
		}

		return fmt.Sprintf("Temporal analysis found %d potential anomalies with score %.3f. %s", anomalies, res.Score, msg)

	case "artifact_detection":
		total, _ := res.Metadata["total_artifacts"].(int)

		msg := "Minimal artifacts detected."
		if total > 10 {
			msg = "Significant audio artifacts present."
		}

		return fmt.Sprintf("Artifact detection found %d artifacts with score %.3f. %s", total, res.Score, msg)

	case "rawnet3":
		demo, _ := res.Metadata["demo_mode"].(bool)

		demoNote := ""
		if demo {
			demoNote = "(DEMO MODE - not a production score) "
		}

		msg := "Model indicates genuine characteristics."
		if res.Score > 0.5 {
			msg = "Model indicates synthetic characteristics."
		}

		return fmt.Sprintf("Neural network analysis produced score %.3f. %s%s", res.Score, demoNote, msg)

	default:
		return fmt.Sprintf("Stage %s completed.", name)
	}
}

func topContributors(stages map[string]types.StageResult, sensors map[string]types.SensorResult) []types.Contributor {
	var contributors []types.Contributor

	for name, res := range stages {
		if !res.Success {
			continue
		}

		contributors = append(contributors, types.Contributor{
			Name:         name,
			Contribution: res.Score,
			Reason:       explainStage(name, res),
		})
	}

	for name, res := range sensors {
		if res.Passed == nil {
			continue
		}

		contributors = append(contributors, types.Contributor{
			Name:         name,
			Contribution: res.Value,
			Reason:       res.Detail,
		})
	}

	sort.Slice(contributors, func(i, j int) bool {
		return contributors[i].Contribution > contributors[j].Contribution
	})

	if len(contributors) > maxTopFeatures {
		contributors = contributors[:maxTopFeatures]
	}

	return contributors
}

// featureImportance uses each feature-type's reported standard deviation
// as a variance-based proxy for importance, saturating at std/5.0.
func featureImportance(stages map[string]types.StageResult) map[string]float64 {
	importance := map[string]float64{}

	fe, ok := stages["feature_extraction"]
	if !ok {
		return importance
	}

	stats, ok := fe.Metadata["feature_stats"].(map[string]map[string]float64)
	if !ok {
		return importance
	}

	for featType, s := range stats {
		std := s["std"]
		score := std / 5.0

		if score > 1.0 {
			score = 1.0
		}

		importance[featType] = score
	}

	return importance
}

func temporalSegments(stages map[string]types.StageResult) []types.TemporalSegment {
	ta, ok := stages["temporal_analysis"]
	if !ok {
		return nil
	}

	segments, ok := ta.Metadata["suspicious_segments"].([]types.TemporalSegment)
	if !ok {
		return nil
	}

	if len(segments) > 5 {
		segments = segments[:5]
	}

	return segments
}

func reasoningChain(stages map[string]types.StageResult, fusion types.FusionResult) []string {
	var chain []string

	step := 1

	if fe, ok := stages["feature_extraction"]; ok {
		frames, _ := fe.Metadata["num_frames"].(int)
		chain = append(chain, fmt.Sprintf("%d. Feature extraction analyzed %d frames with anomaly score %.3f.", step, frames, fe.Score))
		step++
	}

	if ta, ok := stages["temporal_analysis"]; ok {
		anomalies, _ := ta.Metadata["num_anomalies"].(int)
		chain = append(chain, fmt.Sprintf("%d. Temporal analysis found %d anomalies with score %.3f.", step, anomalies, ta.Score))
		step++
	}

	if ad, ok := stages["artifact_detection"]; ok {
		total, _ := ad.Metadata["total_artifacts"].(int)
		chain = append(chain, fmt.Sprintf("%d. Artifact detection found %d artifacts with score %.3f.", step, total, ad.Score))
		step++
	}

	if rn, ok := stages["rawnet3"]; ok {
		demo, _ := rn.Metadata["demo_mode"].(bool)

		demoNote := ""
		if demo {
			demoNote = " (DEMO MODE)"
		}

		chain = append(chain, fmt.Sprintf("%d. Neural network produced score %.3f%s.", step, rn.Score, demoNote))
		step++
	}

	chain = append(chain, fmt.Sprintf("%d. Scores fused to produce final score %.3f.", step, fusion.FusedScore))
	step++

	chain = append(chain, fmt.Sprintf("%d. Final decision: %s.", step, fusion.Decision))

	return chain
}

// ConfidenceFactor documents one negative (or positive) influence on how
// much the caller should trust the final decision.
type ConfidenceFactor struct {
	Factor      string
	Impact      string
	Description string
}

// ConfidenceFactors surfaces demo-mode usage, stage failures, and branch
// disagreement as explicit negative factors.
func ConfidenceFactors(stages map[string]types.StageResult, fusion types.FusionResult) []ConfidenceFactor {
	var factors []ConfidenceFactor

	for name, res := range stages {
		if demo, _ := res.Metadata["demo_mode"].(bool); demo {
			factors = append(factors, ConfidenceFactor{
				Factor:      "demo_mode",
				Impact:      "negative",
				Description: fmt.Sprintf("%s is running in demo mode; scores are placeholder values.", name),
			})
		}

		if !res.Success {
			factors = append(factors, ConfidenceFactor{
				Factor:      "stage_failure",
				Impact:      "negative",
				Description: fmt.Sprintf("%s failed: %s", name, res.Error),
			})
		}
	}

	if !fusion.BranchAgreement && fusion.BranchScores != nil {
		factors = append(factors, ConfidenceFactor{
			Factor:      "branch_disagreement",
			Impact:      "negative",
			Description: "Acoustic and neural branches disagree significantly.",
		})
	}

	if fusion.Confidence < 0.5 {
		factors = append(factors, ConfidenceFactor{
			Factor:      "low_confidence",
			Impact:      "negative",
			Description: "Overall detection confidence is below 50%.",
		})
	}

	return factors
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
