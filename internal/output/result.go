// Package output converts a detection result into the flat map structure
// the CLI's console/json/markdown formatters serialize.
package output

import (
	"github.com/farcloser/sonotheia/internal/types"
)

// ResultToMap converts a DetectionResult into the canonical map structure
// used for JSON and markdown serialization.
func ResultToMap(result types.DetectionResult) map[string]any {
	meta := map[string]any{
		"success":          result.Success,
		"job_id":           result.JobID,
		"detection_score":  result.DetectionScore,
		"is_spoof":         result.IsSpoof,
		"confidence":       result.Confidence,
		"decision":         result.Decision,
		"quick_mode":       result.QuickMode,
		"demo_mode":        result.DemoMode,
		"duration_seconds": result.DurationSeconds,
		"fusion":           FusionToMap(result.Fusion),
		"explanation":      ExplanationToMap(result.Explanation),
	}

	if len(result.Stages) > 0 {
		stages := make(map[string]any, len(result.Stages))
		for name, stage := range result.Stages {
			stages[name] = StageToMap(stage)
		}

		meta["stages"] = stages
	}

	if len(result.SensorResults) > 0 {
		sensorResults := make(map[string]any, len(result.SensorResults))
		for name, sensor := range result.SensorResults {
			sensorResults[name] = SensorToMap(sensor)
		}

		meta["sensor_results"] = sensorResults
	}

	return meta
}

// StageToMap converts one pipeline stage's result to a map.
func StageToMap(stage types.StageResult) map[string]any {
	entry := map[string]any{
		"name":       stage.Name,
		"success":    stage.Success,
		"score":      stage.Score,
		"confidence": stage.Confidence,
	}

	if stage.Error != "" {
		entry["error"] = stage.Error
	}

	if len(stage.Metadata) > 0 {
		entry["metadata"] = stage.Metadata
	}

	return entry
}

// SensorToMap converts one physics sensor's verdict to a map.
func SensorToMap(sensor types.SensorResult) map[string]any {
	entry := map[string]any{
		"sensor_name": sensor.SensorName,
		"category":    string(sensor.Category),
		"value":       sensor.Value,
		"threshold":   sensor.Threshold,
		"reason":      sensor.Reason,
		"detail":      sensor.Detail,
	}

	if sensor.Passed != nil {
		entry["passed"] = *sensor.Passed
	}

	if len(sensor.Metadata) > 0 {
		entry["metadata"] = sensor.Metadata
	}

	return entry
}

// FusionToMap converts the dual-branch fusion verdict to a map.
func FusionToMap(fusion types.FusionResult) map[string]any {
	return map[string]any{
		"fused_score":      fusion.FusedScore,
		"confidence":       fusion.Confidence,
		"decision":         fusion.Decision,
		"is_spoof":         fusion.IsSpoof,
		"risk_score":       fusion.RiskScore,
		"trust_score":      fusion.TrustScore,
		"branch_scores":    fusion.BranchScores,
		"branch_agreement": fusion.BranchAgreement,
		"arbiter_notes":    fusion.ArbiterNotes,
	}
}

// ExplanationToMap converts the explainer's output to a map.
func ExplanationToMap(explanation types.Explanation) map[string]any {
	contributors := make([]any, 0, len(explanation.TopContributors))
	for _, c := range explanation.TopContributors {
		contributors = append(contributors, map[string]any{
			"name":         c.Name,
			"contribution": c.Contribution,
			"reason":       c.Reason,
		})
	}

	segments := make([]any, 0, len(explanation.TemporalSegments))
	for _, s := range explanation.TemporalSegments {
		segments = append(segments, map[string]any{
			"start_seconds": s.StartSeconds,
			"end_seconds":   s.EndSeconds,
			"reason":        s.Reason,
		})
	}

	meta := map[string]any{
		"summary":           explanation.Summary,
		"detail_level":      explanation.DetailLevel,
		"top_contributors":  contributors,
		"temporal_segments": segments,
	}

	if len(explanation.FeatureImportance) > 0 {
		meta["feature_importance"] = explanation.FeatureImportance
	}

	return meta
}
