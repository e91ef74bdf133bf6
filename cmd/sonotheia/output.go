//nolint:wrapcheck
package main

import (
	"fmt"
	"os"

	"github.com/farcloser/primordium/format"

	"github.com/farcloser/sonotheia/internal/output"
	"github.com/farcloser/sonotheia/internal/types"
)

func outputResult(subject string, result types.DetectionResult, formatName string) error {
	formatter, err := format.GetFormatter(formatName)
	if err != nil {
		return err
	}

	data := &format.Data{
		Object: subject,
		Meta:   buildFriendlyOutput(result),
	}

	return formatter.PrintAll([]*format.Data{data}, os.Stdout)
}

// buildFriendlyOutput gives console/markdown users a short verdict summary
// up front, with the full stage-by-stage breakdown nested under "detail".
func buildFriendlyOutput(result types.DetectionResult) map[string]any {
	mode := "full"
	if result.QuickMode {
		mode = "quick"
	}

	meta := map[string]any{
		"summary": fmt.Sprintf("%s (score %.3f, confidence %.3f, %s mode)",
			result.Decision, result.DetectionScore, result.Confidence, mode),
		"is_spoof": result.IsSpoof,
	}

	if result.Explanation.Summary != "" {
		meta["explanation"] = result.Explanation.Summary
	}

	if len(result.Explanation.TopContributors) > 0 {
		contributors := make([]any, 0, len(result.Explanation.TopContributors))
		for _, c := range result.Explanation.TopContributors {
			contributors = append(contributors,
				fmt.Sprintf("%s: %.3f (%s)", c.Name, c.Contribution, c.Reason))
		}

		meta["top_contributors"] = contributors
	}

	if result.DemoMode {
		meta["demo_mode"] = true
	}

	meta["detail"] = output.ResultToMap(result)

	return meta
}
