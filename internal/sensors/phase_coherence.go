package sensors

import (
	"math"

	"github.com/farcloser/sonotheia/internal/dsp"
	"github.com/farcloser/sonotheia/internal/types"
)

// phaseCoherenceFailScore is the coherence score (1/(1+σ)) at or above
// which phase variability is judged too low to be natural speech.
const phaseCoherenceFailScore = 0.4

// PhaseCoherenceSensor flags unnaturally smooth instantaneous-phase
// derivatives — a hallmark of vocoder resynthesis — via the analytic
// signal. A prosecution sensor.
type PhaseCoherenceSensor struct{}

func NewPhaseCoherenceSensor() *PhaseCoherenceSensor { return &PhaseCoherenceSensor{} }

func (s *PhaseCoherenceSensor) Name() string                  { return "PhaseCoherenceSensor" }
func (s *PhaseCoherenceSensor) Category() types.SensorCategory { return types.CategoryProsecution }

func (s *PhaseCoherenceSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	analytic := dsp.AnalyticSignal(wf.Samples)

	phase := make([]float64, len(analytic))
	for i, c := range analytic {
		phase[i] = math.Atan2(imag(c), real(c))
	}

	unwrapped := dsp.UnwrapPhase(phase)
	diffs := dsp.Diff(unwrapped)

	m := mean(diffs)
	sigma := stddev(diffs, m)

	score := 1.0 / (1.0 + sigma)
	passed := score < phaseCoherenceFailScore

	detail := "Instantaneous phase derivative shows natural variability."
	if !passed {
		detail = "Instantaneous phase derivative unnaturally smooth."
	}

	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(passed),
		Value:      score,
		Threshold:  phaseCoherenceFailScore,
		Detail:     detail,
		Metadata: map[string]any{
			"phase_diff_std": sigma,
		},
	}
}
