package sensors

import (
	"context"
	"time"

	"github.com/farcloser/sonotheia/internal/types"
)

// neuralDetectorMaxRetries bounds the exponential-backoff retry loop
// against a transient model-serving failure.
const neuralDetectorMaxRetries = 3

// neuralDetectorBaseDelay is the first retry delay; doubled each attempt.
const neuralDetectorBaseDelay = 200 * time.Millisecond

// ExternalClassifier is the contract for whatever model backend the
// neural sensor calls out to — in-process, local server, or remote API.
type ExternalClassifier interface {
	ClassifySpoof(ctx context.Context, wf *types.Waveform) (probability float64, err error)
}

// NeuralDetectorSensor wraps an optional external classifier. A
// prosecution sensor that fails open: if the backend is unavailable after
// retries, it reports passed=true, value=0 so its absence never produces
// a false positive.
type NeuralDetectorSensor struct {
	client ExternalClassifier
}

func NewNeuralDetectorSensor(client ExternalClassifier) *NeuralDetectorSensor {
	return &NeuralDetectorSensor{client: client}
}

func (s *NeuralDetectorSensor) Name() string                  { return "NeuralDetectorSensor" }
func (s *NeuralDetectorSensor) Category() types.SensorCategory { return types.CategoryProsecution }

func (s *NeuralDetectorSensor) Analyze(wf *types.Waveform) types.SensorResult {
	if s.client == nil {
		return s.failOpen("No external classifier configured.")
	}

	if wf == nil || len(wf.Samples) == 0 {
		return invalidResult(s)
	}

	ctx := context.Background()

	delay := neuralDetectorBaseDelay

	var lastErr error

	for attempt := 0; attempt <= neuralDetectorMaxRetries; attempt++ {
		probability, err := s.client.ClassifySpoof(ctx, wf)
		if err == nil {
			passed := probability < 0.5

			return types.SensorResult{
				SensorName: s.Name(),
				Category:   s.Category(),
				Passed:     boolPtr(passed),
				Value:      probability,
				Threshold:  0.5,
				Detail:     "External classifier returned a spoof probability.",
				Metadata: map[string]any{
					"attempt": attempt,
				},
			}
		}

		lastErr = err

		if attempt < neuralDetectorMaxRetries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return s.failOpen("Context cancelled during retry backoff.")
			}

			delay *= 2
		}
	}

	return s.failOpen("External classifier unavailable: " + lastErr.Error())
}

func (s *NeuralDetectorSensor) failOpen(reason string) types.SensorResult {
	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     boolPtr(true),
		Value:      0,
		Threshold:  0.5,
		Reason:     reason,
		Detail:     "Neural detector unavailable; fusion proceeds without it.",
	}
}
