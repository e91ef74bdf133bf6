// Package sensors implements Component E: the physics sensor registry and
// its 12-sensor catalog. Each sensor is stateless after construction and
// safe to run concurrently; the registry fans them out in parallel with a
// per-sensor timeout, mirroring SensorRegistry.analyze_all's
// asyncio.gather/asyncio.wait_for shape with golang.org/x/sync/errgroup.
package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/farcloser/sonotheia/internal/types"
)

// Sensor is the contract every physics sensor implements. Analyze must be
// side-effect-free and safe to call concurrently from multiple goroutines.
type Sensor interface {
	Name() string
	Category() types.SensorCategory
	Analyze(wf *types.Waveform) types.SensorResult
}

// Registry holds the live set of registered sensors.
type Registry struct {
	mu      sync.RWMutex
	sensors map[string]Sensor
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sensors: make(map[string]Sensor)}
}

// Register adds a sensor to the live set.
func (r *Registry) Register(s Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sensors[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}

	r.sensors[s.Name()] = s
}

// List returns the registered sensor names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// DefaultTimeout is the per-sensor wall-clock budget when none is given.
const DefaultTimeout = 10 * time.Second

// AnalyzeAll runs every registered sensor concurrently over wf, each
// bounded by timeout. A sensor that times out or panics contributes a
// SensorResult with Passed=nil and a "Timeout"/"Error: ..." reason instead
// of failing the batch.
func (r *Registry) AnalyzeAll(ctx context.Context, wf *types.Waveform, timeout time.Duration) map[string]types.SensorResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	sensorsByName := make(map[string]Sensor, len(r.sensors))

	for k, v := range r.sensors {
		sensorsByName[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]types.SensorResult, len(names))

	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)

	for _, name := range names {
		s := sensorsByName[name]

		group.Go(func() error {
			res := runWithTimeout(gctx, s, wf, timeout)

			mu.Lock()
			results[s.Name()] = res
			mu.Unlock()

			return nil // a sensor failure never fails the batch
		})
	}

	_ = group.Wait() // errors are absorbed into per-sensor results above

	return results
}

func runWithTimeout(ctx context.Context, s Sensor, wf *types.Waveform, timeout time.Duration) (result types.SensorResult) {
	done := make(chan types.SensorResult, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- failureResult(s, fmt.Sprintf("Error: %v", rec))
			}
		}()

		done <- s.Analyze(wf)
	}()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-done:
		return res
	case <-tctx.Done():
		return failureResult(s, "Timeout")
	}
}

func failureResult(s Sensor, reason string) types.SensorResult {
	return types.SensorResult{
		SensorName: s.Name(),
		Category:   s.Category(),
		Passed:     nil,
		Reason:     reason,
	}
}

func boolPtr(b bool) *bool { return &b }
