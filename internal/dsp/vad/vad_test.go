package vad

import "testing"

func TestWithDefaultsMinSilenceSeconds(t *testing.T) {
	opts := Options{}.withDefaults()

	if opts.MinSilenceSeconds != 0.2 {
		t.Errorf("default MinSilenceSeconds = %v, want 0.2 (segments separated by < 200ms merge)", opts.MinSilenceSeconds)
	}
}

func TestWithDefaultsPreservesExplicitValue(t *testing.T) {
	opts := Options{MinSilenceSeconds: 0.05}.withDefaults()

	if opts.MinSilenceSeconds != 0.05 {
		t.Errorf("explicit MinSilenceSeconds = %v, want preserved at 0.05", opts.MinSilenceSeconds)
	}
}

func TestMergeCloseUsesGapThreshold(t *testing.T) {
	segments := []Segment{
		{StartSeconds: 0.0, EndSeconds: 1.0},
		{StartSeconds: 1.15, EndSeconds: 2.0}, // 150ms gap: must merge under the 200ms default
		{StartSeconds: 2.5, EndSeconds: 3.0},  // 500ms gap: must stay separate
	}

	merged := mergeClose(segments, 0.2)

	if len(merged) != 2 {
		t.Fatalf("merged = %v, want 2 segments (first two merged, third separate)", merged)
	}

	if merged[0].StartSeconds != 0.0 || merged[0].EndSeconds != 2.0 {
		t.Errorf("first merged segment = %+v, want {0.0, 2.0}", merged[0])
	}

	if merged[1].StartSeconds != 2.5 || merged[1].EndSeconds != 3.0 {
		t.Errorf("second merged segment = %+v, want {2.5, 3.0}", merged[1])
	}
}

func TestDetectPureToneYieldsOneSpeechSegment(t *testing.T) {
	const sampleRate = 16000

	samples := make([]float64, sampleRate) // 0.25 s of silence, then a constant 0.5 level
	for i := sampleRate / 4; i < sampleRate; i++ {
		samples[i] = 0.5
	}

	segments := Detect(samples, sampleRate, Options{})
	if len(segments) != 1 {
		t.Fatalf("Detect found %d speech segments for a sustained tone, want 1", len(segments))
	}

	total := 0.0
	for _, s := range segments {
		total += s.Duration()
	}

	if total <= 0 {
		t.Errorf("total speech duration = %v, want > 0", total)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	if segments := Detect(nil, 16000, Options{}); segments != nil {
		t.Errorf("segments = %v, want nil for empty input", segments)
	}
}
