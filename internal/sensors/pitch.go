package sensors

import "math"

// trackF0 estimates per-frame fundamental frequency via normalized
// autocorrelation within [fMin, fMax] Hz. Returns 0 for unvoiced frames
// (peak autocorrelation below voicingThreshold). This stands in for the
// probabilistic autocorrelation tracker (pYIN-style) used by the Pitch
// Velocity sensor and the bare autocorrelation
// tracker used by Prosodic Continuity — the same algorithm family, tuned
// per call site via fMin/fMax/voicingThreshold.
func trackF0(frame []float64, sampleRate int, fMin, fMax, voicingThreshold float64) (hz float64, voiced bool) {
	minLag := int(float64(sampleRate) / fMax)
	maxLag := int(float64(sampleRate) / fMin)

	if maxLag >= len(frame) || minLag < 1 {
		return 0, false
	}

	var energy float64
	for _, s := range frame {
		energy += s * s
	}

	if energy == 0 {
		return 0, false
	}

	bestLag := -1
	bestCorr := 0.0

	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64

		for i := 0; i+lag < len(frame); i++ {
			corr += frame[i] * frame[i+lag]
		}

		normalized := corr / energy

		if normalized > bestCorr {
			bestCorr = normalized
			bestLag = lag
		}
	}

	if bestLag < 0 || bestCorr < voicingThreshold {
		return 0, false
	}

	return float64(sampleRate) / float64(bestLag), true
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}

	var sum float64
	for _, v := range x {
		sum += v
	}

	return sum / float64(len(x))
}

func stddev(x []float64, m float64) float64 {
	if len(x) == 0 {
		return 0
	}

	var sum float64
	for _, v := range x {
		d := v - m
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(x)))
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
