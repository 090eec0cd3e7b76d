package risk

import "math"

// fallbackThreshold guards against models persisted with a non-positive
// anomaly threshold, which would otherwise blow up normalization.
const fallbackThreshold = 1.0

// Assessment is the full set of derived metrics for one anomaly score.
type Assessment struct {
	HealthScore    int
	RULEstimate    int
	RiskPercentage int
}

// Normalized returns the anomaly score scaled against the model threshold and
// capped at 1.0. A score at or above the threshold is maximal risk.
func Normalized(score, threshold float64) float64 {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = fallbackThreshold
	}
	return math.Min(1.0, score/threshold)
}

// RiskPercentage converts an anomaly score into an integer risk in [0, 100].
func RiskPercentage(score, threshold float64) int {
	return clampInt(int(math.Round(Normalized(score, threshold)*100)), 0, 100)
}

// HealthScore derives a 0-100 health value from the anomaly score. Anomalous
// readings are forced into the lower band so an anomalous machine can never
// report better health than a healthy one at the same score.
func HealthScore(score, threshold float64, isAnomaly bool) int {
	normalized := Normalized(score, threshold)
	var health float64
	if isAnomaly {
		health = math.Max(0, 40-normalized*100)
	} else {
		health = math.Min(100, 100-normalized*50)
	}
	return clampInt(int(math.Round(health)), 0, 100)
}

// RULEstimate maps the risk percentage onto a remaining-useful-life estimate
// in days. Piecewise linear: the slope steepens as risk climbs so high-risk
// machines lose days quickly.
func RULEstimate(score, threshold float64) int {
	riskPct := float64(RiskPercentage(score, threshold))
	var days float64
	switch {
	case riskPct >= 90:
		days = math.Max(0, 30-(riskPct-90)*0.5)
	case riskPct >= 70:
		days = 30 + (90-riskPct)*2
	default:
		days = 90 + (70-riskPct)*3
	}
	return clampInt(int(math.Round(days)), 0, 365)
}

// Assess computes all derived metrics for one prediction in a single call.
func Assess(score, threshold float64, isAnomaly bool) Assessment {
	return Assessment{
		HealthScore:    HealthScore(score, threshold, isAnomaly),
		RULEstimate:    RULEstimate(score, threshold),
		RiskPercentage: RiskPercentage(score, threshold),
	}
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
