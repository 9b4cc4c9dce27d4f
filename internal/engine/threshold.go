package engine

import "alerteval/internal/domain"

// Breaches reports whether one observed value crosses the alert threshold.
// Params: comparison mode, configured threshold, and observed bucket value.
// Returns: true when the value breaches; ABOVE is inclusive of the threshold,
// BELOW is exclusive. Total over signed reals, no side effects.
func Breaches(mode domain.ComparisonMode, threshold, observed float64) bool {
	switch mode {
	case domain.ComparisonAbove:
		return observed >= threshold
	case domain.ComparisonBelow:
		return observed < threshold
	default:
		return false
	}
}
