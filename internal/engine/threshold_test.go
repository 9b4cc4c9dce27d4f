package engine

import (
	"testing"

	"alerteval/internal/domain"
)

func TestBreachesAboveIsInclusive(t *testing.T) {
	t.Parallel()

	if !Breaches(domain.ComparisonAbove, 10, 10) {
		t.Fatalf("expected value equal to threshold to breach in ABOVE mode")
	}
	if !Breaches(domain.ComparisonAbove, 10, 11) {
		t.Fatalf("expected value over threshold to breach in ABOVE mode")
	}
	if Breaches(domain.ComparisonAbove, 10, 9.999) {
		t.Fatalf("expected value under threshold not to breach in ABOVE mode")
	}
}

func TestBreachesBelowIsExclusive(t *testing.T) {
	t.Parallel()

	if Breaches(domain.ComparisonBelow, 10, 10) {
		t.Fatalf("expected value equal to threshold not to breach in BELOW mode")
	}
	if !Breaches(domain.ComparisonBelow, 10, 9.999) {
		t.Fatalf("expected value under threshold to breach in BELOW mode")
	}
	if Breaches(domain.ComparisonBelow, 10, 11) {
		t.Fatalf("expected value over threshold not to breach in BELOW mode")
	}
}

func TestBreachesZeroThreshold(t *testing.T) {
	t.Parallel()

	// A zero-filled bucket still breaches ABOVE with threshold 0.
	if !Breaches(domain.ComparisonAbove, 0, 0) {
		t.Fatalf("expected zero value to breach ABOVE with zero threshold")
	}
	if Breaches(domain.ComparisonBelow, 0, 0) {
		t.Fatalf("expected zero value not to breach BELOW with zero threshold")
	}
}

func TestBreachesUnknownModeNeverBreaches(t *testing.T) {
	t.Parallel()

	if Breaches(domain.ComparisonMode("SIDEWAYS"), 1, 100) {
		t.Fatalf("expected unknown mode never to breach")
	}
}
