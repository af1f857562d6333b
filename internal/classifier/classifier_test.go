package classifier

import (
	"testing"

	"greenpulse/internal/rules"
	"greenpulse/internal/window"
)

func TestClassifyUsesRegulatedHorizon(t *testing.T) {
	cls, err := New(rules.DefaultTable())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}

	averages := map[window.Horizon]float64{
		window.Horizon1h:  200, // irrelevant: pm25 is regulated on 24h
		window.Horizon24h: 77,
	}
	result, ok := cls.Classify("st-1", "pm25", averages, 1.0)
	if !ok {
		t.Fatal("expected a classification")
	}
	if result.Tier != rules.TierFlag {
		t.Fatalf("tier = %s, want FLAG", result.Tier)
	}
	if result.Observed != 77 {
		t.Fatalf("observed = %v, want 77", result.Observed)
	}
}

func TestClassifyMissingHorizonAverage(t *testing.T) {
	cls, _ := New(rules.DefaultTable())
	averages := map[window.Horizon]float64{window.Horizon1h: 90}
	if _, ok := cls.Classify("st-1", "pm25", averages, 1.0); ok {
		t.Fatal("expected no classification without a 24h average")
	}
}

func TestClassifyUnregulatedPollutant(t *testing.T) {
	cls, _ := New(rules.DefaultTable())
	averages := map[window.Horizon]float64{window.Horizon24h: 500}
	if _, ok := cls.Classify("st-1", "nh3", averages, 1.0); ok {
		t.Fatal("expected no classification for unregulated pollutant")
	}
}

func TestClassifyZoneAdjustment(t *testing.T) {
	cls, _ := New(rules.DefaultTable())
	averages := map[window.Horizon]float64{window.Horizon24h: 66}

	// Unadjusted 66 is FLAG for pm25; a roadside divisor of 1.2 normalizes
	// it to 55, back under the limit.
	plain, _ := cls.Classify("st-1", "pm25", averages, 1.0)
	if plain.Tier != rules.TierFlag {
		t.Fatalf("unadjusted tier = %s, want FLAG", plain.Tier)
	}
	adjusted, _ := cls.Classify("st-1", "pm25", averages, 1.2)
	if adjusted.Tier != rules.TierMonitor {
		t.Fatalf("adjusted tier = %s, want MONITOR", adjusted.Tier)
	}
}

func TestDetectInitializesBaselineSilently(t *testing.T) {
	store := NewTierStore()
	transition, due := Detect(store, "st-1", "pm25", rules.TierFlag)
	if due {
		t.Fatal("first sight must not emit an event")
	}
	if transition.To != rules.TierFlag {
		t.Fatalf("transition.To = %s, want FLAG", transition.To)
	}
	if tier, ok := store.Get("st-1", "pm25"); !ok || tier != rules.TierFlag {
		t.Fatalf("baseline = (%s,%v), want FLAG", tier, ok)
	}
}

func TestDetectNoFlapOnSameTier(t *testing.T) {
	store := NewTierStore()
	store.Set("st-1", "pm25", rules.TierFlag)

	for i := 0; i < 5; i++ {
		if _, due := Detect(store, "st-1", "pm25", rules.TierFlag); due {
			t.Fatal("unchanged tier must not emit an event")
		}
	}
}

func TestDetectTransitionDoesNotAdvanceBaseline(t *testing.T) {
	store := NewTierStore()
	store.Set("st-1", "pm25", rules.TierMonitor)

	transition, due := Detect(store, "st-1", "pm25", rules.TierViolation)
	if !due {
		t.Fatal("expected a transition")
	}
	if transition.From != rules.TierMonitor || transition.To != rules.TierViolation {
		t.Fatalf("transition = %+v", transition)
	}
	// The baseline advances only after the event commits; a re-detect must
	// see the same transition.
	if tier, _ := store.Get("st-1", "pm25"); tier != rules.TierMonitor {
		t.Fatalf("baseline = %s, want MONITOR", tier)
	}
	if _, due := Detect(store, "st-1", "pm25", rules.TierViolation); !due {
		t.Fatal("expected transition to be re-detected")
	}
}

func TestDetectDeescalationIsATransition(t *testing.T) {
	store := NewTierStore()
	store.Set("st-1", "pm25", rules.TierViolation)
	transition, due := Detect(store, "st-1", "pm25", rules.TierMonitor)
	if !due {
		t.Fatal("expected de-escalation to emit an event")
	}
	if transition.From != rules.TierViolation || transition.To != rules.TierMonitor {
		t.Fatalf("transition = %+v", transition)
	}
}
