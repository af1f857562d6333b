package rules

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"greenpulse/internal/window"
)

func TestEvaluateTierBoundaries(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		name      string
		pollutant string
		average   float64
		want      Tier
	}{
		{"below limit", "pm25", 59.9, TierMonitor},
		{"exactly on limit", "pm25", 60, TierFlag},
		{"between limit and escalation", "pm25", 75, TierFlag},
		{"exactly on escalation", "pm25", 90, TierViolation},
		{"above escalation", "pm25", 120, TierViolation},
		{"co fractional limit", "co", 2, TierFlag},
		{"co escalation", "co", 4, TierViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := table.Evaluate(tc.pollutant, tc.average)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if result.Tier != tc.want {
				t.Fatalf("tier = %s, want %s", result.Tier, tc.want)
			}
		})
	}
}

func TestEvaluateExceedancePercent(t *testing.T) {
	table := DefaultTable()
	result, err := table.Evaluate("pm25", 90)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(result.ExceedancePct-50) > 1e-9 {
		t.Fatalf("exceedance = %v, want 50", result.ExceedancePct)
	}

	below, err := table.Evaluate("pm25", 30)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if below.ExceedancePct != 0 {
		t.Fatalf("exceedance below limit = %v, want 0", below.ExceedancePct)
	}
}

func TestEvaluateRuleReference(t *testing.T) {
	table := DefaultTable()
	result, err := table.Evaluate("no2", 100)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.RuleRef != "CPCB-NAAQS-2009/no2/1h" {
		t.Fatalf("rule ref = %q", result.RuleRef)
	}
	if result.Horizon != window.Horizon1h {
		t.Fatalf("horizon = %s, want 1h", result.Horizon.Label())
	}
}

func TestEvaluateUnknownPollutant(t *testing.T) {
	table := DefaultTable()
	if _, err := table.Evaluate("nh3", 50); err == nil {
		t.Fatal("expected error for unregulated pollutant")
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	content := []byte("pm25:\n  horizon: 24h\n  limit: 50\n  escalation: 80\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	limit, ok := table.Limit("pm25")
	if !ok {
		t.Fatal("pm25 missing")
	}
	if limit.Limit != 50 || limit.Escalation != 80 || limit.Horizon != window.Horizon24h {
		t.Fatalf("limit = %+v", limit)
	}
}

func TestLoadTableRejectsInvertedLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.yaml")
	content := []byte("pm25:\n  horizon: 24h\n  limit: 90\n  escalation: 60\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTable(path); err == nil {
		t.Fatal("expected error for escalation below limit")
	}
}
