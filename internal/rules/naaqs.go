package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"greenpulse/internal/window"
)

// Tier is the severity classification of a window average.
type Tier string

// Tiers in ascending severity.
const (
	TierMonitor   Tier = "MONITOR"
	TierFlag      Tier = "FLAG"
	TierViolation Tier = "VIOLATION"
)

// Rank orders tiers by severity (MONITOR < FLAG < VIOLATION).
func (t Tier) Rank() int {
	switch t {
	case TierFlag:
		return 1
	case TierViolation:
		return 2
	default:
		return 0
	}
}

const ruleVersion = "CPCB-NAAQS-2009"

// Limit is the regulatory limit pair for one pollutant. The averaging horizon
// is fixed by regulation per pollutant.
type Limit struct {
	Horizon    window.Horizon
	Limit      float64
	Escalation float64
}

// Result is the outcome of evaluating one window average.
type Result struct {
	Pollutant     string
	Tier          Tier
	Observed      float64
	Limit         float64
	Escalation    float64
	Horizon       window.Horizon
	ExceedancePct float64
	RuleRef       string
}

// Table maps pollutants to their regulated limits.
type Table struct {
	limits map[string]Limit
}

// DefaultTable returns the built-in CPCB NAAQS 2009 limit table.
// Concentrations are in ug/m3 except CO (mg/m3).
func DefaultTable() *Table {
	return &Table{limits: map[string]Limit{
		"pm25": {Horizon: window.Horizon24h, Limit: 60, Escalation: 90},
		"pm10": {Horizon: window.Horizon24h, Limit: 100, Escalation: 150},
		"no2":  {Horizon: window.Horizon1h, Limit: 80, Escalation: 180},
		"so2":  {Horizon: window.Horizon1h, Limit: 80, Escalation: 380},
		"co":   {Horizon: window.Horizon8h, Limit: 2, Escalation: 4},
		"o3":   {Horizon: window.Horizon8h, Limit: 100, Escalation: 168},
	}}
}

type limitEntry struct {
	Horizon    string  `yaml:"horizon"`
	Limit      float64 `yaml:"limit"`
	Escalation float64 `yaml:"escalation"`
}

// LoadTable reads a limit table from a yaml file. An empty path returns the
// built-in defaults.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries map[string]limitEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("rules: empty limit table")
	}

	limits := make(map[string]Limit, len(entries))
	for pollutant, entry := range entries {
		horizon, ok := window.ParseHorizon(entry.Horizon)
		if !ok {
			return nil, fmt.Errorf("rules: unknown horizon %q for %s", entry.Horizon, pollutant)
		}
		if entry.Limit <= 0 || entry.Escalation <= entry.Limit {
			return nil, fmt.Errorf("rules: invalid limits for %s", pollutant)
		}
		limits[pollutant] = Limit{Horizon: horizon, Limit: entry.Limit, Escalation: entry.Escalation}
	}
	return &Table{limits: limits}, nil
}

// Limit returns the regulated limit for a pollutant.
func (t *Table) Limit(pollutant string) (Limit, bool) {
	limit, ok := t.limits[pollutant]
	return limit, ok
}

// Pollutants lists the regulated pollutants.
func (t *Table) Pollutants() []string {
	pollutants := make([]string, 0, len(t.limits))
	for pollutant := range t.limits {
		pollutants = append(pollutants, pollutant)
	}
	return pollutants
}

// Evaluate classifies a window average into a tier. A value exactly on a
// boundary classifies into the higher tier.
func (t *Table) Evaluate(pollutant string, average float64) (Result, error) {
	limit, ok := t.limits[pollutant]
	if !ok {
		return Result{}, fmt.Errorf("rules: no limit configured for %s", pollutant)
	}

	tier := TierMonitor
	switch {
	case average >= limit.Escalation:
		tier = TierViolation
	case average >= limit.Limit:
		tier = TierFlag
	}

	var exceedance float64
	if average >= limit.Limit && limit.Limit > 0 {
		exceedance = (average/limit.Limit - 1) * 100
	}

	return Result{
		Pollutant:     pollutant,
		Tier:          tier,
		Observed:      average,
		Limit:         limit.Limit,
		Escalation:    limit.Escalation,
		Horizon:       limit.Horizon,
		ExceedancePct: exceedance,
		RuleRef:       fmt.Sprintf("%s/%s/%s", ruleVersion, pollutant, limit.Horizon.Label()),
	}, nil
}
