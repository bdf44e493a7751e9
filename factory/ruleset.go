/*
Package factory provides JSON to Go rule-set conversion.

PURPOSE:
  Converts JSON rule definitions into a lease.RuleSet. This enables
  business-rule tuning without code changes - analysts adjust the
  eligibility statuses, the rent charge code, severity tiers, and the
  per-property rentable-area reference table in a config file.

WHY JSON?
  - Non-developers can tune rules per portfolio
  - Version control for rule definitions
  - The same config feeds the CLI and the API server

JSON SCHEMA:
  {
    "eligible_statuses": ["activated", "superseded"],
    "rent_charge_code": "rent",
    "area_tolerance": 0.05,
    "rentable_areas": {
      "PROP-A": 120000,
      "PROP-B": 84500
    },
    "severity_overrides": {
      "HISTORICAL_RENT": "MEDIUM"
    }
  }

  Every field is optional; omitted fields keep the documented defaults.

USAGE:
  rules, err := factory.ParseRuleSet(jsonBytes)
  rules, err := factory.LoadRuleSetFile("./rules.json")

SEE ALSO:
  - lease/ruleset.go: RuleSet definition and defaults
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/rentroll-engine/lease"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleSetJSON is the JSON representation of a rule set.
type RuleSetJSON struct {
	EligibleStatuses  []string           `json:"eligible_statuses,omitempty"`
	RentChargeCode    string             `json:"rent_charge_code,omitempty"`
	AreaTolerance     *float64           `json:"area_tolerance,omitempty"`
	RentableAreas     map[string]float64 `json:"rentable_areas,omitempty"`
	SeverityOverrides map[string]string  `json:"severity_overrides,omitempty"`
}

var validStatuses = map[string]lease.Status{
	"activated":  lease.StatusActivated,
	"superseded": lease.StatusSuperseded,
	"in_process": lease.StatusInProcess,
	"other":      lease.StatusOther,
}

var validSeverities = map[string]lease.Severity{
	"CRITICAL": lease.SeverityCritical,
	"HIGH":     lease.SeverityHigh,
	"MEDIUM":   lease.SeverityMedium,
	"OK":       lease.SeverityOK,
}

var validClasses = map[string]lease.ChargeClass{
	"RENT_EXPECTED":   lease.ClassRentExpected,
	"HISTORICAL_RENT": lease.ClassHistoricalRent,
	"REVIEW_REQUIRED": lease.ClassReviewRequired,
	"TERMINATION_OK":  lease.ClassTerminationOK,
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRuleSet builds a RuleSet from JSON, starting from the defaults
// and overriding only what the config specifies. Unknown statuses,
// classes, or severities are hard errors - a typo in a business rule
// must not silently fall back to a default.
func ParseRuleSet(data []byte) (lease.RuleSet, error) {
	rules := lease.DefaultRuleSet()
	if len(data) == 0 {
		return rules, nil
	}

	var cfg RuleSetJSON
	if err := json.Unmarshal(data, &cfg); err != nil {
		return lease.RuleSet{}, fmt.Errorf("parse rule set: %w", err)
	}

	if len(cfg.EligibleStatuses) > 0 {
		statuses := make(map[lease.Status]bool, len(cfg.EligibleStatuses))
		for _, s := range cfg.EligibleStatuses {
			status, ok := validStatuses[s]
			if !ok {
				return lease.RuleSet{}, fmt.Errorf("unknown status %q in eligible_statuses", s)
			}
			statuses[status] = true
		}
		rules.EligibleStatuses = statuses
	}

	if cfg.RentChargeCode != "" {
		rules.RentChargeCode = lease.ChargeCode(cfg.RentChargeCode)
	}

	if cfg.AreaTolerance != nil {
		if *cfg.AreaTolerance < 0 {
			return lease.RuleSet{}, fmt.Errorf("area_tolerance must be non-negative, got %v", *cfg.AreaTolerance)
		}
		rules.AreaTolerance = decimal.NewFromFloat(*cfg.AreaTolerance)
	}

	if len(cfg.RentableAreas) > 0 {
		areas := make(map[lease.PropertyKey]decimal.Decimal, len(cfg.RentableAreas))
		for property, sf := range cfg.RentableAreas {
			if sf < 0 {
				return lease.RuleSet{}, fmt.Errorf("rentable area for %q must be non-negative", property)
			}
			areas[lease.PropertyKey(property)] = decimal.NewFromFloat(sf)
		}
		rules.RentableArea = areas
	}

	for class, sev := range cfg.SeverityOverrides {
		c, ok := validClasses[class]
		if !ok {
			return lease.RuleSet{}, fmt.Errorf("unknown class %q in severity_overrides", class)
		}
		s, ok := validSeverities[sev]
		if !ok {
			return lease.RuleSet{}, fmt.Errorf("unknown severity %q for class %q", sev, class)
		}
		rules.ClassSeverity[c] = s
	}

	return rules, nil
}

// LoadRuleSetFile reads and parses a rule-set config file. A missing
// path returns the defaults.
func LoadRuleSetFile(path string) (lease.RuleSet, error) {
	if path == "" {
		return lease.DefaultRuleSet(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return lease.RuleSet{}, fmt.Errorf("read rule set %s: %w", path, err)
	}
	return ParseRuleSet(data)
}
