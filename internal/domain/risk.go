package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel is ordered by severity: Low < Medium < High < Critical.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// RiskLevels lists every level in ascending severity.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	}
	return "Medium"
}

func (r RiskLevel) Valid() bool {
	return r >= RiskLow && r <= RiskCritical
}

// ParseRiskLevel accepts the level names case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "critical":
		return RiskCritical, nil
	}
	return RiskMedium, fmt.Errorf("invalid risk level %q", s)
}

// CoerceRiskLevel maps anything unparseable to Medium.
func CoerceRiskLevel(s string) RiskLevel {
	level, err := ParseRiskLevel(s)
	if err != nil {
		return RiskMedium
	}
	return level
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(b []byte) error {
	level, err := ParseRiskLevel(string(b))
	if err != nil {
		return err
	}
	*r = level
	return nil
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("risk level must be a string: %w", err)
	}
	return r.UnmarshalText([]byte(s))
}
