package models

import (
	"fmt"
	"strings"
)

// RiskLevel classifies an instruction for the approval gate.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// riskRank orders levels LOW < MEDIUM < HIGH.
func riskRank(l RiskLevel) int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// MaxRiskLevel returns the higher of two levels. Unknown levels lose to
// known ones.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if riskRank(b) > riskRank(a) {
		return b
	}
	return a
}

// ParseRiskLevel normalizes a textual level, accepting the short MED form.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return RiskLow, nil
	case "MEDIUM", "MED":
		return RiskMedium, nil
	case "HIGH":
		return RiskHigh, nil
	}
	return RiskLow, fmt.Errorf("invalid risk level %q", s)
}
