package domain

import "math"

// RiskLevel is the banded interpretation of a 0..100 score
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// AllLevels lists levels from lowest to highest
var AllLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// IsHighRisk reports whether the level counts toward "high risk" aggregates
func (r RiskLevel) IsHighRisk() bool {
	return r == RiskHigh || r == RiskCritical
}

// LevelThresholds are the lower bounds of each band above LOW
type LevelThresholds struct {
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// DefaultLevelThresholds returns LOW [0,25), MEDIUM [25,50), HIGH [50,75), CRITICAL [75,100]
func DefaultLevelThresholds() LevelThresholds {
	return LevelThresholds{Medium: 25, High: 50, Critical: 75}
}

// Level maps a score to its band. Lower bounds are inclusive.
func (t LevelThresholds) Level(score float64) RiskLevel {
	switch {
	case score >= t.Critical:
		return RiskCritical
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// LevelFor maps a score using the default thresholds
func LevelFor(score float64) RiskLevel {
	return DefaultLevelThresholds().Level(score)
}

// Clamp bounds a score to [0, 100]
func Clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

// Round1 rounds to one decimal place
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
