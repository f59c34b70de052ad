package config

import (
	"fmt"
	"os"

	"github.com/aristath/tenderwatch/internal/domain"
	"gopkg.in/yaml.v3"
)

// Calibration holds the scoring constants. None of them are learned.
type Calibration struct {
	Rules      RuleCalibration        `yaml:"rules"`
	Levels     domain.LevelThresholds `yaml:"levels"`
	Fusion     FusionCalibration      `yaml:"fusion"`
	Similarity SimilarityCalibration  `yaml:"similarity"`
	Graph      GraphCalibration       `yaml:"graph"`
	Scorer     ScorerCalibration      `yaml:"scorer"`
	History    HistoryCalibration     `yaml:"history"`
}

// RuleCalibration rescales the weighted rule sum into 0..100
type RuleCalibration struct {
	ScoreDivisor        float64 `yaml:"score_divisor"`
	BoostFourRules      float64 `yaml:"boost_four_rules"`
	BoostSixRules       float64 `yaml:"boost_six_rules"`
	SoleSourceThreshold float64 `yaml:"sole_source_threshold"` // 4000 MRP x 3450 KZT
}

// FusionCalibration weights the four signals of the final score
type FusionCalibration struct {
	RuleWeight       float64 `yaml:"rule_weight"`
	ModelWeight      float64 `yaml:"model_weight"`
	SimilarityWeight float64 `yaml:"similarity_weight"`
	GraphWeight      float64 `yaml:"graph_weight"`

	ProbabilityShare float64 `yaml:"probability_share"`
	AnomalyShare     float64 `yaml:"anomaly_share"`
	CopyPasteSignal  float64 `yaml:"copypaste_signal"`
	UniqueSignal     float64 `yaml:"unique_signal"`
	PerGraphFlag     float64 `yaml:"per_graph_flag"`
}

// SimilarityCalibration holds the copy-paste/uniqueness thresholds
type SimilarityCalibration struct {
	CopyPasteThreshold float64 `yaml:"copypaste_threshold"`
	UniqueThreshold    float64 `yaml:"unique_threshold"`
	MinTextLength      int     `yaml:"min_text_length"`
	TopK               int     `yaml:"top_k"`
	MaxFeatures        int     `yaml:"max_features"`
}

// GraphCalibration holds the network flag thresholds
type GraphCalibration struct {
	CentralityThreshold float64 `yaml:"centrality_threshold"`
	RepeatedPairing     int     `yaml:"repeated_pairing"`
	CommunitySize       int     `yaml:"community_size"`
	Seed                uint64  `yaml:"seed"` // Louvain move order
}

// ScorerCalibration holds learned-scorer settings
type ScorerCalibration struct {
	MinSamples           int     `yaml:"min_samples"`
	PseudoLabelThreshold float64 `yaml:"pseudo_label_threshold"`
	RealDataThreshold    int     `yaml:"real_data_threshold"`
	Trees                int     `yaml:"trees"`
	SampleSize           int     `yaml:"sample_size"`
	Contamination        float64 `yaml:"contamination"`
	Seed                 int64   `yaml:"seed"`
	L2                   float64 `yaml:"l2"`
	TopFeatures          int     `yaml:"top_features"`
	MinorityShare        float64 `yaml:"minority_share"`
}

// HistoryCalibration holds the time-window size
type HistoryCalibration struct {
	WindowDays int `yaml:"window_days"`
}

// DefaultCalibration returns the production constants
func DefaultCalibration() Calibration {
	return Calibration{
		Rules: RuleCalibration{
			ScoreDivisor:        1.8,
			BoostFourRules:      1.15,
			BoostSixRules:       1.10,
			SoleSourceThreshold: 4000 * 3450,
		},
		Levels: domain.DefaultLevelThresholds(),
		Fusion: FusionCalibration{
			RuleWeight:       0.70,
			ModelWeight:      0.20,
			SimilarityWeight: 0.05,
			GraphWeight:      0.05,
			ProbabilityShare: 0.8,
			AnomalyShare:     0.2,
			CopyPasteSignal:  80,
			UniqueSignal:     40,
			PerGraphFlag:     25,
		},
		Similarity: SimilarityCalibration{
			CopyPasteThreshold: 0.95,
			UniqueThreshold:    0.30,
			MinTextLength:      10,
			TopK:               5,
			MaxFeatures:        5000,
		},
		Graph: GraphCalibration{
			CentralityThreshold: 0.3,
			RepeatedPairing:     3,
			CommunitySize:       5,
			Seed:                42,
		},
		Scorer: ScorerCalibration{
			MinSamples:           10,
			PseudoLabelThreshold: 50,
			RealDataThreshold:    100,
			Trees:                100,
			SampleSize:           256,
			Contamination:        0.15,
			Seed:                 42,
			L2:                   1.0,
			TopFeatures:          5,
			MinorityShare:        0.10,
		},
		History: HistoryCalibration{
			WindowDays: 30,
		},
	}
}

// LoadCalibration reads a YAML file over the defaults.
// An empty path returns the defaults; keys missing from the file keep their default.
func LoadCalibration(path string) (Calibration, error) {
	cal := DefaultCalibration()
	if path == "" {
		return cal, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cal, fmt.Errorf("failed to read calibration file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return cal, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if err := cal.Validate(); err != nil {
		return cal, fmt.Errorf("invalid calibration %s: %w", path, err)
	}
	return cal, nil
}

// Validate rejects constants that would break score bounds
func (c Calibration) Validate() error {
	if c.Rules.ScoreDivisor <= 0 {
		return fmt.Errorf("rules.score_divisor must be positive")
	}
	if c.Rules.BoostFourRules < 1 || c.Rules.BoostSixRules < 1 {
		return fmt.Errorf("rule boosts must be >= 1")
	}
	if !(c.Levels.Medium < c.Levels.High && c.Levels.High < c.Levels.Critical) {
		return fmt.Errorf("levels must be strictly increasing")
	}

	f := c.Fusion
	for name, w := range map[string]float64{
		"rule_weight":       f.RuleWeight,
		"model_weight":      f.ModelWeight,
		"similarity_weight": f.SimilarityWeight,
		"graph_weight":      f.GraphWeight,
	} {
		if w < 0 {
			return fmt.Errorf("fusion.%s must not be negative", name)
		}
	}
	if sum := f.RuleWeight + f.ModelWeight + f.SimilarityWeight + f.GraphWeight; sum > 1.0001 {
		return fmt.Errorf("fusion weights sum to %.3f, must be <= 1", sum)
	}

	if c.Similarity.UniqueThreshold >= c.Similarity.CopyPasteThreshold {
		return fmt.Errorf("similarity.unique_threshold must be below copypaste_threshold")
	}
	if c.Scorer.Contamination <= 0 || c.Scorer.Contamination >= 0.5 {
		return fmt.Errorf("scorer.contamination must be in (0, 0.5)")
	}
	if c.History.WindowDays <= 0 {
		return fmt.Errorf("history.window_days must be positive")
	}
	return nil
}
