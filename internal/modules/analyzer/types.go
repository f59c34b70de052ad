package analyzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/network"
	"github.com/aristath/tenderwatch/internal/modules/rules"
	"github.com/aristath/tenderwatch/internal/modules/scorer"
	"github.com/aristath/tenderwatch/internal/modules/similarity"
)

// ErrLotNotFound is returned for an id that is not in the corpus
var ErrLotNotFound = errors.New("lot not found")

// ErrNotInitialized is returned before the first successful Initialize
var ErrNotInitialized = errors.New("analyzer not initialized")

// ConfigError reports a corpus or setup failure that prevents analysis
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("analyzer %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LotInfo is the lot reference carried by an analysis
type LotInfo struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	CategoryCode      string  `json:"category_code"`
	CategoryName      string  `json:"category_name"`
	Budget            float64 `json:"budget"`
	CustomerBIN       string  `json:"customer_bin"`
	CustomerName      string  `json:"customer_name"`
	WinnerBIN         string  `json:"winner_bin"`
	WinnerName        string  `json:"winner_name"`
	City              string  `json:"city"`
	ParticipantsCount int     `json:"participants_count"`
	DeadlineDays      int     `json:"deadline_days"`
}

func lotInfo(l domain.Lot) LotInfo {
	return LotInfo{
		ID:                l.LotID,
		Name:              l.NameRu,
		CategoryCode:      l.CategoryCode,
		CategoryName:      l.CategoryName,
		Budget:            l.Budget,
		CustomerBIN:       l.CustomerBIN,
		CustomerName:      l.CustomerName,
		WinnerBIN:         l.WinnerBIN,
		WinnerName:        l.WinnerName,
		City:              l.City,
		ParticipantsCount: l.ParticipantsCount,
		DeadlineDays:      l.DeadlineDays,
	}
}

// FullAnalysis is the final per-lot result
type FullAnalysis struct {
	Lot          LotInfo              `json:"lot"`
	RuleAnalysis rules.AnalysisResult `json:"rule_analysis"`
	Features     map[string]float64   `json:"features"`
	Similarity   similarity.Result    `json:"similarity"`
	MLPrediction scorer.Prediction    `json:"ml_prediction"`
	Network      network.Result       `json:"network"`
	FinalScore   float64              `json:"final_score"`
	FinalLevel   domain.RiskLevel     `json:"final_level"`
	Explanation  []string             `json:"explanation"`
}

// TextMeta is the optional metadata of a free-text analysis
type TextMeta struct {
	CategoryCode      string  `json:"category_code"`
	Budget            float64 `json:"budget"`
	ParticipantsCount int     `json:"participants_count"`
	DeadlineDays      int     `json:"deadline_days"`
	CustomerBIN       string  `json:"customer_bin"`
	WinnerBIN         string  `json:"winner_bin"`
	TradeMethod       string  `json:"trade_method"`
}

// Report summarizes an AnalyzeAll run
type Report struct {
	RunID     string                   `json:"run_id"`
	StartedAt time.Time                `json:"started_at"`
	Duration  time.Duration            `json:"duration_ns"`
	Total     int                      `json:"total"`
	Analyzed  int                      `json:"analyzed"`
	Failed    int                      `json:"failed"`
	FailedIDs []string                 `json:"failed_ids"`
	ByLevel   map[domain.RiskLevel]int `json:"by_level"`
	Results   []*FullAnalysis          `json:"results"`
}

// CategoryStats aggregates analyzed lots of one category
type CategoryStats struct {
	Count    int     `json:"count"`
	HighRisk int     `json:"high_risk"`
	AvgScore float64 `json:"avg_score"`
}

// RiskEntry is one row of the dashboard's top list
type RiskEntry struct {
	LotID        string           `json:"lot_id"`
	Name         string           `json:"name"`
	CategoryName string           `json:"category_name"`
	Budget       float64          `json:"budget"`
	FinalScore   float64          `json:"final_score"`
	FinalLevel   domain.RiskLevel `json:"final_level"`
	Codes        []string         `json:"datanomix_codes"`
}

// Dashboard aggregates every analyzed lot
type Dashboard struct {
	TotalLots   int                      `json:"total_lots"`
	Analyzed    int                      `json:"analyzed"`
	ByLevel     map[domain.RiskLevel]int `json:"by_level"`
	ByCategory  map[string]CategoryStats `json:"by_category"`
	TotalBudget float64                  `json:"total_budget"`
	AvgScore    float64                  `json:"avg_score"`
	TopRisks    []RiskEntry              `json:"top_risks"`
}

func emptyLevels() map[domain.RiskLevel]int {
	m := make(map[domain.RiskLevel]int, len(domain.AllLevels))
	for _, l := range domain.AllLevels {
		m[l] = 0
	}
	return m
}
