package analyzer

import (
	"fmt"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/network"
	"github.com/aristath/tenderwatch/internal/modules/scorer"
	"github.com/aristath/tenderwatch/internal/modules/similarity"
)

// maxGraphLines bounds the network flags quoted in the explanation
const maxGraphLines = 3

// Fusion combines the four signals into the final score
type Fusion struct {
	weights config.FusionCalibration
	levels  domain.LevelThresholds
}

// NewFusion creates a fusion step from calibration
func NewFusion(cal config.Calibration) Fusion {
	return Fusion{weights: cal.Fusion, levels: cal.Levels}
}

// Combine returns the final score, its level and the explanation lines in
// rules, model, similarity, graph order. An unavailable model contributes
// nothing and its weight is not redistributed.
func (f Fusion) Combine(ruleScore float64, pred scorer.Prediction, sim similarity.Result, net network.Result) (float64, domain.RiskLevel, []string) {
	w := f.weights
	var explanation []string

	ruleContrib := ruleScore * w.RuleWeight
	explanation = append(explanation, fmt.Sprintf("Правила: %.0f/100 (вклад %.1f)", ruleScore, ruleContrib))

	var mlContrib float64
	if pred.Available {
		anomaly := 0.0
		anomalyText := "нет"
		if pred.IsAnomaly {
			anomaly = 100
			anomalyText = "да"
		}
		mlScore := pred.ClassifierProbability*100*w.ProbabilityShare + anomaly*w.AnomalyShare
		mlContrib = mlScore * w.ModelWeight
		explanation = append(explanation, fmt.Sprintf(
			"ML модель: %.0f/100 (классификатор %.1f%%, аномалия %s, вклад %.1f)",
			mlScore, pred.ClassifierProbability*100, anomalyText, mlContrib))
	} else {
		explanation = append(explanation, "ML модель: не обучена, сигнал пропущен (вклад 0.0)")
	}

	var simContrib float64
	switch {
	case sim.IsCopyPaste:
		simContrib = w.CopyPasteSignal * w.SimilarityWeight
		explanation = append(explanation, fmt.Sprintf(
			"Copy-Paste: обнаружено совпадение ТЗ на %.0f%% (вклад %.1f)", sim.MaxSimilarity*100, simContrib))
	case sim.IsUnique:
		simContrib = w.UniqueSignal * w.SimilarityWeight
		explanation = append(explanation, fmt.Sprintf("Уникальное ТЗ: нет аналогов в базе (вклад %.1f)", simContrib))
	}

	var netContrib float64
	if len(net.Flags) > 0 {
		signal := float64(len(net.Flags)) * w.PerGraphFlag
		if signal > 100 {
			signal = 100
		}
		netContrib = signal * w.GraphWeight
		perFlag := netContrib / float64(len(net.Flags))
		for i, flag := range net.Flags {
			if i == maxGraphLines {
				break
			}
			explanation = append(explanation, fmt.Sprintf("Сеть: %s (вклад %.1f)", flag, perFlag))
		}
		explanation = append(explanation, fmt.Sprintf("Сеть: %d признаков (вклад %.1f)", len(net.Flags), netContrib))
	}

	final := domain.Round1(domain.Clamp(ruleContrib + mlContrib + simContrib + netContrib))
	return final, f.levels.Level(final), explanation
}
