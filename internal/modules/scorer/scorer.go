// Package scorer is the learned half of the risk score: a logistic
// classifier and an isolation-forest anomaly detector trained on the
// per-lot feature vectors.
package scorer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/config"
)

// ErrInsufficientData is returned when there are too few samples to train
var ErrInsufficientData = errors.New("insufficient training data")

// Sample is one training row
type Sample struct {
	LotID     string
	Features  []float64
	RuleScore float64
}

// FeatureContribution explains one feature's push on the probability
type FeatureContribution struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Prediction is the learned view of one lot
type Prediction struct {
	ClassifierProbability float64               `json:"classifier_probability"`
	IsAnomaly             bool                  `json:"is_anomaly"`
	AnomalyScore          float64               `json:"anomaly_score"`
	TopFeatures           []FeatureContribution `json:"top_features"`
	Available             bool                  `json:"available"`
}

// Unavailable is the prediction of an untrained scorer
func Unavailable() Prediction {
	return Prediction{TopFeatures: []FeatureContribution{}}
}

// Scorer holds the current model bundle. Fit and Load swap it atomically.
type Scorer struct {
	cal          config.ScorerCalibration
	featureNames []string
	log          zerolog.Logger

	mu     sync.RWMutex
	bundle *ModelBundle
}

// New creates an untrained scorer for vectors laid out as featureNames
func New(featureNames []string, cal config.ScorerCalibration, log zerolog.Logger) *Scorer {
	return &Scorer{
		cal:          cal,
		featureNames: append([]string(nil), featureNames...),
		log:          log.With().Str("component", "scorer").Logger(),
	}
}

// Available reports whether a model is loaded
func (s *Scorer) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle != nil
}

// Bundle returns the current bundle, nil when untrained
func (s *Scorer) Bundle() *ModelBundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle
}

// Load installs a stored bundle. Bundles for a different feature layout are rejected.
func (s *Scorer) Load(b *ModelBundle) error {
	if len(b.FeatureNames) != len(s.featureNames) {
		return fmt.Errorf("model bundle has %d features, expected %d", len(b.FeatureNames), len(s.featureNames))
	}
	for i, name := range s.featureNames {
		if b.FeatureNames[i] != name {
			return fmt.Errorf("model bundle feature %d is %q, expected %q", i, b.FeatureNames[i], name)
		}
	}

	s.mu.Lock()
	s.bundle = b
	s.mu.Unlock()
	s.log.Info().Str("run_id", b.RunID).Int("samples", b.Samples).Str("label_source", b.LabelSource).Msg("Model bundle loaded")
	return nil
}

// resolveLabels picks external labels when enough samples carry one,
// filling the rest with pseudo-labels from the rule score.
func (s *Scorer) resolveLabels(samples []Sample, external map[string]int) ([]float64, string) {
	labeled := 0
	for _, sm := range samples {
		if _, ok := external[sm.LotID]; ok {
			labeled++
		}
	}
	useExternal := labeled >= s.cal.MinSamples

	y := make([]float64, len(samples))
	for i, sm := range samples {
		if label, ok := external[sm.LotID]; ok && useExternal {
			y[i] = float64(label)
			continue
		}
		if sm.RuleScore >= s.cal.PseudoLabelThreshold {
			y[i] = 1
		}
	}
	if useExternal {
		return y, LabelSourceExternal
	}
	return y, LabelSourcePseudo
}

// synthesizeMinority relabels the top (all negative) or bottom (all
// positive) share of rule scores as the missing class. Returns false when
// both classes are already present.
func (s *Scorer) synthesizeMinority(samples []Sample, y []float64) bool {
	positives := 0
	for _, v := range y {
		if v > 0.5 {
			positives++
		}
	}
	if positives != 0 && positives != len(y) {
		return false
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return samples[order[a]].RuleScore > samples[order[b]].RuleScore
	})

	n := int(math.Floor(float64(len(y)) * s.cal.MinorityShare))
	if n < 1 {
		n = 1
	}

	if positives == 0 {
		for _, i := range order[:n] {
			y[i] = 1
		}
	} else {
		for _, i := range order[len(order)-n:] {
			y[i] = 0
		}
	}

	s.log.Warn().
		Int("samples", len(y)).
		Int("relabeled", n).
		Bool("missing_positive", positives == 0).
		Msg("Labels have a single class, synthesized minority examples from rule scores")
	return true
}

// Fit trains both models and installs the new bundle. With fewer than
// MinSamples samples it returns ErrInsufficientData and keeps the current model.
func (s *Scorer) Fit(samples []Sample, external map[string]int) (*ModelBundle, error) {
	if len(samples) < s.cal.MinSamples {
		s.log.Warn().Int("samples", len(samples)).Int("required", s.cal.MinSamples).Msg("Skipping model training")
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientData, len(samples), s.cal.MinSamples)
	}

	x := make([][]float64, len(samples))
	for i, sm := range samples {
		if len(sm.Features) != len(s.featureNames) {
			return nil, fmt.Errorf("sample %s has %d features, expected %d", sm.LotID, len(sm.Features), len(s.featureNames))
		}
		x[i] = sm.Features
	}

	y, source := s.resolveLabels(samples, external)
	synthesized := s.synthesizeMinority(samples, y)

	clf, err := FitLogistic(x, y, s.cal.L2)
	if err != nil {
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}
	forest, err := FitForest(x, ForestParams{
		Trees:         s.cal.Trees,
		SampleSize:    s.cal.SampleSize,
		Contamination: s.cal.Contamination,
		Seed:          s.cal.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fit anomaly detector: %w", err)
	}

	b := newBundle(s.featureNames)
	b.Samples = len(samples)
	b.LabelSource = source
	b.Synthesized = synthesized
	b.Classifier = *clf
	b.Forest = *forest
	for _, v := range y {
		if v > 0.5 {
			b.Positives++
		}
	}

	s.mu.Lock()
	s.bundle = b
	s.mu.Unlock()

	s.log.Info().
		Str("run_id", b.RunID).
		Int("samples", b.Samples).
		Int("positives", b.Positives).
		Str("label_source", source).
		Float64("anomaly_threshold", forest.Threshold).
		Msg("Scorer trained")
	return b, nil
}

// Predict scores one feature vector. An untrained scorer returns Unavailable().
func (s *Scorer) Predict(features []float64) Prediction {
	b := s.Bundle()
	if b == nil || len(features) != len(b.FeatureNames) {
		return Unavailable()
	}

	contribs := b.Classifier.Contributions(features)
	top := make([]FeatureContribution, len(contribs))
	for j, c := range contribs {
		top[j] = FeatureContribution{Name: b.FeatureNames[j], Value: features[j], Contribution: round4(c)}
	}
	sort.SliceStable(top, func(i, j int) bool {
		return math.Abs(top[i].Contribution) > math.Abs(top[j].Contribution)
	})
	if len(top) > s.cal.TopFeatures {
		top = top[:s.cal.TopFeatures]
	}

	score := b.Forest.Score(features)
	return Prediction{
		ClassifierProbability: round4(b.Classifier.Probability(features)),
		IsAnomaly:             score > b.Forest.Threshold,
		AnomalyScore:          round4(score),
		TopFeatures:           top,
		Available:             true,
	}
}

// WriteTrainingSet writes lot_id, the features, rule_score and label as
// CSV. The label column is the external label when present, else the
// pseudo-label.
func (s *Scorer) WriteTrainingSet(w io.Writer, samples []Sample, external map[string]int) error {
	cw := csv.NewWriter(w)
	header := append([]string{"lot_id"}, s.featureNames...)
	header = append(header, "rule_score", "label")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write training header: %w", err)
	}

	for _, sm := range samples {
		label := 0
		if l, ok := external[sm.LotID]; ok {
			label = l
		} else if sm.RuleScore >= s.cal.PseudoLabelThreshold {
			label = 1
		}

		row := make([]string, 0, len(header))
		row = append(row, sm.LotID)
		for _, v := range sm.Features {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row, strconv.FormatFloat(sm.RuleScore, 'f', 1, 64), strconv.Itoa(label))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write training row %s: %w", sm.LotID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
