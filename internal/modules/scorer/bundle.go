package scorer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Label sources
const (
	LabelSourceExternal = "labels"
	LabelSourcePseudo   = "pseudo"
)

// ModelBundle is everything needed to predict without retraining
type ModelBundle struct {
	RunID        string             `msgpack:"run_id"`
	TrainedAt    time.Time          `msgpack:"trained_at"`
	Samples      int                `msgpack:"samples"`
	Positives    int                `msgpack:"positives"`
	LabelSource  string             `msgpack:"label_source"`
	Synthesized  bool               `msgpack:"synthesized"`
	FeatureNames []string           `msgpack:"feature_names"`
	Classifier   LogisticRegression `msgpack:"classifier"`
	Forest       IsolationForest    `msgpack:"forest"`
}

func newBundle(featureNames []string) *ModelBundle {
	return &ModelBundle{
		RunID:        uuid.New().String(),
		TrainedAt:    time.Now().UTC(),
		FeatureNames: append([]string(nil), featureNames...),
	}
}

// Encode serializes the bundle with msgpack
func (b *ModelBundle) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model bundle: %w", err)
	}
	return data, nil
}

// DecodeBundle is the inverse of Encode
func DecodeBundle(data []byte) (*ModelBundle, error) {
	var b ModelBundle
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode model bundle: %w", err)
	}
	if len(b.Classifier.Coef) != len(b.FeatureNames) {
		return nil, fmt.Errorf("model bundle has %d coefficients for %d features", len(b.Classifier.Coef), len(b.FeatureNames))
	}
	return &b, nil
}

// NeedsRetrain decides whether a stored bundle should be replaced: always
// when forced or missing, and when the corpus has reached realDataThreshold
// lots but the bundle was trained on fewer.
func NeedsRetrain(b *ModelBundle, corpusSize, realDataThreshold int, force bool) bool {
	if force || b == nil {
		return true
	}
	return corpusSize >= realDataThreshold && b.Samples < realDataThreshold
}
