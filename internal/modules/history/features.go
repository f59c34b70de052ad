package history

import (
	"strings"

	"github.com/aristath/tenderwatch/internal/modules/entities"
)

// FeatureNames lists the model feature columns in vector order
var FeatureNames = []string{
	"has_brand", "brand_count", "has_exclusive_phrase",
	"exclusive_count", "has_no_analogs", "dealer_requirement",
	"legal_marker_count", "spec_precision_score", "precise_param_count",
	"geo_restriction", "geo_count", "standard_count",
	"text_length", "participants_count", "deadline_days",
	"budget_ratio", "winner_repeat_count", "customer_winner_pair_count",
	"max_similarity", "is_copypaste", "is_unique",
}

// Features is the per-lot model input
type Features struct {
	LotID        string `json:"lot_id"`
	CategoryCode string `json:"category_code"`
	Language     string `json:"language"`

	HasBrand           bool    `json:"has_brand"`
	BrandCount         int     `json:"brand_count"`
	HasExclusivePhrase bool    `json:"has_exclusive_phrase"`
	ExclusiveCount     int     `json:"exclusive_count"`
	HasNoAnalogs       bool    `json:"has_no_analogs"`
	DealerRequirement  bool    `json:"dealer_requirement"`
	LegalMarkerCount   int     `json:"legal_marker_count"`
	SpecPrecisionScore float64 `json:"spec_precision_score"`
	PreciseParamCount  int     `json:"precise_param_count"`
	GeoRestriction     bool    `json:"geo_restriction"`
	GeoCount           int     `json:"geo_count"`
	StandardCount      int     `json:"standard_count"`
	TextLength         int     `json:"text_length"`
	ParticipantsCount  int     `json:"participants_count"`
	DeadlineDays       int     `json:"deadline_days"`
	BudgetRatio        float64 `json:"budget_ratio"`
	WinnerRepeatCount  int     `json:"winner_repeat_count"`
	PairCount          int     `json:"customer_winner_pair_count"`
	MaxSimilarity      float64 `json:"max_similarity"`
	IsCopyPaste        bool    `json:"is_copypaste"`
	IsUnique           bool    `json:"is_unique"`
}

// Vector returns the features in FeatureNames order
func (f Features) Vector() []float64 {
	return []float64{
		b2f(f.HasBrand),
		float64(f.BrandCount),
		b2f(f.HasExclusivePhrase),
		float64(f.ExclusiveCount),
		b2f(f.HasNoAnalogs),
		b2f(f.DealerRequirement),
		float64(f.LegalMarkerCount),
		f.SpecPrecisionScore,
		float64(f.PreciseParamCount),
		b2f(f.GeoRestriction),
		float64(f.GeoCount),
		float64(f.StandardCount),
		float64(f.TextLength),
		float64(f.ParticipantsCount),
		float64(f.DeadlineDays),
		f.BudgetRatio,
		float64(f.WinnerRepeatCount),
		float64(f.PairCount),
		f.MaxSimilarity,
		b2f(f.IsCopyPaste),
		b2f(f.IsUnique),
	}
}

// Map returns the vector keyed by feature name
func (f Features) Map() map[string]float64 {
	vec := f.Vector()
	out := make(map[string]float64, len(vec))
	for i, name := range FeatureNames {
		out[name] = vec[i]
	}
	return out
}

// WithSimilarity fills the similarity columns
func (f Features) WithSimilarity(maxSim float64, copyPaste, unique bool) Features {
	f.MaxSimilarity = maxSim
	f.IsCopyPaste = copyPaste
	f.IsUnique = unique
	return f
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func entityFeatures(f *Features, set entities.EntitySet) {
	f.BrandCount = len(set.Brands)
	f.HasBrand = f.BrandCount > 0

	f.ExclusiveCount = len(set.ExclusivePhrases)
	f.HasExclusivePhrase = f.ExclusiveCount > 0
	for _, e := range set.ExclusivePhrases {
		v := strings.ToLower(e.Value)
		if strings.Contains(v, "аналог") || strings.Contains(v, "эквивалент") {
			f.HasNoAnalogs = true
			break
		}
	}

	f.LegalMarkerCount = len(set.LegalMarkers)
	f.DealerRequirement = f.LegalMarkerCount > 0

	f.PreciseParamCount = len(set.SpecParams)
	f.SpecPrecisionScore = min(1.0, float64(f.PreciseParamCount)/5.0)

	f.GeoCount = len(set.GeoRestrictions)
	f.GeoRestriction = f.GeoCount > 0

	f.StandardCount = len(set.Standards)
}
