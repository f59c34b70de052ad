// Package history builds corpus-wide aggregates (category price statistics,
// time-windowed customer/supplier counts, text-length statistics) and
// derives per-lot history and model features from them.
package history

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/entities"
	"github.com/aristath/tenderwatch/internal/modules/textclean"
)

// LotHistory is the corpus context of one lot as seen by the rule engine
type LotHistory struct {
	CategoryMedianPrice      float64 `json:"category_median_price"`
	CategoryPriceCount       int     `json:"category_price_count"`
	WinnerWinsSameCustomer   int     `json:"winner_wins_same_customer_30d"`
	CustomerWinnerTotal      int     `json:"customer_winner_total"`
	SameCustomerCategoryLots int     `json:"same_customer_ktru_lots_30d"`
	TextLengthMean           float64 `json:"text_length_mean"`
	TextLengthStd            float64 `json:"text_length_std"`
	TextLengthSamples        int     `json:"text_length_samples"`

	// WindowFallback is set when the lot date could not be parsed and the
	// windowed counts are all-time counts instead.
	WindowFallback bool `json:"window_fallback"`
}

// PriceStats summarizes effective unit prices within one category
type PriceStats struct {
	Count        int     `json:"count"`
	Median       float64 `json:"median"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	Percentile25 float64 `json:"percentile_25"`
	Percentile75 float64 `json:"percentile_75"`
}

type pairKey struct {
	a, b string
}

type occurrence struct {
	lotID string
	day   time.Time
}

// occurrences is an ordered-by-date occurrence list for one key
type occurrences struct {
	dated []occurrence // sorted by day, then lot id
	all   []string     // every lot id, dated or not
}

type textStats struct {
	mean, std float64
	samples   int
}

// snapshot is immutable once built
type snapshot struct {
	lots         int
	prices       map[string]PriceStats
	pairs        map[pairKey]*occurrences // (customer, winner)
	custCategory map[pairKey]*occurrences // (customer, category)
	text         map[string]textStats
}

func emptySnapshot() *snapshot {
	return &snapshot{
		prices:       map[string]PriceStats{},
		pairs:        map[pairKey]*occurrences{},
		custCategory: map[pairKey]*occurrences{},
		text:         map[string]textStats{},
	}
}

// Aggregator owns the historical aggregates for the loaded corpus.
// Fit replaces the whole state at once; reads never observe a partial build.
type Aggregator struct {
	extractor  *entities.Extractor
	windowDays int
	log        zerolog.Logger

	mu   sync.RWMutex
	snap *snapshot
}

// NewAggregator creates an aggregator with no history
func NewAggregator(extractor *entities.Extractor, cal config.HistoryCalibration, log zerolog.Logger) *Aggregator {
	window := cal.WindowDays
	if window <= 0 {
		window = 30
	}
	return &Aggregator{
		extractor:  extractor,
		windowDays: window,
		log:        log.With().Str("component", "history").Logger(),
		snap:       emptySnapshot(),
	}
}

// Fit rebuilds every aggregate from the corpus in one pass
func (a *Aggregator) Fit(lots []domain.Lot) {
	start := time.Now()
	snap := emptySnapshot()
	snap.lots = len(lots)

	prices := map[string][]float64{}
	lengths := map[string][]float64{}
	undated := 0

	for _, lot := range lots {
		cat := lot.CategoryCode

		if p := lot.EffectiveUnitPrice(); cat != "" && p > 0 {
			prices[cat] = append(prices[cat], p)
		}

		if text := textclean.Clean(lot.RawDescription()); cat != "" && text != "" {
			lengths[cat] = append(lengths[cat], float64(utf8.RuneCountInString(text)))
		}

		at, dated := lot.PublishedAt()
		if !dated {
			undated++
		}
		if lot.CustomerBIN != "" && lot.WinnerBIN != "" {
			addOccurrence(snap.pairs, pairKey{lot.CustomerBIN, lot.WinnerBIN}, lot.LotID, at, dated)
		}
		if lot.CustomerBIN != "" && cat != "" {
			addOccurrence(snap.custCategory, pairKey{lot.CustomerBIN, cat}, lot.LotID, at, dated)
		}
	}

	for cat, p := range prices {
		snap.prices[cat] = computePriceStats(p)
	}
	for cat, l := range lengths {
		if len(l) < 2 {
			continue
		}
		mean, std := stat.PopMeanStdDev(l, nil)
		snap.text[cat] = textStats{mean: mean, std: std, samples: len(l)}
	}
	for _, occ := range snap.pairs {
		occ.sort()
	}
	for _, occ := range snap.custCategory {
		occ.sort()
	}

	a.mu.Lock()
	a.snap = snap
	a.mu.Unlock()

	a.log.Info().
		Int("lots", len(lots)).
		Int("categories", len(snap.prices)).
		Int("pairs", len(snap.pairs)).
		Int("undated", undated).
		Dur("duration", time.Since(start)).
		Msg("History aggregates rebuilt")
}

func (a *Aggregator) current() *snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Size returns the number of lots the aggregates were built from
func (a *Aggregator) Size() int {
	return a.current().lots
}

// History returns the corpus context of a lot. The lot's own occurrence
// is never counted.
func (a *Aggregator) History(lot domain.Lot) LotHistory {
	snap := a.current()
	var h LotHistory

	if ps, ok := snap.prices[lot.CategoryCode]; ok {
		h.CategoryMedianPrice = ps.Median
		h.CategoryPriceCount = ps.Count
	}
	if ts, ok := snap.text[lot.CategoryCode]; ok {
		h.TextLengthMean = ts.mean
		h.TextLengthStd = ts.std
		h.TextLengthSamples = ts.samples
	}

	at, dated := lot.PublishedAt()
	h.WindowFallback = !dated

	if lot.CustomerBIN != "" && lot.WinnerBIN != "" {
		if occ := snap.pairs[pairKey{lot.CustomerBIN, lot.WinnerBIN}]; occ != nil {
			h.WinnerWinsSameCustomer = occ.window(lot.LotID, at, dated, a.windowDays)
			h.CustomerWinnerTotal = occ.total(lot.LotID)
		}
	}
	if lot.CustomerBIN != "" && lot.CategoryCode != "" {
		if occ := snap.custCategory[pairKey{lot.CustomerBIN, lot.CategoryCode}]; occ != nil {
			h.SameCustomerCategoryLots = occ.window(lot.LotID, at, dated, a.windowDays)
		}
	}
	return h
}

// Features extracts entities from the lot description and derives the
// model features.
func (a *Aggregator) Features(lot domain.Lot) Features {
	text := textclean.Clean(lot.RawDescription())
	return a.FeaturesFor(lot, text, a.extractor.Extract(text))
}

// FeaturesFor derives features from an already cleaned text and its entities
func (a *Aggregator) FeaturesFor(lot domain.Lot, text string, set entities.EntitySet) Features {
	f := Features{
		LotID:             lot.LotID,
		CategoryCode:      lot.CategoryCode,
		Language:          textclean.DetectLanguage(text),
		TextLength:        utf8.RuneCountInString(text),
		ParticipantsCount: lot.ParticipantsCount,
		DeadlineDays:      lot.DeadlineDays,
		BudgetRatio:       1.0,
	}
	entityFeatures(&f, set)

	h := a.History(lot)
	if price := lot.EffectiveUnitPrice(); h.CategoryMedianPrice > 0 && price > 0 {
		f.BudgetRatio = price / h.CategoryMedianPrice
	}
	f.WinnerRepeatCount = h.WinnerWinsSameCustomer
	f.PairCount = h.CustomerWinnerTotal
	return f
}

// CategoryPriceStats returns the unit-price summary of a category
func (a *Aggregator) CategoryPriceStats(code string) (*PriceStats, bool) {
	ps, ok := a.current().prices[code]
	if !ok {
		return nil, false
	}
	return &ps, true
}

func addOccurrence(m map[pairKey]*occurrences, key pairKey, lotID string, at time.Time, dated bool) {
	occ := m[key]
	if occ == nil {
		occ = &occurrences{}
		m[key] = occ
	}
	occ.all = append(occ.all, lotID)
	if dated {
		occ.dated = append(occ.dated, occurrence{lotID: lotID, day: dayOf(at)})
	}
}

func (o *occurrences) sort() {
	sort.Slice(o.dated, func(i, j int) bool {
		if !o.dated[i].day.Equal(o.dated[j].day) {
			return o.dated[i].day.Before(o.dated[j].day)
		}
		return o.dated[i].lotID < o.dated[j].lotID
	})
}

// total counts every occurrence except self
func (o *occurrences) total(self string) int {
	n := 0
	for _, id := range o.all {
		if id != self {
			n++
		}
	}
	return n
}

// window counts occurrences dated within [day-windowDays, day], inclusive,
// measured in calendar days. Undated occurrences are not counted. Without
// a date of its own the lot falls back to the all-time count.
func (o *occurrences) window(self string, at time.Time, dated bool, windowDays int) int {
	if !dated {
		return o.total(self)
	}
	day := dayOf(at)
	from := day.AddDate(0, 0, -windowDays)

	i := sort.Search(len(o.dated), func(i int) bool { return !o.dated[i].day.Before(from) })
	n := 0
	for ; i < len(o.dated) && !o.dated[i].day.After(day); i++ {
		if o.dated[i].lotID != self {
			n++
		}
	}
	return n
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func computePriceStats(prices []float64) PriceStats {
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	mean, std := stat.PopMeanStdDev(sorted, nil)
	return PriceStats{
		Count:        len(sorted),
		Median:       median(sorted),
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         mean,
		StdDev:       std,
		Percentile25: stat.Quantile(0.25, stat.LinInterp, sorted, nil),
		Percentile75: stat.Quantile(0.75, stat.LinInterp, sorted, nil),
	}
}

// median of a sorted, non-empty slice
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
