// Package analyzer runs the full scoring pipeline over a corpus: history
// aggregates, rules, similarity, the learned scorer and the relationship
// graph, fused into one explainable score per lot.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/corpus"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/entities"
	"github.com/aristath/tenderwatch/internal/modules/history"
	"github.com/aristath/tenderwatch/internal/modules/network"
	"github.com/aristath/tenderwatch/internal/modules/rules"
	"github.com/aristath/tenderwatch/internal/modules/scorer"
	"github.com/aristath/tenderwatch/internal/modules/similarity"
	"github.com/aristath/tenderwatch/internal/resultcache"
)

// topRisks is the length of the dashboard's top list
const topRisks = 10

// Deps are the pipeline components. Network, Store, Cache and Metrics are optional.
type Deps struct {
	Source      corpus.Source
	History     *history.Aggregator
	Rules       *rules.Engine
	Network     network.Analyzer
	Index       *similarity.Index
	Scorer      *scorer.Scorer
	Store       scorer.ModelStore
	Cache       *resultcache.Repository
	Metrics     Metrics
	Calibration config.Calibration
	LabelsPath  string
	ForceTrain  bool
}

// NewDeps builds the in-process components from calibration. A nil embedder
// selects TF-IDF; a disabled graph uses the no-op analyzer.
func NewDeps(source corpus.Source, cal config.Calibration, embedder similarity.Embedder, graphEnabled bool, log zerolog.Logger) Deps {
	extractor := entities.NewExtractor()
	var graph network.Analyzer = network.NoopAnalyzer{}
	if graphEnabled {
		graph = network.NewGraphAnalyzer(cal.Graph, log)
	}
	return Deps{
		Source:      source,
		History:     history.NewAggregator(extractor, cal.History, log),
		Rules:       rules.NewEngine(extractor, cal),
		Network:     graph,
		Index:       similarity.NewIndex(embedder, cal.Similarity, log),
		Scorer:      scorer.New(history.FeatureNames, cal.Scorer, log),
		Calibration: cal,
	}
}

// corpusState is replaced wholesale on Initialize
type corpusState struct {
	lots  []domain.Lot
	byID  map[string]int
	mtime time.Time
}

// Analyzer orchestrates the pipeline
type Analyzer struct {
	deps   Deps
	fusion Fusion
	log    zerolog.Logger

	// buildMu serializes Initialize, Train and ExportTrainingSet so training
	// never sees history, graph and index from different corpora
	buildMu sync.Mutex

	stateMu sync.RWMutex
	state   *corpusState

	resultsMu sync.RWMutex
	results   map[string]*FullAnalysis
}

// New creates an analyzer. Call Initialize before analyzing.
func New(deps Deps, log zerolog.Logger) *Analyzer {
	if deps.Network == nil {
		deps.Network = network.NoopAnalyzer{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NoopMetrics{}
	}
	return &Analyzer{
		deps:    deps,
		fusion:  NewFusion(deps.Calibration),
		log:     log.With().Str("component", "analyzer").Logger(),
		results: make(map[string]*FullAnalysis),
	}
}

// Initialize loads the corpus, rebuilds every aggregate concurrently and
// loads or trains the scorer.
func (a *Analyzer) Initialize(ctx context.Context) error {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()

	start := time.Now()
	lots, err := a.deps.Source.Load(ctx)
	if err != nil {
		return &ConfigError{Op: "load corpus", Err: err}
	}
	mtime, err := a.deps.Source.MTime()
	if err != nil {
		return &ConfigError{Op: "stat corpus", Err: err}
	}

	byID := make(map[string]int, len(lots))
	for i, l := range lots {
		if _, dup := byID[l.LotID]; !dup {
			byID[l.LotID] = i
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.deps.History.Fit(lots)
		return nil
	})
	g.Go(func() error {
		a.deps.Network.Build(lots)
		return nil
	})
	g.Go(func() error {
		return a.deps.Index.Build(gctx, lots)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to build aggregates: %w", err)
	}

	a.stateMu.Lock()
	a.state = &corpusState{lots: lots, byID: byID, mtime: mtime}
	a.stateMu.Unlock()

	a.resultsMu.Lock()
	a.results = make(map[string]*FullAnalysis)
	a.resultsMu.Unlock()

	if err := a.prepareScorer(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Scorer unavailable, continuing without ML")
	}
	a.warmFromCache(ctx)

	a.log.Info().
		Str("source", a.deps.Source.Name()).
		Int("lots", len(lots)).
		Int("indexed", a.deps.Index.Size()).
		Str("embedder", a.deps.Index.EmbedderName()).
		Bool("ml", a.deps.Scorer.Available()).
		Dur("duration", time.Since(start)).
		Msg("Analyzer initialized")
	return nil
}

// RefreshIfChanged reinitializes when the corpus mtime moved
func (a *Analyzer) RefreshIfChanged(ctx context.Context) (bool, error) {
	mtime, err := a.deps.Source.MTime()
	if err != nil {
		return false, &ConfigError{Op: "stat corpus", Err: err}
	}
	if st := a.current(); st != nil && !mtime.After(st.mtime) {
		return false, nil
	}
	return true, a.Initialize(ctx)
}

func (a *Analyzer) current() *corpusState {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

func (a *Analyzer) prepareScorer(ctx context.Context) error {
	st := a.current()
	var stored *scorer.ModelBundle
	if a.deps.Store != nil {
		b, err := a.deps.Store.Load(ctx)
		switch {
		case err == nil:
			stored = b
		case errors.Is(err, scorer.ErrModelNotFound):
			a.log.Info().Str("location", a.deps.Store.Location()).Msg("No stored model")
		default:
			a.log.Warn().Err(err).Str("location", a.deps.Store.Location()).Msg("Failed to load stored model")
		}
	}

	if !scorer.NeedsRetrain(stored, len(st.lots), a.deps.Calibration.Scorer.RealDataThreshold, a.deps.ForceTrain) {
		err := a.deps.Scorer.Load(stored)
		if err == nil {
			return nil
		}
		a.log.Warn().Err(err).Msg("Stored model does not match the feature layout, retraining")
	}

	if _, err := a.train(ctx); err != nil {
		if errors.Is(err, scorer.ErrInsufficientData) {
			a.log.Info().Msg("Not enough lots to train, ML signal disabled")
			return nil
		}
		return err
	}
	return nil
}

// warmFromCache loads fresh cached analyses so the dashboard survives restarts
func (a *Analyzer) warmFromCache(ctx context.Context) {
	st := a.current()
	if a.deps.Cache == nil || st == nil {
		return
	}
	ids, err := a.deps.Cache.FreshIDs(ctx, st.mtime)
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to list cached analyses")
		return
	}

	loaded := 0
	for id := range ids {
		if _, ok := st.byID[id]; !ok {
			continue
		}
		fa, err := a.cached(ctx, id, st.mtime)
		if err != nil || fa == nil {
			continue
		}
		a.record(fa)
		loaded++
	}
	if loaded > 0 {
		a.log.Info().Int("loaded", loaded).Msg("Restored cached analyses")
	}
}

func (a *Analyzer) cached(ctx context.Context, id string, mtime time.Time) (*FullAnalysis, error) {
	if a.deps.Cache == nil {
		return nil, nil
	}
	data, err := a.deps.Cache.GetIfFresh(ctx, id, mtime)
	if err != nil || data == nil {
		return nil, err
	}
	var fa FullAnalysis
	if err := json.Unmarshal(data, &fa); err != nil {
		return nil, fmt.Errorf("failed to decode cached analysis %s: %w", id, err)
	}
	return &fa, nil
}

func (a *Analyzer) record(fa *FullAnalysis) {
	a.resultsMu.Lock()
	a.results[fa.Lot.ID] = fa
	a.resultsMu.Unlock()
}

func (a *Analyzer) isRecorded(id string) bool {
	a.resultsMu.RLock()
	defer a.resultsMu.RUnlock()
	_, ok := a.results[id]
	return ok
}

// evaluation is the signal stage shared by analysis and training
type evaluation struct {
	features history.Features
	sim      similarity.Result
	rules    rules.AnalysisResult
}

func (a *Analyzer) evaluate(ctx context.Context, lot domain.Lot) (evaluation, error) {
	features := a.deps.History.Features(lot)
	sim, err := a.deps.Index.FindSimilar(ctx, lot, a.deps.Calibration.Similarity.TopK)
	if err != nil {
		return evaluation{}, fmt.Errorf("similarity search failed: %w", err)
	}
	features = features.WithSimilarity(sim.MaxSimilarity, sim.IsCopyPaste, sim.IsUnique)
	res := a.deps.Rules.Analyze(lot, features, a.deps.History.History(lot))
	return evaluation{features: features, sim: sim, rules: res}, nil
}

// analyze runs the pipeline on one lot. A panic in any stage is returned
// as an error so one bad lot never aborts a batch.
func (a *Analyzer) analyze(ctx context.Context, lot domain.Lot) (fa *FullAnalysis, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			fa, err = nil, fmt.Errorf("analysis of lot %s panicked: %v", lot.LotID, r)
		}
		if err != nil {
			a.deps.Metrics.AnalysisFailed()
			return
		}
		a.deps.Metrics.ObserveAnalysis(fa.FinalLevel, time.Since(start))
	}()

	ev, err := a.evaluate(ctx, lot)
	if err != nil {
		return nil, err
	}
	pred := a.deps.Scorer.Predict(ev.features.Vector())

	bin := lot.CustomerBIN
	if bin == "" {
		bin = lot.WinnerBIN
	}
	net := network.Result{BIN: bin, Connections: []network.Node{}, Edges: []network.Edge{}, Flags: []string{}, CommunityMembers: []string{}}
	if bin != "" {
		net = a.deps.Network.AnalyzeBIN(bin)
	}

	score, level, explanation := a.fusion.Combine(ev.rules.RiskScore, pred, ev.sim, net)
	return &FullAnalysis{
		Lot:          lotInfo(lot),
		RuleAnalysis: ev.rules,
		Features:     ev.features.Map(),
		Similarity:   ev.sim,
		MLPrediction: pred,
		Network:      net,
		FinalScore:   score,
		FinalLevel:   level,
		Explanation:  explanation,
	}, nil
}

// Lot returns a corpus lot by id
func (a *Analyzer) Lot(id string) (domain.Lot, error) {
	st := a.current()
	if st == nil {
		return domain.Lot{}, ErrNotInitialized
	}
	i, ok := st.byID[id]
	if !ok {
		return domain.Lot{}, fmt.Errorf("%w: %s", ErrLotNotFound, id)
	}
	return st.lots[i], nil
}

// LotIDs returns the corpus ids in corpus order
func (a *Analyzer) LotIDs() []string {
	st := a.current()
	if st == nil {
		return nil
	}
	ids := make([]string, len(st.lots))
	for i, l := range st.lots {
		ids[i] = l.LotID
	}
	return ids
}

// AnalyzeLot returns the cached analysis when fresh, otherwise computes,
// records and caches it.
func (a *Analyzer) AnalyzeLot(ctx context.Context, id string) (*FullAnalysis, error) {
	lot, err := a.Lot(id)
	if err != nil {
		return nil, err
	}
	st := a.current()

	if fa, err := a.cached(ctx, id, st.mtime); err != nil {
		a.log.Warn().Err(err).Str("lot_id", id).Msg("Ignoring unreadable cache row")
	} else if fa != nil {
		a.record(fa)
		return fa, nil
	}

	fa, err := a.analyze(ctx, lot)
	if err != nil {
		return nil, err
	}
	a.record(fa)
	if a.deps.Cache != nil {
		if err := a.deps.Cache.Store(ctx, id, fa, fa.FinalScore, string(fa.FinalLevel), st.mtime); err != nil {
			a.log.Warn().Err(err).Str("lot_id", id).Msg("Failed to cache analysis")
		}
	}
	return fa, nil
}

// AnalyzeText analyzes a free-text specification. The result is never cached.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string, meta TextMeta) (*FullAnalysis, error) {
	if a.current() == nil {
		return nil, ErrNotInitialized
	}
	lot := domain.Lot{
		LotID:             domain.ManualLotID,
		NameRu:            "Ручной анализ",
		DescRu:            text,
		CategoryCode:      meta.CategoryCode,
		Budget:            meta.Budget,
		ParticipantsCount: meta.ParticipantsCount,
		DeadlineDays:      meta.DeadlineDays,
		CustomerBIN:       meta.CustomerBIN,
		WinnerBIN:         meta.WinnerBIN,
		TradeMethod:       meta.TradeMethod,
	}
	return a.analyze(ctx, lot)
}

// AnalyzeAll analyzes every lot in corpus order. Failures are logged and
// counted; the run continues.
func (a *Analyzer) AnalyzeAll(ctx context.Context) (Report, error) {
	st := a.current()
	if st == nil {
		return Report{}, ErrNotInitialized
	}

	report := Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Total:     len(st.lots),
		FailedIDs: []string{},
		ByLevel:   emptyLevels(),
		Results:   make([]*FullAnalysis, 0, len(st.lots)),
	}
	if a.deps.Cache != nil {
		if err := a.deps.Cache.StartRun(ctx, report.RunID); err != nil {
			a.log.Warn().Err(err).Msg("Failed to record analysis run")
		}
	}

	entries := make([]resultcache.Entry, 0, len(st.lots))
	for _, lot := range st.lots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fa, err := a.analyze(ctx, lot)
		if err != nil {
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, lot.LotID)
			a.log.Error().Err(err).Str("lot_id", lot.LotID).Msg("Lot analysis failed")
			continue
		}
		a.record(fa)
		report.Analyzed++
		report.ByLevel[fa.FinalLevel]++
		report.Results = append(report.Results, fa)
		if entry, err := cacheEntry(fa, st.mtime); err == nil {
			entries = append(entries, entry)
		}
	}
	report.Duration = time.Since(report.StartedAt)

	if a.deps.Cache != nil {
		if err := a.deps.Cache.StoreBatch(ctx, entries); err != nil {
			a.log.Warn().Err(err).Msg("Failed to persist analyses")
		}
		if err := a.deps.Cache.FinishRun(ctx, report.RunID, report.Analyzed, report.Failed); err != nil {
			a.log.Warn().Err(err).Msg("Failed to finish analysis run")
		}
	}

	a.log.Info().
		Str("run_id", report.RunID).
		Int("analyzed", report.Analyzed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Corpus analyzed")
	return report, nil
}

func cacheEntry(fa *FullAnalysis, mtime time.Time) (resultcache.Entry, error) {
	data, err := json.Marshal(fa)
	if err != nil {
		return resultcache.Entry{}, err
	}
	return resultcache.Entry{
		LotID:       fa.Lot.ID,
		Data:        data,
		FinalScore:  fa.FinalScore,
		FinalLevel:  string(fa.FinalLevel),
		CorpusMTime: mtime,
		AnalyzedAt:  time.Now(),
	}, nil
}

// DashboardStats aggregates every analyzed lot
func (a *Analyzer) DashboardStats() Dashboard {
	d := Dashboard{
		ByLevel:    emptyLevels(),
		ByCategory: make(map[string]CategoryStats),
		TopRisks:   []RiskEntry{},
	}
	if st := a.current(); st != nil {
		d.TotalLots = len(st.lots)
	}

	a.resultsMu.RLock()
	results := make([]*FullAnalysis, 0, len(a.results))
	for _, fa := range a.results {
		results = append(results, fa)
	}
	a.resultsMu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Lot.ID < results[j].Lot.ID
	})

	d.Analyzed = len(results)
	var total float64
	sums := make(map[string]float64)
	for _, fa := range results {
		d.ByLevel[fa.FinalLevel]++
		d.TotalBudget += fa.Lot.Budget
		total += fa.FinalScore

		cat := fa.Lot.CategoryName
		if cat == "" {
			cat = "Другое"
		}
		cs := d.ByCategory[cat]
		cs.Count++
		if fa.FinalLevel.IsHighRisk() {
			cs.HighRisk++
		}
		d.ByCategory[cat] = cs
		sums[cat] += fa.FinalScore
	}
	for cat, cs := range d.ByCategory {
		cs.AvgScore = domain.Round1(sums[cat] / float64(cs.Count))
		d.ByCategory[cat] = cs
	}
	if len(results) > 0 {
		d.AvgScore = domain.Round1(total / float64(len(results)))
	}

	for i, fa := range results {
		if i == topRisks {
			break
		}
		d.TopRisks = append(d.TopRisks, RiskEntry{
			LotID:        fa.Lot.ID,
			Name:         fa.Lot.Name,
			CategoryName: fa.Lot.CategoryName,
			Budget:       fa.Lot.Budget,
			FinalScore:   fa.FinalScore,
			FinalLevel:   fa.FinalLevel,
			Codes:        fa.RuleAnalysis.Codes,
		})
	}
	return d
}

// NetworkAnalysis returns the relationship-graph view of a BIN
func (a *Analyzer) NetworkAnalysis(bin string) network.Result {
	return a.deps.Network.AnalyzeBIN(bin)
}

// NetworkStats returns whole-graph statistics
func (a *Analyzer) NetworkStats() network.Stats {
	return a.deps.Network.Stats()
}

// CategoryPriceStats returns the unit-price summary of a category
func (a *Analyzer) CategoryPriceStats(code string) (*history.PriceStats, bool) {
	return a.deps.History.CategoryPriceStats(code)
}

// samples evaluates every lot for training
func (a *Analyzer) samples(ctx context.Context) ([]scorer.Sample, error) {
	st := a.current()
	if st == nil {
		return nil, ErrNotInitialized
	}
	out := make([]scorer.Sample, 0, len(st.lots))
	for _, lot := range st.lots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := a.evaluate(ctx, lot)
		if err != nil {
			a.log.Warn().Err(err).Str("lot_id", lot.LotID).Msg("Skipping lot in training set")
			continue
		}
		out = append(out, scorer.Sample{LotID: lot.LotID, Features: ev.features.Vector(), RuleScore: ev.rules.RiskScore})
	}
	return out, nil
}

func (a *Analyzer) labels() map[string]int {
	labels, err := scorer.LoadLabels(a.deps.LabelsPath, a.log)
	if err != nil {
		a.log.Warn().Err(err).Str("path", a.deps.LabelsPath).Msg("Failed to read labels, using pseudo-labels")
		return map[string]int{}
	}
	return labels
}

// Train fits the scorer on the current corpus and saves the bundle. It waits
// for a running Initialize to finish.
func (a *Analyzer) Train(ctx context.Context) (*scorer.ModelBundle, error) {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()
	return a.train(ctx)
}

func (a *Analyzer) train(ctx context.Context) (*scorer.ModelBundle, error) {
	samples, err := a.samples(ctx)
	if err != nil {
		return nil, err
	}
	b, err := a.deps.Scorer.Fit(samples, a.labels())
	if err != nil {
		return nil, err
	}
	a.deps.Metrics.TrainingRun(b.LabelSource)

	if a.deps.Store != nil {
		if err := a.deps.Store.Save(ctx, b); err != nil {
			a.log.Warn().Err(err).Str("location", a.deps.Store.Location()).Msg("Failed to save model")
		} else {
			a.log.Info().Str("location", a.deps.Store.Location()).Str("run_id", b.RunID).Msg("Model saved")
		}
	}
	return b, nil
}

// ExportTrainingSet writes the training CSV for the current corpus
func (a *Analyzer) ExportTrainingSet(ctx context.Context, w io.Writer) error {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()

	samples, err := a.samples(ctx)
	if err != nil {
		return err
	}
	return a.deps.Scorer.WriteTrainingSet(w, samples, a.labels())
}
