package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/database"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/network"
	"github.com/aristath/tenderwatch/internal/modules/rules"
	"github.com/aristath/tenderwatch/internal/modules/scorer"
	"github.com/aristath/tenderwatch/internal/modules/similarity"
	"github.com/aristath/tenderwatch/internal/resultcache"
)

type memorySource struct {
	lots  []domain.Lot
	mtime time.Time
	err   error
}

func (s *memorySource) Name() string { return "memory" }

func (s *memorySource) Load(context.Context) ([]domain.Lot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.lots, nil
}

func (s *memorySource) MTime() (time.Time, error) { return s.mtime, nil }

var goods = []string{
	"бумага офисная формата А4 плотностью 80 г/м2",
	"ручки шариковые с синими чернилами",
	"папки-регистраторы с арочным механизмом",
	"картриджи для лазерного принтера",
	"степлеры и скобы к ним",
	"маркеры текстовыделители разных цветов",
	"калькуляторы настольные двенадцатиразрядные",
}

func macBookLot() domain.Lot {
	return domain.Lot{
		LotID:             "mb",
		NameRu:            "Ноутбук",
		DescRu:            "Ноутбук Apple MacBook Pro 14 с чипом M3 Pro. Дисплей Liquid Retina XDR.",
		ExtraDescRu:       "Аналоги не допускаются.",
		CategoryCode:      "26.20",
		CategoryName:      "Компьютеры",
		Budget:            1_500_000,
		Quantity:          1,
		ParticipantsCount: 1,
		DeadlineDays:      2,
		PublishDate:       "2024-03-10",
		CustomerBIN:       "900000000001",
		WinnerBIN:         "800000000001",
	}
}

// testCorpus is 49 ordinary office-supply lots plus the MacBook lot
func testCorpus() []domain.Lot {
	lots := make([]domain.Lot, 0, 50)
	for i := 0; i < 49; i++ {
		item := goods[i%len(goods)]
		lots = append(lots, domain.Lot{
			LotID:             fmt.Sprintf("L%02d", i),
			NameRu:            "Канцелярские товары",
			DescRu:            fmt.Sprintf("Поставка: %s. Партия номер %d, доставка на склад заказчика в течение %d дней.", item, i, 10+i%5),
			CategoryCode:      fmt.Sprintf("17.%d", i%3),
			CategoryName:      fmt.Sprintf("Канцтовары %d", i%3),
			Budget:            float64(100_000 + 1_000*i),
			Quantity:          10,
			ParticipantsCount: 3 + i%4,
			DeadlineDays:      15 + i%10,
			PublishDate:       fmt.Sprintf("2024-0%d-%02d", 1+i%3, 1+i%28),
			CustomerBIN:       fmt.Sprintf("9000000000%02d", 10+i%6),
			WinnerBIN:         fmt.Sprintf("8000000000%02d", 10+i%9),
		})
	}
	return append(lots, macBookLot())
}

func newTestAnalyzer(t *testing.T, lots []domain.Lot, cache *resultcache.Repository) *Analyzer {
	t.Helper()
	deps := NewDeps(&memorySource{lots: lots, mtime: time.Unix(1_700_000_000, 0)}, config.DefaultCalibration(), nil, true, zerolog.Nop())
	deps.Cache = cache
	a := New(deps, zerolog.Nop())
	require.NoError(t, a.Initialize(context.Background()))
	return a
}

func newTestCache(t *testing.T) *resultcache.Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "analysis.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return resultcache.NewRepository(db.Conn())
}

func TestFusion_Arithmetic(t *testing.T) {
	f := NewFusion(config.DefaultCalibration())
	pred := scorer.Prediction{Available: true, ClassifierProbability: 0.5, IsAnomaly: true}
	sim := similarity.Result{MaxSimilarity: 0.97, IsCopyPaste: true}
	net := network.Result{Flags: []string{"a", "b"}}

	// 50*0.7 + (40+20)*0.2 + 80*0.05 + 50*0.05
	score, level, explanation := f.Combine(50, pred, sim, net)
	assert.Equal(t, 53.5, score)
	assert.Equal(t, domain.RiskHigh, level)
	require.Len(t, explanation, 6)
	assert.Equal(t, "Правила: 50/100 (вклад 35.0)", explanation[0])
	assert.Equal(t, "ML модель: 60/100 (классификатор 50.0%, аномалия да, вклад 12.0)", explanation[1])
	assert.Equal(t, "Copy-Paste: обнаружено совпадение ТЗ на 97% (вклад 4.0)", explanation[2])
	assert.Equal(t, "Сеть: a (вклад 1.2)", explanation[3])
	assert.Equal(t, "Сеть: b (вклад 1.2)", explanation[4])
	assert.Equal(t, "Сеть: 2 признаков (вклад 2.5)", explanation[5])
}

func TestFusion_ModelUnavailable(t *testing.T) {
	f := NewFusion(config.DefaultCalibration())

	score, level, explanation := f.Combine(40, scorer.Unavailable(), similarity.Result{IsUnique: true}, network.Result{})
	assert.Equal(t, 30.0, score) // 28 + 40*0.05
	assert.Equal(t, domain.RiskMedium, level)
	require.Len(t, explanation, 3)
	assert.Contains(t, explanation[1], "не обучена")
	assert.Equal(t, "Уникальное ТЗ: нет аналогов в базе (вклад 2.0)", explanation[2])
}

func TestFusion_GraphSignalCapped(t *testing.T) {
	f := NewFusion(config.DefaultCalibration())
	flags := []string{"a", "b", "c", "d", "e", "f"}

	score, _, explanation := f.Combine(0, scorer.Unavailable(), similarity.Result{}, network.Result{Flags: flags})
	assert.Equal(t, 5.0, score)
	// rules, model, three quoted flags, the graph total
	require.Len(t, explanation, 6)
	// six flags share the capped 5.0
	assert.Equal(t, "Сеть: a (вклад 0.8)", explanation[2])
	for _, line := range explanation {
		assert.Contains(t, line, "(вклад ", line)
	}
}

func TestInitialize_CorpusErrorIsConfigError(t *testing.T) {
	deps := NewDeps(&memorySource{err: assert.AnError}, config.DefaultCalibration(), nil, true, zerolog.Nop())
	a := New(deps, zerolog.Nop())

	err := a.Initialize(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = a.AnalyzeLot(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAnalyzeLot_MacBookScenario(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus(), nil)

	fa, err := a.AnalyzeLot(context.Background(), "mb")
	require.NoError(t, err)

	var r01 *rules.RuleMatch
	for i := range fa.RuleAnalysis.Triggered {
		if fa.RuleAnalysis.Triggered[i].RuleID == "R01" {
			r01 = &fa.RuleAnalysis.Triggered[i]
		}
	}
	require.NotNil(t, r01)
	assert.Equal(t, rules.SeverityCritical, r01.Severity)
	assert.Contains(t, []domain.RiskLevel{domain.RiskHigh, domain.RiskCritical}, fa.FinalLevel)
	assert.GreaterOrEqual(t, fa.FinalScore, 70.0)
	assert.LessOrEqual(t, fa.FinalScore, 100.0)
	assert.True(t, strings.HasPrefix(fa.Explanation[0], "Правила: 100/100"))
	assert.Equal(t, "mb", fa.Lot.ID)
	assert.Len(t, fa.Features, 21)
}

func TestAnalyzeLot_UnknownID(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus(), nil)

	_, err := a.AnalyzeLot(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrLotNotFound)
}

func TestAnalyzeAll_IdempotentAndBounded(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus(), nil)

	first, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)
	second, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, first.Total)
	assert.Equal(t, 50, first.Analyzed)
	assert.Zero(t, first.Failed)
	assert.NotEqual(t, first.RunID, second.RunID)

	a1, err := json.Marshal(first.Results)
	require.NoError(t, err)
	a2, err := json.Marshal(second.Results)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a1, a2), "rerun must produce identical results")

	levels := config.DefaultCalibration().Levels
	total := 0
	for i, fa := range first.Results {
		assert.Equal(t, a.LotIDs()[i], fa.Lot.ID, "corpus order")
		assert.GreaterOrEqual(t, fa.FinalScore, 0.0)
		assert.LessOrEqual(t, fa.FinalScore, 100.0)
		assert.Equal(t, levels.Level(fa.FinalScore), fa.FinalLevel)
	}
	for _, n := range first.ByLevel {
		total += n
	}
	assert.Equal(t, 50, total)
}

func TestAnalyzeText_NotRecorded(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus(), nil)

	fa, err := a.AnalyzeText(context.Background(), "Ноутбук Apple MacBook Pro M3. Аналоги не допускаются.", TextMeta{
		CategoryCode:      "26.20",
		Budget:            900_000,
		ParticipantsCount: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ManualLotID, fa.Lot.ID)
	assert.True(t, fa.RuleAnalysis.Has("R01"))
	assert.Equal(t, 0, a.DashboardStats().Analyzed)
}

func TestDashboardStats(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus(), nil)
	_, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	d := a.DashboardStats()
	assert.Equal(t, 50, d.TotalLots)
	assert.Equal(t, 50, d.Analyzed)
	require.Len(t, d.TopRisks, 10)
	assert.Equal(t, "mb", d.TopRisks[0].LotID)
	for i := 1; i < len(d.TopRisks); i++ {
		prev, cur := d.TopRisks[i-1], d.TopRisks[i]
		assert.True(t, prev.FinalScore > cur.FinalScore ||
			(prev.FinalScore == cur.FinalScore && prev.LotID < cur.LotID))
	}

	computers := d.ByCategory["Компьютеры"]
	assert.Equal(t, 1, computers.Count)
	assert.Equal(t, 1, computers.HighRisk)

	var budget float64
	for _, l := range testCorpus() {
		budget += l.Budget
	}
	assert.InDelta(t, budget, d.TotalBudget, 1e-6)
	assert.Len(t, d.ByLevel, 4)
}

func TestAnalyzeLot_CacheSurvivesRestart(t *testing.T) {
	cache := newTestCache(t)
	a := newTestAnalyzer(t, testCorpus(), cache)

	fa, err := a.AnalyzeLot(context.Background(), "mb")
	require.NoError(t, err)

	restarted := newTestAnalyzer(t, testCorpus(), cache)
	assert.Equal(t, 1, restarted.DashboardStats().Analyzed)

	cached, err := restarted.AnalyzeLot(context.Background(), "mb")
	require.NoError(t, err)
	assert.Equal(t, fa.FinalScore, cached.FinalScore)
	assert.Equal(t, fa.Explanation, cached.Explanation)
}

func TestRefreshIfChanged(t *testing.T) {
	src := &memorySource{lots: testCorpus(), mtime: time.Unix(100, 0)}
	a := New(NewDeps(src, config.DefaultCalibration(), nil, false, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, a.Initialize(context.Background()))

	changed, err := a.RefreshIfChanged(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	src.lots = src.lots[:10]
	src.mtime = time.Unix(200, 0)
	changed, err = a.RefreshIfChanged(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, a.LotIDs(), 10)
}

func TestTrainAndExport(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus(), nil)

	b, err := a.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, b.Samples)
	assert.Equal(t, scorer.LabelSourcePseudo, b.LabelSource)

	var buf bytes.Buffer
	require.NoError(t, a.ExportTrainingSet(context.Background(), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 51)
	assert.True(t, strings.HasPrefix(lines[0], "lot_id,has_brand,"))
}

// gatedSource blocks Load until release is closed
type gatedSource struct {
	memorySource
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSource) Load(ctx context.Context) ([]domain.Lot, error) {
	close(s.entered)
	<-s.release
	return s.memorySource.Load(ctx)
}

func TestTrain_WaitsForInitialize(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus()[:20], nil)

	gate := &gatedSource{
		memorySource: memorySource{lots: testCorpus(), mtime: time.Unix(1_800_000_000, 0)},
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	a.deps.Source = gate

	initDone := make(chan error, 1)
	go func() { initDone <- a.Initialize(context.Background()) }()
	<-gate.entered

	type trained struct {
		b   *scorer.ModelBundle
		err error
	}
	trainDone := make(chan trained, 1)
	go func() {
		b, err := a.Train(context.Background())
		trainDone <- trained{b, err}
	}()

	select {
	case <-trainDone:
		t.Fatal("Train ran while the corpus was being rebuilt")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate.release)
	require.NoError(t, <-initDone)
	res := <-trainDone
	require.NoError(t, res.err)
	assert.Equal(t, 50, res.b.Samples, "trained on the rebuilt corpus")
}

func TestTrain_SmallCorpusDisablesModel(t *testing.T) {
	a := newTestAnalyzer(t, testCorpus()[:5], nil)

	_, err := a.Train(context.Background())
	assert.ErrorIs(t, err, scorer.ErrInsufficientData)

	fa, err := a.AnalyzeLot(context.Background(), "L00")
	require.NoError(t, err)
	assert.False(t, fa.MLPrediction.Available)
}
