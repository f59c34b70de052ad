package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/entities"
	"github.com/aristath/tenderwatch/internal/modules/history"
)

func newTestEngine() *Engine {
	return NewEngine(entities.NewExtractor(), config.DefaultCalibration())
}

func analyze(e *Engine, lot domain.Lot, hist history.LotHistory) AnalysisResult {
	return e.Analyze(lot, history.Features{LotID: lot.LotID, BudgetRatio: 1}, hist)
}

func TestAnalyze_NoFindings(t *testing.T) {
	e := newTestEngine()
	res := analyze(e, domain.Lot{LotID: "1", DescRu: "Поставка офисной бумаги формата А4", ParticipantsCount: 5, DeadlineDays: 10}, history.LotHistory{})

	assert.Empty(t, res.Triggered)
	assert.Equal(t, 0.0, res.RiskScore)
	assert.Equal(t, domain.RiskLow, res.RiskLevel)
	assert.Equal(t, e.RuleCount(), res.RulesChecked)
	assert.Len(t, res.Passed, e.RuleCount())
	assert.Equal(t, noFindingsRu, res.SummaryRu)
	assert.Equal(t, noFindingsKz, res.SummaryKz)
	assert.Empty(t, res.Codes)
}

func TestAnalyze_Deterministic(t *testing.T) {
	e := newTestEngine()
	lot := domain.Lot{
		LotID:             "42",
		DescRu:            "Ноутбук Apple MacBook Pro с чипом M3. Официальный дилер. Склад в г. Астана.",
		ExtraDescRu:       "Аналоги не допускаются. Вес ровно 1,55 кг, толщина именно 15,5 мм.",
		ParticipantsCount: 1,
		DeadlineDays:      3,
	}
	hist := history.LotHistory{WinnerWinsSameCustomer: 6, CategoryMedianPrice: 100}

	first := analyze(e, lot, hist)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, analyze(e, lot, hist))
	}
}

func TestAnalyze_BanDeadlineSingleBidder(t *testing.T) {
	e := newTestEngine()

	t.Run("rules co-trigger", func(t *testing.T) {
		res := analyze(e, domain.Lot{
			LotID:             "1",
			DescRu:            "Поставка бумаги. Аналоги не допускаются.",
			ParticipantsCount: 1,
			DeadlineDays:      2,
		}, history.LotHistory{})

		for _, id := range []string{"R05", "R08", "R09"} {
			assert.True(t, res.Has(id), id)
		}
		// 40 + 20 + 13 = 73 weighted points, below the boost threshold
		assert.InDelta(t, 40.6, res.RiskScore, 1e-9)
	})

	t.Run("with the banned brand the lot is high risk", func(t *testing.T) {
		res := analyze(e, domain.Lot{
			LotID:             "2",
			DescRu:            "Картридж HP. Аналоги не допускаются.",
			ParticipantsCount: 1,
			DeadlineDays:      2,
		}, history.LotHistory{})

		for _, id := range []string{"R01", "R05", "R08", "R09"} {
			assert.True(t, res.Has(id), id)
		}
		assert.InDelta(t, 67.9, res.RiskScore, 1e-9)
		assert.Contains(t, []domain.RiskLevel{domain.RiskHigh, domain.RiskCritical}, res.RiskLevel)
	})
}

func TestAnalyze_MacBookScenario(t *testing.T) {
	e := newTestEngine()
	res := analyze(e, domain.Lot{
		LotID:             "mb",
		DescRu:            "Ноутбук Apple MacBook Pro 14 с чипом M3 Pro. Дисплей Liquid Retina XDR.",
		ExtraDescRu:       "Аналоги не допускаются.",
		ParticipantsCount: 1,
		DeadlineDays:      2,
	}, history.LotHistory{})

	r01, ok := res.Match("R01")
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, r01.Severity)
	assert.Equal(t, 0.95, r01.Weight)
	assert.Contains(t, r01.Evidence, "Apple")
	assert.Equal(t, lawProcurement, r01.LawReference)

	r03, ok := res.Match("R03")
	require.True(t, ok)
	assert.Contains(t, r03.Evidence, "M3")

	assert.True(t, res.Has("R15"))
	assert.Equal(t, domain.RiskCritical, res.RiskLevel)
	assert.Equal(t, 100.0, res.RiskScore)
	assert.Contains(t, res.SummaryRu, "заточка")
	assert.Contains(t, res.SummaryRu, "ограничение конкуренции")
	assert.Equal(t, []string{"PP-6", "SS-12", "SS-8"}, res.Codes)

	var brandSpans int
	for i, h := range res.Highlights {
		if i > 0 {
			assert.LessOrEqual(t, res.Highlights[i-1].Start, h.Start)
		}
		if h.Type == "brand" {
			brandSpans++
		}
	}
	assert.Equal(t, 2, brandSpans)
}

func TestAnalyze_BrandWithEquivalent(t *testing.T) {
	e := newTestEngine()
	res := analyze(e, domain.Lot{DescRu: "Ноутбук Dell Latitude или эквивалент"}, history.LotHistory{})
	assert.False(t, res.Has("R01"))
}

func TestRule_Deadline(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		days int
		want Severity
	}{
		{0, ""},
		{1, SeverityCritical},
		{2, SeverityCritical},
		{3, SeverityWarning},
		{4, SeverityWarning},
		{5, ""},
	}
	for _, tt := range tests {
		res := analyze(e, domain.Lot{DeadlineDays: tt.days}, history.LotHistory{})
		m, ok := res.Match("R08")
		if tt.want == "" {
			assert.False(t, ok, "days=%d", tt.days)
			continue
		}
		require.True(t, ok, "days=%d", tt.days)
		assert.Equal(t, tt.want, m.Severity, "days=%d", tt.days)
	}
}

func TestRule_Participants(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		participants int
		want         Severity
	}{
		{0, ""},
		{1, SeverityDanger},
		{2, SeverityInfo},
		{3, ""},
	}
	for _, tt := range tests {
		m, ok := analyze(e, domain.Lot{ParticipantsCount: tt.participants}, history.LotHistory{}).Match("R09")
		if tt.want == "" {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, tt.want, m.Severity)
	}
}

func TestRule_RepeatedWinner(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		wins int
		want Severity
	}{
		{4, ""},
		{5, SeverityWarning},
		{9, SeverityWarning},
		{10, SeverityDanger},
	}
	for _, tt := range tests {
		m, ok := analyze(e, domain.Lot{}, history.LotHistory{WinnerWinsSameCustomer: tt.wins}).Match("R10")
		if tt.want == "" {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, tt.want, m.Severity)
	}
}

func TestRule_PriceOvershoot(t *testing.T) {
	e := newTestEngine()
	hist := history.LotHistory{CategoryMedianPrice: 100}
	tests := []struct {
		price float64
		want  Severity
	}{
		{200, ""},
		{201, SeverityWarning},
		{301, SeverityDanger},
		{501, SeverityCritical},
	}
	for _, tt := range tests {
		m, ok := analyze(e, domain.Lot{UnitPrice: tt.price}, hist).Match("R11")
		if tt.want == "" {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, tt.want, m.Severity)
	}

	// budget / quantity is the fallback unit price
	assert.True(t, analyze(e, domain.Lot{Budget: 6000, Quantity: 10}, hist).Has("R11"))
	assert.False(t, analyze(e, domain.Lot{UnitPrice: 900}, history.LotHistory{}).Has("R11"))
}

func TestRule_NoPriceReduction(t *testing.T) {
	e := newTestEngine()
	assert.True(t, analyze(e, domain.Lot{Budget: 100, ContractSum: 99, ParticipantsCount: 2}, history.LotHistory{}).Has("R12"))
	assert.False(t, analyze(e, domain.Lot{Budget: 100, ContractSum: 99, ParticipantsCount: 3}, history.LotHistory{}).Has("R12"))
	assert.False(t, analyze(e, domain.Lot{Budget: 100, ContractSum: 90, ParticipantsCount: 1}, history.LotHistory{}).Has("R12"))
	assert.True(t, analyze(e, domain.Lot{Budget: 100, ContractSum: 98, ParticipantsCount: 1}, history.LotHistory{}).Has("R12"), "exactly 98% triggers")
	assert.True(t, analyze(e, domain.Lot{Budget: 4_900_000, ContractSum: 4_802_000, ParticipantsCount: 2}, history.LotHistory{}).Has("R12"), "exactly 98% triggers")
	assert.False(t, analyze(e, domain.Lot{Budget: 100, ContractSum: 97.9, ParticipantsCount: 1}, history.LotHistory{}).Has("R12"))
	assert.False(t, analyze(e, domain.Lot{Budget: 100, ParticipantsCount: 1}, history.LotHistory{}).Has("R12"))
}

func TestRule_TextLengthAnomaly(t *testing.T) {
	e := newTestEngine()
	hist := history.LotHistory{TextLengthMean: 100, TextLengthStd: 30, TextLengthSamples: 10}
	run := func(length int) (RuleMatch, bool) {
		res := e.Analyze(domain.Lot{}, history.Features{TextLength: length}, hist)
		return res.Match("R13")
	}

	m, ok := run(200)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, m.Severity)

	m, ok = run(170)
	require.True(t, ok)
	assert.Equal(t, SeverityInfo, m.Severity)

	_, ok = run(150)
	assert.False(t, ok)

	narrow := history.LotHistory{TextLengthMean: 100, TextLengthStd: 10, TextLengthSamples: 10}
	assert.False(t, e.Analyze(domain.Lot{}, history.Features{TextLength: 500}, narrow).Has("R13"))
}

func TestRule_LotSplitting(t *testing.T) {
	e := newTestEngine()
	assert.False(t, analyze(e, domain.Lot{}, history.LotHistory{SameCustomerCategoryLots: 2}).Has("R14"))
	assert.True(t, analyze(e, domain.Lot{}, history.LotHistory{SameCustomerCategoryLots: 3}).Has("R14"))
}

func TestRule_TextPatterns(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		name string
		lot  domain.Lot
		rule string
	}{
		{"catalog numbers", domain.Lot{DescRu: "Картриджи CF259A и CE285A"}, "R02"},
		{"precision", domain.Lot{DescRu: "Вес ровно 2,5 кг и толщина именно 10 мм"}, "R04"},
		{"dealer", domain.Lot{DescRu: "Поставщик должен быть официальным дилером"}, "R06"},
		{"geo", domain.Lot{DescRu: "Наличие сервиса в радиусе 30 км"}, "R07"},
		{"homoglyph", domain.Lot{DescRu: "Н\u006fутбук для офиса"}, "R16"},
		{"luxury", domain.Lot{DescRu: "Автомобиль премиум-класс"}, "R18"},
		{"sole source", domain.Lot{TradeMethod: "Закуп способом из одного источника", Budget: 14_000_000}, "R20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, analyze(e, tt.lot, history.LotHistory{}).Has(tt.rule))
		})
	}

	t.Run("standards are not catalog numbers", func(t *testing.T) {
		assert.False(t, analyze(e, domain.Lot{DescRu: "ISO9001 и IEC6100"}, history.LotHistory{}).Has("R02"))
	})

	t.Run("single precise value is informational", func(t *testing.T) {
		m, ok := analyze(e, domain.Lot{DescRu: "Вес ровно 2,5 кг"}, history.LotHistory{}).Match("R04")
		require.True(t, ok)
		assert.Equal(t, SeverityInfo, m.Severity)
	})

	t.Run("medical dealer requirement is scaled down", func(t *testing.T) {
		m, ok := analyze(e, domain.Lot{CategoryCode: "331010", DescRu: "Официальный дилер производителя"}, history.LotHistory{}).Match("R06")
		require.True(t, ok)
		assert.Equal(t, 0.45, m.Weight)
		assert.Equal(t, SeverityWarning, m.Severity)
	})

	t.Run("homoglyph highlight", func(t *testing.T) {
		res := analyze(e, domain.Lot{DescRu: "Н\u006fутбук для офиса"}, history.LotHistory{})
		require.NotEmpty(t, res.Highlights)
		assert.Equal(t, "homoglyph", res.Highlights[0].Type)
		assert.Equal(t, 0, res.Highlights[0].Start)
		assert.Equal(t, 7, res.Highlights[0].End)
	})

	t.Run("sole source below threshold", func(t *testing.T) {
		lot := domain.Lot{TradeMethod: "Из одного источника", Budget: 13_000_000}
		assert.False(t, analyze(e, lot, history.LotHistory{}).Has("R20"))
	})
}

func TestRule_CategoryMismatch(t *testing.T) {
	e := newTestEngine()
	base := domain.Lot{NameRu: "Ноутбук", CategoryName: "Портативные компьютеры"}

	mismatch := base
	mismatch.DescRu = "Ноутбук Dell с экраном 14 дюймов"
	assert.True(t, analyze(e, mismatch, history.LotHistory{}).Has("R17"))

	match := base
	match.DescRu = "Портативный компьютер с экраном 14 дюймов"
	assert.False(t, analyze(e, match, history.LotHistory{}).Has("R17"))

	noName := mismatch
	noName.NameRu = ""
	assert.False(t, analyze(e, noName, history.LotHistory{}).Has("R17"))
}

func TestRule_GoodsServiceBundling(t *testing.T) {
	e := newTestEngine()
	text := "Поставка оборудования и услуги по монтажу и настройке. " + strings.Repeat("Требования к качеству изделия. ", 15)
	assert.True(t, analyze(e, domain.Lot{DescRu: text}, history.LotHistory{}).Has("R19"))

	short := "Поставка оборудования и услуги по монтажу."
	assert.False(t, analyze(e, domain.Lot{DescRu: short}, history.LotHistory{}).Has("R19"))
}

func TestScore_LevelMatchesRoundedScore(t *testing.T) {
	e := newTestEngine()
	for _, lot := range []domain.Lot{
		{DeadlineDays: 1},
		{DeadlineDays: 1, ParticipantsCount: 1},
		{DescRu: "Аналоги не допускаются", DeadlineDays: 1, ParticipantsCount: 1},
	} {
		res := analyze(e, lot, history.LotHistory{})
		assert.Equal(t, domain.LevelFor(res.RiskScore), res.RiskLevel)
		assert.GreaterOrEqual(t, res.RiskScore, 0.0)
		assert.LessOrEqual(t, res.RiskScore, 100.0)
	}
}

func TestFormatTenge(t *testing.T) {
	assert.Equal(t, "13 800 000", formatTenge(13_800_000))
	assert.Equal(t, "999", formatTenge(999))
	assert.Equal(t, "1 000", formatTenge(1000))
}
