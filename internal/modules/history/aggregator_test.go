package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/entities"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(entities.NewExtractor(), config.DefaultCalibration().History, zerolog.Nop())
}

func pairLot(id, date string) domain.Lot {
	return domain.Lot{
		LotID:        id,
		CategoryCode: "26",
		CustomerBIN:  "111111111111",
		WinnerBIN:    "222222222222",
		PublishDate:  date,
	}
}

func TestHistory_WindowBoundary(t *testing.T) {
	t.Run("30 days apart counts", func(t *testing.T) {
		a := newTestAggregator()
		first := pairLot("A", "2024-01-01")
		second := pairLot("B", "2024-01-31")
		a.Fit([]domain.Lot{first, second})

		h := a.History(second)
		assert.Equal(t, 1, h.WinnerWinsSameCustomer)
		assert.Equal(t, 1, h.SameCustomerCategoryLots)
		assert.False(t, h.WindowFallback)
	})

	t.Run("31 days apart does not count", func(t *testing.T) {
		a := newTestAggregator()
		first := pairLot("A", "2024-01-01")
		second := pairLot("B", "2024-02-01")
		a.Fit([]domain.Lot{first, second})

		h := a.History(second)
		assert.Equal(t, 0, h.WinnerWinsSameCustomer)
		assert.Equal(t, 0, h.SameCustomerCategoryLots)
		assert.Equal(t, 1, h.CustomerWinnerTotal)
	})

	t.Run("later lots are not prior occurrences", func(t *testing.T) {
		a := newTestAggregator()
		first := pairLot("A", "2024-01-01")
		a.Fit([]domain.Lot{first, pairLot("B", "2024-01-10")})
		assert.Equal(t, 0, a.History(first).WinnerWinsSameCustomer)
	})

	t.Run("time of day is ignored", func(t *testing.T) {
		a := newTestAggregator()
		first := pairLot("A", "2024-01-01T23:59:00")
		second := pairLot("B", "2024-01-31T00:01:00")
		a.Fit([]domain.Lot{first, second})
		assert.Equal(t, 1, a.History(second).WinnerWinsSameCustomer)
	})
}

func TestHistory_ExcludesSelf(t *testing.T) {
	a := newTestAggregator()
	lots := []domain.Lot{
		pairLot("A", "2024-03-01"),
		pairLot("B", "2024-03-02"),
		pairLot("C", "2024-03-03"),
	}
	a.Fit(lots)

	h := a.History(lots[2])
	assert.Equal(t, 2, h.WinnerWinsSameCustomer)
	assert.Equal(t, 2, h.CustomerWinnerTotal)
	assert.Equal(t, 2, h.SameCustomerCategoryLots)
}

func TestHistory_UndatedFallsBackToAllTime(t *testing.T) {
	a := newTestAggregator()
	lots := []domain.Lot{
		pairLot("A", "2020-01-01"),
		pairLot("B", "2024-03-02"),
		pairLot("C", "not a date"),
	}
	a.Fit(lots)

	h := a.History(lots[2])
	assert.True(t, h.WindowFallback)
	assert.Equal(t, 2, h.WinnerWinsSameCustomer)

	// undated neighbours never fall inside a dated window
	assert.Equal(t, 0, a.History(lots[1]).WinnerWinsSameCustomer)
}

func TestHistory_WindowCountsManySuppliers(t *testing.T) {
	a := newTestAggregator()
	var lots []domain.Lot
	for i := 0; i < 12; i++ {
		lots = append(lots, pairLot(fmt.Sprintf("L%02d", i), fmt.Sprintf("2024-05-%02d", i+1)))
	}
	a.Fit(lots)
	assert.Equal(t, 11, a.History(lots[11]).WinnerWinsSameCustomer)
	assert.Equal(t, 5, a.History(lots[5]).WinnerWinsSameCustomer)
}

func TestCategoryPriceStats(t *testing.T) {
	a := newTestAggregator()
	a.Fit([]domain.Lot{
		{LotID: "1", CategoryCode: "26", UnitPrice: 10, Budget: 999},
		{LotID: "2", CategoryCode: "26", Budget: 200, Quantity: 10},
		{LotID: "3", CategoryCode: "26", Budget: 30},
		{LotID: "4", CategoryCode: "26", Budget: 40},
		{LotID: "5", CategoryCode: "26"},
		{LotID: "6", CategoryCode: "33", Budget: 5},
	})

	ps, ok := a.CategoryPriceStats("26")
	require.True(t, ok)
	assert.Equal(t, 4, ps.Count)
	assert.InDelta(t, 25.0, ps.Median, 1e-9)
	assert.InDelta(t, 10.0, ps.Min, 1e-9)
	assert.InDelta(t, 40.0, ps.Max, 1e-9)
	assert.InDelta(t, 25.0, ps.Mean, 1e-9)
	assert.InDelta(t, 11.1803, ps.StdDev, 1e-3)
	assert.GreaterOrEqual(t, ps.Percentile25, ps.Min)
	assert.LessOrEqual(t, ps.Percentile25, ps.Median)
	assert.GreaterOrEqual(t, ps.Percentile75, ps.Median)
	assert.LessOrEqual(t, ps.Percentile75, ps.Max)

	single, ok := a.CategoryPriceStats("33")
	require.True(t, ok)
	assert.Equal(t, 1, single.Count)
	assert.InDelta(t, 5.0, single.Median, 1e-9)

	missing, ok := a.CategoryPriceStats("99")
	assert.False(t, ok)
	assert.Nil(t, missing)
}

func TestHistory_TextLengthStats(t *testing.T) {
	a := newTestAggregator()
	a.Fit([]domain.Lot{
		{LotID: "1", CategoryCode: "26", DescRu: "aaaa"},
		{LotID: "2", CategoryCode: "26", DescRu: "aaaaaaaa"},
		{LotID: "3", CategoryCode: "33", DescRu: "только один"},
	})

	h := a.History(domain.Lot{CategoryCode: "26"})
	assert.Equal(t, 2, h.TextLengthSamples)
	assert.InDelta(t, 6.0, h.TextLengthMean, 1e-9)
	assert.InDelta(t, 2.0, h.TextLengthStd, 1e-9)

	// a single sample is not enough for a spread
	assert.Zero(t, a.History(domain.Lot{CategoryCode: "33"}).TextLengthSamples)
}

func TestFeatures(t *testing.T) {
	a := newTestAggregator()
	a.Fit([]domain.Lot{
		{LotID: "1", CategoryCode: "26", UnitPrice: 100},
		{LotID: "2", CategoryCode: "26", UnitPrice: 100},
	})

	lot := domain.Lot{
		LotID:             "X",
		CategoryCode:      "26",
		UnitPrice:         500,
		ParticipantsCount: 1,
		DeadlineDays:      3,
		DescRu:            "Ноутбук Apple MacBook.",
		ExtraDescRu:       "Аналоги не допускаются. Официальный дилер.",
	}
	f := a.Features(lot)

	assert.Equal(t, "X", f.LotID)
	assert.True(t, f.HasBrand)
	assert.Equal(t, 2, f.BrandCount)
	assert.True(t, f.HasExclusivePhrase)
	assert.True(t, f.HasNoAnalogs)
	assert.True(t, f.DealerRequirement)
	assert.InDelta(t, 5.0, f.BudgetRatio, 1e-9)
	assert.Equal(t, 1, f.ParticipantsCount)
	assert.Equal(t, 3, f.DeadlineDays)
	assert.Positive(t, f.TextLength)

	vec := f.Vector()
	require.Len(t, vec, len(FeatureNames))
	assert.Equal(t, 1.0, vec[0])
	assert.Equal(t, 5.0, f.Map()["budget_ratio"])

	unknown := a.Features(domain.Lot{LotID: "Y", CategoryCode: "99", UnitPrice: 10})
	assert.Equal(t, 1.0, unknown.BudgetRatio)
	assert.False(t, unknown.HasBrand)

	withSim := f.WithSimilarity(0.97, true, false)
	assert.Equal(t, 1.0, withSim.Map()["is_copypaste"])
	assert.Zero(t, f.MaxSimilarity)
}

func TestFit_ReplacesState(t *testing.T) {
	a := newTestAggregator()
	a.Fit([]domain.Lot{{LotID: "1", CategoryCode: "26", UnitPrice: 10}})
	_, ok := a.CategoryPriceStats("26")
	require.True(t, ok)

	a.Fit([]domain.Lot{{LotID: "2", CategoryCode: "33", UnitPrice: 10}})
	_, ok = a.CategoryPriceStats("26")
	assert.False(t, ok)
	assert.Equal(t, 1, a.Size())
}

func TestAggregator_ConcurrentReadsDuringFit(t *testing.T) {
	a := newTestAggregator()
	lots := []domain.Lot{pairLot("A", "2024-01-01"), pairLot("B", "2024-01-02")}
	a.Fit(lots)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h := a.History(lots[1])
				assert.Equal(t, 1, h.WinnerWinsSameCustomer)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		a.Fit(lots)
	}
	wg.Wait()
}
