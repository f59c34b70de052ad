package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLot_UnmarshalJSON_Defaults(t *testing.T) {
	var lot Lot
	require.NoError(t, json.Unmarshal([]byte(`{"lot_id": "L-1"}`), &lot))

	assert.Equal(t, "L-1", lot.LotID)
	assert.Equal(t, "", lot.DescRu)
	assert.Equal(t, 0.0, lot.Budget)
	assert.Equal(t, 0, lot.ParticipantsCount)
}

func TestLot_UnmarshalJSON_TolerantTypes(t *testing.T) {
	input := `{
		"lot_id": 12345,
		"budget": "1 500 000,50",
		"quantity": 3,
		"participants_count": "2",
		"deadline_days": 4.0,
		"customer_bin": 990140000123,
		"desc_ru": null
	}`

	var lot Lot
	require.NoError(t, json.Unmarshal([]byte(input), &lot))

	assert.Equal(t, "12345", lot.LotID)
	assert.InDelta(t, 1500000.50, lot.Budget, 1e-9)
	assert.Equal(t, 3.0, lot.Quantity)
	assert.Equal(t, 2, lot.ParticipantsCount)
	assert.Equal(t, 4, lot.DeadlineDays)
	assert.Equal(t, "990140000123", lot.CustomerBIN)
	assert.Equal(t, "", lot.DescRu)
}

func TestLot_UnmarshalJSON_Aliases(t *testing.T) {
	input := `{"id": "77", "nameRu": "Ноутбук", "description_ru": "ТЗ", "amount": 100, "count": 4, "supplier_bin": "W1"}`

	var lot Lot
	require.NoError(t, json.Unmarshal([]byte(input), &lot))

	assert.Equal(t, "77", lot.LotID)
	assert.Equal(t, "Ноутбук", lot.NameRu)
	assert.Equal(t, "ТЗ", lot.DescRu)
	assert.Equal(t, 100.0, lot.Budget)
	assert.Equal(t, 4.0, lot.Quantity)
	assert.Equal(t, "W1", lot.WinnerBIN)
}

func TestLot_UnmarshalJSON_CanonicalWinsOverAlias(t *testing.T) {
	var lot Lot
	require.NoError(t, json.Unmarshal([]byte(`{"lot_id": "A", "id": "B"}`), &lot))
	assert.Equal(t, "A", lot.LotID)
}

func TestLot_UnmarshalJSON_BadNumber(t *testing.T) {
	var lot Lot
	err := json.Unmarshal([]byte(`{"lot_id": "A", "budget": "lots"}`), &lot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
}

func TestLot_EffectiveUnitPrice(t *testing.T) {
	tests := []struct {
		name     string
		lot      Lot
		expected float64
	}{
		{"explicit unit price", Lot{UnitPrice: 50, Budget: 1000, Quantity: 10}, 50},
		{"budget over quantity", Lot{Budget: 1000, Quantity: 4}, 250},
		{"budget only", Lot{Budget: 1000}, 1000},
		{"nothing", Lot{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.lot.EffectiveUnitPrice())
		})
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-01", "2024-03-01T10:00:00", "2024-03-01 10:00:00", "2024-03-01T10:00:00+05:00", "01.03.2024"} {
		d, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, 2024, d.Year(), s)
		assert.Equal(t, 3, int(d.Month()), s)
	}

	_, ok := ParseDate("not a date")
	assert.False(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
}

func TestDecodeLots(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		lots, err := DecodeLots(strings.NewReader(`[{"lot_id":"1"},{"lot_id":"2"}]`))
		require.NoError(t, err)
		assert.Len(t, lots, 2)
	})

	t.Run("wrapped items", func(t *testing.T) {
		lots, err := DecodeLots(strings.NewReader(`{"total": 1, "items": [{"lot_id":"1"}]}`))
		require.NoError(t, err)
		require.Len(t, lots, 1)
		assert.Equal(t, "1", lots[0].LotID)
	})

	t.Run("missing lot id", func(t *testing.T) {
		_, err := DecodeLots(strings.NewReader(`[{"lot_id":"1"},{"name_ru":"x"}]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "record 1")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeLots(strings.NewReader(`not json`))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeLots(strings.NewReader("  "))
		assert.Error(t, err)
	})

	t.Run("object without array", func(t *testing.T) {
		_, err := DecodeLots(strings.NewReader(`{"total": 0}`))
		assert.Error(t, err)
	})
}

func TestLevelThresholds_Boundaries(t *testing.T) {
	tests := []struct {
		score    float64
		expected RiskLevel
	}{
		{0, RiskLow},
		{24.9, RiskLow},
		{25.0, RiskMedium},
		{49.9, RiskMedium},
		{50.0, RiskHigh},
		{74.9, RiskHigh},
		{75.0, RiskCritical},
		{100, RiskCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevelFor(tt.score), "score %.1f", tt.score)
	}
}

func TestClampAndRound(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3))
	assert.Equal(t, 100.0, Clamp(130))
	assert.Equal(t, 42.0, Clamp(42))
	assert.Equal(t, 24.9, Round1(24.94))
	assert.Equal(t, 25.0, Round1(24.96))
}

func TestRiskLevel_IsHighRisk(t *testing.T) {
	assert.False(t, RiskLow.IsHighRisk())
	assert.False(t, RiskMedium.IsHighRisk())
	assert.True(t, RiskHigh.IsHighRisk())
	assert.True(t, RiskCritical.IsHighRisk())
}
