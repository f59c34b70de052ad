// Package domain provides core domain models and types.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ManualLotID identifies ad-hoc text submitted for a what-if check
const ManualLotID = "MANUAL"

// Lot is one procurement item as ingested from the upstream source.
// Immutable once loaded; missing numerics are 0 and missing text is "".
type Lot struct {
	LotID             string  `json:"lot_id"`
	TrdBuyID          string  `json:"trd_buy_id"`
	NameRu            string  `json:"name_ru"`
	DescRu            string  `json:"desc_ru"`
	ExtraDescRu       string  `json:"extra_desc_ru"`
	CategoryCode      string  `json:"category_code"`
	CategoryName      string  `json:"category_name"`
	Budget            float64 `json:"budget"`
	ContractSum       float64 `json:"contract_sum"`
	UnitPrice         float64 `json:"unit_price"`
	Quantity          float64 `json:"quantity"`
	PublishDate       string  `json:"publish_date"`
	EndDate           string  `json:"end_date"`
	DeadlineDays      int     `json:"deadline_days"`
	ParticipantsCount int     `json:"participants_count"`
	CustomerBIN       string  `json:"customer_bin"`
	CustomerName      string  `json:"customer_name"`
	WinnerBIN         string  `json:"winner_bin"`
	WinnerName        string  `json:"winner_name"`
	City              string  `json:"city"`
	TradeMethod       string  `json:"trade_method"`
}

// RawDescription joins the specification text fields analyzed by the pipeline
func (l Lot) RawDescription() string {
	return l.DescRu + " " + l.ExtraDescRu
}

// EffectiveUnitPrice resolves the price used for category comparisons:
// explicit unit price, then budget/quantity, then the whole budget.
func (l Lot) EffectiveUnitPrice() float64 {
	switch {
	case l.UnitPrice > 0:
		return l.UnitPrice
	case l.Budget > 0 && l.Quantity > 0:
		return l.Budget / l.Quantity
	case l.Budget > 0:
		return l.Budget
	default:
		return 0
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

// ParseDate parses the date formats seen in upstream exports
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PublishedAt returns the parsed publish date
func (l Lot) PublishedAt() (time.Time, bool) {
	return ParseDate(l.PublishDate)
}

// lotAliases maps alternative upstream field names onto the canonical ones
var lotAliases = map[string]string{
	"id":             "lot_id",
	"lotId":          "lot_id",
	"nameRu":         "name_ru",
	"description_ru": "desc_ru",
	"descriptionRu":  "desc_ru",
	"amount":         "budget",
	"count":          "quantity",
	"customerBin":    "customer_bin",
	"supplier_bin":   "winner_bin",
	"supplierBin":    "winner_bin",
	"publishDate":    "publish_date",
	"endDate":        "end_date",
	"trdBuyId":       "trd_buy_id",
}

// UnmarshalJSON decodes a lot tolerantly: numbers may arrive as strings,
// ids may be numeric, and several upstream aliases are accepted.
func (l *Lot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[k] = v
	}
	for alias, canonical := range lotAliases {
		if v, ok := raw[alias]; ok {
			if _, exists := raw[canonical]; !exists {
				fields[canonical] = v
			}
		}
	}

	var err error
	str := func(key string) string {
		if err != nil {
			return ""
		}
		var s string
		s, err = rawString(fields[key])
		if err != nil {
			err = fmt.Errorf("field %s: %w", key, err)
		}
		return s
	}
	num := func(key string) float64 {
		if err != nil {
			return 0
		}
		var f float64
		f, err = rawFloat(fields[key])
		if err != nil {
			err = fmt.Errorf("field %s: %w", key, err)
		}
		return f
	}

	*l = Lot{
		LotID:             str("lot_id"),
		TrdBuyID:          str("trd_buy_id"),
		NameRu:            str("name_ru"),
		DescRu:            str("desc_ru"),
		ExtraDescRu:       str("extra_desc_ru"),
		CategoryCode:      str("category_code"),
		CategoryName:      str("category_name"),
		Budget:            num("budget"),
		ContractSum:       num("contract_sum"),
		UnitPrice:         num("unit_price"),
		Quantity:          num("quantity"),
		PublishDate:       str("publish_date"),
		EndDate:           str("end_date"),
		DeadlineDays:      int(num("deadline_days")),
		ParticipantsCount: int(num("participants_count")),
		CustomerBIN:       str("customer_bin"),
		CustomerName:      str("customer_name"),
		WinnerBIN:         str("winner_bin"),
		WinnerName:        str("winner_name"),
		City:              str("city"),
		TradeMethod:       str("trade_method"),
	}
	return err
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func rawString(v json.RawMessage) (string, error) {
	if isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string, got %s", string(v))
}

func rawFloat(v json.RawMessage) (float64, error) {
	if isNull(v) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("expected number, got %s", string(v))
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", s)
	}
	return f, nil
}

// DecodeLots reads a corpus: either a JSON array of lots or an object
// wrapping the array under "lots", "items" or "data".
func DecodeLots(r io.Reader) ([]Lot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}

	var records []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse corpus array: %w", err)
		}
	} else {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to parse corpus object: %w", err)
		}
		found := false
		for _, key := range []string{"lots", "items", "data"} {
			if v, ok := wrapper[key]; ok {
				if err := json.Unmarshal(v, &records); err != nil {
					return nil, fmt.Errorf("failed to parse corpus %q array: %w", key, err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("corpus object has no lots, items or data array")
		}
	}

	lots := make([]Lot, 0, len(records))
	for i, rec := range records {
		var lot Lot
		if err := json.Unmarshal(rec, &lot); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if lot.LotID == "" {
			return nil, fmt.Errorf("record %d: missing lot_id", i)
		}
		lots = append(lots, lot)
	}
	return lots, nil
}
