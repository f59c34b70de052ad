package goszakup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aristath/tenderwatch/internal/domain"
)

const lotsQuery = `query GetLots($after: Int, $limit: Int) {
  Lots(filter: {}, after: $after, limit: $limit) {
    id
    nameRu
    descriptionRu
    amount
    count
    customerBin
    TrdBuy {
      id
      publishDate
      endDate
      refTradeMethodsId
    }
  }
}`

type gqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlLot struct {
	ID            int64   `json:"id"`
	NameRu        string  `json:"nameRu"`
	DescriptionRu string  `json:"descriptionRu"`
	Amount        float64 `json:"amount"`
	Count         float64 `json:"count"`
	CustomerBIN   string  `json:"customerBin"`
	TrdBuy        *struct {
		ID                int64  `json:"id"`
		PublishDate       string `json:"publishDate"`
		EndDate           string `json:"endDate"`
		RefTradeMethodsID int64  `json:"refTradeMethodsId"`
	} `json:"TrdBuy"`
}

func (g gqlLot) toLot() domain.Lot {
	lot := domain.Lot{
		LotID:       strconv.FormatInt(g.ID, 10),
		NameRu:      g.NameRu,
		DescRu:      g.DescriptionRu,
		Budget:      g.Amount,
		Quantity:    g.Count,
		CustomerBIN: g.CustomerBIN,
	}
	if g.Count > 0 {
		lot.UnitPrice = g.Amount / g.Count
	}
	if tb := g.TrdBuy; tb != nil {
		lot.TrdBuyID = strconv.FormatInt(tb.ID, 10)
		lot.PublishDate = tb.PublishDate
		lot.EndDate = tb.EndDate
		lot.TradeMethod = strconv.FormatInt(tb.RefTradeMethodsID, 10)
		if start, ok := domain.ParseDate(tb.PublishDate); ok {
			if end, ok := domain.ParseDate(tb.EndDate); ok && end.After(start) {
				lot.DeadlineDays = int(end.Sub(start).Hours() / 24)
			}
		}
	}
	return lot
}

// LotsAfter returns up to limit lots with id greater than lastID, and the
// cursor for the next call. An empty page means the end.
func (c *Client) LotsAfter(ctx context.Context, lastID int64, limit int) ([]domain.Lot, int64, error) {
	data, err := c.do(ctx, http.MethodPost, "/v3/graphql", nil, gqlRequest{
		Query:     lotsQuery,
		Variables: map[string]interface{}{"after": lastID, "limit": clampLimit(limit)},
	})
	if err != nil {
		return nil, lastID, err
	}

	var resp struct {
		Data struct {
			Lots []gqlLot `json:"Lots"`
		} `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, lastID, &APIError{Type: ErrValidation, Message: "malformed GraphQL response", Err: err}
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return nil, lastID, &APIError{Type: ErrValidation, Message: "GraphQL: " + strings.Join(msgs, "; ")}
	}

	lots := make([]domain.Lot, 0, len(resp.Data.Lots))
	next := lastID
	for _, g := range resp.Data.Lots {
		lots = append(lots, g.toLot())
		if g.ID > next {
			next = g.ID
		}
	}
	return lots, next, nil
}

// FetchAllGraphQL walks the lastId cursor for at most maxPages pages
func (c *Client) FetchAllGraphQL(ctx context.Context, pageSize, maxPages int) ([]domain.Lot, error) {
	var (
		lots   []domain.Lot
		cursor int64
	)
	for page := 0; page < maxPages; page++ {
		batch, next, err := c.LotsAfter(ctx, cursor, pageSize)
		if err != nil {
			return lots, fmt.Errorf("failed to fetch GraphQL page %d: %w", page, err)
		}
		lots = append(lots, batch...)
		if len(batch) == 0 || next == cursor {
			break
		}
		cursor = next
	}
	return lots, nil
}
