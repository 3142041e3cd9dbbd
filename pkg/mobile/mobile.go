// Package mobile exposes the ledger through a gomobile-friendly surface:
// only strings, numbers and errors cross the boundary, structured values
// travel as JSON.
package mobile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"investcalc/pkg/investcalc"
	"investcalc/pkg/quote"
)

// Core wraps the ledger and its valuation view for gomobile bindings.
type Core struct {
	core      *investcalc.Core
	view      *investcalc.View
	refresher *investcalc.Refresher
}

// Open initializes the ledger at dbPath and loads its view.
func Open(dbPath string) (*Core, error) {
	return open(dbPath, nil)
}

func open(dbPath string, quotes investcalc.QuoteProvider) (*Core, error) {
	core, err := investcalc.Open(dbPath)
	if err != nil {
		return nil, err
	}
	view := investcalc.NewView(core)
	if err := view.Reload(context.Background()); err != nil {
		_ = core.Close()
		return nil, err
	}
	if quotes == nil {
		quotes = quote.NewDefaultRegistry(quote.DefaultConfig{Options: quote.Options{Logger: core.Logger()}})
	}
	refresher := investcalc.NewRefresher(quotes, view, investcalc.RefresherOptions{Logger: core.Logger()})
	return &Core{core: core, view: view, refresher: refresher}, nil
}

// Close releases resources.
func (c *Core) Close() error {
	if c == nil || c.core == nil {
		return nil
	}
	return c.core.Close()
}

// ErrorCode returns the classification of an error returned by Core, e.g.
// "BALANCE_VIOLATION" or "PARSE_ERROR".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return string(investcalc.ErrorCodeOf(err))
}

// GetPortfolioJSON returns the current valuation snapshot as JSON.
func (c *Core) GetPortfolioJSON() (string, error) {
	return marshalJSON(c.view.Snapshot())
}

// GetHistoryJSON returns the flows matching filterJSON in canonical order.
func (c *Core) GetHistoryJSON(filterJSON string) (string, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return "", err
	}
	rows, err := c.core.GetHistory(context.Background(), filter)
	if err != nil {
		return "", err
	}
	return marshalJSON(rows)
}

// RecordJSON records one flow and returns {"id": n}. With "operation" set
// the amounts are unsigned and the sign follows the operation; otherwise
// they are taken as signed and a sale beyond the held balance is refused.
func (c *Core) RecordJSON(payloadJSON string) (string, error) {
	var payload recordPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", investcalc.WrapError(investcalc.ErrCodeInvalidInput, "invalid record payload", err)
	}
	ctx := context.Background()
	day := c.core.Today()
	if payload.Day != "" {
		d, err := investcalc.ParseDay(payload.Day)
		if err != nil {
			return "", investcalc.WrapError(investcalc.ErrCodeInvalidInput, "invalid day", err)
		}
		day = d
	}

	var id int64
	var err error
	if payload.Operation != "" {
		op, perr := investcalc.ParseOperation(payload.Operation)
		if perr != nil {
			return "", perr
		}
		id, err = c.core.RecordOperation(ctx, investcalc.OperationRequest{
			Operation: op,
			Stock:     payload.Stock,
			Day:       day,
			Shares:    investcalc.NewAmount(payload.Shares),
			Total:     investcalc.NewAmount(payload.Money),
			Comment:   payload.Comment,
		})
	} else {
		shares := investcalc.NewAmount(payload.Shares)
		if shares.IsNegative() {
			if err := c.core.CheckHeld(ctx, payload.Stock, day, shares.Negated()); err != nil {
				return "", err
			}
		}
		id, err = c.core.Record(ctx, investcalc.RecordRequest{
			Stock:   payload.Stock,
			Day:     day,
			Shares:  shares,
			Money:   investcalc.NewAmount(payload.Money),
			Comment: payload.Comment,
		})
	}
	if err != nil {
		return "", err
	}
	if err := c.view.Reload(ctx); err != nil {
		return "", err
	}
	return marshalJSON(map[string]any{"id": id})
}

// DeleteFlowsJSON deletes the flows listed in {"ids": [...]}, checked
// against the rows selected by the optional filter fields.
func (c *Core) DeleteFlowsJSON(payloadJSON string) (int, error) {
	var payload deletePayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return 0, investcalc.WrapError(investcalc.ErrCodeInvalidInput, "invalid delete payload", err)
	}
	filter, err := payload.filterPayload.filter()
	if err != nil {
		return 0, err
	}
	ctx := context.Background()
	n, err := c.core.DeleteSelection(ctx, filter, payload.IDs)
	if err != nil {
		return 0, err
	}
	return n, c.view.Reload(ctx)
}

// ImportBatch imports delimited flow lines, all or nothing.
func (c *Core) ImportBatch(text, delimiter string) (int, error) {
	ctx := context.Background()
	n, err := c.core.ImportBatch(ctx, text, delimiter)
	if err != nil {
		return 0, err
	}
	return n, c.view.Reload(ctx)
}

// ExportHistory returns the flows matching filterJSON in the import format.
func (c *Core) ExportHistory(filterJSON, delimiter string) (string, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return "", err
	}
	return c.core.ExportHistory(context.Background(), filter, delimiter)
}

// SetQuoteCode sets the "provider symbol" code used to fetch the price of stock.
func (c *Core) SetQuoteCode(stock, code string) error {
	ctx := context.Background()
	if err := c.core.SetQuoteCode(ctx, stock, code); err != nil {
		return err
	}
	return c.view.Reload(ctx)
}

// SetManualPrice enters a price by hand.
func (c *Core) SetManualPrice(stock string, price float64) error {
	return c.view.SetManualPrice(context.Background(), stock, price)
}

// RefreshPricesJSON fetches the prices of holdings lacking one, waits for
// the cycle to finish and returns its report.
func (c *Core) RefreshPricesJSON() (string, error) {
	reports, ok := c.view.RefreshPrices(c.refresher)
	if !ok {
		return "", errors.New("price refresh already running")
	}
	return marshalJSON(<-reports)
}

func marshalJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseFilter(filterJSON string) (investcalc.HistoryFilter, error) {
	if filterJSON == "" {
		return investcalc.HistoryFilter{}, nil
	}
	var payload filterPayload
	if err := json.Unmarshal([]byte(filterJSON), &payload); err != nil {
		return investcalc.HistoryFilter{}, investcalc.WrapError(investcalc.ErrCodeInvalidInput, "invalid filter", err)
	}
	return payload.filter()
}

type filterPayload struct {
	Stocks []string `json:"stocks"`
	From   string   `json:"from"`
	To     string   `json:"to"`
}

func (p filterPayload) filter() (investcalc.HistoryFilter, error) {
	filter := investcalc.HistoryFilter{Stocks: p.Stocks}
	var err error
	if p.From != "" {
		if filter.From, err = investcalc.ParseDay(p.From); err != nil {
			return filter, investcalc.WrapError(investcalc.ErrCodeInvalidInput, fmt.Sprintf("invalid from day %q", p.From), err)
		}
	}
	if p.To != "" {
		if filter.To, err = investcalc.ParseDay(p.To); err != nil {
			return filter, investcalc.WrapError(investcalc.ErrCodeInvalidInput, fmt.Sprintf("invalid to day %q", p.To), err)
		}
	}
	return filter, nil
}

type recordPayload struct {
	Operation string  `json:"operation"`
	Stock     string  `json:"stock"`
	Day       string  `json:"day"`
	Shares    float64 `json:"shares"`
	Money     float64 `json:"money"`
	Comment   *string `json:"comment"`
}

type deletePayload struct {
	IDs []int64 `json:"ids"`
	filterPayload
}
