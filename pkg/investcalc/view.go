package investcalc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"investcalc/pkg/xirr"
)

// Return computation parameters: four decimals of a rate per one, seeded
// at ten percent.
const (
	ReturnPrecision = 1e-4
	ReturnSeed      = 0.1
)

// Holding is the valuation state of one stock.
type Holding struct {
	Stock      string   `json:"stock"`
	Shares     Amount   `json:"shares"`
	QuoteCode  *string  `json:"quote_code"`
	Price      *float64 `json:"price"`
	Source     string   `json:"source,omitempty"`
	Value      *float64 `json:"value"`
	Return     *float64 `json:"return"`
	FetchError string   `json:"fetch_error,omitempty"`
	Fetching   bool     `json:"fetching"`
}

// PortfolioSnapshot is a consistent copy of the view.
type PortfolioSnapshot struct {
	Generation uint64    `json:"generation"`
	Day        Day       `json:"day"`
	Holdings   []Holding `json:"holdings"`
	// Total sums the values that are known.
	Total float64 `json:"total"`
	// Complete reports whether every holding has a known value.
	Complete bool `json:"complete"`
	// PooledReturn is the return over all flows of all stocks, set only
	// when the view is complete.
	PooledReturn *float64 `json:"pooled_return"`
}

// View is the derived, in-memory valuation of the portfolio. It is rebuilt
// from the ledger on Reload; every rebuild starts a new generation, and
// price updates from an older generation are discarded.
type View struct {
	core   *Core
	logger *slog.Logger

	mu           sync.Mutex
	generation   uint64
	day          Day
	holdings     []*Holding
	index        map[string]*Holding
	total        float64
	complete     bool
	pooledReturn *float64
}

// NewView returns an empty view over core. Call Reload to populate it.
func NewView(core *Core) *View {
	return &View{core: core, logger: core.Logger(), index: map[string]*Holding{}}
}

func holdingKey(stock string) string {
	return strings.ToLower(normalizeStock(stock))
}

// Reload rebuilds every holding from the ledger, quote codes and persisted
// prices, and starts a new generation.
func (v *View) Reload(ctx context.Context) error {
	portfolio, err := v.core.GetPortfolio(ctx)
	if err != nil {
		return err
	}
	stocks, err := v.core.GetStocks(ctx)
	if err != nil {
		return err
	}
	prices, err := v.core.GetAllLatestPrices(ctx)
	if err != nil {
		return err
	}
	codes := make(map[string]*string, len(stocks))
	for _, s := range stocks {
		codes[strings.ToLower(s.Name)] = s.QuoteCode
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
	v.day = v.core.Today()
	v.holdings = make([]*Holding, 0, len(portfolio))
	v.index = make(map[string]*Holding, len(portfolio))
	for _, p := range portfolio {
		key := strings.ToLower(p.Stock)
		h := &Holding{Stock: p.Stock, Shares: p.TotalShares, QuoteCode: codes[key]}
		if lp, ok := prices[key]; ok {
			price := lp.Price
			h.Price = &price
			h.Source = lp.Source
		}
		v.holdings = append(v.holdings, h)
		v.index[key] = h
		v.revalueLocked(ctx, h)
	}
	v.recomputeTotalsLocked(ctx)
	v.logger.Debug("view reloaded", "generation", v.generation, "holdings", len(v.holdings))
	return nil
}

// Watch reloads the view once it is subscribed and then after every ledger
// change, until ctx is done or the core is closed.
func (v *View) Watch(ctx context.Context) {
	changes, cancel := v.core.Subscribe()
	defer cancel()
	if err := v.Reload(ctx); err != nil {
		v.logger.Error("view reload failed", "err", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := v.Reload(ctx); err != nil {
				v.logger.Error("view reload failed", "change", change.Kind, "err", err)
			}
		}
	}
}

// Generation returns the current view generation.
func (v *View) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}

// Snapshot returns a copy of the current valuation.
func (v *View) Snapshot() PortfolioSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := PortfolioSnapshot{
		Generation: v.generation,
		Day:        v.day,
		Holdings:   make([]Holding, 0, len(v.holdings)),
		Total:      v.total,
		Complete:   v.complete,
	}
	for _, h := range v.holdings {
		snap.Holdings = append(snap.Holdings, copyHolding(h))
	}
	if v.pooledReturn != nil {
		r := *v.pooledReturn
		snap.PooledReturn = &r
	}
	return snap
}

func copyHolding(h *Holding) Holding {
	c := *h
	if h.QuoteCode != nil {
		code := *h.QuoteCode
		c.QuoteCode = &code
	}
	for _, p := range []**float64{&c.Price, &c.Value, &c.Return} {
		if *p != nil {
			val := **p
			*p = &val
		}
	}
	return c
}

// SetManualPrice stores a user-entered price for stock and revalues it.
func (v *View) SetManualPrice(ctx context.Context, stock string, price float64) error {
	if err := ValidatePrice(price); err != nil {
		return err
	}
	if err := v.core.SetLatestPrice(ctx, stock, price, PriceSourceManual); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	h, ok := v.index[holdingKey(stock)]
	if !ok {
		// Stored; the next reload picks it up.
		return nil
	}
	h.Price = &price
	h.Source = PriceSourceManual
	h.FetchError = ""
	v.revalueLocked(ctx, h)
	v.recomputeTotalsLocked(ctx)
	return nil
}

// RefreshTargets returns the current generation and the holdings with a
// positive balance whose price is unknown.
func (v *View) RefreshTargets() (uint64, []RefreshTarget) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation, v.refreshTargetsLocked()
}

func (v *View) refreshTargetsLocked() []RefreshTarget {
	var targets []RefreshTarget
	for _, h := range v.holdings {
		if h.Price != nil || !h.Shares.IsPositive() {
			continue
		}
		t := RefreshTarget{Stock: h.Stock}
		if h.QuoteCode != nil {
			t.QuoteCode = *h.QuoteCode
		}
		targets = append(targets, t)
	}
	return targets
}

// RefreshPrices starts a refresh cycle on r for the holdings lacking a
// price and flags them as fetching. It returns false when r is busy.
func (v *View) RefreshPrices(r *Refresher) (<-chan RefreshReport, bool) {
	v.mu.Lock()
	generation := v.generation
	targets := v.refreshTargetsLocked()
	var marked []*Holding
	for _, t := range targets {
		if h := v.index[holdingKey(t.Stock)]; h != nil && fetchable(t.QuoteCode) && !h.Fetching {
			h.Fetching = true
			marked = append(marked, h)
		}
	}
	v.mu.Unlock()

	report, ok := r.Refresh(generation, targets)
	if !ok {
		v.mu.Lock()
		for _, h := range marked {
			h.Fetching = false
		}
		v.mu.Unlock()
	}
	return report, ok
}

// ApplyPriceUpdate applies one fetch outcome. Outcomes of a superseded
// generation or for a holding no longer in the view are discarded. A failed
// fetch flags the holding and keeps any price it already had.
func (v *View) ApplyPriceUpdate(ctx context.Context, u PriceUpdate) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if u.Generation != v.generation {
		v.logger.Debug("stale price update discarded", "stock", u.Stock, "generation", u.Generation, "current", v.generation)
		return false
	}
	h, ok := v.index[holdingKey(u.Stock)]
	if !ok {
		return false
	}
	h.Fetching = false

	if u.Err != nil {
		h.FetchError = u.Err.Error()
		v.core.LogPriceFailure(ctx, h.Stock, u.Err)
		return true
	}
	if err := ValidatePrice(u.Price); err != nil {
		h.FetchError = err.Error()
		return true
	}
	if err := v.core.SetLatestPrice(ctx, h.Stock, u.Price, u.Provider); err != nil {
		v.logger.Warn("persist fetched price failed", "stock", h.Stock, "err", err)
	}
	price := u.Price
	h.Price = &price
	h.Source = u.Provider
	h.FetchError = ""
	v.revalueLocked(ctx, h)
	v.recomputeTotalsLocked(ctx)
	return true
}

// revalueLocked recomputes the value and return of h. A holding with no
// shares is worth zero whatever its price.
func (v *View) revalueLocked(ctx context.Context, h *Holding) {
	h.Value = nil
	h.Return = nil
	switch {
	case h.Shares.IsZero():
		zero := 0.0
		h.Value = &zero
	case h.Price != nil:
		value := *h.Price * h.Shares.Float()
		h.Value = &value
	default:
		return
	}

	flows, err := v.core.GetFlows(ctx, h.Stock)
	if err != nil {
		v.logger.Warn("load flows failed", "stock", h.Stock, "err", err)
		return
	}
	if rate, ok := v.solve(flows, *h.Value); ok {
		h.Return = &rate
	}
}

func (v *View) recomputeTotalsLocked(ctx context.Context) {
	v.total = 0
	v.complete = true
	for _, h := range v.holdings {
		if h.Value == nil {
			v.complete = false
			continue
		}
		v.total += *h.Value
	}
	v.pooledReturn = nil
	if !v.complete || len(v.holdings) == 0 {
		return
	}
	flows, err := v.core.GetFlows(ctx)
	if err != nil {
		v.logger.Warn("load pooled flows failed", "err", err)
		return
	}
	if rate, ok := v.solve(flows, v.total); ok {
		v.pooledReturn = &rate
	}
}

func (v *View) solve(flows []CashFlow, terminal float64) (float64, bool) {
	if len(flows) == 0 {
		return 0, false
	}
	cf := make([]xirr.CashFlow, len(flows))
	for i, f := range flows {
		cf[i] = xirr.CashFlow{Amount: f.Amount, Date: f.Day.Time()}
	}
	rate, err := xirr.Solve(cf, xirr.CashFlow{Amount: terminal, Date: v.day.Time()}, ReturnPrecision, ReturnSeed)
	if err != nil {
		if !errors.Is(err, xirr.ErrNoSolution) {
			v.logger.Warn("return computation failed", "err", err)
		}
		return 0, false
	}
	return rate, true
}
