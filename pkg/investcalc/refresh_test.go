package investcalc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investcalc/pkg/quote"
)

// gatedQuotes answers from fixed tables; a fetch for a gated code waits until
// its gate is closed.
type gatedQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	panics map[string]bool
	gates  map[string]chan struct{}
	calls  atomic.Int32
}

func newGatedQuotes() *gatedQuotes {
	return &gatedQuotes{
		prices: map[string]float64{},
		errs:   map[string]error{},
		panics: map[string]bool{},
		gates:  map[string]chan struct{}{},
	}
}

func (g *gatedQuotes) gate(code string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[code] = ch
	return ch
}

func (g *gatedQuotes) FetchPrice(ctx context.Context, provider, symbol string) (float64, error) {
	g.calls.Add(1)
	code := provider + " " + symbol
	g.mu.Lock()
	gate := g.gates[code]
	price, hasPrice := g.prices[code]
	err := g.errs[code]
	panics := g.panics[code]
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if panics {
		panic("provider exploded")
	}
	if err != nil {
		return 0, err
	}
	if !hasPrice {
		return 0, quote.ErrNoData
	}
	return price, nil
}

// setupRefreshView records AAA and BBB with quote codes "x AAA" and "y BBB"
// and returns a loaded view.
func setupRefreshView(t *testing.T) (*Core, *View, func()) {
	t.Helper()
	core, cleanup := setupTestDB(t)
	ctx := context.Background()
	testRecord(t, core, "AAA", day(2024, 1, 1), 10, -1000)
	testRecord(t, core, "BBB", day(2024, 1, 1), 5, -500)
	require.NoError(t, core.SetQuoteCode(ctx, "AAA", "x AAA"))
	require.NoError(t, core.SetQuoteCode(ctx, "BBB", "y BBB"))
	view := NewView(core)
	require.NoError(t, view.Reload(ctx))
	return core, view, cleanup
}

func waitReport(t *testing.T, ch <-chan RefreshReport) RefreshReport {
	t.Helper()
	select {
	case report, ok := <-ch:
		require.True(t, ok, "report channel closed without a report")
		return report
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not finish")
	}
	return RefreshReport{}
}

func holdingOf(snap PortfolioSnapshot, stock string) Holding {
	for _, h := range snap.Holdings {
		if strings.EqualFold(h.Stock, stock) {
			return h
		}
	}
	return Holding{}
}

func TestRefreshFailureIsolation(t *testing.T) {
	orders := map[string][]string{
		"failure first": {"x AAA", "y BBB"},
		"success first": {"y BBB", "x AAA"},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			core, view, cleanup := setupRefreshView(t)
			defer cleanup()

			quotes := newGatedQuotes()
			quotes.errs["x AAA"] = errors.New("provider x is down")
			quotes.prices["y BBB"] = 120
			gates := map[string]chan struct{}{}
			for _, code := range order {
				gates[code] = quotes.gate(code)
			}

			refresher := NewRefresher(quotes, view, RefresherOptions{FetchTimeout: time.Second})
			ch, ok := view.RefreshPrices(refresher)
			require.True(t, ok)

			snap := view.Snapshot()
			assert.True(t, holdingOf(snap, "AAA").Fetching)
			assert.True(t, holdingOf(snap, "BBB").Fetching)

			close(gates[order[0]])
			first := strings.Fields(order[0])[1]
			require.Eventually(t, func() bool {
				return !holdingOf(view.Snapshot(), first).Fetching
			}, 2*time.Second, 5*time.Millisecond)
			close(gates[order[1]])

			report := waitReport(t, ch)
			assert.Equal(t, 2, report.Requested)
			assert.Equal(t, 1, report.Updated)
			assert.Equal(t, 1, report.Failed)
			assert.Zero(t, report.Stale)
			require.Len(t, report.Errors, 1)
			assert.Contains(t, report.Errors[0], "AAA")
			assert.False(t, refresher.InFlight())

			snap = view.Snapshot()
			aaa := holdingOf(snap, "AAA")
			assert.Contains(t, aaa.FetchError, "provider x is down")
			assert.Nil(t, aaa.Price)
			assert.Nil(t, aaa.Value)
			assert.False(t, aaa.Fetching)

			bbb := holdingOf(snap, "BBB")
			assert.Empty(t, bbb.FetchError)
			require.NotNil(t, bbb.Price)
			assert.InDelta(t, 120, *bbb.Price, 1e-9)
			require.NotNil(t, bbb.Value)
			assert.InDelta(t, 600, *bbb.Value, 1e-9)
			require.NotNil(t, bbb.Return)
			assert.Greater(t, *bbb.Return, 0.0)
			assert.Equal(t, "y", bbb.Source)

			assert.False(t, snap.Complete)
			assert.Nil(t, snap.PooledReturn)
			assert.InDelta(t, 600, snap.Total, 1e-9)

			prices, err := core.GetAllLatestPrices(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "y", prices["bbb"].Source)
			_, stored := prices["aaa"]
			assert.False(t, stored)
		})
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	_, view, cleanup := setupRefreshView(t)
	defer cleanup()

	quotes := newGatedQuotes()
	quotes.prices["x AAA"] = 100
	quotes.prices["y BBB"] = 100
	gate := quotes.gate("x AAA")

	refresher := NewRefresher(quotes, view, RefresherOptions{})
	ch, ok := view.RefreshPrices(refresher)
	require.True(t, ok)
	assert.True(t, refresher.InFlight())

	_, ok = view.RefreshPrices(refresher)
	assert.False(t, ok, "second cycle must be dropped while one is running")
	_, ok = refresher.Refresh(view.Generation(), []RefreshTarget{{Stock: "AAA", QuoteCode: "x AAA"}})
	assert.False(t, ok)

	close(gate)
	report := waitReport(t, ch)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, int32(2), quotes.calls.Load())
	assert.False(t, refresher.InFlight())

	snap := view.Snapshot()
	assert.True(t, snap.Complete)
	assert.InDelta(t, 1500, snap.Total, 1e-9)
	require.NotNil(t, snap.PooledReturn)

	// Everything is priced now, so the next cycle has nothing to fetch.
	ch, ok = view.RefreshPrices(refresher)
	require.True(t, ok)
	report = waitReport(t, ch)
	assert.Zero(t, report.Requested)
	assert.Equal(t, int32(2), quotes.calls.Load())
}

func TestRefreshDroppedCycleClearsFetching(t *testing.T) {
	_, view, cleanup := setupRefreshView(t)
	defer cleanup()

	quotes := newGatedQuotes()
	gate := quotes.gate("x AAA")
	refresher := NewRefresher(quotes, view, RefresherOptions{})

	// Occupy the refresher with a cycle the view does not know about.
	ch, ok := refresher.Refresh(0, []RefreshTarget{{Stock: "AAA", QuoteCode: "x AAA"}})
	require.True(t, ok)

	_, ok = view.RefreshPrices(refresher)
	require.False(t, ok)
	for _, h := range view.Snapshot().Holdings {
		assert.False(t, h.Fetching, h.Stock)
	}

	close(gate)
	report := waitReport(t, ch)
	assert.Equal(t, 1, report.Stale)
}

func TestRefreshDiscardsStaleGeneration(t *testing.T) {
	core, view, cleanup := setupRefreshView(t)
	defer cleanup()

	quotes := newGatedQuotes()
	quotes.prices["x AAA"] = 100
	quotes.prices["y BBB"] = 100
	gateA := quotes.gate("x AAA")
	gateB := quotes.gate("y BBB")

	refresher := NewRefresher(quotes, view, RefresherOptions{})
	ch, ok := view.RefreshPrices(refresher)
	require.True(t, ok)
	generation := view.Generation()

	// A ledger change rebuilds the view before the fetches complete.
	testRecord(t, core, "BBB", day(2024, 2, 1), 1, -90)
	require.NoError(t, view.Reload(context.Background()))
	require.Greater(t, view.Generation(), generation)

	close(gateA)
	close(gateB)
	report := waitReport(t, ch)
	assert.Equal(t, 2, report.Stale)
	assert.Zero(t, report.Updated)

	snap := view.Snapshot()
	for _, h := range snap.Holdings {
		assert.Nil(t, h.Price, h.Stock)
	}
	bbb := holdingOf(snap, "BBB")
	assertAmount(t, bbb.Shares, 6, "BBB shares after reload")
}

func TestRefreshSkipsMissingCodes(t *testing.T) {
	core, view, cleanup := setupRefreshView(t)
	defer cleanup()
	ctx := context.Background()

	testRecord(t, core, "CCC", day(2024, 1, 1), 1, -10)
	testRecord(t, core, "DDD", day(2024, 1, 1), 1, -10)
	require.NoError(t, core.SetQuoteCode(ctx, "DDD", "lonely"))
	require.NoError(t, view.Reload(ctx))

	quotes := newGatedQuotes()
	quotes.prices["x AAA"] = 1
	quotes.prices["y BBB"] = 1
	refresher := NewRefresher(quotes, view, RefresherOptions{})
	ch, ok := view.RefreshPrices(refresher)
	require.True(t, ok)
	report := waitReport(t, ch)
	assert.Equal(t, 4, report.Requested)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, int32(2), quotes.calls.Load())
	assert.False(t, holdingOf(view.Snapshot(), "CCC").Fetching)
}

func TestRefreshRecoversProviderPanic(t *testing.T) {
	_, view, cleanup := setupRefreshView(t)
	defer cleanup()

	quotes := newGatedQuotes()
	quotes.panics["x AAA"] = true
	quotes.prices["y BBB"] = 80
	refresher := NewRefresher(quotes, view, RefresherOptions{})
	ch, ok := view.RefreshPrices(refresher)
	require.True(t, ok)
	report := waitReport(t, ch)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Updated)

	aaa := holdingOf(view.Snapshot(), "AAA")
	assert.Contains(t, aaa.FetchError, "provider panic")
	assert.True(t, strings.HasPrefix(aaa.FetchError, "fetch price for AAA"))
}

func TestRefreshWithRegistry(t *testing.T) {
	_, view, cleanup := setupRefreshView(t)
	defer cleanup()

	registry := quote.NewRegistry(quote.Options{CacheTTL: -1})
	registry.Register(namedQuotes{name: "Y", price: 42})
	refresher := NewRefresher(registry, view, RefresherOptions{})
	ch, ok := view.RefreshPrices(refresher)
	require.True(t, ok)
	report := waitReport(t, ch)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Updated)

	snap := view.Snapshot()
	assert.Contains(t, holdingOf(snap, "AAA").FetchError, quote.ErrUnknownProvider.Error())
	require.NotNil(t, holdingOf(snap, "BBB").Price)
	assert.InDelta(t, 42, *holdingOf(snap, "BBB").Price, 1e-9)
}

type namedQuotes struct {
	name  string
	price float64
}

func (n namedQuotes) Name() string { return n.name }

func (n namedQuotes) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	return n.price, nil
}

func TestRefreshTimeout(t *testing.T) {
	_, view, cleanup := setupRefreshView(t)
	defer cleanup()

	quotes := newGatedQuotes()
	quotes.gate("x AAA")
	quotes.prices["y BBB"] = 10
	refresher := NewRefresher(quotes, view, RefresherOptions{FetchTimeout: 20 * time.Millisecond})
	ch, ok := view.RefreshPrices(refresher)
	require.True(t, ok)
	report := waitReport(t, ch)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, holdingOf(view.Snapshot(), "AAA").FetchError, context.DeadlineExceeded.Error())
}
