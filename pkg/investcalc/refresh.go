package investcalc

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"investcalc/pkg/quote"
)

// QuoteProvider looks up the current price of symbol at the named provider.
// quote.Registry implements it.
type QuoteProvider interface {
	FetchPrice(ctx context.Context, provider, symbol string) (float64, error)
}

// RefreshTarget is a holding whose price should be fetched. QuoteCode is the
// "provider symbol" pair; targets without a usable code are skipped.
type RefreshTarget struct {
	Stock     string
	QuoteCode string
}

// PriceUpdate is the outcome of one fetch. Err is a *FetchError on failure.
type PriceUpdate struct {
	Generation uint64
	Stock      string
	Provider   string
	Price      float64
	Err        error
}

// PriceSink applies fetch outcomes one at a time. It returns false when the
// update was discarded, e.g. because it belongs to a superseded generation
// or its holding no longer exists.
type PriceSink interface {
	ApplyPriceUpdate(ctx context.Context, u PriceUpdate) bool
}

// RefreshReport summarizes a finished refresh cycle.
type RefreshReport struct {
	Generation uint64        `json:"generation"`
	Requested  int           `json:"requested"`
	Updated    int           `json:"updated"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Stale      int           `json:"stale"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// RefresherOptions configures a Refresher.
type RefresherOptions struct {
	Logger *slog.Logger
	// FetchTimeout bounds each fetch. There is no cycle-wide deadline.
	FetchTimeout time.Duration
}

// DefaultFetchTimeout is used when RefresherOptions.FetchTimeout is zero.
const DefaultFetchTimeout = 15 * time.Second

// Refresher fetches prices for many holdings at once. Each fetch runs in its
// own goroutine; a single consumer applies the outcomes to the sink in
// arrival order. Only one cycle runs at a time.
type Refresher struct {
	provider QuoteProvider
	sink     PriceSink
	logger   *slog.Logger
	timeout  time.Duration
	inFlight atomic.Bool
}

// NewRefresher returns a Refresher fetching from provider into sink.
func NewRefresher(provider QuoteProvider, sink PriceSink, opts RefresherOptions) *Refresher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Refresher{provider: provider, sink: sink, logger: logger, timeout: timeout}
}

// InFlight reports whether a refresh cycle is running.
func (r *Refresher) InFlight() bool {
	return r.inFlight.Load()
}

// fetchable reports whether code names a provider and a symbol.
func fetchable(code string) bool {
	_, _, err := quote.ParseCode(code)
	return err == nil
}

type fetchJob struct {
	stock    string
	provider string
	symbol   string
}

// Refresh starts a cycle for targets, tagging every outcome with generation.
// It returns false without doing anything when a cycle is already running:
// requests are dropped, not queued. Otherwise the returned channel receives
// one report once every outcome has been applied, and is then closed.
func (r *Refresher) Refresh(generation uint64, targets []RefreshTarget) (<-chan RefreshReport, bool) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Info("price refresh dropped, cycle in flight", "generation", generation)
		return nil, false
	}

	started := time.Now()
	report := RefreshReport{Generation: generation, Requested: len(targets)}
	var jobs []fetchJob
	for _, t := range targets {
		if t.QuoteCode == "" {
			report.Skipped++
			continue
		}
		provider, symbol, err := quote.ParseCode(t.QuoteCode)
		if err != nil {
			report.Skipped++
			continue
		}
		jobs = append(jobs, fetchJob{stock: t.Stock, provider: provider, symbol: symbol})
	}

	done := make(chan RefreshReport, 1)
	results := make(chan PriceUpdate, len(jobs))
	for _, job := range jobs {
		go r.fetch(generation, job, results)
	}
	r.logger.Info("price refresh started", "generation", generation, "fetches", len(jobs), "skipped", report.Skipped)

	go func() {
		ctx := context.Background()
		for range jobs {
			u := <-results
			applied := r.sink.ApplyPriceUpdate(ctx, u)
			switch {
			case !applied:
				report.Stale++
			case u.Err != nil:
				report.Failed++
				report.Errors = append(report.Errors, u.Err.Error())
			default:
				report.Updated++
			}
		}
		report.Duration = time.Since(started)
		r.inFlight.Store(false)
		r.logger.Info("price refresh finished",
			"generation", generation,
			"updated", report.Updated,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"stale", report.Stale,
			"duration", report.Duration)
		done <- report
		close(done)
	}()
	return done, true
}

func (r *Refresher) fetch(generation uint64, job fetchJob, results chan<- PriceUpdate) {
	u := PriceUpdate{Generation: generation, Stock: job.stock, Provider: job.provider}
	defer func() {
		if p := recover(); p != nil {
			u.Err = &FetchError{Stock: job.stock, Code: job.provider + " " + job.symbol, Err: fmt.Errorf("provider panic: %v", p)}
			results <- u
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	price, err := r.provider.FetchPrice(ctx, job.provider, job.symbol)
	if err != nil {
		u.Err = &FetchError{Stock: job.stock, Code: job.provider + " " + job.symbol, Err: err}
	} else {
		u.Price = price
	}
	results <- u
}
