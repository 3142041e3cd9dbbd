// Package quote looks up current prices of securities from public quote
// services. A quote code names the service and the symbol on it, e.g.
// "yahoo AAPL" or "bloomberg ASML:NA".
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Quote errors. Use errors.Is() to check for these conditions.
var (
	// ErrInvalidCode indicates a quote code without provider and symbol.
	ErrInvalidCode = errors.New("quote code must be \"provider symbol\"")
	// ErrUnknownProvider indicates no provider is registered under the name.
	ErrUnknownProvider = errors.New("unknown quote provider")
	// ErrInvalidSymbol indicates the symbol format is not recognized by the data source.
	ErrInvalidSymbol = errors.New("invalid symbol format")
	// ErrNoData indicates the data source returned no price data for the symbol.
	ErrNoData = errors.New("no price data available")
	// ErrCircuitOpen indicates the provider is cooling down after repeated failures.
	ErrCircuitOpen = errors.New("provider cooling down after repeated failures")
)

// Provider fetches the current price of a symbol from one quote service.
type Provider interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// ParseCode splits a quote code into provider name and symbol. Only the
// first two whitespace-separated words count; any more are ignored.
func ParseCode(code string) (provider, symbol string, err error) {
	words := strings.Fields(code)
	if len(words) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return strings.ToLower(words[0]), words[1], nil
}

// Options configures a Registry.
type Options struct {
	Logger        *slog.Logger
	CacheTTL      time.Duration
	FailThreshold int
	FailWindow    time.Duration
	Cooldown      time.Duration
	// Now overrides the clock for cache expiry and cooldowns.
	Now func() time.Time
}

// Defaults for Options fields left zero.
const (
	DefaultCacheTTL      = 5 * time.Minute
	DefaultFailThreshold = 3
	DefaultFailWindow    = 5 * time.Minute
	DefaultCooldown      = 10 * time.Minute
)

// Registry dispatches quote lookups to registered providers by name. Each
// provider is guarded by a circuit breaker and successful prices are cached.
// It is safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	providers map[string]Provider

	cache   *priceCache
	breaker *breaker
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultFailThreshold
	}
	if opts.FailWindow <= 0 {
		opts.FailWindow = DefaultFailWindow
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		logger:    logger,
		providers: map[string]Provider{},
		cache:     newPriceCache(opts.CacheTTL, now),
		breaker:   newBreaker(opts.FailThreshold, opts.FailWindow, opts.Cooldown, now),
	}
}

// Register adds p under its lower-cased name, replacing any provider
// registered under the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// FetchCode fetches the price for a full "provider symbol" quote code.
func (r *Registry) FetchCode(ctx context.Context, code string) (float64, error) {
	provider, symbol, err := ParseCode(code)
	if err != nil {
		return 0, err
	}
	return r.FetchPrice(ctx, provider, symbol)
}

// FetchPrice fetches the current price of symbol from the named provider.
func (r *Registry) FetchPrice(ctx context.Context, provider, symbol string) (float64, error) {
	p, ok := r.Lookup(provider)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	name := strings.ToLower(p.Name())
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return 0, ErrInvalidSymbol
	}

	if price, ok := r.cache.get(name, symbol); ok {
		r.logger.Debug("quote cache hit", "provider", name, "symbol", symbol)
		return price, nil
	}
	if !r.breaker.available(name) {
		return 0, fmt.Errorf("%s: %w", name, ErrCircuitOpen)
	}

	r.logger.Info("fetching price", "provider", name, "symbol", symbol)
	price, err := p.FetchPrice(ctx, symbol)
	if err == nil && (math.IsNaN(price) || math.IsInf(price, 0) || price < 0) {
		err = fmt.Errorf("%w: implausible price %v", ErrNoData, price)
	}
	if err != nil {
		r.breaker.failure(name)
		r.logger.Warn("price fetch failed", "provider", name, "symbol", symbol, "err", err)
		return 0, fmt.Errorf("%s %s: %w", name, symbol, err)
	}
	r.breaker.success(name)
	r.cache.set(name, symbol, price)
	return price, nil
}
