package quote

import (
	"sync"
	"time"
)

type cacheEntry struct {
	price float64
	ts    time.Time
}

// priceCache keeps recent prices keyed by provider and symbol. A negative
// TTL disables it.
type priceCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newPriceCache(ttl time.Duration, now func() time.Time) *priceCache {
	return &priceCache{ttl: ttl, now: now, entries: map[string]cacheEntry{}}
}

func cacheKey(provider, symbol string) string {
	return provider + "|" + symbol
}

func (c *priceCache) get(provider, symbol string) (float64, bool) {
	if c.ttl < 0 {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cacheKey(provider, symbol)]
	if !ok || c.now().Sub(entry.ts) > c.ttl {
		return 0, false
	}
	return entry.price, true
}

func (c *priceCache) set(provider, symbol string, price float64) {
	if c.ttl < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(provider, symbol)] = cacheEntry{price: price, ts: c.now()}
}

type serviceState struct {
	failCount     int
	firstFailAt   time.Time
	cooldownUntil time.Time
}

// breaker stops calling a provider for a cooldown period once it failed
// threshold times within window.
type breaker struct {
	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	state map[string]*serviceState
}

func newBreaker(threshold int, window, cooldown time.Duration, now func() time.Time) *breaker {
	return &breaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       now,
		state:     map[string]*serviceState{},
	}
}

func (b *breaker) available(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.state[service]
	if !ok {
		return true
	}
	return !b.now().Before(state.cooldownUntil)
}

func (b *breaker) failure(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.state[service]
	now := b.now()
	if state == nil {
		state = &serviceState{firstFailAt: now}
		b.state[service] = state
	}
	if now.Sub(state.firstFailAt) > b.window {
		state.failCount = 0
		state.firstFailAt = now
	}
	state.failCount++
	if state.failCount >= b.threshold {
		state.cooldownUntil = now.Add(b.cooldown)
	}
}

func (b *breaker) success(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state, service)
}
