// Package xirr solves the annualized internal rate of return of an irregular
// series of cash flows.
package xirr

import (
	"errors"
	"math"
	"sort"
	"time"
)

var (
	// ErrNoFlows is returned when there is nothing to solve.
	ErrNoFlows = errors.New("xirr: no cash flows")
	// ErrNoSolution is returned when no rate zeroes the net present value,
	// typically because every flow has the same sign.
	ErrNoSolution = errors.New("xirr: no solution")
)

// CashFlow is an amount of money on a date. Negative amounts are money paid
// in (buys, costs), positive amounts money received (sells, dividends, the
// current value).
type CashFlow struct {
	Amount float64
	Date   time.Time
}

const (
	maxNewtonIter = 100
	maxBisectIter = 200
	minRate       = -0.999
	maxRate       = 100.0
	daysPerYear   = 365.25
)

// Solve returns the annual rate r at which the flows plus the terminal flow
// have a net present value of zero. Dates need not be sorted and amounts may
// have mixed signs. precision is the absolute tolerance on r; seed is the
// first guess.
func Solve(flows []CashFlow, terminal CashFlow, precision, seed float64) (float64, error) {
	if len(flows) == 0 {
		return 0, ErrNoFlows
	}
	if precision <= 0 {
		precision = 1e-4
	}

	all := make([]CashFlow, 0, len(flows)+1)
	all = append(all, flows...)
	if terminal.Amount != 0 {
		all = append(all, terminal)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })

	hasNeg, hasPos := false, false
	for _, f := range all {
		if f.Amount < 0 {
			hasNeg = true
		}
		if f.Amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return 0, ErrNoSolution
	}

	years := make([]float64, len(all))
	base := all[0].Date
	for i, f := range all {
		years[i] = f.Date.Sub(base).Hours() / 24 / daysPerYear
	}

	if rate, ok := newton(all, years, precision, seed); ok {
		return rate, nil
	}
	rate := bisect(all, years, precision)
	if math.IsNaN(rate) {
		return 0, ErrNoSolution
	}
	return rate, nil
}

func npv(flows []CashFlow, years []float64, rate float64) (value, derivative float64) {
	base := 1 + rate
	for i, f := range flows {
		discount := math.Pow(base, years[i])
		value += f.Amount / discount
		if years[i] != 0 {
			derivative -= years[i] * f.Amount / (discount * base)
		}
	}
	return value, derivative
}

func newton(flows []CashFlow, years []float64, precision, seed float64) (float64, bool) {
	rate := seed
	if rate <= minRate || rate > maxRate || math.IsNaN(rate) {
		rate = 0.1
	}
	for iter := 0; iter < maxNewtonIter; iter++ {
		value, derivative := npv(flows, years, rate)
		if derivative == 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, false
		}
		next := rate - value/derivative
		if next <= minRate {
			next = minRate
		}
		if next > maxRate {
			next = maxRate
		}
		if next == rate && (next == minRate || next == maxRate) {
			// Stuck on a bound; let bisection decide.
			return 0, false
		}
		if math.Abs(next-rate) < precision/10 {
			return next, true
		}
		rate = next
	}
	return 0, false
}

func bisect(flows []CashFlow, years []float64, precision float64) float64 {
	at := func(rate float64) float64 {
		v, _ := npv(flows, years, rate)
		return v
	}
	lo, hi := minRate, maxRate
	vLo, vHi := at(lo), at(hi)
	if math.IsNaN(vLo) || math.IsNaN(vHi) || vLo*vHi > 0 {
		return math.NaN()
	}
	for iter := 0; iter < maxBisectIter && hi-lo > precision/10; iter++ {
		mid := (lo + hi) / 2
		vMid := at(mid)
		if math.IsNaN(vMid) {
			return math.NaN()
		}
		if vMid == 0 {
			return mid
		}
		if vMid*vLo < 0 {
			hi = mid
		} else {
			lo, vLo = mid, vMid
		}
	}
	return (lo + hi) / 2
}
