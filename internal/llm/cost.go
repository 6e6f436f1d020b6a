// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import "sync"

// Pricing converts token counts to an estimated cost in USD.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Cost returns the estimated cost of u.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.PromptTokens)/1000*p.PromptPer1K +
		float64(u.CompletionTokens)/1000*p.CompletionPer1K
}

// Totals is a snapshot of accumulated usage.
type Totals struct {
	Calls            int
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// Accumulator sums usage across calls. It is safe for concurrent use.
type Accumulator struct {
	pricing Pricing

	mu     sync.Mutex
	totals Totals
}

// NewAccumulator returns an empty accumulator priced with p.
func NewAccumulator(p Pricing) *Accumulator {
	return &Accumulator{pricing: p}
}

// Add records one completed call and returns its cost.
func (a *Accumulator) Add(u Usage) float64 {
	cost := a.pricing.Cost(u)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals.Calls++
	a.totals.PromptTokens += u.PromptTokens
	a.totals.CompletionTokens += u.CompletionTokens
	a.totals.Cost += cost
	return cost
}

// Totals returns the current sums.
func (a *Accumulator) Totals() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals
}
