// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger tracks bidder budgets and exchange revenue, plus the
// potential value lost to rejected requests. All money flows through
// decimal arithmetic; floats never touch balances.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/trace"
)

var (
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrUnknownBidder      = errors.New("unknown bidder")
)

// Budget is one bidder's budget state.
type Budget struct {
	BidderID  string
	Total     decimal.Decimal
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	UpdatedAt time.Time
}

// LossEntry records the potential value lost to one rejected request.
type LossEntry struct {
	RequestID string
	Reason    trace.ReasonCode
	Amount    decimal.Decimal
	At        time.Time
}

// Ledger is the accounting store for the exchange.
type Ledger struct {
	mu      sync.RWMutex
	budgets map[string]*Budget
	revenue decimal.Decimal
	savings decimal.Decimal
	losses  []LossEntry
	log     log.Logger
}

// New creates an empty ledger.
func New(logger log.Logger) *Ledger {
	return &Ledger{
		budgets: make(map[string]*Budget),
		log:     logger,
	}
}

// SetBudget funds a bidder, replacing any previous budget.
func (l *Ledger) SetBudget(bidderID string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.NewFromFloat(amount)
	l.budgets[bidderID] = &Budget{
		BidderID:  bidderID,
		Total:     total,
		Remaining: total,
		UpdatedAt: time.Now(),
	}
	l.log.Info("budget funded", "bidder", bidderID, "amount", amount)
}

// CanAfford reports whether a bidder's remaining budget covers price.
// Unknown bidders are unconstrained: the ledger only gates bidders that
// were explicitly funded.
func (l *Ledger) CanAfford(bidderID string, price float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.budgets[bidderID]
	if !ok {
		return true
	}
	return b.Remaining.GreaterThanOrEqual(decimal.NewFromFloat(price))
}

// Charge deducts the cleared price from the winner's budget and books the
// revenue and second-price savings.
func (l *Ledger) Charge(bidderID string, clearedPrice, savedAmount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	price := decimal.NewFromFloat(clearedPrice)
	if b, ok := l.budgets[bidderID]; ok {
		if b.Remaining.LessThan(price) {
			return ErrInsufficientBudget
		}
		b.Spent = b.Spent.Add(price)
		b.Remaining = b.Remaining.Sub(price)
		b.UpdatedAt = time.Now()
	}

	l.revenue = l.revenue.Add(price)
	l.savings = l.savings.Add(decimal.NewFromFloat(savedAmount))
	return nil
}

// RecordLoss books the potential value lost to a rejection.
func (l *Ledger) RecordLoss(requestID string, reason trace.ReasonCode, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.losses = append(l.losses, LossEntry{
		RequestID: requestID,
		Reason:    reason,
		Amount:    decimal.NewFromFloat(amount),
		At:        time.Now(),
	})
}

// GetBudget returns a bidder's remaining budget.
func (l *Ledger) GetBudget(bidderID string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.budgets[bidderID]
	if !ok {
		return decimal.Zero, ErrUnknownBidder
	}
	return b.Remaining, nil
}

// Revenue returns total booked revenue.
func (l *Ledger) Revenue() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revenue
}

// Savings returns the total saved by second-price clearing.
func (l *Ledger) Savings() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.savings
}

// TotalLoss sums recorded potential losses, optionally by reason.
func (l *Ledger) TotalLoss(reason trace.ReasonCode) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, e := range l.losses {
		if reason == "" || e.Reason == reason {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Losses returns a snapshot of all recorded loss entries.
func (l *Ledger) Losses() []LossEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LossEntry, len(l.losses))
	copy(out, l.losses)
	return out
}
