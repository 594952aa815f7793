// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/trace"
)

func TestBudgetLifecycle(t *testing.T) {
	require := require.New(t)
	l := New(log.NoOp())

	l.SetBudget("DSP_1", 10.0)

	remaining, err := l.GetBudget("DSP_1")
	require.NoError(err)
	require.True(remaining.Equal(decimal.NewFromFloat(10.0)))

	_, err = l.GetBudget("DSP_9")
	require.ErrorIs(err, ErrUnknownBidder)
}

func TestCanAfford(t *testing.T) {
	require := require.New(t)
	l := New(log.NoOp())
	l.SetBudget("DSP_1", 1.0)

	require.True(l.CanAfford("DSP_1", 1.0))
	require.False(l.CanAfford("DSP_1", 1.01))

	// Unfunded bidders are unconstrained.
	require.True(l.CanAfford("DSP_9", 1e9))
}

func TestChargeBooksRevenueAndSavings(t *testing.T) {
	require := require.New(t)
	l := New(log.NoOp())
	l.SetBudget("DSP_1", 1.0)

	require.NoError(l.Charge("DSP_1", 0.25, 0.05))
	require.NoError(l.Charge("DSP_1", 0.30, 0.00))

	remaining, err := l.GetBudget("DSP_1")
	require.NoError(err)
	require.True(remaining.Equal(decimal.NewFromFloat(0.45)))
	require.True(l.Revenue().Equal(decimal.NewFromFloat(0.55)))
	require.True(l.Savings().Equal(decimal.NewFromFloat(0.05)))
}

func TestChargeInsufficientBudget(t *testing.T) {
	require := require.New(t)
	l := New(log.NoOp())
	l.SetBudget("DSP_1", 0.10)

	err := l.Charge("DSP_1", 0.25, 0)
	require.ErrorIs(err, ErrInsufficientBudget)

	// A failed charge books nothing.
	require.True(l.Revenue().IsZero())
	remaining, _ := l.GetBudget("DSP_1")
	require.True(remaining.Equal(decimal.NewFromFloat(0.10)))
}

func TestChargeUnfundedBidderStillBooksRevenue(t *testing.T) {
	require := require.New(t)
	l := New(log.NoOp())

	require.NoError(l.Charge("DSP_1", 0.40, 0.10))
	require.True(l.Revenue().Equal(decimal.NewFromFloat(0.40)))
	require.True(l.Savings().Equal(decimal.NewFromFloat(0.10)))
}

func TestLossAccounting(t *testing.T) {
	require := require.New(t)
	l := New(log.NoOp())

	l.RecordLoss("req-1", trace.ReasonLatencyTimeout, 0.5)
	l.RecordLoss("req-2", trace.ReasonLatencyTimeout, 2.0)
	l.RecordLoss("req-3", trace.ReasonCreativeMismatch, 0.5)

	require.True(l.TotalLoss(trace.ReasonLatencyTimeout).Equal(decimal.NewFromFloat(2.5)))
	require.True(l.TotalLoss(trace.ReasonCreativeMismatch).Equal(decimal.NewFromFloat(0.5)))
	require.True(l.TotalLoss("").Equal(decimal.NewFromFloat(3.0)))
	require.Len(l.Losses(), 3)
}
