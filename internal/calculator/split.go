// Package calculator holds the pure ledger math: expense splitting and the
// greedy minimal-transaction settlement matcher. It operates on decimals and
// member IDs only; no storage or currency conversion here.
package calculator

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/money"
)

// ErrInvalidSplit is returned for malformed split specifications: no
// participants, percentages not summing to 100, or custom amounts not
// summing to the total.
var ErrInvalidSplit = errors.New("invalid split")

// SplitSpec is the tagged union of split strategies. Exactly one of
// EqualSplit, PercentageSplit, or CustomSplit.
type SplitSpec interface {
	splitSpec()
}

// EqualSplit divides the total evenly among the listed members.
type EqualSplit struct {
	MemberIDs []int64
}

// PercentageShare assigns a member a percentage of the total (0-100).
type PercentageShare struct {
	MemberID int64
	Percent  decimal.Decimal
}

// PercentageSplit divides the total by caller-supplied percentages, which
// must sum to 100 within the negligible threshold.
type PercentageSplit struct {
	Shares []PercentageShare
}

// AmountShare assigns a member a fixed amount.
type AmountShare struct {
	MemberID int64
	Amount   decimal.Decimal
}

// CustomSplit uses caller-supplied amounts, which must sum to the total
// within the negligible threshold.
type CustomSplit struct {
	Shares []AmountShare
}

func (EqualSplit) splitSpec()      {}
func (PercentageSplit) splitSpec() {}
func (CustomSplit) splitSpec()     {}

// Share is one member's computed portion of an expense, in the expense's
// original currency.
type Share struct {
	MemberID   int64
	Amount     decimal.Decimal
	Percentage decimal.Decimal
}

// ComputeSplits produces per-member shares for an expense total.
//
// Shares are quantized to 2 decimal places; the rounding remainder
// (total - sum of quantized shares) is assigned in full to one share chosen
// uniformly from rng, so no member is systematically favored. Callers seed
// rng to make the choice reproducible.
//
// The sum of the returned amounts always equals the quantized total exactly.
func ComputeSplits(total decimal.Decimal, spec SplitSpec, rng *rand.Rand) ([]Share, error) {
	total = money.Quantize(total)

	switch s := spec.(type) {
	case EqualSplit:
		return equalSplits(total, s, rng)
	case PercentageSplit:
		return percentageSplits(total, s, rng)
	case CustomSplit:
		return customSplits(total, s, rng)
	default:
		return nil, fmt.Errorf("%w: unknown split spec %T", ErrInvalidSplit, spec)
	}
}

func equalSplits(total decimal.Decimal, spec EqualSplit, rng *rand.Rand) ([]Share, error) {
	n := len(spec.MemberIDs)
	if n == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidSplit)
	}

	count := decimal.NewFromInt(int64(n))
	per := money.Quantize(total.Div(count))
	pct := money.Quantize(decimal.NewFromInt(100).Div(count))

	shares := make([]Share, n)
	for i, id := range spec.MemberIDs {
		shares[i] = Share{MemberID: id, Amount: per, Percentage: pct}
	}

	distributeRemainder(total, shares, rng)
	return shares, nil
}

func percentageSplits(total decimal.Decimal, spec PercentageSplit, rng *rand.Rand) ([]Share, error) {
	if len(spec.Shares) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidSplit)
	}

	pctSum := decimal.Zero
	for _, sh := range spec.Shares {
		pctSum = pctSum.Add(sh.Percent)
	}
	if !money.IsNegligible(pctSum.Sub(decimal.NewFromInt(100))) {
		return nil, fmt.Errorf("%w: percentages sum to %s, want 100", ErrInvalidSplit, pctSum)
	}

	hundred := decimal.NewFromInt(100)
	shares := make([]Share, len(spec.Shares))
	for i, sh := range spec.Shares {
		amt := money.Quantize(total.Mul(sh.Percent).Div(hundred))
		shares[i] = Share{MemberID: sh.MemberID, Amount: amt, Percentage: sh.Percent}
	}

	distributeRemainder(total, shares, rng)
	return shares, nil
}

func customSplits(total decimal.Decimal, spec CustomSplit, rng *rand.Rand) ([]Share, error) {
	if len(spec.Shares) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidSplit)
	}

	sum := decimal.Zero
	shares := make([]Share, len(spec.Shares))
	for i, sh := range spec.Shares {
		amt := money.Quantize(sh.Amount)
		sum = sum.Add(amt)

		pct := decimal.Zero
		if !total.IsZero() {
			pct = money.Quantize(amt.Div(total).Mul(decimal.NewFromInt(100)))
		}
		shares[i] = Share{MemberID: sh.MemberID, Amount: amt, Percentage: pct}
	}

	if !money.IsNegligible(sum.Sub(total)) {
		return nil, fmt.Errorf("%w: amounts sum to %s, want %s", ErrInvalidSplit, sum, total)
	}

	distributeRemainder(total, shares, rng)
	return shares, nil
}

// distributeRemainder adds (total - sum of shares) to one random share so
// the shares sum to the total exactly.
func distributeRemainder(total decimal.Decimal, shares []Share, rng *rand.Rand) {
	sum := decimal.Zero
	for _, sh := range shares {
		sum = sum.Add(sh.Amount)
	}
	remainder := total.Sub(sum)
	if remainder.IsZero() {
		return
	}
	lucky := rng.Intn(len(shares))
	shares[lucky].Amount = shares[lucky].Amount.Add(remainder)
}
