package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/calculator"
	"github.com/velotrips/velo/internal/money"
)

// BalanceOptions controls the balance read path.
type BalanceOptions struct {
	// Simplify collapses the debt graph into a minimal base-currency
	// settlement plan.
	Simplify bool
}

// PairDebt is one directional debt between two members in one currency.
type PairDebt struct {
	DebtorMemberID   int64
	CreditorMemberID int64
	Amount           decimal.Decimal
	Currency         string
}

// MemberBalance is one member's aggregated position.
type MemberBalance struct {
	MemberID int64

	// OwedByCurrency is what the member owes others, per currency.
	OwedByCurrency map[string]decimal.Decimal
	// OwedToByCurrency is what others owe the member, per currency.
	OwedToByCurrency map[string]decimal.Decimal

	// Totals in the trip base currency; NetBase = owed-to minus owed.
	TotalOwedBase   decimal.Decimal
	TotalOwedToBase decimal.Decimal
	NetBase         decimal.Decimal
}

// Balances is the full balance snapshot for a trip.
type Balances struct {
	TripID       int64
	BaseCurrency string

	Members []MemberBalance

	// Debts is the raw per-pair per-currency list after defensive netting.
	Debts []PairDebt

	// Settlements is the minimal settlement plan; nil unless simplified.
	Settlements []calculator.Transfer
}

// ComputeBalances aggregates the trip's debt graph into per-member balances
// in the trip base currency. Opposing debts in the same currency are netted
// defensively on the read path even though the write path should never leave
// both directions live.
func (l *Ledger) ComputeBalances(ctx context.Context, tripID int64, opts BalanceOptions) (*Balances, error) {
	trip, err := l.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip: %w", err)
	}
	members, err := l.store.ListMembers(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	debts, err := l.store.ListDebts(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}

	// Defensive netting: sum signed amounts per unordered pair/currency and
	// emit a single directional debt when the net is non-negligible.
	type pairKey struct {
		lo, hi   int64
		currency string
	}
	netted := make(map[pairKey]decimal.Decimal)
	for _, debt := range debts {
		key := pairKey{lo: debt.DebtorMemberID, hi: debt.CreditorMemberID, currency: debt.Currency}
		sign := decimal.NewFromInt(1) // positive: lo owes hi
		if key.lo > key.hi {
			key.lo, key.hi = key.hi, key.lo
			sign = sign.Neg()
		}
		netted[key] = netted[key].Add(debt.Amount.Mul(sign))
	}

	var pairDebts []PairDebt
	for key, net := range netted {
		if money.IsNegligible(net) {
			continue
		}
		pd := PairDebt{
			DebtorMemberID:   key.lo,
			CreditorMemberID: key.hi,
			Amount:           money.Quantize(net),
			Currency:         key.currency,
		}
		if net.IsNegative() {
			pd.DebtorMemberID, pd.CreditorMemberID = key.hi, key.lo
			pd.Amount = money.Quantize(net.Neg())
		}
		pairDebts = append(pairDebts, pd)
	}
	sort.Slice(pairDebts, func(i, j int) bool {
		a, b := pairDebts[i], pairDebts[j]
		if a.DebtorMemberID != b.DebtorMemberID {
			return a.DebtorMemberID < b.DebtorMemberID
		}
		if a.CreditorMemberID != b.CreditorMemberID {
			return a.CreditorMemberID < b.CreditorMemberID
		}
		return a.Currency < b.Currency
	})

	// Convert each currency to base once; rates are cached/fallback so this
	// never fails.
	rateToBase := make(map[string]decimal.Decimal)
	baseAmount := func(amount decimal.Decimal, currency string) decimal.Decimal {
		rate, ok := rateToBase[currency]
		if !ok {
			rate = l.rates.Rate(ctx, currency, trip.BaseCurrency)
			rateToBase[currency] = rate
		}
		return money.Quantize(amount.Mul(rate))
	}

	balanceByMember := make(map[int64]*MemberBalance, len(members))
	result := &Balances{TripID: tripID, BaseCurrency: trip.BaseCurrency}
	for _, member := range members {
		mb := &MemberBalance{
			MemberID:         member.ID,
			OwedByCurrency:   make(map[string]decimal.Decimal),
			OwedToByCurrency: make(map[string]decimal.Decimal),
		}
		balanceByMember[member.ID] = mb
	}

	for _, pd := range pairDebts {
		if debtor, ok := balanceByMember[pd.DebtorMemberID]; ok {
			debtor.OwedByCurrency[pd.Currency] = debtor.OwedByCurrency[pd.Currency].Add(pd.Amount)
			debtor.TotalOwedBase = debtor.TotalOwedBase.Add(baseAmount(pd.Amount, pd.Currency))
		}
		if creditor, ok := balanceByMember[pd.CreditorMemberID]; ok {
			creditor.OwedToByCurrency[pd.Currency] = creditor.OwedToByCurrency[pd.Currency].Add(pd.Amount)
			creditor.TotalOwedToBase = creditor.TotalOwedToBase.Add(baseAmount(pd.Amount, pd.Currency))
		}
	}

	for _, member := range members {
		mb := balanceByMember[member.ID]
		mb.NetBase = mb.TotalOwedToBase.Sub(mb.TotalOwedBase)
		result.Members = append(result.Members, *mb)
	}
	result.Debts = pairDebts

	if opts.Simplify {
		nets := make([]calculator.NetBalance, 0, len(result.Members))
		for _, mb := range result.Members {
			nets = append(nets, calculator.NetBalance{MemberID: mb.MemberID, Amount: mb.NetBase})
		}
		result.Settlements = calculator.SettlementPlan(nets)
	}

	return result, nil
}
