// Package ledger maintains the per-trip multi-currency debt graph.
//
// The ledger's state is the set of MemberDebt rows for a trip, keyed by
// (debtor, creditor, currency). Every mutation runs inside one storage
// transaction under a per-trip lock, so the single-row-per-key invariant
// holds under concurrent requests. Netting is done at write time: a debt and
// its reverse in the same currency never coexist past the end of a mutation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/exchange"
	"github.com/velotrips/velo/internal/money"
	"github.com/velotrips/velo/internal/storage"
)

var (
	// ErrValidation marks bad ledger requests: self-merge, self-settlement,
	// same-currency merge, non-positive or unsupported amounts/currencies.
	ErrValidation = errors.New("invalid ledger request")

	// ErrInsufficientDebt is returned when a merge asks to move more than
	// the recorded source-currency debt.
	ErrInsufficientDebt = errors.New("insufficient debt")
)

// Ledger applies expense, settlement and conversion events to the debt
// graph. All exported methods are safe for concurrent use; mutations on the
// same trip are serialized.
type Ledger struct {
	store storage.Store
	rates exchange.Provider

	mu        sync.Mutex
	tripLocks map[int64]*sync.Mutex
}

// New creates a ledger over the given store and rate provider.
func New(store storage.Store, rates exchange.Provider) *Ledger {
	return &Ledger{
		store:     store,
		rates:     rates,
		tripLocks: make(map[int64]*sync.Mutex),
	}
}

// lockTrip serializes mutations per trip. Returns the unlock func.
func (l *Ledger) lockTrip(tripID int64) func() {
	l.mu.Lock()
	lock, ok := l.tripLocks[tripID]
	if !ok {
		lock = &sync.Mutex{}
		l.tripLocks[tripID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// refreshBalanceCache recomputes the denormalized per-member balance fields
// from a full debt scan, inside the same transaction as the mutation that
// changed them. The debt table stays authoritative; these fields are a read
// cache only.
func (l *Ledger) refreshBalanceCache(ctx context.Context, tx storage.Tx, tripID int64) error {
	trip, err := tx.GetTrip(ctx, tripID)
	if err != nil {
		return fmt.Errorf("failed to load trip: %w", err)
	}
	members, err := tx.ListMembers(ctx, tripID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	debts, err := tx.ListDebts(ctx, tripID)
	if err != nil {
		return fmt.Errorf("failed to list debts: %w", err)
	}

	owed := make(map[int64]decimal.Decimal, len(members))
	owedTo := make(map[int64]decimal.Decimal, len(members))
	for _, debt := range debts {
		base := money.Quantize(debt.Amount.Mul(l.rates.Rate(ctx, debt.Currency, trip.BaseCurrency)))
		owed[debt.DebtorMemberID] = owed[debt.DebtorMemberID].Add(base)
		owedTo[debt.CreditorMemberID] = owedTo[debt.CreditorMemberID].Add(base)
	}

	for _, member := range members {
		newOwed := owed[member.ID]
		newOwedTo := owedTo[member.ID]
		if member.TotalOwedBase.Equal(newOwed) && member.TotalOwedToBase.Equal(newOwedTo) {
			continue
		}
		member.TotalOwedBase = newOwed
		member.TotalOwedToBase = newOwedTo
		if err := tx.UpdateMember(ctx, member); err != nil {
			return fmt.Errorf("failed to update member balance cache: %w", err)
		}
	}
	return nil
}
