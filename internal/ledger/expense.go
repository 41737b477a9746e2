package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/money"
	"github.com/velotrips/velo/internal/storage"
)

// ApplyExpenseDebts converts an expense's splits into debt rows. For each
// split where the member is not the payer, the split amount first nets
// against any reverse debt (payer owes member) in the expense currency; any
// leftover is added to the forward debt (member owes payer).
//
// Amounts stay in the expense's original currency; conversion to base
// currency happens only at balance-read time.
func (l *Ledger) ApplyExpenseDebts(ctx context.Context, expense *models.Expense, splits []models.Split) error {
	unlock := l.lockTrip(expense.TripID)
	defer unlock()

	return l.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := l.applyDebts(ctx, tx, expense, splits); err != nil {
			return err
		}
		return l.refreshBalanceCache(ctx, tx, expense.TripID)
	})
}

// ReverseExpenseDebts deletes every debt row whose source is the given
// expense. Rows the expense netted away (they belonged to other sources)
// are not restored; reversal only undoes what this expense created.
func (l *Ledger) ReverseExpenseDebts(ctx context.Context, tripID, expenseID int64) error {
	unlock := l.lockTrip(tripID)
	defer unlock()

	return l.store.WithTx(ctx, func(tx storage.Tx) error {
		deleted, err := tx.DeleteDebtsBySource(ctx, expenseID)
		if err != nil {
			return fmt.Errorf("failed to reverse expense debts: %w", err)
		}
		slog.Debug("Reversed expense debts", "trip_id", tripID, "expense_id", expenseID, "rows_deleted", deleted)
		return l.refreshBalanceCache(ctx, tx, tripID)
	})
}

// UpdateExpenseDebts recomputes an expense's entire debt contribution:
// reverse by source, then re-apply the new splits. Not a delta — the
// expense's contribution is rebuilt from scratch each time.
func (l *Ledger) UpdateExpenseDebts(ctx context.Context, expense *models.Expense, newSplits []models.Split) error {
	unlock := l.lockTrip(expense.TripID)
	defer unlock()

	return l.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.DeleteDebtsBySource(ctx, expense.ID); err != nil {
			return fmt.Errorf("failed to reverse expense debts: %w", err)
		}
		if err := l.applyDebts(ctx, tx, expense, newSplits); err != nil {
			return err
		}
		return l.refreshBalanceCache(ctx, tx, expense.TripID)
	})
}

// applyDebts runs the netting state machine for one expense inside an open
// transaction. Callers hold the trip lock.
func (l *Ledger) applyDebts(ctx context.Context, tx storage.Tx, expense *models.Expense, splits []models.Split) error {
	for _, split := range splits {
		// Self-debt is always filtered; the payer's own split exists only
		// for percentage displays.
		if split.MemberID == expense.PaidByMemberID {
			continue
		}

		amt := money.Quantize(split.Amount)
		if money.IsNegligible(amt) {
			continue
		}

		remaining, err := l.netReverse(ctx, tx, expense, split.MemberID, amt)
		if err != nil {
			return err
		}
		if money.IsNegligible(remaining) {
			continue
		}

		if err := l.addForward(ctx, tx, expense, split.MemberID, remaining); err != nil {
			return err
		}
	}
	return nil
}

// netReverse reduces any debt the payer owes the split member in the expense
// currency, returning the amount left to record as forward debt.
func (l *Ledger) netReverse(ctx context.Context, tx storage.Tx, expense *models.Expense, memberID int64, amt decimal.Decimal) (decimal.Decimal, error) {
	reverse, err := tx.GetDebt(ctx, expense.TripID, expense.PaidByMemberID, memberID, expense.Currency)
	if errors.Is(err, storage.ErrNotFound) {
		return amt, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to look up reverse debt: %w", err)
	}

	reduce := decimal.Min(amt, reverse.Amount)
	reverse.Amount = money.Quantize(reverse.Amount.Sub(reduce))

	if money.IsNegligible(reverse.Amount) {
		if err := tx.DeleteDebt(ctx, reverse.ID); err != nil {
			return decimal.Zero, fmt.Errorf("failed to delete netted debt: %w", err)
		}
	} else if err := tx.SaveDebt(ctx, reverse); err != nil {
		return decimal.Zero, fmt.Errorf("failed to reduce reverse debt: %w", err)
	}

	return money.Quantize(amt.Sub(reduce)), nil
}

// addForward consolidates the remaining amount into the member-owes-payer
// row, creating it with this expense as source when absent.
func (l *Ledger) addForward(ctx context.Context, tx storage.Tx, expense *models.Expense, memberID int64, amt decimal.Decimal) error {
	forward, err := tx.GetDebt(ctx, expense.TripID, memberID, expense.PaidByMemberID, expense.Currency)
	if errors.Is(err, storage.ErrNotFound) {
		forward = &models.MemberDebt{
			TripID:           expense.TripID,
			DebtorMemberID:   memberID,
			CreditorMemberID: expense.PaidByMemberID,
			Amount:           amt,
			Currency:         expense.Currency,
			SourceExpenseID:  expense.ID,
		}
		if err := tx.SaveDebt(ctx, forward); err != nil {
			return fmt.Errorf("failed to create debt: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up forward debt: %w", err)
	}

	forward.Amount = money.Quantize(forward.Amount.Add(amt))
	if err := tx.SaveDebt(ctx, forward); err != nil {
		return fmt.Errorf("failed to consolidate debt: %w", err)
	}
	return nil
}
