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

// MergeRequest moves part of a debt from one currency into another for a
// single debtor/creditor pair.
type MergeRequest struct {
	TripID           int64
	DebtorMemberID   int64
	CreditorMemberID int64

	// Amount to move, denominated in FromCurrency.
	Amount       decimal.Decimal
	FromCurrency string
	ToCurrency   string

	// Rate overrides the from-to conversion rate when positive.
	Rate decimal.Decimal
}

// MergeResult reports the outcome of a currency merge.
type MergeResult struct {
	// AmountMoved is what left the source debt, in FromCurrency.
	AmountMoved decimal.Decimal
	// ConvertedAmount is what arrived in the target debt, in ToCurrency.
	ConvertedAmount decimal.Decimal
	// Rate is the conversion rate that was applied.
	Rate decimal.Decimal
	// RemainingSource is the source-currency debt left after the move.
	RemainingSource decimal.Decimal
	// TargetTotal is the target-currency debt after the move.
	TargetTotal decimal.Decimal
}

// MergeDebtCurrency moves amount from the (debtor, creditor, FromCurrency)
// debt into the (debtor, creditor, ToCurrency) debt. This is a currency
// move, not a settlement: it never nets against reverse debts in the target
// currency, and the moved value loses its expense linkage.
func (l *Ledger) MergeDebtCurrency(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	if req.DebtorMemberID == req.CreditorMemberID {
		return nil, fmt.Errorf("%w: debtor and creditor must differ", ErrValidation)
	}
	if req.FromCurrency == req.ToCurrency {
		return nil, fmt.Errorf("%w: source and target currency must differ", ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: merge amount must be positive", ErrValidation)
	}
	if !money.ValidCurrency(req.FromCurrency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, req.FromCurrency)
	}
	if !money.ValidCurrency(req.ToCurrency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, req.ToCurrency)
	}

	unlock := l.lockTrip(req.TripID)
	defer unlock()

	amount := money.Quantize(req.Amount)
	var result *MergeResult
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		source, err := tx.GetDebt(ctx, req.TripID, req.DebtorMemberID, req.CreditorMemberID, req.FromCurrency)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: no %s debt between members", ErrInsufficientDebt, req.FromCurrency)
		}
		if err != nil {
			return fmt.Errorf("failed to look up source debt: %w", err)
		}
		if amount.GreaterThan(source.Amount) {
			return fmt.Errorf("%w: requested %s exceeds recorded %s %s",
				ErrInsufficientDebt, amount, source.Amount, req.FromCurrency)
		}

		rate := req.Rate
		if !rate.IsPositive() {
			rate = l.rates.Rate(ctx, req.FromCurrency, req.ToCurrency)
		}
		rate = money.QuantizeRate(rate)
		converted := money.Quantize(amount.Mul(rate))

		source.Amount = money.Quantize(source.Amount.Sub(amount))
		if money.IsNegligible(source.Amount) {
			source.Amount = decimal.Zero
			if err := tx.DeleteDebt(ctx, source.ID); err != nil {
				return fmt.Errorf("failed to delete drained source debt: %w", err)
			}
		} else if err := tx.SaveDebt(ctx, source); err != nil {
			return fmt.Errorf("failed to reduce source debt: %w", err)
		}

		target, err := tx.GetDebt(ctx, req.TripID, req.DebtorMemberID, req.CreditorMemberID, req.ToCurrency)
		if errors.Is(err, storage.ErrNotFound) {
			target = &models.MemberDebt{
				TripID:           req.TripID,
				DebtorMemberID:   req.DebtorMemberID,
				CreditorMemberID: req.CreditorMemberID,
				Amount:           converted,
				Currency:         req.ToCurrency,
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up target debt: %w", err)
		} else {
			target.Amount = money.Quantize(target.Amount.Add(converted))
		}
		if err := tx.SaveDebt(ctx, target); err != nil {
			return fmt.Errorf("failed to save target debt: %w", err)
		}

		result = &MergeResult{
			AmountMoved:     amount,
			ConvertedAmount: converted,
			Rate:            rate,
			RemainingSource: source.Amount,
			TargetTotal:     target.Amount,
		}
		return l.refreshBalanceCache(ctx, tx, req.TripID)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Merged debt currency",
		"trip_id", req.TripID,
		"debtor", req.DebtorMemberID,
		"creditor", req.CreditorMemberID,
		"moved", result.AmountMoved,
		"from", req.FromCurrency,
		"converted", result.ConvertedAmount,
		"to", req.ToCurrency,
	)
	return result, nil
}

// ConversionResult reports the outcome of a trip-wide conversion.
type ConversionResult struct {
	TargetCurrency string
	// RowsConverted counts the debt rows that were moved out of their
	// original currency.
	RowsConverted int
	// TotalConverted is the value that arrived in the target currency.
	TotalConverted decimal.Decimal
}

// ConvertAllDebts converts every debt row in the trip into the target
// currency, merging converted amounts into the pair's existing target row.
// Rates come from the overrides map when present, the live provider
// otherwise. The whole conversion is one transaction: a failure mid-way
// leaves no half-converted state.
//
// Converted rows lose their expense linkage; a later edit of an expense
// originally denominated in a converted-away currency re-derives its debt in
// that original currency alongside the converted total.
func (l *Ledger) ConvertAllDebts(ctx context.Context, tripID int64, targetCurrency string, overrides map[string]decimal.Decimal) (*ConversionResult, error) {
	if !money.ValidCurrency(targetCurrency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, targetCurrency)
	}

	unlock := l.lockTrip(tripID)
	defer unlock()

	result := &ConversionResult{TargetCurrency: targetCurrency, TotalConverted: decimal.Zero}
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetTrip(ctx, tripID); err != nil {
			return fmt.Errorf("failed to load trip: %w", err)
		}
		debts, err := tx.ListDebts(ctx, tripID)
		if err != nil {
			return fmt.Errorf("failed to list debts: %w", err)
		}

		type pair struct{ debtor, creditor int64 }
		converted := make(map[pair]decimal.Decimal)
		for _, debt := range debts {
			if debt.Currency == targetCurrency {
				continue
			}

			rate, ok := overrides[debt.Currency]
			if !ok || !rate.IsPositive() {
				rate = l.rates.Rate(ctx, debt.Currency, targetCurrency)
			}
			amount := money.Quantize(debt.Amount.Mul(money.QuantizeRate(rate)))

			key := pair{debt.DebtorMemberID, debt.CreditorMemberID}
			converted[key] = converted[key].Add(amount)
			result.RowsConverted++
			result.TotalConverted = result.TotalConverted.Add(amount)

			if err := tx.DeleteDebt(ctx, debt.ID); err != nil {
				return fmt.Errorf("failed to delete converted debt: %w", err)
			}
		}

		for key, amount := range converted {
			target, err := tx.GetDebt(ctx, tripID, key.debtor, key.creditor, targetCurrency)
			if errors.Is(err, storage.ErrNotFound) {
				target = &models.MemberDebt{
					TripID:           tripID,
					DebtorMemberID:   key.debtor,
					CreditorMemberID: key.creditor,
					Amount:           amount,
					Currency:         targetCurrency,
				}
			} else if err != nil {
				return fmt.Errorf("failed to look up target debt: %w", err)
			} else {
				target.Amount = money.Quantize(target.Amount.Add(amount))
			}
			if err := tx.SaveDebt(ctx, target); err != nil {
				return fmt.Errorf("failed to save converted debt: %w", err)
			}
		}

		// Converting A→B and B→A debts from different currencies into the
		// same target can leave both directions live; net them before the
		// transaction ends so the one-direction-per-pair invariant holds.
		if err := l.netPairs(ctx, tx, tripID, targetCurrency); err != nil {
			return err
		}

		return l.refreshBalanceCache(ctx, tx, tripID)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Converted all debts",
		"trip_id", tripID,
		"target", targetCurrency,
		"rows_converted", result.RowsConverted,
		"total", result.TotalConverted,
	)
	return result, nil
}

// netPairs nets opposing debts in one currency across the whole trip.
func (l *Ledger) netPairs(ctx context.Context, tx storage.Tx, tripID int64, currency string) error {
	debts, err := tx.ListDebts(ctx, tripID)
	if err != nil {
		return fmt.Errorf("failed to list debts: %w", err)
	}

	type pair struct{ debtor, creditor int64 }
	byKey := make(map[pair]*models.MemberDebt)
	for _, debt := range debts {
		if debt.Currency == currency {
			byKey[pair{debt.DebtorMemberID, debt.CreditorMemberID}] = debt
		}
	}

	for key, forward := range byKey {
		reverse, ok := byKey[pair{key.creditor, key.debtor}]
		if !ok || forward.ID < reverse.ID {
			// Process each opposing pair once, from the newer row.
			continue
		}

		reduce := decimal.Min(forward.Amount, reverse.Amount)
		forward.Amount = money.Quantize(forward.Amount.Sub(reduce))
		reverse.Amount = money.Quantize(reverse.Amount.Sub(reduce))

		for _, debt := range []*models.MemberDebt{forward, reverse} {
			if money.IsNegligible(debt.Amount) {
				if err := tx.DeleteDebt(ctx, debt.ID); err != nil {
					return fmt.Errorf("failed to delete netted debt: %w", err)
				}
			} else if err := tx.SaveDebt(ctx, debt); err != nil {
				return fmt.Errorf("failed to save netted debt: %w", err)
			}
		}
	}
	return nil
}
