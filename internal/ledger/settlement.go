package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/money"
	"github.com/velotrips/velo/internal/storage"
)

// SettlementStatus describes how a settlement netted against existing debt.
type SettlementStatus string

const (
	// StatusSettled: the payment cleared the existing debt exactly.
	StatusSettled SettlementStatus = "settled"
	// StatusPartial: the payment covered part of the existing debt.
	StatusPartial SettlementStatus = "partial"
	// StatusOverpaid: the payment exceeded the existing debt; the excess is
	// recorded as debt from the creditor back to the payer.
	StatusOverpaid SettlementStatus = "overpaid"
	// StatusRecorded: there was no existing debt in the settle currency; the
	// full payment is recorded as debt from the creditor to the payer.
	StatusRecorded SettlementStatus = "recorded"
)

// SettlementRequest records a payment from a debtor to a creditor.
//
// The payment is made in Currency. When SettleCurrency differs, the payment
// is converted to the settle currency first (using Rate when positive, the
// live provider otherwise) and all netting happens in the settle currency.
type SettlementRequest struct {
	TripID           int64
	DebtorMemberID   int64
	CreditorMemberID int64

	Amount   decimal.Decimal
	Currency string

	// SettleCurrency is the currency the debt is settled in. Empty means
	// the payment currency.
	SettleCurrency string

	// Rate overrides the payment-to-settle conversion rate when positive.
	Rate decimal.Decimal

	Description string
	CreatedBy   string
}

// SettlementResult is the discriminated outcome of a settlement.
type SettlementResult struct {
	Status    SettlementStatus
	ExpenseID int64

	// PaidAmount is the payment in the payment currency.
	PaidAmount decimal.Decimal

	// SettledAmount is the payment expressed in SettleCurrency.
	SettledAmount  decimal.Decimal
	SettleCurrency string

	// RemainingDebt is the debtor-to-creditor debt left in SettleCurrency.
	RemainingDebt decimal.Decimal

	// OverpaidAmount is the creditor-to-debtor debt the payment created, for
	// the overpaid and recorded statuses.
	OverpaidAmount decimal.Decimal
}

// RecordSettlement models a payment as a synthetic settlement expense paid
// by the debtor with a single split for the creditor, then pushes it through
// the same netting path as a normal expense. The settlement shows up in the
// trip's expense list and can be edited or deleted like any expense.
func (l *Ledger) RecordSettlement(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	if req.DebtorMemberID == req.CreditorMemberID {
		return nil, fmt.Errorf("%w: cannot settle with yourself", ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: settlement amount must be positive", ErrValidation)
	}
	if !money.ValidCurrency(req.Currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, req.Currency)
	}
	settleCurrency := req.SettleCurrency
	if settleCurrency == "" {
		settleCurrency = req.Currency
	}
	if !money.ValidCurrency(settleCurrency) {
		return nil, fmt.Errorf("%w: unsupported settle currency %q", ErrValidation, settleCurrency)
	}

	unlock := l.lockTrip(req.TripID)
	defer unlock()

	var result *SettlementResult
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		trip, err := tx.GetTrip(ctx, req.TripID)
		if err != nil {
			return fmt.Errorf("failed to load trip: %w", err)
		}
		if err := l.requireMember(ctx, tx, req.TripID, req.DebtorMemberID); err != nil {
			return err
		}
		if err := l.requireMember(ctx, tx, req.TripID, req.CreditorMemberID); err != nil {
			return err
		}

		// Convert to the settle currency before any netting.
		paid := money.Quantize(req.Amount)
		settled := paid
		if settleCurrency != req.Currency {
			rate := req.Rate
			if !rate.IsPositive() {
				rate = l.rates.Rate(ctx, req.Currency, settleCurrency)
			}
			settled = money.Quantize(paid.Mul(money.QuantizeRate(rate)))
		}

		existing := decimal.Zero
		if debt, err := tx.GetDebt(ctx, req.TripID, req.DebtorMemberID, req.CreditorMemberID, settleCurrency); err == nil {
			existing = debt.Amount
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to look up debt: %w", err)
		}

		description := req.Description
		if description == "" {
			description = "Settlement"
		}
		expense := &models.Expense{
			TripID:             req.TripID,
			Description:        description,
			Amount:             settled,
			Currency:           settleCurrency,
			ExchangeRateToBase: money.QuantizeRate(l.rates.Rate(ctx, settleCurrency, trip.BaseCurrency)),
			PaidByMemberID:     req.DebtorMemberID,
			Type:               models.ExpenseTypeSettlement,
			ExpenseDate:        time.Now().UTC(),
			CreatedBy:          req.CreatedBy,
		}
		if err := tx.CreateExpense(ctx, expense); err != nil {
			return fmt.Errorf("failed to create settlement expense: %w", err)
		}

		splits := []models.Split{{
			MemberID:   req.CreditorMemberID,
			Amount:     settled,
			Percentage: decimal.NewFromInt(100),
		}}
		if err := tx.ReplaceSplits(ctx, expense.ID, splits); err != nil {
			return fmt.Errorf("failed to persist settlement split: %w", err)
		}

		if err := l.applyDebts(ctx, tx, expense, splits); err != nil {
			return err
		}

		result = &SettlementResult{
			Status:         settlementStatus(existing, settled),
			ExpenseID:      expense.ID,
			PaidAmount:     paid,
			SettledAmount:  settled,
			SettleCurrency: settleCurrency,
		}
		if debt, err := tx.GetDebt(ctx, req.TripID, req.DebtorMemberID, req.CreditorMemberID, settleCurrency); err == nil {
			result.RemainingDebt = debt.Amount
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to read remaining debt: %w", err)
		}
		if debt, err := tx.GetDebt(ctx, req.TripID, req.CreditorMemberID, req.DebtorMemberID, settleCurrency); err == nil {
			result.OverpaidAmount = debt.Amount
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to read overpaid debt: %w", err)
		}

		return l.refreshBalanceCache(ctx, tx, req.TripID)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Recorded settlement",
		"trip_id", req.TripID,
		"debtor", req.DebtorMemberID,
		"creditor", req.CreditorMemberID,
		"amount", result.SettledAmount,
		"currency", result.SettleCurrency,
		"status", result.Status,
	)
	return result, nil
}

// settlementStatus classifies the netting outcome from the debt that existed
// before the payment and the settle-currency amount paid.
func settlementStatus(existing, settled decimal.Decimal) SettlementStatus {
	if money.IsNegligible(existing) {
		return StatusRecorded
	}
	diff := settled.Sub(existing)
	switch {
	case money.IsNegligible(diff):
		return StatusSettled
	case diff.IsNegative():
		return StatusPartial
	default:
		return StatusOverpaid
	}
}

// requireMember verifies a member exists and belongs to the trip.
func (l *Ledger) requireMember(ctx context.Context, tx storage.Tx, tripID, memberID int64) error {
	member, err := tx.GetMember(ctx, memberID)
	if err != nil {
		return fmt.Errorf("failed to load member %d: %w", memberID, err)
	}
	if member.TripID != tripID {
		return fmt.Errorf("member %d: %w", memberID, storage.ErrNotFound)
	}
	return nil
}
