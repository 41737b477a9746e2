package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/calculator"
	"github.com/velotrips/velo/internal/exchange"
	"github.com/velotrips/velo/internal/ledger"
	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/money"
	"github.com/velotrips/velo/internal/storage"
)

// ExpenseService handles expense entry and drives the ledger. The exchange
// rate to the trip base currency is captured once at creation time and only
// recaptured when the expense currency changes.
type ExpenseService struct {
	store  storage.Store
	ledger *ledger.Ledger
	rates  exchange.Provider

	// rng picks which split absorbs the rounding remainder. Seeded in tests
	// for reproducibility; rand.Rand is not concurrency-safe, hence the
	// mutex.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewExpenseService creates an expense service. A nil rng gets a time-seeded
// one.
func NewExpenseService(store storage.Store, ldg *ledger.Ledger, rates exchange.Provider, rng *rand.Rand) *ExpenseService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ExpenseService{store: store, ledger: ldg, rates: rates, rng: rng}
}

func (s *ExpenseService) computeSplits(total decimal.Decimal, spec calculator.SplitSpec) ([]calculator.Share, error) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return calculator.ComputeSplits(total, spec, s.rng)
}

// CreateExpenseRequest carries a new expense plus its split specification.
type CreateExpenseRequest struct {
	TripID         int64
	Description    string
	Amount         decimal.Decimal
	Currency       string
	PaidByMemberID int64
	Split          calculator.SplitSpec

	ExpenseDate time.Time
	Category    string
	Notes       string
	ReceiptURL  string
	CreatedBy   string
}

// CreateExpense validates the request, computes splits, persists the expense
// and applies its debts to the ledger.
func (s *ExpenseService) CreateExpense(ctx context.Context, req CreateExpenseRequest) (*models.Expense, []models.Split, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: expense amount must be positive", ErrInvalidInput)
	}
	if !money.ValidCurrency(req.Currency) {
		return nil, nil, fmt.Errorf("%w: unsupported currency %q", ErrInvalidInput, req.Currency)
	}

	trip, err := s.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, nil, err
	}

	shares, err := s.computeSplits(req.Amount, req.Split)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	splits := sharesToSplits(shares)
	if err := s.validateMembers(ctx, req.TripID, req.PaidByMemberID, splits); err != nil {
		return nil, nil, err
	}

	expenseDate := req.ExpenseDate
	if expenseDate.IsZero() {
		expenseDate = time.Now().UTC()
	}
	expense := &models.Expense{
		TripID:             req.TripID,
		Description:        req.Description,
		Amount:             money.Quantize(req.Amount),
		Currency:           req.Currency,
		ExchangeRateToBase: money.QuantizeRate(s.rates.Rate(ctx, req.Currency, trip.BaseCurrency)),
		PaidByMemberID:     req.PaidByMemberID,
		Type:               models.ExpenseTypeExpense,
		ExpenseDate:        expenseDate,
		Category:           req.Category,
		Notes:              req.Notes,
		ReceiptURL:         req.ReceiptURL,
		CreatedBy:          req.CreatedBy,
	}

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateExpense(ctx, expense); err != nil {
			return fmt.Errorf("failed to create expense: %w", err)
		}
		if err := tx.ReplaceSplits(ctx, expense.ID, splits); err != nil {
			return fmt.Errorf("failed to persist splits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.ledger.ApplyExpenseDebts(ctx, expense, splits); err != nil {
		// The expense row exists but its debts don't; remove it rather than
		// leave the ledger out of sync with the expense list.
		if delErr := s.store.DeleteExpense(ctx, expense.ID); delErr != nil {
			slog.Error("Failed to roll back expense after ledger error", "expense_id", expense.ID, "error", delErr)
		}
		return nil, nil, err
	}

	if err := s.adjustTripTotals(ctx, req.TripID); err != nil {
		return nil, nil, err
	}

	slog.Info("Expense created", "trip_id", req.TripID, "expense_id", expense.ID,
		"amount", expense.Amount, "currency", expense.Currency)
	return expense, splits, nil
}

// UpdateExpenseRequest carries the full new state for an expense; the debt
// contribution is recomputed from scratch, never patched.
type UpdateExpenseRequest struct {
	ExpenseID      int64
	Description    string
	Amount         decimal.Decimal
	Currency       string
	PaidByMemberID int64
	Split          calculator.SplitSpec

	ExpenseDate time.Time
	Category    string
	Notes       string
	ReceiptURL  string
}

// UpdateExpense rewrites an expense and recomputes its debts. Settlements
// are edited through the same path: their single-split shape survives as a
// custom split for the creditor.
func (s *ExpenseService) UpdateExpense(ctx context.Context, req UpdateExpenseRequest) (*models.Expense, []models.Split, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: expense amount must be positive", ErrInvalidInput)
	}
	if !money.ValidCurrency(req.Currency) {
		return nil, nil, fmt.Errorf("%w: unsupported currency %q", ErrInvalidInput, req.Currency)
	}

	expense, err := s.store.GetExpense(ctx, req.ExpenseID)
	if err != nil {
		return nil, nil, err
	}
	trip, err := s.store.GetTrip(ctx, expense.TripID)
	if err != nil {
		return nil, nil, err
	}

	shares, err := s.computeSplits(req.Amount, req.Split)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	splits := sharesToSplits(shares)
	if err := s.validateMembers(ctx, expense.TripID, req.PaidByMemberID, splits); err != nil {
		return nil, nil, err
	}

	// The captured rate is immutable unless the currency changes.
	if req.Currency != expense.Currency {
		expense.ExchangeRateToBase = money.QuantizeRate(s.rates.Rate(ctx, req.Currency, trip.BaseCurrency))
	}
	expense.Description = req.Description
	expense.Amount = money.Quantize(req.Amount)
	expense.Currency = req.Currency
	expense.PaidByMemberID = req.PaidByMemberID
	if !req.ExpenseDate.IsZero() {
		expense.ExpenseDate = req.ExpenseDate
	}
	expense.Category = req.Category
	expense.Notes = req.Notes
	expense.ReceiptURL = req.ReceiptURL

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.UpdateExpense(ctx, expense); err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		if err := tx.ReplaceSplits(ctx, expense.ID, splits); err != nil {
			return fmt.Errorf("failed to persist splits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.ledger.UpdateExpenseDebts(ctx, expense, splits); err != nil {
		return nil, nil, err
	}
	if err := s.adjustTripTotals(ctx, expense.TripID); err != nil {
		return nil, nil, err
	}

	slog.Info("Expense updated", "expense_id", expense.ID, "currency", expense.Currency)
	return expense, splits, nil
}

// DeleteExpense reverses an expense's debts and removes it.
func (s *ExpenseService) DeleteExpense(ctx context.Context, expenseID int64) error {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}

	if err := s.ledger.ReverseExpenseDebts(ctx, expense.TripID, expenseID); err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, expenseID); err != nil {
		return err
	}
	if err := s.adjustTripTotals(ctx, expense.TripID); err != nil {
		return err
	}

	slog.Info("Expense deleted", "trip_id", expense.TripID, "expense_id", expenseID)
	return nil
}

// GetExpense returns an expense with its splits.
func (s *ExpenseService) GetExpense(ctx context.Context, expenseID int64) (*models.Expense, []models.Split, error) {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, nil, err
	}
	splits, err := s.store.ListSplits(ctx, expenseID)
	if err != nil {
		return nil, nil, err
	}
	return expense, splits, nil
}

// ListExpenses returns all expenses for a trip, settlements included.
func (s *ExpenseService) ListExpenses(ctx context.Context, tripID int64) ([]*models.Expense, error) {
	if _, err := s.store.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, tripID)
}

// validateMembers checks that the payer and every split member belong to the
// trip.
func (s *ExpenseService) validateMembers(ctx context.Context, tripID, payerID int64, splits []models.Split) error {
	members, err := s.store.ListMembers(ctx, tripID)
	if err != nil {
		return err
	}
	known := make(map[int64]bool, len(members))
	for _, m := range members {
		known[m.ID] = true
	}

	if !known[payerID] {
		return fmt.Errorf("%w: payer %d is not a trip member", ErrInvalidInput, payerID)
	}
	for _, sp := range splits {
		if !known[sp.MemberID] {
			return fmt.Errorf("%w: split member %d is not a trip member", ErrInvalidInput, sp.MemberID)
		}
	}
	return nil
}

// adjustTripTotals recomputes the trip's cached spend total and expense
// count from the expense list. Settlements are payments, not spending, so
// they are excluded.
func (s *ExpenseService) adjustTripTotals(ctx context.Context, tripID int64) error {
	return s.store.WithTx(ctx, func(tx storage.Tx) error {
		trip, err := tx.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		expenses, err := tx.ListExpenses(ctx, tripID)
		if err != nil {
			return err
		}

		total := decimal.Zero
		count := 0
		for _, e := range expenses {
			if e.Type != models.ExpenseTypeExpense {
				continue
			}
			total = total.Add(money.Quantize(e.Amount.Mul(e.ExchangeRateToBase)))
			count++
		}

		trip.TotalSpent = total
		trip.ExpenseCount = count
		return tx.UpdateTrip(ctx, trip)
	})
}

func sharesToSplits(shares []calculator.Share) []models.Split {
	splits := make([]models.Split, len(shares))
	for i, sh := range shares {
		splits[i] = models.Split{
			MemberID:   sh.MemberID,
			Amount:     sh.Amount,
			Percentage: sh.Percentage,
		}
	}
	return splits
}
