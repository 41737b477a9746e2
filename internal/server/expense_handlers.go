package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/calculator"
	"github.com/velotrips/velo/internal/middleware"
	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/service"
)

type splitPayload struct {
	// Type is one of "equal", "percentage", "custom".
	Type      string  `json:"type"`
	MemberIDs []int64 `json:"member_ids,omitempty"`
	Shares    []struct {
		MemberID int64           `json:"member_id"`
		Percent  decimal.Decimal `json:"percent,omitempty"`
		Amount   decimal.Decimal `json:"amount,omitempty"`
	} `json:"shares,omitempty"`
}

func (p splitPayload) toSpec() (calculator.SplitSpec, error) {
	switch p.Type {
	case "equal":
		return calculator.EqualSplit{MemberIDs: p.MemberIDs}, nil
	case "percentage":
		shares := make([]calculator.PercentageShare, len(p.Shares))
		for i, sh := range p.Shares {
			shares[i] = calculator.PercentageShare{MemberID: sh.MemberID, Percent: sh.Percent}
		}
		return calculator.PercentageSplit{Shares: shares}, nil
	case "custom":
		shares := make([]calculator.AmountShare, len(p.Shares))
		for i, sh := range p.Shares {
			shares[i] = calculator.AmountShare{MemberID: sh.MemberID, Amount: sh.Amount}
		}
		return calculator.CustomSplit{Shares: shares}, nil
	default:
		return nil, fmt.Errorf("%w: unknown split type %q", service.ErrInvalidInput, p.Type)
	}
}

type splitView struct {
	MemberID   int64           `json:"member_id"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

type expenseView struct {
	ID                 int64           `json:"id"`
	TripID             int64           `json:"trip_id"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	ExchangeRateToBase decimal.Decimal `json:"exchange_rate_to_base"`
	PaidByMemberID     int64           `json:"paid_by_member_id"`
	Type               string          `json:"type"`
	ExpenseDate        time.Time       `json:"expense_date"`
	Category           string          `json:"category,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	ReceiptURL         string          `json:"receipt_url,omitempty"`
	CreatedBy          string          `json:"created_by"`
	Splits             []splitView     `json:"splits,omitempty"`
}

func toExpenseView(e *models.Expense, splits []models.Split) expenseView {
	view := expenseView{
		ID:                 e.ID,
		TripID:             e.TripID,
		Description:        e.Description,
		Amount:             e.Amount,
		Currency:           e.Currency,
		ExchangeRateToBase: e.ExchangeRateToBase,
		PaidByMemberID:     e.PaidByMemberID,
		Type:               string(e.Type),
		ExpenseDate:        e.ExpenseDate,
		Category:           e.Category,
		Notes:              e.Notes,
		ReceiptURL:         e.ReceiptURL,
		CreatedBy:          e.CreatedBy,
	}
	for _, sp := range splits {
		view.Splits = append(view.Splits, splitView{
			MemberID:   sp.MemberID,
			Amount:     sp.Amount,
			Percentage: sp.Percentage,
		})
	}
	return view
}

type expenseBody struct {
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaidByMemberID int64           `json:"paid_by_member_id"`
	Split          splitPayload    `json:"split"`
	ExpenseDate    time.Time       `json:"expense_date"`
	Category       string          `json:"category"`
	Notes          string          `json:"notes"`
	ReceiptURL     string          `json:"receipt_url"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	var req expenseBody
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	spec, err := req.Split.toSpec()
	if err != nil {
		respondError(w, r, err)
		return
	}

	expense, splits, err := s.expenses.CreateExpense(r.Context(), service.CreateExpenseRequest{
		TripID:         tripID,
		Description:    req.Description,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaidByMemberID: req.PaidByMemberID,
		Split:          spec,
		ExpenseDate:    req.ExpenseDate,
		Category:       req.Category,
		Notes:          req.Notes,
		ReceiptURL:     req.ReceiptURL,
		CreatedBy:      middleware.GetUserID(r.Context()),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toExpenseView(expense, splits))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	expenses, err := s.expenses.ListExpenses(r.Context(), tripID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	views := make([]expenseView, len(expenses))
	for i, e := range expenses {
		views[i] = toExpenseView(e, nil)
	}
	respondJSON(w, http.StatusOK, struct {
		Expenses []expenseView `json:"expenses"`
	}{views})
}

// expenseTripAccess loads the expense and checks membership of its trip.
func (s *Server) expenseTripAccess(w http.ResponseWriter, r *http.Request) (int64, bool) {
	expenseID, err := urlID(r, "expenseID")
	if err != nil {
		respondError(w, r, err)
		return 0, false
	}
	expense, _, err := s.expenses.GetExpense(r.Context(), expenseID)
	if err != nil {
		respondError(w, r, err)
		return 0, false
	}
	if !s.requireTripAccess(w, r, expense.TripID) {
		return 0, false
	}
	return expenseID, true
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := s.expenseTripAccess(w, r)
	if !ok {
		return
	}
	expense, splits, err := s.expenses.GetExpense(r.Context(), expenseID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseView(expense, splits))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := s.expenseTripAccess(w, r)
	if !ok {
		return
	}

	var req expenseBody
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	spec, err := req.Split.toSpec()
	if err != nil {
		respondError(w, r, err)
		return
	}

	expense, splits, err := s.expenses.UpdateExpense(r.Context(), service.UpdateExpenseRequest{
		ExpenseID:      expenseID,
		Description:    req.Description,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaidByMemberID: req.PaidByMemberID,
		Split:          spec,
		ExpenseDate:    req.ExpenseDate,
		Category:       req.Category,
		Notes:          req.Notes,
		ReceiptURL:     req.ReceiptURL,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseView(expense, splits))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID, ok := s.expenseTripAccess(w, r)
	if !ok {
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), expenseID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
