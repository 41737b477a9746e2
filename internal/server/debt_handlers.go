package server

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/ledger"
	"github.com/velotrips/velo/internal/middleware"
)

func (s *Server) handleRecordSettlement(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	var req struct {
		DebtorMemberID   int64           `json:"debtor_member_id"`
		CreditorMemberID int64           `json:"creditor_member_id"`
		Amount           decimal.Decimal `json:"amount"`
		Currency         string          `json:"currency"`
		SettleCurrency   string          `json:"settle_currency"`
		Rate             decimal.Decimal `json:"rate"`
		Description      string          `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.ledger.RecordSettlement(r.Context(), ledger.SettlementRequest{
		TripID:           tripID,
		DebtorMemberID:   req.DebtorMemberID,
		CreditorMemberID: req.CreditorMemberID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		SettleCurrency:   req.SettleCurrency,
		Rate:             req.Rate,
		Description:      req.Description,
		CreatedBy:        middleware.GetUserID(r.Context()),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, struct {
		Status         string          `json:"status"`
		ExpenseID      int64           `json:"expense_id"`
		PaidAmount     decimal.Decimal `json:"paid_amount"`
		SettledAmount  decimal.Decimal `json:"settled_amount"`
		SettleCurrency string          `json:"settle_currency"`
		RemainingDebt  decimal.Decimal `json:"remaining_debt"`
		OverpaidAmount decimal.Decimal `json:"overpaid_amount"`
	}{
		Status:         string(result.Status),
		ExpenseID:      result.ExpenseID,
		PaidAmount:     result.PaidAmount,
		SettledAmount:  result.SettledAmount,
		SettleCurrency: result.SettleCurrency,
		RemainingDebt:  result.RemainingDebt,
		OverpaidAmount: result.OverpaidAmount,
	})
}

func (s *Server) handleMergeDebt(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	var req struct {
		DebtorMemberID   int64           `json:"debtor_member_id"`
		CreditorMemberID int64           `json:"creditor_member_id"`
		Amount           decimal.Decimal `json:"amount"`
		FromCurrency     string          `json:"from_currency"`
		ToCurrency       string          `json:"to_currency"`
		Rate             decimal.Decimal `json:"rate"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.ledger.MergeDebtCurrency(r.Context(), ledger.MergeRequest{
		TripID:           tripID,
		DebtorMemberID:   req.DebtorMemberID,
		CreditorMemberID: req.CreditorMemberID,
		Amount:           req.Amount,
		FromCurrency:     req.FromCurrency,
		ToCurrency:       req.ToCurrency,
		Rate:             req.Rate,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		AmountMoved     decimal.Decimal `json:"amount_moved"`
		ConvertedAmount decimal.Decimal `json:"converted_amount"`
		Rate            decimal.Decimal `json:"rate"`
		RemainingSource decimal.Decimal `json:"remaining_source"`
		TargetTotal     decimal.Decimal `json:"target_total"`
	}{
		AmountMoved:     result.AmountMoved,
		ConvertedAmount: result.ConvertedAmount,
		Rate:            result.Rate,
		RemainingSource: result.RemainingSource,
		TargetTotal:     result.TargetTotal,
	})
}

func (s *Server) handleConvertDebts(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	var req struct {
		TargetCurrency string                     `json:"target_currency"`
		Rates          map[string]decimal.Decimal `json:"rates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.ledger.ConvertAllDebts(r.Context(), tripID, req.TargetCurrency, req.Rates)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		TargetCurrency string          `json:"target_currency"`
		RowsConverted  int             `json:"rows_converted"`
		TotalConverted decimal.Decimal `json:"total_converted"`
	}{
		TargetCurrency: result.TargetCurrency,
		RowsConverted:  result.RowsConverted,
		TotalConverted: result.TotalConverted,
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	// ?simplify=true|false overrides the trip's stored preference.
	var simplify *bool
	if raw := r.URL.Query().Get("simplify"); raw != "" {
		v := raw == "true" || raw == "1"
		simplify = &v
	}

	view, err := s.balances.TripBalances(r.Context(), tripID, simplify)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
