package server

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/middleware"
	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/service"
)

type tripView struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	BaseCurrency  string          `json:"base_currency"`
	SimplifyDebts bool            `json:"simplify_debts"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	ExpenseCount  int             `json:"expense_count"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toTripView(t *models.Trip) tripView {
	return tripView{
		ID:            t.ID,
		Name:          t.Name,
		Description:   t.Description,
		BaseCurrency:  t.BaseCurrency,
		SimplifyDebts: t.SimplifyDebts,
		TotalSpent:    t.TotalSpent,
		ExpenseCount:  t.ExpenseCount,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
	}
}

type memberView struct {
	ID            int64           `json:"id"`
	TripID        int64           `json:"trip_id"`
	UserID        string          `json:"user_id,omitempty"`
	Nickname      string          `json:"nickname"`
	IsPlaceholder bool            `json:"is_placeholder"`
	IsAdmin       bool            `json:"is_admin"`
	TotalOwed     decimal.Decimal `json:"total_owed"`
	TotalOwedTo   decimal.Decimal `json:"total_owed_to"`
}

func toMemberView(m *models.TripMember) memberView {
	return memberView{
		ID:            m.ID,
		TripID:        m.TripID,
		UserID:        m.UserID,
		Nickname:      m.Nickname,
		IsPlaceholder: m.IsPlaceholder,
		IsAdmin:       m.IsAdmin,
		TotalOwed:     m.TotalOwedBase,
		TotalOwedTo:   m.TotalOwedToBase,
	}
}

func toMemberViews(members []*models.TripMember) []memberView {
	views := make([]memberView, len(members))
	for i, m := range members {
		views[i] = toMemberView(m)
	}
	return views
}

// requireTripAccess checks that the authenticated user is a member of the
// trip. Returns false after writing the error response.
func (s *Server) requireTripAccess(w http.ResponseWriter, r *http.Request, tripID int64) bool {
	ok, err := s.trips.IsTripMember(r.Context(), tripID, middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return false
	}
	if !ok {
		respondError(w, r, errForbidden)
		return false
	}
	return true
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		BaseCurrency  string `json:"base_currency"`
		SimplifyDebts bool   `json:"simplify_debts"`
		Nickname      string `json:"nickname"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	nickname := req.Nickname
	if nickname == "" {
		if user, err := s.authService.CurrentUser(r.Context(), userID); err == nil {
			nickname = user.DisplayName
		}
	}

	trip, creator, err := s.trips.CreateTrip(r.Context(), service.CreateTripRequest{
		Name:            req.Name,
		Description:     req.Description,
		BaseCurrency:    req.BaseCurrency,
		SimplifyDebts:   req.SimplifyDebts,
		CreatorNickname: nickname,
		CreatedBy:       userID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, struct {
		Trip    tripView   `json:"trip"`
		Creator memberView `json:"creator"`
	}{toTripView(trip), toMemberView(creator)})
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	trip, members, err := s.trips.GetTrip(r.Context(), tripID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Trip    tripView     `json:"trip"`
		Members []memberView `json:"members"`
	}{toTripView(trip), toMemberViews(members)})
}

func (s *Server) handleUpdateTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	var req struct {
		Name          *string `json:"name"`
		Description   *string `json:"description"`
		SimplifyDebts *bool   `json:"simplify_debts"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	trip, err := s.trips.UpdateTrip(r.Context(), service.UpdateTripRequest{
		TripID:        tripID,
		Name:          req.Name,
		Description:   req.Description,
		SimplifyDebts: req.SimplifyDebts,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTripView(trip))
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.requireTripAccess(w, r, tripID) {
		return
	}

	var req struct {
		Nickname string `json:"nickname"`
		UserID   string `json:"user_id"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	member, err := s.trips.AddMember(r.Context(), service.AddMemberRequest{
		TripID:   tripID,
		Nickname: req.Nickname,
		UserID:   req.UserID,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toMemberView(member))
}

// handleClaimMember links a placeholder member to the calling user. No
// membership check: claiming a placeholder is how an invited user joins the
// trip.
func (s *Server) handleClaimMember(w http.ResponseWriter, r *http.Request) {
	tripID, err := urlID(r, "tripID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	memberID, err := urlID(r, "memberID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	member, err := s.trips.ClaimMember(r.Context(), tripID, memberID, middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toMemberView(member))
}
