package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/ledger"
	"github.com/velotrips/velo/internal/storage"
)

// BalanceService renders ledger output into API-facing shapes: member
// nicknames joined in, decimals converted to floats for JSON. No arithmetic
// happens here; the ledger stays unit-testable on pure decimal data.
type BalanceService struct {
	store  storage.Store
	ledger *ledger.Ledger
}

// NewBalanceService creates a balance presenter.
func NewBalanceService(store storage.Store, ldg *ledger.Ledger) *BalanceService {
	return &BalanceService{store: store, ledger: ldg}
}

// MemberBalanceView is one member's position as served to clients.
type MemberBalanceView struct {
	MemberID int64  `json:"member_id"`
	Nickname string `json:"nickname"`

	OwedByCurrency   map[string]float64 `json:"owed_by_currency"`
	OwedToByCurrency map[string]float64 `json:"owed_to_by_currency"`

	TotalOwed   float64 `json:"total_owed"`
	TotalOwedTo float64 `json:"total_owed_to"`
	NetBalance  float64 `json:"net_balance"`
}

// DebtView is one directional debt with names resolved.
type DebtView struct {
	DebtorMemberID   int64   `json:"debtor_member_id"`
	DebtorName       string  `json:"debtor_name"`
	CreditorMemberID int64   `json:"creditor_member_id"`
	CreditorName     string  `json:"creditor_name"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
}

// TransferView is one suggested settling payment in the base currency.
type TransferView struct {
	FromMemberID int64   `json:"from_member_id"`
	FromName     string  `json:"from_name"`
	ToMemberID   int64   `json:"to_member_id"`
	ToName       string  `json:"to_name"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// BalancesView is the full balance response for a trip.
type BalancesView struct {
	TripID       int64  `json:"trip_id"`
	BaseCurrency string `json:"base_currency"`

	Members []MemberBalanceView `json:"members"`
	Debts   []DebtView          `json:"debts"`

	// Settlements is present only when the plan was simplified.
	Settlements []TransferView `json:"settlements,omitempty"`
}

// TripBalances computes and renders the balance snapshot for a trip. When
// simplify is nil the trip's stored preference decides.
func (s *BalanceService) TripBalances(ctx context.Context, tripID int64, simplify *bool) (*BalancesView, error) {
	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, tripID)
	if err != nil {
		return nil, err
	}

	doSimplify := trip.SimplifyDebts
	if simplify != nil {
		doSimplify = *simplify
	}

	balances, err := s.ledger.ComputeBalances(ctx, tripID, ledger.BalanceOptions{Simplify: doSimplify})
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Nickname
	}

	view := &BalancesView{TripID: tripID, BaseCurrency: balances.BaseCurrency}
	for _, mb := range balances.Members {
		view.Members = append(view.Members, MemberBalanceView{
			MemberID:         mb.MemberID,
			Nickname:         names[mb.MemberID],
			OwedByCurrency:   floatMap(mb.OwedByCurrency),
			OwedToByCurrency: floatMap(mb.OwedToByCurrency),
			TotalOwed:        mb.TotalOwedBase.InexactFloat64(),
			TotalOwedTo:      mb.TotalOwedToBase.InexactFloat64(),
			NetBalance:       mb.NetBase.InexactFloat64(),
		})
	}
	for _, d := range balances.Debts {
		view.Debts = append(view.Debts, DebtView{
			DebtorMemberID:   d.DebtorMemberID,
			DebtorName:       names[d.DebtorMemberID],
			CreditorMemberID: d.CreditorMemberID,
			CreditorName:     names[d.CreditorMemberID],
			Amount:           d.Amount.InexactFloat64(),
			Currency:         d.Currency,
		})
	}
	for _, tr := range balances.Settlements {
		view.Settlements = append(view.Settlements, TransferView{
			FromMemberID: tr.FromMemberID,
			FromName:     names[tr.FromMemberID],
			ToMemberID:   tr.ToMemberID,
			ToName:       names[tr.ToMemberID],
			Amount:       tr.Amount.InexactFloat64(),
			Currency:     balances.BaseCurrency,
		})
	}
	return view, nil
}

func floatMap(in map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(in))
	for currency, amount := range in {
		out[currency] = amount.InexactFloat64()
	}
	return out
}
