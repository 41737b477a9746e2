package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trip represents a travel expense group. Expenses may be entered in any
// supported currency; balances are presented in BaseCurrency.
type Trip struct {
	// ID is the unique identifier for the trip.
	ID int64

	// Name is the trip name or destination.
	Name string

	// Description is an optional free-form description.
	Description string

	// BaseCurrency is the ISO 4217 code balances are aggregated in.
	BaseCurrency string

	// SimplifyDebts controls whether the balances endpoint returns a
	// minimal-transaction settlement plan instead of the raw debt list.
	SimplifyDebts bool

	// TotalSpent is the cached sum of expenses in base currency.
	TotalSpent decimal.Decimal

	// ExpenseCount is the cached number of expenses in this trip.
	ExpenseCount int

	// CreatedBy is the user ID of the trip creator.
	CreatedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TripMember represents a participant in a trip. A member may be linked to a
// registered user (UserID set) or be a placeholder that a user can claim
// later. The ledger treats members as opaque integer IDs.
type TripMember struct {
	ID     int64
	TripID int64

	// UserID is the linked user account, empty for placeholder members.
	UserID string

	// Nickname is the display name within this trip.
	Nickname string

	// IsPlaceholder is true when the member is not linked to a real user.
	IsPlaceholder bool

	// IsAdmin marks members who can manage trip settings.
	IsAdmin bool

	// TotalOwedBase and TotalOwedToBase are cached projections of the debt
	// table in base currency. The debt table is authoritative; these are
	// recomputed alongside every ledger mutation and must never be treated
	// as a source of truth.
	TotalOwedBase   decimal.Decimal
	TotalOwedToBase decimal.Decimal

	CreatedAt time.Time
}
