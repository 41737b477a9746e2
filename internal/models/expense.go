package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseType discriminates normal spends from settlement payments.
type ExpenseType string

const (
	// ExpenseTypeExpense is a normal spend that creates debt.
	ExpenseTypeExpense ExpenseType = "expense"
	// ExpenseTypeSettlement is a payment event that nets against existing
	// debt. Settlements flow through the same split/debt machinery as
	// expenses so they show up in the expense list and carry an audit trail.
	ExpenseTypeSettlement ExpenseType = "settlement"
)

// Expense represents a single expense entry in a trip. The original currency
// and the exchange rate to the trip base currency are captured at creation
// time; the rate is immutable unless the currency changes.
type Expense struct {
	ID     int64
	TripID int64

	Description string

	// Amount is the expense amount in the original currency.
	Amount decimal.Decimal

	// Currency is the ISO 4217 code the expense was paid in.
	Currency string

	// ExchangeRateToBase is the rate to the trip base currency captured at
	// entry time (6 fraction digits).
	ExchangeRateToBase decimal.Decimal

	// PaidByMemberID is the trip member who paid.
	PaidByMemberID int64

	// Type distinguishes spends from settlements.
	Type ExpenseType

	ExpenseDate time.Time

	Category   string
	Notes      string
	ReceiptURL string

	// CreatedBy is the user who entered the expense.
	CreatedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Split represents one member's share of an expense, denominated in the
// expense's original currency. A split where the member is the payer is kept
// for percentage displays but never converted into debt.
type Split struct {
	ID        int64
	ExpenseID int64
	MemberID  int64

	// Amount owed by this member, in the expense currency.
	Amount decimal.Decimal

	// Percentage of the expense (0-100). Informational only.
	Percentage decimal.Decimal
}
