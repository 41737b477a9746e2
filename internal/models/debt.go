package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MemberDebt tracks debt between two members in a specific currency.
//
// Example: Alice paid 100 JPY for dinner and Bob owes 50 JPY:
//
//	debtor_member_id:   Bob
//	creditor_member_id: Alice
//	amount:             50.00
//	currency:           JPY
//
// Invariants the ledger maintains:
//   - at most one live row per (trip, debtor, creditor, currency); debts are
//     consolidated additively, never duplicated
//   - Amount is non-negative; a row driven below the negligible threshold is
//     deleted, not kept as a zero row
//   - a debt A→B and a debt B→A in the same currency never coexist past the
//     end of a mutation; they are netted at write time
type MemberDebt struct {
	ID     int64
	TripID int64

	// DebtorMemberID is the member who owes money.
	DebtorMemberID int64

	// CreditorMemberID is the member who is owed money.
	CreditorMemberID int64

	// Amount owed, in Currency. Always non-negative.
	Amount decimal.Decimal

	// Currency is the ISO 4217 code of the debt.
	Currency string

	// SourceExpenseID links the row to the expense or settlement that
	// created it, or 0 for rows produced by merges and conversions, which
	// move amounts without preserving expense linkage. Reversing an expense
	// only removes rows whose source traces to it.
	SourceExpenseID int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
