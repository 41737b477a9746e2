package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/money"
)

// NetBalance is one member's net position in the trip base currency.
// Positive means the member is owed money, negative means they owe.
type NetBalance struct {
	MemberID int64
	Amount   decimal.Decimal
}

// Transfer is one suggested settling payment.
type Transfer struct {
	FromMemberID int64
	ToMemberID   int64
	Amount       decimal.Decimal
}

// SettlementPlan collapses net balances into a minimal set of settling
// transactions using greedy largest-debtor/largest-creditor matching.
//
// The number of transfers never exceeds min(#debtors, #creditors), and each
// member's transfer amounts sum to their net balance. The exact pairing
// among equally-minimal solutions is implementation-defined, but the result
// is deterministic for a fixed input: both lists are sorted by amount
// descending with member ID ascending as tie-break.
func SettlementPlan(nets []NetBalance) []Transfer {
	var debtors, creditors []NetBalance
	for _, n := range nets {
		if money.IsNegligible(n.Amount) {
			continue
		}
		if n.Amount.IsNegative() {
			debtors = append(debtors, NetBalance{MemberID: n.MemberID, Amount: n.Amount.Neg()})
		} else {
			creditors = append(creditors, n)
		}
	}

	byAmountDesc := func(list []NetBalance) func(i, j int) bool {
		return func(i, j int) bool {
			if !list[i].Amount.Equal(list[j].Amount) {
				return list[i].Amount.GreaterThan(list[j].Amount)
			}
			return list[i].MemberID < list[j].MemberID
		}
	}
	sort.Slice(debtors, byAmountDesc(debtors))
	sort.Slice(creditors, byAmountDesc(creditors))

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].Amount, creditors[j].Amount)

		if !money.IsNegligible(amount) {
			transfers = append(transfers, Transfer{
				FromMemberID: debtors[i].MemberID,
				ToMemberID:   creditors[j].MemberID,
				Amount:       money.Quantize(amount),
			})
		}

		debtors[i].Amount = debtors[i].Amount.Sub(amount)
		creditors[j].Amount = creditors[j].Amount.Sub(amount)

		if money.IsNegligible(debtors[i].Amount) {
			i++
		}
		if money.IsNegligible(creditors[j].Amount) {
			j++
		}
	}

	return transfers
}
