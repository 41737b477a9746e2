package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/storage"
	"github.com/velotrips/velo/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeRates serves fixed conversion rates keyed by "FROM/TO". Unknown pairs
// convert 1:1 so USD-base tests don't need a full table.
type fakeRates struct {
	rates map[string]decimal.Decimal
}

func (f *fakeRates) Rate(ctx context.Context, from, to string) decimal.Decimal {
	if from == to {
		return decimal.NewFromInt(1)
	}
	if rate, ok := f.rates[from+"/"+to]; ok {
		return rate
	}
	return decimal.NewFromInt(1)
}

func (f *fakeRates) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	return nil, errors.New("not implemented")
}

func newTestLedger(rates map[string]decimal.Decimal) (*Ledger, *memory.Store) {
	store := memory.New()
	return New(store, &fakeRates{rates: rates}), store
}

// seedTrip creates a USD trip with three placeholder members.
func seedTrip(t *testing.T, store *memory.Store) (*models.Trip, []*models.TripMember) {
	t.Helper()
	ctx := context.Background()

	trip := &models.Trip{Name: "Test Trip", BaseCurrency: "USD", CreatedBy: "user-1"}
	if err := store.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	var members []*models.TripMember
	for _, nickname := range []string{"Alice", "Bob", "Charlie"} {
		m := &models.TripMember{TripID: trip.ID, Nickname: nickname, IsPlaceholder: true}
		if err := store.CreateMember(ctx, m); err != nil {
			t.Fatalf("CreateMember failed: %v", err)
		}
		members = append(members, m)
	}
	return trip, members
}

// addExpense persists an expense with custom splits and applies its debts.
func addExpense(t *testing.T, l *Ledger, store *memory.Store, trip *models.Trip, payerID int64, amount, currency string, shares map[int64]string) *models.Expense {
	t.Helper()
	ctx := context.Background()

	expense := &models.Expense{
		TripID:             trip.ID,
		Description:        "test expense",
		Amount:             dec(amount),
		Currency:           currency,
		ExchangeRateToBase: decimal.NewFromInt(1),
		PaidByMemberID:     payerID,
		Type:               models.ExpenseTypeExpense,
		CreatedBy:          "user-1",
	}
	if err := store.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	var splits []models.Split
	for memberID, share := range shares {
		splits = append(splits, models.Split{MemberID: memberID, Amount: dec(share)})
	}
	if err := store.ReplaceSplits(ctx, expense.ID, splits); err != nil {
		t.Fatalf("ReplaceSplits failed: %v", err)
	}
	if err := l.ApplyExpenseDebts(ctx, expense, splits); err != nil {
		t.Fatalf("ApplyExpenseDebts failed: %v", err)
	}
	return expense
}

func listDebts(t *testing.T, store *memory.Store, tripID int64) []*models.MemberDebt {
	t.Helper()
	debts, err := store.ListDebts(context.Background(), tripID)
	if err != nil {
		t.Fatalf("ListDebts failed: %v", err)
	}
	return debts
}

func findDebt(debts []*models.MemberDebt, debtorID, creditorID int64, currency string) *models.MemberDebt {
	for _, d := range debts {
		if d.DebtorMemberID == debtorID && d.CreditorMemberID == creditorID && d.Currency == currency {
			return d
		}
	}
	return nil
}

// assertSingleRowPerKey checks the core invariant across all rows of a trip.
func assertSingleRowPerKey(t *testing.T, debts []*models.MemberDebt) {
	t.Helper()
	type key struct {
		debtor, creditor int64
		currency         string
	}
	seen := make(map[key]bool)
	for _, d := range debts {
		k := key{d.DebtorMemberID, d.CreditorMemberID, d.Currency}
		if seen[k] {
			t.Errorf("Duplicate debt row for key %+v", k)
		}
		seen[k] = true
		if d.Amount.IsNegative() {
			t.Errorf("Negative debt amount %s for key %+v", d.Amount, k)
		}
		reverse := key{d.CreditorMemberID, d.DebtorMemberID, d.Currency}
		if seen[reverse] {
			t.Errorf("Opposing debts coexist for pair %+v in %s", k, d.Currency)
		}
	}
}

func TestApplyExpenseDebts(t *testing.T) {
	t.Run("equal three way split creates two rows", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob, charlie := m[0], m[1], m[2]

		// Alice pays $100, split three ways.
		addExpense(t, l, store, trip, alice.ID, "100.00", "USD", map[int64]string{
			alice.ID:   "33.34",
			bob.ID:     "33.33",
			charlie.ID: "33.33",
		})

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 2 {
			t.Fatalf("Expected 2 debt rows, got %d", len(debts))
		}
		for _, debtor := range []*models.TripMember{bob, charlie} {
			d := findDebt(debts, debtor.ID, alice.ID, "USD")
			if d == nil {
				t.Fatalf("Missing debt %s -> Alice", debtor.Nickname)
			}
			if !d.Amount.Equal(dec("33.33")) {
				t.Errorf("%s debt = %s, want 33.33", debtor.Nickname, d.Amount)
			}
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("payer split never becomes self debt", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)

		addExpense(t, l, store, trip, m[0].ID, "60.00", "USD", map[int64]string{
			m[0].ID: "60.00",
		})

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 0 {
			t.Errorf("Expected no debt rows when payer covers everything, got %d", len(debts))
		}
	})

	t.Run("repeat expenses consolidate into one row", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "40.00", "USD", map[int64]string{bob.ID: "40.00"})
		addExpense(t, l, store, trip, alice.ID, "25.00", "USD", map[int64]string{bob.ID: "25.00"})

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected 1 consolidated row, got %d", len(debts))
		}
		if !debts[0].Amount.Equal(dec("65.00")) {
			t.Errorf("Consolidated amount = %s, want 65.00", debts[0].Amount)
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("reverse debt is netted at write time", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		// Bob owes Alice 50, then Alice incurs 20 owed to Bob: the 20 nets
		// against the 50 instead of creating an opposing row.
		addExpense(t, l, store, trip, alice.ID, "50.00", "USD", map[int64]string{bob.ID: "50.00"})
		addExpense(t, l, store, trip, bob.ID, "20.00", "USD", map[int64]string{alice.ID: "20.00"})

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected 1 netted row, got %d", len(debts))
		}
		d := findDebt(debts, bob.ID, alice.ID, "USD")
		if d == nil {
			t.Fatal("Expected Bob -> Alice debt to survive netting")
		}
		if !d.Amount.Equal(dec("30.00")) {
			t.Errorf("Netted amount = %s, want 30.00", d.Amount)
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("netting overflow flips direction", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "30.00", "USD", map[int64]string{bob.ID: "30.00"})
		addExpense(t, l, store, trip, bob.ID, "70.00", "USD", map[int64]string{alice.ID: "70.00"})

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected 1 row after overflow netting, got %d", len(debts))
		}
		d := findDebt(debts, alice.ID, bob.ID, "USD")
		if d == nil {
			t.Fatal("Expected direction to flip to Alice -> Bob")
		}
		if !d.Amount.Equal(dec("40.00")) {
			t.Errorf("Flipped amount = %s, want 40.00", d.Amount)
		}
	})

	t.Run("different currencies stay separate", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "50.00", "USD", map[int64]string{bob.ID: "50.00"})
		addExpense(t, l, store, trip, alice.ID, "3000", "JPY", map[int64]string{bob.ID: "3000"})

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 2 {
			t.Fatalf("Expected 2 rows (one per currency), got %d", len(debts))
		}
		assertSingleRowPerKey(t, debts)
	})
}

func TestReverseExpenseDebts(t *testing.T) {
	t.Run("delete is inverse of create", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		ctx := context.Background()

		expense := addExpense(t, l, store, trip, m[0].ID, "100.00", "USD", map[int64]string{
			m[1].ID: "50.00",
			m[2].ID: "50.00",
		})

		if err := l.ReverseExpenseDebts(ctx, trip.ID, expense.ID); err != nil {
			t.Fatalf("ReverseExpenseDebts failed: %v", err)
		}
		debts := listDebts(t, store, trip.ID)
		if len(debts) != 0 {
			t.Errorf("Expected empty ledger after reversal, got %d rows", len(debts))
		}
	})

	t.Run("only touches rows sourced from the expense", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		ctx := context.Background()

		first := addExpense(t, l, store, trip, m[0].ID, "40.00", "USD", map[int64]string{m[1].ID: "40.00"})
		addExpense(t, l, store, trip, m[0].ID, "3000", "JPY", map[int64]string{m[1].ID: "3000"})

		if err := l.ReverseExpenseDebts(ctx, trip.ID, first.ID); err != nil {
			t.Fatalf("ReverseExpenseDebts failed: %v", err)
		}
		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected the JPY row to survive, got %d rows", len(debts))
		}
		if debts[0].Currency != "JPY" {
			t.Errorf("Surviving row currency = %s, want JPY", debts[0].Currency)
		}
	})
}

func TestUpdateExpenseDebts(t *testing.T) {
	l, store := newTestLedger(nil)
	trip, m := seedTrip(t, store)
	ctx := context.Background()

	expense := addExpense(t, l, store, trip, m[0].ID, "100.00", "USD", map[int64]string{
		m[1].ID: "50.00",
		m[2].ID: "50.00",
	})

	// Re-split everything onto Bob.
	newSplits := []models.Split{{MemberID: m[1].ID, Amount: dec("100.00")}}
	if err := l.UpdateExpenseDebts(ctx, expense, newSplits); err != nil {
		t.Fatalf("UpdateExpenseDebts failed: %v", err)
	}

	debts := listDebts(t, store, trip.ID)
	if len(debts) != 1 {
		t.Fatalf("Expected 1 row after update, got %d", len(debts))
	}
	d := findDebt(debts, m[1].ID, m[0].ID, "USD")
	if d == nil || !d.Amount.Equal(dec("100.00")) {
		t.Errorf("Expected Bob -> Alice 100.00 after update, got %+v", debts)
	}

	// Updating again with identical splits is idempotent.
	if err := l.UpdateExpenseDebts(ctx, expense, newSplits); err != nil {
		t.Fatalf("UpdateExpenseDebts failed: %v", err)
	}
	debts = listDebts(t, store, trip.ID)
	if len(debts) != 1 || !debts[0].Amount.Equal(dec("100.00")) {
		t.Errorf("Expected idempotent re-application, got %+v", debts)
	}
}

func TestRecordSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("partial then settled", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "100.00", "USD", map[int64]string{bob.ID: "100.00"})

		result, err := l.RecordSettlement(ctx, SettlementRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("30.00"),
			Currency:         "USD",
		})
		if err != nil {
			t.Fatalf("RecordSettlement failed: %v", err)
		}
		if result.Status != StatusPartial {
			t.Errorf("Status = %s, want partial", result.Status)
		}
		if !result.RemainingDebt.Equal(dec("70.00")) {
			t.Errorf("RemainingDebt = %s, want 70.00", result.RemainingDebt)
		}

		result, err = l.RecordSettlement(ctx, SettlementRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("70.00"),
			Currency:         "USD",
		})
		if err != nil {
			t.Fatalf("RecordSettlement failed: %v", err)
		}
		if result.Status != StatusSettled {
			t.Errorf("Status = %s, want settled", result.Status)
		}
		if len(listDebts(t, store, trip.ID)) != 0 {
			t.Error("Expected all debt rows deleted after full settlement")
		}
	})

	t.Run("overpayment flips the debt", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "50.00", "USD", map[int64]string{bob.ID: "50.00"})

		result, err := l.RecordSettlement(ctx, SettlementRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("80.00"),
			Currency:         "USD",
		})
		if err != nil {
			t.Fatalf("RecordSettlement failed: %v", err)
		}
		if result.Status != StatusOverpaid {
			t.Errorf("Status = %s, want overpaid", result.Status)
		}
		if !result.OverpaidAmount.Equal(dec("30.00")) {
			t.Errorf("OverpaidAmount = %s, want 30.00", result.OverpaidAmount)
		}

		debts := listDebts(t, store, trip.ID)
		d := findDebt(debts, alice.ID, bob.ID, "USD")
		if d == nil || !d.Amount.Equal(dec("30.00")) {
			t.Errorf("Expected Alice -> Bob 30.00 after overpayment, got %+v", debts)
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("payment with no debt is recorded", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		result, err := l.RecordSettlement(ctx, SettlementRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("25.00"),
			Currency:         "USD",
		})
		if err != nil {
			t.Fatalf("RecordSettlement failed: %v", err)
		}
		if result.Status != StatusRecorded {
			t.Errorf("Status = %s, want recorded", result.Status)
		}

		debts := listDebts(t, store, trip.ID)
		d := findDebt(debts, alice.ID, bob.ID, "USD")
		if d == nil || !d.Amount.Equal(dec("25.00")) {
			t.Errorf("Expected Alice -> Bob 25.00 recorded, got %+v", debts)
		}
	})

	t.Run("cross currency settlement nets in settle currency", func(t *testing.T) {
		l, store := newTestLedger(map[string]decimal.Decimal{"USD/EUR": dec("0.9")})
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		// Bob owes Alice 90 EUR; he pays 100 USD which converts to 90 EUR.
		addExpense(t, l, store, trip, alice.ID, "90.00", "EUR", map[int64]string{bob.ID: "90.00"})

		result, err := l.RecordSettlement(ctx, SettlementRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("100.00"),
			Currency:         "USD",
			SettleCurrency:   "EUR",
		})
		if err != nil {
			t.Fatalf("RecordSettlement failed: %v", err)
		}
		if result.Status != StatusSettled {
			t.Errorf("Status = %s, want settled", result.Status)
		}
		if !result.SettledAmount.Equal(dec("90.00")) {
			t.Errorf("SettledAmount = %s, want 90.00", result.SettledAmount)
		}
		if len(listDebts(t, store, trip.ID)) != 0 {
			t.Error("Expected EUR debt cleared by converted settlement")
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)

		cases := []struct {
			name string
			req  SettlementRequest
		}{
			{"self settlement", SettlementRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[0].ID, Amount: dec("10"), Currency: "USD"}},
			{"zero amount", SettlementRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[1].ID, Amount: decimal.Zero, Currency: "USD"}},
			{"negative amount", SettlementRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[1].ID, Amount: dec("-5"), Currency: "USD"}},
			{"bad currency", SettlementRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[1].ID, Amount: dec("10"), Currency: "usd"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := l.RecordSettlement(ctx, tc.req); !errors.Is(err, ErrValidation) {
					t.Errorf("Expected ErrValidation, got %v", err)
				}
			})
		}
	})

	t.Run("unknown member", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)

		_, err := l.RecordSettlement(ctx, SettlementRequest{
			TripID:           trip.ID,
			DebtorMemberID:   m[0].ID,
			CreditorMemberID: 9999,
			Amount:           dec("10.00"),
			Currency:         "USD",
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

// Editing a settlement's currency must not leave residue in the old currency
// and must record the settled amount in the new one.
func TestSettlementCurrencyChange(t *testing.T) {
	l, store := newTestLedger(nil)
	trip, m := seedTrip(t, store)
	alice, bob := m[0], m[1]
	ctx := context.Background()

	addExpense(t, l, store, trip, alice.ID, "100.00", "USD", map[int64]string{bob.ID: "100.00"})

	result, err := l.RecordSettlement(ctx, SettlementRequest{
		TripID:           trip.ID,
		DebtorMemberID:   bob.ID,
		CreditorMemberID: alice.ID,
		Amount:           dec("100.00"),
		Currency:         "USD",
	})
	if err != nil {
		t.Fatalf("RecordSettlement failed: %v", err)
	}
	if result.Status != StatusSettled {
		t.Fatalf("Status = %s, want settled", result.Status)
	}
	if len(listDebts(t, store, trip.ID)) != 0 {
		t.Fatal("Expected ledger empty after full settlement")
	}

	// Edit the settlement expense to CNY and recompute its debts.
	settlement, err := store.GetExpense(ctx, result.ExpenseID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	settlement.Currency = "CNY"
	if err := store.UpdateExpense(ctx, settlement); err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}
	splits := []models.Split{{MemberID: alice.ID, Amount: dec("100.00")}}
	if err := l.UpdateExpenseDebts(ctx, settlement, splits); err != nil {
		t.Fatalf("UpdateExpenseDebts failed: %v", err)
	}

	debts := listDebts(t, store, trip.ID)
	for _, d := range debts {
		if d.Currency == "USD" {
			t.Errorf("Residual USD debt after currency change: %+v", d)
		}
	}
	d := findDebt(debts, alice.ID, bob.ID, "CNY")
	if d == nil || !d.Amount.Equal(dec("100.00")) {
		t.Errorf("Expected CNY debt of the settled amount, got %+v", debts)
	}
	assertSingleRowPerKey(t, debts)
}

func TestMergeDebtCurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("partial merge conserves value", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "100.00", "USD", map[int64]string{bob.ID: "100.00"})

		result, err := l.MergeDebtCurrency(ctx, MergeRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("40.00"),
			FromCurrency:     "USD",
			ToCurrency:       "EUR",
			Rate:             dec("0.9"),
		})
		if err != nil {
			t.Fatalf("MergeDebtCurrency failed: %v", err)
		}
		if !result.ConvertedAmount.Equal(dec("36.00")) {
			t.Errorf("ConvertedAmount = %s, want 36.00", result.ConvertedAmount)
		}
		if !result.RemainingSource.Equal(dec("60.00")) {
			t.Errorf("RemainingSource = %s, want 60.00", result.RemainingSource)
		}

		debts := listDebts(t, store, trip.ID)
		usd := findDebt(debts, bob.ID, alice.ID, "USD")
		eur := findDebt(debts, bob.ID, alice.ID, "EUR")
		if usd == nil || !usd.Amount.Equal(dec("60.00")) {
			t.Errorf("USD debt = %+v, want 60.00", usd)
		}
		if eur == nil || !eur.Amount.Equal(dec("36.00")) {
			t.Errorf("EUR debt = %+v, want 36.00", eur)
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("full merge deletes the source row", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "50.00", "USD", map[int64]string{bob.ID: "50.00"})

		result, err := l.MergeDebtCurrency(ctx, MergeRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("50.00"),
			FromCurrency:     "USD",
			ToCurrency:       "JPY",
			Rate:             dec("150"),
		})
		if err != nil {
			t.Fatalf("MergeDebtCurrency failed: %v", err)
		}
		if !result.RemainingSource.IsZero() {
			t.Errorf("RemainingSource = %s, want 0", result.RemainingSource)
		}

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected only the JPY row, got %d rows", len(debts))
		}
		if !debts[0].Amount.Equal(dec("7500.00")) {
			t.Errorf("JPY amount = %s, want 7500.00", debts[0].Amount)
		}
	})

	t.Run("merge into existing target consolidates", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "100.00", "USD", map[int64]string{bob.ID: "100.00"})
		addExpense(t, l, store, trip, alice.ID, "20.00", "EUR", map[int64]string{bob.ID: "20.00"})

		_, err := l.MergeDebtCurrency(ctx, MergeRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("10.00"),
			FromCurrency:     "USD",
			ToCurrency:       "EUR",
			Rate:             dec("0.9"),
		})
		if err != nil {
			t.Fatalf("MergeDebtCurrency failed: %v", err)
		}

		debts := listDebts(t, store, trip.ID)
		eur := findDebt(debts, bob.ID, alice.ID, "EUR")
		if eur == nil || !eur.Amount.Equal(dec("29.00")) {
			t.Errorf("EUR debt = %+v, want 29.00", eur)
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("insufficient debt", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "30.00", "USD", map[int64]string{bob.ID: "30.00"})

		_, err := l.MergeDebtCurrency(ctx, MergeRequest{
			TripID:           trip.ID,
			DebtorMemberID:   bob.ID,
			CreditorMemberID: alice.ID,
			Amount:           dec("30.01"),
			FromCurrency:     "USD",
			ToCurrency:       "EUR",
			Rate:             dec("0.9"),
		})
		if !errors.Is(err, ErrInsufficientDebt) {
			t.Errorf("Expected ErrInsufficientDebt, got %v", err)
		}

		// No debt at all between the pair in that currency.
		_, err = l.MergeDebtCurrency(ctx, MergeRequest{
			TripID:           trip.ID,
			DebtorMemberID:   alice.ID,
			CreditorMemberID: bob.ID,
			Amount:           dec("5.00"),
			FromCurrency:     "USD",
			ToCurrency:       "EUR",
			Rate:             dec("0.9"),
		})
		if !errors.Is(err, ErrInsufficientDebt) {
			t.Errorf("Expected ErrInsufficientDebt for missing debt, got %v", err)
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)

		cases := []struct {
			name string
			req  MergeRequest
		}{
			{"self merge", MergeRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[0].ID, Amount: dec("10"), FromCurrency: "USD", ToCurrency: "EUR"}},
			{"same currency", MergeRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[1].ID, Amount: dec("10"), FromCurrency: "USD", ToCurrency: "USD"}},
			{"non positive amount", MergeRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[1].ID, Amount: decimal.Zero, FromCurrency: "USD", ToCurrency: "EUR"}},
			{"unsupported currency", MergeRequest{TripID: trip.ID, DebtorMemberID: m[0].ID, CreditorMemberID: m[1].ID, Amount: dec("10"), FromCurrency: "USD", ToCurrency: "XXX"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := l.MergeDebtCurrency(ctx, tc.req); !errors.Is(err, ErrValidation) {
					t.Errorf("Expected ErrValidation, got %v", err)
				}
			})
		}
	})
}

func TestConvertAllDebts(t *testing.T) {
	ctx := context.Background()

	t.Run("converts and consolidates per pair", func(t *testing.T) {
		l, store := newTestLedger(map[string]decimal.Decimal{
			"EUR/USD": dec("1.1"),
			"JPY/USD": dec("0.0067"),
		})
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "20.00", "USD", map[int64]string{bob.ID: "20.00"})
		addExpense(t, l, store, trip, alice.ID, "10.00", "EUR", map[int64]string{bob.ID: "10.00"})
		addExpense(t, l, store, trip, alice.ID, "1000", "JPY", map[int64]string{bob.ID: "1000"})

		result, err := l.ConvertAllDebts(ctx, trip.ID, "USD", nil)
		if err != nil {
			t.Fatalf("ConvertAllDebts failed: %v", err)
		}
		if result.RowsConverted != 2 {
			t.Errorf("RowsConverted = %d, want 2", result.RowsConverted)
		}

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected 1 consolidated USD row, got %d", len(debts))
		}
		// 20 + 10*1.1 + 1000*0.0067 = 20 + 11 + 6.70
		if !debts[0].Amount.Equal(dec("37.70")) {
			t.Errorf("Converted total = %s, want 37.70", debts[0].Amount)
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("override rates take precedence", func(t *testing.T) {
		l, store := newTestLedger(map[string]decimal.Decimal{"EUR/USD": dec("1.1")})
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		addExpense(t, l, store, trip, alice.ID, "10.00", "EUR", map[int64]string{bob.ID: "10.00"})
		addExpense(t, l, store, trip, alice.ID, "2000", "JPY", map[int64]string{bob.ID: "2000"})

		overrides := map[string]decimal.Decimal{"EUR": dec("2.0")}
		_, err := l.ConvertAllDebts(ctx, trip.ID, "USD", overrides)
		if err != nil {
			t.Fatalf("ConvertAllDebts failed: %v", err)
		}

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected 1 row, got %d", len(debts))
		}
		// EUR uses the override (10*2.0); JPY falls back to the provider 1:1.
		if !debts[0].Amount.Equal(dec("2020.00")) {
			t.Errorf("Converted total = %s, want 2020.00", debts[0].Amount)
		}
	})

	t.Run("opposing currencies net after conversion", func(t *testing.T) {
		l, store := newTestLedger(map[string]decimal.Decimal{"EUR/USD": dec("1.0")})
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		// Bob owes Alice 50 USD; Alice owes Bob 20 EUR. Different currencies
		// may coexist in opposite directions, but converging on USD must
		// collapse them to one direction.
		addExpense(t, l, store, trip, alice.ID, "50.00", "USD", map[int64]string{bob.ID: "50.00"})
		addExpense(t, l, store, trip, bob.ID, "20.00", "EUR", map[int64]string{alice.ID: "20.00"})

		if _, err := l.ConvertAllDebts(ctx, trip.ID, "USD", nil); err != nil {
			t.Fatalf("ConvertAllDebts failed: %v", err)
		}

		debts := listDebts(t, store, trip.ID)
		if len(debts) != 1 {
			t.Fatalf("Expected 1 row after conversion netting, got %d", len(debts))
		}
		d := findDebt(debts, bob.ID, alice.ID, "USD")
		if d == nil || !d.Amount.Equal(dec("30.00")) {
			t.Errorf("Expected Bob -> Alice 30.00 USD, got %+v", debts)
		}
		assertSingleRowPerKey(t, debts)
	})

	t.Run("unsupported target currency", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, _ := seedTrip(t, store)

		if _, err := l.ConvertAllDebts(ctx, trip.ID, "XYZ", nil); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected ErrValidation, got %v", err)
		}
	})
}

// After a trip-wide conversion, editing an expense originally denominated in
// a converted-away currency re-derives its debt in the original currency.
// Conversions drop expense linkage, so the converted value is not adjusted
// and both rows coexist. This duplication is the accepted cost of keeping
// expense recomputation independent of conversion history; the fix would
// require provenance tracking on converted amounts.
func TestConvertAllThenExpenseEdit(t *testing.T) {
	l, store := newTestLedger(map[string]decimal.Decimal{"EUR/USD": dec("1.1")})
	trip, m := seedTrip(t, store)
	alice, bob := m[0], m[1]
	ctx := context.Background()

	expense := addExpense(t, l, store, trip, alice.ID, "10.00", "EUR", map[int64]string{bob.ID: "10.00"})

	if _, err := l.ConvertAllDebts(ctx, trip.ID, "USD", nil); err != nil {
		t.Fatalf("ConvertAllDebts failed: %v", err)
	}

	splits := []models.Split{{MemberID: bob.ID, Amount: dec("10.00")}}
	if err := l.UpdateExpenseDebts(ctx, expense, splits); err != nil {
		t.Fatalf("UpdateExpenseDebts failed: %v", err)
	}

	debts := listDebts(t, store, trip.ID)
	usd := findDebt(debts, bob.ID, alice.ID, "USD")
	eur := findDebt(debts, bob.ID, alice.ID, "EUR")
	if usd == nil || !usd.Amount.Equal(dec("11.00")) {
		t.Errorf("Converted USD row = %+v, want 11.00", usd)
	}
	if eur == nil || !eur.Amount.Equal(dec("10.00")) {
		t.Errorf("Re-derived EUR row = %+v, want 10.00", eur)
	}
	assertSingleRowPerKey(t, debts)
}

func TestComputeBalances(t *testing.T) {
	ctx := context.Background()

	t.Run("base currency totals", func(t *testing.T) {
		l, store := newTestLedger(map[string]decimal.Decimal{"EUR/USD": dec("1.1")})
		trip, m := seedTrip(t, store)
		alice, bob, charlie := m[0], m[1], m[2]

		addExpense(t, l, store, trip, alice.ID, "50.00", "USD", map[int64]string{bob.ID: "50.00"})
		addExpense(t, l, store, trip, alice.ID, "10.00", "EUR", map[int64]string{charlie.ID: "10.00"})

		balances, err := l.ComputeBalances(ctx, trip.ID, BalanceOptions{})
		if err != nil {
			t.Fatalf("ComputeBalances failed: %v", err)
		}
		if balances.BaseCurrency != "USD" {
			t.Errorf("BaseCurrency = %s, want USD", balances.BaseCurrency)
		}
		if len(balances.Debts) != 2 {
			t.Fatalf("Expected 2 pair debts, got %d", len(balances.Debts))
		}

		byMember := make(map[int64]MemberBalance)
		for _, mb := range balances.Members {
			byMember[mb.MemberID] = mb
		}
		if got := byMember[alice.ID].TotalOwedToBase; !got.Equal(dec("61.00")) {
			t.Errorf("Alice owed-to = %s, want 61.00", got)
		}
		if got := byMember[bob.ID].TotalOwedBase; !got.Equal(dec("50.00")) {
			t.Errorf("Bob owed = %s, want 50.00", got)
		}
		if got := byMember[charlie.ID].TotalOwedBase; !got.Equal(dec("11.00")) {
			t.Errorf("Charlie owed = %s, want 11.00", got)
		}
		if got := byMember[alice.ID].NetBase; !got.Equal(dec("61.00")) {
			t.Errorf("Alice net = %s, want 61.00", got)
		}
		if got := byMember[charlie.ID].OwedByCurrency["EUR"]; !got.Equal(dec("10.00")) {
			t.Errorf("Charlie EUR owed = %s, want 10.00", got)
		}
	})

	t.Run("defensive netting of opposing rows", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob := m[0], m[1]

		// Write opposing rows directly, bypassing the ledger invariant.
		for _, d := range []*models.MemberDebt{
			{TripID: trip.ID, DebtorMemberID: bob.ID, CreditorMemberID: alice.ID, Amount: dec("50.00"), Currency: "USD"},
			{TripID: trip.ID, DebtorMemberID: alice.ID, CreditorMemberID: bob.ID, Amount: dec("20.00"), Currency: "USD"},
		} {
			if err := store.SaveDebt(ctx, d); err != nil {
				t.Fatalf("SaveDebt failed: %v", err)
			}
		}

		balances, err := l.ComputeBalances(ctx, trip.ID, BalanceOptions{})
		if err != nil {
			t.Fatalf("ComputeBalances failed: %v", err)
		}
		if len(balances.Debts) != 1 {
			t.Fatalf("Expected opposing rows netted to 1 debt, got %d", len(balances.Debts))
		}
		d := balances.Debts[0]
		if d.DebtorMemberID != bob.ID || d.CreditorMemberID != alice.ID || !d.Amount.Equal(dec("30.00")) {
			t.Errorf("Netted debt = %+v, want Bob -> Alice 30.00", d)
		}
	})

	t.Run("simplified settlement plan", func(t *testing.T) {
		l, store := newTestLedger(nil)
		trip, m := seedTrip(t, store)
		alice, bob, charlie := m[0], m[1], m[2]

		addExpense(t, l, store, trip, alice.ID, "90.00", "USD", map[int64]string{
			bob.ID:     "30.00",
			charlie.ID: "30.00",
			alice.ID:   "30.00",
		})

		balances, err := l.ComputeBalances(ctx, trip.ID, BalanceOptions{Simplify: true})
		if err != nil {
			t.Fatalf("ComputeBalances failed: %v", err)
		}
		if len(balances.Settlements) != 2 {
			t.Fatalf("Expected 2 settling transfers, got %d", len(balances.Settlements))
		}

		// Each member's transferred total must match their net balance.
		moved := make(map[int64]decimal.Decimal)
		for _, tr := range balances.Settlements {
			if tr.ToMemberID != alice.ID {
				t.Errorf("Transfer target = %d, want Alice %d", tr.ToMemberID, alice.ID)
			}
			moved[tr.FromMemberID] = moved[tr.FromMemberID].Add(tr.Amount)
		}
		for _, debtor := range []*models.TripMember{bob, charlie} {
			if !moved[debtor.ID].Equal(dec("30.00")) {
				t.Errorf("%s moved %s, want 30.00", debtor.Nickname, moved[debtor.ID])
			}
		}

		// Equal amounts tie-break by member ID ascending.
		if balances.Settlements[0].FromMemberID != bob.ID {
			t.Errorf("First transfer from member %d, want %d", balances.Settlements[0].FromMemberID, bob.ID)
		}
	})

	t.Run("unknown trip", func(t *testing.T) {
		l, _ := newTestLedger(nil)
		if _, err := l.ComputeBalances(ctx, 9999, BalanceOptions{}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

// The denormalized member balance fields must track the debt table through
// every mutation.
func TestBalanceCacheRefresh(t *testing.T) {
	l, store := newTestLedger(nil)
	trip, m := seedTrip(t, store)
	alice, bob := m[0], m[1]
	ctx := context.Background()

	expense := addExpense(t, l, store, trip, alice.ID, "80.00", "USD", map[int64]string{bob.ID: "80.00"})

	bobRow, err := store.GetMember(ctx, bob.ID)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if !bobRow.TotalOwedBase.Equal(dec("80.00")) {
		t.Errorf("Bob cached owed = %s, want 80.00", bobRow.TotalOwedBase)
	}
	aliceRow, err := store.GetMember(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if !aliceRow.TotalOwedToBase.Equal(dec("80.00")) {
		t.Errorf("Alice cached owed-to = %s, want 80.00", aliceRow.TotalOwedToBase)
	}

	if err := l.ReverseExpenseDebts(ctx, trip.ID, expense.ID); err != nil {
		t.Fatalf("ReverseExpenseDebts failed: %v", err)
	}
	bobRow, err = store.GetMember(ctx, bob.ID)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if !bobRow.TotalOwedBase.IsZero() {
		t.Errorf("Bob cached owed after reversal = %s, want 0", bobRow.TotalOwedBase)
	}
}
