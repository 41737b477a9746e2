// Package memory provides an in-memory implementation of storage.Store.
// It backs the ledger unit tests and is handy for local development; data
// does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/storage"
)

// Ensure Store implements storage.Store.
var _ storage.Store = (*Store)(nil)

// Store is a thread-safe in-memory storage backend.
type Store struct {
	mu sync.Mutex
	// txMu serializes transactions so a snapshot/rollback pair never
	// interleaves with another transaction.
	txMu sync.Mutex

	users    map[string]*models.User
	trips    map[int64]*models.Trip
	members  map[int64]*models.TripMember
	expenses map[int64]*models.Expense
	splits   map[int64][]models.Split // keyed by expense ID
	debts    map[int64]*models.MemberDebt

	tripSeq    int64
	memberSeq  int64
	expenseSeq int64
	splitSeq   int64
	debtSeq    int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		trips:    make(map[int64]*models.Trip),
		members:  make(map[int64]*models.TripMember),
		expenses: make(map[int64]*models.Expense),
		splits:   make(map[int64][]models.Split),
		debts:    make(map[int64]*models.MemberDebt),
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// WithTx runs fn against the store, restoring a snapshot of all data if fn
// returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	users    map[string]*models.User
	trips    map[int64]*models.Trip
	members  map[int64]*models.TripMember
	expenses map[int64]*models.Expense
	splits   map[int64][]models.Split
	debts    map[int64]*models.MemberDebt

	tripSeq, memberSeq, expenseSeq, splitSeq, debtSeq int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		users:      make(map[string]*models.User, len(s.users)),
		trips:      make(map[int64]*models.Trip, len(s.trips)),
		members:    make(map[int64]*models.TripMember, len(s.members)),
		expenses:   make(map[int64]*models.Expense, len(s.expenses)),
		splits:     make(map[int64][]models.Split, len(s.splits)),
		debts:      make(map[int64]*models.MemberDebt, len(s.debts)),
		tripSeq:    s.tripSeq,
		memberSeq:  s.memberSeq,
		expenseSeq: s.expenseSeq,
		splitSeq:   s.splitSeq,
		debtSeq:    s.debtSeq,
	}
	for k, v := range s.users {
		u := *v
		snap.users[k] = &u
	}
	for k, v := range s.trips {
		t := *v
		snap.trips[k] = &t
	}
	for k, v := range s.members {
		m := *v
		snap.members[k] = &m
	}
	for k, v := range s.expenses {
		e := *v
		snap.expenses[k] = &e
	}
	for k, v := range s.splits {
		snap.splits[k] = append([]models.Split(nil), v...)
	}
	for k, v := range s.debts {
		d := *v
		snap.debts[k] = &d
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.trips = snap.trips
	s.members = snap.members
	s.expenses = snap.expenses
	s.splits = snap.splits
	s.debts = snap.debts
	s.tripSeq = snap.tripSeq
	s.memberSeq = snap.memberSeq
	s.expenseSeq = snap.expenseSeq
	s.splitSeq = snap.splitSeq
	s.debtSeq = snap.debtSeq
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// Trips

func (s *Store) CreateTrip(ctx context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tripSeq++
	trip.ID = s.tripSeq
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}
	copied := *trip
	s.trips[trip.ID] = &copied
	return nil
}

func (s *Store) GetTrip(ctx context.Context, id int64) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trips[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *Store) UpdateTrip(ctx context.Context, trip *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trips[trip.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *trip
	s.trips[trip.ID] = &copied
	return nil
}

// Trip members

func (s *Store) CreateMember(ctx context.Context, member *models.TripMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memberSeq++
	member.ID = s.memberSeq
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	copied := *member
	s.members[member.ID] = &copied
	return nil
}

func (s *Store) GetMember(ctx context.Context, id int64) (*models.TripMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *Store) ListMembers(ctx context.Context, tripID int64) ([]*models.TripMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var members []*models.TripMember
	for _, m := range s.members {
		if m.TripID == tripID {
			copied := *m
			members = append(members, &copied)
		}
	}
	sortByID(members, func(m *models.TripMember) int64 { return m.ID })
	return members, nil
}

func (s *Store) UpdateMember(ctx context.Context, member *models.TripMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[member.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *member
	s.members[member.ID] = &copied
	return nil
}

// Expenses

func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expenseSeq++
	expense.ID = s.expenseSeq
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	copied := *expense
	s.expenses[expense.ID] = &copied
	return nil
}

func (s *Store) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[expense.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *expense
	s.expenses[expense.ID] = &copied
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.expenses, id)
	delete(s.splits, id)
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, tripID int64) ([]*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expenses []*models.Expense
	for _, e := range s.expenses {
		if e.TripID == tripID {
			copied := *e
			expenses = append(expenses, &copied)
		}
	}
	sortByID(expenses, func(e *models.Expense) int64 { return e.ID })
	return expenses, nil
}

// Splits

func (s *Store) ReplaceSplits(ctx context.Context, expenseID int64, splits []models.Split) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]models.Split, len(splits))
	for i, sp := range splits {
		s.splitSeq++
		sp.ID = s.splitSeq
		sp.ExpenseID = expenseID
		stored[i] = sp
	}
	s.splits[expenseID] = stored
	return nil
}

func (s *Store) ListSplits(ctx context.Context, expenseID int64) ([]models.Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Split(nil), s.splits[expenseID]...), nil
}

// Member debts

func (s *Store) GetDebt(ctx context.Context, tripID, debtorID, creditorID int64, currency string) (*models.MemberDebt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.debts {
		if d.TripID == tripID && d.DebtorMemberID == debtorID &&
			d.CreditorMemberID == creditorID && d.Currency == currency {
			copied := *d
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) SaveDebt(ctx context.Context, debt *models.MemberDebt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if debt.ID == 0 {
		s.debtSeq++
		debt.ID = s.debtSeq
		debt.CreatedAt = now
	} else if _, ok := s.debts[debt.ID]; !ok {
		return storage.ErrNotFound
	}
	debt.UpdatedAt = now
	copied := *debt
	s.debts[debt.ID] = &copied
	return nil
}

func (s *Store) DeleteDebt(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.debts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.debts, id)
	return nil
}

func (s *Store) DeleteDebtsBySource(ctx context.Context, expenseID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, d := range s.debts {
		if d.SourceExpenseID == expenseID {
			delete(s.debts, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) ListDebts(ctx context.Context, tripID int64) ([]*models.MemberDebt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var debts []*models.MemberDebt
	for _, d := range s.debts {
		if d.TripID == tripID {
			copied := *d
			debts = append(debts, &copied)
		}
	}
	sortByID(debts, func(d *models.MemberDebt) int64 { return d.ID })
	return debts, nil
}

// sortByID keeps listings deterministic; map iteration order is not.
func sortByID[T any](items []T, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
