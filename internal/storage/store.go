// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/velotrips/velo/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Tx is the set of persistence operations available inside a transaction.
// Amounts are stored with at least 2 decimal digits of precision, exchange
// rates with 6.
type Tx interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Trips
	CreateTrip(ctx context.Context, trip *models.Trip) error
	GetTrip(ctx context.Context, id int64) (*models.Trip, error)
	UpdateTrip(ctx context.Context, trip *models.Trip) error

	// Trip members
	CreateMember(ctx context.Context, member *models.TripMember) error
	GetMember(ctx context.Context, id int64) (*models.TripMember, error)
	ListMembers(ctx context.Context, tripID int64) ([]*models.TripMember, error)
	UpdateMember(ctx context.Context, member *models.TripMember) error

	// Expenses. Deleting an expense cascades to its splits; debt rows are
	// the ledger's responsibility.
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, id int64) (*models.Expense, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, id int64) error
	ListExpenses(ctx context.Context, tripID int64) ([]*models.Expense, error)

	// Splits
	ReplaceSplits(ctx context.Context, expenseID int64, splits []models.Split) error
	ListSplits(ctx context.Context, expenseID int64) ([]models.Split, error)

	// Member debts. GetDebt looks up the single live row for a
	// (trip, debtor, creditor, currency) key.
	GetDebt(ctx context.Context, tripID, debtorID, creditorID int64, currency string) (*models.MemberDebt, error)
	// SaveDebt inserts when debt.ID is zero (populating it) and updates
	// otherwise.
	SaveDebt(ctx context.Context, debt *models.MemberDebt) error
	DeleteDebt(ctx context.Context, id int64) error
	DeleteDebtsBySource(ctx context.Context, expenseID int64) (int64, error)
	ListDebts(ctx context.Context, tripID int64) ([]*models.MemberDebt, error)
}

// Store is the storage backend interface. Methods called directly on the
// store auto-commit; WithTx runs fn atomically, rolling back every change if
// fn returns an error. Multi-row ledger mutations (convert-all in
// particular) must go through WithTx.
type Store interface {
	Tx

	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}
