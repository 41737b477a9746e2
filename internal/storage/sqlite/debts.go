package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/storage"
)

// GetDebt retrieves the live debt row for a (trip, debtor, creditor, currency)
// key. The schema's unique index guarantees at most one.
func (s *queries) GetDebt(ctx context.Context, tripID, debtorID, creditorID int64, currency string) (*models.MemberDebt, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, trip_id, debtor_member_id, creditor_member_id, amount, currency,
		        source_expense_id, created_at, updated_at
		 FROM member_debts
		 WHERE trip_id = ? AND debtor_member_id = ? AND creditor_member_id = ? AND currency = ?`,
		tripID, debtorID, creditorID, currency)
	debt, err := scanDebt(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return debt, err
}

// SaveDebt inserts the debt when ID is zero, otherwise updates the existing
// row.
func (s *queries) SaveDebt(ctx context.Context, debt *models.MemberDebt) error {
	now := time.Now().UTC()
	debt.UpdatedAt = now

	if debt.ID == 0 {
		debt.CreatedAt = now
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO member_debts (trip_id, debtor_member_id, creditor_member_id, amount,
			                           currency, source_expense_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			debt.TripID, debt.DebtorMemberID, debt.CreditorMemberID, decText(debt.Amount),
			debt.Currency, debt.SourceExpenseID, debt.CreatedAt.Unix(), debt.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert debt: %w", err)
		}
		if debt.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get debt id: %w", err)
		}
		return nil
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE member_debts SET amount = ?, currency = ?, source_expense_id = ?, updated_at = ?
		 WHERE id = ?`,
		decText(debt.Amount), debt.Currency, debt.SourceExpenseID, debt.UpdatedAt.Unix(), debt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update debt: %w", err)
	}
	return requireRow(res)
}

// DeleteDebt removes a debt row by ID.
func (s *queries) DeleteDebt(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM member_debts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete debt: %w", err)
	}
	return requireRow(res)
}

// DeleteDebtsBySource removes every debt row created by a given expense and
// reports how many were removed.
func (s *queries) DeleteDebtsBySource(ctx context.Context, expenseID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM member_debts WHERE source_expense_id = ?`, expenseID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete debts by source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

// ListDebts retrieves all live debt rows for a trip ordered by ID.
func (s *queries) ListDebts(ctx context.Context, tripID int64) ([]*models.MemberDebt, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, trip_id, debtor_member_id, creditor_member_id, amount, currency,
		        source_expense_id, created_at, updated_at
		 FROM member_debts WHERE trip_id = ? ORDER BY id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}
	defer rows.Close()

	var debts []*models.MemberDebt
	for rows.Next() {
		debt, err := scanDebt(rows.Scan)
		if err != nil {
			return nil, err
		}
		debts = append(debts, debt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debts: %w", err)
	}
	return debts, nil
}

func scanDebt(scan func(dest ...any) error) (*models.MemberDebt, error) {
	debt := &models.MemberDebt{}
	var amount string
	var createdAt, updatedAt int64

	err := scan(&debt.ID, &debt.TripID, &debt.DebtorMemberID, &debt.CreditorMemberID,
		&amount, &debt.Currency, &debt.SourceExpenseID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if debt.Amount, err = scanDec(amount); err != nil {
		return nil, fmt.Errorf("failed to parse debt amount: %w", err)
	}
	debt.CreatedAt = time.Unix(createdAt, 0).UTC()
	debt.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return debt, nil
}
