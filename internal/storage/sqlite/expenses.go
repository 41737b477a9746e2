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

// CreateExpense persists a new expense and populates its ID.
func (s *queries) CreateExpense(ctx context.Context, expense *models.Expense) error {
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	if expense.UpdatedAt.IsZero() {
		expense.UpdatedAt = now
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = now
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO expenses (trip_id, description, amount, currency, exchange_rate_to_base,
		                       paid_by_member_id, expense_type, expense_date, category, notes,
		                       receipt_url, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.TripID, expense.Description, decText(expense.Amount), expense.Currency,
		decText(expense.ExchangeRateToBase), expense.PaidByMemberID, string(expense.Type),
		expense.ExpenseDate.Unix(), expense.Category, expense.Notes, expense.ReceiptURL,
		expense.CreatedBy, expense.CreatedAt.Unix(), expense.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	expense.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get expense id: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense by ID.
func (s *queries) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, trip_id, description, amount, currency, exchange_rate_to_base,
		        paid_by_member_id, expense_type, expense_date, category, notes,
		        receipt_url, created_by, created_at, updated_at
		 FROM expenses WHERE id = ?`, id)
	expense, err := scanExpense(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return expense, err
}

// UpdateExpense updates an existing expense.
func (s *queries) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE expenses SET description = ?, amount = ?, currency = ?, exchange_rate_to_base = ?,
		        paid_by_member_id = ?, expense_type = ?, expense_date = ?, category = ?,
		        notes = ?, receipt_url = ?, updated_at = ?
		 WHERE id = ?`,
		expense.Description, decText(expense.Amount), expense.Currency,
		decText(expense.ExchangeRateToBase), expense.PaidByMemberID, string(expense.Type),
		expense.ExpenseDate.Unix(), expense.Category, expense.Notes, expense.ReceiptURL,
		expense.UpdatedAt.Unix(), expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return requireRow(res)
}

// DeleteExpense removes an expense. Splits cascade via the schema.
func (s *queries) DeleteExpense(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return requireRow(res)
}

// ListExpenses retrieves all expenses for a trip ordered by ID.
func (s *queries) ListExpenses(ctx context.Context, tripID int64) ([]*models.Expense, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, trip_id, description, amount, currency, exchange_rate_to_base,
		        paid_by_member_id, expense_type, expense_date, category, notes,
		        receipt_url, created_by, created_at, updated_at
		 FROM expenses WHERE trip_id = ? ORDER BY id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		expense, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return expenses, nil
}

func scanExpense(scan func(dest ...any) error) (*models.Expense, error) {
	expense := &models.Expense{}
	var amount, rate, expenseType string
	var expenseDate, createdAt, updatedAt int64

	err := scan(&expense.ID, &expense.TripID, &expense.Description, &amount, &expense.Currency,
		&rate, &expense.PaidByMemberID, &expenseType, &expenseDate, &expense.Category,
		&expense.Notes, &expense.ReceiptURL, &expense.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if expense.Amount, err = scanDec(amount); err != nil {
		return nil, fmt.Errorf("failed to parse expense amount: %w", err)
	}
	if expense.ExchangeRateToBase, err = scanDec(rate); err != nil {
		return nil, fmt.Errorf("failed to parse exchange rate: %w", err)
	}
	expense.Type = models.ExpenseType(expenseType)
	expense.ExpenseDate = time.Unix(expenseDate, 0).UTC()
	expense.CreatedAt = time.Unix(createdAt, 0).UTC()
	expense.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return expense, nil
}

// ReplaceSplits deletes any existing splits for an expense and inserts the
// given set.
func (s *queries) ReplaceSplits(ctx context.Context, expenseID int64, splits []models.Split) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM splits WHERE expense_id = ?`, expenseID); err != nil {
		return fmt.Errorf("failed to clear splits: %w", err)
	}
	for i := range splits {
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO splits (expense_id, member_id, amount, percentage) VALUES (?, ?, ?, ?)`,
			expenseID, splits[i].MemberID, decText(splits[i].Amount), decText(splits[i].Percentage),
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
		splits[i].ExpenseID = expenseID
		if splits[i].ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get split id: %w", err)
		}
	}
	return nil
}

// ListSplits retrieves the splits of an expense ordered by ID.
func (s *queries) ListSplits(ctx context.Context, expenseID int64) ([]models.Split, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, expense_id, member_id, amount, percentage
		 FROM splits WHERE expense_id = ? ORDER BY id`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	defer rows.Close()

	var splits []models.Split
	for rows.Next() {
		var split models.Split
		var amount, percentage string
		if err := rows.Scan(&split.ID, &split.ExpenseID, &split.MemberID, &amount, &percentage); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		if split.Amount, err = scanDec(amount); err != nil {
			return nil, fmt.Errorf("failed to parse split amount: %w", err)
		}
		if split.Percentage, err = scanDec(percentage); err != nil {
			return nil, fmt.Errorf("failed to parse split percentage: %w", err)
		}
		splits = append(splits, split)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}
	return splits, nil
}
