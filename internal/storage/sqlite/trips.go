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

// CreateTrip persists a new trip and populates its ID.
func (s *queries) CreateTrip(ctx context.Context, trip *models.Trip) error {
	now := time.Now().UTC()
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	if trip.UpdatedAt.IsZero() {
		trip.UpdatedAt = now
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO trips (name, description, base_currency, simplify_debts, total_spent,
		                    expense_count, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trip.Name, trip.Description, trip.BaseCurrency, trip.SimplifyDebts,
		decText(trip.TotalSpent), trip.ExpenseCount, trip.CreatedBy,
		trip.CreatedAt.Unix(), trip.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	trip.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get trip id: %w", err)
	}
	return nil
}

// GetTrip retrieves a trip by ID.
func (s *queries) GetTrip(ctx context.Context, id int64) (*models.Trip, error) {
	trip := &models.Trip{}
	var totalSpent string
	var createdAt, updatedAt int64

	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, description, base_currency, simplify_debts, total_spent,
		        expense_count, created_by, created_at, updated_at
		 FROM trips WHERE id = ?`, id,
	).Scan(&trip.ID, &trip.Name, &trip.Description, &trip.BaseCurrency, &trip.SimplifyDebts,
		&totalSpent, &trip.ExpenseCount, &trip.CreatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	if trip.TotalSpent, err = scanDec(totalSpent); err != nil {
		return nil, fmt.Errorf("failed to parse trip total: %w", err)
	}
	trip.CreatedAt = time.Unix(createdAt, 0).UTC()
	trip.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return trip, nil
}

// UpdateTrip updates an existing trip.
func (s *queries) UpdateTrip(ctx context.Context, trip *models.Trip) error {
	trip.UpdatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE trips SET name = ?, description = ?, base_currency = ?, simplify_debts = ?,
		        total_spent = ?, expense_count = ?, updated_at = ?
		 WHERE id = ?`,
		trip.Name, trip.Description, trip.BaseCurrency, trip.SimplifyDebts,
		decText(trip.TotalSpent), trip.ExpenseCount, trip.UpdatedAt.Unix(), trip.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update trip: %w", err)
	}
	return requireRow(res)
}

// CreateMember persists a new trip member and populates its ID.
func (s *queries) CreateMember(ctx context.Context, member *models.TripMember) error {
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}

	var userID any
	if member.UserID != "" {
		userID = member.UserID
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO trip_members (trip_id, user_id, nickname, is_placeholder, is_admin,
		                           total_owed_base, total_owed_to_base, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		member.TripID, userID, member.Nickname, member.IsPlaceholder, member.IsAdmin,
		decText(member.TotalOwedBase), decText(member.TotalOwedToBase), member.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	member.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get member id: %w", err)
	}
	return nil
}

// GetMember retrieves a trip member by ID.
func (s *queries) GetMember(ctx context.Context, id int64) (*models.TripMember, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, trip_id, user_id, nickname, is_placeholder, is_admin,
		        total_owed_base, total_owed_to_base, created_at
		 FROM trip_members WHERE id = ?`, id)
	member, err := scanMember(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return member, err
}

// ListMembers retrieves all members of a trip ordered by ID.
func (s *queries) ListMembers(ctx context.Context, tripID int64) ([]*models.TripMember, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, trip_id, user_id, nickname, is_placeholder, is_admin,
		        total_owed_base, total_owed_to_base, created_at
		 FROM trip_members WHERE trip_id = ? ORDER BY id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.TripMember
	for rows.Next() {
		member, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// UpdateMember updates an existing trip member, including the cached balance
// fields.
func (s *queries) UpdateMember(ctx context.Context, member *models.TripMember) error {
	var userID any
	if member.UserID != "" {
		userID = member.UserID
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE trip_members SET user_id = ?, nickname = ?, is_placeholder = ?, is_admin = ?,
		        total_owed_base = ?, total_owed_to_base = ?
		 WHERE id = ?`,
		userID, member.Nickname, member.IsPlaceholder, member.IsAdmin,
		decText(member.TotalOwedBase), decText(member.TotalOwedToBase), member.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return requireRow(res)
}

func scanMember(scan func(dest ...any) error) (*models.TripMember, error) {
	member := &models.TripMember{}
	var userID sql.NullString
	var owed, owedTo string
	var createdAt int64

	err := scan(&member.ID, &member.TripID, &userID, &member.Nickname,
		&member.IsPlaceholder, &member.IsAdmin, &owed, &owedTo, &createdAt)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		member.UserID = userID.String
	}
	if member.TotalOwedBase, err = scanDec(owed); err != nil {
		return nil, fmt.Errorf("failed to parse member balance: %w", err)
	}
	if member.TotalOwedToBase, err = scanDec(owedTo); err != nil {
		return nil, fmt.Errorf("failed to parse member balance: %w", err)
	}
	member.CreatedAt = time.Unix(createdAt, 0).UTC()
	return member, nil
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
