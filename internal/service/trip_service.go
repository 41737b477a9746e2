package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/money"
	"github.com/velotrips/velo/internal/storage"
)

// TripService handles trip and member lifecycle. Members may be placeholders
// (no linked account) so trips can track people who never register; the
// ledger only ever sees their integer IDs.
type TripService struct {
	store storage.Store
}

// NewTripService creates a new trip service.
func NewTripService(store storage.Store) *TripService {
	return &TripService{store: store}
}

// CreateTripRequest carries the fields for a new trip.
type CreateTripRequest struct {
	Name          string
	Description   string
	BaseCurrency  string
	SimplifyDebts bool

	// CreatorNickname names the creator's own member row; defaults to the
	// user's display name at the HTTP layer.
	CreatorNickname string
	CreatedBy       string
}

// CreateTrip creates a trip and enrolls the creator as its admin member.
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*models.Trip, *models.TripMember, error) {
	if req.Name == "" {
		return nil, nil, fmt.Errorf("%w: trip name required", ErrInvalidInput)
	}
	if req.BaseCurrency == "" {
		req.BaseCurrency = money.DefaultCurrency
	}
	if !money.ValidCurrency(req.BaseCurrency) {
		return nil, nil, fmt.Errorf("%w: unsupported base currency %q", ErrInvalidInput, req.BaseCurrency)
	}

	trip := &models.Trip{
		Name:          req.Name,
		Description:   req.Description,
		BaseCurrency:  req.BaseCurrency,
		SimplifyDebts: req.SimplifyDebts,
		CreatedBy:     req.CreatedBy,
	}
	creator := &models.TripMember{
		UserID:   req.CreatedBy,
		Nickname: req.CreatorNickname,
		IsAdmin:  true,
	}

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateTrip(ctx, trip); err != nil {
			return fmt.Errorf("failed to create trip: %w", err)
		}
		creator.TripID = trip.ID
		if err := tx.CreateMember(ctx, creator); err != nil {
			return fmt.Errorf("failed to create trip creator member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("Trip created", "trip_id", trip.ID, "base_currency", trip.BaseCurrency, "created_by", req.CreatedBy)
	return trip, creator, nil
}

// GetTrip returns a trip with its members.
func (s *TripService) GetTrip(ctx context.Context, tripID int64) (*models.Trip, []*models.TripMember, error) {
	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.store.ListMembers(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	return trip, members, nil
}

// UpdateTripRequest carries mutable trip settings. Nil fields are unchanged.
type UpdateTripRequest struct {
	TripID        int64
	Name          *string
	Description   *string
	SimplifyDebts *bool
}

// UpdateTrip updates trip settings. The base currency is immutable: changing
// it would silently re-denominate every cached total.
func (s *TripService) UpdateTrip(ctx context.Context, req UpdateTripRequest) (*models.Trip, error) {
	trip, err := s.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: trip name required", ErrInvalidInput)
		}
		trip.Name = *req.Name
	}
	if req.Description != nil {
		trip.Description = *req.Description
	}
	if req.SimplifyDebts != nil {
		trip.SimplifyDebts = *req.SimplifyDebts
	}
	if err := s.store.UpdateTrip(ctx, trip); err != nil {
		return nil, err
	}
	return trip, nil
}

// AddMemberRequest adds a participant to a trip. An empty UserID creates a
// placeholder member.
type AddMemberRequest struct {
	TripID   int64
	Nickname string
	UserID   string
	IsAdmin  bool
}

// AddMember adds a member to a trip.
func (s *TripService) AddMember(ctx context.Context, req AddMemberRequest) (*models.TripMember, error) {
	if req.Nickname == "" {
		return nil, fmt.Errorf("%w: member nickname required", ErrInvalidInput)
	}
	if _, err := s.store.GetTrip(ctx, req.TripID); err != nil {
		return nil, err
	}
	if req.UserID != "" {
		if _, err := s.store.GetUserByID(ctx, req.UserID); err != nil {
			return nil, fmt.Errorf("linked user: %w", err)
		}
	}

	member := &models.TripMember{
		TripID:        req.TripID,
		UserID:        req.UserID,
		Nickname:      req.Nickname,
		IsPlaceholder: req.UserID == "",
		IsAdmin:       req.IsAdmin,
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		return nil, err
	}
	slog.Info("Member added", "trip_id", req.TripID, "member_id", member.ID, "placeholder", member.IsPlaceholder)
	return member, nil
}

// ClaimMember links a placeholder member to a registered user, turning the
// placeholder into a real participant while keeping its debt history.
func (s *TripService) ClaimMember(ctx context.Context, tripID, memberID int64, userID string) (*models.TripMember, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.TripID != tripID {
		return nil, fmt.Errorf("member %d: %w", memberID, storage.ErrNotFound)
	}
	if !member.IsPlaceholder {
		return nil, fmt.Errorf("%w: member is already linked to an account", ErrInvalidInput)
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("claiming user: %w", err)
	}

	member.UserID = userID
	member.IsPlaceholder = false
	if err := s.store.UpdateMember(ctx, member); err != nil {
		return nil, err
	}
	slog.Info("Placeholder member claimed", "member_id", memberID, "user_id", userID)
	return member, nil
}

// IsTripMember reports whether a user participates in a trip. Used for
// authorization at the HTTP layer.
func (s *TripService) IsTripMember(ctx context.Context, tripID int64, userID string) (bool, error) {
	members, err := s.store.ListMembers(ctx, tripID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}
