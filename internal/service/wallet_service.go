package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/pkg/apperror"
	"github.com/casagrown/backend/internal/repository"
)

// WalletRepository describes the storage dependencies of WalletService.
type WalletRepository interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.PointsBalance, error)
	TopUp(ctx context.Context, userID uuid.UUID, amount int64, description string) (*models.PointsTransaction, error)
	GetEscrowByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointsTransaction, error)
}

// WalletService exposes the points wallet to the API layer.
type WalletService struct {
	repo   WalletRepository
	orders interface {
		GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	}
}

// NewWalletService creates the wallet service.
func NewWalletService(repo WalletRepository, orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}) *WalletService {
	return &WalletService{repo: repo, orders: orders}
}

// GetBalance returns the user's points balance.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.PointsBalance, error) {
	return s.repo.GetBalance(ctx, userID)
}

// TopUp credits points to the user.
func (s *WalletService) TopUp(ctx context.Context, userID uuid.UUID, amount int64) (*models.PointsTransaction, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "top-up amount must be greater than zero")
	}

	return s.repo.TopUp(ctx, userID, amount, "Points top-up")
}

// GetEscrow returns the escrow record of an order the user participates in.
func (s *WalletService) GetEscrow(ctx context.Context, orderID, userID uuid.UUID) (*models.Escrow, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if order.RoleOf(userID) == models.RoleNone {
		return nil, apperror.ErrForbidden
	}

	escrow, err := s.repo.GetEscrowByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrEscrowNotFound) {
			return nil, apperror.New(apperror.ErrCodeNotFound, "escrow not found")
		}
		return nil, fmt.Errorf("wallet service: %w", err)
	}
	return escrow, nil
}

// ListTransactions returns the user's ledger entries.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointsTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}
