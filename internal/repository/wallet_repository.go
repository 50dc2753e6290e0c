package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/repository/common"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrEscrowNotFound     = errors.New("escrow not found")
)

// WalletRepository manages points balances, the transaction ledger and the
// per-order escrow that settles when an order reaches a terminal state.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new instance.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetBalance returns the user's balance, creating an empty one on first use.
func (r *WalletRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.PointsBalance, error) {
	var balance models.PointsBalance
	query := `
		INSERT INTO points_balances (user_id, available, reserved)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, available, reserved, updated_at
	`
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: get balance %w", err)
	}
	return &balance, nil
}

// TopUp credits points to the user and records the ledger entry.
func (r *WalletRepository) TopUp(ctx context.Context, userID uuid.UUID, amount int64, description string) (*models.PointsTransaction, error) {
	var transaction models.PointsTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO points_balances (user_id, available, reserved)
			VALUES ($1, $2, 0)
			ON CONFLICT (user_id) DO UPDATE SET available = points_balances.available + $2, updated_at = NOW()
		`, userID, amount)
		if err != nil {
			return fmt.Errorf("wallet repository: top up balance %w", err)
		}

		err = tx.GetContext(ctx, &transaction, `
			INSERT INTO points_transactions (user_id, type, amount, status, description, completed_at)
			VALUES ($1, 'top_up', $2, 'completed', $3, NOW())
			RETURNING id, user_id, order_id, type, amount, status, description, created_at, completed_at
		`, userID, amount, description)
		if err != nil {
			return fmt.Errorf("wallet repository: top up transaction %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// HoldEscrow reserves the buyer's points against the order.
func (r *WalletRepository) HoldEscrow(ctx context.Context, orderID, buyerID, sellerID uuid.UUID, amount int64) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var balance models.PointsBalance
	err = tx.GetContext(ctx, &balance, `SELECT user_id, available, reserved FROM points_balances WHERE user_id = $1 FOR UPDATE`, buyerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInsufficientPoints
		}
		return nil, err
	}
	if balance.Available < amount {
		return nil, ErrInsufficientPoints
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE points_balances SET available = available - $2, reserved = reserved + $2, updated_at = NOW()
		WHERE user_id = $1
	`, buyerID, amount)
	if err != nil {
		return nil, err
	}

	var escrow models.Escrow
	err = tx.GetContext(ctx, &escrow, `
		INSERT INTO escrow (order_id, buyer_id, seller_id, amount, status)
		VALUES ($1, $2, $3, $4, 'held')
		RETURNING id, order_id, buyer_id, seller_id, amount, status, created_at, released_at
	`, orderID, buyerID, sellerID, amount)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions (user_id, order_id, type, amount, status, description, completed_at)
		VALUES ($1, $2, 'escrow_hold', $3, 'completed', 'Points reserved for order', NOW())
	`, buyerID, orderID, amount)
	if err != nil {
		return nil, err
	}

	return &escrow, tx.Commit()
}

// AdjustEscrow resizes a held escrow after the order's terms changed.
// The delta moves between the buyer's available and reserved points.
func (r *WalletRepository) AdjustEscrow(ctx context.Context, orderID uuid.UUID, newAmount int64) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var escrow models.Escrow
	err = tx.GetContext(ctx, &escrow, `SELECT * FROM escrow WHERE order_id = $1 AND status = 'held' FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}

	delta := newAmount - escrow.Amount
	if delta == 0 {
		return &escrow, tx.Commit()
	}

	if delta > 0 {
		var balance models.PointsBalance
		err = tx.GetContext(ctx, &balance, `SELECT user_id, available, reserved FROM points_balances WHERE user_id = $1 FOR UPDATE`, escrow.BuyerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrInsufficientPoints
			}
			return nil, err
		}
		if balance.Available < delta {
			return nil, ErrInsufficientPoints
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE points_balances SET available = available - $2, reserved = reserved + $2, updated_at = NOW()
		WHERE user_id = $1
	`, escrow.BuyerID, delta)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE escrow SET amount = $2 WHERE id = $1`, escrow.ID, newAmount)
	if err != nil {
		return nil, err
	}
	escrow.Amount = newAmount

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions (user_id, order_id, type, amount, status, description, completed_at)
		VALUES ($1, $2, 'escrow_adjust', $3, 'completed', 'Escrow resized after order change', NOW())
	`, escrow.BuyerID, orderID, delta)
	if err != nil {
		return nil, err
	}

	return &escrow, tx.Commit()
}

// ReleaseEscrow pays the held points out to the seller.
func (r *WalletRepository) ReleaseEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var escrow models.Escrow
	err = tx.GetContext(ctx, &escrow, `SELECT * FROM escrow WHERE order_id = $1 AND status = 'held' FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE points_balances SET reserved = reserved - $2, updated_at = NOW()
		WHERE user_id = $1
	`, escrow.BuyerID, escrow.Amount)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_balances (user_id, available, reserved)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET available = points_balances.available + $2, updated_at = NOW()
	`, escrow.SellerID, escrow.Amount)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `UPDATE escrow SET status = 'released', released_at = $2 WHERE id = $1`, escrow.ID, now); err != nil {
		return nil, err
	}
	escrow.Status = models.EscrowStatusReleased
	escrow.ReleasedAt = &now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions (user_id, order_id, type, amount, status, description, completed_at)
		VALUES ($1, $2, 'escrow_release', $3, 'completed', 'Points received for completed order', NOW())
	`, escrow.SellerID, orderID, escrow.Amount)
	if err != nil {
		return nil, err
	}

	return &escrow, tx.Commit()
}

// RefundEscrow returns the held points to the buyer.
func (r *WalletRepository) RefundEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var escrow models.Escrow
	err = tx.GetContext(ctx, &escrow, `SELECT * FROM escrow WHERE order_id = $1 AND status = 'held' FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE points_balances SET available = available + $2, reserved = reserved - $2, updated_at = NOW()
		WHERE user_id = $1
	`, escrow.BuyerID, escrow.Amount)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `UPDATE escrow SET status = 'refunded', released_at = $2 WHERE id = $1`, escrow.ID, now); err != nil {
		return nil, err
	}
	escrow.Status = models.EscrowStatusRefunded
	escrow.ReleasedAt = &now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions (user_id, order_id, type, amount, status, description, completed_at)
		VALUES ($1, $2, 'escrow_refund', $3, 'completed', 'Points returned for cancelled order', NOW())
	`, escrow.BuyerID, orderID, escrow.Amount)
	if err != nil {
		return nil, err
	}

	return &escrow, tx.Commit()
}

// SplitEscrow settles an accepted refund offer: refundAmount goes back to
// the buyer, the remainder is paid out to the seller.
func (r *WalletRepository) SplitEscrow(ctx context.Context, orderID uuid.UUID, refundAmount int64) (*models.Escrow, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var escrow models.Escrow
	err = tx.GetContext(ctx, &escrow, `SELECT * FROM escrow WHERE order_id = $1 AND status = 'held' FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}

	if refundAmount <= 0 || refundAmount > escrow.Amount {
		return nil, fmt.Errorf("wallet repository: refund amount %d out of range for escrow %d", refundAmount, escrow.Amount)
	}
	sellerShare := escrow.Amount - refundAmount

	_, err = tx.ExecContext(ctx, `
		UPDATE points_balances SET available = available + $2, reserved = reserved - $3, updated_at = NOW()
		WHERE user_id = $1
	`, escrow.BuyerID, refundAmount, escrow.Amount)
	if err != nil {
		return nil, err
	}

	if sellerShare > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO points_balances (user_id, available, reserved)
			VALUES ($1, $2, 0)
			ON CONFLICT (user_id) DO UPDATE SET available = points_balances.available + $2, updated_at = NOW()
		`, escrow.SellerID, sellerShare)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `UPDATE escrow SET status = 'split', released_at = $2 WHERE id = $1`, escrow.ID, now); err != nil {
		return nil, err
	}
	escrow.Status = models.EscrowStatusSplit
	escrow.ReleasedAt = &now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO points_transactions (user_id, order_id, type, amount, status, description, completed_at)
		VALUES ($1, $2, 'refund_payout', $3, 'completed', 'Refund for accepted offer', NOW())
	`, escrow.BuyerID, orderID, refundAmount)
	if err != nil {
		return nil, err
	}

	if sellerShare > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO points_transactions (user_id, order_id, type, amount, status, description, completed_at)
			VALUES ($1, $2, 'escrow_release', $3, 'completed', 'Remainder after accepted refund offer', NOW())
		`, escrow.SellerID, orderID, sellerShare)
		if err != nil {
			return nil, err
		}
	}

	return &escrow, tx.Commit()
}

// GetEscrowByOrderID returns the order's escrow regardless of its status.
func (r *WalletRepository) GetEscrowByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	return common.GetByField[models.Escrow](ctx, r.db, "escrow", "order_id", orderID, ErrEscrowNotFound)
}

// ListTransactions returns the user's ledger entries, newest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointsTransaction, error) {
	var transactions []models.PointsTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT id, user_id, order_id, type, amount, status, description, created_at, completed_at
		FROM points_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return transactions, err
}
