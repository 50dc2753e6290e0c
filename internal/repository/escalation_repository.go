package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/casagrown/backend/internal/models"
)

var (
	ErrEscalationNotFound = errors.New("escalation not found")
	ErrEscalationNotOpen  = errors.New("escalation is not open")
	ErrOfferNotFound      = errors.New("refund offer not found")
	ErrOfferNotPending    = errors.New("refund offer is not pending")
)

// EscalationRepository persists escalations and their refund offers.
type EscalationRepository struct {
	db *sqlx.DB
}

// NewEscalationRepository creates a new instance.
func NewEscalationRepository(db *sqlx.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Create opens a new escalation for an order.
func (r *EscalationRepository) Create(ctx context.Context, escalation *models.Escalation) error {
	query := `
		INSERT INTO escalations (order_id, opened_by, reason, proof_media_id, status)
		VALUES ($1, $2, $3, $4, 'open')
		RETURNING id, status, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		escalation.OrderID, escalation.OpenedBy, escalation.Reason, escalation.ProofMediaID,
	).Scan(&escalation.ID, &escalation.Status, &escalation.CreatedAt); err != nil {
		return fmt.Errorf("escalation repository: create %w", err)
	}
	return nil
}

// GetByID returns an escalation by its identifier.
func (r *EscalationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Escalation, error) {
	var escalation models.Escalation
	if err := r.db.GetContext(ctx, &escalation, `SELECT * FROM escalations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscalationNotFound
		}
		return nil, fmt.Errorf("escalation repository: get by id %w", err)
	}
	return &escalation, nil
}

// GetOpenByOrderID returns the order's open escalation. At most one open
// escalation exists per order, enforced by a partial unique index.
func (r *EscalationRepository) GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error) {
	var escalation models.Escalation
	query := `SELECT * FROM escalations WHERE order_id = $1 AND status = 'open'`
	if err := r.db.GetContext(ctx, &escalation, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEscalationNotFound
		}
		return nil, fmt.Errorf("escalation repository: get open by order %w", err)
	}
	return &escalation, nil
}

// Resolve closes an open escalation with the given resolution. Zero affected
// rows means the escalation was already resolved.
func (r *EscalationRepository) Resolve(ctx context.Context, id uuid.UUID, resolutionType string, resolvedBy uuid.UUID, acceptedOfferID *uuid.UUID) (*models.Escalation, error) {
	var escalation models.Escalation
	query := `
		UPDATE escalations
		SET status = 'resolved',
		    resolution_type = $2,
		    resolved_by = $3,
		    accepted_offer_id = $4,
		    resolved_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING *
	`
	err := r.db.GetContext(ctx, &escalation, query, id, resolutionType, resolvedBy, acceptedOfferID)
	if err == nil {
		return &escalation, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("escalation repository: resolve %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrEscalationNotOpen
}

// CreateOffer inserts a new pending refund offer, superseding any prior
// pending offer of the escalation in the same transaction so at most one
// pending offer exists at a time.
func (r *EscalationRepository) CreateOffer(ctx context.Context, offer *models.RefundOffer) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE refund_offers
		SET status = 'rejected', decided_at = NOW()
		WHERE escalation_id = $1 AND status = 'pending'
	`, offer.EscalationID)
	if err != nil {
		return fmt.Errorf("escalation repository: supersede pending offer %w", err)
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO refund_offers (escalation_id, order_id, seller_id, amount, message, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, status, created_at
	`, offer.EscalationID, offer.OrderID, offer.SellerID, offer.Amount, offer.Message,
	).Scan(&offer.ID, &offer.Status, &offer.CreatedAt)
	if err != nil {
		return fmt.Errorf("escalation repository: create offer %w", err)
	}

	return tx.Commit()
}

// GetOfferByID returns a refund offer by its identifier.
func (r *EscalationRepository) GetOfferByID(ctx context.Context, id uuid.UUID) (*models.RefundOffer, error) {
	var offer models.RefundOffer
	if err := r.db.GetContext(ctx, &offer, `SELECT * FROM refund_offers WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("escalation repository: get offer by id %w", err)
	}
	return &offer, nil
}

// DecideOffer moves a pending offer to accepted or rejected. The pending
// guard makes deciding an already-decided offer report cleanly instead of
// flipping its outcome.
func (r *EscalationRepository) DecideOffer(ctx context.Context, id uuid.UUID, newStatus string) (*models.RefundOffer, error) {
	var offer models.RefundOffer
	query := `
		UPDATE refund_offers
		SET status = $2, decided_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`
	err := r.db.GetContext(ctx, &offer, query, id, newStatus)
	if err == nil {
		return &offer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("escalation repository: decide offer %w", err)
	}

	if _, getErr := r.GetOfferByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrOfferNotPending
}

// ListOffers returns the escalation's offers, newest first. When several
// offers ever coexisted the read path always surfaces the most recent one
// deterministically.
func (r *EscalationRepository) ListOffers(ctx context.Context, escalationID uuid.UUID) ([]models.RefundOffer, error) {
	var offers []models.RefundOffer
	query := `
		SELECT * FROM refund_offers
		WHERE escalation_id = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &offers, query, escalationID); err != nil {
		return nil, fmt.Errorf("escalation repository: list offers %w", err)
	}
	return offers, nil
}
