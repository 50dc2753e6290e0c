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

// Repository level errors.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrVersionMismatch    = errors.New("order version mismatch")
	ErrInvalidOrderStatus = errors.New("order is not in the expected status")
)

// OrderRepository persists orders and performs the guarded status writes
// the state machine relies on.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new instance.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, offer_id, conversation_id, buyer_id, seller_id,
	product, category, quantity, unit, points_per_unit, total_price,
	delivery_date, delivery_address, delivery_instructions,
	delivery_proof_media_id, delivery_proof_lat, delivery_proof_lng, delivery_proof_captured_at,
	dispute_reason, dispute_proof_media_id,
	seller_rating, seller_feedback, buyer_rating, buyer_feedback,
	status, version, created_at, updated_at
`

// Create inserts a new pending order. Version starts at 1.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			offer_id, conversation_id, buyer_id, seller_id,
			product, category, quantity, unit, points_per_unit, total_price,
			delivery_date, delivery_address, delivery_instructions, status, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'pending', 1)
		RETURNING id, status, version, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		order.OfferID, order.ConversationID, order.BuyerID, order.SellerID,
		order.Product, order.Category, order.Quantity, order.Unit, order.PointsPerUnit, order.TotalPrice,
		order.DeliveryDate, order.DeliveryAddress, order.DeliveryInstructions,
	).Scan(&order.ID, &order.Status, &order.Version, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("order repository: create %w", err)
	}
	return nil
}

// GetByID returns an order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: get by id %w", err)
	}
	return &order, nil
}

// GetLatestByConversationID returns the most recent order of a conversation.
func (r *OrderRepository) GetLatestByConversationID(ctx context.Context, conversationID uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &order, query, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: get by conversation %w", err)
	}
	return &order, nil
}

// ListByUser returns the user's orders, optionally narrowed to the buying or
// selling side and filtered by a case-insensitive product substring.
// Ordered by last activity, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, role string, search string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE `
	args := []interface{}{userID}

	switch role {
	case "buying":
		query += "buyer_id = $1"
	case "selling":
		query += "seller_id = $1"
	default:
		query += "(buyer_id = $1 OR seller_id = $1)"
	}

	if search != "" {
		query += " AND product ILIKE $2"
		args = append(args, "%"+search+"%")
	}

	query += " ORDER BY updated_at DESC"

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("order repository: list by user %w", err)
	}
	return orders, nil
}

// UpdateStatusCAS moves the order to a new status only when the caller holds
// the current version. Zero affected rows means the version token is stale.
func (r *OrderRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedVersion int, newStatus models.OrderStatus) (*models.Order, error) {
	var order models.Order
	query := `
		UPDATE orders
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING ` + orderColumns
	err := r.db.GetContext(ctx, &order, query, id, expectedVersion, newStatus)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order repository: update status cas %w", err)
	}

	// Distinguish a missing order from a stale version token.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrVersionMismatch
}

// UpdateStatusFrom moves the order to a new status only from the given one.
// Used by commands whose precondition is the status itself, not a version
// token; the version still increases so readers observe the change.
func (r *OrderRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (*models.Order, error) {
	var order models.Order
	query := `
		UPDATE orders
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns
	err := r.db.GetContext(ctx, &order, query, id, from, to)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order repository: update status from %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidOrderStatus
}

// TermChanges carries the buyer's modifications to a pending order.
// Nil fields keep their current value.
type TermChanges struct {
	Quantity             *float64
	PointsPerUnit        *int64
	DeliveryDate         sql.NullTime
	DeliveryDateSet      bool
	DeliveryAddress      *string
	DeliveryInstructions *string
}

// UpdateTerms applies term changes to a pending order in a single atomic
// statement. The total is recomputed from the stored columns so a stale
// client can never write an inconsistent total, and the version bump
// invalidates any accept/reject issued against the previous terms.
func (r *OrderRepository) UpdateTerms(ctx context.Context, id, buyerID uuid.UUID, changes TermChanges) (*models.Order, error) {
	var order models.Order
	query := `
		UPDATE orders
		SET quantity              = COALESCE($3, quantity),
		    points_per_unit       = COALESCE($4, points_per_unit),
		    delivery_date         = CASE WHEN $5 THEN $6 ELSE delivery_date END,
		    delivery_address      = COALESCE($7, delivery_address),
		    delivery_instructions = COALESCE($8, delivery_instructions),
		    total_price           = ROUND(COALESCE($3, quantity) * COALESCE($4, points_per_unit)),
		    version               = version + 1,
		    updated_at            = NOW()
		WHERE id = $1 AND buyer_id = $2 AND status = 'pending'
		RETURNING ` + orderColumns
	err := r.db.GetContext(ctx, &order, query,
		id, buyerID,
		changes.Quantity, changes.PointsPerUnit,
		changes.DeliveryDateSet, changes.DeliveryDate,
		changes.DeliveryAddress, changes.DeliveryInstructions,
	)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order repository: update terms %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidOrderStatus
}

// DeliveryProof captures the seller's proof of delivery. Location is a
// best-effort capture and may be absent.
type DeliveryProof struct {
	MediaID    uuid.UUID
	Lat        *float64
	Lng        *float64
	CapturedAt sql.NullTime
}

// MarkDelivered records the proof and moves accepted -> delivered.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, proof DeliveryProof) (*models.Order, error) {
	var order models.Order
	query := `
		UPDATE orders
		SET status = 'delivered',
		    delivery_proof_media_id = $2,
		    delivery_proof_lat = $3,
		    delivery_proof_lng = $4,
		    delivery_proof_captured_at = $5,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'accepted'
		RETURNING ` + orderColumns
	err := r.db.GetContext(ctx, &order, query, id, proof.MediaID, proof.Lat, proof.Lng, proof.CapturedAt)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order repository: mark delivered %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidOrderStatus
}

// SetDispute records the buyer's complaint and moves delivered -> disputed.
func (r *OrderRepository) SetDispute(ctx context.Context, id uuid.UUID, reason string, proofMediaID *uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := `
		UPDATE orders
		SET status = 'disputed',
		    dispute_reason = $2,
		    dispute_proof_media_id = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'delivered'
		RETURNING ` + orderColumns
	err := r.db.GetContext(ctx, &order, query, id, reason, proofMediaID)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order repository: set dispute %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidOrderStatus
}

// SetRating stores one party's rating. The IS NULL guard makes a second
// submission a no-op at the storage level, so ratings can never be
// overwritten.
func (r *OrderRepository) SetRating(ctx context.Context, id uuid.UUID, role models.Role, score int, feedback *string) (*models.Order, error) {
	var column, feedbackColumn string
	switch role {
	case models.RoleBuyer:
		column, feedbackColumn = "seller_rating", "seller_feedback"
	case models.RoleSeller:
		column, feedbackColumn = "buyer_rating", "buyer_feedback"
	default:
		return nil, ErrInvalidOrderStatus
	}

	var order models.Order
	query := fmt.Sprintf(`
		UPDATE orders
		SET %s = $2, %s = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'completed' AND %s IS NULL
		RETURNING `+orderColumns, column, feedbackColumn, column)
	err := r.db.GetContext(ctx, &order, query, id, score, feedback)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order repository: set rating %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidOrderStatus
}
