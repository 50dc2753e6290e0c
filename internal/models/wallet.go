package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow statuses.
const (
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
	EscrowStatusSplit    = "split"
)

// Points transaction types.
const (
	TransactionTypeTopUp         = "top_up"
	TransactionTypeEscrowHold    = "escrow_hold"
	TransactionTypeEscrowAdjust  = "escrow_adjust"
	TransactionTypeEscrowRelease = "escrow_release"
	TransactionTypeEscrowRefund  = "escrow_refund"
	TransactionTypeRefundPayout  = "refund_payout"
)

// Points transaction statuses.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// PointsBalance is a user's points wallet. Reserved points back open orders
// and cannot be spent until the escrow settles.
type PointsBalance struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Available int64     `db:"available" json:"available"`
	Reserved  int64     `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PointsTransaction is one entry in the points ledger.
type PointsTransaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	OrderID     *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	Type        string     `db:"type" json:"type"`
	Amount      int64      `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	Description *string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Escrow holds the buyer's points for an order until the lifecycle settles it:
// released to the seller on completion, refunded to the buyer on cancellation,
// or split between the parties when a refund offer is accepted.
type Escrow struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OrderID    uuid.UUID  `db:"order_id" json:"order_id"`
	BuyerID    uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID   uuid.UUID  `db:"seller_id" json:"seller_id"`
	Amount     int64      `db:"amount" json:"amount"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ReleasedAt *time.Time `db:"released_at" json:"released_at,omitempty"`
}
