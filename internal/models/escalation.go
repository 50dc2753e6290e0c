package models

import (
	"time"

	"github.com/google/uuid"
)

// Escalation statuses.
const (
	EscalationStatusOpen     = "open"
	EscalationStatusResolved = "resolved"
)

// Resolution types recorded when an escalation closes.
const (
	ResolutionRefundAccepted        = "refund_accepted"
	ResolutionResolvedWithoutRefund = "resolved_without_refund"
	ResolutionDismissed             = "dismissed"
)

// Refund offer statuses.
const (
	RefundOfferStatusPending  = "pending"
	RefundOfferStatusAccepted = "accepted"
	RefundOfferStatusRejected = "rejected"
)

// Escalation tracks a dispute raised against a delivered order.
// At most one open escalation exists per order.
type Escalation struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	OrderID          uuid.UUID  `db:"order_id" json:"order_id"`
	OpenedBy         uuid.UUID  `db:"opened_by" json:"opened_by"`
	Reason           string     `db:"reason" json:"reason"`
	ProofMediaID     *uuid.UUID `db:"proof_media_id" json:"proof_media_id,omitempty"`
	Status           string     `db:"status" json:"status"`
	ResolutionType   *string    `db:"resolution_type" json:"resolution_type,omitempty"`
	AcceptedOfferID  *uuid.UUID `db:"accepted_offer_id" json:"accepted_offer_id,omitempty"`
	ResolvedBy       *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`

	// Loaded separately, newest first.
	Offers []RefundOffer `json:"offers,omitempty"`
}

// RefundOffer is a seller's proposal to settle an escalation with a partial
// or full refund in points. Creating a new pending offer supersedes the
// previous pending one, so at most one offer is pending at a time.
type RefundOffer struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	EscalationID uuid.UUID  `db:"escalation_id" json:"escalation_id"`
	OrderID      uuid.UUID  `db:"order_id" json:"order_id"`
	SellerID     uuid.UUID  `db:"seller_id" json:"seller_id"`
	Amount       int64      `db:"amount" json:"amount"`
	Message      *string    `db:"message" json:"message,omitempty"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	DecidedAt    *time.Time `db:"decided_at" json:"decided_at,omitempty"`
}
