package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusDisputed  OrderStatus = "disputed"
	OrderStatusEscalated OrderStatus = "escalated"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ValidOrderStatuses lists every status the state machine knows about.
var ValidOrderStatuses = map[OrderStatus]bool{
	OrderStatusPending:   true,
	OrderStatusAccepted:  true,
	OrderStatusDelivered: true,
	OrderStatusCompleted: true,
	OrderStatusDisputed:  true,
	OrderStatusEscalated: true,
	OrderStatusCancelled: true,
}

// Order is a transaction between a buyer and a seller, priced in points.
type Order struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OfferID        *uuid.UUID `db:"offer_id" json:"offer_id,omitempty"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	BuyerID        uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID       uuid.UUID  `db:"seller_id" json:"seller_id"`

	Product       string  `db:"product" json:"product"`
	Category      *string `db:"category" json:"category,omitempty"`
	Quantity      float64 `db:"quantity" json:"quantity"`
	Unit          string  `db:"unit" json:"unit"`
	PointsPerUnit int64   `db:"points_per_unit" json:"points_per_unit"`
	// TotalPrice is always recomputed as quantity * points_per_unit.
	// A client-supplied total is never trusted.
	TotalPrice int64 `db:"total_price" json:"total_price"`

	DeliveryDate         *time.Time `db:"delivery_date" json:"delivery_date,omitempty"`
	DeliveryAddress      *string    `db:"delivery_address" json:"delivery_address,omitempty"`
	DeliveryInstructions *string    `db:"delivery_instructions" json:"delivery_instructions,omitempty"`

	DeliveryProofMediaID    *uuid.UUID `db:"delivery_proof_media_id" json:"delivery_proof_media_id,omitempty"`
	DeliveryProofLat        *float64   `db:"delivery_proof_lat" json:"delivery_proof_lat,omitempty"`
	DeliveryProofLng        *float64   `db:"delivery_proof_lng" json:"delivery_proof_lng,omitempty"`
	DeliveryProofCapturedAt *time.Time `db:"delivery_proof_captured_at" json:"delivery_proof_captured_at,omitempty"`

	DisputeReason       *string    `db:"dispute_reason" json:"dispute_reason,omitempty"`
	DisputeProofMediaID *uuid.UUID `db:"dispute_proof_media_id" json:"dispute_proof_media_id,omitempty"`

	// The buyer rates the seller and vice versa. Each party rates once.
	SellerRating   *int    `db:"seller_rating" json:"seller_rating,omitempty"`
	SellerFeedback *string `db:"seller_feedback" json:"seller_feedback,omitempty"`
	BuyerRating    *int    `db:"buyer_rating" json:"buyer_rating,omitempty"`
	BuyerFeedback  *string `db:"buyer_feedback" json:"buyer_feedback,omitempty"`

	Status OrderStatus `db:"status" json:"status"`
	// Version increases by one on every successful mutation.
	// Accept/reject/modify check the expected version before writing.
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the order is still in its active phase.
// Completed and cancelled are terminal.
func (o *Order) IsOpen() bool {
	return o.Status != OrderStatusCompleted && o.Status != OrderStatusCancelled
}

// RoleOf returns the caller's role within the order.
func (o *Order) RoleOf(userID uuid.UUID) Role {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	default:
		return RoleNone
	}
}

// HasRated reports whether the given party has already left its rating.
func (o *Order) HasRated(role Role) bool {
	switch role {
	case RoleBuyer:
		return o.SellerRating != nil
	case RoleSeller:
		return o.BuyerRating != nil
	default:
		return false
	}
}

// StatusDisplay holds the presentation attributes of a status.
// Display metadata is kept separate from the transition table.
type StatusDisplay struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// StatusConfig is the static display table for order statuses.
var StatusConfig = map[OrderStatus]StatusDisplay{
	OrderStatusPending:   {Label: "Pending", Color: "#F59E0B", Icon: "clock"},
	OrderStatusAccepted:  {Label: "Accepted", Color: "#3B82F6", Icon: "check-circle"},
	OrderStatusDelivered: {Label: "Delivered", Color: "#8B5CF6", Icon: "package"},
	OrderStatusCompleted: {Label: "Completed", Color: "#10B981", Icon: "check-badge"},
	OrderStatusDisputed:  {Label: "Disputed", Color: "#EF4444", Icon: "alert-triangle"},
	OrderStatusEscalated: {Label: "Escalated", Color: "#DC2626", Icon: "shield-alert"},
	OrderStatusCancelled: {Label: "Cancelled", Color: "#6B7280", Icon: "x-circle"},
}
