package dto

import (
	"time"

	"github.com/google/uuid"
)

// CreateOrderRequest is the buyer's request to place an order.
type CreateOrderRequest struct {
	SellerID             string   `json:"seller_id" binding:"required"`
	OfferID              *string  `json:"offer_id"`
	Product              string   `json:"product" binding:"required"`
	Category             *string  `json:"category"`
	Quantity             float64  `json:"quantity" binding:"required"`
	Unit                 string   `json:"unit"`
	PointsPerUnit        int64    `json:"points_per_unit" binding:"required"`
	DeliveryDate         *string  `json:"delivery_date"`
	DeliveryAddress      *string  `json:"delivery_address"`
	DeliveryInstructions *string  `json:"delivery_instructions"`
}

// ParseSellerID converts the seller ID to a UUID.
func (r *CreateOrderRequest) ParseSellerID() (uuid.UUID, error) {
	return uuid.Parse(r.SellerID)
}

// ParseOfferID converts the optional offer ID to a UUID pointer.
func (r *CreateOrderRequest) ParseOfferID() (*uuid.UUID, error) {
	return parseOptionalUUID(r.OfferID)
}

// ParseDeliveryDate converts the optional RFC3339 delivery date.
func (r *CreateOrderRequest) ParseDeliveryDate() (*time.Time, error) {
	return parseOptionalTime(r.DeliveryDate)
}

// VersionedRequest carries the optimistic-concurrency token for commands that
// race with the other party. Version 1 is the lowest valid token, so
// binding:"required" rejecting a zero value is exactly the check we want.
type VersionedRequest struct {
	ExpectedVersion int `json:"expected_version" binding:"required"`
}

// ModifyOrderRequest is the buyer's request to change a pending order's terms.
// Absent fields keep their current value. A present but empty delivery_date
// clears the date.
type ModifyOrderRequest struct {
	Quantity             *float64 `json:"quantity"`
	PointsPerUnit        *int64   `json:"points_per_unit"`
	DeliveryDate         *string  `json:"delivery_date"`
	DeliveryAddress      *string  `json:"delivery_address"`
	DeliveryInstructions *string  `json:"delivery_instructions"`
}

// ParseDeliveryDate converts the delivery date, reporting whether the field
// was present at all.
func (r *ModifyOrderRequest) ParseDeliveryDate() (date *time.Time, set bool, err error) {
	if r.DeliveryDate == nil {
		return nil, false, nil
	}
	date, err = parseOptionalTime(r.DeliveryDate)
	return date, true, err
}

// DeliveryProofRequest carries the seller's proof of delivery.
type DeliveryProofRequest struct {
	MediaID    string   `json:"media_id" binding:"required"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	CapturedAt *string  `json:"captured_at"`
}

// ParseMediaID converts the proof media ID.
func (r *DeliveryProofRequest) ParseMediaID() (uuid.UUID, error) {
	return uuid.Parse(r.MediaID)
}

// ParseCapturedAt converts the optional capture timestamp.
func (r *DeliveryProofRequest) ParseCapturedAt() (*time.Time, error) {
	return parseOptionalTime(r.CapturedAt)
}

// DisputeRequest is the buyer's complaint about a delivered order.
type DisputeRequest struct {
	Reason       string  `json:"reason" binding:"required"`
	ProofMediaID *string `json:"proof_media_id"`
}

// ParseProofMediaID converts the optional proof media ID.
func (r *DisputeRequest) ParseProofMediaID() (*uuid.UUID, error) {
	return parseOptionalUUID(r.ProofMediaID)
}

// RefundOfferRequest is the seller's refund proposal.
type RefundOfferRequest struct {
	Amount  int64   `json:"amount" binding:"required"`
	Message *string `json:"message"`
}

// RatingRequest carries one party's rating of the other.
type RatingRequest struct {
	Score    int     `json:"score" binding:"required"`
	Feedback *string `json:"feedback"`
}

// SuggestDateRequest carries the seller's delivery date counter-proposal.
type SuggestDateRequest struct {
	Date string `json:"date" binding:"required"`
}

// ParseDate converts the suggested date.
func (r *SuggestDateRequest) ParseDate() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Date)
}

// SuggestQuantityRequest carries the seller's quantity counter-proposal.
type SuggestQuantityRequest struct {
	Quantity float64 `json:"quantity" binding:"required"`
}

// SendMessageRequest is a chat message.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// TopUpRequest credits points to the caller's wallet.
type TopUpRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// UpdateProfileRequest updates the caller's profile.
type UpdateProfileRequest struct {
	DisplayName  string  `json:"display_name" binding:"required"`
	Bio          *string `json:"bio"`
	Neighborhood *string `json:"neighborhood"`
	PhotoID      *string `json:"photo_id"`
	Phone        *string `json:"phone"`
}

// ParsePhotoID converts the optional photo ID.
func (r *UpdateProfileRequest) ParsePhotoID() (*uuid.UUID, error) {
	return parseOptionalUUID(r.PhotoID)
}

// parseOptionalUUID converts an optional string UUID.
func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseOptionalTime converts an optional RFC3339 timestamp.
func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
