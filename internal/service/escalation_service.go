package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/casagrown/backend/internal/logger"
	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/pkg/apperror"
	"github.com/casagrown/backend/internal/repository"
	"github.com/casagrown/backend/internal/validation"
)

// EscalationOrderRepository is the slice of the order layer the dispute flow
// touches.
type EscalationOrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SetDispute(ctx context.Context, id uuid.UUID, reason string, proofMediaID *uuid.UUID) (*models.Order, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (*models.Order, error)
}

// EscalationRepository describes the storage dependencies of EscalationService.
type EscalationRepository interface {
	Create(ctx context.Context, escalation *models.Escalation) error
	GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error)
	Resolve(ctx context.Context, id uuid.UUID, resolutionType string, resolvedBy uuid.UUID, acceptedOfferID *uuid.UUID) (*models.Escalation, error)
	CreateOffer(ctx context.Context, offer *models.RefundOffer) error
	GetOfferByID(ctx context.Context, id uuid.UUID) (*models.RefundOffer, error)
	DecideOffer(ctx context.Context, id uuid.UUID, newStatus string) (*models.RefundOffer, error)
	ListOffers(ctx context.Context, escalationID uuid.UUID) ([]models.RefundOffer, error)
}

// EscalationWalletRepository settles escrow when a dispute closes.
type EscalationWalletRepository interface {
	SplitEscrow(ctx context.Context, orderID uuid.UUID, refundAmount int64) (*models.Escrow, error)
	ReleaseEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error)
}

// EscalationService drives the dispute and refund negotiation flow nested
// inside the disputed and escalated order statuses.
type EscalationService struct {
	orders        EscalationOrderRepository
	escalations   EscalationRepository
	wallet        EscalationWalletRepository
	conversations OrderConversationRepository
	hub           Broadcaster
}

// NewEscalationService creates the escalation service.
func NewEscalationService(
	orders EscalationOrderRepository,
	escalations EscalationRepository,
	wallet EscalationWalletRepository,
	conversations OrderConversationRepository,
	hub Broadcaster,
) *EscalationService {
	return &EscalationService{
		orders:        orders,
		escalations:   escalations,
		wallet:        wallet,
		conversations: conversations,
		hub:           hub,
	}
}

// Dispute opens a dispute against a delivered order. The reason is mandatory,
// a whitespace-only reason is rejected.
func (s *EscalationService) Dispute(ctx context.Context, orderID, userID uuid.UUID, reason string, proofMediaID *uuid.UUID) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionDispute); err != nil {
		return nil, err
	}

	if err := validation.ValidateDisputeReason(reason); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.orders.SetDispute(ctx, orderID, reason, proofMediaID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	escalation := &models.Escalation{
		OrderID:      order.ID,
		OpenedBy:     userID,
		Reason:       reason,
		ProofMediaID: proofMediaID,
	}
	if err := s.escalations.Create(ctx, escalation); err != nil {
		return nil, fmt.Errorf("escalation service: %w", err)
	}

	s.postSystemMessage(ctx, order.ConversationID, "The buyer reported a problem with the order.")
	s.notifyParties(order, "order.updated")
	return order, nil
}

// Escalate flags the dispute for neutral review. Pure status annotation, no
// settlement happens here.
func (s *EscalationService) Escalate(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionEscalate); err != nil {
		return nil, err
	}

	order, err := s.orders.UpdateStatusFrom(ctx, orderID, models.OrderStatusDisputed, models.OrderStatusEscalated)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.postSystemMessage(ctx, order.ConversationID, "The dispute was escalated for review.")
	s.notifyParties(order, "order.updated")
	return order, nil
}

// MakeRefundOffer creates a pending refund offer on the order's open
// escalation, superseding any prior pending one.
func (s *EscalationService) MakeRefundOffer(ctx context.Context, orderID, userID uuid.UUID, amount int64, message *string) (*models.RefundOffer, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionMakeOffer); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	if amount <= 0 || amount > order.TotalPrice {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("refund amount must be between 1 and %d points", order.TotalPrice))
	}
	if err := validation.ValidateOptionalText("message", message, validation.MaxMessageLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	escalation, err := s.escalations.GetOpenByOrderID(ctx, orderID)
	if err != nil {
		return nil, mapEscalationError(err)
	}

	offer := &models.RefundOffer{
		EscalationID: escalation.ID,
		OrderID:      orderID,
		SellerID:     userID,
		Amount:       amount,
		Message:      message,
	}
	if err := s.escalations.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("escalation service: %w", err)
	}

	s.postSystemMessage(ctx, order.ConversationID, fmt.Sprintf(
		"The seller offered a refund of %d points.", amount))
	s.notifyParties(order, "order.updated")
	return offer, nil
}

// AcceptRefundOffer accepts a pending offer: the offer amount goes back to
// the buyer, the remainder is paid out to the seller, and the escalation
// closes as refund_accepted. The order row keeps its status; the resolved
// escalation is the authoritative record of the outcome.
func (s *EscalationService) AcceptRefundOffer(ctx context.Context, orderID, offerID, userID uuid.UUID) (*models.Escalation, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionAcceptOffer); err != nil {
		return nil, err
	}

	offer, err := s.escalations.GetOfferByID(ctx, offerID)
	if err != nil {
		return nil, mapEscalationError(err)
	}
	if offer.OrderID != orderID {
		return nil, apperror.ErrOfferNotFound
	}

	if _, err := s.escalations.DecideOffer(ctx, offerID, models.RefundOfferStatusAccepted); err != nil {
		return nil, mapEscalationError(err)
	}

	escalation, err := s.escalations.Resolve(ctx, offer.EscalationID, models.ResolutionRefundAccepted, userID, &offerID)
	if err != nil {
		return nil, mapEscalationError(err)
	}

	if _, err := s.wallet.SplitEscrow(ctx, orderID, offer.Amount); err != nil {
		// The negotiation outcome stands; settlement failures are surfaced
		// for reconciliation.
		logger.Log.WithFields(map[string]interface{}{
			"order_id": orderID,
			"offer_id": offerID,
			"error":    err.Error(),
		}).Error("escalation service: failed to split escrow")
	}

	if order, getErr := s.orders.GetByID(ctx, orderID); getErr == nil {
		s.postSystemMessage(ctx, order.ConversationID, fmt.Sprintf(
			"The buyer accepted the refund offer of %d points.", offer.Amount))
		s.notifyParties(order, "order.updated")
	}

	return escalation, nil
}

// RejectRefundOffer declines a pending offer. The dispute stays open and the
// seller may offer again. Rejecting an already-decided offer fails cleanly
// without flipping its outcome.
func (s *EscalationService) RejectRefundOffer(ctx context.Context, orderID, offerID, userID uuid.UUID) (*models.RefundOffer, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if order.BuyerID != userID {
		return nil, apperror.ErrForbidden
	}

	offer, err := s.escalations.GetOfferByID(ctx, offerID)
	if err != nil {
		return nil, mapEscalationError(err)
	}
	if offer.OrderID != orderID {
		return nil, apperror.ErrOfferNotFound
	}

	decided, err := s.escalations.DecideOffer(ctx, offerID, models.RefundOfferStatusRejected)
	if err != nil {
		return nil, mapEscalationError(err)
	}

	s.postSystemMessage(ctx, order.ConversationID, "The buyer declined the refund offer.")
	s.notifyParties(order, "order.updated")
	return decided, nil
}

// ResolveDispute closes the dispute without a further refund. The order
// proceeds to completed and the held points are paid out to the seller.
func (s *EscalationService) ResolveDispute(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionResolve); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	escalation, err := s.escalations.GetOpenByOrderID(ctx, orderID)
	if err != nil {
		return nil, mapEscalationError(err)
	}
	if _, err := s.escalations.Resolve(ctx, escalation.ID, models.ResolutionResolvedWithoutRefund, userID, nil); err != nil {
		return nil, mapEscalationError(err)
	}

	updated, err := s.orders.UpdateStatusFrom(ctx, orderID, order.Status, models.OrderStatusCompleted)
	if err != nil {
		return nil, mapOrderError(err)
	}

	if _, err := s.wallet.ReleaseEscrow(ctx, orderID); err != nil {
		// An accepted offer may have already settled the escrow.
		if !errors.Is(err, repository.ErrEscrowNotFound) {
			logger.Log.WithFields(map[string]interface{}{
				"order_id": orderID,
				"error":    err.Error(),
			}).Error("escalation service: failed to release escrow")
		}
	}

	s.postSystemMessage(ctx, updated.ConversationID, "The dispute was resolved. Order completed.")
	s.notifyParties(updated, "order.updated")
	return updated, nil
}

// authorize loads the order and checks the action table for the caller.
func (s *EscalationService) authorize(ctx context.Context, orderID, userID uuid.UUID, action models.ActionType) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return mapOrderError(err)
	}

	if order.RoleOf(userID) == models.RoleNone {
		return apperror.ErrForbidden
	}
	if !models.CanPerform(order, userID, action) {
		return apperror.New(apperror.ErrCodeConflict,
			fmt.Sprintf("action %s is not available for a %s order", action, order.Status))
	}
	return nil
}

func (s *EscalationService) postSystemMessage(ctx context.Context, conversationID uuid.UUID, content string) {
	message := &models.Message{
		ConversationID: conversationID,
		AuthorType:     models.AuthorTypeSystem,
		Content:        content,
	}
	if err := s.conversations.CreateMessage(ctx, message); err != nil {
		logger.Log.WithFields(map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err.Error(),
		}).Warn("escalation service: failed to post system message")
	}
}

func (s *EscalationService) notifyParties(order *models.Order, event string) {
	if s.hub == nil {
		return
	}
	for _, userID := range []uuid.UUID{order.BuyerID, order.SellerID} {
		if err := s.hub.BroadcastToUser(userID, event, order); err != nil {
			logger.Log.WithFields(map[string]interface{}{
				"order_id": order.ID,
				"user_id":  userID,
				"error":    err.Error(),
			}).Warn("escalation service: failed to broadcast order event")
		}
	}
}

// mapEscalationError translates repository sentinels into API errors.
func mapEscalationError(err error) error {
	switch {
	case errors.Is(err, repository.ErrEscalationNotFound):
		return apperror.ErrEscalationNotFound
	case errors.Is(err, repository.ErrEscalationNotOpen):
		return apperror.New(apperror.ErrCodeConflict, "escalation is already resolved")
	case errors.Is(err, repository.ErrOfferNotFound):
		return apperror.ErrOfferNotFound
	case errors.Is(err, repository.ErrOfferNotPending):
		return apperror.New(apperror.ErrCodeConflict, "refund offer has already been decided")
	default:
		return fmt.Errorf("escalation service: %w", err)
	}
}
