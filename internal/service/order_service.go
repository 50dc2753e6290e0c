package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casagrown/backend/internal/logger"
	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/pkg/apperror"
	"github.com/casagrown/backend/internal/repository"
	"github.com/casagrown/backend/internal/validation"
)

// OrderRepository describes the storage dependencies of OrderService.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetLatestByConversationID(ctx context.Context, conversationID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, role string, search string) ([]models.Order, error)
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedVersion int, newStatus models.OrderStatus) (*models.Order, error)
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (*models.Order, error)
	UpdateTerms(ctx context.Context, id, buyerID uuid.UUID, changes repository.TermChanges) (*models.Order, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, proof repository.DeliveryProof) (*models.Order, error)
	SetRating(ctx context.Context, id uuid.UUID, role models.Role, score int, feedback *string) (*models.Order, error)
}

// OrderWalletRepository is the slice of the wallet layer the order lifecycle
// needs for escrow settlement.
type OrderWalletRepository interface {
	HoldEscrow(ctx context.Context, orderID, buyerID, sellerID uuid.UUID, amount int64) (*models.Escrow, error)
	AdjustEscrow(ctx context.Context, orderID uuid.UUID, newAmount int64) (*models.Escrow, error)
	ReleaseEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error)
	RefundEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error)
}

// OrderConversationRepository gives the order lifecycle access to the chat
// thread where system messages surface.
type OrderConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.Conversation, error)
	CreateMessage(ctx context.Context, message *models.Message) error
}

// OrderEscalationReader loads dispute context for order reads.
type OrderEscalationReader interface {
	GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error)
	ListOffers(ctx context.Context, escalationID uuid.UUID) ([]models.RefundOffer, error)
}

// Broadcaster pushes realtime events to connected clients.
type Broadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// OrderService drives the order state machine.
type OrderService struct {
	orders        OrderRepository
	wallet        OrderWalletRepository
	conversations OrderConversationRepository
	escalations   OrderEscalationReader
	hub           Broadcaster
}

// NewOrderService creates the order service.
func NewOrderService(
	orders OrderRepository,
	wallet OrderWalletRepository,
	conversations OrderConversationRepository,
	escalations OrderEscalationReader,
	hub Broadcaster,
) *OrderService {
	return &OrderService{
		orders:        orders,
		wallet:        wallet,
		conversations: conversations,
		escalations:   escalations,
		hub:           hub,
	}
}

// CreateOrderInput carries the buyer's new order.
type CreateOrderInput struct {
	BuyerID              uuid.UUID
	SellerID             uuid.UUID
	OfferID              *uuid.UUID
	Product              string
	Category             *string
	Quantity             float64
	Unit                 string
	PointsPerUnit        int64
	DeliveryDate         *time.Time
	DeliveryAddress      *string
	DeliveryInstructions *string
}

// OrderDetail is the full read model of one order: the row itself, the open
// escalation with its offers when the order is in a dispute phase, and the
// actions the viewer may take right now.
type OrderDetail struct {
	Order      *models.Order       `json:"order"`
	Escalation *models.Escalation  `json:"escalation,omitempty"`
	Actions    []models.ActionType `json:"actions"`
}

// CreateOrder creates a pending order and reserves the buyer's points.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.BuyerID == in.SellerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "cannot order from yourself")
	}
	if err := validation.ValidateProduct(in.Product); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateQuantity(in.Quantity); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidatePointsPerUnit(in.PointsPerUnit); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if strings.TrimSpace(in.Unit) == "" {
		in.Unit = "piece"
	}
	if err := validation.ValidateOptionalText("delivery address", in.DeliveryAddress, validation.MaxAddressLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateOptionalText("delivery instructions", in.DeliveryInstructions, validation.MaxInstructionsLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	conversation, err := s.conversations.GetOrCreate(ctx, in.BuyerID, in.SellerID)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	order := &models.Order{
		OfferID:              in.OfferID,
		ConversationID:       conversation.ID,
		BuyerID:              in.BuyerID,
		SellerID:             in.SellerID,
		Product:              in.Product,
		Category:             in.Category,
		Quantity:             in.Quantity,
		Unit:                 in.Unit,
		PointsPerUnit:        in.PointsPerUnit,
		TotalPrice:           totalPrice(in.Quantity, in.PointsPerUnit),
		DeliveryDate:         in.DeliveryDate,
		DeliveryAddress:      in.DeliveryAddress,
		DeliveryInstructions: in.DeliveryInstructions,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	if _, err := s.wallet.HoldEscrow(ctx, order.ID, order.BuyerID, order.SellerID, order.TotalPrice); err != nil {
		// The order cannot stand without its escrow.
		if _, cancelErr := s.orders.UpdateStatusFrom(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled); cancelErr != nil {
			logger.Log.WithFields(map[string]interface{}{
				"order_id": order.ID,
				"error":    cancelErr.Error(),
			}).Error("order service: failed to cancel order after escrow failure")
		}
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return nil, apperror.New(apperror.ErrCodeBadRequest, "not enough points to place this order")
		}
		return nil, fmt.Errorf("order service: %w", err)
	}

	s.postSystemMessage(ctx, order.ConversationID, fmt.Sprintf(
		"New order: %s, %.2f %s for %d points.", order.Product, order.Quantity, order.Unit, order.TotalPrice))
	s.notifyOrderUpdate(order, "order.created")

	return order, nil
}

// GetOrder returns the order detail as seen by the given viewer.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderDetail, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	if order.RoleOf(userID) == models.RoleNone {
		return nil, apperror.ErrForbidden
	}

	return s.buildDetail(ctx, order, userID)
}

// GetOrderForConversation returns the latest order of a conversation.
// Chat screens anchor their order card on this call.
func (s *OrderService) GetOrderForConversation(ctx context.Context, conversationID, userID uuid.UUID) (*OrderDetail, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeNotFound, "conversation not found")
	}
	if !conversation.HasParticipant(userID) {
		return nil, apperror.ErrForbidden
	}

	order, err := s.orders.GetLatestByConversationID(ctx, conversationID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	return s.buildDetail(ctx, order, userID)
}

// OrderList is the partitioned result of ListMyOrders.
type OrderList struct {
	Orders []models.Order `json:"orders"`
	Tab    string         `json:"tab"`
}

// ListMyOrders returns the user's orders for one tab. Open covers every
// non-terminal status, past covers completed and cancelled.
func (s *OrderService) ListMyOrders(ctx context.Context, userID uuid.UUID, tab, role, search string) (*OrderList, error) {
	if tab != "past" {
		tab = "open"
	}

	all, err := s.orders.ListByUser(ctx, userID, role, search)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	filtered := make([]models.Order, 0, len(all))
	for _, order := range all {
		if order.IsOpen() == (tab == "open") {
			filtered = append(filtered, order)
		}
	}

	return &OrderList{Orders: filtered, Tab: tab}, nil
}

// Accept moves a pending order to accepted. The seller must hold the current
// version so an accept issued against modified terms fails loudly.
func (s *OrderService) Accept(ctx context.Context, orderID, userID uuid.UUID, expectedVersion int) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionAccept); err != nil {
		return nil, err
	}

	order, err := s.orders.UpdateStatusCAS(ctx, orderID, expectedVersion, models.OrderStatusAccepted)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.postSystemMessage(ctx, order.ConversationID, "The seller accepted the order.")
	s.notifyOrderUpdate(order, "order.updated")
	return order, nil
}

// Reject declines a pending order and returns the buyer's points.
func (s *OrderService) Reject(ctx context.Context, orderID, userID uuid.UUID, expectedVersion int) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionReject); err != nil {
		return nil, err
	}

	order, err := s.orders.UpdateStatusCAS(ctx, orderID, expectedVersion, models.OrderStatusCancelled)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.refundEscrow(ctx, order.ID)
	s.postSystemMessage(ctx, order.ConversationID, "The seller declined the order.")
	s.notifyOrderUpdate(order, "order.updated")
	return order, nil
}

// ModifyOrderInput carries the buyer's term changes. Nil fields are untouched.
type ModifyOrderInput struct {
	Quantity             *float64
	PointsPerUnit        *int64
	DeliveryDate         *time.Time
	DeliveryDateSet      bool
	DeliveryAddress      *string
	DeliveryInstructions *string
}

// Modify lets the buyer change a pending order's terms. The write is a single
// atomic statement, so there is no version token to present; the version bump
// it produces invalidates any accept or reject aimed at the old terms.
func (s *OrderService) Modify(ctx context.Context, orderID, userID uuid.UUID, in ModifyOrderInput) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionModify); err != nil {
		return nil, err
	}

	if in.Quantity != nil {
		if err := validation.ValidateQuantity(*in.Quantity); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}
	if in.PointsPerUnit != nil {
		if err := validation.ValidatePointsPerUnit(*in.PointsPerUnit); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}
	if err := validation.ValidateOptionalText("delivery address", in.DeliveryAddress, validation.MaxAddressLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateOptionalText("delivery instructions", in.DeliveryInstructions, validation.MaxInstructionsLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	changes := repository.TermChanges{
		Quantity:             in.Quantity,
		PointsPerUnit:        in.PointsPerUnit,
		DeliveryDateSet:      in.DeliveryDateSet,
		DeliveryAddress:      in.DeliveryAddress,
		DeliveryInstructions: in.DeliveryInstructions,
	}
	if in.DeliveryDateSet && in.DeliveryDate != nil {
		changes.DeliveryDate = sql.NullTime{Time: *in.DeliveryDate, Valid: true}
	}

	order, err := s.orders.UpdateTerms(ctx, orderID, userID, changes)
	if err != nil {
		return nil, mapOrderError(err)
	}

	if _, err := s.wallet.AdjustEscrow(ctx, order.ID, order.TotalPrice); err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return nil, apperror.New(apperror.ErrCodeBadRequest, "not enough points to cover the new total")
		}
		return nil, fmt.Errorf("order service: %w", err)
	}

	s.postSystemMessage(ctx, order.ConversationID, fmt.Sprintf(
		"The buyer changed the order: %.2f %s for %d points.", order.Quantity, order.Unit, order.TotalPrice))
	s.notifyOrderUpdate(order, "order.updated")
	return order, nil
}

// Cancel cancels a pending order (buyer) or an accepted one (seller) and
// returns the escrowed points to the buyer.
func (s *OrderService) Cancel(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if order.RoleOf(userID) == models.RoleNone {
		return nil, apperror.ErrForbidden
	}
	if !models.CanPerform(order, userID, models.ActionCancel) {
		return nil, apperror.New(apperror.ErrCodeConflict,
			fmt.Sprintf("action %s is not available for a %s order", models.ActionCancel, order.Status))
	}

	// Only one party can cancel in each status, so the status precondition
	// alone serializes this write; no version token is required.
	updated, err := s.orders.UpdateStatusFrom(ctx, orderID, order.Status, models.OrderStatusCancelled)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.refundEscrow(ctx, updated.ID)
	s.postSystemMessage(ctx, updated.ConversationID, "The order was cancelled.")
	s.notifyOrderUpdate(updated, "order.updated")
	return updated, nil
}

// DeliveryProofInput carries the seller's delivery evidence. The photo is
// mandatory, location is attached when the device provided one.
type DeliveryProofInput struct {
	MediaID    uuid.UUID
	Lat        *float64
	Lng        *float64
	CapturedAt *time.Time
}

// MarkDelivered records proof of delivery and moves the order to delivered.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID, userID uuid.UUID, in DeliveryProofInput) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionMarkDelivered); err != nil {
		return nil, err
	}

	if in.MediaID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "a delivery photo is required")
	}

	proof := repository.DeliveryProof{MediaID: in.MediaID, Lat: in.Lat, Lng: in.Lng}
	if in.CapturedAt != nil {
		proof.CapturedAt = sql.NullTime{Time: *in.CapturedAt, Valid: true}
	}

	order, err := s.orders.MarkDelivered(ctx, orderID, proof)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.postSystemMessage(ctx, order.ConversationID, "The seller marked the order as delivered.")
	s.notifyOrderUpdate(order, "order.updated")
	return order, nil
}

// ConfirmDelivery completes the order and pays the seller out of escrow.
func (s *OrderService) ConfirmDelivery(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionConfirmDelivery); err != nil {
		return nil, err
	}

	order, err := s.orders.UpdateStatusFrom(ctx, orderID, models.OrderStatusDelivered, models.OrderStatusCompleted)
	if err != nil {
		return nil, mapOrderError(err)
	}

	if _, err := s.wallet.ReleaseEscrow(ctx, order.ID); err != nil {
		// Completion stands; settlement failures are surfaced for reconciliation.
		logger.Log.WithFields(map[string]interface{}{
			"order_id": order.ID,
			"error":    err.Error(),
		}).Error("order service: failed to release escrow")
	}

	s.postSystemMessage(ctx, order.ConversationID, "The buyer confirmed delivery. Order completed.")
	s.notifyOrderUpdate(order, "order.updated")
	return order, nil
}

// SubmitRating stores one party's rating of the other. A party rates once;
// repeat submissions are rejected, never overwritten.
func (s *OrderService) SubmitRating(ctx context.Context, orderID, userID uuid.UUID, score int, feedback *string) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionRate); err != nil {
		return nil, err
	}

	if err := validation.ValidateRating(score); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateOptionalText("feedback", feedback, validation.MaxFeedbackLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	updated, err := s.orders.SetRating(ctx, orderID, order.RoleOf(userID), score, feedback)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.notifyOrderUpdate(updated, "order.updated")
	return updated, nil
}

// SuggestDate posts the seller's counter-proposal for a delivery date into the
// conversation. The order itself does not change until the buyer modifies it.
func (s *OrderService) SuggestDate(ctx context.Context, orderID, userID uuid.UUID, date time.Time) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionSuggestDate); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.postSystemMessage(ctx, order.ConversationID, fmt.Sprintf(
		"The seller suggested another delivery date: %s.", date.Format("Jan 2, 2006")))
	s.notifyOrderUpdate(order, "order.updated")
	return order, nil
}

// SuggestQuantity posts the seller's counter-proposal for a quantity.
func (s *OrderService) SuggestQuantity(ctx context.Context, orderID, userID uuid.UUID, quantity float64) (*models.Order, error) {
	if err := s.authorize(ctx, orderID, userID, models.ActionSuggestQuantity); err != nil {
		return nil, err
	}

	if err := validation.ValidateQuantity(quantity); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}

	s.postSystemMessage(ctx, order.ConversationID, fmt.Sprintf(
		"The seller suggested another quantity: %.2f %s.", quantity, order.Unit))
	s.notifyOrderUpdate(order, "order.updated")
	return order, nil
}

// authorize loads the order and checks the action table for the caller.
func (s *OrderService) authorize(ctx context.Context, orderID, userID uuid.UUID, action models.ActionType) error {
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

// buildDetail assembles the read model for one viewer.
func (s *OrderService) buildDetail(ctx context.Context, order *models.Order, userID uuid.UUID) (*OrderDetail, error) {
	detail := &OrderDetail{
		Order:   order,
		Actions: models.AllowedActions(order, userID),
	}

	if order.Status == models.OrderStatusDisputed || order.Status == models.OrderStatusEscalated {
		escalation, err := s.escalations.GetOpenByOrderID(ctx, order.ID)
		if err == nil {
			offers, offersErr := s.escalations.ListOffers(ctx, escalation.ID)
			if offersErr != nil {
				return nil, fmt.Errorf("order service: %w", offersErr)
			}
			escalation.Offers = offers
			detail.Escalation = escalation
		} else if !errors.Is(err, repository.ErrEscalationNotFound) {
			return nil, fmt.Errorf("order service: %w", err)
		}
	}

	return detail, nil
}

// refundEscrow returns held points to the buyer, logging settlement failures.
func (s *OrderService) refundEscrow(ctx context.Context, orderID uuid.UUID) {
	if _, err := s.wallet.RefundEscrow(ctx, orderID); err != nil {
		logger.Log.WithFields(map[string]interface{}{
			"order_id": orderID,
			"error":    err.Error(),
		}).Error("order service: failed to refund escrow")
	}
}

// postSystemMessage appends a lifecycle event to the order's chat thread.
func (s *OrderService) postSystemMessage(ctx context.Context, conversationID uuid.UUID, content string) {
	message := &models.Message{
		ConversationID: conversationID,
		AuthorType:     models.AuthorTypeSystem,
		Content:        content,
	}
	if err := s.conversations.CreateMessage(ctx, message); err != nil {
		logger.Log.WithFields(map[string]interface{}{
			"conversation_id": conversationID,
			"error":           err.Error(),
		}).Warn("order service: failed to post system message")
	}
}

// notifyOrderUpdate pushes the fresh order snapshot to both parties.
func (s *OrderService) notifyOrderUpdate(order *models.Order, event string) {
	if s.hub == nil {
		return
	}
	for _, userID := range []uuid.UUID{order.BuyerID, order.SellerID} {
		if err := s.hub.BroadcastToUser(userID, event, order); err != nil {
			logger.Log.WithFields(map[string]interface{}{
				"order_id": order.ID,
				"user_id":  userID,
				"error":    err.Error(),
			}).Warn("order service: failed to broadcast order event")
		}
	}
}

// totalPrice computes the escrowed total, rounded to whole points.
func totalPrice(quantity float64, pointsPerUnit int64) int64 {
	return int64(math.Round(quantity * float64(pointsPerUnit)))
}

// mapOrderError translates repository sentinels into API errors.
func mapOrderError(err error) error {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return apperror.ErrOrderNotFound
	case errors.Is(err, repository.ErrVersionMismatch):
		return apperror.ErrVersionMismatch
	case errors.Is(err, repository.ErrInvalidOrderStatus):
		return apperror.New(apperror.ErrCodeConflict, "order is no longer in a state that allows this action")
	default:
		return fmt.Errorf("order service: %w", err)
	}
}
