package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/pkg/apperror"
	"github.com/casagrown/backend/internal/repository"
)

func (m *mockOrderRepository) SetDispute(ctx context.Context, id uuid.UUID, reason string, proofMediaID *uuid.UUID) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, repository.ErrInvalidOrderStatus
	}
	order.Status = models.OrderStatusDisputed
	order.DisputeReason = &reason
	order.DisputeProofMediaID = proofMediaID
	order.Version++
	copied := *order
	return &copied, nil
}

// mockEscalationRepository keeps escalations and offers in memory and mimics
// the guarded transitions of the real repository.
type mockEscalationRepository struct {
	escalations map[uuid.UUID]*models.Escalation
	offers      map[uuid.UUID]*models.RefundOffer
}

func newMockEscalationRepository() *mockEscalationRepository {
	return &mockEscalationRepository{
		escalations: make(map[uuid.UUID]*models.Escalation),
		offers:      make(map[uuid.UUID]*models.RefundOffer),
	}
}

func (m *mockEscalationRepository) Create(ctx context.Context, escalation *models.Escalation) error {
	escalation.ID = uuid.New()
	escalation.Status = models.EscalationStatusOpen
	escalation.CreatedAt = time.Now()
	m.escalations[escalation.ID] = escalation
	return nil
}

func (m *mockEscalationRepository) GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error) {
	for _, escalation := range m.escalations {
		if escalation.OrderID == orderID && escalation.Status == models.EscalationStatusOpen {
			copied := *escalation
			return &copied, nil
		}
	}
	return nil, repository.ErrEscalationNotFound
}

func (m *mockEscalationRepository) Resolve(ctx context.Context, id uuid.UUID, resolutionType string, resolvedBy uuid.UUID, acceptedOfferID *uuid.UUID) (*models.Escalation, error) {
	escalation, ok := m.escalations[id]
	if !ok {
		return nil, repository.ErrEscalationNotFound
	}
	if escalation.Status != models.EscalationStatusOpen {
		return nil, repository.ErrEscalationNotOpen
	}
	now := time.Now()
	escalation.Status = models.EscalationStatusResolved
	escalation.ResolutionType = &resolutionType
	escalation.ResolvedBy = &resolvedBy
	escalation.AcceptedOfferID = acceptedOfferID
	escalation.ResolvedAt = &now
	copied := *escalation
	return &copied, nil
}

func (m *mockEscalationRepository) CreateOffer(ctx context.Context, offer *models.RefundOffer) error {
	// A new pending offer supersedes the previous pending one.
	for _, existing := range m.offers {
		if existing.EscalationID == offer.EscalationID && existing.Status == models.RefundOfferStatusPending {
			existing.Status = models.RefundOfferStatusRejected
		}
	}
	offer.ID = uuid.New()
	offer.Status = models.RefundOfferStatusPending
	offer.CreatedAt = time.Now()
	m.offers[offer.ID] = offer
	return nil
}

func (m *mockEscalationRepository) GetOfferByID(ctx context.Context, id uuid.UUID) (*models.RefundOffer, error) {
	if offer, ok := m.offers[id]; ok {
		copied := *offer
		return &copied, nil
	}
	return nil, repository.ErrOfferNotFound
}

func (m *mockEscalationRepository) DecideOffer(ctx context.Context, id uuid.UUID, newStatus string) (*models.RefundOffer, error) {
	offer, ok := m.offers[id]
	if !ok {
		return nil, repository.ErrOfferNotFound
	}
	if offer.Status != models.RefundOfferStatusPending {
		return nil, repository.ErrOfferNotPending
	}
	now := time.Now()
	offer.Status = newStatus
	offer.DecidedAt = &now
	copied := *offer
	return &copied, nil
}

func (m *mockEscalationRepository) ListOffers(ctx context.Context, escalationID uuid.UUID) ([]models.RefundOffer, error) {
	var result []models.RefundOffer
	for _, offer := range m.offers {
		if offer.EscalationID == escalationID {
			result = append(result, *offer)
		}
	}
	return result, nil
}

func newEscalationServiceForTest() (*EscalationService, *mockOrderRepository, *mockEscalationRepository, *mockWalletRepository, *mockConversationRepository) {
	orders := newMockOrderRepository()
	escalations := newMockEscalationRepository()
	wallet := newMockWalletRepository()
	conversations := newMockConversationRepository()
	service := NewEscalationService(orders, escalations, wallet, conversations, &mockBroadcaster{})
	return service, orders, escalations, wallet, conversations
}

func deliveredOrder(orders *mockOrderRepository, totalPrice int64) (*models.Order, uuid.UUID, uuid.UUID) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:    buyerID,
		SellerID:   sellerID,
		Status:     models.OrderStatusDelivered,
		TotalPrice: totalPrice,
	})
	return order, buyerID, sellerID
}

func openDispute(t *testing.T, service *EscalationService, orderID, buyerID uuid.UUID) {
	t.Helper()
	if _, err := service.Dispute(context.Background(), orderID, buyerID, "wilted produce", nil); err != nil {
		t.Fatalf("dispute returned error: %v", err)
	}
}

func TestEscalationService_DisputeRequiresReason(t *testing.T) {
	service, orders, _, _, _ := newEscalationServiceForTest()
	order, buyerID, _ := deliveredOrder(orders, 100)

	_, err := service.Dispute(context.Background(), order.ID, buyerID, "   ", nil)
	if !apperror.IsValidation(err) {
		t.Fatalf("expected a validation error for a blank reason, got %v", err)
	}
}

func TestEscalationService_DisputeOpensEscalation(t *testing.T) {
	service, orders, escalations, _, conversations := newEscalationServiceForTest()
	order, buyerID, _ := deliveredOrder(orders, 100)

	updated, err := service.Dispute(context.Background(), order.ID, buyerID, "wilted produce", nil)
	if err != nil {
		t.Fatalf("dispute returned error: %v", err)
	}
	if updated.Status != models.OrderStatusDisputed {
		t.Fatalf("expected disputed, got %s", updated.Status)
	}

	escalation, err := escalations.GetOpenByOrderID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("expected an open escalation: %v", err)
	}
	if escalation.OpenedBy != buyerID || escalation.Reason != "wilted produce" {
		t.Fatalf("escalation does not record the dispute: %+v", escalation)
	}
	if len(conversations.messages) == 0 {
		t.Fatalf("expected a system message in the conversation")
	}
}

func TestEscalationService_DisputeBySellerForbidden(t *testing.T) {
	service, orders, _, _, _ := newEscalationServiceForTest()
	order, _, sellerID := deliveredOrder(orders, 100)

	if _, err := service.Dispute(context.Background(), order.ID, sellerID, "reason", nil); err == nil {
		t.Fatalf("the seller must not be able to dispute their own delivery")
	}
}

func TestEscalationService_Escalate(t *testing.T) {
	service, orders, _, _, _ := newEscalationServiceForTest()
	order, buyerID, _ := deliveredOrder(orders, 100)
	openDispute(t, service, order.ID, buyerID)

	updated, err := service.Escalate(context.Background(), order.ID, buyerID)
	if err != nil {
		t.Fatalf("escalate returned error: %v", err)
	}
	if updated.Status != models.OrderStatusEscalated {
		t.Fatalf("expected escalated, got %s", updated.Status)
	}

	// A second escalate has nothing left to transition.
	if _, err := service.Escalate(context.Background(), order.ID, buyerID); err == nil {
		t.Fatalf("expected an error escalating twice")
	}
}

func TestEscalationService_MakeRefundOfferBounds(t *testing.T) {
	service, orders, _, _, _ := newEscalationServiceForTest()
	order, buyerID, sellerID := deliveredOrder(orders, 50)
	openDispute(t, service, order.ID, buyerID)

	ctx := context.Background()
	if _, err := service.MakeRefundOffer(ctx, order.ID, sellerID, 0, nil); !apperror.IsValidation(err) {
		t.Fatalf("expected a validation error for a zero amount, got %v", err)
	}
	if _, err := service.MakeRefundOffer(ctx, order.ID, sellerID, 51, nil); !apperror.IsValidation(err) {
		t.Fatalf("expected a validation error above the order total, got %v", err)
	}

	offer, err := service.MakeRefundOffer(ctx, order.ID, sellerID, 50, nil)
	if err != nil {
		t.Fatalf("a full refund offer returned error: %v", err)
	}
	if offer.Status != models.RefundOfferStatusPending {
		t.Fatalf("expected a pending offer, got %s", offer.Status)
	}
}

func TestEscalationService_AcceptRefundOfferSplitsEscrow(t *testing.T) {
	service, orders, escalations, wallet, _ := newEscalationServiceForTest()
	order, buyerID, sellerID := deliveredOrder(orders, 100)
	wallet.held[order.ID] = 100
	openDispute(t, service, order.ID, buyerID)

	ctx := context.Background()
	offer, err := service.MakeRefundOffer(ctx, order.ID, sellerID, 40, nil)
	if err != nil {
		t.Fatalf("offer returned error: %v", err)
	}

	escalation, err := service.AcceptRefundOffer(ctx, order.ID, offer.ID, buyerID)
	if err != nil {
		t.Fatalf("accept returned error: %v", err)
	}
	if escalation.Status != models.EscalationStatusResolved {
		t.Fatalf("expected a resolved escalation, got %s", escalation.Status)
	}
	if escalation.ResolutionType == nil || *escalation.ResolutionType != models.ResolutionRefundAccepted {
		t.Fatalf("expected refund_accepted, got %v", escalation.ResolutionType)
	}
	if wallet.splits[order.ID] != 40 {
		t.Fatalf("expected a 40 point refund split, got %d", wallet.splits[order.ID])
	}

	// The offer can only be decided once.
	if _, err := service.AcceptRefundOffer(ctx, order.ID, offer.ID, buyerID); err == nil {
		t.Fatalf("expected an error accepting a decided offer")
	}

	// No further offers on a resolved escalation.
	if _, err := escalations.GetOpenByOrderID(ctx, order.ID); !errors.Is(err, repository.ErrEscalationNotFound) {
		t.Fatalf("expected the escalation to be closed, got %v", err)
	}
}

func TestEscalationService_AcceptOfferFromAnotherOrder(t *testing.T) {
	service, orders, _, _, _ := newEscalationServiceForTest()
	order, buyerID, sellerID := deliveredOrder(orders, 100)
	other, otherBuyerID, _ := deliveredOrder(orders, 100)
	openDispute(t, service, order.ID, buyerID)
	openDispute(t, service, other.ID, otherBuyerID)

	ctx := context.Background()
	offer, err := service.MakeRefundOffer(ctx, order.ID, sellerID, 10, nil)
	if err != nil {
		t.Fatalf("offer returned error: %v", err)
	}

	// The offer belongs to the first order, not the second.
	if _, err := service.AcceptRefundOffer(ctx, other.ID, offer.ID, otherBuyerID); !apperror.IsNotFound(err) {
		t.Fatalf("expected offer not found on the wrong order, got %v", err)
	}
}

func TestEscalationService_RejectRefundOffer(t *testing.T) {
	service, orders, _, wallet, _ := newEscalationServiceForTest()
	order, buyerID, sellerID := deliveredOrder(orders, 100)
	wallet.held[order.ID] = 100
	openDispute(t, service, order.ID, buyerID)

	ctx := context.Background()
	offer, err := service.MakeRefundOffer(ctx, order.ID, sellerID, 30, nil)
	if err != nil {
		t.Fatalf("offer returned error: %v", err)
	}

	// Only the buyer decides offers.
	if _, err := service.RejectRefundOffer(ctx, order.ID, offer.ID, sellerID); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("expected forbidden for the seller, got %v", err)
	}

	decided, err := service.RejectRefundOffer(ctx, order.ID, offer.ID, buyerID)
	if err != nil {
		t.Fatalf("reject returned error: %v", err)
	}
	if decided.Status != models.RefundOfferStatusRejected {
		t.Fatalf("expected rejected, got %s", decided.Status)
	}
	if len(wallet.splits) != 0 || len(wallet.released) != 0 {
		t.Fatalf("rejecting an offer must not touch the escrow")
	}

	// The dispute stays open, so the seller may offer again.
	if _, err := service.MakeRefundOffer(ctx, order.ID, sellerID, 20, nil); err != nil {
		t.Fatalf("a follow-up offer returned error: %v", err)
	}
}

func TestEscalationService_ResolveDisputeReleasesEscrow(t *testing.T) {
	service, orders, _, wallet, _ := newEscalationServiceForTest()
	order, buyerID, _ := deliveredOrder(orders, 100)
	wallet.held[order.ID] = 100
	openDispute(t, service, order.ID, buyerID)

	updated, err := service.ResolveDispute(context.Background(), order.ID, buyerID)
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if updated.Status != models.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if len(wallet.released) != 1 {
		t.Fatalf("expected the escrow to be paid out to the seller")
	}
}

func TestEscalationService_ResolveDisputeWithoutEscrow(t *testing.T) {
	service, orders, _, _, _ := newEscalationServiceForTest()
	order, buyerID, _ := deliveredOrder(orders, 100)
	openDispute(t, service, order.ID, buyerID)

	// The escrow may have been settled by an accepted offer already.
	updated, err := service.ResolveDispute(context.Background(), order.ID, buyerID)
	if err != nil {
		t.Fatalf("resolve must tolerate a missing escrow: %v", err)
	}
	if updated.Status != models.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
}
