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

// mockOrderRepository keeps orders in memory and mimics the guarded writes
// of the real repository.
type mockOrderRepository struct {
	orders map[uuid.UUID]*models.Order
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]*models.Order)}
}

func (m *mockOrderRepository) put(order *models.Order) *models.Order {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Version == 0 {
		order.Version = 1
	}
	m.orders[order.ID] = order
	return order
}

func (m *mockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	order.ID = uuid.New()
	order.Status = models.OrderStatusPending
	order.Version = 1
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := m.orders[id]; ok {
		copied := *order
		return &copied, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepository) GetLatestByConversationID(ctx context.Context, conversationID uuid.UUID) (*models.Order, error) {
	var latest *models.Order
	for _, order := range m.orders {
		if order.ConversationID != conversationID {
			continue
		}
		if latest == nil || order.CreatedAt.After(latest.CreatedAt) {
			latest = order
		}
	}
	if latest == nil {
		return nil, repository.ErrOrderNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, role string, search string) ([]models.Order, error) {
	var result []models.Order
	for _, order := range m.orders {
		switch role {
		case "buying":
			if order.BuyerID != userID {
				continue
			}
		case "selling":
			if order.SellerID != userID {
				continue
			}
		default:
			if order.BuyerID != userID && order.SellerID != userID {
				continue
			}
		}
		result = append(result, *order)
	}
	return result, nil
}

func (m *mockOrderRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expectedVersion int, newStatus models.OrderStatus) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if order.Version != expectedVersion {
		return nil, repository.ErrVersionMismatch
	}
	order.Status = newStatus
	order.Version++
	copied := *order
	return &copied, nil
}

func (m *mockOrderRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if order.Status != from {
		return nil, repository.ErrInvalidOrderStatus
	}
	order.Status = to
	order.Version++
	copied := *order
	return &copied, nil
}

func (m *mockOrderRepository) UpdateTerms(ctx context.Context, id, buyerID uuid.UUID, changes repository.TermChanges) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if order.BuyerID != buyerID || order.Status != models.OrderStatusPending {
		return nil, repository.ErrInvalidOrderStatus
	}
	if changes.Quantity != nil {
		order.Quantity = *changes.Quantity
	}
	if changes.PointsPerUnit != nil {
		order.PointsPerUnit = *changes.PointsPerUnit
	}
	order.TotalPrice = totalPrice(order.Quantity, order.PointsPerUnit)
	order.Version++
	copied := *order
	return &copied, nil
}

func (m *mockOrderRepository) MarkDelivered(ctx context.Context, id uuid.UUID, proof repository.DeliveryProof) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusAccepted {
		return nil, repository.ErrInvalidOrderStatus
	}
	order.Status = models.OrderStatusDelivered
	order.DeliveryProofMediaID = &proof.MediaID
	order.Version++
	copied := *order
	return &copied, nil
}

func (m *mockOrderRepository) SetRating(ctx context.Context, id uuid.UUID, role models.Role, score int, feedback *string) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusCompleted || order.HasRated(role) {
		return nil, repository.ErrInvalidOrderStatus
	}
	switch role {
	case models.RoleBuyer:
		order.SellerRating = &score
		order.SellerFeedback = feedback
	case models.RoleSeller:
		order.BuyerRating = &score
		order.BuyerFeedback = feedback
	}
	order.Version++
	copied := *order
	return &copied, nil
}

// mockWalletRepository records escrow operations.
type mockWalletRepository struct {
	held     map[uuid.UUID]int64
	released []uuid.UUID
	refunded []uuid.UUID
	splits   map[uuid.UUID]int64
	failHold bool
}

func newMockWalletRepository() *mockWalletRepository {
	return &mockWalletRepository{
		held:   make(map[uuid.UUID]int64),
		splits: make(map[uuid.UUID]int64),
	}
}

func (m *mockWalletRepository) HoldEscrow(ctx context.Context, orderID, buyerID, sellerID uuid.UUID, amount int64) (*models.Escrow, error) {
	if m.failHold {
		return nil, repository.ErrInsufficientPoints
	}
	m.held[orderID] = amount
	return &models.Escrow{OrderID: orderID, BuyerID: buyerID, SellerID: sellerID, Amount: amount, Status: models.EscrowStatusHeld}, nil
}

func (m *mockWalletRepository) AdjustEscrow(ctx context.Context, orderID uuid.UUID, newAmount int64) (*models.Escrow, error) {
	if _, ok := m.held[orderID]; !ok {
		return nil, repository.ErrEscrowNotFound
	}
	m.held[orderID] = newAmount
	return &models.Escrow{OrderID: orderID, Amount: newAmount, Status: models.EscrowStatusHeld}, nil
}

func (m *mockWalletRepository) ReleaseEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	amount, ok := m.held[orderID]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	delete(m.held, orderID)
	m.released = append(m.released, orderID)
	return &models.Escrow{OrderID: orderID, Amount: amount, Status: models.EscrowStatusReleased}, nil
}

func (m *mockWalletRepository) RefundEscrow(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	amount, ok := m.held[orderID]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	delete(m.held, orderID)
	m.refunded = append(m.refunded, orderID)
	return &models.Escrow{OrderID: orderID, Amount: amount, Status: models.EscrowStatusRefunded}, nil
}

func (m *mockWalletRepository) SplitEscrow(ctx context.Context, orderID uuid.UUID, refundAmount int64) (*models.Escrow, error) {
	amount, ok := m.held[orderID]
	if !ok {
		return nil, repository.ErrEscrowNotFound
	}
	delete(m.held, orderID)
	m.splits[orderID] = refundAmount
	return &models.Escrow{OrderID: orderID, Amount: amount, Status: models.EscrowStatusSplit}, nil
}

// mockConversationRepository keeps threads and messages in memory.
type mockConversationRepository struct {
	conversations map[uuid.UUID]*models.Conversation
	messages      []models.Message
}

func newMockConversationRepository() *mockConversationRepository {
	return &mockConversationRepository{conversations: make(map[uuid.UUID]*models.Conversation)}
}

func (m *mockConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	if conversation, ok := m.conversations[id]; ok {
		return conversation, nil
	}
	return nil, repository.ErrConversationNotFound
}

func (m *mockConversationRepository) GetOrCreate(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.Conversation, error) {
	for _, conversation := range m.conversations {
		if conversation.BuyerID == buyerID && conversation.SellerID == sellerID {
			return conversation, nil
		}
	}
	conversation := &models.Conversation{ID: uuid.New(), BuyerID: buyerID, SellerID: sellerID, CreatedAt: time.Now()}
	m.conversations[conversation.ID] = conversation
	return conversation, nil
}

func (m *mockConversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	message.ID = uuid.New()
	message.CreatedAt = time.Now()
	m.messages = append(m.messages, *message)
	return nil
}

// mockEscalationReader serves open escalations for order reads.
type mockEscalationReader struct {
	open   map[uuid.UUID]*models.Escalation
	offers map[uuid.UUID][]models.RefundOffer
}

func newMockEscalationReader() *mockEscalationReader {
	return &mockEscalationReader{
		open:   make(map[uuid.UUID]*models.Escalation),
		offers: make(map[uuid.UUID][]models.RefundOffer),
	}
}

func (m *mockEscalationReader) GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escalation, error) {
	if escalation, ok := m.open[orderID]; ok {
		copied := *escalation
		return &copied, nil
	}
	return nil, repository.ErrEscalationNotFound
}

func (m *mockEscalationReader) ListOffers(ctx context.Context, escalationID uuid.UUID) ([]models.RefundOffer, error) {
	return m.offers[escalationID], nil
}

// mockBroadcaster records pushed events.
type mockBroadcaster struct {
	events []string
}

func (m *mockBroadcaster) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	m.events = append(m.events, event)
	return nil
}

func newOrderServiceForTest() (*OrderService, *mockOrderRepository, *mockWalletRepository, *mockConversationRepository, *mockBroadcaster) {
	orders := newMockOrderRepository()
	wallet := newMockWalletRepository()
	conversations := newMockConversationRepository()
	escalations := newMockEscalationReader()
	hub := &mockBroadcaster{}
	return NewOrderService(orders, wallet, conversations, escalations, hub), orders, wallet, conversations, hub
}

func TestOrderService_CreateOrderHoldsEscrow(t *testing.T) {
	service, _, wallet, conversations, hub := newOrderServiceForTest()
	ctx := context.Background()

	order, err := service.CreateOrder(ctx, CreateOrderInput{
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		Product:       "Tomatoes",
		Quantity:      2.5,
		Unit:          "kg",
		PointsPerUnit: 10,
	})
	if err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	if order.TotalPrice != 25 {
		t.Fatalf("expected total 25, got %d", order.TotalPrice)
	}
	if wallet.held[order.ID] != 25 {
		t.Fatalf("expected 25 points held in escrow, got %d", wallet.held[order.ID])
	}
	if len(conversations.messages) != 1 {
		t.Fatalf("expected one system message, got %d", len(conversations.messages))
	}
	if len(hub.events) == 0 || hub.events[0] != "order.created" {
		t.Fatalf("expected an order.created event, got %v", hub.events)
	}
}

func TestOrderService_CreateOrderSelfPurchase(t *testing.T) {
	service, _, _, _, _ := newOrderServiceForTest()
	userID := uuid.New()

	_, err := service.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:       userID,
		SellerID:      userID,
		Product:       "Tomatoes",
		Quantity:      1,
		Unit:          "kg",
		PointsPerUnit: 10,
	})
	if !apperror.IsValidation(err) {
		t.Fatalf("expected a validation error for self purchase, got %v", err)
	}
}

func TestOrderService_CreateOrderInsufficientPoints(t *testing.T) {
	service, orders, wallet, _, _ := newOrderServiceForTest()
	wallet.failHold = true

	_, err := service.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		Product:       "Tomatoes",
		Quantity:      1,
		Unit:          "kg",
		PointsPerUnit: 10,
	})
	if err == nil {
		t.Fatalf("expected an error when escrow cannot be held")
	}

	// The order must not survive without its escrow.
	for _, order := range orders.orders {
		if order.Status != models.OrderStatusCancelled {
			t.Fatalf("expected the order to be cancelled, got %s", order.Status)
		}
	}
}

func TestOrderService_AcceptStaleVersion(t *testing.T) {
	service, orders, _, _, _ := newOrderServiceForTest()
	buyerID := uuid.New()
	sellerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:  buyerID,
		SellerID: sellerID,
		Status:   models.OrderStatusPending,
		Version:  3,
	})

	_, err := service.Accept(context.Background(), order.ID, sellerID, 2)
	if !apperror.IsVersionMismatch(err) {
		t.Fatalf("expected a version mismatch, got %v", err)
	}

	updated, err := service.Accept(context.Background(), order.ID, sellerID, 3)
	if err != nil {
		t.Fatalf("accept with the current version returned error: %v", err)
	}
	if updated.Status != models.OrderStatusAccepted || updated.Version != 4 {
		t.Fatalf("expected accepted v4, got %s v%d", updated.Status, updated.Version)
	}
}

func TestOrderService_AcceptByBuyerForbidden(t *testing.T) {
	service, orders, _, _, _ := newOrderServiceForTest()
	buyerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusPending,
	})

	_, err := service.Accept(context.Background(), order.ID, buyerID, 1)
	if err == nil {
		t.Fatalf("expected an error when the buyer accepts their own order")
	}
}

func TestOrderService_RejectRefundsEscrow(t *testing.T) {
	service, orders, wallet, _, _ := newOrderServiceForTest()
	sellerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:    uuid.New(),
		SellerID:   sellerID,
		Status:     models.OrderStatusPending,
		TotalPrice: 50,
	})
	wallet.held[order.ID] = 50

	updated, err := service.Reject(context.Background(), order.ID, sellerID, 1)
	if err != nil {
		t.Fatalf("reject returned error: %v", err)
	}
	if updated.Status != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if len(wallet.refunded) != 1 || wallet.refunded[0] != order.ID {
		t.Fatalf("expected the escrow to be refunded")
	}
}

func TestOrderService_CancelPendingByBuyer(t *testing.T) {
	service, orders, wallet, _, _ := newOrderServiceForTest()
	buyerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:    buyerID,
		SellerID:   uuid.New(),
		Status:     models.OrderStatusPending,
		TotalPrice: 30,
	})
	wallet.held[order.ID] = 30

	updated, err := service.Cancel(context.Background(), order.ID, buyerID)
	if err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if updated.Status != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if len(wallet.refunded) != 1 || wallet.refunded[0] != order.ID {
		t.Fatalf("expected the escrow to be refunded to the buyer")
	}
}

func TestOrderService_CancelAcceptedBySellerOnly(t *testing.T) {
	service, orders, wallet, _, _ := newOrderServiceForTest()
	buyerID := uuid.New()
	sellerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:    buyerID,
		SellerID:   sellerID,
		Status:     models.OrderStatusAccepted,
		TotalPrice: 30,
	})
	wallet.held[order.ID] = 30

	// Once the seller has committed, only the seller may withdraw.
	if _, err := service.Cancel(context.Background(), order.ID, buyerID); err == nil {
		t.Fatalf("buyer must not be able to cancel an accepted order")
	}

	updated, err := service.Cancel(context.Background(), order.ID, sellerID)
	if err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if updated.Status != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if len(wallet.refunded) != 1 {
		t.Fatalf("expected the escrow to be refunded to the buyer")
	}

	// A second cancel has nothing left to transition.
	if _, err := service.Cancel(context.Background(), order.ID, sellerID); err == nil {
		t.Fatalf("expected an error cancelling twice")
	}
}

func TestOrderService_ModifyRecomputesTotalAndAdjustsEscrow(t *testing.T) {
	service, orders, wallet, _, _ := newOrderServiceForTest()
	buyerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:       buyerID,
		SellerID:      uuid.New(),
		Status:        models.OrderStatusPending,
		Quantity:      2,
		PointsPerUnit: 10,
		TotalPrice:    20,
	})
	wallet.held[order.ID] = 20

	newQuantity := 3.0
	updated, err := service.Modify(context.Background(), order.ID, buyerID, ModifyOrderInput{
		Quantity: &newQuantity,
	})
	if err != nil {
		t.Fatalf("modify returned error: %v", err)
	}
	if updated.TotalPrice != 30 {
		t.Fatalf("expected total 30, got %d", updated.TotalPrice)
	}
	if wallet.held[order.ID] != 30 {
		t.Fatalf("expected escrow resized to 30, got %d", wallet.held[order.ID])
	}
	if updated.Version != 2 {
		t.Fatalf("modify must bump the version, got %d", updated.Version)
	}
}

func TestOrderService_ConfirmDeliveryReleasesEscrow(t *testing.T) {
	service, orders, wallet, _, _ := newOrderServiceForTest()
	buyerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusDelivered,
	})
	wallet.held[order.ID] = 40

	updated, err := service.ConfirmDelivery(context.Background(), order.ID, buyerID)
	if err != nil {
		t.Fatalf("confirm returned error: %v", err)
	}
	if updated.Status != models.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if len(wallet.released) != 1 {
		t.Fatalf("expected the escrow to be released to the seller")
	}
}

func TestOrderService_MarkDeliveredRequiresPhoto(t *testing.T) {
	service, orders, _, _, _ := newOrderServiceForTest()
	sellerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:  uuid.New(),
		SellerID: sellerID,
		Status:   models.OrderStatusAccepted,
	})

	_, err := service.MarkDelivered(context.Background(), order.ID, sellerID, DeliveryProofInput{})
	if !apperror.IsValidation(err) {
		t.Fatalf("expected a validation error without a photo, got %v", err)
	}
}

func TestOrderService_SubmitRatingOnce(t *testing.T) {
	service, orders, _, _, _ := newOrderServiceForTest()
	buyerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusCompleted,
	})

	if _, err := service.SubmitRating(context.Background(), order.ID, buyerID, 5, nil); err != nil {
		t.Fatalf("first rating returned error: %v", err)
	}

	if _, err := service.SubmitRating(context.Background(), order.ID, buyerID, 1, nil); err == nil {
		t.Fatalf("a second rating by the same party must be rejected")
	}

	stored := orders.orders[order.ID]
	if stored.SellerRating == nil || *stored.SellerRating != 5 {
		t.Fatalf("the original rating must never be overwritten")
	}
}

func TestOrderService_ListMyOrdersTabs(t *testing.T) {
	service, orders, _, _, _ := newOrderServiceForTest()
	userID := uuid.New()
	orders.put(&models.Order{BuyerID: userID, SellerID: uuid.New(), Status: models.OrderStatusPending})
	orders.put(&models.Order{BuyerID: userID, SellerID: uuid.New(), Status: models.OrderStatusDisputed})
	orders.put(&models.Order{BuyerID: userID, SellerID: uuid.New(), Status: models.OrderStatusCompleted})
	orders.put(&models.Order{BuyerID: userID, SellerID: uuid.New(), Status: models.OrderStatusCancelled})

	open, err := service.ListMyOrders(context.Background(), userID, "open", "all", "")
	if err != nil {
		t.Fatalf("list open returned error: %v", err)
	}
	if len(open.Orders) != 2 {
		t.Fatalf("expected 2 open orders, got %d", len(open.Orders))
	}

	past, err := service.ListMyOrders(context.Background(), userID, "past", "all", "")
	if err != nil {
		t.Fatalf("list past returned error: %v", err)
	}
	if len(past.Orders) != 2 {
		t.Fatalf("expected 2 past orders, got %d", len(past.Orders))
	}

	// An unknown tab falls back to open.
	fallback, err := service.ListMyOrders(context.Background(), userID, "bogus", "all", "")
	if err != nil {
		t.Fatalf("list fallback returned error: %v", err)
	}
	if fallback.Tab != "open" {
		t.Fatalf("expected the open tab, got %s", fallback.Tab)
	}
}

func TestOrderService_GetOrderStranger(t *testing.T) {
	service, orders, _, _, _ := newOrderServiceForTest()
	order := orders.put(&models.Order{
		BuyerID:  uuid.New(),
		SellerID: uuid.New(),
		Status:   models.OrderStatusPending,
	})

	_, err := service.GetOrder(context.Background(), order.ID, uuid.New())
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("expected forbidden for a stranger, got %v", err)
	}
}
