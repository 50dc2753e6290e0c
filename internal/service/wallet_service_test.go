package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/pkg/apperror"
	"github.com/casagrown/backend/internal/repository"
)

// mockWalletStore backs WalletService with in-memory balances and a ledger.
type mockWalletStore struct {
	balances     map[uuid.UUID]*models.PointsBalance
	transactions map[uuid.UUID][]models.PointsTransaction
	escrows      map[uuid.UUID]*models.Escrow
}

func newMockWalletStore() *mockWalletStore {
	return &mockWalletStore{
		balances:     make(map[uuid.UUID]*models.PointsBalance),
		transactions: make(map[uuid.UUID][]models.PointsTransaction),
		escrows:      make(map[uuid.UUID]*models.Escrow),
	}
}

func (m *mockWalletStore) GetBalance(ctx context.Context, userID uuid.UUID) (*models.PointsBalance, error) {
	if balance, ok := m.balances[userID]; ok {
		return balance, nil
	}
	balance := &models.PointsBalance{UserID: userID}
	m.balances[userID] = balance
	return balance, nil
}

func (m *mockWalletStore) TopUp(ctx context.Context, userID uuid.UUID, amount int64, description string) (*models.PointsTransaction, error) {
	balance, _ := m.GetBalance(ctx, userID)
	balance.Available += amount
	transaction := models.PointsTransaction{
		ID:     uuid.New(),
		UserID: userID,
		Type:   models.TransactionTypeTopUp,
		Amount: amount,
		Status: models.TransactionStatusCompleted,
	}
	m.transactions[userID] = append(m.transactions[userID], transaction)
	return &transaction, nil
}

func (m *mockWalletStore) GetEscrowByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Escrow, error) {
	if escrow, ok := m.escrows[orderID]; ok {
		return escrow, nil
	}
	return nil, repository.ErrEscrowNotFound
}

func (m *mockWalletStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PointsTransaction, error) {
	all := m.transactions[userID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func newWalletServiceForTest() (*WalletService, *mockWalletStore, *mockOrderRepository) {
	store := newMockWalletStore()
	orders := newMockOrderRepository()
	return NewWalletService(store, orders), store, orders
}

func TestWalletService_TopUp(t *testing.T) {
	service, _, _ := newWalletServiceForTest()
	ctx := context.Background()
	userID := uuid.New()

	_, err := service.TopUp(ctx, userID, 0)
	require.True(t, apperror.IsValidation(err), "a zero top-up must be rejected")

	transaction, err := service.TopUp(ctx, userID, 150)
	require.NoError(t, err)
	require.Equal(t, int64(150), transaction.Amount)

	balance, err := service.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(150), balance.Available)
	require.Equal(t, int64(0), balance.Reserved)
}

func TestWalletService_GetEscrowParticipantsOnly(t *testing.T) {
	service, store, orders := newWalletServiceForTest()
	ctx := context.Background()

	buyerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusAccepted,
	})
	store.escrows[order.ID] = &models.Escrow{
		OrderID: order.ID,
		BuyerID: buyerID,
		Amount:  75,
		Status:  models.EscrowStatusHeld,
	}

	escrow, err := service.GetEscrow(ctx, order.ID, buyerID)
	require.NoError(t, err)
	require.Equal(t, int64(75), escrow.Amount)

	_, err = service.GetEscrow(ctx, order.ID, uuid.New())
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestWalletService_GetEscrowMissing(t *testing.T) {
	service, _, orders := newWalletServiceForTest()
	buyerID := uuid.New()
	order := orders.put(&models.Order{
		BuyerID:  buyerID,
		SellerID: uuid.New(),
		Status:   models.OrderStatusPending,
	})

	_, err := service.GetEscrow(context.Background(), order.ID, buyerID)
	require.True(t, apperror.IsNotFound(err))
}

func TestWalletService_ListTransactionsClampsPaging(t *testing.T) {
	service, store, _ := newWalletServiceForTest()
	ctx := context.Background()
	userID := uuid.New()
	for i := 0; i < 30; i++ {
		_, err := store.TopUp(ctx, userID, 10, "")
		require.NoError(t, err)
	}

	// Out-of-range limit and offset fall back to defaults.
	transactions, err := service.ListTransactions(ctx, userID, -5, -1)
	require.NoError(t, err)
	require.Len(t, transactions, 20)
}
