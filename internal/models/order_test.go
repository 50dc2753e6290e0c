package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestOrder_IsOpen(t *testing.T) {
	open := []OrderStatus{
		OrderStatusPending, OrderStatusAccepted, OrderStatusDelivered,
		OrderStatusDisputed, OrderStatusEscalated,
	}
	for _, status := range open {
		if !(&Order{Status: status}).IsOpen() {
			t.Errorf("status %s should count as open", status)
		}
	}

	for _, status := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled} {
		if (&Order{Status: status}).IsOpen() {
			t.Errorf("status %s should count as closed", status)
		}
	}
}

func TestOrder_RoleOf(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	order := &Order{BuyerID: buyerID, SellerID: sellerID}

	if order.RoleOf(buyerID) != RoleBuyer {
		t.Errorf("expected buyer role")
	}
	if order.RoleOf(sellerID) != RoleSeller {
		t.Errorf("expected seller role")
	}
	if order.RoleOf(uuid.New()) != RoleNone {
		t.Errorf("expected none for a stranger")
	}
}

func TestOrder_HasRated(t *testing.T) {
	score := 4
	order := &Order{SellerRating: &score}

	// The buyer rates the seller, so a seller rating means the buyer has rated.
	if !order.HasRated(RoleBuyer) {
		t.Errorf("buyer has rated")
	}
	if order.HasRated(RoleSeller) {
		t.Errorf("seller has not rated yet")
	}
	if order.HasRated(RoleNone) {
		t.Errorf("a stranger never counts as having rated")
	}
}
