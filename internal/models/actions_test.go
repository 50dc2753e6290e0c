package models

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func testOrder(status OrderStatus) (*Order, uuid.UUID, uuid.UUID) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	return &Order{
		ID:       uuid.New(),
		BuyerID:  buyerID,
		SellerID: sellerID,
		Status:   status,
	}, buyerID, sellerID
}

func hasAction(actions []ActionType, want ActionType) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

func TestActionTable(t *testing.T) {
	cases := []struct {
		status OrderStatus
		buyer  []ActionType
		seller []ActionType
	}{
		{OrderStatusPending,
			[]ActionType{ActionModify, ActionCancel},
			[]ActionType{ActionAccept, ActionReject, ActionSuggestDate, ActionSuggestQuantity}},
		{OrderStatusAccepted,
			[]ActionType{},
			[]ActionType{ActionCancel, ActionMarkDelivered}},
		{OrderStatusDelivered,
			[]ActionType{ActionConfirmDelivery, ActionDispute},
			[]ActionType{}},
		{OrderStatusCompleted,
			[]ActionType{ActionRate},
			[]ActionType{ActionRate}},
		{OrderStatusDisputed,
			[]ActionType{ActionAcceptOffer, ActionResolve, ActionEscalate},
			[]ActionType{ActionMakeOffer, ActionEscalate}},
		{OrderStatusEscalated,
			[]ActionType{ActionAcceptOffer, ActionResolve},
			[]ActionType{ActionMakeOffer, ActionResolve}},
		{OrderStatusCancelled,
			[]ActionType{},
			[]ActionType{}},
	}

	for _, tc := range cases {
		order, buyerID, sellerID := testOrder(tc.status)
		if got := AllowedActions(order, buyerID); !reflect.DeepEqual(got, tc.buyer) {
			t.Errorf("%s buyer: got %v, want %v", tc.status, got, tc.buyer)
		}
		if got := AllowedActions(order, sellerID); !reflect.DeepEqual(got, tc.seller) {
			t.Errorf("%s seller: got %v, want %v", tc.status, got, tc.seller)
		}
	}
}

// Outside completed, no action may be available to both parties at once.
func TestActionTable_SidesDisjoint(t *testing.T) {
	shared := map[OrderStatus][]ActionType{
		OrderStatusDisputed:  {ActionEscalate},
		OrderStatusEscalated: {ActionResolve},
	}

	for status := range actionTable {
		if status == OrderStatusCompleted {
			continue
		}
		order, buyerID, sellerID := testOrder(status)
		for _, action := range AllowedActions(order, buyerID) {
			if hasAction(AllowedActions(order, sellerID), action) && !hasAction(shared[status], action) {
				t.Errorf("status %s: action %s available to both parties", status, action)
			}
		}
	}
}

func TestAllowedActions_Pending(t *testing.T) {
	order, buyerID, sellerID := testOrder(OrderStatusPending)

	buyerActions := AllowedActions(order, buyerID)
	if !hasAction(buyerActions, ActionModify) || !hasAction(buyerActions, ActionCancel) {
		t.Fatalf("buyer on a pending order should get modify and cancel, got %v", buyerActions)
	}
	if hasAction(buyerActions, ActionAccept) {
		t.Fatalf("buyer must not be able to accept their own order")
	}

	sellerActions := AllowedActions(order, sellerID)
	for _, want := range []ActionType{ActionAccept, ActionReject, ActionSuggestDate, ActionSuggestQuantity} {
		if !hasAction(sellerActions, want) {
			t.Fatalf("seller on a pending order should get %s, got %v", want, sellerActions)
		}
	}
}

func TestAllowedActions_NonParticipant(t *testing.T) {
	order, _, _ := testOrder(OrderStatusPending)

	actions := AllowedActions(order, uuid.New())
	if len(actions) != 0 {
		t.Fatalf("a non-participant should get no actions, got %v", actions)
	}
}

func TestAllowedActions_Cancelled(t *testing.T) {
	order, buyerID, sellerID := testOrder(OrderStatusCancelled)

	if actions := AllowedActions(order, buyerID); len(actions) != 0 {
		t.Fatalf("cancelled is terminal, buyer got %v", actions)
	}
	if actions := AllowedActions(order, sellerID); len(actions) != 0 {
		t.Fatalf("cancelled is terminal, seller got %v", actions)
	}
}

func TestAllowedActions_RateDisappearsAfterRating(t *testing.T) {
	order, buyerID, sellerID := testOrder(OrderStatusCompleted)

	if !hasAction(AllowedActions(order, buyerID), ActionRate) {
		t.Fatalf("buyer should be able to rate a completed order")
	}

	score := 5
	order.SellerRating = &score
	if hasAction(AllowedActions(order, buyerID), ActionRate) {
		t.Fatalf("buyer already rated, rate should disappear")
	}
	// The seller's side is independent.
	if !hasAction(AllowedActions(order, sellerID), ActionRate) {
		t.Fatalf("seller has not rated yet and should still see rate")
	}
}

func TestAllowedActions_DisputePhases(t *testing.T) {
	order, buyerID, sellerID := testOrder(OrderStatusDisputed)

	buyerActions := AllowedActions(order, buyerID)
	if !hasAction(buyerActions, ActionEscalate) || !hasAction(buyerActions, ActionResolve) {
		t.Fatalf("buyer in a dispute should get escalate and resolve, got %v", buyerActions)
	}
	if !hasAction(AllowedActions(order, sellerID), ActionMakeOffer) {
		t.Fatalf("seller in a dispute should be able to make an offer")
	}

	order.Status = OrderStatusEscalated
	if hasAction(AllowedActions(order, buyerID), ActionEscalate) {
		t.Fatalf("an escalated order cannot be escalated again")
	}
	if !hasAction(AllowedActions(order, sellerID), ActionResolve) {
		t.Fatalf("seller should be able to resolve an escalated order")
	}
}

func TestCanPerform(t *testing.T) {
	order, buyerID, sellerID := testOrder(OrderStatusAccepted)

	if !CanPerform(order, sellerID, ActionMarkDelivered) {
		t.Fatalf("seller should be able to mark an accepted order as delivered")
	}
	if CanPerform(order, buyerID, ActionMarkDelivered) {
		t.Fatalf("buyer must not be able to mark as delivered")
	}
	if CanPerform(order, buyerID, ActionModify) {
		t.Fatalf("modify is only available while pending")
	}
}
