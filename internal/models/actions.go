package models

import "github.com/google/uuid"

// Role is a user's relationship to an order.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleNone   Role = "none"
)

// ActionType identifies a command a party may invoke on an order.
type ActionType string

const (
	ActionAccept          ActionType = "accept"
	ActionReject          ActionType = "reject"
	ActionModify          ActionType = "modify"
	ActionCancel          ActionType = "cancel"
	ActionSuggestDate     ActionType = "suggest_date"
	ActionSuggestQuantity ActionType = "suggest_qty"
	ActionMarkDelivered   ActionType = "mark_delivered"
	ActionConfirmDelivery ActionType = "confirm_delivery"
	ActionDispute         ActionType = "dispute"
	ActionMakeOffer       ActionType = "make_offer"
	ActionAcceptOffer     ActionType = "accept_offer"
	ActionResolve         ActionType = "resolve"
	ActionEscalate        ActionType = "escalate"
	ActionRate            ActionType = "rate"
)

// actionTable maps (status, role) to the set of permitted actions.
// This table is the single source of truth: the command layer re-validates
// every mutation against it, UI affordances are derived from it.
var actionTable = map[OrderStatus]map[Role][]ActionType{
	OrderStatusPending: {
		RoleBuyer:  {ActionModify, ActionCancel},
		RoleSeller: {ActionAccept, ActionReject, ActionSuggestDate, ActionSuggestQuantity},
	},
	OrderStatusAccepted: {
		RoleSeller: {ActionCancel, ActionMarkDelivered},
	},
	OrderStatusDelivered: {
		RoleBuyer: {ActionConfirmDelivery, ActionDispute},
	},
	OrderStatusCompleted: {
		RoleBuyer:  {ActionRate},
		RoleSeller: {ActionRate},
	},
	OrderStatusDisputed: {
		RoleBuyer:  {ActionAcceptOffer, ActionResolve, ActionEscalate},
		RoleSeller: {ActionMakeOffer, ActionEscalate},
	},
	OrderStatusEscalated: {
		RoleBuyer:  {ActionAcceptOffer, ActionResolve},
		RoleSeller: {ActionMakeOffer, ActionResolve},
	},
	OrderStatusCancelled: {},
}

// AllowedActions returns the actions the user may currently take on the order.
// Non-participants always get the empty set. The rate action disappears once
// the party has submitted its rating.
func AllowedActions(o *Order, userID uuid.UUID) []ActionType {
	role := o.RoleOf(userID)
	if role == RoleNone {
		return []ActionType{}
	}

	byRole, ok := actionTable[o.Status]
	if !ok {
		return []ActionType{}
	}

	actions := make([]ActionType, 0, len(byRole[role]))
	for _, action := range byRole[role] {
		if action == ActionRate && o.HasRated(role) {
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

// CanPerform reports whether the user may invoke the action right now.
func CanPerform(o *Order, userID uuid.UUID, action ActionType) bool {
	for _, allowed := range AllowedActions(o, userID) {
		if allowed == action {
			return true
		}
	}
	return false
}

// ActionDisplay holds the presentation attributes of an action.
type ActionDisplay struct {
	Label       string `json:"label"`
	Style       string `json:"style"`
	NeedsReason bool   `json:"needs_reason"`
}

// ActionConfig is the static display table for order actions.
var ActionConfig = map[ActionType]ActionDisplay{
	ActionAccept:          {Label: "Accept order", Style: "primary"},
	ActionReject:          {Label: "Reject order", Style: "destructive"},
	ActionModify:          {Label: "Modify order", Style: "secondary"},
	ActionCancel:          {Label: "Cancel order", Style: "destructive"},
	ActionSuggestDate:     {Label: "Suggest another date", Style: "secondary"},
	ActionSuggestQuantity: {Label: "Suggest another quantity", Style: "secondary"},
	ActionMarkDelivered:   {Label: "Mark as delivered", Style: "primary"},
	ActionConfirmDelivery: {Label: "Confirm delivery", Style: "primary"},
	ActionDispute:         {Label: "Report a problem", Style: "destructive", NeedsReason: true},
	ActionMakeOffer:       {Label: "Offer a refund", Style: "primary"},
	ActionAcceptOffer:     {Label: "Accept refund offer", Style: "primary"},
	ActionResolve:         {Label: "Mark as resolved", Style: "secondary"},
	ActionEscalate:        {Label: "Escalate", Style: "destructive"},
	ActionRate:            {Label: "Leave a rating", Style: "primary"},
}
