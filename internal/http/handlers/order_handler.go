package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casagrown/backend/internal/dto"
	"github.com/casagrown/backend/internal/http/handlers/common"
	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/service"
)

// OrderHandler is the HTTP layer for the order lifecycle.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler creates the handler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder handles POST /orders.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateOrderRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	sellerID, err := req.ParseSellerID()
	if err != nil {
		common.RespondBadRequest(c, "invalid seller_id")
		return
	}
	offerID, err := req.ParseOfferID()
	if err != nil {
		common.RespondBadRequest(c, "invalid offer_id")
		return
	}
	deliveryDate, err := req.ParseDeliveryDate()
	if err != nil {
		common.RespondBadRequest(c, "invalid delivery_date, expected RFC3339")
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		BuyerID:              userID,
		SellerID:             sellerID,
		OfferID:              offerID,
		Product:              req.Product,
		Category:             req.Category,
		Quantity:             req.Quantity,
		Unit:                 req.Unit,
		PointsPerUnit:        req.PointsPerUnit,
		DeliveryDate:         deliveryDate,
		DeliveryAddress:      req.DeliveryAddress,
		DeliveryInstructions: req.DeliveryInstructions,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusCreated, order)
}

// ListMyOrders handles GET /orders/my.
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	list, err := h.orders.ListMyOrders(
		c.Request.Context(),
		userID,
		c.DefaultQuery("tab", "open"),
		c.DefaultQuery("role", "all"),
		c.Query("search"),
	)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, list)
}

// GetOrder handles GET /orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	detail, err := h.orders.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, detail)
}

// GetActions handles GET /orders/:id/actions.
func (h *OrderHandler) GetActions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	detail, err := h.orders.GetOrder(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"actions": detail.Actions,
		"version": detail.Order.Version,
		"status":  detail.Order.Status,
	})
}

// GetConversationOrder handles GET /conversations/:conversationId/order.
func (h *OrderHandler) GetConversationOrder(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	conversationID, err := common.ParseUUIDParam(c, "conversationId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	detail, err := h.orders.GetOrderForConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, detail)
}

// Accept handles POST /orders/:id/accept.
func (h *OrderHandler) Accept(c *gin.Context) {
	h.versionedCommand(c, h.orders.Accept)
}

// Reject handles POST /orders/:id/reject.
func (h *OrderHandler) Reject(c *gin.Context) {
	h.versionedCommand(c, h.orders.Reject)
}

// Cancel handles POST /orders/:id/cancel. Unlike accept and reject it takes
// no body: the status precondition alone guards the transition.
func (h *OrderHandler) Cancel(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// Modify handles PATCH /orders/:id.
func (h *OrderHandler) Modify(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ModifyOrderRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	deliveryDate, dateSet, err := req.ParseDeliveryDate()
	if err != nil {
		common.RespondBadRequest(c, "invalid delivery_date, expected RFC3339")
		return
	}

	order, err := h.orders.Modify(c.Request.Context(), orderID, userID, service.ModifyOrderInput{
		Quantity:             req.Quantity,
		PointsPerUnit:        req.PointsPerUnit,
		DeliveryDate:         deliveryDate,
		DeliveryDateSet:      dateSet,
		DeliveryAddress:      req.DeliveryAddress,
		DeliveryInstructions: req.DeliveryInstructions,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// MarkDelivered handles POST /orders/:id/deliver.
func (h *OrderHandler) MarkDelivered(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.DeliveryProofRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	mediaID, err := req.ParseMediaID()
	if err != nil {
		common.RespondBadRequest(c, "invalid media_id")
		return
	}
	capturedAt, err := req.ParseCapturedAt()
	if err != nil {
		common.RespondBadRequest(c, "invalid captured_at, expected RFC3339")
		return
	}

	order, err := h.orders.MarkDelivered(c.Request.Context(), orderID, userID, service.DeliveryProofInput{
		MediaID:    mediaID,
		Lat:        req.Lat,
		Lng:        req.Lng,
		CapturedAt: capturedAt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// ConfirmDelivery handles POST /orders/:id/confirm-delivery.
func (h *OrderHandler) ConfirmDelivery(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.ConfirmDelivery(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// SubmitRating handles POST /orders/:id/rating.
func (h *OrderHandler) SubmitRating(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RatingRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.SubmitRating(c.Request.Context(), orderID, userID, req.Score, req.Feedback)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// SuggestDate handles POST /orders/:id/suggest-date.
func (h *OrderHandler) SuggestDate(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.SuggestDateRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	date, err := req.ParseDate()
	if err != nil {
		common.RespondBadRequest(c, "invalid date, expected RFC3339")
		return
	}

	order, err := h.orders.SuggestDate(c.Request.Context(), orderID, userID, date)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// SuggestQuantity handles POST /orders/:id/suggest-quantity.
func (h *OrderHandler) SuggestQuantity(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.SuggestQuantityRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.orders.SuggestQuantity(c.Request.Context(), orderID, userID, req.Quantity)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// versionedCommand is the shared shape of accept and reject: a UUID route
// parameter plus the caller's expected version in the body.
func (h *OrderHandler) versionedCommand(
	c *gin.Context,
	command func(ctx context.Context, orderID, userID uuid.UUID, expectedVersion int) (*models.Order, error),
) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.VersionedRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := command(c.Request.Context(), orderID, userID, req.ExpectedVersion)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}
