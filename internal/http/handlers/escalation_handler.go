package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casagrown/backend/internal/dto"
	"github.com/casagrown/backend/internal/http/handlers/common"
	"github.com/casagrown/backend/internal/service"
)

// EscalationHandler is the HTTP layer for disputes and refund negotiation.
type EscalationHandler struct {
	escalations *service.EscalationService
}

// NewEscalationHandler creates the handler.
func NewEscalationHandler(escalations *service.EscalationService) *EscalationHandler {
	return &EscalationHandler{escalations: escalations}
}

// Dispute handles POST /orders/:id/dispute.
func (h *EscalationHandler) Dispute(c *gin.Context) {
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

	var req dto.DisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	proofMediaID, err := req.ParseProofMediaID()
	if err != nil {
		common.RespondBadRequest(c, "invalid proof_media_id")
		return
	}

	order, err := h.escalations.Dispute(c.Request.Context(), orderID, userID, req.Reason, proofMediaID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// Escalate handles POST /orders/:id/escalate.
func (h *EscalationHandler) Escalate(c *gin.Context) {
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

	order, err := h.escalations.Escalate(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// Resolve handles POST /orders/:id/resolve.
func (h *EscalationHandler) Resolve(c *gin.Context) {
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

	order, err := h.escalations.ResolveDispute(c.Request.Context(), orderID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, order)
}

// MakeRefundOffer handles POST /orders/:id/refund-offers.
func (h *EscalationHandler) MakeRefundOffer(c *gin.Context) {
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

	var req dto.RefundOfferRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	offer, err := h.escalations.MakeRefundOffer(c.Request.Context(), orderID, userID, req.Amount, req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusCreated, offer)
}

// AcceptRefundOffer handles POST /orders/:id/refund-offers/:offerId/accept.
func (h *EscalationHandler) AcceptRefundOffer(c *gin.Context) {
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
	offerID, err := common.ParseUUIDParam(c, "offerId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escalation, err := h.escalations.AcceptRefundOffer(c.Request.Context(), orderID, offerID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, escalation)
}

// RejectRefundOffer handles POST /orders/:id/refund-offers/:offerId/reject.
func (h *EscalationHandler) RejectRefundOffer(c *gin.Context) {
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
	offerID, err := common.ParseUUIDParam(c, "offerId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	offer, err := h.escalations.RejectRefundOffer(c.Request.Context(), orderID, offerID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	common.RespondJSON(c, http.StatusOK, offer)
}
