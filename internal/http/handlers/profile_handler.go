package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casagrown/backend/internal/dto"
	"github.com/casagrown/backend/internal/http/handlers/common"
	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/repository"
	"github.com/casagrown/backend/internal/validation"
	"github.com/casagrown/backend/internal/ws"
)

// ProfileHandler serves the current user's account and profile.
type ProfileHandler struct {
	users *repository.UserRepository
	hub   *ws.Hub
}

// NewProfileHandler creates the handler.
func NewProfileHandler(users *repository.UserRepository, hub *ws.Hub) *ProfileHandler {
	return &ProfileHandler{users: users, hub: hub}
}

// GetMe handles GET /users/me.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		common.RespondNotFound(c, "user not found")
		return
	}

	profile, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		// A missing profile row gets a default so the client always has one.
		profile = &models.Profile{
			UserID:      userID,
			DisplayName: user.Username,
		}
		if err := h.users.UpsertProfile(c.Request.Context(), profile); err != nil {
			common.RespondInternalError(c, "unable to create profile")
			return
		}
	}

	common.RespondJSON(c, http.StatusOK, gin.H{
		"user":    user,
		"profile": profile,
	})
}

// UpdateMe handles PUT /users/me.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.UpdateProfileRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateBio(req.Bio); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	photoID, err := req.ParsePhotoID()
	if err != nil {
		common.RespondBadRequest(c, "invalid photo_id")
		return
	}

	profile := &models.Profile{
		UserID:       userID,
		DisplayName:  req.DisplayName,
		Bio:          req.Bio,
		Neighborhood: req.Neighborhood,
		PhotoID:      photoID,
		Phone:        req.Phone,
	}

	if err := h.users.UpsertProfile(c.Request.Context(), profile); err != nil {
		common.RespondInternalError(c, err.Error())
		return
	}

	if h.hub != nil {
		_ = h.hub.BroadcastToUser(userID, "profile.updated", gin.H{"profile": profile})
	}

	common.RespondJSON(c, http.StatusOK, profile)
}

// GetUserProfile handles GET /users/:id, the public profile view.
func (h *ProfileHandler) GetUserProfile(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		common.RespondNotFound(c, "user not found")
		return
	}

	profile, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		common.RespondNotFound(c, "profile not found")
		return
	}

	// Email and phone stay private.
	common.RespondJSON(c, http.StatusOK, gin.H{
		"user": gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"created_at": user.CreatedAt,
		},
		"profile": gin.H{
			"display_name": profile.DisplayName,
			"bio":          profile.Bio,
			"neighborhood": profile.Neighborhood,
			"photo_id":     profile.PhotoID,
		},
	})
}
