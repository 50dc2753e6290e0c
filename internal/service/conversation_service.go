package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/casagrown/backend/internal/logger"
	"github.com/casagrown/backend/internal/models"
	"github.com/casagrown/backend/internal/pkg/apperror"
	"github.com/casagrown/backend/internal/validation"
)

// ConversationRepository describes the storage dependencies of
// ConversationService.
type ConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	CreateMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error)
}

// ConversationService handles chat threads between buyers and sellers.
type ConversationService struct {
	repo ConversationRepository
	hub  Broadcaster
}

// NewConversationService creates the conversation service.
func NewConversationService(repo ConversationRepository, hub Broadcaster) *ConversationService {
	return &ConversationService{repo: repo, hub: hub}
}

// ListMyConversations returns the user's chat threads.
func (s *ConversationService) ListMyConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListMessages returns a thread's messages in chronological order.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, limit, offset int) ([]models.Message, error) {
	conversation, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeNotFound, "conversation not found")
	}
	if !conversation.HasParticipant(userID) {
		return nil, apperror.ErrForbidden
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListMessages(ctx, conversationID, limit, offset)
}

// SendMessage appends a user message to the thread and pushes it to the other
// participant.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID, userID uuid.UUID, content string) (*models.Message, error) {
	conversation, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeNotFound, "conversation not found")
	}
	if !conversation.HasParticipant(userID) {
		return nil, apperror.ErrForbidden
	}

	if err := validation.ValidateMessageContent(content); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	message := &models.Message{
		ConversationID: conversationID,
		AuthorType:     models.AuthorTypeUser,
		AuthorID:       &userID,
		Content:        content,
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("conversation service: %w", err)
	}

	if s.hub != nil {
		recipient := conversation.BuyerID
		if recipient == userID {
			recipient = conversation.SellerID
		}
		if err := s.hub.BroadcastToUser(recipient, "message.created", message); err != nil {
			logger.Log.WithFields(map[string]interface{}{
				"conversation_id": conversationID,
				"error":           err.Error(),
			}).Warn("conversation service: failed to broadcast message")
		}
	}

	return message, nil
}
