package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/casagrown/backend/internal/models"
)

// ErrConversationNotFound is returned when the conversation does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository stores chat threads and their messages.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new instance.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByID returns a conversation by its identifier.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, `SELECT * FROM conversations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation repository: get by id %w", err)
	}
	return &conversation, nil
}

// GetOrCreate returns the thread between a buyer and a seller, creating it
// on first contact.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	query := `
		INSERT INTO conversations (buyer_id, seller_id)
		VALUES ($1, $2)
		ON CONFLICT (buyer_id, seller_id) DO UPDATE SET buyer_id = EXCLUDED.buyer_id
		RETURNING id, buyer_id, seller_id, created_at
	`
	if err := r.db.GetContext(ctx, &conversation, query, buyerID, sellerID); err != nil {
		return nil, fmt.Errorf("conversation repository: get or create %w", err)
	}
	return &conversation, nil
}

// ListByUser returns the user's conversations, newest first.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var conversations []models.Conversation
	query := `
		SELECT * FROM conversations
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &conversations, query, userID); err != nil {
		return nil, fmt.Errorf("conversation repository: list by user %w", err)
	}
	return conversations, nil
}

// CreateMessage appends a message to the thread.
func (r *ConversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (conversation_id, author_type, author_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		message.ConversationID, message.AuthorType, message.AuthorID, message.Content,
	).Scan(&message.ID, &message.CreatedAt); err != nil {
		return fmt.Errorf("conversation repository: create message %w", err)
	}
	return nil
}

// ListMessages returns the thread's messages in chronological order.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	query := `
		SELECT * FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &messages, query, conversationID, limit, offset); err != nil {
		return nil, fmt.Errorf("conversation repository: list messages %w", err)
	}
	return messages, nil
}
