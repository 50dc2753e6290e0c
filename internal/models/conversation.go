package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message author types. System messages are posted by order lifecycle
// commands (cancellations, suggestions, dispute updates).
const (
	AuthorTypeUser   = "user"
	AuthorTypeSystem = "system"
)

// Conversation is the chat thread between a buyer and a seller.
// Orders reference their conversation; lifecycle events surface there.
type Conversation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BuyerID   uuid.UUID `db:"buyer_id" json:"buyer_id"`
	SellerID  uuid.UUID `db:"seller_id" json:"seller_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// Message is a single chat entry.
type Message struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	AuthorType     string     `db:"author_type" json:"author_type"`
	AuthorID       *uuid.UUID `db:"author_id" json:"author_id,omitempty"`
	Content        string     `db:"content" json:"content"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Notification is a persisted copy of a realtime event, so users who were
// offline can catch up.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
