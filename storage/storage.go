package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a conversation does not exist or does not
// belong to the requesting user.
var ErrNotFound = errors.New("conversation not found")

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Audio carries a voice message stored verbatim alongside the transcript
// of the model's reply.
type Audio struct {
	Data     primitive.Binary `bson:"data" json:"-"`
	FileName string           `bson:"file_name" json:"file_name"`
	MimeType string           `bson:"mime_type" json:"mime_type"`
}

// NewAudio wraps raw audio bytes for storage inside a message.
func NewAudio(data []byte, fileName, mimeType string) *Audio {
	return &Audio{
		Data:     primitive.Binary{Subtype: 0x00, Data: data},
		FileName: fileName,
		MimeType: mimeType,
	}
}

type Message struct {
	Role       string    `bson:"role" json:"role"`
	Content    string    `bson:"content,omitempty" json:"content,omitempty"`
	Audio      *Audio    `bson:"audio,omitempty" json:"audio,omitempty"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	TokenCount int       `bson:"token_count,omitempty" json:"token_count,omitempty"`
}

type Conversation struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID              string             `bson:"user_id" json:"user_id"`
	Messages            []Message          `bson:"messages" json:"messages"`
	StartTime           time.Time          `bson:"start_time" json:"start_time"`
	LastMessageTime     time.Time          `bson:"last_message_time" json:"last_message_time"`
	TotalPromptTokens   int                `bson:"total_prompt_tokens,omitempty" json:"-"`
	TotalResponseTokens int                `bson:"total_response_tokens,omitempty" json:"-"`
	TotalTokenCount     int                `bson:"total_token_count,omitempty" json:"-"`
}

// TokenUsage accompanies a model reply when appending it to the log.
type TokenUsage struct {
	Prompt   int
	Response int
	Total    int
}

type TokenStats struct {
	ConversationID   string `json:"conversation_id"`
	UserID           string `json:"user_id"`
	TotalUserTokens  int    `json:"total_user_tokens"`
	TotalModelTokens int    `json:"total_model_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	MessageCount     int    `json:"message_count"`
}

// ConversationStorage persists the per-conversation message log. The chat
// core treats it as an opaque append-mostly collaborator.
type ConversationStorage interface {
	Create(ctx context.Context, userId string) (*Conversation, error)
	// Get returns the conversation, or ErrNotFound.
	Get(ctx context.Context, id string) (*Conversation, error)
	// GetForUser is Get additionally scoped to the owning user.
	GetForUser(ctx context.Context, id, userId string) (*Conversation, error)
	ListByUser(ctx context.Context, userId string) ([]Conversation, error)
	// AppendMessage pushes a message and refreshes last_message_time.
	// A non-nil usage also bumps the conversation's token totals.
	AppendMessage(ctx context.Context, id string, message Message, usage *TokenUsage) error
	// Delete removes a conversation. No-op if absent.
	Delete(ctx context.Context, id string) error
	TokenStats(ctx context.Context, id, userId string) (*TokenStats, error)
	Close() error
}
