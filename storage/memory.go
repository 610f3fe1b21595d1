package storage

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStorage keeps conversations in a map. Used as the fallback when
// MongoDB is unavailable and by the package tests.
type MemoryStorage struct {
	mutex         sync.RWMutex
	conversations map[string]*Conversation
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*Conversation),
	}
}

func (m *MemoryStorage) Create(_ context.Context, userId string) (*Conversation, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now().UTC()
	conv := &Conversation{
		ID:              primitive.NewObjectID(),
		UserID:          userId,
		Messages:        []Message{},
		StartTime:       now,
		LastMessageTime: now,
	}
	m.conversations[conv.ID.Hex()] = conv
	return copyConversation(conv), nil
}

func (m *MemoryStorage) Get(_ context.Context, id string) (*Conversation, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (m *MemoryStorage) GetForUser(ctx context.Context, id, userId string) (*Conversation, error) {
	conv, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userId {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (m *MemoryStorage) ListByUser(_ context.Context, userId string) ([]Conversation, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	conversations := []Conversation{}
	for _, conv := range m.conversations {
		if conv.UserID == userId {
			conversations = append(conversations, *copyConversation(conv))
		}
	}
	return conversations, nil
}

func (m *MemoryStorage) AppendMessage(_ context.Context, id string, message Message, usage *TokenUsage) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}

	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	conv.Messages = append(conv.Messages, message)
	conv.LastMessageTime = time.Now().UTC()
	if usage != nil {
		conv.TotalPromptTokens += usage.Prompt
		conv.TotalResponseTokens += usage.Response
		conv.TotalTokenCount += usage.Total
	}
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.conversations, id)
	return nil
}

func (m *MemoryStorage) TokenStats(ctx context.Context, id, userId string) (*TokenStats, error) {
	conv, err := m.GetForUser(ctx, id, userId)
	if err != nil {
		return nil, err
	}
	return &TokenStats{
		ConversationID:   id,
		UserID:           userId,
		TotalUserTokens:  conv.TotalPromptTokens,
		TotalModelTokens: conv.TotalResponseTokens,
		TotalTokens:      conv.TotalTokenCount,
		MessageCount:     len(conv.Messages),
	}, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func copyConversation(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}
