package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Gena/ai"
	"Gena/core"
	"Gena/lib/sl"
	"Gena/session"
	"Gena/storage"
)

// ErrQuotaExceeded rejects a message before any remote call when the
// session has consumed its daily request quota. The session itself stays
// registered until the sweep reclaims it.
var ErrQuotaExceeded = errors.New("daily request quota exceeded")

// Assistant is the remote model collaborator. Implemented by ai.Gemini.
type Assistant interface {
	Resolve(ctx context.Context) (*ai.CachedContent, error)
	SendMessage(ctx context.Context, chat *ai.Chat, text string) (*ai.Reply, error)
	SendAudio(ctx context.Context, chat *ai.Chat, data []byte, mimeType, fileName string) (*ai.Reply, error)
}

// Service orchestrates one message turn: conversation lookup, session
// get-or-create, quota pre-flight, persistence of both sides of the
// exchange, and the remote call itself.
type Service struct {
	conf      *core.Config
	log       *slog.Logger
	store     storage.ConversationStorage
	assistant Assistant
	sessions  *session.Manager
}

func NewService(conf *core.Config, log *slog.Logger, store storage.ConversationStorage, assistant Assistant, sessions *session.Manager) *Service {
	return &Service{
		conf:      conf,
		log:       log.With(sl.Module("chat")),
		store:     store,
		assistant: assistant,
		sessions:  sessions,
	}
}

// StartConversation opens a conversation and a session for the user. When
// the user already holds a session bound to a live conversation, that
// conversation is returned instead of opening a second one.
func (s *Service) StartConversation(ctx context.Context, userId string) (*storage.Conversation, error) {
	if existing := s.sessions.Get(userId); existing != nil && existing.ConversationID != "" {
		conv, err := s.store.Get(ctx, existing.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		// session points at a vanished conversation, start over
		s.sessions.Remove(userId)
	}

	conv, err := s.store.Create(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if _, err := s.createSession(ctx, userId, conv.ID.Hex()); err != nil {
		// do not leave a conversation behind that no session points at
		if derr := s.store.Delete(ctx, conv.ID.Hex()); derr != nil {
			s.log.Error("removing orphaned conversation", sl.Err(derr))
		}
		return nil, err
	}
	return conv, nil
}

// SendText runs one text turn and returns the persisted model reply.
func (s *Service) SendText(ctx context.Context, conversationId, userId, text string) (*storage.Message, error) {
	sess, err := s.prepare(ctx, conversationId, userId)
	if err != nil {
		return nil, err
	}

	userMsg := storage.Message{
		Role:      storage.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, conversationId, userMsg, nil); err != nil {
		return nil, err
	}

	reply, err := s.assistant.SendMessage(ctx, sess.Chat, text)
	if err != nil {
		return nil, err
	}
	return s.recordReply(ctx, conversationId, userId, reply)
}

// SendAudio runs one voice turn. The audio is stored verbatim in the
// conversation log and answered directly by the multimodal model.
func (s *Service) SendAudio(ctx context.Context, conversationId, userId string, data []byte, mimeType, fileName string) (*storage.Message, error) {
	sess, err := s.prepare(ctx, conversationId, userId)
	if err != nil {
		return nil, err
	}

	userMsg := storage.Message{
		Role:      storage.RoleUser,
		Audio:     storage.NewAudio(data, fileName, mimeType),
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, conversationId, userMsg, nil); err != nil {
		return nil, err
	}

	reply, err := s.assistant.SendAudio(ctx, sess.Chat, data, mimeType, fileName)
	if err != nil {
		return nil, err
	}
	return s.recordReply(ctx, conversationId, userId, reply)
}

// prepare verifies the conversation, resolves the user's session (creating
// one lazily when absent) and applies the quota policy before any remote
// work happens.
func (s *Service) prepare(ctx context.Context, conversationId, userId string) (*session.Session, error) {
	if _, err := s.store.Get(ctx, conversationId); err != nil {
		return nil, err
	}

	sess := s.sessions.Get(userId)
	if sess == nil {
		var err error
		sess, err = s.createSession(ctx, userId, conversationId)
		if err != nil {
			return nil, err
		}
	}

	if !sess.Consume(s.conf.Limits.MaxRequestsPerDay) {
		s.log.Warn("quota exceeded", sl.User(userId), slog.Int("requests", sess.RequestCount()))
		return nil, ErrQuotaExceeded
	}
	return sess, nil
}

// createSession registers a session for the user. When the cached context
// was not resolved at startup (a transient remote failure), one resolution
// attempt is made here before giving up.
func (s *Service) createSession(ctx context.Context, userId, conversationId string) (*session.Session, error) {
	sess, err := s.sessions.Create(userId, conversationId)
	if err == nil || !errors.Is(err, ai.ErrCacheNotResolved) {
		return sess, err
	}
	if _, rerr := s.assistant.Resolve(ctx); rerr != nil {
		s.log.Error("resolving context cache", sl.Err(rerr))
		return nil, err
	}
	return s.sessions.Create(userId, conversationId)
}

func (s *Service) recordReply(ctx context.Context, conversationId, userId string, reply *ai.Reply) (*storage.Message, error) {
	modelMsg := storage.Message{
		Role:       storage.RoleModel,
		Content:    reply.Text,
		Timestamp:  time.Now().UTC(),
		TokenCount: reply.ResponseTokens,
	}
	usage := &storage.TokenUsage{
		Prompt:   reply.PromptTokens,
		Response: reply.ResponseTokens,
		Total:    reply.TotalTokens,
	}
	if err := s.store.AppendMessage(ctx, conversationId, modelMsg, usage); err != nil {
		// the user already got an answer, so log and hand it back anyway
		s.log.Error("persisting model reply", sl.User(userId), sl.Err(err))
	}

	logText := reply.Text
	if len(logText) > 50 {
		logText = logText[:50] + "..."
	}
	s.log.With(
		sl.User(userId),
		slog.String("text", logText),
	).Info("outgoing message")
	return &modelMsg, nil
}

// GetResponse implements core.ChatService for plain-text transports. It
// reuses the user's conversation or starts one on first contact.
func (s *Service) GetResponse(userId string, question string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conversationId := ""
	if sess := s.sessions.Get(userId); sess != nil {
		conversationId = sess.ConversationID
	}
	if conversationId == "" {
		conv, err := s.StartConversation(ctx, userId)
		if err != nil {
			return "", err
		}
		conversationId = conv.ID.Hex()
	}

	msg, err := s.SendText(ctx, conversationId, userId, question)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}
