package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"Gena/ai"
	"Gena/core"
	"Gena/lib/sl"
)

// ErrSessionExists is returned by Create when the user already has an
// active session. Callers must remove the old session first or reuse it.
var ErrSessionExists = errors.New("user already has an active chat session")

// ChatBinder creates a remote chat handle bound to the current cached
// context. Implemented by ai.Gemini.
type ChatBinder interface {
	NewChat() (*ai.Chat, error)
}

// Info is a read-only view of an active session, served by the
// chat-sessions route.
type Info struct {
	ConversationID    string  `json:"conversation_id"`
	UserID            string  `json:"user_id"`
	ConsumedRequests  int     `json:"consumed_requests"`
	RemainingDuration float64 `json:"remaining_duration"`
}

// Manager is the process-wide registry of active chat sessions. The map is
// guarded by a mutex; sessions guard their own counters. Expiry happens
// only in the periodic sweep, never from the read path.
type Manager struct {
	log    *slog.Logger
	binder ChatBinder

	maxRequests int
	maxIdle     time.Duration
	interval    time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(conf *core.Config, log *slog.Logger, binder ChatBinder) *Manager {
	return &Manager{
		log:         log.With(sl.Module("sessions")),
		binder:      binder,
		maxRequests: conf.Limits.MaxRequestsPerDay,
		maxIdle:     time.Duration(conf.Limits.MaxIdleSeconds) * time.Second,
		interval:    time.Duration(conf.Limits.SweepIntervalSeconds) * time.Second,
		sessions:    make(map[string]*Session),
	}
}

// Create registers a new session for the user, binding a fresh remote chat
// handle to it. Fails with ErrSessionExists if the user already has one.
func (m *Manager) Create(userId, conversationId string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[userId]; ok {
		return nil, ErrSessionExists
	}

	chat, err := m.binder.NewChat()
	if err != nil {
		return nil, fmt.Errorf("binding chat for user %s: %w", userId, err)
	}

	s := newSession(userId, conversationId, chat)
	m.sessions[userId] = s
	return s, nil
}

// Get returns the user's active session, or nil. Pure lookup.
func (m *Manager) Get(userId string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userId]
}

// Remove drops the user's session. No-op if absent.
func (m *Manager) Remove(userId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userId)
}

// Active returns a snapshot of all live sessions with their consumed
// requests and remaining idle allowance.
func (m *Manager) Active() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	now := time.Now()
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		remaining := m.maxIdle - now.Sub(s.LastMessageTime())
		if remaining < 0 {
			remaining = 0
		}
		infos = append(infos, Info{
			ConversationID:    s.ConversationID,
			UserID:            s.UserID,
			ConsumedRequests:  s.RequestCount(),
			RemainingDuration: remaining.Seconds(),
		})
	}
	return infos
}

// Sweep removes every session over its request quota or idle past the
// threshold, and returns the number removed. A failure on one entry never
// blocks reclaiming the rest.
func (m *Manager) Sweep() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for userId, s := range m.sessions {
		if m.isExpired(userId, s, now) {
			expired = append(expired, userId)
		}
	}
	for _, userId := range expired {
		delete(m.sessions, userId)
	}
	return len(expired)
}

func (m *Manager) isExpired(userId string, s *Session, now time.Time) (exp bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("evaluating session expiry",
				sl.User(userId),
				slog.Any("panic", r),
			)
			exp = false
		}
	}()
	return s.expired(now, m.maxRequests, m.maxIdle)
}

// Run executes the sweep on a fixed interval until the context is
// cancelled. The loop never terminates on error.
func (m *Manager) Run(ctx context.Context) {
	// brief delay so startup traffic is not racing the first sweep
	select {
	case <-ctx.Done():
		return
	case <-time.After(15 * time.Second):
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info("session sweep started", slog.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("session sweep stopped")
			return
		case <-ticker.C:
			m.runSweep()
		}
	}
}

func (m *Manager) runSweep() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session sweep cycle", slog.Any("panic", r))
		}
	}()
	if removed := m.Sweep(); removed > 0 {
		m.log.Info("session sweep removed sessions", slog.Int("removed", removed))
	}
}
