package session

import (
	"sync"
	"time"

	"Gena/ai"
)

// Session binds a user to a remote chat handle and tracks usage for the
// quota and idle-expiry policy. Timestamps and the request counter are
// guarded by the session's own mutex so request handlers and the sweep
// never race on them.
type Session struct {
	UserID         string
	ConversationID string
	Chat           *ai.Chat

	mu              sync.Mutex
	startTime       time.Time
	lastMessageTime time.Time
	requestCount    int
}

func newSession(userId, conversationId string, chat *ai.Chat) *Session {
	now := time.Now()
	return &Session{
		UserID:          userId,
		ConversationID:  conversationId,
		Chat:            chat,
		startTime:       now,
		lastMessageTime: now,
	}
}

// Touch refreshes the last-message timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMessageTime = time.Now()
}

// Increment bumps the request counter. The registry itself never rejects
// an increment past the quota; enforcement belongs to the caller and to
// the sweep.
func (s *Session) Increment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount++
}

// Consume applies the quota pre-flight in one critical section: when the
// counter is below max it is incremented and the idle clock refreshed;
// otherwise the session is left untouched and false returned. Concurrent
// callers at the boundary cannot overshoot the quota.
func (s *Session) Consume(max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestCount >= max {
		return false
	}
	s.requestCount++
	s.lastMessageTime = time.Now()
	return true
}

// RequestCount returns the number of requests consumed so far.
func (s *Session) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

// LastMessageTime returns the time of the most recent Touch.
func (s *Session) LastMessageTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessageTime
}

// StartTime returns the session creation time.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// expired reports whether the session violates the quota or idle policy.
func (s *Session) expired(now time.Time, maxRequests int, maxIdle time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount >= maxRequests || now.Sub(s.lastMessageTime) > maxIdle
}
