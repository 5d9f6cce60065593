package sessionlog

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	turns     []Turn
	lastWrite time.Time
}

// MemoryLog is an in-process session log with the same window and TTL
// semantics as the Redis log. Used for tests and single-process runs.
type MemoryLog struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	window   int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryLog creates an in-memory session log.
func NewMemoryLog(window int, ttl time.Duration) *MemoryLog {
	if window <= 0 {
		window = DefaultWindow
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryLog{
		sessions: make(map[string]*memorySession),
		window:   window,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Append records a turn, truncating the oldest entries beyond the window
// and refreshing the TTL.
func (l *MemoryLog) Append(_ context.Context, sessionKey, role, content string, extra map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	sess := l.sessions[sessionKey]
	if sess == nil || l.expired(sess, now) {
		sess = &memorySession{}
		l.sessions[sessionKey] = sess
	}

	sess.turns = append(sess.turns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: now.UTC(),
		Extra:     extra,
	})
	if len(sess.turns) > l.window {
		sess.turns = sess.turns[len(sess.turns)-l.window:]
	}
	sess.lastWrite = now
	return nil
}

// ReadAll returns all turns of the session; expired sessions read as empty.
func (l *MemoryLog) ReadAll(_ context.Context, sessionKey string) ([]Turn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sess := l.sessions[sessionKey]
	if sess == nil || l.expired(sess, l.now()) {
		return nil, nil
	}
	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

// Clear removes the session. Idempotent.
func (l *MemoryLog) Clear(_ context.Context, sessionKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionKey)
	return nil
}

func (l *MemoryLog) expired(sess *memorySession, now time.Time) bool {
	return now.Sub(sess.lastWrite) >= l.ttl
}

var _ Log = (*MemoryLog)(nil)
