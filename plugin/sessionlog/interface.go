// Package sessionlog provides the ephemeral per-session message log.
// Each session holds a bounded window of recent turns and expires after
// a TTL measured from the last write. Workflows append turns as they
// run and read the whole window back on finalize.
package sessionlog

import (
	"context"
	"time"
)

// Turn roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

const (
	// DefaultWindow is the maximum number of turns kept per session.
	// Oldest turns are dropped first.
	DefaultWindow = 200
	// DefaultTTL is the session expiry measured from the last append.
	DefaultTTL = 2 * time.Hour
)

// Turn is one message within a session.
type Turn struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Log is the session log contract consumed by workflows.
type Log interface {
	// Append records a turn and refreshes the session TTL.
	Append(ctx context.Context, sessionKey, role, content string, extra map[string]any) error

	// ReadAll returns all turns of the session in append order. An
	// expired or unknown session reads as empty.
	ReadAll(ctx context.Context, sessionKey string) ([]Turn, error)

	// Clear removes the session. Clearing an absent session is a no-op.
	Clear(ctx context.Context, sessionKey string) error
}
