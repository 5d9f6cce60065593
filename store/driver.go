package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// SessionRecord model related methods.
	CreateSessionRecord(ctx context.Context, create *SessionRecord) (*SessionRecord, error)
	ListSessionRecords(ctx context.Context, find *FindSessionRecord) ([]*SessionRecord, error)
}
