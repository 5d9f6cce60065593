package store

import (
	"context"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Store provides database access to all raw objects.
type Store struct {
	driver Driver
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// CreateSessionRecord persists a new session record, assigning its UID
// and timestamps.
func (s *Store) CreateSessionRecord(ctx context.Context, create *SessionRecord) (*SessionRecord, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	create.UpdatedTs = now
	return s.driver.CreateSessionRecord(ctx, create)
}

// ListSessionRecords returns session records, newest first.
func (s *Store) ListSessionRecords(ctx context.Context, find *FindSessionRecord) ([]*SessionRecord, error) {
	return s.driver.ListSessionRecords(ctx, find)
}

// GetSessionRecord returns the single record matching find, or nil.
// The caller's find is not modified.
func (s *Store) GetSessionRecord(ctx context.Context, find *FindSessionRecord) (*SessionRecord, error) {
	limit := 1
	single := *find
	single.Limit = &limit
	records, err := s.driver.ListSessionRecords(ctx, &single)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
