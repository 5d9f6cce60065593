package store

// SessionRecord is the durable evaluation record written once per
// finalized tutoring session.
type SessionRecord struct {
	ID              int32
	UID             string
	StudentID       string
	StrongPoints    string
	WeakPoints      string
	GeneralComments string
	Topic           string
	CreatedTs       int64
	UpdatedTs       int64
}

// FindSessionRecord filters session record queries. Nil fields are
// ignored. Results are ordered newest first.
type FindSessionRecord struct {
	ID        *int32
	UID       *string
	StudentID *string
	Limit     *int
}
