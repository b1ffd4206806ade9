package mirror

import "context"

// Store is the capability surface the engine consumes. The SQLite
// implementation below is the default; tests substitute fakes.
type Store interface {
	// FindByIdentity returns the record for the identity value, or (nil, nil)
	// when no record exists.
	FindByIdentity(ctx context.Context, email string) (*Record, error)

	// UpdateByIdentity applies the update to the record for the identity
	// value. When no record exists it returns ErrNotFound, unless the store
	// was configured with auto-create, in which case it inserts a new record
	// carrying the update's fields.
	UpdateByIdentity(ctx context.Context, email string, u *Update) (*Record, error)

	// Insert creates a new record for the identity value.
	Insert(ctx context.Context, email string, u *Update) (*Record, error)
}
