package notification

import "context"

type Repo interface {
	// Exists reports whether a record for the triple is already stored.
	Exists(ctx context.Context, subscriberID int64, listingID, hash string) (bool, error)
	// Create inserts the record; a conflicting concurrent insert of the
	// same triple is treated as success, not an error.
	Create(ctx context.Context, r *Record) error
}
