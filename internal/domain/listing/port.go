package listing

import (
	"context"
	"time"
)

// Store is the fingerprint store the sync engine diffs against.
type Store interface {
	// Lookup returns the stored content hash for id, or found=false when
	// the listing has never been seen.
	Lookup(ctx context.Context, id string) (hash string, found bool, err error)
	// Upsert inserts or replaces the listing and clears any retraction.
	Upsert(ctx context.Context, l *Listing) error
	// TouchSeen moves last_seen forward for an unchanged listing.
	TouchSeen(ctx context.Context, id string, at time.Time) error
	// MarkRetracted flags listings that vanished from the upstream feed.
	MarkRetracted(ctx context.Context, ids []string) error
	// ActiveIDs lists ids of listings not currently flagged retracted.
	ActiveIDs(ctx context.Context) ([]string, error)
}
