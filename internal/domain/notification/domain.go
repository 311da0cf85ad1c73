package notification

import (
	"context"
	"time"
)

// Record marks one successful send for a (subscriber, listing, revision)
// triple. Write-once: an existing record makes a resend a no-op.
type Record struct {
	SubscriberID int64     `json:"subscriber_id"`
	ListingID    string    `json:"listing_id"`
	Hash         string    `json:"hash"`
	SentAt       time.Time `json:"sent_at"`
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Clock interface {
	Now() time.Time
}
