package postgres

import (
	"context"
	"fmt"

	"bizwatch/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const (
	qNotifExists = `
SELECT EXISTS (
	SELECT 1 FROM notifications
	WHERE subscriber_id = $1 AND listing_id = $2 AND hash = $3
);
`

	// ON CONFLICT DO NOTHING: a concurrent insert of the same triple is
	// success, never an error.
	qNotifInsert = `
INSERT INTO notifications (subscriber_id, listing_id, hash, sent_at)
VALUES ($1, $2, $3, COALESCE($4, now()))
ON CONFLICT (subscriber_id, listing_id, hash) DO NOTHING;
`
)

func (r *NotificationRepo) Exists(ctx context.Context, subscriberID int64, listingID, hash string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, qNotifExists, subscriberID, listingID, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("notification exists: %w", err)
	}
	return exists, nil
}

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Record) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qNotifInsert,
		n.SubscriberID, n.ListingID, n.Hash, nullTime(n.SentAt),
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
