package postgres

import (
	"context"
	"fmt"

	"bizwatch/internal/domain/subscriber"
)

var _ subscriber.Repo = (*SubscriberRepo)(nil)

// SubscriberRepo reads subscribers seeded by the admin app; this core
// never writes them.
type SubscriberRepo struct {
	db *DB
}

func NewSubscriberRepo(db *DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const qSubscribersActive = `
SELECT id, email, categories, keywords, active
FROM subscribers
WHERE active = TRUE
ORDER BY id;
`

func (r *SubscriberRepo) ListActive(ctx context.Context) ([]*subscriber.Subscriber, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qSubscribersActive)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var out []*subscriber.Subscriber
	for rows.Next() {
		var s subscriber.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.Categories, &s.Keywords, &s.Active); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
