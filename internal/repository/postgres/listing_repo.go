package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bizwatch/internal/domain/listing"
)

var _ listing.Store = (*ListingRepo)(nil)

type ListingRepo struct {
	db *DB
}

func NewListingRepo(db *DB) *ListingRepo { return &ListingRepo{db: db} }

const (
	qListingHash = `
SELECT hash
FROM listings
WHERE id = $1;
`

	qListingUpsert = `
INSERT INTO listings (id, title, category, agency, summary, url, published_at, hash, last_seen, retracted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
ON CONFLICT (id) DO UPDATE
SET title        = EXCLUDED.title,
    category     = EXCLUDED.category,
    agency       = EXCLUDED.agency,
    summary      = EXCLUDED.summary,
    url          = EXCLUDED.url,
    published_at = EXCLUDED.published_at,
    hash         = EXCLUDED.hash,
    last_seen    = EXCLUDED.last_seen,
    retracted    = FALSE;
`

	qListingTouch = `
UPDATE listings
SET last_seen = $2, retracted = FALSE
WHERE id = $1;
`

	qListingRetract = `
UPDATE listings
SET retracted = TRUE
WHERE id = ANY($1);
`

	qListingActiveIDs = `
SELECT id
FROM listings
WHERE retracted = FALSE;
`
)

func (r *ListingRepo) Lookup(ctx context.Context, id string) (string, bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var hash string
	if err := r.db.Pool.QueryRow(ctx, qListingHash, id).Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup listing: %w", err)
	}
	return hash, true, nil
}

func (r *ListingRepo) Upsert(ctx context.Context, l *listing.Listing) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if _, err := eq.Exec(ctx, qListingUpsert,
		l.ID, l.Title, l.Category, l.Agency, l.Summary, l.URL,
		nullTime(l.PublishedAt), l.Hash, l.LastSeen,
	); err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) TouchSeen(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qListingTouch, id, at)
	if err != nil {
		return fmt.Errorf("touch listing: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ListingRepo) MarkRetracted(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qListingRetract, ids); err != nil {
		return fmt.Errorf("mark retracted: %w", err)
	}
	return nil
}

func (r *ListingRepo) ActiveIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qListingActiveIDs)
	if err != nil {
		return nil, fmt.Errorf("query active ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
