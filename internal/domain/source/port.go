package source

import (
	"context"

	"bizwatch/internal/domain/listing"
)

// Client pulls one page of the upstream catalog. The cursor is an
// opaque resume token: "" starts a fresh pass, and next == "" means
// the stream is exhausted.
type Client interface {
	FetchPage(ctx context.Context, cursor string) (page []listing.Listing, next string, err error)
}
