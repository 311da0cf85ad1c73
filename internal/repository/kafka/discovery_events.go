package kafka

import (
	"context"
	"time"
)

// DiscoveryEvent is the JSON payload published for every new or changed
// listing, for consumers outside this worker (dashboards, bots).
type DiscoveryEvent struct {
	ListingID string    `json:"listing_id"`
	Hash      string    `json:"hash"`
	Kind      string    `json:"kind"` // new | changed
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	At        time.Time `json:"at"`
}

type DiscoveryEventsKafka struct {
	p *Producer
}

func NewDiscoveryEventsKafka(p *Producer) *DiscoveryEventsKafka { return &DiscoveryEventsKafka{p: p} }

func (e *DiscoveryEventsKafka) PublishListingDiscovered(ctx context.Context, ev DiscoveryEvent) error {
	return e.p.PublishJSON(ctx, []byte(ev.ListingID), ev)
}
