package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"bizwatch/internal/domain/listing"
	"bizwatch/internal/domain/outbox"
	"bizwatch/internal/obs/retry"
	kafkax "bizwatch/internal/repository/kafka"
)

// ListingDiscoveredPayload is what the sync engine enqueues for every
// new or changed listing, inside the same transaction as the upsert.
type ListingDiscoveredPayload struct {
	ListingID string    `json:"listing_id"`
	Hash      string    `json:"hash"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	At        time.Time `json:"at"`
}

// NotifySubscribersPayload carries everything needed to render and
// send the subscriber mail for one discovery. Enqueued alongside the
// upsert, so the intent to notify survives crashes and mailer outages:
// the relay keeps retrying the message until every matching subscriber
// has a stored notification record.
type NotifySubscribersPayload struct {
	ListingID   string    `json:"listing_id"`
	Hash        string    `json:"hash"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Agency      string    `json:"agency"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	At          time.Time `json:"at"`
}

// Notifier delivers one discovery to all matching subscribers. A
// non-nil error keeps the outbox message queued for another pass.
type Notifier interface {
	NotifyListing(ctx context.Context, disc listing.Discovery) error
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers (publish, etc.)",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

func MakeGlobalOutboxHandler(pub *kafkax.DiscoveryEventsKafka, notifier Notifier, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindListingDiscovered:
			base := func(ctx context.Context, data []byte) error {
				var p ListingDiscoveredPayload
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("unmarshal listing-discovered payload: %w", err)
				}
				return pub.PublishListingDiscovered(ctx, kafkax.DiscoveryEvent{
					ListingID: p.ListingID,
					Hash:      p.Hash,
					Kind:      p.Kind,
					Title:     p.Title,
					Category:  p.Category,
					At:        p.At,
				})
			}
			return instrument("listing_discovered", base, pol), nil
		case outbox.KindNotifySubscribers:
			base := func(ctx context.Context, data []byte) error {
				var p NotifySubscribersPayload
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("unmarshal notify-subscribers payload: %w", err)
				}
				k := listing.New
				if p.Kind == listing.Changed.String() {
					k = listing.Changed
				}
				return notifier.NotifyListing(ctx, listing.Discovery{
					Listing: listing.Listing{
						ID:          p.ListingID,
						Title:       p.Title,
						Category:    p.Category,
						Agency:      p.Agency,
						Summary:     p.Summary,
						URL:         p.URL,
						PublishedAt: p.PublishedAt,
						Hash:        p.Hash,
					},
					Kind: k,
				})
			}
			return instrument("notify_subscribers", base, pol), nil
		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
