package sync_worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"bizwatch/internal/domain/listing"
	"bizwatch/internal/domain/notification"
	"bizwatch/internal/domain/subscriber"
)

// Dispatcher fans one discovered listing out to matching subscribers.
// The notifications table is the idempotency barrier: one successful
// send per (subscriber, listing, hash) triple, ever.
type Dispatcher struct {
	Log     *zap.Logger
	Subs    subscriber.Repo
	Records notification.Repo
	Mail    notification.EmailSender
	Clock   notification.Clock
	Workers int
}

var (
	mNotifySent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_emails_sent_total", Help: "Notification emails sent.",
	})
	mNotifySkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_emails_skipped_total", Help: "Sends skipped (record already exists).",
	})
	mNotifyFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_emails_failed_total", Help: "Mailer failures (message stays queued).",
	})
)

// NotifyListing delivers one email per matching subscriber. A non-nil
// return keeps the outbox message queued for a later pass; the stored
// records make that pass skip the subscribers already served, so a
// partial failure never double-sends and never drops anyone.
func (d *Dispatcher) NotifyListing(ctx context.Context, disc listing.Discovery) error {
	subs, err := d.Subs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	var targets []*subscriber.Subscriber
	for _, s := range subs {
		if s.Matches(&disc.Listing) {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(targets) {
		workers = len(targets)
	}

	var (
		nSent    atomic.Int64
		nSkipped atomic.Int64
		nFailed  atomic.Int64
	)

	jobs := make(chan *subscriber.Subscriber)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				switch d.deliver(ctx, s, disc) {
				case deliverSent:
					nSent.Add(1)
				case deliverSkipped:
					nSkipped.Add(1)
				default:
					nFailed.Add(1)
				}
			}
		}()
	}

	for _, s := range targets {
		select {
		case <-ctx.Done():
		case jobs <- s:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	mNotifySent.Add(float64(nSent.Load()))
	mNotifySkipped.Add(float64(nSkipped.Load()))
	mNotifyFailed.Add(float64(nFailed.Load()))

	if n := nFailed.Load(); n > 0 {
		return fmt.Errorf("listing %s: %d of %d sends failed", disc.Listing.ID, n, len(targets))
	}
	// Cancellation mid-feed leaves targets unattempted; do not let the
	// message be marked done.
	return ctx.Err()
}

type deliverResult int

const (
	deliverSent deliverResult = iota
	deliverSkipped
	deliverFailed
)

func (d *Dispatcher) deliver(ctx context.Context, sub *subscriber.Subscriber, disc listing.Discovery) deliverResult {
	l := disc.Listing

	exists, err := d.Records.Exists(ctx, sub.ID, l.ID, l.Hash)
	if err != nil {
		d.Log.Warn("notification lookup",
			zap.Int64("subscriber_id", sub.ID),
			zap.String("listing_id", l.ID),
			zap.Error(err),
		)
		return deliverFailed
	}
	if exists {
		return deliverSkipped
	}

	subject, body := renderMessage(disc)
	if err := d.Mail.Send(ctx, sub.Email, subject, body); err != nil {
		d.Log.Warn("send email",
			zap.Int64("subscriber_id", sub.ID),
			zap.String("listing_id", l.ID),
			zap.Error(err),
		)
		return deliverFailed
	}

	// The record, not the send, is the dedup barrier. If this write is
	// lost the worst case is one duplicate email on the next pass.
	if err := d.Records.Create(ctx, &notification.Record{
		SubscriberID: sub.ID,
		ListingID:    l.ID,
		Hash:         l.Hash,
		SentAt:       d.Clock.Now().UTC(),
	}); err != nil {
		d.Log.Warn("store notification record",
			zap.Int64("subscriber_id", sub.ID),
			zap.String("listing_id", l.ID),
			zap.Error(err),
		)
	}
	return deliverSent
}

func renderMessage(disc listing.Discovery) (subject, body string) {
	l := disc.Listing
	switch disc.Kind {
	case listing.Changed:
		subject = fmt.Sprintf("Updated support program: %s", l.Title)
	default:
		subject = fmt.Sprintf("New support program: %s", l.Title)
	}

	published := ""
	if !l.PublishedAt.IsZero() {
		published = l.PublishedAt.Format("2006-01-02")
	}
	body = fmt.Sprintf(
		"Hello!\n\nA business support program matching your filters was %s:\n\n"+
			"  %s\n  Category: %s\n  Agency: %s\n  Published: %s\n\n%s\n\n%s\n\n— bizwatch",
		disc.Kind, l.Title, l.Category, l.Agency, published, l.Summary, l.URL,
	)
	return subject, body
}
