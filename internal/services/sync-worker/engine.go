package sync_worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"bizwatch/internal/domain/checkpoint"
	"bizwatch/internal/domain/listing"
	"bizwatch/internal/domain/notification"
	outboxdom "bizwatch/internal/domain/outbox"
	"bizwatch/internal/domain/source"
	"bizwatch/internal/obs/retry"
	intoutbox "bizwatch/internal/outbox"
	"bizwatch/internal/repository/postgres"
)

type EngineConfig struct {
	FetchAttempts  int
	Backoff        retry.ExpoJitter
	RateLimitFloor time.Duration
}

// Engine runs one sync cycle: fetch, diff against the fingerprint
// store, persist, retract, checkpoint. Discovery events and subscriber
// notifications are enqueued on the outbox inside the upsert
// transaction; the relay delivers both.
type Engine struct {
	Log         *zap.Logger
	Source      source.Client
	Store       listing.Store
	Checkpoints checkpoint.Repo
	Outbox      outboxdom.Repository
	Tx          postgres.Transactor
	Clock       notification.Clock
	Cfg         EngineConfig
}

var (
	mListingsNew = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_listings_new_total", Help: "Listings classified new.",
	})
	mListingsChanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_listings_changed_total", Help: "Listings classified changed.",
	})
	mListingsUnchanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_listings_unchanged_total", Help: "Listings classified unchanged.",
	})
	mListingsRetracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_listings_retracted_total", Help: "Listings flagged retracted.",
	})
	mFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_fetch_errors_total", Help: "Upstream fetch failures after retries.",
	})
)

// RunCycle never panics the host process; any failure is persisted on
// the checkpoint (partial cursor + error) and returned for logging.
func (e *Engine) RunCycle(ctx context.Context) error {
	tr := otel.Tracer("sync.engine")
	ctx, span := tr.Start(ctx, "sync.cycle")
	defer span.End()

	cp, err := e.Checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	cursor := cp.Cursor
	fresh := cursor == ""
	span.SetAttributes(
		attribute.Bool("cycle.fresh", fresh),
		attribute.String("cycle.cursor", cursor),
	)

	seen := make(map[string]struct{})
	discovered := 0

	for {
		page, next, ferr := e.fetchPage(ctx, cursor)
		if ferr != nil {
			mFetchErrors.Inc()
			span.RecordError(ferr)
			e.failCycle(ctx, cursor, ferr)
			return fmt.Errorf("fetch page (cursor %q): %w", cursor, ferr)
		}

		for i := range page {
			l := &page[i]
			seen[l.ID] = struct{}{}

			kind, aerr := e.apply(ctx, l)
			if aerr != nil {
				span.RecordError(aerr)
				e.failCycle(ctx, cursor, aerr)
				return aerr
			}
			switch kind {
			case listing.New:
				mListingsNew.Inc()
				discovered++
			case listing.Changed:
				mListingsChanged.Inc()
				discovered++
			default:
				mListingsUnchanged.Inc()
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	// A resumed cycle saw only part of the stream, so the retraction
	// sweep runs only when the pass started from the beginning.
	if fresh {
		retracted, rerr := e.sweepRetractions(ctx, seen)
		if rerr != nil {
			span.RecordError(rerr)
			e.failCycle(ctx, cursor, rerr)
			return rerr
		}
		mListingsRetracted.Add(float64(retracted))
		span.SetAttributes(attribute.Int("cycle.retracted", retracted))
	}

	if err := e.Checkpoints.Commit(ctx, e.Clock.Now().UTC()); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}

	span.SetAttributes(attribute.Int("cycle.discovered", discovered))
	e.Log.Info("sync cycle done", zap.Int("discovered", discovered))
	return nil
}

// apply classifies one fetched listing against the store and persists
// the outcome. New/changed listings are upserted together with their
// discovery event and their subscriber-notification message in one
// transaction, so delivery intent survives crashes and mailer outages.
func (e *Engine) apply(ctx context.Context, l *listing.Listing) (listing.Classification, error) {
	stored, found, err := e.Store.Lookup(ctx, l.ID)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", l.ID, err)
	}

	var kind listing.Classification
	switch {
	case !found:
		kind = listing.New
	case stored != l.Hash:
		kind = listing.Changed
	default:
		if err := e.Store.TouchSeen(ctx, l.ID, l.LastSeen); err != nil {
			return 0, fmt.Errorf("touch %s: %w", l.ID, err)
		}
		return listing.Unchanged, nil
	}

	now := e.Clock.Now().UTC()
	event, _ := json.Marshal(intoutbox.ListingDiscoveredPayload{
		ListingID: l.ID,
		Hash:      l.Hash,
		Kind:      kind.String(),
		Title:     l.Title,
		Category:  l.Category,
		At:        now,
	})
	notify, _ := json.Marshal(intoutbox.NotifySubscribersPayload{
		ListingID:   l.ID,
		Hash:        l.Hash,
		Kind:        kind.String(),
		Title:       l.Title,
		Category:    l.Category,
		Agency:      l.Agency,
		Summary:     l.Summary,
		URL:         l.URL,
		PublishedAt: l.PublishedAt,
		At:          now,
	})

	if err := e.Tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := e.Store.Upsert(txCtx, l); err != nil {
			return err
		}
		key := fmt.Sprintf("discovery:%s:%s", l.ID, l.Hash)
		if err := e.Outbox.Enqueue(txCtx, key, outboxdom.KindListingDiscovered, event); err != nil {
			return err
		}
		key = fmt.Sprintf("notify:%s:%s", l.ID, l.Hash)
		return e.Outbox.Enqueue(txCtx, key, outboxdom.KindNotifySubscribers, notify)
	}); err != nil {
		return 0, fmt.Errorf("persist %s: %w", l.ID, err)
	}
	return kind, nil
}

// fetchPage is a bounded-attempt state machine around the source client:
// rejected aborts immediately, rate limits honor the upstream hint (with
// a floor), anything transient backs off exponentially with jitter.
func (e *Engine) fetchPage(ctx context.Context, cursor string) ([]listing.Listing, string, error) {
	attempts := e.Cfg.FetchAttempts
	if attempts <= 0 {
		attempts = 4
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		page, next, err := e.Source.FetchPage(ctx, cursor)
		if err == nil {
			return page, next, nil
		}
		lastErr = err

		if errors.Is(err, source.ErrRejected) {
			e.Log.Error("upstream rejected request, aborting cycle", zap.Error(err))
			return nil, "", err
		}
		if attempt == attempts-1 {
			break
		}

		var wait time.Duration
		var rl *source.RateLimitedError
		if errors.As(err, &rl) {
			wait = rl.RetryAfter
			if wait < e.Cfg.RateLimitFloor {
				wait = e.Cfg.RateLimitFloor
			}
			e.Log.Warn("upstream rate limited", zap.Duration("wait", wait))
		} else {
			wait = e.Cfg.Backoff.Next(attempt)
			e.Log.Warn("upstream unavailable",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, "", ctx.Err()
		case <-t.C:
		}
	}
	return nil, "", lastErr
}

func (e *Engine) sweepRetractions(ctx context.Context, seen map[string]struct{}) (int, error) {
	ids, err := e.Store.ActiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("active ids: %w", err)
	}
	var gone []string
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	if err := e.Store.MarkRetracted(ctx, gone); err != nil {
		return 0, fmt.Errorf("mark retracted: %w", err)
	}
	return len(gone), nil
}

// failCycle records the partial cursor and the error so the next cycle
// resumes instead of restarting. It must succeed even when the cycle
// died to context cancellation (shutdown mid-cycle).
func (e *Engine) failCycle(ctx context.Context, cursor string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := e.Checkpoints.Fail(cctx, cursor, cause.Error()); err != nil {
		e.Log.Error("persist checkpoint failure", zap.Error(err))
	}
}
