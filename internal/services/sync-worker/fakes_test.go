package sync_worker

import (
	"context"
	"sync"
	"time"

	"bizwatch/internal/domain/checkpoint"
	"bizwatch/internal/domain/listing"
	"bizwatch/internal/domain/notification"
	outboxdom "bizwatch/internal/domain/outbox"
	"bizwatch/internal/domain/subscriber"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type sourceFunc func(ctx context.Context, cursor string) ([]listing.Listing, string, error)

func (f sourceFunc) FetchPage(ctx context.Context, cursor string) ([]listing.Listing, string, error) {
	return f(ctx, cursor)
}

type memStore struct {
	mu        sync.Mutex
	hashes    map[string]string
	retracted map[string]bool
	touched   map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		hashes:    make(map[string]string),
		retracted: make(map[string]bool),
		touched:   make(map[string]time.Time),
	}
}

func (s *memStore) Lookup(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[id]
	return h, ok, nil
}

func (s *memStore) Upsert(_ context.Context, l *listing.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[l.ID] = l.Hash
	s.retracted[l.ID] = false
	return nil
}

func (s *memStore) TouchSeen(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id] = at
	s.retracted[id] = false
	return nil
}

func (s *memStore) MarkRetracted(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.retracted[id] = true
	}
	return nil
}

func (s *memStore) ActiveIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.hashes {
		if !s.retracted[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type memCheckpoints struct {
	mu      sync.Mutex
	cp      checkpoint.Checkpoint
	commits int
	fails   int
}

func (r *memCheckpoints) Load(context.Context) (*checkpoint.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.cp
	return &cp, nil
}

func (r *memCheckpoints) Commit(_ context.Context, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cp.LastSuccess = at
	r.cp.Cursor = ""
	r.cp.LastError = ""
	r.commits++
	return nil
}

func (r *memCheckpoints) Fail(_ context.Context, cursor, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cp.Cursor = cursor
	r.cp.LastError = lastError
	r.fails++
	return nil
}

type memOutbox struct {
	mu   sync.Mutex
	msgs []outboxdom.Message
}

func (o *memOutbox) Enqueue(_ context.Context, key string, kind outboxdom.Kind, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range o.msgs {
		if m.IdempotencyKey == key {
			return nil
		}
	}
	o.msgs = append(o.msgs, outboxdom.Message{IdempotencyKey: key, Kind: kind, Data: data})
	return nil
}

func (o *memOutbox) byKind(k outboxdom.Kind) []outboxdom.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []outboxdom.Message
	for _, m := range o.msgs {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

func (o *memOutbox) PickBatch(context.Context, int, time.Duration) ([]outboxdom.Message, error) {
	return nil, nil
}

func (o *memOutbox) MarkSuccess(context.Context, []string) error { return nil }

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recKey struct {
	sub     int64
	listing string
	hash    string
}

type memRecords struct {
	mu   sync.Mutex
	keys map[recKey]bool
}

func newMemRecords() *memRecords { return &memRecords{keys: make(map[recKey]bool)} }

func (r *memRecords) Exists(_ context.Context, subID int64, listingID, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[recKey{subID, listingID, hash}], nil
}

func (r *memRecords) Create(_ context.Context, n *notification.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[recKey{n.SubscriberID, n.ListingID, n.Hash}] = true
	return nil
}

func recordFor(subID int64, disc listing.Discovery) *notification.Record {
	return &notification.Record{
		SubscriberID: subID,
		ListingID:    disc.Listing.ID,
		Hash:         disc.Listing.Hash,
	}
}

type staticSubs struct{ subs []*subscriber.Subscriber }

func (s staticSubs) ListActive(context.Context) ([]*subscriber.Subscriber, error) {
	return s.subs, nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type memMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
	err  error
}

func (m *memMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *memMailer) setFail(fail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
	m.err = err
}

func (m *memMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
