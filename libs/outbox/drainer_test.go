package outbox

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type reviewAdded struct {
	UserID    string    `json:"user_id"`
	ShopID    string    `json:"shop_id"`
	ReviewID  string    `json:"review_id"`
	CreatedAt time.Time `json:"created_at"`
}

type retryCall struct {
	id        int64
	attempts  int
	next      time.Time
	lastError string
}

type fakeStore struct {
	claimable  []Record
	published  []int64
	retries    []retryCall
	dead       map[int64]string
	markPubErr error
}

func (s *fakeStore) Claim(_ context.Context, _ string, _ time.Duration, limit int) ([]Record, error) {
	if len(s.claimable) > limit {
		out := s.claimable[:limit]
		s.claimable = s.claimable[limit:]
		return out, nil
	}
	out := s.claimable
	s.claimable = nil
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, id int64) error {
	if s.markPubErr != nil {
		return s.markPubErr
	}
	s.published = append(s.published, id)
	return nil
}

func (s *fakeStore) MarkRetry(_ context.Context, id int64, attempts int, next time.Time, lastError string) error {
	s.retries = append(s.retries, retryCall{id: id, attempts: attempts, next: next, lastError: lastError})
	return nil
}

func (s *fakeStore) MarkDead(_ context.Context, id int64, lastError string) error {
	if s.dead == nil {
		s.dead = map[int64]string{}
	}
	s.dead[id] = lastError
	return nil
}

type publishCall struct {
	rec   Record
	event any
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, rec Record, event any) error {
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, publishCall{rec: rec, event: event})
	return nil
}

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register("shops.review.added.v1", JSONDecoder[reviewAdded]())
	return r
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDrainOnce_PublishesAndMarksRow(t *testing.T) {
	store := &fakeStore{
		claimable: []Record{{
			ID:        1,
			EventID:   "evt-1",
			EventType: "shops.review.added.v1",
			Payload:   []byte(`{"user_id":"u1","shop_id":"s1","review_id":"r1","created_at":"2024-01-01T00:00:00Z"}`),
		}},
	}
	pub := &fakePublisher{}
	d := NewDrainer(store, testRegistry(), pub, testLogger(), Config{})

	if err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	evt, ok := pub.calls[0].event.(reviewAdded)
	if !ok {
		t.Fatalf("expected decoded reviewAdded, got %T", pub.calls[0].event)
	}
	if evt.UserID != "u1" || evt.ShopID != "s1" || evt.ReviewID != "r1" {
		t.Fatalf("decoded event mismatch: %+v", evt)
	}
	if len(store.published) != 1 || store.published[0] != 1 {
		t.Fatalf("expected row 1 marked published, got %v", store.published)
	}
	if len(store.retries) != 0 || len(store.dead) != 0 {
		t.Fatalf("unexpected retry/dead bookkeeping: %v %v", store.retries, store.dead)
	}
}

func TestDrainOnce_MalformedPayloadDoesNotBlockValidRow(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		claimable: []Record{
			{ID: 1, EventID: "evt-1", EventType: "shops.review.added.v1", Payload: []byte(`{not json`), CreatedAt: created},
			{ID: 2, EventID: "evt-2", EventType: "shops.review.added.v1", Payload: []byte(`{"user_id":"u1","shop_id":"s1","review_id":"r2"}`), CreatedAt: created},
		},
	}
	pub := &fakePublisher{}
	d := NewDrainer(store, testRegistry(), pub, testLogger(), Config{})

	if err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if len(pub.calls) != 1 || pub.calls[0].rec.ID != 2 {
		t.Fatalf("expected only row 2 published, got %+v", pub.calls)
	}
	if len(store.published) != 1 || store.published[0] != 2 {
		t.Fatalf("expected row 2 marked published, got %v", store.published)
	}
	if _, ok := store.dead[1]; !ok {
		t.Fatalf("expected row 1 dead-lettered, dead=%v", store.dead)
	}
	if len(store.retries) != 0 {
		t.Fatalf("malformed payload must not be retried: %v", store.retries)
	}
}

func TestDrainOnce_UnknownEventTypeDeadLetters(t *testing.T) {
	store := &fakeStore{
		claimable: []Record{
			{ID: 7, EventID: "evt-7", EventType: "shops.renamed.v9", Payload: []byte(`{}`)},
			{ID: 8, EventID: "evt-8", EventType: "shops.review.added.v1", Payload: []byte(`{"review_id":"r8"}`)},
		},
	}
	pub := &fakePublisher{}
	d := NewDrainer(store, testRegistry(), pub, testLogger(), Config{})

	if err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if !strings.Contains(store.dead[7], ErrUnknownEventType.Error()) {
		t.Fatalf("expected unknown-type dead letter for row 7, got %q", store.dead[7])
	}
	if len(store.published) != 1 || store.published[0] != 8 {
		t.Fatalf("row 8 should drain despite row 7, got %v", store.published)
	}
}

func TestDrainOnce_TransientFailureSchedulesRetry(t *testing.T) {
	store := &fakeStore{
		claimable: []Record{{ID: 3, EventID: "evt-3", EventType: "shops.review.added.v1", Payload: []byte(`{}`), MaxAttempts: 5}},
	}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	d := NewDrainer(store, testRegistry(), pub, testLogger(), Config{RetryBase: time.Second, RetryCap: time.Minute})

	before := time.Now().UTC()
	if err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if len(store.retries) != 1 {
		t.Fatalf("expected 1 retry, got %v", store.retries)
	}
	rc := store.retries[0]
	if rc.id != 3 || rc.attempts != 1 {
		t.Fatalf("unexpected retry call: %+v", rc)
	}
	if rc.next.Before(before.Add(time.Second)) || rc.next.After(before.Add(5*time.Second)) {
		t.Fatalf("retry should back off ~1s from now, got %s", rc.next)
	}
	if len(store.published) != 0 || len(store.dead) != 0 {
		t.Fatal("failed publish must leave the row pending")
	}
}

func TestDrainOnce_ExhaustedRetriesDeadLetter(t *testing.T) {
	store := &fakeStore{
		claimable: []Record{{ID: 4, EventID: "evt-4", EventType: "shops.review.added.v1", Payload: []byte(`{}`), Attempts: 4, MaxAttempts: 5}},
	}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	d := NewDrainer(store, testRegistry(), pub, testLogger(), Config{})

	if err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if _, ok := store.dead[4]; !ok {
		t.Fatalf("expected row 4 dead after exhausting attempts, dead=%v", store.dead)
	}
	if len(store.retries) != 0 {
		t.Fatalf("expected no further retries, got %v", store.retries)
	}
}

func TestDrainOnce_MarkFailureRedelivers(t *testing.T) {
	// Crash window: publish returned but the processed flag was never
	// persisted. The row must be re-published on a later drain.
	rec := Record{ID: 5, EventID: "evt-5", EventType: "shops.review.added.v1", Payload: []byte(`{"review_id":"r5"}`)}
	store := &fakeStore{claimable: []Record{rec}, markPubErr: errors.New("db gone")}
	pub := &fakePublisher{}
	d := NewDrainer(store, testRegistry(), pub, testLogger(), Config{})

	if err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}

	// Lease expired, row claimable again; the mark now succeeds.
	store.markPubErr = nil
	store.claimable = []Record{rec}
	if err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("second DrainOnce failed: %v", err)
	}
	if len(pub.calls) != 2 {
		t.Fatalf("expected duplicate delivery of row 5, got %d publishes", len(pub.calls))
	}
	if pub.calls[0].rec.EventID != pub.calls[1].rec.EventID {
		t.Fatal("redelivery must carry the same event_id for consumer dedup")
	}
	if len(store.published) != 1 || store.published[0] != 5 {
		t.Fatalf("expected row 5 marked published once, got %v", store.published)
	}
}

func TestDrainOnce_StopsBetweenRowsOnCancel(t *testing.T) {
	store := &fakeStore{
		claimable: []Record{
			{ID: 1, EventType: "shops.review.added.v1", Payload: []byte(`{}`)},
			{ID: 2, EventType: "shops.review.added.v1", Payload: []byte(`{}`)},
		},
	}
	pub := &fakePublisher{}
	d := NewDrainer(store, testRegistry(), pub, testLogger(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.DrainOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("no publish should happen after cancellation, got %d", len(pub.calls))
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	d := NewDrainer(&fakeStore{}, testRegistry(), &fakePublisher{}, testLogger(), Config{
		RetryBase: time.Second,
		RetryCap:  8 * time.Second,
	})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, expected := range want {
		if got := d.retryDelay(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
}
