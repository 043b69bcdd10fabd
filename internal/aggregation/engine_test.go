package aggregation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/eventbus"
	"github.com/Razz4780/allezon/internal/model"
	"github.com/Razz4780/allezon/internal/userprofiles"
)

// fakeStream is an in-memory eventbus.EventStream stand-in: Next yields
// queued events then blocks until ctx is done, mirroring "no more
// messages right now" rather than EOF.
type fakeStream struct {
	mu      sync.Mutex
	events  []eventbus.Event
	marked  []eventbus.Event
	commits int
}

func (s *fakeStream) Next(ctx context.Context) (eventbus.Event, error) {
	for {
		s.mu.Lock()
		if len(s.events) > 0 {
			ev := s.events[0]
			s.events = s.events[1:]
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return eventbus.Event{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (s *fakeStream) MarkProcessed(ev eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, ev)
}

func (s *fakeStream) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return nil
}

// fakeStore is an in-memory store.Client double recording every
// UpdateAggregate call, used to verify the engine's flush behavior
// without a live Aerospike instance.
type fakeStore struct {
	mu       sync.Mutex
	calls    map[aggregates.BucketKey][2]int64
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[aggregates.BucketKey][2]int64)}
}

func (f *fakeStore) GetUserProfile(ctx context.Context, q userprofiles.Query) (userprofiles.Reply, error) {
	return userprofiles.Reply{}, nil
}

func (f *fakeStore) UpdateUserProfile(ctx context.Context, tag model.UserTag) error {
	return nil
}

func (f *fakeStore) GetAggregates(ctx context.Context, projection aggregates.Projection, q aggregates.Query) (aggregates.Reply, error) {
	return aggregates.Reply{}, nil
}

func (f *fakeStore) UpdateAggregate(ctx context.Context, projection aggregates.Projection, key aggregates.BucketKey, count, sumPrice int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	cur := f.calls[key]
	cur[0] += count
	cur[1] += sumPrice
	f.calls[key] = cur
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngineAccumulatesAndFlushes(t *testing.T) {
	stream := &fakeStream{}
	db := newFakeStore()
	eng := NewEngine(aggregates.Projections[0], stream, db, time.Hour, discardLogger())

	base := time.Date(2022, 3, 22, 12, 0, 0, 0, time.UTC)
	tags := []model.UserTag{
		{Time: base, Action: model.ActionView, ProductInfo: model.ProductInfo{Price: 100}},
		{Time: base.Add(10 * time.Second), Action: model.ActionView, ProductInfo: model.ProductInfo{Price: 200}},
		{Time: base.Add(time.Minute), Action: model.ActionView, ProductInfo: model.ProductInfo{Price: 50}},
	}
	for _, tag := range tags {
		eng.accumulate(eventbus.Event{Tag: tag})
	}

	if len(eng.pending) != 2 {
		t.Fatalf("got %d pending buckets, want 2", len(eng.pending))
	}

	if err := eng.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(eng.pending) != 0 {
		t.Errorf("pending not cleared after flush")
	}
	if len(db.calls) != 2 {
		t.Fatalf("got %d store calls, want 2", len(db.calls))
	}

	minuteKey := aggregates.BucketKey{Minute: base.Unix(), Action: model.ActionView}
	if got := db.calls[minuteKey]; got[0] != 2 || got[1] != 300 {
		t.Errorf("first bucket = %v, want count=2 sum=300", got)
	}

	if stream.commits != 1 {
		t.Errorf("commits = %d, want 1", stream.commits)
	}
}

func TestEngineFlushOnEmptyPendingStillCommits(t *testing.T) {
	stream := &fakeStream{}
	db := newFakeStore()
	eng := NewEngine(aggregates.Projections[0], stream, db, time.Hour, discardLogger())

	if err := eng.flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if stream.commits != 1 {
		t.Errorf("commits = %d, want 1 even with nothing pending", stream.commits)
	}
}

func TestEngineRunProcessesQueuedEventsThenStops(t *testing.T) {
	stream := &fakeStream{events: []eventbus.Event{
		{Tag: model.UserTag{Time: time.Now(), Action: model.ActionBuy, ProductInfo: model.ProductInfo{Price: 10}}},
	}}
	db := newFakeStore()
	eng := NewEngine(aggregates.Projections[0], stream, db, time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := eng.Run(ctx); err != nil && err != context.DeadlineExceeded {
		t.Fatalf("Run: %v", err)
	}

	if len(db.calls) == 0 {
		t.Error("expected at least one flush to have reached the store")
	}
}

func TestEngineRunReturnsErrorOnFlushFailureAndStopsAccumulating(t *testing.T) {
	stream := &fakeStream{events: []eventbus.Event{
		{Tag: model.UserTag{Time: time.Now(), Action: model.ActionBuy, ProductInfo: model.ProductInfo{Price: 10}}},
	}}
	db := newFakeStore()
	db.failWith = errFlush
	eng := NewEngine(aggregates.Projections[0], stream, db, time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := eng.Run(ctx)
	if err != errFlush {
		t.Fatalf("Run err = %v, want %v", err, errFlush)
	}
	if stream.commits != 0 {
		t.Errorf("commits = %d, want 0: a failed flush must not advance offsets", stream.commits)
	}
}

var errFlush = &flushError{"store unavailable"}

type flushError struct{ msg string }

func (e *flushError) Error() string { return e.msg }
