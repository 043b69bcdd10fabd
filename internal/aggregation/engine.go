// Package aggregation implements the Aggregation Engine: one instance per
// filter-projection, consuming user-tag events into per-minute buckets and
// periodically flushing them into the Record Store Gateway.
package aggregation

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/eventbus"
	"github.com/Razz4780/allezon/internal/store"
)

// maxConcurrentFlushes bounds how many bucket updates are in flight to the
// store at once during a flush, matching the original's
// tokio::try_join!/FuturesUnordered fan-out without unbounded concurrency.
const maxConcurrentFlushes = 10

type accumulator struct {
	count    int64
	sumPrice int64
}

// Stream is the subset of eventbus.EventStream the engine needs, kept as
// an interface so tests can drive the engine with an in-memory fake
// instead of a live Kafka broker.
type Stream interface {
	Next(ctx context.Context) (eventbus.Event, error)
	MarkProcessed(ev eventbus.Event)
	Commit(ctx context.Context) error
}

// Engine owns one filter-projection's worth of aggregation: its own
// consumer group, its own in-memory accumulator map. All state is only
// ever touched from the single goroutine running Run, so no locking is
// needed around pending.
type Engine struct {
	projection aggregates.Projection
	stream     Stream
	store      store.Client
	flushEvery time.Duration
	log        *slog.Logger

	pending map[aggregates.BucketKey]accumulator
}

// NewEngine builds an engine for projection, reading from stream and
// flushing accumulated buckets into db every flushEvery.
func NewEngine(projection aggregates.Projection, stream Stream, db store.Client, flushEvery time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		projection: projection,
		stream:     stream,
		store:      db,
		flushEvery: flushEvery,
		log:        log,
		pending:    make(map[aggregates.BucketKey]accumulator),
	}
}

// Run drives the engine until ctx is done or a fatal error occurs. It
// multiplexes two sources on a single goroutine: events fetched from the
// stream (via an internal channel fed by a helper goroutine) and a
// flush ticker, so pending never needs a mutex.
func (e *Engine) Run(ctx context.Context) error {
	events := make(chan eventbus.Event)
	fetchErrs := make(chan error, 1)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer close(events)
		for {
			ev, err := e.stream.Next(fetchCtx)
			if err != nil {
				if fetchCtx.Err() != nil {
					return
				}
				fetchErrs <- err
				return
			}
			select {
			case events <- ev:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(e.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine_stop", slog.String("reason", "context_cancelled"))
			return e.flush(context.Background())

		case err := <-fetchErrs:
			e.log.Error("fetch_fatal", slog.Any("err", err))
			return err

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.accumulate(ev)
			e.stream.MarkProcessed(ev)

		case <-ticker.C:
			if err := e.flush(ctx); err != nil {
				e.log.Error("flush_err", slog.Any("err", err))
				return err
			}
		}
	}
}

// accumulate folds ev into the bucket it belongs to under this engine's
// projection. Dimensions the projection doesn't track are left zeroed in
// the key so events differing only in those dimensions share one bucket,
// matching how UserKey addresses the store (masked the same way).
func (e *Engine) accumulate(ev eventbus.Event) {
	tag := ev.Tag
	minute := tag.Time.Truncate(time.Minute).Unix()
	key := aggregates.BucketKey{
		Minute: minute,
		Action: tag.Action,
	}
	if e.projection.Origin {
		key.Origin = tag.Origin
	}
	if e.projection.BrandID {
		key.BrandID = tag.ProductInfo.BrandID
	}
	if e.projection.CategoryID {
		key.CategoryID = tag.ProductInfo.CategoryID
	}
	acc := e.pending[key]
	acc.count++
	acc.sumPrice += tag.ProductInfo.Price
	e.pending[key] = acc
}

// flush writes every accumulated bucket to the store, with bounded
// concurrency, then commits the stream's buffered offsets only if every
// write succeeded — a partial flush must not advance past the events it
// failed to persist, since at-least-once replay on the next run is the
// accepted recovery path.
func (e *Engine) flush(ctx context.Context) error {
	if len(e.pending) == 0 {
		return e.stream.Commit(ctx)
	}

	e.log.Debug("flush_start", slog.Int("buckets", len(e.pending)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFlushes)

	for key, acc := range e.pending {
		key, acc := key, acc
		g.Go(func() error {
			return e.store.UpdateAggregate(gctx, e.projection, key, acc.count, acc.sumPrice)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	e.pending = make(map[aggregates.BucketKey]accumulator)
	e.log.Debug("flush_ok")
	return e.stream.Commit(ctx)
}
