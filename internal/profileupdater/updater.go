// Package profileupdater implements the Profile Updater: the single
// consumer group that folds every user-tag event into its cookie's
// recent-history record.
package profileupdater

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Razz4780/allezon/internal/eventbus"
	"github.com/Razz4780/allezon/internal/store"
)

// Stream is the subset of eventbus.EventStream the updater needs, kept as
// an interface so tests can drive it with an in-memory fake instead of a
// live Kafka broker.
type Stream interface {
	Next(ctx context.Context) (eventbus.Event, error)
	MarkProcessed(ev eventbus.Event)
	Commit(ctx context.Context) error
}

// Updater processes one event at a time against the store, committing
// offsets on a fixed cadence rather than after every message.
type Updater struct {
	stream      Stream
	store       store.Client
	commitEvery time.Duration
	log         *slog.Logger
}

// NewUpdater wires an updater reading from stream and writing through db.
func NewUpdater(stream Stream, db store.Client, commitEvery time.Duration, log *slog.Logger) *Updater {
	return &Updater{stream: stream, store: db, commitEvery: commitEvery, log: log}
}

// Run processes events until ctx is done, the stream hits a fatal fetch
// error, or a profile update fails; in the last two cases it returns that
// error so the caller (the binary's supervisor) can restart it from the
// last committed offset.
func (u *Updater) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.commitEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.log.Info("updater_stop", slog.String("reason", "context_cancelled"))
			return u.stream.Commit(context.Background())
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, u.commitEvery)
		ev, err := u.stream.Next(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				if cerr := u.stream.Commit(ctx); cerr != nil {
					u.log.Error("commit_err", slog.Any("err", cerr))
				}
				continue
			}
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				u.log.Info("updater_stop", slog.String("reason", "context_cancelled"))
				return u.stream.Commit(context.Background())
			}
			return err
		}

		if err := u.store.UpdateUserProfile(ctx, ev.Tag); err != nil {
			u.log.Error("update_profile_err", slog.Any("err", err), slog.String("cookie", ev.Tag.Cookie))
			return err
		}
		u.stream.MarkProcessed(ev)

		select {
		case <-ticker.C:
			if err := u.stream.Commit(ctx); err != nil {
				u.log.Error("commit_err", slog.Any("err", err))
			}
		default:
		}
	}
}
