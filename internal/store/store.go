// Package store is the Record Store Gateway: the single place that knows
// how user profiles and aggregate buckets are laid out in the record
// store, and how concurrent updates are resolved via generation-CAS.
package store

import (
	"context"

	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/model"
	"github.com/Razz4780/allezon/internal/userprofiles"
)

// Client is the full Record Store Gateway contract. GetUserProfile and
// GetAggregates are plain reads; UpdateUserProfile and UpdateAggregate are
// the two CAS-guarded writes, the only operations RetryingClient wraps in
// backoff.
type Client interface {
	GetUserProfile(ctx context.Context, q userprofiles.Query) (userprofiles.Reply, error)
	UpdateUserProfile(ctx context.Context, tag model.UserTag) error
	GetAggregates(ctx context.Context, projection aggregates.Projection, q aggregates.Query) (aggregates.Reply, error)
	UpdateAggregate(ctx context.Context, projection aggregates.Projection, key aggregates.BucketKey, count, sumPrice int64) error
}
