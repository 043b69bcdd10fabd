package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/model"
	"github.com/Razz4780/allezon/internal/userprofiles"
)

// RetryingClient decorates a Client with exponential backoff around the
// two CAS-guarded writes. Reads pass straight through: a failed read has
// no side effect to retry away, and retrying it here would only hide a
// real backend problem from the caller.
type RetryingClient struct {
	inner      Client
	maxElapsed time.Duration
}

// NewRetryingClient wraps inner, retrying UpdateUserProfile and
// UpdateAggregate for up to maxElapsed before giving up and returning the
// last error.
func NewRetryingClient(inner Client, maxElapsed time.Duration) *RetryingClient {
	return &RetryingClient{inner: inner, maxElapsed: maxElapsed}
}

func (c *RetryingClient) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	return b
}

func (c *RetryingClient) GetUserProfile(ctx context.Context, q userprofiles.Query) (userprofiles.Reply, error) {
	return c.inner.GetUserProfile(ctx, q)
}

func (c *RetryingClient) UpdateUserProfile(ctx context.Context, tag model.UserTag) error {
	return backoff.Retry(func() error {
		return c.inner.UpdateUserProfile(ctx, tag)
	}, backoff.WithContext(c.newBackoff(), ctx))
}

func (c *RetryingClient) GetAggregates(ctx context.Context, projection aggregates.Projection, q aggregates.Query) (aggregates.Reply, error) {
	return c.inner.GetAggregates(ctx, projection, q)
}

func (c *RetryingClient) UpdateAggregate(ctx context.Context, projection aggregates.Projection, key aggregates.BucketKey, count, sumPrice int64) error {
	return backoff.Retry(func() error {
		return c.inner.UpdateAggregate(ctx, projection, key, count, sumPrice)
	}, backoff.WithContext(c.newBackoff(), ctx))
}
