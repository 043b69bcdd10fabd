package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/model"
	"github.com/Razz4780/allezon/internal/userprofiles"
)

type flakyClient struct {
	failures int
	calls    int
}

func (c *flakyClient) GetUserProfile(ctx context.Context, q userprofiles.Query) (userprofiles.Reply, error) {
	return userprofiles.Reply{}, nil
}

func (c *flakyClient) UpdateUserProfile(ctx context.Context, tag model.UserTag) error {
	c.calls++
	if c.calls <= c.failures {
		return errors.New("transient")
	}
	return nil
}

func (c *flakyClient) GetAggregates(ctx context.Context, projection aggregates.Projection, q aggregates.Query) (aggregates.Reply, error) {
	return aggregates.Reply{}, nil
}

func (c *flakyClient) UpdateAggregate(ctx context.Context, projection aggregates.Projection, key aggregates.BucketKey, count, sumPrice int64) error {
	c.calls++
	if c.calls <= c.failures {
		return errors.New("transient")
	}
	return nil
}

func TestRetryingClientRetriesUntilSuccess(t *testing.T) {
	inner := &flakyClient{failures: 2}
	rc := NewRetryingClient(inner, 5*time.Second)

	if err := rc.UpdateUserProfile(context.Background(), model.UserTag{Cookie: "c1"}); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryingClientGivesUpPastMaxElapsed(t *testing.T) {
	inner := &flakyClient{failures: 1000}
	rc := NewRetryingClient(inner, 10*time.Millisecond)

	if err := rc.UpdateAggregate(context.Background(), aggregates.Projections[0], aggregates.BucketKey{}, 1, 1); err == nil {
		t.Fatal("expected error once max elapsed time is exceeded")
	}
}

func TestRetryingClientPassesReadsThrough(t *testing.T) {
	inner := &flakyClient{}
	rc := NewRetryingClient(inner, time.Second)

	if _, err := rc.GetUserProfile(context.Background(), userprofiles.Query{}); err != nil {
		t.Fatalf("GetUserProfile: %v", err)
	}
	if _, err := rc.GetAggregates(context.Background(), aggregates.Projections[0], aggregates.Query{}); err != nil {
		t.Fatalf("GetAggregates: %v", err)
	}
}
