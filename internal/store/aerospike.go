package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	as "github.com/aerospike/aerospike-client-go/v7"
	astypes "github.com/aerospike/aerospike-client-go/v7/types"

	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/model"
	"github.com/Razz4780/allezon/internal/userprofiles"
)

// Aggregate records live in sets named after the action ("view"/"buy");
// profiles live in their own "profiles" set. Aggregate records expire
// after secondsInDay.
const (
	profileSet   = "profiles"
	secondsInDay = 60 * 60 * 24
)

// AerospikeClient is the concrete Record Store Gateway over a shared,
// read-only *aerospike.Client handle. Its only retries are the inline
// re-reads on a generation conflict; RetryingClient wraps it to retry
// other failed writes.
type AerospikeClient struct {
	client    *as.Client
	namespace string
	log       *slog.Logger
}

// NewAerospikeClient wires a gateway on top of an already-connected
// client handle, shared read-only across every component in the process
// (the ingest HTTP server, the aggregation engines, the profile updater).
func NewAerospikeClient(client *as.Client, namespace string, log *slog.Logger) *AerospikeClient {
	if namespace == "" {
		namespace = "allezon"
	}
	return &AerospikeClient{client: client, namespace: namespace, log: log}
}

func (c *AerospikeClient) profileKey(cookie string) (*as.Key, error) {
	return as.NewKey(c.namespace, profileSet, cookie)
}

func (c *AerospikeClient) aggregateKey(action model.Action, userKey string) (*as.Key, error) {
	return as.NewKey(c.namespace, action.DBName(), userKey)
}

func isKeyNotFound(err error) bool {
	if err == nil {
		return false
	}
	var aerr as.Error
	if errors.As(err, &aerr) {
		return aerr.Matches(astypes.KEY_NOT_FOUND_ERROR)
	}
	return false
}

func parseTagsBin(bins as.BinMap, binName string) ([]model.UserTag, error) {
	raw, ok := bins[binName]
	if !ok {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("bin %q: expected string, got %T", binName, raw)
	}
	var tags []model.UserTag
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("bin %q: %w", binName, err)
	}
	return tags, nil
}

func filterByRange(tags []model.UserTag, rng model.SimpleRange, limit int) []model.UserTag {
	out := make([]model.UserTag, 0, len(tags))
	for _, t := range tags {
		if len(out) >= limit {
			break
		}
		if !t.Time.Before(rng.From) && t.Time.Before(rng.To) {
			out = append(out, t)
		}
	}
	return out
}

// GetUserProfile reads the profile record and returns the query's window
// of each action list, already time-descending (the bin is stored sorted,
// see UpdateUserProfile).
func (c *AerospikeClient) GetUserProfile(ctx context.Context, q userprofiles.Query) (userprofiles.Reply, error) {
	key, err := c.profileKey(q.Cookie)
	if err != nil {
		return userprofiles.Reply{}, fmt.Errorf("building profile key: %w", err)
	}

	rec, err := c.client.Get(as.NewPolicy(), key)
	if isKeyNotFound(err) {
		return userprofiles.Reply{Cookie: q.Cookie}, nil
	}
	if err != nil {
		return userprofiles.Reply{}, fmt.Errorf("fetching profile %s: %w", q.Cookie, err)
	}

	views, err := parseTagsBin(rec.Bins, model.ActionView.DBName())
	if err != nil {
		return userprofiles.Reply{}, fmt.Errorf("profile %s: %w", q.Cookie, err)
	}
	buys, err := parseTagsBin(rec.Bins, model.ActionBuy.DBName())
	if err != nil {
		return userprofiles.Reply{}, fmt.Errorf("profile %s: %w", q.Cookie, err)
	}

	return userprofiles.Reply{
		Cookie: q.Cookie,
		Views:  filterByRange(views, q.Range, q.Limit),
		Buys:   filterByRange(buys, q.Range, q.Limit),
	}, nil
}

// UpdateUserProfile appends tag to the profile's bin for its action,
// keeping the list time-descending and bounded at
// userprofiles.MaxLimit, via a generation-CAS read-modify-write loop: a
// concurrent writer racing us is detected by the store rejecting our put
// with a generation-mismatch result code, and we simply re-read and retry.
func (c *AerospikeClient) UpdateUserProfile(ctx context.Context, tag model.UserTag) error {
	key, err := c.profileKey(tag.Cookie)
	if err != nil {
		return fmt.Errorf("building profile key: %w", err)
	}
	binName := tag.Action.DBName()

	for {
		rec, err := c.client.Get(as.NewPolicy(), key, binName)
		var generation uint32
		var tags []model.UserTag
		switch {
		case isKeyNotFound(err):
			generation = 0
			tags = nil
		case err != nil:
			return fmt.Errorf("fetching profile %s: %w", tag.Cookie, err)
		default:
			generation = rec.Generation
			tags, err = parseTagsBin(rec.Bins, binName)
			if err != nil {
				return fmt.Errorf("profile %s: %w", tag.Cookie, err)
			}
		}

		tags = append(tags, tag)
		sort.Slice(tags, func(i, j int) bool { return tags[i].Time.After(tags[j].Time) })
		if len(tags) > userprofiles.MaxLimit {
			tags = tags[:userprofiles.MaxLimit]
		}

		encoded, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("serializing profile %s: %w", tag.Cookie, err)
		}

		policy := as.NewWritePolicy(generation, as.TTLServerDefault)
		policy.GenerationPolicy = as.EXPECT_GEN_EQUAL
		bin := as.NewBin(binName, string(encoded))

		err = c.client.PutBins(policy, key, bin)
		if isGenerationError(err) {
			c.log.Debug("profile update generation conflict, retrying", slog.String("cookie", tag.Cookie))
			continue
		}
		if err != nil {
			return fmt.Errorf("writing profile %s: %w", tag.Cookie, err)
		}
		return nil
	}
}

func isGenerationError(err error) bool {
	if err == nil {
		return false
	}
	var aerr as.Error
	if errors.As(err, &aerr) {
		return aerr.Matches(astypes.GENERATION_ERROR)
	}
	return false
}

func parseAggregateBins(bins as.BinMap) (count, sumPrice int64, err error) {
	if v, ok := bins[aggregates.Count.DBName()]; ok {
		n, ok := v.(int)
		if !ok {
			return 0, 0, fmt.Errorf("bin %q: expected integer, got %T", aggregates.Count.DBName(), v)
		}
		count = int64(n)
	}
	if v, ok := bins[aggregates.SumPrice.DBName()]; ok {
		n, ok := v.(int)
		if !ok {
			return 0, 0, fmt.Errorf("bin %q: expected integer, got %T", aggregates.SumPrice.DBName(), v)
		}
		sumPrice = int64(n)
	}
	return count, sumPrice, nil
}

// GetAggregates reads one record per minute bucket in the query's range
// via a single batched round trip, reassembling the dense row set (a
// missing bucket record is zero, not an error).
func (c *AerospikeClient) GetAggregates(ctx context.Context, projection aggregates.Projection, q aggregates.Query) (aggregates.Reply, error) {
	starts := q.Range.BucketStarts()
	reads := make([]*as.BatchRead, len(starts))
	for i, start := range starts {
		bk := aggregates.BucketKey{
			Minute:     start.Unix(),
			Action:     q.Action,
			Origin:     q.Origin,
			BrandID:    q.BrandID,
			CategoryID: q.CategoryID,
		}
		key, err := c.aggregateKey(q.Action, bk.UserKey(projection))
		if err != nil {
			return aggregates.Reply{}, fmt.Errorf("building aggregate key: %w", err)
		}
		reads[i] = as.NewBatchRead(key, nil)
	}

	if err := c.client.BatchGet(as.NewBatchPolicy(), reads); err != nil {
		return aggregates.Reply{}, fmt.Errorf("batch-reading aggregates: %w", err)
	}

	rows := make([]aggregates.Row, 0, len(reads))
	for i, r := range reads {
		if r.Record == nil {
			rows = append(rows, aggregates.Row{BucketIndex: i, Values: zeroValues(len(q.Aggregates))})
			continue
		}
		count, sumPrice, err := parseAggregateBins(r.Record.Bins)
		if err != nil {
			return aggregates.Reply{}, fmt.Errorf("bucket %d: %w", i, err)
		}
		values := make([]int64, len(q.Aggregates))
		for j, a := range q.Aggregates {
			if a == aggregates.SumPrice {
				values[j] = sumPrice
			} else {
				values[j] = count
			}
		}
		rows = append(rows, aggregates.Row{BucketIndex: i, Values: values})
	}

	return aggregates.Reply{Query: q, Rows: rows}, nil
}

func zeroValues(n int) []int64 { return make([]int64, n) }

// UpdateAggregate adds count and sumPrice into the named bucket's running
// totals, via the same generation-CAS read-modify-write shape as
// UpdateUserProfile. Aggregate records expire after 24h.
func (c *AerospikeClient) UpdateAggregate(ctx context.Context, projection aggregates.Projection, bk aggregates.BucketKey, count, sumPrice int64) error {
	key, err := c.aggregateKey(bk.Action, bk.UserKey(projection))
	if err != nil {
		return fmt.Errorf("building aggregate key: %w", err)
	}

	for {
		rec, err := c.client.Get(as.NewPolicy(), key)
		var generation uint32
		var oldCount, oldSumPrice int64
		switch {
		case isKeyNotFound(err):
			generation = 0
		case err != nil:
			return fmt.Errorf("fetching aggregate %s: %w", key.Value(), err)
		default:
			generation = rec.Generation
			oldCount, oldSumPrice, err = parseAggregateBins(rec.Bins)
			if err != nil {
				return fmt.Errorf("aggregate %s: %w", key.Value(), err)
			}
		}

		policy := as.NewWritePolicy(generation, secondsInDay)
		policy.GenerationPolicy = as.EXPECT_GEN_EQUAL

		countBin := as.NewBin(aggregates.Count.DBName(), int(oldCount+count))
		sumBin := as.NewBin(aggregates.SumPrice.DBName(), int(oldSumPrice+sumPrice))

		err = c.client.PutBins(policy, key, countBin, sumBin)
		if isGenerationError(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("writing aggregate %s: %w", key.Value(), err)
		}
		return nil
	}
}
