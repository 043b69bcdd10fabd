// Package aggregates implements the per-minute aggregate query: the
// filter-projection power set, bucket keys, and the request/response shapes
// of POST /aggregates.
package aggregates

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Razz4780/allezon/internal/model"
)

// Aggregate is one of the two statistics a query column can request.
type Aggregate string

const (
	Count    Aggregate = "COUNT"
	SumPrice Aggregate = "SUM_PRICE"
)

func parseAggregate(s string) (Aggregate, error) {
	switch Aggregate(s) {
	case Count, SumPrice:
		return Aggregate(s), nil
	default:
		return "", fmt.Errorf("unknown aggregate %q", s)
	}
}

// DBName returns the bin name this aggregate accumulates into.
func (a Aggregate) DBName() string {
	switch a {
	case SumPrice:
		return "sum_price"
	default:
		return "count"
	}
}

// Projection selects which of origin/brand_id/category_id partition a
// bucket. There are exactly 8 projections, the power set of the three
// dimensions, precomputed below.
type Projection struct {
	Origin     bool
	BrandID    bool
	CategoryID bool
}

// Headers returns the column headers this projection contributes, in the
// fixed render order: origin, then brand_id, then category_id.
func (p Projection) Headers() []string {
	var h []string
	if p.Origin {
		h = append(h, "origin")
	}
	if p.BrandID {
		h = append(h, "brand_id")
	}
	if p.CategoryID {
		h = append(h, "category_id")
	}
	return h
}

// Projections is the precomputed power set, index order matching the
// AGGR_PROJECTION env var (0-7): bit 0 = origin, bit 1 = brand_id,
// bit 2 = category_id.
var Projections [8]Projection

func init() {
	for i := 0; i < 8; i++ {
		Projections[i] = Projection{
			Origin:     i&1 != 0,
			BrandID:    i&2 != 0,
			CategoryID: i&4 != 0,
		}
	}
}

// ProjectionFor builds the projection that tracks exactly the dimensions
// passed as true. The engine does not use it: it masks each event with its
// own static Projection field.
func ProjectionFor(origin, brandID, categoryID bool) Projection {
	return Projection{Origin: origin, BrandID: brandID, CategoryID: categoryID}
}

// BucketKey identifies one row of one bucket: the minute, the action, and
// whichever of origin/brand/category this engine's projection tracks.
type BucketKey struct {
	Minute     int64 // unix seconds, minute-aligned
	Action     model.Action
	Origin     string
	BrandID    string
	CategoryID string
}

// UserKey renders the key used to address the aggregate record in the
// store: "<minute>--<origin?>--<brand?>--<category?>", leaving the slot of
// any dimension the projection doesn't track empty, so keys of different
// projections never collide. The action isn't part of the key; it already
// selects which per-action set the record lives in.
func (k BucketKey) UserKey(p Projection) string {
	parts := []string{strconv.FormatInt(k.Minute, 10), "", "", ""}
	if p.Origin {
		parts[1] = k.Origin
	}
	if p.BrandID {
		parts[2] = k.BrandID
	}
	if p.CategoryID {
		parts[3] = k.CategoryID
	}
	return strings.Join(parts, "--")
}

// Query is a parsed, validated POST /aggregates request.
type Query struct {
	Range      model.BucketsRange
	Action     model.Action
	Origin     string
	BrandID    string
	CategoryID string
	Aggregates []Aggregate
}

// Projection returns the filter-projection this query needs: a bucket is
// only useful if it's grouped at least as finely as the dimensions the
// query filters or groups on.
func (q Query) Projection() Projection {
	return Projection{
		Origin:     q.Origin != "",
		BrandID:    q.BrandID != "",
		CategoryID: q.CategoryID != "",
	}
}

// ParseQuery builds a Query from POST /aggregates URL-encoded form values,
// rejecting unknown parameters, duplicates, and more than two (or
// duplicate) aggregates.
func ParseQuery(values url.Values) (Query, error) {
	var q Query

	for key, vals := range values {
		switch key {
		case "time_range", "action", "origin", "brand_id", "category_id":
			if len(vals) > 1 {
				return Query{}, fmt.Errorf("duplicated query parameter %q", key)
			}
		case "aggregates":
		default:
			return Query{}, fmt.Errorf("unknown query parameter %q", key)
		}
	}

	tr := values.Get("time_range")
	if tr == "" {
		return Query{}, fmt.Errorf("missing required parameter time_range")
	}
	rng, err := model.ParseBucketsRange(tr)
	if err != nil {
		return Query{}, err
	}
	q.Range = rng

	action := values.Get("action")
	if action == "" {
		return Query{}, fmt.Errorf("missing required parameter action")
	}
	switch model.Action(action) {
	case model.ActionView, model.ActionBuy:
		q.Action = model.Action(action)
	default:
		return Query{}, fmt.Errorf("invalid action %q", action)
	}

	q.Origin = values.Get("origin")
	q.BrandID = values.Get("brand_id")
	q.CategoryID = values.Get("category_id")

	aggs := values["aggregates"]
	if len(aggs) == 0 {
		return Query{}, fmt.Errorf("missing required parameter aggregates")
	}
	if len(aggs) > 2 {
		return Query{}, fmt.Errorf("too many aggregates requested: %d", len(aggs))
	}
	seen := map[Aggregate]bool{}
	for _, a := range aggs {
		parsed, err := parseAggregate(a)
		if err != nil {
			return Query{}, err
		}
		if seen[parsed] {
			return Query{}, fmt.Errorf("duplicate aggregate %q", a)
		}
		seen[parsed] = true
		q.Aggregates = append(q.Aggregates, parsed)
	}

	return q, nil
}

// Row is one bucket's worth of counted columns, aligned with the minute at
// BucketIndex within the query's range.
type Row struct {
	BucketIndex int
	Values      []int64
}

// Reply is the full POST /aggregates response body.
type Reply struct {
	Query Query
	Rows  []Row
}

// Columns returns the header row in fixed order: 1m_bucket, action,
// [origin], [brand_id], [category_id], then the requested aggregates in
// request order.
func (r Reply) Columns() []string {
	cols := []string{"1m_bucket", "action"}
	cols = append(cols, r.Query.Projection().Headers()...)
	for _, a := range r.Query.Aggregates {
		cols = append(cols, string(a))
	}
	return cols
}

// MarshalJSON renders {"columns": [...], "rows": [[...], ...]}. Row count
// must equal the query's bucket count; every bucket is present even if
// empty, with zero values.
func (r Reply) MarshalJSON() ([]byte, error) {
	starts := r.Query.Range.BucketStarts()
	byIndex := make(map[int]Row, len(r.Rows))
	for _, row := range r.Rows {
		byIndex[row.BucketIndex] = row
	}

	proj := r.Query.Projection()
	var b strings.Builder
	b.WriteString(`{"columns":[`)
	for i, c := range r.Columns() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(c))
	}
	b.WriteString(`],"rows":[`)

	for i, start := range starts {
		if i > 0 {
			b.WriteByte(',')
		}
		row := byIndex[i]
		b.WriteByte('[')
		b.WriteString(strconv.Quote(start.Format(model.SecondsLayout)))
		b.WriteByte(',')
		b.WriteString(strconv.Quote(string(r.Query.Action)))
		if proj.Origin {
			b.WriteByte(',')
			b.WriteString(strconv.Quote(r.Query.Origin))
		}
		if proj.BrandID {
			b.WriteByte(',')
			b.WriteString(strconv.Quote(r.Query.BrandID))
		}
		if proj.CategoryID {
			b.WriteByte(',')
			b.WriteString(strconv.Quote(r.Query.CategoryID))
		}
		for j := range r.Query.Aggregates {
			b.WriteByte(',')
			var v int64
			if j < len(row.Values) {
				v = row.Values[j]
			}
			b.WriteString(strconv.FormatInt(v, 10))
		}
		b.WriteByte(']')
	}
	b.WriteString(`]}`)
	return []byte(b.String()), nil
}
