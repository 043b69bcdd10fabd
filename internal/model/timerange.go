package model

import (
	"fmt"
	"strings"
	"time"
)

// millisLayout / SecondsLayout are the two timestamp precisions accepted
// in a "<from>_<to>" range string. SecondsLayout is exported since it's
// also the wire form of a bucket's start instant in an aggregates reply.
const (
	millisLayout  = "2006-01-02T15:04:05.000"
	SecondsLayout = "2006-01-02T15:04:05"
)

// SimpleRange is a millisecond-precision [from, to) window, used by the
// profile query. from <= to is enforced at parse time.
type SimpleRange struct {
	From time.Time
	To   time.Time
}

// BucketsRange is a second-precision, minute-boundary [from, to) window
// spanning at most 10 minutes, used by the aggregates query.
type BucketsRange struct {
	From time.Time
	To   time.Time
}

// ParseSimpleRange parses "<from>_<to>" where both timestamps use
// millisecond precision, accepting second precision too (a millisecond
// range silently degrades to .000 when the input omits it).
func ParseSimpleRange(s string) (SimpleRange, error) {
	from, to, err := splitRange(s, millisLayout)
	if err != nil {
		// Accept second-precision input for the simple range as well;
		// the original accepts both on this variant.
		from, to, err = splitRange(s, SecondsLayout)
		if err != nil {
			return SimpleRange{}, fmt.Errorf("invalid time_range %q: %w", s, err)
		}
	}
	if from.After(to) {
		return SimpleRange{}, fmt.Errorf("invalid time_range %q: from is after to", s)
	}
	return SimpleRange{From: from, To: to}, nil
}

// ParseBucketsRange parses "<from>_<to>" using second precision, rejecting
// non-minute boundaries and spans over 10 minutes.
func ParseBucketsRange(s string) (BucketsRange, error) {
	// time.Parse accepts a fractional second even when the layout has none.
	if strings.ContainsAny(s, ".,") {
		return BucketsRange{}, fmt.Errorf("invalid time_range %q: expected second precision", s)
	}
	from, to, err := splitRange(s, SecondsLayout)
	if err != nil {
		return BucketsRange{}, fmt.Errorf("invalid time_range %q: %w", s, err)
	}
	if from.After(to) {
		return BucketsRange{}, fmt.Errorf("invalid time_range %q: from is after to", s)
	}
	if from.Second() != 0 || to.Second() != 0 {
		return BucketsRange{}, fmt.Errorf("invalid time_range %q: endpoints must be on minute boundaries", s)
	}
	if to.Sub(from) > 10*time.Minute {
		return BucketsRange{}, fmt.Errorf("invalid time_range %q: span exceeds 10 minutes", s)
	}
	return BucketsRange{From: from, To: to}, nil
}

func splitRange(s, layout string) (time.Time, time.Time, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("expected exactly one '_' separator")
	}
	from, err := time.Parse(layout, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := time.Parse(layout, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from.UTC(), to.UTC(), nil
}

// String renders the range back into "<from>_<to>" form.
func (r SimpleRange) String() string {
	return r.From.Format(millisLayout) + "_" + r.To.Format(millisLayout)
}

func (r BucketsRange) String() string {
	return r.From.Format(SecondsLayout) + "_" + r.To.Format(SecondsLayout)
}

// BucketCount returns the number of 1-minute buckets in [From, To).
func (r BucketsRange) BucketCount() int {
	return int(r.To.Sub(r.From) / time.Minute)
}

// BucketStarts returns the start instant of every bucket in [From, To), in
// increasing order.
func (r BucketsRange) BucketStarts() []time.Time {
	n := r.BucketCount()
	starts := make([]time.Time, n)
	for i := 0; i < n; i++ {
		starts[i] = r.From.Add(time.Duration(i) * time.Minute)
	}
	return starts
}
