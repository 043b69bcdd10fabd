// Package userprofiles implements the per-user recent-history query:
// POST /user_profiles/{cookie}.
package userprofiles

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/Razz4780/allezon/internal/model"
)

// DefaultLimit and MaxLimit bound how many tags of each action are
// returned: 200 unless the client asks for fewer, and never more than 200
// even if it asks for more.
const (
	DefaultLimit = 200
	MaxLimit     = 200
)

// Query is a parsed POST /user_profiles/{cookie} request.
type Query struct {
	Cookie string
	Range  model.SimpleRange
	Limit  int
}

// ParseQuery builds a Query from the path cookie and URL-encoded form
// values, defaulting and capping limit at MaxLimit.
func ParseQuery(cookie string, values url.Values) (Query, error) {
	q := Query{Cookie: cookie, Limit: DefaultLimit}

	for key, vals := range values {
		switch key {
		case "time_range", "limit":
			if len(vals) > 1 {
				return Query{}, fmt.Errorf("duplicated query parameter %q", key)
			}
		default:
			return Query{}, fmt.Errorf("unknown query parameter %q", key)
		}
	}

	tr := values.Get("time_range")
	if tr == "" {
		return Query{}, fmt.Errorf("missing required parameter time_range")
	}
	rng, err := model.ParseSimpleRange(tr)
	if err != nil {
		return Query{}, err
	}
	q.Range = rng

	if l := values.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("invalid limit %q", l)
		}
		if n > MaxLimit {
			n = MaxLimit
		}
		q.Limit = n
	}

	return q, nil
}

// Reply is the full POST /user_profiles/{cookie} response body: the two
// action lists, each time-descending and bounded by the query's limit.
type Reply struct {
	Cookie string          `json:"cookie"`
	Views  []model.UserTag `json:"views"`
	Buys   []model.UserTag `json:"buys"`
}
