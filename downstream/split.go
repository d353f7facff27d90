package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/reika0717/sparql-proxy/rest"
	"github.com/reika0717/sparql-proxy/sparql"
)

// Splitter executes a SELECT as a sequence of LIMIT/OFFSET shards and
// reassembles the pages into one result set. Non-SELECT queries are sent
// whole, with the caller's Accept, as their canonical text (comments
// dropped, spacing normalized); the client's original text is not sent.
type Splitter struct {
	Client *Client

	// MaxChunkLimit caps the LIMIT of each shard.
	MaxChunkLimit int64

	// MaxLimit caps the total number of rows returned, whatever the
	// query asks for.
	MaxLimit int64
}

func NewSplitter(c *Client, maxChunkLimit, maxLimit int64) *Splitter {
	return &Splitter{
		Client:        c,
		MaxChunkLimit: maxChunkLimit,
		MaxLimit:      maxLimit,
	}
}

// Execute runs the query. Shards run strictly sequentially, so the
// backend sees at most one in-flight request per job and the loop can
// stop as soon as enough rows are gathered. The merged result is always
// application/sparql-results+json; the original ORDER BY rides along on
// every shard, so pages concatenate in backend order.
func (s *Splitter) Execute(ctx context.Context, q *sparql.Query, accept string) (*rest.Response, error) {
	if q.Form != sparql.FormSelect {
		return s.Client.Query(ctx, q.Canonical(), accept)
	}

	userLimit := int64(math.MaxInt64)
	if limit, ok := q.Limit(); ok {
		userLimit = limit
	}
	effectiveLimit := userLimit
	if s.MaxLimit > 0 && s.MaxLimit < effectiveLimit {
		effectiveLimit = s.MaxLimit
	}
	chunk := s.MaxChunkLimit
	if chunk <= 0 || effectiveLimit < chunk {
		chunk = effectiveLimit
	}

	merged := sparql.ResultSet{Results: &sparql.Results{Bindings: []json.RawMessage{}}}
	offset := q.Offset()
	collected := int64(0)
	shards := 0
	for collected < effectiveLimit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := chunk
		if remaining := effectiveLimit - collected; remaining < want {
			want = remaining
		}
		res, err := s.Client.Query(ctx, q.WithLimitOffset(want, offset), sparql.ResultsJSONType)
		if err != nil {
			return nil, err
		}
		var page sparql.ResultSet
		if err := json.Unmarshal(res.Body, &page); err != nil {
			return nil, &rest.Error{
				Message:    "Backend returned an unparseable result set",
				ID:         "backend_bad_result",
				Data:       err.Error(),
				StatusCode: 502,
			}
		}
		if shards == 0 {
			merged.Head = page.Head
		}
		if page.Results != nil {
			merged.Results.Bindings = append(merged.Results.Bindings, page.Results.Bindings...)
		}
		shards++
		got := int64(page.BindingCount())
		collected += got
		offset += want
		if got < want {
			break
		}
	}
	go metrics.Measure("split.shards", int64(shards))
	Logger.Printf("split query into %d shard(s), %d row(s)", shards, collected)

	body, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("downstream: marshaling merged result set: %w", err)
	}
	return &rest.Response{
		StatusCode:  200,
		ContentType: sparql.ResultsJSONType,
		Body:        body,
	}, nil
}
