// Package downstream talks to the upstream SPARQL engine, optionally
// splitting large SELECT queries into paginated chunks.
package downstream

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/reika0717/sparql-proxy/rest"
)

// Queries can legitimately run for minutes; the job timeout is the real
// bound, enforced through the request context.
const defaultHTTPTimeout = 15 * time.Minute

var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr, "", log.LstdFlags)
}

var httpClient = &http.Client{Timeout: defaultHTTPTimeout}

// Client issues SPARQL protocol requests against one endpoint URL.
type Client struct {
	*rest.Client
}

// NewClient creates a new Client for the endpoint at base.
func NewClient(base string) *Client {
	return &Client{&rest.Client{
		Client: httpClient,
		Base:   base,
	}}
}

// Query POSTs the query with the given Accept header and returns the raw
// response. Non-2xx upstream responses surface as *rest.Error carrying the
// upstream status and body. The request aborts when ctx is cancelled.
func (c *Client) Query(ctx context.Context, query string, accept string) (*rest.Response, error) {
	req, err := c.NewRequest(ctx, "POST", "", strings.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/sparql-query")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	start := time.Now()
	res, err := c.Do(req)
	go metrics.Time("backend.query.latency", time.Since(start))
	if err != nil {
		go metrics.Increment("backend.query.error")
		return nil, err
	}
	go metrics.Increment("backend.query.success")
	return res, nil
}
