package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"time"

	"github.com/reika0717/sparql-proxy/config"
)

var defaultTimeout = 6500 * time.Millisecond
var defaultHttpClient = &http.Client{Timeout: defaultTimeout}

// Client is a generic HTTP client for making requests to an upstream
// server that does not necessarily speak JSON.
type Client struct {
	Client *http.Client
	Base   string
}

// A Response is the raw result of a request made with Do.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewClient returns a new Client. Base is the scheme+domain to hit for all
// requests. By default, the request timeout is set to 6.5 seconds.
func NewClient(base string) *Client {
	return &Client{
		Client: defaultHttpClient,
		Base:   base,
	}
}

// NewRequest creates a new Request bound to ctx and sets the User-Agent
// header.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Add("User-Agent", fmt.Sprintf("sparql-proxy/v%s", config.Version))
	return req, nil
}

// Do performs the HTTP request. If the HTTP response is in the 2xx range the
// raw response is returned; otherwise an *Error is returned carrying the
// upstream status code and body.
func (c *Client) Do(r *http.Request) (*Response, error) {
	b := new(bytes.Buffer)
	if os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" || os.Getenv("DEBUG_HTTP_REQUEST") == "true" {
		bits, err := httputil.DumpRequestOut(r, true)
		if err != nil {
			return nil, err
		}
		b.Write(bits)
	}
	res, err := c.Client.Do(r)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" || os.Getenv("DEBUG_HTTP_RESPONSES") == "true" {
		bits, err := httputil.DumpResponse(res, true)
		if err != nil {
			return nil, err
		}
		b.Write(bits)
	}
	if b.Len() > 0 {
		if _, err := b.WriteTo(os.Stderr); err != nil {
			return nil, err
		}
	}
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &Error{
			Message:    "Backend request failed",
			ID:         "backend_error",
			Data:       string(resBody),
			StatusCode: res.StatusCode,
		}
	}
	return &Response{
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Body:        resBody,
	}, nil
}
