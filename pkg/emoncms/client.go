// Package emoncms implements the client side of an emoncms-style feed
// API: feed listing, per-feed metadata, and time-ranged sample fetches.
package emoncms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/emonmirror/emonmirror/pkg/config"
)

// Source is the remote-feed capability the mirror consumes. Client is
// the HTTP implementation; tests substitute scripted fakes.
type Source interface {
	// ListFeeds returns every feed visible to the credential.
	ListFeeds(ctx context.Context) ([]FeedInfo, error)

	// FeedInfo returns one feed's identity and current end time.
	FeedInfo(ctx context.Context, id int64) (FeedInfo, error)

	// FeedMeta returns one feed's sampling metadata.
	FeedMeta(ctx context.Context, id int64) (FeedMeta, error)

	// FetchRange returns the feed's samples in [start, end) at the given
	// interval, as (millisecond timestamp, value|missing) pairs in
	// increasing time order. An empty result is not a failure.
	FetchRange(ctx context.Context, id, start, end, interval int64) ([]DataPoint, error)
}

// HTTPClient is the subset of http.Client the client depends on
// (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to an emoncms server over HTTP/JSON, authenticating with
// a static read API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: config.FetchTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Source = (*Client)(nil)

// ListFeeds implements Source.
func (c *Client) ListFeeds(ctx context.Context) ([]FeedInfo, error) {
	var feeds []FeedInfo
	if err := c.get(ctx, "list", "/feed/list.json", nil, &feeds); err != nil {
		return nil, err
	}
	return feeds, nil
}

// FeedInfo implements Source.
func (c *Client) FeedInfo(ctx context.Context, id int64) (FeedInfo, error) {
	params := url.Values{"id": {strconv.FormatInt(id, 10)}}
	var info FeedInfo
	if err := c.get(ctx, "aget", "/feed/aget.json", params, &info); err != nil {
		return FeedInfo{}, err
	}
	return info, nil
}

// FeedMeta implements Source.
func (c *Client) FeedMeta(ctx context.Context, id int64) (FeedMeta, error) {
	params := url.Values{"id": {strconv.FormatInt(id, 10)}}
	var meta FeedMeta
	if err := c.get(ctx, "getmeta", "/feed/getmeta.json", params, &meta); err != nil {
		return FeedMeta{}, err
	}
	return meta, nil
}

// FetchRange implements Source. The server bounds response sizes, so
// callers must keep (end-start)/interval within the source's block
// limit.
func (c *Client) FetchRange(ctx context.Context, id, start, end, interval int64) ([]DataPoint, error) {
	params := url.Values{
		"id":       {strconv.FormatInt(id, 10)},
		"start":    {strconv.FormatInt(start*1000, 10)}, // the data endpoint takes milliseconds
		"end":      {strconv.FormatInt(end*1000, 10)},
		"interval": {strconv.FormatInt(interval, 10)},
	}
	var points []DataPoint
	if err := c.get(ctx, "data", "/feed/data.json", params, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// remoteFailure is the error envelope the server embeds in a 200
// response when a request fails logically.
type remoteFailure struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// get performs one API request and decodes the response into out.
// Failures are classified: connection and HTTP-status problems become
// *TransportError, remote-reported failures and undecodable bodies
// become *RemoteError.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: op, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		// The server reports logical failures as {"success":false,...}
		// with status 200; try that shape before giving up.
		var failure remoteFailure
		if jerr := json.Unmarshal(body, &failure); jerr == nil && failure.Success != nil && !*failure.Success {
			msg := failure.Message
			if msg == "" {
				msg = "request failed"
			}
			return &RemoteError{Op: op, Message: msg}
		}
		return &RemoteError{Op: op, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}
