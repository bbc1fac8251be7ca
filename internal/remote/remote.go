// Package remote is the JSON-over-HTTP plumbing shared by the issue tracker
// and code host clients.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/relatedwork/internal/metrics"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

// RemoteError is any failure talking to an upstream service. StatusCode is
// zero when no response was received.
type RemoteError struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Authorizer decorates outgoing requests with credentials.
type Authorizer func(*http.Request)

// BasicAuth authorizes with a user and password (or API token).
func BasicAuth(user, password string) Authorizer {
	return func(r *http.Request) { r.SetBasicAuth(user, password) }
}

// BearerToken authorizes with an Authorization: Bearer header. An empty token
// sends no header.
func BearerToken(token string) Authorizer {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// Client issues requests against one base URL.
type Client struct {
	Service   string
	BaseURL   string
	Accept    string
	Authorize Authorizer
	HTTP      *http.Client
	Headers   map[string]string
}

// NewClient returns a client for service rooted at baseURL.
func NewClient(service, baseURL string, auth Authorizer) *Client {
	return &Client{
		Service:   service,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Accept:    "application/json",
		Authorize: auth,
		HTTP:      &http.Client{Timeout: DefaultTimeout},
	}
}

// GetJSON decodes the JSON response of GET path into out.
func (c *Client) GetJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	body, err := c.do(ctx, op, http.MethodGet, path, q, nil, "")
	if err != nil {
		return err
	}
	return c.decode(op, body, out)
}

// PostJSON sends in as a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, op, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &RemoteError{Service: c.Service, Op: op, Err: fmt.Errorf("marshal: %w", err)}
	}
	body, err := c.do(ctx, op, http.MethodPost, path, nil, payload, "")
	if err != nil {
		return err
	}
	return c.decode(op, body, out)
}

// GetText returns the raw body of GET path using the given Accept header.
func (c *Client) GetText(ctx context.Context, op, path string, q url.Values, accept string) (string, error) {
	body, err := c.do(ctx, op, http.MethodGet, path, q, nil, accept)
	return string(body), err
}

func (c *Client) decode(op string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RemoteError{Service: c.Service, Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, payload []byte, accept string) ([]byte, error) {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader = http.NoBody
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, &RemoteError{Service: c.Service, Op: op, Err: fmt.Errorf("new request: %w", err)}
	}
	if accept == "" {
		accept = c.Accept
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "relatedwork")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	if c.Authorize != nil {
		c.Authorize(req)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(c.Service, op, "error").Inc()
		return nil, &RemoteError{Service: c.Service, Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.RemoteRequestsTotal.WithLabelValues(c.Service, op, strconv.Itoa(resp.StatusCode)).Inc()
	log.Debug().
		Str("service", c.Service).
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("remote request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RemoteError{
			Service:    c.Service,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Service: c.Service, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
