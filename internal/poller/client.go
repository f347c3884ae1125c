package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// maxSnippetSize bounds the body excerpt carried by an HTTP FetchError.
const maxSnippetSize = 240

// DefaultUserAgent is sent when the caller does not supply one.
const DefaultUserAgent = "entrywatch/1.0 (+https://github.com/jpalmerr/entrywatch)"

// connection pooling limits to prevent resource exhaustion when polling many targets
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// FetchErrorKind classifies why a fetch failed.
type FetchErrorKind string

const (
	// FetchTimeout means the per-request deadline expired.
	FetchTimeout FetchErrorKind = "timeout"

	// FetchNetwork covers DNS, connection and body read failures.
	FetchNetwork FetchErrorKind = "network"

	// FetchHTTP means a response arrived with a non-2xx status.
	FetchHTTP FetchErrorKind = "http"
)

// FetchError is returned by [Client.Fetch] for every failed request.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int    // set for FetchHTTP
	Snippet    string // first bytes of the body for FetchHTTP
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTP:
		if e.Snippet != "" {
			return fmt.Sprintf("http %d: %s", e.StatusCode, e.Snippet)
		}
		return fmt.Sprintf("http %d", e.StatusCode)
	case FetchTimeout:
		return "timeout: " + errString(e.Err)
	default:
		return "network: " + errString(e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// Response holds a successful fetch.
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the 2xx status that was returned.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration
}

// Client is an HTTP client wrapper for polling registration pages.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so every target can carry its own deadline. It never retries: a failed
// request is reported and the next scheduled poll is the retry.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new polling [Client].
//
// An empty userAgent selects [DefaultUserAgent].
func NewClient(userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		userAgent: userAgent,
	}
}

// Fetch performs one GET request against url.
//
// The timeout is applied via context cancellation on top of ctx, so
// cancelling ctx aborts the request as well. Headers override the default
// User-Agent when they carry one. Any non-2xx status yields a *FetchError of
// kind [FetchHTTP] carrying up to 240 bytes of the body.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, &FetchError{Kind: FetchNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{}, classifyTransportError(ctx, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &FetchError{
			Kind:       FetchHTTP,
			StatusCode: resp.StatusCode,
			Snippet:    snippet(body),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}, nil
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func classifyTransportError(ctx context.Context, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, Err: err}
	}
	return &FetchError{Kind: FetchNetwork, Err: err}
}

// snippet trims the body to a single-line excerpt of at most maxSnippetSize bytes.
func snippet(body []byte) string {
	if len(body) > maxSnippetSize {
		body = body[:maxSnippetSize]
	}
	s := strings.ToValidUTF8(string(body), "")
	s = strings.Join(strings.Fields(s), " ")
	return s
}
