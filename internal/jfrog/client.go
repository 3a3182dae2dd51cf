// Package jfrog talks to the artifact repository: it builds archive URLs,
// probes for existence, discovers the latest build coordinate for a branch
// and streams archives.
package jfrog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/buildforge/wincore/pkg/logger"
)

// DefaultChecksumHeader is the upstream checksum header consulted after a
// download. Absence of the header skips verification.
const DefaultChecksumHeader = "X-Checksum-Sha256"

// Options tune a Client beyond its credentials.
type Options struct {
	RetryAttempts  int           // transient retry budget, default 3
	LookbackDays   int           // discovery date walk-back, default 7
	ChecksumHeader string        // default DefaultChecksumHeader
	RequestTimeout time.Duration // per-probe timeout, default 30 s
	Clock          clock.Clock   // injected for tests, default wall clock
}

// Client is a shared, concurrency-safe artifact repository client backed by
// one keep-alive connection pool.
type Client struct {
	baseURL        string
	username       string
	password       string
	retryAttempts  int
	lookbackDays   int
	checksumHeader string
	httpClient     *http.Client
	clock          clock.Clock
	log            *logger.Logger

	probes atomic.Int64
}

// NewClient creates a client for the given repository and credentials.
func NewClient(baseURL, username, password string, opts Options, log *logger.Logger) *Client {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	if opts.ChecksumHeader == "" {
		opts.ChecksumHeader = DefaultChecksumHeader
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL:        baseURL,
		username:       username,
		password:       password,
		retryAttempts:  opts.RetryAttempts,
		lookbackDays:   opts.LookbackDays,
		checksumHeader: opts.ChecksumHeader,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
		},
		clock: opts.Clock,
		log:   log,
	}
}

// ChecksumHeader returns the header name consulted for upstream checksums.
func (c *Client) ChecksumHeader() string {
	return c.checksumHeader
}

// ProbeCount returns how many existence probes this client has issued.
// Instrumentation for tests and diagnostics.
func (c *Client) ProbeCount() int64 {
	return c.probes.Load()
}

// Exists answers whether the archive URL is present, retrying transient
// failures within the retry budget. 401/403 surface as ErrUnauthorized and
// are never retried.
func (c *Client) Exists(ctx context.Context, rawURL string) (bool, error) {
	var found bool
	op := func() error {
		ok, err := c.head(ctx, rawURL)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		found = ok
		return nil
	}
	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return false, err
	}
	return found, nil
}

func (c *Client) head(ctx context.Context, rawURL string) (bool, error) {
	c.probes.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, transient("probe %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("probe %s: HTTP %d: %w", rawURL, resp.StatusCode, ErrUnauthorized)
	default:
		return false, transient("probe %s: HTTP %d", rawURL, resp.StatusCode)
	}
}

// OpenStream performs an authenticated GET and returns the body, the content
// length (-1 when unknown) and the upstream checksum header value (empty when
// absent). The caller owns the body.
func (c *Client) OpenStream(ctx context.Context, rawURL string) (io.ReadCloser, int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	// The shared client timeout would cut long downloads short; the caller
	// bounds the stream through ctx instead.
	streamClient := &http.Client{Transport: c.httpClient.Transport}

	resp, err := streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, "", ctx.Err()
		}
		return nil, 0, "", transient("download %s: %v", rawURL, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, resp.ContentLength, resp.Header.Get(c.checksumHeader), nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, "", fmt.Errorf("download %s: %w", rawURL, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, 0, "", fmt.Errorf("download %s: HTTP %d: %w", rawURL, resp.StatusCode, ErrUnauthorized)
	default:
		resp.Body.Close()
		return nil, 0, "", transient("download %s: HTTP %d", rawURL, resp.StatusCode)
	}
}

// CheckAuth probes the repository root to verify reachability and that the
// credentials are accepted. Used by the test command.
func (c *Client) CheckAuth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transient("reach %s: %v", c.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("auth check: HTTP %d: %w", resp.StatusCode, ErrUnauthorized)
	}
	return nil
}

// newBackOff builds the retry policy: capped exponential, base 1 s, factor 2,
// cap 30 s, with jitter, bounded by the retry budget.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 1 // full jitter
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retryAttempts)), ctx)
}
