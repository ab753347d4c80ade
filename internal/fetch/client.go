// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package fetch is the quota-aware client for the GitHub REST API. Every
// metered call is admitted by the quota Tracker, bounded by a process-wide
// in-flight limit, and accounted from the response's rate-limit headers.
// Transient failures are retried with exponential backoff and jitter.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/petar-djukic/go-repomap/internal/logging"
	"github.com/petar-djukic/go-repomap/internal/quota"
	"github.com/petar-djukic/go-repomap/pkg/types"
)

const (
	DefaultBaseURL = "https://api.github.com"

	defaultMaxAttempts    = 3
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 10 * time.Second
	defaultMaxInFlight    = 8
	defaultAttemptTimeout = 30 * time.Second
	defaultUserAgent      = "go-repomap"
	maxRateLimitWaits     = 3
	maxBodyBytes          = 32 << 20
	apiVersion            = "2022-11-28"
)

// ErrTransient reports a failure that persisted through every retry.
var ErrTransient = errors.New("transient fetch failure")

// errRateLimited marks a rate-limit response; the tier has already been
// marked exhausted when it is returned.
var errRateLimited = errors.New("rate limited")

// Config configures the client.
type Config struct {
	BaseURL        string         // default https://api.github.com
	Token          string         // sent as a bearer token when set
	HTTPClient     *http.Client   // default http.DefaultClient
	Quota          *quota.Tracker // default: a fresh tracker with the Block policy
	MaxAttempts    int            // attempts per call for transient failures (default 3)
	BaseDelay      time.Duration  // first backoff delay (default 500ms)
	MaxDelay       time.Duration  // backoff cap (default 10s)
	MaxInFlight    int64          // concurrent requests (default 8)
	AttemptTimeout time.Duration  // per-attempt deadline (default 30s)
	UserAgent      string
	Logger         *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	base           *url.URL
	token          string
	http           *http.Client
	quota          *quota.Tracker
	sem            *semaphore.Weighted
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
	userAgent      string
	logger         *slog.Logger
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Quota == nil {
		cfg.Quota = quota.NewTracker(quota.Config{Logger: cfg.Logger})
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Client{
		base:           base,
		token:          cfg.Token,
		http:           cfg.HTTPClient,
		quota:          cfg.Quota,
		sem:            semaphore.NewWeighted(cfg.MaxInFlight),
		maxAttempts:    cfg.MaxAttempts,
		baseDelay:      cfg.BaseDelay,
		maxDelay:       cfg.MaxDelay,
		attemptTimeout: cfg.AttemptTimeout,
		userAgent:      cfg.UserAgent,
		logger:         cfg.Logger,
	}, nil
}

// Quota returns the tracker the client accounts against.
func (c *Client) Quota() *quota.Tracker { return c.quota }

// Fetch performs a metered GET of an API path on the given tier and returns
// the response body.
func (c *Client) Fetch(ctx context.Context, tier types.QuotaTier, path string, query url.Values) ([]byte, error) {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()
	return c.do(ctx, tier, true, u.String())
}

// fetchRaw performs an unmetered GET of an absolute URL, such as a raw
// download link.
func (c *Client) fetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, types.TierGeneral, false, rawURL)
}

// do runs the retry loop around single attempts.
func (c *Client) do(ctx context.Context, tier types.QuotaTier, metered bool, target string) ([]byte, error) {
	transient, rateWaits := 0, 0
	for {
		body, err := c.attempt(ctx, tier, metered, target)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetching %s: %w", target, ctx.Err())
		}

		switch {
		case errors.Is(err, errRateLimited):
			retryAfter := time.Until(c.quota.State(tier).ResetAt)
			if c.quota.Policy() == quota.FailFast || rateWaits >= maxRateLimitWaits {
				return nil, types.RateLimited(retryAfter, "%s tier rate limited fetching %s", tier, target)
			}
			rateWaits++
			c.logger.Warn("rate limited, waiting for reset", "tier", tier, "wait", retryAfter)

		case errors.Is(err, ErrTransient):
			transient++
			if transient >= c.maxAttempts {
				return nil, fmt.Errorf("fetching %s after %d attempts: %w", target, transient, err)
			}
			delay := c.backoff(transient)
			c.logger.Warn("request failed, retrying", "url", target, "attempt", transient, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("fetching %s: %w", target, ctx.Err())
			}

		default:
			return nil, err
		}
	}
}

// attempt performs one request.
func (c *Client) attempt(ctx context.Context, tier types.QuotaTier, metered bool, target string) ([]byte, error) {
	// Quota admission may wait for a reset, so it must not hold a slot.
	if metered {
		release, err := c.quota.Acquire(ctx, tier)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}
	if metered {
		c.account(ctx, tier, resp.Header)
	}
	return c.classify(ctx, tier, metered, target, resp, body)
}

// account records the provider-declared quota, or decrements locally when
// the response carries none.
func (c *Client) account(ctx context.Context, tier types.QuotaTier, h http.Header) {
	var err error
	remaining, ok := headerInt(h, "X-RateLimit-Remaining")
	if ok {
		limit, _ := headerInt(h, "X-RateLimit-Limit")
		err = c.quota.Update(ctx, tier, remaining, limit, headerUnix(h, "X-RateLimit-Reset"))
	} else {
		err = c.quota.Consume(ctx, tier)
	}
	if err != nil {
		c.logger.Warn("persisting quota state", "tier", tier, "error", err)
	}
}

// classify maps a response to a body or a classified error.
func (c *Client) classify(ctx context.Context, tier types.QuotaTier, metered bool, target string, resp *http.Response, body []byte) ([]byte, error) {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return body, nil

	case isRateLimited(resp, body):
		if !metered {
			return nil, fmt.Errorf("%w: status %d from %s", ErrTransient, status, target)
		}
		reset := headerUnix(resp.Header, "X-RateLimit-Reset")
		if secs, ok := headerInt(resp.Header, "Retry-After"); ok {
			reset = time.Now().Add(time.Duration(secs) * time.Second)
		}
		if err := c.quota.Exhaust(ctx, tier, reset); err != nil {
			c.logger.Warn("persisting quota state", "tier", tier, "error", err)
		}
		return nil, errRateLimited

	case status == http.StatusUnauthorized:
		return nil, types.NewError(types.KindAuthentication, nil, "invalid or expired token")

	case status == http.StatusForbidden:
		return nil, types.NewError(types.KindAuthentication, nil, "access forbidden to %s", target)

	case status >= 500:
		return nil, fmt.Errorf("%w: status %d from %s", ErrTransient, status, target)

	default:
		return nil, types.NewError(types.KindNotFound, nil, "%s (status %d)", target, status)
	}
}

// backoff returns the delay before retry n (n >= 1): exponential growth capped
// at maxDelay, with the upper half randomized.
func (c *Client) backoff(n int) time.Duration {
	d := c.baseDelay << (n - 1)
	if d <= 0 || d > c.maxDelay {
		d = c.maxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func isRateLimited(resp *http.Response, body []byte) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return true
		}
		return strings.Contains(strings.ToLower(string(body)), "rate limit")
	}
	return false
}

func headerInt(h http.Header, name string) (int, bool) {
	v := h.Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func headerUnix(h http.Header, name string) time.Time {
	n, ok := headerInt(h, name)
	if !ok || n <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(n), 0)
}
