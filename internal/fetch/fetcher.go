package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"gigbot/discovery-service/internal/throttle"
)

const defaultMaxBody = 8 << 20

// Request is a single HTTP request description. Bodies are kept as bytes so the
// request can be replayed on retry.
type Request struct {
	Method string // defaults to GET
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RobotsPolicy decides whether a URL may be fetched at all.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Options controls the retry loop.
type Options struct {
	Attempts     int           // total attempts, default 5
	BaseDelay    time.Duration // backoff base, default 1s
	MaxDelay     time.Duration // backoff cap before jitter; 0 = uncapped
	Timeout      time.Duration // per attempt, default 15s
	UserAgent    string
	MaxBodyBytes int64
}

// Client runs requests through the throttler and retry policy.
type Client struct {
	opts     Options
	http     *http.Client
	throttle *throttle.Throttler
	robots   RobotsPolicy
	logger   *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// NewClient builds a Client. throttler and robots may be nil.
func NewClient(opts Options, hc *http.Client, throttler *throttle.Throttler, robots RobotsPolicy, logger *slog.Logger) *Client {
	if opts.Attempts < 1 {
		opts.Attempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:     opts,
		http:     hc,
		throttle: throttler,
		robots:   robots,
		logger:   logger,
		sleep:    throttle.Sleep,
		jitter:   rand.Int64N,
	}
}

// SourceFetcher is a Client bound to one source's throttle bucket.
type SourceFetcher struct {
	client *Client
	source string
}

// ForSource returns the fetch capability handed to a source adapter.
func (c *Client) ForSource(source string) *SourceFetcher {
	return &SourceFetcher{client: c, source: source}
}

// Fetch performs req for the bound source.
func (f *SourceFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f.client.Fetch(ctx, f.source, req)
}

// maxBackoff is where uncapped doubling saturates, leaving headroom for jitter.
const maxBackoff = time.Duration(math.MaxInt64 / 2)

// BackoffDelay is the un-jittered wait after the given failed attempt (1-based):
// base·2^(attempt-1), capped at ceiling when ceiling > 0.
func BackoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		if d > maxBackoff/2 {
			d = maxBackoff
			break
		}
		d *= 2
		if ceiling > 0 && d >= ceiling {
			return ceiling
		}
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

func (c *Client) backoff(attempt int) time.Duration {
	d := BackoffDelay(attempt, c.opts.BaseDelay, c.opts.MaxDelay)
	j := time.Duration(c.jitter(int64(c.opts.BaseDelay)))
	if d > math.MaxInt64-j {
		return d
	}
	return d + j
}

// Fetch performs req on behalf of source, retrying transient failures.
// Permanent failures are returned as *FetchError; cancellation of ctx is
// returned wrapped as-is.
func (c *Client) Fetch(ctx context.Context, source string, req Request) (*Response, error) {
	if c.robots != nil && !c.robots.Allowed(ctx, req.URL) {
		return nil, &FetchError{Kind: KindPolicyDenied, URL: req.URL}
	}

	var last *FetchError
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if attempt > 1 {
			d := c.backoff(attempt - 1)
			c.logger.Warn("retrying fetch",
				"source", source, "url", req.URL, "attempt", attempt, "delay", d, "err", last)
			if err := c.sleep(ctx, d); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
			}
		}

		resp, err := c.attempt(ctx, source, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
		}
		var fe *FetchError
		if !errors.As(err, &fe) {
			return nil, err
		}
		fe.Attempts = attempt
		last = fe
		if !fe.Retryable() {
			return nil, fe
		}
	}
	return nil, last
}

func (c *Client) attempt(ctx context.Context, source string, req Request) (*Response, error) {
	if c.throttle != nil {
		permit, err := c.throttle.Acquire(ctx, source)
		if err != nil {
			return nil, err
		}
		defer permit.Release()
	}

	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(actx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", req.URL, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("User-Agent") == "" && c.opts.UserAgent != "" {
		hreq.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, classify(req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, classify(req.URL, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func classify(url string, err error) *FetchError {
	kind := KindNetwork
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}
