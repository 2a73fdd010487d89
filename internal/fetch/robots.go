package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsCache fetches and caches robots.txt per host. Hosts whose robots.txt
// cannot be fetched or parsed are treated as fully allowed; fetch failures are
// not cached.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	groups map[string]*robotstxt.Group // nil entry = allow all
	flight singleflight.Group
}

// NewRobotsCache returns a RobotsCache that identifies itself as userAgent.
func NewRobotsCache(hc *http.Client, userAgent string, timeout time.Duration, logger *slog.Logger) *RobotsCache {
	if hc == nil {
		hc = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if userAgent == "" {
		userAgent = "*"
	}
	return &RobotsCache{
		client:    hc,
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be fetched under its host's robots.txt.
func (r *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	origin := u.Scheme + "://" + u.Host

	group := r.group(ctx, origin)
	if group == nil {
		return true
	}
	if !group.Test(u.RequestURI()) {
		r.logger.Warn("url disallowed by robots.txt", "url", rawURL, "user_agent", r.userAgent)
		return false
	}
	return true
}

func (r *RobotsCache) group(ctx context.Context, origin string) *robotstxt.Group {
	r.mu.RLock()
	g, ok := r.groups[origin]
	r.mu.RUnlock()
	if ok {
		return g
	}

	v, _, _ := r.flight.Do(origin, func() (any, error) {
		r.mu.RLock()
		g, ok := r.groups[origin]
		r.mu.RUnlock()
		if ok {
			return g, nil
		}
		g, final := r.load(ctx, origin)
		if final {
			r.mu.Lock()
			r.groups[origin] = g
			r.mu.Unlock()
		}
		return g, nil
	})
	return v.(*robotstxt.Group)
}

// load fetches origin's robots.txt. final is false for transient failures
// (network errors, 5xx, truncated bodies), which are allowed once and retried
// on the next lookup instead of being cached. The fetch is detached from ctx
// cancellation since its result is shared with every waiting caller.
func (r *RobotsCache) load(ctx context.Context, origin string) (group *robotstxt.Group, final bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	robotsURL := origin + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, true
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("robots.txt unavailable, allowing for now", "url", robotsURL, "err", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		r.logger.Warn("robots.txt server error, allowing for now", "url", robotsURL, "status", resp.StatusCode)
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, false
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		r.logger.Warn("robots.txt unparsable, assuming full access", "url", robotsURL, "err", err)
		return nil, true
	}
	return data.FindGroup(r.userAgent), true
}
