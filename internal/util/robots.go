package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy is what a registry host's robots.txt says about the paths a run uses
type RobotsPolicy struct {
	Disallowed []string      // Checked paths the agent may not fetch
	CrawlDelay time.Duration // Zero when robots.txt sets none
}

// Allowed reports whether every checked path may be fetched
func (p RobotsPolicy) Allowed() bool {
	return len(p.Disallowed) == 0
}

// RobotsChecker evaluates registry paths against robots.txt, fetching it once per host
type RobotsChecker struct {
	client    *http.Client
	userAgent string

	mu   sync.Mutex
	docs map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a robots.txt checker. A nil client gets a default one with timeout.
func NewRobotsChecker(userAgent string, timeout time.Duration, client *http.Client) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RobotsChecker{
		client:    client,
		userAgent: NormalizeUserAgent(userAgent),
		docs:      make(map[string]*robotstxt.RobotsData),
	}
}

// Policy checks paths on base's host. An unreachable robots.txt allows everything;
// a 5xx answer disallows everything. Only cancellation of ctx is an error.
func (r *RobotsChecker) Policy(ctx context.Context, base *url.URL, paths ...string) (RobotsPolicy, error) {
	data, err := r.document(ctx, base)
	if err != nil {
		if ctx.Err() != nil {
			return RobotsPolicy{}, ctx.Err()
		}
		return RobotsPolicy{}, nil
	}

	var policy RobotsPolicy
	for _, path := range paths {
		if !data.TestAgent(path, r.userAgent) {
			policy.Disallowed = append(policy.Disallowed, path)
		}
	}
	if group := data.FindGroup(r.userAgent); group != nil {
		policy.CrawlDelay = group.CrawlDelay
	}
	return policy, nil
}

func (r *RobotsChecker) document(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, error) {
	origin := base.Scheme + "://" + base.Host

	r.mu.Lock()
	data, ok := r.docs[origin]
	r.mu.Unlock()
	if ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.docs[origin] = data
	r.mu.Unlock()

	return data, nil
}

// NormalizeUserAgent reduces a user agent to its product token for robots.txt matching
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
