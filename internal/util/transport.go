package util

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpproxy"

	"github.com/ppiankov/rnpdno/internal/model"
)

// NewTransport builds the HTTP transport for registry traffic. Idle connections are kept
// for up to conns concurrent state walks against the single registry host.
func NewTransport(cfg model.HTTPConfig, conns int) (*http.Transport, error) {
	proxy, err := proxyFunc(cfg)
	if err != nil {
		return nil, err
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = proxy
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureTLS} //nolint:gosec // opt-in flag
	if conns > t.MaxIdleConnsPerHost {
		t.MaxIdleConnsPerHost = conns
	}
	return t, nil
}

// NewHTTPClient wraps NewTransport in a client with the configured request timeout,
// for requests that do not go through the registry client
func NewHTTPClient(cfg model.HTTPConfig, conns int) (*http.Client, error) {
	t, err := NewTransport(cfg, conns)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: t, Timeout: cfg.Timeout}, nil
}

// proxyFunc uses the configured proxies, or the environment when none is set
func proxyFunc(cfg model.HTTPConfig) (func(*http.Request) (*url.URL, error), error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment, nil
	}

	for _, raw := range []string{cfg.HTTPProxy, cfg.HTTPSProxy} {
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		if u, err := url.Parse(raw); err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", raw)
		}
	}

	proxy := (&httpproxy.Config{
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
		NoProxy:    cfg.NoProxy,
	}).ProxyFunc()

	return func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}, nil
}
