package util

import (
	"net/http"
	"testing"

	"github.com/ppiankov/rnpdno/internal/model"
)

func TestNewTransport_Proxies(t *testing.T) {
	transport, err := NewTransport(model.HTTPConfig{
		HTTPProxy:  "http://proxy.local:3128",
		HTTPSProxy: "secure-proxy.local:3128",
		NoProxy:    "registry.internal",
	}, 4)
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}

	tests := []struct {
		url  string
		want string
	}{
		{"http://registry.example/search", "http://proxy.local:3128"},
		{"https://registry.example/search", "http://secure-proxy.local:3128"},
		{"https://registry.internal/search", ""},
	}

	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, tt.url, nil)
		if err != nil {
			t.Fatal(err)
		}
		got, err := transport.Proxy(req)
		if err != nil {
			t.Fatalf("proxy(%s): %v", tt.url, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("proxy(%s) = %q, want %q", tt.url, gotStr, tt.want)
		}
	}
}

func TestNewTransport_InvalidProxy(t *testing.T) {
	if _, err := NewTransport(model.HTTPConfig{HTTPProxy: "http://"}, 1); err == nil {
		t.Error("expected error for proxy URL without host")
	}
}

func TestNewTransport_Settings(t *testing.T) {
	transport, err := NewTransport(model.HTTPConfig{InsecureTLS: true}, 32)
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	if !transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected TLS verification disabled")
	}
	if transport.MaxIdleConnsPerHost != 32 {
		t.Errorf("expected 32 idle conns per host, got %d", transport.MaxIdleConnsPerHost)
	}

	transport, err = NewTransport(model.HTTPConfig{}, 1)
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	if transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected TLS verification enabled by default")
	}
}
