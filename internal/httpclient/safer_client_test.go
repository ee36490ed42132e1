package httpclient

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	client := NewSaferClient(30 * time.Second)

	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "public https endpoint", url: "https://dev.to/api/articles"},
		{name: "public http endpoint", url: "http://example.com/publish"},
		{name: "file scheme", url: "file:///etc/passwd", errContains: "scheme"},
		{name: "userinfo", url: "https://evil.com@localhost/", errContains: "userinfo"},
		{name: "localhost", url: "http://localhost:8080/", errContains: "localhost"},
		{name: "loopback ip", url: "http://127.0.0.1/", errContains: "private"},
		{name: "rfc1918", url: "http://10.1.2.3/", errContains: "private"},
		{name: "metadata endpoint", url: "http://169.254.169.254/latest", errContains: "private"},
		{name: "ipv6 loopback", url: "http://[::1]/", errContains: "private"},
		{name: "missing host", url: "https:///path", errContains: "hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ValidateURL(tt.url)
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("expected %s to be allowed, got %v", tt.url, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected %s to be blocked", tt.url)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not mention %q", err, tt.errContains)
			}
		})
	}
}

func TestIsPrivateAddr(t *testing.T) {
	tests := map[string]bool{
		"8.8.8.8":            false,
		"192.168.1.1":        true,
		"172.16.0.1":         true,
		"100.64.0.1":         true,
		"::ffff:127.0.0.1":   true,
		"fd00::1":            true,
		"fe80::1":            true,
		"2001:db8::1":        true,
		"2606:4700:4700::64": false,
	}
	for in, want := range tests {
		if got := isPrivateAddr(netip.MustParseAddr(in)); got != want {
			t.Errorf("isPrivateAddr(%s) = %v, want %v", in, got, want)
		}
	}
}

func TestDoBlocksPrivateTargets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL, nil)
	if _, err := NewSaferClient(5 * time.Second).Do(req); err == nil {
		t.Fatal("expected request to httptest server on loopback to be blocked")
	}

	resp, err := WrapClient(server.Client()).Do(req)
	if err != nil {
		t.Fatalf("wrapped client should reach test server: %v", err)
	}
	resp.Body.Close()
}

func TestMaxRedirects(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer server.Close()

	client := WrapClient(server.Client())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected error for too many redirects, got nil")
	}
	if !strings.Contains(err.Error(), "stopped after 5 redirects") {
		t.Errorf("expected redirect limit error, got: %v", err)
	}
	if hits != client.maxRedirects {
		t.Errorf("expected %d requests before giving up, got %d", client.maxRedirects, hits)
	}
}
