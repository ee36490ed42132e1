// Package httpclient provides the outbound HTTP client used by platform
// publishers. Publishing endpoints come from configuration, so the client
// refuses to talk to loopback, private or link-local addresses.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/crosspost/errors"
)

// SaferClient wraps http.Client with SSRF protection
type SaferClient struct {
	*http.Client
	blockPrivateIP bool
	maxRedirects   int
}

// NewSaferClient creates an HTTP client with SSRF protection
func NewSaferClient(timeout time.Duration) *SaferClient {
	client := &SaferClient{
		Client:         &http.Client{Timeout: timeout},
		blockPrivateIP: true,
		maxRedirects:   5,
	}

	client.CheckRedirect = client.checkRedirect

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	client.Transport = &http.Transport{
		// Resolve first and check every address so DNS rebinding cannot
		// point a public name at an internal host.
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "invalid address")
			}
			addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve host %q", host)
			}
			for _, a := range addrs {
				if isPrivateAddr(a) {
					return nil, errors.Newf("private IP address blocked: %s", a)
				}
			}
			if len(addrs) == 0 {
				return nil, errors.Newf("no addresses for host %q", host)
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
		},
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return client
}

// WrapClient wraps an existing http.Client without SSRF protection.
// Only for tests that talk to httptest servers on localhost. The redirect
// limit still applies.
func WrapClient(client *http.Client) *SaferClient {
	c := &SaferClient{Client: client, maxRedirects: 5}
	c.CheckRedirect = c.checkRedirect
	return c
}

func (c *SaferClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= c.maxRedirects {
		return errors.Newf("stopped after %d redirects", c.maxRedirects)
	}
	if err := c.validateURL(req.URL); err != nil {
		return errors.Wrap(err, "redirect blocked")
	}
	return nil
}

func (c *SaferClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf("scheme %q not allowed", scheme)
	}
	if u.User != nil {
		return errors.New("URL contains userinfo")
	}
	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if !c.blockPrivateIP {
		return nil
	}
	if isLocalhost(hostname) {
		return errors.New("localhost access blocked")
	}
	if a, err := netip.ParseAddr(hostname); err == nil && isPrivateAddr(a) {
		return errors.Newf("private IP address blocked: %s", hostname)
	}
	return nil
}

// ValidateURL parses and checks an endpoint before it is used
func (c *SaferClient) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do executes an HTTP request with SSRF protection
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked by SSRF protection")
	}
	return c.Client.Do(req)
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("2001:db8::/32"), // documentation
	netip.MustParsePrefix("fec0::/10"),     // deprecated site-local
}

func isPrivateAddr(a netip.Addr) bool {
	a = a.Unmap()
	if a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsMulticast() || a.IsUnspecified() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
