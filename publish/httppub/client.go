// Package httppub publishes to platforms that accept a JSON post over
// HTTP. One Client serves one platform; endpoints come from configuration.
package httppub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/crosspost/am"
	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/internal/httpclient"
	"github.com/teranos/crosspost/publish"
	"github.com/teranos/crosspost/version"
)

const (
	// DefaultTimeout bounds one publish call when configuration has none.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
	maxErrorBody     = 200
)

// StatusError is a non-2xx answer from a platform.
type StatusError struct {
	Platform string
	Code     int
	Body     string // truncated
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Platform, e.Code, e.Body)
}

// StatusCode lets the retry classifier see the HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

// Config describes one platform endpoint.
type Config struct {
	Platform      string
	Endpoint      string
	Timeout       time.Duration
	RatePerMinute int // 0 = no pacing
}

// Client publishes to one platform.
type Client struct {
	platform string
	endpoint string
	http     *httpclient.SaferClient
	limiter  *rate.Limiter
}

// New creates a client with SSRF protection.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(cfg, httpclient.NewSaferClient(timeout))
}

// NewWithHTTPClient creates a client on top of hc.
func NewWithHTTPClient(cfg Config, hc *httpclient.SaferClient) (*Client, error) {
	if cfg.Platform == "" {
		return nil, errors.NewInvalidRequestError("platform name is required")
	}
	if _, err := hc.ValidateURL(cfg.Endpoint); err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint for %s", cfg.Platform)
	}

	c := &Client{platform: cfg.Platform, endpoint: cfg.Endpoint, http: hc}
	if cfg.RatePerMinute > 0 {
		// Spreads an instance's calls over the minute; the shared budget
		// gate enforces the cross-instance ceiling.
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}
	return c, nil
}

// Platform implements publish.Publisher.
func (c *Client) Platform() string { return c.platform }

type postRequest struct {
	Title         string   `json:"title"`
	BodyMarkdown  string   `json:"body_markdown"`
	Tags          []string `json:"tags"`
	CoverImage    string   `json:"cover_image,omitempty"`
	CanonicalURL  string   `json:"canonical_url,omitempty"`
	PublicationID string   `json:"publication_id,omitempty"`
	Published     bool     `json:"published"`
}

type postResponse struct {
	ID  json.RawMessage `json:"id"` // number on some platforms, string on others
	URL string          `json:"url"`
}

func (r postResponse) postID() string {
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(r.ID, &n); err == nil {
		return n.String()
	}
	return ""
}

// Publish implements publish.Publisher.
func (c *Client) Publish(ctx context.Context, content publish.Content, creds publish.Credentials) (*publish.PublishResult, error) {
	if creds.APIKey == "" {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s: no api key", c.platform)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "%s: waiting for send slot", c.platform)
		}
	}

	body, err := json.Marshal(postRequest{
		Title:         content.Title,
		BodyMarkdown:  content.Body,
		Tags:          content.Tags,
		CoverImage:    content.ThumbnailURL,
		CanonicalURL:  content.CanonicalURL,
		PublicationID: creds.PublicationID,
		Published:     true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode post")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request failed", c.platform)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to read response", c.platform)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Platform: c.platform, Code: resp.StatusCode, Body: snippet(raw)}
	}

	// A 2xx means the post was most likely created. Without an id it cannot
	// be recorded as a success, so it is reported as unconfirmed rather
	// than as an ordinary failure.
	var out postResponse
	id := ""
	if err := json.Unmarshal(raw, &out); err == nil {
		id = out.postID()
	}
	if id == "" {
		err := errors.Wrapf(errors.ErrUnconfirmed, "%s answered HTTP %d with no readable post id; response: %s",
			c.platform, resp.StatusCode, snippet(raw))
		return nil, errors.WithHint(err, "check the platform for the post before resetting the job")
	}
	return &publish.PublishResult{PostID: id, URL: out.URL}, nil
}

func snippet(raw []byte) string {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return string(bytes.TrimSpace(raw))
}

// NewRegistry builds a publisher registry with one client per configured
// platform that has an endpoint. Platforms without an endpoint are left
// out, so jobs naming them fail as unsupported.
func NewRegistry(platforms map[string]am.PlatformConfig) (*publish.Registry, error) {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	slices.Sort(names)

	reg := publish.NewRegistry()
	for _, name := range names {
		pc := platforms[name]
		if pc.Endpoint == "" {
			continue
		}
		c, err := New(Config{
			Platform:      name,
			Endpoint:      pc.Endpoint,
			Timeout:       time.Duration(pc.TimeoutSeconds) * time.Second,
			RatePerMinute: pc.RateLimitPerMinute,
		})
		if err != nil {
			return nil, err
		}
		reg.Register(c)
	}
	return reg, nil
}
