package httppub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/crosspost/am"
	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/internal/httpclient"
	"github.com/teranos/crosspost/publish"
	"github.com/teranos/crosspost/pulse/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewWithHTTPClient(Config{Platform: "devto", Endpoint: srv.URL + "/api/articles"},
		httpclient.WrapClient(srv.Client()))
	require.NoError(t, err)
	return c
}

var content = publish.Content{Title: "Hello", Body: "# Hello", Tags: []string{"go"}, CanonicalURL: "https://blog.example/hello"}

func TestPublish_Success(t *testing.T) {
	var got postRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/articles", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "crosspost/")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 1234567, "url": "https://dev.to/u/hello"}`))
	})

	res, err := c.Publish(context.Background(), content, publish.Credentials{APIKey: "secret", PublicationID: "pub-1"})
	require.NoError(t, err)
	assert.Equal(t, "1234567", res.PostID)
	assert.Equal(t, "https://dev.to/u/hello", res.URL)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "# Hello", got.BodyMarkdown)
	assert.Equal(t, "pub-1", got.PublicationID)
	assert.Equal(t, "https://blog.example/hello", got.CanonicalURL)
}

func TestPublish_StringID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "65af01", "url": "https://hashnode.example/hello"}`))
	})

	res, err := c.Publish(context.Background(), content, publish.Credentials{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "65af01", res.PostID)
}

func TestPublish_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		code      retry.ErrorCode
	}{
		{http.StatusTooManyRequests, true, retry.CodeRateLimited},
		{http.StatusBadGateway, true, retry.CodeServerError},
		{http.StatusUnauthorized, false, retry.CodeAuth},
		{http.StatusUnprocessableEntity, false, retry.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": "nope"}`))
			})

			_, err := c.Publish(context.Background(), content, publish.Credentials{APIKey: "k"})
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode())
			assert.Contains(t, se.Body, "nope")

			class := retry.Classify(err)
			assert.Equal(t, tt.retryable, class.Retryable)
			assert.Equal(t, tt.code, class.Code)
		})
	}
}

func TestPublish_MissingKey(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Publish(context.Background(), content, publish.Credentials{})
	require.Error(t, err)
	assert.True(t, errors.IsAuthError(err))
	assert.False(t, called)
}

func TestPublish_UnconfirmedResponse(t *testing.T) {
	tests := map[string]string{
		"no id":           `{"url": "https://x.example"}`,
		"not json":        `<html>created</html>`,
		"empty body":      ``,
		"id is an object": `{"id": {"value": 1}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(body))
			})

			_, err := c.Publish(context.Background(), content, publish.Credentials{APIKey: "k"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrUnconfirmed))
			assert.Contains(t, err.Error(), "HTTP 201")

			class := retry.Classify(err)
			assert.Equal(t, retry.CodeUnconfirmed, class.Code)
			assert.False(t, class.Retryable, "an unconfirmed post must not be retried")
		})
	}
}

func TestPublish_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Publish(ctx, content, publish.Credentials{APIKey: "k"})
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
}

func TestNew_RejectsPrivateEndpoints(t *testing.T) {
	for _, endpoint := range []string{
		"http://localhost:8080/api",
		"http://10.0.0.5/api",
		"ftp://dev.to/api",
		"",
	} {
		_, err := New(Config{Platform: "devto", Endpoint: endpoint})
		assert.Error(t, err, endpoint)
	}

	_, err := New(Config{Endpoint: "https://dev.to/api/articles"})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(map[string]am.PlatformConfig{
		"devto":    {Endpoint: "https://dev.to/api/articles", RateLimitPerMinute: 10},
		"hashnode": {Endpoint: "https://gql.hashnode.com/posts"},
		"medium":   {},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"devto", "hashnode"}, reg.Platforms())

	_, err = NewRegistry(map[string]am.PlatformConfig{"devto": {Endpoint: "http://127.0.0.1/x"}})
	assert.Error(t, err)
}
