package httpcache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlesDB/internal/logging"
)

func setup(t *testing.T, handler http.HandlerFunc) (*Cache, *miniredis.Miniredis, *httptest.Server) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(server.Client(), client, time.Hour, logging.Discard()), mr, server
}

func get(t *testing.T, f *Cache, url, auth string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := f.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestCacheServesRepeatedGets(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c, mr, server := setup(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<title>cached</title>")
	})

	first, body := get(t, c, server.URL+"/page", "")
	assert.Equal(t, "<title>cached</title>", body)
	assert.Empty(t, first.Header.Get(HeaderCache))

	second, body := get(t, c, server.URL+"/page", "")
	assert.Equal(t, "<title>cached</title>", body)
	assert.Equal(t, "HIT", second.Header.Get(HeaderCache))
	assert.Equal(t, "text/html", second.Header.Get("Content-Type"))
	assert.Equal(t, http.StatusOK, second.StatusCode)

	assert.Equal(t, int32(1), hits.Load())
	assert.Len(t, mr.Keys(), 1)
	assert.True(t, mr.TTL(mr.Keys()[0]) > 0)
}

func TestCacheKeySeparatesCredentials(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c, _, server := setup(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, r.Header.Get("Authorization"))
	})

	_, a := get(t, c, server.URL, "Bearer a")
	_, b := get(t, c, server.URL, "Bearer b")

	assert.Equal(t, "Bearer a", a)
	assert.Equal(t, "Bearer b", b)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCacheSkipsErrorResponses(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c, mr, server := setup(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	first, _ := get(t, c, server.URL, "")
	second, _ := get(t, c, server.URL, "")

	assert.Equal(t, http.StatusServiceUnavailable, first.StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, second.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
	assert.Empty(t, mr.Keys())
}

func TestCachePassesOversizedBodiesThrough(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("a", maxCachedBody) + "tail"
	var hits atomic.Int32
	c, mr, server := setup(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, payload)
	})

	first, body := get(t, c, server.URL+"/large", "")
	assert.Len(t, body, len(payload))
	assert.True(t, strings.HasSuffix(body, "tail"))
	assert.Empty(t, first.Header.Get(HeaderCache))
	assert.Empty(t, mr.Keys())

	_, body = get(t, c, server.URL+"/large", "")
	assert.Len(t, body, len(payload))
	assert.Equal(t, int32(2), hits.Load())
}

func TestCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	c, mr, server := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "live")
	})
	mr.Close()

	_, body := get(t, c, server.URL, "")
	assert.Equal(t, "live", body)
}

func TestNewClientRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), Config{})
	require.ErrorIs(t, err, ErrEmptyAddress)

	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Address: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
