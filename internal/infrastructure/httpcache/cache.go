// Package httpcache decorates a Fetcher with a redis-backed response cache so that
// re-running a topic does not re-download pages already seen.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"ArticlesDB/internal/ports"
)

const (
	keyPrefix = "articlesdb:http:"
	// HeaderCache is set to HIT on responses served from redis.
	HeaderCache = "X-Cache"

	connectionTimeout = 5 * time.Second
	maxCachedBody     = 8 << 20
)

// Config holds redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// ErrEmptyAddress is returned when no redis address is configured.
var ErrEmptyAddress = errors.New("redis address is required")

// NewClient opens and pings a redis client.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

type cachedResponse struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// Cache serves successful GET responses from redis and stores new ones.
type Cache struct {
	next   ports.Fetcher
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.Fetcher = (*Cache)(nil)

// New wraps next. Redis failures never fail a request; they fall through to next.
func New(next ports.Fetcher, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{next: next, redis: client, ttl: ttl, logger: logger}
}

// Do implements ports.Fetcher.
func (c *Cache) Do(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return c.next.Do(req)
	}

	ctx := req.Context()
	key := cacheKey(req)

	if resp, ok := c.lookup(ctx, key, req); ok {
		return resp, nil
	}

	resp, err := c.next.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody+1))
	if err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Oversized bodies are not cached; the caller still reads them in full.
	if len(body) > maxCachedBody {
		resp.Body = &prefixedBody{
			Reader: io.MultiReader(bytes.NewReader(body), resp.Body),
			closer: resp.Body,
		}
		return resp, nil
	}

	if err := resp.Body.Close(); err != nil {
		return nil, fmt.Errorf("close response body: %w", err)
	}
	c.store(ctx, key, cachedResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body})

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// prefixedBody replays an already-read prefix before the rest of the original body.
type prefixedBody struct {
	io.Reader
	closer io.Closer
}

func (b *prefixedBody) Close() error { return b.closer.Close() }

func (c *Cache) lookup(ctx context.Context, key string, req *http.Request) (*http.Response, bool) {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache lookup failed", "url", req.URL.String(), "error", err)
		}
		return nil, false
	}

	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.Warn("cache entry corrupt", "url", req.URL.String(), "error", err)
		return nil, false
	}

	header := cached.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderCache, "HIT")

	c.logger.Debug("cache hit", "url", req.URL.String())
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", cached.StatusCode, http.StatusText(cached.StatusCode)),
		StatusCode:    cached.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(cached.Body)),
		ContentLength: int64(len(cached.Body)),
		Request:       req,
	}, true
}

func (c *Cache) store(ctx context.Context, key string, entry cachedResponse) {
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache encode failed", "error", err)
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache store failed", "error", err)
	}
}

// cacheKey covers method, URL and credentials so responses never leak across tokens.
func cacheKey(req *http.Request) string {
	h := sha256.New()
	_, _ = io.WriteString(h, req.Method)
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, req.URL.String())
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, req.Header.Get("Authorization"))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
