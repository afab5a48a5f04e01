// Package httpclient is the default network Fetcher: one shared *http.Client with a
// request rate limit and a bound on simultaneously open responses.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ArticlesDB/internal/ports"
)

// Options configures Client. Zero values disable the corresponding limit.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxConcurrent     int
}

// Client throttles outbound requests.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	slots     chan struct{}
	userAgent string
}

var _ ports.Fetcher = (*Client)(nil)

// New builds a Client; a nil base uses a fresh http.Client with opts.Timeout.
func New(base *http.Client, opts Options) *Client {
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{http: base, userAgent: opts.UserAgent}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if opts.MaxConcurrent > 0 {
		c.slots = make(chan struct{}, opts.MaxConcurrent)
	}
	return c
}

// Do waits for a rate token and a free slot, then performs req. The slot is held
// until the response body is closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if c.slots != nil {
		select {
		case c.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.release()
		return nil, err
	}

	if c.slots != nil {
		resp.Body = &releasingBody{ReadCloser: resp.Body, release: c.release}
	}
	return resp, nil
}

func (c *Client) release() {
	if c.slots != nil {
		<-c.slots
	}
}

// InFlight reports the number of responses currently holding a slot.
func (c *Client) InFlight() int {
	return len(c.slots)
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
