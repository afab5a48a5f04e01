package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlesDB/internal/config"
	"ArticlesDB/internal/infrastructure/snapshot"
	"ArticlesDB/internal/logging"
)

func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("/influence/clusters/Tesla/influencers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token hive-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"total":"2","influencers":[
			{"score":3,"social_account_id":"200"},
			{"score":9,"social_account":{"social_account":{"id":"100"}}}
		]}`)
	})

	timeline := func(id, author string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer twitter-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = fmt.Fprintf(w, `{"data":[{"id":%q,"author_id":%q,"text":"read this","created_at":"2022-01-01T00:00:00Z",
				"entities":{"urls":[{"url":"https://t.co/x","expanded_url":"https://twitter.com/i/web/status/1"},{"url":"https://t.co/y","expanded_url":%q}]},
				"public_metrics":{"retweet_count":1,"reply_count":2,"like_count":3,"quote_count":4}}],
				"includes":{"users":[{"id":%q,"public_metrics":{"followers_count":500}}]},
				"meta":{"result_count":1}}`, id, author, srv.URL+"/article", author)
		}
	}
	mux.HandleFunc("/2/users/100/tweets", timeline("1", "100"))
	mux.HandleFunc("/2/users/200/tweets", timeline("2", "200"))

	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><title>Launch</title><meta name="description" content="It flew"></head></html>`)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL, out string) config.Config {
	return config.Config{
		Topic:       "tesla",
		Logging:     config.LoggingConfig{Level: "error", Format: "text"},
		Influencers: config.InfluencerConfig{BaseURL: baseURL, Token: "hive-token", PageSize: 50, Concurrency: 2},
		Timeline:    config.TimelineConfig{BaseURL: baseURL, Token: "twitter-token", PageSize: 100, MaxPages: 4},
		Resolver:    config.ResolverConfig{Timeout: 2 * time.Second, MaxBodyBytes: 1 << 20},
		HTTP:        config.HTTPConfig{UserAgent: "ArticlesDB/test", Timeout: 5 * time.Second, MaxConcurrent: 8},
		Pipeline:    config.PipelineConfig{Workers: 4},
		Snapshot:    config.SnapshotConfig{Sinks: []string{"json"}, Path: out},
		Network:     config.NetworkConfig{Domains: []string{"twitter.com", "x.com", "t.co"}},
	}
}

func TestApplicationRunEndToEnd(t *testing.T) {
	t.Parallel()

	srv := fakeUpstream(t)
	out := filepath.Join(t.TempDir(), "articles.json")

	application, err := New(context.Background(), testConfig(srv.URL, out), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	summary, err := application.Run(context.Background(), "tesla")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Influencers)
	assert.Equal(t, 2, summary.Posts)
	assert.Equal(t, 1, summary.Articles)

	articles, err := snapshot.Read(out)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	article := articles[0]
	assert.Equal(t, srv.URL+"/article", article.URL)
	assert.Equal(t, "Launch", article.Title)
	assert.Equal(t, "It flew", article.Description)
	assert.Equal(t, "127.0.0.1", article.Domain)

	ids := []string{article.Posts[0].ID, article.Posts[1].ID}
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, 500, article.Posts[0].Metrics.Followers)
}

func TestNewRejectsUnknownSink(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1", filepath.Join(t.TempDir(), "a.json"))
	cfg.Snapshot.Sinks = []string{"s3"}

	_, err := New(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
}

func TestUnreachableCacheFallsBackToDirectFetch(t *testing.T) {
	t.Parallel()

	srv := fakeUpstream(t)
	cfg := testConfig(srv.URL, filepath.Join(t.TempDir(), "articles.json"))
	cfg.Cache.RedisAddr = "127.0.0.1:1"

	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	summary, err := application.Run(context.Background(), "tesla")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Articles)
}
