package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/ports"
)

const (
	// DefaultMaxPages caps the cursor loop: 32 pages of 100 is the API's 3200-post ceiling.
	DefaultMaxPages = 32
	// DefaultPageSize is the largest page the timeline endpoint serves.
	DefaultPageSize = 100

	tweetFields = "created_at,entities,author_id,public_metrics,referenced_tweets"
	expansions  = "author_id,referenced_tweets.id,referenced_tweets.id.author_id"
	userFields  = "public_metrics"
)

// PageObserver is notified of every page outcome: "ok", "envelope" or "failed".
type PageObserver func(status string)

// TimelineSource walks an account's timeline across continuation tokens.
type TimelineSource struct {
	fetcher  ports.Fetcher
	baseURL  string
	token    string
	pageSize int
	maxPages int
	logger   *slog.Logger
	observe  PageObserver
}

var _ ports.TimelineSource = (*TimelineSource)(nil)

// Options configures a TimelineSource.
type Options struct {
	BaseURL  string
	Token    string
	PageSize int
	MaxPages int
	Observer PageObserver
}

// NewTimelineSource applies defaults for page size and page cap.
func NewTimelineSource(fetcher ports.Fetcher, opts Options, logger *slog.Logger) *TimelineSource {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = func(string) {}
	}
	return &TimelineSource{
		fetcher:  fetcher,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		token:    opts.Token,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		logger:   logger,
		observe:  opts.Observer,
	}
}

// FetchTimeline follows next tokens until they run out or maxPages pages were fetched.
// Pages are fetched strictly in cursor order. If a page fails, the posts gathered so
// far are returned together with the error.
func (s *TimelineSource) FetchTimeline(ctx context.Context, accountID string) ([]domain.Post, error) {
	var (
		posts  []domain.Post
		cursor string
	)

	for page := 0; page < s.maxPages; page++ {
		s.logger.Debug("fetch timeline page", "account", accountID, "page", page)

		body, err := s.fetchPage(ctx, accountID, cursor)
		if err != nil {
			s.observe("failed")
			return posts, err
		}

		if body.isErrorEnvelope() {
			s.observe("envelope")
			s.logger.Error("timeline api error",
				"account", accountID,
				"page", page,
				"title", body.Title,
				"detail", body.Detail,
				"type", body.Type,
			)
		} else {
			s.observe("ok")
			posts = append(posts, body.toPosts()...)
		}

		cursor = ""
		if body.Meta != nil {
			cursor = body.Meta.NextToken
		}
		if cursor == "" {
			break
		}
	}

	return posts, nil
}

func (s *TimelineSource) fetchPage(ctx context.Context, accountID, cursor string) (timelineResponse, error) {
	pageURL, err := buildTimelineURL(s.baseURL, accountID, cursor, s.pageSize)
	if err != nil {
		return timelineResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return timelineResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.fetcher.Do(req)
	if err != nil {
		return timelineResponse{}, &domain.FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return timelineResponse{}, &domain.FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	var body timelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return timelineResponse{}, &domain.FetchError{
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode timeline: %w", err),
		}
	}
	return body, nil
}

func buildTimelineURL(base, accountID, cursor string, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid timeline api url %s: %w", base, err)
	}

	parsed = parsed.JoinPath("2", "users", accountID, "tweets")

	query := parsed.Query()
	query.Set("tweet.fields", tweetFields)
	query.Set("expansions", expansions)
	query.Set("user.fields", userFields)
	query.Set("max_results", strconv.Itoa(pageSize))
	if cursor != "" {
		query.Set("pagination_token", cursor)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type timelineResponse struct {
	Data     []rawTweet `json:"data"`
	Includes *struct {
		Users []rawUser `json:"users"`
	} `json:"includes"`
	Meta *struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`

	Errors json.RawMessage `json:"errors"`
	Title  string          `json:"title"`
	Detail string          `json:"detail"`
	Type   string          `json:"type"`
}

// isErrorEnvelope matches the API's problem payload served with a 200 status.
func (r timelineResponse) isErrorEnvelope() bool {
	return len(r.Errors) > 0 && string(r.Errors) != "null" && r.Title != "" && r.Detail != "" && r.Type != ""
}

type rawTweet struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Entities  *struct {
		URLs []struct {
			URL         string `json:"url"`
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		LikeCount    int `json:"like_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type rawUser struct {
	ID            string `json:"id"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

func (r timelineResponse) toPosts() []domain.Post {
	followers := map[string]int{}
	if r.Includes != nil {
		for _, u := range r.Includes.Users {
			followers[u.ID] = u.PublicMetrics.FollowersCount
		}
	}

	posts := make([]domain.Post, 0, len(r.Data))
	for _, t := range r.Data {
		posts = append(posts, t.toPost(followers[t.AuthorID]))
	}
	return posts
}

func (t rawTweet) toPost(followers int) domain.Post {
	post := domain.Post{
		ID:       t.ID,
		AuthorID: t.AuthorID,
		Text:     t.Text,
		Links:    []string{},
		Metrics: domain.PostMetrics{
			Retweets:  t.PublicMetrics.RetweetCount,
			Quotes:    t.PublicMetrics.QuoteCount,
			Likes:     t.PublicMetrics.LikeCount,
			Replies:   t.PublicMetrics.ReplyCount,
			Followers: followers,
		},
	}

	if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		post.CreatedAt = ts.UTC()
	}

	if t.Entities != nil {
		for _, u := range t.Entities.URLs {
			if expanded := strings.TrimSpace(u.ExpandedURL); expanded != "" {
				post.Links = append(post.Links, expanded)
			}
		}
	}

	for _, ref := range t.ReferencedTweets {
		post.References = append(post.References, domain.PostRef{Type: ref.Type, ID: ref.ID})
	}
	return post
}
