package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/ports"
)

// DefaultPageSize is the fixed page size of the influencer listing.
const DefaultPageSize = 50

// Source lists the ranked influencers of a topic cluster.
type Source struct {
	fetcher  ports.Fetcher
	baseURL  string
	token    string
	pageSize int
	logger   *slog.Logger
}

var _ ports.InfluencerSource = (*Source)(nil)

// NewSource wires a fetcher; pageSize defaults to 50.
func NewSource(fetcher ports.Fetcher, baseURL, token string, pageSize int, logger *slog.Logger) *Source {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		fetcher:  fetcher,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		pageSize: pageSize,
		logger:   logger,
	}
}

// PageSize reports the number of influencers per page.
func (s *Source) PageSize() int {
	return s.pageSize
}

// FetchPage requests one zero-based page, sorted by score, highest first.
func (s *Source) FetchPage(ctx context.Context, topic string, page int) (domain.InfluencerPage, error) {
	pageURL, err := buildPageURL(s.baseURL, topic, page, s.pageSize)
	if err != nil {
		return domain.InfluencerPage{}, err
	}

	s.logger.Debug("fetch influencers", "topic", topic, "page", page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.InfluencerPage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.fetcher.Do(req)
	if err != nil {
		return domain.InfluencerPage{}, &domain.FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.InfluencerPage{}, &domain.FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.InfluencerPage{}, &domain.FetchError{
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode influencers: %w", err),
		}
	}

	influencers := make([]domain.Influencer, 0, len(payload.Influencers))
	for _, item := range payload.Influencers {
		id := item.accountID()
		if id == "" {
			continue
		}
		influencers = append(influencers, domain.Influencer{AccountID: id, Score: item.Score})
	}
	sort.SliceStable(influencers, func(i, j int) bool {
		return influencers[i].Score > influencers[j].Score
	})

	return domain.InfluencerPage{
		Page:        page,
		Total:       int(payload.Total),
		Influencers: influencers,
	}, nil
}

// ClusterName case-folds a topic to the cluster path convention ("tesla" -> "Tesla").
func ClusterName(topic string) string {
	return cases.Title(language.English).String(strings.TrimSpace(topic))
}

func buildPageURL(base, topic string, page, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid influencer api url %s: %w", base, err)
	}

	parsed = parsed.JoinPath("influence", "clusters", ClusterName(topic), "influencers")

	query := parsed.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	query.Set("sort_by", "score")
	query.Set("sort_direction", "desc")
	query.Set("influence_type", "all")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type listResponse struct {
	Total       flexInt          `json:"total"`
	Influencers []influencerItem `json:"influencers"`
}

type influencerItem struct {
	Score           float64 `json:"score"`
	SocialAccountID string  `json:"social_account_id"`
	SocialAccount   *struct {
		SocialAccount *struct {
			ID string `json:"id"`
		} `json:"social_account"`
	} `json:"social_account"`
}

func (i influencerItem) accountID() string {
	if i.SocialAccount != nil && i.SocialAccount.SocialAccount != nil && i.SocialAccount.SocialAccount.ID != "" {
		return i.SocialAccount.SocialAccount.ID
	}
	return i.SocialAccountID
}

// maxTotal caps the influencer count a listing may report.
const maxTotal = 10_000_000

// flexInt accepts a JSON number or a numeric string holding a whole, non-negative count.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("total %q is not a number: %w", data, err)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || n != math.Trunc(n) || n > maxTotal {
		return fmt.Errorf("total %q is not a valid count", data)
	}
	*f = flexInt(n)
	return nil
}
