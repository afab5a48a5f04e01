package domain

import "time"

// Influencer is a ranked account returned for a topic; it only drives timeline fan-out.
type Influencer struct {
	AccountID string
	Score     float64
}

// InfluencerPage is one page of the ranked influencer listing.
type InfluencerPage struct {
	Page        int
	Total       int
	Influencers []Influencer
}

// PageCount returns ceil(total/size); it is never negative.
func PageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// PostMetrics carries the public engagement counters of a post and its author.
type PostMetrics struct {
	Retweets  int `json:"retweets"`
	Quotes    int `json:"quotes"`
	Likes     int `json:"likes"`
	Replies   int `json:"replies"`
	Followers int `json:"followers"`
}

// PostRef points at a post referenced by another one (quote, reply, retweet).
type PostRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Post is an immutable timeline entry.
type Post struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"author_id"`
	Text       string      `json:"text,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Links      []string    `json:"links"`
	Metrics    PostMetrics `json:"metrics"`
	References []PostRef   `json:"references,omitempty"`
}

// CandidateLink is the outbound URL a post contributes to the article database.
type CandidateLink struct {
	URL    string
	PostID string
}

// ArticleMetadata is the outcome of resolving a URL.
type ArticleMetadata struct {
	Title       string
	Description string
	Domain      string
	// Degraded reports that at least one field fell back to synthesized text.
	Degraded bool
}

// Article is one distinct linked URL and every post that shared it.
type Article struct {
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Posts       []Post `json:"posts"`
}

// NewArticle builds an article from resolved metadata and its triggering post.
func NewArticle(url string, meta ArticleMetadata, first Post) Article {
	return Article{
		URL:         url,
		Domain:      meta.Domain,
		Title:       meta.Title,
		Description: meta.Description,
		Posts:       []Post{first},
	}
}

// Clone returns a copy whose post slice does not alias the receiver's.
func (a Article) Clone() Article {
	out := a
	out.Posts = make([]Post, len(a.Posts))
	copy(out.Posts, a.Posts)
	return out
}
