// Package links selects the outbound article link a post contributes.
package links

import (
	"net/url"
	"strings"

	"ArticlesDB/internal/domain"
)

// Extractor filters post links against the hosts of the source social network.
type Extractor struct {
	networkDomains []string
}

// NewExtractor normalizes the network domain list.
func NewExtractor(networkDomains []string) *Extractor {
	domains := make([]string, 0, len(networkDomains))
	for _, d := range networkDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			domains = append(domains, d)
		}
	}
	return &Extractor{networkDomains: domains}
}

// Extract returns the first link of post whose host is outside the social network.
// A post carrying such a link must have been authored by ownerID; otherwise an
// AuthorMismatchError is returned and no link is produced.
func (e *Extractor) Extract(post domain.Post, ownerID string) (domain.CandidateLink, bool, error) {
	for _, raw := range post.Links {
		if !e.IsArticleURL(raw) {
			continue
		}
		if post.AuthorID != ownerID {
			return domain.CandidateLink{}, false, &domain.AuthorMismatchError{
				PostID:         post.ID,
				DeclaredAuthor: post.AuthorID,
				OwnerID:        ownerID,
			}
		}
		return domain.CandidateLink{URL: raw, PostID: post.ID}, true, nil
	}
	return domain.CandidateLink{}, false, nil
}

// IsArticleURL reports whether raw is an absolute http(s) URL pointing off-network.
func (e *Extractor) IsArticleURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return !e.isNetworkHost(u.Hostname())
}

func (e *Extractor) isNetworkHost(host string) bool {
	host = strings.ToLower(host)
	for _, d := range e.networkDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
