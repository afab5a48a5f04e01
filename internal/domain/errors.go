package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed marks any HTTP-layer failure scoped to one request.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrAuthorMismatch marks a link-bearing post whose author is not the timeline owner.
	ErrAuthorMismatch = errors.New("author mismatch")
	// ErrResolutionDegraded marks article metadata replaced by fallback text.
	ErrResolutionDegraded = errors.New("resolution degraded")
	// ErrPersistenceFailed marks a snapshot that could not be written.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrMissingCredentials is returned by config validation when an API token is absent.
	ErrMissingCredentials = errors.New("missing credentials")
)

// FetchError describes a failed upstream request.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetchFailed) match every FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// AuthorMismatchError reports a post whose declared author differs from the timeline owner.
type AuthorMismatchError struct {
	PostID         string
	DeclaredAuthor string
	OwnerID        string
}

func (e *AuthorMismatchError) Error() string {
	return fmt.Sprintf("post %s author %s does not match timeline owner %s", e.PostID, e.DeclaredAuthor, e.OwnerID)
}

// Is lets errors.Is(err, ErrAuthorMismatch) match every AuthorMismatchError.
func (e *AuthorMismatchError) Is(target error) bool { return target == ErrAuthorMismatch }
