// Package crawler reads syndication feeds and extracts readable article text.
package crawler

import "errors"

var (
	// ErrFeedUnavailable means the feed could not be fetched or parsed. Fatal for a run.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrFetchFailed means an article page could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrEmptyContent means the page yielded no usable body text.
	ErrEmptyContent = errors.New("empty content")
)
