package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"feed-narrator/internal/models"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

const untitled = "No title"

// FeedReader fetches a syndication feed and returns its newest entries as candidates.
type FeedReader struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	log       logrus.FieldLogger
}

// NewFeedReader creates a FeedReader whose single request is bounded by timeout.
func NewFeedReader(timeout time.Duration, userAgent string, log logrus.FieldLogger) *FeedReader {
	return &FeedReader{
		client:    newHTTPClient(timeout),
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
		log:       log,
	}
}

// Read returns at most maxArticles entries in feed order. maxArticles <= 0 means no cap.
func (r *FeedReader) Read(ctx context.Context, feedURL string, maxArticles int) ([]models.ArticleCandidate, error) {
	r.log.WithField("url", feedURL).Info("fetching feed")

	body, err := get(ctx, r.client, feedURL, r.userAgent, acceptFeed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, feedURL, err)
	}

	feed, err := r.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: parse: %w", ErrFeedUnavailable, feedURL, err)
	}

	r.log.WithFields(logrus.Fields{
		"url":   feedURL,
		"items": len(feed.Items),
	}).Info("feed parsed")

	limit := maxArticles
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	candidates := make([]models.ArticleCandidate, 0, limit)
	for _, item := range feed.Items[:limit] {
		candidates = append(candidates, toCandidate(item))
	}
	return candidates, nil
}

func toCandidate(item *gofeed.Item) models.ArticleCandidate {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = untitled
	}

	candidate := models.ArticleCandidate{
		Title: title,
		Link:  strings.TrimSpace(item.Link),
	}
	if item.PublishedParsed != nil {
		published := *item.PublishedParsed
		candidate.PublishedAt = &published
	} else if item.UpdatedParsed != nil {
		updated := *item.UpdatedParsed
		candidate.PublishedAt = &updated
	}
	return candidate
}
