package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"feed-narrator/internal/models"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"
)

// noiseSelector lists elements removed before any text is read.
const noiseSelector = "script, style, noscript, nav, header, footer, aside, iframe"

// blockSelector lists the text-bearing elements read inside a content region.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre"

// maxFallbackSentences caps the body fallback.
const maxFallbackSentences = 50

var boilerplateMarkers = []string{
	"subscribe",
	"newsletter",
	"follow us",
	"share this",
	"copyright",
	"privacy policy",
}

// ExtractorOptions configures an ArticleExtractor.
type ExtractorOptions struct {
	Timeout         time.Duration
	UserAgent       string
	MinContentChars int
}

// ArticleExtractor fetches article pages and reduces them to plain body text.
type ArticleExtractor struct {
	client    *http.Client
	userAgent string
	minChars  int
	log       logrus.FieldLogger
}

// NewArticleExtractor creates an ArticleExtractor.
func NewArticleExtractor(opts ExtractorOptions, log logrus.FieldLogger) *ArticleExtractor {
	return &ArticleExtractor{
		client:    newHTTPClient(opts.Timeout),
		userAgent: opts.UserAgent,
		minChars:  opts.MinContentChars,
		log:       log,
	}
}

// Extract fetches the candidate's page and returns its body text.
// With a selector only the first matching element is read. Without one
// the readable region is detected and the page body is the fallback.
func (e *ArticleExtractor) Extract(ctx context.Context, candidate models.ArticleCandidate, selector string) (*models.ArticleContent, error) {
	if candidate.Link == "" {
		return nil, fmt.Errorf("%w: entry %q has no link", ErrFetchFailed, candidate.Title)
	}

	pageURL, err := url.Parse(candidate.Link)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, candidate.Link, err)
	}

	e.log.WithField("url", candidate.Link).Debug("fetching article")

	body, err := get(ctx, e.client, candidate.Link, e.userAgent, acceptHTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, candidate.Link, err)
	}

	rawHTML := string(body)
	text, err := e.ExtractText(rawHTML, pageURL, selector)
	if err != nil {
		return nil, err
	}

	return &models.ArticleContent{
		Candidate: candidate,
		RawHTML:   rawHTML,
		BodyText:  text,
	}, nil
}

// ExtractText reduces an HTML document to normalized body text.
// pageURL may be nil.
func (e *ArticleExtractor) ExtractText(rawHTML string, pageURL *url.URL, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("%w: parse HTML: %w", ErrEmptyContent, err)
	}
	doc.Find(noiseSelector).Remove()

	var text string
	if selector != "" {
		region := doc.Find(selector).First()
		if region.Length() == 0 {
			return "", fmt.Errorf("%w: selector %q matched nothing", ErrEmptyContent, selector)
		}
		text = regionText(region)
	} else {
		text = e.detectText(pageURL, doc)
	}

	text = normalizeWhitespace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text found", ErrEmptyContent)
	}
	if n := utf8.RuneCountInString(text); n < e.minChars {
		return "", fmt.Errorf("%w: %d characters, need %d", ErrEmptyContent, n, e.minChars)
	}
	return text, nil
}

// detectText tries readability, then <article>, then filtered body paragraphs.
// The first candidate long enough wins, otherwise the longest one.
func (e *ArticleExtractor) detectText(pageURL *url.URL, doc *goquery.Document) string {
	var candidates []string

	cleaned, err := doc.Html()
	if err == nil {
		var article readability.Article
		article, err = readability.FromReader(strings.NewReader(cleaned), pageURL)
		if err == nil {
			candidates = append(candidates, normalizeWhitespace(article.TextContent))
		}
	}
	if err != nil {
		e.log.WithError(err).Debug("readability failed")
	}

	if region := doc.Find("article").First(); region.Length() > 0 {
		candidates = append(candidates, normalizeWhitespace(regionText(region)))
	}

	body := doc.Find("body")
	candidates = append(candidates, filterBoilerplate(paragraphText(body)))

	best := ""
	for _, c := range candidates {
		if c != "" && utf8.RuneCountInString(c) >= e.minChars {
			return c
		}
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

// regionText joins the block elements inside region, or its whole text when it has none.
func regionText(region *goquery.Selection) string {
	var parts []string
	region.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// list items wrapping paragraphs are read through the paragraphs
		if s.Is("li") && s.Find("p").Length() > 0 {
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return region.Text()
	}
	return strings.Join(parts, "\n")
}

func paragraphText(body *goquery.Selection) string {
	var parts []string
	body.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return body.Text()
	}
	return strings.Join(parts, " ")
}

// filterBoilerplate drops short sentences and sentences with common site chrome.
func filterBoilerplate(text string) string {
	var kept []string
	for _, sentence := range strings.Split(normalizeWhitespace(text), ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) <= 20 || isBoilerplate(sentence) {
			continue
		}
		kept = append(kept, sentence)
		if len(kept) == maxFallbackSentences {
			break
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, ". ") + "."
}

func isBoilerplate(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, marker := range boilerplateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
