package narration

import (
	"errors"
	"strings"
	"testing"
	"time"

	"feed-narrator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

func ok(title, summary string) models.ExtractResult {
	return models.Succeeded(models.ArticleCandidate{Title: title}, summary)
}

func failed(title string) models.ExtractResult {
	return models.Failed(models.ArticleCandidate{Title: title}, models.StageFetch, errors.New("404"))
}

func TestComposeOrderAndNumbering(t *testing.T) {
	script := Compose("Example", day, []models.ExtractResult{
		ok("A", "Alpha extract."),
		failed("B"),
		ok("C", "Gamma extract."),
	})

	require.Len(t, script.BodySections, 2)
	assert.Equal(t, "A", script.BodySections[0].Candidate.Title)
	assert.Equal(t, "C", script.BodySections[1].Candidate.Title)

	want := strings.Join([]string{
		"Welcome to Example comprehensive extracts. Here are 2 recent articles from Example, generated on 2024-05-01.",
		"Article 1: A. Alpha extract.",
		"Moving on. Article 2: C. Gamma extract.",
		"That concludes today's Example extracts. Thanks for listening.",
	}, "\n\n")
	assert.Equal(t, want, script.FullText)
	assert.NotContains(t, script.FullText, "B.")
	assert.Equal(t, len(strings.Fields(want)), script.WordCount)
}

func TestComposeIsDeterministic(t *testing.T) {
	results := []models.ExtractResult{ok("A", "one"), ok("B", "two")}

	first := Compose("Site", day, results)
	second := Compose("Site", day, results)
	assert.Equal(t, first, second)
	assert.Equal(t, first.FullText, first.Render())
}

func TestComposeEmpty(t *testing.T) {
	script := Compose("Site", day, nil)
	assert.Empty(t, script.BodySections)
	assert.Equal(t, Intro("Site", day, 0)+"\n\n"+Outro("Site"), script.FullText)
	assert.Positive(t, script.WordCount)

	onlyFailures := Compose("Site", day, []models.ExtractResult{failed("x")})
	assert.Equal(t, script.FullText, onlyFailures.FullText)
}

func TestIntroVariants(t *testing.T) {
	assert.Contains(t, Intro("S", day, 1), "Here is 1 recent article from S")
	assert.Contains(t, Intro("S", day, 3), "Here are 3 recent articles from S")
	assert.Equal(t, "Welcome to S comprehensive extracts, generated on "+day.Format(DateLayout)+". No recent articles could be summarized.", Intro("S", day, 0))
}

func TestSectionTitleTrailingPeriod(t *testing.T) {
	script := Compose("S", day, []models.ExtractResult{ok("Ends with dot.", "Body.")})
	assert.Contains(t, script.FullText, "Article 1: Ends with dot. Body.")
}
