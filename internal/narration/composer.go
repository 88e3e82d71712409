// Package narration assembles per-article extracts into a single narration script.
package narration

import (
	"fmt"
	"time"

	"feed-narrator/internal/models"
)

// DateLayout is the date format spoken in the intro and used in file names.
const DateLayout = "2006-01-02"

// Compose builds the script for siteName on date from the successful results, in order.
// Failed results are left out. Section numbers count successful sections only.
func Compose(siteName string, date time.Time, results []models.ExtractResult) models.NarrationScript {
	sections := make([]models.ExtractResult, 0, len(results))
	for _, res := range results {
		if res.Succeeded {
			sections = append(sections, res)
		}
	}

	script := models.NarrationScript{
		SiteName:     siteName,
		Date:         date,
		Intro:        Intro(siteName, date, len(sections)),
		BodySections: sections,
		Outro:        Outro(siteName),
	}
	script.FullText = script.Render()
	script.WordCount = models.CountWords(script.FullText)
	return script
}

// Intro is the opening paragraph.
func Intro(siteName string, date time.Time, count int) string {
	day := date.Format(DateLayout)
	switch count {
	case 0:
		return fmt.Sprintf("Welcome to %s comprehensive extracts, generated on %s. No recent articles could be summarized.", siteName, day)
	case 1:
		return fmt.Sprintf("Welcome to %s comprehensive extracts. Here is 1 recent article from %s, generated on %s.", siteName, siteName, day)
	default:
		return fmt.Sprintf("Welcome to %s comprehensive extracts. Here are %d recent articles from %s, generated on %s.", siteName, count, siteName, day)
	}
}

// Outro is the closing paragraph.
func Outro(siteName string) string {
	return fmt.Sprintf("That concludes today's %s extracts. Thanks for listening.", siteName)
}
