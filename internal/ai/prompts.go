package ai

import (
	"fmt"
	"strings"
)

// MaxExtractSentences bounds the length of each narrated extract.
const MaxExtractSentences = 30

const extractPromptTemplate = `Create a comprehensive and detailed extract of this article in English. This extract will be read aloud, so make it engaging and complete.

Title: %s

Content: %s

Instructions:
- Create a detailed extract of %d sentences maximum
- Include all key points, important details, and context
- Maintain the technical depth and nuance of the original
- Use clear, professional English suitable for audio narration
- Structure it as a flowing narrative that's pleasant to listen to
- Include specific examples, data points, or quotes if mentioned
- Don't mention that this is an extract, summary or a text made for audio
- Make it comprehensive enough to understand the full article content

Extract:`

// BuildExtractPrompt renders the extract prompt for one article.
// body is truncated to maxChars runes when maxChars > 0.
func BuildExtractPrompt(title, body string, maxChars int) string {
	return fmt.Sprintf(extractPromptTemplate, strings.TrimSpace(title), truncate(body, maxChars), MaxExtractSentences)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
