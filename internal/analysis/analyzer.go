// Package analysis computes document statistics from decoded text.
package analysis

import (
	"regexp"
	"strings"

	"github.com/storyforge/storyforge-backend/internal/filetype"
)

// Stats holds the counts persisted onto a project record after processing.
type Stats struct {
	WordCount      int `json:"wordCount"`
	ParagraphCount int `json:"paragraphCount"`
	SentenceCount  int `json:"sentenceCount"`
	ChapterCount   int `json:"chapterCount"`
	CharacterCount int `json:"characterCount"`
}

var (
	// Sentence terminators cover ASCII and CJK full-width punctuation.
	sentenceSplit = regexp.MustCompile(`[.!?。！？]+`)
	// ATX headings: one to six # followed by whitespace and text.
	atxHeading = regexp.MustCompile(`(?m)^#{1,6}[ \t]+\S.*$`)
)

// Analyze computes word, paragraph, sentence and chapter counts for the given
// text. Chapter counting is only meaningful for Markdown; other kinds report
// zero. Empty input yields all-zero stats; Analyze never fails.
func Analyze(text string, kind filetype.Kind) Stats {
	if text == "" {
		return Stats{}
	}

	stats := Stats{
		WordCount:      len(strings.Fields(text)),
		CharacterCount: len([]rune(text)),
	}

	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		// Markdown headings are chapters, not prose paragraphs.
		if kind == filetype.MD && isHeadingSegment(p) {
			continue
		}
		stats.ParagraphCount++
	}

	for _, s := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			stats.SentenceCount++
		}
	}

	if kind == filetype.MD {
		stats.ChapterCount = len(atxHeading.FindAllString(text, -1))
	}
	return stats
}

// isHeadingSegment reports whether every non-blank line in the segment is an
// ATX heading.
func isHeadingSegment(segment string) bool {
	any := false
	for _, line := range strings.Split(segment, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !atxHeading.MatchString(line) {
			return false
		}
		any = true
	}
	return any
}
