package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/communitysignals/scout/internal/content"
)

// lowInfoPatterns match throwaway acknowledgements that carry no signal.
var lowInfoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*same[.!]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(lo+l|lmao|haha+)[.!]*\s*$`),
	regexp.MustCompile(`^\s*\+1\s*$`),
	regexp.MustCompile(`(?i)^\s*this[.!]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(thanks|thank you|thx|ty)[.!]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(nice|cool|great|awesome|wow)[.!]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(bump|following|subscribed?)[.!]*\s*$`),
}

// QualityFilter rejects low-information content. Replies carry a stricter
// minimum length than primary posts.
type QualityFilter struct {
	MinPrimaryLength int
	MinReplyLength   int
}

// NewQualityFilter applies defaults for unset thresholds.
func NewQualityFilter(minPrimary, minReply int) QualityFilter {
	if minPrimary <= 0 {
		minPrimary = 40
	}
	if minReply <= 0 {
		minReply = 80
	}
	return QualityFilter{MinPrimaryLength: minPrimary, MinReplyLength: minReply}
}

// Keep reports whether an item passes the filter.
func (f QualityFilter) Keep(it content.Item) bool {
	text := strings.TrimSpace(it.Text)
	if text == "" {
		return false
	}
	min := f.MinPrimaryLength
	if it.IsReply {
		min = f.MinReplyLength
	}
	if len([]rune(text)) < min {
		return false
	}
	for _, p := range lowInfoPatterns {
		if p.MatchString(text) {
			return false
		}
	}
	if isEmojiOnly(text) {
		return false
	}
	return true
}

// Apply filters a slice in place, preserving order.
func (f QualityFilter) Apply(items []content.Item) []content.Item {
	out := items[:0]
	for _, it := range items {
		if f.Keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func isEmojiOnly(s string) bool {
	sawSymbol := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		sawSymbol = true
	}
	return sawSymbol
}
