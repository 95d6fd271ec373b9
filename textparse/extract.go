package textparse

import (
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// locationPatterns is the ordered extraction cascade. The first pattern
// with a surviving match wins; later patterns are only tried when earlier
// ones fail or are rejected by the stoplist.
var locationPatterns = []*regexp.Regexp{
	// "in City" or "in City, ST"
	regexp.MustCompile(`(?i)\bin\s+([A-Z][a-zA-Z\s]+(?:,\s*[A-Z]{2})?)\b`),
	// "at Address" or "at Place Name"
	regexp.MustCompile(`(?i)\bat\s+([A-Z][a-zA-Z0-9\s,.'-]+(?:,\s*[A-Z]{2})?)\b`),
	// "City, ST"
	regexp.MustCompile(`\b([A-Z][a-zA-Z\s]+),\s*([A-Z]{2})\b`),
	// "Place Name, City"
	regexp.MustCompile(`\b([A-Z][a-zA-Z\s'-]+),\s*([A-Z][a-zA-Z\s]+)\b`),
	// street addresses: "123 Main St" or "123 Main Street, City"
	regexp.MustCompile(`(?i)\b(\d+\s+[A-Z][a-zA-Z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Way|Court|Ct|Plaza|Place|Pl)(?:,\s*[A-Z][a-zA-Z\s]+)?)\b`),
}

// stoplist rejects matches whose leading token is a bare determiner
// ("in the park" is not a place name). A rejected match continues the
// cascade rather than aborting it.
var stoplist = map[string]bool{
	"the": true, "a": true, "an": true,
	"this": true, "that": true, "these": true, "those": true,
}

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// ExtractLocation pulls a location string out of free text, or returns
// "" when no pattern matches. Whitespace in the result is collapsed.
func ExtractLocation(text string) string {
	for _, pattern := range locationPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		location := strings.TrimSpace(m[1])
		if len(m) > 2 && m[2] != "" {
			location = strings.TrimSpace(m[1]) + ", " + strings.TrimSpace(m[2])
		}
		location = strings.Join(strings.Fields(location), " ")
		first, _, _ := strings.Cut(location, " ")
		if stoplist[strings.ToLower(first)] {
			continue
		}
		return location
	}
	return ""
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ExtractDate parses the first natural-language date expression in text,
// anchored to ref for relative forms ("tomorrow", "next friday").
// ok is false when no date is recognized.
func ExtractDate(text string, ref time.Time) (time.Time, bool) {
	r, err := dateParser.Parse(text, ref)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	return r.Time, true
}

// ExtractDates parses every recognizable date expression in text, in
// order of appearance.
func ExtractDates(text string, ref time.Time) []time.Time {
	var out []time.Time
	rest := text
	for {
		r, err := dateParser.Parse(rest, ref)
		if err != nil || r == nil {
			return out
		}
		out = append(out, r.Time)
		next := r.Index + len(r.Text)
		if next >= len(rest) {
			return out
		}
		rest = rest[next:]
	}
}

// ExtractHashtags returns the distinct hashtag bodies (without '#') in
// first-appearance order.
func ExtractHashtags(text string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		tags = append(tags, m[1])
	}
	return tags
}

var sentencePattern = regexp.MustCompile(`^[^.!?]+[.!?]`)

// FirstSentence returns the first sentence of text, or a 100-rune prefix
// when no sentence boundary is found. Used to derive titles from posts.
func FirstSentence(text string) string {
	if m := sentencePattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	runes := []rune(text)
	if len(runes) > 100 {
		return string(runes[:100])
	}
	return text
}
