// Package textparse turns free text from source payloads into structured
// event hints: protest relevance, cause, location, dates, hashtags.
//
// Everything here is a pure function over its input. Cascades are ordered
// and first-match-wins; they never score or rank.
package textparse

import "strings"

// Cause categories. Classification checks them in this declaration order.
const (
	CauseClimate       = "climate"
	CauseReproductive  = "reproductive"
	CauseImmigration   = "immigration"
	CauseRacialJustice = "racial_justice"
	CauseLGBTQ         = "lgbtq"
	CauseLabor         = "labor"
	CausePolitical     = "political"
	CauseOther         = "other"
)

// protestKeywords mark text as describing a public gathering.
var protestKeywords = []string{
	"rally", "demonstration", "protest", "march", "vigil", "strike",
	"climate", "abortion", "immigration", "rights", "justice", "action",
	"solidarity", "occupy", "resist", "movement", "activist",
}

// causeRules maps each cause to its keyword set. Order matters: the
// first cause with any keyword hit wins, ties are never re-examined.
var causeRules = []struct {
	cause    string
	keywords []string
}{
	{CauseClimate, []string{"climate", "environment", "earth day", "green"}},
	{CauseReproductive, []string{"abortion", "reproductive", "planned parenthood", "roe"}},
	{CauseImmigration, []string{"immigration", "ice", "border", "refugee", "daca"}},
	{CauseRacialJustice, []string{"blm", "black lives", "racial", "police", "justice"}},
	{CauseLGBTQ, []string{"pride", "lgbtq", "gay", "trans", "gender"}},
	{CauseLabor, []string{"union", "worker", "strike", "labor", "wage"}},
	{CausePolitical, []string{"election", "vote", "democrat", "republican", "trump", "biden"}},
}

// IsProtestEvent reports whether the text appears to describe a protest,
// rally, or similar public gathering.
func IsProtestEvent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range protestKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CategorizeEvent assigns a cause by checking each cause's keywords in
// declaration order and returning the first hit; "other" when none match.
func CategorizeEvent(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range causeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.cause
			}
		}
	}
	return CauseOther
}

// Causes returns all cause names in classification order, "other" last.
func Causes() []string {
	out := make([]string, 0, len(causeRules)+1)
	for _, rule := range causeRules {
		out = append(out, rule.cause)
	}
	return append(out, CauseOther)
}

// ValidCause reports whether name is a member of the cause enumeration.
func ValidCause(name string) bool {
	if name == CauseOther {
		return true
	}
	for _, rule := range causeRules {
		if rule.cause == name {
			return true
		}
	}
	return false
}
