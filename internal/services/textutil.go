package services

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_-]+`)

var queryStopwords = map[string]struct{}{
	"what": {}, "which": {}, "the": {}, "is": {}, "are": {}, "does": {},
	"do": {}, "a": {}, "an": {}, "to": {}, "of": {}, "for": {}, "in": {},
	"on": {}, "and": {}, "technova": {},
}

// orgHints mark a query as tenant-internal regardless of phrasing.
var orgHints = []string{
	"technova", "our company", "our org", "internal",
	"salesforce", "github", "notion", "drive", "looker",
}

var arithmeticOnlyPattern = regexp.MustCompile(`^[\d\s+\-*/().]+$`)

var generalPrefixes = []string{
	"what is ", "who is ", "define ", "calculate ", "how many ", "convert ",
}

// normalizeQuery lowercases, trims, and collapses internal whitespace so that
// trivially different phrasings share one cache identity.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
}

func tokenSet(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		out[tok] = struct{}{}
	}
	return out
}

// overlapCount counts query terms present in the token set. Terms of five or
// more characters also match on a shared 5-character prefix in either
// direction, so simple inflections still count.
func overlapCount(terms []string, tokens map[string]struct{}) int {
	if len(terms) == 0 || len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, term := range terms {
		if _, ok := tokens[term]; ok {
			hits++
			continue
		}
		if len(term) < 5 {
			continue
		}
		for tok := range tokens {
			if len(tok) < 5 {
				continue
			}
			if strings.HasPrefix(tok, term[:5]) || strings.HasPrefix(term, tok[:5]) {
				hits++
				break
			}
		}
	}
	return hits
}

// queryTerms extracts the meaningful tokens of a query, deduplicated in
// first-seen order so a repeated word cannot inflate overlap counts.
func queryTerms(query string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(query), -1) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := queryStopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// isGeneralQuery reports whether a query carries no tenant signal and reads
// like open-domain knowledge or pure arithmetic.
func isGeneralQuery(query string) bool {
	lowered := strings.ToLower(strings.TrimSpace(query))
	for _, hint := range orgHints {
		if strings.Contains(lowered, hint) {
			return false
		}
	}
	if lowered != "" && arithmeticOnlyPattern.MatchString(lowered) {
		return true
	}
	for _, prefix := range generalPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

// compactText collapses internal whitespace runs to single spaces and
// truncates at limit runes, marking the cut with an ellipsis.
func compactText(text string, limit int) string {
	trimmed := strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return trimmed
	}
	if limit <= 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
