package alert

import "strings"

// MatchEntries is the reference evaluation: every entry whose non-empty
// keyword is a substring of text is a hit. text must already be normalized.
func MatchEntries(text string, entries []KeywordEntry) []Hit {
	if text == "" {
		return nil
	}
	var hits []Hit
	for _, e := range entries {
		if e.Keyword == "" {
			continue
		}
		if strings.Contains(text, e.Keyword) {
			hits = append(hits, Hit{UserID: e.UserID, Keyword: e.Keyword})
		}
	}
	return hits
}
