// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"regexp"
	"strings"

	"github.com/pdiddy/trial-extractor/pkg/types"
)

// emptyWords normalize to the missing sentinel.
var emptyWords = map[string]bool{
	"not mentioned":  true,
	"not available":  true,
	"n/a":            true,
	"na":             true,
	"months":         true,
	"reference":      true,
	"references":     true,
	"not applicable": true,
	"not reported":   true,
	"n/r":            true,
}

// reachedWords normalize to the "NR" sentinel.
var reachedWords = map[string]bool{
	"not reached":   true,
	"nr":            true,
	"not estimable": true,
	"ne":            true,
}

// numericPatterns are tried in order; the first match wins. Each pattern's
// last capture group holds the value.
var numericPatterns = []*regexp.Regexp{
	// n (%) 7 (18) -> 18
	regexp.MustCompile(`(?i)n\s*\(%\).*?(\d+)\s*\((\d+(?:\.\d+)?)\)`),
	// 12.0 (8.2–17.1) -> 12.0
	regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*\([\d.\-–]+\)`),
	// 45% -> 45
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`),
	// p<0.05 -> 0.05
	regexp.MustCompile(`(?i)p\s*[<>=≤≥]\s*(\d+(?:\.\d+)?)`),
	// HR=0.61 -> 0.61
	regexp.MustCompile(`(?i)hr\s*[:=]\s*(\d+(?:\.\d+)?)`),
	// 20-30 -> 20
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[-–]\s*\d+(?:\.\d+)?`),
	// 25.5 months -> 25.5
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:months?|years?)`),
	// anything with a number
	regexp.MustCompile(`(\d+(?:\.\d+)?)`),
}

// ExtractNumeric pulls the single value a numeric cell represents out of the
// text a model returned. "Not reached" synonyms give "NR"; text with no
// number gives "". It never fails.
func ExtractNumeric(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	if emptyWords[lower] {
		return ""
	}
	if reachedWords[lower] {
		return types.NotReached
	}

	for _, re := range numericPatterns {
		m := re.FindStringSubmatch(v)
		if m != nil {
			return m[len(m)-1]
		}
	}
	return ""
}
