// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// P-value significance classes.
const (
	NonSignificant    = "Non-Significant"
	Significant       = "Significant"
	HighlySignificant = "Highly Significant"
)

const (
	significanceLevel = 0.05
	highlyLevel       = 0.001
)

var classifiedPValues = map[string]string{
	"non-significant":    NonSignificant,
	"not significant":    NonSignificant,
	"ns":                 NonSignificant,
	"significant":        Significant,
	"sig":                Significant,
	"highly significant": HighlySignificant,
	"very significant":   HighlySignificant,
}

var (
	pComparisonRe = regexp.MustCompile(`p\s*([<>=≤≥])\s*(\d+(?:\.\d+)?)`)
	bareNumberRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// ClassifyPValue maps a reported p-value to Non-Significant, Significant or
// Highly Significant. Already-classified labels map to themselves, missing
// values give "", and text with no number is returned unchanged, so applying
// it twice gives the same result as applying it once.
func ClassifyPValue(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	switch lower {
	case "not mentioned", "not available", "n/a", "na":
		return ""
	}
	if class, ok := classifiedPValues[lower]; ok {
		return class
	}

	if m := pComparisonRe.FindStringSubmatch(lower); m != nil {
		p, err := strconv.ParseFloat(m[2], 64)
		if err == nil {
			switch m[1] {
			case ">", "≥":
				if p >= significanceLevel {
					return NonSignificant
				}
				// A lower bound under the threshold says nothing definite;
				// fall back to the bound itself.
			case "<", "≤":
				return bySignificance(p)
			case "=":
				return bySignificance(p)
			}
		}
	}

	if m := bareNumberRe.FindStringSubmatch(v); m != nil {
		if p, err := strconv.ParseFloat(m[1], 64); err == nil {
			return bySignificance(p)
		}
	}
	return v
}

func bySignificance(p float64) string {
	switch {
	case p > significanceLevel:
		return NonSignificant
	case p <= highlyLevel:
		return HighlySignificant
	default:
		return Significant
	}
}
