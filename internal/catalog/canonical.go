// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import "strings"

// mojibake lists UTF-8 sequences mis-decoded as Windows-1252, in the order
// they must be replaced. The bare "â€" prefix is last because the longer
// sequences start with it.
var mojibake = []struct{ bad, good string }{
	{"â‰¥", "≥"},
	{"â‰¤", "≤"},
	{"â€™", "'"},
	{"â€˜", "'"},
	{"â€œ", `"`},
	{"â€“", "–"},
	{"â€”", "—"},
	{"â€", `"`},
}

// Canonicalize repairs encoding damage in a field name and folds runs of
// whitespace to single spaces. Every comparison of field names goes through
// this function.
func Canonicalize(name string) string {
	for _, m := range mojibake {
		name = strings.ReplaceAll(name, m.bad, m.good)
	}
	return strings.Join(strings.Fields(name), " ")
}

// foldKey is the case-insensitive index key for a canonical name.
func foldKey(name string) string {
	return strings.ToLower(Canonicalize(name))
}
