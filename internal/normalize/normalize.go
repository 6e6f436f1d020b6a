// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize converts raw extracted strings into canonical values.
// Each semantic type in the field catalog has one entry point here, and
// Normalizer dispatches on a field's descriptor. Every function is pure and
// never fails: unusable input becomes the field's missing sentinel or is
// passed through for validation to report.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// Missing returns raw unless it is blank, in which case it returns the
// missing sentinel of the category: "NA" for safety, "" for everything else.
// An explicit "0" is a value, not a blank.
func Missing(raw string, cat types.Category) string {
	if strings.TrimSpace(raw) != "" {
		return raw
	}
	if cat == types.CategorySafety {
		return types.MissingSafety
	}
	return types.MissingEfficacy
}

// IsMissing reports whether v is a missing sentinel for either convention.
func IsMissing(v string) bool {
	return v == types.MissingEfficacy || v == types.MissingSafety
}

// Normalizer applies catalog-driven normalization.
type Normalizer struct {
	cat *catalog.Catalog
}

// New returns a Normalizer over cat.
func New(cat *catalog.Catalog) *Normalizer {
	return &Normalizer{cat: cat}
}

// Normalize normalizes raw as a value of the named field. Names unknown to
// the catalog are returned trimmed.
func (n *Normalizer) Normalize(fieldName, raw string) string {
	d, err := n.cat.Lookup(fieldName)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return n.Value(d, raw)
}

// Value normalizes raw according to the descriptor d.
func (n *Normalizer) Value(d catalog.Descriptor, raw string) string {
	v := strings.TrimSpace(raw)

	switch d.Type {
	case types.TypePercentage, types.TypeDurationMonths, types.TypeNumeric:
		if NoEventPhrase(v) {
			return "0"
		}
		if d.Category == types.CategorySafety {
			if bound, ok := lessThan(v); ok {
				return bound
			}
		}
		return Missing(ExtractNumeric(v), d.Category)

	case types.TypePValue:
		return Missing(ClassifyPValue(v), d.Category)

	case types.TypeYesNo:
		if blank(v) {
			return Missing("", d.Category)
		}
		return YesNo(v)

	case types.TypeDate:
		if blank(v) {
			return Missing("", d.Category)
		}
		return Date(v)

	case types.TypeIdentifier:
		if blank(v) {
			return Missing("", d.Category)
		}
		if d.Name == types.FieldNCTNumber {
			return NCTNumber(v)
		}
		return v
	}

	if v == "" {
		return Missing("", d.Category)
	}
	// Vocabulary rules may give "N/A" a meaning of its own.
	out := n.freeText(d, v)
	if out == v && blank(v) {
		return Missing("", d.Category)
	}
	return Missing(out, d.Category)
}

func (n *Normalizer) freeText(d catalog.Descriptor, v string) string {
	switch d.Rule {
	case "publication_name":
		return PublicationName(v)
	case "trial_name":
		return TrialName(v, "")
	case "generic_name":
		return GenericName(v)
	case "sponsor_type":
		return SponsorType(v)
	}

	vocab := n.cat.Vocabulary(d.Vocabulary)
	switch d.Vocabulary {
	case "":
		return v
	case "clinical_trial_phase":
		return Stage(v, vocab)
	case "cancer_type":
		return CancerType(v, vocab)
	case "line_of_treatment":
		return LineOfTreatment(v, vocab)
	case "nccn_preference":
		return NCCNPreference(v, vocab)
	case "safety_event_class":
		return SafetyClass(v)
	}
	if exact, ok := matchFold(v, vocab); ok {
		return exact
	}
	return v
}

func blank(v string) bool {
	return v == "" || emptyWords[strings.ToLower(v)]
}

// Object normalizes a decoded JSON object keyed by raw field names. Keys are
// resolved through the catalog; unknown keys and compound values are
// reported in notes. Keys are visited in sorted order so notes are stable.
func (n *Normalizer) Object(obj map[string]any) (map[types.Field]string, []string) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[types.Field]string, len(obj))
	var notes []string
	for _, k := range keys {
		d, err := n.cat.Lookup(k)
		if err != nil {
			notes = append(notes, fmt.Sprintf("unknown field %q", k))
			continue
		}
		raw, single := Scalar(obj[k])
		if !single {
			notes = append(notes, fmt.Sprintf("field %q holds several values %q", d.Name, raw))
		}
		values[d.Name] = n.Value(d, raw)
	}
	return values, notes
}

// Scalar renders a decoded JSON value as a string. The boolean is false for
// arrays and objects, whose elements are joined with "; ".
func Scalar(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		if x {
			return "yes", true
		}
		return "no", true
	case []any:
		if len(x) == 1 {
			return Scalar(x[0])
		}
		parts := make([]string, 0, len(x))
		for _, e := range x {
			s, _ := Scalar(e)
			parts = append(parts, s)
		}
		return strings.Join(parts, "; "), len(x) == 0
	case map[string]any:
		return fmt.Sprint(x), false
	}
	return fmt.Sprint(v), true
}
