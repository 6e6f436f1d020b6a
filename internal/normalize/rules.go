// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// YesNo coerces boolean-like answers to YES or NO. Anything else is
// returned uppercased.
func YesNo(raw string) string {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "yes", "y", "true", "1":
		return "YES"
	case "no", "n", "false", "0":
		return "NO"
	}
	return strings.ToUpper(v)
}

var nctRe = regexp.MustCompile(`(?i)\bNCT\s*-?\s*(\d{8})\b`)

// NCTNumber extracts a registry identifier in canonical NCT######## form.
// Text without one is returned trimmed so validation can report it.
func NCTNumber(raw string) string {
	if m := nctRe.FindStringSubmatch(raw); m != nil {
		return "NCT" + m[1]
	}
	return strings.TrimSpace(raw)
}

var trialFamilies = []string{"keynote", "checkmate", "masterkey"}

var trialNameRes = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(trialFamilies))
	for _, fam := range trialFamilies {
		out[fam] = regexp.MustCompile(`(?i)` + fam + `[-\s]?(\d+[a-z]*)`)
	}
	return out
}()

// NoTrialName is the trial name used when no named family is found.
const NoTrialName = "No Name"

// TrialName reduces a trial name to Keynote-N, Checkmate-N, Masterkey-N or
// "No Name". When the field names no family, text is searched instead.
func TrialName(value, text string) string {
	lower := strings.ToLower(value)
	for _, fam := range trialFamilies {
		if !strings.Contains(lower, fam) {
			continue
		}
		if m := trialNameRes[fam].FindStringSubmatch(lower); m != nil {
			return titleFamily(fam) + "-" + m[1]
		}
		return titleFamily(fam)
	}
	for _, fam := range trialFamilies {
		if m := trialNameRes[fam].FindStringSubmatch(text); m != nil {
			return titleFamily(fam) + "-" + strings.ToLower(m[1])
		}
	}
	return NoTrialName
}

func titleFamily(fam string) string {
	return strings.ToUpper(fam[:1]) + fam[1:]
}

var doseUnitRe = regexp.MustCompile(`(?i)(?:mg|mcg|µg|iu|pfu)/(?:kg|m2|m²|day|d|ml)`)

// GenericName joins the drugs of a combination with " + ".
func GenericName(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	sep := "+"
	if !strings.Contains(v, "+") {
		sep = ""
		for _, s := range []string{" and ", " & ", "/", ","} {
			if s == "/" && doseUnitRe.MatchString(v) {
				continue
			}
			if strings.Contains(v, s) {
				sep = s
				break
			}
		}
	}
	if sep == "" {
		return v
	}
	parts := strings.Split(v, sep)
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " + ")
}

// Sponsor classes.
const (
	IndustrySponsored    = "Industry-Sponsored"
	NonIndustrySponsored = "non Industry-Sponsored"
)

// SponsorType classifies a sponsor statement. An empty statement stays empty.
func SponsorType(sponsors string) string {
	v := strings.ToLower(strings.TrimSpace(sponsors))
	switch v {
	case "":
		return ""
	case "none", "n/a", "na", "not applicable", "non-industry", "non industry-sponsored":
		return NonIndustrySponsored
	}
	return IndustrySponsored
}

// stageRules map a bare phase tag ("ii", "2/3") to its class.
var stageRules = []struct {
	needles []string
	class   string
}{
	{[]string{"i/ii", "1/2"}, "Stage I/II"},
	{[]string{"ii/iii", "2/3"}, "Stage II/III"},
	{[]string{"iii/iv", "3/4"}, "Stage III/Stage IV"},
	{[]string{"iv", "4"}, "Stage IV"},
	{[]string{"iii", "3"}, "Stage III"},
	{[]string{"ii", "2"}, "Stage II"},
	{[]string{"i", "1"}, "Stage I"},
}

var stagePrefixRe = regexp.MustCompile(`(?i)\b(?:stage|phase)\s*([ivx\d]+(?:\s*/\s*(?:stage\s*|phase\s*)?[ivx\d]+)?)\b`)

// Stage maps a phase statement to the trial phase vocabulary. Unmappable
// input is returned unchanged.
func Stage(raw string, vocab []string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if exact, ok := matchFold(v, vocab); ok {
		return exact
	}
	lower := strings.ToLower(v)
	if lower == "n/a" || lower == "not applicable" {
		if exact, ok := matchFold("Not Applicable", vocab); ok {
			return exact
		}
	}
	m := stagePrefixRe.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	tag := strings.ToLower(m[1])
	tag = strings.NewReplacer(" ", "", "stage", "", "phase", "").Replace(tag)
	for _, r := range stageRules {
		for _, n := range r.needles {
			if tag == n {
				return r.class
			}
		}
	}
	return v
}

var cancerSynonyms = []struct {
	needle string
	class  string
}{
	{"cutaneous melanoma with brain metastas", "Cutaneous melanoma with Brain metastasis"},
	{"cutaneous melanoma with cns metastas", "Cutaneous Melanoma with CNS metastasis"},
	{"resected cutaneous melanoma", "Resected Cutaneous Melanoma"},
	{"unresectable cutaneous melanoma", "Unresectable Cutaneous Melanoma"},
	{"uveal melanoma", "Uveal Melanoma"},
	{"mucosal melanoma", "Mucosal Melanoma"},
	{"acral melanoma", "Acral Melanoma"},
	{"basal cell carcinoma", "Basal Cell Carcinoma"},
	{"merkel cell carcinoma", "Merkel Cell Carcinoma"},
	{"cutaneous squamous cell carcinoma", "Cutaneous Squamous Cell Carcinoma"},
}

// CancerType maps a cancer description to the cancer type vocabulary.
// Unmappable input, including bare "melanoma", is returned unchanged.
func CancerType(raw string, vocab []string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if exact, ok := matchFold(v, vocab); ok {
		return exact
	}
	lower := strings.ToLower(v)
	for _, s := range cancerSynonyms {
		if strings.Contains(lower, s.needle) {
			return s.class
		}
	}
	if strings.Contains(lower, "melanoma") {
		switch {
		case strings.Contains(lower, "brain"):
			return "Cutaneous melanoma with Brain metastasis"
		case strings.Contains(lower, "cns"):
			return "Cutaneous Melanoma with CNS metastasis"
		case strings.Contains(lower, "unresectable"):
			return "Unresectable Cutaneous Melanoma"
		case strings.Contains(lower, "resected"), strings.Contains(lower, "surgically removed"):
			return "Resected Cutaneous Melanoma"
		}
	}
	return v
}

var lineRules = []struct {
	needles []string
	class   string
}{
	{[]string{"neoadjuvant", "neo-adjuvant"}, "Neoadjuvant"},
	{[]string{"first line", "1st line", "first-line", "untreated", "treatment-naive", "treatment naive"}, "First Line"},
	{[]string{"second line", "2nd line", "second-line", "previously treated"}, "2nd Line"},
	{[]string{"third line", "3rd line", "third-line", "heavily pretreated"}, "3rd Line+"},
}

// LineOfTreatment maps a line-of-therapy statement to its vocabulary.
func LineOfTreatment(raw string, vocab []string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if exact, ok := matchFold(v, vocab); ok {
		return exact
	}
	lower := strings.ToLower(v)
	for _, r := range lineRules {
		for _, n := range r.needles {
			if strings.Contains(lower, n) {
				return r.class
			}
		}
	}
	return v
}

// NCCNPreference maps a guideline preference statement to its vocabulary.
func NCCNPreference(raw string, vocab []string) string {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)
	switch lower {
	case "":
		return ""
	case "not applicable", "n/a", "not listed", "not mentioned":
		return "Not applicable (Not listed in NCCN guidelines)"
	}
	if exact, ok := matchFold(v, vocab); ok {
		return exact
	}
	switch {
	case strings.Contains(lower, "preferred"):
		return "Preferred Regimen"
	case strings.Contains(lower, "not recommended"):
		return "Not Recommended"
	case strings.Contains(lower, "recommended"):
		return "Other recommended regimens"
	case strings.Contains(lower, "useful"), strings.Contains(lower, "certain circumstances"):
		return "useful in certain circumstances"
	}
	return v
}

// SafetyClass maps an adverse-event class statement to AE, TEAE or TRAE.
func SafetyClass(raw string) string {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)
	switch {
	case lower == "":
		return ""
	case strings.Contains(lower, "teae"), strings.Contains(lower, "emergent"):
		return "TEAE"
	case strings.Contains(lower, "trae"), strings.Contains(lower, "related"):
		return "TRAE"
	case lower == "ae", lower == "aes", strings.HasPrefix(lower, "adverse event"):
		return "AE"
	}
	return v
}

func matchFold(v string, vocab []string) (string, bool) {
	for _, c := range vocab {
		if strings.EqualFold(v, c) {
			return c, true
		}
	}
	return "", false
}

var journalAbbrevs = []struct {
	re   *regexp.Regexp
	abbr string
}{
	{regexp.MustCompile(`(?i)new england journal|n engl j med|\bnejm\b`), "NEJM"},
	{regexp.MustCompile(`(?i)lancet oncology|lancet oncol`), "Lancet Oncol"},
	{regexp.MustCompile(`(?i)\blancet\b`), "Lancet"},
	{regexp.MustCompile(`(?i)journal of clinical oncology|j clin oncol|\bjco\b`), "JCO"},
}

var (
	copyrightRe = regexp.MustCompile(`©\s*\d{4}[^.]*\.?`)
	citationRe  = regexp.MustCompile(`((?:19|20)\d{2})\D{0,6}?(\d+)\s*[;:,]\s*(\d+)\s*[–-]\s*(\d+)`)
	formattedRe = regexp.MustCompile(`^[A-Za-z ]+ \d{4}; \d+:\d+-\d+$`)
)

// PublicationName formats a citation as "Journal YEAR; Volume:Start-End" when
// the journal and numbers can be found. Otherwise the cleaned input is kept.
func PublicationName(raw string) string {
	v := strings.TrimSpace(copyrightRe.ReplaceAllString(raw, ""))
	v = strings.Trim(v, " .")
	if v == "" || formattedRe.MatchString(v) {
		return v
	}
	journal := ""
	for _, j := range journalAbbrevs {
		if j.re.MatchString(v) {
			journal = j.abbr
			break
		}
	}
	m := citationRe.FindStringSubmatch(v)
	if journal == "" || m == nil {
		return v
	}
	return fmt.Sprintf("%s %s; %s:%s-%s", journal, m[1], m[2], m[3], m[4])
}

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/2006",
	"2006/01/02",
	"January 2006",
	"Jan 2006",
	"2006-01",
}

// Date converts a date statement to YYYY-MM-DD. Month-only dates use the
// first of the month. Unparseable input is returned trimmed.
func Date(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return v
}

var noEventPhrases = []string{
	"no treatment discontinuation occurred",
	"no discontinuation",
	"no patients discontinued",
	"0 patients discontinued",
	"zero patients discontinued",
	"no deaths",
	"no treatment-related deaths",
	"none occurred",
	"no events",
}

// NoEventPhrase reports whether text states that an event did not occur.
func NoEventPhrase(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range noEventPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var lessThanRe = regexp.MustCompile(`^<\s*(\d+(?:\.\d+)?)\s*%?$`)

// lessThan rewrites "<1%" and "<0.5%" to their bound.
func lessThan(raw string) (string, bool) {
	m := lessThanRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", false
	}
	return m[1], true
}
