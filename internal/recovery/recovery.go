// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recovery pulls a JSON object out of free-form model output. The
// model is asked for a bare JSON object but may wrap it in code fences, add
// commentary, leave trailing commas or stop mid-object. Parse applies a fixed
// cascade of cleanups and reports how much trust the result deserves.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// ErrNoJSON is wrapped by ParseError when no object can be recovered.
var ErrNoJSON = errors.New("no JSON object in response")

// ParseError reports a failed recovery and keeps the raw text.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v (%d bytes)", ErrNoJSON, len(e.Raw))
}

func (e *ParseError) Unwrap() error { return ErrNoJSON }

// Step names the cascade stage that produced a result.
type Step string

const (
	StepStrict Step = "strict"
	StepScan   Step = "scan"
	StepRepair Step = "repair"
	StepHjson  Step = "hjson"
)

// Result is a recovered object.
type Result struct {
	Object map[string]any
	// MarkerFound is true when the object carries one of the expected keys.
	MarkerFound bool
	Step        Step
}

// LowConfidence reports whether the object was found without an expected key
// or only through lenient repair.
func (r Result) LowConfidence() bool {
	return !r.MarkerFound || r.Step == StepRepair || r.Step == StepHjson
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// Parse recovers a JSON object from raw. Markers are the top-level keys the
// caller expects; with no markers every object counts as marked. Parse is
// deterministic: equal input always gives an equal result.
func Parse(raw string, markers ...string) (Result, error) {
	text := stripCodeFences(raw)
	cleaned := trailingCommaRe.ReplaceAllString(text, "$1")

	slice := cleaned
	if i, j := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); i >= 0 && j > i {
		slice = cleaned[i : j+1]
	}
	if obj, ok := decodeObject(slice); ok && hasMarker(obj, markers) {
		return Result{Object: obj, MarkerFound: true, Step: StepStrict}, nil
	}

	scanned, marked, scanOK := scan(cleaned, markers)
	if scanOK && marked {
		return Result{Object: scanned, MarkerFound: true, Step: StepScan}, nil
	}

	// A reply cut off mid-list still holds complete inner objects; repair
	// the whole reply before settling for one of those without a marker.
	var fallbacks []Result
	if i := strings.Index(text, "{"); i >= 0 {
		if obj, ok := repair(text[i:]); ok {
			if hasMarker(obj, markers) {
				return Result{Object: obj, MarkerFound: true, Step: StepRepair}, nil
			}
			fallbacks = append(fallbacks, Result{Object: obj, Step: StepRepair})
		}
		if obj, ok := lenient(slice); ok {
			if hasMarker(obj, markers) {
				return Result{Object: obj, MarkerFound: true, Step: StepHjson}, nil
			}
			fallbacks = append(fallbacks, Result{Object: obj, Step: StepHjson})
		}
	}
	if scanOK {
		return Result{Object: scanned, Step: StepScan}, nil
	}
	if len(fallbacks) > 0 {
		return fallbacks[0], nil
	}

	return Result{}, &ParseError{Raw: raw}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeObject strictly decodes s as exactly one JSON object. Numbers are
// kept as json.Number so "12.0" keeps its text.
func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return obj, true
}

func hasMarker(obj map[string]any, markers []string) bool {
	if len(markers) == 0 {
		return true
	}
	for _, m := range markers {
		if _, ok := obj[m]; ok {
			return true
		}
	}
	return false
}

type candidate struct {
	start, end int
	obj        map[string]any
}

// scan decodes every balanced {...} span of s. It returns the first span
// carrying a marker, otherwise the longest span, ties going to the earliest.
func scan(s string, markers []string) (map[string]any, bool, bool) {
	var best *candidate
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		end := matchBrace(s, start)
		if end < 0 {
			continue
		}
		obj, ok := decodeObject(s[start : end+1])
		if !ok {
			continue
		}
		if hasMarker(obj, markers) {
			return obj, true, true
		}
		if best == nil || end-start > best.end-best.start {
			best = &candidate{start: start, end: end, obj: obj}
		}
	}
	if best == nil {
		return nil, false, false
	}
	return best.obj, false, true
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// repair closes truncated objects and fixes quoting.
func repair(s string) (map[string]any, bool) {
	fixed, err := jsonrepair.RepairJSON(s)
	if err != nil {
		return nil, false
	}
	return decodeObject(fixed)
}

// lenient reads s as Hjson, which accepts unquoted keys and comments.
func lenient(s string) (map[string]any, bool) {
	var v map[string]any
	if err := hjson.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return nil, false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return decodeObject(string(b))
}
