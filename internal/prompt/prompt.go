// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt renders the instructions sent to the language model: one
// discovery prompt per document and one extraction prompt per chunk, or per
// chunk and arm for arm-specific chunks. Rendering is a pure function of the
// document, the chunk and the arm.
package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// DiscoveryChunk is the chunk id passed to Build for the discovery prompt.
const DiscoveryChunk = 0

// MarkerKey is the top-level key every prompt asks the model to reply with.
const MarkerKey = "treatment_arms"

var (
	// ErrUnknownChunk is returned for a chunk id the catalog does not define.
	ErrUnknownChunk = errors.New("unknown chunk")
	// ErrArmRequired is returned when an arm-specific chunk is built without an arm.
	ErrArmRequired = errors.New("arm-specific chunk needs an arm")
)

// Builder renders prompts from a field catalog.
type Builder struct {
	cat      *catalog.Catalog
	maxChars int
}

// New returns a Builder that keeps at most maxChars characters of document
// text and tables combined. A non-positive maxChars keeps everything.
func New(cat *catalog.Catalog, maxChars int) *Builder {
	return &Builder{cat: cat, maxChars: maxChars}
}

// Truncate returns the first max characters of text. Characters are runes,
// so the result is always valid UTF-8.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

// fit splits a budget of max characters between tables and text. Tables
// get at most half; text gets what the tables leave.
func fit(text, tables string, max int) (string, string) {
	if max <= 0 {
		return text, tables
	}
	if half := max / 2; half > 0 {
		tables = Truncate(tables, half)
	} else {
		tables = ""
	}
	return Truncate(text, max-utf8.RuneCountInString(tables)), tables
}

// Build renders the prompt for chunkID. DiscoveryChunk renders the discovery
// prompt and ignores arm. Arm-specific chunks require arm; shared chunks
// ignore it.
func (b *Builder) Build(doc types.Document, chunkID int, arm *types.ArmDescriptor) (string, error) {
	if chunkID == DiscoveryChunk {
		return b.Discovery(doc)
	}
	ch, ok := b.cat.Chunk(chunkID)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownChunk, chunkID)
	}
	if ch.Scope == types.ScopeArmSpecific && arm == nil {
		return "", fmt.Errorf("chunk %d: %w", chunkID, ErrArmRequired)
	}
	if ch.Scope == types.ScopeShared {
		arm = nil
	}
	return b.chunk(doc, ch, arm)
}

// Discovery renders the arm discovery prompt.
func (b *Builder) Discovery(doc types.Document) (string, error) {
	schema, err := DiscoverySchema()
	if err != nil {
		return "", err
	}
	data := struct {
		Schema string
		Text   string
	}{
		Schema: schema,
		Text:   Truncate(doc.Text, b.maxChars),
	}
	var buf bytes.Buffer
	if err := discoveryTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering discovery prompt: %w", err)
	}
	return buf.String(), nil
}

// DiscoverySchema returns the JSON schema of the discovery reply.
func DiscoverySchema() (string, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&types.DiscoveryResult{})
	b, err := schema.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshaling discovery schema: %w", err)
	}
	return string(b), nil
}

type vocabLine struct {
	Field  types.Field
	Values []string
}

type hintLine struct {
	Field types.Field
	Hint  string
}

type chunkData struct {
	Title        string
	Arm          *types.ArmDescriptor
	Safety       bool
	Class        types.EventClass
	MissingText  string
	FieldList    string
	Vocabularies []vocabLine
	Hints        []hintLine
	Tables       string
	Text         string
}

func (b *Builder) chunk(doc types.Document, ch catalog.Chunk, arm *types.ArmDescriptor) (string, error) {
	text, tables := fit(doc.Text, strings.TrimSpace(doc.Tables), b.maxChars)
	data := chunkData{
		Title:  ch.Title,
		Arm:    arm,
		Safety: ch.Safety,
		Tables: tables,
		Text:   text,
	}
	if arm != nil {
		data.Class = arm.SafetyEventClass
	}

	var lines []string
	var safety, other bool
	for _, f := range ch.Asked() {
		d, ok := b.cat.Descriptor(f)
		if !ok {
			continue
		}
		if d.Category == types.CategorySafety {
			safety = true
		} else {
			other = true
		}
		name, err := json.Marshal(string(d.Name))
		if err != nil {
			return "", fmt.Errorf("encoding field %q: %w", d.Name, err)
		}
		missing, _ := json.Marshal(d.MissingValue())
		lines = append(lines, fmt.Sprintf("      %s: %s", name, missing))

		if d.Vocabulary != "" {
			data.Vocabularies = append(data.Vocabularies, vocabLine{Field: d.Name, Values: b.cat.Vocabulary(d.Vocabulary)})
		}
		if d.Hint != "" {
			data.Hints = append(data.Hints, hintLine{Field: d.Name, Hint: d.Hint})
		}
	}
	data.FieldList = strings.Join(lines, ",\n")

	switch {
	case safety && other:
		data.MissingText = `"" for efficacy and descriptive fields and "NA" for safety fields`
	case safety:
		data.MissingText = `"NA"`
	default:
		data.MissingText = `""`
	}

	var buf bytes.Buffer
	if err := chunkTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering chunk %d prompt: %w", ch.ID, err)
	}
	return buf.String(), nil
}
