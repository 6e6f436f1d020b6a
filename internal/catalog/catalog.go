// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog holds the static table of extraction fields. Each field has
// a semantic type, a scope, a category and exactly one home chunk. The
// catalog also owns the controlled vocabularies that prompts embed and
// validation enforces. It is loaded once and never mutated.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trial-extractor/pkg/types"
)

//go:embed fields.yaml
var fieldsYAML []byte

// ErrUnknownField is returned by Lookup when a name matches no field or alias.
var ErrUnknownField = errors.New("unknown field")

// grade3Template names the per-class Grade 3+ event fields.
const grade3Template = `Grade 3+ or Grade 3 higher "%s" %s`

// legacyGrade3Template is the class-less spelling used by older prompt
// versions; it is accepted as an alias of the AE-class field.
const legacyGrade3Template = "Grade ≥3 or Grade 3+ or Grade 3-5 or Grade 3-4 %s"

// Descriptor describes one catalog field.
type Descriptor struct {
	Name       types.Field
	Type       types.SemanticType
	Scope      types.Scope
	Category   types.Category
	Chunk      int
	Vocabulary string
	Rule       string
	Class      types.EventClass
	Hint       string
}

// MissingValue returns the sentinel for an absent value of this field.
func (d Descriptor) MissingValue() string {
	if d.Category == types.CategorySafety {
		return types.MissingSafety
	}
	return types.MissingEfficacy
}

// Chunk is one LLM call's worth of fields.
type Chunk struct {
	ID      int
	Title   string
	Scope   types.Scope
	Safety  bool
	Fields  []types.Field
	Revisit []types.Field
}

// Asked returns the fields requested from the model for this chunk: the
// chunk's own fields followed by any revisited fields.
func (c Chunk) Asked() []types.Field {
	out := make([]types.Field, 0, len(c.Fields)+len(c.Revisit))
	out = append(out, c.Fields...)
	return append(out, c.Revisit...)
}

// Catalog is the loaded field table.
type Catalog struct {
	fields []Descriptor
	index  map[types.Field]int
	folded map[string]types.Field
	chunks []Chunk
	vocab  map[string][]string
}

// fileSchema mirrors fields.yaml.
type fileSchema struct {
	Vocabularies map[string][]string `yaml:"vocabularies"`
	Grade3Events []string            `yaml:"grade3_events"`
	Chunks       []chunkSchema       `yaml:"chunks"`
}

type chunkSchema struct {
	ID       int           `yaml:"id"`
	Title    string        `yaml:"title"`
	Scope    string        `yaml:"scope"`
	Category string        `yaml:"category"`
	Safety   bool          `yaml:"safety"`
	Revisit  []string      `yaml:"revisit"`
	Fields   []fieldSchema `yaml:"fields"`
	Expand   *expandSchema `yaml:"expand"`
}

type fieldSchema struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Category   string   `yaml:"category"`
	Vocabulary string   `yaml:"vocabulary"`
	Rule       string   `yaml:"rule"`
	Class      string   `yaml:"class"`
	Hint       string   `yaml:"hint"`
	Aliases    []string `yaml:"aliases"`
}

type expandSchema struct {
	Classes []string `yaml:"classes"`
	Type    string   `yaml:"type"`
}

var validTypes = map[types.SemanticType]bool{
	types.TypePercentage:     true,
	types.TypeDurationMonths: true,
	types.TypeNumeric:        true,
	types.TypeIdentifier:     true,
	types.TypePValue:         true,
	types.TypeYesNo:          true,
	types.TypeDate:           true,
	types.TypeFreeText:       true,
}

var validCategories = map[types.Category]bool{
	types.CategoryPublication: true,
	types.CategoryTreatment:   true,
	types.CategoryEfficacy:    true,
	types.CategorySafety:      true,
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the catalog built from the embedded field table. It panics
// if the embedded table is invalid, which the package tests rule out.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(fieldsYAML)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded field table: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Load parses a field table in the fields.yaml format.
func Load(data []byte) (*Catalog, error) {
	var fs fileSchema
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parsing field table: %w", err)
	}

	c := &Catalog{
		index:  make(map[types.Field]int),
		folded: make(map[string]types.Field),
		vocab:  fs.Vocabularies,
	}
	if c.vocab == nil {
		c.vocab = map[string][]string{}
	}

	sort.SliceStable(fs.Chunks, func(i, j int) bool { return fs.Chunks[i].ID < fs.Chunks[j].ID })

	seenChunk := make(map[int]bool)
	for _, cs := range fs.Chunks {
		if cs.ID <= 0 || seenChunk[cs.ID] {
			return nil, fmt.Errorf("chunk %d: id must be positive and unique", cs.ID)
		}
		seenChunk[cs.ID] = true

		scope := types.Scope(cs.Scope)
		if scope != types.ScopeShared && scope != types.ScopeArmSpecific {
			return nil, fmt.Errorf("chunk %d: invalid scope %q", cs.ID, cs.Scope)
		}

		chunk := Chunk{ID: cs.ID, Title: cs.Title, Scope: scope, Safety: cs.Safety}

		defs := cs.Fields
		if cs.Expand != nil {
			defs = append(defs, expandGrade3(cs.Expand, fs.Grade3Events)...)
		}

		for _, f := range defs {
			d, err := c.describe(f, cs, scope)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", cs.ID, err)
			}
			if err := c.add(d, f.Aliases); err != nil {
				return nil, fmt.Errorf("chunk %d: %w", cs.ID, err)
			}
			chunk.Fields = append(chunk.Fields, d.Name)
		}
		c.chunks = append(c.chunks, chunk)
	}

	// Revisits are resolved after all home chunks are known.
	for i, cs := range fs.Chunks {
		for _, name := range cs.Revisit {
			d, err := c.Lookup(name)
			if err != nil {
				return nil, fmt.Errorf("chunk %d revisit: %w", cs.ID, err)
			}
			if d.Chunk == cs.ID {
				return nil, fmt.Errorf("chunk %d revisits its own field %q", cs.ID, d.Name)
			}
			if d.Scope != c.chunks[i].Scope {
				return nil, fmt.Errorf("chunk %d revisits %q across scopes", cs.ID, d.Name)
			}
			c.chunks[i].Revisit = append(c.chunks[i].Revisit, d.Name)
		}
	}

	return c, nil
}

func (c *Catalog) describe(f fieldSchema, cs chunkSchema, scope types.Scope) (Descriptor, error) {
	name := Canonicalize(f.Name)
	if name == "" {
		return Descriptor{}, errors.New("field with empty name")
	}

	typ := types.SemanticType(f.Type)
	if typ == "" {
		typ = types.TypeFreeText
	}
	if !validTypes[typ] {
		return Descriptor{}, fmt.Errorf("field %q: invalid type %q", name, f.Type)
	}

	cat := types.Category(f.Category)
	if cat == "" {
		cat = types.Category(cs.Category)
	}
	if !validCategories[cat] {
		return Descriptor{}, fmt.Errorf("field %q: invalid category %q", name, cat)
	}

	if f.Vocabulary != "" {
		if _, ok := c.vocab[f.Vocabulary]; !ok {
			return Descriptor{}, fmt.Errorf("field %q: unknown vocabulary %q", name, f.Vocabulary)
		}
	}

	return Descriptor{
		Name:       types.Field(name),
		Type:       typ,
		Scope:      scope,
		Category:   cat,
		Chunk:      cs.ID,
		Vocabulary: f.Vocabulary,
		Rule:       f.Rule,
		Class:      types.EventClass(f.Class),
		Hint:       f.Hint,
	}, nil
}

func (c *Catalog) add(d Descriptor, aliases []string) error {
	if _, dup := c.index[d.Name]; dup {
		return fmt.Errorf("field %q defined twice", d.Name)
	}
	c.index[d.Name] = len(c.fields)
	c.fields = append(c.fields, d)

	for _, key := range append([]string{string(d.Name)}, aliases...) {
		k := foldKey(key)
		if owner, taken := c.folded[k]; taken && owner != d.Name {
			return fmt.Errorf("name %q claimed by %q and %q", key, owner, d.Name)
		}
		c.folded[k] = d.Name
	}
	return nil
}

func expandGrade3(ex *expandSchema, events []string) []fieldSchema {
	var out []fieldSchema
	for _, class := range ex.Classes {
		for _, ev := range events {
			f := fieldSchema{
				Name:  fmt.Sprintf(grade3Template, class, ev),
				Type:  ex.Type,
				Class: class,
			}
			if types.EventClass(class) == types.ClassAE {
				f.Aliases = []string{fmt.Sprintf(legacyGrade3Template, ev)}
			}
			out = append(out, f)
		}
	}
	return out
}

// Lookup resolves a raw name, which may carry encoding damage, different
// letter case or a legacy spelling, to its field descriptor.
func (c *Catalog) Lookup(name string) (Descriptor, error) {
	canon := types.Field(Canonicalize(name))
	if i, ok := c.index[canon]; ok {
		return c.fields[i], nil
	}
	if f, ok := c.folded[foldKey(name)]; ok {
		return c.fields[c.index[f]], nil
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Descriptor returns the descriptor for an already-canonical field.
func (c *Catalog) Descriptor(f types.Field) (Descriptor, bool) {
	i, ok := c.index[f]
	if !ok {
		return Descriptor{}, false
	}
	return c.fields[i], true
}

// Fields returns all descriptors in catalog order.
func (c *Catalog) Fields() []Descriptor {
	return append([]Descriptor(nil), c.fields...)
}

// FieldsIn returns the descriptors of one scope in catalog order.
func (c *Catalog) FieldsIn(scope types.Scope) []Descriptor {
	var out []Descriptor
	for _, d := range c.fields {
		if d.Scope == scope {
			out = append(out, d)
		}
	}
	return out
}

// Chunk returns the chunk with the given id.
func (c *Catalog) Chunk(id int) (Chunk, bool) {
	for _, ch := range c.chunks {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chunk{}, false
}

// Chunks returns all chunks ordered by id.
func (c *Catalog) Chunks() []Chunk {
	return append([]Chunk(nil), c.chunks...)
}

// ChunksIn returns the chunks of one scope ordered by id.
func (c *Catalog) ChunksIn(scope types.Scope) []Chunk {
	var out []Chunk
	for _, ch := range c.chunks {
		if ch.Scope == scope {
			out = append(out, ch)
		}
	}
	return out
}

// Vocabulary returns the allowed values of a named vocabulary.
func (c *Catalog) Vocabulary(name string) []string {
	return append([]string(nil), c.vocab[name]...)
}

// InVocabulary reports whether value is an exact member of the vocabulary.
func (c *Catalog) InVocabulary(name, value string) bool {
	for _, v := range c.vocab[name] {
		if v == value {
			return true
		}
	}
	return false
}

// ClassFields returns the safety fields bound to one adverse-event class.
func (c *Catalog) ClassFields(class types.EventClass) []types.Field {
	var out []types.Field
	for _, d := range c.fields {
		if d.Class == class {
			out = append(out, d.Name)
		}
	}
	return out
}
