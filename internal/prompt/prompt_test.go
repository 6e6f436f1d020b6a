// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

func testArm() *types.ArmDescriptor {
	return &types.ArmDescriptor{
		ArmID:            "A1",
		GenericName:      "Drug X",
		NumberOfPatients: "50",
		NCTNumber:        "NCT01234567",
		TrialName:        "No Name",
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"shorter than budget", "abc", 5, "abc"},
		{"exact budget", "abcde", 5, "abcde"},
		{"cut", "abcdef", 4, "abcd"},
		{"multibyte", "≥≥≥≥", 2, "≥≥"},
		{"no budget", "abcdef", 0, "abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		tables     string
		max        int
		wantText   string
		wantTables string
	}{
		{"both fit", "body", "a,b", 10, "body", "a,b"},
		{"text takes what tables leave", "abcdefghij", "a,b", 8, "abcde", "a,b"},
		{"tables capped at half", "abcdefghij", "0123456789", 8, "abcd", "0123"},
		{"no tables", "abcdefghij", "", 6, "abcdef", ""},
		{"no budget", "abcdefghij", "0123456789", 0, "abcdefghij", "0123456789"},
		{"budget of one", "abc", "xyz", 1, "a", ""},
	}
	for _, tt := range tests {
		text, tables := fit(tt.text, tt.tables, tt.max)
		if text != tt.wantText || tables != tt.wantTables {
			t.Errorf("%s: fit = (%q, %q), want (%q, %q)", tt.name, text, tables, tt.wantText, tt.wantTables)
		}
		if tt.max > 0 && utf8.RuneCountInString(text)+utf8.RuneCountInString(tables) > tt.max {
			t.Errorf("%s: %d characters exceed budget %d", tt.name, len(text)+len(tables), tt.max)
		}
	}
}

func TestChunkPromptBoundsTables(t *testing.T) {
	b := New(catalog.Default(), 200)
	doc := types.Document{
		Text:   strings.Repeat("t", 1000),
		Tables: "Arm,ORR\n" + strings.Repeat("Drug X,45 (60%)\n", 200),
	}
	p, err := b.Build(doc, 1, testArm())
	require.NoError(t, err)

	empty, err := b.Build(types.Document{}, 1, testArm())
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(p)-utf8.RuneCountInString(empty), 200+len("\nTABLES:\n\n"))
	assert.Contains(t, p, "TABLES:\nArm,ORR")
	assert.Contains(t, p, strings.Repeat("t", 100))
}

func TestDiscoveryPrompt(t *testing.T) {
	b := New(catalog.Default(), 100)
	text := "ClinicalTrials.gov, number NCT01234567. " + strings.Repeat("x", 500)

	p, err := b.Build(types.Document{Text: text}, DiscoveryChunk, nil)
	require.NoError(t, err)

	assert.Contains(t, p, "Temperature 0. Never guess.")
	assert.Contains(t, p, "DISCOVER all treatment arms")
	assert.Contains(t, p, "markdown code fences")
	assert.Contains(t, p, `"treatment_arms"`)
	assert.Contains(t, p, Truncate(text, 100))
	assert.NotContains(t, p, Truncate(text, 101))
}

func TestDiscoverySchema(t *testing.T) {
	s, err := DiscoverySchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema has properties: %s", s)
	assert.Contains(t, props, "treatment_arms")
	assert.NotContains(t, s, "SafetyEventClass")
}

func TestSharedChunkPrompt(t *testing.T) {
	b := New(catalog.Default(), 55000)
	p, err := b.Build(types.Document{Text: "body", Tables: "Arm,ORR\nDrug X,45 (60%)"}, 1, testArm())
	require.NoError(t, err)

	assert.Contains(t, p, "publication-level fields")
	assert.NotContains(t, p, "EXTRACT fields for ARM")
	assert.Contains(t, p, `"NCT Number": ""`)
	assert.Contains(t, p, `"Cancer Type": ""`)
	assert.Contains(t, p, "Uveal Melanoma | Mucosal Melanoma")
	assert.Contains(t, p, "Stage III/Stage IV")
	assert.Contains(t, p, "TABLES:\nArm,ORR")
	assert.NotContains(t, p, "SAFETY CLASS RULES")
	assert.Contains(t, p, `output "".`)
}

func TestArmChunkPrompt(t *testing.T) {
	b := New(catalog.Default(), 55000)
	p, err := b.Build(types.Document{Text: "body"}, 6, testArm())
	require.NoError(t, err)

	assert.Contains(t, p, "EXTRACT fields for ARM: A1 - Drug X")
	assert.Contains(t, p, "Patient count: 50")
	assert.Contains(t, p, "NCT: NCT01234567")
	assert.Contains(t, p, `"Objective response rate (ORR)": ""`)
	assert.NotContains(t, p, `"Median Overall survival (OS)"`)
	assert.NotContains(t, p, "TABLES:")
}

func TestSafetyChunkPrompt(t *testing.T) {
	b := New(catalog.Default(), 55000)
	arm := testArm()

	p, err := b.Build(types.Document{Text: "body"}, 7, arm)
	require.NoError(t, err)
	assert.Contains(t, p, "SAFETY CLASS RULES")
	assert.Contains(t, p, `"safety_event_class": "NA"`)
	assert.Contains(t, p, "AE | TEAE | TRAE")
	assert.Contains(t, p, `output "NA".`)
	assert.NotContains(t, p, "This arm's safety data is reported as")

	arm.SafetyEventClass = types.ClassTRAE
	p, err = b.Build(types.Document{Text: "body"}, 9, arm)
	require.NoError(t, err)
	assert.Contains(t, p, "This arm's safety data is reported as TRAE")
	assert.Contains(t, p, `"Grade 3+ or Grade 3 higher \"TRAE\" Rash": "NA"`)
}

func TestBuildErrors(t *testing.T) {
	b := New(catalog.Default(), 55000)

	_, err := b.Build(types.Document{Text: "body"}, 42, nil)
	assert.True(t, errors.Is(err, ErrUnknownChunk), "got %v", err)

	_, err = b.Build(types.Document{Text: "body"}, 4, nil)
	assert.True(t, errors.Is(err, ErrArmRequired), "got %v", err)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := New(catalog.Default(), 55000)
	for _, id := range []int{DiscoveryChunk, 1, 3, 7, 10} {
		first, err := b.Build(types.Document{Text: "body"}, id, testArm())
		require.NoError(t, err)
		second, err := b.Build(types.Document{Text: "body"}, id, testArm())
		require.NoError(t, err)
		assert.Equal(t, first, second, "chunk %d", id)
	}
}
