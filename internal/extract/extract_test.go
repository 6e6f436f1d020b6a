// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/export"
	"github.com/pdiddy/trial-extractor/internal/llm"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

const (
	orr      types.Field = "Objective response rate (ORR)"
	medianOS types.Field = "Median Overall survival (OS)"
	anyAE    types.Field = "Adverse events (AE)"
	anyTRAE  types.Field = "Treatment-related adverse events (TRAE)"
)

var pauses []time.Duration

func TestMain(m *testing.M) {
	// Record inter-document pauses instead of sleeping.
	pause = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	os.Exit(m.Run())
}

// --- scripted LLM client ---

// scriptedClient answers prompts by route: "discovery", "shared/<section>"
// or "<arm>/<section>". Unscripted routes get an empty arm object.
type scriptedClient struct {
	replies map[string]string
	fail    func(route, prompt string) error
	routes  []string
	prompts map[string]string
}

func route(p string) string {
	if strings.Contains(p, "DISCOVER all treatment arms") {
		return "discovery"
	}
	section := ""
	if i := strings.Index(p, "Section: "); i >= 0 {
		section = strings.SplitN(p[i+len("Section: "):], "\n", 2)[0]
	}
	const armHeader = "EXTRACT fields for ARM: "
	if i := strings.Index(p, armHeader); i >= 0 {
		id := strings.SplitN(p[i+len(armHeader):], " - ", 2)[0]
		return id + "/" + section
	}
	return "shared/" + section
}

func (c *scriptedClient) Complete(_ context.Context, p string) (llm.Response, error) {
	r := route(p)
	c.routes = append(c.routes, r)
	if c.prompts == nil {
		c.prompts = make(map[string]string)
	}
	c.prompts[r] = p
	if c.fail != nil {
		if err := c.fail(r, p); err != nil {
			return llm.Response{}, err
		}
	}
	usage := llm.Usage{PromptTokens: 1000, CompletionTokens: 100}
	if reply, ok := c.replies[r]; ok {
		return llm.Response{Text: reply, Usage: usage}, nil
	}
	return llm.Response{Text: `{"treatment_arms": [{}]}`, Usage: usage}, nil
}

const discoveryOneArm = `{"treatment_arms": [{"arm_id": "A1", "generic_name": "Drug X", "number_of_patients": 50, "nct_number": "NCT01234567", "trial_name": "No Name"}]}`

const paperText = `Drug X in advanced uveal melanoma.
This trial is registered with ClinicalTrials.gov, number NCT01234567.
Fifty patients received Drug X (n=50).
Table 2. Response
Arm     ORR
Drug X  45 (60%)`

func newTestExtractor(c llm.Client, mutate ...func(*types.ExtractionConfig)) *Extractor {
	cfg := types.ExtractionConfig{AIConfig: types.AIConfig{Model: "test-model"}}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(c, catalog.Default(), cfg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
}

func issueKinds(rec *types.PublicationRecord) map[string]types.ChunkIssueKind {
	out := make(map[string]types.ChunkIssueKind)
	for _, is := range rec.Metadata.ChunkIssues {
		out[fmt.Sprintf("%s/%d", is.ArmID, is.Chunk)] = is.Kind
	}
	return out
}

// --- Merge ---

func TestMergeOrder(t *testing.T) {
	first := map[types.Field]string{"x": "1"}
	second := map[types.Field]string{"x": "2"}

	if got := Merge(types.MergeLaterWins, first, second)["x"]; got != "2" {
		t.Errorf("later-wins forward = %q, want 2", got)
	}
	if got := Merge(types.MergeLaterWins, second, first)["x"]; got != "1" {
		t.Errorf("later-wins reverse = %q, want 1", got)
	}
	if got := Merge(types.MergeEarlierWins, first, second)["x"]; got != "1" {
		t.Errorf("earlier-wins forward = %q, want 1", got)
	}
	if got := Merge(types.MergeOverwrite, first, second)["x"]; got != "2" {
		t.Errorf("overwrite forward = %q, want 2", got)
	}
}

func TestMergeOverwriteReplacesWithSentinel(t *testing.T) {
	got := Merge(types.MergeOverwrite,
		map[types.Field]string{"x": "5", "y": "NA", "z": "3"},
		map[types.Field]string{"x": "", "y": "9"},
		map[types.Field]string{"x": "NA"})
	want := map[types.Field]string{"x": "NA", "y": "9", "z": "3"}
	assert.Equal(t, want, got)
}

func TestMergeSentinels(t *testing.T) {
	tests := []struct {
		name     string
		partials []map[types.Field]string
		want     string
	}{
		{"empty never overrides", []map[types.Field]string{{"x": "5"}, {"x": ""}}, "5"},
		{"NA never overrides", []map[types.Field]string{{"x": "5"}, {"x": "NA"}}, "5"},
		{"value replaces sentinel", []map[types.Field]string{{"x": "NA"}, {"x": "7"}}, "7"},
		{"sentinel alone kept", []map[types.Field]string{{"x": "NA"}}, "NA"},
		{"NR is a value", []map[types.Field]string{{"x": "12"}, {"x": "NR"}}, "NR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(types.MergeLaterWins, tt.partials...)
			if got["x"] != tt.want {
				t.Errorf("Merge = %q, want %q", got["x"], tt.want)
			}
		})
	}
}

func TestArmObject(t *testing.T) {
	arm := &types.ArmDescriptor{ArmID: "A2", GenericName: "Drug Y"}
	tests := []struct {
		name string
		obj  map[string]any
		want any
	}{
		{"unwrapped", map[string]any{"k": "flat"}, "flat"},
		{"first element", map[string]any{"treatment_arms": []any{
			map[string]any{"k": "one"}, map[string]any{"k": "two"},
		}}, "one"},
		{"matching id", map[string]any{"treatment_arms": []any{
			map[string]any{"arm_id": "A1", "k": "one"}, map[string]any{"arm_id": "A2", "k": "two"},
		}}, "two"},
		{"matching name", map[string]any{"treatment_arms": []any{
			map[string]any{"generic_name": "Drug X", "k": "one"}, map[string]any{"generic_name": "drug y", "k": "two"},
		}}, "two"},
		{"empty list", map[string]any{"treatment_arms": []any{}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, armObject(tt.obj, arm)["k"])
		})
	}
}

func TestDistinctArms(t *testing.T) {
	arms := distinctArms([]types.ArmDescriptor{
		{ArmID: "A1", GenericName: "Drug X", NumberOfPatients: "50"},
		{ArmID: "A1", GenericName: "Drug Y", NumberOfPatients: "40"},
		{ArmID: "A3", GenericName: "Drug X", NumberOfPatients: "50"},
		{GenericName: "Drug Z"},
	})
	require.Len(t, arms, 3)
	assert.Equal(t, "A1", arms[0].ArmID)
	assert.Equal(t, "A2", arms[1].ArmID)
	assert.Equal(t, "A3", arms[2].ArmID)
	assert.Equal(t, "Drug Z", arms[2].GenericName)
}

// --- Extract ---

func TestExtractEndToEnd(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{
		"discovery":                             discoveryOneArm,
		"shared/Publication and trial metadata": `{"treatment_arms": [{"NCT Number": "NCT01234567", "Cancer Type": "uveal melanoma", "Clinical Trial Phase": "Phase 2", "Sponsors": "Acme Pharma"}]}`,
		"A1/Response and landmark rates":        "```json\n{\"treatment_arms\": [{\"arm_id\": \"A1\", \"Objective response rate (ORR)\": \"45 (60%)\",}]}\n```",
	}}
	ex := newTestExtractor(client)

	rec, err := ex.Extract(context.Background(), types.Document{ID: "paper1", Text: paperText})
	require.NoError(t, err)

	assert.Equal(t, "NCT01234567", rec.NCTNumber)
	require.Len(t, rec.Arms, 1)
	arm := rec.Arms[0]
	assert.Equal(t, "Drug X", arm.GenericName)
	assert.Equal(t, "50", arm.NumberOfPatients)
	assert.Equal(t, "60", arm.Value(orr))
	assert.Equal(t, "", arm.Value(medianOS))
	assert.Equal(t, "NA", arm.Value(anyAE))

	assert.Equal(t, "Uveal Melanoma", rec.CancerType())
	assert.Equal(t, "Stage II", rec.Phase())
	assert.Equal(t, "Industry-Sponsored", rec.SponsorClassification())
	assert.Equal(t, "No Name", rec.TrialName())
	assert.Equal(t, "paper1", rec.Shared[types.FieldPDFNumber])
	assert.Equal(t, "Uveal Melanoma", arm.Value(types.FieldCancerType), "shared values are copied into arms")

	md := rec.Metadata
	assert.Equal(t, 11, md.TotalLLMCalls)
	assert.Equal(t, 1, md.ArmsDiscovered)
	assert.Equal(t, 1, md.ArmsProcessed)
	assert.Equal(t, int64(11000), md.PromptTokens)
	assert.InDelta(t, 11*(0.00015+0.1*0.0006), md.TotalCost, 1e-9)
	assert.Equal(t, "test-model", md.Model)
	assert.NotEmpty(t, md.RunID)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), md.ExtractionDate)
	assert.Empty(t, md.Errors)
	assert.Equal(t, types.StatusValidated, md.Status)
	assert.Equal(t, md.TotalCost, ex.Usage().Cost)
}

func TestExtractCallOrder(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{"discovery": discoveryOneArm}}
	_, err := newTestExtractor(client).Extract(context.Background(), types.Document{ID: "p", Text: paperText})
	require.NoError(t, err)

	want := []string{
		"discovery",
		"shared/Publication and trial metadata",
		"shared/Trial logistics and guidelines",
		"A1/Patient demographics",
		"A1/Treatment details",
		"A1/Survival endpoints",
		"A1/Time-to-event endpoints",
		"A1/Response and landmark rates",
		"A1/Safety overview",
		"A1/Grade 3+ adverse events (AE class)",
		"A1/Grade 3+ adverse events (TRAE and TEAE classes)",
	}
	assert.Equal(t, want, client.routes)
}

func TestExtractFatalFailures(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		discovery string
		fail      error
		wantErr   error
		wantCalls int
	}{
		{
			name:      "missing NCT",
			text:      paperText,
			discovery: `{"treatment_arms": [{"arm_id": "A1", "generic_name": "Drug X", "number_of_patients": "50", "nct_number": "", "trial_name": "No Name"}]}`,
			wantErr:   ErrMissingNCT,
			wantCalls: 1,
		},
		{
			name:      "malformed NCT",
			text:      paperText,
			discovery: `{"treatment_arms": [{"arm_id": "A1", "generic_name": "Drug X", "nct_number": "NCT123"}]}`,
			wantErr:   ErrMissingNCT,
			wantCalls: 1,
		},
		{
			name:      "no arms",
			text:      paperText,
			discovery: `{"treatment_arms": []}`,
			wantErr:   ErrNoArms,
			wantCalls: 1,
		},
		{
			name:      "empty text",
			text:      "  \n ",
			discovery: discoveryOneArm,
			wantErr:   ErrEmptyText,
			wantCalls: 0,
		},
		{
			name:      "transport failure",
			text:      paperText,
			fail:      errors.New("503 Service Unavailable"),
			wantErr:   ErrDiscovery,
			wantCalls: 1,
		},
		{
			name:      "unparsable reply",
			text:      paperText,
			discovery: "Sorry, I could not find any arms.",
			wantErr:   ErrDiscovery,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{replies: map[string]string{"discovery": tt.discovery}}
			if tt.fail != nil {
				client.fail = func(string, string) error { return tt.fail }
			}
			rec, err := newTestExtractor(client).Extract(context.Background(), types.Document{ID: "p", Text: tt.text})

			assert.Nil(t, rec, "no partial record on failure")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, StateDiscovering, f.State)
			assert.Equal(t, "p", f.DocumentID)
			assert.Len(t, client.routes, tt.wantCalls)
		})
	}
}

func TestExtractChunkFailuresAreTolerated(t *testing.T) {
	client := &scriptedClient{
		replies: map[string]string{
			"discovery":                             discoveryOneArm,
			"shared/Trial logistics and guidelines": "I cannot find this information.",
			"A1/Time-to-event endpoints":            `{"note": "8.1 months"}`,
		},
		fail: func(route, _ string) error {
			if route == "A1/Survival endpoints" {
				return errors.New("400 Bad Request")
			}
			return nil
		},
	}
	rec, err := newTestExtractor(client).Extract(context.Background(), types.Document{ID: "p", Text: paperText})
	require.NoError(t, err)

	kinds := issueKinds(rec)
	assert.Equal(t, types.IssueTransport, kinds["A1/4"])
	assert.Equal(t, types.IssueUnparsable, kinds["/10"], "chunk 10 is shared")
	assert.Equal(t, types.IssueLowConfidence, kinds["A1/5"], "reply without marker")
	assert.Equal(t, "", rec.Arms[0].Value(medianOS), "fields of a failed chunk keep their sentinel")
	assert.Equal(t, 11, rec.Metadata.TotalLLMCalls)
}

func TestExtractSafetyClass(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{
		"discovery":                             discoveryOneArm,
		"A1/Safety overview":                    `{"treatment_arms": [{"safety_event_class": "treatment-related", "Adverse events (AE)": "80%", "Treatment-related adverse events (TRAE)": "45%", "Cytokine Release Syndrome or CRS": "<1%"}]}`,
		"A1/Grade 3+ adverse events (AE class)": `{"treatment_arms": [{"Grade 3+ or Grade 3 higher \"AE\" Neutropenia": "12"}]}`,
	}}
	rec, err := newTestExtractor(client).Extract(context.Background(), types.Document{ID: "p", Text: paperText})
	require.NoError(t, err)

	arm := rec.Arms[0]
	assert.Equal(t, types.ClassTRAE, arm.SafetyEventClass)
	assert.Equal(t, "TRAE", arm.Value(types.FieldSafetyClass))
	assert.Equal(t, "45", arm.Value(anyTRAE))
	assert.Equal(t, "1", arm.Value("Cytokine Release Syndrome or CRS"))
	assert.Equal(t, "NA", arm.Value(anyAE), "other classes are reset")
	assert.Equal(t, "NA", arm.Value(`Grade 3+ or Grade 3 higher "AE" Neutropenia`))

	assert.Contains(t, client.prompts["A1/Grade 3+ adverse events (TRAE and TEAE classes)"],
		"This arm's safety data is reported as TRAE")
	assert.NotContains(t, client.prompts["A1/Safety overview"], "This arm's safety data is reported as")
}

func TestExtractMergePolicy(t *testing.T) {
	replies := map[string]string{
		"discovery":                             discoveryOneArm,
		"shared/Publication and trial metadata": `{"treatment_arms": [{"Cancer Type": "Uveal Melanoma", "Clinical Trial Phase": "Stage II"}]}`,
		"shared/Trial logistics and guidelines": `{"treatment_arms": [{"Cancer Type": "Mucosal Melanoma", "Clinical Trial Phase": ""}]}`,
	}
	tests := []struct {
		policy    types.MergePolicy
		want      string
		wantPhase string
	}{
		{types.MergeLaterWins, "Mucosal Melanoma", "Stage II"},
		{types.MergeEarlierWins, "Uveal Melanoma", "Stage II"},
		{types.MergeOverwrite, "Mucosal Melanoma", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ex := newTestExtractor(&scriptedClient{replies: replies}, func(c *types.ExtractionConfig) {
				c.MergePolicy = tt.policy
			})
			rec, err := ex.Extract(context.Background(), types.Document{ID: "p", Text: paperText})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.CancerType())
			assert.Equal(t, tt.wantPhase, rec.Phase())
		})
	}
}

func TestExtractKeepsArmWhenEveryChunkFails(t *testing.T) {
	twoArms := `{"treatment_arms": [
		{"arm_id": "A1", "generic_name": "Drug X", "number_of_patients": "50", "nct_number": "NCT01234567", "trial_name": "No Name"},
		{"arm_id": "A2", "generic_name": "Drug Y", "number_of_patients": "48", "nct_number": "NCT01234567", "trial_name": "No Name"}
	]}`
	client := &scriptedClient{
		replies: map[string]string{
			"discovery":                      twoArms,
			"A1/Response and landmark rates": `{"treatment_arms": [{"Objective response rate (ORR)": "60%"}]}`,
		},
		fail: func(route, _ string) error {
			if strings.HasPrefix(route, "A2/") {
				return errors.New("500 Internal Server Error")
			}
			return nil
		},
	}
	rec, err := newTestExtractor(client).Extract(context.Background(), types.Document{ID: "p", Text: paperText})
	require.NoError(t, err)

	require.Len(t, rec.Arms, 2)
	assert.Equal(t, 2, rec.Metadata.ArmsProcessed)
	assert.NotContains(t, strings.Join(rec.Metadata.Warnings, "\n"), "discovered 2 arms")

	a2 := rec.Arms[1]
	assert.Equal(t, "A2", a2.ArmID)
	assert.Equal(t, "Drug Y", a2.Value(types.FieldGenericName))
	assert.Equal(t, "48", a2.Value(types.FieldNumberOfPatients))
	assert.Equal(t, "NCT01234567", a2.Value(types.FieldNCTNumber))
	assert.Equal(t, "", a2.Value(orr), "fields of failed chunks keep their sentinel")
	assert.Equal(t, "", a2.Value(medianOS))

	kinds := issueKinds(rec)
	assert.Equal(t, types.IssueTransport, kinds["A2/4"])
	assert.NotContains(t, kinds, "A1/4")
}

func TestExtractArmCount(t *testing.T) {
	// Discovery repeats Drug X, so one of three discovered arms is dropped.
	threeArms := `{"treatment_arms": [
		{"arm_id": "A1", "generic_name": "Drug X", "number_of_patients": "50", "nct_number": "NCT01234567", "trial_name": "No Name"},
		{"arm_id": "A2", "generic_name": "Drug Y", "number_of_patients": "48", "nct_number": "NCT01234567", "trial_name": "No Name"},
		{"arm_id": "A3", "generic_name": "DRUG X", "number_of_patients": "50", "nct_number": "NCT01234567", "trial_name": "No Name"}
	]}`

	t.Run("advisory", func(t *testing.T) {
		client := &scriptedClient{replies: map[string]string{"discovery": threeArms}}
		rec, err := newTestExtractor(client).Extract(context.Background(), types.Document{ID: "p", Text: paperText})
		require.NoError(t, err)
		assert.Len(t, rec.Arms, 2)
		assert.Equal(t, 3, rec.Metadata.ArmsDiscovered)
		assert.Equal(t, 2, rec.Metadata.ArmsProcessed)
		assert.Equal(t, types.StatusWarningsFound, rec.Metadata.Status)
		require.NotEmpty(t, rec.Metadata.Warnings)
		assert.Contains(t, strings.Join(rec.Metadata.Warnings, "\n"), "discovered 3 arms")
	})

	t.Run("strict", func(t *testing.T) {
		client := &scriptedClient{replies: map[string]string{"discovery": threeArms}}
		ex := newTestExtractor(client, func(c *types.ExtractionConfig) { c.StrictArmCount = true })
		rec, err := ex.Extract(context.Background(), types.Document{ID: "p", Text: paperText})
		assert.Nil(t, rec)
		assert.ErrorIs(t, err, ErrArmCount)
		var f *Failure
		require.True(t, errors.As(err, &f))
		assert.Equal(t, StateFinalizing, f.State)
	})
}

func TestExtractDropsDuplicateArms(t *testing.T) {
	dup := `{"treatment_arms": [
		{"arm_id": "A1", "generic_name": "Drug X", "number_of_patients": "50", "nct_number": "NCT01234567"},
		{"arm_id": "A2", "generic_name": "drug x", "number_of_patients": "50", "nct_number": "NCT01234567"}
	]}`
	client := &scriptedClient{replies: map[string]string{"discovery": dup}}
	rec, err := newTestExtractor(client).Extract(context.Background(), types.Document{ID: "p", Text: paperText})
	require.NoError(t, err)
	assert.Len(t, rec.Arms, 1)
	assert.Equal(t, 2, rec.Metadata.ArmsDiscovered)
	assert.Equal(t, 11, rec.Metadata.TotalLLMCalls)
}

type stubEnricher struct {
	warnings []string
	err      error
}

func (s stubEnricher) Enrich(_ context.Context, rec *types.PublicationRecord) ([]string, error) {
	if s.err == nil {
		rec.Shared[types.FieldStudyStart] = "2013-09-16"
	}
	return s.warnings, s.err
}

func TestExtractEnrichment(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{"discovery": discoveryOneArm}}
	ex := New(client, catalog.Default(), types.ExtractionConfig{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEnricher(stubEnricher{}))
	rec, err := ex.Extract(context.Background(), types.Document{ID: "p", Text: paperText})
	require.NoError(t, err)
	assert.Equal(t, "2013-09-16", rec.Shared[types.FieldStudyStart])

	ex = New(&scriptedClient{replies: map[string]string{"discovery": discoveryOneArm}}, catalog.Default(), types.ExtractionConfig{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEnricher(stubEnricher{err: errors.New("registry down")}))
	rec, err = ex.Extract(context.Background(), types.Document{ID: "p", Text: paperText})
	require.NoError(t, err, "enrichment failures are warnings")
	assert.Equal(t, types.StatusWarningsFound, rec.Metadata.Status)
	assert.Contains(t, strings.Join(rec.Metadata.Warnings, "\n"), "registry down")
}

func TestExtractCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{
		replies: map[string]string{"discovery": discoveryOneArm},
		fail: func(route, _ string) error {
			if route == "shared/Publication and trial metadata" {
				cancel()
				return context.Canceled
			}
			return nil
		},
	}
	rec, err := newTestExtractor(client).Extract(ctx, types.Document{ID: "p", Text: paperText})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, client.routes, 2)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StateExtractingShared, f.State)
}

func TestStateString(t *testing.T) {
	if got := StateExtractingArms.String(); got != "extracting arms" {
		t.Errorf("String() = %q", got)
	}
	f := &Failure{DocumentID: "p", State: StateDiscovering, Err: ErrMissingNCT}
	if !strings.Contains(f.Error(), "failed while discovering") {
		t.Errorf("Error() = %q", f.Error())
	}
}

// --- ExtractAll (batch processing) ---

type fileSource struct{}

func (fileSource) Document(_ context.Context, path string) (types.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, err
	}
	return types.Document{Path: path, Text: string(b)}, nil
}

type memorySink struct{ ids []string }

func (m *memorySink) Upsert(_ context.Context, rec *types.PublicationRecord) error {
	m.ids = append(m.ids, rec.DocumentID)
	return nil
}

func writeInputs(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func batchClient() *scriptedClient {
	return &scriptedClient{
		replies: map[string]string{"discovery": discoveryOneArm},
		fail: func(route, p string) error {
			if route == "discovery" && strings.Contains(p, "BROKEN") {
				return errors.New("400 Bad Request")
			}
			return nil
		},
	}
}

func TestExtractAll(t *testing.T) {
	tmp := t.TempDir()
	cfg := types.ExtractionConfig{
		InputDir:           filepath.Join(tmp, "input"),
		OutputDir:          filepath.Join(tmp, "output"),
		InterDocumentDelay: 3 * time.Second,
	}
	writeInputs(t, cfg.InputDir, map[string]string{
		"paper1.txt": paperText,
		"paper2.md":  paperText,
		"paper3.txt": "BROKEN " + paperText,
		"notes.csv":  "ignored",
	})

	ex := newTestExtractor(batchClient())
	sink := &memorySink{}
	pauses = nil

	var buf strings.Builder
	summary, err := ExtractAll(context.Background(), ex, fileSource{}, cfg, &buf, sink)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 3, summary.Total())
	assert.True(t, summary.HasFailures())
	assert.InDelta(t, ex.Usage().Cost, summary.Cost, 1e-9)
	assert.Equal(t, []string{"paper1", "paper2"}, sink.ids)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, pauses)

	out := buf.String()
	assert.Contains(t, out, "extracting paper1")
	assert.Contains(t, out, "extracted paper1 (1 arms")
	assert.Contains(t, out, "failed  paper3")

	rec, err := export.ReadFile(filepath.Join(cfg.OutputDir, "paper1.json"))
	require.NoError(t, err)
	assert.Equal(t, "NCT01234567", rec.NCTNumber)
	assert.Equal(t, "paper1", rec.DocumentID)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "paper3.json"))
}

func TestExtractAllSkipsUnchanged(t *testing.T) {
	tmp := t.TempDir()
	cfg := types.ExtractionConfig{
		InputDir:     filepath.Join(tmp, "input"),
		OutputDir:    filepath.Join(tmp, "output"),
		OutputFormat: export.FormatYAML,
	}
	writeInputs(t, cfg.InputDir, map[string]string{"paper1.txt": paperText})

	var buf strings.Builder
	first, err := ExtractAll(context.Background(), newTestExtractor(batchClient()), fileSource{}, cfg, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Extracted)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "paper1.yaml"))

	client := batchClient()
	second, err := ExtractAll(context.Background(), newTestExtractor(client), fileSource{}, cfg, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Extracted)
	assert.Empty(t, client.routes, "skipped documents make no calls")
	assert.Contains(t, buf.String(), "skipped paper1")
}

func TestExtractAllReextractsChanged(t *testing.T) {
	tmp := t.TempDir()
	cfg := types.ExtractionConfig{
		InputDir:  filepath.Join(tmp, "input"),
		OutputDir: filepath.Join(tmp, "output"),
	}
	writeInputs(t, cfg.InputDir, map[string]string{"paper1.txt": paperText})

	var buf strings.Builder
	_, err := ExtractAll(context.Background(), newTestExtractor(batchClient()), fileSource{}, cfg, &buf)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(cfg.InputDir, "paper1.txt"), future, future))

	summary, err := ExtractAll(context.Background(), newTestExtractor(batchClient()), fileSource{}, cfg, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Extracted)
}

func TestExtractAllMissingInput(t *testing.T) {
	tmp := t.TempDir()
	cfg := types.ExtractionConfig{InputDir: filepath.Join(tmp, "nope"), OutputDir: filepath.Join(tmp, "out")}
	_, err := ExtractAll(context.Background(), newTestExtractor(batchClient()), fileSource{}, cfg, io.Discard)
	assert.Error(t, err)
}

func TestBatchSummary(t *testing.T) {
	s := BatchSummary{Extracted: 3, Skipped: 2, Failed: 1}
	if s.Total() != 6 {
		t.Errorf("Total() = %d, want 6", s.Total())
	}
	if !s.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}
	if (BatchSummary{Extracted: 1}).HasFailures() {
		t.Error("HasFailures() = true for a clean batch")
	}
}
