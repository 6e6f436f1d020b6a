// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/export"
	"github.com/pdiddy/trial-extractor/internal/httputil"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const keynoteStudy = `{
  "protocolSection": {
    "identificationModule": {
      "nctId": "NCT01866319",
      "briefTitle": "Study to Evaluate the Safety and Efficacy of Two Different Dosing Schedules of Pembrolizumab (KEYNOTE-006)",
      "acronym": "KEYNOTE-006"
    },
    "statusModule": {
      "startDateStruct": {"date": "2013-09"},
      "completionDateStruct": {"date": "2017-12-03", "type": "ACTUAL"}
    },
    "sponsorCollaboratorsModule": {
      "leadSponsor": {"name": "Merck Sharp & Dohme LLC", "class": "INDUSTRY"},
      "collaborators": [{"name": "Ono Pharmaceutical"}]
    },
    "designModule": {
      "phases": ["PHASE3"],
      "enrollmentInfo": {"count": 834, "type": "ACTUAL"}
    },
    "conditionsModule": {"conditions": ["Melanoma"]}
  }
}`

func newServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/studies/NCT01866319", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "trial-extractor-test", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func newClient(ts *httptest.Server) *Client {
	return New(types.RegistryConfig{
		BaseURL:    ts.URL + "/",
		MaxRetries: 2,
		HTTPConfig: types.HTTPConfig{UserAgent: "trial-extractor-test"},
	}, catalog.Default(), WithHTTPClient(ts.Client()))
}

func TestStudy(t *testing.T) {
	ts, _ := newServer(t, http.StatusOK, keynoteStudy)
	st, err := newClient(ts).Study(context.Background(), "NCT01866319")
	require.NoError(t, err)

	assert.Equal(t, "NCT01866319", st.NCTNumber)
	assert.Equal(t, "KEYNOTE-006", st.Acronym)
	assert.Equal(t, "2013-09", st.StartDate)
	assert.Equal(t, "2017-12-03", st.CompletionDate)
	assert.Equal(t, []string{"PHASE3"}, st.Phases)
	assert.Equal(t, "INDUSTRY", st.SponsorClass)
	assert.Equal(t, 834, st.Enrollment)
	assert.Equal(t, "Merck Sharp & Dohme LLC, Ono Pharmaceutical", st.Sponsors())
}

func TestStudyErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantIs    error
		wantMsg   string
		wantCalls int32
	}{
		{name: "not found", status: http.StatusNotFound, wantIs: ErrNotFound, wantCalls: 1},
		{name: "bad request", status: http.StatusBadRequest, wantMsg: "HTTP 400", wantCalls: 1},
		{name: "unavailable after retries", status: http.StatusServiceUnavailable, wantMsg: "HTTP 503", wantCalls: 3},
		{name: "malformed body", status: http.StatusOK, body: "{", wantMsg: "decoding registry study", wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, calls := newServer(t, tt.status, tt.body)
			_, err := newClient(ts).Study(context.Background(), "NCT01866319")
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(calls))
		})
	}
}

func TestPhaseStatement(t *testing.T) {
	tests := []struct {
		phases []string
		want   string
	}{
		{nil, ""},
		{[]string{"PHASE3"}, "Phase 3"},
		{[]string{"PHASE1", "PHASE2"}, "Phase 1/2"},
		{[]string{"EARLY_PHASE1"}, "Phase 1"},
		{[]string{"EARLY_PHASE1", "PHASE1"}, "Phase 1"},
		{[]string{"NA"}, "Not Applicable"},
	}
	for _, tt := range tests {
		st := &Study{Phases: tt.phases}
		if got := st.PhaseStatement(); got != tt.want {
			t.Errorf("PhaseStatement(%v) = %q, want %q", tt.phases, got, tt.want)
		}
	}
}

func sparseRecord() *types.PublicationRecord {
	return &types.PublicationRecord{
		DocumentID: "paper1",
		NCTNumber:  "NCT01866319",
		Shared: map[types.Field]string{
			types.FieldNCTNumber: "NCT01866319",
			types.FieldTrialName: "No Name",
		},
		Arms: []types.TreatmentArm{
			{ArmID: "A1", GenericName: "Pembrolizumab", NumberOfPatients: "556", Values: map[types.Field]string{}},
			{ArmID: "A2", GenericName: "Ipilimumab", NumberOfPatients: "278", Values: map[types.Field]string{}},
		},
	}
}

func TestEnrichFillsEmptyFields(t *testing.T) {
	ts, _ := newServer(t, http.StatusOK, keynoteStudy)
	rec := sparseRecord()

	warnings, err := newClient(ts).Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "2013-09-01", rec.Shared[types.FieldStudyStart])
	assert.Equal(t, "2017-12-03", rec.Shared[types.FieldStudyCompletion])
	assert.Equal(t, "Merck Sharp & Dohme LLC, Ono Pharmaceutical", rec.Shared[types.FieldSponsors])
	assert.Equal(t, "Stage III", rec.Shared[types.FieldPhase])
	assert.Equal(t, "Industry-Sponsored", rec.Shared[types.FieldSponsorType])
	assert.Equal(t, "Keynote-006", rec.Shared[types.FieldTrialName])
	for _, arm := range rec.Arms {
		assert.Equal(t, "Industry-Sponsored", arm.Value(types.FieldSponsorType))
		assert.Equal(t, "Keynote-006", arm.Value(types.FieldTrialName))
		assert.Equal(t, "2013-09-01", arm.Value(types.FieldStudyStart))
		assert.Equal(t, "Stage III", arm.Value(types.FieldPhase))
	}
}

func TestEnrichReachesArmRows(t *testing.T) {
	ts, _ := newServer(t, http.StatusOK, keynoteStudy)
	rec := sparseRecord()
	// Arms carry the pre-enrichment copies of the shared fields.
	for i := range rec.Arms {
		for _, f := range []types.Field{types.FieldStudyStart, types.FieldStudyCompletion, types.FieldSponsors, types.FieldPhase, types.FieldSponsorType} {
			rec.Arms[i].Values[f] = ""
		}
		rec.Arms[i].Values[types.FieldTrialName] = "No Name"
	}

	_, err := newClient(ts).Enrich(context.Background(), rec)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, catalog.Default(), []*types.PublicationRecord{rec}))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	col := make(map[string]int)
	for i, name := range rows[0] {
		col[name] = i
	}
	want := map[types.Field]string{
		types.FieldStudyStart:      "2013-09-01",
		types.FieldStudyCompletion: "2017-12-03",
		types.FieldSponsors:        "Merck Sharp & Dohme LLC, Ono Pharmaceutical",
		types.FieldPhase:           "Stage III",
		types.FieldSponsorType:     "Industry-Sponsored",
		types.FieldTrialName:       "Keynote-006",
	}
	for _, row := range rows[1:] {
		for f, v := range want {
			if got := row[col[string(f)]]; got != v {
				t.Errorf("arm %s column %q = %q, want %q", row[col["arm_id"]], f, got, v)
			}
		}
	}
}

func TestEnrichKeepsExtractedValues(t *testing.T) {
	ts, _ := newServer(t, http.StatusOK, keynoteStudy)
	rec := sparseRecord()
	rec.Shared[types.FieldStudyStart] = "2013-08-15"
	rec.Shared[types.FieldSponsors] = "Merck"
	rec.Shared[types.FieldPhase] = "Stage II"
	rec.Shared[types.FieldTrialName] = "Keynote-006"
	rec.Arms[0].NumberOfPatients = "900"

	warnings, err := newClient(ts).Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, "2013-08-15", rec.Shared[types.FieldStudyStart])
	assert.Equal(t, "Merck", rec.Shared[types.FieldSponsors])
	assert.Equal(t, "Stage II", rec.Shared[types.FieldPhase])
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], `registry lists "Stage III"`)
	assert.Contains(t, warnings[1], "arms total 1178 patients, registry enrollment is 834")
}

func TestEnrichNotFound(t *testing.T) {
	ts, _ := newServer(t, http.StatusNotFound, `{}`)
	rec := sparseRecord()
	_, err := newClient(ts).Enrich(context.Background(), rec)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, rec.Shared[types.FieldSponsors])
}

func TestDefaults(t *testing.T) {
	c := New(types.RegistryConfig{}, catalog.Default())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 5, c.maxRetries)
	assert.Equal(t, 30*time.Second, c.http.Timeout)
}
