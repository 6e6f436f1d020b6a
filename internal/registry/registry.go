// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry looks trials up in the ClinicalTrials.gov v2 API and
// fills registry-backed fields the publication left empty.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/httputil"
	"github.com/pdiddy/trial-extractor/internal/normalize"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// DefaultBaseURL is the ClinicalTrials.gov API root.
const DefaultBaseURL = "https://clinicaltrials.gov/api/v2"

// ErrNotFound is returned when the registry has no study for an NCT number.
var ErrNotFound = errors.New("study not found in registry")

// Study is the subset of a registry record used for enrichment.
type Study struct {
	NCTNumber      string
	Title          string
	Acronym        string
	StartDate      string
	CompletionDate string
	Phases         []string
	LeadSponsor    string
	SponsorClass   string
	Collaborators  []string
	Enrollment     int
	Conditions     []string
}

// Sponsors returns the lead sponsor followed by collaborators.
func (s *Study) Sponsors() string {
	var names []string
	if s.LeadSponsor != "" {
		names = append(names, s.LeadSponsor)
	}
	names = append(names, s.Collaborators...)
	return strings.Join(names, ", ")
}

// PhaseStatement renders registry phase codes (PHASE1, PHASE2, EARLY_PHASE1,
// NA) as a phrase the normalizer understands, e.g. "Phase 1/2".
func (s *Study) PhaseStatement() string {
	var nums []string
	for _, p := range s.Phases {
		switch p {
		case "NA":
			return "Not Applicable"
		case "EARLY_PHASE1":
			p = "PHASE1"
		}
		if n := strings.TrimPrefix(p, "PHASE"); n != p && n != "" {
			if len(nums) == 0 || nums[len(nums)-1] != n {
				nums = append(nums, n)
			}
		}
	}
	if len(nums) == 0 {
		return ""
	}
	return "Phase " + strings.Join(nums, "/")
}

// studyResponse mirrors the JSON of GET /studies/{nct}.
type studyResponse struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
			Acronym    string `json:"acronym"`
		} `json:"identificationModule"`
		StatusModule struct {
			StartDateStruct      dateStruct `json:"startDateStruct"`
			CompletionDateStruct dateStruct `json:"completionDateStruct"`
		} `json:"statusModule"`
		SponsorCollaboratorsModule struct {
			LeadSponsor struct {
				Name  string `json:"name"`
				Class string `json:"class"`
			} `json:"leadSponsor"`
			Collaborators []struct {
				Name string `json:"name"`
			} `json:"collaborators"`
		} `json:"sponsorCollaboratorsModule"`
		DesignModule struct {
			Phases         []string `json:"phases"`
			EnrollmentInfo struct {
				Count int `json:"count"`
			} `json:"enrollmentInfo"`
		} `json:"designModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
	} `json:"protocolSection"`
}

type dateStruct struct {
	Date string `json:"date"`
}

// Client queries the registry.
type Client struct {
	http       *http.Client
	baseURL    string
	userAgent  string
	maxRetries int
	cat        *catalog.Catalog
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a registry client. Zero config values fall back to defaults.
func New(cfg types.RegistryConfig, cat *catalog.Catalog, opts ...Option) *Client {
	cfg.Defaults()
	c := &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		cat:        cat,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Study fetches one study by NCT number.
func (c *Client) Study(ctx context.Context, nct string) (*Study, error) {
	u := c.baseURL + "/studies/" + url.PathEscape(nct) + "?format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("querying registry for %s: %w", nct, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nct)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("querying registry for %s: HTTP %d", nct, resp.StatusCode)
	}

	var sr studyResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding registry study %s: %w", nct, err)
	}

	p := sr.ProtocolSection
	st := &Study{
		NCTNumber:      p.IdentificationModule.NCTID,
		Title:          p.IdentificationModule.BriefTitle,
		Acronym:        p.IdentificationModule.Acronym,
		StartDate:      p.StatusModule.StartDateStruct.Date,
		CompletionDate: p.StatusModule.CompletionDateStruct.Date,
		Phases:         p.DesignModule.Phases,
		LeadSponsor:    p.SponsorCollaboratorsModule.LeadSponsor.Name,
		SponsorClass:   p.SponsorCollaboratorsModule.LeadSponsor.Class,
		Enrollment:     p.DesignModule.EnrollmentInfo.Count,
		Conditions:     p.ConditionsModule.Conditions,
	}
	for _, col := range p.SponsorCollaboratorsModule.Collaborators {
		if col.Name != "" {
			st.Collaborators = append(st.Collaborators, col.Name)
		}
	}
	return st, nil
}

// Enrich fills empty registry-backed shared fields of rec, copies every
// filled field into the arms, and returns warnings for values that disagree
// with the registry. Extracted values are never overwritten.
func (c *Client) Enrich(ctx context.Context, rec *types.PublicationRecord) ([]string, error) {
	start := time.Now()
	st, err := c.Study(ctx, rec.NCTNumber)
	if err != nil {
		return nil, err
	}
	if rec.Shared == nil {
		rec.Shared = map[types.Field]string{}
	}

	var filled []types.Field
	fill := func(f types.Field, v string) {
		if v == "" || rec.Shared[f] != "" {
			return
		}
		rec.Shared[f] = v
		filled = append(filled, f)
	}

	fill(types.FieldStudyStart, normalize.Date(st.StartDate))
	fill(types.FieldStudyCompletion, normalize.Date(st.CompletionDate))
	fill(types.FieldSponsors, st.Sponsors())

	var warnings []string
	phase := normalize.Stage(st.PhaseStatement(), c.cat.Vocabulary("clinical_trial_phase"))
	switch got := rec.Shared[types.FieldPhase]; {
	case phase == "":
	case got == "":
		fill(types.FieldPhase, phase)
	case got != phase:
		warnings = append(warnings, fmt.Sprintf("%s: extracted %q, registry lists %q", types.FieldPhase, got, phase))
	}

	if rec.Shared[types.FieldSponsorType] == "" && rec.Shared[types.FieldSponsors] != "" {
		fill(types.FieldSponsorType, normalize.SponsorType(rec.Shared[types.FieldSponsors]))
	}
	if tn := rec.Shared[types.FieldTrialName]; tn == "" || tn == normalize.NoTrialName {
		if named := normalize.TrialName(st.Acronym, st.Title); named != normalize.NoTrialName {
			rec.Shared[types.FieldTrialName] = named
			filled = append(filled, types.FieldTrialName)
		}
	}
	for i := range rec.Arms {
		if rec.Arms[i].Values == nil {
			rec.Arms[i].Values = make(map[types.Field]string, len(filled))
		}
		for _, f := range filled {
			rec.Arms[i].Values[f] = rec.Shared[f]
		}
	}

	if w := enrollmentWarning(rec, st.Enrollment); w != "" {
		warnings = append(warnings, w)
	}

	c.logger.Debug("registry enrichment",
		"nct", rec.NCTNumber, "filled", filled,
		"warnings", len(warnings), "elapsed", time.Since(start))
	return warnings, nil
}

// enrollmentWarning compares the arms' patient total with registry
// enrollment. Arms without a numeric count are left out of the total.
func enrollmentWarning(rec *types.PublicationRecord, enrollment int) string {
	if enrollment <= 0 {
		return ""
	}
	total := 0
	for _, a := range rec.Arms {
		n, err := strconv.Atoi(a.NumberOfPatients)
		if err != nil {
			continue
		}
		total += n
	}
	if total > enrollment {
		return fmt.Sprintf("%s: arms total %d patients, registry enrollment is %d",
			types.FieldNumberOfPatients, total, enrollment)
	}
	return ""
}
