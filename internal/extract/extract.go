// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract drives the per-document extraction state machine:
// discover the treatment arms, extract the publication-level fields once,
// extract every arm's fields chunk by chunk, then merge, validate and
// finalize one PublicationRecord.
//
// A document fails as a whole only when discovery fails. Chunk-level
// problems are recorded on the record's metadata and the run continues.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/llm"
	"github.com/pdiddy/trial-extractor/internal/normalize"
	"github.com/pdiddy/trial-extractor/internal/prompt"
	"github.com/pdiddy/trial-extractor/internal/recovery"
	"github.com/pdiddy/trial-extractor/internal/validate"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// Errors that fail a whole document.
var (
	ErrEmptyText  = errors.New("document has no text")
	ErrDiscovery  = errors.New("arm discovery failed")
	ErrNoArms     = errors.New("no treatment arms discovered")
	ErrMissingNCT = errors.New("discovery reported no NCT number")
	ErrArmCount   = errors.New("processed arm count differs from discovered count")
)

// State is a step of the per-document state machine.
type State int

const (
	StateDiscovering State = iota
	StateExtractingShared
	StateExtractingArms
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "discovering"
	case StateExtractingShared:
		return "extracting shared fields"
	case StateExtractingArms:
		return "extracting arms"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Failure is returned when a document cannot produce a record.
type Failure struct {
	DocumentID string
	State      State
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: failed while %s: %v", f.DocumentID, f.State, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Enricher adds registry data to a finished record. The returned strings
// are warnings to attach to the record.
type Enricher interface {
	Enrich(ctx context.Context, rec *types.PublicationRecord) ([]string, error)
}

// Extractor turns document text into PublicationRecords. One Extractor may
// serve many documents; its cost accumulator spans all of them.
type Extractor struct {
	client   llm.Client
	cat      *catalog.Catalog
	norm     *normalize.Normalizer
	prompts  *prompt.Builder
	cfg      types.ExtractionConfig
	usage    *llm.Accumulator
	enricher Enricher
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger for chunk-level diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithEnricher attaches registry enrichment to the finalizing step.
func WithEnricher(en Enricher) Option {
	return func(e *Extractor) { e.enricher = en }
}

// WithAccumulator shares a cost accumulator across extractors.
func WithAccumulator(a *llm.Accumulator) Option {
	return func(e *Extractor) { e.usage = a }
}

// WithClock replaces time.Now for extraction dates.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New returns an Extractor that sends prompts to client.
func New(client llm.Client, cat *catalog.Catalog, cfg types.ExtractionConfig, opts ...Option) *Extractor {
	cfg.Defaults()
	e := &Extractor{
		client:  client,
		cat:     cat,
		norm:    normalize.New(cat),
		prompts: prompt.New(cat, cfg.MaxDocumentChars),
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.usage == nil {
		e.usage = llm.NewAccumulator(llm.Pricing{
			PromptPer1K:     cfg.PromptPricePer1K,
			CompletionPer1K: cfg.CompletionPricePer1K,
		})
	}
	return e
}

// Usage returns the usage accumulated over every document so far.
func (e *Extractor) Usage() llm.Totals {
	return e.usage.Totals()
}

// run carries the state of one document's extraction.
type run struct {
	e      *Extractor
	doc    types.Document
	logger *slog.Logger
	state  State

	calls  int
	tokens llm.Usage
	cost   float64
	issues []types.ChunkIssue

	discovered int
	arms       []types.ArmDescriptor
	nct        string
	shared     map[types.Field]string
	out        []types.TreatmentArm
}

// Extract runs the state machine over one document.
func (e *Extractor) Extract(ctx context.Context, doc types.Document) (*types.PublicationRecord, error) {
	r := &run{
		e:      e,
		doc:    doc,
		logger: e.logger.With("doc", doc.ID),
		state:  StateDiscovering,
	}

	for {
		var err error
		switch r.state {
		case StateDiscovering:
			err = r.discover(ctx)
		case StateExtractingShared:
			err = r.extractShared(ctx)
		case StateExtractingArms:
			err = r.extractArms(ctx)
		case StateFinalizing:
			var rec *types.PublicationRecord
			rec, err = r.finalize(ctx)
			if err == nil {
				r.state = StateDone
				return rec, nil
			}
		}
		if err != nil {
			r.logger.Error("extraction failed", "state", r.state.String(), "err", err)
			f := &Failure{DocumentID: doc.ID, State: r.state, Err: err}
			r.state = StateFailed
			return nil, f
		}
	}
}

var nctFormat = regexp.MustCompile(`^NCT\d{8}$`)

func (r *run) discover(ctx context.Context) error {
	if strings.TrimSpace(r.doc.Text) == "" {
		return ErrEmptyText
	}
	p, err := r.e.prompts.Discovery(r.doc)
	if err != nil {
		return err
	}
	res, err := r.complete(ctx, p, prompt.MarkerKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	if !res.MarkerFound {
		return fmt.Errorf("%w: reply has no %s", ErrDiscovery, prompt.MarkerKey)
	}
	if res.LowConfidence() {
		r.issue(prompt.DiscoveryChunk, "", types.IssueLowConfidence, "recovered by "+string(res.Step))
	}

	list, _ := res.Object[prompt.MarkerKey].([]any)
	arms := make([]types.ArmDescriptor, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		arms = append(arms, r.descriptor(m))
	}
	if len(arms) == 0 {
		return ErrNoArms
	}

	for _, a := range arms {
		if a.NCTNumber != "" {
			r.nct = a.NCTNumber
			break
		}
	}
	if !nctFormat.MatchString(r.nct) {
		return ErrMissingNCT
	}

	r.discovered = len(arms)
	r.arms = distinctArms(arms)
	if n := len(r.arms); n != r.discovered {
		r.logger.Warn("duplicate arms dropped", "discovered", r.discovered, "kept", n)
	}
	r.logger.Info("arms discovered", "count", len(r.arms), "nct", r.nct)
	r.state = StateExtractingShared
	return nil
}

// descriptor decodes one discovered arm.
func (r *run) descriptor(m map[string]any) types.ArmDescriptor {
	str := func(k string) string {
		s, _ := normalize.Scalar(m[k])
		return strings.TrimSpace(s)
	}
	patients := normalize.ExtractNumeric(str("number_of_patients"))
	if n, err := strconv.Atoi(patients); err != nil || n <= 0 {
		patients = ""
	}
	return types.ArmDescriptor{
		ArmID:            str("arm_id"),
		GenericName:      normalize.GenericName(str("generic_name")),
		NumberOfPatients: patients,
		NCTNumber:        normalize.NCTNumber(str("nct_number")),
		TrialName:        str("trial_name"),
	}
}

// distinctArms drops arms repeating an earlier arm's drug and patient
// count, and gives every kept arm a unique identifier.
func distinctArms(arms []types.ArmDescriptor) []types.ArmDescriptor {
	seen := make(map[string]bool)
	ids := make(map[string]bool)
	var out []types.ArmDescriptor
	for _, a := range arms {
		key := strings.ToLower(a.GenericName) + "|" + a.NumberOfPatients
		if a.GenericName != "" && seen[key] {
			continue
		}
		seen[key] = true
		if a.ArmID == "" || ids[a.ArmID] {
			a.ArmID = "A" + strconv.Itoa(len(out)+1)
		}
		ids[a.ArmID] = true
		out = append(out, a)
	}
	return out
}

func (r *run) extractShared(ctx context.Context) error {
	var partials []map[types.Field]string
	for _, ch := range r.e.cat.ChunksIn(types.ScopeShared) {
		values, ok := r.chunk(ctx, ch, nil)
		if ok {
			partials = append(partials, values)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.shared = Merge(r.e.cfg.MergePolicy, partials...)
	fillMissing(r.e.cat, r.shared, types.ScopeShared)
	r.state = StateExtractingArms
	return nil
}

func (r *run) extractArms(ctx context.Context) error {
	chunks := r.e.cat.ChunksIn(types.ScopeArmSpecific)
	for i := range r.arms {
		arm := r.arms[i]
		r.logger.Info("extracting arm", "arm", arm.ArmID, "drug", arm.GenericName)

		var partials []map[types.Field]string
		for _, ch := range chunks {
			values, ok := r.chunk(ctx, ch, &arm)
			if !ok {
				continue
			}
			if ch.Safety {
				if c := eventClass(values); c != "" && arm.SafetyEventClass == "" {
					arm.SafetyEventClass = c
				}
			}
			partials = append(partials, values)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(partials) == 0 {
			r.logger.Warn("no chunk succeeded, arm keeps missing values", "arm", arm.ArmID)
		}
		r.out = append(r.out, r.assemble(arm, partials))
	}
	r.state = StateFinalizing
	return nil
}

// assemble merges an arm's values: the shared fields, then the arm's chunk
// results in chunk order, then the identity established by discovery.
func (r *run) assemble(arm types.ArmDescriptor, partials []map[types.Field]string) types.TreatmentArm {
	values := maps.Clone(r.shared)
	for _, p := range partials {
		mergeInto(values, p, r.e.cfg.MergePolicy)
	}
	fillMissing(r.e.cat, values, types.ScopeArmSpecific)

	if arm.GenericName != "" {
		values[types.FieldGenericName] = arm.GenericName
	}
	if arm.NumberOfPatients != "" {
		values[types.FieldNumberOfPatients] = arm.NumberOfPatients
	}
	if values[types.FieldTherapyType] == "" {
		values[types.FieldTherapyType] = normalize.TherapyType(values[types.FieldGenericName])
	}
	applySafetyClass(r.e.cat, values, arm.SafetyEventClass)

	return types.TreatmentArm{
		ArmID:            arm.ArmID,
		GenericName:      values[types.FieldGenericName],
		NumberOfPatients: values[types.FieldNumberOfPatients],
		SafetyEventClass: arm.SafetyEventClass,
		Values:           values,
	}
}

// chunk runs one field chunk. Failures are recorded as issues and reported
// through ok=false; they never abort the document.
func (r *run) chunk(ctx context.Context, ch catalog.Chunk, arm *types.ArmDescriptor) (map[types.Field]string, bool) {
	armID := ""
	if arm != nil {
		armID = arm.ArmID
	}
	if ctx.Err() != nil {
		return nil, false
	}

	p, err := r.e.prompts.Build(r.doc, ch.ID, arm)
	if err != nil {
		r.issue(ch.ID, armID, types.IssueUnparsable, err.Error())
		return nil, false
	}

	markers := []string{prompt.MarkerKey}
	for _, f := range ch.Asked() {
		markers = append(markers, string(f))
	}
	res, err := r.complete(ctx, p, markers...)
	if err != nil {
		var pe *recovery.ParseError
		kind := types.IssueTransport
		if errors.As(err, &pe) {
			kind = types.IssueUnparsable
		}
		r.issue(ch.ID, armID, kind, err.Error())
		return nil, false
	}
	if res.LowConfidence() {
		r.issue(ch.ID, armID, types.IssueLowConfidence, "recovered by "+string(res.Step))
	}

	obj := withoutArmKeys(armObject(res.Object, arm))
	values, notes := r.e.norm.Object(obj)
	for _, n := range notes {
		r.logger.Debug("chunk note", "chunk", ch.ID, "arm", armID, "note", n)
	}

	return values, true
}

// fillMissing gives every catalog field of scope a value, so fields of
// failed chunks keep their missing sentinel.
func fillMissing(cat *catalog.Catalog, values map[types.Field]string, scope types.Scope) {
	for _, d := range cat.FieldsIn(scope) {
		if _, ok := values[d.Name]; !ok {
			values[d.Name] = d.MissingValue()
		}
	}
}

// complete sends one prompt and recovers its JSON object.
func (r *run) complete(ctx context.Context, p string, markers ...string) (recovery.Result, error) {
	r.calls++
	resp, err := r.e.client.Complete(ctx, p)
	if err != nil {
		return recovery.Result{}, err
	}
	r.tokens.PromptTokens += resp.Usage.PromptTokens
	r.tokens.CompletionTokens += resp.Usage.CompletionTokens
	r.cost += r.e.usage.Add(resp.Usage)
	return recovery.Parse(resp.Text, markers...)
}

func (r *run) issue(chunk int, armID string, kind types.ChunkIssueKind, msg string) {
	r.logger.Warn("chunk issue", "chunk", chunk, "arm", armID, "kind", string(kind), "msg", msg)
	r.issues = append(r.issues, types.ChunkIssue{Chunk: chunk, ArmID: armID, Kind: kind, Message: msg})
}

func (r *run) finalize(ctx context.Context) (*types.PublicationRecord, error) {
	shared := r.shared
	if got := shared[types.FieldNCTNumber]; got != "" && got != r.nct {
		r.logger.Warn("shared NCT differs from discovery", "shared", got, "discovery", r.nct)
	}
	shared[types.FieldNCTNumber] = r.nct

	if tn := shared[types.FieldTrialName]; tn == "" || tn == normalize.NoTrialName {
		shared[types.FieldTrialName] = normalize.TrialName(r.arms[0].TrialName, r.doc.Text)
	}
	if shared[types.FieldSponsorType] == "" && shared[types.FieldSponsors] != "" {
		shared[types.FieldSponsorType] = normalize.SponsorType(shared[types.FieldSponsors])
	}
	if shared[types.FieldPDFNumber] == "" {
		shared[types.FieldPDFNumber] = r.doc.ID
	}
	for i := range r.out {
		for _, f := range []types.Field{types.FieldNCTNumber, types.FieldTrialName, types.FieldSponsorType, types.FieldPDFNumber} {
			r.out[i].Values[f] = shared[f]
		}
	}

	rec := &types.PublicationRecord{
		DocumentID: r.doc.ID,
		NCTNumber:  r.nct,
		Shared:     shared,
		Arms:       r.out,
		Metadata: types.Metadata{
			RunID:            uuid.NewString(),
			ArmsDiscovered:   r.discovered,
			ArmsProcessed:    len(r.out),
			TotalLLMCalls:    r.calls,
			PromptTokens:     r.tokens.PromptTokens,
			CompletionTokens: r.tokens.CompletionTokens,
			TotalCost:        r.cost,
			ExtractionDate:   r.e.now().UTC(),
			Model:            r.e.cfg.Model,
			ChunkIssues:      r.issues,
		},
	}

	var extraWarnings []string
	if r.e.enricher != nil {
		warnings, err := r.e.enricher.Enrich(ctx, rec)
		if err != nil {
			r.logger.Warn("registry enrichment failed", "err", err)
			extraWarnings = append(extraWarnings, "registry enrichment failed: "+err.Error())
		}
		extraWarnings = append(extraWarnings, warnings...)
	}

	report := validate.Validate(r.e.cat, rec)
	if report.ArmCountMismatch && r.e.cfg.StrictArmCount {
		return nil, fmt.Errorf("%w: discovered %d, processed %d", ErrArmCount, r.discovered, len(r.out))
	}
	report.Apply(rec)
	rec.Metadata.Warnings = append(rec.Metadata.Warnings, extraWarnings...)
	if len(extraWarnings) > 0 && rec.Metadata.Status == types.StatusValidated {
		rec.Metadata.Status = types.StatusWarningsFound
	}

	r.logger.Info("document extracted",
		"arms", len(rec.Arms),
		"calls", r.calls,
		"cost", fmt.Sprintf("%.4f", r.cost),
		"status", string(rec.Metadata.Status))
	return rec, nil
}
