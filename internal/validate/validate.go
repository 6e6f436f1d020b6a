// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate checks finished publication records and compares them
// against hand-curated reference records.
//
// Validation never changes field values. Every check runs on every record
// so one pass reports the complete problem list.
package validate

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation result.
type Finding struct {
	Severity Severity
	ArmID    string
	Field    types.Field
	Message  string
}

func (f Finding) String() string {
	switch {
	case f.ArmID != "" && f.Field != "":
		return fmt.Sprintf("arm %s: %s: %s", f.ArmID, f.Field, f.Message)
	case f.Field != "":
		return fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return f.Message
}

// Report collects the findings for one record.
type Report struct {
	Errors   []Finding
	Warnings []Finding
	// ArmCountMismatch is set when the processed arm count differs from the
	// discovered count.
	ArmCountMismatch bool
	Status           types.ValidationStatus
}

// ErrorStrings renders the errors for record metadata.
func (r Report) ErrorStrings() []string { return render(r.Errors) }

// WarningStrings renders the warnings for record metadata.
func (r Report) WarningStrings() []string { return render(r.Warnings) }

func render(fs []Finding) []string {
	if len(fs) == 0 {
		return nil
	}
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}

// Apply records the report on rec's metadata, replacing earlier results.
func (r Report) Apply(rec *types.PublicationRecord) {
	rec.Metadata.Errors = r.ErrorStrings()
	rec.Metadata.Warnings = r.WarningStrings()
	rec.Metadata.Status = r.Status
}

var nctRe = regexp.MustCompile(`^NCT\d{8}$`)

// enumFields are checked against their vocabularies. A value outside the
// vocabulary is an error; empty values are exempt.
var enumFields = []types.Field{
	types.FieldPhase,
	types.FieldCancerType,
	types.FieldLineOfTreatment,
}

// Validate checks rec against the catalog. It reads rec and never writes it.
func Validate(cat *catalog.Catalog, rec *types.PublicationRecord) Report {
	var r Report
	errorf := func(arm string, f types.Field, format string, args ...any) {
		r.Errors = append(r.Errors, Finding{SeverityError, arm, f, fmt.Sprintf(format, args...)})
	}
	warnf := func(arm string, f types.Field, format string, args ...any) {
		r.Warnings = append(r.Warnings, Finding{SeverityWarning, arm, f, fmt.Sprintf(format, args...)})
	}

	if !nctRe.MatchString(rec.NCTNumber) {
		errorf("", types.FieldNCTNumber, "%q is not NCT followed by 8 digits", rec.NCTNumber)
	}
	if len(rec.Arms) == 0 {
		errorf("", "", "record has no treatment arms")
	}

	checkValues(cat, "", rec.Shared, errorf, warnf)
	for _, arm := range rec.Arms {
		checkValues(cat, arm.ArmID, armOnly(cat, arm.Values), errorf, warnf)
	}

	if d := rec.Metadata.ArmsDiscovered; d > 0 && d != len(rec.Arms) {
		r.ArmCountMismatch = true
		warnf("", "", "discovered %d arms but the record has %d", d, len(rec.Arms))
	}

	switch {
	case len(r.Errors) > 0:
		r.Status = types.StatusErrorsFound
	case len(r.Warnings) > 0:
		r.Status = types.StatusWarningsFound
	default:
		r.Status = types.StatusValidated
	}
	return r
}

type reportFunc func(arm string, f types.Field, format string, args ...any)

func checkValues(cat *catalog.Catalog, arm string, values map[types.Field]string, errorf, warnf reportFunc) {
	for _, d := range cat.Fields() {
		v, ok := values[d.Name]
		if !ok {
			continue
		}

		if d.Type == types.TypePercentage && v != "" && v != types.NotReached && v != types.MissingSafety {
			if p, err := strconv.ParseFloat(v, 64); err == nil && (p < 0 || p > 100) {
				errorf(arm, d.Name, "percentage %s outside [0, 100]", v)
			}
		}

		if d.Category == types.CategorySafety && v == "" {
			warnf(arm, d.Name, `safety value is "" instead of %q`, types.MissingSafety)
		}
	}

	for _, f := range enumFields {
		v := values[f]
		if v == "" {
			continue
		}
		d, ok := cat.Descriptor(f)
		if !ok || d.Vocabulary == "" {
			continue
		}
		if !cat.InVocabulary(d.Vocabulary, v) {
			errorf(arm, f, "%q is not an allowed value", v)
		}
	}
}

// armOnly drops the shared fields copied into an arm so they are reported
// once, against the record.
func armOnly(cat *catalog.Catalog, values map[types.Field]string) map[types.Field]string {
	out := make(map[types.Field]string, len(values))
	for f, v := range values {
		if d, ok := cat.Descriptor(f); ok && d.Scope == types.ScopeShared {
			continue
		}
		out[f] = v
	}
	return out
}
