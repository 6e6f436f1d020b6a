// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package validate

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/normalize"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// Tolerances bound numeric differences that still count as a match.
type Tolerances struct {
	Percentage float64 `json:"percentage" yaml:"percentage"`
	Months     float64 `json:"months" yaml:"months"`
}

// DefaultTolerances allows half a percentage point and a tenth of a month.
var DefaultTolerances = Tolerances{Percentage: 0.5, Months: 0.1}

// Mismatch is one field that disagrees with the reference.
type Mismatch struct {
	ArmID     string      `json:"arm_id,omitempty" yaml:"arm_id,omitempty"`
	Field     types.Field `json:"field" yaml:"field"`
	Extracted string      `json:"extracted" yaml:"extracted"`
	Reference string      `json:"reference" yaml:"reference"`
}

// QCReport summarizes a comparison against a reference record.
type QCReport struct {
	NCTNumber   string     `json:"nct_number" yaml:"nct_number"`
	Compared    int        `json:"compared" yaml:"compared"`
	Matched     int        `json:"matched" yaml:"matched"`
	Mismatches  []Mismatch `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
	MissingArms []string   `json:"missing_arms,omitempty" yaml:"missing_arms,omitempty"`
}

// Accuracy is the share of compared fields that matched, or 0 when nothing
// was compared.
func (q QCReport) Accuracy() float64 {
	if q.Compared == 0 {
		return 0
	}
	return float64(q.Matched) / float64(q.Compared)
}

// Compare checks every value the reference reports against the extracted
// record. Reference values that are missing sentinels are not compared.
// Arms are paired by generic name, ignoring case.
func Compare(cat *catalog.Catalog, extracted, reference *types.PublicationRecord, tol Tolerances) QCReport {
	q := QCReport{NCTNumber: reference.NCTNumber}

	compareValues(cat, &q, "", extracted.Shared, reference.Shared, tol)

	byName := make(map[string]types.TreatmentArm, len(extracted.Arms))
	for _, a := range extracted.Arms {
		byName[strings.ToLower(a.GenericName)] = a
	}
	for _, ref := range reference.Arms {
		got, ok := byName[strings.ToLower(ref.GenericName)]
		if !ok {
			q.MissingArms = append(q.MissingArms, ref.GenericName)
			continue
		}
		compareValues(cat, &q, got.ArmID, got.Values, armOnly(cat, ref.Values), tol)
	}
	return q
}

func compareValues(cat *catalog.Catalog, q *QCReport, arm string, got, want map[types.Field]string, tol Tolerances) {
	fields := make([]types.Field, 0, len(want))
	for f := range want {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	for _, f := range fields {
		ref := want[f]
		if normalize.IsMissing(ref) {
			continue
		}
		q.Compared++
		v := got[f]
		if equivalent(cat, f, v, ref, tol) {
			q.Matched++
			continue
		}
		q.Mismatches = append(q.Mismatches, Mismatch{ArmID: arm, Field: f, Extracted: v, Reference: ref})
	}
}

func equivalent(cat *catalog.Catalog, f types.Field, got, want string, tol Tolerances) bool {
	if strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
		return true
	}
	d, ok := cat.Descriptor(f)
	if !ok {
		return false
	}
	var limit float64
	switch d.Type {
	case types.TypePercentage:
		limit = tol.Percentage
	case types.TypeDurationMonths:
		limit = tol.Months
	case types.TypeNumeric:
	default:
		return false
	}
	a, errA := strconv.ParseFloat(got, 64)
	b, errB := strconv.ParseFloat(want, 64)
	if errA != nil || errB != nil {
		return false
	}
	return math.Abs(a-b) <= limit+1e-9
}
