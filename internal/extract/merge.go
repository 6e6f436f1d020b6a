// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"maps"
	"strings"

	"github.com/pdiddy/trial-extractor/internal/catalog"
	"github.com/pdiddy/trial-extractor/internal/normalize"
	"github.com/pdiddy/trial-extractor/internal/prompt"
	"github.com/pdiddy/trial-extractor/pkg/types"
)

// Merge folds partial results into one map, visiting them in order. Under
// later-wins and earlier-wins a missing sentinel never replaces a reported
// value and the policy picks the survivor of two reported values. Under
// overwrite every key of a later partial replaces the earlier one.
func Merge(policy types.MergePolicy, partials ...map[types.Field]string) map[types.Field]string {
	out := make(map[types.Field]string)
	for _, p := range partials {
		mergeInto(out, p, policy)
	}
	return out
}

func mergeInto(dst, src map[types.Field]string, policy types.MergePolicy) {
	if policy == types.MergeOverwrite {
		maps.Copy(dst, src)
		return
	}
	for f, v := range src {
		cur, ok := dst[f]
		switch {
		case !ok:
			dst[f] = v
		case normalize.IsMissing(v):
			// Keep whatever is there; refresh the sentinel only.
			if normalize.IsMissing(cur) {
				dst[f] = v
			}
		case normalize.IsMissing(cur):
			dst[f] = v
		case policy == types.MergeEarlierWins:
		default:
			dst[f] = v
		}
	}
}

// armObject returns the field object inside a chunk reply. Replies are
// wrapped as {"treatment_arms": [{...}]}; when several arms come back the
// one matching arm wins, otherwise the first. Unwrapped replies are used
// as they are.
func armObject(obj map[string]any, arm *types.ArmDescriptor) map[string]any {
	raw, ok := obj[prompt.MarkerKey]
	if !ok {
		return obj
	}
	list, ok := raw.([]any)
	if !ok {
		if m, ok := raw.(map[string]any); ok {
			return m
		}
		return map[string]any{}
	}

	var first map[string]any
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if first == nil {
			first = m
		}
		if arm != nil && matchesArm(m, arm) {
			return m
		}
	}
	if first == nil {
		return map[string]any{}
	}
	return first
}

func matchesArm(m map[string]any, arm *types.ArmDescriptor) bool {
	if id, _ := normalize.Scalar(m["arm_id"]); id != "" && id == arm.ArmID {
		return true
	}
	for _, k := range []string{"generic_name", string(types.FieldGenericName)} {
		if name, _ := normalize.Scalar(m[k]); name != "" && strings.EqualFold(name, arm.GenericName) {
			return true
		}
	}
	return false
}

// withoutArmKeys drops the identity keys models echo back inside an arm
// object so they are not reported as unknown fields.
func withoutArmKeys(m map[string]any) map[string]any {
	out := maps.Clone(m)
	for _, k := range []string{"arm_id", "generic_name", "number_of_patients", "nct_number", "trial_name"} {
		delete(out, k)
	}
	return out
}

// applySafetyClass resets the fields of the two classes the arm does not
// report to the safety sentinel.
func applySafetyClass(cat *catalog.Catalog, values map[types.Field]string, class types.EventClass) {
	if class == "" {
		return
	}
	for _, other := range []types.EventClass{types.ClassAE, types.ClassTEAE, types.ClassTRAE} {
		if other == class {
			continue
		}
		for _, f := range cat.ClassFields(other) {
			values[f] = types.MissingSafety
		}
	}
}

// eventClass reads the class recorded by the safety header chunk.
func eventClass(values map[types.Field]string) types.EventClass {
	switch c := types.EventClass(values[types.FieldSafetyClass]); c {
	case types.ClassAE, types.ClassTEAE, types.ClassTRAE:
		return c
	}
	return ""
}
