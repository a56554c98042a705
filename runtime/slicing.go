package runtime

import (
	"fmt"

	fhirschema "github.com/fhirschema/compiler"
	"github.com/fhirschema/compiler/compiler"
	"github.com/fhirschema/compiler/dynjson"
	"github.com/fhirschema/compiler/hierarchy"
)

// evalSlicing partitions the array named by ref.Slicing.Field into named
// slices, validating each matched element against its slice schema and
// enforcing per-slice minimums and closed-rules exhaustiveness.
func (ec *evalCtx) evalSlicing(ref compiler.Refinement, value dynjson.Value, path string, emit emitFunc) bool {
	s := ref.Slicing
	if value.Kind() != dynjson.KindObject {
		return true
	}
	arrVal, present := value.Field(s.Field)
	if !present {
		return true
	}
	items, ok := arrVal.Array()
	if !ok {
		return true
	}

	matchedCount := make([]int, len(s.Slices))
	ok2 := true

	for i, item := range items {
		itemPath := fmt.Sprintf("%s.%s[%d]", path, s.Field, i)
		sliceIdx := matchSlice(s, item)
		if sliceIdx < 0 {
			// TODO: openAtEnd should still reject an unmatched element that
			// precedes a matched one; currently treated identically to open.
			if s.Rules == "closed" {
				emit(itemPath, fhirschema.IssueSliceUnmatched, "element does not match any permitted slice", false)
				ok2 = false
			}
			continue
		}
		matchedCount[sliceIdx]++
		if !ec.eval(s.Slices[sliceIdx].Schema, item, itemPath, emit) {
			ok2 = false
		}
	}

	for i, slice := range s.Slices {
		if slice.Min >= 1 && matchedCount[i] == 0 {
			emit(path+"."+s.Field, fhirschema.IssueSliceUnmatched,
				fmt.Sprintf("%s requires %s", slice.ID, slice.Path), false)
			ok2 = false
		}
	}

	return ok2
}

// matchSlice returns the index of the first slice whose discriminators
// all match item, or -1 if none match.
func matchSlice(s *compiler.SlicingRefinement, item dynjson.Value) int {
	for i, slice := range s.Slices {
		if sliceMatches(s.Discriminators, slice, item) {
			return i
		}
	}
	return -1
}

func sliceMatches(discs []compiler.Discriminator, slice compiler.NamedSlice, item dynjson.Value) bool {
	matchedAny := false
	for _, d := range discs {
		switch d.Type {
		case "value", "pattern":
			expected, ok := slice.DiscriminatorValues[d.Path]
			if !ok || expected == nil {
				continue
			}
			matchedAny = true
			vals := navigate(item, d.Path)
			found := false
			for _, v := range vals {
				if dynjson.Equal(v, *expected) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "exists":
			matchedAny = true
			vals := navigate(item, d.Path)
			if len(vals) == 0 || vals[0].IsNull() {
				return false
			}
		default:
			// "type", "profile": unsupported, ignored.
		}
	}
	return matchedAny
}

// navigate resolves a dot-separated path against a JSON value, fanning
// out across arrays encountered along the way.
func navigate(v dynjson.Value, path string) []dynjson.Value {
	cur := []dynjson.Value{v}
	for _, seg := range splitPath(path) {
		var next []dynjson.Value
		for _, c := range cur {
			switch c.Kind() {
			case dynjson.KindObject:
				if f, ok := c.Field(seg); ok {
					next = append(next, f)
				}
			case dynjson.KindArray:
				items, _ := c.Array()
				for _, item := range items {
					if f, ok := item.Field(seg); ok {
						next = append(next, f)
					}
				}
			}
		}
		cur = next
	}
	return cur
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

// evalFilterOnValue applies one ValueSet compose.include[].filter[] entry
// to the coded value currently under evaluation.
func (ec *evalCtx) evalFilterOnValue(ref compiler.Refinement, value dynjson.Value, path string, emit emitFunc) bool {
	code, ok := value.String()
	if !ok {
		return true
	}
	f := ref.Filter
	h := ec.rt.hierarchies[f.CodeSystemURL]
	if !hierarchy.EvalFilter(h, f.Op, f.Value, f.Property, code) {
		emit(path, fhirschema.IssueEnumViolation, "code does not satisfy value set filter", false)
		return false
	}
	return true
}
