package hierarchy

import (
	"regexp"
	"strings"
)

// EvalFilter answers whether value (or, for a non-"concept" property,
// the value of that property on the concept named value) satisfies one
// ValueSet compose filter. h may be nil, in which case every predicate
// degrades to its conservative single-value form so a CodeSystem with no
// materialized hierarchy never produces spurious failures.
func EvalFilter(h *Hierarchy, op, filterValue, property, candidate string) bool {
	resolved := candidate
	if property != "concept" && property != "code" && property != "" {
		if h == nil {
			return true
		}
		n, ok := h.Find(candidate)
		if !ok {
			return false
		}
		v, ok := n.PropertyValue(property)
		if !ok {
			return false
		}
		resolved = v
	}

	switch op {
	case "=":
		return resolved == filterValue
	case "regex":
		re, err := regexp.Compile(filterValue)
		if err != nil {
			return false
		}
		return re.MatchString(resolved)
	case "in":
		return containsCSV(filterValue, resolved)
	case "not-in":
		return !containsCSV(filterValue, resolved)
	case "is-a":
		if resolved == filterValue {
			return true
		}
		if h == nil {
			return false
		}
		return contains(h.Descendants(filterValue), resolved)
	case "is-not-a":
		return !EvalFilter(h, "is-a", filterValue, property, candidate)
	case "descendent-of":
		if h == nil {
			return resolved != filterValue
		}
		return contains(h.Descendants(filterValue), resolved)
	case "generalizes":
		if resolved == filterValue {
			return true
		}
		if h == nil {
			return false
		}
		return contains(h.Ancestors(filterValue), resolved)
	default:
		// Unsupported operators are ignored (permissive) by the caller;
		// this branch is unreachable when the caller filters first.
		return true
	}
}

func containsCSV(csv, v string) bool {
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == v {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
