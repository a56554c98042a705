package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/fhirschema/compiler/dynjson"
)

const ambientElementBase = "http://hl7.org/fhir/StructureDefinition/Element"
const regexTypeExtensionURL = "http://hl7.org/fhir/StructureDefinition/regex"

// rawElement pairs one snapshot.element[] entry, typed as r4.ElementDefinition,
// with its raw bytes. The raw bytes back the dynamic polymorphic
// (`fixed[x]`, `pattern[x]`, `defaultValue[x]`, `minValue[x]`, `maxValue[x]`,
// and the type-level regex extension) field extraction that a typed struct
// can't express generically across every FHIR type.
type rawElement struct {
	ed  r4.ElementDefinition
	raw json.RawMessage
}

// sdDoc reads just enough of a StructureDefinition to locate its root type
// and the raw bytes of each snapshot element; the elements themselves are
// decoded individually into r4.ElementDefinition below.
type sdDoc struct {
	Type     *string `json:"type"`
	Snapshot *struct {
		Element []json.RawMessage `json:"element"`
	} `json:"snapshot"`
}

// BuildError reports a structural problem found while building a tree:
// an unresolvable element or a StructureDefinition missing required shape.
type BuildError struct {
	Kind    string // "malformed-definition" | "orphan-element"
	Message string
}

func (e *BuildError) Error() string { return fmt.Sprintf("ir: %s: %s", e.Kind, e.Message) }

// BuildResult carries the built tree plus soft diagnostics that don't fail
// the build (condition[] references to constraint keys the element list
// does not define).
type BuildResult struct {
	Root     *Element
	Warnings []string
}

// Build converts a StructureDefinition's raw JSON into an Element tree.
func Build(raw json.RawMessage) (*BuildResult, error) {
	var doc sdDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &BuildError{Kind: "malformed-definition", Message: err.Error()}
	}
	if doc.Snapshot == nil || len(doc.Snapshot.Element) == 0 {
		return nil, &BuildError{Kind: "malformed-definition", Message: "missing snapshot.element"}
	}
	sdType := ""
	if doc.Type != nil {
		sdType = *doc.Type
	}

	elems := make([]*rawElement, 0, len(doc.Snapshot.Element))
	for _, rm := range doc.Snapshot.Element {
		var ed r4.ElementDefinition
		if err := json.Unmarshal(rm, &ed); err != nil {
			return nil, &BuildError{Kind: "malformed-definition", Message: err.Error()}
		}
		elems = append(elems, &rawElement{ed: ed, raw: rm})
	}

	// Step 1: locate the root element.
	var rootRaw *rawElement
	for _, re := range elems {
		if re.id() == sdType {
			rootRaw = re
			break
		}
	}
	if rootRaw == nil {
		return nil, &BuildError{Kind: "malformed-definition", Message: "root element not found for type " + sdType}
	}

	b := &builder{
		byID:            make(map[string]*Element),
		constraintsByKey: buildConstraintPool(elems),
	}

	root := b.normalize(rootRaw)
	b.byID[root.ID] = root

	// Step 2/3: assign every other element to its parent's children or
	// slicing.slices, in document order (so parents are built before any
	// element that lists them as parent is skipped for an unknown-parent
	// error — a parent later in the list still resolves since children
	// are attached by walking byID which is populated as we go, and a
	// second pass catches forward references).
	pending := make([]*rawElement, 0, len(elems))
	for _, re := range elems {
		if re == rootRaw {
			continue
		}
		pending = append(pending, re)
	}

	// Multiple passes handle elements whose parent appears later in
	// document order than themselves (rare, but not disallowed).
	for len(pending) > 0 {
		progressed := false
		var next []*rawElement
		for _, re := range pending {
			parentID := parentIDOf(re)
			parent, ok := b.byID[parentID]
			if !ok {
				next = append(next, re)
				continue
			}
			el := b.normalize(re)
			el.parent = parent
			b.byID[el.ID] = el
			if isSliceIntroducer(re) {
				if parent.Slicing == nil {
					parent.Slicing = &Slicing{Rules: RulesOpen}
				}
				parent.Slicing.Slices = append(parent.Slicing.Slices, el)
			} else {
				parent.Children = append(parent.Children, el)
			}
			progressed = true
		}
		if !progressed {
			var orphans []string
			for _, re := range next {
				orphans = append(orphans, re.id())
			}
			return nil, &BuildError{Kind: "orphan-element", Message: "unresolved parent for: " + strings.Join(orphans, ", ")}
		}
		pending = next
	}

	return &BuildResult{Root: root, Warnings: b.warnings}, nil
}

// builder threads shared state through tree construction.
type builder struct {
	byID             map[string]*Element
	constraintsByKey map[string]Constraint
	warnings         []string
}

func (re *rawElement) id() string        { return derefString(re.ed.Id) }
func (re *rawElement) path() string      { return derefString(re.ed.Path) }
func (re *rawElement) sliceName() string { return derefString(re.ed.SliceName) }

// parentIDOf computes an element's parent id: a slice introducer strips
// its trailing ":sliceName" segment, everything else strips its last
// path segment.
func parentIDOf(re *rawElement) string {
	id := re.id()
	if re.ed.SliceName != nil && strings.Contains(id, ":") {
		if idx := strings.LastIndex(id, ":"); idx >= 0 {
			return id[:idx]
		}
	}
	if idx := strings.LastIndex(id, "."); idx >= 0 {
		return id[:idx]
	}
	return id
}

func isSliceIntroducer(re *rawElement) bool {
	return re.sliceName() != "" && strings.Contains(re.id(), ":")
}

// buildConstraintPool indexes every constraint defined anywhere in the SD
// by key, so condition[] references can resolve across the whole document.
func buildConstraintPool(elems []*rawElement) map[string]Constraint {
	pool := make(map[string]Constraint)
	for _, re := range elems {
		for _, c := range re.ed.Constraint {
			if derefString((*string)(c.Severity)) != "error" {
				continue
			}
			key := derefString(c.Key)
			pool[key] = Constraint{
				Key: key, Severity: derefString((*string)(c.Severity)), Expression: derefString(c.Expression),
				Human: derefString(c.Human), Source: derefString(c.Source),
			}
		}
	}
	return pool
}

func (b *builder) normalize(re *rawElement) *Element {
	el := &Element{
		ID:        re.id(),
		Path:      re.path(),
		FieldName: lastSegment(re.path()),
		SliceName: re.sliceName(),
	}

	el.Min = 0
	if re.ed.Min != nil {
		el.Min = int(*re.ed.Min)
	}
	el.Max = parseMax(derefString(re.ed.Max))

	switch len(re.ed.Type) {
	case 0:
		el.Type = TypeChoice
	case 1:
		el.Type = derefString(re.ed.Type[0].Code)
		el.Regex = regexExtensionValue(re.raw)
	default:
		el.Type = TypeChoice
		for _, t := range re.ed.Type {
			el.Types = append(el.Types, derefString(t.Code))
		}
	}

	if re.ed.MaxLength != nil {
		n := int(*re.ed.MaxLength)
		el.MaxLength = &n
	}

	if el.IsChoiceOfType() {
		el.DefaultValue = extractPrefixed(re.raw, "defaultValue")
		el.Pattern = extractPrefixed(re.raw, "pattern")
		el.Fixed = extractPrefixed(re.raw, "fixed")
		el.MinValue = extractPrefixed(re.raw, "minValue")
		el.MaxValue = extractPrefixed(re.raw, "maxValue")
	} else {
		el.DefaultValue = extractExact(re.raw, "defaultValue"+capitalize(el.Type))
		el.Pattern = extractExact(re.raw, "pattern"+capitalize(el.Type))
		el.Fixed = extractExact(re.raw, "fixed"+capitalize(el.Type))
		el.MinValue = extractExact(re.raw, "minValue"+capitalize(el.Type))
		el.MaxValue = extractExact(re.raw, "maxValue"+capitalize(el.Type))
	}

	el.Constraints = b.collectConstraints(re)

	if re.ed.Binding != nil && re.ed.Binding.Strength != nil && string(*re.ed.Binding.Strength) == "required" && re.ed.Binding.ValueSet != nil {
		el.Binding = &Binding{ValueSetURL: *re.ed.Binding.ValueSet}
	}

	if re.ed.Slicing != nil {
		rules := ""
		if re.ed.Slicing.Rules != nil {
			rules = string(*re.ed.Slicing.Rules)
		}
		s := &Slicing{Ordered: derefBool(re.ed.Slicing.Ordered), Rules: SlicingRule(rules)}
		if s.Rules == "" {
			s.Rules = RulesOpen
		}
		for _, d := range re.ed.Slicing.Discriminator {
			dtype := ""
			if d.Type != nil {
				dtype = string(*d.Type)
			}
			s.Discriminators = append(s.Discriminators, Discriminator{Type: dtype, Path: derefString(d.Path)})
		}
		el.Slicing = s
	}

	return el
}

// collectConstraints keeps only severity=error constraints declared
// directly on the element, discards those inherited from the ambient
// Element base type, resolves condition[] references against the whole
// SD's constraint pool, and deduplicates by (expression|human|key).
func (b *builder) collectConstraints(re *rawElement) []Constraint {
	seen := make(map[string]bool)
	var out []Constraint

	add := func(c Constraint) {
		if c.Severity != "error" {
			return
		}
		if c.Source == ambientElementBase {
			return
		}
		key := c.Expression + "|" + c.Human + "|" + c.Key
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	for _, c := range re.ed.Constraint {
		add(Constraint{
			Key: derefString(c.Key), Severity: derefString((*string)(c.Severity)),
			Expression: derefString(c.Expression), Human: derefString(c.Human), Source: derefString(c.Source),
		})
	}

	for _, key := range re.ed.Condition {
		if c, ok := b.constraintsByKey[key]; ok {
			add(c)
		} else {
			b.warnings = append(b.warnings, "condition references unknown constraint key: "+key)
		}
	}

	return out
}

// regexTypeExtensionProbe reads only the type-level extension array a
// primitive-type's single type entry may carry, since neither r4's typed
// ElementDefinitionType nor this module's normalized form otherwise
// preserves it.
type regexTypeExtensionProbe struct {
	Type []struct {
		Extension []struct {
			URL         string `json:"url"`
			ValueString string `json:"valueString"`
		} `json:"extension"`
	} `json:"type"`
}

// regexExtensionValue returns the value of the first regex type-extension
// found on raw's single type entry, or "" if none is present.
func regexExtensionValue(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var p regexTypeExtensionProbe
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Type) == 0 {
		return ""
	}
	for _, e := range p.Type[0].Extension {
		if e.URL == regexTypeExtensionURL {
			return e.ValueString
		}
	}
	return ""
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func parseMax(max string) int {
	if max == "*" || max == "" {
		return Unbounded
	}
	n, err := strconv.Atoi(max)
	if err != nil {
		return Unbounded
	}
	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// extractExact reads a single named key from raw element JSON.
func extractExact(raw json.RawMessage, key string) *dynjson.Value {
	if raw == nil {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	rm, ok := obj[key]
	if !ok {
		return nil
	}
	v, err := dynjson.Parse(rm)
	if err != nil {
		return nil
	}
	return &v
}

// extractPrefixed scans an element's keys for the first one starting with
// prefix (e.g. "pattern") and returns its value, used for choice-of-type
// fields ("value[x]") where the concrete suffix varies with the actual
// runtime type chosen.
func extractPrefixed(raw json.RawMessage, prefix string) *dynjson.Value {
	if raw == nil {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	for key, rm := range obj {
		if !strings.HasPrefix(key, prefix) || key == prefix {
			continue
		}
		v, err := dynjson.Parse(rm)
		if err != nil {
			continue
		}
		return &v
	}
	return nil
}
