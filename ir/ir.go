// Package ir converts one StructureDefinition's flat, path-addressed
// snapshot.element list into a tree-shaped intermediate form with slicing
// structure and normalized constraints. It keeps the raw-JSON-preserving
// approach to dynamic fixed[x]/pattern[x] extraction familiar from
// element-definition parsing elsewhere in this module, generalized from a
// flat, index-by-path model into an explicit parent/children/slices tree.
package ir

import "github.com/fhirschema/compiler/dynjson"

// Unbounded is the cardinality sentinel for max="*".
const Unbounded = -1

// Discriminator identifies how a slice is matched against candidate array
// elements. Only "value", "pattern", and "exists" are executed by the
// compiler; "type" and "profile" are recognized but skipped.
type Discriminator struct {
	Type string // value | exists | type | profile | pattern
	Path string
}

// SlicingRule is the closed/open/openAtEnd rules value.
type SlicingRule string

// Supported slicing rules.
const (
	RulesOpen      SlicingRule = "open"
	RulesClosed    SlicingRule = "closed"
	RulesOpenAtEnd SlicingRule = "openAtEnd"
)

// Slicing describes how a repeating element's array is partitioned into
// named, discriminator-selected sub-schemas.
type Slicing struct {
	Discriminators []Discriminator
	Ordered        bool
	Rules          SlicingRule
	Slices         []*Element
}

// Binding records a required terminology binding; looser bindings
// (extensible/preferred/example) are not represented at all.
type Binding struct {
	ValueSetURL string
}

// Constraint is always severity=error by construction — looser
// severities are dropped during normalization.
type Constraint struct {
	Key        string
	Severity   string
	Expression string
	Human      string
	Source     string
}

// Element is one node per path segment of a StructureDefinition.
type Element struct {
	ID        string
	Path      string
	FieldName string
	SliceName string // set only on slice roots

	Min int
	Max int // Unbounded for "*"

	// Type is either a single canonical type code, or TypeChoice when the
	// element permits multiple ([x] fields). Types holds every candidate
	// code when Type == TypeChoice.
	Type  string
	Types []string

	// Regex is the pattern carried by a primitive-type's single type entry
	// via the http://hl7.org/fhir/StructureDefinition/regex type-extension
	// (e.g. on "id.value", "uri.value"). Empty when the type has none.
	Regex string

	MaxLength    *int
	Pattern      *dynjson.Value
	Fixed        *dynjson.Value
	MinValue     *dynjson.Value
	MaxValue     *dynjson.Value
	DefaultValue *dynjson.Value

	Binding *Binding

	Constraints []Constraint

	Slicing *Slicing

	Children []*Element

	parent *Element
}

// TypeChoice is the sentinel Type value for a "[x]" field with zero or
// multiple candidate types.
const TypeChoice = "choice-of-type"

// IsChoiceOfType reports whether the field's path ends in "[x]".
func (e *Element) IsChoiceOfType() bool {
	return len(e.FieldName) > 3 && e.FieldName[len(e.FieldName)-3:] == "[x]"
}

// ChoicePrefix returns the field name with the trailing "[x]" stripped,
// e.g. "value[x]" -> "value". Empty if not a choice-of-type field.
func (e *Element) ChoicePrefix() string {
	if !e.IsChoiceOfType() {
		return ""
	}
	return e.FieldName[:len(e.FieldName)-3]
}

// Parent returns the element's parent, or nil for the root.
func (e *Element) Parent() *Element { return e.parent }
