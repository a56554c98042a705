package compiler

import "github.com/fhirschema/compiler/dynjson"

// RefinementKind tags a Refinement's variant. The catalog is closed:
// adding a new kind means adding one case here and one executor case in
// the runtime package.
type RefinementKind uint8

// Refinement variants (closed catalog).
const (
	RefFhirPath RefinementKind = iota
	RefAtMostOneOfPrefix
	RefNonEmptyObject
	RefExactValue
	RefSlicing
	RefFilter
	RefRequiredBinding
)

// Refinement is a named predicate attached to a schema via KindRefined.
type Refinement struct {
	Kind RefinementKind

	// RefFhirPath
	Expression string
	Message    string

	// RefAtMostOneOfPrefix
	Prefix string

	// RefExactValue
	Field    string
	Expected *dynjson.Value

	// RefSlicing
	Slicing *SlicingRefinement

	// RefFilter
	Filter *FilterRefinement

	// RefRequiredBinding
	Binding *BindingRefinement
}

// BindingShape names which of the three coded shapes a required-binding
// refinement is attached to, since each navigates to the code(s) it
// checks against the ValueSet differently.
type BindingShape uint8

// Supported binding shapes.
const (
	BindingCode BindingShape = iota
	BindingCoding
	BindingCodeableConcept
)

// BindingRefinement carries a required terminology binding's resolved
// ValueSet validator plus the shape of the value it's attached to.
type BindingRefinement struct {
	ValueSet *Schema
	Shape    BindingShape
}

// SlicingRefinement carries everything the runtime needs to partition an
// array field into named slices.
type SlicingRefinement struct {
	Field          string // the sliced array's field name on the parent object
	Discriminators []Discriminator
	Ordered        bool
	Rules          string // open | closed | openAtEnd
	Slices         []NamedSlice
}

// Discriminator identifies how candidate array elements are matched to
// a slice.
type Discriminator struct {
	Type string // value | pattern | exists
	Path string
}

// NamedSlice is one compiled slice alternative.
type NamedSlice struct {
	Name   string
	Schema *Schema
	Min    int
	Path   string // element path, for the "<slice.id> requires <slice.path>" message
	ID     string

	// DiscriminatorValues holds, for each "value"/"pattern" discriminator
	// path declared on the parent's slicing, the fixed or pattern value
	// this slice's own element tree declares at that relative path.
	DiscriminatorValues map[string]*dynjson.Value
}

// FilterRefinement carries one ValueSet compose.include[].filter[] entry
// plus the code system it filters against.
type FilterRefinement struct {
	Op            string // = | regex | in | not-in | is-a | is-not-a | descendent-of | generalizes
	Value         string
	Property      string
	CodeSystemURL string
}
