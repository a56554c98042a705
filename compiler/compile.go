package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	fhirschema "github.com/fhirschema/compiler"
	"github.com/fhirschema/compiler/catalog"
	"github.com/fhirschema/compiler/dynjson"
	"github.com/fhirschema/compiler/hierarchy"
	"github.com/fhirschema/compiler/ir"
	"github.com/fhirschema/compiler/registry"
)

// Compiler accumulates compiled validators by canonical URL as it works
// through a resource set, one URL at a time, in dependency order.
// resolve_schema is satisfied from this map, then from the optional
// built-in catalog: a URL found in neither (unresolved dependency, or a
// participant in a cycle) degrades to Any rather than blocking compilation.
type Compiler struct {
	schemas     map[string]*Schema
	hierarchies map[string]*hierarchy.Hierarchy
	catalog     *catalog.Catalog
	terminology bool
	Warnings    []string
	Errors      []*fhirschema.CompileError
}

// New returns an empty Compiler with no built-in-vocabulary catalog and
// required-binding enforcement on.
func New() *Compiler {
	return &Compiler{
		schemas:     make(map[string]*Schema),
		hierarchies: make(map[string]*hierarchy.Hierarchy),
		terminology: true,
	}
}

// NewWithCatalog returns a Compiler that consults cat for canonical URLs
// it cannot otherwise resolve (external vocabularies like LOINC or UCUM
// that never appear as a compiled StructureDefinition/CodeSystem).
func NewWithCatalog(cat *catalog.Catalog) *Compiler {
	c := New()
	c.catalog = cat
	return c
}

// Resolve implements resolve_schema: a URL already compiled wins; failing
// that, a registered catalog stand-in; failing that, Any.
func (c *Compiler) Resolve(url string) *Schema {
	if s, ok := c.schemas[url]; ok {
		return s
	}
	if c.catalog != nil {
		if p, ok := c.catalog.Get(url); ok {
			s := String(p.Regex())
			c.schemas[url] = s
			return s
		}
	}
	return Any()
}

// Hierarchy returns the concept hierarchy registered under url, if any.
func (c *Compiler) Hierarchy(url string) (*hierarchy.Hierarchy, bool) {
	h, ok := c.hierarchies[url]
	return h, ok
}

// Schemas exposes the accumulated URL -> validator map, frozen and safe
// to share read-only once compilation is done.
func (c *Compiler) Schemas() map[string]*Schema { return c.schemas }

func (c *Compiler) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	log.Debug().Msg(msg)
}

// Compile lowers one registered resource into a validator, storing the
// result under rf.URL. Resources whose kind carries no validator
// semantics (ConceptMap, StructureMap, ImplementationGuide) are skipped
// silently — they still participate in the dependency graph but never
// produce a CompiledValidator.
func (c *Compiler) Compile(rf registry.ResourceFile) {
	switch rf.ResourceType {
	case registry.TypeStructureDefinition:
		c.compileStructureDefinition(rf)
	case registry.TypeCodeSystem:
		c.compileCodeSystem(rf)
	case registry.TypeValueSet:
		c.compileValueSet(rf)
	default:
		// ConceptMap, StructureMap, ImplementationGuide contribute no
		// validator; their dependency edges are still tracked upstream.
	}
}

func (c *Compiler) compileStructureDefinition(rf registry.ResourceFile) {
	var sd struct {
		Kind string `json:"kind"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rf.Raw, &sd); err != nil {
		c.Errors = append(c.Errors, fhirschema.NewCompileError(fhirschema.CompileMalformedDefinition, rf.URL, err.Error()))
		c.schemas[rf.URL] = Any()
		return
	}

	tree, err := ir.Build(rf.Raw)
	if err != nil {
		if be, ok := err.(*ir.BuildError); ok {
			kind := fhirschema.CompileMalformedDefinition
			if be.Kind == "orphan-element" {
				kind = fhirschema.CompileOrphanElement
			}
			c.Errors = append(c.Errors, fhirschema.NewCompileError(kind, rf.URL, be.Message))
		}
		c.schemas[rf.URL] = Any()
		return
	}
	for _, w := range tree.Warnings {
		c.warnf("%s: %s", rf.URL, w)
	}

	var schema *Schema
	if sd.Kind == "primitive-type" {
		schema = c.compilePrimitive(sd.Type, tree.Root)
	} else {
		schema = c.compileComplex(tree.Root)
		if sd.Kind == "resource" {
			schema = IntersectionOf([]*Schema{
				schema,
				ObjectOf([]Field{{Name: "resourceType", Schema: OptionalOf(String(""))}}),
			})
		}
	}
	c.schemas[rf.URL] = schema
}

// compilePrimitive locates "<Type>.value" and lowers its declared type,
// promoting a regex type-extension to a constrained String and giving
// boolean the string/boolean wire-format leniency the format demands.
func (c *Compiler) compilePrimitive(typeName string, root *ir.Element) *Schema {
	valueEl := findChild(root, typeName+".value")
	if valueEl == nil {
		return Any()
	}
	if typeName == "boolean" {
		return UnionOf([]*Schema{Boolean(), Literal("true"), Literal("false")})
	}
	switch valueEl.Type {
	case "string", "":
		return String(valueEl.Regex)
	case "integer", "positiveInt", "unsignedInt":
		return &Schema{Kind: KindInteger}
	case "decimal":
		return &Schema{Kind: KindNumber}
	default:
		return String(valueEl.Regex)
	}
}

func findChild(root *ir.Element, path string) *ir.Element {
	if root.Path == path {
		return root
	}
	for _, c := range root.Children {
		if found := findChild(c, path); found != nil {
			return found
		}
	}
	return nil
}

// compileComplex recursively lowers an element tree into an Object
// schema, applying every lowering rule for complex types, resources, and
// logical models.
func (c *Compiler) compileComplex(el *ir.Element) *Schema {
	var fields []Field
	var objectRefinements []Refinement

	// Group choice-of-type children by prefix so we can emit the
	// AtMostOneOfPrefix sibling refinement once per group.
	choicePrefixes := make(map[string]bool)

	for _, child := range el.Children {
		if child.IsChoiceOfType() {
			prefix := child.ChoicePrefix()
			choicePrefixes[prefix] = true
			for _, t := range candidateTypes(child) {
				fieldName := prefix + strings.ToUpper(t[:1]) + t[1:]
				leaf := c.lowerLeafType(t)
				if child.Binding != nil && c.terminology {
					leaf = c.applyRequiredBinding(leaf, t, child.Binding.ValueSetURL)
				}
				fields = append(fields, Field{Name: fieldName, Schema: OptionalOf(leaf)})
			}
			continue
		}

		v := c.Resolve(canonicalizeType(child.Type))
		if len(child.Children) > 0 {
			v = IntersectionOf([]*Schema{v, c.compileComplex(child)})
		}
		if child.Binding != nil && c.terminology {
			v = c.applyRequiredBinding(v, child.Type, child.Binding.ValueSetURL)
		}

		var refs []Refinement
		for _, con := range child.Constraints {
			refs = append(refs, Refinement{Kind: RefFhirPath, Expression: con.Expression, Message: con.Human})
		}
		if len(refs) > 0 {
			v = RefinedBy(v, refs...)
		}

		if child.Fixed != nil || child.Pattern != nil {
			expected := child.Fixed
			if expected == nil {
				expected = child.Pattern
			}
			objectRefinements = append(objectRefinements, Refinement{Kind: RefExactValue, Field: fieldName(child), Expected: expected})
		}

		max := child.Max
		if max > 1 || max == ir.Unbounded {
			v = ArrayOf(v, child.Min, max)
			if child.Min == 0 {
				v = OptionalOf(v)
			}
		} else if child.Min == 0 {
			v = OptionalOf(v)
		}

		if child.Slicing != nil && hasSupportedDiscriminators(child.Slicing) {
			objectRefinements = append(objectRefinements, Refinement{
				Kind: RefSlicing,
				Slicing: &SlicingRefinement{
					Field:          fieldName(child),
					Discriminators: convertDiscriminators(child.Slicing.Discriminators),
					Ordered:        child.Slicing.Ordered,
					Rules:          string(child.Slicing.Rules),
					Slices:         c.compileSlices(child),
				},
			})
		}

		fields = append(fields, Field{Name: fieldName(child), Schema: v})
	}

	for prefix := range choicePrefixes {
		objectRefinements = append(objectRefinements, Refinement{Kind: RefAtMostOneOfPrefix, Prefix: prefix})
	}
	objectRefinements = append(objectRefinements, Refinement{Kind: RefNonEmptyObject})

	obj := ObjectOf(fields)
	return RefinedBy(obj, objectRefinements...)
}

// applyRequiredBinding attaches a required-binding refinement checking
// typeName's coded value(s) against valueSetURL, or returns v unchanged
// if typeName isn't one of the three shapes a terminology binding can
// apply to (code, Coding, CodeableConcept).
func (c *Compiler) applyRequiredBinding(v *Schema, typeName, valueSetURL string) *Schema {
	shape, ok := bindingShapeFor(typeName)
	if !ok {
		return v
	}
	vs := c.Resolve(valueSetURL)
	return RefinedBy(v, Refinement{Kind: RefRequiredBinding, Binding: &BindingRefinement{ValueSet: vs, Shape: shape}})
}

func bindingShapeFor(typeName string) (BindingShape, bool) {
	switch typeName {
	case "code":
		return BindingCode, true
	case "Coding":
		return BindingCoding, true
	case "CodeableConcept":
		return BindingCodeableConcept, true
	default:
		return 0, false
	}
}

func fieldName(el *ir.Element) string {
	if el.FieldName != "" {
		return el.FieldName
	}
	return el.Path
}

func candidateTypes(el *ir.Element) []string {
	if len(el.Types) > 0 {
		return el.Types
	}
	return []string{"string"}
}

func (c *Compiler) lowerLeafType(t string) *Schema {
	return c.Resolve(canonicalizeType(t))
}

const baseTypeNamespace = "http://hl7.org/fhir/StructureDefinition/"

func canonicalizeType(t string) string {
	if t == "" || t == ir.TypeChoice {
		return ""
	}
	if strings.Contains(t, "://") {
		return t
	}
	return baseTypeNamespace + t
}

func hasSupportedDiscriminators(s *ir.Slicing) bool {
	if len(s.Discriminators) == 0 {
		return false
	}
	for _, d := range s.Discriminators {
		if d.Type != "value" && d.Type != "pattern" && d.Type != "exists" {
			return false
		}
	}
	return true
}

func convertDiscriminators(ds []ir.Discriminator) []Discriminator {
	out := make([]Discriminator, 0, len(ds))
	for _, d := range ds {
		out = append(out, Discriminator{Type: d.Type, Path: d.Path})
	}
	return out
}

func (c *Compiler) compileSlices(el *ir.Element) []NamedSlice {
	if el.Slicing == nil {
		return nil
	}
	out := make([]NamedSlice, 0, len(el.Slicing.Slices))
	for _, slice := range el.Slicing.Slices {
		var schema *Schema
		if len(slice.Children) > 0 {
			schema = c.compileComplex(slice)
		} else {
			schema = c.Resolve(canonicalizeType(slice.Type))
		}

		values := make(map[string]*dynjson.Value)
		for _, d := range el.Slicing.Discriminators {
			if d.Type != "value" && d.Type != "pattern" {
				continue
			}
			if target := findByRelativePath(slice, d.Path); target != nil {
				if target.Fixed != nil {
					values[d.Path] = target.Fixed
				} else if target.Pattern != nil {
					values[d.Path] = target.Pattern
				}
			}
		}

		out = append(out, NamedSlice{
			Name:                slice.SliceName,
			Schema:              schema,
			Min:                 slice.Min,
			Path:                slice.Path,
			ID:                  slice.ID,
			DiscriminatorValues: values,
		})
	}
	return out
}

// findByRelativePath walks root's own field-name chain (e.g. "type.coding.system")
// looking for the element the discriminator path names.
func findByRelativePath(root *ir.Element, relPath string) *ir.Element {
	segments := strings.Split(relPath, ".")
	cur := root
	for _, seg := range segments {
		var next *ir.Element
		for _, c := range cur.Children {
			if c.FieldName == seg {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
