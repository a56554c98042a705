// Package runtime executes a compiler.Schema against a dynjson.Value and
// produces an ordered list of issues.
package runtime

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	fhirschema "github.com/fhirschema/compiler"
	"github.com/fhirschema/compiler/compiler"
	"github.com/fhirschema/compiler/dynjson"
	"github.com/fhirschema/compiler/fhirpathx"
	"github.com/fhirschema/compiler/hierarchy"
	"golang.org/x/sync/errgroup"
)

// Runtime evaluates compiled schemas against JSON documents.
type Runtime struct {
	exprs       *fhirpathx.Cache
	hierarchies map[string]*hierarchy.Hierarchy
	workerCount int
	maxIssues   int
}

// New returns a Runtime. hierarchies is the compiler's frozen
// URL->ConceptHierarchy map, consulted by Filter refinements.
func New(hierarchies map[string]*hierarchy.Hierarchy, workerCount int) *Runtime {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Runtime{
		exprs:       fhirpathx.NewCache(),
		hierarchies: hierarchies,
		workerCount: workerCount,
	}
}

// WithMaxIssues bounds how many issues Validate collects per call; 0 (the
// default) means unlimited. Returns rt for chaining at construction time.
func (rt *Runtime) WithMaxIssues(n int) *Runtime {
	rt.maxIssues = n
	return rt
}

// evalCtx threads per-call state: cancellation, the Runtime, and the
// serialized root document. rootRaw is carried along but not read:
// FHIRPath refinements are evaluated against the current node alone, with
// no %resource bound.
type evalCtx struct {
	ctx     context.Context
	rootRaw []byte
	rt      *Runtime
}

type orderedIssue struct {
	seq   int
	issue fhirschema.Issue
}

// Validate runs schema against root and returns issues in pre-order,
// then refinement-declaration order.
func (r *Runtime) Validate(ctx context.Context, schema *compiler.Schema, root dynjson.Value) []fhirschema.Issue {
	rawRoot, err := root.MarshalJSON()
	if err != nil {
		rawRoot = []byte("{}")
	}
	ec := &evalCtx{ctx: ctx, rootRaw: rawRoot, rt: r}

	var seq int
	var mu sync.Mutex
	var collected []orderedIssue
	emit := func(path string, code fhirschema.IssueCode, message string, cancelled bool) {
		mu.Lock()
		defer mu.Unlock()
		if r.maxIssues > 0 && len(collected) >= r.maxIssues {
			return
		}
		s := seq
		seq++
		collected = append(collected, orderedIssue{seq: s, issue: fhirschema.Issue{
			Severity: fhirschema.SeverityError, Code: code, Path: path, Message: message, Cancelled: cancelled,
		}})
	}

	ec.eval(schema, root, "$", emit)

	out := make([]fhirschema.Issue, len(collected))
	for i, oi := range collected {
		out[i] = oi.issue
	}
	return out
}

type emitFunc func(path string, code fhirschema.IssueCode, message string, cancelled bool)

func (ec *evalCtx) cancelled(path string, emit emitFunc) bool {
	select {
	case <-ec.ctx.Done():
		emit(path, fhirschema.IssueTypeMismatch, "validation cancelled", true)
		return true
	default:
		return false
	}
}

// eval dispatches on schema.Kind. It returns true if the value was
// accepted with zero issues (used by Union/Intersection).
func (ec *evalCtx) eval(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	if schema == nil || ec.cancelled(path, emit) {
		return true
	}

	switch schema.Kind {
	case compiler.KindAny:
		return true
	case compiler.KindNever:
		emit(path, fhirschema.IssueTypeMismatch, "value not permitted here", false)
		return false
	case compiler.KindString:
		return ec.evalString(schema, value, path, emit)
	case compiler.KindNumber, compiler.KindInteger:
		return ec.evalNumber(schema, value, path, emit)
	case compiler.KindBoolean:
		if _, ok := value.Bool(); !ok {
			emit(path, fhirschema.IssueTypeMismatch, "expected a boolean", false)
			return false
		}
		return true
	case compiler.KindLiteral:
		s, ok := value.String()
		if !ok || s != schema.Literal {
			emit(path, fhirschema.IssueTypeMismatch, fmt.Sprintf("expected literal %q", schema.Literal), false)
			return false
		}
		return true
	case compiler.KindEnum:
		s, ok := value.String()
		if !ok || !containsStr(schema.Enum, s) {
			emit(path, fhirschema.IssueEnumViolation, "value is not one of the permitted codes", false)
			return false
		}
		return true
	case compiler.KindArray:
		return ec.evalArray(schema, value, path, emit)
	case compiler.KindOptional:
		if value.IsNull() {
			return true
		}
		return ec.eval(schema.Item, value, path, emit)
	case compiler.KindObject:
		return ec.evalObject(schema, value, path, emit)
	case compiler.KindUnion:
		return ec.evalUnion(schema, value, path, emit)
	case compiler.KindIntersection:
		return ec.evalIntersection(schema, value, path, emit)
	case compiler.KindRefined:
		return ec.evalRefined(schema, value, path, emit)
	case compiler.KindValueSet:
		return ec.evalValueSet(schema, value, path, emit)
	default:
		return true
	}
}

func containsStr(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (ec *evalCtx) evalString(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	s, ok := value.String()
	if !ok {
		emit(path, fhirschema.IssueTypeMismatch, "expected a string", false)
		return false
	}
	ok2 := true
	if schema.Leaf.Regex != "" {
		re, err := regexp.Compile(schema.Leaf.Regex)
		if err == nil && !re.MatchString(s) {
			emit(path, fhirschema.IssueRegexViolation, "value does not match required pattern", false)
			ok2 = false
		}
	}
	if schema.Leaf.MinLength != nil && len(s) < *schema.Leaf.MinLength {
		emit(path, fhirschema.IssueLengthViolation, "value shorter than minimum length", false)
		ok2 = false
	}
	if schema.Leaf.MaxLength != nil && len(s) > *schema.Leaf.MaxLength {
		emit(path, fhirschema.IssueLengthViolation, "value longer than maximum length", false)
		ok2 = false
	}
	return ok2
}

func (ec *evalCtx) evalNumber(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	n, ok := value.Number()
	if !ok {
		emit(path, fhirschema.IssueTypeMismatch, "expected a number", false)
		return false
	}
	ok2 := true
	if schema.Leaf.MinValue != nil && n < *schema.Leaf.MinValue {
		emit(path, fhirschema.IssueBoundaryViolation, "value below minimum", false)
		ok2 = false
	}
	if schema.Leaf.MaxValue != nil && n > *schema.Leaf.MaxValue {
		emit(path, fhirschema.IssueBoundaryViolation, "value above maximum", false)
		ok2 = false
	}
	return ok2
}

func (ec *evalCtx) evalArray(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	items, ok := value.Array()
	if !ok {
		emit(path, fhirschema.IssueTypeMismatch, "expected an array", false)
		return false
	}
	ok2 := true
	if len(items) < schema.ArrayMin {
		emit(path, fhirschema.IssueCardinalityViolation, "array has fewer items than required", false)
		ok2 = false
	}
	if schema.ArrayMax != compiler.Unbounded && len(items) > schema.ArrayMax {
		emit(path, fhirschema.IssueCardinalityViolation, "array has more items than permitted", false)
		ok2 = false
	}

	if len(items) == 0 {
		return ok2
	}

	if ec.rt.workerCount <= 1 || len(items) == 1 {
		for i, item := range items {
			if !ec.eval(schema.Item, item, fmt.Sprintf("%s[%d]", path, i), emit) {
				ok2 = false
			}
		}
		return ok2
	}

	// Each item reports into its own buffer; the buffers are replayed in
	// index order afterwards, so issue order does not depend on which
	// goroutine finishes first.
	g, gctx := errgroup.WithContext(ec.ctx)
	g.SetLimit(ec.rt.workerCount)
	results := make([]bool, len(items))
	buffers := make([][]fhirschema.Issue, len(items))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			sub := &evalCtx{ctx: gctx, rootRaw: ec.rootRaw, rt: ec.rt}
			local := func(p string, code fhirschema.IssueCode, msg string, cancelled bool) {
				buffers[i] = append(buffers[i], fhirschema.Issue{Path: p, Code: code, Message: msg, Cancelled: cancelled})
			}
			results[i] = sub.eval(schema.Item, item, fmt.Sprintf("%s[%d]", path, i), local)
			return nil
		})
	}
	_ = g.Wait()
	for i, r := range results {
		for _, iss := range buffers[i] {
			emit(iss.Path, iss.Code, iss.Message, iss.Cancelled)
		}
		if !r {
			ok2 = false
		}
	}
	return ok2
}

func (ec *evalCtx) evalObject(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	if value.Kind() != dynjson.KindObject {
		emit(path, fhirschema.IssueTypeMismatch, "expected an object", false)
		return false
	}
	ok2 := true
	for _, f := range schema.Fields {
		child, present := value.Field(f.Name)
		if !present {
			child = dynjson.Null()
		}
		if !isOptionalKind(f.Schema) && !present {
			emit(path+"."+f.Name, fhirschema.IssueMissingRequiredField, "required field is missing", false)
			ok2 = false
			continue
		}
		if !ec.eval(f.Schema, child, path+"."+f.Name, emit) {
			ok2 = false
		}
	}
	return ok2
}

func isOptionalKind(s *compiler.Schema) bool {
	if s == nil {
		return true
	}
	if s.Kind == compiler.KindOptional {
		return true
	}
	if s.Kind == compiler.KindRefined {
		return isOptionalKind(s.Item)
	}
	return false
}

func (ec *evalCtx) evalUnion(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	for _, b := range schema.Branches {
		var sink []fhirschema.Issue
		sub := func(p string, code fhirschema.IssueCode, msg string, cancelled bool) {
			sink = append(sink, fhirschema.Issue{Path: p, Code: code, Message: msg, Cancelled: cancelled})
		}
		if ec.eval(b, value, path, sub) && len(sink) == 0 {
			return true
		}
	}
	emit(path, fhirschema.IssueTypeMismatch, "value did not match any permitted alternative", false)
	return false
}

func (ec *evalCtx) evalIntersection(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	ok2 := true
	for _, b := range schema.Branches {
		if !ec.eval(b, value, path, emit) {
			ok2 = false
		}
	}
	return ok2
}

func (ec *evalCtx) evalValueSet(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	var sink []fhirschema.Issue
	sub := func(p string, code fhirschema.IssueCode, msg string, cancelled bool) {
		sink = append(sink, fhirschema.Issue{Path: p, Code: code, Message: msg, Cancelled: cancelled})
	}
	included := ec.eval(schema.Include, value, path, sub) && len(sink) == 0

	sink = nil
	excluded := ec.eval(schema.Exclude, value, path, sub) && len(sink) == 0

	if included && !excluded {
		return true
	}
	emit(path, fhirschema.IssueEnumViolation, "value is not a member of the required value set", false)
	return false
}

func (ec *evalCtx) evalRefined(schema *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	ok := ec.eval(schema.Item, value, path, emit)
	for _, ref := range schema.Refinements {
		if !ec.evalRefinement(ref, value, path, emit) {
			ok = false
		}
	}
	return ok
}

func (ec *evalCtx) evalRefinement(ref compiler.Refinement, value dynjson.Value, path string, emit emitFunc) bool {
	switch ref.Kind {
	case compiler.RefFhirPath:
		return ec.evalFhirPath(ref, value, path, emit)
	case compiler.RefAtMostOneOfPrefix:
		return ec.evalAtMostOneOfPrefix(ref, value, path, emit)
	case compiler.RefNonEmptyObject:
		return ec.evalNonEmptyObject(value, path, emit)
	case compiler.RefExactValue:
		return ec.evalExactValue(ref, value, path, emit)
	case compiler.RefSlicing:
		return ec.evalSlicing(ref, value, path, emit)
	case compiler.RefFilter:
		return ec.evalFilterOnValue(ref, value, path, emit)
	case compiler.RefRequiredBinding:
		return ec.evalRequiredBinding(ref, value, path, emit)
	default:
		return true
	}
}

// evalRequiredBinding checks a coded value against a required binding's
// resolved ValueSet, navigating to the code(s) per the binding's shape:
// a plain code is checked directly, a Coding via its "code" field, and a
// CodeableConcept is satisfied if any of its "coding" entries matches.
func (ec *evalCtx) evalRequiredBinding(ref compiler.Refinement, value dynjson.Value, path string, emit emitFunc) bool {
	b := ref.Binding
	if b == nil || b.ValueSet == nil {
		return true
	}

	switch b.Shape {
	case compiler.BindingCode:
		if value.IsNull() {
			return true
		}
		return ec.evalMemberOf(b.ValueSet, value, path, emit)

	case compiler.BindingCoding:
		if value.Kind() != dynjson.KindObject {
			return true
		}
		code, present := value.Field("code")
		if !present || code.IsNull() {
			return true
		}
		return ec.evalMemberOf(b.ValueSet, code, path+".code", emit)

	case compiler.BindingCodeableConcept:
		if value.Kind() != dynjson.KindObject {
			return true
		}
		codings, present := value.Field("coding")
		if !present {
			return true
		}
		items, ok := codings.Array()
		if !ok || len(items) == 0 {
			return true
		}
		for _, item := range items {
			if item.Kind() != dynjson.KindObject {
				continue
			}
			code, present := item.Field("code")
			if !present || code.IsNull() {
				continue
			}
			if ec.memberOf(b.ValueSet, code) {
				return true
			}
		}
		emit(path, fhirschema.IssueEnumViolation, "no coding in this CodeableConcept is a member of the required value set", false)
		return false

	default:
		return true
	}
}

// memberOf reports whether value satisfies vs without emitting issues,
// used by the CodeableConcept "any coding matches" check.
func (ec *evalCtx) memberOf(vs *compiler.Schema, value dynjson.Value) bool {
	var sink []fhirschema.Issue
	sub := func(p string, code fhirschema.IssueCode, msg string, cancelled bool) {
		sink = append(sink, fhirschema.Issue{Path: p, Code: code, Message: msg, Cancelled: cancelled})
	}
	return ec.eval(vs, value, "", sub) && len(sink) == 0
}

func (ec *evalCtx) evalMemberOf(vs *compiler.Schema, value dynjson.Value, path string, emit emitFunc) bool {
	if ec.memberOf(vs, value) {
		return true
	}
	emit(path, fhirschema.IssueEnumViolation, "value is not a member of the required value set", false)
	return false
}

func (ec *evalCtx) evalFhirPath(ref compiler.Refinement, value dynjson.Value, path string, emit emitFunc) bool {
	if ref.Expression == "" {
		return true
	}
	expr, err := ec.rt.exprs.Compile(ref.Expression)
	if err != nil {
		return true // an expression that cannot compile must not produce a false positive
	}
	raw, err := value.MarshalJSON()
	if err != nil {
		return true
	}
	ok, err := fhirpathx.EvalBoolean(expr, raw)
	if err != nil {
		return true
	}
	if !ok {
		msg := ref.Message
		if msg == "" {
			msg = "constraint failed: " + ref.Expression
		}
		emit(path, fhirschema.IssueFhirPathConstraint, msg, false)
		return false
	}
	return true
}

func (ec *evalCtx) evalAtMostOneOfPrefix(ref compiler.Refinement, value dynjson.Value, path string, emit emitFunc) bool {
	if value.Kind() != dynjson.KindObject {
		return true
	}
	count := 0
	for _, k := range value.Keys() {
		if strings.HasPrefix(k, ref.Prefix) {
			count++
		}
	}
	if count > 1 {
		emit(path, fhirschema.IssueChoiceOfTypeAmbiguity, "more than one choice-of-type field present", false)
		return false
	}
	return true
}

func (ec *evalCtx) evalNonEmptyObject(value dynjson.Value, path string, emit emitFunc) bool {
	if value.Kind() != dynjson.KindObject {
		return true
	}
	if value.Len() > 0 {
		return true
	}
	if isArrayIndexPath(path) {
		return true
	}
	emit(path, fhirschema.IssueMissingRequiredField, "object must not be empty", false)
	return false
}

func isArrayIndexPath(path string) bool {
	idx := strings.LastIndexByte(path, '[')
	if idx < 0 || !strings.HasSuffix(path, "]") {
		return false
	}
	_, err := strconv.Atoi(path[idx+1 : len(path)-1])
	return err == nil
}

func (ec *evalCtx) evalExactValue(ref compiler.Refinement, value dynjson.Value, path string, emit emitFunc) bool {
	if value.Kind() != dynjson.KindObject {
		return true
	}
	field, present := value.Field(ref.Field)
	if !present {
		return true
	}
	if ref.Expected == nil {
		return true
	}
	if !dynjson.Equal(field, *ref.Expected) {
		emit(path+"."+ref.Field, fhirschema.IssuePatternViolation, "value does not match the required fixed/pattern value", false)
		return false
	}
	return true
}
