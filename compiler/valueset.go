package compiler

import (
	"encoding/json"

	"github.com/gofhir/fhir/r4"

	"github.com/fhirschema/compiler/registry"
)

var supportedFilterOps = map[string]bool{
	"=": true, "regex": true, "in": true, "not-in": true,
	"is-a": true, "is-not-a": true, "descendent-of": true, "generalizes": true,
}

func (c *Compiler) compileValueSet(rf registry.ResourceFile) {
	var vs r4.ValueSet
	if err := json.Unmarshal(rf.Raw, &vs); err != nil {
		c.warnf("%s: malformed ValueSet: %v", rf.URL, err)
		return
	}
	if vs.Compose == nil || len(vs.Compose.Include) == 0 {
		c.warnf("%s: ValueSet compose has no include entries", rf.URL)
		c.schemas[rf.URL] = Never()
		return
	}

	var includeBranches []*Schema
	for _, e := range vs.Compose.Include {
		includeBranches = append(includeBranches, c.expandComposeEntry(e, true))
	}
	rInc := UnionOf(includeBranches)

	rExc := Never()
	if len(vs.Compose.Exclude) > 0 {
		var excludeBranches []*Schema
		for _, e := range vs.Compose.Exclude {
			excludeBranches = append(excludeBranches, c.expandComposeEntry(e, false))
		}
		rExc = IntersectionOf(excludeBranches)
	}

	c.schemas[rf.URL] = ValueSetOf(rInc, rExc)
}

func (c *Compiler) expandComposeEntry(e r4.ValueSetComposeInclude, isInclude bool) *Schema {
	if len(e.ValueSet) > 0 {
		var branches []*Schema
		for _, url := range e.ValueSet {
			if s, ok := c.schemas[url]; ok {
				branches = append(branches, s)
			} else if isInclude {
				branches = append(branches, StringMinLen1())
			} else {
				branches = append(branches, Never())
			}
		}
		if isInclude {
			return UnionOf(branches)
		}
		return IntersectionOf(branches)
	}

	system := derefString(e.System)
	if system == "" {
		if isInclude {
			return StringMinLen1()
		}
		return Never()
	}

	if len(e.Concept) > 0 {
		codes := make([]string, 0, len(e.Concept))
		for _, cc := range e.Concept {
			if cc.Code != nil {
				codes = append(codes, *cc.Code)
			}
		}
		if len(codes) == 1 {
			return Literal(codes[0])
		}
		return EnumOf(codes)
	}

	base := c.Resolve(system)
	if _, known := c.schemas[system]; !known {
		base = StringMinLen1()
	}

	if len(e.Filter) > 0 {
		var branches []*Schema
		for _, f := range e.Filter {
			op := ""
			if f.Op != nil {
				op = string(*f.Op)
			}
			if !supportedFilterOps[op] {
				continue
			}
			branches = append(branches, RefinedBy(base, Refinement{
				Kind: RefFilter,
				Filter: &FilterRefinement{Op: op, Value: derefString(f.Value), Property: derefString(f.Property), CodeSystemURL: system},
			}))
		}
		if len(branches) == 0 {
			return base
		}
		return IntersectionOf(branches)
	}

	return base
}
