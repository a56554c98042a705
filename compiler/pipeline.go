package compiler

import (
	"github.com/rs/zerolog/log"

	"github.com/fhirschema/compiler/catalog"
	"github.com/fhirschema/compiler/depgraph"
	"github.com/fhirschema/compiler/registry"
)

// CompileAll compiles every resource in reg, walking a dependency-first
// order so resolve_schema(url) sees the final validator for any
// dependency outside a cycle. URLs inside a reported cycle may still see
// Any for each other, which is tolerated by design. cat may be nil to
// disable external-vocabulary stand-ins. enableTerminology gates whether
// required-binding refinements are compiled at all; when false, coded
// values are validated on shape alone, never against a bound ValueSet.
func CompileAll(reg *registry.Registry, cat *catalog.Catalog, enableTerminology bool) *Compiler {
	var c *Compiler
	if cat != nil {
		c = NewWithCatalog(cat)
	} else {
		c = New()
	}
	c.terminology = enableTerminology

	all := reg.All()
	byURL := make(map[string]registry.ResourceFile, len(all))
	deps := make(map[string][]string, len(all))
	stabilizer := make([]string, 0, len(all))
	for _, rf := range all {
		byURL[rf.URL] = rf
		deps[rf.URL] = depgraph.Analyze(rf)
		stabilizer = append(stabilizer, rf.URL)
	}

	order := depgraph.Sort(deps, stabilizer...)
	for _, cycle := range order.Cycles {
		log.Debug().Strs("cycle", cycle).Msg("dependency cycle tolerated during compilation")
	}
	for _, url := range order.Sorted {
		// order.Sorted also contains dependency URLs that were never
		// registered (external/unresolved references); those have
		// nothing to compile and resolve_schema degrades them to Any.
		if rf, ok := byURL[url]; ok {
			c.Compile(rf)
		}
	}

	return c
}
