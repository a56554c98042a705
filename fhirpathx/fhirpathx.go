// Package fhirpathx wraps github.com/gofhir/fhirpath with a compiled
// expression cache, so a constraint expression that appears on many
// resource instances is parsed once.
package fhirpathx

import (
	"sync"

	"github.com/gofhir/fhirpath"
)

// Cache compiles and memoizes FHIRPath expressions by source text.
type Cache struct {
	mu    sync.RWMutex
	exprs map[string]*fhirpath.Expression
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{exprs: make(map[string]*fhirpath.Expression)}
}

// Compile returns the cached *fhirpath.Expression for src, compiling and
// caching it on first use.
func (c *Cache) Compile(src string) (*fhirpath.Expression, error) {
	c.mu.RLock()
	expr, ok := c.exprs[src]
	c.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := fhirpath.Compile(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.exprs[src] = expr
	c.mu.Unlock()
	return expr, nil
}

// EvalBoolean runs a compiled expression against data and reduces the
// result to a boolean per FHIR invariant semantics: an empty collection
// is vacuously true, and a non-empty non-boolean collection is treated
// as true rather than failing the constraint outright.
func EvalBoolean(expr *fhirpath.Expression, data []byte) (bool, error) {
	result, err := expr.Evaluate(data)
	if err != nil {
		return false, err
	}
	if result.Empty() {
		return true, nil
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true, nil
	}
	return b, nil
}
