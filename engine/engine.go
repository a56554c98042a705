// Package engine is the facade tying registry, depgraph, ir, compiler,
// hierarchy, catalog, runtime, and pkgcache into the four operations a
// caller needs: construct, load resources, ask what's recognized, and
// validate a document. It follows the same construct-then-mutate-under-
// lock shape a request-time validator would use, generalized so every
// Load call recompiles and atomically swaps in a fresh, frozen snapshot
// of compiled validators rather than mutating one in place.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	fhirschema "github.com/fhirschema/compiler"
	"github.com/fhirschema/compiler/catalog"
	"github.com/fhirschema/compiler/compiler"
	"github.com/fhirschema/compiler/dynjson"
	"github.com/fhirschema/compiler/hierarchy"
	"github.com/fhirschema/compiler/pkgcache"
	"github.com/fhirschema/compiler/registry"
	"github.com/fhirschema/compiler/runtime"
)

// Engine is the compiled state of one validator instance: every resource
// registered so far, and the schemas/hierarchies/runtime compiled from
// them. All exported methods are safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	opts    *fhirschema.Options
	cache   *pkgcache.Cache
	catalog *catalog.Catalog
	metrics *fhirschema.Metrics

	reg  *registry.Registry
	comp *compiler.Compiler
	rt   *runtime.Runtime
}

// New constructs an empty Engine: no resources registered, nothing
// compiled yet. Load resources with LoadPackages or LoadFiles before
// calling Validate.
func New(ctx context.Context, opts ...fhirschema.Option) (*Engine, error) {
	options := fhirschema.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	e := &Engine{
		opts:    options,
		cache:   pkgcache.New(options.PackageCacheDir),
		metrics: fhirschema.NewMetrics(),
		reg:     registry.New(),
	}
	if options.EnableTerminology {
		e.catalog = catalog.Default()
	}
	e.recompileLocked()
	return e, nil
}

// recompileLocked rebuilds comp/rt from the current registry contents.
// Callers must hold e.mu for writing.
func (e *Engine) recompileLocked() {
	c := compiler.CompileAll(e.reg, e.catalog, e.opts.EnableTerminology)
	e.comp = c
	e.rt = runtime.New(hierarchiesFrom(c), e.opts.WorkerCount).WithMaxIssues(e.opts.MaxIssues)
	for range c.Errors {
		e.metrics.RecordCompile(false)
	}
}

func hierarchiesFrom(c *compiler.Compiler) map[string]*hierarchy.Hierarchy {
	out := make(map[string]*hierarchy.Hierarchy)
	for _, url := range keysOf(c.Schemas()) {
		if h, ok := c.Hierarchy(url); ok {
			out[url] = h
		}
	}
	return out
}

func keysOf(m map[string]*compiler.Schema) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// LoadPackages fetches (or reuses from cache) each named FHIR package —
// "<name>" or "<name>!<version>", version may be "latest" — and every
// transitive dependency, registers every conformance resource found, and
// recompiles.
func (e *Engine) LoadPackages(ctx context.Context, ids ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	for _, id := range ids {
		pkgs, err := e.cache.LoadWithDependencies(id, seen)
		if err != nil {
			return err
		}
		for _, pkg := range pkgs {
			for _, raw := range pkg.Resources {
				rf, ok, err := registry.FromJSON(pkg.Ref.String(), raw)
				if err != nil || !ok {
					continue
				}
				e.reg.Add(rf)
			}
		}
	}
	e.recompileLocked()
	return nil
}

// LoadFiles registers local conformance resource files: each path may
// name a single JSON file or a directory, in which case every *.json
// file beneath it (recursively) is registered.
func (e *Engine) LoadFiles(ctx context.Context, paths ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fhirschema.NewLoaderError(fhirschema.LoaderPackageNotFound, p, err)
		}
		if !info.IsDir() {
			if err := e.loadFileLocked(p); err != nil {
				return err
			}
			continue
		}
		err = filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() || !strings.HasSuffix(path, ".json") {
				return nil
			}
			return e.loadFileLocked(path)
		})
		if err != nil {
			return err
		}
	}
	e.recompileLocked()
	return nil
}

func (e *Engine) loadFileLocked(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fhirschema.NewLoaderError(fhirschema.LoaderPackageNotFound, path, err)
	}
	rf, ok, err := registry.FromJSON(path, data)
	if err != nil {
		return fhirschema.NewLoaderError(fhirschema.LoaderJSONParseError, path, err)
	}
	if !ok {
		return nil
	}
	e.reg.Add(rf)
	return nil
}

// Recognizes reports whether a compiled validator exists for the given
// canonical URL, or for a registered resource's short name.
func (e *Engine) Recognizes(urlOrName string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.comp.Schemas()[urlOrName]; ok {
		return true
	}
	for _, rf := range e.reg.All() {
		if rf.Name != urlOrName {
			continue
		}
		if _, ok := e.comp.Schemas()[rf.URL]; ok {
			return true
		}
	}
	return false
}

// Validate checks document against the effective profile list —
// options.Profiles, unioned with document.meta.profile (unless
// IgnoreSelfDeclaredProfiles) and document.url (if present) — and
// returns the accumulated result. When Options.EnablePooling is set, the
// returned result comes from the shared pool and the caller must call
// Release() on it once done.
func (e *Engine) Validate(ctx context.Context, document any, opts fhirschema.ValidateOptions) *fhirschema.ValidationResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	start := time.Now()

	value, _ := resolveDocument(document)
	resourceType, _ := stringField(value, "resourceType")

	profiles := effectiveProfiles(value, opts)

	var result *fhirschema.ValidationResult
	if e.opts.EnablePooling {
		result = fhirschema.AcquireResult()
	} else {
		result = &fhirschema.ValidationResult{}
	}
	result.Success = true
	result.ResourceType = resourceType
	result.ProfileURLs = profiles
	result.RunID = opts.RunID
	for _, url := range profiles {
		schema, ok := e.comp.Schemas()[url]
		if !ok {
			if !opts.IgnoreUnknownSchemas {
				result.AddIssue(fhirschema.NewIssue(fhirschema.SeverityError, fhirschema.IssueUnknownProfile,
					"", fmt.Sprintf("Could not find schema for %s", url)))
			}
			continue
		}
		issues := e.rt.Validate(ctx, schema, value)
		result.AddIssues(issues)
	}
	result.Finalize()
	e.metrics.RecordValidation(time.Since(start), result.Success)
	return result
}

func effectiveProfiles(value dynjson.Value, opts fhirschema.ValidateOptions) []string {
	set := make(map[string]bool)
	var ordered []string
	add := func(url string) {
		if url != "" && !set[url] {
			set[url] = true
			ordered = append(ordered, url)
		}
	}
	for _, p := range opts.Profiles {
		add(p)
	}
	if !opts.IgnoreSelfDeclaredProfiles {
		if meta, ok := value.Field("meta"); ok {
			if profileArr, ok := meta.Field("profile"); ok {
				if items, ok := profileArr.Array(); ok {
					for _, item := range items {
						if s, ok := item.String(); ok {
							add(s)
						}
					}
				}
			}
		}
	}
	if url, ok := stringField(value, "url"); ok {
		add(url)
	}
	sort.Strings(ordered)
	return ordered
}

func stringField(v dynjson.Value, name string) (string, bool) {
	f, ok := v.Field(name)
	if !ok {
		return "", false
	}
	return f.String()
}

// Metrics returns the engine's running counters.
func (e *Engine) Metrics() *fhirschema.Metrics { return e.metrics }

// Warnings returns the warnings of the most recent compilation. Every Load
// call recompiles all resources registered since construction, so these
// cover all of them; warnings of earlier compilations are not kept.
func (e *Engine) Warnings() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.comp.Warnings
}
