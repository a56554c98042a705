// Package registry accepts ResourceFile descriptors — one per on-disk JSON
// FHIR conformance resource — deduplicates overlapping URLs, and exposes
// a stable iteration order for the dependency analyzer and topological
// sorter to consume. It keeps the same raw-JSON-preserving load-then-index
// shape used for StructureDefinition elsewhere in this module, generalized
// to every conformance resource kind (StructureDefinition, ValueSet,
// CodeSystem, ConceptMap, StructureMap, ImplementationGuide).
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gofhir/fhir/r4"
)

// ResourceType enumerates the conformance resource kinds the Registry
// understands.
type ResourceType string

// Supported resource types.
const (
	TypeStructureDefinition ResourceType = "StructureDefinition"
	TypeValueSet            ResourceType = "ValueSet"
	TypeCodeSystem          ResourceType = "CodeSystem"
	TypeConceptMap          ResourceType = "ConceptMap"
	TypeStructureMap        ResourceType = "StructureMap"
	TypeImplementationGuide ResourceType = "ImplementationGuide"
)

// StructureDefinitionKind enumerates StructureDefinition.kind values.
type StructureDefinitionKind string

// Supported StructureDefinition kinds.
const (
	KindPrimitiveType StructureDefinitionKind = "primitive-type"
	KindComplexType   StructureDefinitionKind = "complex-type"
	KindResource      StructureDefinitionKind = "resource"
	KindLogical       StructureDefinitionKind = "logical"
)

// Status enumerates conformance resource publication status.
type Status string

// Supported statuses.
const (
	StatusActive  Status = "active"
	StatusDraft   Status = "draft"
	StatusRetired Status = "retired"
	StatusUnknown Status = "unknown"
)

// ResourceFile is one registry entry: metadata about a single on-disk (or
// in-memory) JSON conformance resource, plus its raw bytes for later
// stages (Dependency Analyzer, Intermediate Form Builder) to parse fully.
type ResourceFile struct {
	FilePath       string
	ResourceType   ResourceType
	URL            string
	Name           string
	Kind           StructureDefinitionKind // only meaningful for StructureDefinition
	BaseDefinition string
	Date           string
	Status         Status
	Experimental   bool

	// Raw holds the complete decoded JSON document, kept around so later
	// compiler stages never need to re-read from disk.
	Raw json.RawMessage
}

// resourceTypeProbe is the minimal shape read from every candidate file
// just to classify its resourceType before a full ResourceFile is built.
type resourceTypeProbe struct {
	ResourceType string `json:"resourceType"`
}

// otherProbe carries the metadata fields for the conformance resource
// kinds no typed decoder is wired up for below (ConceptMap, StructureMap,
// ImplementationGuide never participate in compilation, only in the
// dependency graph, so a typed decode buys nothing for them).
type otherProbe struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	Experimental bool   `json:"experimental"`
}

// FromJSON classifies raw JSON bytes into a ResourceFile. It returns
// ok=false (with no error) for JSON that parses but isn't a recognized
// conformance resource type, so callers can silently skip unrelated files.
// StructureDefinition, CodeSystem, and ValueSet are decoded into their
// typed r4 model to pull metadata, matching how the loader decodes
// conformance resources before indexing them.
func FromJSON(filePath string, data json.RawMessage) (ResourceFile, bool, error) {
	var p resourceTypeProbe
	if err := json.Unmarshal(data, &p); err != nil {
		return ResourceFile{}, false, fmt.Errorf("registry: parse %s: %w", filePath, err)
	}

	rt := ResourceType(p.ResourceType)

	var (
		url, name, baseDefinition, date, statusStr string
		kind                                       StructureDefinitionKind
		experimental                                bool
	)

	switch rt {
	case TypeStructureDefinition:
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return ResourceFile{}, false, fmt.Errorf("registry: parse %s: %w", filePath, err)
		}
		url = derefString(sd.Url)
		name = derefString(sd.Name)
		baseDefinition = derefString(sd.BaseDefinition)
		date = derefString(sd.Date)
		experimental = derefBool(sd.Experimental)
		if sd.Kind != nil {
			kind = StructureDefinitionKind(*sd.Kind)
		}
		if sd.Status != nil {
			statusStr = string(*sd.Status)
		}

	case TypeCodeSystem:
		var cs r4.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return ResourceFile{}, false, fmt.Errorf("registry: parse %s: %w", filePath, err)
		}
		url = derefString(cs.Url)
		name = derefString(cs.Name)
		date = derefString(cs.Date)
		experimental = derefBool(cs.Experimental)
		if cs.Status != nil {
			statusStr = string(*cs.Status)
		}

	case TypeValueSet:
		var vs r4.ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return ResourceFile{}, false, fmt.Errorf("registry: parse %s: %w", filePath, err)
		}
		url = derefString(vs.Url)
		name = derefString(vs.Name)
		date = derefString(vs.Date)
		experimental = derefBool(vs.Experimental)
		if vs.Status != nil {
			statusStr = string(*vs.Status)
		}

	case TypeConceptMap, TypeStructureMap, TypeImplementationGuide:
		var op otherProbe
		if err := json.Unmarshal(data, &op); err != nil {
			return ResourceFile{}, false, fmt.Errorf("registry: parse %s: %w", filePath, err)
		}
		url, name, date, statusStr, experimental = op.URL, op.Name, op.Date, op.Status, op.Experimental

	default:
		return ResourceFile{}, false, nil
	}

	status := Status(statusStr)
	switch status {
	case StatusActive, StatusDraft, StatusRetired:
	default:
		status = StatusUnknown
	}

	rf := ResourceFile{
		FilePath:       filePath,
		ResourceType:   rt,
		URL:            url,
		Name:           name,
		Kind:           kind,
		BaseDefinition: baseDefinition,
		Date:           date,
		Status:         status,
		Experimental:   experimental,
		Raw:            data,
	}
	return rf, true, nil
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

// Registry holds ResourceFiles deduplicated by canonical URL.
type Registry struct {
	mu      sync.RWMutex
	byURL   map[string]ResourceFile
	dropped []ResourceFile // overlapping definitions that lost dedup
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byURL: make(map[string]ResourceFile)}
}

// Add registers one ResourceFile, applying a four-step dedup cascade
// whenever a resource with the same URL is already registered:
//
//  1. Prefer status=active; else tolerate non-retired.
//  2. Prefer experimental=false.
//  3. Prefer the lexicographically greatest date.
//  4. If still multiple, keep the lexicographically smallest file path —
//     an order-independent tie-break, so the same two files registered
//     in either order select the same winner.
//
// Each step only applies if it would strictly narrow the candidate set.
func (r *Registry) Add(rf ResourceFile) {
	if rf.URL == "" {
		// Resources without a canonical URL (rare, e.g. some
		// ImplementationGuides) are still tracked, keyed by file path so
		// they participate in iteration but never collide.
		rf.URL = "file:" + rf.FilePath
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.byURL[rf.URL]
	if !exists {
		r.byURL[rf.URL] = rf
		return
	}

	winner, loser := dedupCascade(existing, rf)
	r.byURL[rf.URL] = winner
	r.dropped = append(r.dropped, loser)
}

// dedupCascade applies the four-step cascade and returns (winner, loser).
func dedupCascade(a, b ResourceFile) (winner, loser ResourceFile) {
	candidates := []ResourceFile{a, b}

	candidates = narrow(candidates, func(rf ResourceFile) bool {
		return rf.Status == StatusActive
	})
	candidates = narrow(candidates, func(rf ResourceFile) bool {
		return rf.Status != StatusRetired
	})
	candidates = narrow(candidates, func(rf ResourceFile) bool {
		return !rf.Experimental
	})

	if len(candidates) > 1 {
		maxDate := candidates[0].Date
		for _, c := range candidates[1:] {
			if c.Date > maxDate {
				maxDate = c.Date
			}
		}
		candidates = narrow(candidates, func(rf ResourceFile) bool {
			return rf.Date == maxDate
		})
	}

	// Last resort: lexicographically smallest file path, an order-independent
	// key so registering the same two files in either order (with identical
	// status/experimental/date) picks the same winner.
	winner = candidates[0]
	for _, c := range candidates[1:] {
		if c.FilePath < winner.FilePath {
			winner = c
		}
	}

	if winner.FilePath == a.FilePath {
		return a, b
	}
	return b, a
}

// narrow filters candidates by pred, but only if doing so leaves a
// non-empty, strictly smaller set.
func narrow(candidates []ResourceFile, pred func(ResourceFile) bool) []ResourceFile {
	var kept []ResourceFile
	for _, c := range candidates {
		if pred(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 || len(kept) == len(candidates) {
		return candidates
	}
	return kept
}

// Get returns the ResourceFile registered under url, if any.
func (r *Registry) Get(url string) (ResourceFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rf, ok := r.byURL[url]
	return rf, ok
}

// Dropped returns the overlapping definitions that lost the dedup cascade.
func (r *Registry) Dropped() []ResourceFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceFile, len(r.dropped))
	copy(out, r.dropped)
	return out
}

// Count returns the number of unique-by-URL resources registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byURL)
}

// kindRank implements the by-kind stabilizer order:
// ImplementationGuide < StructureDefinition < ValueSet < CodeSystem < ConceptMap.
func kindRank(rt ResourceType) int {
	switch rt {
	case TypeImplementationGuide:
		return 0
	case TypeStructureDefinition:
		return 1
	case TypeValueSet:
		return 2
	case TypeCodeSystem:
		return 3
	case TypeConceptMap:
		return 4
	case TypeStructureMap:
		return 5
	default:
		return 6
	}
}

// sdKindRank sub-orders StructureDefinitions: resource < complex-type < primitive.
func sdKindRank(k StructureDefinitionKind) int {
	switch k {
	case KindResource:
		return 0
	case KindComplexType:
		return 1
	case KindPrimitiveType:
		return 2
	default:
		return 3
	}
}

// All returns every unique-by-URL ResourceFile, ordered by the by-kind
// stabilizer comparator (kind, then StructureDefinition sub-kind, then
// name, then url). This is the stable base ordering the topological
// sorter refines using dependency edges.
func (r *Registry) All() []ResourceFile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ResourceFile, 0, len(r.byURL))
	for _, rf := range r.byURL {
		out = append(out, rf)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if kindRank(a.ResourceType) != kindRank(b.ResourceType) {
			return kindRank(a.ResourceType) < kindRank(b.ResourceType)
		}
		if a.ResourceType == TypeStructureDefinition && b.ResourceType == TypeStructureDefinition {
			if sdKindRank(a.Kind) != sdKindRank(b.Kind) {
				return sdKindRank(a.Kind) < sdKindRank(b.Kind)
			}
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.URL < b.URL
	})
	return out
}
