// Package depgraph extracts outbound canonical-URL references from a
// registered conformance resource and orders resources leaves-first
// while tolerating cycles. Resolving StructureDefinitions lazily and
// on-demand at validation time, as a direct schema walker would, doesn't
// scale to a compile-once model; scheduling independent validation
// phases by priority groups is the closer relative, generalized here
// into a real dependency graph: a stable base order refined by explicit
// edges.
package depgraph

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/fhirschema/compiler/registry"
)

const baseNamespace = "http://hl7.org/fhir/StructureDefinition/"

// canonicalize rewrites a bare FHIR type code (no URL scheme) to the
// canonical base StructureDefinition namespace.
func canonicalize(code string) string {
	if code == "" {
		return ""
	}
	if strings.Contains(code, "://") {
		return code
	}
	return baseNamespace + code
}

// Analyze returns the deduplicated, sorted set of canonical URLs rf
// depends on, per resource-kind-specific extraction rules.
func Analyze(rf registry.ResourceFile) []string {
	set := make(map[string]bool)
	add := func(url string) {
		if url != "" {
			set[url] = true
		}
	}

	switch rf.ResourceType {
	case registry.TypeStructureDefinition:
		analyzeStructureDefinition(rf, add)
	case registry.TypeValueSet:
		analyzeValueSet(rf, add)
	case registry.TypeCodeSystem:
		analyzeCodeSystem(rf, add)
	case registry.TypeConceptMap:
		analyzeConceptMap(rf, add)
	case registry.TypeStructureMap:
		analyzeStructureMap(rf, add)
	case registry.TypeImplementationGuide:
		analyzeImplementationGuide(rf, add)
	}

	delete(set, rf.URL)

	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

const ambientElementBase = "http://hl7.org/fhir/StructureDefinition/Element"

func analyzeStructureDefinition(rf registry.ResourceFile, add func(string)) {
	var sd r4.StructureDefinition
	if err := json.Unmarshal(rf.Raw, &sd); err != nil {
		return
	}
	if sd.BaseDefinition != nil {
		add(*sd.BaseDefinition)
	}

	if sd.Snapshot == nil {
		return
	}
	for _, el := range sd.Snapshot.Element {
		for _, t := range el.Type {
			if t.Code != nil {
				add(canonicalize(*t.Code))
			}
			for _, p := range t.Profile {
				add(p)
			}
			for _, p := range t.TargetProfile {
				add(p)
			}
		}
		for _, c := range el.Constraint {
			if c.Source != nil && *c.Source != ambientElementBase {
				add(*c.Source)
			}
		}
		if el.Binding != nil && el.Binding.Strength != nil && *el.Binding.Strength == "required" && el.Binding.ValueSet != nil {
			add(*el.Binding.ValueSet)
		}
	}
}

func analyzeValueSet(rf registry.ResourceFile, add func(string)) {
	var vs r4.ValueSet
	if err := json.Unmarshal(rf.Raw, &vs); err != nil {
		return
	}
	if vs.Compose == nil {
		return
	}
	entries := append(append([]r4.ValueSetComposeInclude{}, vs.Compose.Include...), vs.Compose.Exclude...)
	for _, entry := range entries {
		for _, v := range entry.ValueSet {
			add(v)
		}
		if entry.System != nil {
			add(*entry.System)
		}
	}
}

func analyzeCodeSystem(rf registry.ResourceFile, add func(string)) {
	var cs r4.CodeSystem
	if err := json.Unmarshal(rf.Raw, &cs); err != nil {
		return
	}
	if cs.Supplements != nil {
		add(*cs.Supplements)
	}
}

type conceptMapShape struct {
	SourceString string `json:"sourceString"`
	TargetString string `json:"targetString"`
	Group        []struct {
		Source  string `json:"source"`
		Target  string `json:"target"`
		Element []struct {
			Target []struct {
				DependsOn []struct {
					System string `json:"system"`
				} `json:"dependsOn"`
			} `json:"target"`
		} `json:"element"`
	} `json:"group"`
}

func analyzeConceptMap(rf registry.ResourceFile, add func(string)) {
	var cm conceptMapShape
	if err := json.Unmarshal(rf.Raw, &cm); err != nil {
		return
	}
	add(cm.SourceString)
	add(cm.TargetString)
	for _, g := range cm.Group {
		add(g.Source)
		add(g.Target)
		for _, el := range g.Element {
			for _, t := range el.Target {
				for _, d := range t.DependsOn {
					add(d.System)
				}
			}
		}
	}
}

type structureMapShape struct {
	Structure []struct {
		URL string `json:"url"`
	} `json:"structure"`
	Import []string `json:"import"`
}

func analyzeStructureMap(rf registry.ResourceFile, add func(string)) {
	var sm structureMapShape
	if err := json.Unmarshal(rf.Raw, &sm); err != nil {
		return
	}
	for _, s := range sm.Structure {
		add(s.URL)
	}
	for _, i := range sm.Import {
		add(i)
	}
}

type igShape struct {
	DependsOn []struct {
		URI string `json:"uri"`
	} `json:"dependsOn"`
	Global []struct {
		Profile string `json:"profile"`
	} `json:"global"`
}

func analyzeImplementationGuide(rf registry.ResourceFile, add func(string)) {
	var ig igShape
	if err := json.Unmarshal(rf.Raw, &ig); err != nil {
		return
	}
	for _, d := range ig.DependsOn {
		add(d.URI)
	}
	for _, g := range ig.Global {
		add(g.Profile)
	}
}
