package depgraph

import (
	"sort"
	"testing"

	"github.com/fhirschema/compiler/registry"
)

func mustRF(t *testing.T, json string) registry.ResourceFile {
	t.Helper()
	rf, ok, err := registry.FromJSON("x.json", []byte(json))
	if err != nil || !ok {
		t.Fatalf("FromJSON: ok=%v err=%v", ok, err)
	}
	return rf
}

func TestAnalyzeStructureDefinition(t *testing.T) {
	rf := mustRF(t, `{
		"resourceType": "StructureDefinition",
		"url": "http://example.org/sd/Foo",
		"baseDefinition": "http://hl7.org/fhir/StructureDefinition/DomainResource",
		"snapshot": {
			"element": [
				{
					"id": "Foo.code",
					"type": [{"code": "code"}],
					"binding": {"strength": "required", "valueSet": "http://example.org/vs/Codes"}
				},
				{
					"id": "Foo.ref",
					"type": [{"code": "Reference", "targetProfile": ["http://example.org/sd/Bar"]}]
				},
				{
					"id": "Foo",
					"constraint": [{"source": "http://hl7.org/fhir/StructureDefinition/Element", "key": "ele-1"}, {"source": "http://example.org/sd/Foo", "key": "foo-1"}]
				}
			]
		}
	}`)

	deps := Analyze(rf)
	sort.Strings(deps)

	want := map[string]bool{
		"http://hl7.org/fhir/StructureDefinition/DomainResource": true,
		"http://hl7.org/fhir/StructureDefinition/code":           true,
		"http://example.org/vs/Codes":                            true,
		"http://hl7.org/fhir/StructureDefinition/Reference":      true,
		"http://example.org/sd/Bar":                              true,
	}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want keys %v", deps, want)
	}
	for _, d := range deps {
		if !want[d] {
			t.Errorf("unexpected dependency %q", d)
		}
	}
}

func TestAnalyzeExcludesSelfConstraintSource(t *testing.T) {
	rf := mustRF(t, `{
		"resourceType": "StructureDefinition",
		"url": "http://example.org/sd/Foo",
		"snapshot": {"element": [{"id": "Foo", "constraint": [{"source": "http://example.org/sd/Foo"}]}]}
	}`)
	deps := Analyze(rf)
	if len(deps) != 0 {
		t.Fatalf("expected no deps (self-reference excluded), got %v", deps)
	}
}

func TestAnalyzeValueSet(t *testing.T) {
	rf := mustRF(t, `{
		"resourceType": "ValueSet",
		"url": "http://example.org/vs/A",
		"compose": {
			"include": [{"system": "http://example.org/cs/X"}, {"valueSet": ["http://example.org/vs/B"]}],
			"exclude": [{"system": "http://example.org/cs/Y"}]
		}
	}`)
	deps := Analyze(rf)
	sort.Strings(deps)
	want := []string{"http://example.org/cs/X", "http://example.org/cs/Y", "http://example.org/vs/B"}
	if len(deps) != len(want) {
		t.Fatalf("got %v, want %v", deps, want)
	}
}

func TestAnalyzeCodeSystemSupplements(t *testing.T) {
	rf := mustRF(t, `{"resourceType":"CodeSystem","url":"http://x/CS","supplements":"http://x/Base"}`)
	deps := Analyze(rf)
	if len(deps) != 1 || deps[0] != "http://x/Base" {
		t.Fatalf("got %v", deps)
	}
}

func TestAnalyzeBareTypeCodeCanonicalized(t *testing.T) {
	if got := canonicalize("string"); got != "http://hl7.org/fhir/StructureDefinition/string" {
		t.Fatalf("canonicalize(string) = %s", got)
	}
	if got := canonicalize("http://example.org/x"); got != "http://example.org/x" {
		t.Fatalf("canonicalize should not rewrite URLs, got %s", got)
	}
}
