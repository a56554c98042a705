package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	fhirschema "github.com/fhirschema/compiler"
)

const patientSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/Patient",
  "name": "Patient",
  "status": "active",
  "kind": "resource",
  "type": "Patient",
  "snapshot": {
    "element": [
      {"id": "Patient", "path": "Patient", "min": 0, "max": "1"},
      {"id": "Patient.active", "path": "Patient.active", "min": 0, "max": "1", "type": [{"code": "boolean"}]},
      {"id": "Patient.name", "path": "Patient.name", "min": 0, "max": "*", "type": [{"code": "HumanName"}]}
    ]
  }
}`

const humanNameSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/HumanName",
  "name": "HumanName",
  "status": "active",
  "kind": "complex-type",
  "type": "HumanName",
  "snapshot": {
    "element": [
      {"id": "HumanName", "path": "HumanName", "min": 0, "max": "1"},
      {"id": "HumanName.family", "path": "HumanName.family", "min": 0, "max": "1", "type": [{"code": "string"}]}
    ]
  }
}`

const stringSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/string",
  "name": "string",
  "status": "active",
  "kind": "primitive-type",
  "type": "string",
  "snapshot": {
    "element": [
      {"id": "string", "path": "string", "min": 0, "max": "1"},
      {"id": "string.value", "path": "string.value", "min": 0, "max": "1", "type": [{"code": "string"}]}
    ]
  }
}`

const booleanSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/boolean",
  "name": "boolean",
  "status": "active",
  "kind": "primitive-type",
  "type": "boolean",
  "snapshot": {
    "element": [
      {"id": "boolean", "path": "boolean", "min": 0, "max": "1"},
      {"id": "boolean.value", "path": "boolean.value", "min": 0, "max": "1", "type": [{"code": "boolean"}]}
    ]
  }
}`

func writeProfiles(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"Patient.json":   patientSD,
		"HumanName.json": humanNameSD,
		"string.json":    stringSD,
		"boolean.json":   booleanSD,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	writeProfiles(t, dir)

	e, err := New(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := e.LoadFiles(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRecognizesLoadedProfile(t *testing.T) {
	e := newTestEngine(t)
	if !e.Recognizes("http://hl7.org/fhir/StructureDefinition/Patient") {
		t.Fatal("expected Patient profile to be recognized")
	}
	if e.Recognizes("http://hl7.org/fhir/StructureDefinition/Observation") {
		t.Fatal("expected Observation to be unrecognized")
	}
}

func TestValidateMinimalPatientSucceeds(t *testing.T) {
	e := newTestEngine(t)
	doc := map[string]any{
		"resourceType": "Patient",
		"active":       true,
		"name":         []any{map[string]any{"family": "Smith"}},
	}
	result := e.Validate(context.Background(), doc, fhirschema.ValidateOptions{
		Profiles: []string{"http://hl7.org/fhir/StructureDefinition/Patient"},
	})
	if !result.Success {
		t.Fatalf("expected success, got issues: %v", result.Issues)
	}
}

func TestValidateStampsRunID(t *testing.T) {
	e := newTestEngine(t)
	doc := map[string]any{"resourceType": "Patient", "name": []any{map[string]any{"family": "Smith"}}}
	result := e.Validate(context.Background(), doc, fhirschema.ValidateOptions{
		Profiles: []string{"http://hl7.org/fhir/StructureDefinition/Patient"},
		RunID:    "run-1234",
	})
	if result.RunID != "run-1234" {
		t.Fatalf("expected RunID to be stamped, got %q", result.RunID)
	}
}

func TestValidateUnknownProfileReportsIssue(t *testing.T) {
	e := newTestEngine(t)
	doc := map[string]any{"resourceType": "Patient"}
	result := e.Validate(context.Background(), doc, fhirschema.ValidateOptions{
		Profiles: []string{"http://example.org/unknown-profile"},
	})
	if result.Success {
		t.Fatal("expected failure for an unrecognized profile")
	}
	found := false
	for _, iss := range result.Issues {
		if iss.Code == fhirschema.IssueUnknownProfile {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an unknown-profile issue, got %v", result.Issues)
	}
}

func TestValidateIgnoreUnknownSchemasSuppressesIssue(t *testing.T) {
	e := newTestEngine(t)
	doc := map[string]any{"resourceType": "Patient"}
	result := e.Validate(context.Background(), doc, fhirschema.ValidateOptions{
		Profiles:             []string{"http://example.org/unknown-profile"},
		IgnoreUnknownSchemas: true,
	})
	if !result.Success {
		t.Fatalf("expected success when unknown schemas are ignored, got %v", result.Issues)
	}
}

func TestEffectiveProfilesUnionsSelfDeclaredAndURL(t *testing.T) {
	e := newTestEngine(t)
	doc := map[string]any{
		"resourceType": "Patient",
		"meta":         map[string]any{"profile": []any{"http://hl7.org/fhir/StructureDefinition/Patient"}},
		"url":          "http://example.org/StructureDefinition/Declared",
	}
	result := e.Validate(context.Background(), doc, fhirschema.ValidateOptions{})
	if len(result.ProfileURLs) != 2 {
		t.Fatalf("expected the self-declared profile and the document url to be picked up, got %v", result.ProfileURLs)
	}
}

func TestEffectiveProfilesIgnoresSelfDeclaredWhenRequested(t *testing.T) {
	e := newTestEngine(t)
	doc := map[string]any{
		"resourceType": "Patient",
		"meta":         map[string]any{"profile": []any{"http://hl7.org/fhir/StructureDefinition/Patient"}},
	}
	result := e.Validate(context.Background(), doc, fhirschema.ValidateOptions{IgnoreSelfDeclaredProfiles: true})
	if len(result.ProfileURLs) != 0 {
		t.Fatalf("expected no profiles when self-declared ones are ignored, got %v", result.ProfileURLs)
	}
}
