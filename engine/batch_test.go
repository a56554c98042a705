package engine

import (
	"context"
	"strings"
	"testing"

	fhirschema "github.com/fhirschema/compiler"
)

func TestValidateBatchPreservesOrder(t *testing.T) {
	e := newTestEngine(t)
	docs := []any{
		map[string]any{"resourceType": "Patient", "active": true},
		map[string]any{"resourceType": "Patient", "active": "not-a-bool"},
		map[string]any{"resourceType": "Patient", "active": false},
	}
	opts := fhirschema.ValidateOptions{Profiles: []string{"http://hl7.org/fhir/StructureDefinition/Patient"}}

	results := e.ValidateBatch(context.Background(), docs, opts)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected doc 0 to succeed, got %v", results[0].Issues)
	}
	if results[1].Success {
		t.Fatal("expected doc 1 to fail on active type mismatch")
	}
	if !results[2].Success {
		t.Fatalf("expected doc 2 to succeed, got %v", results[2].Issues)
	}
}

func TestValidateBundleStreamEmitsOneEntryPerResource(t *testing.T) {
	e := newTestEngine(t)
	bundle := `{
	  "resourceType": "Bundle",
	  "type": "collection",
	  "entry": [
	    {"fullUrl": "urn:1", "resource": {"resourceType": "Patient", "id": "1", "active": true}},
	    {"fullUrl": "urn:2", "resource": {"resourceType": "Patient", "id": "2", "active": "bad"}}
	  ]
	}`
	opts := fhirschema.ValidateOptions{Profiles: []string{"http://hl7.org/fhir/StructureDefinition/Patient"}}

	ch := e.ValidateBundleStream(context.Background(), strings.NewReader(bundle), opts)
	summary := AggregateBundleResults(ch)

	if summary.TotalEntries != 2 {
		t.Fatalf("expected 2 entries, got %d", summary.TotalEntries)
	}
	if summary.EntriesWithErrors != 1 {
		t.Fatalf("expected 1 entry with errors, got %d", summary.EntriesWithErrors)
	}
}
