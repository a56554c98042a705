package fhirschema

import "testing"

func TestResultFinalizeDedup(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	r.AddIssue(NewIssue(SeverityError, IssueCardinalityViolation, "Patient.name", "min 1"))
	r.AddIssue(NewIssue(SeverityError, IssueCardinalityViolation, "Patient.name", "min 1"))
	r.AddIssue(NewIssue(SeverityWarning, IssueEnumViolation, "Patient.gender", "unknown code"))

	r.Finalize()

	if r.Success {
		t.Fatal("expected Success=false with an error issue present")
	}
	if len(r.Errors) != 1 {
		t.Fatalf("expected deduplicated errors, got %v", r.Errors)
	}
}

func TestResultFinalizeAllWarnings(t *testing.T) {
	r := AcquireResult()
	defer r.Release()

	r.AddIssue(NewIssue(SeverityWarning, IssueEnumViolation, "Patient.gender", "unknown code"))
	r.Finalize()

	if !r.Success {
		t.Fatal("warnings alone should not fail validation")
	}
	if len(r.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", r.Errors)
	}
}

func TestResultResetClearsState(t *testing.T) {
	r := AcquireResult()
	r.AddIssue(NewIssue(SeverityError, IssueTypeMismatch, "x", "y"))
	r.ResourceType = "Patient"
	r.Reset()

	if !r.Success || len(r.Issues) != 0 || r.ResourceType != "" {
		t.Fatalf("Reset did not clear state: %+v", r)
	}
}
