package fhirschema

import "testing"

func TestIssueIsError(t *testing.T) {
	cases := []struct {
		sev  IssueSeverity
		want bool
	}{
		{SeverityFatal, true},
		{SeverityError, true},
		{SeverityWarning, false},
		{SeverityInformation, false},
	}
	for _, c := range cases {
		got := NewIssue(c.sev, IssueTypeMismatch, "", "").IsError()
		if got != c.want {
			t.Errorf("IsError(%s) = %v, want %v", c.sev, got, c.want)
		}
	}
}

func TestIssueStringIncludesPath(t *testing.T) {
	i := NewIssue(SeverityError, IssueMissingRequiredField, "Patient.name", "required")
	s := i.String()
	if s == "" {
		t.Fatal("expected non-empty string")
	}
	if !contains(s, "Patient.name") {
		t.Errorf("String() = %q, expected to contain path", s)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
