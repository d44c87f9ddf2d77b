package invariant

import (
	"testing"

	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/schema"
)

var org1 = schema.Invariant{
	Key:        "org-1",
	Severity:   "error",
	Human:      "The organization SHALL at least have a name or an identifier",
	Expression: "(identifier.count() + name.count()) > 0",
}

func TestCheck(t *testing.T) {
	e := New(16)

	tests := []struct {
		name     string
		resource string
		wantIDs  []string
	}{
		{
			name:     "named organization passes",
			resource: `{"resourceType":"Organization","name":"Acme"}`,
		},
		{
			name:     "identified organization passes",
			resource: `{"resourceType":"Organization","identifier":[{"value":"1"}]}`,
		},
		{
			name:     "anonymous organization fails",
			resource: `{"resourceType":"Organization","active":true}`,
			wantIDs:  []string{string(issue.DiagConstraintFailed)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Check([]byte(tt.resource), []schema.Invariant{org1}, "Organization")
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Check() = %v; want %d issues", got, len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].MessageID != id {
					t.Errorf("issue[%d].MessageID = %q; want %q", i, got[i].MessageID, id)
				}
				if got[i].Severity != issue.SeverityError {
					t.Errorf("issue[%d].Severity = %q", i, got[i].Severity)
				}
				if got[i].Expression[0] != "Organization" {
					t.Errorf("issue[%d].Expression = %v", i, got[i].Expression)
				}
			}
		})
	}
}

func TestWarningSeverity(t *testing.T) {
	e := New(4)
	inv := schema.Invariant{Key: "x-1", Severity: "warning", Human: "should have a name", Expression: "name.exists()"}

	got := e.Check([]byte(`{"resourceType":"Organization"}`), []schema.Invariant{inv}, "Organization")
	if len(got) != 1 || got[0].Severity != issue.SeverityWarning {
		t.Fatalf("Check() = %v; want one warning", got)
	}
}

func TestCompileErrorIsAdvisory(t *testing.T) {
	e := New(4)
	inv := schema.Invariant{Key: "bad-1", Severity: "error", Expression: "name.where(("}

	got := e.Check([]byte(`{"resourceType":"Patient"}`), []schema.Invariant{inv}, "Patient")
	if len(got) != 1 {
		t.Fatalf("Check() = %v; want one issue", got)
	}
	if got[0].MessageID != string(issue.DiagConstraintCompileError) || got[0].Severity != issue.SeverityWarning {
		t.Errorf("issue = %+v", got[0])
	}
	if err := e.Compile("name.where(("); err == nil {
		t.Error("Compile() should fail")
	}
}

func TestExpressionsAreCached(t *testing.T) {
	e := New(4)
	data := []byte(`{"resourceType":"Organization","name":"Acme"}`)
	for i := 0; i < 3; i++ {
		e.Check(data, []schema.Invariant{org1}, "Organization")
	}
	s := e.Stats()
	if s.Size != 1 || s.Hits != 2 {
		t.Errorf("Stats() = %+v; want one entry and two hits", s)
	}
}
