package issue

import (
	"testing"
)

func TestIssue_String(t *testing.T) {
	tests := []struct {
		name string
		is   Issue
		want string
	}{
		{
			name: "plain",
			is:   Issue{Severity: SeverityWarning, Diagnostics: "odd"},
			want: "warning: odd",
		},
		{
			name: "with path and position",
			is: Issue{
				Severity:    SeverityError,
				Diagnostics: "bad code",
				Expression:  []string{"Patient.gender"},
				Location:    &Location{Line: 2, Column: 5},
			},
			want: "error: bad code at Patient.gender (line 2, column 5)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.is.String(); got != tt.want {
				t.Errorf("String() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestResult_Counts(t *testing.T) {
	r := NewResult()
	if r.HasErrors() {
		t.Error("empty result has errors")
	}

	r.AddError(CodeRequired, "missing", "Patient.name")
	r.AddWarning(CodeCodeInvalid, "unlisted", "Patient.maritalStatus")
	r.AddInfo(CodeInformational, "dropped", "Patient.foo")
	r.AddIssue(Issue{Severity: SeverityFatal, Code: CodeStructure, Diagnostics: "broken"})

	if !r.HasErrors() {
		t.Error("HasErrors() = false")
	}
	if got := r.ErrorCount(); got != 2 {
		t.Errorf("ErrorCount() = %d; want 2 (error + fatal)", got)
	}
	if got := r.WarningCount(); got != 1 {
		t.Errorf("WarningCount() = %d; want 1", got)
	}
	if got := r.InfoCount(); got != 1 {
		t.Errorf("InfoCount() = %d; want 1", got)
	}
	if got := r.Filter(SeverityWarning); len(got) != 1 || got[0].Expression[0] != "Patient.maritalStatus" {
		t.Errorf("Filter(warning) = %+v", got)
	}
	if got := r.At("Patient.foo"); len(got) != 1 || got[0].Severity != SeverityInformation {
		t.Errorf("At(Patient.foo) = %+v", got)
	}
}

func TestResult_Merge(t *testing.T) {
	a := NewResult()
	a.AddError(CodeValue, "one")
	b := NewResult()
	b.AddWarning(CodeValue, "two")

	a.Merge(b)
	a.Merge(nil)

	if len(a.Issues) != 2 || a.Issues[1].Diagnostics != "two" {
		t.Errorf("Merge() = %+v", a.Issues)
	}
}

func TestNew_Template(t *testing.T) {
	is := New(DiagCardinalityMin, map[string]any{"path": "Patient.name", "min": 1, "count": 0}, "Patient.name")

	if is.Severity != SeverityError || is.Code != CodeRequired {
		t.Errorf("New() severity/code = %s/%s", is.Severity, is.Code)
	}
	if want := "Minimum cardinality of 'Patient.name' is 1, but found 0"; is.Diagnostics != want {
		t.Errorf("Diagnostics = %q; want %q", is.Diagnostics, want)
	}
	if is.MessageID != string(DiagCardinalityMin) {
		t.Errorf("MessageID = %q", is.MessageID)
	}
}

func TestNew_UnknownID(t *testing.T) {
	is := New("NO_SUCH_ID", nil)
	if is.Code != CodeProcessing || is.Diagnostics != "NO_SUCH_ID" {
		t.Errorf("New(unknown) = %+v", is)
	}
}

func TestAddWarningWithID(t *testing.T) {
	r := NewResult()
	r.AddWarningWithID(DiagCardinalityMin, nil, "X.y")
	if r.WarningCount() != 1 || r.ErrorCount() != 0 {
		t.Errorf("AddWarningWithID() issues = %+v", r.Issues)
	}
}
