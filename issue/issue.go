// Package issue defines codec issues aligned with FHIR OperationOutcome.
package issue

import (
	"fmt"
	"strings"
)

// Severity represents the severity of an issue.
type Severity string

// Severity constants aligned with FHIR IssueSeverity.
const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Code represents the type of issue (IssueType).
type Code string

// Code constants aligned with FHIR IssueType.
const (
	CodeInvalid       Code = "invalid"
	CodeStructure     Code = "structure"
	CodeRequired      Code = "required"
	CodeValue         Code = "value"
	CodeInvariant     Code = "invariant"
	CodeProcessing    Code = "processing"
	CodeNotSupported  Code = "not-supported"
	CodeNotFound      Code = "not-found"
	CodeCodeInvalid   Code = "code-invalid"
	CodeExtension     Code = "extension"
	CodeInformational Code = "informational"
)

// Issue is a single finding produced while decoding or validating a record.
type Issue struct {
	Severity    Severity  `json:"severity"`
	Code        Code      `json:"code"`
	Diagnostics string    `json:"diagnostics"`
	Expression  []string  `json:"expression,omitempty"`
	Location    *Location `json:"location,omitempty"`
	MessageID   string    `json:"messageId,omitempty"`
}

// Location represents the position in the source document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsError reports whether the issue is error or fatal.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// String renders the issue as "severity: diagnostics at path".
func (i Issue) String() string {
	var sb strings.Builder
	sb.WriteString(string(i.Severity))
	sb.WriteString(": ")
	sb.WriteString(i.Diagnostics)
	if len(i.Expression) > 0 {
		sb.WriteString(" at ")
		sb.WriteString(strings.Join(i.Expression, ", "))
	}
	if i.Location != nil {
		fmt.Fprintf(&sb, " (line %d, column %d)", i.Location.Line, i.Location.Column)
	}
	return sb.String()
}

// Result holds the issues collected for one document.
type Result struct {
	ResourceType string  `json:"resourceType,omitempty"`
	Issues       []Issue `json:"issues"`
}

// NewResult creates an empty Result.
func NewResult() *Result {
	return &Result{Issues: make([]Issue, 0, 8)}
}

// AddIssue adds an issue to the result.
func (r *Result) AddIssue(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// AddError adds an error-level issue.
func (r *Result) AddError(code Code, diagnostics string, expression ...string) {
	r.Issues = append(r.Issues, Issue{
		Severity:    SeverityError,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  expression,
	})
}

// AddWarning adds a warning-level issue.
func (r *Result) AddWarning(code Code, diagnostics string, expression ...string) {
	r.Issues = append(r.Issues, Issue{
		Severity:    SeverityWarning,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  expression,
	})
}

// AddInfo adds an information-level issue.
func (r *Result) AddInfo(code Code, diagnostics string, expression ...string) {
	r.Issues = append(r.Issues, Issue{
		Severity:    SeverityInformation,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  expression,
	})
}

// Merge appends the issues of other.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Issues = append(r.Issues, other.Issues...)
}

// HasErrors returns true if there are any error-level issues.
func (r *Result) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.IsError() {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int {
	return r.count(func(i Issue) bool { return i.IsError() })
}

// WarningCount returns the number of warning-level issues.
func (r *Result) WarningCount() int {
	return r.count(func(i Issue) bool { return i.Severity == SeverityWarning })
}

// InfoCount returns the number of information-level issues.
func (r *Result) InfoCount() int {
	return r.count(func(i Issue) bool { return i.Severity == SeverityInformation })
}

func (r *Result) count(match func(Issue) bool) int {
	n := 0
	for _, issue := range r.Issues {
		if match(issue) {
			n++
		}
	}
	return n
}

// Filter returns the issues with the given severity.
func (r *Result) Filter(severity Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}

// At returns the issues whose expression includes path.
func (r *Result) At(path string) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		for _, expr := range issue.Expression {
			if expr == path {
				out = append(out, issue)
				break
			}
		}
	}
	return out
}
