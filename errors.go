package fhirschema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofhir/fhirschema/issue"
)

// Sentinel errors for errors.Is matching against the taxonomy.
var (
	ErrDecode     = errors.New("decode error")
	ErrValidation = errors.New("validation error")
	ErrSchema     = errors.New("schema error")
)

// DecodeError reports input that could not be parsed into a record:
// malformed JSON or XML, or a missing, unknown or unexpected resourceType.
type DecodeError struct {
	Path      string
	Line      int
	Column    int
	MessageID issue.DiagnosticID
	Err       error
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString("decode")
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " (line %d, column %d)", e.Line, e.Column)
	}
	sb.WriteString(": ")
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Issue converts the error to a fatal issue.
func (e *DecodeError) Issue() issue.Issue {
	is := issue.Issue{
		Severity:  issue.SeverityFatal,
		Code:      issue.CodeStructure,
		MessageID: string(e.MessageID),
	}
	if e.Err != nil {
		is.Diagnostics = e.Err.Error()
	}
	if e.Path != "" {
		is.Expression = []string{e.Path}
	}
	if e.Line > 0 {
		is.Location = &issue.Location{Line: e.Line, Column: e.Column}
	}
	return is
}

// ValidationError reports a well-formed document that violates a
// cardinality, binding, primitive, reference or invariant constraint.
type ValidationError struct {
	Path        string
	MessageID   issue.DiagnosticID
	Code        issue.Code
	Diagnostics string
	Line        int
	Column      int
}

// NewValidationError builds a ValidationError from a diagnostic template.
func NewValidationError(id issue.DiagnosticID, params map[string]any, path string) *ValidationError {
	is := issue.New(id, params, path)
	return &ValidationError{
		Path:        path,
		MessageID:   id,
		Code:        is.Code,
		Diagnostics: is.Diagnostics,
	}
}

func (e *ValidationError) Error() string {
	return e.Path + ": " + e.Diagnostics
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Issue converts the error to an error issue.
func (e *ValidationError) Issue() issue.Issue {
	is := issue.Issue{
		Severity:    issue.SeverityError,
		Code:        e.Code,
		Diagnostics: e.Diagnostics,
		Expression:  []string{e.Path},
		MessageID:   string(e.MessageID),
	}
	if e.Line > 0 {
		is.Location = &issue.Location{Line: e.Line, Column: e.Column}
	}
	return is
}

// SetPosition records the source position of the offending member.
func (e *ValidationError) SetPosition(line, column int) {
	e.Line, e.Column = line, column
}

// AmbiguousChoiceError reports more than one populated variant of a choice
// group. Path names the group, e.g. "Patient.deceased[x]".
type AmbiguousChoiceError struct {
	Path   string
	Keys   []string
	Line   int
	Column int
}

func (e *AmbiguousChoiceError) Error() string {
	return e.Path + ": ambiguous choice, found " + strings.Join(e.Keys, ", ")
}

// Is matches ErrValidation.
func (e *AmbiguousChoiceError) Is(target error) bool { return target == ErrValidation }

// Issue converts the error to an error issue.
func (e *AmbiguousChoiceError) Issue() issue.Issue {
	is := issue.New(issue.DiagStructureAmbiguousChoice,
		map[string]any{"keys": strings.Join(e.Keys, ", ")}, e.Path)
	if e.Line > 0 {
		is.Location = &issue.Location{Line: e.Line, Column: e.Column}
	}
	return is
}

// SetPosition records the source position of the offending member.
func (e *AmbiguousChoiceError) SetPosition(line, column int) {
	e.Line, e.Column = line, column
}

// SchemaError reports a static configuration defect: an unregistered type
// name, a duplicate registration or an inconsistent field declaration.
type SchemaError struct {
	Type   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	name := e.Type
	if e.Field != "" {
		name += "." + e.Field
	}
	if name == "" {
		return "schema: " + e.Reason
	}
	return "schema " + name + ": " + e.Reason
}

// Is matches ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Issue converts the error to a fatal processing issue.
func (e *SchemaError) Issue() issue.Issue {
	return issue.Issue{
		Severity:    issue.SeverityFatal,
		Code:        issue.CodeProcessing,
		Diagnostics: e.Error(),
	}
}

// Issues flattens err, including errors.Join trees, into a Result.
// Errors that do not belong to the taxonomy become processing issues.
func Issues(err error) *issue.Result {
	res := issue.NewResult()
	collectIssues(err, res)
	return res
}

func collectIssues(err error, res *issue.Result) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collectIssues(e, res)
		}
		return
	}
	if src, ok := err.(interface{ Issue() issue.Issue }); ok {
		res.AddIssue(src.Issue())
		return
	}
	res.AddIssue(issue.Issue{
		Severity:    issue.SeverityError,
		Code:        issue.CodeProcessing,
		Diagnostics: err.Error(),
	})
}
