package issue

import (
	"fmt"
	"strings"
)

// DiagnosticID identifies a specific diagnostic message.
type DiagnosticID string

// Structural diagnostics.
const (
	DiagStructureInvalidJSON      DiagnosticID = "STRUCTURE_INVALID_JSON"
	DiagStructureInvalidXML       DiagnosticID = "STRUCTURE_INVALID_XML"
	DiagStructureNotObject        DiagnosticID = "STRUCTURE_NOT_OBJECT"
	DiagStructureNoResourceType   DiagnosticID = "STRUCTURE_NO_RESOURCE_TYPE"
	DiagStructureUnknownResource  DiagnosticID = "STRUCTURE_UNKNOWN_RESOURCE"
	DiagStructureResourceMismatch DiagnosticID = "STRUCTURE_RESOURCE_MISMATCH"
	DiagStructureUnknownElement   DiagnosticID = "STRUCTURE_UNKNOWN_ELEMENT"
	DiagStructureDroppedElement   DiagnosticID = "STRUCTURE_DROPPED_ELEMENT"
	DiagStructureAmbiguousChoice  DiagnosticID = "STRUCTURE_AMBIGUOUS_CHOICE"
	DiagStructureArrayExpected    DiagnosticID = "STRUCTURE_ARRAY_EXPECTED"
	DiagStructureArrayUnexpected  DiagnosticID = "STRUCTURE_ARRAY_UNEXPECTED"
	DiagStructureObjectExpected   DiagnosticID = "STRUCTURE_OBJECT_EXPECTED"
	DiagStructureUndeclared       DiagnosticID = "STRUCTURE_UNDECLARED_ELEMENT"
	DiagStructureVariantKey       DiagnosticID = "STRUCTURE_VARIANT_KEY"
)

// Cardinality diagnostics.
const (
	DiagCardinalityMin DiagnosticID = "CARDINALITY_MIN"
	DiagCardinalityMax DiagnosticID = "CARDINALITY_MAX"
)

// Primitive type diagnostics.
const (
	DiagTypeWrongJSONType DiagnosticID = "TYPE_WRONG_JSON_TYPE"
	DiagTypeInvalidFormat DiagnosticID = "TYPE_INVALID_FORMAT"
	DiagTypeOutOfRange    DiagnosticID = "TYPE_OUT_OF_RANGE"
	DiagTypeNotAllowed    DiagnosticID = "TYPE_NOT_ALLOWED"
	DiagTypeUnsupported   DiagnosticID = "TYPE_UNSUPPORTED_VALUE"
)

// Binding diagnostics.
const (
	DiagBindingRequired        DiagnosticID = "BINDING_REQUIRED"
	DiagBindingExtensible      DiagnosticID = "BINDING_EXTENSIBLE"
	DiagBindingTextOnlyWarning DiagnosticID = "BINDING_TEXT_ONLY_WARNING"
	DiagBindingCannotValidate  DiagnosticID = "BINDING_CANNOT_VALIDATE"
)

// Reference diagnostics.
const (
	DiagReferenceInvalidFormat DiagnosticID = "REFERENCE_INVALID_FORMAT"
	DiagReferenceInvalidTarget DiagnosticID = "REFERENCE_INVALID_TARGET"
	DiagReferenceTypeMismatch  DiagnosticID = "REFERENCE_TYPE_MISMATCH"
)

// Invariant diagnostics.
const (
	DiagConstraintFailed       DiagnosticID = "CONSTRAINT_FAILED"
	DiagConstraintCompileError DiagnosticID = "CONSTRAINT_COMPILE_ERROR"
	DiagConstraintEvalError    DiagnosticID = "CONSTRAINT_EVAL_ERROR"
)

// DiagnosticTemplate defines the structure for a diagnostic message.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Severity Severity
	Code     Code
	Template string
}

// diagnosticTemplates maps diagnostic IDs to their templates.
// Templates use {placeholder} syntax for variable substitution.
var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	DiagStructureInvalidJSON: {
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Invalid JSON: {error}",
	},
	DiagStructureInvalidXML: {
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Invalid XML: {error}",
	},
	DiagStructureNotObject: {
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "A resource must be a JSON object",
	},
	DiagStructureNoResourceType: {
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Missing 'resourceType' property",
	},
	DiagStructureUnknownResource: {
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Unknown resourceType '{type}'",
	},
	DiagStructureResourceMismatch: {
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Expected resourceType '{expected}', but found '{type}'",
	},
	DiagStructureUnknownElement: {
		Severity: SeverityInformation,
		Code:     CodeInformational,
		Template: "Unknown element '{element}' preserved",
	},
	DiagStructureDroppedElement: {
		Severity: SeverityInformation,
		Code:     CodeInformational,
		Template: "Unknown element '{element}' dropped",
	},
	DiagStructureAmbiguousChoice: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Only one of {keys} may be present",
	},
	DiagStructureArrayExpected: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Element '{element}' must be an array",
	},
	DiagStructureArrayUnexpected: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Element '{element}' must not be an array",
	},
	DiagStructureObjectExpected: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Element '{element}' must be an object of type {type}",
	},
	DiagStructureUndeclared: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Element '{element}' is not declared by {type}",
	},
	DiagStructureVariantKey: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Element '{element}' is a variant of '{group}[x]' and must be set as a choice",
	},

	DiagCardinalityMin: {
		Severity: SeverityError,
		Code:     CodeRequired,
		Template: "Minimum cardinality of '{path}' is {min}, but found {count}",
	},
	DiagCardinalityMax: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Maximum cardinality of '{path}' is {max}, but found {count}",
	},

	DiagTypeWrongJSONType: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Error parsing JSON: the primitive value must be a {expected}",
	},
	DiagTypeInvalidFormat: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Value '{value}' does not match expected format for type {type}",
	},
	DiagTypeOutOfRange: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Value {value} is out of range for type {type}",
	},
	DiagTypeNotAllowed: {
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Type '{type}' is not allowed for '{element}'",
	},
	DiagTypeUnsupported: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "A Go value of type {goType} cannot be encoded as {type}",
	},

	DiagBindingRequired: {
		Severity: SeverityError,
		Code:     CodeCodeInvalid,
		Template: "The value provided ('{code}') is not in the value set '{valueSet}' (required)",
	},
	DiagBindingExtensible: {
		Severity: SeverityWarning,
		Code:     CodeCodeInvalid,
		Template: "The value provided ('{code}') is not in the value set '{valueSet}' (extensible)",
	},
	DiagBindingTextOnlyWarning: {
		Severity: SeverityWarning,
		Code:     CodeCodeInvalid,
		Template: "No code provided, and a code should be provided from the value set '{valueSet}' ({strength})",
	},
	DiagBindingCannotValidate: {
		Severity: SeverityInformation,
		Code:     CodeInformational,
		Template: "Code '{code}' cannot be validated locally against value set '{valueSet}'",
	},

	DiagReferenceInvalidFormat: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Invalid reference format: '{reference}'",
	},
	DiagReferenceInvalidTarget: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Invalid reference target type '{type}'. Allowed: {allowed}",
	},
	DiagReferenceTypeMismatch: {
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Reference type element '{type}' does not match reference target '{reference}'",
	},

	DiagConstraintFailed: {
		Severity: SeverityError,
		Code:     CodeInvariant,
		Template: "Constraint failed: {key}: '{human}'",
	},
	DiagConstraintCompileError: {
		Severity: SeverityWarning,
		Code:     CodeProcessing,
		Template: "Could not compile constraint '{key}': {error}",
	},
	DiagConstraintEvalError: {
		Severity: SeverityWarning,
		Code:     CodeProcessing,
		Template: "Could not evaluate constraint '{key}': {error}",
	},
}

// FormatDiagnostic formats a diagnostic message with the given parameters.
func FormatDiagnostic(id DiagnosticID, params map[string]any) string {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return string(id)
	}
	return formatTemplate(tmpl.Template, params)
}

// GetDiagnosticTemplate returns the template for a diagnostic ID.
func GetDiagnosticTemplate(id DiagnosticID) (DiagnosticTemplate, bool) {
	tmpl, ok := diagnosticTemplates[id]
	if ok {
		tmpl.ID = id
	}
	return tmpl, ok
}

// formatTemplate replaces {placeholder} with values from params.
func formatTemplate(template string, params map[string]any) string {
	result := template
	for key, value := range params {
		result = strings.ReplaceAll(result, "{"+key+"}", fmt.Sprint(value))
	}
	return result
}

// New builds an issue from a diagnostic template.
func New(id DiagnosticID, params map[string]any, expression ...string) Issue {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return Issue{
			Severity:    SeverityError,
			Code:        CodeProcessing,
			Diagnostics: string(id),
			Expression:  expression,
			MessageID:   string(id),
		}
	}
	return Issue{
		Severity:    tmpl.Severity,
		Code:        tmpl.Code,
		Diagnostics: formatTemplate(tmpl.Template, params),
		Expression:  expression,
		MessageID:   string(id),
	}
}

// AddWithID adds an issue built from a diagnostic template.
func (r *Result) AddWithID(id DiagnosticID, params map[string]any, expression ...string) {
	r.Issues = append(r.Issues, New(id, params, expression...))
}

// AddWarningWithID adds a template issue downgraded to a warning.
func (r *Result) AddWarningWithID(id DiagnosticID, params map[string]any, expression ...string) {
	is := New(id, params, expression...)
	is.Severity = SeverityWarning
	r.Issues = append(r.Issues, is)
}
