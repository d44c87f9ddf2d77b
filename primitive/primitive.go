// Package primitive converts FHIR primitive values between their JSON form,
// their lexical (XML) form and their Go representation.
//
// Go representations:
//
//	boolean                            bool
//	integer, unsignedInt, positiveInt  int64
//	decimal                            decimal.Decimal (precision preserved)
//	everything else                    string
package primitive

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/gofhir/fhirschema/issue"
)

// Error describes a primitive value that cannot be accepted.
type Error struct {
	ID     issue.DiagnosticID
	Params map[string]any
}

func (e *Error) Error() string {
	return issue.FormatDiagnostic(e.ID, e.Params)
}

// jsonType represents the JSON type categories relevant for FHIR.
type jsonType int

const (
	jsonTypeUnknown jsonType = iota
	jsonTypeBoolean
	jsonTypeNumber
	jsonTypeString
)

func jsonTypeName(t jsonType) string {
	switch t {
	case jsonTypeBoolean:
		return "boolean"
	case jsonTypeNumber:
		return "number"
	case jsonTypeString:
		return "string"
	default:
		return "unknown"
	}
}

// expectedJSONType returns the JSON type a FHIR primitive serializes as.
func expectedJSONType(typeName string) jsonType {
	switch typeName {
	case "boolean":
		return jsonTypeBoolean
	case "integer", "unsignedInt", "positiveInt", "decimal":
		return jsonTypeNumber
	default:
		return jsonTypeString
	}
}

// Lexical patterns of the R4 primitive types.
var patterns = map[string]*regexp.Regexp{
	"id":           regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`),
	"code":         regexp.MustCompile(`^[^\s]+( [^\s]+)*$`),
	"date":         regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1]))?)?$`),
	"dateTime":     regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)(-(0[1-9]|1[0-2])(-(0[1-9]|[1-2][0-9]|3[0-1])(T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00)))?)?)?$`),
	"instant":      regexp.MustCompile(`^([0-9]([0-9]([0-9][1-9]|[1-9]0)|[1-9]00)|[1-9]000)-(0[1-9]|1[0-2])-(0[1-9]|[1-2][0-9]|3[0-1])T([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?(Z|(\+|-)((0[0-9]|1[0-3]):[0-5][0-9]|14:00))$`),
	"time":         regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]:([0-5][0-9]|60)(\.[0-9]+)?$`),
	"uri":          regexp.MustCompile(`^\S*$`),
	"url":          regexp.MustCompile(`^\S*$`),
	"canonical":    regexp.MustCompile(`^\S*$`),
	"oid":          regexp.MustCompile(`^urn:oid:[0-2](\.(0|[1-9][0-9]*))+$`),
	"uuid":         regexp.MustCompile(`^urn:uuid:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`),
	"base64Binary": regexp.MustCompile(`^(\s*([0-9a-zA-Z+/=]){4}\s*)+$`),
	"string":       regexp.MustCompile(`^[ \r\n\t\S]+$`),
	"markdown":     regexp.MustCompile(`^[ \r\n\t\S]+$`),
	"integer":      regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`),
	"unsignedInt":  regexp.MustCompile(`^(0|[1-9][0-9]*)$`),
	"positiveInt":  regexp.MustCompile(`^\+?[1-9][0-9]*$`),
	"decimal":      regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`),
}

// Decode converts a value produced by the JSON (or XML) reader into the Go
// representation of typeName, validating its JSON type and lexical form.
func Decode(typeName string, raw any) (any, error) {
	expected := expectedJSONType(typeName)
	if actual := jsonTypeOf(raw); actual != expected {
		return nil, &Error{
			ID:     issue.DiagTypeWrongJSONType,
			Params: map[string]any{"expected": jsonTypeName(expected)},
		}
	}

	switch expected {
	case jsonTypeBoolean:
		return raw.(bool), nil
	case jsonTypeNumber:
		return decodeNumber(typeName, numberText(raw))
	default:
		s := raw.(string)
		if err := checkFormat(typeName, s); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Parse converts a lexical form, as found in XML value attributes.
func Parse(typeName, lexical string) (any, error) {
	switch expectedJSONType(typeName) {
	case jsonTypeBoolean:
		switch lexical {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, invalidFormat(typeName, lexical)
	case jsonTypeNumber:
		return decodeNumber(typeName, lexical)
	default:
		if err := checkFormat(typeName, lexical); err != nil {
			return nil, err
		}
		return lexical, nil
	}
}

// Normalize checks a Go value supplied by application code and returns its
// canonical representation (e.g. int becomes int64, float64 becomes a
// decimal.Decimal for decimal fields).
func Normalize(typeName string, v any) (any, error) {
	switch expectedJSONType(typeName) {
	case jsonTypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case jsonTypeNumber:
		switch n := v.(type) {
		case int:
			return decodeNumber(typeName, strconv.Itoa(n))
		case int32:
			return decodeNumber(typeName, strconv.FormatInt(int64(n), 10))
		case int64:
			return decodeNumber(typeName, strconv.FormatInt(n, 10))
		case decimal.Decimal:
			if typeName == "decimal" {
				return n, nil
			}
			return decodeNumber(typeName, n.String())
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil, &Error{
					ID:     issue.DiagTypeOutOfRange,
					Params: map[string]any{"value": strconv.FormatFloat(n, 'g', -1, 64), "type": typeName},
				}
			}
			if typeName == "decimal" {
				return decimal.NewFromFloat(n), nil
			}
			return decodeNumber(typeName, strconv.FormatFloat(n, 'f', -1, 64))
		case json.Number:
			return decodeNumber(typeName, n.String())
		}
	default:
		if s, ok := v.(string); ok {
			if err := checkFormat(typeName, s); err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	return nil, &Error{
		ID:     issue.DiagTypeWrongJSONType,
		Params: map[string]any{"expected": jsonTypeName(expectedJSONType(typeName))},
	}
}

// Format returns the lexical form of a canonical Go value.
func Format(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case decimal.Decimal:
		return FormatDecimal(val)
	case string:
		return val
	default:
		return ""
	}
}

// FormatDecimal renders d keeping the number of fractional digits it was
// parsed with ("1.50" stays "1.50").
func FormatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// IsNumeric reports whether typeName serializes as a JSON number.
func IsNumeric(typeName string) bool {
	return expectedJSONType(typeName) == jsonTypeNumber
}

// IsBoolean reports whether typeName serializes as a JSON boolean.
func IsBoolean(typeName string) bool {
	return typeName == "boolean"
}

func jsonTypeOf(v any) jsonType {
	switch v.(type) {
	case bool:
		return jsonTypeBoolean
	case json.Number, float64, int64, int:
		return jsonTypeNumber
	case string:
		return jsonTypeString
	default:
		return jsonTypeUnknown
	}
}

func numberText(v any) string {
	switch n := v.(type) {
	case json.Number:
		return n.String()
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	}
	return ""
}

// Integer ranges of the R4 integer types (32-bit signed).
const (
	minInteger = math.MinInt32
	maxInteger = math.MaxInt32
)

func decodeNumber(typeName, text string) (any, error) {
	if err := checkFormat(typeName, text); err != nil {
		return nil, err
	}
	if typeName == "decimal" {
		d, err := decimal.NewFromString(text)
		if err != nil {
			return nil, invalidFormat(typeName, text)
		}
		return d, nil
	}

	n, err := strconv.ParseInt(strings.TrimPrefix(text, "+"), 10, 64)
	if err != nil || n < minInteger || n > maxInteger {
		return nil, &Error{
			ID:     issue.DiagTypeOutOfRange,
			Params: map[string]any{"value": text, "type": typeName},
		}
	}
	return n, nil
}

func checkFormat(typeName, value string) error {
	if typeName == "xhtml" {
		if !strings.HasPrefix(strings.TrimSpace(value), "<div") {
			return invalidFormat(typeName, value)
		}
		return nil
	}
	re, ok := patterns[typeName]
	if !ok {
		return nil
	}
	if !re.MatchString(value) {
		return invalidFormat(typeName, value)
	}
	return nil
}

func invalidFormat(typeName, value string) error {
	return &Error{
		ID:     issue.DiagTypeInvalidFormat,
		Params: map[string]any{"value": truncateValue(value), "type": typeName},
	}
}

// truncateValue shortens long values for diagnostics.
func truncateValue(value string) string {
	const maxLen = 50
	if len(value) <= maxLen {
		return value
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "..."
}
