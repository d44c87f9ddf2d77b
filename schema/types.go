package schema

import "strings"

// PrimitiveTypes contains all FHIR R4 primitive type codes.
var PrimitiveTypes = map[string]bool{
	"boolean":      true,
	"integer":      true,
	"string":       true,
	"decimal":      true,
	"uri":          true,
	"url":          true,
	"canonical":    true,
	"base64Binary": true,
	"instant":      true,
	"date":         true,
	"dateTime":     true,
	"time":         true,
	"code":         true,
	"oid":          true,
	"id":           true,
	"markdown":     true,
	"unsignedInt":  true,
	"positiveInt":  true,
	"uuid":         true,
	"xhtml":        true,
}

// Well-known type codes with special decoding.
const (
	TypeReference       = "Reference"
	TypeResource        = "Resource"
	TypeExtension       = "Extension"
	TypeBackboneElement = "BackboneElement"
	TypeCoding          = "Coding"
	TypeCodeableConcept = "CodeableConcept"
	TypeCode            = "code"
)

// IsPrimitive returns true if typeCode is a FHIR primitive type.
func IsPrimitive(typeCode string) bool {
	return PrimitiveTypes[typeCode]
}

// KindOf derives the field kind from a type code.
func KindOf(typeCode string) Kind {
	switch {
	case IsPrimitive(typeCode):
		return KindPrimitive
	case typeCode == TypeReference:
		return KindReference
	case typeCode == TypeResource:
		return KindResource
	default:
		return KindComposite
	}
}

// IsCoded reports whether values of typeCode can carry a bound code.
func IsCoded(typeCode string) bool {
	switch typeCode {
	case TypeCode, TypeCoding, TypeCodeableConcept:
		return true
	}
	return false
}

// VariantKey returns the serialized key of a choice variant,
// e.g. VariantKey("deceased", "boolean") == "deceasedBoolean".
func VariantKey(group, typeCode string) string {
	return group + upperFirst(typeCode)
}

// ChoicePath formats the [x] path of a choice group.
func ChoicePath(parent, group string) string {
	if parent == "" {
		return group + "[x]"
	}
	return parent + "." + group + "[x]"
}

// TrimChoiceSuffix strips a trailing "[x]" from an element name.
func TrimChoiceSuffix(name string) (string, bool) {
	return strings.CutSuffix(name, "[x]")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
