package record

import "github.com/gofhir/fhirschema/schema"

// Code is a (system, code) pair carried by a coded value. System is empty
// for plain code elements.
type Code struct {
	System string
	Code   string
}

// Codes extracts the codes of a code, Coding or CodeableConcept value.
// text reports a CodeableConcept that carries text.
func Codes(typeCode string, v any) (codes []Code, text bool) {
	switch typeCode {
	case schema.TypeCode:
		if s, ok := v.(string); ok {
			return []Code{{Code: s}}, false
		}
	case schema.TypeCoding:
		if rec, ok := v.(*Record); ok {
			if c, ok := codingOf(rec); ok {
				return []Code{c}, false
			}
		}
	case schema.TypeCodeableConcept:
		rec, ok := v.(*Record)
		if !ok {
			return nil, false
		}
		for _, item := range rec.Records("coding") {
			if c, ok := codingOf(item); ok {
				codes = append(codes, c)
			}
		}
		_, text = rec.String("text")
		return codes, text
	}
	return nil, false
}

func codingOf(rec *Record) (Code, bool) {
	code, ok := rec.String("code")
	if !ok {
		return Code{}, false
	}
	system, _ := rec.String("system")
	return Code{System: system, Code: code}, true
}
