// Package fhirschema provides a schema-driven codec for FHIR R4 resources.
//
// Resources are decoded from JSON or XML into generic records that follow
// a registered schema, and encoded back in declared member order. Decoding
// validates as it goes: cardinality, choice groups, primitive lexical
// forms, required and extensible bindings and, optionally, reference
// targets and FHIRPath invariants.
//
// # Quick Start
//
//	import (
//	    fs "github.com/gofhir/fhirschema"
//	    "github.com/gofhir/fhirschema/codec"
//	)
//
//	c, err := codec.NewDefault(fs.StrictOptions()...)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rec, err := c.Decode(resourceJSON)
//	if err != nil {
//	    for _, is := range fs.Issues(err).Issues {
//	        fmt.Println(is)
//	    }
//	}
//
//	out, err := c.Encode(rec)
//
// # Errors
//
// Every error returned by the codec matches one of ErrDecode, ErrValidation
// or ErrSchema with errors.Is. Validation errors are joined, so a single
// decode reports every violation it found; Issues flattens them into an
// issue.Result aligned with OperationOutcome.
//
// # Functional Options
//
//	c := codec.New(reg,
//	    fs.WithStrictReferences(true),
//	    fs.WithInvariants(true),
//	    fs.WithMaxErrors(100),
//	)
//
// # Packages
//
//   - schema, registry, definitions: type declarations and their lookup
//   - record: the generic decoded value
//   - primitive, reference: lexical rules of primitive values and literal references
//   - codec: JSON and XML decoding, encoding and validation
//   - invariant, terminology: FHIRPath constraints and code checks
//   - batch: parallel decoding of many documents
package fhirschema
