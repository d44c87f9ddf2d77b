package fhirschema

// FHIRVersion represents a FHIR specification version.
type FHIRVersion string

// R4 is FHIR Release 4 (4.0.1), the only release the bundled schemas describe.
const R4 FHIRVersion = "R4"

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}

// IsValid returns true if this is a supported FHIR version.
func (v FHIRVersion) IsValid() bool {
	return v == R4
}

// Release returns the full release number, e.g. "4.0.1".
func (v FHIRVersion) Release() string {
	if v == R4 {
		return "4.0.1"
	}
	return ""
}

// Namespace is the XML namespace of FHIR resources.
const Namespace = "http://hl7.org/fhir"

// Version is the library version.
const Version = "0.3.0"
