package reference

import (
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		literal string
		kind    Kind
		typ     string
		id      string
		version string
		wantErr bool
	}{
		{"Patient/123", KindRelative, "Patient", "123", "", false},
		{"Observation/bp-1/_history/2", KindRelative, "Observation", "bp-1", "2", false},
		{"http://example.org/fhir/Practitioner/abc", KindAbsolute, "Practitioner", "abc", "", false},
		{"https://x.org/fhir/Patient/1/_history/9", KindAbsolute, "Patient", "1", "9", false},
		{"http://example.org/some/canonical", KindAbsolute, "", "", "", false},
		{"#spec1", KindFragment, "", "spec1", "", false},
		{"#", KindFragment, "", "", "", false},
		{"urn:uuid:c757873d-ec9a-4326-a141-556f43239520", KindUUID, "", "c757873d-ec9a-4326-a141-556f43239520", "", false},
		{"urn:uuid:not-a-uuid", 0, "", "", "", true},
		{"urn:oid:1.2.840.10008", KindOID, "", "1.2.840.10008", "", false},
		{"urn:oid:9.1", 0, "", "", "", true},
		{"patient/123", 0, "", "", "", true},
		{"Patient 123", 0, "", "", "", true},
		{"", 0, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.literal, func(t *testing.T) {
			got, err := Parse(tt.literal)
			if tt.wantErr {
				var ferr *FormatError
				if !errors.As(err, &ferr) {
					t.Fatalf("Parse(%q) error = %v; want FormatError", tt.literal, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.literal, err)
			}
			if got.Kind != tt.kind || got.Type != tt.typ || got.ID != tt.id || got.Version != tt.version {
				t.Errorf("Parse(%q) = %+v; want kind=%v type=%q id=%q version=%q",
					tt.literal, got, tt.kind, tt.typ, tt.id, tt.version)
			}
			if got.String() != tt.literal {
				t.Errorf("String() = %q; want %q", got.String(), tt.literal)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	if got := New("Patient", "p1").Literal; got != "Patient/p1" {
		t.Errorf("New().Literal = %q", got)
	}
	if a := Anchor("c1"); !a.IsLocal() || a.Literal != "#c1" {
		t.Errorf("Anchor() = %+v", a)
	}
	u := NewUUID()
	if !strings.HasPrefix(u.Literal, "urn:uuid:") {
		t.Fatalf("NewUUID().Literal = %q", u.Literal)
	}
	parsed, err := Parse(u.Literal)
	if err != nil || parsed.ID != u.ID {
		t.Errorf("Parse(NewUUID()) = %+v, %v", parsed, err)
	}
}
