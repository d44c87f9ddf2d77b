package schema

import (
	"strings"
	"testing"
)

func patientLike() *Schema {
	return New("Patient", CategoryResource,
		&Field{Name: "id", Type: "id", Card: Optional},
		&Field{Name: "extension", Type: "Extension", Card: Repeated},
		&Field{Name: "gender", Type: "code", Card: Optional,
			Binding: NewBinding(StrengthRequired, "http://hl7.org/fhir/ValueSet/administrative-gender",
				map[string][]string{"http://hl7.org/fhir/administrative-gender": {"male", "female", "other", "unknown"}})},
		&Field{Name: "deceasedBoolean", Type: "boolean", Card: Optional, Choice: "deceased"},
		&Field{Name: "deceasedDateTime", Type: "dateTime", Card: Optional, Choice: "deceased"},
		&Field{Name: "generalPractitioner", Type: "Reference", Card: Repeated, Targets: []string{"Organization", "Practitioner"}},
	)
}

func TestSchemaMembersKeepDeclaredOrder(t *testing.T) {
	s := patientLike()

	var names []string
	for _, m := range s.Members() {
		names = append(names, m.Name())
	}
	got := strings.Join(names, ",")
	want := "id,extension,gender,deceased,generalPractitioner"
	if got != want {
		t.Errorf("Members() = %s; want %s", got, want)
	}

	g, ok := s.Choice("deceased")
	if !ok {
		t.Fatal("deceased choice group not found")
	}
	if types := strings.Join(g.Types(), ","); types != "boolean,dateTime" {
		t.Errorf("deceased types = %s; want boolean,dateTime", types)
	}
	if v, ok := g.Variant("dateTime"); !ok || v.Name != "deceasedDateTime" {
		t.Errorf("Variant(dateTime) = %v, %v", v, ok)
	}
}

func TestSchemaLookup(t *testing.T) {
	s := patientLike()

	f, ok := s.Field("deceasedBoolean")
	if !ok || !f.IsChoice() || f.Kind != KindPrimitive {
		t.Fatalf("Field(deceasedBoolean) = %+v, %v", f, ok)
	}
	ref, _ := s.Field("generalPractitioner")
	if ref.Kind != KindReference {
		t.Errorf("generalPractitioner kind = %v; want reference", ref.Kind)
	}
	if !ref.AllowsTarget("Practitioner") || ref.AllowsTarget("Patient") {
		t.Error("AllowsTarget should follow the allow-list")
	}
	if !s.HasExtensionSlot() {
		t.Error("HasExtensionSlot() = false; want true")
	}
	if !s.IsResource() {
		t.Error("IsResource() = false; want true")
	}
}

func TestBindingContains(t *testing.T) {
	s := patientLike()
	f, _ := s.Field("gender")

	if !f.Binding.Contains("", "male") {
		t.Error("code without system should match any bound system")
	}
	if !f.Binding.Contains("http://hl7.org/fhir/administrative-gender", "unknown") {
		t.Error("code in system should match")
	}
	if f.Binding.Contains("http://example.org/other", "male") {
		t.Error("code in an unbound system should not match")
	}
	if f.Binding.Contains("", "bogus") {
		t.Error("unlisted code should not match")
	}

	literal := &Binding{Strength: StrengthRequired, Codes: map[string][]string{"s": {"a"}}}
	if !literal.Contains("s", "a") {
		t.Error("binding built without NewBinding should still match")
	}
}

func TestSchemaProblems(t *testing.T) {
	s := New("Broken", CategoryDatatype,
		&Field{Name: "a", Type: "string", Card: Optional},
		&Field{Name: "a", Type: "string", Card: Optional},
		&Field{Name: "b", Type: "string", Card: Cardinality{Min: 2, Max: 1}},
		&Field{Name: "valueFoo", Type: "string", Card: Optional, Choice: "value"},
		&Field{Name: "part", Type: "BackboneElement", Card: Repeated},
		&Field{Name: "c", Type: "code", Card: Optional, Binding: &Binding{Strength: "mandatory"}},
	)

	problems := s.Problems()
	reasons := make(map[string]bool)
	for _, p := range problems {
		reasons[p.Field+": "+p.Reason] = true
	}
	for _, want := range []string{
		"a: duplicate field name",
		"b: invalid cardinality 2..1",
		"valueFoo: choice variant must be named valueString",
		"part: backbone element without nested schema",
		`c: invalid binding strength "mandatory"`,
	} {
		if !reasons[want] {
			t.Errorf("missing problem %q in %v", want, problems)
		}
	}

	if p := patientLike().Problems(); len(p) != 0 {
		t.Errorf("valid schema reported problems: %v", p)
	}
}

func TestVariantKey(t *testing.T) {
	if got := VariantKey("value", "CodeableConcept"); got != "valueCodeableConcept" {
		t.Errorf("VariantKey = %q", got)
	}
	if got := VariantKey("deceased", "dateTime"); got != "deceasedDateTime" {
		t.Errorf("VariantKey = %q", got)
	}
	if got := ChoicePath("QuestionnaireResponse.item[0].answer[0]", "value"); got != "QuestionnaireResponse.item[0].answer[0].value[x]" {
		t.Errorf("ChoicePath = %q", got)
	}
	if base, ok := TrimChoiceSuffix("effective[x]"); !ok || base != "effective" {
		t.Errorf("TrimChoiceSuffix = %q, %v", base, ok)
	}
}
