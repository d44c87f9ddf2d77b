package codec_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhirschema "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/codec"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/record"
)

func newCodec(t *testing.T, opts ...fhirschema.Option) *codec.Codec {
	t.Helper()
	c, err := codec.NewDefault(opts...)
	require.NoError(t, err)
	return c
}

func validationError(t *testing.T, err error) *fhirschema.ValidationError {
	t.Helper()
	var ve *fhirschema.ValidationError
	require.True(t, errors.As(err, &ve), "expected a ValidationError, got %v", err)
	return ve
}

func TestPatientRoundTrip(t *testing.T) {
	c := newCodec(t)
	doc := `{"resourceType":"Patient","id":"p1","gender":"male","deceasedBoolean":false}`

	rec, err := c.Decode([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "Patient", rec.Type())
	id, _ := rec.String("id")
	assert.Equal(t, "p1", id)
	choice, ok := rec.Choice("deceased")
	require.True(t, ok)
	assert.Equal(t, "boolean", choice.Type)
	assert.Equal(t, false, choice.Value)
	assert.True(t, rec.Has("deceasedBoolean"))
	assert.False(t, rec.Has("deceasedDateTime"))

	out, err := c.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, doc, string(out))

	again, err := c.Decode(out)
	require.NoError(t, err)
	assert.True(t, record.Equal(rec, again), spew.Sdump(rec, again))

	assert.Equal(t, uint64(2), c.Metrics().DecodesTotal())
	assert.Equal(t, uint64(2), c.Metrics().ChoicesResolved())
}

func TestPrimitiveExtensionRoundTrip(t *testing.T) {
	c := newCodec(t)
	doc := `{"resourceType":"Patient","birthDate":"1970-01-01","_birthDate":{"extension":[{"url":"http://example.org/precision","valueString":"day"}]}}`

	rec, err := c.Decode([]byte(doc))
	require.NoError(t, err)
	_, ok := rec.Extra("_birthDate")
	require.True(t, ok)

	out, err := c.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, doc, string(out))
}

func TestAmbiguousChoice(t *testing.T) {
	c := newCodec(t)

	tests := []struct {
		name string
		doc  string
		path string
		keys []string
	}{
		{
			name: "patient deceased",
			doc:  `{"resourceType":"Patient","deceasedBoolean":true,"deceasedDateTime":"2020-01-01"}`,
			path: "Patient.deceased[x]",
			keys: []string{"deceasedBoolean", "deceasedDateTime"},
		},
		{
			name: "questionnaire answer",
			doc: `{"resourceType":"QuestionnaireResponse","status":"completed",
				"item":[{"linkId":"1","answer":[{"valueString":"a","valueInteger":1}]}]}`,
			path: "QuestionnaireResponse.item[0].answer[0].value[x]",
			keys: []string{"valueInteger", "valueString"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, fhirschema.ErrValidation))

			var ace *fhirschema.AmbiguousChoiceError
			require.True(t, errors.As(err, &ace), spew.Sdump(err))
			assert.Equal(t, tt.path, ace.Path)
			assert.ElementsMatch(t, tt.keys, ace.Keys)
		})
	}
}

const validCER = `{
  "resourceType": "CoverageEligibilityRequest",
  "status": "active",
  "purpose": ["validation"],
  "patient": {"reference": "Patient/1"},
  "created": "2020-01-01",
  "insurer": {"reference": "Organization/1"}
}`

func TestCoverageEligibilityRequestCardinality(t *testing.T) {
	c := newCodec(t)

	_, err := c.Decode([]byte(validCER))
	require.NoError(t, err)

	for _, field := range []string{"status", "purpose", "patient", "created", "insurer"} {
		t.Run(field, func(t *testing.T) {
			var doc map[string]any
			require.NoError(t, json.Unmarshal([]byte(validCER), &doc))
			delete(doc, field)
			data, err := json.Marshal(doc)
			require.NoError(t, err)

			_, err = c.Decode(data)
			require.Error(t, err)
			ve := validationError(t, err)
			assert.Equal(t, "CoverageEligibilityRequest."+field, ve.Path)
			assert.Equal(t, issue.DiagCardinalityMin, ve.MessageID)
		})
	}
}

func TestRequiredBinding(t *testing.T) {
	c := newCodec(t)
	doc := strings.Replace(validCER, `"active"`, `"bogus"`, 1)

	_, err := c.Decode([]byte(doc))
	require.Error(t, err)
	ve := validationError(t, err)
	assert.Equal(t, "CoverageEligibilityRequest.status", ve.Path)
	assert.Equal(t, issue.DiagBindingRequired, ve.MessageID)

	for _, status := range []string{"active", "cancelled", "draft", "entered-in-error"} {
		doc := strings.Replace(validCER, `"active"`, `"`+status+`"`, 1)
		_, err := c.Decode([]byte(doc))
		assert.NoError(t, err, status)
	}
}

func TestExampleBindingAcceptsUnlistedCode(t *testing.T) {
	c := newCodec(t)
	doc := `{"resourceType":"Specimen","type":{"coding":[{"system":"http://example.org/specimen","code":"zzz"}]}}`

	_, err := c.Decode([]byte(doc))
	require.NoError(t, err)

	res := c.Validate([]byte(doc))
	assert.Equal(t, 0, res.ErrorCount())
	assert.Equal(t, 0, res.WarningCount())
}

func TestAdvisoryBindingIssues(t *testing.T) {
	c := newCodec(t)

	t.Run("extensible code outside value set", func(t *testing.T) {
		doc := `{"resourceType":"Patient","maritalStatus":{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/v3-MaritalStatus","code":"ZZ"}]}}`
		_, err := c.Decode([]byte(doc))
		require.NoError(t, err)

		res := c.Validate([]byte(doc))
		assert.Equal(t, 0, res.ErrorCount())
		warnings := res.Filter(issue.SeverityWarning)
		require.Len(t, warnings, 1)
		assert.Equal(t, string(issue.DiagBindingExtensible), warnings[0].MessageID)
		assert.Equal(t, []string{"Patient.maritalStatus"}, warnings[0].Expression)
	})

	t.Run("text only", func(t *testing.T) {
		doc := `{"resourceType":"Patient","maritalStatus":{"text":"married"}}`
		res := c.Validate([]byte(doc))
		warnings := res.Filter(issue.SeverityWarning)
		require.Len(t, warnings, 1)
		assert.Equal(t, string(issue.DiagBindingTextOnlyWarning), warnings[0].MessageID)
	})

	t.Run("disabled", func(t *testing.T) {
		quiet := newCodec(t, fhirschema.LenientOptions()...)
		res := quiet.Validate([]byte(`{"resourceType":"Patient","maritalStatus":{"text":"married"}}`))
		assert.Empty(t, res.Issues)
	})
}

type codeSet map[string]bool

func (s codeSet) CheckCode(valueSet, system, code string) (valid, known bool) {
	if valueSet != "http://hl7.org/fhir/ValueSet/languages" {
		return false, false
	}
	return s[code], true
}

func TestCodeValidator(t *testing.T) {
	c := newCodec(t)
	doc := `{"resourceType":"Patient","communication":[{"language":{"coding":[{"system":"urn:ietf:bcp:47","code":"xx"}]}}]}`

	// Preferred bindings are never checked, with or without a validator.
	c.SetCodeValidator(codeSet{"en": true})
	res := c.Validate([]byte(doc))
	assert.Equal(t, 0, res.ErrorCount())
	assert.Equal(t, 0, res.WarningCount())
}

func TestUnknownElements(t *testing.T) {
	doc := `{"resourceType":"Patient","id":"p1","foo":{"bar":1}}`

	t.Run("preserved", func(t *testing.T) {
		c := newCodec(t)
		rec, err := c.Decode([]byte(doc))
		require.NoError(t, err)
		_, ok := rec.Extra("foo")
		assert.True(t, ok)

		out, err := c.Encode(rec)
		require.NoError(t, err)
		assert.Equal(t, doc, string(out))
		assert.Equal(t, uint64(1), c.Metrics().UnknownPreserved())

		infos := c.Validate([]byte(doc)).Filter(issue.SeverityInformation)
		require.Len(t, infos, 1)
		assert.Equal(t, string(issue.DiagStructureUnknownElement), infos[0].MessageID)
		assert.Equal(t, []string{"Patient.foo"}, infos[0].Expression)
	})

	t.Run("dropped", func(t *testing.T) {
		c := newCodec(t, fhirschema.WithPreserveUnknown(false))
		rec, err := c.Decode([]byte(doc))
		require.NoError(t, err)
		assert.Empty(t, rec.Extras())

		out, err := c.Encode(rec)
		require.NoError(t, err)
		assert.Equal(t, `{"resourceType":"Patient","id":"p1"}`, string(out))
		assert.Equal(t, uint64(1), c.Metrics().UnknownDropped())
	})
}

func TestStructuralErrors(t *testing.T) {
	c := newCodec(t)

	tests := []struct {
		name string
		doc  string
		path string
		id   issue.DiagnosticID
	}{
		{"array expected", `{"resourceType":"Patient","name":{"family":"Doe"}}`, "Patient.name", issue.DiagStructureArrayExpected},
		{"array unexpected", `{"resourceType":"Patient","gender":["male"]}`, "Patient.gender", issue.DiagStructureArrayUnexpected},
		{"object expected", `{"resourceType":"Patient","managingOrganization":"Organization/1"}`, "Patient.managingOrganization", issue.DiagStructureObjectExpected},
		{"wrong json type", `{"resourceType":"Patient","active":"yes"}`, "Patient.active", issue.DiagTypeWrongJSONType},
		{"invalid date", `{"resourceType":"Patient","birthDate":"1970-13-01"}`, "Patient.birthDate", issue.DiagTypeInvalidFormat},
		{"nested binding", `{"resourceType":"Patient","contact":[{"gender":"male"},{"gender":"x"}]}`, "Patient.contact[1].gender", issue.DiagBindingRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.doc))
			require.Error(t, err)
			ve := validationError(t, err)
			assert.Equal(t, tt.path, ve.Path)
			assert.Equal(t, tt.id, ve.MessageID)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	c := newCodec(t)

	tests := []struct {
		name string
		doc  string
		id   issue.DiagnosticID
	}{
		{"invalid json", `{"resourceType":"Patient",`, issue.DiagStructureInvalidJSON},
		{"trailing data", `{"resourceType":"Patient"} {}`, issue.DiagStructureInvalidJSON},
		{"not an object", `["Patient"]`, issue.DiagStructureNotObject},
		{"no resourceType", `{"id":"p1"}`, issue.DiagStructureNoResourceType},
		{"unknown resourceType", `{"resourceType":"Spaceship"}`, issue.DiagStructureUnknownResource},
		{"unknown contained", `{"resourceType":"Patient","contained":[{"resourceType":"Spaceship"}]}`, issue.DiagStructureUnknownResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, fhirschema.ErrDecode))
			var de *fhirschema.DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.id, de.MessageID)
		})
	}
}

func TestDecodeAs(t *testing.T) {
	c := newCodec(t)
	doc := []byte(`{"resourceType":"Patient","id":"p1"}`)

	rec, err := c.DecodeAs("Patient", doc)
	require.NoError(t, err)
	assert.Equal(t, "Patient", rec.Type())

	_, err = c.DecodeAs("Organization", doc)
	var de *fhirschema.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, issue.DiagStructureResourceMismatch, de.MessageID)

	_, err = c.DecodeAs("Spaceship", doc)
	assert.True(t, errors.Is(err, fhirschema.ErrSchema))
}

func TestStrictReferences(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		path string
		id   issue.DiagnosticID
	}{
		{"disallowed target", `{"reference":"Practitioner/1"}`, "Patient.managingOrganization", issue.DiagReferenceInvalidTarget},
		{"malformed literal", `{"reference":"not a reference"}`, "Patient.managingOrganization.reference", issue.DiagReferenceInvalidFormat},
		{"type mismatch", `{"reference":"Organization/1","type":"Practitioner"}`, "Patient.managingOrganization", issue.DiagReferenceTypeMismatch},
	}

	lenient := newCodec(t)
	strict := newCodec(t, fhirschema.WithStrictReferences(true))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := []byte(`{"resourceType":"Patient","managingOrganization":` + tt.ref + `}`)

			_, err := lenient.Decode(doc)
			assert.NoError(t, err)

			_, err = strict.Decode(doc)
			require.Error(t, err)
			ve := validationError(t, err)
			assert.Equal(t, tt.path, ve.Path)
			assert.Equal(t, tt.id, ve.MessageID)
		})
	}

	for _, ok := range []string{"Organization/1", "#org", "urn:uuid:c757873d-ec9a-4326-a141-556f43239520", "http://example.org/fhir/Organization/1"} {
		doc := []byte(`{"resourceType":"Patient","managingOrganization":{"reference":"` + ok + `"}}`)
		_, err := strict.Decode(doc)
		assert.NoError(t, err, ok)
	}
}

func TestInvariants(t *testing.T) {
	doc := []byte(`{"resourceType":"Organization","id":"o1"}`)

	_, err := newCodec(t).Decode(doc)
	require.NoError(t, err)

	c := newCodec(t, fhirschema.WithInvariants(true))
	_, err = c.Decode(doc)
	require.Error(t, err)
	ve := validationError(t, err)
	assert.Equal(t, issue.DiagConstraintFailed, ve.MessageID)
	assert.Contains(t, ve.Diagnostics, "org-1")
	assert.Equal(t, issue.CodeInvariant, ve.Code)

	_, err = c.Decode([]byte(`{"resourceType":"Organization","name":"Acme"}`))
	assert.NoError(t, err)
}

func TestNestedInvariants(t *testing.T) {
	c := newCodec(t, fhirschema.WithInvariants(true))

	tests := []struct {
		name string
		doc  string
		key  string
	}{
		{
			name: "nested item beneath both answer and item",
			doc: `{"resourceType":"QuestionnaireResponse","status":"completed","item":[
  {"linkId":"1","item":[{"linkId":"2","answer":[{"valueString":"a"}],"item":[{"linkId":"3"}]}]}]}`,
			key: "qrs-1",
		},
		{
			name: "item beneath an answer",
			doc: `{"resourceType":"QuestionnaireResponse","status":"completed","item":[
  {"linkId":"1","answer":[{"valueString":"a","item":[{"linkId":"2","answer":[{"valueString":"b"}],"item":[{"linkId":"3"}]}]}]}]}`,
			key: "qrs-1",
		},
		{
			name: "component repeats the observation code with a value",
			doc: `{"resourceType":"Observation","status":"final",
  "code":{"coding":[{"system":"http://loinc.org","code":"8480-6"}]},
  "valueQuantity":{"value":120},
  "component":[{"code":{"coding":[{"system":"http://loinc.org","code":"8480-6"}]},"valueQuantity":{"value":120}}]}`,
			key: "obs-7",
		},
		{
			name: "well formed questionnaire response",
			doc: `{"resourceType":"QuestionnaireResponse","status":"completed","item":[
  {"linkId":"1","item":[{"linkId":"2","answer":[{"valueString":"a","item":[{"linkId":"3"}]}]}]}]}`,
		},
		{
			name: "component with a distinct code",
			doc: `{"resourceType":"Observation","status":"final",
  "code":{"coding":[{"system":"http://loinc.org","code":"85354-9"}]},
  "valueQuantity":{"value":120},
  "component":[{"code":{"coding":[{"system":"http://loinc.org","code":"8480-6"}]},"valueQuantity":{"value":120}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.doc))
			if tt.key == "" {
				assert.NoError(t, err)
				return
			}
			ve := validationError(t, err)
			assert.Equal(t, issue.DiagConstraintFailed, ve.MessageID)
			assert.Contains(t, ve.Diagnostics, tt.key, spew.Sdump(err))
		})
	}
}

func TestMaxErrors(t *testing.T) {
	doc := []byte(`{"resourceType":"CoverageEligibilityRequest"}`)

	res := newCodec(t).Validate(doc)
	assert.Equal(t, 5, res.ErrorCount(), spew.Sdump(res.Issues))

	res = newCodec(t, fhirschema.WithMaxErrors(1)).Validate(doc)
	assert.Equal(t, 1, res.ErrorCount())
	assert.Equal(t, "CoverageEligibilityRequest", res.ResourceType)
}

func TestPositions(t *testing.T) {
	doc := []byte(`{
  "resourceType": "Patient",
  "gender": "bogus"
}`)

	c := newCodec(t, fhirschema.WithPositionTracking(true))
	_, err := c.Decode(doc)
	ve := validationError(t, err)
	assert.Equal(t, 3, ve.Line)
	assert.Equal(t, 13, ve.Column)

	res := c.Validate(doc)
	require.Equal(t, 1, res.ErrorCount())
	require.NotNil(t, res.Issues[0].Location)
	assert.Equal(t, 3, res.Issues[0].Location.Line)
}

func TestPeekResourceType(t *testing.T) {
	rt, err := codec.PeekResourceType([]byte(`{"id":"1","resourceType":"Observation"}`))
	require.NoError(t, err)
	assert.Equal(t, "Observation", rt)

	_, err = codec.PeekResourceType([]byte(`{"id":"1"}`))
	var de *fhirschema.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, issue.DiagStructureNoResourceType, de.MessageID)
}

func TestValidateRecord(t *testing.T) {
	c := newCodec(t)

	rec := record.New("Patient").Set("gender", "bogus")
	res, err := c.ValidateRecord(rec)
	require.NoError(t, err)
	require.Equal(t, 1, res.ErrorCount())
	assert.Equal(t, string(issue.DiagBindingRequired), res.Issues[0].MessageID)

	rec = record.New("Patient").Set("active", "yes")
	_, err = c.ValidateRecord(rec)
	ve := validationError(t, err)
	assert.Equal(t, issue.DiagTypeUnsupported, ve.MessageID)

	rec = record.New("Patient").SetChoice("deceased", "Quantity", "x")
	_, err = c.Encode(rec)
	ve = validationError(t, err)
	assert.Equal(t, issue.DiagTypeNotAllowed, ve.MessageID)
	assert.Equal(t, "Patient.deceased[x]", ve.Path)
}

func TestEncodeRejectsUndeclaredNames(t *testing.T) {
	c := newCodec(t)

	tests := []struct {
		name string
		rec  *record.Record
		want map[string]issue.DiagnosticID
	}{
		{
			name: "variant keys set directly",
			rec: record.New("Patient").Set("id", "p1").
				Set("deceasedBoolean", true).
				Set("deceasedDateTime", "2020-01-01"),
			want: map[string]issue.DiagnosticID{
				"Patient.deceasedBoolean":  issue.DiagStructureVariantKey,
				"Patient.deceasedDateTime": issue.DiagStructureVariantKey,
			},
		},
		{
			name: "misspelled element",
			rec:  record.New("Patient").Set("gendr", "male"),
			want: map[string]issue.DiagnosticID{
				"Patient.gendr": issue.DiagStructureUndeclared,
			},
		},
		{
			name: "nested record",
			rec: record.New("Patient").
				Append("name", record.New("HumanName").Set("familly", "Doe")),
			want: map[string]issue.DiagnosticID{
				"Patient.name[0].familly": issue.DiagStructureUndeclared,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Encode(tt.rec)
			require.Error(t, err)
			assert.ErrorIs(t, err, fhirschema.ErrValidation)

			got := make(map[string]issue.DiagnosticID)
			for _, is := range fhirschema.Issues(err).Issues {
				require.Len(t, is.Expression, 1)
				got[is.Expression[0]] = issue.DiagnosticID(is.MessageID)
			}
			assert.Equal(t, tt.want, got, spew.Sdump(err))

			_, err = c.ValidateRecord(tt.rec)
			assert.Error(t, err)

			_, err = c.EncodeXML(tt.rec)
			assert.Error(t, err)
		})
	}
}

func TestEncodeRejectsMistypedRecord(t *testing.T) {
	c := newCodec(t)

	rec := record.New("Patient").Append("name", record.New("Address").Set("city", "X"))
	_, err := c.Encode(rec)
	ve := validationError(t, err)
	assert.Equal(t, issue.DiagTypeNotAllowed, ve.MessageID)
	assert.Equal(t, "Patient.name[0]", ve.Path)
	assert.Contains(t, ve.Diagnostics, "Address")

	_, err = c.EncodeXML(rec)
	ve = validationError(t, err)
	assert.Equal(t, issue.DiagTypeNotAllowed, ve.MessageID)

	_, err = c.ValidateRecord(rec)
	assert.Error(t, err)

	// Backbone elements are typed by their owning schema.
	contact := record.New("Patient.Contact").Set("gender", "female")
	_, err = c.Encode(record.New("Patient").Append("contact", contact))
	assert.NoError(t, err)
}

func TestEncodeNonFiniteDecimal(t *testing.T) {
	c := newCodec(t)

	rec := record.New("Observation").
		Set("status", "final").
		SetChoice("value", "Quantity", record.New("Quantity").Set("value", math.NaN()))

	_, err := c.Encode(rec)
	ve := validationError(t, err)
	assert.Equal(t, issue.DiagTypeOutOfRange, ve.MessageID)
	assert.Equal(t, "Observation.valueQuantity.value", ve.Path)

	_, err = c.EncodeXML(rec)
	assert.ErrorIs(t, err, fhirschema.ErrValidation)

	_, err = c.ValidateRecord(rec)
	assert.Error(t, err)
}

func TestEncodeBuiltRecord(t *testing.T) {
	c := newCodec(t)

	name := record.New("HumanName").Set("family", "Doe").Append("given", "Jane")
	rec := record.New("Patient").
		Set("active", true).
		Append("name", name).
		Set("managingOrganization", record.NewReference("Organization", "o1")).
		SetChoice("multipleBirth", "integer", 2)

	out, err := c.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t,
		`{"resourceType":"Patient","active":true,"name":[{"family":"Doe","given":["Jane"]}],"multipleBirthInteger":2,"managingOrganization":{"reference":"Organization/o1"}}`,
		string(out))

	indented, err := c.EncodeIndent(rec, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n  \"active\": true")
}
