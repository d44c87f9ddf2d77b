package codec_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fhirschema "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/record"
)

const richPatient = `{
  "resourceType": "Patient",
  "id": "p1",
  "text": {
    "status": "generated",
    "div": "<div xmlns=\"http://www.w3.org/1999/xhtml\"><p>Jane Doe</p></div>"
  },
  "contained": [{"resourceType": "Organization", "id": "org", "name": "Acme & Sons"}],
  "active": true,
  "name": [{"family": "Doe", "given": ["Jane", "Q"]}],
  "gender": "female",
  "birthDate": "1970-01-01",
  "_birthDate": {"extension": [{"url": "http://example.org/precision", "valueString": "day"}]},
  "deceasedBoolean": false,
  "multipleBirthInteger": 2,
  "managingOrganization": {"reference": "#org"}
}`

func TestXMLRoundTrip(t *testing.T) {
	c := newCodec(t)

	rec, err := c.Decode([]byte(richPatient))
	require.NoError(t, err)

	data, err := c.EncodeXML(rec)
	require.NoError(t, err)
	xml := string(data)

	assert.True(t, strings.HasPrefix(xml, `<Patient xmlns="http://hl7.org/fhir"><id value="p1"/>`), xml)
	assert.Contains(t, xml, `<div xmlns="http://www.w3.org/1999/xhtml"><p>Jane Doe</p></div>`)
	assert.Contains(t, xml, `<contained><Organization><id value="org"/><name value="Acme &amp; Sons"/></Organization></contained>`)
	assert.Contains(t, xml, `<given value="Jane"/><given value="Q"/>`)
	assert.Contains(t, xml, `<birthDate value="1970-01-01"><extension url="http://example.org/precision"><valueString value="day"/></extension></birthDate>`)
	assert.Contains(t, xml, `<deceasedBoolean value="false"/>`)

	back, err := c.DecodeXML(data)
	require.NoError(t, err)
	assert.True(t, record.Equal(rec, back), spew.Sdump(rec, back))

	// The JSON rendering of the XML decode reproduces the JSON decode.
	fromJSON, err := c.Encode(rec)
	require.NoError(t, err)
	fromXML, err := c.Encode(back)
	require.NoError(t, err)
	assert.Equal(t, string(fromJSON), string(fromXML))
}

func TestDecodeXMLValidation(t *testing.T) {
	c := newCodec(t)

	tests := []struct {
		name string
		doc  string
		path string
		id   issue.DiagnosticID
	}{
		{
			name: "required binding",
			doc:  `<Patient xmlns="http://hl7.org/fhir"><gender value="bogus"/></Patient>`,
			path: "Patient.gender",
			id:   issue.DiagBindingRequired,
		},
		{
			name: "boolean lexical form",
			doc:  `<Patient xmlns="http://hl7.org/fhir"><active value="yes"/></Patient>`,
			path: "Patient.active",
			id:   issue.DiagTypeWrongJSONType,
		},
		{
			name: "repeated single element",
			doc:  `<Patient xmlns="http://hl7.org/fhir"><gender value="male"/><gender value="female"/></Patient>`,
			path: "Patient.gender",
			id:   issue.DiagStructureArrayUnexpected,
		},
		{
			name: "missing required",
			doc:  `<CoverageEligibilityRequest xmlns="http://hl7.org/fhir"><status value="active"/></CoverageEligibilityRequest>`,
			path: "CoverageEligibilityRequest.purpose",
			id:   issue.DiagCardinalityMin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeXML([]byte(tt.doc))
			require.Error(t, err)
			ve := validationError(t, err)
			assert.Equal(t, tt.path, ve.Path)
			assert.Equal(t, tt.id, ve.MessageID)
		})
	}

	t.Run("ambiguous choice", func(t *testing.T) {
		doc := `<Patient xmlns="http://hl7.org/fhir"><deceasedBoolean value="true"/><deceasedDateTime value="2020-01-01"/></Patient>`
		_, err := c.DecodeXML([]byte(doc))
		var ace *fhirschema.AmbiguousChoiceError
		require.True(t, errors.As(err, &ace))
		assert.Equal(t, "Patient.deceased[x]", ace.Path)
	})
}

func TestDecodeXMLErrors(t *testing.T) {
	c := newCodec(t)

	tests := []struct {
		name string
		doc  string
		id   issue.DiagnosticID
	}{
		{"malformed", `<Patient xmlns="http://hl7.org/fhir"><id value="1"></Patient>`, issue.DiagStructureInvalidXML},
		{"wrong namespace", `<Patient><id value="1"/></Patient>`, issue.DiagStructureInvalidXML},
		{"unknown resource", `<Spaceship xmlns="http://hl7.org/fhir"/>`, issue.DiagStructureUnknownResource},
		{"empty", ``, issue.DiagStructureInvalidXML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeXML([]byte(tt.doc))
			require.Error(t, err)
			var de *fhirschema.DecodeError
			require.True(t, errors.As(err, &de), spew.Sdump(err))
			assert.Equal(t, tt.id, de.MessageID)
		})
	}
}

func TestEncodeXMLDropsUnknownMembers(t *testing.T) {
	c := newCodec(t)
	rec, err := c.Decode([]byte(`{"resourceType":"Patient","id":"p1","foo":"bar"}`))
	require.NoError(t, err)

	data, err := c.EncodeXML(rec)
	require.NoError(t, err)
	assert.Equal(t, `<Patient xmlns="http://hl7.org/fhir"><id value="p1"/></Patient>`, string(data))
}

func TestValidateXML(t *testing.T) {
	c := newCodec(t)

	res := c.ValidateXML([]byte(`<Patient xmlns="http://hl7.org/fhir"><gender value="bogus"/><maritalStatus><text value="single"/></maritalStatus></Patient>`))
	assert.Equal(t, "Patient", res.ResourceType)
	require.Equal(t, 1, res.ErrorCount(), spew.Sdump(res))
	assert.Equal(t, []string{"Patient.gender"}, res.Filter(issue.SeverityError)[0].Expression)
	assert.Equal(t, 1, res.WarningCount(), spew.Sdump(res))

	res = c.ValidateXML([]byte(`<Patient><id value="1"/></Patient>`))
	assert.Equal(t, 1, res.ErrorCount())
	assert.Empty(t, res.ResourceType)
}
