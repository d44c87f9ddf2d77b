package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/fhirschema/schema"
)

func TestStructureDefinitionExport(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	sd, err := reg.StructureDefinition("Patient")
	require.NoError(t, err)

	assert.Equal(t, CanonicalBase+"Patient", *sd.Url)
	assert.Equal(t, "resource", string(*sd.Kind))
	assert.Equal(t, CanonicalBase+"DomainResource", *sd.BaseDefinition)

	byPath := map[string]int{}
	for i, ed := range sd.Snapshot.Element {
		byPath[*ed.Path] = i
	}
	require.Contains(t, byPath, "Patient.deceased[x]")
	deceased := sd.Snapshot.Element[byPath["Patient.deceased[x]"]]
	require.Len(t, deceased.Type, 2)
	assert.Equal(t, "boolean", *deceased.Type[0].Code)
	assert.Equal(t, "dateTime", *deceased.Type[1].Code)

	gender := sd.Snapshot.Element[byPath["Patient.gender"]]
	require.NotNil(t, gender.Binding)
	assert.Equal(t, "required", string(*gender.Binding.Strength))

	assert.Contains(t, byPath, "Patient.contact.name")
	assert.Equal(t, "*", *sd.Snapshot.Element[byPath["Patient.identifier"]].Max)
	assert.NotEmpty(t, sd.Snapshot.Element[0].Constraint, "root element carries invariants")
}

func TestStructureDefinitionRejectsBackbone(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	_, err = reg.StructureDefinition("Patient.Contact")
	assert.Error(t, err)
	_, err = reg.StructureDefinition("Nope")
	assert.Error(t, err)
}

func TestStructureDefinitionRoundTrip(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	for _, name := range []string{"Patient", "Observation", "QuestionnaireResponse", "CoverageEligibilityRequest"} {
		t.Run(name, func(t *testing.T) {
			orig := reg.MustLookup(name)
			sd, err := reg.StructureDefinition(name)
			require.NoError(t, err)

			imported, err := FromStructureDefinition(sd)
			require.NoError(t, err)
			assert.Equal(t, orig.Category, imported.Category)
			assert.Empty(t, imported.Problems())
			assertSameShape(t, orig, imported, map[*schema.Schema]bool{})
		})
	}
}

func assertSameShape(t *testing.T, want, got *schema.Schema, seen map[*schema.Schema]bool) {
	t.Helper()
	if seen[want] {
		return
	}
	seen[want] = true

	require.Len(t, got.Fields, len(want.Fields), want.Name)
	for i, wf := range want.Fields {
		gf := got.Fields[i]
		assert.Equal(t, wf.Name, gf.Name, want.Name)
		assert.Equal(t, wf.Type, gf.Type, want.Name+"."+wf.Name)
		assert.Equal(t, wf.Card, gf.Card, want.Name+"."+wf.Name)
		assert.Equal(t, wf.Choice, gf.Choice, want.Name+"."+wf.Name)
		assert.ElementsMatch(t, wf.Targets, gf.Targets, want.Name+"."+wf.Name)
		if wf.Nested != nil {
			require.NotNil(t, gf.Nested, want.Name+"."+wf.Name)
			assertSameShape(t, wf.Nested, gf.Nested, seen)
		}
	}
}
