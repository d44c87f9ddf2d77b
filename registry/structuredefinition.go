package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/schema"
)

// CanonicalBase prefixes the canonical URL of core StructureDefinitions.
const CanonicalBase = "http://hl7.org/fhir/StructureDefinition/"

// systemTypes maps FHIRPath system type URLs used in snapshots to the FHIR
// primitive they stand for.
var systemTypes = map[string]string{
	"http://hl7.org/fhirpath/System.String":   "string",
	"http://hl7.org/fhirpath/System.Boolean":  "boolean",
	"http://hl7.org/fhirpath/System.Integer":  "integer",
	"http://hl7.org/fhirpath/System.Decimal":  "decimal",
	"http://hl7.org/fhirpath/System.DateTime": "dateTime",
	"http://hl7.org/fhirpath/System.Time":     "time",
	"http://hl7.org/fhirpath/System.Date":     "date",
}

// StructureDefinition renders a registered type as an R4
// StructureDefinition with a snapshot.
func (r *Registry) StructureDefinition(name string) (*r4.StructureDefinition, error) {
	s, ok := r.Lookup(name)
	if !ok {
		return nil, &fhirschema.SchemaError{Type: name, Reason: "not registered"}
	}
	if s.Category == schema.CategoryBackbone {
		return nil, &fhirschema.SchemaError{Type: name, Reason: "backbone elements have no StructureDefinition"}
	}

	url := CanonicalBase + s.Name
	kind := r4.StructureDefinitionKind(s.Category)
	abstract := s.Abstract
	version := r4.FHIRVersion401
	sd := &r4.StructureDefinition{
		Url:         &url,
		Name:        strPtr(s.Name),
		Type:        strPtr(s.Name),
		Kind:        &kind,
		Abstract:    &abstract,
		FhirVersion: &version,
	}
	if s.Base != "" {
		sd.BaseDefinition = strPtr(CanonicalBase + s.Base)
	}

	root := r4.ElementDefinition{
		Id:   strPtr(s.Name),
		Path: strPtr(s.Name),
		Min:  uint32Ptr(0),
		Max:  strPtr("*"),
	}
	for _, inv := range s.Invariants {
		severity := r4.ConstraintSeverity(inv.Severity)
		root.Constraint = append(root.Constraint, r4.ElementDefinitionConstraint{
			Key:        strPtr(inv.Key),
			Severity:   &severity,
			Human:      strPtr(inv.Human),
			Expression: strPtr(inv.Expression),
		})
	}

	elements := []r4.ElementDefinition{root}
	elements = appendElements(elements, s, s.Name, map[*schema.Schema]string{s: s.Name})
	sd.Snapshot = &r4.StructureDefinitionSnapshot{Element: elements}
	return sd, nil
}

// appendElements emits one ElementDefinition per member of s under path.
// emitted maps backbone schemas already written to their element path so
// recursive structures become content references.
func appendElements(out []r4.ElementDefinition, s *schema.Schema, path string, emitted map[*schema.Schema]string) []r4.ElementDefinition {
	for _, m := range s.Members() {
		if m.Group != nil {
			p := path + "." + m.Group.Name + "[x]"
			ed := r4.ElementDefinition{
				Id:   strPtr(p),
				Path: strPtr(p),
				Min:  uint32Ptr(m.Group.Card.Min),
				Max:  strPtr(m.Group.Card.MaxString()),
			}
			var binding *schema.Binding
			for _, v := range m.Group.Variants {
				ed.Type = append(ed.Type, elementType(v))
				if v.Binding != nil {
					binding = v.Binding
				}
			}
			ed.Binding = elementBinding(binding)
			first := m.Group.Variants[0]
			ed.IsModifier = boolPtr(first.Modifier)
			ed.IsSummary = boolPtr(first.Summary)
			out = append(out, ed)
			continue
		}

		f := m.Field
		p := path + "." + f.Name
		ed := r4.ElementDefinition{
			Id:         strPtr(p),
			Path:       strPtr(p),
			Min:        uint32Ptr(f.Card.Min),
			Max:        strPtr(f.Card.MaxString()),
			Binding:    elementBinding(f.Binding),
			IsModifier: boolPtr(f.Modifier),
			IsSummary:  boolPtr(f.Summary),
		}
		if f.Nested == nil {
			ed.Type = []r4.ElementDefinitionType{elementType(f)}
			out = append(out, ed)
			continue
		}
		if prev, seen := emitted[f.Nested]; seen {
			ed.ContentReference = strPtr("#" + prev)
			out = append(out, ed)
			continue
		}
		ed.Type = []r4.ElementDefinitionType{{Code: strPtr(schema.TypeBackboneElement)}}
		out = append(out, ed)
		emitted[f.Nested] = p
		out = appendElements(out, f.Nested, p, emitted)
	}
	return out
}

func elementType(f *schema.Field) r4.ElementDefinitionType {
	t := r4.ElementDefinitionType{Code: strPtr(f.Type)}
	if f.Type == schema.TypeReference {
		for _, target := range f.Targets {
			t.TargetProfile = append(t.TargetProfile, CanonicalBase+target)
		}
	}
	return t
}

func elementBinding(b *schema.Binding) *r4.ElementDefinitionBinding {
	if b == nil {
		return nil
	}
	strength := r4.BindingStrength(b.Strength)
	eb := &r4.ElementDefinitionBinding{
		Strength: &strength,
		ValueSet: strPtr(b.ValueSet),
	}
	if b.Description != "" {
		eb.Description = strPtr(b.Description)
	}
	return eb
}

// FromStructureDefinition converts the snapshot of an R4
// StructureDefinition into a schema. Bindings keep their strength and value
// set but no enumerated codes, so required bindings on imported types are
// only checked through a terminology store. Slices are ignored.
func FromStructureDefinition(sd *r4.StructureDefinition) (*schema.Schema, error) {
	if sd == nil || sd.Snapshot == nil || len(sd.Snapshot.Element) == 0 {
		return nil, &fhirschema.SchemaError{Reason: "StructureDefinition has no snapshot"}
	}
	typeName := deref(sd.Type)
	if typeName == "" {
		typeName = deref(sd.Name)
	}
	if typeName == "" {
		return nil, &fhirschema.SchemaError{Reason: "StructureDefinition has no type"}
	}

	children := make(map[string][]*r4.ElementDefinition)
	var rootDef *r4.ElementDefinition
	for i := range sd.Snapshot.Element {
		ed := &sd.Snapshot.Element[i]
		p := deref(ed.Path)
		if ed.SliceName != nil || p == "" {
			continue
		}
		if p == typeName {
			rootDef = ed
			continue
		}
		idx := strings.LastIndexByte(p, '.')
		if idx < 0 {
			continue
		}
		children[p[:idx]] = append(children[p[:idx]], ed)
	}

	category := schema.CategoryDatatype
	if sd.Kind != nil && string(*sd.Kind) == string(schema.CategoryResource) {
		category = schema.CategoryResource
	}
	root := &schema.Schema{
		Name:     typeName,
		Path:     typeName,
		Category: category,
		Abstract: sd.Abstract != nil && *sd.Abstract,
	}
	if base := deref(sd.BaseDefinition); base != "" {
		root.Base = base[strings.LastIndexByte(base, '/')+1:]
	}
	if rootDef != nil {
		for i := range rootDef.Constraint {
			c := &rootDef.Constraint[i]
			inv := schema.Invariant{
				Key:        deref(c.Key),
				Human:      deref(c.Human),
				Expression: deref(c.Expression),
			}
			if c.Severity != nil {
				inv.Severity = string(*c.Severity)
			}
			if inv.Expression != "" {
				root.Invariants = append(root.Invariants, inv)
			}
		}
	}

	imp := &importer{children: children, byPath: map[string]*schema.Schema{typeName: root}}
	if err := imp.fill(root, typeName); err != nil {
		return nil, err
	}
	for _, ref := range imp.refs {
		target, ok := imp.byPath[ref.path]
		if !ok {
			return nil, &fhirschema.SchemaError{Type: typeName, Field: ref.field.Name, Reason: "unresolved content reference #" + ref.path}
		}
		ref.field.Nested = target
	}
	return root, nil
}

type contentRef struct {
	field *schema.Field
	path  string
}

type importer struct {
	children map[string][]*r4.ElementDefinition
	byPath   map[string]*schema.Schema
	refs     []contentRef
}

func (imp *importer) fill(s *schema.Schema, path string) error {
	for _, ed := range imp.children[path] {
		p := deref(ed.Path)
		name := p[strings.LastIndexByte(p, '.')+1:]
		card, err := cardinalityOf(ed)
		if err != nil {
			return &fhirschema.SchemaError{Type: s.Name, Field: name, Reason: err.Error()}
		}
		binding := bindingOf(ed.Binding)

		if group, ok := schema.TrimChoiceSuffix(name); ok {
			for i := range ed.Type {
				code := typeCode(&ed.Type[i])
				f := &schema.Field{
					Name:     schema.VariantKey(group, code),
					Type:     code,
					Card:     card,
					Choice:   group,
					Targets:  targetsOf(&ed.Type[i]),
					Modifier: deref(ed.IsModifier),
					Summary:  deref(ed.IsSummary),
				}
				if schema.IsCoded(code) {
					f.Binding = binding
				}
				s.Fields = append(s.Fields, f)
			}
			continue
		}

		f := &schema.Field{
			Name:     name,
			Card:     card,
			Binding:  binding,
			Modifier: deref(ed.IsModifier),
			Summary:  deref(ed.IsSummary),
		}
		switch {
		case ed.ContentReference != nil:
			f.Type = schema.TypeBackboneElement
			imp.refs = append(imp.refs, contentRef{field: f, path: strings.TrimPrefix(*ed.ContentReference, "#")})
		case len(imp.children[p]) > 0:
			nested := &schema.Schema{
				Name:     s.Name + "." + strings.ToUpper(name[:1]) + name[1:],
				Path:     p,
				Category: schema.CategoryBackbone,
				Base:     schema.TypeBackboneElement,
			}
			imp.byPath[p] = nested
			if err := imp.fill(nested, p); err != nil {
				return err
			}
			f.Type = schema.TypeBackboneElement
			f.Nested = nested
		case len(ed.Type) > 0:
			f.Type = typeCode(&ed.Type[0])
			f.Targets = targetsOf(&ed.Type[0])
		default:
			return &fhirschema.SchemaError{Type: s.Name, Field: name, Reason: "element has no type"}
		}
		s.Fields = append(s.Fields, f)
	}
	s.Reindex()
	return nil
}

func cardinalityOf(ed *r4.ElementDefinition) (schema.Cardinality, error) {
	c := schema.Cardinality{Min: 0, Max: schema.Unbounded}
	if ed.Min != nil {
		c.Min = int(*ed.Min)
	}
	if ed.Max != nil && *ed.Max != "*" {
		n, err := strconv.Atoi(*ed.Max)
		if err != nil {
			return c, fmt.Errorf("invalid max %q", *ed.Max)
		}
		c.Max = n
	}
	return c, nil
}

func bindingOf(b *r4.ElementDefinitionBinding) *schema.Binding {
	if b == nil || b.Strength == nil {
		return nil
	}
	out := schema.NewBinding(schema.Strength(*b.Strength), deref(b.ValueSet), nil)
	out.Description = deref(b.Description)
	return out
}

func typeCode(t *r4.ElementDefinitionType) string {
	code := deref(t.Code)
	if mapped, ok := systemTypes[code]; ok {
		return mapped
	}
	return code
}

func targetsOf(t *r4.ElementDefinitionType) []string {
	if deref(t.Code) != schema.TypeReference {
		return nil
	}
	var out []string
	for _, p := range t.TargetProfile {
		out = append(out, p[strings.LastIndexByte(p, '/')+1:])
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func uint32Ptr(n int) *uint32 {
	v := uint32(n) //nolint:gosec // cardinality minimums are small non-negative ints
	return &v
}
