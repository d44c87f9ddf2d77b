// Package schema describes the shape of FHIR records: field descriptors,
// record schemas, cardinality, bindings and choice groups.
//
// Schemas are built once, typically by the definitions package, and are
// read-only after they are handed to a registry.
package schema

import "fmt"

// Kind classifies the semantic type of a field.
type Kind uint8

// Field kinds.
const (
	KindPrimitive Kind = iota + 1
	KindComposite
	KindReference
	KindResource // inline resource selected by its resourceType, e.g. contained
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindComposite:
		return "composite"
	case KindReference:
		return "reference"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Category classifies a schema.
type Category string

// Schema categories, named after StructureDefinition.kind where possible.
const (
	CategoryResource Category = "resource"
	CategoryDatatype Category = "complex-type"
	CategoryBackbone Category = "backbone"
)

// Field describes one named attribute of a record type. A choice variant
// such as deceasedBoolean is a Field whose Choice names its group.
type Field struct {
	Name    string
	Type    string
	Kind    Kind
	Card    Cardinality
	Choice  string
	Binding *Binding
	Targets []string
	Nested  *Schema
	Short   string

	Modifier bool
	Summary  bool
}

// IsList reports whether the field holds an ordered list.
func (f *Field) IsList() bool { return f.Card.IsList() }

// IsChoice reports whether the field is a choice variant.
func (f *Field) IsChoice() bool { return f.Choice != "" }

// AllowsTarget reports whether a reference may point at typeName.
// An empty allow-list or one naming "Resource" accepts any type.
func (f *Field) AllowsTarget(typeName string) bool {
	if len(f.Targets) == 0 {
		return true
	}
	for _, t := range f.Targets {
		if t == typeName || t == TypeResource {
			return true
		}
	}
	return false
}

// ChoiceGroup is a polymorphic slot; at most one variant may be populated.
type ChoiceGroup struct {
	Name     string
	Card     Cardinality
	Variants []*Field
}

// Variant returns the variant for a type code.
func (g *ChoiceGroup) Variant(typeCode string) (*Field, bool) {
	for _, v := range g.Variants {
		if v.Type == typeCode {
			return v, true
		}
	}
	return nil, false
}

// Types returns the variant type codes in declared order.
func (g *ChoiceGroup) Types() []string {
	types := make([]string, len(g.Variants))
	for i, v := range g.Variants {
		types[i] = v.Type
	}
	return types
}

// Invariant is a FHIRPath rule evaluated against a whole resource.
type Invariant struct {
	Key        string
	Severity   string
	Human      string
	Expression string
}

// Member is one declared element in schema order: a plain field or a
// choice group (placed where its first variant is declared).
type Member struct {
	Field *Field
	Group *ChoiceGroup
}

// Name returns the element name ("gender", "deceased").
func (m Member) Name() string {
	if m.Group != nil {
		return m.Group.Name
	}
	return m.Field.Name
}

// Schema is the ordered field list of one named record type, e.g.
// "Patient" or its owned backbone "Patient.Contact".
type Schema struct {
	Name        string
	Path        string
	Category    Category
	Base        string
	Abstract    bool
	Description string
	Fields      []*Field
	Invariants  []Invariant

	byName  map[string]*Field
	groups  map[string]*ChoiceGroup
	members []Member
}

// New creates a schema. Construction never fails; inconsistencies are
// reported by Problems and rejected when a registry is built.
func New(name string, category Category, fields ...*Field) *Schema {
	s := &Schema{Name: name, Path: name, Category: category, Fields: fields}
	s.Reindex()
	return s
}

// Reindex rebuilds the lookup tables after Fields changed.
func (s *Schema) Reindex() {
	s.byName = make(map[string]*Field, len(s.Fields))
	s.groups = make(map[string]*ChoiceGroup)
	s.members = s.members[:0]

	for _, f := range s.Fields {
		if f.Kind == 0 {
			f.Kind = KindOf(f.Type)
		}
		if _, dup := s.byName[f.Name]; !dup {
			s.byName[f.Name] = f
		}
		if f.Choice == "" {
			s.members = append(s.members, Member{Field: f})
			continue
		}
		g, ok := s.groups[f.Choice]
		if !ok {
			g = &ChoiceGroup{Name: f.Choice, Card: f.Card}
			s.groups[f.Choice] = g
			s.members = append(s.members, Member{Group: g})
		}
		g.Variants = append(g.Variants, f)
	}
}

// Field returns the field serialized under key, including choice variants.
func (s *Schema) Field(key string) (*Field, bool) {
	f, ok := s.byName[key]
	return f, ok
}

// Choice returns the choice group with the given name.
func (s *Schema) Choice(name string) (*ChoiceGroup, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// Members returns the declared elements in order.
func (s *Schema) Members() []Member {
	return s.members
}

// IsResource reports whether the schema describes a resource type.
func (s *Schema) IsResource() bool {
	return s.Category == CategoryResource
}

// HasExtensionSlot reports whether unknown members can be preserved.
func (s *Schema) HasExtensionSlot() bool {
	_, ext := s.byName["extension"]
	_, mod := s.byName["modifierExtension"]
	return ext || mod
}

// Walk calls fn for s and every nested backbone schema, depth first.
// Recursive structures (QuestionnaireResponse.item) are visited once.
func (s *Schema) Walk(fn func(*Schema)) {
	s.walk(fn, make(map[*Schema]bool))
}

func (s *Schema) walk(fn func(*Schema), seen map[*Schema]bool) {
	if seen[s] {
		return
	}
	seen[s] = true
	fn(s)
	for _, f := range s.Fields {
		if f.Nested != nil {
			f.Nested.walk(fn, seen)
		}
	}
}

// Problem describes an inconsistency in a schema declaration.
type Problem struct {
	Schema string
	Field  string
	Reason string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s.%s: %s", p.Schema, p.Field, p.Reason)
}

// Problems checks the invariants of the declaration: unique field names,
// valid cardinalities and bindings, consistent choice groups and nested
// schemas for backbone elements. Type names are resolved by the registry.
func (s *Schema) Problems() []Problem {
	var out []Problem
	add := func(f *Field, format string, args ...any) {
		out = append(out, Problem{Schema: s.Name, Field: f.Name, Reason: fmt.Sprintf(format, args...)})
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			add(f, "field has no name")
			continue
		}
		if seen[f.Name] {
			add(f, "duplicate field name")
		}
		seen[f.Name] = true

		if f.Type == "" {
			add(f, "field has no type")
		}
		if !f.Card.Valid() {
			add(f, "invalid cardinality %s", f.Card)
		}
		if f.Binding != nil && !f.Binding.Strength.Valid() {
			add(f, "invalid binding strength %q", f.Binding.Strength)
		}
		if f.Type == TypeBackboneElement && f.Nested == nil {
			add(f, "backbone element without nested schema")
		}
		if f.Choice != "" {
			if f.Name != VariantKey(f.Choice, f.Type) {
				add(f, "choice variant must be named %s", VariantKey(f.Choice, f.Type))
			}
			if f.IsList() {
				add(f, "choice variants cannot repeat")
			}
			if g := s.groups[f.Choice]; g != nil && g.Card != f.Card {
				add(f, "choice variants of %s[x] disagree on cardinality", f.Choice)
			}
		}
	}
	for name := range s.groups {
		if seen[name] {
			out = append(out, Problem{Schema: s.Name, Field: name, Reason: "choice group name collides with a field"})
		}
	}
	return out
}
