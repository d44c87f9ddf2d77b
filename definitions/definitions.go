// Package definitions provides the embedded FHIR R4 schema declarations.
//
// Types are declared in YAML under r4/. Each file holds a list of types:
//
//	types:
//	  - name: Patient
//	    kind: resource
//	    base: DomainResource
//	    elements:
//	      - name: gender
//	        type: code
//	        card: 0..1
//	        binding:
//	          strength: required
//	          valueSet: http://hl7.org/fhir/ValueSet/administrative-gender|4.0.1
//	          codes:
//	            http://hl7.org/fhir/administrative-gender: [male, female, other, unknown]
//	      - name: deceased[x]
//	        type: [boolean, dateTime]
//	      - name: contact
//	        card: 0..*
//	        elements: [...]
//
// An element with nested elements becomes a backbone schema named after its
// owner ("Patient.Contact"). An element whose type names an already declared
// backbone ("QuestionnaireResponse.Item") reuses it, which is how recursive
// structures are expressed. Abstract types only contribute inherited fields.
//
// Usage:
//
//	schemas, err := definitions.Load()
//	if err != nil {
//	    return err
//	}
package definitions

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/schema"
)

// R4 holds the embedded R4 declarations.
//
//go:embed r4/*.yaml
var R4 embed.FS

const r4Dir = "r4"

// File is the YAML document layout of one declaration file.
type File struct {
	Types []TypeDef `yaml:"types"`
}

// TypeDef declares one named type.
type TypeDef struct {
	Name        string         `yaml:"name"`
	Kind        string         `yaml:"kind"`
	Base        string         `yaml:"base,omitempty"`
	Abstract    bool           `yaml:"abstract,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Invariants  []InvariantDef `yaml:"invariants,omitempty"`
	Elements    []ElementDef   `yaml:"elements"`
}

// InvariantDef declares a FHIRPath rule evaluated on the resource root.
type InvariantDef struct {
	Key        string `yaml:"key"`
	Severity   string `yaml:"severity"`
	Human      string `yaml:"human"`
	Expression string `yaml:"expression"`
}

// ElementDef declares one element. Type is a single code or, for a name
// ending in [x], the list of variant type codes.
type ElementDef struct {
	Name     string       `yaml:"name"`
	Type     TypeList     `yaml:"type,omitempty"`
	Card     string       `yaml:"card,omitempty"`
	Short    string       `yaml:"short,omitempty"`
	Targets  []string     `yaml:"targets,omitempty"`
	Binding  *BindingDef  `yaml:"binding,omitempty"`
	Backbone string       `yaml:"backbone,omitempty"`
	Modifier bool         `yaml:"modifier,omitempty"`
	Summary  bool         `yaml:"summary,omitempty"`
	Elements []ElementDef `yaml:"elements,omitempty"`
}

// BindingDef declares a terminology binding with its enumerated codes,
// keyed by code system.
type BindingDef struct {
	Strength    string              `yaml:"strength"`
	ValueSet    string              `yaml:"valueSet"`
	Description string              `yaml:"description,omitempty"`
	Codes       map[string][]string `yaml:"codes,omitempty"`
}

// TypeList accepts either a scalar or a sequence of type codes.
type TypeList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TypeList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = TypeList{node.Value}
		return nil
	case yaml.SequenceNode:
		var codes []string
		if err := node.Decode(&codes); err != nil {
			return err
		}
		*t = codes
		return nil
	default:
		return fmt.Errorf("line %d: type must be a string or a list of strings", node.Line)
	}
}

// Load builds the schemas of all concrete R4 types.
func Load() ([]*schema.Schema, error) {
	return LoadFS(R4, r4Dir)
}

// Parse decodes the declaration files under dir without resolving them.
func Parse(fsys fs.FS, dir string) ([]TypeDef, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var defs []TypeDef
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var f File
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		defs = append(defs, f.Types...)
	}
	return defs, nil
}

// LoadFS parses and resolves the declaration files under dir of fsys.
func LoadFS(fsys fs.FS, dir string) ([]*schema.Schema, error) {
	defs, err := Parse(fsys, dir)
	if err != nil {
		return nil, err
	}
	return Resolve(defs)
}

// Resolve turns declarations into schemas, prepending inherited fields and
// invariants. Only concrete types are returned; their backbone schemas are
// reachable through Schema.Walk.
func Resolve(defs []TypeDef) ([]*schema.Schema, error) {
	r := &resolver{
		defs:     make(map[string]*TypeDef, len(defs)),
		built:    make(map[string]*built),
		visiting: make(map[string]bool),
	}
	for i := range defs {
		d := &defs[i]
		if d.Name == "" {
			return nil, &fhirschema.SchemaError{Reason: "type declaration without a name"}
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, &fhirschema.SchemaError{Type: d.Name, Reason: "declared more than once"}
		}
		r.defs[d.Name] = d
	}

	var out []*schema.Schema
	for i := range defs {
		b, err := r.build(defs[i].Name)
		if err != nil {
			return nil, err
		}
		if !defs[i].Abstract {
			out = append(out, b.schema)
		}
	}
	return out, nil
}

type built struct {
	schema     *schema.Schema
	fields     []*schema.Field
	invariants []schema.Invariant
}

type resolver struct {
	defs     map[string]*TypeDef
	built    map[string]*built
	visiting map[string]bool
}

func (r *resolver) build(name string) (*built, error) {
	if b, ok := r.built[name]; ok {
		return b, nil
	}
	def, ok := r.defs[name]
	if !ok {
		return nil, &fhirschema.SchemaError{Type: name, Reason: "unknown type"}
	}
	if r.visiting[name] {
		return nil, &fhirschema.SchemaError{Type: name, Reason: "circular base"}
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	var fields []*schema.Field
	var invariants []schema.Invariant
	if def.Base != "" {
		base, err := r.build(def.Base)
		if err != nil {
			return nil, &fhirschema.SchemaError{Type: name, Reason: "base " + def.Base + ": " + err.Error()}
		}
		fields = append(fields, base.fields...)
		invariants = append(invariants, base.invariants...)
	}
	for _, inv := range def.Invariants {
		invariants = append(invariants, schema.Invariant(inv))
	}

	category := schema.CategoryDatatype
	if def.Kind == string(schema.CategoryResource) {
		category = schema.CategoryResource
	}

	s := &schema.Schema{
		Name:        def.Name,
		Path:        def.Name,
		Category:    category,
		Base:        def.Base,
		Abstract:    def.Abstract,
		Description: def.Description,
		Invariants:  invariants,
	}
	backbones := map[string]*schema.Schema{}
	own, err := r.elements(s, def.Elements, backbones)
	if err != nil {
		return nil, err
	}
	s.Fields = append(fields, own...)
	s.Reindex()
	linkContentRefs(s, backbones)

	b := &built{schema: s, fields: s.Fields, invariants: invariants}
	r.built[name] = b
	return b, nil
}

// elements converts element declarations of owner into fields. Backbone
// schemas are recorded in backbones by name.
func (r *resolver) elements(owner *schema.Schema, els []ElementDef, backbones map[string]*schema.Schema) ([]*schema.Field, error) {
	fields := make([]*schema.Field, 0, len(els))
	for _, el := range els {
		card := schema.Optional
		if el.Card != "" {
			c, err := schema.ParseCardinality(el.Card)
			if err == nil && !c.Valid() {
				err = fmt.Errorf("cardinality %s: min exceeds max", c)
			}
			if err != nil {
				return nil, &fhirschema.SchemaError{Type: owner.Name, Field: el.Name, Reason: err.Error()}
			}
			card = c
		}

		if group, ok := schema.TrimChoiceSuffix(el.Name); ok {
			if len(el.Type) == 0 {
				return nil, &fhirschema.SchemaError{Type: owner.Name, Field: el.Name, Reason: "choice without types"}
			}
			for _, t := range el.Type {
				f := &schema.Field{
					Name:     schema.VariantKey(group, t),
					Type:     t,
					Card:     card,
					Choice:   group,
					Short:    el.Short,
					Modifier: el.Modifier,
					Summary:  el.Summary,
				}
				if t == schema.TypeReference {
					f.Targets = el.Targets
				}
				if schema.IsCoded(t) {
					f.Binding = bindingOf(el.Binding)
				}
				fields = append(fields, f)
			}
			continue
		}

		f := &schema.Field{
			Name:     el.Name,
			Card:     card,
			Short:    el.Short,
			Targets:  el.Targets,
			Binding:  bindingOf(el.Binding),
			Modifier: el.Modifier,
			Summary:  el.Summary,
		}
		switch {
		case len(el.Elements) > 0:
			nested, err := r.backbone(owner, el, backbones)
			if err != nil {
				return nil, err
			}
			f.Type = schema.TypeBackboneElement
			f.Nested = nested
		case len(el.Type) == 1:
			f.Type = el.Type[0]
		default:
			return nil, &fhirschema.SchemaError{Type: owner.Name, Field: el.Name, Reason: "element needs exactly one type"}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (r *resolver) backbone(owner *schema.Schema, el ElementDef, backbones map[string]*schema.Schema) (*schema.Schema, error) {
	base, err := r.build(schema.TypeBackboneElement)
	if err != nil {
		return nil, err
	}
	name := el.Backbone
	if name == "" {
		name = owner.Name + "." + strings.ToUpper(el.Name[:1]) + el.Name[1:]
	}
	nested := &schema.Schema{
		Name:     name,
		Path:     owner.Path + "." + el.Name,
		Category: schema.CategoryBackbone,
		Base:     schema.TypeBackboneElement,
	}
	backbones[name] = nested
	own, err := r.elements(nested, el.Elements, backbones)
	if err != nil {
		return nil, err
	}
	nested.Fields = append(append([]*schema.Field{}, base.fields...), own...)
	nested.Reindex()
	return nested, nil
}

// linkContentRefs points fields typed with a backbone name of the same
// resource at that backbone schema.
func linkContentRefs(root *schema.Schema, backbones map[string]*schema.Schema) {
	root.Walk(func(s *schema.Schema) {
		for _, f := range s.Fields {
			if f.Nested != nil {
				continue
			}
			if target, ok := backbones[f.Type]; ok {
				f.Type = schema.TypeBackboneElement
				f.Kind = schema.KindComposite
				f.Nested = target
			}
		}
	})
}

func bindingOf(def *BindingDef) *schema.Binding {
	if def == nil {
		return nil
	}
	b := schema.NewBinding(schema.Strength(def.Strength), def.ValueSet, def.Codes)
	b.Description = def.Description
	return b
}
