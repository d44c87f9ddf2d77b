// Package registry indexes record schemas by type name.
//
// A Registry is assembled with a Builder and is immutable afterwards, so it
// can be shared by any number of goroutines without locking.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/definitions"
	"github.com/gofhir/fhirschema/schema"
)

// Registry maps type names ("Patient", "HumanName", "Patient.Contact") to
// schemas.
type Registry struct {
	byName    map[string]*schema.Schema
	types     []string
	resources []string
}

// Builder collects schemas for a Registry.
type Builder struct {
	byName map[string]*schema.Schema
	order  []string
	errs   []error
	log    zerolog.Logger
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		byName: make(map[string]*schema.Schema),
		log:    zerolog.Nop(),
	}
}

// WithLogger sets the logger used while building.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.log = l
	return b
}

// Register adds schemas and their nested backbone schemas. Registering the
// same name twice is reported by Build.
func (b *Builder) Register(schemas ...*schema.Schema) *Builder {
	for _, root := range schemas {
		if root == nil {
			continue
		}
		root.Walk(func(s *schema.Schema) {
			if _, dup := b.byName[s.Name]; dup {
				b.errs = append(b.errs, &fhirschema.SchemaError{Type: s.Name, Reason: "registered more than once"})
				return
			}
			b.byName[s.Name] = s
			b.order = append(b.order, s.Name)
		})
	}
	return b
}

// Build validates the collected schemas and returns the registry. Every
// problem found is returned, joined into one error.
func (b *Builder) Build() (*Registry, error) {
	errs := append([]error(nil), b.errs...)

	for _, name := range b.order {
		s := b.byName[name]
		for _, p := range s.Problems() {
			errs = append(errs, &fhirschema.SchemaError{Type: p.Schema, Field: p.Field, Reason: p.Reason})
		}
		for _, f := range s.Fields {
			if f.Nested != nil || f.Kind == schema.KindPrimitive || f.Kind == schema.KindResource {
				continue
			}
			if _, ok := b.byName[f.Type]; !ok {
				errs = append(errs, &fhirschema.SchemaError{
					Type:   s.Name,
					Field:  f.Name,
					Reason: fmt.Sprintf("type %s is not registered", f.Type),
				})
			}
		}
	}
	if len(errs) > 0 {
		b.log.Error().Int("problems", len(errs)).Msg("schema registry rejected")
		return nil, errors.Join(errs...)
	}

	r := &Registry{
		byName: make(map[string]*schema.Schema, len(b.byName)),
		types:  make([]string, 0, len(b.byName)),
	}
	for name, s := range b.byName {
		r.byName[name] = s
		r.types = append(r.types, name)
		if s.IsResource() {
			r.resources = append(r.resources, name)
		}
	}
	sort.Strings(r.types)
	sort.Strings(r.resources)

	b.log.Debug().
		Int("types", len(r.types)).
		Int("resources", len(r.resources)).
		Msg("schema registry built")
	return r, nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*schema.Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// MustLookup is like Lookup but panics for unknown names.
func (r *Registry) MustLookup(name string) *schema.Schema {
	s, ok := r.byName[name]
	if !ok {
		panic("registry: unknown type " + name)
	}
	return s
}

// Resource returns the schema of a resource type.
func (r *Registry) Resource(name string) (*schema.Schema, bool) {
	s, ok := r.byName[name]
	if !ok || !s.IsResource() {
		return nil, false
	}
	return s, true
}

// SchemaOf returns the schema describing values of a composite field.
func (r *Registry) SchemaOf(f *schema.Field) (*schema.Schema, bool) {
	if f.Nested != nil {
		return f.Nested, true
	}
	return r.Lookup(f.Type)
}

// IsResource reports whether name is a registered resource type.
func (r *Registry) IsResource(name string) bool {
	_, ok := r.Resource(name)
	return ok
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	return append([]string(nil), r.types...)
}

// Resources returns the registered resource type names, sorted.
func (r *Registry) Resources() []string {
	return append([]string(nil), r.resources...)
}

// Len returns the number of registered schemas, backbones included.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Load builds a registry from declaration files under dir of fsys.
func Load(fsys fs.FS, dir string) (*Registry, error) {
	schemas, err := definitions.LoadFS(fsys, dir)
	if err != nil {
		return nil, err
	}
	return NewBuilder().Register(schemas...).Build()
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the registry of the embedded R4 definitions. It is built
// once on first use.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Load(definitions.R4, "r4")
	})
	return defaultReg, defaultErr
}
