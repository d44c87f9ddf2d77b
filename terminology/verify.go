package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/pool"
	"github.com/gofhir/fhirschema/record"
	"github.com/gofhir/fhirschema/schema"
)

// Schemas resolves the schemas of a record and of its composite fields.
// *registry.Registry implements it.
type Schemas interface {
	Lookup(name string) (*schema.Schema, bool)
	SchemaOf(f *schema.Field) (*schema.Schema, bool)
}

// Verify checks every bound coded value of rec against p. Codes outside a
// required binding are errors, outside an extensible binding warnings;
// preferred and example bindings are not reported. ValueSets unknown to p
// yield information issues. The returned error is reserved for provider
// failures and cancellation.
func Verify(ctx context.Context, p Provider, src Schemas, rec *record.Record) (*issue.Result, error) {
	s, ok := src.Lookup(rec.Type())
	if !ok {
		return nil, fmt.Errorf("terminology: unknown type %q", rec.Type())
	}
	v := &verifier{ctx: ctx, provider: p, schemas: src, res: issue.NewResult()}
	v.res.ResourceType = rec.Type()
	if err := v.record(s, rec, rec.Type()); err != nil {
		return nil, err
	}
	return v.res, nil
}

type verifier struct {
	ctx      context.Context
	provider Provider
	schemas  Schemas
	res      *issue.Result
}

func (v *verifier) record(s *schema.Schema, rec *record.Record, path string) error {
	for _, m := range s.Members() {
		if m.Group != nil {
			c, ok := rec.Choice(m.Group.Name)
			if !ok {
				continue
			}
			f, ok := m.Group.Variant(c.Type)
			if !ok {
				continue
			}
			if err := v.value(f, c.Value, pool.Field(path, f.Name)); err != nil {
				return err
			}
			continue
		}

		f := m.Field
		raw, ok := rec.Raw(f.Name)
		if !ok {
			continue
		}
		fieldPath := pool.Field(path, f.Name)
		if list, isList := raw.([]any); isList {
			for i, item := range list {
				if err := v.value(f, item, pool.Index(fieldPath, i)); err != nil {
					return err
				}
			}
			continue
		}
		if err := v.value(f, raw, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) value(f *schema.Field, val any, path string) error {
	if err := v.ctx.Err(); err != nil {
		return err
	}
	if f.Binding != nil && f.Binding.ValueSet != "" && schema.IsCoded(f.Type) {
		if err := v.coded(f, val, path); err != nil {
			return err
		}
	}

	rec, ok := val.(*record.Record)
	if !ok {
		return nil
	}
	var nested *schema.Schema
	if f.Kind == schema.KindResource {
		nested, ok = v.schemas.Lookup(rec.Type())
	} else {
		nested, ok = v.schemas.SchemaOf(f)
	}
	if !ok {
		return nil
	}
	return v.record(nested, rec, path)
}

func (v *verifier) coded(f *schema.Field, val any, path string) error {
	b := f.Binding
	codings, text := record.Codes(f.Type, val)
	if len(codings) == 0 {
		if text && (b.Strength == schema.StrengthRequired || b.Strength == schema.StrengthExtensible) {
			v.res.AddWithID(issue.DiagBindingTextOnlyWarning, map[string]any{
				"valueSet": b.ValueSet,
				"strength": string(b.Strength),
			}, path)
		}
		return nil
	}

	for _, c := range codings {
		res, err := v.provider.ValidateCode(v.ctx, c.System, c.Code, b.ValueSet)
		if errors.Is(err, ErrNotFound) {
			v.res.AddWithID(issue.DiagBindingCannotValidate, map[string]any{
				"code":     c.Code,
				"valueSet": b.ValueSet,
			}, path)
			return nil
		}
		if err != nil {
			return err
		}
		if res.Valid {
			return nil
		}
	}

	params := map[string]any{"code": codings[0].Code, "valueSet": b.ValueSet}
	switch b.Strength {
	case schema.StrengthRequired:
		v.res.AddWithID(issue.DiagBindingRequired, params, path)
	case schema.StrengthExtensible:
		v.res.AddWithID(issue.DiagBindingExtensible, params, path)
	}
	return nil
}
