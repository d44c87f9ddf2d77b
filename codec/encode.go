package codec

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	fhirschema "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/pool"
	"github.com/gofhir/fhirschema/primitive"
	"github.com/gofhir/fhirschema/record"
	"github.com/gofhir/fhirschema/schema"
)

// Encode renders rec as compact JSON. Members appear in declared order with
// resourceType first, primitive extensions right after their primitive and
// preserved unknown members last, so equal records encode to equal bytes.
func (c *Codec) Encode(rec *record.Record) ([]byte, error) {
	if rec == nil {
		return nil, &fhirschema.SchemaError{Reason: "nil record"}
	}
	s, ok := c.reg.Lookup(rec.Type())
	if !ok {
		c.metrics.RecordEncode(false)
		return nil, &fhirschema.SchemaError{Type: rec.Type(), Reason: "unregistered type"}
	}

	buf := pool.AcquireBuffer()
	defer pool.ReleaseBuffer(buf)

	e := &encoder{c: c, buf: buf}
	e.object(s, rec, rec.Type())
	if len(e.errs) > 0 {
		c.metrics.RecordEncode(false)
		return nil, errors.Join(e.errs...)
	}
	c.metrics.RecordEncode(true)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// EncodeIndent is like Encode but indents the output.
func (c *Codec) EncodeIndent(rec *record.Record, prefix, indent string) ([]byte, error) {
	data, err := c.Encode(rec)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type encoder struct {
	c    *Codec
	buf  *bytes.Buffer
	errs []error
}

func (e *encoder) fail(id issue.DiagnosticID, params map[string]any, path string) {
	e.errs = append(e.errs, fhirschema.NewValidationError(id, params, path))
}

// members writes the comma separated members of one object.
type members struct {
	e     *encoder
	first bool
}

func (m *members) key(k string) {
	if !m.first {
		m.e.buf.WriteByte(',')
	}
	m.first = false
	m.e.writeString(k)
	m.e.buf.WriteByte(':')
}

func (e *encoder) object(s *schema.Schema, rec *record.Record, path string) {
	e.buf.WriteByte('{')
	m := &members{e: e, first: true}
	emitted := make(map[string]bool)

	if s.IsResource() {
		m.key("resourceType")
		e.writeString(s.Name)
	}

	for _, member := range s.Members() {
		if g := member.Group; g != nil {
			e.choice(m, g, rec, path, emitted)
			continue
		}
		f := member.Field
		fieldPath := pool.Field(path, f.Name)
		if raw, ok := rec.Raw(f.Name); ok && !empty(raw) {
			m.key(f.Name)
			e.field(f, raw, fieldPath)
		}
		e.primitiveExtension(m, f, rec, emitted)
	}

	for _, k := range rec.Extras() {
		if emitted[k] {
			continue
		}
		v, _ := rec.Extra(k)
		m.key(k)
		e.raw(v, pool.Field(path, k))
	}
	e.buf.WriteByte('}')
	e.errs = append(e.errs, undeclared(s, rec, path)...)
}

// undeclared reports the populated names of rec that s does not declare as
// an element or choice group. Variant keys such as "deceasedBoolean" are
// reported separately: they are only valid through the group.
func undeclared(s *schema.Schema, rec *record.Record, path string) []error {
	var errs []error
	for _, name := range rec.Names() {
		if _, ok := s.Choice(name); ok {
			continue
		}
		f, ok := s.Field(name)
		switch {
		case ok && f.Choice == "":
			continue
		case ok:
			errs = append(errs, fhirschema.NewValidationError(issue.DiagStructureVariantKey,
				map[string]any{"element": name, "group": f.Choice}, pool.Field(path, name)))
		default:
			errs = append(errs, fhirschema.NewValidationError(issue.DiagStructureUndeclared,
				map[string]any{"element": name, "type": s.Name}, pool.Field(path, name)))
		}
	}
	return errs
}

// nestedSchema resolves the schema of a complex element holding rec. The
// record must have been created for that schema.
func nestedSchema(c *Codec, f *schema.Field, rec *record.Record, path string) (*schema.Schema, error) {
	s, ok := c.reg.SchemaOf(f)
	if !ok {
		return nil, &fhirschema.SchemaError{Type: f.Type, Field: f.Name, Reason: "no schema registered for type"}
	}
	if rec.Type() != s.Name {
		return nil, fhirschema.NewValidationError(issue.DiagTypeNotAllowed,
			map[string]any{"type": rec.Type(), "element": path}, path)
	}
	return s, nil
}

func (e *encoder) choice(m *members, g *schema.ChoiceGroup, rec *record.Record, path string, emitted map[string]bool) {
	raw, ok := rec.Raw(g.Name)
	if ok {
		c, isChoice := raw.(record.Choice)
		if !isChoice {
			e.fail(issue.DiagTypeUnsupported, map[string]any{
				"goType": fmt.Sprintf("%T", raw), "type": g.Name + "[x]",
			}, pool.Choice(path, g.Name))
			return
		}
		v, ok := g.Variant(c.Type)
		if !ok {
			e.fail(issue.DiagTypeNotAllowed, map[string]any{
				"type": c.Type, "element": pool.Choice(path, g.Name),
			}, pool.Choice(path, g.Name))
			return
		}
		m.key(v.Name)
		e.value(v, c.Value, pool.Field(path, v.Name))
	}
	for _, v := range g.Variants {
		e.primitiveExtension(m, v, rec, emitted)
	}
}

// primitiveExtension writes the "_name" member carrying the id and
// extensions of a primitive element.
func (e *encoder) primitiveExtension(m *members, f *schema.Field, rec *record.Record, emitted map[string]bool) {
	if f.Kind != schema.KindPrimitive {
		return
	}
	key := "_" + f.Name
	ext, ok := rec.Extra(key)
	if !ok {
		return
	}
	emitted[key] = true
	m.key(key)
	e.raw(ext, key)
}

func (e *encoder) field(f *schema.Field, raw any, path string) {
	list, isList := raw.([]any)
	switch {
	case f.IsList() && !isList:
		e.fail(issue.DiagStructureArrayExpected, map[string]any{"element": path}, path)
		e.buf.WriteString("null")
	case !f.IsList() && isList:
		e.fail(issue.DiagStructureArrayUnexpected, map[string]any{"element": path}, path)
		e.buf.WriteString("null")
	case isList:
		e.buf.WriteByte('[')
		for i, item := range list {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if item == nil {
				e.buf.WriteString("null")
				continue
			}
			e.value(f, item, pool.Index(path, i))
		}
		e.buf.WriteByte(']')
	default:
		e.value(f, raw, path)
	}
}

func (e *encoder) value(f *schema.Field, v any, path string) {
	switch f.Kind {
	case schema.KindPrimitive:
		e.primitive(f, v, path)

	case schema.KindResource:
		rec, ok := v.(*record.Record)
		if !ok {
			e.unsupported(v, f.Type, path)
			return
		}
		s, ok := e.c.reg.Resource(rec.Type())
		if !ok {
			e.errs = append(e.errs, &fhirschema.SchemaError{Type: rec.Type(), Reason: "not a registered resource type"})
			e.buf.WriteString("null")
			return
		}
		e.object(s, rec, path)

	default:
		rec, ok := v.(*record.Record)
		if !ok {
			e.unsupported(v, f.Type, path)
			return
		}
		s, err := nestedSchema(e.c, f, rec, path)
		if err != nil {
			e.errs = append(e.errs, err)
			e.buf.WriteString("null")
			return
		}
		e.object(s, rec, path)
	}
}

func (e *encoder) primitive(f *schema.Field, v any, path string) {
	nv, err := primitiveValue(f, v, path)
	if err != nil {
		e.errs = append(e.errs, err)
		e.buf.WriteString("null")
		return
	}
	if s, ok := nv.(string); ok {
		e.writeString(s)
		return
	}
	e.buf.WriteString(primitive.Format(nv))
}

// primitiveValue normalizes a Go value supplied for a primitive element.
func primitiveValue(f *schema.Field, v any, path string) (any, error) {
	nv, err := primitive.Normalize(f.Type, v)
	if err == nil {
		return nv, nil
	}
	var pe *primitive.Error
	if errors.As(err, &pe) && pe.ID != issue.DiagTypeWrongJSONType {
		return nil, fhirschema.NewValidationError(pe.ID, pe.Params, path)
	}
	return nil, fhirschema.NewValidationError(issue.DiagTypeUnsupported, map[string]any{
		"goType": fmt.Sprintf("%T", v), "type": f.Type,
	}, path)
}

func (e *encoder) unsupported(v any, typeName, path string) {
	e.fail(issue.DiagTypeUnsupported, map[string]any{
		"goType": fmt.Sprintf("%T", v), "type": typeName,
	}, path)
	e.buf.WriteString("null")
}

// raw writes a preserved member exactly as it was decoded.
func (e *encoder) raw(v any, path string) {
	data, err := json.MarshalNoEscape(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("codec: encode %s: %w", path, err))
		e.buf.WriteString("null")
		return
	}
	e.buf.Write(data)
}

func (e *encoder) writeString(s string) {
	data, _ := json.MarshalNoEscape(s)
	e.buf.Write(data)
}

func empty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case []any:
		return len(val) == 0
	case *record.Record:
		return val == nil || (val.Len() == 0 && len(val.Extras()) == 0)
	}
	return false
}
