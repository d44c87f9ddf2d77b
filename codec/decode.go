package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	fhirschema "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/location"
	"github.com/gofhir/fhirschema/pool"
	"github.com/gofhir/fhirschema/primitive"
	"github.com/gofhir/fhirschema/record"
	"github.com/gofhir/fhirschema/reference"
	"github.com/gofhir/fhirschema/schema"
)

var errMissingResourceType = errors.New(issue.FormatDiagnostic(issue.DiagStructureNoResourceType, nil))

// Decode parses a JSON resource of any registered type.
func (c *Codec) Decode(data []byte) (*record.Record, error) {
	rec, _, err := c.decodeJSON(data, "")
	return rec, err
}

// DecodeAs parses a JSON resource that must be of type typeName.
func (c *Codec) DecodeAs(typeName string, data []byte) (*record.Record, error) {
	if !c.reg.IsResource(typeName) {
		return nil, &fhirschema.SchemaError{Type: typeName, Reason: "not a registered resource type"}
	}
	rec, _, err := c.decodeJSON(data, typeName)
	return rec, err
}

// Validate decodes data and reports every error and advisory issue instead
// of returning a record.
func (c *Codec) Validate(data []byte) *issue.Result {
	_, advisory, err := c.decodeJSON(data, "")
	res := fhirschema.Issues(err)
	res.Merge(advisory)
	res.ResourceType, _ = PeekResourceType(data)
	if c.opts.TrackPositions {
		location.Annotate(data, res)
	}
	return res
}

// ValidateRecord validates a record built by application code by encoding
// it and decoding the result.
func (c *Codec) ValidateRecord(rec *record.Record) (*issue.Result, error) {
	data, err := c.Encode(rec)
	if err != nil {
		return nil, err
	}
	return c.Validate(data), nil
}

func (c *Codec) decodeJSON(data []byte, want string) (*record.Record, *issue.Result, error) {
	start := time.Now()
	doc, err := parseJSON(data)
	if err != nil {
		c.metrics.RecordDecode(time.Since(start), false)
		c.metrics.RecordErrors(1)
		return nil, issue.NewResult(), err
	}
	return c.decodeDocument(doc, data, want, start)
}

// decodeDocument decodes a parsed document. src is the JSON source used for
// positions and invariants; it is nil for documents read from XML.
func (c *Codec) decodeDocument(doc any, src []byte, want string, start time.Time) (*record.Record, *issue.Result, error) {
	rec, advisory, err := c.decodeRoot(doc, src, want)

	errCount := len(fhirschema.Issues(err).Issues)
	c.metrics.RecordDecode(time.Since(start), err == nil)
	c.metrics.RecordErrors(errCount)
	c.metrics.RecordWarnings(advisory.WarningCount())
	if err != nil {
		return nil, advisory, err
	}
	return rec, advisory, nil
}

func (c *Codec) decodeRoot(doc any, src []byte, want string) (*record.Record, *issue.Result, error) {
	advisory := issue.NewResult()

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, advisory, decodeError(issue.DiagStructureNotObject, nil, "")
	}
	rt, _ := obj["resourceType"].(string)
	if rt == "" {
		return nil, advisory, decodeError(issue.DiagStructureNoResourceType, nil, "")
	}
	advisory.ResourceType = rt
	if want != "" && rt != want {
		return nil, advisory, decodeError(issue.DiagStructureResourceMismatch,
			map[string]any{"expected": want, "type": rt}, "")
	}
	s, ok := c.reg.Resource(rt)
	if !ok {
		return nil, advisory, decodeError(issue.DiagStructureUnknownResource,
			map[string]any{"type": rt}, "")
	}

	d := &decoder{c: c, src: src, advisory: advisory}
	rec := d.object(s, obj, rt)
	if len(d.errs) == 0 && c.opts.ValidateInvariants {
		d.checkInvariants(s, obj, rt)
	}
	return rec, advisory, d.err()
}

func parseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		de := &fhirschema.DecodeError{MessageID: issue.DiagStructureInvalidJSON, Err: err}
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			loc := location.Offset(data, int(syntax.Offset))
			de.Line, de.Column = loc.Line, loc.Column
		}
		return nil, de
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, &fhirschema.DecodeError{
			MessageID: issue.DiagStructureInvalidJSON,
			Err:       errors.New("unexpected data after the top-level value"),
		}
	}
	return doc, nil
}

func decodeError(id issue.DiagnosticID, params map[string]any, path string) *fhirschema.DecodeError {
	return &fhirschema.DecodeError{
		Path:      path,
		MessageID: id,
		Err:       errors.New(issue.FormatDiagnostic(id, params)),
	}
}

// decoder holds the state of one document decode.
type decoder struct {
	c        *Codec
	src      []byte
	advisory *issue.Result
	errs     []error
	full     bool

	contained []containedResource
}

type containedResource struct {
	path   string
	schema *schema.Schema
	obj    map[string]any
}

func (d *decoder) fail(err error) {
	if d.full {
		return
	}
	d.errs = append(d.errs, err)
	if limit := d.c.opts.MaxErrors; limit > 0 && len(d.errs) >= limit {
		d.full = true
	}
}

func (d *decoder) failID(id issue.DiagnosticID, params map[string]any, path string) {
	d.fail(fhirschema.NewValidationError(id, params, path))
}

func (d *decoder) advise(id issue.DiagnosticID, params map[string]any, path string) {
	if d.c.opts.AdvisoryIssues {
		d.advisory.AddWithID(id, params, path)
	}
}

func (d *decoder) err() error {
	if len(d.errs) == 0 {
		return nil
	}
	if d.c.opts.TrackPositions && d.src != nil {
		for _, err := range d.errs {
			d.position(err)
		}
	}
	return errors.Join(d.errs...)
}

func (d *decoder) position(err error) {
	var path string
	var set func(line, column int)
	switch e := err.(type) {
	case *fhirschema.ValidationError:
		path, set = e.Path, e.SetPosition
	case *fhirschema.AmbiguousChoiceError:
		path, set = e.Path, e.SetPosition
	case *fhirschema.DecodeError:
		path, set = e.Path, func(line, column int) { e.Line, e.Column = line, column }
	default:
		return
	}
	if loc, ok := location.Find(d.src, path); ok {
		set(loc.Line, loc.Column)
	}
}

// object decodes obj against s. path is the element path of obj.
func (d *decoder) object(s *schema.Schema, obj map[string]any, path string) *record.Record {
	rec := record.New(s.Name)
	consumed := make(map[string]bool, len(obj))
	if s.IsResource() {
		consumed["resourceType"] = true
	}

	for _, m := range s.Members() {
		if d.full {
			return rec
		}
		if m.Group != nil {
			d.choice(m.Group, obj, rec, consumed, path)
			continue
		}
		d.field(m.Field, obj, rec, consumed, path)
	}

	d.unknown(s, obj, rec, consumed, path)
	return rec
}

func (d *decoder) choice(g *schema.ChoiceGroup, obj map[string]any, rec *record.Record, consumed map[string]bool, path string) {
	var found []*schema.Field
	var keys []string
	for _, v := range g.Variants {
		_, has := obj[v.Name]
		hasExt := false
		if schema.IsPrimitive(v.Type) {
			_, hasExt = obj["_"+v.Name]
			consumed["_"+v.Name] = true
		}
		if has || hasExt {
			found = append(found, v)
			keys = append(keys, v.Name)
		}
		consumed[v.Name] = true
	}

	switch len(found) {
	case 0:
		if g.Card.Required() {
			d.failID(issue.DiagCardinalityMin, map[string]any{
				"path": pool.Choice(path, g.Name), "min": g.Card.Min, "count": 0,
			}, pool.Choice(path, g.Name))
		}
	case 1:
		v := found[0]
		raw, has := obj[v.Name]
		if ext, ok := obj["_"+v.Name]; ok && schema.IsPrimitive(v.Type) {
			rec.SetExtra("_"+v.Name, ext)
		}
		if !has {
			return
		}
		if val, ok := d.value(v, raw, pool.Field(path, v.Name)); ok {
			rec.SetChoice(g.Name, v.Type, val)
			d.c.metrics.RecordChoice()
		}
	default:
		d.fail(&fhirschema.AmbiguousChoiceError{Path: pool.Choice(path, g.Name), Keys: keys})
	}
}

func (d *decoder) field(f *schema.Field, obj map[string]any, rec *record.Record, consumed map[string]bool, path string) {
	fieldPath := pool.Field(path, f.Name)
	raw, has := obj[f.Name]
	consumed[f.Name] = true

	var ext any
	hasExt := false
	if schema.IsPrimitive(f.Type) {
		ext, hasExt = obj["_"+f.Name]
		consumed["_"+f.Name] = true
		if hasExt {
			rec.SetExtra("_"+f.Name, ext)
		}
	}

	count := 0
	switch {
	case !has || (raw == nil && hasExt):
		if hasExt {
			count = 1
			if list, ok := ext.([]any); ok && f.IsList() {
				count = len(list)
			}
		}
	case f.IsList():
		list, ok := raw.([]any)
		if !ok {
			d.failID(issue.DiagStructureArrayExpected, map[string]any{"element": fieldPath}, fieldPath)
			return
		}
		extList, _ := ext.([]any)
		values := make([]any, 0, len(list))
		for i, item := range list {
			itemPath := pool.Index(fieldPath, i)
			if item == nil && i < len(extList) && extList[i] != nil {
				values = append(values, nil)
				continue
			}
			if val, ok := d.value(f, item, itemPath); ok {
				values = append(values, val)
			}
		}
		count = len(list)
		if len(values) > 0 {
			rec.Set(f.Name, values)
		}
	default:
		if _, isList := raw.([]any); isList {
			d.failID(issue.DiagStructureArrayUnexpected, map[string]any{"element": fieldPath}, fieldPath)
			return
		}
		count = 1
		if val, ok := d.value(f, raw, fieldPath); ok {
			rec.Set(f.Name, val)
		}
	}

	if count < f.Card.Min {
		d.failID(issue.DiagCardinalityMin, map[string]any{
			"path": fieldPath, "min": f.Card.Min, "count": count,
		}, fieldPath)
	}
	if f.Card.Exceeded(count) {
		d.failID(issue.DiagCardinalityMax, map[string]any{
			"path": fieldPath, "max": f.Card.MaxString(), "count": count,
		}, fieldPath)
	}
}

// value decodes a single (non-list) value of f.
func (d *decoder) value(f *schema.Field, raw any, path string) (any, bool) {
	switch f.Kind {
	case schema.KindPrimitive:
		v, err := primitive.Decode(f.Type, raw)
		if err != nil {
			var pe *primitive.Error
			if errors.As(err, &pe) {
				d.failID(pe.ID, pe.Params, path)
			} else {
				d.fail(err)
			}
			return nil, false
		}
		d.binding(f, v, path)
		return v, true

	case schema.KindResource:
		return d.resource(raw, path)

	default:
		obj, ok := raw.(map[string]any)
		if !ok {
			d.failID(issue.DiagStructureObjectExpected, map[string]any{"element": path, "type": f.Type}, path)
			return nil, false
		}
		ns, ok := d.c.reg.SchemaOf(f)
		if !ok {
			d.fail(&fhirschema.SchemaError{Type: f.Type, Field: f.Name, Reason: "no schema registered for type"})
			return nil, false
		}
		rec := d.object(ns, obj, path)
		if f.Kind == schema.KindReference && d.c.opts.StrictReferences {
			d.reference(f, rec, path)
		}
		d.binding(f, rec, path)
		return rec, true
	}
}

// resource decodes an inline resource such as an entry of contained.
func (d *decoder) resource(raw any, path string) (any, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		d.failID(issue.DiagStructureObjectExpected, map[string]any{"element": path, "type": schema.TypeResource}, path)
		return nil, false
	}
	rt, _ := obj["resourceType"].(string)
	if rt == "" {
		d.fail(decodeError(issue.DiagStructureNoResourceType, nil, path))
		return nil, false
	}
	s, ok := d.c.reg.Resource(rt)
	if !ok {
		d.fail(decodeError(issue.DiagStructureUnknownResource, map[string]any{"type": rt}, path))
		return nil, false
	}
	d.contained = append(d.contained, containedResource{path: path, schema: s, obj: obj})
	return d.object(s, obj, path), true
}

// binding checks a coded value against the binding of f. Only required
// bindings produce errors; extensible bindings produce warnings.
func (d *decoder) binding(f *schema.Field, val any, path string) {
	b := f.Binding
	if b == nil || !schema.IsCoded(f.Type) {
		return
	}
	if b.Strength != schema.StrengthRequired && b.Strength != schema.StrengthExtensible {
		return
	}

	codes, text := record.Codes(f.Type, val)
	if len(codes) == 0 {
		if text {
			d.advise(issue.DiagBindingTextOnlyWarning, map[string]any{
				"valueSet": b.ValueSet, "strength": string(b.Strength),
			}, path)
		}
		return
	}

	known := false
	for _, c := range codes {
		valid, ok := d.lookup(b, c)
		if !ok {
			continue
		}
		if valid {
			return
		}
		known = true
	}

	params := map[string]any{"code": codes[0].Code, "valueSet": b.ValueSet}
	switch {
	case !known:
		d.advise(issue.DiagBindingCannotValidate, params, path)
	case b.Strength.Enforced():
		d.failID(issue.DiagBindingRequired, params, path)
	default:
		d.advise(issue.DiagBindingExtensible, params, path)
	}
}

func (d *decoder) lookup(b *schema.Binding, c record.Code) (valid, known bool) {
	if b.HasCodes() {
		return b.Contains(c.System, c.Code), true
	}
	if d.c.codes != nil && b.ValueSet != "" {
		return d.c.codes.CheckCode(b.ValueSet, c.System, c.Code)
	}
	return false, false
}

// reference checks the literal and the target type of a Reference record.
func (d *decoder) reference(f *schema.Field, ref *record.Record, path string) {
	explicit, hasType := ref.String("type")
	literal, hasLiteral := ref.String("reference")

	typeName := explicit
	if hasLiteral {
		t, err := reference.Parse(literal)
		if err != nil {
			d.failID(issue.DiagReferenceInvalidFormat, map[string]any{"reference": literal}, pool.Field(path, "reference"))
			return
		}
		if hasType && t.Type != "" && t.Type != explicit {
			d.failID(issue.DiagReferenceTypeMismatch, map[string]any{"type": explicit, "reference": literal}, path)
			return
		}
		if t.Type != "" {
			typeName = t.Type
		}
	}

	if typeName != "" && !f.AllowsTarget(typeName) {
		d.failID(issue.DiagReferenceInvalidTarget, map[string]any{
			"type": typeName, "allowed": strings.Join(f.Targets, ", "),
		}, path)
	}
}

// unknown handles members that matched no field of s.
func (d *decoder) unknown(s *schema.Schema, obj map[string]any, rec *record.Record, consumed map[string]bool, path string) {
	var keys []string
	for k := range obj {
		if !consumed[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)

	preserve := d.c.opts.PreserveUnknown && s.HasExtensionSlot()
	for _, k := range keys {
		keyPath := pool.Field(path, k)
		d.c.metrics.RecordUnknown(preserve)
		if preserve {
			rec.SetExtra(k, obj[k])
			d.advise(issue.DiagStructureUnknownElement, map[string]any{"element": keyPath}, keyPath)
			continue
		}
		d.c.logger.Debug().Str("path", keyPath).Msg("dropping unknown element")
		d.advise(issue.DiagStructureDroppedElement, map[string]any{"element": keyPath}, keyPath)
	}
}

// checkInvariants evaluates the invariants of the root resource and of
// every contained resource.
func (d *decoder) checkInvariants(s *schema.Schema, obj map[string]any, path string) {
	targets := append([]containedResource{{path: path, schema: s, obj: obj}}, d.contained...)
	for i, t := range targets {
		if len(t.schema.Invariants) == 0 {
			continue
		}
		data := d.src
		if i > 0 || data == nil {
			var err error
			data, err = json.Marshal(t.obj)
			if err != nil {
				d.fail(fmt.Errorf("codec: marshal %s for invariants: %w", t.path, err))
				continue
			}
		}
		for _, is := range d.c.invariants.Check(data, t.schema.Invariants, t.path) {
			if is.Severity != issue.SeverityError {
				if d.c.opts.AdvisoryIssues {
					d.advisory.AddIssue(is)
				}
				continue
			}
			d.fail(&fhirschema.ValidationError{
				Path:        t.path,
				MessageID:   issue.DiagnosticID(is.MessageID),
				Code:        is.Code,
				Diagnostics: is.Diagnostics,
			})
		}
	}
}
