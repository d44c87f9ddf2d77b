package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"

	fhirschema "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/issue"
	"github.com/gofhir/fhirschema/pool"
	"github.com/gofhir/fhirschema/primitive"
	"github.com/gofhir/fhirschema/record"
	"github.com/gofhir/fhirschema/schema"
)

// XML namespaces of FHIR documents and of narrative XHTML.
const (
	NamespaceFHIR  = "http://hl7.org/fhir"
	NamespaceXHTML = "http://www.w3.org/1999/xhtml"
)

// DecodeXML parses a FHIR XML resource. The document is mapped onto the
// JSON shape of the resource using the schemas and then decoded with the
// same rules as Decode. Validation errors carry no line information.
func (c *Codec) DecodeXML(data []byte) (*record.Record, error) {
	rec, _, err := c.decodeXML(data)
	return rec, err
}

// ValidateXML is Validate for XML documents.
func (c *Codec) ValidateXML(data []byte) *issue.Result {
	_, advisory, err := c.decodeXML(data)
	res := fhirschema.Issues(err)
	res.Merge(advisory)
	res.ResourceType = advisory.ResourceType
	return res
}

func (c *Codec) decodeXML(data []byte) (*record.Record, *issue.Result, error) {
	start := time.Now()
	root, err := parseXML(data)
	if err == nil && root.name.Space != NamespaceFHIR {
		err = decodeError(issue.DiagStructureInvalidXML, map[string]any{
			"error": fmt.Sprintf("root element must be in namespace %s", NamespaceFHIR),
		}, "")
	}
	if err != nil {
		c.metrics.RecordDecode(time.Since(start), false)
		return nil, issue.NewResult(), err
	}
	s, ok := c.reg.Resource(root.name.Local)
	if !ok {
		c.metrics.RecordDecode(time.Since(start), false)
		return nil, issue.NewResult(), decodeError(issue.DiagStructureUnknownResource, map[string]any{"type": root.name.Local}, "")
	}

	r := &xmlReader{c: c}
	doc := r.object(s, root, true)
	return c.decodeDocument(doc, nil, "", start)
}

// xmlNode is an element of a parsed XML document. Narrative divs keep
// their source markup in div instead of children.
type xmlNode struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*xmlNode
	div      string
}

func (n *xmlNode) attr(local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func parseXML(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *xmlNode
	var stack []*xmlNode

	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			de := decodeError(issue.DiagStructureInvalidXML, map[string]any{"error": err.Error()}, "")
			var syntax *xml.SyntaxError
			if errors.As(err, &syntax) {
				de.Line = syntax.Line
			}
			return nil, de
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, decodeError(issue.DiagStructureInvalidXML,
						map[string]any{"error": "more than one root element"}, "")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			if t.Name.Space == NamespaceXHTML && t.Name.Local == "div" && len(stack) > 0 {
				if err := dec.Skip(); err != nil {
					return nil, decodeError(issue.DiagStructureInvalidXML, map[string]any{"error": err.Error()}, "")
				}
				n.div = string(data[offset:dec.InputOffset()])
				continue
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, decodeError(issue.DiagStructureInvalidXML, map[string]any{"error": "empty document"}, "")
	}
	return root, nil
}

// xmlReader maps parsed XML onto JSON-shaped values.
type xmlReader struct {
	c *Codec
}

// primitiveValues collects the occurrences of one primitive element.
type primitiveValues struct {
	list   bool
	values []any
	exts   []any
}

func (r *xmlReader) object(s *schema.Schema, n *xmlNode, resource bool) map[string]any {
	obj := make(map[string]any)
	if resource {
		obj["resourceType"] = s.Name
	} else {
		if id, ok := n.attr("id"); ok {
			obj["id"] = id
		}
		if s.Name == schema.TypeExtension {
			if url, ok := n.attr("url"); ok {
				obj["url"] = url
			}
		}
	}

	prims := make(map[string]*primitiveValues)
	for _, child := range n.children {
		name := child.name.Local
		f, ok := s.Field(name)
		if !ok {
			appendMember(obj, name, r.generic(child), false)
			continue
		}
		switch f.Kind {
		case schema.KindPrimitive:
			p, ok := prims[name]
			if !ok {
				p = &primitiveValues{list: f.IsList()}
				prims[name] = p
			}
			val, ext := r.primitive(f, child)
			p.values = append(p.values, val)
			p.exts = append(p.exts, ext)
		case schema.KindResource:
			appendMember(obj, name, r.resource(child), f.IsList())
		default:
			ns, ok := r.c.reg.SchemaOf(f)
			if !ok {
				appendMember(obj, name, r.generic(child), f.IsList())
				continue
			}
			appendMember(obj, name, r.object(ns, child, false), f.IsList())
		}
	}

	for name, p := range prims {
		p.store(obj, name)
	}
	return obj
}

func (p *primitiveValues) store(obj map[string]any, name string) {
	if !p.list && len(p.values) == 1 {
		if p.values[0] != nil {
			obj[name] = p.values[0]
		}
		if p.exts[0] != nil {
			obj["_"+name] = p.exts[0]
		}
		return
	}
	if anyPresent(p.values) {
		obj[name] = p.values
	}
	if anyPresent(p.exts) {
		obj["_"+name] = p.exts
	}
}

func anyPresent(values []any) bool {
	for _, v := range values {
		if v != nil {
			return true
		}
	}
	return false
}

// appendMember adds v under name. Repeated occurrences of a single-valued
// element become a list so that the decoder reports them.
func appendMember(obj map[string]any, name string, v any, list bool) {
	existing, ok := obj[name]
	switch {
	case list || ok && isList(existing):
		items, _ := existing.([]any)
		obj[name] = append(items, v)
	case ok:
		obj[name] = []any{existing, v}
	default:
		obj[name] = v
	}
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

// primitive returns the JSON value of a primitive element and the
// "_name" object carrying its id and extensions.
func (r *xmlReader) primitive(f *schema.Field, n *xmlNode) (val, ext any) {
	if f.Type == "xhtml" {
		if n.div != "" {
			return n.div, nil
		}
		return nil, nil
	}

	if lexical, ok := n.attr("value"); ok {
		val = lexicalValue(f.Type, lexical)
	}

	m := make(map[string]any)
	if id, ok := n.attr("id"); ok {
		m["id"] = id
	}
	if extSchema, ok := r.c.reg.Lookup(schema.TypeExtension); ok {
		var exts []any
		for _, child := range n.children {
			if child.name.Local == "extension" {
				exts = append(exts, r.object(extSchema, child, false))
			}
		}
		if len(exts) > 0 {
			m["extension"] = exts
		}
	}
	if len(m) > 0 {
		ext = m
	}
	return val, ext
}

// lexicalValue types an XML value attribute the way JSON would carry it.
func lexicalValue(typeName, lexical string) any {
	switch {
	case primitive.IsBoolean(typeName):
		switch lexical {
		case "true":
			return true
		case "false":
			return false
		}
	case primitive.IsNumeric(typeName):
		return json.Number(lexical)
	}
	return lexical
}

// resource unwraps an inline resource such as <contained><Patient>...</Patient></contained>.
func (r *xmlReader) resource(n *xmlNode) map[string]any {
	if len(n.children) == 0 {
		return map[string]any{}
	}
	inner := n.children[0]
	s, ok := r.c.reg.Resource(inner.name.Local)
	if !ok {
		return map[string]any{"resourceType": inner.name.Local}
	}
	return r.object(s, inner, true)
}

// generic converts an element no schema describes.
func (r *xmlReader) generic(n *xmlNode) any {
	if n.div != "" {
		return n.div
	}
	if v, ok := n.attr("value"); ok && len(n.children) == 0 && len(n.attrs) == 1 {
		return v
	}
	obj := make(map[string]any)
	for _, a := range n.attrs {
		if a.Name.Space == "" && a.Name.Local != "xmlns" {
			obj[a.Name.Local] = a.Value
		}
	}
	for _, child := range n.children {
		appendMember(obj, child.name.Local, r.generic(child), false)
	}
	return obj
}

// EncodeXML renders rec as FHIR XML. Primitive extensions are written as
// the id attribute and extension children of their element; other
// preserved unknown members have no XML form and are not written.
func (c *Codec) EncodeXML(rec *record.Record) ([]byte, error) {
	if rec == nil {
		return nil, &fhirschema.SchemaError{Reason: "nil record"}
	}
	s, ok := c.reg.Resource(rec.Type())
	if !ok {
		c.metrics.RecordEncode(false)
		return nil, &fhirschema.SchemaError{Type: rec.Type(), Reason: "not a registered resource type"}
	}

	buf := pool.AcquireBuffer()
	defer pool.ReleaseBuffer(buf)

	w := &xmlWriter{c: c, buf: buf}
	w.element(s, rec, rec.Type(), true, true, rec.Type())
	if len(w.errs) > 0 {
		c.metrics.RecordEncode(false)
		return nil, errors.Join(w.errs...)
	}
	c.metrics.RecordEncode(true)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

type xmlWriter struct {
	c    *Codec
	buf  *bytes.Buffer
	errs []error
}

func (w *xmlWriter) attr(name, value string) {
	w.buf.WriteByte(' ')
	w.buf.WriteString(name)
	w.buf.WriteString(`="`)
	_ = xml.EscapeText(w.buf, []byte(value))
	w.buf.WriteByte('"')
}

func (w *xmlWriter) element(s *schema.Schema, rec *record.Record, name string, resource, root bool, path string) {
	w.buf.WriteByte('<')
	w.buf.WriteString(name)
	if root {
		w.attr("xmlns", NamespaceFHIR)
	}

	skip := make(map[string]bool)
	if !resource {
		if id, ok := rec.String("id"); ok {
			w.attr("id", id)
			skip["id"] = true
		}
		if s.Name == schema.TypeExtension {
			if url, ok := rec.String("url"); ok {
				w.attr("url", url)
				skip["url"] = true
			}
		}
	}
	w.buf.WriteByte('>')

	body := w.buf.Len()
	w.children(s, rec, path, skip)
	w.errs = append(w.errs, undeclared(s, rec, path)...)
	if w.buf.Len() == body {
		w.buf.Truncate(body - 1)
		w.buf.WriteString("/>")
		return
	}
	w.buf.WriteString("</")
	w.buf.WriteString(name)
	w.buf.WriteByte('>')
}

func (w *xmlWriter) children(s *schema.Schema, rec *record.Record, path string, skip map[string]bool) {
	for _, m := range s.Members() {
		if g := m.Group; g != nil {
			c, hasChoice := rec.Choice(g.Name)
			for _, v := range g.Variants {
				ext, hasExt := rec.Extra("_" + v.Name)
				chosen := hasChoice && c.Type == v.Type
				if !chosen && !hasExt {
					continue
				}
				var val any
				if chosen {
					val = c.Value
				}
				w.value(v, val, ext, pool.Field(path, v.Name))
			}
			continue
		}

		f := m.Field
		if skip[f.Name] {
			continue
		}
		fieldPath := pool.Field(path, f.Name)
		raw, _ := rec.Raw(f.Name)
		var ext any
		if f.Kind == schema.KindPrimitive {
			ext, _ = rec.Extra("_" + f.Name)
		}

		if !f.IsList() {
			w.value(f, raw, ext, fieldPath)
			continue
		}
		items, _ := raw.([]any)
		exts, _ := ext.([]any)
		n := max(len(items), len(exts))
		for i := 0; i < n; i++ {
			var item, itemExt any
			if i < len(items) {
				item = items[i]
			}
			if i < len(exts) {
				itemExt = exts[i]
			}
			w.value(f, item, itemExt, pool.Index(fieldPath, i))
		}
	}
}

func (w *xmlWriter) value(f *schema.Field, v, ext any, path string) {
	switch f.Kind {
	case schema.KindPrimitive:
		w.primitive(f, v, ext, path)

	case schema.KindResource:
		rec, ok := v.(*record.Record)
		if !ok {
			w.unsupported(v, f.Type, path)
			return
		}
		s, ok := w.c.reg.Resource(rec.Type())
		if !ok {
			w.errs = append(w.errs, &fhirschema.SchemaError{Type: rec.Type(), Reason: "not a registered resource type"})
			return
		}
		w.buf.WriteString("<" + f.Name + ">")
		w.element(s, rec, rec.Type(), true, false, path)
		w.buf.WriteString("</" + f.Name + ">")

	default:
		rec, ok := v.(*record.Record)
		if !ok {
			w.unsupported(v, f.Type, path)
			return
		}
		if empty(rec) {
			return
		}
		s, err := nestedSchema(w.c, f, rec, path)
		if err != nil {
			w.errs = append(w.errs, err)
			return
		}
		w.element(s, rec, f.Name, false, false, path)
	}
}

// unsupported reports a value that cannot be written for typeName. A nil v
// is an absent element and writes nothing.
func (w *xmlWriter) unsupported(v any, typeName, path string) {
	if v == nil {
		return
	}
	w.errs = append(w.errs, fhirschema.NewValidationError(issue.DiagTypeUnsupported, map[string]any{
		"goType": fmt.Sprintf("%T", v), "type": typeName,
	}, path))
}

func (w *xmlWriter) primitive(f *schema.Field, v, ext any, path string) {
	if v == nil && ext == nil {
		return
	}
	if f.Type == "xhtml" {
		if s, ok := v.(string); ok {
			w.buf.WriteString(s)
		}
		return
	}

	w.buf.WriteByte('<')
	w.buf.WriteString(f.Name)
	extMap, _ := ext.(map[string]any)
	if id, ok := extMap["id"].(string); ok {
		w.attr("id", id)
	}
	if v != nil {
		nv, err := primitiveValue(f, v, path)
		if err != nil {
			w.errs = append(w.errs, err)
		} else {
			w.attr("value", primitive.Format(nv))
		}
	}

	exts, _ := extMap["extension"].([]any)
	if len(exts) == 0 {
		w.buf.WriteString("/>")
		return
	}
	w.buf.WriteByte('>')
	if extSchema, ok := w.c.reg.Lookup(schema.TypeExtension); ok {
		for i, item := range exts {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			extPath := pool.Index(pool.Field(path, "extension"), i)
			d := &decoder{c: w.c, advisory: issue.NewResult()}
			rec := d.object(extSchema, obj, extPath)
			w.errs = append(w.errs, d.errs...)
			w.element(extSchema, rec, "extension", false, false, extPath)
		}
	}
	w.buf.WriteString("</")
	w.buf.WriteString(f.Name)
	w.buf.WriteByte('>')
}
