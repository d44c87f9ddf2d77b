// Package record holds decoded FHIR record instances.
//
// A Record maps element names to values. A value is one of:
//
//	string, bool, int64, decimal.Decimal   primitives
//	*Record                               nested composite, backbone or inline resource
//	Choice                                the populated variant of a choice group
//	[]any                                 ordered list of any of the above
//
// Choice groups are stored once under their group name ("deceased"), so a
// record can never hold two variants of the same group.
package record

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gofhir/fhirschema/reference"
	"github.com/gofhir/fhirschema/schema"
)

// Choice is the populated variant of a choice group.
type Choice struct {
	Type  string // variant type code, e.g. "boolean", "Quantity"
	Value any
}

// Key returns the serialized key of the variant for group.
func (c Choice) Key(group string) string {
	return schema.VariantKey(group, c.Type)
}

// Record is one record instance. The zero value is not usable; call New.
type Record struct {
	typeName string
	values   map[string]any
	extras   map[string]any
}

// New creates an empty record of the named schema type, e.g. "Patient" or
// "Patient.Contact".
func New(typeName string) *Record {
	return &Record{typeName: typeName, values: make(map[string]any)}
}

// Type returns the schema type name.
func (r *Record) Type() string { return r.typeName }

// Len returns the number of populated elements, not counting extras.
func (r *Record) Len() int { return len(r.values) }

// Set stores v under name. A nil v deletes the element.
func (r *Record) Set(name string, v any) *Record {
	if v == nil {
		delete(r.values, name)
		return r
	}
	r.values[name] = v
	return r
}

// SetChoice populates a choice group, replacing any previous variant.
func (r *Record) SetChoice(group, typeCode string, v any) *Record {
	r.values[group] = Choice{Type: typeCode, Value: v}
	return r
}

// Append adds v to the list stored under name.
func (r *Record) Append(name string, v any) *Record {
	list, _ := r.values[name].([]any)
	r.values[name] = append(list, v)
	return r
}

// Delete removes an element.
func (r *Record) Delete(name string) {
	delete(r.values, name)
}

// Has reports whether name (an element, group or variant key) is populated.
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Raw returns the value stored under an element or group name.
func (r *Record) Raw(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Get returns the value of an element. name may also be a variant key such
// as "deceasedBoolean", which is populated only when that variant is the
// chosen one.
func (r *Record) Get(name string) (any, bool) {
	if v, ok := r.values[name]; ok {
		if c, isChoice := v.(Choice); isChoice {
			return c.Value, true
		}
		return v, true
	}
	for group, v := range r.values {
		if c, ok := v.(Choice); ok && c.Key(group) == name {
			return c.Value, true
		}
	}
	return nil, false
}

// Choice returns the populated variant of a group.
func (r *Record) Choice(group string) (Choice, bool) {
	c, ok := r.values[group].(Choice)
	return c, ok
}

// String returns a string element.
func (r *Record) String(name string) (string, bool) {
	v, _ := r.Get(name)
	s, ok := v.(string)
	return s, ok
}

// Bool returns a boolean element.
func (r *Record) Bool(name string) (bool, bool) {
	v, _ := r.Get(name)
	b, ok := v.(bool)
	return b, ok
}

// Int returns an integer element.
func (r *Record) Int(name string) (int64, bool) {
	v, _ := r.Get(name)
	n, ok := v.(int64)
	return n, ok
}

// Decimal returns a decimal element.
func (r *Record) Decimal(name string) (decimal.Decimal, bool) {
	v, _ := r.Get(name)
	d, ok := v.(decimal.Decimal)
	return d, ok
}

// Record returns a single nested record.
func (r *Record) Record(name string) (*Record, bool) {
	v, _ := r.Get(name)
	rec, ok := v.(*Record)
	return rec, ok
}

// List returns the values of a repeating element.
func (r *Record) List(name string) []any {
	v, _ := r.Get(name)
	list, _ := v.([]any)
	return list
}

// Records returns the nested records of a repeating element.
func (r *Record) Records(name string) []*Record {
	list := r.List(name)
	out := make([]*Record, 0, len(list))
	for _, v := range list {
		if rec, ok := v.(*Record); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Names returns the populated element and group names in sorted order.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetExtra stores an unknown member verbatim.
func (r *Record) SetExtra(key string, v any) {
	if r.extras == nil {
		r.extras = make(map[string]any)
	}
	r.extras[key] = v
}

// Extra returns an unknown member.
func (r *Record) Extra(key string) (any, bool) {
	v, ok := r.extras[key]
	return v, ok
}

// Extras returns the unknown member keys in sorted order.
func (r *Record) Extras() []string {
	keys := make([]string, 0, len(r.extras))
	for k := range r.extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewReference builds a Reference record pointing at typeName/id.
func NewReference(typeName, id string) *Record {
	return New(schema.TypeReference).Set("reference", reference.New(typeName, id).Literal)
}

// Target parses the literal of a Reference record.
func (r *Record) Target() (reference.Target, error) {
	literal, _ := r.String("reference")
	t, err := reference.Parse(literal)
	if err != nil {
		return t, err
	}
	if explicit, ok := r.String("type"); ok && t.Type == "" {
		t.Type = explicit
	}
	return t, nil
}

// Ref returns the target of a reference-valued element.
func (r *Record) Ref(name string) (reference.Target, bool) {
	ref, ok := r.Record(name)
	if !ok {
		return reference.Target{}, false
	}
	t, err := ref.Target()
	return t, err == nil
}
