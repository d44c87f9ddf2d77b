package record

import (
	"reflect"

	"github.com/shopspring/decimal"
)

// Equal reports structural equality: same type, same elements, same values
// (decimals compared numerically) and same extras.
func Equal(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.typeName != b.typeName || len(a.values) != len(b.values) || len(a.extras) != len(b.extras) {
		return false
	}
	for name, av := range a.values {
		bv, ok := b.values[name]
		if !ok || !equalValue(av, bv) {
			return false
		}
	}
	for key, av := range a.extras {
		if !reflect.DeepEqual(av, b.extras[key]) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	switch av := a.(type) {
	case *Record:
		bv, ok := b.(*Record)
		return ok && Equal(av, bv)
	case Choice:
		bv, ok := b.(Choice)
		return ok && av.Type == bv.Type && equalValue(av.Value, bv.Value)
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// Clone returns a deep copy of r. Extras are shared.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := New(r.typeName)
	for name, v := range r.values {
		c.values[name] = cloneValue(v)
	}
	for k, v := range r.extras {
		c.SetExtra(k, v)
	}
	return c
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Record:
		return val.Clone()
	case Choice:
		return Choice{Type: val.Type, Value: cloneValue(val.Value)}
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}
